// Package mockserver provides a mock Binance REST server for end-to-end tests.
// It covers the spot endpoints the bot uses: account, ticker price, klines,
// limit orders and open orders. Limit orders rest until the test fills them.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Binance error codes returned for refused requests.
const (
	CodeInvalidParameter = -1100
	CodeNewOrderRejected = -2010
	CodeCancelRejected   = -2011
)

// maxKlines is the page size Binance uses when no limit is given.
const maxKlines = 500

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Balance represents an account balance.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Order represents a resting or finished limit order.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Status        OrderStatus
	TimeInForce   string
	CreatedAt     time.Time
}

// Market describes one tradable pair.
type Market struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// CandleFunc returns the close price of the one-minute candle opening at t.
type CandleFunc func(t time.Time) decimal.Decimal

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	// Markets lists the pairs the server trades.
	Markets []Market
	// InitialBalances maps asset to free balance.
	InitialBalances map[string]decimal.Decimal
	// Prices maps symbol to the initial ticker price.
	Prices map[string]decimal.Decimal
	// Candles produces kline closes. Without it klines are flat at the ticker price.
	Candles CandleFunc
}

// MockBinanceServer is an in-memory Binance spot venue.
type MockBinanceServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	markets    map[string]Market
	balances   map[string]*Balance
	prices     map[string]decimal.Decimal
	orders     map[int64]*Order
	orderIDSeq int64
	candles    CandleFunc

	// requests counts calls per "METHOD path"
	requests map[string]int
	// failures queues responses returned instead of handling, per "METHOD path"
	failures map[string][]failure
}

// failure is a canned error response. A non-zero code is sent as a Binance
// API error body.
type failure struct {
	status  int
	code    int64
	message string
}

// NewMockBinanceServer creates a new mock Binance server.
func NewMockBinanceServer(config ServerConfig) *MockBinanceServer {
	server := &MockBinanceServer{
		mu:         sync.RWMutex{},
		httpServer: nil,
		listener:   nil,
		markets:    make(map[string]Market),
		balances:   make(map[string]*Balance),
		prices:     make(map[string]decimal.Decimal),
		orders:     make(map[int64]*Order),
		orderIDSeq: 1000,
		candles:    config.Candles,
		requests:   make(map[string]int),
		failures:   make(map[string][]failure),
	}

	for _, market := range config.Markets {
		server.markets[market.Symbol] = market
	}

	for asset, amount := range config.InitialBalances {
		server.balances[asset] = &Balance{Asset: asset, Free: amount, Locked: decimal.Zero}
	}

	for symbol, price := range config.Prices {
		server.prices[symbol] = price
	}

	return server
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockBinanceServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()
	router.Use(s.intercept)
	router.HandleFunc("/api/v3/ticker/price", s.handleTickerPrice).Methods(http.MethodGet)
	router.HandleFunc("/api/v3/klines", s.handleKlines).Methods(http.MethodGet)
	router.HandleFunc("/api/v3/account", s.handleAccount).Methods(http.MethodGet)
	router.HandleFunc("/api/v3/order", s.handleCreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/api/v3/order", s.handleCancelOrder).Methods(http.MethodDelete)
	router.HandleFunc("/api/v3/openOrders", s.handleOpenOrders).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the mock server.
func (s *MockBinanceServer) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Address returns the address the server is listening on.
func (s *MockBinanceServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *MockBinanceServer) BaseURL() string {
	return "http://" + s.Address()
}

// SetPrice sets the ticker price for a symbol.
func (s *MockBinanceServer) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[symbol] = price
}

// SetCandles replaces the kline close function.
func (s *MockBinanceServer) SetCandles(candles CandleFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candles = candles
}

// GetBalance returns a copy of the balance for an asset.
func (s *MockBinanceServer) GetBalance(asset string) Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.balances[asset]; ok {
		return *bal
	}

	return Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
}

// SetBalance sets the free balance for an asset.
func (s *MockBinanceServer) SetBalance(asset string, free decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[asset] = &Balance{Asset: asset, Free: free, Locked: decimal.Zero}
}

// Orders returns copies of every order the server has seen, oldest first.
func (s *MockBinanceServer) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Order, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, *order)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].OrderID < result[j].OrderID })

	return result
}

// FillOpenOrders fills every resting order at its limit price and returns
// how many were filled.
func (s *MockBinanceServer) FillOpenOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	filled := 0

	for _, order := range s.orders {
		if order.Status != OrderStatusNew {
			continue
		}

		market := s.markets[order.Symbol]
		cost := order.Price.Mul(order.Quantity)

		if order.Side == OrderSideBuy {
			quote := s.balance(market.QuoteAsset)
			quote.Locked = quote.Locked.Sub(cost)
			base := s.balance(market.BaseAsset)
			base.Free = base.Free.Add(order.Quantity)
		} else {
			base := s.balance(market.BaseAsset)
			base.Locked = base.Locked.Sub(order.Quantity)
			quote := s.balance(market.QuoteAsset)
			quote.Free = quote.Free.Add(cost)
		}

		order.Status = OrderStatusFilled
		filled++
	}

	return filled
}

// FailNext makes the next request to method and path answer with status.
// Calls queue up.
func (s *MockBinanceServer) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, code: 0, message: http.StatusText(status)})
}

// RejectNext makes the next request to method and path answer with a Binance
// API error carrying code.
func (s *MockBinanceServer) RejectNext(method, path string, code int64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: http.StatusBadRequest, code: code, message: message})
}

// Requests returns how many times method and path were called.
func (s *MockBinanceServer) Requests(method, path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.requests[method+" "+path]
}

// balance returns the balance for asset, creating it. Callers hold mu.
func (s *MockBinanceServer) balance(asset string) *Balance {
	bal, ok := s.balances[asset]
	if !ok {
		bal = &Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}
		s.balances[asset] = bal
	}

	return bal
}

// intercept counts requests and serves queued failures.
func (s *MockBinanceServer) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.requests[key]++

		var canned *failure
		if queued := s.failures[key]; len(queued) > 0 {
			canned = &queued[0]
			s.failures[key] = queued[1:]
		}
		s.mu.Unlock()

		switch {
		case canned == nil:
		case canned.code != 0:
			writeAPIError(w, canned.code, canned.message)

			return
		default:
			http.Error(w, canned.message, canned.status)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// params merges the query string with a form-encoded body. go-binance sends
// signed DELETE parameters in the body, which ParseForm ignores.
func params(r *http.Request) (url.Values, error) {
	values := r.URL.Query()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}

	for key, vs := range form {
		for _, v := range vs {
			values.Add(key, v)
		}
	}

	return values, nil
}

// writeAPIError writes a Binance-style error body so clients decode an APIError.
func writeAPIError(w http.ResponseWriter, code int64, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code": code,
		"msg":  message,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func orderResponse(order *Order) map[string]interface{} {
	executed := decimal.Zero
	if order.Status == OrderStatusFilled {
		executed = order.Quantity
	}

	return map[string]interface{}{
		"symbol":              order.Symbol,
		"orderId":             order.OrderID,
		"orderListId":         -1,
		"clientOrderId":       order.ClientOrderID,
		"transactTime":        order.CreatedAt.UnixMilli(),
		"price":               order.Price.StringFixed(8),
		"origQty":             order.Quantity.StringFixed(8),
		"executedQty":         executed.StringFixed(8),
		"cummulativeQuoteQty": executed.Mul(order.Price).StringFixed(8),
		"status":              string(order.Status),
		"timeInForce":         order.TimeInForce,
		"type":                "LIMIT",
		"side":                string(order.Side),
		"time":                order.CreatedAt.UnixMilli(),
		"updateTime":          order.CreatedAt.UnixMilli(),
		"isWorking":           true,
	}
}

// handleTickerPrice handles GET /api/v3/ticker/price
func (s *MockBinanceServer) handleTickerPrice(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type priceResponse struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		price, ok := s.prices[symbol]
		if !ok {
			writeAPIError(w, CodeInvalidParameter, "Invalid symbol.")

			return
		}

		writeJSON(w, priceResponse{Symbol: symbol, Price: price.StringFixed(8)})

		return
	}

	response := make([]priceResponse, 0, len(s.prices))
	for symbol, price := range s.prices {
		response = append(response, priceResponse{Symbol: symbol, Price: price.StringFixed(8)})
	}

	writeJSON(w, response)
}

// handleKlines handles GET /api/v3/klines with one-minute candles only.
func (s *MockBinanceServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := query.Get("symbol")

	if symbol == "" || query.Get("interval") != "1m" {
		writeAPIError(w, CodeInvalidParameter, "Only 1m klines are supported.")

		return
	}

	endTime := time.Now()
	if ms, err := strconv.ParseInt(query.Get("endTime"), 10, 64); err == nil {
		endTime = time.UnixMilli(ms)
	}

	startTime := endTime.Add(-maxKlines * time.Minute)
	if ms, err := strconv.ParseInt(query.Get("startTime"), 10, 64); err == nil {
		startTime = time.UnixMilli(ms)
	}

	s.mu.RLock()
	closeAt := s.candles
	flat := s.prices[symbol]
	s.mu.RUnlock()

	if closeAt == nil {
		closeAt = func(time.Time) decimal.Decimal { return flat }
	}

	// first minute boundary at or after startTime
	openTime := startTime.Truncate(time.Minute)
	if openTime.Before(startTime) {
		openTime = openTime.Add(time.Minute)
	}

	klines := make([][]interface{}, 0)
	for ; !openTime.After(endTime) && len(klines) < maxKlines; openTime = openTime.Add(time.Minute) {
		price := closeAt(openTime).StringFixed(8)
		klines = append(klines, []interface{}{
			openTime.UnixMilli(),
			price,
			price,
			price,
			price,
			"1.00000000",
			openTime.Add(time.Minute).UnixMilli() - 1,
			"0",
			0,
			"0",
			"0",
			"0",
		})
	}

	writeJSON(w, klines)
}

// handleAccount handles GET /api/v3/account
func (s *MockBinanceServer) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type balanceResponse struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	}

	balances := make([]balanceResponse, 0, len(s.balances))
	for _, bal := range s.balances {
		balances = append(balances, balanceResponse{
			Asset:  bal.Asset,
			Free:   bal.Free.StringFixed(8),
			Locked: bal.Locked.StringFixed(8),
		})
	}

	writeJSON(w, map[string]interface{}{
		"makerCommission":  10,
		"takerCommission":  10,
		"buyerCommission":  0,
		"sellerCommission": 0,
		"canTrade":         true,
		"canWithdraw":      true,
		"canDeposit":       true,
		"updateTime":       time.Now().UnixMilli(),
		"accountType":      "SPOT",
		"balances":         balances,
	})
}

// handleCreateOrder handles POST /api/v3/order for GTC limit orders. Funds
// are locked until the order fills or is cancelled.
func (s *MockBinanceServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeInvalidParameter, "Malformed request.")

		return
	}

	symbol := values.Get("symbol")
	side := OrderSide(values.Get("side"))

	if values.Get("type") != "LIMIT" || (side != OrderSideBuy && side != OrderSideSell) {
		writeAPIError(w, CodeInvalidParameter, "Only BUY and SELL limit orders are supported.")

		return
	}

	quantity, err := decimal.NewFromString(values.Get("quantity"))
	if err != nil || !quantity.IsPositive() {
		writeAPIError(w, CodeInvalidParameter, "Invalid quantity.")

		return
	}

	price, err := decimal.NewFromString(values.Get("price"))
	if err != nil || !price.IsPositive() {
		writeAPIError(w, CodeInvalidParameter, "Invalid price.")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	market, ok := s.markets[symbol]
	if !ok {
		writeAPIError(w, CodeInvalidParameter, "Invalid symbol.")

		return
	}

	if side == OrderSideBuy {
		quote := s.balance(market.QuoteAsset)
		cost := price.Mul(quantity)

		if quote.Free.LessThan(cost) {
			writeAPIError(w, CodeNewOrderRejected, "Account has insufficient balance for requested action.")

			return
		}

		quote.Free = quote.Free.Sub(cost)
		quote.Locked = quote.Locked.Add(cost)
	} else {
		base := s.balance(market.BaseAsset)

		if base.Free.LessThan(quantity) {
			writeAPIError(w, CodeNewOrderRejected, "Account has insufficient balance for requested action.")

			return
		}

		base.Free = base.Free.Sub(quantity)
		base.Locked = base.Locked.Add(quantity)
	}

	clientOrderID := values.Get("newClientOrderId")
	if clientOrderID == "" {
		clientOrderID = uuid.New().String()
	}

	s.orderIDSeq++
	order := &Order{
		OrderID:       s.orderIDSeq,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		Status:        OrderStatusNew,
		TimeInForce:   values.Get("timeInForce"),
		CreatedAt:     time.Now(),
	}
	s.orders[order.OrderID] = order

	writeJSON(w, orderResponse(order))
}

// handleCancelOrder handles DELETE /api/v3/order and releases locked funds.
func (s *MockBinanceServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	values, err := params(r)
	if err != nil {
		writeAPIError(w, CodeInvalidParameter, "Malformed request.")

		return
	}

	orderID, err := strconv.ParseInt(values.Get("orderId"), 10, 64)
	if err != nil {
		writeAPIError(w, CodeInvalidParameter, "Invalid orderId.")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.Symbol != values.Get("symbol") || order.Status != OrderStatusNew {
		writeAPIError(w, CodeCancelRejected, "Unknown order sent.")

		return
	}

	market := s.markets[order.Symbol]

	if order.Side == OrderSideBuy {
		cost := order.Price.Mul(order.Quantity)
		quote := s.balance(market.QuoteAsset)
		quote.Locked = quote.Locked.Sub(cost)
		quote.Free = quote.Free.Add(cost)
	} else {
		base := s.balance(market.BaseAsset)
		base.Locked = base.Locked.Sub(order.Quantity)
		base.Free = base.Free.Add(order.Quantity)
	}

	order.Status = OrderStatusCanceled

	writeJSON(w, orderResponse(order))
}

// handleOpenOrders handles GET /api/v3/openOrders
func (s *MockBinanceServer) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	s.mu.RLock()
	defer s.mu.RUnlock()

	open := make([]map[string]interface{}, 0)

	ids := make([]int64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		order := s.orders[id]
		if order.Status != OrderStatusNew {
			continue
		}

		if symbol != "" && order.Symbol != symbol {
			continue
		}

		open = append(open, orderResponse(order))
	}

	writeJSON(w, open)
}
