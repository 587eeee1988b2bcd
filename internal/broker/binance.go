package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
)

// klinesPageSize is the number of klines Binance returns per request by default.
const klinesPageSize = 500

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ListOpenOrdersService interface for listing open orders.
type ListOpenOrdersService interface {
	Symbol(symbol string) ListOpenOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// ListPricesService interface for latest symbol prices.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*binance.SymbolPrice, error)
}

// KlinesService interface for historical candles.
type KlinesService interface {
	Symbol(symbol string) KlinesService
	Interval(interval string) KlinesService
	StartTime(startTime int64) KlinesService
	EndTime(endTime int64) KlinesService
	Do(ctx context.Context) ([]*binance.Kline, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListOpenOrdersService() ListOpenOrdersService
	NewCancelOrderService() CancelOrderService
	NewListPricesService() ListPricesService
	NewKlinesService() KlinesService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realBinanceClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realBinanceClient) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

func (r *realBinanceClient) NewKlinesService() KlinesService {
	return &realKlinesService{service: r.client.NewKlinesService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *binance.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Symbol(symbol string) ListOpenOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *binance.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*binance.SymbolPrice, error) {
	return s.service.Do(ctx)
}

type realKlinesService struct {
	service *binance.KlinesService
}

func (s *realKlinesService) Symbol(symbol string) KlinesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realKlinesService) Interval(interval string) KlinesService {
	s.service = s.service.Interval(interval)

	return s
}

func (s *realKlinesService) StartTime(startTime int64) KlinesService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realKlinesService) EndTime(endTime int64) KlinesService {
	s.service = s.service.EndTime(endTime)

	return s
}

func (s *realKlinesService) Do(ctx context.Context) ([]*binance.Kline, error) {
	return s.service.Do(ctx)
}

// BinanceBroker implements Broker against the Binance spot REST API.
// It is stateless; every call goes to the exchange.
type BinanceBroker struct {
	client BinanceClient
	now    func() time.Time
}

// NewBinanceBroker creates a broker for the given endpoint.
func NewBinanceBroker(config BinanceConfig, baseURL string) (*BinanceBroker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := binance.NewClient(config.APIKey, config.SecretKey)

	// an explicit BaseURL in config wins over the provider default
	switch {
	case config.BaseURL != "":
		client.BaseURL = config.BaseURL
	case baseURL != "":
		client.BaseURL = baseURL
	}

	return &BinanceBroker{
		client: &realBinanceClient{client: client},
		now:    time.Now,
	}, nil
}

// newBinanceBrokerWithClient creates a broker with a custom client.
// This is used for testing with mock clients.
func newBinanceBrokerWithClient(client BinanceClient, now func() time.Time) *BinanceBroker {
	return &BinanceBroker{
		client: client,
		now:    now,
	}
}

// GetBalance returns the free balance of asset. A missing asset is zero.
func (b *BinanceBroker) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, classify(err, "failed to get account info from Binance")
	}

	for _, balance := range account.Balances {
		if balance.Asset != asset {
			continue
		}

		free, parseErr := decimal.NewFromString(balance.Free)
		if parseErr != nil {
			return decimal.Zero, errors.Wrapf(errors.ErrCodeBrokerRequest, parseErr, "invalid free balance %q for %s", balance.Free, asset)
		}

		return free, nil
	}

	return decimal.Zero, nil
}

// GetPrice returns the latest trade price of symbol.
func (b *BinanceBroker) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, classify(err, "failed to get price from Binance")
	}

	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}

		price, parseErr := decimal.NewFromString(p.Price)
		if parseErr != nil {
			return decimal.Zero, errors.Wrapf(errors.ErrCodeBrokerRequest, parseErr, "invalid price %q for %s", p.Price, symbol)
		}

		return price, nil
	}

	return decimal.Zero, errors.Newf(errors.ErrCodeBrokerRequest, "no price returned for %s", symbol)
}

// GetHistoricalCandles pages through klines from now-lookback to now.
func (b *BinanceBroker) GetHistoricalCandles(ctx context.Context, symbol string, interval string, lookback time.Duration) ([]types.Candle, error) {
	if lookback <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "lookback must be positive, got %s", lookback)
	}

	end := b.now()
	endMillis := end.UnixMilli()
	currentStart := end.Add(-lookback).UnixMilli()

	candles := make([]types.Candle, 0)

	for {
		klines, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(currentStart).
			EndTime(endMillis).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeHistoricalDataFailed, "failed to fetch klines from Binance", classify(err, "klines request failed"))
		}

		for _, k := range klines {
			candle, convErr := convertKline(k)
			if convErr != nil {
				return nil, convErr
			}

			candles = append(candles, candle)
		}

		if len(klines) < klinesPageSize {
			break
		}

		// close time of the last kline + 1ms avoids duplicates
		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	return candles, nil
}

// PlaceLimitOrder places a GTC limit order.
func (b *BinanceBroker) PlaceLimitOrder(ctx context.Context, order types.LimitOrderRequest) (string, error) {
	var side binance.SideType

	switch order.Side {
	case types.OrderSideBuy:
		side = binance.SideTypeBuy
	case types.OrderSideSell:
		side = binance.SideTypeSell
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", order.Side)
	}

	if !order.Quantity.IsPositive() {
		return "", errors.New(errors.ErrCodeInvalidParameter, "order quantity must be greater than zero")
	}

	if !order.Price.IsPositive() {
		return "", errors.New(errors.ErrCodeInvalidParameter, "order price must be greater than zero")
	}

	service := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		Quantity(order.Quantity.String()).
		Price(order.Price.String()).
		TimeInForce(binance.TimeInForceTypeGTC)

	if order.ClientOrderID != "" {
		service = service.NewClientOrderID(order.ClientOrderID)
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return "", classify(err, "failed to place order on Binance")
	}

	return strconv.FormatInt(resp.OrderID, 10), nil
}

// CancelOrder cancels an open order by id.
func (b *BinanceBroker) CancelOrder(ctx context.Context, symbol string, orderID string) error {
	id, parseErr := strconv.ParseInt(orderID, 10, 64)
	if parseErr != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", parseErr)
	}

	_, err := b.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return classify(err, "failed to cancel order on Binance")
	}

	return nil
}

// ListOpenOrders returns the ids of open orders for symbol.
func (b *BinanceBroker) ListOpenOrders(ctx context.Context, symbol string) ([]string, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classify(err, "failed to get open orders from Binance")
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, strconv.FormatInt(o.OrderID, 10))
	}

	return ids, nil
}

func convertKline(k *binance.Kline) (types.Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))

	for i, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return types.Candle{}, errors.Wrapf(errors.ErrCodeHistoricalDataFailed, err, "invalid kline value %q", f)
		}

		values[i] = v
	}

	return types.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

var _ Broker = (*BinanceBroker)(nil)
