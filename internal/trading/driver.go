// Package trading runs the trade loop: it seeds the indicators, runs active
// cycles on the wall-clock grid and keeps the bot's liveness notifications.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/clock"
	"github.com/rxtech-lab/indicator-bot/internal/indicator"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/metrics"
	"github.com/rxtech-lab/indicator-bot/internal/notify"
	"github.com/rxtech-lab/indicator-bot/internal/order"
	"github.com/rxtech-lab/indicator-bot/internal/signal"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Notification texts.
const (
	MessageStarting  = "Starting bot"
	MessageHeartbeat = "Bot is still alive"
	MessageCancel    = "Order not filled, cancelling order"
)

// Journal records decisions and order events.
type Journal interface {
	RecordDecision(record types.DecisionRecord) error
	RecordOrder(record types.OrderRecord) error
}

// Config configures the Driver.
type Config struct {
	BaseAsset  string
	QuoteAsset string
	Schedule   Schedule
	// HeartbeatInterval is the minimum time between liveness notifications.
	HeartbeatInterval time.Duration
	// SeedLookback is the history fetched at start-up, before grid alignment.
	SeedLookback time.Duration
	// SeedStride keeps one 1m candle in SeedStride when seeding.
	SeedStride int
	// SeedRetries bounds the retries of the seed fetch.
	SeedRetries uint64
	// SeedBackoff is the first wait between seed fetch retries.
	SeedBackoff time.Duration
	// AdoptExistingBalance starts HELD when at least MinimumCoin is already held.
	AdoptExistingBalance bool
	MinimumCoin          decimal.Decimal
	// Order configures the lifecycle manager. Its Symbol is derived from the assets.
	Order order.Config
}

// Symbol returns the exchange symbol.
func (c Config) Symbol() string {
	return c.BaseAsset + c.QuoteAsset
}

// DefaultConfig returns the reference configuration for base/quote.
func DefaultConfig(base, quote string) Config {
	return Config{
		BaseAsset:            base,
		QuoteAsset:           quote,
		Schedule:             DefaultSchedule(),
		HeartbeatInterval:    12 * time.Hour,
		SeedLookback:         8 * time.Hour,
		SeedStride:           10,
		SeedRetries:          5,
		SeedBackoff:          time.Second,
		AdoptExistingBalance: false,
		MinimumCoin:          decimal.RequireFromString("0.0001"),
		Order:                order.DefaultConfig(base + quote),
	}
}

// Dependencies are the collaborators of the Driver.
// Journal may be nil. Metrics and Board are created when nil.
type Dependencies struct {
	Broker    broker.Broker
	Engine    *indicator.Engine
	Evaluator *signal.Evaluator
	Notifier  notify.Notifier
	Journal   Journal
	Metrics   *metrics.Metrics
	Board     *StatusBoard
	Clock     clock.Clock
	Logger    *logger.Logger
}

// Driver is the scheduling shell around the engine, evaluator and manager.
// Run is the only entry point that should be used concurrently with status readers.
type Driver struct {
	config        Config
	broker        broker.Broker
	engine        *indicator.Engine
	evaluator     *signal.Evaluator
	manager       *order.Manager
	notifier      notify.Notifier
	journal       Journal
	metrics       *metrics.Metrics
	board         *StatusBoard
	clock         clock.Clock
	log           *logger.Logger
	balances      types.Balances
	lastHeartbeat time.Time
	lastSlot      optional.Option[time.Time]
}

// NewDriver wires a Driver and the order manager it owns.
func NewDriver(config Config, deps Dependencies) (*Driver, error) {
	if config.BaseAsset == "" || config.QuoteAsset == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "base and quote assets are required")
	}

	if err := config.Schedule.Validate(); err != nil {
		return nil, err
	}

	if config.SeedStride < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "seed stride must be positive, got %d", config.SeedStride)
	}

	if deps.Broker == nil || deps.Engine == nil || deps.Evaluator == nil || deps.Notifier == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "broker, engine, evaluator and notifier are required")
	}

	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	if deps.Board == nil {
		deps.Board = NewStatusBoard(config.Symbol())
	}

	d := &Driver{
		config:        config,
		broker:        deps.Broker,
		engine:        deps.Engine,
		evaluator:     deps.Evaluator,
		manager:       nil,
		notifier:      deps.Notifier,
		journal:       deps.Journal,
		metrics:       deps.Metrics,
		board:         deps.Board,
		clock:         deps.Clock,
		log:           deps.Logger,
		balances:      types.Balances{Cash: decimal.Zero, Coin: decimal.Zero},
		lastHeartbeat: time.Time{},
		lastSlot:      optional.None[time.Time](),
	}

	orderConfig := config.Order
	orderConfig.Symbol = config.Symbol()

	manager, err := order.NewManager(deps.Broker, orderConfig, deps.Clock, deps.Logger.Named("order"), d.orderObserver())
	if err != nil {
		return nil, err
	}

	d.manager = manager

	return d, nil
}

// Manager returns the order lifecycle manager.
func (d *Driver) Manager() *order.Manager {
	return d.manager
}

// Board returns the status board the driver publishes to.
func (d *Driver) Board() *StatusBoard {
	return d.board
}

// Run notifies start-up, seeds the indicators and loops until ctx is
// cancelled. Cycle failures are logged and the loop keeps going. It returns
// nil on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	startedAt := d.clock.Now()
	d.lastHeartbeat = startedAt
	d.board.update(func(s *types.BotStatus) {
		s.StartedAt = startedAt
	})

	d.log.Info("Starting bot",
		zap.String("symbol", d.config.Symbol()),
		zap.Int("cycle_minutes", d.config.Schedule.CycleMinutes),
	)
	d.notify(ctx, MessageStarting)

	if _, err := d.Seed(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		d.log.Error("Seeding failed, indicators will warm up from live samples", zap.Error(err))
		d.notify(ctx, fmt.Sprintf("Seeding failed: %v", err))
	}

	if d.config.AdoptExistingBalance {
		if err := d.adoptExistingBalance(ctx); err != nil {
			d.log.Warn("Failed to adopt existing balance", zap.Error(err))
		}
	}

	for {
		now := d.clock.Now()
		d.heartbeat(ctx, now)

		active := false

		if d.due(now) {
			active = true

			if err := d.RunCycle(ctx); err != nil {
				if ctx.Err() != nil {
					d.log.Info("Trade loop stopped")

					return nil
				}

				if errors.IsDefect(err) {
					d.log.Error("Cycle aborted", zap.Error(err))
				} else {
					d.log.Warn("Cycle failed, retrying next cycle", zap.Error(err))
				}
			}
		}

		d.board.update(func(s *types.BotStatus) {
			s.LastTickAt = now
		})

		select {
		case <-ctx.Done():
			d.log.Info("Trade loop stopped")

			return nil
		case <-d.clock.After(d.config.Schedule.Sleep(active)):
		}
	}
}

// due reports whether now is on the grid and its slot has not been run yet.
func (d *Driver) due(now time.Time) bool {
	if !d.config.Schedule.Due(now) {
		return false
	}

	slot := d.config.Schedule.Slot(now)
	if last, err := d.lastSlot.Take(); err == nil && !slot.After(last) {
		return false
	}

	return true
}

func (d *Driver) heartbeat(ctx context.Context, now time.Time) {
	if now.Sub(d.lastHeartbeat) <= d.config.HeartbeatInterval {
		return
	}

	d.lastHeartbeat = now
	d.notify(ctx, MessageHeartbeat)
}

// RunCycle runs one active cycle: refresh, record, reconcile, evaluate, act, record.
// OutOfOrderSample and ReconciliationConflict failures are notified before
// being returned.
func (d *Driver) RunCycle(ctx context.Context) error {
	now := d.clock.Now()
	slot := d.config.Schedule.Slot(now)
	d.lastSlot = optional.Some(slot)
	d.metrics.CyclesTotal.Inc()

	err := d.runCycle(ctx, slot)
	if err != nil {
		d.metrics.CycleFailuresTotal.Inc()

		if errors.IsDefect(err) {
			d.notify(ctx, fmt.Sprintf("Cycle aborted: %v", err))
		}
	}

	d.publish(now, err)

	return err
}

func (d *Driver) runCycle(ctx context.Context, slot time.Time) error {
	symbol := d.config.Symbol()

	// 1. balances and open orders
	cash, err := d.broker.GetBalance(ctx, d.config.QuoteAsset)
	if err != nil {
		return errors.Wrapf(errors.GetCode(err), err, "failed to refresh %s balance", d.config.QuoteAsset)
	}

	coin, err := d.broker.GetBalance(ctx, d.config.BaseAsset)
	if err != nil {
		return errors.Wrapf(errors.GetCode(err), err, "failed to refresh %s balance", d.config.BaseAsset)
	}

	d.balances = types.Balances{Cash: cash, Coin: coin}

	openOrders, err := d.broker.ListOpenOrders(ctx, symbol)
	if err != nil {
		return errors.Wrap(errors.GetCode(err), "failed to list open orders", err)
	}

	// 2. latest price
	price, err := d.broker.GetPrice(ctx, symbol)
	if err != nil {
		return errors.Wrap(errors.GetCode(err), "failed to fetch price", err)
	}

	snapshot, err := d.engine.Record(types.PriceSample{Timestamp: slot, Close: price})
	if err != nil {
		return err
	}

	d.metrics.ObserveSnapshot(snapshot)
	d.log.Info("Updated technicals",
		zap.String("symbol", symbol),
		zap.String("close", price.String()),
		zap.String("trend", formatOptional(snapshot.Trend)),
		zap.String("momentum", formatOptional(snapshot.Momentum)),
	)

	// 3. fold broker order state in before deciding
	if err := d.manager.Reconcile(ctx, openOrders); err != nil {
		return err
	}

	// 4. decide
	decision := d.evaluator.Evaluate(snapshot, d.manager.Position())
	d.metrics.ObserveDecision(decision)

	// 5. act
	acted := false

	var actErr error

	switch decision {
	case types.DecisionEnter:
		d.log.Info("Buy signal", zap.String("symbol", symbol))
		acted, actErr = d.manager.RequestEntry(ctx, price, cash)
	case types.DecisionExit:
		d.log.Info("Sell signal", zap.String("symbol", symbol))
		acted, actErr = d.manager.RequestExit(ctx, price, coin)
	case types.DecisionNone:
	}

	// 6. record
	note := ""
	if actErr != nil {
		note = actErr.Error()
	}

	d.recordDecision(types.DecisionRecord{
		Timestamp: slot,
		Symbol:    symbol,
		Snapshot:  snapshot,
		State:     d.manager.State(),
		Decision:  decision,
		Acted:     acted,
		Note:      note,
	})

	d.board.update(func(s *types.BotStatus) {
		s.LastDecision = decision
	})

	return actErr
}

// publish copies the cycle outcome to the metrics and the status board.
func (d *Driver) publish(now time.Time, cycleErr error) {
	d.publishTrading()

	lastError := ""
	if cycleErr != nil {
		lastError = cycleErr.Error()
	}

	d.board.update(func(s *types.BotStatus) {
		s.LastCycleAt = now
		s.Cycles++
		s.Indicators = d.engine.Latest()
		s.LastError = lastError
	})
}

func (d *Driver) publishTrading() {
	trading := d.manager.Snapshot()
	balances := d.balances
	d.metrics.ObserveTrading(trading, balances)

	d.board.update(func(s *types.BotStatus) {
		s.Trading = trading
		s.Balances = balances
	})
}

func (d *Driver) recordDecision(record types.DecisionRecord) {
	if d.journal == nil {
		return
	}

	if err := d.journal.RecordDecision(record); err != nil {
		d.log.Warn("Failed to journal decision", zap.Error(err))
	}
}

// adoptExistingBalance starts HELD from a coin balance left by a previous run,
// using the current price as the entry price.
func (d *Driver) adoptExistingBalance(ctx context.Context) error {
	coin, err := d.broker.GetBalance(ctx, d.config.BaseAsset)
	if err != nil {
		return err
	}

	coin = coin.Truncate(d.config.Order.QuantityPrecision)
	if coin.LessThan(d.config.MinimumCoin) || !coin.IsPositive() {
		d.log.Info("No existing balance to adopt", zap.String("coin", coin.String()))

		return nil
	}

	price, err := d.broker.GetPrice(ctx, d.config.Symbol())
	if err != nil {
		return err
	}

	if err := d.manager.Restore(types.Position{HeldQuantity: coin, EntryPrice: optional.Some(price)}); err != nil {
		return err
	}

	d.balances.Coin = coin
	d.notify(ctx, fmt.Sprintf("Adopted existing position of %s %s at $%s %s", coin, d.config.BaseAsset, price, d.config.QuoteAsset))
	d.publishTrading()

	return nil
}

func formatOptional(v optional.Option[decimal.Decimal]) string {
	if v.IsNone() {
		return "undefined"
	}

	return v.Unwrap().StringFixed(4)
}

func (d *Driver) notify(ctx context.Context, message string) {
	if err := d.notifier.Notify(ctx, message); err != nil {
		d.log.Warn("Failed to send notification", zap.String("message", message), zap.Error(err))
	}
}
