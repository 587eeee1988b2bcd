package trading

import (
	"context"
	"fmt"

	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/metrics"
	"github.com/rxtech-lab/indicator-bot/internal/notify"
	"github.com/rxtech-lab/indicator-bot/internal/order"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"go.uber.org/zap"
)

// orderObserver journals, counts and announces order lifecycle events.
func (d *Driver) orderObserver() order.Observer {
	onPlaced := func(o types.OutstandingOrder) {
		d.recordOrder(types.OrderEventPlaced, o, "")

		verb := "Buying"
		if o.Side == types.OrderSideSell {
			verb = "Selling"
		}

		d.notify(context.Background(), fmt.Sprintf("%s %s %s for $%s %s",
			verb, o.RequestedQuantity, d.config.BaseAsset, o.RequestedPrice, d.config.QuoteAsset))
	}

	onFilled := func(o types.OutstandingOrder) {
		d.recordOrder(types.OrderEventFilled, o, "")
	}

	onCancelled := func(o types.OutstandingOrder) {
		d.recordOrder(types.OrderEventCancelled, o, "")
		d.notify(context.Background(), MessageCancel)
	}

	onFailed := func(o types.OutstandingOrder, err error) {
		d.recordOrder(types.OrderEventFailed, o, err.Error())

		action := "place"
		if o.OrderID != "" {
			action = "cancel"
		}

		d.notify(context.Background(), fmt.Sprintf("Failed to %s %s order: %v", action, o.Side, err))
	}

	return order.Observer{
		OnPlaced:    &onPlaced,
		OnFilled:    &onFilled,
		OnCancelled: &onCancelled,
		OnFailed:    &onFailed,
	}
}

func (d *Driver) recordOrder(event types.OrderEvent, o types.OutstandingOrder, message string) {
	d.metrics.ObserveOrder(o.Side, event)

	if d.journal == nil {
		return
	}

	err := d.journal.RecordOrder(types.OrderRecord{
		Timestamp: d.clock.Now(),
		Event:     event,
		Order:     o,
		Message:   message,
	})
	if err != nil {
		d.log.Warn("Failed to journal order event", zap.String("event", string(event)), zap.Error(err))
	}
}

// NewGuardedCallbacks feeds broker failures and breaker transitions to the
// metrics, the status board and the notifier.
func NewGuardedCallbacks(m *metrics.Metrics, board *StatusBoard, notifier notify.Notifier, log *logger.Logger) broker.GuardedCallbacks {
	onError := func(op string, err error) {
		m.ObserveBrokerError(op, err)
	}

	onStateChange := func(from, to broker.BreakerState) {
		m.SetBreakerState(int(to))
		board.SetBreakerState(to.String())
		log.Warn("Broker circuit breaker changed state",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)

		switch to {
		case broker.BreakerOpen:
			_ = notifier.Notify(context.Background(), "Broker circuit breaker opened, pausing broker calls")
		case broker.BreakerClosed:
			_ = notifier.Notify(context.Background(), "Broker circuit breaker closed, broker calls resumed")
		case broker.BreakerHalfOpen:
		}
	}

	return broker.GuardedCallbacks{
		OnError:              &onError,
		OnBreakerStateChange: &onStateChange,
	}
}
