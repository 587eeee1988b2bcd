package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"go.uber.org/zap"
)

// AsyncConfig configures the Async dispatcher.
type AsyncConfig struct {
	// QueueSize bounds the number of undelivered messages.
	QueueSize int
	// SendTimeout bounds each delivery to the wrapped notifier.
	SendTimeout time.Duration
}

// DefaultAsyncConfig returns a 64-message queue and a 30s send timeout.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		QueueSize:   64,
		SendTimeout: 30 * time.Second,
	}
}

// Async delivers messages to a wrapped Notifier on its own goroutine.
// Notify never blocks and never returns a delivery error: a full queue drops
// the message and failed deliveries are logged.
type Async struct {
	inner   Notifier
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync starts the dispatcher goroutine. Call Close to stop it.
func NewAsync(inner Notifier, config AsyncConfig, log *logger.Logger) *Async {
	size := config.QueueSize
	if size <= 0 {
		size = DefaultAsyncConfig().QueueSize
	}

	timeout := config.SendTimeout
	if timeout <= 0 {
		timeout = DefaultAsyncConfig().SendTimeout
	}

	a := &Async{
		inner:   inner,
		log:     log,
		timeout: timeout,
		mu:      sync.Mutex{},
		closed:  false,
		queue:   make(chan string, size),
		done:    make(chan struct{}),
	}

	go a.run()

	return a
}

// Notify enqueues message for delivery.
func (a *Async) Notify(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.dropped.Add(1)
		a.log.Warn("Notification dropped: dispatcher closed", zap.String("message", message))

		return nil
	}

	select {
	case a.queue <- message:
	default:
		a.dropped.Add(1)
		a.log.Warn("Notification dropped: queue full", zap.String("message", message))
	}

	return nil
}

func (a *Async) run() {
	defer close(a.done)

	for message := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.inner.Notify(ctx, message)
		cancel()

		if err != nil {
			a.failed.Add(1)
			a.log.Error("Failed to deliver notification", zap.String("message", message), zap.Error(err))
		}
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCodeNotificationFailed, "notification queue did not drain", ctx.Err())
	}
}

// Dropped returns the number of messages discarded without delivery.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failed returns the number of deliveries the wrapped notifier rejected.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}

var _ Notifier = (*Async)(nil)
