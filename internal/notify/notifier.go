// Package notify delivers short operator alerts such as order placements,
// cancellations and heartbeats.
package notify

import (
	"context"
	stderrors "errors"

	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"go.uber.org/zap"
)

// Notifier sends a plain-text message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Log writes every message to the logger. It never fails.
type Log struct {
	log *logger.Logger
}

// NewLog creates a Log notifier.
func NewLog(log *logger.Logger) *Log {
	return &Log{log: log}
}

func (n *Log) Notify(_ context.Context, message string) error {
	n.log.Info("Notification", zap.String("message", message))

	return nil
}

// Multi fans a message out to every notifier. All notifiers are attempted;
// failures are joined.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi notifier.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(ctx context.Context, message string) error {
	var errs []error

	for _, n := range m.notifiers {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Wrap(errors.ErrCodeNotificationFailed, "one or more notifiers failed", stderrors.Join(errs...))
}

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

var (
	_ Notifier = (*Log)(nil)
	_ Notifier = (*Multi)(nil)
)
