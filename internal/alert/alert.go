// Package alert reports failures that need an operator, such as an approved
// payment whose ERP order could not be created.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Alert kinds.
const (
	KindOrderFailed   = "order_failed"
	KindPaymentLookup = "payment_lookup_failed"
	KindDedupFailed   = "dedup_unavailable"
)

// Alert is one operator notification.
type Alert struct {
	Kind      string            `json:"kind"`
	PaymentID string            `json:"payment_id,omitempty"`
	Message   string            `json:"message"`
	Error     string            `json:"error,omitempty"`
	Time      time.Time         `json:"time"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the log at error level.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	attrs := []slog.Attr{
		slog.String("kind", a.Kind),
		slog.String("payment_id", a.PaymentID),
		slog.String("error", a.Error),
	}
	for k, v := range a.Attrs {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.LogAttrs(ctx, slog.LevelError, "ALERT: "+a.Message, attrs...)
	return nil
}

// Multi fans an alert out to several notifiers and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
