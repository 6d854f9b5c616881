// Package webhook turns Mercado Pago payment notifications into ERP orders.
//
// A notification moves through these states:
//
//	received -> signature checked -> payment fetched -> order submitted
//
// and ends as one Outcome. Only approved payments create orders, and each
// payment id creates at most one.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"order-bridge/internal/alert"
	"order-bridge/internal/bling"
	"order-bridge/internal/idempotency"
	"order-bridge/internal/mercadopago"
	"order-bridge/internal/model"
)

// Outcome is the terminal state of a notification.
type Outcome string

const (
	OutcomeSubmitted        Outcome = "order_submitted"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeFailed           Outcome = "failed"
	OutcomeSignatureInvalid Outcome = "signature_invalid"
)

// TopicPayment is the only topic that leads to orders.
const TopicPayment = "payment"

// Notification is an inbound webhook call.
type Notification struct {
	Topic     string
	PaymentID string
	Signature string
	RequestID string
}

// Result describes what Handle did.
type Result struct {
	Outcome       Outcome
	PaymentID     string
	PaymentStatus string
	OrderID       int64
}

// PaymentFetcher loads a payment by id. mercadopago.Client implements it.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
}

// OrderSubmitter creates an ERP order. bling.Client implements it.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, o bling.Order) (*bling.OrderResult, error)
}

// Config wires a Receiver.
type Config struct {
	Verifier *Verifier
	Payments PaymentFetcher
	Orders   OrderSubmitter
	Dedup    idempotency.Store
	Alerts   alert.Notifier
	Defaults bling.Defaults
	TTL      time.Duration

	// Observe, if set, is called once per notification.
	Observe func(Outcome)
}

// Receiver processes notifications. Safe for concurrent use.
type Receiver struct {
	cfg    Config
	logger *slog.Logger
}

// NewReceiver creates a Receiver.
func NewReceiver(cfg Config, logger *slog.Logger) *Receiver {
	if cfg.TTL <= 0 {
		cfg.TTL = idempotency.DefaultTTL
	}
	if cfg.Observe == nil {
		cfg.Observe = func(Outcome) {}
	}
	if cfg.Alerts == nil {
		cfg.Alerts = alert.NewLogNotifier(logger)
	}
	return &Receiver{cfg: cfg, logger: logger}
}

// Handle runs a notification to completion. The only error it returns is a
// signature error (an *model.APIError with status 401 or 403); every other
// failure is reported as OutcomeFailed after logging and alerting, since the
// caller answers 200 either way.
func (r *Receiver) Handle(ctx context.Context, n Notification) (Result, error) {
	res := Result{PaymentID: n.PaymentID}
	log := r.logger.With(slog.String("payment_id", n.PaymentID), slog.String("request_id", n.RequestID))

	if err := r.cfg.Verifier.Verify(n.PaymentID, n.Signature); err != nil {
		log.Warn("webhook signature rejected", slog.String("reason", err.Error()))
		r.cfg.Observe(OutcomeSignatureInvalid)
		return Result{Outcome: OutcomeSignatureInvalid, PaymentID: n.PaymentID},
			model.NewSignatureError(err.Error(), errors.Is(err, ErrSignatureMismatch))
	}

	res.Outcome = r.process(ctx, n, &res, log)
	r.cfg.Observe(res.Outcome)
	log.Info("webhook processed", slog.String("outcome", string(res.Outcome)))
	return res, nil
}

func (r *Receiver) process(ctx context.Context, n Notification, res *Result, log *slog.Logger) Outcome {
	if n.Topic != "" && n.Topic != TopicPayment {
		return OutcomeIgnored
	}

	payment, err := r.cfg.Payments.GetPayment(ctx, n.PaymentID)
	if err != nil {
		log.Error("payment lookup failed", slog.String("error", err.Error()))
		r.alert(ctx, alert.KindPaymentLookup, n.PaymentID, "payment lookup failed", err)
		return OutcomeFailed
	}
	res.PaymentStatus = payment.Status

	if !payment.Approved() {
		return OutcomeIgnored
	}

	id := strconv.FormatInt(payment.ID, 10)
	if payment.ID == 0 {
		id = n.PaymentID
	}
	key := idempotency.PaymentKey(id)

	reserved, err := r.cfg.Dedup.Reserve(ctx, key, r.cfg.TTL)
	if err != nil {
		// Without the dedup set an order could be created twice; refuse.
		log.Error("idempotency store unavailable", slog.String("error", err.Error()))
		r.alert(ctx, alert.KindDedupFailed, id, "approved payment not processed: idempotency store unavailable", err)
		return OutcomeFailed
	}
	if !reserved {
		return OutcomeDuplicate
	}

	order := bling.OrderFromPayment(payment, r.cfg.Defaults)
	created, err := r.cfg.Orders.SubmitOrder(ctx, order)
	if err != nil {
		if rerr := r.cfg.Dedup.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.Error("releasing idempotency key failed", slog.String("error", rerr.Error()))
		}
		log.Error("order creation failed for approved payment",
			slog.String("error", err.Error()),
			slog.String("amount", payment.TransactionAmount.String()),
		)
		r.alert(ctx, alert.KindOrderFailed, id,
			fmt.Sprintf("approved payment %s has no ERP order", id), err)
		return OutcomeFailed
	}

	res.OrderID = created.ID
	return OutcomeSubmitted
}

func (r *Receiver) alert(ctx context.Context, kind, paymentID, msg string, cause error) {
	a := alert.Alert{
		Kind:      kind,
		PaymentID: paymentID,
		Message:   msg,
		Error:     cause.Error(),
		Time:      time.Now().UTC(),
	}
	if err := r.cfg.Alerts.Notify(context.WithoutCancel(ctx), a); err != nil {
		r.logger.Error("alert delivery failed",
			slog.String("kind", kind),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
	}
}
