package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/store"
)

var webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "giving_webhook_events_total",
	Help: "Verified payment webhook events by type and outcome",
}, []string{"type", "outcome"})

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type EventVerifier interface {
	VerifyAndParse(payload []byte, signature string) (*domain.PaymentEvent, error)
}

type TransitionStore interface {
	ApplyTransition(ctx context.Context, t store.Transition) (store.TransitionResult, error)
}

// Reconciler turns verified payment events into donation status changes.
type Reconciler struct {
	verifier EventVerifier
	store    TransitionStore
	logger   *slog.Logger
}

func NewReconciler(v EventVerifier, s TransitionStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{verifier: v, store: s, logger: logger}
}

// Handle verifies the raw webhook body before anything touches the database.
// Verification errors are returned unwrapped so callers can map them to a status code.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := r.verifier.VerifyAndParse(payload, signature)
	if err != nil {
		return "", err
	}

	outcome, err := r.apply(ctx, ev)
	if err != nil {
		webhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return "", err
	}
	webhookEvents.WithLabelValues(ev.Type, string(outcome)).Inc()
	r.logger.Info("webhook processed", "event_id", ev.ID, "type", ev.Type, "outcome", outcome)
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, ev *domain.PaymentEvent) (Outcome, error) {
	t, ok := transitionFor(ev)
	if !ok {
		return OutcomeIgnored, nil
	}

	res, err := r.store.ApplyTransition(ctx, t)
	if errors.Is(err, store.ErrDuplicateEvent) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	if !res.Applied {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

// transitionFor maps an event onto the donation lifecycle. Refunds are located by the
// donation id the payment intent inherited from checkout, else by the stored payment intent,
// so a refund still lands when the completion event never arrived.
func transitionFor(ev *domain.PaymentEvent) (store.Transition, bool) {
	t := store.Transition{EventID: ev.ID, EventType: ev.Type}

	switch ev.Kind {
	case domain.EventCheckoutCompleted:
		if ev.PaymentStatus != "paid" {
			return t, false
		}
		if ev.Metadata.DonationID == uuid.Nil && ev.SessionID == "" {
			return t, false
		}
		t.DonationID = ev.Metadata.DonationID
		t.SessionID = ev.SessionID
		t.PaymentIntentID = ev.PaymentIntentID
		t.To = domain.DonationCompleted
	case domain.EventCheckoutExpired:
		if ev.Metadata.DonationID == uuid.Nil && ev.SessionID == "" {
			return t, false
		}
		t.DonationID = ev.Metadata.DonationID
		t.SessionID = ev.SessionID
		t.To = domain.DonationFailed
	case domain.EventChargeRefunded:
		if ev.Metadata.DonationID == uuid.Nil && ev.PaymentIntentID == "" {
			return t, false
		}
		t.DonationID = ev.Metadata.DonationID
		t.PaymentIntentID = ev.PaymentIntentID
		t.To = domain.DonationRefunded
	default:
		return t, false
	}
	return t, true
}
