package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/givingops/internal/domain"
)

var allStatuses = []domain.DonationStatus{
	domain.DonationPending,
	domain.DonationProcessing,
	domain.DonationCompleted,
	domain.DonationFailed,
	domain.DonationRefunded,
}

// Transition is a status change requested by a verified payment event. The donation
// is located by DonationID when set, otherwise by SessionID, otherwise by PaymentIntentID.
type Transition struct {
	EventID         string
	EventType       string
	DonationID      uuid.UUID
	SessionID       string
	PaymentIntentID string
	To              domain.DonationStatus
}

// TransitionResult reports which donation changed; Applied is false when no row
// matched or the donation was already past the target state.
type TransitionResult struct {
	Applied    bool
	DonationID uuid.UUID
}

type outboxPayload struct {
	DonationID     uuid.UUID             `json:"donation_id"`
	Status         domain.DonationStatus `json:"status"`
	AmountCents    int64                 `json:"amount_cents"`
	FeeAmountCents int64                 `json:"fee_amount_cents"`
	CoverFees      bool                  `json:"cover_fees"`
	IsWidget       bool                  `json:"is_widget"`
	SourceEvent    string                `json:"source_event"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// ApplyTransition records the event id, moves the donation to t.To if the lifecycle
// allows it, and queues an outbox event, all in one transaction. A previously seen
// event id returns ErrDuplicateEvent and changes nothing.
func (s *Store) ApplyTransition(ctx context.Context, t Transition) (TransitionResult, error) {
	var res TransitionResult

	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return res, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if t.EventID != "" {
		_, err = tx.Exec(ctx,
			"INSERT INTO webhook_events (event_id, event_type) VALUES ($1, $2)",
			t.EventID, t.EventType,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return res, ErrDuplicateEvent
			}
			return res, fmt.Errorf("event record failed: %w", err)
		}
	}

	where, arg := transitionTarget(t)
	if where == "" {
		return res, tx.Commit(ctx)
	}

	var intent *string
	if t.PaymentIntentID != "" {
		intent = &t.PaymentIntentID
	}

	var p outboxPayload
	err = tx.QueryRow(ctx,
		`UPDATE donations SET
			status = $2,
			completed_at = CASE WHEN $2 = 'completed' THEN COALESCE(completed_at, NOW()) ELSE completed_at END,
			stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id),
			updated_at = NOW()
		 WHERE `+where+` AND status = ANY($4)
		 RETURNING id, amount_cents, fee_amount_cents, cover_fees, is_widget, updated_at`,
		arg, t.To, intent, sourcesFor(t.To),
	).Scan(&p.DonationID, &p.AmountCents, &p.FeeAmountCents, &p.CoverFees, &p.IsWidget, &p.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, tx.Commit(ctx)
	}
	if err != nil {
		return res, fmt.Errorf("status update failed: %w", err)
	}

	p.Status = t.To
	p.SourceEvent = t.EventType
	payload, err := json.Marshal(p)
	if err != nil {
		return res, err
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO donation_events (donation_id, event_type, status, payload) VALUES ($1, $2, $3, $4)",
		p.DonationID, "donation."+string(t.To), t.To, payload,
	)
	if err != nil {
		return res, fmt.Errorf("outbox insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("tx commit failed: %w", err)
	}
	return TransitionResult{Applied: true, DonationID: p.DonationID}, nil
}

func transitionTarget(t Transition) (string, any) {
	switch {
	case t.DonationID != uuid.Nil:
		return "id = $1", t.DonationID
	case t.SessionID != "":
		return "stripe_session_id = $1", t.SessionID
	case t.PaymentIntentID != "":
		return "stripe_payment_intent_id = $1", t.PaymentIntentID
	}
	return "", nil
}

// sourcesFor lists the states a donation may be in for a move to `to` to take effect.
// The target itself is excluded so a replay updates nothing.
func sourcesFor(to domain.DonationStatus) []string {
	var out []string
	for _, s := range allStatuses {
		if s != to && s.CanTransitionTo(to) {
			out = append(out, string(s))
		}
	}
	return out
}
