package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/givingops/internal/domain"
)

const donationColumns = `id, COALESCE(donor_id, ''), amount_cents, fee_amount_cents, cover_fees, is_anonymous,
	status, is_widget, widget_token_id, COALESCE(stripe_session_id, ''), COALESCE(stripe_payment_intent_id, ''),
	created_at, completed_at`

// CreateDonation writes the pending donation and all of its allocations in one transaction,
// so a donation row never exists without allocations summing to its amount.
func (s *Store) CreateDonation(ctx context.Context, d *domain.Donation, allocs []domain.Allocation) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = domain.DonationPending
	}

	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var donorID *string
	if d.DonorID != "" {
		donorID = &d.DonorID
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO donations (id, donor_id, amount_cents, fee_amount_cents, cover_fees, is_anonymous, status, is_widget, widget_token_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		d.ID, donorID, d.AmountCents, d.FeeAmountCents, d.CoverFees, d.IsAnonymous, d.Status, d.IsWidget, d.WidgetTokenID,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("donation insert failed: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range allocs {
		a := &allocs[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.DonationID = d.ID
		batch.Queue(
			`INSERT INTO donation_allocations (id, donation_id, nonprofit_id, category_id, percentage, amount_cents)
			 VALUES ($1, $2, $3, $4, $5::text::numeric, $6)`,
			a.ID, a.DonationID, a.NonprofitID, a.CategoryID, a.Percentage, a.AmountCents,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("allocation insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}

	d.Allocations = allocs
	return nil
}

// AttachCheckoutSession stores the payment session id so webhook events can be matched
// even if their metadata is lost.
func (s *Store) AttachCheckoutSession(ctx context.Context, donationID uuid.UUID, sessionID string) error {
	tag, err := s.Db.Exec(ctx,
		"UPDATE donations SET stripe_session_id = $2, updated_at = NOW() WHERE id = $1",
		donationID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("attach session failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDonationNotFound
	}
	return nil
}

// MarkDonationFailed fails a donation that is still pending; used when the checkout
// session could not be opened after the donation was written.
func (s *Store) MarkDonationFailed(ctx context.Context, donationID uuid.UUID) error {
	_, err := s.Db.Exec(ctx,
		"UPDATE donations SET status = 'failed', updated_at = NOW() WHERE id = $1 AND status = 'pending'",
		donationID,
	)
	return err
}

// GetDonation loads a donation with its allocations.
func (s *Store) GetDonation(ctx context.Context, id uuid.UUID) (*domain.Donation, error) {
	d, err := scanDonation(s.Db.QueryRow(ctx, "SELECT "+donationColumns+" FROM donations WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, ErrDonationNotFound)
	}

	rows, err := s.Db.Query(ctx,
		`SELECT id, donation_id, nonprofit_id, category_id, percentage::text, amount_cents, disbursed, disbursed_at
		 FROM donation_allocations WHERE donation_id = $1 ORDER BY amount_cents DESC, id`,
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.ID, &a.DonationID, &a.NonprofitID, &a.CategoryID, &a.Percentage, &a.AmountCents, &a.Disbursed, &a.DisbursedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		d.Allocations = append(d.Allocations, a)
	}
	return d, rows.Err()
}

// ListDonationsByDonor returns a donor's most recent donations, newest first, without allocations.
func (s *Store) ListDonationsByDonor(ctx context.Context, donorID string, limit int) ([]domain.Donation, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+donationColumns+" FROM donations WHERE donor_id = $1 ORDER BY created_at DESC LIMIT $2",
		donorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

// SweepStalePending fails pending donations that never received a checkout session.
func (s *Store) SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.Db.Exec(ctx,
		`UPDATE donations SET status = 'failed', updated_at = NOW()
		 WHERE status = 'pending' AND stripe_session_id IS NULL AND created_at < $1`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var d domain.Donation
	err := row.Scan(&d.ID, &d.DonorID, &d.AmountCents, &d.FeeAmountCents, &d.CoverFees, &d.IsAnonymous,
		&d.Status, &d.IsWidget, &d.WidgetTokenID, &d.StripeSessionID, &d.StripePaymentIntentID,
		&d.CreatedAt, &d.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
