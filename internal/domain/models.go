package domain

import (
	"time"

	"github.com/google/uuid"
)

// DonationStatus is the lifecycle state of a Donation.
type DonationStatus string

const (
	DonationPending    DonationStatus = "pending"
	DonationProcessing DonationStatus = "processing"
	DonationCompleted  DonationStatus = "completed"
	DonationFailed     DonationStatus = "failed"
	DonationRefunded   DonationStatus = "refunded"
)

// CanTransitionTo reports whether the reconciler may move a donation from s to next.
// Re-applying the current terminal status is allowed so replays stay no-ops.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	if s == next {
		return true
	}
	switch next {
	case DonationCompleted, DonationFailed:
		return s == DonationPending || s == DonationProcessing
	case DonationRefunded:
		return s == DonationCompleted || s == DonationPending || s == DonationProcessing
	case DonationProcessing:
		return s == DonationPending
	}
	return false
}

func (s DonationStatus) IsTerminal() bool {
	return s == DonationCompleted || s == DonationFailed || s == DonationRefunded
}

type NonprofitStatus string

const (
	NonprofitPending  NonprofitStatus = "pending"
	NonprofitApproved NonprofitStatus = "approved"
	NonprofitRejected NonprofitStatus = "rejected"
)

func (s NonprofitStatus) Valid() bool {
	return s == NonprofitPending || s == NonprofitApproved || s == NonprofitRejected
}

// Donation is a single gift, amounts in minor currency units.
type Donation struct {
	ID                    uuid.UUID      `json:"id"`
	DonorID               string         `json:"donor_id,omitempty"`
	AmountCents           int64          `json:"amount_cents"`
	FeeAmountCents        int64          `json:"fee_amount_cents"`
	CoverFees             bool           `json:"cover_fees"`
	IsAnonymous           bool           `json:"is_anonymous"`
	Status                DonationStatus `json:"status"`
	IsWidget              bool           `json:"is_widget"`
	WidgetTokenID         *uuid.UUID     `json:"widget_token_id,omitempty"`
	StripeSessionID       string         `json:"-"`
	StripePaymentIntentID string         `json:"-"`
	CreatedAt             time.Time      `json:"created_at"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	Allocations           []Allocation   `json:"allocations,omitempty"`
}

// TotalCharged is what the donor pays: the gift plus the fee when they chose to cover it.
func (d *Donation) TotalCharged() int64 {
	if d.CoverFees {
		return d.AmountCents + d.FeeAmountCents
	}
	return d.AmountCents
}

// AllocationTarget points at exactly one of a nonprofit or a category.
type AllocationTarget struct {
	NonprofitID *uuid.UUID `json:"nonprofit_id,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
}

func (t AllocationTarget) Valid() bool {
	return (t.NonprofitID == nil) != (t.CategoryID == nil)
}

// Allocation is the share of a donation directed at one target.
// Percentages across a donation sum to 100 and amounts sum to the donation amount.
type Allocation struct {
	ID          uuid.UUID `json:"id"`
	DonationID  uuid.UUID `json:"donation_id"`
	AllocationTarget
	Percentage  string     `json:"percentage"`
	AmountCents int64      `json:"amount_cents"`
	Disbursed   bool       `json:"disbursed"`
	DisbursedAt *time.Time `json:"disbursed_at,omitempty"`
}

// WidgetToken authenticates an embeddable single-nonprofit donation form.
type WidgetToken struct {
	ID             uuid.UUID `json:"id"`
	Token          string    `json:"-"`
	NonprofitID    uuid.UUID `json:"nonprofit_id"`
	MinAmountCents int64     `json:"min_amount_cents"`
	IsActive       bool      `json:"is_active"`
}

type Nonprofit struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  *uuid.UUID      `json:"category_id,omitempty"`
	Website     string          `json:"website,omitempty"`
	Status      NonprofitStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// DonationEvent is an outbox row describing a donation status change.
type DonationEvent struct {
	ID         int64          `json:"id"`
	DonationID uuid.UUID      `json:"donation_id"`
	EventType  string         `json:"event_type"`
	Status     DonationStatus `json:"status"`
	Payload    []byte         `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}
