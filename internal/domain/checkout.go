package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// Metadata keys attached to every checkout session. The payment provider echoes them
// back on webhook events; they are the correlation contract and must not be renamed.
const (
	MetaDonationID       = "donation_id"
	MetaNonprofitID      = "nonprofit_id"
	MetaWidgetTokenID    = "widget_token_id"
	MetaIsWidgetDonation = "is_widget_donation"
)

type CheckoutMetadata struct {
	DonationID       uuid.UUID
	NonprofitID      *uuid.UUID
	WidgetTokenID    *uuid.UUID
	IsWidgetDonation bool
}

func (m CheckoutMetadata) Map() map[string]string {
	out := map[string]string{
		MetaDonationID:       m.DonationID.String(),
		MetaNonprofitID:      "",
		MetaWidgetTokenID:    "",
		MetaIsWidgetDonation: strconv.FormatBool(m.IsWidgetDonation),
	}
	if m.NonprofitID != nil {
		out[MetaNonprofitID] = m.NonprofitID.String()
	}
	if m.WidgetTokenID != nil {
		out[MetaWidgetTokenID] = m.WidgetTokenID.String()
	}
	return out
}

// ParseCheckoutMetadata reads the correlation contract back out of provider metadata.
// A missing or malformed donation id yields uuid.Nil rather than an error.
func ParseCheckoutMetadata(md map[string]string) CheckoutMetadata {
	var m CheckoutMetadata
	if id, err := uuid.Parse(md[MetaDonationID]); err == nil {
		m.DonationID = id
	}
	if id, err := uuid.Parse(md[MetaNonprofitID]); err == nil {
		m.NonprofitID = &id
	}
	if id, err := uuid.Parse(md[MetaWidgetTokenID]); err == nil {
		m.WidgetTokenID = &id
	}
	m.IsWidgetDonation, _ = strconv.ParseBool(md[MetaIsWidgetDonation])
	return m
}

// PaymentEventKind is the normalized meaning of a provider webhook event.
type PaymentEventKind string

const (
	EventCheckoutCompleted PaymentEventKind = "checkout_completed"
	EventCheckoutExpired   PaymentEventKind = "checkout_expired"
	EventChargeRefunded    PaymentEventKind = "charge_refunded"
	EventIgnored           PaymentEventKind = "ignored"
)

// PaymentEvent is a verified provider event reduced to what reconciliation needs.
type PaymentEvent struct {
	ID              string
	Type            string
	Kind            PaymentEventKind
	SessionID       string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        CheckoutMetadata
}
