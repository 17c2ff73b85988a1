package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingDonation(t *testing.T, s *mockStore) *domain.Donation {
	t.Helper()
	d := &domain.Donation{AmountCents: 5000, FeeAmountCents: 150, CoverFees: true}
	require.NoError(t, s.CreateDonation(context.Background(), d, nil))
	require.NoError(t, s.AttachCheckoutSession(context.Background(), d.ID, "cs_1"))
	return d
}

func completedEvent(id string, donationID uuid.UUID) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:              id,
		Type:            "checkout.session.completed",
		Kind:            domain.EventCheckoutCompleted,
		SessionID:       "cs_1",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_1",
		Metadata:        domain.CheckoutMetadata{DonationID: donationID},
	}
}

func TestReconciler_CompletedExactlyOnce(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	v := &mockVerifier{event: completedEvent("evt_1", d.ID)}
	r := NewReconciler(v, s, discardLogger())

	out, err := r.Handle(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, domain.DonationCompleted, s.donations[d.ID].Status)
	assert.Equal(t, "pi_1", s.donations[d.ID].StripePaymentIntentID)

	out, err = r.Handle(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)

	// same outcome redelivered under a new event id
	v.event = completedEvent("evt_2", d.ID)
	out, err = r.Handle(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
	assert.Equal(t, domain.DonationCompleted, s.donations[d.ID].Status)
}

func TestReconciler_UnpaidCompletionIgnored(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	ev := completedEvent("evt_1", d.ID)
	ev.PaymentStatus = "unpaid"
	r := NewReconciler(&mockVerifier{event: ev}, s, discardLogger())

	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, domain.DonationPending, s.donations[d.ID].Status)
}

func TestReconciler_SessionFallbackWhenMetadataLost(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	ev := completedEvent("evt_1", uuid.Nil)
	r := NewReconciler(&mockVerifier{event: ev}, s, discardLogger())

	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, domain.DonationCompleted, s.donations[d.ID].Status)
}

func TestReconciler_ExpiredFailsPending(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	r := NewReconciler(&mockVerifier{event: &domain.PaymentEvent{
		ID: "evt_x", Type: "checkout.session.expired", Kind: domain.EventCheckoutExpired,
		SessionID: "cs_1", Metadata: domain.CheckoutMetadata{DonationID: d.ID},
	}}, s, discardLogger())

	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, domain.DonationFailed, s.donations[d.ID].Status)
}

func TestReconciler_Refund(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	v := &mockVerifier{event: completedEvent("evt_1", d.ID)}
	r := NewReconciler(v, s, discardLogger())
	_, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)

	v.event = &domain.PaymentEvent{ID: "evt_r1", Type: "charge.refunded", Kind: domain.EventChargeRefunded, PaymentIntentID: "pi_unknown"}
	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, out)
	assert.Equal(t, domain.DonationCompleted, s.donations[d.ID].Status)

	v.event = &domain.PaymentEvent{ID: "evt_r2", Type: "charge.refunded", Kind: domain.EventChargeRefunded, PaymentIntentID: "pi_1"}
	out, err = r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, domain.DonationRefunded, s.donations[d.ID].Status)
}

func TestReconciler_RefundBeforeCompletion(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	r := NewReconciler(&mockVerifier{event: &domain.PaymentEvent{
		ID:              "evt_r3",
		Type:            "charge.refunded",
		Kind:            domain.EventChargeRefunded,
		PaymentIntentID: "pi_9",
		Metadata:        domain.CheckoutMetadata{DonationID: d.ID},
	}}, s, discardLogger())

	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, domain.DonationRefunded, s.donations[d.ID].Status)
	assert.Equal(t, "pi_9", s.donations[d.ID].StripePaymentIntentID)
}

func TestReconciler_UnknownEventIgnored(t *testing.T) {
	s := newMockStore()
	r := NewReconciler(&mockVerifier{event: &domain.PaymentEvent{ID: "evt_u", Type: "customer.created", Kind: domain.EventIgnored}}, s, discardLogger())

	out, err := r.Handle(context.Background(), nil, "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Empty(t, s.seenEvents)
}

func TestReconciler_VerificationFailureTouchesNothing(t *testing.T) {
	s := newMockStore()
	d := pendingDonation(t, s)
	r := NewReconciler(&mockVerifier{err: payments.ErrInvalidSignature}, s, discardLogger())

	_, err := r.Handle(context.Background(), nil, "bad")
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)
	assert.Equal(t, domain.DonationPending, s.donations[d.ID].Status)
	assert.Empty(t, s.seenEvents)
}
