package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate())
	return s
}

func seedNonprofit(t *testing.T, s *Store, status domain.NonprofitStatus) domain.Nonprofit {
	t.Helper()
	np := []domain.Nonprofit{{Name: "Clean Water Fund " + uuid.NewString()[:8], Status: status}}
	n, err := s.SeedNonprofits(context.Background(), np)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	return np[0]
}

func pendingDonation(t *testing.T, s *Store, np domain.Nonprofit) *domain.Donation {
	t.Helper()
	d := &domain.Donation{AmountCents: 5000, FeeAmountCents: 150, CoverFees: true, DonorID: "donor-1"}
	allocs := []domain.Allocation{{
		AllocationTarget: domain.AllocationTarget{NonprofitID: &np.ID},
		Percentage:       "100.00",
		AmountCents:      5000,
	}}
	require.NoError(t, s.CreateDonation(context.Background(), d, allocs))
	return d
}

func TestCreateDonation_WritesAllocations(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	np := seedNonprofit(t, s, domain.NonprofitApproved)

	d := pendingDonation(t, s, np)

	got, err := s.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationPending, got.Status)
	assert.Equal(t, int64(5150), got.TotalCharged())
	require.Len(t, got.Allocations, 1)
	assert.Equal(t, "100.00", got.Allocations[0].Percentage)
	assert.Equal(t, int64(5000), got.Allocations[0].AmountCents)
	assert.Equal(t, np.ID, *got.Allocations[0].NonprofitID)
}

func TestCreateDonation_RollsBackOnBadAllocation(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	missing := uuid.New()
	d := &domain.Donation{AmountCents: 1000}
	err := s.CreateDonation(ctx, d, []domain.Allocation{{
		AllocationTarget: domain.AllocationTarget{NonprofitID: &missing},
		Percentage:       "100.00",
		AmountCents:      1000,
	}})
	require.Error(t, err)

	_, err = s.GetDonation(ctx, d.ID)
	assert.ErrorIs(t, err, ErrDonationNotFound)
}

func TestApplyTransition_CompletedOnceAndReplay(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	d := pendingDonation(t, s, seedNonprofit(t, s, domain.NonprofitApproved))
	require.NoError(t, s.AttachCheckoutSession(ctx, d.ID, "cs_test_1"))

	tr := Transition{
		EventID:         "evt_1",
		EventType:       "checkout.session.completed",
		DonationID:      d.ID,
		PaymentIntentID: "pi_1",
		To:              domain.DonationCompleted,
	}
	res, err := s.ApplyTransition(ctx, tr)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	_, err = s.ApplyTransition(ctx, tr)
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	// a different event for the same outcome changes nothing
	tr.EventID = "evt_2"
	res, err = s.ApplyTransition(ctx, tr)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	got, err := s.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "pi_1", got.StripePaymentIntentID)

	events, err := s.FetchUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "donation.completed", events[0].EventType)

	require.NoError(t, s.MarkEventPublished(ctx, events[0].ID))
	events, err = s.FetchUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestApplyTransition_RefundByPaymentIntent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	d := pendingDonation(t, s, seedNonprofit(t, s, domain.NonprofitApproved))
	require.NoError(t, s.AttachCheckoutSession(ctx, d.ID, "cs_test_2"))

	_, err := s.ApplyTransition(ctx, Transition{EventID: "evt_c", SessionID: "cs_test_2", PaymentIntentID: "pi_2", To: domain.DonationCompleted})
	require.NoError(t, err)

	res, err := s.ApplyTransition(ctx, Transition{EventID: "evt_r", PaymentIntentID: "pi_2", To: domain.DonationRefunded})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, d.ID, res.DonationID)

	res, err = s.ApplyTransition(ctx, Transition{EventID: "evt_r2", PaymentIntentID: "pi_unknown", To: domain.DonationRefunded})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	got, err := s.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationRefunded, got.Status)
}

func TestApplyTransition_RefundPendingByDonationID(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	d := pendingDonation(t, s, seedNonprofit(t, s, domain.NonprofitApproved))

	res, err := s.ApplyTransition(ctx, Transition{EventID: "evt_rp", DonationID: d.ID, PaymentIntentID: "pi_3", To: domain.DonationRefunded})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	got, err := s.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationRefunded, got.Status)
	assert.Equal(t, "pi_3", got.StripePaymentIntentID)
}

func TestApplyTransition_ExpiredDoesNotOverrideCompleted(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	d := pendingDonation(t, s, seedNonprofit(t, s, domain.NonprofitApproved))

	_, err := s.ApplyTransition(ctx, Transition{EventID: "evt_a", DonationID: d.ID, To: domain.DonationCompleted})
	require.NoError(t, err)
	res, err := s.ApplyTransition(ctx, Transition{EventID: "evt_b", DonationID: d.ID, To: domain.DonationFailed})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	got, err := s.GetDonation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationCompleted, got.Status)
}

func TestSweepStalePending(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	np := seedNonprofit(t, s, domain.NonprofitApproved)
	stale := pendingDonation(t, s, np)
	withSession := pendingDonation(t, s, np)
	require.NoError(t, s.AttachCheckoutSession(ctx, withSession.ID, "cs_live"))

	n, err := s.SweepStalePending(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetDonation(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DonationFailed, got.Status)
}

func TestNonprofitDirectoryAndWidgetTokens(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	approved := seedNonprofit(t, s, domain.NonprofitApproved)
	pending := seedNonprofit(t, s, domain.NonprofitPending)

	list, err := s.ListApprovedNonprofits(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID, list[0].ID)

	require.NoError(t, s.SetNonprofitStatus(ctx, pending.ID, domain.NonprofitApproved))
	list, err = s.ListApprovedNonprofits(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, s.SetNonprofitStatus(ctx, uuid.New(), domain.NonprofitApproved), ErrNonprofitNotFound)

	w := &domain.WidgetToken{Token: "wt_abc", NonprofitID: approved.ID, MinAmountCents: 500, IsActive: true}
	require.NoError(t, s.CreateWidgetToken(ctx, w))

	got, err := s.GetWidgetToken(ctx, "wt_abc")
	require.NoError(t, err)
	assert.Equal(t, approved.ID, got.NonprofitID)
	assert.Equal(t, int64(500), got.MinAmountCents)

	_, err = s.GetWidgetToken(ctx, "wt_missing")
	assert.ErrorIs(t, err, ErrWidgetTokenNotFound)
}

func TestIdempotencyKeys(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	stored, err := s.ReserveIdempotencyKey(ctx, "key-1", "hash-a", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = s.ReserveIdempotencyKey(ctx, "key-1", "hash-a", time.Minute)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	_, err = s.ReserveIdempotencyKey(ctx, "key-1", "hash-b", time.Minute)
	assert.ErrorIs(t, err, ErrIdempotencyMismatch)

	require.NoError(t, s.CompleteIdempotencyKey(ctx, "key-1", 201, []byte(`{"donationId":"d1"}`)))
	stored, err = s.ReserveIdempotencyKey(ctx, "key-1", "hash-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 201, stored.Status)
	assert.JSONEq(t, `{"donationId":"d1"}`, string(stored.Body))

	// released reservations can be claimed again
	_, err = s.ReserveIdempotencyKey(ctx, "key-2", "hash-c", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseIdempotencyKey(ctx, "key-2"))
	stored, err = s.ReserveIdempotencyKey(ctx, "key-2", "hash-c", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// an abandoned reservation is taken over once its lease lapses
	stored, err = s.ReserveIdempotencyKey(ctx, "key-2", "hash-c", -time.Second)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
