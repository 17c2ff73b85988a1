package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/donation"
	"github.com/punchamoorthee/givingops/internal/payments"
	"github.com/punchamoorthee/givingops/internal/store"
	"github.com/shopspring/decimal"
)

var donationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "giving_donations_created_total",
	Help: "Pending donations written, labeled by flow",
}, []string{"flow"})

const donorHistoryLimit = 50

type DonationStore interface {
	CreateDonation(ctx context.Context, d *domain.Donation, allocs []domain.Allocation) error
	AttachCheckoutSession(ctx context.Context, donationID uuid.UUID, sessionID string) error
	MarkDonationFailed(ctx context.Context, donationID uuid.UUID) error
	GetDonation(ctx context.Context, id uuid.UUID) (*domain.Donation, error)
	ListDonationsByDonor(ctx context.Context, donorID string, limit int) ([]domain.Donation, error)
	GetWidgetToken(ctx context.Context, token string) (*domain.WidgetToken, error)
	GetNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error)
}

type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
}

// WidgetCheckoutInput is a donation from an embedded widget. FeeAmountCents is what the
// widget displayed; the charged fee is always recomputed server-side.
type WidgetCheckoutInput struct {
	WidgetToken    string
	NonprofitID    uuid.UUID
	AmountCents    int64
	CoverFees      bool
	FeeAmountCents int64
	IsAnonymous    bool
	Origin         string
}

type AllocationInput struct {
	NonprofitID *uuid.UUID
	CategoryID  *uuid.UUID
	Percentage  decimal.Decimal
}

type DonationInput struct {
	DonorID       string
	CustomerEmail string
	AmountCents   int64
	CoverFees     bool
	IsAnonymous   bool
	Allocations   []AllocationInput
	Origin        string
}

type CheckoutResult struct {
	DonationID uuid.UUID      `json:"donationId"`
	URL        string         `json:"url"`
	Quote      donation.Quote `json:"quote"`
}

type DonationService struct {
	store    DonationStore
	gateway  CheckoutGateway
	calc     *donation.Calculator
	minCents int64
	logger   *slog.Logger
}

func NewDonationService(s DonationStore, g CheckoutGateway, calc *donation.Calculator, minCents int64, logger *slog.Logger) *DonationService {
	return &DonationService{store: s, gateway: g, calc: calc, minCents: minCents, logger: logger}
}

// CreateWidgetDonation runs the widget token guard, writes a pending donation with a
// single 100% allocation, and opens a checkout session for it.
func (s *DonationService) CreateWidgetDonation(ctx context.Context, in WidgetCheckoutInput) (*CheckoutResult, error) {
	if strings.TrimSpace(in.WidgetToken) == "" {
		return nil, invalid("widgetToken is required")
	}
	if in.NonprofitID == uuid.Nil {
		return nil, invalid("nonprofitId is required")
	}
	if in.AmountCents <= 0 {
		return nil, invalid("amountCents must be positive")
	}

	token, err := s.guardWidget(ctx, in.WidgetToken, in.NonprofitID, in.AmountCents)
	if err != nil {
		return nil, err
	}

	np, err := s.approvedNonprofit(ctx, in.NonprofitID)
	if err != nil {
		return nil, err
	}

	quote := s.calc.Quote(in.AmountCents, in.CoverFees)
	if in.CoverFees && in.FeeAmountCents != 0 && in.FeeAmountCents != quote.FeeAmountCents {
		s.logger.Info("widget fee differs from server quote",
			"client_fee_cents", in.FeeAmountCents, "fee_cents", quote.FeeAmountCents)
	}

	d := &domain.Donation{
		AmountCents:    quote.AmountCents,
		FeeAmountCents: quote.ChargedFeeCents(),
		CoverFees:      in.CoverFees,
		IsAnonymous:    in.IsAnonymous,
		IsWidget:       true,
		WidgetTokenID:  &token.ID,
	}
	allocs := donation.Single(quote.AmountCents, domain.AllocationTarget{NonprofitID: &np.ID})

	if err := s.store.CreateDonation(ctx, d, allocs); err != nil {
		return nil, fmt.Errorf("create widget donation: %w", err)
	}
	donationsCreated.WithLabelValues("widget").Inc()

	session, err := s.startCheckout(ctx, d, "Donation to "+np.Name, in.Origin, "", domain.CheckoutMetadata{
		DonationID:       d.ID,
		NonprofitID:      &np.ID,
		WidgetTokenID:    &token.ID,
		IsWidgetDonation: true,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{DonationID: d.ID, URL: session.URL, Quote: quote}, nil
}

// guardWidget fails closed: the token must exist, be active, belong to the nonprofit,
// and the amount must meet the token's floor.
func (s *DonationService) guardWidget(ctx context.Context, rawToken string, nonprofitID uuid.UUID, amount int64) (*domain.WidgetToken, error) {
	token, err := s.store.GetWidgetToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, store.ErrWidgetTokenNotFound) {
			return nil, ErrWidgetTokenNotFound
		}
		return nil, fmt.Errorf("load widget token: %w", err)
	}
	if !token.IsActive {
		return nil, ErrWidgetTokenNotFound
	}
	if token.NonprofitID != nonprofitID {
		return nil, ErrWidgetNonprofitMismatch
	}

	floor := max(token.MinAmountCents, s.minCents)
	if amount < floor {
		return nil, invalid("Minimum donation is %s", formatCents(floor))
	}
	return token, nil
}

// CreateDonation is the full platform flow: a gift split across nonprofits and categories.
func (s *DonationService) CreateDonation(ctx context.Context, in DonationInput) (*CheckoutResult, error) {
	if in.AmountCents < s.minCents {
		return nil, invalid("Minimum donation is %s", formatCents(s.minCents))
	}

	shares := make([]donation.Share, len(in.Allocations))
	for i, a := range in.Allocations {
		shares[i] = donation.Share{
			Target:     domain.AllocationTarget{NonprofitID: a.NonprofitID, CategoryID: a.CategoryID},
			Percentage: a.Percentage,
		}
	}
	allocs, err := donation.Split(in.AmountCents, shares)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	names, firstNonprofit, err := s.resolveTargets(ctx, allocs)
	if err != nil {
		return nil, err
	}

	quote := s.calc.Quote(in.AmountCents, in.CoverFees)
	d := &domain.Donation{
		DonorID:        in.DonorID,
		AmountCents:    quote.AmountCents,
		FeeAmountCents: quote.ChargedFeeCents(),
		CoverFees:      in.CoverFees,
		IsAnonymous:    in.IsAnonymous,
	}
	if err := s.store.CreateDonation(ctx, d, allocs); err != nil {
		return nil, fmt.Errorf("create donation: %w", err)
	}
	donationsCreated.WithLabelValues("platform").Inc()

	session, err := s.startCheckout(ctx, d, describe(names), in.Origin, in.CustomerEmail, domain.CheckoutMetadata{
		DonationID:  d.ID,
		NonprofitID: firstNonprofit,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{DonationID: d.ID, URL: session.URL, Quote: quote}, nil
}

// resolveTargets checks every allocation target exists and collects display names.
func (s *DonationService) resolveTargets(ctx context.Context, allocs []domain.Allocation) ([]string, *uuid.UUID, error) {
	names := make([]string, 0, len(allocs))
	var first *uuid.UUID
	for _, a := range allocs {
		if a.NonprofitID != nil {
			np, err := s.approvedNonprofit(ctx, *a.NonprofitID)
			if err != nil {
				return nil, nil, err
			}
			if first == nil {
				first = &np.ID
			}
			names = append(names, np.Name)
			continue
		}
		c, err := s.store.GetCategory(ctx, *a.CategoryID)
		if err != nil {
			if errors.Is(err, store.ErrCategoryNotFound) {
				return nil, nil, ErrCategoryNotFound
			}
			return nil, nil, fmt.Errorf("load category: %w", err)
		}
		names = append(names, c.Name+" Fund")
	}
	return names, first, nil
}

func (s *DonationService) approvedNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	np, err := s.store.GetNonprofit(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNonprofitNotFound) {
			return nil, ErrNonprofitNotFound
		}
		return nil, fmt.Errorf("load nonprofit: %w", err)
	}
	if np.Status != domain.NonprofitApproved {
		return nil, ErrNonprofitNotFound
	}
	return np, nil
}

// startCheckout opens the hosted payment session and records its id on the donation.
// If the session cannot be opened the pending donation is failed so it is not left dangling.
func (s *DonationService) startCheckout(ctx context.Context, d *domain.Donation, description, origin, email string, md domain.CheckoutMetadata) (*payments.CheckoutSession, error) {
	base := strings.TrimRight(origin, "/")
	id := url.QueryEscape(d.ID.String())

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Description:       description,
		TotalChargedCents: d.TotalCharged(),
		SuccessURL:        base + "/donate/success?session_id={CHECKOUT_SESSION_ID}&donation_id=" + id,
		CancelURL:         base + "/donate/cancel?donation_id=" + id,
		CustomerEmail:     email,
		Metadata:          md,
	})
	if err != nil {
		if markErr := s.store.MarkDonationFailed(ctx, d.ID); markErr != nil {
			s.logger.Error("failed to fail donation after checkout error", "donation_id", d.ID, "error", markErr)
		}
		return nil, fmt.Errorf("open checkout session: %w", err)
	}

	if err := s.store.AttachCheckoutSession(ctx, d.ID, session.ID); err != nil {
		// metadata still carries the donation id, so the webhook can correlate without it
		s.logger.Warn("failed to attach checkout session", "donation_id", d.ID, "session_id", session.ID, "error", err)
	}
	d.StripeSessionID = session.ID
	return session, nil
}

func (s *DonationService) GetDonation(ctx context.Context, id uuid.UUID) (*domain.Donation, error) {
	d, err := s.store.GetDonation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrDonationNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DonationService) ListDonorDonations(ctx context.Context, donorID string) ([]domain.Donation, error) {
	return s.store.ListDonationsByDonor(ctx, donorID, donorHistoryLimit)
}

func describe(names []string) string {
	switch len(names) {
	case 0:
		return "Donation"
	case 1:
		return "Donation to " + names[0]
	case 2:
		return "Donation to " + names[0] + " and " + names[1]
	}
	return fmt.Sprintf("Donation to %s and %d more", names[0], len(names)-1)
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
