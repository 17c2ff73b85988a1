package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/cache"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/payments"
	"github.com/punchamoorthee/givingops/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockStore struct {
	m            sync.Mutex
	donations    map[uuid.UUID]*domain.Donation
	allocations  map[uuid.UUID][]domain.Allocation
	tokens       map[string]*domain.WidgetToken
	nonprofits   map[uuid.UUID]*domain.Nonprofit
	categories   map[uuid.UUID]*domain.Category
	seenEvents   map[string]bool
	createErr    error
	attachErr    error
	listCalls    int
	failedMarked []uuid.UUID
}

func newMockStore() *mockStore {
	return &mockStore{
		donations:   map[uuid.UUID]*domain.Donation{},
		allocations: map[uuid.UUID][]domain.Allocation{},
		tokens:      map[string]*domain.WidgetToken{},
		nonprofits:  map[uuid.UUID]*domain.Nonprofit{},
		categories:  map[uuid.UUID]*domain.Category{},
		seenEvents:  map[string]bool{},
	}
}

func (m *mockStore) addNonprofit(name string, status domain.NonprofitStatus) *domain.Nonprofit {
	m.m.Lock()
	defer m.m.Unlock()
	n := &domain.Nonprofit{ID: uuid.New(), Name: name, Status: status}
	m.nonprofits[n.ID] = n
	return n
}

func (m *mockStore) addToken(token string, nonprofitID uuid.UUID, minCents int64, active bool) *domain.WidgetToken {
	m.m.Lock()
	defer m.m.Unlock()
	w := &domain.WidgetToken{ID: uuid.New(), Token: token, NonprofitID: nonprofitID, MinAmountCents: minCents, IsActive: active}
	m.tokens[token] = w
	return w
}

func (m *mockStore) CreateDonation(_ context.Context, d *domain.Donation, allocs []domain.Allocation) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	d.ID = uuid.New()
	d.Status = domain.DonationPending
	for i := range allocs {
		allocs[i].ID = uuid.New()
		allocs[i].DonationID = d.ID
	}
	cp := *d
	m.donations[d.ID] = &cp
	m.allocations[d.ID] = allocs
	return nil
}

func (m *mockStore) AttachCheckoutSession(_ context.Context, id uuid.UUID, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	d, ok := m.donations[id]
	if !ok {
		return store.ErrDonationNotFound
	}
	d.StripeSessionID = sessionID
	return nil
}

func (m *mockStore) MarkDonationFailed(_ context.Context, id uuid.UUID) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.failedMarked = append(m.failedMarked, id)
	if d, ok := m.donations[id]; ok && d.Status == domain.DonationPending {
		d.Status = domain.DonationFailed
	}
	return nil
}

func (m *mockStore) GetDonation(_ context.Context, id uuid.UUID) (*domain.Donation, error) {
	m.m.Lock()
	defer m.m.Unlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, store.ErrDonationNotFound
	}
	cp := *d
	cp.Allocations = m.allocations[id]
	return &cp, nil
}

func (m *mockStore) ListDonationsByDonor(_ context.Context, donorID string, limit int) ([]domain.Donation, error) {
	m.m.Lock()
	defer m.m.Unlock()
	out := []domain.Donation{}
	for _, d := range m.donations {
		if d.DonorID == donorID && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockStore) GetWidgetToken(_ context.Context, token string) (*domain.WidgetToken, error) {
	m.m.Lock()
	defer m.m.Unlock()
	w, ok := m.tokens[token]
	if !ok {
		return nil, store.ErrWidgetTokenNotFound
	}
	return w, nil
}

func (m *mockStore) GetNonprofit(_ context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	m.m.Lock()
	defer m.m.Unlock()
	n, ok := m.nonprofits[id]
	if !ok {
		return nil, store.ErrNonprofitNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockStore) GetCategory(_ context.Context, id uuid.UUID) (*domain.Category, error) {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, store.ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockStore) ListApprovedNonprofits(context.Context) ([]domain.Nonprofit, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.listCalls++
	out := []domain.Nonprofit{}
	for _, n := range m.nonprofits {
		if n.Status == domain.NonprofitApproved {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *mockStore) SetNonprofitStatus(_ context.Context, id uuid.UUID, status domain.NonprofitStatus) error {
	m.m.Lock()
	defer m.m.Unlock()
	n, ok := m.nonprofits[id]
	if !ok {
		return store.ErrNonprofitNotFound
	}
	n.Status = status
	return nil
}

// ApplyTransition mirrors the guarded update in the Postgres store.
func (m *mockStore) ApplyTransition(_ context.Context, t store.Transition) (store.TransitionResult, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if t.EventID != "" {
		if m.seenEvents[t.EventID] {
			return store.TransitionResult{}, store.ErrDuplicateEvent
		}
		m.seenEvents[t.EventID] = true
	}

	var target *domain.Donation
	for _, d := range m.donations {
		switch {
		case t.DonationID != uuid.Nil:
			if d.ID == t.DonationID {
				target = d
			}
		case t.SessionID != "":
			if d.StripeSessionID == t.SessionID {
				target = d
			}
		case t.PaymentIntentID != "":
			if d.StripePaymentIntentID == t.PaymentIntentID {
				target = d
			}
		}
	}
	if target == nil || target.Status == t.To || !target.Status.CanTransitionTo(t.To) {
		return store.TransitionResult{}, nil
	}
	target.Status = t.To
	if t.PaymentIntentID != "" {
		target.StripePaymentIntentID = t.PaymentIntentID
	}
	return store.TransitionResult{Applied: true, DonationID: target.ID}, nil
}

type mockGateway struct {
	m        sync.Mutex
	requests []payments.CheckoutRequest
	err      error
}

func (g *mockGateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.m.Lock()
	defer g.m.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	id := "cs_test_" + req.Metadata.DonationID.String()[:8]
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

type mockVerifier struct {
	event *domain.PaymentEvent
	err   error
}

func (v *mockVerifier) VerifyAndParse([]byte, string) (*domain.PaymentEvent, error) {
	return v.event, v.err
}

type mockCache struct {
	m          sync.Mutex
	directory  []domain.Nonprofit
	entries    map[uuid.UUID]*domain.Nonprofit
	err        error
	invalidate []uuid.UUID
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[uuid.UUID]*domain.Nonprofit{}}
}

func (c *mockCache) GetDirectory(context.Context) ([]domain.Nonprofit, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.directory == nil {
		return nil, cache.ErrCacheMiss
	}
	return c.directory, nil
}

func (c *mockCache) SetDirectory(_ context.Context, list []domain.Nonprofit) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.directory = list
	return nil
}

func (c *mockCache) GetNonprofit(_ context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	n, ok := c.entries[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return n, nil
}

func (c *mockCache) SetNonprofit(_ context.Context, n *domain.Nonprofit) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[n.ID] = n
	return nil
}

func (c *mockCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.invalidate = append(c.invalidate, id)
	delete(c.entries, id)
	c.directory = nil
	return nil
}

var errBoom = errors.New("boom")
