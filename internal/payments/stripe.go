// Package payments talks to Stripe: it opens hosted checkout sessions and turns
// signed webhook deliveries into domain.PaymentEvent values.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrNotConfigured      = errors.New("stripe secret key not configured")
	ErrMissingSignature   = errors.New("missing stripe-signature header")
	ErrWebhookSecretUnset = errors.New("webhook signing secret not configured")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrMalformedEvent     = errors.New("webhook event payload malformed")
)

// CheckoutRequest describes the single line item the donor will pay for.
type CheckoutRequest struct {
	Description       string
	TotalChargedCents int64
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	Metadata          domain.CheckoutMetadata
}

type CheckoutSession struct {
	ID  string
	URL string
}

type StripeGateway struct {
	sessions      *session.Client
	webhookSecret string
	currency      string
}

// NewStripeGateway builds a gateway with its own API backend rather than the
// package-level stripe.Key, so several gateways can coexist in one process.
func NewStripeGateway(secretKey, webhookSecret, currency string) *StripeGateway {
	return newStripeGateway(stripe.GetBackend(stripe.APIBackend), secretKey, webhookSecret, currency)
}

func newStripeGateway(backend stripe.Backend, secretKey, webhookSecret, currency string) *StripeGateway {
	g := &StripeGateway{webhookSecret: webhookSecret, currency: currency}
	if secretKey != "" {
		g.sessions = &session.Client{B: backend, Key: secretKey}
	}
	return g
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if g.sessions == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Metadata:   req.Metadata.Map(),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.TotalChargedCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata.Map(),
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SubmitType: stripe.String(string(stripe.CheckoutSessionSubmitTypeDonate)),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return nil, fmt.Errorf("stripe checkout session: %s (%s)", stripeErr.Msg, stripeErr.Code)
		}
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// VerifyAndParse checks the Stripe-Signature header against the signing secret and
// normalizes the event. Unknown event types come back with Kind EventIgnored.
func (g *StripeGateway) VerifyAndParse(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrMissingSignature
	}
	if g.webhookSecret == "" {
		return nil, ErrWebhookSecretUnset
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &domain.PaymentEvent{ID: event.ID, Type: string(event.Type), Kind: domain.EventIgnored}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Kind = domain.EventCheckoutCompleted
		if event.Type == stripe.EventTypeCheckoutSessionExpired {
			ev.Kind = domain.EventCheckoutExpired
		}
		ev.SessionID = cs.ID
		ev.PaymentStatus = string(cs.PaymentStatus)
		ev.Metadata = domain.ParseCheckoutMetadata(cs.Metadata)
		if cs.PaymentIntent != nil {
			ev.PaymentIntentID = cs.PaymentIntent.ID
		}

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Kind = domain.EventChargeRefunded
		if ch.PaymentIntent != nil {
			ev.PaymentIntentID = ch.PaymentIntent.ID
		}
		ev.Metadata = domain.ParseCheckoutMetadata(ch.Metadata)
	}

	return ev, nil
}
