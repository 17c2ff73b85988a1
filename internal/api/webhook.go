package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/punchamoorthee/givingops/internal/payments"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 64 << 10
)

// StripeWebhook verifies and reconciles one provider delivery. A 500 asks the provider
// to redeliver.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/webhooks/stripe"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "Payload too large", method, endpoint)
			return
		}
		h.respondError(w, http.StatusBadRequest, "Unable to read body", method, endpoint)
		return
	}

	outcome, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrMissingSignature):
		h.respondError(w, http.StatusBadRequest, "Missing stripe-signature header", method, endpoint)
		return
	case errors.Is(err, payments.ErrWebhookSecretUnset):
		h.logger.Error("webhook received but signing secret is not configured")
		h.respondError(w, http.StatusInternalServerError, "Webhook secret not configured", method, endpoint)
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", "request_id", RequestID(r.Context()))
		h.respondError(w, http.StatusBadRequest, "Invalid signature", method, endpoint)
		return
	case errors.Is(err, payments.ErrMalformedEvent):
		h.respondError(w, http.StatusBadRequest, "Malformed event", method, endpoint)
		return
	default:
		h.logger.Error("webhook processing failed", "request_id", RequestID(r.Context()), "error", err)
		h.respondError(w, http.StatusInternalServerError, "Webhook handler failed", method, endpoint)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome}, method, endpoint)
}
