package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/service"
	"github.com/shopspring/decimal"
)

const donorHeader = "X-User-ID"

type widgetCheckoutRequest struct {
	WidgetToken    string `json:"widgetToken"`
	NonprofitID    string `json:"nonprofitId"`
	AmountCents    int64  `json:"amountCents"`
	CoverFees      bool   `json:"coverFees"`
	FeeAmountCents int64  `json:"feeAmountCents"`
	IsAnonymous    bool   `json:"isAnonymous"`
}

type allocationRequest struct {
	NonprofitID *uuid.UUID      `json:"nonprofitId"`
	CategoryID  *uuid.UUID      `json:"categoryId"`
	Percentage  decimal.Decimal `json:"percentage"`
}

type donationRequest struct {
	AmountCents int64               `json:"amountCents"`
	CoverFees   bool                `json:"coverFees"`
	IsAnonymous bool                `json:"isAnonymous"`
	Email       string              `json:"email"`
	Allocations []allocationRequest `json:"allocations"`
}

// donationStatus is what the public success page may see.
type donationStatus struct {
	ID                uuid.UUID             `json:"id"`
	Status            domain.DonationStatus `json:"status"`
	AmountCents       int64                 `json:"amountCents"`
	FeeAmountCents    int64                 `json:"feeAmountCents"`
	TotalChargedCents int64                 `json:"totalChargedCents"`
	CreatedAt         time.Time             `json:"createdAt"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
}

func (h *Handler) WidgetCheckout(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/widget/checkout"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	var req widgetCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}
	if req.WidgetToken == "" || req.NonprofitID == "" || req.AmountCents == 0 {
		h.respondError(w, http.StatusBadRequest, "Missing required fields", method, endpoint)
		return
	}
	nonprofitID, err := uuid.Parse(req.NonprofitID)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid nonprofitId", method, endpoint)
		return
	}

	res, err := h.donations.CreateWidgetDonation(r.Context(), service.WidgetCheckoutInput{
		WidgetToken:    req.WidgetToken,
		NonprofitID:    nonprofitID,
		AmountCents:    req.AmountCents,
		CoverFees:      req.CoverFees,
		FeeAmountCents: req.FeeAmountCents,
		IsAnonymous:    req.IsAnonymous,
		Origin:         h.origin(r),
	})
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"url": res.URL}, method, endpoint)
}

func (h *Handler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/donations"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}

	allocs := make([]service.AllocationInput, len(req.Allocations))
	for i, a := range req.Allocations {
		allocs[i] = service.AllocationInput{NonprofitID: a.NonprofitID, CategoryID: a.CategoryID, Percentage: a.Percentage}
	}

	res, err := h.donations.CreateDonation(r.Context(), service.DonationInput{
		DonorID:       strings.TrimSpace(r.Header.Get(donorHeader)),
		CustomerEmail: strings.TrimSpace(req.Email),
		AmountCents:   req.AmountCents,
		CoverFees:     req.CoverFees,
		IsAnonymous:   req.IsAnonymous,
		Allocations:   allocs,
		Origin:        h.origin(r),
	})
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}

	w.Header().Set("Location", "/api/v1/donations/"+res.DonationID.String())
	h.respondJSON(w, http.StatusCreated, map[string]any{"donationId": res.DonationID, "url": res.URL}, method, endpoint)
}

func (h *Handler) GetDonation(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/donations/{id}"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	id, ok := parseID(r, "id")
	if !ok {
		h.respondError(w, http.StatusNotFound, "Donation not found", method, endpoint)
		return
	}
	d, err := h.donations.GetDonation(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, donationStatus{
		ID:                d.ID,
		Status:            d.Status,
		AmountCents:       d.AmountCents,
		FeeAmountCents:    d.FeeAmountCents,
		TotalChargedCents: d.TotalCharged(),
		CreatedAt:         d.CreatedAt,
		CompletedAt:       d.CompletedAt,
	}, method, endpoint)
}

func (h *Handler) ListMyDonations(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/donors/me/donations"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	donorID := strings.TrimSpace(r.Header.Get(donorHeader))
	if donorID == "" {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized", method, endpoint)
		return
	}
	list, err := h.donations.ListDonorDonations(r.Context(), donorID)
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"donations": list}, method, endpoint)
}
