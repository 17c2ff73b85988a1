package api

import (
	"errors"
	"net/http"

	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/recommend"
)

func (h *Handler) ListNonprofits(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/nonprofits"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	list, err := h.directory.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"nonprofits": list}, method, endpoint)
}

func (h *Handler) GetNonprofit(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/nonprofits/{id}"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	id, ok := parseID(r, "id")
	if !ok {
		h.respondError(w, http.StatusNotFound, "Nonprofit not found", method, endpoint)
		return
	}
	n, err := h.directory.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, n, method, endpoint)
}

type statusRequest struct {
	Status domain.NonprofitStatus `json:"status"`
}

// UpdateNonprofitStatus is the back-office approve/reject action.
func (h *Handler) UpdateNonprofitStatus(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "PATCH", "/admin/nonprofits/{id}"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	id, ok := parseID(r, "id")
	if !ok {
		h.respondError(w, http.StatusNotFound, "Nonprofit not found", method, endpoint)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}
	if err := h.directory.SetStatus(r.Context(), id, req.Status); err != nil {
		h.handleServiceError(w, r, err, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status}, method, endpoint)
}

func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/recommendations"
	t := timer(method, endpoint)
	defer t.ObserveDuration()

	var req recommend.Request
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return
	}

	recs, err := h.recommender.Recommend(r.Context(), req)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, map[string]any{"recommendations": recs}, method, endpoint)
	case errors.Is(err, recommend.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, recommend.ErrNotConfigured), errors.Is(err, recommend.ErrUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "Recommendations are unavailable", method, endpoint)
	case errors.Is(err, recommend.ErrBadResponse):
		h.respondError(w, http.StatusBadGateway, "Recommendations are unavailable", method, endpoint)
	default:
		h.handleServiceError(w, r, err, method, endpoint)
	}
}
