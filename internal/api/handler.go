package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/recommend"
	"github.com/punchamoorthee/givingops/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giving_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giving_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint"})
)

type Donations interface {
	CreateWidgetDonation(ctx context.Context, in service.WidgetCheckoutInput) (*service.CheckoutResult, error)
	CreateDonation(ctx context.Context, in service.DonationInput) (*service.CheckoutResult, error)
	GetDonation(ctx context.Context, id uuid.UUID) (*domain.Donation, error)
	ListDonorDonations(ctx context.Context, donorID string) ([]domain.Donation, error)
}

type Webhooks interface {
	Handle(ctx context.Context, payload []byte, signature string) (service.Outcome, error)
}

type Directory interface {
	List(ctx context.Context) ([]domain.Nonprofit, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.NonprofitStatus) error
}

type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) ([]recommend.Recommendation, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Donations   Donations
	Webhooks    Webhooks
	Directory   Directory
	Recommender Recommender
	DB          Pinger
	Idempotency IdempotencyStore
	// AppBaseURL is used for checkout redirects unless the request Origin is in AllowedOrigins.
	AppBaseURL     string
	AllowedOrigins []string
	AdminToken     string
	// CheckoutRPS and CheckoutBurst throttle checkout creation per client IP. Zero disables.
	CheckoutRPS   float64
	CheckoutBurst int
	Logger        *slog.Logger
}

type Handler struct {
	donations   Donations
	webhooks    Webhooks
	directory   Directory
	recommender Recommender
	db          Pinger
	appBaseURL  string
	origins     map[string]bool
	logger      *slog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		donations:   d.Donations,
		webhooks:    d.Webhooks,
		directory:   d.Directory,
		recommender: d.Recommender,
		db:          d.DB,
		appBaseURL:  d.AppBaseURL,
		origins:     allowedOrigins(d.AppBaseURL, d.AllowedOrigins),
		logger:      d.Logger,
	}
}

func allowedOrigins(base string, extra []string) map[string]bool {
	out := make(map[string]bool, len(extra)+1)
	for _, o := range append([]string{base}, extra...) {
		if o = normalizeOrigin(o); o != "" {
			out[o] = true
		}
	}
	return out
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, "GET", "/health")
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// handleServiceError maps service sentinels onto status codes. Anything unrecognised
// is logged in full and reported generically.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, method, endpoint string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Msg, method, endpoint)
	case errors.Is(err, service.ErrWidgetTokenNotFound):
		h.respondError(w, http.StatusNotFound, "Invalid or inactive widget token", method, endpoint)
	case errors.Is(err, service.ErrWidgetNonprofitMismatch):
		h.respondError(w, http.StatusBadRequest, "Widget token is not valid for this nonprofit", method, endpoint)
	case errors.Is(err, service.ErrNonprofitNotFound):
		h.respondError(w, http.StatusNotFound, "Nonprofit not found", method, endpoint)
	case errors.Is(err, service.ErrCategoryNotFound):
		h.respondError(w, http.StatusNotFound, "Category not found", method, endpoint)
	case errors.Is(err, service.ErrDonationNotFound):
		h.respondError(w, http.StatusNotFound, "Donation not found", method, endpoint)
	case errors.Is(err, service.ErrInvalidStatus):
		h.respondError(w, http.StatusBadRequest, "Invalid status", method, endpoint)
	default:
		h.logger.Error("request failed",
			"method", method, "endpoint", endpoint, "request_id", RequestID(r.Context()), "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
	}
}

// origin picks the base for checkout redirect URLs. Only allowlisted origins are
// echoed back; anything else gets AppBaseURL.
func (h *Handler) origin(r *http.Request) string {
	o := normalizeOrigin(r.Header.Get("Origin"))
	if o != "" && h.origins[o] {
		return o
	}
	return h.appBaseURL
}

func parseID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	return id, err == nil
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("response encode failed", "endpoint", endpoint, "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func timer(method, endpoint string) *prometheus.Timer {
	return prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
}
