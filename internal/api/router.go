package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(d Deps) *mux.Router {
	h := NewHandler(d)

	r := mux.NewRouter()
	r.Use(requestID, accessLog(d.Logger))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(limitBody)
	throttle := h.rateLimit(d.CheckoutRPS, d.CheckoutBurst)
	idem := h.idempotent(d.Idempotency)
	apiV1.Handle("/widget/checkout", throttle(idem(http.HandlerFunc(h.WidgetCheckout)))).Methods("POST")
	apiV1.Handle("/donations", throttle(idem(http.HandlerFunc(h.CreateDonation)))).Methods("POST")
	apiV1.HandleFunc("/donations/{id}", h.GetDonation).Methods("GET")
	apiV1.HandleFunc("/donors/me/donations", h.ListMyDonations).Methods("GET")
	apiV1.HandleFunc("/nonprofits", h.ListNonprofits).Methods("GET")
	apiV1.HandleFunc("/nonprofits/{id}", h.GetNonprofit).Methods("GET")
	apiV1.HandleFunc("/recommendations", h.Recommend).Methods("POST")
	apiV1.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST")

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(h.adminAuth(d.AdminToken))
	admin.HandleFunc("/nonprofits/{id}", h.UpdateNonprofitStatus).Methods("PATCH")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.respondError(w, http.StatusNotFound, "Not Found", "ANY", "unmatched")
	})
	return r
}
