package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/givingops/internal/store"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255
	idempotencyLease  = time.Minute
)

type IdempotencyStore interface {
	ReserveIdempotencyKey(ctx context.Context, key, reqHash string, lease time.Duration) (*store.IdempotentResponse, error)
	CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type captureWriter struct {
	statusRecorder
	body bytes.Buffer
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// idempotent replays the stored response when a checkout POST repeats its
// Idempotency-Key. Requests without the header pass straight through.
func (h *Handler) idempotent(s IdempotencyStore) func(http.Handler) http.Handler {
	if s == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			method, endpoint := r.Method, r.URL.Path
			if len(key) > maxIdempotencyKey {
				h.respondError(w, http.StatusBadRequest, "Idempotency-Key too long", method, endpoint)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					h.respondError(w, http.StatusRequestEntityTooLarge, "Payload too large", method, endpoint)
					return
				}
				h.respondError(w, http.StatusBadRequest, "Unable to read body", method, endpoint)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(append([]byte(method+" "+endpoint+"\n"), body...))
			reqHash := hex.EncodeToString(sum[:])

			stored, err := s.ReserveIdempotencyKey(r.Context(), key, reqHash, idempotencyLease)
			switch {
			case errors.Is(err, store.ErrIdempotencyConflict):
				h.respondError(w, http.StatusConflict, "Request processing in progress", method, endpoint)
				return
			case errors.Is(err, store.ErrIdempotencyMismatch):
				h.respondError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload", method, endpoint)
				return
			case err != nil:
				h.logger.Error("idempotency reservation failed", "request_id", RequestID(r.Context()), "error", err)
				h.respondError(w, http.StatusInternalServerError, "Internal server error", method, endpoint)
				return
			case stored != nil:
				httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(stored.Status)).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Body)
				return
			}

			rec := &captureWriter{statusRecorder: statusRecorder{ResponseWriter: w, status: http.StatusOK}}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= 200 && rec.status < 300 {
				err = s.CompleteIdempotencyKey(ctx, key, rec.status, rec.body.Bytes())
			} else {
				err = s.ReleaseIdempotencyKey(ctx, key)
			}
			if err != nil {
				h.logger.Error("idempotency finalize failed", "request_id", RequestID(r.Context()), "error", err)
			}
		})
	}
}
