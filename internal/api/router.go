package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// Request is the body of POST / and POST /api.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// HealthChecker reports whether the store and the event publisher are usable.
type HealthChecker struct {
	store     rowstore.Store
	publisher EventPublisher
}

// NewHealthChecker creates a health checker. publisher may be nil.
func NewHealthChecker(store rowstore.Store, publisher EventPublisher) *HealthChecker {
	return &HealthChecker{store: store, publisher: publisher}
}

// Check returns the first failing dependency.
func (h *HealthChecker) Check(ctx context.Context) error {
	if err := rowstore.Ping(ctx, h.store); err != nil {
		return errs.Internal("row store unavailable", err)
	}
	if h.publisher != nil && !h.publisher.IsHealthy() {
		return errs.Internal("event publisher unavailable", nil)
	}
	return nil
}

// NewRouter wires the action endpoint, health and metrics. m and limiter may be nil.
func NewRouter(d *Dispatcher, health *HealthChecker, m *metrics.Collector, limiter *rate.Limiter, log *zap.Logger) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(log))

	router.Get("/healthz", healthHandler(health, log))
	if m != nil {
		router.Method(http.MethodGet, "/metrics", m.Handler())
	}

	router.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(rateLimit(limiter, log))
		}
		r.Post("/", actionHandler(d))
		r.Post("/api", actionHandler(d))
	})

	return router
}

// actionHandler always answers 200; failures are reported in the body.
func actionHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusOK, Result{Status: statusError, Message: "invalid request body: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, d.Dispatch(r.Context(), req.Action, req.Payload))
	}
}

func healthHandler(health *HealthChecker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := health.Check(ctx); err != nil {
			log.Error("Health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy: " + err.Error()))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	}
}

func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

// rateLimit rejects requests over the shared budget with 429.
func rateLimit(limiter *rate.Limiter, log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("Rate limit exceeded",
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusTooManyRequests, Result{Status: statusError, Message: "Too many requests. Please try again later."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter returns nil when rps is not positive, which disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), max(burst, 1))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
