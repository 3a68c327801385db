// Package rpc serves the HourBank HTTP interface: signed transaction
// submission plus read-only queries over the ledger, bookings and reputation.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hourbank/core"
	"hourbank/core/types"
)

const maxRequestBytes = 1 << 20

// Backend is the subset of core.Host the server needs.
type Backend interface {
	ApplyTransaction(tx *types.Transaction) (*types.Receipt, error)
	View(fn func(*core.Views) error) error
	Nonce(account [20]byte) (uint64, error)
	Height() uint64
}

// Config tunes the HTTP surface.
type Config struct {
	ListenAddress     string
	RequestsPerMinute int
	Burst             int
}

// Server wires the router to a backend.
type Server struct {
	cfg     Config
	backend Backend
	logger  *slog.Logger
	limiter *RateLimiter
	router  chi.Router
	srv     *http.Server
}

// NewServer builds the router. A zero RequestsPerMinute disables rate
// limiting.
func NewServer(backend Backend, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, backend: backend, logger: logger}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(RateLimit{RequestsPerMinute: float64(cfg.RequestsPerMinute), Burst: cfg.Burst})
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Post("/tx", s.handleSubmitTx)
		api.Get("/accounts/{addr}/nonce", s.handleNonce)
		api.Get("/ledger", s.handleLedger)
		api.Get("/ledger/balances/{addr}", s.handleBalance)
		api.Get("/bookings/next-id", s.handleNextBookingID)
		api.Get("/bookings/{id}", s.handleBooking)
		api.Get("/reputation/{addr}", s.handleReputation)
		api.Get("/reputation/{rater}/{rated}/{bookingID}", s.handleRating)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("addr", s.cfg.ListenAddress))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      uint32 `json:"code,omitempty"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: RequestIDFrom(r.Context())})
}
