package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"adsledger/internal/ledger"
	"adsledger/internal/metrics"
	"adsledger/internal/service"
)

// Services are the domain operations the HTTP layer exposes.
type Services struct {
	Accounts    *service.Accounts
	Withdrawals *service.Withdrawals
	Admin       *service.Admin
	Ledger      *ledger.Repository
}

type Options struct {
	CORSOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxy     bool
	RateLimitRPS   float64
	RateLimitBurst int
	// Health probes the backing store. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	accounts    *service.Accounts
	withdrawals *service.Withdrawals
	admin       *service.Admin
	ledger      *ledger.Repository
	health      func(ctx context.Context) error
	trustProxy  bool

	cors    *corsPolicy
	limiter *rateLimiter
	logger  logrus.FieldLogger
}

func NewServer(svc Services, opts Options, logger logrus.FieldLogger) *Server {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if opts.Health == nil {
		opts.Health = func(context.Context) error { return nil }
	}
	return &Server{
		accounts:    svc.Accounts,
		withdrawals: svc.Withdrawals,
		admin:       svc.Admin,
		ledger:      svc.Ledger,
		health:      opts.Health,
		trustProxy:  opts.TrustProxy,
		cors:        newCORSPolicy(opts.CORSOrigins),
		limiter:     newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, logger),
		logger:      logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(s.cors.Handler)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/user/{id}", s.handleGetUser)
		r.Post("/user/{id}", s.handleSyncUser)
		r.Get("/user/{id}/withdrawals", s.handleUserWithdrawals)

		r.With(s.limiter.Handler).Post("/add_balance", s.handleAddBalance)
		r.With(s.limiter.Handler).Post("/withdraw", s.handleWithdraw)

		r.Get("/tasks", s.handleListTasks)
		r.Get("/settings", s.handleSettings)

		r.Post("/admin/action", s.handleAdminAction)
		r.Get("/admin/withdrawals", s.handleAdminWithdrawals)

		r.Post("/webhook", s.handleWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.health(r.Context()); err != nil {
		_, _ = io.WriteString(w, "Backend running, store NOT connected ❌")
		return
	}
	_, _ = io.WriteString(w, "Backend running, store connected ✅")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health(r.Context()); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// credentials collects what the caller presented for an admin operation.
func credentials(r *http.Request, adminID string) service.Credentials {
	return service.Credentials{
		AdminID: adminID,
		Token:   extractBearerToken(r.Header.Get("Authorization")),
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
