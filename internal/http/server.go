package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its services.
type Options struct {
	Addr    string
	Finance *services.FinanceService
	Auth    *services.AuthService
	Storage Pinger
	Logger  *applog.Logger

	// DashboardCache is only read for metrics; may be nil.
	DashboardCache cache.Cache[any]

	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	finance *services.FinanceService
	auth    *services.AuthService
	storage Pinger
	cache   cache.Cache[any]

	logger     *applog.Logger
	structured *applog.StructuredLogger
	detector   *security.Detector
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware

	appMetrics appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	started             time.Time
	transactionsCreated int64
	budgetsCreated      int64
	logins              int64
	failedLogins        int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	rlCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			httpLogger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}

	s := &Server{
		finance:    opts.Finance,
		auth:       opts.Auth,
		storage:    opts.Storage,
		cache:      opts.DashboardCache,
		logger:     httpLogger,
		structured: applog.NewStructuredLogger(httpLogger),
		detector:   detector,
		limiter:    ratelimit.NewLimiter(rlCfg),
		appMetrics: appMetrics{started: time.Now()},
	}
	s.tracer = trace.NewMiddleware(logger.WithComponent(applog.ComponentTrace), detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:           opts.Addr,
		Handler:        s.middleware(mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/user", s.requireAuth(s.handleCurrentUser))
	mux.HandleFunc("PATCH /api/users/{id}", s.requireAuth(s.handleUpdateProfile))
	mux.HandleFunc("POST /api/users/{id}/password", s.requireAuth(s.handleChangePassword))

	mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/budgets", s.requireAuth(s.handleListBudgets))
	mux.HandleFunc("POST /api/budgets", s.requireAuth(s.handleCreateBudget))

	mux.HandleFunc("GET /api/dashboard/summary", s.requireAuth(s.handleSummary))
	mux.HandleFunc("GET /api/dashboard/expense-breakdown", s.requireAuth(s.handleExpenseBreakdown))
	mux.HandleFunc("GET /api/dashboard/income-expense", s.requireAuth(s.handleIncomeExpense))
	mux.HandleFunc("GET /api/budget-progress", s.requireAuth(s.handleBudgetProgress))
}

// middleware applies, outermost first: security headers, suspicious request
// detection, tracing, the request logger and rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	h := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(next)
	h = applog.RequestIDMiddleware(trace.FromRequest)(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(s.logger)(h)
	return headers.Middleware(h)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeMessage(w, http.StatusTooManyRequests, "Too many requests")
}

// Shutdown stops background helpers and gracefully shuts down the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
