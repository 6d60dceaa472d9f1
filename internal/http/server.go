package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Auth         *services.AuthService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Analytics    *services.AnalyticsService
	Tokens       *auth.TokenManager
	Store        Pinger
	Logger       *log.Logger

	CORSOrigin         string
	RateLimitPerMinute int // 0 disables rate limiting
}

type Server struct {
	http.Server

	deps             Deps
	logger           *log.Logger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		deps:             deps,
		logger:           logger,
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)
	if deps.RateLimitPerMinute > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute})
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.securityDetector.Middleware(handler)
	handler = security.CORSMiddleware(security.NewCORSConfig(deps.CORSOrigin))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.recoverMiddleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	protect := s.deps.Tokens.Middleware
	limit := s.limitAuth

	// area tags request-scoped loggers with the component serving the route
	area := func(component string, h http.Handler) http.Handler {
		return log.ComponentMiddleware(component)(h)
	}
	authArea := func(h http.Handler) http.Handler { return area(log.ComponentAuth, h) }
	categoryArea := func(h http.Handler) http.Handler { return area(log.ComponentCategory, protect(h)) }
	transactionArea := func(h http.Handler) http.Handler { return area(log.ComponentTransaction, protect(h)) }
	analyticsArea := func(h http.Handler) http.Handler { return area(log.ComponentAnalytics, protect(h)) }

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /api/auth/register", authArea(limit(http.HandlerFunc(s.handleRegister))))
	mux.Handle("POST /api/auth/login", authArea(limit(http.HandlerFunc(s.handleLogin))))
	mux.Handle("POST /api/auth/forgot-password", authArea(limit(http.HandlerFunc(s.handleForgotPassword))))
	mux.Handle("POST /api/auth/reset-password", authArea(limit(http.HandlerFunc(s.handleResetPassword))))
	mux.Handle("PUT /api/auth/change-password", authArea(protect(http.HandlerFunc(s.handleChangePassword))))
	mux.Handle("GET /api/auth/me", authArea(protect(http.HandlerFunc(s.handleMe))))

	mux.Handle("GET /api/categories", categoryArea(http.HandlerFunc(s.handleListCategories)))
	mux.Handle("POST /api/categories", categoryArea(http.HandlerFunc(s.handleCreateCategory)))
	mux.Handle("PUT /api/categories/{id}", categoryArea(http.HandlerFunc(s.handleRenameCategory)))
	mux.Handle("DELETE /api/categories/{id}", categoryArea(http.HandlerFunc(s.handleDeleteCategory)))

	mux.Handle("GET /api/transactions", transactionArea(http.HandlerFunc(s.handleListTransactions)))
	mux.Handle("GET /api/transactions/{id}", transactionArea(http.HandlerFunc(s.handleGetTransaction)))
	mux.Handle("POST /api/transactions", transactionArea(http.HandlerFunc(s.handleCreateTransaction)))
	mux.Handle("PUT /api/transactions/{id}", transactionArea(http.HandlerFunc(s.handleUpdateTransaction)))
	mux.Handle("DELETE /api/transactions/{id}", transactionArea(http.HandlerFunc(s.handleDeleteTransaction)))

	mux.Handle("GET /api/analytics/sum-by-category", analyticsArea(http.HandlerFunc(s.handleSumByCategory)))
	mux.Handle("GET /api/analytics/monthly-summary", analyticsArea(http.HandlerFunc(s.handleMonthlySummary)))

	mux.HandleFunc("/api/", s.handleNotFound)
}

// limitAuth rate limits the unauthenticated auth endpoints per client IP.
func (s *Server) limitAuth(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	return s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Too many requests").Write(w)
	})(next)
}

// recoverMiddleware turns a panic into the generic 500 response.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Panic in handler",
					"panic", rec,
					log.FieldPath, r.URL.Path,
					"stack", string(debug.Stack()))
				ErrorResponse(http.StatusInternalServerError, msgInternal).Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
