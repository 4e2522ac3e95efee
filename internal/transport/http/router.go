package http

import (
	"net/http"

	"github.com/dashboard-api/internal/application/fallback"
	"github.com/dashboard-api/internal/config"
	"github.com/dashboard-api/internal/domain"
	"github.com/dashboard-api/internal/transport/http/handler"
	appmiddleware "github.com/dashboard-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. The fallback state
// container (mode flag, pending users, codes) is constructed here, once per
// process, and flows into every handler by reference.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	mode := fallback.NewController()
	pending := fallback.NewPendingStore()
	codes := fallback.NewCodeService()
	probe := fallback.NewProbe(deps.UserRepo, cfg.ProbeTimeout)
	engine := fallback.NewEngine(mode, pending, probe, deps.UserRepo, cfg.SyncOpTimeout)

	fallbackSvc := fallback.NewService(fallback.ServiceDeps{
		Mode:       mode,
		Pending:    pending,
		Codes:      codes,
		Probe:      probe,
		Engine:     engine,
		Users:      deps.UserRepo,
		Mailer:     deps.Mailer,
		SMS:        deps.SMSSender,
		Metrics:    deps.Metrics,
		OpTimeout:  cfg.SyncOpTimeout,
		AdminEmail: cfg.AdminEmail,
		AdminPhone: cfg.AdminPhone,
	})

	healthH := handler.NewHealthHandler()
	fallbackH := handler.NewFallbackHandler(fallbackSvc)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/fallback/status", fallbackH.Status)
		r.With(sensitiveRL.Limit).Post("/users", fallbackH.Register)
		r.With(sensitiveRL.Limit).Post("/verification-codes/{action}", fallbackH.CodeAction)
		r.With(sensitiveRL.Limit).Post("/password-reset", fallbackH.ResetPassword)

		// ── Admin routes (admin or higher) ───────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleDev))

			r.Get("/fallback/pending-users", fallbackH.PendingUsers)
			r.Post("/fallback/sync", fallbackH.Sync)
		})
	})

	return r
}
