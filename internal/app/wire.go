package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregrid/sentinel/internal/auth"
	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/governance"
	"github.com/caregrid/sentinel/internal/guard"
	"github.com/caregrid/sentinel/internal/handler"
	"github.com/caregrid/sentinel/internal/infra"
	"github.com/caregrid/sentinel/internal/metrics"
	"github.com/caregrid/sentinel/internal/repository"
	"github.com/caregrid/sentinel/internal/session"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool    *pgxpool.Pool
	Config  *infra.Config
	JWTMgr  *auth.JWTManager
	Metrics *metrics.Metrics
	Archive governance.ArchiveWriter
	Logger  *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	cfg := deps.Config
	logger := deps.Logger

	// Repositories
	sessionRepo := repository.NewPgSessionRepository()
	incidentRepo := repository.NewPgIncidentRepository()
	auditRepo := repository.NewPgAuditRepository()
	downloadRepo := repository.NewPgDownloadRepository()
	classRepo := repository.NewPgClassificationRepository()
	exportRepo := repository.NewPgExportRepository()
	retentionRepo := repository.NewPgRetentionRepository()
	throttleRepo := repository.NewPgThrottleRepository()
	captchaRepo := repository.NewCaptchaRepository()
	privilegeRepo := repository.NewPrivilegeRepository()
	staffRepo := repository.NewPgStaffRepository()
	dlpRepo := repository.NewDLPConfigRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Session integrity
	var fpKey []byte
	if cfg.FingerprintKey != "" {
		fpKey = []byte(cfg.FingerprintKey)
	}
	fingerprinter := session.NewFingerprinter(domain.FingerprintMode(cfg.FingerprintMode), fpKey)
	monitor := session.NewMonitor(sessionRepo, incidentRepo, auditRepo, outboxRepo, fingerprinter,
		session.MonitorConfig{
			MaxSessionLifetime:       cfg.MaxSessionLifetime,
			RotationInterval:         cfg.SessionRotationInterval,
			PropagationBlockDuration: cfg.PropagationBlockDuration,
		}, logger)
	monitor.SetMetrics(deps.Metrics)

	// Login throttle
	throttle := guard.NewLoginThrottle(throttleRepo, captchaRepo, outboxRepo,
		guard.ThrottleConfig{
			MaxLoginAttempts: cfg.MaxLoginAttempts,
			MaxBanAttempts:   cfg.MaxBanAttempts,
			LockoutDuration:  cfg.LockoutDuration,
			BanDuration:      cfg.BanDuration,
		}, logger)

	// Access control
	accessCtrl := auth.NewAccessController(monitor, staffRepo, privilegeRepo, incidentRepo, outboxRepo,
		auth.AccessConfig{
			MaxPrivilegeAttempts: cfg.MaxPrivilegeAttempts,
			AttemptWindow:        time.Hour,
		}, logger)
	accessCtrl.SetMetrics(deps.Metrics)

	// Governance engine
	engine := governance.NewEngine(classRepo, exportRepo, downloadRepo, auditRepo, retentionRepo,
		incidentRepo, dlpRepo, outboxRepo, deps.Archive, governance.DefaultConfig(), logger)
	if err := engine.LoadConfigOverrides(context.Background(), pool); err != nil {
		logger.Warn("dlp config overrides not loaded, using defaults", "error", err)
	}

	// Handlers
	guardHandler := handler.NewGuardHandler(deps.Metrics)
	loginHandler := handler.NewLoginHandler(throttle, pool, deps.Metrics)
	sessionHandler := handler.NewSessionHandler(monitor, deps.JWTMgr, pool, deps.Metrics)
	exportHandler := handler.NewExportHandler(engine, pool, deps.Metrics)
	classHandler := handler.NewClassificationHandler(engine, pool)
	downloadHandler := handler.NewDownloadHandler(engine, pool, deps.Metrics)
	retentionHandler := handler.NewRetentionHandler(engine, pool, deps.Metrics)
	statsHandler := handler.NewStatsHandler(engine, pool)

	limiter := guard.NewRateLimiter(300, time.Minute)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS)
	r.Use(deps.Metrics.Middleware)
	r.Use(handler.RateLimit(limiter))

	// Health and metrics (no auth, no JSON content-type override)
	r.Get("/health", handler.HealthHandler(pool))
	r.Method("GET", "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)

		// Input guard (no auth; pure functions over caller input)
		r.Route("/guard", func(r chi.Router) {
			r.Post("/inspect", guardHandler.Inspect)
			r.Post("/sanitize", guardHandler.Sanitize)
			r.Post("/escape", guardHandler.Escape)
		})

		// Login throttle (no auth; runs before credentials exist)
		r.Route("/login", func(r chi.Router) {
			r.Post("/failure", loginHandler.RecordFailure)
			r.Post("/success", loginHandler.ClearOnSuccess)
			r.Get("/status", loginHandler.Status)
			r.Post("/captcha", loginHandler.IssueCaptcha)
			r.Post("/captcha/validate", loginHandler.ValidateCaptcha)
		})

		// Session establishment (called by the upstream authenticator)
		r.Post("/sessions", sessionHandler.Initialize)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(deps.JWTMgr))

			r.Get("/sessions/validate", sessionHandler.Validate)

			// Any staff role
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(accessCtrl, pool, domain.RoleReceptionist))

				r.Route("/exports", func(r chi.Router) {
					r.Post("/", exportHandler.Request)
					r.Get("/", exportHandler.List)
					r.Post("/check", exportHandler.CanExport)
					r.Get("/{id}/approval", exportHandler.CheckApproval)
				})

				r.Route("/downloads", func(r chi.Router) {
					r.Post("/", downloadHandler.LogDownload)
					r.Post("/watermark", downloadHandler.Watermark)
				})
				r.Post("/access-log", downloadHandler.LogAccess)

				r.Get("/classifications", classHandler.Get)
				r.Get("/classifications/highest", classHandler.Highest)
			})

			// Chief staff and above
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(accessCtrl, pool, domain.RoleChiefStaff))

				r.Post("/exports/{id}/approve", exportHandler.Approve)
				r.Post("/exports/{id}/reject", exportHandler.Reject)
				r.Get("/stats", statsHandler.Stats)
				r.Get("/incidents", statsHandler.Incidents)
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(accessCtrl, pool, domain.RoleAdmin))

				r.Put("/classifications", classHandler.Classify)
				r.Post("/retention/enforce", retentionHandler.Enforce)
			})
		})
	})

	return r
}
