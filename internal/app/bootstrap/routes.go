// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratalert/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratalert/internal/app/features/health"
	homefeature "github.com/dalemusser/stratalert/internal/app/features/home"
	loginfeature "github.com/dalemusser/stratalert/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratalert/internal/app/features/logout"
	phonefeature "github.com/dalemusser/stratalert/internal/app/features/phone"
	appresources "github.com/dalemusser/stratalert/internal/app/resources"
	"github.com/dalemusser/stratalert/internal/app/store/audit"
	loginstore "github.com/dalemusser/stratalert/internal/app/store/logins"
	"github.com/dalemusser/stratalert/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratalert/internal/app/store/users"
	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/auth"
	"github.com/dalemusser/stratalert/internal/app/system/loginalert"
	"github.com/dalemusser/stratalert/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// This function should:
//  1. Create a router (chi, standard mux, etc.)
//  2. Mount feature routers for different parts of your application
//  3. Add any additional middleware needed for specific routes
//  4. Return the configured router as an http.Handler
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Unauthenticated browser requests get bounced to the login page with
	// the original path carried in the "next" query parameter.
	if appCfg.LoginURI != "" {
		sessionMgr.SetLoginURI(appCfg.LoginURI)
	}

	// Set up the UserFetcher so LoadSessionUser fetches fresh user data on each request.
	// This ensures role changes and disabled accounts take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase, logger))

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	viewdata.Init("StratAlert")

	// Create error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	// Create audit store and logger for security event tracking.
	auditStore := audit.New(deps.MongoDatabase)
	auditLogger := auditlog.New(auditStore, logger, auditlog.Config{
		Auth: appCfg.AuditLogAuth,
	})

	// Login history store over users.custom_data, with the attribute keys
	// and history cap from config.
	logins := loginstore.New(deps.MongoDatabase,
		loginstore.WithPhoneField(appCfg.AlertPhoneKey),
		loginstore.WithIPsField(appCfg.AlertIPKey),
		loginstore.WithHistoryMax(appCfg.AlertIPHistoryMax),
	)

	// New-IP login alert workflow (nil disables it in the login handler).
	var alerts *loginalert.Workflow
	if appCfg.AlertsEnabled {
		alerts = loginalert.New(logins, deps.SMSSender, nil, auditLogger, logger)
	} else {
		logger.Info("login alerts disabled by configuration")
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// CSRF protection middleware.
	// Cookie name is "stratalert_csrf" to avoid collisions with other services
	// on the same domain.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratalert_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	r.Use(csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...))

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// Static assets with pre-compressed file support (gzip/brotli)
	// /static/* serves files from disk (static directory)
	r.Handle("/static/*", fileserver.Handler("/static", "static"))

	// /assets/* serves embedded assets (bundled into the binary)
	r.Handle("/assets/*", appresources.AssetsHandler("/assets"))

	// Public pages
	homeHandler := homefeature.NewHandler(logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication
	// Trust login is only enabled in dev mode for security - it allows passwordless login
	trustLoginEnabled := appCfg.TrustLoginEnabled && coreCfg.Env == "dev"

	// Rate limiting for login attempts (nil if disabled)
	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(
			deps.MongoDatabase,
			appCfg.RateLimitLoginAttempts,
			appCfg.RateLimitLoginWindow,
			appCfg.RateLimitLoginLockout,
		)
	}

	loginHandler := loginfeature.NewHandler(
		deps.MongoDatabase,
		sessionMgr,
		errLog,
		auditLogger,
		alerts,
		rateLimitStore,
		trustLoginEnabled,
		logger,
	)
	r.Mount(sessionMgr.LoginURI(), loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Notification phone settings (signed-in users)
	phoneHandler := phonefeature.NewHandler(logins, errLog, auditLogger, logger)
	r.Route("/phone", func(sr chi.Router) {
		sr.Use(sessionMgr.RequireSignedIn)
		sr.Mount("/", phonefeature.Routes(phoneHandler))
	})

	// Error pages
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.Get("/unauthorized", errorsHandler.Unauthorized)

	// 404 catch-all for unmatched routes
	r.NotFound(errorsHandler.NotFound)

	return r, nil
}
