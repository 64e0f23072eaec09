// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
// Change this constant when forking stratalert for a new project.
const EnvVarPrefix = "STRATALERT"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: STRATALERT_MONGO_URI, STRATALERT_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratalert", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "stratalert-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie max age (e.g., 24h, 720h, 30m)"},

	// Login page URI
	{Name: "login_uri", Default: "/login", Desc: "Login page URI used for unauthenticated redirects"},

	// Rate limiting configuration
	{Name: "rate_limit_enabled", Default: true, Desc: "Enable rate limiting for login attempts"},
	{Name: "rate_limit_login_attempts", Default: 5, Desc: "Max failed login attempts before lockout"},
	{Name: "rate_limit_login_window", Default: "15m", Desc: "Time window for counting failed attempts"},
	{Name: "rate_limit_login_lockout", Default: "15m", Desc: "Lockout duration after exceeding limit"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Trust login (development only)
	{Name: "trust_login_enabled", Default: false, Desc: "Enable passwordless trust login (development only)"},

	// Login alert configuration
	{Name: "alerts_enabled", Default: true, Desc: "Send SMS alerts on logins from unseen IP addresses"},
	{Name: "twilio_account_sid", Default: "", Desc: "Twilio account SID"},
	{Name: "twilio_auth_token", Default: "", Desc: "Twilio auth token"},
	{Name: "twilio_from_number", Default: "", Desc: "Twilio sender phone number (E.164)"},
	{Name: "twilio_base_url", Default: "", Desc: "Twilio API base URL override (leave empty for production)"},
	{Name: "alert_phone_key", Default: "phoneNumber", Desc: "custom_data key for the notification phone number"},
	{Name: "alert_ip_key", Default: "loginIPs", Desc: "custom_data key for the login IP history"},
	{Name: "alert_ip_history_max", Default: 0, Desc: "Max stored login IPs per user (0 = unlimited)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_retention", Default: "8760h", Desc: "How long audit log records are kept"},

	// Admin seeding configuration
	{Name: "seed_admin_login_id", Default: "", Desc: "Login ID of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of admin user to create on startup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
// CoreConfig comes from the shared WAFFLE layer; AppConfig is specific
// to this app and can be extended as the app grows.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATALERT_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		LoginURI: appValues.String("login_uri"),

		// Rate limiting
		RateLimitEnabled:       appValues.Bool("rate_limit_enabled"),
		RateLimitLoginAttempts: appValues.Int("rate_limit_login_attempts"),
		RateLimitLoginWindow:   appValues.Duration("rate_limit_login_window", 15*time.Minute),
		RateLimitLoginLockout:  appValues.Duration("rate_limit_login_lockout", 15*time.Minute),

		CSRFKey: appValues.String("csrf_key"),

		TrustLoginEnabled: appValues.Bool("trust_login_enabled"),

		// Login alerts
		AlertsEnabled:     appValues.Bool("alerts_enabled"),
		TwilioAccountSID:  appValues.String("twilio_account_sid"),
		TwilioAuthToken:   appValues.String("twilio_auth_token"),
		TwilioFromNumber:  appValues.String("twilio_from_number"),
		TwilioBaseURL:     appValues.String("twilio_base_url"),
		AlertPhoneKey:     appValues.String("alert_phone_key"),
		AlertIPKey:        appValues.String("alert_ip_key"),
		AlertIPHistoryMax: appValues.Int("alert_ip_history_max"),

		// Audit logging
		AuditLogAuth:      appValues.String("audit_log_auth"),
		AuditLogRetention: appValues.Duration("audit_log_retention", 365*24*time.Hour),

		// Admin seeding
		SeedAdminLoginID: appValues.String("seed_admin_login_id"),
		SeedAdminName:    appValues.String("seed_admin_name"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// This is the right place to enforce required fields or invariants that
// involve both the core and app configs.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.AlertPhoneKey == "" || appCfg.AlertIPKey == "" {
		return fmt.Errorf("alert_phone_key and alert_ip_key must be non-empty")
	}

	// Missing Twilio credentials are a normal disabled state, not an error:
	// the alert workflow records IP history and skips sending. Warn so the
	// operator can tell why no texts go out.
	if appCfg.AlertsEnabled &&
		(appCfg.TwilioAccountSID == "" || appCfg.TwilioAuthToken == "" || appCfg.TwilioFromNumber == "") {
		logger.Warn("login alerts enabled but Twilio credentials incomplete, SMS delivery disabled")
	}

	return nil
}
