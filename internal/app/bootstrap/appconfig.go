// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig is where you put everything specific to YOUR application:
//   - Database connection strings (MongoDB URI, etc.)
//   - External service API keys and endpoints
//   - Feature flags and application modes
//   - Business logic configuration
//   - Default values for your domain
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: stratalert-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Maximum session cookie lifetime (default: 24h)

	// Login page URI. Unauthenticated browser requests are redirected here
	// with the original path carried in the "next" query parameter.
	LoginURI string

	// Rate limiting configuration
	RateLimitEnabled       bool          // Enable rate limiting for login attempts (default: true)
	RateLimitLoginAttempts int           // Max failed login attempts before lockout (default: 5)
	RateLimitLoginWindow   time.Duration // Time window for counting failed attempts (default: 15m)
	RateLimitLoginLockout  time.Duration // Lockout duration after exceeding limit (default: 15m)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Trust login (development only). When enabled, /login/trust signs in
	// any active user without a password.
	TrustLoginEnabled bool

	// Login alert configuration. Alerts are sent via the Twilio messaging
	// API when a user logs in from an IP address not yet in their history.
	AlertsEnabled      bool   // Feature flag: attempt login-alert notifications at all
	TwilioAccountSID   string // Twilio account SID (AC...)
	TwilioAuthToken    string // Twilio auth token
	TwilioFromNumber   string // Sender phone number in E.164 format
	TwilioBaseURL      string // Override the Twilio API base URL (tests, regional endpoints)
	AlertPhoneKey      string // custom_data key holding the notification phone number (default: phoneNumber)
	AlertIPKey         string // custom_data key holding the login IP history (default: loginIPs)
	AlertIPHistoryMax  int    // Cap on stored login IPs per user, 0 means unlimited

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth      string
	AuditLogRetention time.Duration // How long audit log records are kept (default: 8760h)

	// Admin seeding configuration
	SeedAdminLoginID string // Login ID of the admin user to create on startup (if set)
	SeedAdminName    string // Name of the admin user to create on startup
}
