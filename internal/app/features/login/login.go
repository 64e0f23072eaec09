// internal/app/features/login/login.go
package login

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"fmt"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratalert/internal/app/features/errors"
	"github.com/dalemusser/stratalert/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/stratalert/internal/app/store/users"
	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/auth"
	"github.com/dalemusser/stratalert/internal/app/system/authutil"
	"github.com/dalemusser/stratalert/internal/app/system/loginalert"
	"github.com/dalemusser/stratalert/internal/app/system/viewdata"
	"github.com/dalemusser/stratalert/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides login handlers.
type Handler struct {
	userStore         *userstore.Store
	rateLimitStore    *ratelimit.Store // nil if rate limiting disabled
	sessionMgr        *auth.SessionManager
	errLog            *errorsfeature.ErrorLogger
	auditLogger       *auditlog.Logger
	alerts            *loginalert.Workflow
	trustLoginEnabled bool // Only enable in dev mode for security
	logger            *zap.Logger
}

// NewHandler creates a new login Handler.
// Set trustLoginEnabled to true only in development mode.
// rateLimitStore can be nil to disable rate limiting; alerts can be nil
// to disable new-IP login notifications.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	alerts *loginalert.Workflow,
	rateLimitStore *ratelimit.Store,
	trustLoginEnabled bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:         userstore.New(db),
		rateLimitStore:    rateLimitStore,
		sessionMgr:        sessionMgr,
		errLog:            errLog,
		auditLogger:       auditLogger,
		alerts:            alerts,
		trustLoginEnabled: trustLoginEnabled,
		logger:            logger,
	}
}

// LoginVM is the view model for the login page.
type LoginVM struct {
	viewdata.BaseVM
	Error   string
	LoginID string
	NextURL string
}

// Routes returns a chi.Router with login routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.showLogin)
	r.Post("/", h.handleLogin)

	// Trust auth - only enable in development mode for security
	// In production, these routes should not be accessible
	if h.trustLoginEnabled {
		r.Get("/trust", h.showTrustLogin)
		r.Post("/trust", h.handleTrustLogin)
	}

	// Password auth
	r.Get("/password", h.showPasswordLogin)
	r.Post("/password", h.handlePasswordLogin)

	return r
}

// showLogin displays the login page with login_id field.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	// Map error codes to user-friendly messages
	errorCode := r.URL.Query().Get("error")
	errorMsg := ""
	switch errorCode {
	case "account_disabled":
		errorMsg = "Account is disabled."
	case "service_unavailable":
		errorMsg = "Service temporarily unavailable. Please try again."
	case "":
		// No error
	default:
		// Show the error code as-is for unknown codes
		errorMsg = errorCode
	}

	vm := LoginVM{
		BaseVM:  viewdata.New(r),
		NextURL: query.Get(r, "next"),
		Error:   errorMsg,
	}
	vm.Title = "Login"

	templates.Render(w, r, "login/index", vm)
}

// handleLogin looks up the user by login_id and redirects to the appropriate auth method.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	loginID := r.FormValue("login_id")
	nextURL := r.FormValue("next")

	if loginID == "" {
		vm := LoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Please enter your Login ID",
			NextURL: nextURL,
		}
		vm.Title = "Login"
		templates.Render(w, r, "login/index", vm)
		return
	}

	// Look up user by login_id
	user, err := h.userStore.GetByLoginID(r.Context(), loginID)
	if err != nil {
		// Distinguish between "user not found" and database errors
		if err == mongo.ErrNoDocuments {
			h.auditLogger.LoginFailedUserNotFound(r.Context(), r, loginID)
			vm := LoginVM{
				BaseVM:  viewdata.New(r),
				Error:   "User not found",
				LoginID: loginID,
				NextURL: nextURL,
			}
			vm.Title = "Login"
			templates.Render(w, r, "login/index", vm)
			return
		}
		// Database error (timeout, connection failure, etc.)
		h.errLog.Log(r, "database error during login lookup", err)
		vm := LoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Service temporarily unavailable. Please try again.",
			LoginID: loginID,
			NextURL: nextURL,
		}
		vm.Title = "Login"
		templates.Render(w, r, "login/index", vm)
		return
	}

	if user.Status != "active" {
		h.auditLogger.LoginFailedUserDisabled(r.Context(), r, user.ID, loginID)
		vm := LoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Account is disabled",
			LoginID: loginID,
			NextURL: nextURL,
		}
		vm.Title = "Login"
		templates.Render(w, r, "login/index", vm)
		return
	}

	// Redirect based on user's auth method
	nextParam := ""
	if nextURL != "" {
		nextParam = "&next=" + nextURL
	}

	switch user.AuthMethod {
	case "trust":
		// Trust auth - log in immediately
		h.finishLogin(w, r, user, nextURL)
	case "password":
		http.Redirect(w, r, "/login/password?login_id="+loginID+nextParam, http.StatusSeeOther)
	default:
		// Default to password if auth_method is not set
		http.Redirect(w, r, "/login/password?login_id="+loginID+nextParam, http.StatusSeeOther)
	}
}

// TrustLoginVM is the view model for trust login.
type TrustLoginVM struct {
	viewdata.BaseVM
	Error   string
	LoginID string
}

// showTrustLogin displays the trust login form.
func (h *Handler) showTrustLogin(w http.ResponseWriter, r *http.Request) {
	vm := TrustLoginVM{
		BaseVM: viewdata.New(r),
	}
	vm.Title = "Trust Login"

	templates.Render(w, r, "login/trust", vm)
}

// handleTrustLogin processes trust login (development only).
func (h *Handler) handleTrustLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	loginID := r.FormValue("login_id")

	// Only trust accounts can pass through the trust form; a password
	// account with the same login_id must not be reachable this way.
	user, err := h.userStore.GetByLoginIDAndAuthMethod(r.Context(), loginID, "trust")
	if err != nil {
		// Distinguish between "user not found" and database errors
		if err == mongo.ErrNoDocuments {
			h.auditLogger.LoginFailedUserNotFound(r.Context(), r, loginID)
			vm := TrustLoginVM{
				BaseVM:  viewdata.New(r),
				Error:   "User not found",
				LoginID: loginID,
			}
			templates.Render(w, r, "login/trust", vm)
			return
		}
		// Database error
		h.errLog.Log(r, "database error during trust login lookup", err)
		vm := TrustLoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Service temporarily unavailable. Please try again.",
			LoginID: loginID,
		}
		templates.Render(w, r, "login/trust", vm)
		return
	}

	if user.Status != "active" {
		h.auditLogger.LoginFailedUserDisabled(r.Context(), r, user.ID, loginID)

		vm := TrustLoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Account is disabled",
			LoginID: loginID,
		}
		templates.Render(w, r, "login/trust", vm)
		return
	}

	h.finishLogin(w, r, user, "")
}

// PasswordLoginVM is the view model for password login.
type PasswordLoginVM struct {
	viewdata.BaseVM
	Error   string
	LoginID string
	NextURL string
}

// showPasswordLogin displays the password login form.
func (h *Handler) showPasswordLogin(w http.ResponseWriter, r *http.Request) {
	vm := PasswordLoginVM{
		BaseVM:  viewdata.New(r),
		LoginID: r.URL.Query().Get("login_id"),
		NextURL: query.Get(r, "next"),
	}
	vm.Title = "Enter Password"

	templates.Render(w, r, "login/password", vm)
}

// handlePasswordLogin processes password login.
func (h *Handler) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	loginID := r.FormValue("login_id")
	password := r.FormValue("password")
	nextURL := r.FormValue("next")

	// Check rate limit before processing
	if h.rateLimitStore != nil {
		allowed, _, lockedUntil := h.rateLimitStore.CheckAllowed(r.Context(), loginID)
		if !allowed {
			h.auditLogger.LogAuthEvent(r, nil, "login_rate_limited", false, "rate limit exceeded for "+loginID)

			vm := PasswordLoginVM{
				BaseVM:  viewdata.New(r),
				Error:   lockoutMessage(lockedUntil),
				LoginID: loginID,
				NextURL: nextURL,
			}
			templates.Render(w, r, "login/password", vm)
			return
		}
	}

	user, err := h.userStore.GetByLoginID(r.Context(), loginID)
	if err != nil {
		// Distinguish between "user not found" and database errors
		if err == mongo.ErrNoDocuments {
			// Record failure for rate limiting (even though user doesn't exist)
			if h.rateLimitStore != nil {
				h.rateLimitStore.RecordFailure(r.Context(), loginID)
			}
			h.auditLogger.LoginFailedUserNotFound(r.Context(), r, loginID)

			vm := PasswordLoginVM{
				BaseVM:  viewdata.New(r),
				Error:   "Invalid credentials",
				LoginID: loginID,
				NextURL: nextURL,
			}
			templates.Render(w, r, "login/password", vm)
			return
		}
		// Database error
		h.errLog.Log(r, "database error during password login lookup", err)
		vm := PasswordLoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Service temporarily unavailable. Please try again.",
			LoginID: loginID,
			NextURL: nextURL,
		}
		templates.Render(w, r, "login/password", vm)
		return
	}

	if user.Status != "active" {
		// Record failure for rate limiting
		if h.rateLimitStore != nil {
			h.rateLimitStore.RecordFailure(r.Context(), loginID)
		}
		h.auditLogger.LoginFailedUserDisabled(r.Context(), r, user.ID, loginID)

		vm := PasswordLoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Account is disabled",
			LoginID: loginID,
		}
		templates.Render(w, r, "login/password", vm)
		return
	}

	if user.PasswordHash == nil || !authutil.CheckPassword(password, *user.PasswordHash) {
		// Record failure for rate limiting
		if h.rateLimitStore != nil {
			lockedOut, lockedUntil := h.rateLimitStore.RecordFailure(r.Context(), loginID)
			if lockedOut {
				h.auditLogger.LogAuthEvent(r, &user.ID, "login_locked_out", false, "too many failed attempts")
				vm := PasswordLoginVM{
					BaseVM:  viewdata.New(r),
					Error:   lockoutMessage(lockedUntil),
					LoginID: loginID,
					NextURL: nextURL,
				}
				templates.Render(w, r, "login/password", vm)
				return
			}
		}
		h.auditLogger.LoginFailedWrongPassword(r.Context(), r, user.ID, loginID)

		vm := PasswordLoginVM{
			BaseVM:  viewdata.New(r),
			Error:   "Invalid credentials",
			LoginID: loginID,
		}
		templates.Render(w, r, "login/password", vm)
		return
	}

	// Clear rate limit on successful login
	if h.rateLimitStore != nil {
		h.rateLimitStore.ClearOnSuccess(r.Context(), loginID)
	}

	h.finishLogin(w, r, user, nextURL)
}

// finishLogin creates the session cookie, records the audit event, runs the
// new-IP login notification, and redirects to nextURL (or "/" when empty).
// The notification never blocks the login: it logs and audits its own
// failures internally.
func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, user *models.User, nextURL string) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.errLog.Log(r, "failed to generate session token", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := h.sessionMgr.CreateSession(w, r, user.ID, user.Role, token); err != nil {
		h.errLog.Log(r, "failed to create session", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	loginID := ""
	if user.LoginID != nil {
		loginID = *user.LoginID
	}
	h.auditLogger.LoginSuccess(r.Context(), r, user.ID, user.AuthMethod, loginID)

	if h.alerts != nil {
		h.alerts.OnLogin(r.Context(), r, user)
	}

	http.Redirect(w, r, urlutil.SafeReturn(nextURL, "", "/"), http.StatusSeeOther)
}

// lockoutMessage renders the "try again later" error with the remaining
// lockout time when known.
func lockoutMessage(lockedUntil *time.Time) string {
	if lockedUntil == nil {
		return "Too many failed login attempts. Please try again later."
	}
	remaining := time.Until(*lockedUntil)
	if remaining > time.Minute {
		return fmt.Sprintf("Too many failed login attempts. Please try again in %d minute(s).", int(remaining.Minutes())+1)
	}
	return fmt.Sprintf("Too many failed login attempts. Please try again in %d second(s).", int(remaining.Seconds())+1)
}
