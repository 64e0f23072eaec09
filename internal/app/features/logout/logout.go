// internal/app/features/logout/logout.go
package logout

import (
	"net/http"

	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides logout handlers.
type Handler struct {
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new logout Handler.
func NewHandler(
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Routes returns a chi.Router with logout routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Post("/", h.handleLogout)
	r.Get("/", h.handleLogout) // Allow GET for simple logout links
	return r
}

// handleLogout terminates the session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.CurrentUser(r); ok {
		h.auditLogger.Logout(r.Context(), r, user.ID)
	}

	h.sessionMgr.DestroySession(w, r)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
