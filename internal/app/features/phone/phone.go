// internal/app/features/phone/phone.go
package phone

import (
	"context"
	"net/http"

	errorsfeature "github.com/dalemusser/stratalert/internal/app/features/errors"
	loginstore "github.com/dalemusser/stratalert/internal/app/store/logins"
	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/auth"
	"github.com/dalemusser/stratalert/internal/app/system/normalize"
	"github.com/dalemusser/stratalert/internal/app/system/timeouts"
	"github.com/dalemusser/stratalert/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides the notification-phone settings handlers.
type Handler struct {
	logins      *loginstore.Store
	errLog      *errorsfeature.ErrorLogger
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new phone Handler.
func NewHandler(logins *loginstore.Store, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		logins:      logins,
		errLog:      errLog,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// PhoneVM is the view model for the notification-phone page.
type PhoneVM struct {
	viewdata.BaseVM
	Phone string
	Error string
	Saved bool
}

// Routes returns a chi.Router with phone routes mounted.
// Mount behind auth.RequireSignedIn: handlers assume a signed-in user.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.show)
	r.Post("/", h.update)
	return r
}

// show renders the form with the user's current notification phone number.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	phone, err := h.logins.PhoneNumber(ctx, user.UserID())
	if err != nil {
		h.errLog.Log(r, "failed to load notification phone", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	vm := PhoneVM{
		BaseVM: viewdata.NewWithTitle(r, "Notification Phone", "/"),
		Phone:  phone,
		Saved:  r.URL.Query().Get("saved") == "1",
	}

	templates.Render(w, r, "phone/index", vm)
}

// update persists the submitted phone number. The new value takes effect on
// the next login; it does not trigger a notification now.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	phone := normalize.Phone(r.FormValue("phone_number"))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.logins.SetPhoneNumber(ctx, user.UserID(), phone); err != nil {
		h.errLog.Log(r, "failed to save notification phone", err)

		vm := PhoneVM{
			BaseVM: viewdata.NewWithTitle(r, "Notification Phone", "/"),
			Phone:  phone,
			Error:  "Could not save your phone number. Please try again.",
		}
		templates.Render(w, r, "phone/index", vm)
		return
	}

	h.auditLogger.PhoneUpdated(ctx, r, user.UserID())

	http.Redirect(w, r, "/phone?saved=1", http.StatusSeeOther)
}
