// internal/app/system/loginalert/loginalert.go
package loginalert

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"net/http"

	loginstore "github.com/dalemusser/stratalert/internal/app/store/logins"
	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/network"
	"github.com/dalemusser/stratalert/internal/app/system/sms"
	"github.com/dalemusser/stratalert/internal/app/system/timeouts"
	"github.com/dalemusser/stratalert/internal/domain/models"
	"go.uber.org/zap"
)

// MessageBuilder produces the SMS body for a login alert.
type MessageBuilder interface {
	Build(user *models.User, ip string) string
}

// MessageBuilderFunc adapts a function to the MessageBuilder interface.
type MessageBuilderFunc func(user *models.User, ip string) string

// Build implements MessageBuilder.
func (f MessageBuilderFunc) Build(user *models.User, ip string) string {
	return f(user, ip)
}

// DefaultMessageBuilder builds the standard alert body.
func DefaultMessageBuilder() MessageBuilder {
	return MessageBuilderFunc(func(user *models.User, ip string) string {
		return "New login for: " + displayID(user) + ", from: " + ip
	})
}

// displayID picks the identifier shown in the alert message, preferring the
// login ID the user actually types.
func displayID(user *models.User) string {
	if user.LoginID != nil && *user.LoginID != "" {
		return *user.LoginID
	}
	if user.Email != nil && *user.Email != "" {
		return *user.Email
	}
	return user.ID.Hex()
}

// Workflow runs after every successful login: it records the client IP in
// the user's login history and sends an SMS alert when the IP has not been
// seen before. Failures never block the login; they are logged and audited.
type Workflow struct {
	logins      *loginstore.Store
	sender      *sms.Sender
	builder     MessageBuilder
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// New creates a Workflow. A nil builder gets the default message format.
func New(logins *loginstore.Store, sender *sms.Sender, builder MessageBuilder, auditLogger *auditlog.Logger, logger *zap.Logger) *Workflow {
	if builder == nil {
		builder = DefaultMessageBuilder()
	}
	return &Workflow{
		logins:      logins,
		sender:      sender,
		builder:     builder,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// OnLogin processes a successful login. It always returns true so the login
// flow continues regardless of whether an alert could be delivered.
func (w *Workflow) OnLogin(ctx context.Context, r *http.Request, user *models.User) bool {
	if w == nil {
		return true
	}

	ip := network.GetClientIP(r)
	log := w.logger.With(
		zap.String("user_id", user.ID.Hex()),
		zap.String("ip", ip),
	)

	storeCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	// No phone number means the user never opted in: leave the IP history
	// untouched so their first alert covers the IP they are on when they do.
	phone, err := w.logins.PhoneNumber(storeCtx, user.ID)
	if err != nil {
		log.Error("failed to load notification phone number", zap.Error(err))
		return true
	}
	if phone == "" {
		log.Warn("login alert skipped, no phone number on file")
		return true
	}

	ips, err := w.logins.LoginIPs(storeCtx, user.ID)
	if err != nil {
		log.Error("failed to load login IP history", zap.Error(err))
		return true
	}
	if contains(ips, ip) {
		// Known IP, nothing to announce.
		return true
	}

	// Record the IP before notifying. If the write fails the history is in
	// an unknown state, so skip the alert rather than risk re-alerting the
	// same IP on every login.
	if err := w.logins.AppendLoginIP(storeCtx, user.ID, ip); err != nil {
		log.Error("failed to record login IP", zap.Error(err))
		return true
	}

	if !w.sender.Configured() {
		log.Warn("new login IP recorded, sms sender not configured")
		return true
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, timeouts.Medium())
	defer cancelSend()

	body := w.builder.Build(user, ip)
	if err := w.sender.Send(sendCtx, phone, body); err != nil {
		log.Error("failed to send login alert", zap.Error(err))
		w.auditLogger.LoginAlertFailed(ctx, r, user.ID, err.Error())
		return true
	}

	log.Info("login alert sent")
	w.auditLogger.LoginAlertSent(ctx, r, user.ID)
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
