package loginalert

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dalemusser/stratalert/internal/app/store/audit"
	loginstore "github.com/dalemusser/stratalert/internal/app/store/logins"
	userstore "github.com/dalemusser/stratalert/internal/app/store/users"
	"github.com/dalemusser/stratalert/internal/app/system/auditlog"
	"github.com/dalemusser/stratalert/internal/app/system/sms"
	"github.com/dalemusser/stratalert/internal/domain/models"
	"github.com/dalemusser/stratalert/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// smsRecorder is an httptest server that captures SMS create calls.
type smsRecorder struct {
	server   *httptest.Server
	calls    atomic.Int64
	lastTo   atomic.Value // string
	lastBody atomic.Value // string
	status   atomic.Int64
}

func newSMSRecorder(t *testing.T) *smsRecorder {
	t.Helper()
	rec := &smsRecorder{}
	rec.status.Store(http.StatusCreated)
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("provider: failed to parse form: %v", err)
		}
		rec.calls.Add(1)
		rec.lastTo.Store(r.PostFormValue("To"))
		rec.lastBody.Store(r.PostFormValue("Body"))
		w.WriteHeader(int(rec.status.Load()))
		w.Write([]byte(`{"sid":"SM_test"}`))
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (rec *smsRecorder) sender() *sms.Sender {
	return sms.New(sms.Config{
		AccountSID: "AC_test",
		AuthToken:  "token",
		From:       "+15550000000",
		BaseURL:    rec.server.URL,
	}, zap.NewNop())
}

func createUser(t *testing.T, db *mongo.Database, loginID string, custom bson.M) *models.User {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := userstore.New(db).CreateFromInput(ctx, userstore.CreateInput{
		FullName:   "Workflow User",
		LoginID:    loginID,
		AuthMethod: "trust",
		Role:       "member",
		CustomData: custom,
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &created
}

func loginRequest(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = ip + ":54321"
	return r
}

func TestOnLogin_NewIP_SendsAlertAndRecordsIP(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	logins := loginstore.New(db)
	w := New(logins, rec.sender(), nil, nil, zap.NewNop())

	user := createUser(t, db, "alertme", bson.M{"phoneNumber": "+15551234567"})

	if handled := w.OnLogin(ctx, loginRequest("1.2.3.4"), user); !handled {
		t.Error("OnLogin should always report handled")
	}

	if got := rec.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
	if to := rec.lastTo.Load().(string); to != "+15551234567" {
		t.Errorf("To = %q, want %q", to, "+15551234567")
	}
	body := rec.lastBody.Load().(string)
	if !strings.Contains(body, "1.2.3.4") {
		t.Errorf("Body = %q, want it to contain the new IP", body)
	}
	if !strings.Contains(body, "alertme") {
		t.Errorf("Body = %q, want it to contain the login ID", body)
	}

	ips, err := logins.LoginIPs(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoginIPs: %v", err)
	}
	if len(ips) != 1 || ips[0] != "1.2.3.4" {
		t.Errorf("loginIPs = %v, want [1.2.3.4]", ips)
	}
}

func TestOnLogin_KnownIP_NoAlert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	logins := loginstore.New(db)
	w := New(logins, rec.sender(), nil, nil, zap.NewNop())

	user := createUser(t, db, "knownip", bson.M{
		"phoneNumber": "+15551234567",
		"loginIPs":    bson.A{"1.2.3.4"},
	})

	w.OnLogin(ctx, loginRequest("1.2.3.4"), user)

	if got := rec.calls.Load(); got != 0 {
		t.Errorf("provider calls = %d, want 0 for a known IP", got)
	}

	ips, err := logins.LoginIPs(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoginIPs: %v", err)
	}
	if len(ips) != 1 {
		t.Errorf("loginIPs = %v, want unchanged single entry", ips)
	}
}

func TestOnLogin_NoPhone_NoAlertNoHistoryWrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	logins := loginstore.New(db)
	w := New(logins, rec.sender(), nil, nil, zap.NewNop())

	user := createUser(t, db, "nophone", nil)

	if handled := w.OnLogin(ctx, loginRequest("5.6.7.8"), user); !handled {
		t.Error("OnLogin should always report handled")
	}

	if got := rec.calls.Load(); got != 0 {
		t.Errorf("provider calls = %d, want 0 without a phone number", got)
	}

	// Without a phone number the history is left alone.
	ips, err := logins.LoginIPs(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoginIPs: %v", err)
	}
	if len(ips) != 0 {
		t.Errorf("loginIPs = %v, want empty", ips)
	}
}

func TestOnLogin_UnconfiguredSender_RecordsIPWithoutSending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logins := loginstore.New(db)
	unconfigured := sms.New(sms.Config{}, zap.NewNop())
	w := New(logins, unconfigured, nil, nil, zap.NewNop())

	user := createUser(t, db, "nocreds", bson.M{"phoneNumber": "+15551234567"})

	if handled := w.OnLogin(ctx, loginRequest("9.9.9.9"), user); !handled {
		t.Error("OnLogin should always report handled")
	}

	ips, err := logins.LoginIPs(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoginIPs: %v", err)
	}
	if len(ips) != 1 || ips[0] != "9.9.9.9" {
		t.Errorf("loginIPs = %v, want [9.9.9.9]", ips)
	}
}

func TestOnLogin_ProviderFailure_StillHandledAndRecorded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	rec.status.Store(http.StatusUnauthorized)

	logins := loginstore.New(db)
	w := New(logins, rec.sender(), nil, nil, zap.NewNop())

	user := createUser(t, db, "provfail", bson.M{"phoneNumber": "+15551234567"})

	if handled := w.OnLogin(ctx, loginRequest("4.4.4.4"), user); !handled {
		t.Error("OnLogin should always report handled even when the provider rejects")
	}

	if got := rec.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want exactly one attempt", got)
	}

	// The IP was persisted before the attempt, so the next login from the
	// same IP stays quiet.
	w.OnLogin(ctx, loginRequest("4.4.4.4"), user)
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want no retry on the next login", got)
	}
}

func TestOnLogin_SecondLoginSameIP_NoDuplicateAlert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	logins := loginstore.New(db)
	w := New(logins, rec.sender(), nil, nil, zap.NewNop())

	user := createUser(t, db, "repeat", bson.M{"phoneNumber": "+15551234567"})

	w.OnLogin(ctx, loginRequest("1.1.1.1"), user)
	w.OnLogin(ctx, loginRequest("1.1.1.1"), user)
	w.OnLogin(ctx, loginRequest("2.2.2.2"), user)

	if got := rec.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2 (one per distinct IP)", got)
	}

	ips, err := logins.LoginIPs(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoginIPs: %v", err)
	}
	if len(ips) != 2 || ips[0] != "1.1.1.1" || ips[1] != "2.2.2.2" {
		t.Errorf("loginIPs = %v, want [1.1.1.1 2.2.2.2]", ips)
	}
}

func TestOnLogin_NilWorkflow(t *testing.T) {
	var w *Workflow
	if !w.OnLogin(nil, loginRequest("1.2.3.4"), &models.User{}) {
		t.Error("nil workflow should still report handled")
	}
}

func TestDefaultMessageBuilder(t *testing.T) {
	loginID := "alice"
	user := &models.User{LoginID: &loginID}

	got := DefaultMessageBuilder().Build(user, "1.2.3.4")
	want := "New login for: alice, from: 1.2.3.4"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestDisplayID_Fallbacks(t *testing.T) {
	email := "bob@example.com"
	user := &models.User{Email: &email}
	if got := displayID(user); got != "bob@example.com" {
		t.Errorf("displayID = %q, want email fallback", got)
	}

	empty := ""
	bare := &models.User{LoginID: &empty}
	if got := displayID(bare); got != bare.ID.Hex() {
		t.Errorf("displayID = %q, want ObjectID hex fallback", got)
	}
}

func TestCustomMessageBuilder(t *testing.T) {
	builder := MessageBuilderFunc(func(user *models.User, ip string) string {
		return "custom: " + ip
	})

	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	w := New(loginstore.New(db), rec.sender(), builder, nil, zap.NewNop())

	user := createUser(t, db, "custommsg", bson.M{"phoneNumber": "+15551234567"})
	w.OnLogin(ctx, loginRequest("7.7.7.7"), user)

	if got := rec.lastBody.Load().(string); got != "custom: 7.7.7.7" {
		t.Errorf("Body = %q, want custom builder output", got)
	}
}

func TestOnLogin_WritesAlertAuditTrail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	rec := newSMSRecorder(t)
	logins := loginstore.New(db)
	auditStore := audit.New(db)
	auditLogger := auditlog.New(auditStore, zap.NewNop(), auditlog.Config{Auth: "db"})
	w := New(logins, rec.sender(), nil, auditLogger, zap.NewNop())

	user := createUser(t, db, "audited", bson.M{"phoneNumber": "+15551234567"})

	// Delivered alert writes a sent event.
	if handled := w.OnLogin(ctx, loginRequest("9.9.9.1"), user); !handled {
		t.Error("OnLogin should always report handled")
	}

	// Rejected alert for a second new IP writes a failed event with the
	// provider error as the failure reason.
	rec.status.Store(http.StatusUnauthorized)
	if handled := w.OnLogin(ctx, loginRequest("9.9.9.2"), user); !handled {
		t.Error("OnLogin should always report handled")
	}

	events, err := auditStore.GetByUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("audit GetByUser: %v", err)
	}

	var sent, failed int
	var failureReason string
	for _, ev := range events {
		switch ev.EventType {
		case audit.EventLoginAlertSent:
			sent++
			if !ev.Success {
				t.Error("sent event should record success")
			}
		case audit.EventLoginAlertFailed:
			failed++
			failureReason = ev.FailureReason
		}
	}
	if sent != 1 {
		t.Errorf("login_alert_sent events = %d, want 1", sent)
	}
	if failed != 1 {
		t.Errorf("login_alert_failed events = %d, want 1", failed)
	}
	if !strings.Contains(failureReason, "401") {
		t.Errorf("failure reason = %q, want it to carry the provider status", failureReason)
	}
}
