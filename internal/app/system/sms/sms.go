// internal/app/system/sms/sms.go
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// defaultBaseURL is the Twilio REST API endpoint. Tests point BaseURL at a
// local httptest server instead.
const defaultBaseURL = "https://api.twilio.com"

// Sender delivers SMS messages through the Twilio REST API.
type Sender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	log        *zap.Logger
}

// Config holds the configuration for creating a Sender.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	// BaseURL overrides the Twilio API endpoint; empty means production.
	BaseURL string
	// Timeout bounds each delivery attempt; zero means 10 seconds.
	Timeout time.Duration
}

// New creates a new Sender with the given configuration.
func New(cfg Config, log *zap.Logger) *Sender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Configured reports whether the sender has the credentials it needs to
// deliver messages. An unconfigured sender lets the rest of the app run
// (logins still work) while delivery is skipped.
func (s *Sender) Configured() bool {
	return s != nil && s.accountSID != "" && s.authToken != "" && s.from != ""
}

// Send delivers a single SMS message. Delivery is attempted exactly once;
// a failed attempt is reported, never retried, since a stale login alert is
// worse than a missing one.
func (s *Sender) Send(ctx context.Context, to, body string) error {
	if !s.Configured() {
		s.log.Warn("sms delivery skipped, sender not configured")
		return fmt.Errorf("sms: sender not configured")
	}
	if to == "" {
		s.log.Warn("sms delivery skipped, no destination number")
		return fmt.Errorf("sms: destination number is empty")
	}
	if body == "" {
		s.log.Warn("sms delivery skipped, empty message body")
		return fmt.Errorf("sms: message body is empty")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Error("failed to send sms",
			zap.String("to", to),
			zap.Error(err))
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Twilio returns a JSON error document; capture enough to diagnose.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.log.Error("sms rejected by provider",
			zap.String("to", to),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", snippet))
		return fmt.Errorf("sms: provider returned status %d", resp.StatusCode)
	}

	var created struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&created); err != nil {
		// Delivery was accepted; a malformed body only costs us the SID.
		s.log.Warn("could not decode provider response", zap.Error(err))
	}

	s.log.Info("sms sent",
		zap.String("to", to),
		zap.String("message_sid", created.SID),
		zap.Int("body_len", len(body)))
	return nil
}
