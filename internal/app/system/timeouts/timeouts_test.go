package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	Reset()

	if got := Ping(); got != DefaultPing {
		t.Errorf("Ping() = %v, want %v", got, DefaultPing)
	}
	if got := Short(); got != DefaultShort {
		t.Errorf("Short() = %v, want %v", got, DefaultShort)
	}
	if got := Medium(); got != DefaultMedium {
		t.Errorf("Medium() = %v, want %v", got, DefaultMedium)
	}
	if got := Batch(); got != DefaultBatch {
		t.Errorf("Batch() = %v, want %v", got, DefaultBatch)
	}
}

func TestConfigure(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Short: 3 * time.Second, Batch: 2 * time.Minute})

	if got := Short(); got != 3*time.Second {
		t.Errorf("Short() after Configure = %v, want 3s", got)
	}
	if got := Batch(); got != 2*time.Minute {
		t.Errorf("Batch() after Configure = %v, want 2m", got)
	}
	// Zero fields leave the tier unchanged.
	if got := Ping(); got != DefaultPing {
		t.Errorf("Ping() after partial Configure = %v, want %v", got, DefaultPing)
	}

	cur := Current()
	if cur.Short != 3*time.Second || cur.Medium != DefaultMedium {
		t.Errorf("Current() = %+v", cur)
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Cleanup(Reset)

	t.Setenv("TIMEOUT_SHORT", "7s")
	t.Setenv("TIMEOUT_MEDIUM", "not-a-duration")
	t.Setenv("TIMEOUT_BATCH", "-5s")

	if n := ConfigureFromEnv(); n != 1 {
		t.Errorf("ConfigureFromEnv() = %d, want 1", n)
	}
	if got := Short(); got != 7*time.Second {
		t.Errorf("Short() after env = %v, want 7s", got)
	}
	if got := Medium(); got != DefaultMedium {
		t.Errorf("Medium() should ignore unparseable value, got %v", got)
	}
	if got := Batch(); got != DefaultBatch {
		t.Errorf("Batch() should ignore non-positive value, got %v", got)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Minute, zap.NewNop(), "test op")
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("WithTimeout() context has no deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Errorf("deadline %v out of range", until)
	}
}

func TestWithTimeout_ExpiredLogsAndCancels(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Nanosecond, zap.NewNop(), "expired op")
	<-ctx.Done()
	cancel()

	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}
