// Package timeouts provides the timeout tiers used for database and
// outbound-provider operations. Handlers and stores pick a tier instead of
// scattering literal durations.
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default tier values (used unless Configure or the environment overrides them).
const (
	DefaultPing   = 2 * time.Second  // health-check pings
	DefaultShort  = 5 * time.Second  // single-document reads and writes
	DefaultMedium = 10 * time.Second // outbound provider calls
	DefaultBatch  = 60 * time.Second // background sweeps over a collection
)

// mu protects the tier values from concurrent access.
var mu sync.RWMutex

var (
	ping   = DefaultPing
	short  = DefaultShort
	medium = DefaultMedium
	batch  = DefaultBatch
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for single-document store operations.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the timeout for outbound provider calls.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Batch returns the timeout for background collection sweeps.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config holds tier override values. Zero fields leave the tier unchanged.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Batch  time.Duration
}

// Configure applies tier overrides.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Batch > 0 {
		batch = cfg.Batch
	}
}

// Reset restores all tiers to their defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	medium = DefaultMedium
	batch = DefaultBatch
}

// Current returns the tier values in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:   ping,
		Short:  short,
		Medium: medium,
		Batch:  batch,
	}
}

// ConfigureFromEnv applies tier overrides from TIMEOUT_* environment
// variables (Go duration syntax, e.g. "3s"). It returns the number of tiers
// overridden; unparseable or non-positive values are ignored.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	configured := 0

	apply := func(env string, dst *time.Duration) {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
				configured++
			}
		}
	}
	apply("TIMEOUT_PING", &ping)
	apply("TIMEOUT_SHORT", &short)
	apply("TIMEOUT_MEDIUM", &medium)
	apply("TIMEOUT_BATCH", &batch)

	return configured
}

// WithTimeout creates a context with the given timeout. The returned cancel
// function logs a warning if the deadline was hit before it was cancelled.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
