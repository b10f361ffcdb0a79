package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// RetryPolicy decides how often and how long a write is retried when sqlite reports contention.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// Multiplier grows the delay after every failed attempt.
	Multiplier float64
}

// DefaultRetryPolicy returns 3 attempts waiting 100ms, then 200ms.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
	}
}

// Delay returns the wait after the given zero-based failed attempt: base * multiplier^attempt.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt)))
}

// Do runs op until it succeeds, fails with an error that isn't contention,
// or the attempts are exhausted.
func (p *RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := range attempts {
		if err = op(); err == nil {
			if attempt > 0 {
				log.Debug("write succeeded after retry", "operation", name, "attempt", attempt+1)
			}
			return nil
		}
		if !IsBusyError(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.Delay(attempt)
		log.Debug("database busy, retrying", "operation", name, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	log.Warn("database busy, giving up", "operation", name, "attempts", attempts, "error", err)
	return fmt.Errorf("max retries exceeded (%d attempts): %w", attempts, err)
}

// IsBusyError reports whether err is sqlite's transient lock contention.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sqlite_locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
