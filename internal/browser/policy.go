package browser

import (
	"context"
	"fmt"
	"time"
)

// Exhaustion decides what happens once a lookup ran out of attempts.
type Exhaustion string

const (
	ExhaustionFail     Exhaustion = "fail"
	ExhaustionEscalate Exhaustion = "escalate"
)

// RetryPolicy is shared by every lookup the listing workflow performs.
type RetryPolicy struct {
	// MaxAttempts bounds FindFirst rounds per lookup; 0 retries forever.
	MaxAttempts  int           `mapstructure:"max_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Timeout is the wait window of a single FindFirst round.
	Timeout      time.Duration `mapstructure:"lookup_timeout"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	OnExhaustion Exhaustion    `mapstructure:"on_exhaustion"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  10,
		PollInterval: time.Second,
		Timeout:      10 * time.Second,
		RetryDelay:   2 * time.Second,
		OnExhaustion: ExhaustionEscalate,
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", p.MaxAttempts)
	}
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", p.PollInterval)
	}
	if p.Timeout < 0 || p.RetryDelay < 0 {
		return fmt.Errorf("lookup_timeout and retry_delay must not be negative")
	}
	switch p.OnExhaustion {
	case ExhaustionFail, ExhaustionEscalate:
	default:
		return fmt.Errorf("on_exhaustion must be %q or %q, got %q", ExhaustionFail, ExhaustionEscalate, p.OnExhaustion)
	}
	return nil
}

// Escalator hands an exhausted lookup to the operator. Returning true grants
// another round of MaxAttempts.
type Escalator interface {
	Escalate(ctx context.Context, what string, attempts int, cause error) (bool, error)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
