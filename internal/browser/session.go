package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"nft/seller/internal/domain"
)

type Options struct {
	Policy          RetryPolicy
	PageLoadTimeout time.Duration
	// WindowTimeout bounds window-count waits; 0 waits forever.
	WindowTimeout time.Duration
	Escalator     Escalator
}

// Session is the single point of contact with the remote browser. Every lookup
// goes through the same bounded poll-retry.
type Session struct {
	driver          Driver
	policy          RetryPolicy
	pageLoadTimeout time.Duration
	windowTimeout   time.Duration
	escalator       Escalator
}

func NewSession(driver Driver, opts Options) *Session {
	return &Session{
		driver:          driver,
		policy:          opts.Policy,
		pageLoadTimeout: opts.PageLoadTimeout,
		windowTimeout:   opts.WindowTimeout,
		escalator:       opts.Escalator,
	}
}

// Navigate loads url once, bounded by the page load timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if s.pageLoadTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.pageLoadTimeout)
		defer cancel()
	}

	if err := s.driver.Navigate(navCtx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrNavigation, url, err)
	}
	return nil
}

// Open navigates to url, retrying failed loads under the session policy.
func (s *Session) Open(ctx context.Context, url string) error {
	return s.retry(ctx, "page "+url, domain.ErrNavigation, func() error {
		return s.Navigate(ctx, url)
	})
}

// FindFirst polls until one of selectors matches or timeout elapses. Within a
// tick selectors are tried in priority order and the first hit wins.
func (s *Session) FindFirst(ctx context.Context, selectors []Selector, timeout time.Duration) (Element, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("%w: no selectors given", domain.ErrNotFound)
	}

	deadline := time.Now().Add(timeout)
	var lastErr error

	for {
		for _, sel := range selectors {
			el, ok, err := s.driver.Query(ctx, sel)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				lastErr = err
				continue
			}
			if ok {
				return el, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(s.policy.PollInterval, remaining)); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s within %s (last error: %v)", domain.ErrNotFound, describe(selectors), timeout, lastErr)
	}
	return nil, fmt.Errorf("%w: %s within %s", domain.ErrNotFound, describe(selectors), timeout)
}

// Locate runs FindFirst under the session retry policy. name is only used for
// logging and errors.
func (s *Session) Locate(ctx context.Context, name string, selectors ...Selector) (Element, error) {
	var el Element
	err := s.retry(ctx, name, domain.ErrNotFound, func() error {
		found, err := s.FindFirst(ctx, selectors, s.policy.Timeout)
		if err != nil {
			return err
		}
		el = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return el, nil
}

// retry repeats fn while it fails with transient, following the policy's
// attempt bound and exhaustion behaviour.
func (s *Session) retry(ctx context.Context, name string, transient error, fn func() error) error {
	attempts, round := 0, 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, transient) {
			return err
		}

		attempts++
		round++
		log.Warnf("⚠️ Failed to get %s (attempt %d): %v", name, attempts, err)

		if s.policy.MaxAttempts > 0 && round >= s.policy.MaxAttempts {
			if s.policy.OnExhaustion == ExhaustionEscalate && s.escalator != nil {
				again, escErr := s.escalator.Escalate(ctx, name, attempts, err)
				if escErr != nil {
					return fmt.Errorf("escalate %s: %w", name, escErr)
				}
				if again {
					log.Infof("🔄 Operator asked to keep trying %s", name)
					round = 0
					continue
				}
			}
			return fmt.Errorf("gave up on %s after %d attempts: %w", name, attempts, err)
		}

		if err := sleep(ctx, s.policy.RetryDelay); err != nil {
			return err
		}
	}
}

func (s *Session) Click(ctx context.Context, el Element, name string) error {
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("%w: click %s: %v", domain.ErrInteraction, name, err)
	}
	return nil
}

func (s *Session) SendKeys(ctx context.Context, el Element, name, text string) error {
	if err := el.SendKeys(ctx, text); err != nil {
		return fmt.Errorf("%w: type into %s: %v", domain.ErrInteraction, name, err)
	}
	return nil
}

func (s *Session) Attribute(ctx context.Context, el Element, name, attr string) (string, bool, error) {
	val, ok, err := el.Attribute(ctx, attr)
	if err != nil {
		return "", false, fmt.Errorf("%w: read %s of %s: %v", domain.ErrInteraction, attr, name, err)
	}
	return val, ok, nil
}

func (s *Session) Active() WindowID {
	return s.driver.Active()
}

func (s *Session) SwitchWindow(ctx context.Context, id WindowID) error {
	if err := s.driver.SwitchTo(ctx, id); err != nil {
		return fmt.Errorf("%w: switch to window %s: %v", domain.ErrInteraction, id, err)
	}
	return nil
}

// AwaitWindows polls the window set once per poll interval until done accepts
// it. Enumeration errors are logged and polled again.
func (s *Session) AwaitWindows(ctx context.Context, what string, done func([]WindowID) bool) ([]WindowID, error) {
	started := time.Now()
	for {
		windows, err := s.driver.Windows(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warnf("⚠️ Failed to list windows while waiting for %s: %v", what, err)
		case done(windows):
			return windows, nil
		}

		if s.windowTimeout > 0 && time.Since(started) >= s.windowTimeout {
			return nil, fmt.Errorf("%w: %s did not happen within %s", domain.ErrNotFound, what, s.windowTimeout)
		}
		if err := sleep(ctx, s.policy.PollInterval); err != nil {
			return nil, err
		}
	}
}

// Close releases the browser connection.
func (s *Session) Close() error {
	return s.driver.Close()
}
