// Package oracle wraps the single LLM text-generation capability
// consumed by the segmentation core: a stateless prompt-in,
// completion-out function, guarded by a shared rate limiter, an
// in-flight concurrency cap, a per-call timeout, and a retry policy
// that distinguishes transient failures from permanent ones.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Oracle is the capability the caller supplies to the core. A single
// call is stateless: the oracle must not assume anything about prior
// calls.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrOracleUnavailable is returned once the retry budget for a call
// is exhausted.
var ErrOracleUnavailable = errors.New("oracle: unavailable after retries")

// ErrPermanent wraps an oracle error that must not be retried (a 4xx
// other than 429).
type ErrPermanent struct {
	Err error
}

func (e *ErrPermanent) Error() string { return e.Err.Error() }
func (e *ErrPermanent) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return &ErrPermanent{Err: err}
}

// Config controls the rate limiter, concurrency cap, retry budget and
// per-call timeout that wrap every oracle call. Zero values are
// replaced with working defaults in NewLimited.
type Config struct {
	RPM            int           // default 60
	MaxInFlight    int64         // default 5
	MaxAttempts    int           // default 5
	PerCallTimeout time.Duration // default 30s
	BaseBackoff    time.Duration // default 200ms
	MaxBackoff     time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.RPM <= 0 {
		c.RPM = 60
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	return c
}

// Limited wraps an Oracle with the shared rate limiter, concurrency
// cap, retry-with-full-jitter-backoff, and per-call timeout. A single
// Limited instance is meant to be shared across every component
// (Pattern Manager, AI Scorer, Topic Change Detector) within one
// Runner, and may also be shared across concurrent runs on different
// files: it is the one long-lived mutable collaborator in the system.
type Limited struct {
	inner Oracle
	cfg   Config

	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
	rng      *rand.Rand
}

// NewLimited builds a Limited oracle around inner.
func NewLimited(inner Oracle, cfg Config) *Limited {
	cfg = cfg.withDefaults()

	return &Limited{
		inner:    inner,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), cfg.RPM),
		inFlight: semaphore.NewWeighted(cfg.MaxInFlight),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Complete issues prompt through the wrapped oracle, applying the rate
// limiter, concurrency cap, per-call timeout and retry policy. It
// returns ErrOracleUnavailable once MaxAttempts transient failures have
// been observed, or the first permanent failure immediately.
func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < l.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := l.sleepBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		out, err := l.attempt(ctx, prompt)
		if err == nil {
			return out, nil
		}

		var perm *ErrPermanent
		if errors.As(err, &perm) {
			return "", fmt.Errorf("oracle: permanent failure: %w", perm.Unwrap())
		}
		// Only the caller's own context ending stops the loop; a
		// per-call timeout is transient and retried.
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return "", err
		}

		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

// attempt runs a single rate-limited, concurrency-capped, timed call.
func (l *Limited) attempt(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	if err := l.inFlight.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("concurrency cap: %w", err)
	}
	defer l.inFlight.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.PerCallTimeout)
	defer cancel()

	out, err := l.inner.Complete(callCtx, prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("oracle call timed out after %v: %w", l.cfg.PerCallTimeout, err)
		}
		return "", classify(err)
	}

	return out, nil
}

// classify wraps a raw transport error so HTTP 4xx responses other
// than 429 (rate-limited) are treated as permanent. Only errors that
// expose a StatusCode() int method are inspected; the errors
// foundation/client returns for non-2xx responses carry the status in
// their message text only, so HTTPClient failures are all retried as
// transient.
func classify(err error) error {
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode()
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return Permanent(err)
		}
	}
	return err
}

// sleepBackoff waits with exponential backoff and full jitter before
// retry attempt N (attempt is 1-based here since attempt 0 never waits).
func (l *Limited) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := l.cfg.BaseBackoff << uint(attempt-1)
	if backoff > l.cfg.MaxBackoff || backoff <= 0 {
		backoff = l.cfg.MaxBackoff
	}

	jittered := time.Duration(l.rng.Int63n(int64(backoff) + 1))

	select {
	case <-time.After(jittered):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
