package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/model"
)

// RetryConfig holds the backoff used between credentials.
type RetryConfig struct {
	// BackoffBase is the delay after the first failed credential.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the delay after each further failure.
	BackoffMultiplier float64

	// MaxBackoff caps the delay.
	MaxBackoff time.Duration

	// Jitter is the +/- fraction applied to each delay (0.25 = 25%).
	Jitter float64
}

// DefaultRetryConfig returns short, mildly increasing delays.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxBackoff:        3 * time.Second,
		Jitter:            0.25,
	}
}

// AttemptObserver is notified of every upstream attempt. err is nil on success.
type AttemptObserver interface {
	ObserveAttempt(cat model.Category, err error)
}

// Rotator retries one logical request across the credential pool.
// Credentials are tried strictly one after another, never concurrently.
type Rotator struct {
	pool     *model.Pool
	invoker  Invoker
	cfg      RetryConfig
	logger   *slog.Logger
	observer AttemptObserver
	sleep    func(ctx context.Context, d time.Duration) error
}

// RotatorOption configures a Rotator.
type RotatorOption func(*Rotator)

// WithRetryConfig sets the backoff configuration.
func WithRetryConfig(cfg RetryConfig) RotatorOption {
	return func(r *Rotator) {
		r.cfg = cfg
	}
}

// WithRotatorLogger sets the logger.
func WithRotatorLogger(logger *slog.Logger) RotatorOption {
	return func(r *Rotator) {
		r.logger = logger
	}
}

// WithAttemptObserver sets an observer for attempt outcomes.
func WithAttemptObserver(o AttemptObserver) RotatorOption {
	return func(r *Rotator) {
		r.observer = o
	}
}

// NewRotator creates a rotator over pool using invoker for single attempts.
func NewRotator(pool *model.Pool, invoker Invoker, opts ...RotatorOption) *Rotator {
	r := &Rotator{
		pool:    pool,
		invoker: invoker,
		cfg:     DefaultRetryConfig(),
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InvokeWithRotation tries req with each credential in the category's
// preferred order and returns the first success. It returns a *Failure with
// ReasonNoCredential when the pool is empty, and with ReasonUpstream and
// AttemptsExhausted once every credential has failed. It never synthesizes
// fallback content.
func (r *Rotator) InvokeWithRotation(ctx context.Context, req content.Request) (*content.Output, error) {
	cat := req.Category()
	candidates := r.pool.PreferredOrder(cat)
	if len(candidates) == 0 {
		return nil, &Failure{Reason: ReasonNoCredential, Err: fmt.Errorf("%w for %s", ErrNoCredential, cat)}
	}

	var lastErr error
	for i, cand := range candidates {
		out, err := r.invoker.Invoke(ctx, cand, req)
		r.observe(cat, err)
		if err == nil {
			if i > 0 {
				r.logger.Info("Credential rotation succeeded",
					"category", cat,
					"credential_index", cand.Index,
					"attempt", i+1)
			}
			return out, nil
		}
		lastErr = err

		r.logger.Warn("Credential failed, rotating",
			"category", cat,
			"credential_index", cand.Index,
			"attempt", i+1,
			"of", len(candidates),
			"reason", ReasonOf(err),
			"error", err)

		if i == len(candidates)-1 {
			break
		}
		if err := r.sleep(ctx, r.calculateBackoff(i+1)); err != nil {
			return nil, &Failure{Reason: ReasonUpstream, Attempts: i + 1, Err: errors.Join(lastErr, err)}
		}
	}

	return nil, &Failure{
		Reason:            ReasonUpstream,
		AttemptsExhausted: true,
		Attempts:          len(candidates),
		Err:               lastErr,
	}
}

func (r *Rotator) observe(cat model.Category, err error) {
	if r.observer != nil {
		r.observer.ObserveAttempt(cat, err)
	}
}

// calculateBackoff computes the delay after the given number of failures,
// with jitter so concurrent rotations do not retry in lockstep.
func (r *Rotator) calculateBackoff(failures int) time.Duration {
	multiplier := 1.0
	for i := 1; i < failures; i++ {
		multiplier *= r.cfg.BackoffMultiplier
	}

	backoff := time.Duration(float64(r.cfg.BackoffBase) * multiplier)
	if r.cfg.MaxBackoff > 0 && backoff > r.cfg.MaxBackoff {
		backoff = r.cfg.MaxBackoff
	}

	if r.cfg.Jitter > 0 {
		jitter := float64(backoff) * r.cfg.Jitter * (rand.Float64()*2 - 1)
		backoff += time.Duration(jitter)
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
