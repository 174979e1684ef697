// Package retry implements the Error/Retry Envelope: exponential
// backoff with jitter around LLM, VectorBackend, and WebBackend calls.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ragengine/internal/engerr"
	"ragengine/internal/obslog"
)

// Config holds the envelope's tunables.
type Config struct {
	Base       time.Duration
	Max        time.Duration
	Factor     float64
	MaxRetries int
	JitterMin  float64
	JitterMax  float64
}

// DefaultConfig: base 1s, max 10s, factor 2, 3 retries, jitter in [0.5,1.5].
func DefaultConfig() Config {
	return Config{
		Base:       1 * time.Second,
		Max:        10 * time.Second,
		Factor:     2.0,
		MaxRetries: 3,
		JitterMin:  0.5,
		JitterMax:  1.5,
	}
}

// Result holds an ok flag and a message. Do does not return it: on
// exhaustion Do returns an error, and the caller decides on a fallback.
type Result struct {
	OK      bool
	Message string
}

// Do runs fn under the envelope. A non-retryable error (per
// engerr.Retryable) stops the envelope without consuming a retry
// attempt. InvalidInput and ParseError errors are returned unchanged;
// every other failure (exhaustion of MaxRetries, a Cancelled error, a
// cancelled ctx) is returned wrapped as engerr.Timeout, and the caller
// inspects it via Classify.
func Do[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	operation := func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !engerr.Retryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.Base
	bo.MaxInterval = cfg.Max
	bo.Multiplier = cfg.Factor
	bo.RandomizationFactor = jitterSpread(cfg)

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
	)
	if err != nil {
		obslog.FromContext(ctx).Error().Err(err).Str("op", op).Msg("retry_exhausted")
		if engerr.Is(err, engerr.InvalidInput) || engerr.Is(err, engerr.ParseError) {
			return zero, err
		}
		return zero, engerr.New(engerr.Timeout, op, err)
	}
	return v, nil
}

// jitterSpread converts the [JitterMin, JitterMax] multiplicative
// jitter window into backoff/v5's symmetric randomization factor, which
// applies jitter as interval * (1 +/- factor).
func jitterSpread(cfg Config) float64 {
	if cfg.JitterMax <= cfg.JitterMin {
		return 0.5
	}
	return (cfg.JitterMax - 1)
}

// Classify reports the Kind of a retry-envelope error, defaulting to
// Internal.
func Classify(err error) engerr.Kind {
	if k, ok := engerr.Of(err); ok {
		return k
	}
	return engerr.Internal
}

// jitterFraction picks a uniform multiplier in [min,max) purely for tests
// that want to assert the jitter window without depending on backoff/v5
// internals.
func jitterFraction(min, max float64, r *rand.Rand) float64 {
	if max <= min {
		return min
	}
	return min + r.Float64()*(max-min)
}
