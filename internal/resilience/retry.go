package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls retry attempts and exponential backoff with jitter.
type Policy struct {
	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int
	// Base is the delay before the first retry. Default: 250ms.
	Base time.Duration
	// Max caps a single delay. Default: 10s.
	Max time.Duration
	// Jitter is the +/- fraction applied to each delay. Default: 0.2.
	Jitter float64
	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
	// Name labels retry log lines.
	Name string
}

// DefaultPolicy returns the policy used by the HTTP-backed collaborators.
func DefaultPolicy(name string) Policy {
	return Policy{Attempts: 3, Base: 250 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2, Name: name}
}

// WithAttempts returns a copy of p with the given total attempt count.
// Values below 1 are treated as 1.
func (p Policy) WithAttempts(n int) Policy {
	if n < 1 {
		n = 1
	}
	p.Attempts = n
	return p
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 250 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 10 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// backoff returns the delay before retry number attempt (0-based).
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(2, float64(attempt))
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts-1 {
			break
		}

		delay := p.backoff(attempt)
		zap.L().Debug("resilience: retrying",
			zap.String("operation", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}
