package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("429"), 429), true},
		{"wrapped explicit", fmt.Errorf("search: %w", NewTransientError(errors.New("503"), 503)), true},
		{"timeout", &net.DNSError{IsTimeout: true}, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"message", errors.New("read tcp: connection reset by peer"), true},
		{"permanent", errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 5, Base: time.Hour, Max: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("busy"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("busy"), 429)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestPolicy_WithAttempts(t *testing.T) {
	p := DefaultPolicy("jina").WithAttempts(0)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, 4, DefaultPolicy("jina").WithAttempts(4).Attempts)
}

func TestPolicy_BackoffCapped(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 300 * time.Millisecond}.normalized()
	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.backoff(5))
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Now()
	b := NewBreaker("ollama", 2, time.Minute)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func(context.Context) (int, error) { return 0, errors.New("down") }
	ok := func(context.Context) (int, error) { return 1, nil }

	_, err := Call(ctx, b, fail)
	require.Error(t, err)
	assert.Equal(t, Closed, b.State())

	_, err = Call(ctx, b, fail)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())

	calls := 0
	_, err = Call(ctx, b, func(context.Context) (int, error) { calls++; return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls, "open breaker must not call through")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("search", 1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func(context.Context) (int, error) { return 0, errors.New("down") }

	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Open, b.State())

	now = now.Add(2 * time.Second)
	_, err := Call(ctx, b, fail)
	assert.EqualError(t, err, "down")
	assert.Equal(t, Open, b.State())
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	b := NewBreaker("x", 1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
