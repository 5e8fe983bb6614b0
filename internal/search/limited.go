package search

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limited throttles an inner Searcher and bounds each query with a timeout.
type Limited struct {
	inner   Searcher
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited wraps s. rps <= 0 disables throttling; timeout <= 0 disables the
// per-query deadline.
func NewLimited(s Searcher, rps float64, timeout time.Duration) *Limited {
	l := &Limited{inner: s, timeout: timeout}
	if rps > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return l
}

// Query waits for a token, then calls the inner searcher.
func (l *Limited) Query(ctx context.Context, text string) ([]Result, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: rate limit")
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.inner.Query(ctx, text)
}
