package inference

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

// Guarded wraps a Generator with a circuit breaker so a failing backend is
// skipped for the cooldown instead of being called for every record.
type Guarded struct {
	inner   Generator
	breaker *resilience.Breaker
}

// NewGuarded returns g protected by b.
func NewGuarded(g Generator, b *resilience.Breaker) *Guarded {
	return &Guarded{inner: g, breaker: b}
}

// Generate calls the inner generator through the breaker.
func (g *Guarded) Generate(ctx context.Context, req Request) (string, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, req)
	})
}

// Stream forwards the inner stream and records its completion error with the
// breaker. An open breaker yields a single Done chunk with ErrOpen.
func (g *Guarded) Stream(ctx context.Context, req Request) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		_, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (struct{}, error) {
			for c := range g.inner.Stream(ctx, req) {
				if c.Done {
					return struct{}{}, c.Err
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return struct{}{}, ctx.Err()
				}
			}
			return struct{}{}, nil
		})
		select {
		case out <- Chunk{Done: true, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}
