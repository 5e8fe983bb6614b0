// Package inference defines the text generation and embedding collaborators
// and their Anthropic, Ollama and local implementations.
package inference

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnavailable is returned when no generation backend is configured.
var ErrUnavailable = eris.New("inference: generator unavailable")

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Purpose labels usage logs (summary, outreach).
	Purpose string
}

// Chunk is one element of a token stream. Exactly one chunk with Done set
// ends every stream; Err on that chunk reports a failure after the tokens
// already delivered.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Stream returns an ordered, finite token sequence. The channel is closed
	// after the Done chunk.
	Stream(ctx context.Context, req Request) <-chan Chunk
}

// Embedder maps texts to vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, eris.Errorf("inference: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// Collect drains a stream and returns the concatenated text and the
// completion error.
func Collect(ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for c := range ch {
		if c.Done {
			return b.String(), c.Err
		}
		b.WriteString(c.Text)
	}
	return b.String(), eris.New("inference: stream closed without completion")
}

// stream runs fn in a goroutine, forwarding each text delta as a Chunk and
// finishing with a single Done chunk carrying fn's error.
func stream(ctx context.Context, fn func(ctx context.Context, onText func(string)) error) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		send := func(c Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		cancelled := false
		err := fn(ctx, func(text string) {
			if cancelled || text == "" {
				return
			}
			if !send(Chunk{Text: text}) {
				cancelled = true
			}
		})
		if cancelled && err == nil {
			err = ctx.Err()
		}
		select {
		case ch <- Chunk{Done: true, Err: err}:
		case <-ctx.Done():
		}
	}()
	return ch
}

// Disabled is the Generator used when inference.provider is "none". Every
// call fails with ErrUnavailable so callers take their fallback path.
type Disabled struct{}

// Generate always returns ErrUnavailable.
func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

// Stream emits a single Done chunk carrying ErrUnavailable.
func (Disabled) Stream(context.Context, Request) <-chan Chunk {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Done: true, Err: ErrUnavailable}
	close(ch)
	return ch
}

// CheckEmbedder verifies that e answers with a non-empty vector.
func CheckEmbedder(ctx context.Context, e Embedder) error {
	v, err := EmbedOne(ctx, e, "readiness probe")
	if err != nil {
		return eris.Wrap(err, "inference: embedder not ready")
	}
	if len(v) == 0 {
		return eris.New("inference: embedder returned an empty vector")
	}
	return nil
}

// CheckGenerator verifies that g can produce a token.
func CheckGenerator(ctx context.Context, g Generator) error {
	if _, err := g.Generate(ctx, Request{Prompt: "ping", MaxTokens: 1, Purpose: "probe"}); err != nil {
		return eris.Wrap(err, "inference: generator not ready")
	}
	return nil
}
