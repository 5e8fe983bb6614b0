package inference

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

// AnthropicGenerator generates text with the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicGenerator creates a generator for model. maxTokens is used when
// a Request does not set its own.
func NewAnthropicGenerator(client anthropic.Client, model string, maxTokens int) *AnthropicGenerator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicGenerator{client: client, model: model, maxTokens: maxTokens}
}

func (g *AnthropicGenerator) request(req Request) anthropic.MessageRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	temp := req.Temperature
	return anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   int64(maxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
}

// Generate returns the full completion for req.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.CreateMessage(ctx, g.request(req))
	if err != nil {
		return "", eris.Wrap(err, "inference: anthropic generate")
	}
	resp.Usage.Log(g.model, req.Purpose)
	return resp.Text, nil
}

// Stream forwards text deltas from the streaming Messages API.
func (g *AnthropicGenerator) Stream(ctx context.Context, req Request) <-chan Chunk {
	return stream(ctx, func(ctx context.Context, onText func(string)) error {
		resp, err := g.client.StreamMessage(ctx, g.request(req), onText)
		if err != nil {
			return eris.Wrap(err, "inference: anthropic stream")
		}
		resp.Usage.Log(g.model, req.Purpose)
		return nil
	})
}
