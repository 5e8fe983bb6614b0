package inference

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// contentModel is the part of llms.Model the Ollama generator uses.
type contentModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OllamaGenerator generates text with a local Ollama model via langchaingo.
type OllamaGenerator struct {
	llm       contentModel
	model     string
	maxTokens int
}

// NewOllama connects a langchaingo Ollama client for model at serverURL.
// The same client serves generation and embeddings.
func NewOllama(serverURL, model string, hc *http.Client) (*ollama.LLM, error) {
	opts := []ollama.Option{ollama.WithServerURL(serverURL), ollama.WithModel(model)}
	if hc != nil {
		opts = append(opts, ollama.WithHTTPClient(hc))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "inference: connect ollama %s", serverURL)
	}
	return llm, nil
}

// NewOllamaGenerator wraps an Ollama model.
func NewOllamaGenerator(llm contentModel, model string, maxTokens int) *OllamaGenerator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OllamaGenerator{llm: llm, model: model, maxTokens: maxTokens}
}

func (g *OllamaGenerator) call(ctx context.Context, req Request, extra ...llms.CallOption) (string, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	opts := append([]llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(maxTokens),
	}, extra...)

	resp, err := g.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("inference: ollama returned no choices")
	}
	zap.L().Debug("inference: ollama complete",
		zap.String("model", g.model),
		zap.String("purpose", req.Purpose),
		zap.String("stop_reason", resp.Choices[0].StopReason),
	)
	return resp.Choices[0].Content, nil
}

// Generate returns the full completion for req.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	out, err := g.call(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "inference: ollama generate")
	}
	return out, nil
}

// Stream forwards chunks from langchaingo's streaming callback.
func (g *OllamaGenerator) Stream(ctx context.Context, req Request) <-chan Chunk {
	return stream(ctx, func(ctx context.Context, onText func(string)) error {
		_, err := g.call(ctx, req, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onText(string(chunk))
			return ctx.Err()
		}))
		if err != nil {
			return eris.Wrap(err, "inference: ollama stream")
		}
		return nil
	})
}

// OllamaEmbedder embeds texts with an Ollama embedding model.
type OllamaEmbedder struct {
	inner embeddings.Embedder
}

// NewOllamaEmbedder builds a langchaingo embedder on top of client.
func NewOllamaEmbedder(client embeddings.EmbedderClient) (*OllamaEmbedder, error) {
	e, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, eris.Wrap(err, "inference: create ollama embedder")
	}
	return &OllamaEmbedder{inner: e}, nil
}

// Embed returns one vector per text.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, eris.Wrap(err, "inference: ollama embed")
	}
	if len(vecs) != len(texts) {
		return nil, eris.Errorf("inference: ollama returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
