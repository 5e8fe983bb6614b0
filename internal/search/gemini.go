package search

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

// contentGenerator is the part of genai.Models used for grounded search.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini answers queries with Gemini grounded on Google Search. Each grounding
// support becomes one Result carrying its source URI and confidence.
type Gemini struct {
	models contentGenerator
	model  string
	retry  resilience.Policy
}

// GeminiConfig configures NewGemini.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Retry   resilience.Policy
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("search: gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "search: create gemini client")
	}
	return newGemini(client.Models, cfg.Model, cfg.Retry), nil
}

func newGemini(models contentGenerator, model string, retry resilience.Policy) *Gemini {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if retry.Name == "" {
		retry.Name = "gemini"
	}
	return &Gemini{models: models, model: model, retry: retry}
}

func buildPrompt(query string) string {
	return "Search the web and report concise, factual findings about: " + query +
		"\nAnswer in short sentences. Do not speculate."
}

// Query runs a grounded generation for text.
func (g *Gemini) Query(ctx context.Context, text string) ([]Result, error) {
	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		r, err := g.models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(text)), &genai.GenerateContentConfig{
			Tools:          []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			CandidateCount: 1,
		})
		if err != nil {
			return nil, classifyErr(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "search: gemini query %q", text)
	}
	return groundedResults(resp), nil
}

// groundedResults maps grounding supports to results. A response without
// grounding metadata yields its text as a single result.
func groundedResults(resp *genai.GenerateContentResponse) []Result {
	out := []Result{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil || len(meta.GroundingSupports) == 0 {
		if t := Snippet(resp.Text()); t != "" {
			out = append(out, Result{Text: t, Source: "gemini", Confidence: DefaultConfidence})
		}
		return out
	}

	seen := make(map[string]struct{})
	for _, s := range meta.GroundingSupports {
		if s == nil || s.Segment == nil {
			continue
		}
		text := Snippet(s.Segment.Text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		r := Result{Text: text, Source: "gemini", Confidence: DefaultConfidence}
		if len(s.GroundingChunkIndices) > 0 {
			idx := int(s.GroundingChunkIndices[0])
			if idx >= 0 && idx < len(meta.GroundingChunks) {
				if c := meta.GroundingChunks[idx]; c != nil && c.Web != nil && c.Web.URI != "" {
					r.Source = c.Web.URI
				}
			}
		}
		if len(s.ConfidenceScores) > 0 {
			r.Confidence = float64(s.ConfidenceScores[0])
		}
		out = append(out, r)
	}
	return out
}

// classifyErr marks rate limits, server errors and temporary network
// failures as transient.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if resilience.IsTransientHTTPStatus(apiErr.Code) {
			return resilience.NewTransientError(err, apiErr.Code)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
