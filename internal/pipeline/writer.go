package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
)

const (
	summarySystem = "You are a B2B analyst. Generate a bullet list of 3-5 points about customer experience " +
		"opportunities and challenges for the company. Focus on actionable insights. " +
		"Output ONLY bullet points starting with '• '. No headers or other text."

	outreachSystem = "You are a professional SDR at Lucidya, a CX analytics company. Write clear, concise emails. " +
		"Always sign as 'The Lucidya Team'. Keep it professional and focused on value. " +
		"Never make guarantees or unverifiable claims."

	signature = "Best regards,\nThe Lucidya Team"
)

var fallbackBullets = []string{
	"• Customer experience analytics could provide valuable insights\n",
	"• Opportunity to improve response times and satisfaction scores\n",
	"• Multi-channel support integration would benefit operations\n",
	"• Real-time monitoring could help identify issues faster\n",
	"• Automated reporting would save time for CX teams\n",
}

// Writer chunk kinds.
const (
	ChunkSummary = "summary"
	ChunkEmail   = "email"
)

// WriterChunk is one element of the Writer's output stream. The final chunk
// has Done set and carries the finalized record, or Err when the record could
// not be finalized.
type WriterChunk struct {
	Kind     string
	Text     string
	Done     bool
	Record   *model.Record
	Fallback bool
	Err      error
}

// Writer drafts the internal summary and outreach email from retrieved
// context, streaming tokens as they are generated.
type Writer struct {
	gen      inference.Generator
	embedder inference.Embedder
	index    retrieval.Backend
	set      Settings
}

// NewWriter creates a Writer.
func NewWriter(gen inference.Generator, emb inference.Embedder, index retrieval.Backend, set Settings) *Writer {
	return &Writer{gen: gen, embedder: emb, index: index, set: set}
}

// Name implements Stage.
func (w *Writer) Name() string { return model.StageWriter }

// Run implements Stage, forwarding every token as a token event.
func (w *Writer) Run(ctx context.Context, r *model.Record, emit Emit) (map[string]any, error) {
	for c := range w.Stream(ctx, r) {
		if !c.Done {
			emit(model.EventToken, c.Text, map[string]any{"type": c.Kind, "token": c.Text})
			continue
		}
		if c.Err != nil {
			return nil, c.Err
		}
		return map[string]any{
			"has_summary": r.Summary != "",
			"has_email":   r.Draft != nil,
			"subject":     r.Draft.Subject,
			"fallback":    c.Fallback,
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "writer: stream interrupted")
	}
	return nil, eris.New("writer: stream ended without completion")
}

// Stream drafts the record and returns the ordered token sequence followed
// by exactly one Done chunk. The record is modified by the producer and must
// not be read by the caller before the Done chunk arrives. If ctx is
// cancelled the channel closes without a Done chunk.
func (w *Writer) Stream(ctx context.Context, r *model.Record) <-chan WriterChunk {
	ch := make(chan WriterChunk)
	go func() {
		defer close(ch)
		send := func(c WriterChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		log := zap.L().With(zap.String("record_id", r.ID), zap.String("stage", model.StageWriter))

		snippets := w.retrieve(ctx, r)
		brief := companyBrief(r, snippets)

		summary, summaryFallback, ok := w.streamPart(ctx, ChunkSummary, inference.Request{
			System:      summarySystem,
			Prompt:      brief + "\nGenerate the bullet points now:",
			MaxTokens:   w.set.MaxTokens,
			Temperature: 0.3,
			Purpose:     "summary",
		}, send)
		if !ok {
			return
		}
		if summaryFallback {
			log.Warn("writer: summary generation failed, using fallback")
			summary = ""
			for _, b := range fallbackBullets {
				if !send(WriterChunk{Kind: ChunkSummary, Text: b}) {
					return
				}
				summary += b
			}
		}

		emailText, emailFallback, ok := w.streamPart(ctx, ChunkEmail, inference.Request{
			System:      outreachSystem,
			Prompt:      emailPrompt(r, brief),
			MaxTokens:   w.set.MaxTokens,
			Temperature: w.set.Temperature,
			Purpose:     "outreach",
		}, send)
		if !ok {
			return
		}

		draft, parsed := parseDraft(emailText)
		if emailFallback || !parsed {
			log.Warn("writer: email generation unusable, using template",
				zap.Bool("stream_failed", emailFallback),
				zap.Int("chars", len(emailText)),
			)
			draft = templateDraft(r)
		}

		r.Summary = strings.TrimSpace(summary)
		r.Draft = &draft
		done := WriterChunk{Done: true, Record: r, Fallback: summaryFallback || emailFallback || !parsed}
		if err := r.Advance(model.StatusDrafted); err != nil {
			done = WriterChunk{Done: true, Err: eris.Wrap(err, "writer: finalize draft")}
		}
		send(done)
	}()
	return ch
}

// streamPart forwards one generation stream. failed reports that the stream
// ended with an error or produced no text; ok is false when the consumer
// went away.
func (w *Writer) streamPart(ctx context.Context, kind string, req inference.Request, send func(WriterChunk) bool) (text string, failed, ok bool) {
	var b strings.Builder
	for c := range w.gen.Stream(ctx, req) {
		if c.Done {
			if c.Err != nil {
				zap.L().Warn("writer: generation stream failed",
					zap.String("part", kind),
					zap.Int("chars", b.Len()),
					zap.Error(c.Err),
				)
				return b.String(), true, ctx.Err() == nil
			}
			break
		}
		if !send(WriterChunk{Kind: kind, Text: c.Text}) {
			return b.String(), true, false
		}
		b.WriteString(c.Text)
	}
	if ctx.Err() != nil {
		return b.String(), true, false
	}
	return b.String(), strings.TrimSpace(b.String()) == "", true
}

// retrieve returns the top snippets across the company's live and seed
// namespaces. Retrieval problems yield no snippets.
func (w *Writer) retrieve(ctx context.Context, r *model.Record) []retrieval.Hit {
	if w.index == nil || w.embedder == nil {
		return nil
	}
	c := r.Company
	query := fmt.Sprintf("%s %s customer experience challenges", c.Name, c.Industry)
	vec, err := inference.EmbedOne(ctx, w.embedder, query)
	if err != nil {
		zap.L().Warn("writer: embed query failed", zap.String("record_id", r.ID), zap.Error(err))
		return nil
	}
	namespaces := []string{
		retrieval.Namespace(c.Domain, retrieval.ModeLive),
		retrieval.Namespace(c.Domain, retrieval.ModeSeed),
	}
	hits, err := retrieval.MergeSearch(ctx, w.index, namespaces, vec, w.set.TopK)
	if err != nil {
		zap.L().Warn("writer: retrieval failed", zap.String("record_id", r.ID), zap.Error(err))
		return nil
	}
	return hits
}

func companyBrief(r *model.Record, snippets []retrieval.Hit) string {
	c := r.Company
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nIndustry: %s\nSize: %d employees\nDomain: %s\n", c.Name, c.Industry, c.Size, c.Domain)
	if len(c.Pains) > 0 {
		b.WriteString("\nPain Points:\n")
		for _, p := range c.Pains {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(snippets) > 0 {
		b.WriteString("\nKey Facts:\n")
		for _, h := range snippets {
			fmt.Fprintf(&b, "- %s (relevance: %.2f)\n", h.Text, h.Score)
		}
	}
	return b.String()
}

// greeting addresses the first known contact by first name.
func greeting(r *model.Record) string {
	if len(r.Contacts) > 0 {
		if f := strings.Fields(r.Contacts[0].Name); len(f) > 0 {
			return "Hi " + f[0] + ","
		}
	}
	return "Hi there,"
}

func emailPrompt(r *model.Record, brief string) string {
	recipient := "the head of customer experience"
	if len(r.Contacts) > 0 {
		recipient = fmt.Sprintf("%s (%s)", r.Contacts[0].Name, r.Contacts[0].Title)
	}
	return fmt.Sprintf(`%s
Write a personalized outreach email to %s.
Requirements:
- Subject line (brief and compelling)
- Body: 120-180 words, starting with the greeting "%s"
- Professional but friendly tone
- Focus on their specific industry challenges
- One clear call-to-action
- No exaggerated claims
- End with "%s"

Format response as:
Subject: [subject line]
Body: [email body]`, brief, recipient, greeting(r), signature)
}

// parseDraft splits generated text on the Subject: and Body: markers.
func parseDraft(text string) (model.EmailDraft, bool) {
	si := strings.Index(text, "Subject:")
	bi := strings.Index(text, "Body:")
	if si < 0 || bi < 0 || bi < si {
		return model.EmailDraft{}, false
	}
	subject := strings.TrimSpace(text[si+len("Subject:") : bi])
	body := strings.TrimSpace(text[bi+len("Body:"):])
	if subject == "" || body == "" {
		return model.EmailDraft{}, false
	}
	return model.EmailDraft{Subject: subject, Body: body}, true
}

// templateDraft is the deterministic email used when generation fails.
func templateDraft(r *model.Record) model.EmailDraft {
	c := r.Company
	industry := c.Industry
	if industry == "" {
		industry = "growing"
	}
	body := fmt.Sprintf(`%s

At Lucidya, we help %s companies understand and improve their customer experience through analytics.

We see a few areas where %s could benefit:

- Real-time sentiment analysis across customer touchpoints
- Automated insights to reduce response times and lift satisfaction
- A unified dashboard for customer experience metrics

Would you be open to a short conversation about %s's CX priorities?

%s`, greeting(r), industry, c.Name, c.Name, signature)
	return model.EmailDraft{
		Subject: fmt.Sprintf("Improve %s's Customer Experience", c.Name),
		Body:    body,
	}
}
