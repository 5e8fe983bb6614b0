package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/seed"
)

func scoredRecord() *model.Record {
	r := recordAt(saasCompany(), model.StatusScored)
	r.Contacts = []model.Contact{{ID: "c1", Name: "Ada Chen", Email: "ada.chen@acme.com", Title: "VP Customer Experience", RecordID: r.ID}}
	r.FitScore = 0.8
	return r
}

func TestParseDraft(t *testing.T) {
	d, ok := parseDraft("Subject: Hello Acme\nBody: Hi Ada,\n\nText.")
	require.True(t, ok)
	assert.Equal(t, "Hello Acme", d.Subject)
	assert.Equal(t, "Hi Ada,\n\nText.", d.Body)

	_, ok = parseDraft("Subject: only a subject")
	assert.False(t, ok)
	_, ok = parseDraft("Body: first\nSubject: second")
	assert.False(t, ok)
	_, ok = parseDraft("Subject: \nBody: text")
	assert.False(t, ok)
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Hi Ada,", greeting(scoredRecord()))
	assert.Equal(t, "Hi there,", greeting(recordAt(saasCompany(), model.StatusScored)))
}

func TestWriter_StreamsTokensAndDrafts(t *testing.T) {
	gen := &scriptedGen{scripts: []genScript{
		{tokens: []string{"• Retention is slipping\n", "• NPS trails peers\n"}},
		{tokens: []string{"Subject: Lifting Acme's NPS", "\nBody: Hi Ada,\n\n", "We help CX teams.\n\n", signature}},
	}}
	w := NewWriter(gen, nil, nil, DefaultSettings())
	r := scoredRecord()
	emit, got := recorder()

	payload, err := w.Run(context.Background(), r, emit)
	require.NoError(t, err)

	assert.Equal(t, model.StatusDrafted, r.Status)
	assert.Equal(t, "• Retention is slipping\n• NPS trails peers", r.Summary)
	require.NotNil(t, r.Draft)
	assert.Equal(t, "Lifting Acme's NPS", r.Draft.Subject)
	assert.True(t, strings.HasPrefix(r.Draft.Body, "Hi Ada,"))
	assert.Equal(t, false, payload["fallback"])

	require.Len(t, *got, 6)
	for i, ev := range *got {
		assert.Equal(t, model.EventToken, ev.kind)
		want := ChunkSummary
		if i >= 2 {
			want = ChunkEmail
		}
		assert.Equal(t, want, ev.payload["type"])
		assert.Equal(t, ev.msg, ev.payload["token"])
	}

	reqs := gen.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "summary", reqs[0].Purpose)
	assert.Equal(t, "outreach", reqs[1].Purpose)
	assert.Contains(t, reqs[1].Prompt, "Ada Chen (VP Customer Experience)")
}

func TestWriter_MidStreamFailureFallsBack(t *testing.T) {
	gen := &scriptedGen{scripts: []genScript{
		{tokens: []string{"• Retention\n"}},
		{tokens: []string{"Subject: Hel"}, err: errors.New("connection reset")},
	}}
	r := scoredRecord()

	payload, err := NewWriter(gen, nil, nil, DefaultSettings()).Run(context.Background(), r, func(model.EventKind, string, map[string]any) {})
	require.NoError(t, err)

	assert.Equal(t, model.StatusDrafted, r.Status)
	require.NotNil(t, r.Draft)
	assert.Equal(t, "Improve Acme Analytics's Customer Experience", r.Draft.Subject)
	assert.Contains(t, r.Draft.Body, "Hi Ada,")
	assert.True(t, strings.HasSuffix(r.Draft.Body, signature))
	assert.Equal(t, "• Retention", r.Summary)
	assert.Equal(t, true, payload["fallback"])
}

func TestWriter_DisabledGeneratorUsesFallbacks(t *testing.T) {
	r := scoredRecord()
	emit, got := recorder()

	_, err := NewWriter(inference.Disabled{}, nil, nil, DefaultSettings()).Run(context.Background(), r, emit)
	require.NoError(t, err)

	assert.Equal(t, model.StatusDrafted, r.Status)
	assert.Equal(t, 5, strings.Count(r.Summary, "• "))
	require.NotNil(t, r.Draft)
	assert.NotEmpty(t, r.Draft.Body)
	assert.Len(t, *got, len(fallbackBullets))
}

func TestWriter_UnparseableEmailUsesTemplate(t *testing.T) {
	gen := &scriptedGen{scripts: []genScript{
		{tokens: []string{"• One\n"}},
		{tokens: []string{"I would write something here but forgot the format."}},
	}}
	r := scoredRecord()

	_, err := NewWriter(gen, nil, nil, DefaultSettings()).Run(context.Background(), r, func(model.EventKind, string, map[string]any) {})
	require.NoError(t, err)
	assert.Equal(t, templateDraft(r), *r.Draft)
}

func TestWriter_RetrievesSeedAndLiveContext(t *testing.T) {
	ctx := context.Background()
	index := retrieval.NewMemory()
	emb := inference.NewHashEmbedder(64)
	c := saasCompany()

	_, err := seed.Indexer{Backend: index, Embedder: emb}.IndexCompany(ctx, c, true)
	require.NoError(t, err)

	gen := &scriptedGen{scripts: []genScript{
		{tokens: []string{"• One\n"}},
		{tokens: []string{"Subject: S\nBody: B"}},
	}}
	_, err = NewWriter(gen, emb, index, DefaultSettings()).Run(ctx, scoredRecord(), func(model.EventKind, string, map[string]any) {})
	require.NoError(t, err)

	reqs := gen.requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Prompt, "Key Facts:")
	assert.Contains(t, reqs[0].Prompt, "Pain Points:\n- Low NPS scores")
}

func TestWriter_StreamEndsWithOneDoneChunk(t *testing.T) {
	gen := &scriptedGen{scripts: []genScript{
		{tokens: []string{"• a\n", "• b\n"}},
		{tokens: []string{"Subject: S\nBody: B"}},
	}}
	var tokens, done int
	var final WriterChunk
	for c := range NewWriter(gen, nil, nil, DefaultSettings()).Stream(context.Background(), scoredRecord()) {
		if c.Done {
			done++
			final = c
			continue
		}
		assert.Zero(t, done, "token after completion")
		tokens++
	}
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, tokens)
	require.NotNil(t, final.Record)
	assert.Equal(t, model.StatusDrafted, final.Record.Status)
}

func TestWriter_CancelledStreamHasNoDoneChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGen{scripts: []genScript{{tokens: []string{"• a\n"}}}}
	r := scoredRecord()
	for c := range NewWriter(gen, nil, nil, DefaultSettings()).Stream(ctx, r) {
		assert.False(t, c.Done)
	}
	assert.Equal(t, model.StatusScored, r.Status)
}
