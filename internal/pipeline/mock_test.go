package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/compliance"
	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/outreach"
	"github.com/sells-group/prospect-cli/internal/search"
	"github.com/sells-group/prospect-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "prospect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestCalendar(t *testing.T) *outreach.SlotCalendar {
	t.Helper()
	cal, err := outreach.NewSlotCalendar([]int{1, 2, 3}, 10, 30, "UTC")
	require.NoError(t, err)
	return cal
}

func fixedClock(ts time.Time) clock {
	return func() time.Time { return ts }
}

func saasCompany() model.Company {
	return model.Company{
		ID:       "acme",
		Name:     "Acme Analytics",
		Domain:   "acme.com",
		Industry: "SaaS",
		Size:     500,
		Pains:    []string{"Low NPS scores", "Customer retention in enterprise tier"},
		Notes:    []string{"Recently raised Series B"},
	}
}

func recordAt(c model.Company, status model.Status) *model.Record {
	r := model.NewRecord(c.ID, c)
	r.Status = status
	return r
}

// sliceSource serves a fixed company list.
type sliceSource struct {
	companies []model.Company
	err       error
}

func (s sliceSource) Load(context.Context) ([]model.Company, error) {
	return s.companies, s.err
}

// genScript is one scripted generation: the tokens delivered, then the
// completion error.
type genScript struct {
	tokens []string
	err    error
}

// scriptedGen replays genScripts in call order and records every request.
type scriptedGen struct {
	mu      sync.Mutex
	scripts []genScript
	reqs    []inference.Request
}

func (g *scriptedGen) next(req inference.Request) genScript {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if len(g.scripts) == 0 {
		return genScript{err: inference.ErrUnavailable}
	}
	s := g.scripts[0]
	g.scripts = g.scripts[1:]
	return s
}

func (g *scriptedGen) Generate(_ context.Context, req inference.Request) (string, error) {
	s := g.next(req)
	return strings.Join(s.tokens, ""), s.err
}

func (g *scriptedGen) Stream(_ context.Context, req inference.Request) <-chan inference.Chunk {
	s := g.next(req)
	ch := make(chan inference.Chunk, len(s.tokens)+1)
	for _, tok := range s.tokens {
		ch <- inference.Chunk{Text: tok}
	}
	ch <- inference.Chunk{Done: true, Err: s.err}
	close(ch)
	return ch
}

func (g *scriptedGen) requests() []inference.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]inference.Request(nil), g.reqs...)
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Query(ctx context.Context, text string) ([]search.Result, error) {
	args := m.Called(ctx, text)
	res, _ := args.Get(0).([]search.Result)
	return res, args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, recordID, to, subject, body string) (string, error) {
	args := m.Called(ctx, recordID, to, subject, body)
	return args.String(0), args.Error(1)
}

func (m *mockMessenger) Thread(ctx context.Context, recordID string) (*model.Thread, error) {
	args := m.Called(ctx, recordID)
	t, _ := args.Get(0).(*model.Thread)
	return t, args.Error(1)
}

type mockContactStore struct {
	mock.Mock
}

func (m *mockContactStore) IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error) {
	args := m.Called(ctx, kind, value)
	return args.Bool(0), args.Error(1)
}

func (m *mockContactStore) ListContactsByDomain(ctx context.Context, domain string) ([]model.Contact, error) {
	args := m.Called(ctx, domain)
	cs, _ := args.Get(0).([]model.Contact)
	return cs, args.Error(1)
}

// stubSink is a crm.Sink returning a fixed reference or error.
type stubSink struct {
	ref    string
	err    error
	pushed []*model.Handoff
}

func (s *stubSink) Name() string { return "stub" }

func (s *stubSink) Push(_ context.Context, h *model.Handoff) (string, error) {
	s.pushed = append(s.pushed, h)
	return s.ref, s.err
}

// funcStage adapts a function to Stage.
type funcStage struct {
	name string
	fn   func(r *model.Record) error
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Run(_ context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	return nil, s.fn(r)
}

func advanceTo(name string, next model.Status) funcStage {
	return funcStage{name: name, fn: func(r *model.Record) error { return r.Advance(next) }}
}

type emitted struct {
	kind    model.EventKind
	msg     string
	payload map[string]any
}

// recorder captures intermediate events emitted by a stage.
func recorder() (Emit, *[]emitted) {
	var got []emitted
	return func(kind model.EventKind, msg string, payload map[string]any) {
		got = append(got, emitted{kind: kind, msg: msg, payload: payload})
	}, &got
}

func drain(ch <-chan model.Event) []model.Event {
	var events []model.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func newTestEngine(st compliance.SuppressionStore) *compliance.Engine {
	return compliance.NewEngine(compliance.DefaultPolicy(), st, 7)
}
