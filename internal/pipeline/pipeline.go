package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/compliance"
	"github.com/sells-group/prospect-cli/internal/crm"
	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/outreach"
	"github.com/sells-group/prospect-cli/internal/retrieval"
	"github.com/sells-group/prospect-cli/internal/search"
	"github.com/sells-group/prospect-cli/internal/seed"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Deps are the collaborators the standard stage sequence needs. Fetcher and
// CRM are optional.
type Deps struct {
	Store      store.Store
	Source     seed.Source
	Index      retrieval.Backend
	Embedder   inference.Embedder
	Generator  inference.Generator
	Searcher   search.Searcher
	Fetcher    search.Fetcher
	Messenger  outreach.Messenger
	Calendar   outreach.Calendar
	Compliance *compliance.Engine
	CRM        crm.Sink
}

// RecordStore persists records between stages.
type RecordStore interface {
	SaveRecord(ctx context.Context, r *model.Record) error
}

// Pipeline drives records through the stages in order, one record at a time.
type Pipeline struct {
	store  RecordStore
	hunter *Hunter
	stages []Stage
}

// New builds the standard pipeline: Enricher, Contactor, Scorer, Writer,
// Compliance, Sequencer and Curator after the Hunter.
func New(d Deps, set Settings) *Pipeline {
	return NewWithStages(d.Store, NewHunter(d.Source, d.Store),
		NewEnricher(d.Searcher, d.Fetcher, d.Index, d.Embedder, set),
		NewContactor(d.Store),
		NewScorer(set),
		NewWriter(d.Generator, d.Embedder, d.Index, set),
		NewComplianceGate(d.Compliance),
		NewSequencer(d.Messenger, d.Calendar),
		NewCurator(d.Store, d.Messenger, d.Calendar, d.CRM),
	)
}

// NewWithStages creates a pipeline with an explicit stage list.
func NewWithStages(st RecordStore, hunter *Hunter, stages ...Stage) *Pipeline {
	return &Pipeline{store: st, hunter: hunter, stages: stages}
}

// Run loads the companies in ids (all when empty) and processes each record
// to completion before starting the next. The returned channel is closed when
// the batch finishes, when the Hunter fails, or when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, ids []string) <-chan model.Event {
	ch := make(chan model.Event, 16)
	go func() {
		defer close(ch)
		send := func(ev model.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(model.NewEvent("", model.StageHunter, model.EventStageStart, "Loading seed companies", nil)) {
			return
		}
		start := time.Now()
		records, err := p.hunter.Run(ctx, ids)
		StageDuration.WithLabelValues(model.StageHunter).Observe(time.Since(start).Seconds())
		if err != nil {
			StageErrors.WithLabelValues(model.StageHunter).Inc()
			zap.L().Error("pipeline: hunter failed", zap.Error(err))
			send(model.NewEvent("", model.StageHunter, model.EventError, err.Error(), map[string]any{"error": err.Error()}))
			return
		}

		recordIDs := make([]string, len(records))
		for i, r := range records {
			recordIDs[i] = r.ID
		}
		if !send(model.NewEvent("", model.StageHunter, model.EventStageEnd,
			fmt.Sprintf("Found %d prospects", len(records)),
			map[string]any{"count": len(records), "record_ids": recordIDs})) {
			return
		}

		for _, r := range records {
			if ctx.Err() != nil || !p.process(ctx, r, send) {
				return
			}
		}
	}()
	return ch
}

// process runs the stages for one record. It returns false when the consumer
// has gone away.
func (p *Pipeline) process(ctx context.Context, r *model.Record, send func(model.Event) bool) bool {
	log := zap.L().With(zap.String("record_id", r.ID), zap.String("company", r.Company.Name))

	for _, st := range p.stages {
		if r.Terminal() {
			break
		}
		name := st.Name()
		if !send(model.NewEvent(r.ID, name, model.EventStageStart, fmt.Sprintf("%s: %s", name, r.Company.Name), nil)) {
			return false
		}

		alive := true
		emit := func(kind model.EventKind, msg string, payload map[string]any) {
			if alive && !send(model.NewEvent(r.ID, name, kind, msg, payload)) {
				alive = false
			}
		}

		before := r.Status
		start := time.Now()
		payload, err := runStage(ctx, st, r, emit)
		elapsed := time.Since(start)
		StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if !alive {
			return false
		}

		if err == nil {
			if terr := model.CheckTransition(before, r.Status); terr != nil {
				err = eris.Wrapf(terr, "pipeline: stage %s", name)
			}
		}
		if err == nil {
			if serr := p.store.SaveRecord(ctx, r); serr != nil {
				err = eris.Wrapf(serr, "pipeline: save record after %s", name)
			}
		}
		if err != nil {
			StageErrors.WithLabelValues(name).Inc()
			RecordsTotal.WithLabelValues("error").Inc()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
				zap.Error(err),
			)
			return send(model.NewEvent(r.ID, name, model.EventError, err.Error(), map[string]any{
				"error":  err.Error(),
				"status": string(before),
			}))
		}

		if payload == nil {
			payload = map[string]any{}
		}
		payload["status"] = string(r.Status)
		if r.Reason != "" {
			payload["reason"] = r.Reason
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.String("status", string(r.Status)),
		)
		if !send(model.NewEvent(r.ID, name, model.EventStageEnd, stageEndMessage(name, r), payload)) {
			return false
		}
	}

	RecordsTotal.WithLabelValues(string(r.Status)).Inc()
	return true
}

// runStage converts a panicking stage into an error.
func runStage(ctx context.Context, st Stage, r *model.Record, emit Emit) (payload map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("pipeline: stage %s panicked: %v", st.Name(), rec)
		}
	}()
	return st.Run(ctx, r, emit)
}

func stageEndMessage(stage string, r *model.Record) string {
	switch r.Status {
	case model.StatusDropped:
		return "Dropped: " + r.Reason
	case model.StatusBlocked:
		return "Blocked: " + r.Reason
	default:
		return fmt.Sprintf("%s complete (%s)", stage, r.Status)
	}
}
