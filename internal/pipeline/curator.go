package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/crm"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/outreach"
)

// HandoffStore persists handoff artifacts.
type HandoffStore interface {
	SaveHandoff(ctx context.Context, h *model.Handoff) error
}

// Curator bundles a sequenced record with its thread and meeting options into
// a handoff for a salesperson.
type Curator struct {
	store     HandoffStore
	messenger outreach.Messenger
	calendar  outreach.Calendar
	sink      crm.Sink
	clock     clock
}

// NewCurator creates a Curator. sink may be nil to skip the CRM push.
func NewCurator(st HandoffStore, m outreach.Messenger, cal outreach.Calendar, sink crm.Sink) *Curator {
	return &Curator{store: st, messenger: m, calendar: cal, sink: sink}
}

// Name implements Stage.
func (c *Curator) Name() string { return model.StageCurator }

// Run implements Stage. Thread, calendar and CRM failures leave those parts
// of the handoff empty; failing to persist the handoff fails the stage.
func (c *Curator) Run(ctx context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	log := zap.L().With(zap.String("record_id", r.ID), zap.String("stage", c.Name()))

	if err := model.CheckTransition(r.Status, model.StatusReadyForHandoff); err != nil {
		return nil, eris.Wrap(err, "curator: record not ready")
	}

	var thread *model.Thread
	if r.ThreadID != "" {
		t, err := c.messenger.Thread(ctx, r.ID)
		if err != nil {
			log.Warn("curator: thread lookup failed", zap.Error(err))
		} else {
			thread = t
		}
	}

	slots, err := c.calendar.SuggestSlots(ctx)
	if err != nil {
		log.Warn("curator: calendar unavailable", zap.Error(err))
		slots = nil
	}
	if slots == nil {
		slots = []model.Slot{}
	}

	var invite string
	if len(slots) > 0 {
		invite = c.calendar.Invite("Meeting with "+r.Company.Name, slots[0].Start, slots[0].End)
	}

	snapshot := *r
	snapshot.Status = model.StatusReadyForHandoff
	h := &model.Handoff{
		Record:        snapshot,
		Thread:        thread,
		CalendarSlots: slots,
		Invite:        invite,
		GeneratedAt:   c.clock.now(),
	}

	if c.sink != nil {
		ref, err := c.sink.Push(ctx, h)
		if err != nil {
			log.Warn("curator: crm push failed", zap.String("sink", c.sink.Name()), zap.Error(err))
		}
		h.CRMRef = ref
	}

	if err := c.store.SaveHandoff(ctx, h); err != nil {
		return nil, eris.Wrap(err, "curator: save handoff")
	}
	if err := r.Advance(model.StatusReadyForHandoff); err != nil {
		return nil, err
	}

	return map[string]any{
		"has_thread": thread != nil,
		"slots":      len(slots),
		"crm_ref":    h.CRMRef,
	}, nil
}
