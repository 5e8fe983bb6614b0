package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/outreach"
)

const maxSuggestedSlots = 3

// Sequencer dispatches the first outreach message with suggested meeting
// times.
type Sequencer struct {
	messenger outreach.Messenger
	calendar  outreach.Calendar
}

// NewSequencer creates a Sequencer.
func NewSequencer(m outreach.Messenger, cal outreach.Calendar) *Sequencer {
	return &Sequencer{messenger: m, calendar: cal}
}

// Name implements Stage.
func (s *Sequencer) Name() string { return model.StageSequencer }

// Run implements Stage. Missing contacts or draft are replaced by defaults;
// calendar and send failures are logged and never fail the stage. Only a
// missing company domain blocks the record.
func (s *Sequencer) Run(ctx context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	log := zap.L().With(zap.String("record_id", r.ID), zap.String("stage", s.Name()))
	c := r.Company

	if strings.TrimSpace(c.Domain) == "" {
		if err := r.Exit(model.StatusBlocked, "No company domain for outreach"); err != nil {
			return nil, err
		}
		return map[string]any{"sent": false}, nil
	}

	defaulted := false
	if len(r.Contacts) == 0 {
		r.Contacts = []model.Contact{{
			ID:       uuid.NewString(),
			Name:     "Customer Success at " + c.Name,
			Email:    "contact@" + strings.ToLower(c.Domain),
			Title:    "Customer Success",
			RecordID: r.ID,
		}}
		defaulted = true
	}
	if r.Draft == nil {
		r.Draft = &model.EmailDraft{
			Subject: fmt.Sprintf("Improving %s's Customer Experience", c.Name),
			Body: fmt.Sprintf("Dear %s team,\n\nWe noticed your company is in the %s industry with %d employees.\n"+
				"We'd love to discuss how we can help improve your customer experience.\n\n"+
				"Looking forward to connecting with you.\n\n%s", c.Name, c.Industry, c.Size, signature),
		}
		defaulted = true
	}

	slots, err := s.calendar.SuggestSlots(ctx)
	if err != nil {
		log.Warn("sequencer: calendar unavailable", zap.Error(err))
		slots = nil
	}

	body := r.Draft.Body
	if len(slots) > 0 {
		var b strings.Builder
		b.WriteString(strings.TrimRight(body, " \n"))
		b.WriteString("\n\nI have a few time slots available this week:")
		for i, slot := range slots {
			if i == maxSuggestedSlots {
				break
			}
			b.WriteString("\n- " + outreach.FormatSlot(slot))
		}
		body = b.String()
	}

	to := r.Contacts[0].NormalizedEmail()
	threadID, err := s.messenger.Send(ctx, r.ID, to, r.Draft.Subject, body)
	sendFailed := err != nil
	if sendFailed {
		threadID = "mock-thread-" + uuid.NewString()
		log.Warn("sequencer: send failed, using synthetic thread",
			zap.String("to", to),
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
	}
	r.ThreadID = threadID

	if err := r.Advance(model.StatusSequenced); err != nil {
		return nil, err
	}
	return map[string]any{
		"thread_id":   threadID,
		"recipient":   to,
		"slots":       min(len(slots), maxSuggestedSlots),
		"send_failed": sendFailed,
		"defaulted":   defaulted,
	}, nil
}
