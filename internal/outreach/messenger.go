// Package outreach sends prospect emails, keeps their threads and proposes
// meeting slots.
package outreach

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Messenger delivers outbound email and exposes the resulting thread.
type Messenger interface {
	Send(ctx context.Context, recordID, to, subject, body string) (threadID string, err error)
	Thread(ctx context.Context, recordID string) (*model.Thread, error)
}

// MessageStore is the persistence the store-backed messenger needs.
type MessageStore interface {
	SaveMessage(ctx context.Context, m model.Message) error
	GetThread(ctx context.Context, recordID string) (*model.Thread, error)
}

// StoreMessenger records outbound messages in the sent log instead of
// delivering them through a mail provider. Every message for a record joins
// the record's existing thread.
type StoreMessenger struct {
	store  MessageStore
	sender string
	now    func() time.Time
}

// NewStoreMessenger creates a messenger that logs messages sent as sender.
func NewStoreMessenger(s MessageStore, sender string) *StoreMessenger {
	return &StoreMessenger{store: s, sender: sender, now: time.Now}
}

// Send persists an outbound message and returns its thread ID.
func (m *StoreMessenger) Send(ctx context.Context, recordID, to, subject, body string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" || !strings.Contains(to, "@") {
		return "", eris.Errorf("outreach: invalid recipient %q", to)
	}

	existing, err := m.store.GetThread(ctx, recordID)
	if err != nil {
		return "", eris.Wrapf(err, "outreach: load thread for %s", recordID)
	}
	threadID := uuid.NewString()
	if existing != nil {
		threadID = existing.ID
	}

	msg := model.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		RecordID:  recordID,
		Direction: model.DirectionOutbound,
		To:        to,
		Subject:   subject,
		Body:      body,
		SentAt:    m.now().UTC(),
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return "", eris.Wrapf(err, "outreach: send to %s", to)
	}

	zap.L().Info("outreach: message sent",
		zap.String("record_id", recordID),
		zap.String("thread_id", threadID),
		zap.String("from", m.sender),
		zap.String("to", to),
	)
	return threadID, nil
}

// Thread returns the record's thread, or nil when nothing was sent.
func (m *StoreMessenger) Thread(ctx context.Context, recordID string) (*model.Thread, error) {
	t, err := m.store.GetThread(ctx, recordID)
	if err != nil {
		return nil, eris.Wrapf(err, "outreach: thread for %s", recordID)
	}
	return t, nil
}
