// Package store persists records, contacts, facts, suppressions, messages and
// handoff artifacts.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the prospecting pipeline.
type Store interface {
	// Records. SaveRecord upserts the record and appends any new contacts and
	// facts it carries.
	SaveRecord(ctx context.Context, r *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)

	// Companies
	SaveCompany(ctx context.Context, c model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)

	// Contacts and facts
	ListContactsByDomain(ctx context.Context, domain string) ([]model.Contact, error)
	ListFacts(ctx context.Context, companyID string) ([]model.Fact, error)

	// Suppressions
	AddSuppression(ctx context.Context, s model.Suppression) error
	ImportSuppressions(ctx context.Context, list []model.Suppression) (int64, error)
	ListSuppressions(ctx context.Context) ([]model.Suppression, error)
	IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error)

	// Sent log
	SaveMessage(ctx context.Context, m model.Message) error
	GetThread(ctx context.Context, recordID string) (*model.Thread, error)
	LastTouch(ctx context.Context, email string) (time.Time, bool, error)

	// Handoffs
	SaveHandoff(ctx context.Context, h *model.Handoff) error
	GetHandoff(ctx context.Context, recordID string) (*model.Handoff, error)

	// Lifecycle
	ClearAll(ctx context.Context) error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// normalize lowercases and trims values used as lookup keys.
func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func prepareSuppression(s model.Suppression) (model.Suppression, error) {
	if !s.Kind.Valid() {
		return s, eris.Errorf("store: invalid suppression kind %q", s.Kind)
	}
	s.Value = normalize(s.Value)
	if s.Value == "" {
		return s, eris.New("store: suppression value is required")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return s, nil
}

// threadFromMessages groups messages for a record; nil when there are none.
func threadFromMessages(recordID string, msgs []model.Message) *model.Thread {
	if len(msgs) == 0 {
		return nil
	}
	return &model.Thread{ID: msgs[0].ThreadID, RecordID: recordID, Messages: msgs}
}
