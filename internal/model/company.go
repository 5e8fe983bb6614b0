package model

import (
	"strings"
	"time"
)

// Status is the position of a Record in the stage sequence.
type Status string

const (
	StatusNew             Status = "new"
	StatusEnriched        Status = "enriched"
	StatusContacted       Status = "contacted"
	StatusScored          Status = "scored"
	StatusDrafted         Status = "drafted"
	StatusCompliant       Status = "compliant"
	StatusSequenced       Status = "sequenced"
	StatusReadyForHandoff Status = "ready_for_handoff"
	StatusDropped         Status = "dropped"
	StatusBlocked         Status = "blocked"
)

// Company is a prospecting target loaded from a seed source.
type Company struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Domain   string   `json:"domain"`
	Industry string   `json:"industry"`
	Size     int      `json:"size"`
	Pains    []string `json:"pains"`
	Notes    []string `json:"notes"`
}

// Contact is a synthesized decision-maker at a Company.
type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	RecordID string `json:"record_id"`
}

// NormalizedEmail returns the lowercase, trimmed email used for uniqueness checks.
func (c Contact) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

// EmailDomain returns the part of the email after the last "@".
func (c Contact) EmailDomain() string {
	e := c.NormalizedEmail()
	if i := strings.LastIndex(e, "@"); i >= 0 {
		return e[i+1:]
	}
	return ""
}

// Fact is a piece of evidence collected about a Company.
type Fact struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Text        string    `json:"text"`
	CollectedAt time.Time `json:"collected_at"`
	TTLHours    int       `json:"ttl_hours"`
	Confidence  float64   `json:"confidence"`
	CompanyID   string    `json:"company_id"`
}

// IsStale reports whether the fact's age at now exceeds its TTL.
func (f Fact) IsStale(now time.Time) bool {
	return now.Sub(f.CollectedAt) > time.Duration(f.TTLHours)*time.Hour
}

// EmailDraft is a drafted outreach message.
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Record is the unit of work carried through the pipeline, one per Company.
type Record struct {
	ID       string      `json:"id"`
	Company  Company     `json:"company"`
	Contacts []Contact   `json:"contacts"`
	Facts    []Fact      `json:"facts"`
	FitScore float64     `json:"fit_score"`
	Status   Status      `json:"status"`
	Reason   string      `json:"reason,omitempty"`
	Summary  string      `json:"summary,omitempty"`
	Draft    *EmailDraft `json:"email_draft,omitempty"`
	ThreadID string      `json:"thread_id,omitempty"`
}

// NewRecord creates a Record in StatusNew for the company.
func NewRecord(id string, c Company) *Record {
	return &Record{
		ID:       id,
		Company:  c,
		Contacts: []Contact{},
		Facts:    []Fact{},
		Status:   StatusNew,
	}
}

// Terminal reports whether no further stage may run for the record.
func (r *Record) Terminal() bool {
	return r.Status.Terminal()
}

// Advance moves the record to next, returning an error if the transition is
// not part of the state graph.
func (r *Record) Advance(next Status) error {
	if err := CheckTransition(r.Status, next); err != nil {
		return err
	}
	r.Status = next
	return nil
}

// Exit moves the record to a terminal early-exit status with a reason.
func (r *Record) Exit(next Status, reason string) error {
	if err := r.Advance(next); err != nil {
		return err
	}
	r.Reason = reason
	return nil
}

// FreshStale counts fresh and stale facts at now.
func (r *Record) FreshStale(now time.Time) (fresh, stale int) {
	for _, f := range r.Facts {
		if f.IsStale(now) {
			stale++
		} else {
			fresh++
		}
	}
	return fresh, stale
}
