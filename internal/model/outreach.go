package model

import "time"

// Direction of a message relative to us.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Message is a single email in a conversation thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	RecordID  string    `json:"record_id"`
	Direction Direction `json:"direction"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

// Thread groups the messages exchanged with one prospect.
type Thread struct {
	ID       string    `json:"id"`
	RecordID string    `json:"record_id"`
	Messages []Message `json:"messages"`
}

// SuppressionKind names what a suppression entry matches against.
type SuppressionKind string

const (
	SuppressEmail   SuppressionKind = "email"
	SuppressDomain  SuppressionKind = "domain"
	SuppressCompany SuppressionKind = "company"
)

// Valid reports whether k is a known suppression kind.
func (k SuppressionKind) Valid() bool {
	switch k {
	case SuppressEmail, SuppressDomain, SuppressCompany:
		return true
	}
	return false
}

// Suppression blocks outreach to an email, domain or company until ExpiresAt.
type Suppression struct {
	ID        string          `json:"id"`
	Kind      SuppressionKind `json:"type"`
	Value     string          `json:"value"`
	Reason    string          `json:"reason"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Active reports whether the suppression still applies at now.
func (s Suppression) Active(now time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// Slot is a proposed meeting window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Handoff is the artifact passed to a salesperson once a record completes.
type Handoff struct {
	Record        Record    `json:"prospect"`
	Thread        *Thread   `json:"thread,omitempty"`
	CalendarSlots []Slot    `json:"calendar_slots"`
	Invite        string    `json:"invite,omitempty"`
	CRMRef        string    `json:"crm_ref,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}
