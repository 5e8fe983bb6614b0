// Package crm pushes completed handoffs to external systems of record.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/notion"
	"github.com/sells-group/prospect-cli/pkg/salesforce"
)

// Sink receives a handoff and returns a reference to what it created.
type Sink interface {
	Name() string
	Push(ctx context.Context, h *model.Handoff) (string, error)
}

// SalesforceSink finds or creates the company's Account, adds its contacts and
// opens a follow-up Task.
type SalesforceSink struct {
	client salesforce.Client
}

// NewSalesforceSink wraps a Salesforce client.
func NewSalesforceSink(c salesforce.Client) *SalesforceSink {
	return &SalesforceSink{client: c}
}

// Name implements Sink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Push implements Sink. The returned reference is the Account ID.
func (s *SalesforceSink) Push(ctx context.Context, h *model.Handoff) (string, error) {
	c := h.Record.Company
	if c.Domain == "" {
		return "", eris.Errorf("crm: company %s has no domain", c.ID)
	}

	acct, err := salesforce.FindAccountByWebsite(ctx, s.client, c.Domain)
	if err != nil {
		return "", eris.Wrap(err, "crm: lookup account")
	}

	var accountID string
	if acct != nil {
		accountID = acct.ID
	} else {
		fields := map[string]any{
			"Name":    c.Name,
			"Website": "https://" + c.Domain,
		}
		if c.Industry != "" {
			fields["Industry"] = c.Industry
		}
		if c.Size > 0 {
			fields["NumberOfEmployees"] = c.Size
		}
		if h.Record.Summary != "" {
			fields["Description"] = h.Record.Summary
		}
		accountID, err = salesforce.CreateAccount(ctx, s.client, fields)
		if err != nil {
			return "", eris.Wrap(err, "crm: create account")
		}
	}

	for _, ct := range h.Record.Contacts {
		first, last := splitName(ct.Name)
		fields := map[string]any{
			"LastName": last,
			"Email":    ct.NormalizedEmail(),
		}
		if first != "" {
			fields["FirstName"] = first
		}
		if ct.Title != "" {
			fields["Title"] = ct.Title
		}
		if _, err := salesforce.CreateContact(ctx, s.client, accountID, fields); err != nil {
			return accountID, eris.Wrapf(err, "crm: create contact %s", ct.ID)
		}
	}

	if _, err := salesforce.CreateTask(ctx, s.client, accountID,
		"Prospect ready for handoff: "+c.Name, taskDescription(h)); err != nil {
		return accountID, eris.Wrap(err, "crm: create task")
	}

	zap.L().Info("crm: pushed handoff to salesforce",
		zap.String("record_id", h.Record.ID),
		zap.String("account_id", accountID),
		zap.Bool("existing_account", acct != nil),
	)
	return accountID, nil
}

// NotionSink marks the company's page in the seed database as handed off.
// The record's company ID is the Notion page ID.
type NotionSink struct {
	client notion.Client
	now    func() time.Time
}

// NewNotionSink wraps a Notion client.
func NewNotionSink(c notion.Client) *NotionSink {
	return &NotionSink{client: c, now: time.Now}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Push implements Sink. The returned reference is the page ID.
func (s *NotionSink) Push(ctx context.Context, h *model.Handoff) (string, error) {
	pageID := h.Record.Company.ID
	if err := notion.MarkHandoff(ctx, s.client, pageID, h.Record.FitScore, s.now()); err != nil {
		return "", eris.Wrap(err, "crm: update notion page")
	}
	return pageID, nil
}

// Multi pushes to every sink in order. Failed sinks are skipped; references of
// the successful ones are returned as "name:ref" joined by ",".
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Push implements Sink.
func (m Multi) Push(ctx context.Context, h *model.Handoff) (string, error) {
	var refs []string
	var errs []error
	for _, s := range m {
		ref, err := s.Push(ctx, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, s.Name()+":"+ref)
	}
	return strings.Join(refs, ","), errors.Join(errs...)
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

func taskDescription(h *model.Handoff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fit score: %.2f\n", h.Record.FitScore)
	if h.Record.Draft != nil {
		fmt.Fprintf(&b, "Email subject: %s\n", h.Record.Draft.Subject)
	}
	if h.Thread != nil {
		fmt.Fprintf(&b, "Thread: %s (%d messages)\n", h.Thread.ID, len(h.Thread.Messages))
	}
	if len(h.CalendarSlots) > 0 {
		b.WriteString("Proposed slots:\n")
		for _, s := range h.CalendarSlots {
			fmt.Fprintf(&b, "- %s\n", s.Start.Format("2006-01-02 15:04 MST"))
		}
	}
	if h.Record.Summary != "" {
		b.WriteString("\n")
		b.WriteString(h.Record.Summary)
	}
	return b.String()
}
