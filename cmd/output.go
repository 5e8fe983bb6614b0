package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// eventPrinter renders pipeline events as NDJSON or as styled terminal lines.
// Token events are written inline so drafts appear as they are generated.
type eventPrinter struct {
	w        io.Writer
	json     bool
	inTokens bool
}

func newEventPrinter(w io.Writer, asJSON bool) *eventPrinter {
	return &eventPrinter{w: w, json: asJSON}
}

func (p *eventPrinter) Print(ev model.Event) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(ev)
	}

	if ev.Kind == model.EventToken {
		p.inTokens = true
		_, err := io.WriteString(p.w, ev.Message)
		return err
	}
	if p.inTokens {
		p.inTokens = false
		if _, err := io.WriteString(p.w, "\n"); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(p.w, renderEvent(ev))
	return err
}

func renderEvent(ev model.Event) string {
	label := stageStyle.Render(fmt.Sprintf("[%s]", ev.Stage))
	if ev.RecordID != "" {
		label = dimStyle.Render(ev.RecordID) + " " + label
	}

	switch ev.Kind {
	case model.EventStageStart:
		return fmt.Sprintf("%s %s", label, dimStyle.Render(ev.Message))
	case model.EventStageEnd:
		status, _ := ev.Payload["status"].(string)
		switch model.Status(status) {
		case model.StatusDropped, model.StatusBlocked:
			return fmt.Sprintf("%s %s", label, warnStyle.Render(ev.Message))
		}
		return fmt.Sprintf("%s %s", label, okStyle.Render(ev.Message))
	case model.EventPolicyPass:
		return fmt.Sprintf("%s %s", label, okStyle.Render(ev.Message))
	case model.EventPolicyBlock:
		return fmt.Sprintf("%s %s", label, warnStyle.Render(ev.Message))
	case model.EventError:
		return fmt.Sprintf("%s %s", label, errStyle.Render("error: "+ev.Message))
	default:
		return fmt.Sprintf("%s %s", label, ev.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(w io.Writer, records []model.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("no prospects"))
		return err
	}
	_, err := fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-20s %-28s %-18s %6s  %s", "ID", "COMPANY", "STATUS", "FIT", "REASON")))
	if err != nil {
		return err
	}
	for _, r := range records {
		status := string(r.Status)
		switch r.Status {
		case model.StatusDropped, model.StatusBlocked:
			status = warnStyle.Render(fmt.Sprintf("%-18s", status))
		case model.StatusReadyForHandoff:
			status = okStyle.Render(fmt.Sprintf("%-18s", status))
		default:
			status = fmt.Sprintf("%-18s", status)
		}
		if _, err := fmt.Fprintf(w, "%-20s %-28s %s %6.2f  %s\n",
			truncate(r.ID, 20), truncate(r.Company.Name, 28), status, r.FitScore, r.Reason); err != nil {
			return err
		}
	}
	return nil
}

func printHandoff(w io.Writer, h *model.Handoff) error {
	r := h.Record
	var b strings.Builder
	fmt.Fprintln(&b, headerStyle.Render(fmt.Sprintf("%s (%s)", r.Company.Name, r.Company.Domain)))
	fmt.Fprintf(&b, "Fit score: %.2f\n", r.FitScore)
	if len(r.Contacts) > 0 {
		b.WriteString("Contacts:\n")
		for _, c := range r.Contacts {
			fmt.Fprintf(&b, "  - %s, %s <%s>\n", c.Name, c.Title, c.Email)
		}
	}
	if r.Summary != "" {
		fmt.Fprintf(&b, "Summary:\n%s\n", r.Summary)
	}
	if r.Draft != nil {
		fmt.Fprintf(&b, "Subject: %s\n", r.Draft.Subject)
	}
	if h.Thread != nil {
		fmt.Fprintf(&b, "Thread: %s (%d messages)\n", h.Thread.ID, len(h.Thread.Messages))
	}
	if len(h.CalendarSlots) > 0 {
		b.WriteString("Suggested slots:\n")
		for _, s := range h.CalendarSlots {
			fmt.Fprintf(&b, "  - %s\n", s.Start.Format("Mon 2006-01-02 15:04 MST"))
		}
	}
	if h.CRMRef != "" {
		fmt.Fprintf(&b, "CRM: %s\n", h.CRMRef)
	}
	fmt.Fprintln(&b, dimStyle.Render("Generated "+h.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
