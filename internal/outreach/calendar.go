package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Calendar proposes meeting slots and renders invitations.
type Calendar interface {
	SuggestSlots(ctx context.Context) ([]model.Slot, error)
	// Invite renders an iCalendar (RFC 5545) invitation.
	Invite(title string, start, end time.Time) string
}

// SlotCalendar proposes fixed-offset slots: one per entry of Days, at Hour
// o'clock in Location, lasting Minutes.
type SlotCalendar struct {
	Days     []int
	Hour     int
	Minutes  int
	Location *time.Location
	now      func() time.Time
}

// NewSlotCalendar validates the slot layout. tz is an IANA zone name.
func NewSlotCalendar(days []int, hour, minutes int, tz string) (*SlotCalendar, error) {
	if hour < 0 || hour > 23 {
		return nil, eris.Errorf("outreach: slot hour %d out of range", hour)
	}
	if minutes <= 0 {
		return nil, eris.Errorf("outreach: slot length must be positive, got %d", minutes)
	}
	for _, d := range days {
		if d <= 0 {
			return nil, eris.Errorf("outreach: slot day offset must be positive, got %d", d)
		}
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "outreach: load timezone %s", tz)
	}
	return &SlotCalendar{Days: days, Hour: hour, Minutes: minutes, Location: loc, now: time.Now}, nil
}

// SuggestSlots returns the slots in ascending order of the configured offsets.
func (c *SlotCalendar) SuggestSlots(ctx context.Context) ([]model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := c.now().In(c.Location)
	slots := make([]model.Slot, 0, len(c.Days))
	for _, d := range c.Days {
		day := now.AddDate(0, 0, d)
		start := time.Date(day.Year(), day.Month(), day.Day(), c.Hour, 0, 0, 0, c.Location)
		slots = append(slots, model.Slot{Start: start, End: start.Add(time.Duration(c.Minutes) * time.Minute)})
	}
	return slots, nil
}

const icsStamp = "20060102T150405Z"

// Invite renders a single-event calendar in UTC with CRLF line endings.
func (c *SlotCalendar) Invite(title string, start, end time.Time) string {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Lucidya//Prospect//EN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + uuid.NewString(),
		"DTSTAMP:" + now().UTC().Format(icsStamp),
		"DTSTART:" + start.UTC().Format(icsStamp),
		"DTEND:" + end.UTC().Format(icsStamp),
		"SUMMARY:" + icsEscape(title),
		"DESCRIPTION:" + icsEscape("Discuss customer experience improvements"),
		"END:VEVENT",
		"END:VCALENDAR",
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

// icsEscape escapes TEXT values per RFC 5545 section 3.3.11.
func icsEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)
	return r.Replace(s)
}

// FormatSlot renders a slot as "YYYY-MM-DD at HH:MM".
func FormatSlot(s model.Slot) string {
	return fmt.Sprintf("%s at %s", s.Start.Format("2006-01-02"), s.Start.Format("15:04"))
}
