package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SuppressionStore is the read side of the suppression list and sent log.
type SuppressionStore interface {
	IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error)
	LastTouch(ctx context.Context, email string) (time.Time, bool, error)
}

// Engine evaluates drafts against a Policy.
type Engine struct {
	policy  Policy
	store   SuppressionStore
	minDays int
	now     func() time.Time
}

// NewEngine creates an engine. minDays of zero disables the touch-frequency
// check.
func NewEngine(p Policy, st SuppressionStore, minDays int) *Engine {
	return &Engine{policy: p, store: st, minDays: minDays, now: time.Now}
}

// Footer returns the footer appended to compliant drafts.
func (e *Engine) Footer() string { return e.policy.Footer }

// AppendFooter returns body with the footer appended once. A body that
// already ends with the footer is returned unchanged.
func (e *Engine) AppendFooter(body string) string {
	if e.policy.Footer == "" || strings.HasSuffix(body, e.policy.Footer) {
		return body
	}
	return body + "\n" + e.policy.Footer
}

// Check returns every violation the record's draft triggers, in a stable
// order. An empty result means the draft may be sent. Store failures are
// returned as errors.
func (e *Engine) Check(ctx context.Context, r *model.Record) ([]string, error) {
	if r.Draft == nil {
		return nil, eris.New("compliance: record has no draft")
	}

	var violations []string
	seen := make(map[string]bool)
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			violations = append(violations, v)
		}
	}

	if err := e.checkSuppressions(ctx, r, add); err != nil {
		return nil, err
	}

	text := r.Draft.Body + "\n" + e.policy.Footer
	for _, j := range e.policy.Jurisdictions {
		if !j.appliesTo(r.Company.Domain) {
			continue
		}
		for _, req := range j.Requirements {
			if !req.satisfiedBy(text) {
				add(req.Message)
			}
		}
	}

	body := strings.ToLower(r.Draft.Body)
	for _, phrase := range e.policy.ForbiddenPhrases {
		if strings.Contains(body, strings.ToLower(phrase)) {
			add(fmt.Sprintf("Unverifiable claim: '%s'", phrase))
		}
	}

	if err := e.checkTouches(ctx, r, add); err != nil {
		return nil, err
	}
	return violations, nil
}

func (e *Engine) checkSuppressions(ctx context.Context, r *model.Record, add func(string)) error {
	for _, c := range r.Contacts {
		email := c.NormalizedEmail()
		hit, err := e.store.IsSuppressed(ctx, model.SuppressEmail, email)
		if err != nil {
			return eris.Wrap(err, "compliance: check email suppression")
		}
		if hit {
			add("Email suppressed: " + email)
		}

		domain := c.EmailDomain()
		if domain == "" {
			continue
		}
		hit, err = e.store.IsSuppressed(ctx, model.SuppressDomain, domain)
		if err != nil {
			return eris.Wrap(err, "compliance: check domain suppression")
		}
		if hit {
			add("Domain suppressed: " + domain)
		}
	}

	for _, v := range []string{r.Company.ID, r.Company.Name, r.Company.Domain} {
		if v == "" {
			continue
		}
		hit, err := e.store.IsSuppressed(ctx, model.SuppressCompany, v)
		if err != nil {
			return eris.Wrap(err, "compliance: check company suppression")
		}
		if hit {
			add("Company suppressed: " + r.Company.Name)
			break
		}
	}
	return nil
}

func (e *Engine) checkTouches(ctx context.Context, r *model.Record, add func(string)) error {
	if e.minDays <= 0 {
		return nil
	}
	window := time.Duration(e.minDays) * 24 * time.Hour
	now := e.now()
	for _, c := range r.Contacts {
		last, ok, err := e.store.LastTouch(ctx, c.NormalizedEmail())
		if err != nil {
			return eris.Wrap(err, "compliance: check last touch")
		}
		if ok && now.Sub(last) < window {
			zap.L().Debug("compliance: recent touch",
				zap.String("record_id", r.ID),
				zap.String("email", c.NormalizedEmail()),
				zap.Time("last_touch", last),
			)
			add(fmt.Sprintf("Contacted within %d days: %s", e.minDays, c.NormalizedEmail()))
		}
	}
	return nil
}
