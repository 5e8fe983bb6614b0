package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ContactStore answers the suppression and existing-contact lookups the
// Contactor needs.
type ContactStore interface {
	IsSuppressed(ctx context.Context, kind model.SuppressionKind, value string) (bool, error)
	ListContactsByDomain(ctx context.Context, domain string) ([]model.Contact, error)
}

var (
	firstNames = []string{
		"Ada", "Björn", "Chloé", "Dmitri", "Elena", "François", "Grace", "Hiro",
		"Inés", "Jonas", "Katarzyna", "Liam", "Maya", "Nikolaj", "Olivia", "Pedro",
		"Quinn", "Renée", "Søren", "Tomás", "Uma", "Viktor", "Wen", "Zoë",
	}
	lastNames = []string{
		"Álvarez", "Bergström", "Chen", "Dubois", "Eriksen", "Fernández", "García", "Hoffmann",
		"Ibrahim", "Jensen", "Kowalski", "Lefèvre", "Müller", "Nakamura", "O'Brien", "Patel",
		"Quintero", "Rossi", "Schäfer", "Tanaka", "Ueda", "Varga", "Weiß", "Yılmaz",
	}
	// Letters that do not decompose under NFD.
	foldExtra = strings.NewReplacer("ø", "o", "Ø", "o", "æ", "ae", "Æ", "ae", "ß", "ss", "ł", "l", "Ł", "l", "đ", "d", "ı", "i")
)

// titlesForSize selects the decision-maker titles for a company size bracket.
func titlesForSize(size int) []string {
	switch {
	case size < 100:
		return []string{"CEO", "Head of Customer Success"}
	case size <= 1000:
		return []string{"VP Customer Experience", "Director of CX"}
	default:
		return []string{"Chief Customer Officer", "SVP Customer Success", "VP CX Analytics"}
	}
}

// personName derives a stable display name for a title at a domain.
func personName(domain, title string) (first, last string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(domain) + "|" + title))
	sum := h.Sum32()
	first = firstNames[sum%uint32(len(firstNames))]
	last = lastNames[(sum/uint32(len(firstNames)))%uint32(len(lastNames))]
	return first, last
}

// foldASCII lowercases s, strips diacritics and drops everything that is not
// an ASCII letter or digit.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldExtra.Replace(s))
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Contactor synthesizes decision-maker contacts for a company.
type Contactor struct {
	store ContactStore
}

// NewContactor creates a Contactor.
func NewContactor(st ContactStore) *Contactor {
	return &Contactor{store: st}
}

// Name implements Stage.
func (c *Contactor) Name() string { return model.StageContactor }

// Run implements Stage. A suppressed domain drops the record before any
// contact is generated.
func (c *Contactor) Run(ctx context.Context, r *model.Record, _ Emit) (map[string]any, error) {
	domain := strings.ToLower(strings.TrimSpace(r.Company.Domain))
	if domain == "" {
		return nil, eris.Errorf("contactor: company %s has no domain", r.Company.ID)
	}

	suppressed, err := c.store.IsSuppressed(ctx, model.SuppressDomain, domain)
	if err != nil {
		return nil, eris.Wrap(err, "contactor: check domain suppression")
	}
	if suppressed {
		if err := r.Exit(model.StatusDropped, "Domain suppressed: "+domain); err != nil {
			return nil, err
		}
		return map[string]any{"suppressed": true, "contacts": 0}, nil
	}

	existing, err := c.store.ListContactsByDomain(ctx, domain)
	if err != nil {
		return nil, eris.Wrap(err, "contactor: list existing contacts")
	}
	taken := make(map[string]bool, len(existing)+len(r.Contacts))
	for _, ct := range existing {
		taken[ct.NormalizedEmail()] = true
	}
	for _, ct := range r.Contacts {
		taken[ct.NormalizedEmail()] = true
	}

	var generated []model.Contact
	for _, title := range titlesForSize(r.Company.Size) {
		first, last := personName(domain, title)
		email := uniqueEmail(foldASCII(first)+"."+foldASCII(last), domain, taken)
		taken[email] = true
		generated = append(generated, model.Contact{
			ID:       uuid.NewString(),
			Name:     first + " " + last,
			Email:    email,
			Title:    title,
			RecordID: r.ID,
		})
	}

	r.Contacts = append(r.Contacts, generated...)
	if err := r.Advance(model.StatusContacted); err != nil {
		return nil, err
	}

	zap.L().Debug("contactor: contacts generated",
		zap.String("record_id", r.ID),
		zap.Int("existing", len(existing)),
		zap.Int("generated", len(generated)),
	)
	return map[string]any{"contacts": len(generated), "existing": len(existing)}, nil
}

// uniqueEmail returns local@domain, or local2@domain, local3@domain and so
// on, whichever is first not taken.
func uniqueEmail(local, domain string, taken map[string]bool) string {
	if local == "." || local == "" {
		local = "contact"
	}
	email := local + "@" + domain
	for n := 2; taken[email]; n++ {
		email = fmt.Sprintf("%s%d@%s", local, n, domain)
	}
	return email
}
