// Package compliance gates drafted outreach against suppressions, regional
// email rules, unverifiable claims and touch frequency.
package compliance

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultFooter is appended to compliant drafts when no footer is configured.
const DefaultFooter = "\n\n---\nLucidya Inc.\n123 Market St, San Francisco, CA 94105\nUnsubscribe: https://lucidya.example.com/unsubscribe"

// Requirement is satisfied when any marker occurs in the draft body or the
// footer that will be appended to it.
type Requirement struct {
	Message       string   `yaml:"message"`
	Markers       []string `yaml:"markers"`
	CaseSensitive bool     `yaml:"case_sensitive"`
}

// Jurisdiction is a named set of requirements. An empty DomainSuffixes list
// applies the jurisdiction to every company.
type Jurisdiction struct {
	Name           string        `yaml:"name"`
	Enabled        bool          `yaml:"enabled"`
	DomainSuffixes []string      `yaml:"domain_suffixes"`
	Requirements   []Requirement `yaml:"requirements"`
}

// Policy is the rule set the engine enforces.
type Policy struct {
	Footer           string         `yaml:"footer"`
	Jurisdictions    []Jurisdiction `yaml:"jurisdictions"`
	ForbiddenPhrases []string       `yaml:"forbidden_phrases"`
}

// DefaultPolicy returns CAN-SPAM for every recipient, CASL for .ca domains and
// the standard list of unverifiable claims.
func DefaultPolicy() Policy {
	return Policy{
		Footer: DefaultFooter,
		Jurisdictions: []Jurisdiction{
			{
				Name:    "CAN-SPAM",
				Enabled: true,
				Requirements: []Requirement{
					{Message: "CAN-SPAM: Missing unsubscribe mechanism", Markers: []string{"unsubscribe"}},
					{Message: "CAN-SPAM: Missing physical postal address", Markers: []string{"St", "Ave", "Rd", "Blvd"}, CaseSensitive: true},
				},
			},
			{
				Name:           "CASL",
				Enabled:        true,
				DomainSuffixes: []string{".ca"},
				Requirements: []Requirement{
					{Message: "CASL: May need express consent for Canadian recipients", Markers: []string{"consent"}},
				},
			},
		},
		ForbiddenPhrases: []string{
			"guaranteed", "100%", "no risk", "best in the world",
			"revolutionary", "breakthrough",
		},
	}
}

// LoadPolicy reads a YAML policy file. Sections missing from the file keep
// their default values.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "compliance: read policy %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over the defaults.
func ParsePolicy(data []byte) (Policy, error) {
	var doc struct {
		Footer           *string        `yaml:"footer"`
		Jurisdictions    []Jurisdiction `yaml:"jurisdictions"`
		ForbiddenPhrases []string       `yaml:"forbidden_phrases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policy{}, eris.Wrap(err, "compliance: parse policy")
	}

	p := DefaultPolicy()
	if doc.Footer != nil {
		p.Footer = *doc.Footer
	}
	if doc.Jurisdictions != nil {
		p.Jurisdictions = doc.Jurisdictions
	}
	if doc.ForbiddenPhrases != nil {
		p.ForbiddenPhrases = doc.ForbiddenPhrases
	}
	return p, p.Validate()
}

// Validate reports malformed jurisdictions.
func (p Policy) Validate() error {
	for _, j := range p.Jurisdictions {
		if j.Name == "" {
			return eris.New("compliance: jurisdiction name is required")
		}
		for _, r := range j.Requirements {
			if r.Message == "" || len(r.Markers) == 0 {
				return eris.Errorf("compliance: jurisdiction %s has a requirement without message or markers", j.Name)
			}
		}
	}
	return nil
}

func (j Jurisdiction) appliesTo(domain string) bool {
	if !j.Enabled {
		return false
	}
	if len(j.DomainSuffixes) == 0 {
		return true
	}
	domain = strings.ToLower(domain)
	for _, s := range j.DomainSuffixes {
		if strings.HasSuffix(domain, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func (r Requirement) satisfiedBy(text string) bool {
	if !r.CaseSensitive {
		text = strings.ToLower(text)
	}
	for _, m := range r.Markers {
		if !r.CaseSensitive {
			m = strings.ToLower(m)
		}
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
