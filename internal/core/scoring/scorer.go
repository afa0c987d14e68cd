// Package scoring computes the lexical risk score of a text: weighted keyword
// hits, one point per sensitive pattern family and registration-age penalties.
package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"phishfuse/internal/core/domain"
)

//go:embed keywords.yaml
var defaultTable []byte

// Domain metadata thresholds and penalty.
const (
	YoungDomainDays       = 30
	ShortRegistrationDays = 90
	DomainPenalty         = 2
)

// Hit labels emitted for domain metadata.
const (
	HitYoungDomain       = "[whois:young_domain]"
	HitShortRegistration = "[whois:short_registration]"
	HitUnregistered      = "[whois:unregistered]"
)

// Keyword is one row of the weight table.
type Keyword struct {
	Keyword string `yaml:"keyword"`
	Weight  int    `yaml:"weight"`
}

// Table is the YAML document holding the keyword weights.
type Table struct {
	Keywords []Keyword `yaml:"keywords"`
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns are checked in this order; each adds one point at most.
var patterns = []pattern{
	{"iban", regexp.MustCompile(`(?i)\b[a-z]{2}\d{2}\s?\d{4}\s?\d{4}\s?\d{4}`)},
	{"email", regexp.MustCompile(`\b\S+@\S+\.\S+\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{"url", regexp.MustCompile(`(?i)https?://\S+`)},
	{"phone", regexp.MustCompile(`\b0\d{10}\b`)},
}

// ParseTable decodes a keyword table. Keywords are lower-cased; duplicates
// keep their first weight.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse keyword table: %w", err)
	}
	seen := make(map[string]bool, len(t.Keywords))
	out := t.Keywords[:0]
	for i, kw := range t.Keywords {
		k := strings.ToLower(strings.TrimSpace(kw.Keyword))
		if k == "" {
			return Table{}, fmt.Errorf("keyword table: entry %d has empty keyword", i)
		}
		if kw.Weight < 0 {
			return Table{}, fmt.Errorf("keyword table: %q has negative weight %d", k, kw.Weight)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Keyword{Keyword: k, Weight: kw.Weight})
	}
	t.Keywords = out
	return t, nil
}

// LoadTable reads a keyword table from path, or the embedded default when
// path is empty.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return ParseTable(defaultTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read keyword table: %w", err)
	}
	return ParseTable(data)
}

// Scorer is safe for concurrent use.
type Scorer struct {
	keywords []Keyword
	matcher  *ahocorasick.Matcher
}

// NewScorer builds the keyword automaton for t.
func NewScorer(t Table) *Scorer {
	s := &Scorer{keywords: append([]Keyword(nil), t.Keywords...)}
	if len(s.keywords) == 0 {
		return s
	}
	dict := make([]string, len(s.keywords))
	for i, kw := range s.keywords {
		kw.Keyword = strings.ToLower(kw.Keyword)
		s.keywords[i] = kw
		dict[i] = kw.Keyword
	}
	s.matcher = ahocorasick.NewStringMatcher(dict)
	return s
}

// Score returns the risk score of text and the labels that produced it:
// keywords in table order, then "[regex:name]" labels, then domain labels.
func (s *Scorer) Score(text string, info *domain.DomainInfo) (int, []string) {
	score := 0
	var hits []string

	lower := strings.ToLower(text)
	if s.matcher != nil && lower != "" {
		idx := s.matcher.MatchThreadSafe([]byte(lower))
		sort.Ints(idx)
		for n, i := range idx {
			if n > 0 && idx[n-1] == i {
				continue
			}
			score += s.keywords[i].Weight
			hits = append(hits, s.keywords[i].Keyword)
		}
	}

	for _, p := range patterns {
		if p.re.MatchString(text) {
			score++
			hits = append(hits, "[regex:"+p.name+"]")
		}
	}

	if info != nil {
		if info.AgeDays >= 0 && info.AgeDays < YoungDomainDays {
			score += DomainPenalty
			hits = append(hits, HitYoungDomain)
		}
		if info.RegistrationDays >= 0 && info.RegistrationDays < ShortRegistrationDays {
			score += DomainPenalty
			hits = append(hits, HitShortRegistration)
		}
		if !info.Registered {
			score += DomainPenalty
			hits = append(hits, HitUnregistered)
		}
	}

	return score, hits
}
