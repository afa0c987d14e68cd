package urlfilter

import (
	"regexp"
	"strings"
)

var (
	markdownLinkPattern   = regexp.MustCompile(`(?i)\[.*?\]\((https?://[^\s)]+)\)`)
	markdownTargetPattern = regexp.MustCompile(`(?i)\((https?://[^\s)]+)\)`)
	bareURLPattern        = regexp.MustCompile(`(?i)https?://[^\s)>\]]+`)

	// domainLikePattern finds scheme-less tokens whose labels are joined by a
	// literal or disguised dot.
	domainLikePattern = regexp.MustCompile(
		`(?i)[a-z0-9_.\-]+(?:\s*(?:\[dot\]|\(dot\)|\[\.\]|\(\.\)|\\\.|\s+dot\s+|\.)\s*[a-z0-9_.\-]+)+[^\s)]*`)
)

// Class is the confidence class of an extracted candidate.
type Class int

const (
	Valid Class = iota
	Fragment
)

func (c Class) String() string {
	if c == Valid {
		return "valid"
	}
	return "fragment"
}

// Candidate is a URL-like string pulled out of free text.
type Candidate struct {
	URL   string
	Class Class
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

func (s span) within(o span) bool { return s.start >= o.start && s.end <= o.end }

// extraction accumulates candidates of one Extract call. seen is shared by
// both classes so a canonical string lands in exactly one of them.
type extraction struct {
	seen       map[string]struct{}
	candidates []Candidate
}

// add classifies raw and records it. It reports whether a Valid URL came out.
func (e *extraction) add(cleaned string) bool {
	if cleaned == "" {
		return false
	}
	if IsValid(cleaned) {
		e.record(Canonical(cleaned), Valid)
		return true
	}
	if stripped := StripSentenceArtifacts(cleaned); stripped != cleaned && IsValid(stripped) {
		e.record(Canonical(stripped), Valid)
		return true
	}
	e.record(Canonical(cleaned), Fragment)
	return false
}

func (e *extraction) record(u string, c Class) {
	if _, dup := e.seen[u]; dup {
		return
	}
	e.seen[u] = struct{}{}
	e.candidates = append(e.candidates, Candidate{URL: u, Class: c})
}

// ExtractCandidates returns every candidate of text in first-seen order.
// Sources are tried in priority order: markdown links, bare scheme URLs, then
// scheme-less (possibly obfuscated) domain tokens. A bare URL inside a
// markdown link, a domain token inside an already valid URL and a domain token
// starting with "http" are skipped.
func ExtractCandidates(text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	e := &extraction{seen: make(map[string]struct{})}

	var markdown, resolved []span
	for _, m := range markdownLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		markdown = append(markdown, span{m[0], m[1]})
		if e.add(cleanCandidate(text[m[2]:m[3]])) {
			resolved = append(resolved, span{m[0], m[1]})
		}
	}

	for _, m := range bareURLPattern.FindAllStringIndex(text, -1) {
		s := span{m[0], m[1]}
		if containedIn(s, markdown) {
			continue
		}
		if e.add(cleanCandidate(text[m[0]:m[1]])) {
			resolved = append(resolved, s)
		}
	}

	for _, m := range domainLikePattern.FindAllStringIndex(text, -1) {
		if overlapsAny(span{m[0], m[1]}, resolved) {
			continue
		}
		raw := strings.TrimRight(strings.TrimSpace(text[m[0]:m[1]]), trailingPunct)
		if hasHTTPPrefix(raw) {
			continue
		}
		e.add(cleanCandidate(raw))
	}

	return e.candidates
}

// Extract splits the candidates of text into valid URLs and fragments. Both
// slices keep first-seen order and never share an element.
func Extract(text string) (valid, fragments []string) {
	for _, c := range ExtractCandidates(text) {
		if c.Class == Valid {
			valid = append(valid, c.URL)
		} else {
			fragments = append(fragments, c.URL)
		}
	}
	return valid, fragments
}

// hasHTTPPrefix matches scheme remnants such as "https.evil.com" left by a
// broken scheme separator.
func hasHTTPPrefix(token string) bool {
	return len(token) >= 4 && strings.EqualFold(token[:4], "http")
}

func containedIn(s span, set []span) bool {
	for _, o := range set {
		if s.within(o) {
			return true
		}
	}
	return false
}

func overlapsAny(s span, set []span) bool {
	for _, o := range set {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}
