package urlfilter

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// deobfuscatePattern covers every dot substitution seen in the wild.
	deobfuscatePattern = regexp.MustCompile(`(?i)\[dot\]|\(dot\)|\s+dot\s+|\[\.\]|\(\.\)`)
	paddedDotPattern   = regexp.MustCompile(`\s*\.\s*`)
	schemePattern      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)
)

const trailingPunct = ".,;:'\""

// Deobfuscate rewrites disguised separators to literal dots, removes escape
// characters and collapses whitespace-padded dots.
func Deobfuscate(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, `\`, "")
	s = deobfuscatePattern.ReplaceAllString(s, ".")
	s = paddedDotPattern.ReplaceAllString(s, ".")
	return strings.TrimSpace(s)
}

// EnsureScheme prefixes https:// when raw carries no scheme.
func EnsureScheme(raw string) string {
	if schemePattern.MatchString(raw) {
		return raw
	}
	return "https://" + raw
}

// cleanCandidate turns a raw regex capture into a URL string ready for validation.
func cleanCandidate(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.PathUnescape(raw)
	if err != nil {
		u = raw
	}
	// "(dot)" must be rewritten before the cut at the first ')'.
	u = Deobfuscate(u)
	u, _, _ = strings.Cut(u, ")")
	u = strings.TrimSpace(strings.TrimRight(u, trailingPunct))
	if u == "" {
		return ""
	}
	return EnsureScheme(u)
}

// IsValid reports whether u is an actionable http(s) URL: a host with at
// least one dot and no label shorter than two characters. Only scheme and
// host are checked, so a malformed escape in the path does not disqualify u.
func IsValid(u string) bool {
	prefix, auth, _, ok := authority(u)
	if !ok {
		return false
	}
	scheme := strings.ToLower(strings.TrimSuffix(prefix, "://"))
	if scheme != "http" && scheme != "https" {
		return false
	}
	_, host, _ := splitHostPort(auth)
	if host == "" || strings.ContainsAny(host, " \t\r\n[]") {
		return false
	}
	if !strings.Contains(host, ".") {
		return false
	}
	labels := hostLabels(host)
	if len(labels) == 0 {
		return false
	}
	for _, l := range labels {
		if len(l) < 2 {
			return false
		}
	}
	return true
}

func hostLabels(host string) []string {
	parts := strings.Split(host, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// authority splits u into scheme://, authority and the remainder. It works on
// the raw string so paths are never re-escaped.
func authority(u string) (prefix, auth, rest string, ok bool) {
	i := strings.Index(u, "://")
	if i < 0 {
		return "", "", "", false
	}
	prefix = u[:i+3]
	tail := u[i+3:]
	end := strings.IndexAny(tail, "/?#")
	if end < 0 {
		end = len(tail)
	}
	return prefix, tail[:end], tail[end:], true
}

// splitHostPort separates userinfo and port from the host of an authority.
func splitHostPort(auth string) (userinfo, host, port string) {
	if at := strings.LastIndex(auth, "@"); at >= 0 {
		userinfo, auth = auth[:at+1], auth[at+1:]
	}
	if strings.HasPrefix(auth, "[") {
		return userinfo, auth, ""
	}
	if c := strings.LastIndex(auth, ":"); c >= 0 {
		return userinfo, auth[:c], auth[c:]
	}
	return userinfo, auth, ""
}

// Canonical lower-cases scheme and authority, leaving path, query and
// fragment untouched.
func Canonical(u string) string {
	prefix, auth, rest, ok := authority(u)
	if !ok {
		return u
	}
	return strings.ToLower(prefix) + strings.ToLower(auth) + rest
}

// StripSentenceArtifacts drops a trailing host label that is a leftover
// character or looks like a capitalised word glued on by punctuation
// ("evil.com.Click" -> "evil.com").
func StripSentenceArtifacts(u string) string {
	prefix, auth, rest, ok := authority(u)
	if !ok {
		return u
	}
	userinfo, host, port := splitHostPort(auth)
	labels := hostLabels(host)
	if len(labels) == 0 {
		return u
	}
	if utf8.RuneCountInString(labels[len(labels)-1]) == 1 {
		labels = labels[:len(labels)-1]
	}
	if n := len(labels); n > 0 && looksLikeWord(labels[n-1]) {
		labels = labels[:n-1]
	}
	if len(labels) == 0 {
		return u
	}
	return prefix + userinfo + strings.Join(labels, ".") + port + rest
}

func looksLikeWord(label string) bool {
	first, _ := utf8.DecodeRuneInString(label)
	return unicode.IsUpper(first) &&
		utf8.RuneCountInString(label) <= 6 &&
		strings.ToLower(label) != label
}

// CleanURL normalises a single stored URL field, which may still carry
// markdown wrapping. ok is false when nothing valid remains.
func CleanURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if m := markdownTargetPattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	} else if _, after, found := strings.Cut(raw, "]("); found {
		raw = after
	}
	u := cleanCandidate(raw)
	if !IsValid(u) {
		return "", false
	}
	return Canonical(u), true
}
