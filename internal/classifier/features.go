// Package classifier holds the URL feature contract and the classifier adapters
// that consume it: a local linear model and a remote scoring endpoint.
package classifier

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// FeatureVersion identifies the feature contract below. A model trained
// against a different contract must not be scored with these features.
const FeatureVersion = "v2"

var (
	ipHostRe      = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)
	emailRe       = regexp.MustCompile(`[a-zA-Z0-9_.+\-]+@[a-zA-Z0-9\-]+\.[a-zA-Z0-9\-.]+`)
	tldTokenRe    = regexp.MustCompile(`\.(com|net|org|xyz|ru|info|io|app|gov|edu)`)
	pathExtRe     = regexp.MustCompile(`\.(php|html?|aspx|jsp|exe|zip|rar|msi|sh)$`)
	shorteners    = []string{"bit.ly", "tinyurl", "goo.gl", "t.co/", "ow.ly", "is.gd", "cutt.ly"}
	riskTokens    = []string{"login", "secure", "update", "verify", "bank", "account", "signin", "wp-admin", "confirm"}
	brandTokens   = []string{"paypal", "amazon", "apple", "google", "microsoft", "facebook", "instagram", "netflix"}
	specialTokens = "?=&%$@!*^~()[]{}"
)

// Features is the named numeric vector of one URL.
type Features map[string]float64

// Names returns the feature names in sorted order.
func (f Features) Names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Extract computes the features of raw. It never fails: an unparseable URL
// yields host and path features of zero.
func Extract(raw string) Features {
	var host, path string
	port := 0.0
	if u, err := url.Parse(raw); err == nil {
		host = strings.ToLower(u.Hostname())
		path = u.EscapedPath()
		if u.Port() != "" {
			port = 1
		}
	}
	lower := strings.ToLower(raw)
	labels := splitLabels(host)

	f := Features{
		"url_length":        float64(len(raw)),
		"host_length":       float64(len(host)),
		"ip_in_host":        flag(ipHostRe.MatchString(host)),
		"nb_dots":           count(raw, "."),
		"nb_hyphens":        count(raw, "-"),
		"nb_at":             count(raw, "@"),
		"nb_qm":             count(raw, "?"),
		"nb_and":            count(raw, "&"),
		"nb_eq":             count(raw, "="),
		"nb_underscore":     count(raw, "_"),
		"nb_tilde":          count(raw, "~"),
		"nb_percent":        count(raw, "%"),
		"nb_slash":          count(raw, "/"),
		"nb_colon":          count(raw, ":"),
		"nb_semicolon":      count(raw, ";"),
		"nb_www":            count(lower, "www"),
		"nb_com":            count(lower, ".com"),
		"nb_dslash":         count(raw, "//"),
		"http_in_path":      flag(strings.Contains(path, "http")),
		"https_token":       flag(len(lower) > 8 && strings.Contains(lower[8:], "https")),
		"ratio_digits_url":  digitRatio(raw),
		"ratio_digits_host": digitRatio(host),
		"punycode":          flag(strings.Contains(lower, "xn--")),
		"port":              port,
		"tld_in_path":       flag(tldTokenRe.MatchString(path)),
		"tld_in_subdomain":  flag(len(labels) > 0 && tldTokenRe.MatchString("."+labels[0])),
		"nb_subdomains":     float64(subdomainCount(host)),
		"prefix_suffix":     flag(strings.Contains(host, "-")),
		"shortening":        flag(containsAny(lower, shorteners)),
		"path_extension":    flag(pathExtRe.MatchString(path)),
		"risk_keywords":     flag(containsAny(lower, riskTokens)),
		"brand_in_url":      flag(containsAny(lower, brandTokens)),
		"brand_outside_reg": flag(brandOutsideRegistrable(host)),
		"contains_email":    flag(emailRe.MatchString(raw)),
		"has_redirect":      flag(strings.Contains(path, "//")),
		"num_digits":        float64(digits(raw)),
		"num_special":       float64(countAny(raw, specialTokens)),
	}

	segs := pathSegments(path)
	f["path_segments"] = float64(len(segs))
	if len(segs) > 0 {
		shortest, longest, total := len(segs[0]), 0, 0
		for _, s := range segs {
			if len(s) < shortest {
				shortest = len(s)
			}
			if len(s) > longest {
				longest = len(s)
			}
			total += len(s)
		}
		f["shortest_word_path"] = float64(shortest)
		f["longest_word_path"] = float64(longest)
		f["avg_word_path"] = float64(total) / float64(len(segs))
	} else {
		f["shortest_word_path"], f["longest_word_path"], f["avg_word_path"] = 0, 0, 0
	}
	return f
}

// RegistrableDomain returns the eTLD+1 of host, or host itself when it has no
// public suffix (IP literals, single labels).
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// subdomainCount is the number of labels left of the registrable domain.
func subdomainCount(host string) int {
	if host == "" || ipHostRe.MatchString(host) {
		return 0
	}
	reg := RegistrableDomain(host)
	if reg == host {
		return 0
	}
	return strings.Count(strings.TrimSuffix(host, reg), ".")
}

// brandOutsideRegistrable flags hosts like paypal.com.evil.io, where a brand
// appears only in the subdomain part.
func brandOutsideRegistrable(host string) bool {
	if host == "" {
		return false
	}
	reg := RegistrableDomain(host)
	sub := strings.TrimSuffix(host, reg)
	return containsAny(sub, brandTokens) && !containsAny(reg, brandTokens)
}

func splitLabels(host string) []string {
	if host == "" {
		return nil
	}
	return strings.Split(host, ".")
}

func pathSegments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func count(s, sub string) float64 { return float64(strings.Count(s, sub)) }

func countAny(s, chars string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			n++
		}
	}
	return n
}

func digits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

func digitRatio(s string) float64 {
	if s == "" {
		return 0
	}
	return float64(digits(s)) / float64(len(s))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
