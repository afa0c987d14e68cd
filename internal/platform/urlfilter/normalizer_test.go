package urlfilter

import (
	"testing"

	"phishfuse/internal/testutil"
)

func TestDeobfuscate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"example[dot]com", "example.com"},
		{"example (dot) com", "example.com"},
		{"example dot com", "example.com"},
		{"example[.]com", "example.com"},
		{"example(.)com", "example.com"},
		{`example\.com`, "example.com"},
		{"foo . bar", "foo.bar"},
		{"EXAMPLE[DOT]COM", "EXAMPLE.COM"},
		{"  spaced.com  ", "spaced.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			testutil.AssertEqual(t, Deobfuscate(tt.input), tt.expected, "deobfuscated")
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range testutil.FixtureValidURLs {
		testutil.AssertTrue(t, IsValid(u), u)
	}
	for _, u := range testutil.FixtureInvalidHosts {
		testutil.AssertFalse(t, IsValid(u), u)
	}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"missing scheme", "example.com", false},
		{"empty host", "https:///path", false},
		{"upper scheme parsed lowercase", "HTTPS://example.com", true},
		{"empty labels ignored", "https://example..com", true},
		{"single char tld", "https://example.c", false},
		{"malformed escape in path", "https://evil.com/%zz", true},
		{"malformed escape in query", "https://evil.com/login?next=%", true},
		{"port and userinfo", "http://user@evil.com:8080/x", true},
		{"bracket in host", "http://secure-login[dot", false},
		{"non http scheme", "ftp://evil.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, IsValid(tt.input), tt.want, tt.input)
		})
	}
}

func TestStripSentenceArtifacts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"leftover character", "https://evil.com.A", "https://evil.com"},
		{"leftover then capitalised word", "https://login.bank.Update.x/path", "https://login.bank/path"},
		{"long capitalised label kept", "https://site.Account", "https://site.Account"},
		{"lowercase label kept", "https://example.com", "https://example.com"},
		{"port preserved", "https://evil.com.Z:8443/a", "https://evil.com:8443/a"},
		{"nothing left keeps input", "https://A", "https://A"},
		{"no authority", "not a url", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, StripSentenceArtifacts(tt.input), tt.expected, "stripped")
		})
	}
}

func TestCanonical(t *testing.T) {
	testutil.AssertEqual(t, Canonical("HTTPS://Example.COM/Path?Q=1"), "https://example.com/Path?Q=1", "canonical")
	testutil.AssertEqual(t, Canonical("https://Example.com"), "https://example.com", "no path")
	testutil.AssertEqual(t, Canonical("garbage"), "garbage", "no scheme separator")
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"markdown wrapped", "[x](https://evil.com/a)", "https://evil.com/a", true},
		{"half markdown", "label](https://evil.com/b", "https://evil.com/b", true},
		{"obfuscated", "evil[dot]com", "https://evil.com", true},
		{"trailing punctuation", "https://evil.com/login.,", "https://evil.com/login", true},
		{"garbage", "garbage", "", false},
		{"empty", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanURL(tt.input)
			testutil.AssertEqual(t, ok, tt.wantOK, "ok")
			testutil.AssertEqual(t, got, tt.want, "url")
		})
	}
}
