package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/testutil"
)

func testScorer(t *testing.T) *Scorer {
	t.Helper()
	table, err := ParseTable([]byte(`
keywords:
  - {keyword: verify, weight: 1}
  - {keyword: login, weight: 1}
  - {keyword: account, weight: 1}
  - {keyword: password, weight: 2}
`))
	testutil.AssertNoError(t, err, "parse table")
	return NewScorer(table)
}

func TestScorer_Score(t *testing.T) {
	s := testScorer(t)

	tests := []struct {
		name      string
		text      string
		info      *domain.DomainInfo
		wantScore int
		wantHits  []string
	}{
		{
			name:      "obfuscated phishing post",
			text:      "Verify your account at http://secure-login[dot]badsite.com/verify now!",
			wantScore: 4,
			wantHits:  []string{"verify", "login", "account", "[regex:url]"},
		},
		{
			name:      "keyword repeated counts once",
			text:      "verify verify VERIFY",
			wantScore: 1,
			wantHits:  []string{"verify"},
		},
		{
			name:      "hits follow table order",
			text:      "password for your LOGIN",
			wantScore: 3,
			wantHits:  []string{"login", "password"},
		},
		{
			name:      "email pattern once",
			text:      "mail a@b.com and c@d.org",
			wantScore: 1,
			wantHits:  []string{"[regex:email]"},
		},
		{
			name:      "card number",
			text:      "pay with 4111 1111 1111 1111 today",
			wantScore: 1,
			wantHits:  []string{"[regex:credit_card]"},
		},
		{
			name:      "phone number",
			text:      "call 05321234567",
			wantScore: 1,
			wantHits:  []string{"[regex:phone]"},
		},
		{
			name:      "iban also looks like a card",
			text:      "send to TR33 0006 1005 1978 6457 8413 26",
			wantScore: 2,
			wantHits:  []string{"[regex:iban]", "[regex:credit_card]"},
		},
		{
			name:      "young domain with short registration",
			text:      "nothing to see",
			info:      &domain.DomainInfo{AgeDays: 10, RegistrationDays: 30, Registered: true},
			wantScore: 4,
			wantHits:  []string{HitYoungDomain, HitShortRegistration},
		},
		{
			name:      "unregistered domain with unknown dates",
			text:      "nothing to see",
			info:      &domain.DomainInfo{AgeDays: domain.UnknownDays, RegistrationDays: domain.UnknownDays},
			wantScore: 2,
			wantHits:  []string{HitUnregistered},
		},
		{
			name:      "established domain",
			text:      "nothing to see",
			info:      &domain.DomainInfo{AgeDays: 4000, RegistrationDays: 3650, Registered: true},
			wantScore: 0,
		},
		{
			name:      "empty text",
			text:      "",
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, hits := s.Score(tt.text, tt.info)
			testutil.AssertEqual(t, score, tt.wantScore, "score")
			testutil.AssertDeepEqual(t, hits, tt.wantHits, "hits")
		})
	}
}

func TestScorer_Deterministic(t *testing.T) {
	s := testScorer(t)
	info := &domain.DomainInfo{AgeDays: 3, RegistrationDays: 365, Registered: true}

	score1, hits1 := s.Score(testutil.FixtureBankPost, info)
	score2, hits2 := s.Score(testutil.FixtureBankPost, info)
	testutil.AssertEqual(t, score1, score2, "score")
	testutil.AssertDeepEqual(t, hits1, hits2, "hits")
}

func TestDefaultTable_ObfuscatedPost(t *testing.T) {
	table, err := LoadTable("")
	testutil.AssertNoError(t, err, "default table")
	testutil.AssertTrue(t, len(table.Keywords) > 10, "default table has entries")

	score, hits := NewScorer(table).Score("Verify your account at http://secure-login[dot]badsite.com/verify now!", nil)
	testutil.AssertTrue(t, score >= 3, "risk score at least 3")
	testutil.AssertContains(t, hits, "verify", "verify hit")
	testutil.AssertContains(t, hits, "login", "login hit")
	testutil.AssertContains(t, hits, "[regex:url]", "url hit")
}

func TestParseTable(t *testing.T) {
	t.Run("lower-cases and drops duplicates", func(t *testing.T) {
		table, err := ParseTable([]byte("keywords:\n  - {keyword: ' Bank ', weight: 1}\n  - {keyword: bank, weight: 5}\n"))
		testutil.AssertNoError(t, err, "parse")
		testutil.AssertLen(t, table.Keywords, 1, "deduplicated")
		testutil.AssertEqual(t, table.Keywords[0], Keyword{Keyword: "bank", Weight: 1}, "first weight kept")
	})

	errorCases := map[string]string{
		"empty keyword":   "keywords:\n  - {keyword: '', weight: 1}\n",
		"negative weight": "keywords:\n  - {keyword: x, weight: -1}\n",
		"bad yaml":        "keywords: [",
	}
	for name, doc := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(doc))
			testutil.AssertError(t, err, name)
		})
	}
}

func TestLoadTable_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kw.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("keywords:\n  - {keyword: crypto, weight: 3}\n"), 0o600), "write")

	table, err := LoadTable(path)
	testutil.AssertNoError(t, err, "load")
	score, hits := NewScorer(table).Score("Free CRYPTO airdrop", nil)
	testutil.AssertEqual(t, score, 3, "score")
	testutil.AssertDeepEqual(t, hits, []string{"crypto"}, "hits")

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	testutil.AssertError(t, err, "missing file")
}
