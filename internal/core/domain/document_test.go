// internal/core/domain/document_test.go
package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"phishfuse/internal/testutil"
)

func TestNewAssessment(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		p         float64
		threshold float64
		wantLabel int
		wantErr   bool
	}{
		{"above threshold", 0.80, 0.75, 1, false},
		{"at threshold", 0.75, 0.75, 1, false},
		{"below threshold", 0.74, 0.75, 0, false},
		{"lower two-stage threshold", 0.72, 0.71, 1, false},
		{"negative", -0.1, 0.75, 0, true},
		{"above one", 1.2, 0.75, 0, true},
		{"nan", math.NaN(), 0.75, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAssessment(tt.p, tt.threshold, "https://x.example.com", "v2", now)
			if tt.wantErr {
				testutil.AssertErrorIs(t, err, ErrProbabilityRange, "range error")
				return
			}
			testutil.AssertNoError(t, err, "assessment")
			testutil.AssertEqual(t, a.Label, tt.wantLabel, "label")
			testutil.AssertEqual(t, a.Threshold, tt.threshold, "threshold recorded")
			testutil.AssertEqual(t, a.ComputedAt, now, "computed at")
		})
	}
}

func TestQualityFlagsFor(t *testing.T) {
	long := strings.Repeat("a", LongTextRunes+1)

	tests := []struct {
		name      string
		text      string
		urls      []string
		fragments []string
		want      []string
	}{
		{
			name: "clean document",
			text: "a perfectly ordinary sentence about nothing",
			urls: []string{"https://example.com"},
		},
		{
			name:      "fragments only",
			text:      "a perfectly ordinary sentence about nothing",
			fragments: []string{"http://secure-login[dot"},
			want:      []string{QCNoValidURLButFragments, QCFragmentedURL},
		},
		{
			name:      "fragments next to valid urls",
			text:      "a perfectly ordinary sentence about nothing",
			urls:      []string{"https://example.com"},
			fragments: []string{"https://a.b"},
			want:      []string{QCFragmentedURL},
		},
		{
			name: "short text",
			text: "  click here  ",
			want: []string{QCShortText},
		},
		{
			name: "long text",
			text: long,
			want: []string{QCLongText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertDeepEqual(t, QualityFlagsFor(tt.text, tt.urls, tt.fragments), tt.want, "flags")
		})
	}
}

func TestDocumentFlags(t *testing.T) {
	d := &Document{}
	d.AddFlag(QCInvalidRiskScore)
	d.AddFlag(QCInvalidRiskScore)
	testutil.AssertLen(t, d.QualityFlags, 1, "flag not duplicated")
	testutil.AssertTrue(t, d.HasFlag(QCInvalidRiskScore), "has flag")
	testutil.AssertFalse(t, d.Flagged(), "no verdict means not flagged")

	d.Verdict = &FusionVerdict{Status: StatusSuspicious}
	testutil.AssertTrue(t, d.Flagged(), "suspicious verdict is flagged")
}

func TestContentKey(t *testing.T) {
	testutil.AssertEqual(t, ContentKey("  same text "), ContentKey("same text"), "trimmed text shares key")
	testutil.AssertNotContains(t, ContentKey("a"), ContentKey("b"), "different text differs")
	testutil.AssertLen(t, ContentKey("x"), 64, "hex sha256")
}

func TestDocumentSanitize(t *testing.T) {
	t.Run("negative risk", func(t *testing.T) {
		d := &Document{RiskScore: -3}
		testutil.AssertTrue(t, d.Sanitize(), "changed")
		testutil.AssertEqual(t, d.RiskScore, 0, "coerced")
		testutil.AssertTrue(t, d.HasFlag(QCInvalidRiskScore), "flagged")
	})

	t.Run("probability out of range", func(t *testing.T) {
		orig := &ClassifierAssessment{Probability: 1.7, Label: 1, Threshold: 0.75}
		d := &Document{Assessment: orig}
		testutil.AssertTrue(t, d.Sanitize(), "changed")
		testutil.AssertEqual(t, d.Assessment.Probability, 0.0, "coerced")
		testutil.AssertEqual(t, d.Assessment.Label, 0, "label reset")
		testutil.AssertEqual(t, orig.Probability, 1.7, "original untouched")
		testutil.AssertTrue(t, d.HasFlag(QCInvalidProbability), "flagged")
	})

	t.Run("valid document", func(t *testing.T) {
		d := &Document{RiskScore: 4, Assessment: &ClassifierAssessment{Probability: 0.4}}
		testutil.AssertFalse(t, d.Sanitize(), "unchanged")
		testutil.AssertLen(t, d.QualityFlags, 0, "no flags")
	})
}
