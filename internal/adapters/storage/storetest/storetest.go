// Package storetest is the behavioural contract every ports.Repository
// implementation must satisfy. Adapters call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/testutil"
)

// Factory returns a fresh, empty repository.
type Factory func(t *testing.T) ports.Repository

var base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newDoc(id, text string, risk int, at time.Time) *domain.Document {
	return &domain.Document{
		ID:           id,
		ContentKey:   domain.ContentKey(text),
		Source:       "test",
		Text:         text,
		URLs:         []string{"https://" + id + ".example.com/login"},
		Fragments:    []string{"http://frag[dot"},
		RiskScore:    risk,
		Hits:         []string{"login"},
		DomainInfo:   &domain.DomainInfo{Domain: "example.com", AgeDays: 12, RegistrationDays: 365, Registered: true},
		QualityFlags: []string{domain.QCFragmentedURL},
		CreatedAt:    at,
	}
}

// Run executes the contract against repositories produced by f.
func Run(t *testing.T, f Factory) {
	t.Run("documents", func(t *testing.T) { testDocuments(t, f(t)) })
	t.Run("document filters", func(t *testing.T) { testDocumentFilters(t, f(t)) })
	t.Run("intel lifecycle", func(t *testing.T) { testIntel(t, f(t)) })
	t.Run("intel filters", func(t *testing.T) { testIntelFilters(t, f(t)) })
}

func testDocuments(t *testing.T, repo ports.Repository) {
	ctx := context.Background()
	defer repo.Close()

	doc := newDoc("doc-1", "Verify your account now", 4, base)
	inserted, err := repo.InsertDocument(ctx, doc)
	testutil.AssertNoError(t, err, "insert")
	testutil.AssertTrue(t, inserted, "first insert")

	dup := newDoc("doc-2", "  Verify your account now ", 4, base.Add(time.Minute))
	inserted, err = repo.InsertDocument(ctx, dup)
	testutil.AssertNoError(t, err, "insert duplicate")
	testutil.AssertFalse(t, inserted, "duplicate content is not inserted")
	testutil.AssertEqual(t, dup.ID, "doc-1", "duplicate takes stored id")

	n, err := repo.CountDocuments(ctx, ports.DocumentFilter{})
	testutil.AssertNoError(t, err, "count")
	testutil.AssertEqual(t, n, 1, "one document")

	got, err := repo.GetDocument(ctx, "doc-1")
	testutil.AssertNoError(t, err, "get")
	testutil.AssertEqual(t, got.Text, doc.Text, "text")
	testutil.AssertDeepEqual(t, got.URLs, doc.URLs, "urls")
	testutil.AssertDeepEqual(t, got.Fragments, doc.Fragments, "fragments")
	testutil.AssertDeepEqual(t, got.Hits, doc.Hits, "hits")
	testutil.AssertDeepEqual(t, got.DomainInfo, doc.DomainInfo, "domain info")
	testutil.AssertDeepEqual(t, got.QualityFlags, doc.QualityFlags, "quality flags")
	testutil.AssertTrue(t, got.CreatedAt.Equal(base), "created at")
	testutil.AssertTrue(t, got.Assessment == nil, "no assessment yet")
	testutil.AssertTrue(t, got.Verdict == nil, "no verdict yet")

	_, err = repo.GetDocument(ctx, "missing")
	testutil.AssertErrorIs(t, err, domain.ErrDocumentNotFound, "missing document")

	a, err := domain.NewAssessment(0.8, 0.75, doc.URLs[0], "v2", base.Add(time.Hour))
	testutil.AssertNoError(t, err, "assessment")
	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-1", ports.DocumentUpdate{Assessment: a}), "set assessment")

	p, l := 0.8, 1
	verdict := &domain.FusionVerdict{
		Status:       domain.StatusSuspicious,
		Strategy:     "precedence",
		RiskScore:    4,
		Probability:  &p,
		Label:        &l,
		IntelVerdict: domain.VerdictUnknown,
		Reasons:      []string{"classifier"},
		ComputedAt:   base.Add(2 * time.Hour),
	}
	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-1", ports.DocumentUpdate{Verdict: verdict}), "set verdict")

	got, err = repo.GetDocument(ctx, "doc-1")
	testutil.AssertNoError(t, err, "get after update")
	testutil.AssertNotNil(t, got.Assessment, "assessment stored")
	testutil.AssertEqual(t, got.Assessment.Probability, 0.8, "probability")
	testutil.AssertEqual(t, got.Assessment.Label, 1, "label")
	testutil.AssertNotNil(t, got.Verdict, "verdict stored")
	testutil.AssertEqual(t, got.Verdict.Status, domain.StatusSuspicious, "status")
	testutil.AssertEqual(t, *got.Verdict.Probability, 0.8, "verdict probability")
	testutil.AssertTrue(t, got.Flagged(), "flagged")

	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-1", ports.DocumentUpdate{ClearVerdict: true}), "clear verdict")
	got, err = repo.GetDocument(ctx, "doc-1")
	testutil.AssertNoError(t, err, "get after clear")
	testutil.AssertTrue(t, got.Verdict == nil, "verdict cleared")
	testutil.AssertNotNil(t, got.Assessment, "assessment kept")

	err = repo.UpdateDocument(ctx, "missing", ports.DocumentUpdate{ClearVerdict: true})
	testutil.AssertErrorIs(t, err, domain.ErrDocumentNotFound, "update missing")
}

func testDocumentFilters(t *testing.T, repo ports.Repository) {
	ctx := context.Background()
	defer repo.Close()

	risks := []int{3, 9, 1, 9, 0}
	for i, r := range risks {
		d := newDoc(fmt.Sprintf("doc-%d", i), fmt.Sprintf("text number %d", i), r, base.Add(time.Duration(i)*time.Minute))
		_, err := repo.InsertDocument(ctx, d)
		testutil.AssertNoError(t, err, "insert")
	}
	verdict := &domain.FusionVerdict{Status: domain.StatusMalicious, Strategy: "precedence", IntelVerdict: domain.VerdictMalicious, ComputedAt: base}
	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-0", ports.DocumentUpdate{Verdict: verdict}), "flag doc-0")
	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-3", ports.DocumentUpdate{Verdict: verdict}), "flag doc-3")
	a, _ := domain.NewAssessment(0.1, 0.75, "", "v2", base)
	testutil.AssertNoError(t, repo.UpdateDocument(ctx, "doc-1", ports.DocumentUpdate{Assessment: a}), "assess doc-1")

	ids := func(docs []*domain.Document) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter ports.DocumentFilter
		want   []string
	}{
		{"all in creation order", ports.DocumentFilter{}, []string{"doc-0", "doc-1", "doc-2", "doc-3", "doc-4"}},
		{"by risk with ties in creation order", ports.DocumentFilter{OrderByRisk: true}, []string{"doc-1", "doc-3", "doc-0", "doc-2", "doc-4"}},
		{"limit", ports.DocumentFilter{OrderByRisk: true, Limit: 2}, []string{"doc-1", "doc-3"}},
		{"flagged", ports.DocumentFilter{Flagged: ports.Ptr(true), OrderByRisk: true}, []string{"doc-3", "doc-0"}},
		{"not flagged", ports.DocumentFilter{Flagged: ports.Ptr(false)}, []string{"doc-1", "doc-2", "doc-4"}},
		{"min risk", ports.DocumentFilter{MinRisk: 3}, []string{"doc-0", "doc-1", "doc-3"}},
		{"without assessment", ports.DocumentFilter{HasAssessment: ports.Ptr(false), MinRisk: 1}, []string{"doc-0", "doc-2", "doc-3"}},
		{"ids", ports.DocumentFilter{IDs: []string{"doc-4", "doc-2", "nope"}}, []string{"doc-2", "doc-4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := repo.FindDocuments(ctx, tt.filter)
			testutil.AssertNoError(t, err, "find")
			testutil.AssertDeepEqual(t, ids(docs), tt.want, "ids")

			n, err := repo.CountDocuments(ctx, ports.DocumentFilter{IDs: tt.filter.IDs, Flagged: tt.filter.Flagged, HasAssessment: tt.filter.HasAssessment, MinRisk: tt.filter.MinRisk})
			testutil.AssertNoError(t, err, "count")
			if tt.filter.Limit == 0 {
				testutil.AssertEqual(t, n, len(tt.want), "count matches find")
			}
		})
	}
}

func testIntel(t *testing.T, repo ports.Repository) {
	ctx := context.Background()
	defer repo.Close()
	const url = "https://secure-login.badsite.com/verify"

	created, err := repo.EnsureIntel(ctx, url, base)
	testutil.AssertNoError(t, err, "ensure")
	testutil.AssertTrue(t, created, "created")

	created, err = repo.EnsureIntel(ctx, url, base.Add(time.Hour))
	testutil.AssertNoError(t, err, "ensure again")
	testutil.AssertFalse(t, created, "already exists")

	rec, err := repo.GetIntel(ctx, url)
	testutil.AssertNoError(t, err, "get")
	testutil.AssertEqual(t, rec.Submission, domain.SubmissionNotSubmitted, "submission")
	testutil.AssertEqual(t, rec.Resolution, domain.ResolutionPending, "resolution")
	testutil.AssertEqual(t, rec.Verdict, domain.VerdictUnknown, "verdict")
	testutil.AssertTrue(t, rec.CreatedAt.Equal(base), "created at kept")
	testutil.AssertNoError(t, rec.Validate(), "valid record")

	_, err = repo.GetIntel(ctx, "https://missing.example.com")
	testutil.AssertErrorIs(t, err, domain.ErrIntelNotFound, "missing")

	applied, err := repo.UpdateIntel(ctx, url, ports.IntelUpdate{
		Submission: ports.Ptr(domain.SubmissionSubmitted),
		Submits:    ports.Ptr(1),
		Attempts:   ports.Ptr(2),
		LastError:  ports.Ptr("timeout talking to scanner"),
		UpdatedAt:  base.Add(time.Minute),
	})
	testutil.AssertNoError(t, err, "submit")
	testutil.AssertTrue(t, applied, "applied")

	resolvedAt := base.Add(10 * time.Minute)
	resolve := ports.IntelUpdate{
		Resolution:  ports.Ptr(domain.ResolutionResolved),
		Verdict:     ports.Ptr(domain.VerdictMalicious),
		Stats:       &domain.ScanStats{Malicious: 3, Harmless: 60, Undetected: 10},
		LastError:   ports.Ptr(""),
		ResolvedAt:  &resolvedAt,
		UpdatedAt:   resolvedAt,
		OnlyPending: true,
	}
	applied, err = repo.UpdateIntel(ctx, url, resolve)
	testutil.AssertNoError(t, err, "resolve")
	testutil.AssertTrue(t, applied, "resolution applied")

	before, err := repo.GetIntel(ctx, url)
	testutil.AssertNoError(t, err, "get resolved")

	resolve.UpdatedAt = resolvedAt.Add(time.Hour)
	applied, err = repo.UpdateIntel(ctx, url, resolve)
	testutil.AssertNoError(t, err, "replay is not an error")
	testutil.AssertFalse(t, applied, "replay is a no-op")

	after, err := repo.GetIntel(ctx, url)
	testutil.AssertNoError(t, err, "get after replay")
	testutil.AssertEqual(t, after.Attempts, 2, "attempts unchanged")
	testutil.AssertEqual(t, after.Submits, 1, "submits unchanged")
	testutil.AssertEqual(t, after.Verdict, domain.VerdictMalicious, "verdict")
	testutil.AssertEqual(t, after.Stats, domain.ScanStats{Malicious: 3, Harmless: 60, Undetected: 10}, "stats")
	testutil.AssertEqual(t, after.LastError, "", "last error cleared")
	testutil.AssertTrue(t, after.UpdatedAt.Equal(before.UpdatedAt), "updated at unchanged by replay")
	testutil.AssertNotNil(t, after.ResolvedAt, "resolved at")
	testutil.AssertTrue(t, after.ResolvedAt.Equal(resolvedAt), "resolved at value")
	testutil.AssertNoError(t, after.Validate(), "valid record")

	_, err = repo.UpdateIntel(ctx, "https://missing.example.com", ports.IntelUpdate{UpdatedAt: base})
	testutil.AssertErrorIs(t, err, domain.ErrIntelNotFound, "update missing")

	_, err = repo.UpdateIntel(ctx, "https://missing.example.com", ports.IntelUpdate{UpdatedAt: base, OnlyPending: true})
	testutil.AssertErrorIs(t, err, domain.ErrIntelNotFound, "guarded update missing")
}

func testIntelFilters(t *testing.T, repo ports.Repository) {
	ctx := context.Background()
	defer repo.Close()

	urls := []string{"https://c.example.com", "https://a.example.com", "https://b.example.com"}
	for _, u := range urls {
		_, err := repo.EnsureIntel(ctx, u, base)
		testutil.AssertNoError(t, err, "ensure")
	}
	_, err := repo.UpdateIntel(ctx, "https://b.example.com", ports.IntelUpdate{Submission: ports.Ptr(domain.SubmissionSubmitted), UpdatedAt: base})
	testutil.AssertNoError(t, err, "submit b")
	_, err = repo.UpdateIntel(ctx, "https://c.example.com", ports.IntelUpdate{
		Submission: ports.Ptr(domain.SubmissionSubmitted),
		Resolution: ports.Ptr(domain.ResolutionTimedOut),
		Verdict:    ports.Ptr(domain.VerdictTimeout),
		UpdatedAt:  base,
	})
	testutil.AssertNoError(t, err, "time out c")

	urlsOf := func(recs []*domain.IntelRecord) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.URL
		}
		return out
	}

	tests := []struct {
		name   string
		filter ports.IntelFilter
		want   []string
	}{
		{"all ordered by url", ports.IntelFilter{}, []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}},
		{"pending", ports.IntelFilter{Resolution: domain.ResolutionPending}, []string{"https://a.example.com", "https://b.example.com"}},
		{"submitted pending", ports.IntelFilter{Submission: domain.SubmissionSubmitted, Resolution: domain.ResolutionPending}, []string{"https://b.example.com"}},
		{"by urls", ports.IntelFilter{URLs: []string{"https://c.example.com", "https://a.example.com"}}, []string{"https://a.example.com", "https://c.example.com"}},
		{"limit", ports.IntelFilter{Limit: 1}, []string{"https://a.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.FindIntel(ctx, tt.filter)
			testutil.AssertNoError(t, err, "find")
			testutil.AssertDeepEqual(t, urlsOf(recs), tt.want, "urls")
		})
	}
}
