// internal/core/usecases/ingest_test.go
package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/adapters/storage/memory"
	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/core/scoring"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/testutil"
)

func defaultScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	table, err := scoring.LoadTable("")
	testutil.AssertNoError(t, err, "default keyword table")
	return scoring.NewScorer(table)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("doc-%d", n.Add(1)) }
}

func newTestIngest(t *testing.T, repo ports.Repository, texts []string, mutate func(o *IngestOptions)) *IngestService {
	t.Helper()
	opts := IngestOptions{
		Repository:   repo,
		Source:       fakeSource{texts: texts},
		Scorer:       defaultScorer(t),
		IntelMinRisk: 1,
		Concurrency:  1,
		Clock:        clockwork.NewFakeClockAt(t0),
		NewID:        sequentialIDs(),
		Logger:       logx.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewIngestService(opts)
	testutil.AssertNoError(t, err, "new ingest")
	return s
}

func TestIngest_ScenarioA(t *testing.T) {
	repo := memory.New()
	text := "Verify your account at http://secure-login[dot]badsite.com/verify now!"

	report, err := newTestIngest(t, repo, []string{text}, nil).Run(context.Background())
	testutil.AssertNoError(t, err, "ingest")
	testutil.AssertEqual(t, report.Inserted, 1, "inserted")

	doc, err := repo.GetDocument(context.Background(), "doc-1")
	testutil.AssertNoError(t, err, "get")
	testutil.AssertDeepEqual(t, doc.URLs, []string{"https://secure-login.badsite.com/verify"}, "deobfuscated url")
	testutil.AssertTrue(t, doc.RiskScore >= 3, fmt.Sprintf("risk score %d >= 3", doc.RiskScore))
	testutil.AssertContains(t, doc.Hits, "verify", "keyword verify")
	testutil.AssertContains(t, doc.Hits, "login", "keyword login")
	testutil.AssertContains(t, doc.Hits, "[regex:url]", "url pattern")
	testutil.AssertEqual(t, doc.ContentKey, domain.ContentKey(text), "content key")
	testutil.AssertTrue(t, doc.CreatedAt.Equal(t0), "created at from clock")

	rec, err := repo.GetIntel(context.Background(), "https://secure-login.badsite.com/verify")
	testutil.AssertNoError(t, err, "intel record created")
	testutil.AssertEqual(t, rec.Submission, domain.SubmissionNotSubmitted, "not submitted yet")
}

func TestIngest_DeduplicatesAndSkips(t *testing.T) {
	repo := memory.New()
	texts := []string{
		"Urgent: confirm your password at example[.]com/reset",
		"  Urgent: confirm your password at example[.]com/reset  ",
		"",
		"nothing to see here, just words",
		"broken link http://x[dot]y",
	}

	report, err := newTestIngest(t, repo, texts, nil).Run(context.Background())
	testutil.AssertNoError(t, err, "ingest")
	testutil.AssertEqual(t, report.Fetched, 5, "fetched")
	testutil.AssertEqual(t, report.Duplicates, 1, "same trimmed text")
	testutil.AssertEqual(t, report.Skipped, 2, "empty and url-less texts")
	testutil.AssertEqual(t, report.Inserted, 2, "inserted")

	again, err := newTestIngest(t, repo, texts[:1], nil).Run(context.Background())
	testutil.AssertNoError(t, err, "re-ingest")
	testutil.AssertEqual(t, again.Inserted, 0, "already stored")
	testutil.AssertEqual(t, again.Duplicates, 1, "duplicate against the store")

	n, err := repo.CountDocuments(context.Background(), ports.DocumentFilter{})
	testutil.AssertNoError(t, err, "count")
	testutil.AssertEqual(t, n, 2, "one document per distinct text")

	docs, err := repo.FindDocuments(context.Background(), ports.DocumentFilter{})
	testutil.AssertNoError(t, err, "find")
	var fragmented *domain.Document
	for _, d := range docs {
		if strings.HasPrefix(d.Text, "broken") {
			fragmented = d
		}
	}
	testutil.AssertNotNil(t, fragmented, "fragment-only text stored")
	testutil.AssertLen(t, fragmented.URLs, 0, "no valid urls")
	testutil.AssertTrue(t, fragmented.HasFlag(domain.QCNoValidURLButFragments), "quality flag")
}

func TestIngest_Enrichment(t *testing.T) {
	repo := memory.New()
	text := "your parcel is waiting: https://bit.ly/abc123"
	final := "https://parcel-track.example.net/pay"

	report, err := newTestIngest(t, repo, []string{text}, func(o *IngestOptions) {
		o.Expander = fakeExpander{"https://bit.ly/abc123": "HTTPS://Parcel-Track.example.net/pay"}
		o.DomainInfo = fakeDomainInfo{info: map[string]*domain.DomainInfo{
			final: {Domain: "example.net", AgeDays: 3, RegistrationDays: 365, Registered: true},
		}}
		o.Pages = fakePages{final: "  Enter your   credit card\n to release the parcel  "}
	}).Run(context.Background())
	testutil.AssertNoError(t, err, "ingest")
	testutil.AssertEqual(t, report.Inserted, 1, "inserted")

	doc, err := repo.GetDocument(context.Background(), "doc-1")
	testutil.AssertNoError(t, err, "get")
	testutil.AssertDeepEqual(t, doc.URLs, []string{final}, "expanded canonical url")
	testutil.AssertEqual(t, doc.PageExcerpt, "Enter your credit card to release the parcel", "collapsed excerpt")
	testutil.AssertNotNil(t, doc.DomainInfo, "domain info")
	testutil.AssertContains(t, doc.Hits, scoring.HitYoungDomain, "young domain")
	testutil.AssertContains(t, doc.Hits, "credit card", "keyword from page text")
}

func TestIngest_IntelMinRisk(t *testing.T) {
	repo := memory.New()
	texts := []string{
		"see https://harmless.example.org/blog for the recipe",
		"verify your bank login at https://bank-verify.example.org",
	}

	report, err := newTestIngest(t, repo, texts, func(o *IngestOptions) { o.IntelMinRisk = 3 }).Run(context.Background())
	testutil.AssertNoError(t, err, "ingest")
	testutil.AssertEqual(t, report.IntelCreated, 1, "only the risky text is sent to intel")

	recs, err := repo.FindIntel(context.Background(), ports.IntelFilter{})
	testutil.AssertNoError(t, err, "find intel")
	testutil.AssertLen(t, recs, 1, "one record")
	testutil.AssertEqual(t, recs[0].URL, "https://bank-verify.example.org", "risky url")
}

func TestIngest_SourceError(t *testing.T) {
	repo := memory.New()
	s, err := NewIngestService(IngestOptions{
		Repository: repo,
		Source:     fakeSource{err: fmt.Errorf("feed unavailable")},
		Scorer:     defaultScorer(t),
		Logger:     logx.Discard(),
	})
	testutil.AssertNoError(t, err, "new ingest")
	_, err = s.Run(context.Background())
	testutil.AssertError(t, err, "source failure surfaces")

	_, err = NewIngestService(IngestOptions{Repository: repo})
	testutil.AssertErrorIs(t, err, domain.ErrMissingConfig, "missing source")
}
