// internal/core/usecases/classify_test.go
package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/adapters/storage/memory"
	"phishfuse/internal/classifier"
	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/testutil"
)

func insertDoc(t *testing.T, repo ports.DocumentRepository, id string, risk int, urls ...string) *domain.Document {
	t.Helper()
	d := &domain.Document{
		ID:         id,
		ContentKey: domain.ContentKey(id),
		Text:       "text of " + id,
		URLs:       urls,
		RiskScore:  risk,
		CreatedAt:  t0,
	}
	_, err := repo.InsertDocument(context.Background(), d)
	testutil.AssertNoError(t, err, "insert "+id)
	return d
}

func newTestClassify(t *testing.T, repo ports.DocumentRepository, c *fakeClassifier, clock clockwork.Clock) *ClassifyService {
	t.Helper()
	a, err := classifier.NewAssessor(c, 0.75, clock, logx.Discard())
	testutil.AssertNoError(t, err, "assessor")
	s, err := NewClassifyService(ClassifyOptions{
		Repository:  repo,
		Assessor:    a,
		Concurrency: 2,
		Clock:       clock,
		Logger:      logx.Discard(),
	})
	testutil.AssertNoError(t, err, "classify service")
	return s
}

func TestClassify_AttachesAndCachesAssessments(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	insertDoc(t, repo, "phish", 4, "https://a.example.com/login", "https://b.example.com")
	insertDoc(t, repo, "benign", 1, "https://docs.example.org")
	insertDoc(t, repo, "no-urls", 0)
	insertDoc(t, repo, "broken", 2, "https://unknown.example.net")

	c := &fakeClassifier{
		version: classifier.FeatureVersion,
		probs: map[string]float64{
			"https://a.example.com/login": 0.80,
			"https://b.example.com":       0.30,
			"https://docs.example.org":    0.05,
		},
	}
	clock := clockwork.NewFakeClockAt(t0)

	report, err := newTestClassify(t, repo, c, clock).Run(ctx, false)
	testutil.AssertNoError(t, err, "classify")
	testutil.AssertEqual(t, report.Candidates, 3, "documents with urls")
	testutil.AssertEqual(t, report.Assessed, 2, "assessed")
	testutil.AssertEqual(t, report.Positive, 1, "above threshold")
	testutil.AssertEqual(t, report.Failed, 1, "classifier had no score")

	phish, err := repo.GetDocument(ctx, "phish")
	testutil.AssertNoError(t, err, "get")
	testutil.AssertNotNil(t, phish.Assessment, "assessment")
	testutil.AssertEqual(t, phish.Assessment.Probability, 0.80, "max over urls")
	testutil.AssertEqual(t, phish.Assessment.Label, 1, "label")
	testutil.AssertEqual(t, phish.Assessment.URL, "https://a.example.com/login", "url that produced it")
	testutil.AssertEqual(t, phish.Assessment.FeatureVersion, classifier.FeatureVersion, "feature version")

	calls := c.calls
	clock.Advance(time.Hour)
	report, err = newTestClassify(t, repo, c, clock).Run(ctx, false)
	testutil.AssertNoError(t, err, "second classify")
	testutil.AssertEqual(t, report.Candidates, 1, "only the failed document is retried")
	testutil.AssertEqual(t, c.calls, calls+1, "cached assessments are not recomputed")

	report, err = newTestClassify(t, repo, c, clock).Run(ctx, true)
	testutil.AssertNoError(t, err, "reassess")
	testutil.AssertEqual(t, report.Candidates, 3, "reassess covers every document with urls")

	phish, _ = repo.GetDocument(ctx, "phish")
	testutil.AssertTrue(t, phish.Assessment.ComputedAt.Equal(t0.Add(time.Hour)), "recomputed on request")
}

func TestClassify_MissingDeps(t *testing.T) {
	_, err := NewClassifyService(ClassifyOptions{Repository: memory.New()})
	testutil.AssertErrorIs(t, err, domain.ErrMissingConfig, "missing assessor")
}
