package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/logx"
)

// DefaultThreshold is the probability at or above which a document is labelled 1.
const DefaultThreshold = 0.75

// Assessor turns per-URL probabilities into one ClassifierAssessment per document.
type Assessor struct {
	classifier ports.Classifier
	threshold  float64
	clock      clockwork.Clock
	logger     logx.Logger
}

// NewAssessor checks that c speaks the current feature contract.
func NewAssessor(c ports.Classifier, threshold float64, clock clockwork.Clock, logger logx.Logger) (*Assessor, error) {
	if c == nil {
		return nil, domain.ErrClassifierNotLoaded
	}
	if v := c.FeatureVersion(); v != FeatureVersion {
		return nil, fmt.Errorf("%w: classifier %q, extractor %q", domain.ErrFeatureVersion, v, FeatureVersion)
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: classifier threshold %v outside (0,1]", domain.ErrInvalidConfig, threshold)
	}
	return &Assessor{
		classifier: c,
		threshold:  threshold,
		clock:      clock,
		logger:     logger.With("component", "assessor"),
	}, nil
}

// Threshold returns the decision threshold.
func (a *Assessor) Threshold() float64 { return a.threshold }

// Assess scores every URL and keeps the most suspicious one. It returns
// (nil, nil) when urls is empty. URLs that fail are skipped; if all fail the
// joined errors are returned.
func (a *Assessor) Assess(ctx context.Context, urls []string) (*domain.ClassifierAssessment, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	best, bestURL := -1.0, ""
	var errs []error
	for _, u := range urls {
		p, err := a.classifier.Assess(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("classifier failed", "url", u, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s: %w: %v", u, domain.ErrProbabilityRange, p))
			continue
		}
		if p > best {
			best, bestURL = p, u
		}
	}
	if bestURL == "" {
		return nil, errors.Join(errs...)
	}

	return domain.NewAssessment(best, a.threshold, bestURL, a.classifier.FeatureVersion(), a.clock.Now().UTC())
}
