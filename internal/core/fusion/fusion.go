// Package fusion turns the lexical, classifier and intel signals of a document
// into one verdict through a named, configurable strategy.
package fusion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"phishfuse/internal/core/domain"
)

// Strategy names accepted by configuration.
const (
	StrategyPrecedence = "precedence"
	StrategyTwoStage   = "two-stage"
)

// Anomaly labels.
const (
	AnomalyIntelMaliciousLowRisk = "intel_malicious_but_low_risk"
	AnomalyManyRulesLowConf      = "many_rules_but_low_model_conf"
)

// Signals are the inputs of a fusion decision. Assessment is nil until the
// classifier ran; Intel is the aggregated verdict of the document's URLs.
type Signals struct {
	RiskScore  int
	Hits       []string
	Assessment *domain.ClassifierAssessment
	Intel      domain.IntelVerdict
}

// Decision is the outcome of a strategy before it is stamped into a FusionVerdict.
type Decision struct {
	Status    domain.FusionStatus
	PreFilter domain.PreFilter
	Reasons   []string
}

// Strategy decides a status from signals. Implementations are pure.
type Strategy interface {
	Name() string
	Decide(s Signals) Decision
}

// AnomalyConfig holds the advisory thresholds.
type AnomalyConfig struct {
	// LowRiskCutoff: intel malicious with a risk score below it is flagged
	LowRiskCutoff int
	// RuleHitFloor: this many lexical hits with a low classifier probability is flagged
	RuleHitFloor int
	// LowConfidence is the probability under which the classifier is "low confidence"
	LowConfidence float64
}

// DefaultAnomalyConfig returns the thresholds used by the dashboards.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{LowRiskCutoff: 10, RuleHitFloor: 3, LowConfidence: 0.4}
}

// Precedence trusts intel first: malicious, then suspicious, then a positive
// classifier label. Anything else yields no verdict.
type Precedence struct{}

func (Precedence) Name() string { return StrategyPrecedence }

func (Precedence) Decide(s Signals) Decision {
	switch {
	case s.Intel == domain.VerdictMalicious:
		return Decision{Status: domain.StatusMalicious, Reasons: []string{"intel verdict malicious"}}
	case s.Intel == domain.VerdictSuspicious:
		return Decision{Status: domain.StatusSuspicious, Reasons: []string{"intel verdict suspicious"}}
	case s.Assessment != nil && s.Assessment.Label == 1:
		return Decision{Status: domain.StatusSuspicious, Reasons: []string{classifierReason(s.Assessment)}}
	default:
		return Decision{Status: domain.StatusSafe}
	}
}

// TwoStage lets the classifier gate first. A suspicious pre-filter is
// escalated to malicious only when intel independently confirms it.
type TwoStage struct{}

func (TwoStage) Name() string { return StrategyTwoStage }

func (TwoStage) Decide(s Signals) Decision {
	if s.Assessment == nil || s.Assessment.Label == 0 {
		d := Decision{Status: domain.StatusSafe}
		if s.Assessment != nil {
			d.PreFilter = domain.PreFilterSafe
		}
		return d
	}
	d := Decision{
		Status:    domain.StatusSuspicious,
		PreFilter: domain.PreFilterSuspicious,
		Reasons:   []string{"pre-filter suspicious: " + classifierReason(s.Assessment)},
	}
	if s.Intel == domain.VerdictMalicious {
		d.Status = domain.StatusMalicious
		d.Reasons = append(d.Reasons, "intel confirmed malicious")
	} else {
		d.Reasons = append(d.Reasons, fmt.Sprintf("intel %s, not escalated", s.Intel))
	}
	return d
}

func classifierReason(a *domain.ClassifierAssessment) string {
	return fmt.Sprintf("classifier probability %.2f >= threshold %.2f", a.Probability, a.Threshold)
}

var registry = map[string]Strategy{
	StrategyPrecedence: Precedence{},
	StrategyTwoStage:   TwoStage{},
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	s, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", domain.ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Anomalies returns the advisory flags for s. They never change a decision.
func Anomalies(s Signals, cfg AnomalyConfig) []string {
	var out []string
	if s.Intel == domain.VerdictMalicious && s.RiskScore < cfg.LowRiskCutoff {
		out = append(out, AnomalyIntelMaliciousLowRisk)
	}
	if s.Assessment != nil && len(s.Hits) >= cfg.RuleHitFloor && s.Assessment.Probability < cfg.LowConfidence {
		out = append(out, AnomalyManyRulesLowConf)
	}
	return out
}

// Engine applies one strategy plus anomaly detection.
type Engine struct {
	strategy Strategy
	anomaly  AnomalyConfig
}

// NewEngine builds an engine for the named strategy.
func NewEngine(strategy string, anomaly AnomalyConfig) (*Engine, error) {
	s, err := Lookup(strategy)
	if err != nil {
		return nil, err
	}
	return &Engine{strategy: s, anomaly: anomaly}, nil
}

// Strategy returns the name of the configured strategy.
func (e *Engine) Strategy() string { return e.strategy.Name() }

// Fuse returns the verdict for s, or nil when the document is safe or no
// actionable signal exists yet (no assessment and no resolved intel).
func (e *Engine) Fuse(s Signals, now time.Time) *domain.FusionVerdict {
	if s.Assessment == nil && !s.Intel.Resolving() {
		return nil
	}
	d := e.strategy.Decide(s)
	if !d.Status.Flagged() {
		return nil
	}

	v := &domain.FusionVerdict{
		Status:       d.Status,
		Strategy:     e.strategy.Name(),
		PreFilter:    d.PreFilter,
		RiskScore:    s.RiskScore,
		IntelVerdict: s.Intel,
		Reasons:      d.Reasons,
		Anomalies:    Anomalies(s, e.anomaly),
		ComputedAt:   now,
	}
	if s.Assessment != nil {
		p, l := s.Assessment.Probability, s.Assessment.Label
		v.Probability, v.Label = &p, &l
	}
	return v
}
