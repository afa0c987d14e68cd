package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"phishfuse/internal/core/domain"
)

//go:embed default_model.yaml
var defaultModel []byte

// LinearModel is a logistic model over Features. Features missing from
// Weights contribute nothing; weights for unknown features are rejected on load.
type LinearModel struct {
	Version   string             `yaml:"feature_version"`
	Intercept float64            `yaml:"intercept"`
	Weights   map[string]float64 `yaml:"weights"`
}

// ParseModel decodes a model document and checks it against FeatureVersion.
func ParseModel(data []byte) (*LinearModel, error) {
	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if m.Version != FeatureVersion {
		return nil, fmt.Errorf("%w: model %q, extractor %q", domain.ErrFeatureVersion, m.Version, FeatureVersion)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("%w: model has no weights", domain.ErrClassifierNotLoaded)
	}
	known := Extract("https://example.com/")
	for name, w := range m.Weights {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("model weight for unknown feature %q", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("model weight %q is not finite", name)
		}
	}
	return &m, nil
}

// LoadModel reads a model file. An empty path loads the bundled model.
func LoadModel(path string) (*LinearModel, error) {
	if path == "" {
		return ParseModel(defaultModel)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return ParseModel(data)
}

// Probability scores a feature vector.
func (m *LinearModel) Probability(f Features) float64 {
	z := m.Intercept
	for name, w := range m.Weights {
		z += w * f[name]
	}
	return 1 / (1 + math.Exp(-z))
}

// Assess implements ports.Classifier.
func (m *LinearModel) Assess(ctx context.Context, url string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Probability(Extract(url)), nil
}

// FeatureVersion implements ports.Classifier.
func (m *LinearModel) FeatureVersion() string { return m.Version }
