package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/httpclient"
)

// HTTPClassifier delegates scoring to a remote model server.
type HTTPClassifier struct {
	endpoint string
	client   *httpclient.Client
}

type scoreRequest struct {
	URL            string   `json:"url"`
	FeatureVersion string   `json:"feature_version"`
	Features       Features `json:"features"`
}

type scoreResponse struct {
	Probability *float64 `json:"probability"`
}

// NewHTTPClassifier builds a classifier posting to endpoint.
func NewHTTPClassifier(endpoint string, client *httpclient.Client) *HTTPClassifier {
	return &HTTPClassifier{endpoint: endpoint, client: client}
}

// Assess implements ports.Classifier.
func (c *HTTPClassifier) Assess(ctx context.Context, url string) (float64, error) {
	body, err := json.Marshal(scoreRequest{URL: url, FeatureVersion: FeatureVersion, Features: Extract(url)})
	if err != nil {
		return 0, errors.Wrap(err, "encode score request")
	}

	resp, err := c.client.PostJSON(ctx, c.endpoint, bytes.NewReader(body), nil)
	if err != nil {
		return 0, errors.Wrap(err, "score request")
	}
	if err := httpclient.CheckStatus(resp); err != nil {
		resp.Body.Close()
		return 0, errors.Wrap(err, "score request")
	}
	data, err := httpclient.ReadBody(resp)
	if err != nil {
		return 0, err
	}

	var out scoreResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, errors.Wrap(errors.ErrInvalidResponse, err.Error())
	}
	if out.Probability == nil {
		return 0, errors.Wrap(errors.ErrInvalidResponse, "missing probability")
	}
	p := *out.Probability
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", domain.ErrProbabilityRange, p)
	}
	return p, nil
}

// FeatureVersion implements ports.Classifier.
func (c *HTTPClassifier) FeatureVersion() string { return FeatureVersion }
