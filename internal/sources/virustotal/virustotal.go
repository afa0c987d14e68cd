// Package virustotal implements the external verdict service over the
// VirusTotal v3 URL API: URLs are submitted for analysis and later queried
// for their last analysis statistics.
package virustotal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/httpclient"
	"phishfuse/internal/platform/logx"
)

const (
	// DefaultBaseURL is the VirusTotal v3 API root.
	DefaultBaseURL = "https://www.virustotal.com/api/v3"

	// DefaultRateLimit matches the public API quota of 4 requests per minute.
	DefaultRateLimit = 4.0 / 60.0

	serviceName = "virustotal"

	endpointURLs = "/urls"
)

// Config holds the client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables client-side pacing
}

// Client implements ports.IntelService.
type Client struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
	logger  logx.Logger
}

// New creates a VirusTotal client. The API key is required.
func New(cfg Config, logger logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.Wrap(domain.ErrMissingConfig, "virustotal api key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logx.New()
	}

	httpConfig := httpclient.DefaultConfig()
	httpConfig.Timeout = cfg.Timeout
	httpConfig.MaxRetries = 2
	httpConfig.RetryBackoff = 2 * time.Second
	httpConfig.RateLimit = cfg.RateLimit
	// the poller owns 429 handling: it pauses the whole batch
	httpConfig.SurfaceRateLimit = true

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpclient.New(httpConfig, logger),
		logger:  logger.With("component", "virustotal"),
	}, nil
}

// Name returns the service name.
func (c *Client) Name() string { return serviceName }

// Submit asks VirusTotal to (re)analyse rawURL.
func (c *Client) Submit(ctx context.Context, rawURL string) error {
	form := url.Values{"url": {rawURL}}
	resp, err := c.client.Post(ctx, c.baseURL+endpointURLs, strings.NewReader(form.Encode()), map[string]string{
		"x-apikey":     c.apiKey,
		"Accept":       "application/json",
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return errors.Wrapf(err, "submit %s", rawURL)
	}
	defer resp.Body.Close()

	if err := c.classify(httpclient.CheckStatus(resp)); err != nil {
		return errors.Wrapf(err, "submit %s", rawURL)
	}
	c.logger.Debug("url submitted", "url", rawURL, "status", resp.StatusCode)
	return nil
}

// Query returns the last analysis statistics for rawURL. errors.ErrNotFound
// means VirusTotal has no analysis yet.
func (c *Client) Query(ctx context.Context, rawURL string) (domain.ScanStats, error) {
	endpoint := c.baseURL + endpointURLs + "/" + URLID(rawURL)
	body, err := c.client.FetchJSON(ctx, endpoint, map[string]string{"x-apikey": c.apiKey})
	if err != nil {
		return domain.ScanStats{}, errors.Wrapf(c.classify(err), "query %s", rawURL)
	}

	var obj urlObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return domain.ScanStats{}, errors.Wrapf(errors.ErrInvalidResponse, "query %s: %v", rawURL, err)
	}
	stats := obj.Data.Attributes.LastAnalysisStats.toDomain()
	c.logger.Debug("url queried",
		"url", rawURL,
		"malicious", stats.Malicious,
		"suspicious", stats.Suspicious,
		"total", stats.Total(),
	)
	return stats, nil
}

// classify names the service on rate-limit errors.
func (c *Client) classify(err error) error {
	var rl *errors.RateLimitError
	if errors.As(err, &rl) {
		rl.Service = serviceName
	}
	return err
}

// URLID is the VirusTotal identifier of a URL: unpadded base64url of the URL string.
func URLID(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

// urlObject is the subset of the v3 URL object we read.
type urlObject struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			LastAnalysisStats analysisStats `json:"last_analysis_stats"`
			LastAnalysisDate  int64         `json:"last_analysis_date"`
		} `json:"attributes"`
	} `json:"data"`
}

type analysisStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
	Timeout    int `json:"timeout"`
}

func (s analysisStats) toDomain() domain.ScanStats {
	return domain.ScanStats{
		Malicious:  s.Malicious,
		Suspicious: s.Suspicious,
		Harmless:   s.Harmless,
		Undetected: s.Undetected,
		Timeout:    s.Timeout,
	}
}
