// Package rdap implements the domain registration lookup used to enrich documents.
// It queries RDAP (Registration Data Access Protocol) servers through the rdap.org
// bootstrap and derives domain age, registration length and registration status.
package rdap

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/net/publicsuffix"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/platform/cache"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/httpclient"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/platform/resilience"
	"phishfuse/internal/platform/validator"
)

const (
	// DefaultBaseURL is the rdap.org bootstrap service for automatic server discovery.
	DefaultBaseURL = "https://rdap.org/domain/"

	// DefaultCacheTTL keeps answers for a day; registration dates rarely move.
	DefaultCacheTTL = 24 * time.Hour

	sourceName = "rdap"
)

// Config holds the RDAP client settings.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	CacheSize        int
	CacheTTL         time.Duration
	FailureThreshold int           // consecutive failures before the breaker opens
	Cooldown         time.Duration // time the breaker stays open
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          10 * time.Second,
		RateLimit:        5,
		CacheSize:        1000,
		CacheTTL:         DefaultCacheTTL,
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
	}
}

// Client implements ports.DomainInfoProvider over RDAP.
type Client struct {
	http    *httpclient.Client
	cache   *cache.LRU[*domain.DomainInfo]
	breaker *resilience.CircuitBreaker
	clock   clockwork.Clock
	logger  logx.Logger
	cfg     Config
}

// rdapResponse is the subset of an RDAP domain object we read.
type rdapResponse struct {
	ObjectClassName string      `json:"objectClassName"`
	LDHName         string      `json:"ldhName"`
	Status          []string    `json:"status"`
	Events          []rdapEvent `json:"events"`
}

type rdapEvent struct {
	EventAction string `json:"eventAction"` // registration, last changed, expiration
	EventDate   string `json:"eventDate"`
}

// New creates an RDAP client. A nil clock uses the real clock.
func New(cfg Config, clock clockwork.Clock, logger logx.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logx.New()
	}

	httpConfig := httpclient.DefaultConfig()
	httpConfig.Timeout = cfg.Timeout
	httpConfig.MaxRetries = 2
	httpConfig.MaxRetryBackoff = 10 * time.Second
	httpConfig.RateLimit = cfg.RateLimit
	httpConfig.RateLimitBurst = 2

	return &Client{
		http:    httpclient.New(httpConfig, logger),
		cache:   cache.NewWithClock[*domain.DomainInfo](cfg.CacheSize, clock),
		breaker: resilience.NewCircuitBreakerWithClock(cfg.FailureThreshold, cfg.Cooldown, 1, clock),
		clock:   clock,
		logger:  logger.With("source", sourceName),
		cfg:     cfg,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return sourceName }

// Lookup returns registration metadata for the registrable domain of rawURL.
// A domain unknown to RDAP is reported as unregistered. Transport failures and
// an open breaker return an error so the caller can score without enrichment.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*domain.DomainInfo, error) {
	name := BaseDomain(rawURL)
	if name == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "no domain in %q", rawURL)
	}
	if !validator.IsRegistrable(name) {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%q has no registrable domain", name)
	}

	if info, ok := c.cache.Get(name); ok {
		c.logger.Debug("RDAP response found in cache", "domain", name)
		return info, nil
	}

	var resp *rdapResponse
	err := c.breaker.Do(func() error {
		var err error
		resp, err = c.query(ctx, name)
		return err
	}, countsAsOutage)

	var info *domain.DomainInfo
	switch {
	case err == nil:
		info = c.toDomainInfo(name, resp)
	case errors.IsNotFound(err):
		info = &domain.DomainInfo{
			Domain:           name,
			AgeDays:          domain.UnknownDays,
			RegistrationDays: domain.UnknownDays,
		}
	case errors.Is(err, resilience.ErrCircuitOpen):
		st := c.breaker.Stats()
		c.logger.Debug("RDAP circuit open, skipping lookup",
			"domain", name,
			"state", st.State.String(),
			"failures", st.FailureCount,
			"last_failure", st.LastFailureTime,
		)
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "rdap circuit open")
	default:
		c.logger.Warn("RDAP query failed", "domain", name, "error", err.Error())
		return nil, errors.Wrapf(err, "RDAP query failed for %s", name)
	}

	c.cache.Set(name, info, c.cfg.CacheTTL)
	c.logger.Debug("RDAP query completed",
		"domain", name,
		"age_days", info.AgeDays,
		"registered", info.Registered,
	)
	return info, nil
}

// countsAsOutage decides which errors move the breaker. Not-found is an answer.
func countsAsOutage(err error) bool {
	return !errors.IsNotFound(err) && !errors.Is(err, context.Canceled)
}

func (c *Client) query(ctx context.Context, name string) (*rdapResponse, error) {
	endpoint := c.cfg.BaseURL + url.PathEscape(name)
	body, err := c.http.FetchJSON(ctx, endpoint, map[string]string{"Accept": "application/rdap+json, application/json"})
	if err != nil {
		return nil, err
	}
	var resp rdapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "parse RDAP response for %s: %v", name, err)
	}
	return &resp, nil
}

// toDomainInfo derives the scoring metrics from the registration events.
func (c *Client) toDomainInfo(name string, resp *rdapResponse) *domain.DomainInfo {
	info := &domain.DomainInfo{
		Domain:           name,
		AgeDays:          domain.UnknownDays,
		RegistrationDays: domain.UnknownDays,
		Registered:       resp.LDHName != "" || len(resp.Events) > 0,
	}

	var created, expires time.Time
	for _, ev := range resp.Events {
		at, ok := parseEventDate(ev.EventDate)
		if !ok {
			continue
		}
		switch strings.ToLower(ev.EventAction) {
		case "registration":
			created = at
		case "expiration":
			expires = at
		}
	}

	if !created.IsZero() {
		info.AgeDays = days(c.clock.Now().Sub(created))
		if !expires.IsZero() {
			info.RegistrationDays = days(expires.Sub(created))
		}
	}
	return info
}

func days(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

func parseEventDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// BaseDomain extracts the registrable domain (eTLD+1) of a URL or host.
// Handles multi-label suffixes like .co.uk using the Public Suffix List.
//
// Examples:
//   - https://login.secure.example.com/x -> example.com
//   - test.example.co.uk -> example.co.uk
func BaseDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	} else {
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}

	eTLDPlusOne, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, bare suffixes and IPs have no registrable domain
		return host
	}
	return eTLDPlusOne
}
