// Package pages fetches the pages behind extracted URLs: it follows shortener
// redirects to the final destination and extracts visible page text that is
// appended to the text scored for phishing keywords.
package pages

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/httpclient"
	"phishfuse/internal/platform/logx"
)

// MaxBodyBytes bounds how much of a page is read.
const MaxBodyBytes = 1 << 20

// Config holds the fetcher settings.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		MaxRedirects: 10,
		UserAgent:    "Mozilla/5.0 (compatible; phishfuse/1.0)",
	}
}

// Fetcher implements ports.LinkExpander and ports.PageFetcher.
type Fetcher struct {
	client *httpclient.Client
	logger logx.Logger
}

// New creates a page fetcher.
func New(cfg Config, logger logx.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = logx.New()
	}

	httpConfig := httpclient.DefaultConfig()
	httpConfig.Timeout = cfg.Timeout
	httpConfig.MaxRetries = 0
	httpConfig.MaxRedirects = cfg.MaxRedirects
	httpConfig.UserAgent = cfg.UserAgent

	return &Fetcher{
		client: httpclient.New(httpConfig, logger),
		logger: logger.With("component", "pages"),
	}
}

// Expand follows redirects from rawURL and returns the final URL. Servers that
// refuse HEAD are retried with GET.
func (f *Fetcher) Expand(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.client.Head(ctx, rawURL, nil)
	if err != nil {
		return rawURL, errors.Wrapf(err, "expand %s", rawURL)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = f.client.Get(ctx, rawURL, nil)
		if err != nil {
			return rawURL, errors.Wrapf(err, "expand %s", rawURL)
		}
		resp.Body.Close()
	}

	final := finalURL(resp, rawURL)
	if final != rawURL {
		f.logger.Debug("link expanded", "from", rawURL, "to", final)
	}
	return final, nil
}

func finalURL(resp *http.Response, fallback string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}

// FetchText downloads rawURL and returns its title and visible body text.
// Non-200 responses and non-HTML content are errors.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.client.Get(ctx, rawURL, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetch %s: status code %d", rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", errors.Wrapf(errors.ErrInvalidResponse, "fetch %s: content type %s", rawURL, ct)
	}

	return ExtractText(io.LimitReader(resp.Body, MaxBodyBytes))
}

// ExtractText parses HTML and returns the title followed by the visible
// body text with whitespace collapsed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalidResponse, "parse html: "+err.Error())
	}
	doc.Find("script,style,noscript,template,svg,iframe").Remove()

	parts := make([]string, 0, 2)
	if title := normalizeText(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	var texts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := normalizeText(n.Data); t != "" {
				texts = append(texts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	parts = append(parts, texts...)

	// form controls carry the lure text of credential pages
	doc.Find("input[placeholder],button[value],input[type=submit][value]").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"placeholder", "value"} {
			if v, ok := s.Attr(attr); ok {
				if t := normalizeText(v); t != "" {
					parts = append(parts, t)
				}
			}
		}
	})
	return strings.Join(parts, " "), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
