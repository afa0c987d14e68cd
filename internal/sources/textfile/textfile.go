// Package textfile reads candidate texts from a local file, either one text
// per line or JSON lines carrying scraped posts.
package textfile

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/logx"
)

// Format selects how lines are interpreted.
type Format string

const (
	FormatAuto  Format = "auto"  // by extension: .jsonl/.ndjson are JSON lines
	FormatLines Format = "lines" // one text per non-empty line
	FormatJSONL Format = "jsonl" // one JSON object (or string) per line
)

// maxLineBytes bounds a single post.
const maxLineBytes = 4 << 20

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatLines, FormatJSONL:
		return f, nil
	default:
		return "", errors.Wrapf(domain.ErrInvalidConfig, "unknown text format %q", s)
	}
}

// Source implements ports.TextSource over a file.
type Source struct {
	path   string
	format Format
	logger logx.Logger
}

// New creates a file source.
func New(path string, format Format, logger logx.Logger) (*Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.Wrap(domain.ErrMissingConfig, "text source path")
	}
	if format == "" || format == FormatAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			format = FormatJSONL
		default:
			format = FormatLines
		}
	}
	if logger == nil {
		logger = logx.New()
	}
	return &Source{
		path:   path,
		format: format,
		logger: logger.With("source", "textfile"),
	}, nil
}

// Name returns "file:<base name>".
func (s *Source) Name() string { return "file:" + filepath.Base(s.path) }

// Format returns the resolved format.
func (s *Source) Format() Format { return s.format }

// Fetch reads every text in file order.
func (s *Source) Fetch(ctx context.Context) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()

	texts, err := Read(ctx, f, s.format, s.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	s.logger.Info("texts loaded", "path", s.path, "format", string(s.format), "count", len(texts))
	return texts, nil
}

// post is the shape of a scraped post: either a plain text field or a
// title with a body.
type post struct {
	Text     string `json:"text"`
	Title    string `json:"title"`
	Selftext string `json:"selftext"`
	Body     string `json:"body"`
}

func (p post) join() string {
	if strings.TrimSpace(p.Text) != "" {
		return p.Text
	}
	parts := make([]string, 0, 3)
	for _, v := range []string{p.Title, p.Selftext, p.Body} {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// Read parses r in the given format. Malformed JSON lines are logged and
// skipped; empty texts are dropped.
func Read(ctx context.Context, r io.Reader, format Format, logger logx.Logger) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var texts []string
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if format != FormatJSONL {
			texts = append(texts, line)
			continue
		}

		text, err := decodeLine(line)
		if err != nil {
			logger.Warn("skipping malformed line", "line", lineNo, "error", err.Error())
			continue
		}
		if strings.TrimSpace(text) != "" {
			texts = append(texts, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

func decodeLine(line string) (string, error) {
	if strings.HasPrefix(line, `"`) {
		var s string
		err := json.Unmarshal([]byte(line), &s)
		return s, err
	}
	var p post
	if err := json.Unmarshal([]byte(line), &p); err != nil {
		return "", err
	}
	return p.join(), nil
}
