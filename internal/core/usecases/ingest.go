// internal/core/usecases/ingest.go
package usecases

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/core/scoring"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/platform/urlfilter"
	"phishfuse/internal/platform/workerpool"
)

// StageIngest es el nombre de la etapa de ingesta.
const StageIngest = "ingest"

// MaxExcerptRunes limita el texto de página guardado junto al documento.
const MaxExcerptRunes = 2000

// IngestOptions agrupa las dependencias de la ingesta. DomainInfo, Expander
// y Pages son opcionales: sin ellos el documento se arma solo con el texto.
type IngestOptions struct {
	Repository ports.Repository
	Source     ports.TextSource
	Scorer     *scoring.Scorer
	DomainInfo ports.DomainInfoProvider
	Expander   ports.LinkExpander
	Pages      ports.PageFetcher

	// IntelMinRisk puntaje mínimo para crear registros de inteligencia
	IntelMinRisk int

	Concurrency int
	Clock       clockwork.Clock
	NewID       func() string
	Progress    ports.Progress
	Logger      logx.Logger
}

// IngestReport resume una ingesta.
type IngestReport struct {
	Fetched      int           `json:"fetched"`
	Inserted     int           `json:"inserted"`
	Duplicates   int           `json:"duplicates"`
	Skipped      int           `json:"skipped"`
	Fragmented   int           `json:"fragmented"`
	IntelCreated int           `json:"intel_created"`
	Duration     time.Duration `json:"duration"`
}

// Summary es una línea legible para el presenter.
func (r IngestReport) Summary() string {
	return fmt.Sprintf("%d texts: %d new, %d duplicates, %d without urls, %d intel records",
		r.Fetched, r.Inserted, r.Duplicates, r.Skipped, r.IntelCreated)
}

// IngestService convierte textos candidatos en documentos puntuados.
type IngestService struct {
	opts   IngestOptions
	pool   *workerpool.Pool
	logger logx.Logger
}

// NewIngestService crea el servicio de ingesta.
func NewIngestService(opts IngestOptions) (*IngestService, error) {
	if opts.Repository == nil || opts.Source == nil || opts.Scorer == nil {
		return nil, fmt.Errorf("%w: ingest needs a repository, a text source and a scorer", domain.ErrMissingConfig)
	}
	if opts.Logger == nil {
		opts.Logger = logx.New()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Progress == nil {
		opts.Progress = ports.NopProgress{}
	}
	logger := opts.Logger.With("component", "ingest", "source", opts.Source.Name())
	return &IngestService{
		opts:   opts,
		pool:   workerpool.New(opts.Concurrency, logger),
		logger: logger,
	}, nil
}

// Run obtiene los textos de la fuente y persiste un documento por texto
// distinto que contenga al menos un candidato a URL.
func (s *IngestService) Run(ctx context.Context) (IngestReport, error) {
	start := s.opts.Clock.Now()
	var report IngestReport

	texts, err := s.opts.Source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch texts from %s: %w", s.opts.Source.Name(), err)
	}
	report.Fetched = len(texts)

	unique := make([]string, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			report.Skipped++
			continue
		}
		key := domain.ContentKey(t)
		if _, ok := seen[key]; ok {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, t)
	}

	s.logger.Info("ingesting texts", "fetched", len(texts), "unique", len(unique), "workers", s.pool.Workers())
	s.opts.Progress.StageStarted(StageIngest, len(unique))

	var mu sync.Mutex
	_, err = s.pool.Run(ctx, len(unique), func(ctx context.Context, i int) error {
		res, err := s.ingest(ctx, unique[i])
		if err != nil {
			return err
		}
		mu.Lock()
		report.Inserted += res.inserted
		report.Duplicates += res.duplicate
		report.Skipped += res.skipped
		report.Fragmented += res.fragmented
		report.IntelCreated += res.intel
		mu.Unlock()
		s.opts.Progress.StageAdvanced(StageIngest)
		return nil
	})

	report.Duration = s.opts.Clock.Since(start)
	s.opts.Progress.StageFinished(StageIngest, report.Summary(), report.Duration)
	if err != nil {
		return report, err
	}
	s.logger.Info("ingest finished",
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"intel_created", report.IntelCreated,
	)
	return report, nil
}

type ingestResult struct {
	inserted, duplicate, skipped, fragmented, intel int
}

func (s *IngestService) ingest(ctx context.Context, text string) (ingestResult, error) {
	var res ingestResult

	valid, fragments := urlfilter.Extract(text)
	if len(valid) == 0 && len(fragments) == 0 {
		res.skipped = 1
		return res, nil
	}
	if len(fragments) > 0 {
		res.fragmented = 1
	}

	urls := s.expand(ctx, valid)
	doc := &domain.Document{
		ID:           s.opts.NewID(),
		ContentKey:   domain.ContentKey(text),
		Source:       s.opts.Source.Name(),
		Text:         text,
		URLs:         urls,
		Fragments:    fragments,
		QualityFlags: domain.QualityFlagsFor(text, urls, fragments),
		CreatedAt:    s.opts.Clock.Now().UTC(),
	}

	if len(urls) > 0 {
		doc.DomainInfo = s.lookupDomain(ctx, urls[0])
		doc.PageExcerpt = s.excerpt(ctx, urls[0])
	}

	scored := text
	if doc.PageExcerpt != "" {
		scored = text + " " + doc.PageExcerpt
	}
	doc.RiskScore, doc.Hits = s.opts.Scorer.Score(scored, doc.DomainInfo)

	inserted, err := s.opts.Repository.InsertDocument(ctx, doc)
	if err != nil {
		return res, fmt.Errorf("store document: %w", err)
	}
	if !inserted {
		res.duplicate = 1
		s.logger.Debug("duplicate text", "document", doc.ID)
		return res, nil
	}
	res.inserted = 1

	if doc.RiskScore < s.opts.IntelMinRisk {
		return res, nil
	}
	for _, u := range urls {
		created, err := s.opts.Repository.EnsureIntel(ctx, u, doc.CreatedAt)
		if err != nil {
			return res, fmt.Errorf("create intel record for %s: %w", u, err)
		}
		if created {
			res.intel++
		}
	}
	return res, nil
}

// expand sigue acortadores y reemplaza cada URL por su destino canónico.
func (s *IngestService) expand(ctx context.Context, urls []string) []string {
	if s.opts.Expander == nil || len(urls) == 0 {
		return urls
	}
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		final := u
		if to, err := s.opts.Expander.Expand(ctx, u); err != nil {
			s.logger.Debug("link expansion failed", "url", u, "error", err.Error())
		} else if cleaned, ok := urlfilter.CleanURL(to); ok {
			final = cleaned
		}
		if _, dup := seen[final]; dup {
			continue
		}
		seen[final] = struct{}{}
		out = append(out, final)
	}
	return out
}

func (s *IngestService) lookupDomain(ctx context.Context, url string) *domain.DomainInfo {
	if s.opts.DomainInfo == nil {
		return nil
	}
	info, err := s.opts.DomainInfo.Lookup(ctx, url)
	if err != nil {
		s.logger.Debug("domain lookup failed", "url", url, "error", err.Error())
		return nil
	}
	return info
}

func (s *IngestService) excerpt(ctx context.Context, url string) string {
	if s.opts.Pages == nil {
		return ""
	}
	text, err := s.opts.Pages.FetchText(ctx, url)
	if err != nil {
		s.logger.Debug("page fetch failed", "url", url, "error", err.Error())
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > MaxExcerptRunes {
		text = string([]rune(text)[:MaxExcerptRunes])
	}
	return text
}
