// internal/core/usecases/classify.go
package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/platform/workerpool"
)

// StageClassify es el nombre de la etapa de clasificación.
const StageClassify = "classify"

// Assessor produce la evaluación de un documento a partir de sus URLs.
// Retorna (nil, nil) cuando no hay nada que evaluar.
type Assessor interface {
	Assess(ctx context.Context, urls []string) (*domain.ClassifierAssessment, error)
}

// ClassifyOptions agrupa las dependencias de la clasificación.
type ClassifyOptions struct {
	Repository  ports.DocumentRepository
	Assessor    Assessor
	Concurrency int
	Clock       clockwork.Clock
	Progress    ports.Progress
	Logger      logx.Logger
}

// ClassifyReport resume una corrida del clasificador.
type ClassifyReport struct {
	Candidates int           `json:"candidates"`
	Assessed   int           `json:"assessed"`
	Positive   int           `json:"positive"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Summary es una línea legible para el presenter.
func (r ClassifyReport) Summary() string {
	return fmt.Sprintf("%d documents: %d assessed, %d above threshold, %d failed",
		r.Candidates, r.Assessed, r.Positive, r.Failed)
}

// ClassifyService adjunta evaluaciones del clasificador a los documentos.
// Las evaluaciones quedan cacheadas: solo se recalculan con reassess.
type ClassifyService struct {
	repo     ports.DocumentRepository
	assessor Assessor
	pool     *workerpool.Pool
	clock    clockwork.Clock
	progress ports.Progress
	logger   logx.Logger
}

// NewClassifyService crea el servicio de clasificación.
func NewClassifyService(opts ClassifyOptions) (*ClassifyService, error) {
	if opts.Repository == nil || opts.Assessor == nil {
		return nil, fmt.Errorf("%w: classify needs a repository and an assessor", domain.ErrMissingConfig)
	}
	if opts.Logger == nil {
		opts.Logger = logx.New()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Progress == nil {
		opts.Progress = ports.NopProgress{}
	}
	logger := opts.Logger.With("component", "classify")
	return &ClassifyService{
		repo:     opts.Repository,
		assessor: opts.Assessor,
		pool:     workerpool.New(opts.Concurrency, logger),
		clock:    opts.Clock,
		progress: opts.Progress,
		logger:   logger,
	}, nil
}

// Run evalúa los documentos con URLs que aún no tienen evaluación, o todos
// si reassess es true.
func (s *ClassifyService) Run(ctx context.Context, reassess bool) (ClassifyReport, error) {
	start := s.clock.Now()
	var report ClassifyReport

	filter := ports.DocumentFilter{}
	if !reassess {
		filter.HasAssessment = ports.Ptr(false)
	}
	docs, err := s.repo.FindDocuments(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("load documents: %w", err)
	}
	candidates := docs[:0]
	for _, d := range docs {
		if len(d.URLs) > 0 {
			candidates = append(candidates, d)
		}
	}
	report.Candidates = len(candidates)

	s.logger.Info("classifying documents", "documents", len(candidates), "reassess", reassess)
	s.progress.StageStarted(StageClassify, len(candidates))

	var mu sync.Mutex
	_, err = s.pool.Run(ctx, len(candidates), func(ctx context.Context, i int) error {
		doc := candidates[i]
		defer s.progress.StageAdvanced(StageClassify)

		a, err := s.assessor.Assess(ctx, doc.URLs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("document not classified", "document", doc.ID, "error", err.Error())
			mu.Lock()
			report.Failed++
			mu.Unlock()
			return nil
		}
		if a == nil {
			return nil
		}
		if err := s.repo.UpdateDocument(ctx, doc.ID, ports.DocumentUpdate{Assessment: a}); err != nil {
			return fmt.Errorf("store assessment of %s: %w", doc.ID, err)
		}

		mu.Lock()
		report.Assessed++
		if a.Label == 1 {
			report.Positive++
		}
		mu.Unlock()
		return nil
	})

	report.Duration = s.clock.Since(start)
	s.progress.StageFinished(StageClassify, report.Summary(), report.Duration)
	return report, err
}
