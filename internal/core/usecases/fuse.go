// internal/core/usecases/fuse.go
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/fusion"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/logx"
)

// StageFuse es el nombre de la etapa de fusión.
const StageFuse = "fuse"

// FusionOptions agrupa las dependencias de la fusión.
type FusionOptions struct {
	Repository ports.Repository
	Engine     *fusion.Engine
	Clock      clockwork.Clock
	Progress   ports.Progress
	Logger     logx.Logger
}

// FusionReport resume una corrida de fusión.
type FusionReport struct {
	Documents  int           `json:"documents"`
	Malicious  int           `json:"malicious"`
	Suspicious int           `json:"suspicious"`
	Safe       int           `json:"safe"`
	Cleared    int           `json:"cleared"`
	Anomalies  int           `json:"anomalies"`
	Strategy   string        `json:"strategy"`
	Duration   time.Duration `json:"duration"`
}

// Summary es una línea legible para el presenter.
func (r FusionReport) Summary() string {
	return fmt.Sprintf("%d documents (%s): %d malicious, %d suspicious, %d safe, %d cleared, %d anomalies",
		r.Documents, r.Strategy, r.Malicious, r.Suspicious, r.Safe, r.Cleared, r.Anomalies)
}

// FusionService recalcula el veredicto de cada documento con las señales
// disponibles. Un resultado seguro borra el veredicto previo.
type FusionService struct {
	repo     ports.Repository
	engine   *fusion.Engine
	clock    clockwork.Clock
	progress ports.Progress
	logger   logx.Logger
}

// NewFusionService crea el servicio de fusión.
func NewFusionService(opts FusionOptions) (*FusionService, error) {
	if opts.Repository == nil || opts.Engine == nil {
		return nil, fmt.Errorf("%w: fusion needs a repository and an engine", domain.ErrMissingConfig)
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
	return &FusionService{
		repo:     opts.Repository,
		engine:   opts.Engine,
		clock:    opts.Clock,
		progress: opts.Progress,
		logger:   opts.Logger.With("component", "fusion", "strategy", opts.Engine.Strategy()),
	}, nil
}

// Run fusiona todos los documentos.
func (s *FusionService) Run(ctx context.Context) (FusionReport, error) {
	start := s.clock.Now()
	report := FusionReport{Strategy: s.engine.Strategy()}

	docs, err := s.repo.FindDocuments(ctx, ports.DocumentFilter{})
	if err != nil {
		return report, fmt.Errorf("load documents: %w", err)
	}
	report.Documents = len(docs)
	s.progress.StageStarted(StageFuse, len(docs))

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.fuse(ctx, doc, &report); err != nil {
			return report, err
		}
		s.progress.StageAdvanced(StageFuse)
	}

	report.Duration = s.clock.Since(start)
	s.progress.StageFinished(StageFuse, report.Summary(), report.Duration)
	s.logger.Info("fusion finished",
		"documents", report.Documents,
		"malicious", report.Malicious,
		"suspicious", report.Suspicious,
		"anomalies", report.Anomalies,
	)
	return report, nil
}

func (s *FusionService) fuse(ctx context.Context, doc *domain.Document, report *FusionReport) error {
	intel, err := IntelFor(ctx, s.repo, doc)
	if err != nil {
		return err
	}

	v := s.engine.Fuse(fusion.Signals{
		RiskScore:  doc.RiskScore,
		Hits:       doc.Hits,
		Assessment: doc.Assessment,
		Intel:      domain.AggregateIntel(intel),
	}, s.clock.Now().UTC())

	if v == nil {
		report.Safe++
		if doc.Verdict == nil {
			return nil
		}
		if err := s.repo.UpdateDocument(ctx, doc.ID, ports.DocumentUpdate{ClearVerdict: true}); err != nil {
			return fmt.Errorf("clear verdict of %s: %w", doc.ID, err)
		}
		report.Cleared++
		return nil
	}

	if err := s.repo.UpdateDocument(ctx, doc.ID, ports.DocumentUpdate{Verdict: v}); err != nil {
		return fmt.Errorf("store verdict of %s: %w", doc.ID, err)
	}
	switch v.Status {
	case domain.StatusMalicious:
		report.Malicious++
	case domain.StatusSuspicious:
		report.Suspicious++
	}
	if len(v.Anomalies) > 0 {
		report.Anomalies++
		s.logger.Debug("anomaly", "document", doc.ID, "flags", v.Anomalies)
	}
	return nil
}

// IntelFor carga los registros de inteligencia de las URLs del documento.
func IntelFor(ctx context.Context, repo ports.IntelRepository, doc *domain.Document) ([]*domain.IntelRecord, error) {
	if len(doc.URLs) == 0 {
		return nil, nil
	}
	recs, err := repo.FindIntel(ctx, ports.IntelFilter{URLs: doc.URLs})
	if err != nil {
		return nil, fmt.Errorf("load intel of %s: %w", doc.ID, err)
	}
	return recs, nil
}
