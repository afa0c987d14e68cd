// internal/core/usecases/stage.go
package usecases

import (
	"context"
	"fmt"
	"time"

	"phishfuse/internal/platform/logx"
)

// Stage es una etapa del pipeline completo (ingest, classify, poll, fuse).
type Stage struct {
	// Name nombre de la etapa, usado en logs y en el reporte
	Name string

	// Run ejecuta la etapa y retorna un resumen legible
	Run func(ctx context.Context) (string, error)

	// Optional la falla de la etapa se registra y el pipeline continúa
	Optional bool
}

// StageResult encapsula el resultado de ejecución de una etapa.
type StageResult struct {
	Name     string        `json:"name"`
	Summary  string        `json:"summary,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed indica si la etapa terminó con error.
func (r StageResult) Failed() bool { return r.Error != "" }

// Pipeline ejecuta etapas en orden. Cada etapa lee del store lo que dejó la
// anterior, así una corrida interrumpida se puede retomar etapa por etapa.
type Pipeline struct {
	stages []Stage
	logger logx.Logger
}

// NewPipeline crea un pipeline con las etapas dadas.
func NewPipeline(logger logx.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = logx.New()
	}
	return &Pipeline{
		stages: stages,
		logger: logger.With("component", "pipeline"),
	}
}

// Run ejecuta las etapas hasta el final o hasta la primera falla obligatoria.
func (p *Pipeline) Run(ctx context.Context) ([]StageResult, error) {
	results := make([]StageResult, 0, len(p.stages))
	for i, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		p.logger.Info("stage started", "stage", st.Name, "index", i+1, "of", len(p.stages))
		start := time.Now()
		summary, err := st.Run(ctx)
		res := StageResult{Name: st.Name, Summary: summary, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)

		if err == nil {
			p.logger.Info("stage finished", "stage", st.Name, "duration_ms", res.Duration.Milliseconds())
			continue
		}
		if st.Optional && ctx.Err() == nil {
			p.logger.Warn("optional stage failed, continuing", "stage", st.Name, "error", err.Error())
			continue
		}
		return results, fmt.Errorf("stage %s: %w", st.Name, err)
	}
	return results, nil
}
