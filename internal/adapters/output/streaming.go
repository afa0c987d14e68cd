// internal/adapters/output/streaming.go
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"phishfuse/internal/core/usecases"
	"phishfuse/internal/platform/logx"
)

// StreamingWriter escribe el resultado de cada etapa a disco apenas termina,
// así una corrida interrumpida deja constancia de lo que alcanzó a hacer.
type StreamingWriter struct {
	baseDir   string
	runID     string
	timestamp string
	logger    logx.Logger
}

// NewStreamingWriter crea un nuevo writer de streaming.
func NewStreamingWriter(baseDir, runID string, startedAt time.Time, logger logx.Logger) *StreamingWriter {
	return &StreamingWriter{
		baseDir:   baseDir,
		runID:     runID,
		timestamp: startedAt.Format("20060102_150405"),
		logger:    logger.With("component", "streaming-writer"),
	}
}

// PartialStageResult es el contenido de un archivo parcial.
type PartialStageResult struct {
	RunID     string               `json:"run_id"`
	Stage     usecases.StageResult `json:"stage"`
	WrittenAt time.Time            `json:"written_at"`
}

// WriteStage escribe el resultado de una etapa.
// Formato: phishfuse_{timestamp}_partial_{stage}.json
func (w *StreamingWriter) WriteStage(res usecases.StageResult) (string, error) {
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := w.GeneratePartialFilename(res.Name)
	path := filepath.Join(w.baseDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create partial file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(PartialStageResult{RunID: w.runID, Stage: res, WrittenAt: time.Now()}); err != nil {
		return "", fmt.Errorf("failed to encode partial JSON: %w", err)
	}

	w.logger.Debug("partial result written", "stage", res.Name, "file", filename)
	return path, nil
}

// Wrap decora una etapa para que su resultado se escriba al terminar.
// Un error de escritura se registra pero no cambia el resultado de la etapa.
func (w *StreamingWriter) Wrap(st usecases.Stage) usecases.Stage {
	run := st.Run
	st.Run = func(ctx context.Context) (string, error) {
		start := time.Now()
		summary, err := run(ctx)
		res := usecases.StageResult{Name: st.Name, Summary: summary, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
		}
		if _, werr := w.WriteStage(res); werr != nil {
			w.logger.Warn("partial result not written", "stage", st.Name, "error", werr.Error())
		}
		return summary, err
	}
	return st
}

// Cleanup borra los archivos parciales de esta corrida.
func (w *StreamingWriter) Cleanup() error {
	matches, err := filepath.Glob(filepath.Join(w.baseDir, w.GetPattern()))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// GeneratePartialFilename genera el nombre de archivo para un resultado parcial.
func (w *StreamingWriter) GeneratePartialFilename(stage string) string {
	return fmt.Sprintf("phishfuse_%s_partial_%s.json", w.timestamp, stage)
}

// GetPattern retorna el patrón glob para encontrar archivos parciales de esta corrida.
func (w *StreamingWriter) GetPattern() string {
	return fmt.Sprintf("phishfuse_%s_partial_*.json", w.timestamp)
}
