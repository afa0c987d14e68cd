// internal/adapters/output/json.go
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/usecases"
)

// Report es la vista exportable de los documentos marcados.
type Report struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Strategy    string                 `json:"strategy,omitempty"`
	Counts      usecases.Counts        `json:"counts"`
	Stages      []usecases.StageResult `json:"stages,omitempty"`
	Flagged     []*domain.Document     `json:"flagged"`
}

// ReportFilename genera el nombre de archivo del reporte.
func ReportFilename(at time.Time) string {
	return fmt.Sprintf("phishfuse_report_%s.json", at.Format("20060102_150405"))
}

// OutputJSON exporta el reporte en formato JSON dentro de dir y retorna la ruta.
func OutputJSON(dir string, report *Report) (string, error) {
	if dir == "" {
		dir = "."
	}

	// Crear directorio completo si no existe
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, ReportFilename(report.GeneratedAt))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := WriteJSON(f, report, true); err != nil {
		return "", err
	}
	return path, nil
}

// WriteJSON codifica v en w. Los slices nil de documentos se escriben como [].
func WriteJSON(w io.Writer, v any, pretty bool) error {
	if r, ok := v.(*Report); ok && r.Flagged == nil {
		cp := *r
		cp.Flagged = []*domain.Document{}
		v = &cp
	}
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
