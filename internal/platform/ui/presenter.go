// internal/platform/ui/presenter.go
package ui

import (
	"io"
	"time"

	"phishfuse/internal/core/ports"
)

// UIMode define el modo de visualización
type UIMode string

const (
	UIModeCompact UIMode = "compact" // Barras de progreso pterm (default en TTY)
	UIModeRaw     UIMode = "raw"     // Líneas logfmt, apto para pipes y CI
	UIModeJSON    UIMode = "json"    // Líneas JSON
	UIModeQuiet   UIMode = "quiet"   // Sin UI visual
)

// Presenter presenta el avance de una corrida. Además de los eventos de
// etapa de ports.Progress maneja el encabezado, los mensajes y el cierre.
// Todas las implementaciones son seguras para uso concurrente.
type Presenter interface {
	ports.Progress

	// Start inicia la presentación con la configuración de la corrida
	Start(info RunInfo)

	// Info muestra un mensaje informativo
	Info(msg string)

	// Warning muestra una advertencia
	Warning(msg string)

	// Error muestra un error
	Error(msg string)

	// Finish finaliza la presentación con el resumen de la corrida
	Finish(summary RunSummary)

	// Close limpia recursos del presenter
	Close() error
}

// RunInfo contiene información inicial de la corrida
type RunInfo struct {
	Command  string
	Source   string
	Store    string
	Strategy string
	Workers  int
	Stages   []string
}

// StageLine resume una etapa terminada
type StageLine struct {
	Name     string
	Status   Status
	Summary  string
	Duration time.Duration
}

// RunSummary contiene estadísticas finales de la corrida
type RunSummary struct {
	Duration   time.Duration
	Stages     []StageLine
	Documents  int
	Flagged    int
	Malicious  int
	Suspicious int
}

// New crea el presenter para el modo pedido. Los modos de texto escriben en w.
func New(mode UIMode, w io.Writer) Presenter {
	switch mode {
	case UIModeQuiet:
		return NewNoopPresenter()
	case UIModeRaw:
		return NewRawPresenter(LogFormatText, w)
	case UIModeJSON:
		return NewRawPresenter(LogFormatJSON, w)
	default:
		return NewPTermPresenter(w)
	}
}
