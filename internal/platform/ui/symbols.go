// internal/platform/ui/symbols.go
package ui

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"phishfuse/internal/core/domain"
)

// Status es el resultado de una etapa terminada
type Status int

const (
	StatusSuccess Status = iota
	StatusWarning        // etapa opcional fallida, el pipeline siguió
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "degraded"
	case StatusError:
		return "failed"
	default:
		return "unknown"
	}
}

// Symbol retorna el símbolo Unicode del estado
func (s Status) Symbol() string {
	switch s {
	case StatusSuccess:
		return "✓"
	case StatusWarning:
		return "⚠"
	case StatusError:
		return "✗"
	default:
		return "?"
	}
}

// Style retorna el estilo pterm del estado
func (s Status) Style() *pterm.Style {
	switch s {
	case StatusSuccess:
		return pterm.NewStyle(pterm.FgGreen)
	case StatusWarning:
		return pterm.NewStyle(pterm.FgYellow)
	case StatusError:
		return pterm.NewStyle(pterm.FgRed)
	default:
		return pterm.NewStyle(pterm.FgDefault)
	}
}

// StatusFromError traduce el resultado de una etapa a un Status
func StatusFromError(failed, optional bool) Status {
	switch {
	case !failed:
		return StatusSuccess
	case optional:
		return StatusWarning
	default:
		return StatusError
	}
}

// VerdictStyle colorea un estado de fusión
func VerdictStyle(s domain.FusionStatus) *pterm.Style {
	switch s {
	case domain.StatusMalicious:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	case domain.StatusSuspicious:
		return pterm.NewStyle(pterm.FgYellow)
	default:
		return pterm.NewStyle(pterm.FgGreen)
	}
}

var (
	IconSource    = "📥"
	IconStore     = "🗄"
	IconStage     = "🔄"
	IconWorkers   = "⚙️"
	IconTime      = "⏱"
	IconDocuments = "📄"
	IconFlagged   = "🚩"

	SeparatorHeavy = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
)

// formatDuration formatea una duración de manera legible
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
