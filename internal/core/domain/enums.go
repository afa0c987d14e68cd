// internal/core/domain/enums.go
package domain

// SubmissionState indica si una URL ya fue enviada al servicio de inteligencia.
type SubmissionState string

const (
	// SubmissionNotSubmitted la URL todavía no fue aceptada por el servicio
	SubmissionNotSubmitted SubmissionState = "not_submitted"

	// SubmissionSubmitted el servicio aceptó el análisis
	SubmissionSubmitted SubmissionState = "submitted"
)

// IsValid verifica si el estado de envío es válido.
func (s SubmissionState) IsValid() bool {
	return s == SubmissionNotSubmitted || s == SubmissionSubmitted
}

// String retorna la representación string del estado.
func (s SubmissionState) String() string { return string(s) }

// ResolutionState es el estado de resolución de un IntelRecord.
// Resolved y TimedOut son terminales.
type ResolutionState string

const (
	ResolutionPending  ResolutionState = "pending"
	ResolutionResolved ResolutionState = "resolved"
	ResolutionTimedOut ResolutionState = "timed_out"
)

// IsValid verifica si el estado de resolución es válido.
func (s ResolutionState) IsValid() bool {
	switch s {
	case ResolutionPending, ResolutionResolved, ResolutionTimedOut:
		return true
	default:
		return false
	}
}

// Terminal indica que no hay más transiciones posibles.
func (s ResolutionState) Terminal() bool {
	return s == ResolutionResolved || s == ResolutionTimedOut
}

// String retorna la representación string del estado.
func (s ResolutionState) String() string { return string(s) }

// IntelVerdict es el veredicto del servicio externo para una URL.
type IntelVerdict string

const (
	VerdictUnknown    IntelVerdict = "unknown"
	VerdictClean      IntelVerdict = "clean"
	VerdictSuspicious IntelVerdict = "suspicious"
	VerdictMalicious  IntelVerdict = "malicious"
	VerdictTimeout    IntelVerdict = "timeout"
)

// IsValid verifica si el veredicto es válido.
func (v IntelVerdict) IsValid() bool {
	switch v {
	case VerdictUnknown, VerdictClean, VerdictSuspicious, VerdictMalicious, VerdictTimeout:
		return true
	default:
		return false
	}
}

// Resolving indica si el veredicto cierra una URL como Resolved.
func (v IntelVerdict) Resolving() bool {
	return v == VerdictClean || v == VerdictSuspicious || v == VerdictMalicious
}

// String retorna la representación string del veredicto.
func (v IntelVerdict) String() string { return string(v) }

// rank ordena veredictos para la agregación por documento:
// malicious > suspicious > unknown > timeout > clean.
func (v IntelVerdict) rank() int {
	switch v {
	case VerdictMalicious:
		return 5
	case VerdictSuspicious:
		return 4
	case VerdictUnknown:
		return 3
	case VerdictTimeout:
		return 2
	case VerdictClean:
		return 1
	default:
		return 0
	}
}

// FusionStatus es el estado final de un documento. StatusSafe nunca se persiste:
// la ausencia de veredicto es la señal de seguro.
type FusionStatus string

const (
	StatusSafe       FusionStatus = "safe"
	StatusSuspicious FusionStatus = "suspicious"
	StatusMalicious  FusionStatus = "malicious"
)

// Flagged indica si el estado debe aparecer en las vistas de marcados.
func (s FusionStatus) Flagged() bool {
	return s == StatusSuspicious || s == StatusMalicious
}

// String retorna la representación string del estado.
func (s FusionStatus) String() string { return string(s) }

// PreFilter es la etapa previa de la estrategia en dos etapas.
type PreFilter string

const (
	PreFilterSafe       PreFilter = "safe"
	PreFilterSuspicious PreFilter = "suspicious"
)

// String retorna la representación string del prefiltro.
func (p PreFilter) String() string { return string(p) }
