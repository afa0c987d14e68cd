// internal/core/domain/intel.go
package domain

import (
	"fmt"
	"time"
)

// DefaultSuspiciousRatio es la fracción de motores que marcan una URL a partir
// de la cual el veredicto es sospechoso.
const DefaultSuspiciousRatio = 0.10

// ScanStats son los contadores crudos del último análisis externo.
type ScanStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
	Timeout    int `json:"timeout"`
}

// Total es la suma de todos los contadores.
func (s ScanStats) Total() int {
	return s.Malicious + s.Suspicious + s.Harmless + s.Undetected + s.Timeout
}

// FlaggedRatio es (malicious+suspicious)/total, 0 si no hay motores.
func (s ScanStats) FlaggedRatio() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Malicious+s.Suspicious) / float64(total)
}

// Classify convierte las estadísticas en un veredicto con la precedencia
// malicious > suspicious > unknown > clean.
func (s ScanStats) Classify(suspiciousRatio float64) IntelVerdict {
	switch {
	case s.Malicious > 0:
		return VerdictMalicious
	case s.Suspicious > 0:
		return VerdictSuspicious
	case s.Total() == 0:
		return VerdictUnknown
	case suspiciousRatio > 0 && s.FlaggedRatio() >= suspiciousRatio:
		return VerdictSuspicious
	default:
		return VerdictClean
	}
}

// IntelRecord es el estado de la máquina submit → poll → resolve para una URL
// canónica. Los documentos que comparten URL comparten registro.
type IntelRecord struct {
	URL        string          `json:"url"`
	Submission SubmissionState `json:"submission_state"`
	Resolution ResolutionState `json:"resolution_state"`
	Verdict    IntelVerdict    `json:"verdict"`
	Attempts   int             `json:"attempt_count"`
	Submits    int             `json:"submit_count"`
	Stats      ScanStats       `json:"stats"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// NewIntelRecord crea un registro sin enviar y pendiente.
func NewIntelRecord(url string, now time.Time) *IntelRecord {
	return &IntelRecord{
		URL:        url,
		Submission: SubmissionNotSubmitted,
		Resolution: ResolutionPending,
		Verdict:    VerdictUnknown,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Terminal indica que el registro ya no admite transiciones.
func (r *IntelRecord) Terminal() bool {
	return r.Resolution.Terminal()
}

// Validate comprueba los invariantes entre estado y veredicto.
func (r *IntelRecord) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidIntelRecord)
	}
	if !r.Submission.IsValid() || !r.Resolution.IsValid() || !r.Verdict.IsValid() {
		return fmt.Errorf("%w: unknown state %s/%s/%s", ErrInvalidIntelRecord, r.Submission, r.Resolution, r.Verdict)
	}
	if r.Attempts < 0 {
		return fmt.Errorf("%w: negative attempt count", ErrInvalidIntelRecord)
	}
	switch r.Resolution {
	case ResolutionPending:
		if r.Verdict != VerdictUnknown {
			return fmt.Errorf("%w: pending record with verdict %s", ErrInvalidIntelRecord, r.Verdict)
		}
	case ResolutionResolved:
		if !r.Verdict.Resolving() {
			return fmt.Errorf("%w: resolved record with verdict %s", ErrInvalidIntelRecord, r.Verdict)
		}
	case ResolutionTimedOut:
		if r.Verdict != VerdictTimeout {
			return fmt.Errorf("%w: timed out record with verdict %s", ErrInvalidIntelRecord, r.Verdict)
		}
	}
	return nil
}

// AggregateIntel resume los veredictos de las URLs de un documento.
// Sin registros el veredicto es unknown.
func AggregateIntel(records []*IntelRecord) IntelVerdict {
	var best IntelVerdict
	for _, r := range records {
		if r != nil && r.Verdict.rank() > best.rank() {
			best = r.Verdict
		}
	}
	if best == "" {
		return VerdictUnknown
	}
	return best
}
