// internal/core/ports/repository.go
package ports

import (
	"context"
	"time"

	"phishfuse/internal/core/domain"
)

// DocumentRepository es el port de persistencia de documentos.
// Los documentos son inmutables salvo los campos de etapa (assessment, verdict).
type DocumentRepository interface {
	// InsertDocument guarda el documento si no existe otro con la misma ContentKey.
	// inserted es false cuando ya existía; en ese caso doc.ID toma el ID almacenado.
	InsertDocument(ctx context.Context, doc *domain.Document) (inserted bool, err error)

	// GetDocument recupera un documento por ID (domain.ErrDocumentNotFound si no existe)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// FindDocuments lista documentos que cumplen el filtro
	FindDocuments(ctx context.Context, filter DocumentFilter) ([]*domain.Document, error)

	// CountDocuments cuenta documentos que cumplen el filtro (Limit se ignora)
	CountDocuments(ctx context.Context, filter DocumentFilter) (int, error)

	// UpdateDocument aplica una actualización parcial atómica
	UpdateDocument(ctx context.Context, id string, update DocumentUpdate) error
}

// IntelRepository es el port de persistencia de la máquina de estados de inteligencia.
type IntelRepository interface {
	// EnsureIntel crea el registro de la URL si no existe
	EnsureIntel(ctx context.Context, url string, now time.Time) (created bool, err error)

	// GetIntel recupera un registro (domain.ErrIntelNotFound si no existe)
	GetIntel(ctx context.Context, url string) (*domain.IntelRecord, error)

	// FindIntel lista registros que cumplen el filtro, ordenados por URL
	FindIntel(ctx context.Context, filter IntelFilter) ([]*domain.IntelRecord, error)

	// UpdateIntel aplica una actualización parcial atómica con semántica
	// last-writer-wins. applied es false cuando la guarda OnlyPending descartó
	// la escritura, lo que hace idempotente repetir una resolución terminal.
	UpdateIntel(ctx context.Context, url string, update IntelUpdate) (applied bool, err error)
}

// Repository agrupa ambos ports sobre un mismo almacenamiento.
type Repository interface {
	DocumentRepository
	IntelRepository

	// Close cierra la conexión con el repositorio
	Close() error
}

// DocumentFilter define predicados de búsqueda de documentos.
// Los campos vacíos no filtran.
type DocumentFilter struct {
	// IDs restringe a un conjunto de identificadores
	IDs []string

	// Flagged filtra por presencia de veredicto de fusión
	Flagged *bool

	// HasAssessment filtra por presencia de evaluación del clasificador
	HasAssessment *bool

	// MinRisk puntaje léxico mínimo
	MinRisk int

	// OrderByRisk ordena por risk_score descendente (desempate por fecha y ID)
	OrderByRisk bool

	// Limit cantidad máxima de resultados (0 = sin límite)
	Limit int
}

// DocumentUpdate es el conjunto de campos a modificar. Los punteros nil no cambian.
type DocumentUpdate struct {
	Assessment *domain.ClassifierAssessment

	Verdict *domain.FusionVerdict

	// ClearVerdict borra un veredicto previo (el documento pasa a ser seguro)
	ClearVerdict bool
}

// IntelFilter define predicados de búsqueda de registros de inteligencia.
type IntelFilter struct {
	URLs       []string
	Submission domain.SubmissionState
	Resolution domain.ResolutionState
	Limit      int
}

// IntelUpdate es el conjunto de campos a modificar. Los punteros nil no cambian.
type IntelUpdate struct {
	Submission *domain.SubmissionState
	Resolution *domain.ResolutionState
	Verdict    *domain.IntelVerdict
	Attempts   *int
	Submits    *int
	Stats      *domain.ScanStats
	LastError  *string
	ResolvedAt *time.Time

	// UpdatedAt se escribe siempre
	UpdatedAt time.Time

	// OnlyPending aplica la escritura solo si resolution_state sigue en pending
	OnlyPending bool
}

// Ptr es un atajo para construir actualizaciones parciales.
func Ptr[T any](v T) *T { return &v }

// Apply aplica la actualización sobre un registro en memoria y reporta si
// corresponde escribirla. Los adaptadores sin SQL la reutilizan.
func (u IntelUpdate) Apply(r *domain.IntelRecord) bool {
	if u.OnlyPending && r.Resolution != domain.ResolutionPending {
		return false
	}
	if u.Submission != nil {
		r.Submission = *u.Submission
	}
	if u.Resolution != nil {
		r.Resolution = *u.Resolution
	}
	if u.Verdict != nil {
		r.Verdict = *u.Verdict
	}
	if u.Attempts != nil {
		r.Attempts = *u.Attempts
	}
	if u.Submits != nil {
		r.Submits = *u.Submits
	}
	if u.Stats != nil {
		r.Stats = *u.Stats
	}
	if u.LastError != nil {
		r.LastError = *u.LastError
	}
	if u.ResolvedAt != nil {
		t := *u.ResolvedAt
		r.ResolvedAt = &t
	}
	r.UpdatedAt = u.UpdatedAt
	return true
}

// Apply aplica la actualización sobre un documento en memoria.
func (u DocumentUpdate) Apply(d *domain.Document) {
	if u.Assessment != nil {
		a := *u.Assessment
		d.Assessment = &a
	}
	if u.ClearVerdict {
		d.Verdict = nil
	}
	if u.Verdict != nil {
		v := *u.Verdict
		d.Verdict = &v
	}
}

// Matches evalúa el filtro en memoria (sin Limit ni orden).
func (f DocumentFilter) Matches(d *domain.Document) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, d.ID) {
		return false
	}
	if f.Flagged != nil && (d.Verdict != nil) != *f.Flagged {
		return false
	}
	if f.HasAssessment != nil && (d.Assessment != nil) != *f.HasAssessment {
		return false
	}
	return d.RiskScore >= f.MinRisk
}

// Matches evalúa el filtro en memoria (sin Limit).
func (f IntelFilter) Matches(r *domain.IntelRecord) bool {
	if len(f.URLs) > 0 && !contains(f.URLs, r.URL) {
		return false
	}
	if f.Submission != "" && r.Submission != f.Submission {
		return false
	}
	if f.Resolution != "" && r.Resolution != f.Resolution {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
