// internal/core/usecases/query.go
package usecases

import (
	"context"
	"fmt"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/urlfilter"
)

// DefaultFlaggedLimit es el tamaño de la vista de marcados si no se indica otro.
const DefaultFlaggedLimit = 50

// DocumentDetail es la vista de un documento con su razonamiento de fusión.
type DocumentDetail struct {
	Document     *domain.Document      `json:"document"`
	Intel        []*domain.IntelRecord `json:"intel"`
	IntelVerdict domain.IntelVerdict   `json:"intel_verdict"`
}

// Counts compara el total de documentos con los marcados.
type Counts struct {
	Total    int `json:"total"`
	Flagged  int `json:"flagged"`
	Assessed int `json:"assessed"`
}

// QueryService expone proyecciones de solo lectura para la presentación.
type QueryService struct {
	repo ports.Repository
}

// NewQueryService crea el servicio de consultas.
func NewQueryService(repo ports.Repository) *QueryService {
	return &QueryService{repo: repo}
}

// ListFlagged retorna los documentos marcados por riesgo descendente.
// Los documentos sin un veredicto completo no se muestran.
func (q *QueryService) ListFlagged(ctx context.Context, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = DefaultFlaggedLimit
	}
	docs, err := q.repo.FindDocuments(ctx, ports.DocumentFilter{
		Flagged:     ports.Ptr(true),
		OrderByRisk: true,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list flagged: %w", err)
	}
	out := make([]*domain.Document, 0, len(docs))
	for _, d := range docs {
		present(d)
		if d.Flagged() {
			out = append(out, d)
		}
	}
	return out, nil
}

// Detail retorna un documento con los registros de inteligencia de sus URLs.
func (q *QueryService) Detail(ctx context.Context, id string) (*DocumentDetail, error) {
	doc, err := q.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	present(doc)

	intel, err := IntelFor(ctx, q.repo, doc)
	if err != nil {
		return nil, err
	}
	if intel == nil {
		intel = []*domain.IntelRecord{}
	}
	return &DocumentDetail{
		Document:     doc,
		Intel:        intel,
		IntelVerdict: domain.AggregateIntel(intel),
	}, nil
}

// Counts cuenta documentos totales, marcados y evaluados.
func (q *QueryService) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Total, err = q.repo.CountDocuments(ctx, ports.DocumentFilter{}); err != nil {
		return c, fmt.Errorf("count documents: %w", err)
	}
	if c.Flagged, err = q.repo.CountDocuments(ctx, ports.DocumentFilter{Flagged: ports.Ptr(true)}); err != nil {
		return c, fmt.Errorf("count flagged: %w", err)
	}
	if c.Assessed, err = q.repo.CountDocuments(ctx, ports.DocumentFilter{HasAssessment: ports.Ptr(true)}); err != nil {
		return c, fmt.Errorf("count assessed: %w", err)
	}
	return c, nil
}

// present corrige campos fuera de rango y vuelve a validar las URLs
// guardadas; las que ya no son válidas pasan a fragmentos.
func present(d *domain.Document) {
	d.Sanitize()
	urls := d.URLs[:0:0]
	for _, u := range d.URLs {
		if cleaned, ok := urlfilter.CleanURL(u); ok {
			urls = append(urls, cleaned)
		} else {
			d.Fragments = append(d.Fragments, u)
		}
	}
	d.URLs = urls
}
