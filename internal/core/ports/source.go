// internal/core/ports/source.go
package ports

import (
	"context"
	"time"

	"phishfuse/internal/core/domain"
)

// TextSource es el port de adquisición de textos candidatos.
// Cualquier conector (archivo, scraper, cola) debe implementar esta interfaz.
type TextSource interface {
	// Name retorna el nombre único de la fuente (ej: "file:posts.jsonl")
	Name() string

	// Fetch retorna los textos disponibles en orden de llegada
	Fetch(ctx context.Context) ([]string, error)
}

// IntelService es el port del servicio externo de veredictos (ej: VirusTotal).
//
// Errores esperados:
//   - errors.ErrRateLimit (con *errors.RateLimitError si hay Retry-After): pausa el lote
//   - errors.ErrNotFound: el servicio aún no tiene análisis de la URL
//   - errors.ErrUnauthorized: rechazo permanente, aborta la corrida
//   - cualquier otro: fallo transitorio, se reintenta en la siguiente pasada
type IntelService interface {
	// Name retorna el nombre del servicio
	Name() string

	// Submit solicita el análisis de una URL; nil significa aceptado
	Submit(ctx context.Context, url string) error

	// Query recupera las estadísticas del último análisis
	Query(ctx context.Context, url string) (domain.ScanStats, error)
}

// Classifier es el contrato del clasificador externo. No tiene estado visible
// para el llamador: la misma URL con el mismo FeatureVersion da la misma probabilidad.
type Classifier interface {
	// Assess retorna la probabilidad de phishing en [0,1]
	Assess(ctx context.Context, url string) (float64, error)

	// FeatureVersion identifica el contrato de features con el que se entrenó
	FeatureVersion() string
}

// DomainInfoProvider obtiene metadatos de registro del dominio de una URL.
// Un (nil, nil) indica que no hay información disponible.
type DomainInfoProvider interface {
	Lookup(ctx context.Context, url string) (*domain.DomainInfo, error)
}

// LinkExpander sigue redirecciones (acortadores) hasta la URL final.
type LinkExpander interface {
	Expand(ctx context.Context, url string) (string, error)
}

// PageFetcher obtiene el texto visible de una página para el puntaje léxico.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Progress recibe eventos de avance de las etapas. Implementado por los
// presenters de la UI; todas las llamadas deben ser baratas y no bloquear.
type Progress interface {
	// StageStarted notifica el inicio de una etapa con la cantidad de elementos
	StageStarted(stage string, total int)

	// StageAdvanced notifica un elemento procesado
	StageAdvanced(stage string)

	// StageFinished notifica el fin de una etapa con un resumen legible
	StageFinished(stage string, summary string, duration time.Duration)

	// PollPass notifica el inicio de una pasada del poller
	PollPass(pass, maxPasses, pending int)

	// Paused notifica una pausa del lote (rate limit o espera entre pasadas)
	Paused(reason string, d time.Duration)
}

// NopProgress descarta todos los eventos.
type NopProgress struct{}

func (NopProgress) StageStarted(string, int)                    {}
func (NopProgress) StageAdvanced(string)                        {}
func (NopProgress) StageFinished(string, string, time.Duration) {}
func (NopProgress) PollPass(int, int, int)                      {}
func (NopProgress) Paused(string, time.Duration)                {}
