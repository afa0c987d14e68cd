// internal/core/domain/document.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Marcas de control de calidad adjuntas a un documento.
const (
	QCNoValidURLButFragments = "no_valid_url_after_cleanup_but_fragments"
	QCFragmentedURL          = "fragmented_url_detected"
	QCInvalidRiskScore       = "invalid_risk_score"
	QCInvalidProbability     = "invalid_ml_proba"
	QCShortText              = "short_text"
	QCLongText               = "long_text"
)

// Límites de longitud de texto para las marcas short_text / long_text.
const (
	ShortTextRunes = 20
	LongTextRunes  = 5000
)

// UnknownDays marca una métrica de dominio que no se pudo obtener.
const UnknownDays = -1

// DomainInfo son los metadatos de registro del dominio principal de un documento.
type DomainInfo struct {
	Domain           string `json:"domain"`
	AgeDays          int    `json:"age_days"`
	RegistrationDays int    `json:"registration_days"`
	Registered       bool   `json:"registered"`
}

// ClassifierAssessment es la salida cacheada del clasificador para un documento.
type ClassifierAssessment struct {
	Probability    float64   `json:"probability"`
	Label          int       `json:"label"`
	Threshold      float64   `json:"threshold"`
	URL            string    `json:"url,omitempty"`
	FeatureVersion string    `json:"feature_version,omitempty"`
	ComputedAt     time.Time `json:"computed_at"`
}

// NewAssessment aplica el umbral a una probabilidad.
func NewAssessment(p, threshold float64, url, featureVersion string, now time.Time) (*ClassifierAssessment, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, ErrProbabilityRange
	}
	label := 0
	if p >= threshold {
		label = 1
	}
	return &ClassifierAssessment{
		Probability:    p,
		Label:          label,
		Threshold:      threshold,
		URL:            url,
		FeatureVersion: featureVersion,
		ComputedAt:     now,
	}, nil
}

// FusionVerdict es el veredicto final de un documento con las señales que lo
// produjeron. Nunca se persiste con StatusSafe.
type FusionVerdict struct {
	Status       FusionStatus `json:"status"`
	Strategy     string       `json:"strategy"`
	PreFilter    PreFilter    `json:"pre_filter,omitempty"`
	RiskScore    int          `json:"risk_score"`
	Probability  *float64     `json:"probability,omitempty"`
	Label        *int         `json:"label,omitempty"`
	IntelVerdict IntelVerdict `json:"intel_verdict"`
	Reasons      []string     `json:"reasons"`
	Anomalies    []string     `json:"anomalies,omitempty"`
	ComputedAt   time.Time    `json:"computed_at"`
}

// Document es la unidad lógica de análisis: un texto y todo lo derivado de él.
type Document struct {
	ID           string                `json:"id"`
	ContentKey   string                `json:"content_key"`
	Source       string                `json:"source,omitempty"`
	Text         string                `json:"text"`
	URLs         []string              `json:"urls"`
	Fragments    []string              `json:"fragments,omitempty"`
	RiskScore    int                   `json:"risk_score"`
	Hits         []string              `json:"hits,omitempty"`
	DomainInfo   *DomainInfo           `json:"domain_info,omitempty"`
	PageExcerpt  string                `json:"page_excerpt,omitempty"`
	QualityFlags []string              `json:"quality_flags,omitempty"`
	Assessment   *ClassifierAssessment `json:"assessment,omitempty"`
	Verdict      *FusionVerdict        `json:"verdict,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Flagged indica si el documento aparece en las vistas de marcados.
func (d *Document) Flagged() bool {
	return d.Verdict != nil && d.Verdict.Status.Flagged()
}

// HasFlag indica si el documento tiene la marca de calidad dada.
func (d *Document) HasFlag(flag string) bool {
	for _, f := range d.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag agrega una marca de calidad sin duplicarla.
func (d *Document) AddFlag(flag string) {
	if !d.HasFlag(flag) {
		d.QualityFlags = append(d.QualityFlags, flag)
	}
}

// ContentKey es la clave de deduplicación de un texto.
func ContentKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// QualityFlagsFor calcula las marcas de calidad de extracción y longitud.
func QualityFlagsFor(text string, urls, fragments []string) []string {
	var flags []string
	if len(urls) == 0 && len(fragments) > 0 {
		flags = append(flags, QCNoValidURLButFragments)
	}
	if len(fragments) > 0 {
		flags = append(flags, QCFragmentedURL)
	}
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < ShortTextRunes {
		flags = append(flags, QCShortText)
	}
	if n > LongTextRunes {
		flags = append(flags, QCLongText)
	}
	return flags
}

// Sanitize corrige valores persistidos fuera de rango y deja constancia con
// una marca de calidad. Retorna true si modificó algo.
func (d *Document) Sanitize() bool {
	changed := false
	if d.RiskScore < 0 {
		d.RiskScore = 0
		d.AddFlag(QCInvalidRiskScore)
		changed = true
	}
	if a := d.Assessment; a != nil && (math.IsNaN(a.Probability) || a.Probability < 0 || a.Probability > 1) {
		fixed := *a
		fixed.Probability, fixed.Label = 0, 0
		d.Assessment = &fixed
		d.AddFlag(QCInvalidProbability)
		changed = true
	}
	return changed
}
