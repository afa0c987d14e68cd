// internal/core/domain/errors.go
package domain

import "errors"

// Errores de dominio comunes.
var (
	// Document errors
	ErrDocumentNotFound = errors.New("document not found")

	// Intel errors
	ErrIntelNotFound      = errors.New("intel record not found")
	ErrInvalidIntelRecord = errors.New("invalid intel record")

	// Classifier errors
	ErrProbabilityRange    = errors.New("probability outside [0,1]")
	ErrFeatureVersion      = errors.New("classifier feature version mismatch")
	ErrClassifierNotLoaded = errors.New("classifier model not loaded")

	// Fusion errors
	ErrUnknownStrategy = errors.New("unknown fusion strategy")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)
