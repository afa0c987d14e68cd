// internal/platform/ui/noop_presenter.go
package ui

import (
	"phishfuse/internal/core/ports"
)

// NoopPresenter es una implementación vacía del Presenter
// que no produce ninguna salida. Útil para modo quiet o headless.
type NoopPresenter struct {
	ports.NopProgress
}

// NewNoopPresenter crea una instancia del presenter sin salida
func NewNoopPresenter() *NoopPresenter {
	return &NoopPresenter{}
}

func (n *NoopPresenter) Start(RunInfo)      {}
func (n *NoopPresenter) Info(string)        {}
func (n *NoopPresenter) Warning(string)     {}
func (n *NoopPresenter) Error(string)       {}
func (n *NoopPresenter) Finish(RunSummary)  {}
func (n *NoopPresenter) Close() error       { return nil }
