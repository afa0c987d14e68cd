// internal/platform/ui/raw_presenter.go
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LogFormat define el formato de salida para el modo raw
type LogFormat string

const (
	LogFormatText LogFormat = "text" // Formato logfmt (default)
	LogFormatJSON LogFormat = "json" // Formato JSON estructurado
)

// progressSteps cantidad de líneas de avance que emite una etapa
const progressSteps = 10

// field es un par clave/valor que conserva el orden de salida
type field struct {
	key   string
	value interface{}
}

type stageCounter struct {
	total int
	done  int
}

// RawPresenter implementa el Presenter para modo raw (logs sin formato visual)
type RawPresenter struct {
	format    LogFormat
	out       io.Writer
	clock     clockwork.Clock
	mu        sync.Mutex
	startTime time.Time
	stages    map[string]*stageCounter
}

// NewRawPresenter crea un nuevo RawPresenter que escribe en out
func NewRawPresenter(format LogFormat, out io.Writer) *RawPresenter {
	return NewRawPresenterWithClock(format, out, clockwork.NewRealClock())
}

// NewRawPresenterWithClock permite inyectar el reloj (tests)
func NewRawPresenterWithClock(format LogFormat, out io.Writer, clock clockwork.Clock) *RawPresenter {
	return &RawPresenter{
		format:    format,
		out:       out,
		clock:     clock,
		startTime: clock.Now(),
		stages:    make(map[string]*stageCounter),
	}
}

// log escribe un log en el formato configurado. El llamador debe tener mu.
func (r *RawPresenter) log(level, message string, fields ...field) {
	timestamp := r.clock.Now().UTC().Format(time.RFC3339)

	if r.format == LogFormatJSON {
		r.logJSON(timestamp, level, message, fields)
	} else {
		r.logText(timestamp, level, message, fields)
	}
}

// logText escribe en formato logfmt: timestamp LEVEL message key=value key2=value2
func (r *RawPresenter) logText(timestamp, level, message string, fields []field) {
	parts := []string{timestamp, fmt.Sprintf("%-5s", level), message}
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", f.key, r.formatValue(f.value)))
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
}

// logJSON escribe en formato JSON estructurado
func (r *RawPresenter) logJSON(timestamp, level, message string, fields []field) {
	logEntry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"message":   message,
	}

	if len(fields) > 0 {
		data := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			if d, ok := f.value.(time.Duration); ok {
				data[f.key] = d.String()
				continue
			}
			data[f.key] = f.value
		}
		logEntry["data"] = data
	}

	jsonBytes, _ := json.Marshal(logEntry)
	fmt.Fprintln(r.out, string(jsonBytes))
}

// formatValue formatea valores para logfmt (entrecomilla strings con espacios)
func (r *RawPresenter) formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " =\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case time.Duration:
		return val.String()
	case float64:
		return fmt.Sprintf("%.2f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Start inicia la presentación
func (r *RawPresenter) Start(info RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = r.clock.Now()
	r.log("INFO", "run_started",
		field{"command", info.Command},
		field{"source", info.Source},
		field{"store", info.Store},
		field{"strategy", info.Strategy},
		field{"workers", info.Workers},
		field{"stages", strings.Join(info.Stages, ",")},
	)
}

// StageStarted notifica el inicio de una etapa
func (r *RawPresenter) StageStarted(stage string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages[stage] = &stageCounter{total: total}
	r.log("INFO", "stage_started", field{"stage", stage}, field{"total", total})
}

// StageAdvanced emite una línea cada décima parte de la etapa
func (r *RawPresenter) StageAdvanced(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.stages[stage]
	if !ok {
		return
	}
	c.done++
	step := c.total / progressSteps
	if step < 1 {
		step = 1
	}
	if c.done%step != 0 && c.done != c.total {
		return
	}
	r.log("INFO", "stage_progress",
		field{"stage", stage},
		field{"done", c.done},
		field{"total", c.total},
	)
}

// StageFinished notifica la finalización de una etapa
func (r *RawPresenter) StageFinished(stage, summary string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stages, stage)
	r.log("INFO", "stage_completed",
		field{"stage", stage},
		field{"summary", summary},
		field{"duration", duration},
	)
}

// PollPass notifica una pasada del poller
func (r *RawPresenter) PollPass(pass, maxPasses, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log("INFO", "poll_pass",
		field{"pass", pass},
		field{"max", maxPasses},
		field{"pending", pending},
	)
}

// Paused notifica una pausa del lote
func (r *RawPresenter) Paused(reason string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log("INFO", "paused", field{"reason", reason}, field{"wait", d})
}

// Info muestra un mensaje informativo
func (r *RawPresenter) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("INFO", msg)
}

// Warning muestra una advertencia
func (r *RawPresenter) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("WARN", msg)
}

// Error muestra un error
func (r *RawPresenter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("ERROR", msg)
}

// Finish finaliza la presentación con el resumen de la corrida
func (r *RawPresenter) Finish(summary RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := 0
	for _, s := range summary.Stages {
		if s.Status == StatusError {
			failed++
		}
	}
	r.log("INFO", "run_completed",
		field{"duration", summary.Duration},
		field{"stages", len(summary.Stages)},
		field{"stages_failed", failed},
		field{"documents", summary.Documents},
		field{"flagged", summary.Flagged},
		field{"malicious", summary.Malicious},
		field{"suspicious", summary.Suspicious},
	)
}

// Close limpia recursos
func (r *RawPresenter) Close() error {
	return nil
}
