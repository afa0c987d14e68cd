// internal/platform/ui/pterm_presenter.go
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"phishfuse/internal/core/domain"
)

// PTermPresenter implementa Presenter usando la biblioteca pterm
// para renderizar barras de progreso, colores y símbolos en la terminal.
type PTermPresenter struct {
	mu  sync.Mutex
	out io.Writer

	runStart time.Time
	info     RunInfo

	// Barras activas por etapa
	bars map[string]*pterm.ProgressbarPrinter

	// Etapas terminadas en orden de llegada
	finished []StageLine
}

// NewPTermPresenter crea una nueva instancia del presenter con pterm
func NewPTermPresenter(out io.Writer) *PTermPresenter {
	return &PTermPresenter{
		out:  out,
		bars: make(map[string]*pterm.ProgressbarPrinter),
	}
}

// Start muestra el encabezado de la corrida
func (p *PTermPresenter) Start(info RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.info = info
	p.runStart = time.Now()

	fmt.Fprintln(p.out, pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Sprint("PhishFuse - "+info.Command))

	panel := fmt.Sprintf("%s Source: %s\n", IconSource, pterm.Cyan(orDash(info.Source)))
	panel += fmt.Sprintf("%s Store: %s\n", IconStore, info.Store)
	panel += fmt.Sprintf("   Strategy: %s\n", pterm.Yellow(orDash(info.Strategy)))
	panel += fmt.Sprintf("%s Workers: %d\n", IconWorkers, info.Workers)
	panel += fmt.Sprintf("%s Stages: %d", IconStage, len(info.Stages))

	fmt.Fprintln(p.out, pterm.DefaultBox.
		WithTitle("Run Configuration").
		WithTitleTopCenter().
		WithRightPadding(4).
		WithLeftPadding(4).
		WithBoxStyle(pterm.NewStyle(pterm.FgCyan)).
		Sprint(panel))
	fmt.Fprintln(p.out)
}

// StageStarted abre una barra de progreso para la etapa
func (p *PTermPresenter) StageStarted(stage string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, pterm.DefaultSection.WithLevel(2).Sprint(fmt.Sprintf("%s %s", IconStage, pterm.Cyan(stage))))
	if total <= 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(stage).
		WithWriter(p.out).
		Start()
	if err != nil {
		return
	}
	p.bars[stage] = bar
}

// StageAdvanced avanza la barra de la etapa
func (p *PTermPresenter) StageAdvanced(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bar, ok := p.bars[stage]; ok {
		bar.Increment()
	}
}

// StageFinished cierra la barra y muestra el resumen de la etapa
func (p *PTermPresenter) StageFinished(stage, summary string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopBar(stage)
	line := StageLine{Name: stage, Status: StatusSuccess, Summary: summary, Duration: duration}
	p.finished = append(p.finished, line)
	p.renderStageLine(line)
}

// PollPass actualiza el título de la barra del poller
func (p *PTermPresenter) PollPass(pass, maxPasses, pending int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	title := fmt.Sprintf("pass %d/%d, %d pending", pass, maxPasses, pending)
	for _, bar := range p.bars {
		bar.UpdateTitle(title)
	}
}

// Paused muestra la espera en el título de la barra activa
func (p *PTermPresenter) Paused(reason string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	title := fmt.Sprintf("%s %s (%s)", IconTime, reason, formatDuration(d))
	for _, bar := range p.bars {
		bar.UpdateTitle(title)
	}
}

// Info muestra un mensaje informativo
func (p *PTermPresenter) Info(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, pterm.Info.Sprintln(msg))
}

// Warning muestra una advertencia
func (p *PTermPresenter) Warning(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, pterm.Warning.Sprintln(msg))
}

// Error muestra un error
func (p *PTermPresenter) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, pterm.Error.Sprintln(msg))
}

// Finish muestra el resumen de la corrida
func (p *PTermPresenter) Finish(summary RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for stage := range p.bars {
		p.stopBar(stage)
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, pterm.LightBlue(SeparatorHeavy))

	bg := pterm.BgGreen
	for _, s := range summary.Stages {
		if s.Status == StatusError {
			bg = pterm.BgYellow
			break
		}
	}
	fmt.Fprintln(p.out, pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(bg)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Sprint("Run Completed"))

	content := fmt.Sprintf("%s Total Duration: %s\n", IconTime, pterm.Green(formatDuration(summary.Duration)))
	content += fmt.Sprintf("%s Documents: %s\n", IconDocuments, pterm.Cyan(fmt.Sprintf("%d", summary.Documents)))
	content += fmt.Sprintf("%s Flagged: %s\n", IconFlagged, pterm.Yellow(fmt.Sprintf("%d", summary.Flagged)))
	content += fmt.Sprintf("   Malicious: %s\n", VerdictStyle(domain.StatusMalicious).Sprint(summary.Malicious))
	content += fmt.Sprintf("   Suspicious: %s", VerdictStyle(domain.StatusSuspicious).Sprint(summary.Suspicious))

	fmt.Fprintln(p.out, pterm.DefaultBox.
		WithTitle("Run Statistics").
		WithTitleTopCenter().
		WithRightPadding(4).
		WithLeftPadding(4).
		WithBoxStyle(pterm.NewStyle(pterm.FgGreen)).
		Sprint(content))

	if len(summary.Stages) > 0 {
		data := pterm.TableData{{"Stage", "Status", "Duration", "Summary"}}
		for _, s := range summary.Stages {
			data = append(data, []string{
				s.Name,
				s.Status.Style().Sprint(s.Status.Symbol() + " " + s.Status.String()),
				formatDuration(s.Duration),
				s.Summary,
			})
		}
		if table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender(); err == nil {
			fmt.Fprintln(p.out, table)
		}
	}
	fmt.Fprintln(p.out)
}

// Close detiene las barras activas
func (p *PTermPresenter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for stage := range p.bars {
		p.stopBar(stage)
	}
	return nil
}

// stopBar detiene la barra de la etapa. El llamador debe tener mu.
func (p *PTermPresenter) stopBar(stage string) {
	if bar, ok := p.bars[stage]; ok {
		_, _ = bar.Stop()
		delete(p.bars, stage)
	}
}

// renderStageLine renderiza una línea con el estado final de una etapa
func (p *PTermPresenter) renderStageLine(line StageLine) {
	text := fmt.Sprintf("  %s %s (%s)", line.Status.Symbol(), line.Name, formatDuration(line.Duration))
	if line.Summary != "" {
		text += " " + pterm.Gray(line.Summary)
	}
	fmt.Fprintln(p.out, line.Status.Style().Sprint(text))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
