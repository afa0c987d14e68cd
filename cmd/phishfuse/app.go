// cmd/phishfuse/app.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/term"

	"phishfuse/internal/adapters/httpapi"
	"phishfuse/internal/adapters/output"
	"phishfuse/internal/adapters/storage/sqlstore"
	"phishfuse/internal/classifier"
	"phishfuse/internal/core/fusion"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/core/scoring"
	"phishfuse/internal/core/usecases"
	"phishfuse/internal/platform/config"
	"phishfuse/internal/platform/httpclient"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/platform/ui"
	"phishfuse/internal/sources/pages"
	"phishfuse/internal/sources/rdap"
	"phishfuse/internal/sources/textfile"
	"phishfuse/internal/sources/virustotal"
)

var commands = []string{"ingest", "classify", "poll", "fuse", "run", "report", "show", "serve"}

func knownCommand(name string) bool {
	for _, c := range commands {
		if c == name {
			return true
		}
	}
	return false
}

// usageError marca errores de uso del comando (exit 2).
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// app agrupa el store y las dependencias compartidas por los comandos.
type app struct {
	cfg    config.Config
	logger logx.Logger
	clock  clockwork.Clock
	ui     ui.Presenter
	store  *sqlstore.Store
	stdout io.Writer

	// lastFusion guarda el resumen de la última fusión para el cierre
	lastFusion *usecases.FusionReport
}

func newApp(ctx context.Context, cfg config.Config, logger logx.Logger) (*app, error) {
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		ui:     ui.New(uiMode(cfg), os.Stderr),
		store:  store,
		stdout: os.Stdout,
	}, nil
}

// uiMode elige barras pterm en una terminal y líneas logfmt en pipes.
func uiMode(cfg config.Config) ui.UIMode {
	switch {
	case cfg.Output.Quiet:
		return ui.UIModeQuiet
	case !term.IsTerminal(int(os.Stderr.Fd())):
		return ui.UIModeRaw
	default:
		return ui.UIModeCompact
	}
}

func (a *app) Close() {
	if err := a.ui.Close(); err != nil {
		a.logger.Warn("failed to close presenter", "error", err.Error())
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err.Error())
	}
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "ingest":
		if len(args) > 0 {
			a.cfg.Ingest.Source = args[0]
		}
		st, err := a.ingestStage()
		if err != nil {
			return err
		}
		return a.runStages(ctx, command, st)
	case "classify":
		st, err := a.classifyStage()
		if err != nil {
			return err
		}
		return a.runStages(ctx, command, st)
	case "poll":
		st, err := a.pollStage()
		if err != nil {
			return err
		}
		return a.runStages(ctx, command, st)
	case "fuse":
		st, err := a.fuseStage()
		if err != nil {
			return err
		}
		return a.runStages(ctx, command, st)
	case "run":
		if len(args) > 0 {
			a.cfg.Ingest.Source = args[0]
		}
		return a.runAll(ctx)
	case "report":
		return a.report(ctx, nil)
	case "show":
		if len(args) != 1 {
			return usageError{"show needs exactly one document id"}
		}
		return a.show(ctx, args[0])
	case "serve":
		srv := httpapi.New(usecases.NewQueryService(a.store), version, a.logger)
		return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
	default:
		return usageError{fmt.Sprintf("unknown command %q", command)}
	}
}

// runAll ejecuta ingest, classify, poll y fuse. Classify y poll son
// opcionales: su falla no impide fusionar con las señales disponibles.
func (a *app) runAll(ctx context.Context) error {
	var stages []usecases.Stage

	if a.cfg.Ingest.Source != "" {
		st, err := a.ingestStage()
		if err != nil {
			return err
		}
		stages = append(stages, st)
	} else {
		a.ui.Info("no text source given, skipping ingest")
	}

	st, err := a.classifyStage()
	if err != nil {
		return err
	}
	st.Optional = true
	stages = append(stages, st)

	if a.cfg.Intel.APIKey != "" {
		st, err := a.pollStage()
		if err != nil {
			return err
		}
		st.Optional = true
		stages = append(stages, st)
	} else {
		a.ui.Warning("no intel API key, skipping poll")
	}

	st, err = a.fuseStage()
	if err != nil {
		return err
	}
	stages = append(stages, st)

	runID := uuid.NewString()
	writer := output.NewStreamingWriter(a.cfg.Output.Dir, runID, a.clock.Now(), a.logger)
	for i := range stages {
		stages[i] = writer.Wrap(stages[i])
	}

	results, runErr := a.execute(ctx, "run", stages)
	if runErr == nil {
		if err := writer.Cleanup(); err != nil {
			a.logger.Warn("failed to remove partial results", "error", err.Error())
		}
	}
	if ctx.Err() != nil {
		return runErr
	}
	if err := a.report(ctx, results); err != nil {
		return err
	}
	return runErr
}

func (a *app) runStages(ctx context.Context, command string, stages ...usecases.Stage) error {
	_, err := a.execute(ctx, command, stages)
	return err
}

// execute corre el pipeline con el presenter activo.
func (a *app) execute(ctx context.Context, command string, stages []usecases.Stage) ([]usecases.StageResult, error) {
	names := make([]string, len(stages))
	optional := make(map[string]bool, len(stages))
	for i, s := range stages {
		names[i] = s.Name
		optional[s.Name] = s.Optional
	}
	a.ui.Start(ui.RunInfo{
		Command:  command,
		Source:   a.cfg.Ingest.Source,
		Store:    a.cfg.Store.Driver,
		Strategy: a.cfg.Fusion.Strategy,
		Workers:  a.cfg.Ingest.Concurrency,
		Stages:   names,
	})

	start := a.clock.Now()
	results, err := usecases.NewPipeline(a.logger, stages...).Run(ctx)

	summary := ui.RunSummary{Duration: a.clock.Since(start)}
	for _, r := range results {
		summary.Stages = append(summary.Stages, ui.StageLine{
			Name:     r.Name,
			Status:   ui.StatusFromError(r.Failed(), optional[r.Name]),
			Summary:  r.Summary,
			Duration: r.Duration,
		})
		if r.Failed() {
			a.ui.Error(fmt.Sprintf("%s: %s", r.Name, r.Error))
		}
	}
	if counts, cerr := usecases.NewQueryService(a.store).Counts(ctx); cerr == nil {
		summary.Documents, summary.Flagged = counts.Total, counts.Flagged
	}
	if f := a.lastFusion; f != nil {
		summary.Malicious, summary.Suspicious = f.Malicious, f.Suspicious
	}
	a.ui.Finish(summary)
	return results, err
}

func (a *app) ingestStage() (usecases.Stage, error) {
	if a.cfg.Ingest.Source == "" {
		return usecases.Stage{}, usageError{"ingest needs a text source (-i or argument)"}
	}
	format, err := textfile.ParseFormat(a.cfg.Ingest.Format)
	if err != nil {
		return usecases.Stage{}, usageError{err.Error()}
	}
	source, err := textfile.New(a.cfg.Ingest.Source, format, a.logger)
	if err != nil {
		return usecases.Stage{}, err
	}
	table, err := scoring.LoadTable(a.cfg.Scoring.Keywords)
	if err != nil {
		return usecases.Stage{}, fmt.Errorf("keyword table: %w", err)
	}

	opts := usecases.IngestOptions{
		Repository:   a.store,
		Source:       source,
		Scorer:       scoring.NewScorer(table),
		IntelMinRisk: a.cfg.Ingest.MinRisk,
		Concurrency:  a.cfg.Ingest.Concurrency,
		Clock:        a.clock,
		Progress:     a.ui,
		Logger:       a.logger,
	}
	if a.cfg.Ingest.DomainInfo {
		rc := rdap.DefaultConfig()
		if a.cfg.Ingest.RDAPURL != "" {
			rc.BaseURL = a.cfg.Ingest.RDAPURL
		}
		opts.DomainInfo = rdap.New(rc, a.clock, a.logger)
	}
	if a.cfg.Ingest.Expand || a.cfg.Ingest.FetchPages {
		fetcher := pages.New(pages.DefaultConfig(), a.logger)
		if a.cfg.Ingest.Expand {
			opts.Expander = fetcher
		}
		if a.cfg.Ingest.FetchPages {
			opts.Pages = fetcher
		}
	}

	svc, err := usecases.NewIngestService(opts)
	if err != nil {
		return usecases.Stage{}, err
	}
	return usecases.Stage{
		Name: usecases.StageIngest,
		Run: func(ctx context.Context) (string, error) {
			r, err := svc.Run(ctx)
			return r.Summary(), err
		},
	}, nil
}

// newClassifier usa el endpoint remoto si está configurado; si no, el modelo
// lineal del archivo o el embebido.
func (a *app) newClassifier() (ports.Classifier, error) {
	if ep := strings.TrimSpace(a.cfg.Classifier.Endpoint); ep != "" {
		hc := httpclient.DefaultConfig()
		hc.Timeout = a.cfg.Classifier.Timeout
		return classifier.NewHTTPClassifier(ep, httpclient.New(hc, a.logger)), nil
	}
	model, err := classifier.LoadModel(a.cfg.Classifier.Model)
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (a *app) classifyStage() (usecases.Stage, error) {
	c, err := a.newClassifier()
	if err != nil {
		return usecases.Stage{}, fmt.Errorf("classifier: %w", err)
	}
	assessor, err := classifier.NewAssessor(c, a.cfg.Classifier.Threshold, a.clock, a.logger)
	if err != nil {
		return usecases.Stage{}, err
	}
	svc, err := usecases.NewClassifyService(usecases.ClassifyOptions{
		Repository:  a.store,
		Assessor:    assessor,
		Concurrency: a.cfg.Classifier.Concurrency,
		Clock:       a.clock,
		Progress:    a.ui,
		Logger:      a.logger,
	})
	if err != nil {
		return usecases.Stage{}, err
	}
	reassess := a.cfg.Reassess
	return usecases.Stage{
		Name: usecases.StageClassify,
		Run: func(ctx context.Context) (string, error) {
			r, err := svc.Run(ctx, reassess)
			return r.Summary(), err
		},
	}, nil
}

func (a *app) pollStage() (usecases.Stage, error) {
	vt, err := virustotal.New(virustotal.Config{
		APIKey:    a.cfg.Intel.APIKey,
		BaseURL:   a.cfg.Intel.BaseURL,
		RateLimit: a.cfg.Intel.RateLimit,
	}, a.logger)
	if err != nil {
		return usecases.Stage{}, usageError{err.Error() + " (set --intel.api-key or VT_API_KEY)"}
	}

	pc := usecases.PollerConfig{
		MaxRetries:      a.cfg.Intel.MaxRetries,
		Delay:           a.cfg.Intel.Delay,
		Cooldown:        a.cfg.Intel.Cooldown,
		Concurrency:     a.cfg.Intel.Concurrency,
		ResubmitAfter:   a.cfg.Intel.ResubmitAfter,
		SuspiciousRatio: a.cfg.Intel.SuspiciousRatio,
		BatchLimit:      a.cfg.Intel.BatchLimit,
		MaxPauses:       a.cfg.Intel.MaxPauses,
	}
	poller, err := usecases.NewPoller(usecases.PollerOptions{
		Repository: a.store,
		Service:    vt,
		Config:     pc,
		Clock:      a.clock,
		Progress:   a.ui,
		Logger:     a.logger,
	})
	if err != nil {
		return usecases.Stage{}, err
	}
	return usecases.Stage{
		Name: usecases.StagePoll,
		Run: func(ctx context.Context) (string, error) {
			r, err := poller.Run(ctx)
			return r.Summary(), err
		},
	}, nil
}

func (a *app) fuseStage() (usecases.Stage, error) {
	engine, err := fusion.NewEngine(a.cfg.Fusion.Strategy, fusion.AnomalyConfig{
		LowRiskCutoff: a.cfg.Fusion.LowRiskCutoff,
		RuleHitFloor:  a.cfg.Fusion.RuleHitFloor,
		LowConfidence: a.cfg.Fusion.LowConfidence,
	})
	if err != nil {
		return usecases.Stage{}, usageError{err.Error()}
	}
	svc, err := usecases.NewFusionService(usecases.FusionOptions{
		Repository: a.store,
		Engine:     engine,
		Clock:      a.clock,
		Progress:   a.ui,
		Logger:     a.logger,
	})
	if err != nil {
		return usecases.Stage{}, err
	}
	return usecases.Stage{
		Name: usecases.StageFuse,
		Run: func(ctx context.Context) (string, error) {
			r, err := svc.Run(ctx)
			a.lastFusion = &r
			return r.Summary(), err
		},
	}, nil
}

// report escribe el reporte JSON en el directorio de salida y la tabla en
// stdout; en modo quiet el JSON va a stdout.
func (a *app) report(ctx context.Context, stages []usecases.StageResult) error {
	q := usecases.NewQueryService(a.store)
	counts, err := q.Counts(ctx)
	if err != nil {
		return err
	}
	flagged, err := q.ListFlagged(ctx, a.cfg.Output.Limit)
	if err != nil {
		return err
	}
	rep := &output.Report{
		GeneratedAt: a.clock.Now(),
		Strategy:    a.cfg.Fusion.Strategy,
		Counts:      counts,
		Stages:      stages,
		Flagged:     flagged,
	}

	if a.cfg.Output.Quiet {
		return output.WriteJSON(a.stdout, rep, false)
	}
	path, err := output.OutputJSON(a.cfg.Output.Dir, rep)
	if err != nil {
		return fmt.Errorf("json output: %w", err)
	}
	if err := output.OutputTable(a.stdout, rep); err != nil {
		return fmt.Errorf("table output: %w", err)
	}
	a.logger.Info("report written", "file", path, "flagged", len(flagged))
	return nil
}

func (a *app) show(ctx context.Context, id string) error {
	detail, err := usecases.NewQueryService(a.store).Detail(ctx, id)
	if err != nil {
		return err
	}
	if a.cfg.Output.Quiet {
		return output.WriteJSON(a.stdout, detail, true)
	}
	return output.OutputDetail(a.stdout, detail)
}
