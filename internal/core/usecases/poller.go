// internal/core/usecases/poller.go
package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
	"phishfuse/internal/platform/errors"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/platform/workerpool"
)

// StagePoll es el nombre de la etapa para los eventos de progreso.
const StagePoll = "poll"

// Sleeper suspende la ejecución d o hasta que ctx se cancele.
type Sleeper func(ctx context.Context, d time.Duration) error

// ClockSleeper duerme sobre el reloj dado (real o falso en tests).
func ClockSleeper(c clockwork.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		t := c.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			return nil
		}
	}
}

// PollerConfig son los parámetros del ciclo submit → poll → resolve.
type PollerConfig struct {
	// MaxRetries cantidad máxima de pasadas completas sobre el lote
	MaxRetries int

	// Delay pausa entre pasadas
	Delay time.Duration

	// Cooldown pausa por rate limit cuando el servicio no envía Retry-After
	Cooldown time.Duration

	// Concurrency URLs procesadas en paralelo dentro de una pasada
	Concurrency int

	// ResubmitAfter intentos sin veredicto a partir de los cuales se reenvía la URL
	ResubmitAfter int

	// SuspiciousRatio fracción de motores que vuelve sospechosa una URL
	SuspiciousRatio float64

	// BatchLimit tamaño máximo del lote fijo cargado al inicio (0 = sin límite)
	BatchLimit int

	// MaxPauses pausas por rate limit permitidas en una pasada; el resto pasa a la siguiente
	MaxPauses int
}

// DefaultPollerConfig retorna los valores por defecto.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		MaxRetries:      10,
		Delay:           120 * time.Second,
		Cooldown:        30 * time.Second,
		Concurrency:     4,
		ResubmitAfter:   5,
		SuspiciousRatio: domain.DefaultSuspiciousRatio,
		BatchLimit:      400,
		MaxPauses:       20,
	}
}

// Validate verifica que la configuración sea utilizable.
func (c PollerConfig) Validate() error {
	switch {
	case c.MaxRetries <= 0:
		return fmt.Errorf("%w: intel max_retries must be positive", domain.ErrInvalidConfig)
	case c.Delay < 0 || c.Cooldown < 0:
		return fmt.Errorf("%w: intel delays cannot be negative", domain.ErrInvalidConfig)
	case c.ResubmitAfter <= 0:
		return fmt.Errorf("%w: intel resubmit_after must be positive", domain.ErrInvalidConfig)
	case c.SuspiciousRatio < 0 || c.SuspiciousRatio > 1:
		return fmt.Errorf("%w: intel suspicious_ratio outside [0,1]", domain.ErrInvalidConfig)
	case c.BatchLimit < 0:
		return fmt.Errorf("%w: intel batch_limit cannot be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// PollReport resume una corrida del poller.
type PollReport struct {
	Batch           int                         `json:"batch"`
	Passes          int                         `json:"passes"`
	Submitted       int                         `json:"submitted"`
	Resubmitted     int                         `json:"resubmitted"`
	Resolved        int                         `json:"resolved"`
	TimedOut        int                         `json:"timed_out"`
	Pending         int                         `json:"pending"`
	RateLimitPauses int                         `json:"rate_limit_pauses"`
	TransientErrors int                         `json:"transient_errors"`
	Verdicts        map[domain.IntelVerdict]int `json:"verdicts"`
	Duration        time.Duration               `json:"duration"`
}

// Summary es una línea legible para el presenter.
func (r PollReport) Summary() string {
	return fmt.Sprintf("%d urls, %d passes: %d resolved, %d timed out, %d pending, %d rate-limit pauses",
		r.Batch, r.Passes, r.Resolved, r.TimedOut, r.Pending, r.RateLimitPauses)
}

// PollerOptions agrupa las dependencias del poller.
type PollerOptions struct {
	Repository ports.IntelRepository
	Service    ports.IntelService
	Config     PollerConfig
	Clock      clockwork.Clock
	Sleep      Sleeper
	Progress   ports.Progress
	Logger     logx.Logger
}

// Poller lleva cada URL pendiente a un estado terminal en a lo sumo
// MaxRetries pasadas. Cada transición se persiste antes de continuar, así
// una corrida interrumpida retoma desde el último estado guardado.
type Poller struct {
	repo     ports.IntelRepository
	service  ports.IntelService
	cfg      PollerConfig
	pool     *workerpool.Pool
	clock    clockwork.Clock
	sleep    Sleeper
	progress ports.Progress
	logger   logx.Logger
}

// NewPoller crea un poller validando la configuración.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Repository == nil || opts.Service == nil {
		return nil, fmt.Errorf("%w: poller needs a repository and an intel service", domain.ErrMissingConfig)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logx.New()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Sleep == nil {
		opts.Sleep = ClockSleeper(opts.Clock)
	}
	if opts.Progress == nil {
		opts.Progress = ports.NopProgress{}
	}
	if opts.Config.MaxPauses <= 0 {
		opts.Config.MaxPauses = DefaultPollerConfig().MaxPauses
	}

	logger := opts.Logger.With("component", "poller", "service", opts.Service.Name())
	return &Poller{
		repo:     opts.Repository,
		service:  opts.Service,
		cfg:      opts.Config,
		pool:     workerpool.New(opts.Config.Concurrency, logger),
		clock:    opts.Clock,
		sleep:    opts.Sleep,
		progress: opts.Progress,
		logger:   logger,
	}, nil
}

// outcome es el resultado de procesar una URL dentro de una pasada.
type outcome int

const (
	outcomePending outcome = iota
	outcomeDeferred
	outcomeResolved
)

// passState acumula lo ocurrido en una pasada; los workers lo comparten.
type passState struct {
	mu       sync.Mutex
	report   *PollReport
	deferred []*domain.IntelRecord
	pending  int
}

func (s *passState) record(fn func(r *PollReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.report)
}

func (s *passState) finish(r *domain.IntelRecord, o outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch o {
	case outcomeDeferred:
		s.deferred = append(s.deferred, r)
	case outcomePending:
		s.pending++
	}
}

// Run carga un lote fijo de URLs pendientes y ejecuta las pasadas. Retorna el
// reporte aun cuando falla: una cancelación o un rechazo permanente dejan el
// último estado persistido intacto.
func (p *Poller) Run(ctx context.Context) (PollReport, error) {
	start := p.clock.Now()
	report := PollReport{Verdicts: make(map[domain.IntelVerdict]int)}

	batch, err := p.repo.FindIntel(ctx, ports.IntelFilter{
		Resolution: domain.ResolutionPending,
		Limit:      p.cfg.BatchLimit,
	})
	if err != nil {
		return report, fmt.Errorf("load intel batch: %w", err)
	}
	report.Batch = len(batch)
	if len(batch) == 0 {
		p.logger.Info("no pending urls")
		return report, nil
	}

	urls := make([]string, len(batch))
	for i, r := range batch {
		urls[i] = r.URL
	}

	p.logger.Info("starting intel poll",
		"urls", len(batch),
		"max_retries", p.cfg.MaxRetries,
		"delay", p.cfg.Delay.String(),
		"concurrency", p.pool.Workers(),
	)
	p.progress.StageStarted(StagePoll, len(batch))

	finish := func(err error) (PollReport, error) {
		report.Duration = p.clock.Since(start)
		p.progress.StageFinished(StagePoll, report.Summary(), report.Duration)
		return report, err
	}

	for pass := 1; pass <= p.cfg.MaxRetries; pass++ {
		pending, err := p.repo.FindIntel(ctx, ports.IntelFilter{URLs: urls, Resolution: domain.ResolutionPending})
		if err != nil {
			return finish(fmt.Errorf("reload pending urls: %w", err))
		}
		report.Pending = len(pending)
		if len(pending) == 0 {
			break
		}

		report.Passes = pass
		p.progress.PollPass(pass, p.cfg.MaxRetries, len(pending))
		p.logger.Debug("poll pass", "pass", pass, "pending", len(pending))

		remaining, err := p.runPass(ctx, pending, &report)
		report.Pending = remaining
		if err != nil {
			return finish(err)
		}
		if remaining == 0 {
			break
		}

		p.logger.Info("pass finished",
			"pass", pass,
			"resolved", report.Resolved,
			"pending", remaining,
		)
		if pass < p.cfg.MaxRetries {
			p.progress.Paused("next pass", p.cfg.Delay)
			if err := p.sleep(ctx, p.cfg.Delay); err != nil {
				return finish(err)
			}
		}
	}

	if err := p.expire(ctx, urls, &report); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// runPass procesa las URLs en el pool. Cuando un worker recibe rate limit la
// compuerta se cierra, el resto difiere sus URLs sin llamar al servicio, el
// lote completo duerme y la misma pasada continúa con las diferidas.
func (p *Poller) runPass(ctx context.Context, queue []*domain.IntelRecord, report *PollReport) (int, error) {
	state := &passState{report: report}
	gate := &workerpool.Gate{}

	for pauses := 0; len(queue) > 0; pauses++ {
		state.deferred = nil
		current := queue
		_, err := p.pool.Run(ctx, len(current), func(ctx context.Context, i int) error {
			r := current[i]
			o, err := p.step(ctx, r, gate, state)
			if err != nil {
				return err
			}
			state.finish(r, o)
			return nil
		})
		if err != nil {
			return 0, err
		}

		queue = state.deferred
		wait, trips := gate.Reopen()
		if len(queue) == 0 {
			break
		}
		if pauses >= p.cfg.MaxPauses {
			p.logger.Warn("rate limit pauses exhausted, carrying urls to next pass",
				"pauses", pauses,
				"urls", len(queue),
			)
			state.pending += len(queue)
			break
		}
		if wait <= 0 {
			wait = p.cfg.Cooldown
		}

		report.RateLimitPauses++
		p.logger.Warn("rate limited, pausing batch",
			"wait", wait.String(),
			"signals", trips,
			"deferred", len(queue),
		)
		p.progress.Paused("rate limit", wait)
		if err := p.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
	return state.pending, nil
}

// step ejecuta las transiciones de una URL en esta pasada. Los errores que
// retorna abortan la corrida; los transitorios se registran y la URL sigue
// pendiente.
func (p *Poller) step(ctx context.Context, r *domain.IntelRecord, gate *workerpool.Gate, state *passState) (outcome, error) {
	if gate.Closed() {
		return outcomeDeferred, nil
	}

	if r.Submission == domain.SubmissionNotSubmitted {
		ok, err := p.submit(ctx, r, gate, state)
		if err != nil {
			return outcomePending, err
		}
		if gate.Closed() {
			return outcomeDeferred, nil
		}
		if !ok {
			return outcomePending, nil
		}
	}

	stats, err := p.service.Query(ctx, r.URL)
	switch {
	case err == nil:
	case errors.IsNotFound(err):
		stats = domain.ScanStats{}
	default:
		if o, fatal := p.failure(ctx, r, "query", err, gate, state); fatal != nil || o == outcomeDeferred {
			return o, fatal
		}
		return outcomePending, nil
	}

	verdict := stats.Classify(p.cfg.SuspiciousRatio)
	now := p.clock.Now().UTC()

	if verdict != domain.VerdictUnknown {
		applied, err := p.repo.UpdateIntel(ctx, r.URL, ports.IntelUpdate{
			Resolution:  ports.Ptr(domain.ResolutionResolved),
			Verdict:     ports.Ptr(verdict),
			Stats:       &stats,
			LastError:   ports.Ptr(""),
			ResolvedAt:  &now,
			UpdatedAt:   now,
			OnlyPending: true,
		})
		if err != nil {
			return outcomePending, fmt.Errorf("persist resolution of %s: %w", r.URL, err)
		}
		if applied {
			state.record(func(rep *PollReport) {
				rep.Resolved++
				rep.Verdicts[verdict]++
			})
			p.progress.StageAdvanced(StagePoll)
			p.logger.Debug("url resolved", "url", r.URL, "verdict", verdict, "engines", stats.Total())
		}
		return outcomeResolved, nil
	}

	r.Attempts++
	if _, err := p.repo.UpdateIntel(ctx, r.URL, ports.IntelUpdate{
		Attempts:    ports.Ptr(r.Attempts),
		Stats:       &stats,
		UpdatedAt:   now,
		OnlyPending: true,
	}); err != nil {
		return outcomePending, fmt.Errorf("persist attempt of %s: %w", r.URL, err)
	}

	if r.Attempts >= p.cfg.ResubmitAfter {
		p.logger.Debug("resubmitting url", "url", r.URL, "attempts", r.Attempts)
		if _, err := p.submit(ctx, r, gate, state); err != nil {
			return outcomePending, err
		}
	}
	return outcomePending, nil
}

// submit envía la URL y persiste el cambio. ok es false si el envío no se
// aceptó; el rate limit cierra la compuerta.
func (p *Poller) submit(ctx context.Context, r *domain.IntelRecord, gate *workerpool.Gate, state *passState) (bool, error) {
	if err := p.service.Submit(ctx, r.URL); err != nil {
		_, fatal := p.failure(ctx, r, "submit", err, gate, state)
		return false, fatal
	}

	first := r.Submission == domain.SubmissionNotSubmitted
	r.Submission = domain.SubmissionSubmitted
	r.Submits++
	now := p.clock.Now().UTC()
	if _, err := p.repo.UpdateIntel(ctx, r.URL, ports.IntelUpdate{
		Submission:  ports.Ptr(domain.SubmissionSubmitted),
		Submits:     ports.Ptr(r.Submits),
		UpdatedAt:   now,
		OnlyPending: true,
	}); err != nil {
		return false, fmt.Errorf("persist submission of %s: %w", r.URL, err)
	}

	state.record(func(rep *PollReport) {
		if first {
			rep.Submitted++
		} else {
			rep.Resubmitted++
		}
	})
	return true, nil
}

// failure clasifica un error del servicio. Retorna un error solo cuando la
// corrida debe abortar (cancelación, rechazo permanente o fallo del store).
func (p *Poller) failure(ctx context.Context, r *domain.IntelRecord, op string, err error, gate *workerpool.Gate, state *passState) (outcome, error) {
	if ctx.Err() != nil {
		return outcomePending, ctx.Err()
	}
	if errors.IsRateLimit(err) {
		gate.Close(errors.RetryAfter(err, 0))
		return outcomeDeferred, nil
	}
	if errors.IsPermanent(err) {
		p.logger.Err(err, "url", r.URL, "op", op)
		return outcomePending, fmt.Errorf("%s rejected %s permanently: %w", p.service.Name(), op, err)
	}

	p.logger.Warn("transient intel failure", "url", r.URL, "op", op, "error", err.Error())
	state.record(func(rep *PollReport) { rep.TransientErrors++ })
	msg := fmt.Sprintf("%s: %v", op, err)
	r.LastError = msg
	if _, perr := p.repo.UpdateIntel(ctx, r.URL, ports.IntelUpdate{
		LastError:   &msg,
		UpdatedAt:   p.clock.Now().UTC(),
		OnlyPending: true,
	}); perr != nil {
		return outcomePending, fmt.Errorf("persist failure of %s: %w", r.URL, perr)
	}
	return outcomePending, nil
}

// expire fuerza timed_out en las URLs del lote que siguen pendientes.
func (p *Poller) expire(ctx context.Context, urls []string, report *PollReport) error {
	pending, err := p.repo.FindIntel(ctx, ports.IntelFilter{URLs: urls, Resolution: domain.ResolutionPending})
	if err != nil {
		return fmt.Errorf("load expired urls: %w", err)
	}
	for _, r := range pending {
		now := p.clock.Now().UTC()
		applied, err := p.repo.UpdateIntel(ctx, r.URL, ports.IntelUpdate{
			Resolution:  ports.Ptr(domain.ResolutionTimedOut),
			Verdict:     ports.Ptr(domain.VerdictTimeout),
			ResolvedAt:  &now,
			UpdatedAt:   now,
			OnlyPending: true,
		})
		if err != nil {
			return fmt.Errorf("persist timeout of %s: %w", r.URL, err)
		}
		if applied {
			report.TimedOut++
			report.Verdicts[domain.VerdictTimeout]++
			p.progress.StageAdvanced(StagePoll)
		}
	}
	report.Pending = 0
	if report.TimedOut > 0 {
		p.logger.Warn("urls timed out without verdict", "count", report.TimedOut, "passes", report.Passes)
	}
	return nil
}
