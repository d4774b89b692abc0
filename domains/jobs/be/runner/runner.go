package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
	platformlogging "github.com/zenGate-Global/schoolhub/platform/go/logging"
	"github.com/zenGate-Global/schoolhub/platform/go/metrics"
	"github.com/zenGate-Global/schoolhub/platform/go/requesttrace"
)

// ErrAlreadyRunning is returned when a procedure is triggered while a previous run is active.
var ErrAlreadyRunning = errors.New("procedure is already running")

// Sweeper runs one named sweep to completion.
type Sweeper interface {
	Run(ctx context.Context, p service.Procedure) (service.Report, error)
}

// Config controls scheduling. A procedure with an empty schedule is not scheduled but can still
// be triggered with RunOnce.
type Config struct {
	Location  *time.Location
	Timeout   time.Duration
	Schedules map[service.Procedure]string
}

// DefaultSchedules returns the standard cron expressions, evaluated in Config.Location.
func DefaultSchedules() map[service.Procedure]string {
	return map[service.Procedure]string{
		service.ProcedureSubscriptionExpiry:   "0 9 * * *",
		service.ProcedurePaymentReminders:     "0 8 * * *",
		service.ProcedureAttendanceDigest:     "0 7 * * 1",
		service.ProcedureAssignCriticalIssues: "*/15 * * * *",
	}
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.Schedules == nil {
		c.Schedules = DefaultSchedules()
	}
	return c
}

// Runner triggers sweeps on their schedules. A procedure never overlaps with itself; each run gets
// its own id, deadline and logger.
type Runner struct {
	sweeper Sweeper
	metrics *metrics.SweepMetrics
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	running map[service.Procedure]bool
	cron    *cron.Cron
	cancel  context.CancelFunc
}

// New builds a Runner. m may be nil.
func New(sweeper Sweeper, m *metrics.SweepMetrics, cfg Config, logger *zap.Logger) *Runner {
	if sweeper == nil {
		panic("sweeper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sweeper: sweeper,
		metrics: m,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		running: make(map[service.Procedure]bool),
	}
}

// Start registers every scheduled procedure and starts the scheduler. Runs use a context derived
// from ctx, cancelled by Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("runner already started")
	}

	base := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLocation(r.cfg.Location),
		cron.WithLogger(base),
		cron.WithChain(cron.Recover(base)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	for _, p := range service.Procedures() {
		spec, ok := r.cfg.Schedules[p]
		if !ok || spec == "" {
			r.logger.Info("sweep not scheduled", zap.String("procedure", string(p)))
			continue
		}

		p := p
		skipLogger := cronLogger{logger: r.logger.With(zap.String("procedure", string(p))), onSkip: func() { r.observeSkip(p) }}
		job := cron.NewChain(cron.SkipIfStillRunning(skipLogger)).Then(cron.FuncJob(func() {
			_, _ = r.execute(runCtx, p)
		}))
		if _, err := c.AddJob(spec, job); err != nil {
			cancel()
			return fmt.Errorf("schedule %s %q: %w", p, spec, err)
		}
		r.logger.Info("sweep scheduled",
			zap.String("procedure", string(p)),
			zap.String("schedule", spec),
			zap.String("location", r.cfg.Location.String()),
		)
	}

	c.Start()
	r.cron = c
	r.cancel = cancel
	return nil
}

// Stop halts scheduling, cancels active runs and waits for them to return or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs p synchronously, under the same guard and deadline as scheduled runs.
func (r *Runner) RunOnce(ctx context.Context, p service.Procedure) (service.Report, error) {
	if _, err := service.ParseProcedure(string(p)); err != nil {
		return service.Report{}, err
	}
	return r.execute(ctx, p)
}

func (r *Runner) execute(ctx context.Context, p service.Procedure) (service.Report, error) {
	if !r.claim(p) {
		r.observeSkip(p)
		r.logger.Warn("sweep skipped, previous run still active", zap.String("procedure", string(p)))
		return service.Report{}, ErrAlreadyRunning
	}
	defer r.release(p)

	runID := uuid.NewString()
	logger := r.logger.With(zap.String("procedure", string(p)), zap.String("run_id", runID))

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	ctx = platformlogging.WithLogger(ctx, logger)
	ctx = requesttrace.IntoContext(ctx, requesttrace.System(runID))

	logger.Info("sweep started")
	start := time.Now()
	report, err := r.safeRun(ctx, p)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(string(p), outcome, elapsed, report.Notified, report.Failed)
	}

	fields := []zap.Field{
		zap.Int("candidates", report.Candidates),
		zap.Int("notified", report.Notified),
		zap.Int("mutated", report.Mutated),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", elapsed),
	}
	if err != nil {
		logger.Error("sweep failed", append(fields, zap.Error(err))...)
		return report, err
	}
	logger.Info("sweep finished", fields...)
	return report, nil
}

func (r *Runner) safeRun(ctx context.Context, p service.Procedure) (report service.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sweep panicked: %v", rec)
		}
	}()
	return r.sweeper.Run(ctx, p)
}

func (r *Runner) claim(p service.Procedure) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[p] {
		return false
	}
	r.running[p] = true
	return true
}

func (r *Runner) release(p service.Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, p)
}

func (r *Runner) observeSkip(p service.Procedure) {
	if r.metrics != nil {
		r.metrics.ObserveSkip(string(p))
	}
}

// cronLogger adapts zap to cron.Logger. onSkip fires when SkipIfStillRunning drops a trigger.
type cronLogger struct {
	logger *zap.Logger
	onSkip func()
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" && l.onSkip != nil {
		l.onSkip()
		l.logger.Sugar().Warnw("sweep skipped, previous run still active", keysAndValues...)
		return
	}
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
