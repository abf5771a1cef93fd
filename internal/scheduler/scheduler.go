package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is a unit of scheduled work.
type JobFunc func(ctx context.Context) error

// ParseSchedule parses a schedule string.
// Supports:
//   - Cron expressions: "0 */15 * * * *" (6-field) or "*/15 * * * *" (5-field)
//   - Descriptors: "@hourly", "@every 10m"
//   - Go duration strings: "15m", "2h", "1h30m"
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("schedule string is empty")
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule as cron expression or duration: %w", err)
	}
	if d < time.Second {
		return nil, fmt.Errorf("schedule interval %s is shorter than one second", d)
	}
	return cron.ConstantDelaySchedule{Delay: d}, nil
}

// Scheduler runs named jobs on cron schedules until its context is cancelled.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// New creates a scheduler. Overlapping runs of the same job are skipped.
func New(logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers fn under name using a schedule accepted by ParseSchedule.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.cron.Schedule(sched, cron.FuncJob(func() {
		s.run(name, fn)
	}))
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("Job scheduled")
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler and blocks until ctx is cancelled and any running
// job has returned.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info().Int("jobs", s.Len()).Msg("Starting scheduler")
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped: context cancelled")
}

func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Scheduled job completed")
}

// ConsolidationJob sweeps port with opts on every run.
func ConsolidationJob(port engine.ConsolidationPort, opts engine.ConsolidationOptions) JobFunc {
	return func(ctx context.Context) error {
		_, err := port.Consolidate(ctx, opts)
		return err
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
