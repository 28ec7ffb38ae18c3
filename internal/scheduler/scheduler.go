// Package scheduler runs periodic backup and detection jobs for the daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/config"
	"github.com/jask/ledgerkeep/internal/service"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is a named unit of periodic work. An empty Spec registers the job for RunNow only.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	jobs map[string]Job

	mu   sync.Mutex
	ctx  context.Context
	last map[string]Outcome
}

// Outcome records the most recent run of a job.
type Outcome struct {
	At       time.Time
	Duration time.Duration
	Err      error
}

// New validates every spec and registers the jobs without starting them.
func New(log zerolog.Logger, jobs ...Job) (*Scheduler, error) {
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:  log,
		jobs: make(map[string]Job, len(jobs)),
		ctx:  context.Background(),
		last: map[string]Outcome{},
	}
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("job %q: name and run func required", j.Name)
		}
		if _, dup := s.jobs[j.Name]; dup {
			return nil, fmt.Errorf("job %q registered twice", j.Name)
		}
		s.jobs[j.Name] = j
		spec := strings.TrimSpace(j.Spec)
		if spec == "" {
			continue
		}
		job := j
		if _, err := s.cron.AddFunc(spec, func() { s.run(s.runCtx(), job) }); err != nil {
			return nil, fmt.Errorf("job %q: bad schedule %q: %w", j.Name, spec, err)
		}
	}
	return s, nil
}

// Scheduled returns how many jobs run on a cron spec.
func (s *Scheduler) Scheduled() int { return len(s.cron.Entries()) }

// Start begins running scheduled jobs in the background. ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Debug().Time("next", e.Next).Msg("job scheduled")
	}
}

// Stop stops the runner and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunNow runs one job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}
	return s.run(ctx, j)
}

// Last returns the outcome of the most recent run of a job.
func (s *Scheduler) Last(name string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.last[name]
	return o, ok
}

func (s *Scheduler) runCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Run(ctx)
	o := Outcome{At: start, Duration: time.Since(start), Err: err}
	s.mu.Lock()
	s.last[j.Name] = o
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Dur("took", o.Duration).Msg("job failed")
		return err
	}
	s.log.Info().Str("job", j.Name).Dur("took", o.Duration).Msg("job finished")
	return nil
}

// Jobs builds the daemon jobs from config: "backup" writes a snapshot into the backup dir and
// "detect" runs recurring detection over every active account.
func Jobs(cfg config.Config, backup *service.BackupService, rec *service.RecurringService) []Job {
	return []Job{
		{
			Name: "backup",
			Spec: cfg.Backup.Schedule,
			Run: func(ctx context.Context) error {
				_, err := backup.ExportToDir(ctx)
				return err
			},
		},
		{
			Name: "detect",
			Spec: cfg.Schedule.Detect,
			Run: func(ctx context.Context) error {
				_, err := rec.AutoDetectAll(ctx)
				return err
			},
		},
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
