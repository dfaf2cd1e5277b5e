// Package scheduler wires up the cron jobs that periodically scrape sources,
// rescore every active user and sweep expired jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/match-service/internal/corpus"
	"jobmate/match-service/internal/service"
)

// Pipeline is the part of service.Service driven by the scheduler.
type Pipeline interface {
	Scrape(ctx context.Context) (corpus.Result, error)
	MatchAllUsers(ctx context.Context) (service.BatchSummary, error)
	Sweep(ctx context.Context) (corpus.SweepResult, error)
}

// Specs holds the cron expressions of each job. An empty spec disables the job.
type Specs struct {
	Scrape    string // e.g. "@every 6h"
	Match     string
	Retention string // e.g. "@daily"
}

// EveryHours formats an interval spec understood by robfig/cron.
func EveryHours(h int) string {
	return fmt.Sprintf("@every %dh", h)
}

// Scheduler wraps robfig/cron and manages the pipeline loops.
type Scheduler struct {
	cron     *cron.Cron
	pipeline Pipeline
	specs    Specs
	log      *zap.Logger
	startup  sync.WaitGroup
}

// New creates a Scheduler. Overlapping runs of the same job are skipped.
func New(pipeline Pipeline, specs Specs, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		pipeline: pipeline,
		specs:    specs,
		log:      log,
	}
}

// Start registers the jobs and starts the scheduler. It also runs one scrape
// followed by one match cycle immediately so fresh deployments do not wait
// for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"scrape", s.specs.Scrape, s.runScrape},
		{"match", s.specs.Match, s.runMatch},
		{"retention", s.specs.Retention, s.runSweep},
	}
	for _, j := range jobs {
		if j.spec == "" {
			s.log.Info("cron job disabled", zap.String("job", j.name))
			continue
		}
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc %s %q: %w", j.name, j.spec, err)
		}
		s.log.Info("cron job registered", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	s.cron.Start()

	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		s.runScrape(ctx)
		s.runMatch(ctx)
	}()
	return nil
}

// Stop shuts the scheduler down and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.log.Info("cron stopped")
}

func (s *Scheduler) runScrape(ctx context.Context) {
	s.log.Info("scrape cycle started")
	res, err := s.pipeline.Scrape(ctx)
	if err != nil {
		s.log.Error("scrape cycle had failures", zap.Error(err))
	}
	s.log.Info("scrape cycle complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("filtered", res.Filtered),
		zap.Int("invalid", res.Invalid),
	)
}

func (s *Scheduler) runMatch(ctx context.Context) {
	if _, err := s.pipeline.MatchAllUsers(ctx); err != nil {
		s.log.Error("match cycle failed", zap.Error(err))
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if _, err := s.pipeline.Sweep(ctx); err != nil {
		s.log.Error("retention sweep failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
