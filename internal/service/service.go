// Package service orchestrates the match pipeline: corpus refresh, profile
// matching, vectorizer maintenance and retention.
//
// It is transport-agnostic: the HTTP API, the scheduler and the CLI all call
// into the same Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/match-service/internal/corpus"
	"jobmate/match-service/internal/events"
	"jobmate/match-service/internal/matches"
	"jobmate/match-service/internal/matching"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/profile"
	"jobmate/match-service/internal/tasks"
)

// ─── Collaborators ───────────────────────────────────────────────────────────

// Corpus is the job store as seen by the service.
type Corpus interface {
	Recent(ctx context.Context, limit int) ([]model.Job, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (corpus.SweepResult, error)
}

// Fitter owns the shared vector space.
type Fitter interface {
	Fit(ctx context.Context, corpus []string) error
	Fitted() bool
}

// Scraper runs one scrape cycle over all configured sources.
type Scraper interface {
	Run(ctx context.Context) (corpus.Result, error)
}

// Options tune the pipeline.
type Options struct {
	FetchLimit      int           // most recent jobs scored per run
	TopN            int           // ranked entries kept per user
	MinPersistScore float64       // scores at or below are not stored
	RoleSkillRepeat int           // see profile.Compose
	Concurrency     int           // users matched in parallel
	Retention       time.Duration // job age limit measured from scraped_at
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Corpus   Corpus
	Profiles profile.Reader
	Matches  matches.Writer
	Engine   *matching.Engine
	Fitter   Fitter
	Scraper  Scraper // optional
	Tracker  *tasks.Tracker
	Events   events.Publisher // optional
	Log      *zap.Logger
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service runs the match pipeline.
type Service struct {
	Deps
	opts Options
	now  func() time.Time
	bg   sync.WaitGroup
}

// New returns a Service.
func New(deps Deps, opts Options) *Service {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RoleSkillRepeat < 1 {
		opts.RoleSkillRepeat = profile.DefaultRepeat
	}
	return &Service{Deps: deps, opts: opts, now: time.Now}
}

// BatchSummary reports the outcome of MatchAllUsers.
type BatchSummary struct {
	Users     int `json:"users"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"` // not computable: empty profile, empty corpus, unfitted
	Failed    int `json:"failed"`
}

// MatchUser rescores one user against the recent corpus and persists the
// result. When matching cannot run the previous match list is left as is
// and the reason is returned. It returns the number of stored matches.
func (s *Service) MatchUser(ctx context.Context, userID string) (int, error) {
	jobs, err := s.Corpus.Recent(ctx, s.opts.FetchLimit)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	return s.matchUser(ctx, userID, jobs)
}

func (s *Service) matchUser(ctx context.Context, userID string, jobs []model.Job) (int, error) {
	agg, err := s.Profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return 0, fmt.Errorf("%w: no profile for %s", matching.ErrProfileInsufficient, userID)
		}
		return 0, fmt.Errorf("load profile: %w", err)
	}

	text := profile.Compose(agg, s.opts.RoleSkillRepeat)
	var roles []string
	if agg.Profile != nil {
		roles = profile.RoleKeywords(agg.Profile.DesiredRoles)
	}

	scored, err := s.Engine.Match(ctx, text, roles, jobs, s.opts.TopN)
	if err != nil {
		return 0, err
	}

	keep := matching.FilterPersistable(scored, s.opts.MinPersistScore)
	n, err := s.Matches.Upsert(ctx, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("persist matches: %w", err)
	}

	if err := s.Events.MatchesUpdated(ctx, userID, n); err != nil {
		s.Log.Warn("publish matches updated failed", zap.String("user_id", userID), zap.Error(err))
	}
	s.Log.Debug("user matched",
		zap.String("user_id", userID),
		zap.Int("candidates", len(jobs)),
		zap.Int("ranked", len(scored)),
		zap.Int("stored", n),
	)
	return n, nil
}

// MatchAllUsers rescores every active user. Users are matched concurrently up
// to the configured limit; a failure is logged and counted, never propagated
// to the other users. Only a failure to enumerate users or load the corpus is
// returned.
func (s *Service) MatchAllUsers(ctx context.Context) (BatchSummary, error) {
	var sum BatchSummary

	userIDs, err := s.Profiles.ListActiveUserIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("list users: %w", err)
	}
	sum.Users = len(userIDs)
	if len(userIDs) == 0 {
		s.Log.Info("no active users, nothing to match")
		return sum, nil
	}

	jobs, err := s.Corpus.Recent(ctx, s.opts.FetchLimit)
	if err != nil {
		return sum, fmt.Errorf("load corpus: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, userID := range userIDs {
		g.Go(func() error {
			_, err := s.matchUser(gctx, userID, jobs)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sum.Succeeded++
			case isNotComputable(err):
				sum.Skipped++
				s.Log.Info("match skipped", zap.String("user_id", userID), zap.Error(err))
			default:
				sum.Failed++
				s.Log.Error("match failed", zap.String("user_id", userID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.Log.Info("match cycle complete",
		zap.Int("users", sum.Users),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// Scrape runs one scrape cycle. Per-source failures are logged by the
// scraper and returned joined.
func (s *Service) Scrape(ctx context.Context) (corpus.Result, error) {
	if s.Scraper == nil {
		return corpus.Result{}, nil
	}
	return s.Scraper.Run(ctx)
}

// Refit rebuilds the shared vector space from the whole corpus.
func (s *Service) Refit(ctx context.Context) error {
	_, err := s.refit(ctx)
	return err
}

func (s *Service) refit(ctx context.Context) (int, error) {
	jobs, err := s.Corpus.Recent(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	texts := make([]string, len(jobs))
	for i, j := range jobs {
		texts[i] = j.Text()
	}
	return len(texts), s.Fitter.Fit(ctx, texts)
}

// Sweep deletes jobs older than the retention window with their matches.
func (s *Service) Sweep(ctx context.Context) (corpus.SweepResult, error) {
	cutoff := s.now().Add(-s.opts.Retention)
	res, err := s.Corpus.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("retention sweep: %w", err)
	}
	if res.Jobs == 0 {
		s.Log.Info("no old job postings to delete", zap.Time("cutoff", cutoff))
	} else {
		s.Log.Info("old job postings deleted",
			zap.Time("cutoff", cutoff),
			zap.Int64("jobs", res.Jobs),
			zap.Int64("matches", res.Matches),
		)
	}
	return res, nil
}

// ─── Refresh task ────────────────────────────────────────────────────────────

// Task kinds.
const (
	TaskKindRefresh = "refresh"
	TaskKindRefit   = "refit"
)

// StartRefresh queues a scrape-then-match cycle for userID and returns the
// task to poll. The cycle runs in the background and outlives ctx.
func (s *Service) StartRefresh(ctx context.Context, userID string) (*tasks.Task, error) {
	task, err := s.Tracker.Create(ctx, TaskKindRefresh, userID)
	if err != nil {
		return nil, err
	}

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.runRefresh(bgCtx, task.ID, userID)
	}()
	return task, nil
}

// StartRefit queues a vectorizer refit requested by userID and returns the
// task to poll. The fit runs in the background and outlives ctx.
func (s *Service) StartRefit(ctx context.Context, userID string) (*tasks.Task, error) {
	task, err := s.Tracker.Create(ctx, TaskKindRefit, userID)
	if err != nil {
		return nil, err
	}

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.runRefit(bgCtx, task.ID)
	}()
	return task, nil
}

// Wait blocks until background tasks have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) runRefresh(ctx context.Context, taskID, userID string) {
	log := s.Log.With(zap.String("task_id", taskID), zap.String("user_id", userID))
	track := func(err error) {
		if err != nil {
			log.Warn("task update failed", zap.Error(err))
		}
	}

	track(s.Tracker.Start(ctx, taskID, "scraping job sources"))
	res, err := s.Scrape(ctx)
	if err != nil {
		log.Warn("scrape finished with errors", zap.Error(err))
	}

	track(s.Tracker.Progress(ctx, taskID,
		fmt.Sprintf("scraped %d new jobs, matching profile", res.Inserted)))

	n, err := s.MatchUser(ctx, userID)
	if err != nil {
		log.Warn("refresh match failed", zap.Error(err))
		track(s.Tracker.Fail(ctx, taskID, err))
		return
	}
	track(s.Tracker.Complete(ctx, taskID,
		fmt.Sprintf("%d new jobs, %d matches updated", res.Inserted, n)))
}

func (s *Service) runRefit(ctx context.Context, taskID string) {
	log := s.Log.With(zap.String("task_id", taskID))
	track := func(err error) {
		if err != nil {
			log.Warn("task update failed", zap.Error(err))
		}
	}

	track(s.Tracker.Start(ctx, taskID, "fitting vectorizer on the corpus"))
	docs, err := s.refit(ctx)
	switch {
	case err != nil:
		log.Warn("refit failed", zap.Error(err))
		track(s.Tracker.Fail(ctx, taskID, err))
	case !s.Fitter.Fitted():
		track(s.Tracker.Fail(ctx, taskID, errors.New("corpus too small to fit a vocabulary")))
	default:
		track(s.Tracker.Complete(ctx, taskID, fmt.Sprintf("vectorizer fitted on %d jobs", docs)))
	}
}

func isNotComputable(err error) bool {
	return errors.Is(err, matching.ErrNotComputable) || errors.Is(err, matching.ErrNoCandidates)
}
