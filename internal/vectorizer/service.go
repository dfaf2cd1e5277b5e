package vectorizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Vectorizer is the read side of the shared vector space. The matching
// engine depends on this interface so tests can inject a pre-fit stub.
type Vectorizer interface {
	Transform(ctx context.Context, texts []string) ([]Vector, error)
}

// Service owns the process-wide Model.
//
// Readers load the current model pointer once per call and work on that
// snapshot. Fit builds the replacement off to the side and swaps the pointer
// only when it is complete; fits are serialised by fitMu.
type Service struct {
	store StateStore
	opts  Options
	log   *zap.Logger

	current    atomic.Pointer[Model]
	fitting    atomic.Bool
	needsRefit atomic.Bool

	fitMu    sync.Mutex
	loadOnce sync.Once
}

// NewService constructs an unfitted Service. store may be nil, in which case
// fitted state is kept in memory only.
func NewService(store StateStore, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: store, opts: opts, log: log}
	s.current.Store(&Model{})
	return s
}

// Load restores the persisted state and reports whether the service is
// fitted afterwards. It shares fitMu with Fit, and a model that is already
// installed is never replaced by a load.
func (s *Service) Load(ctx context.Context) bool {
	if s.store == nil {
		return s.Fitted()
	}
	s.fitMu.Lock()
	defer s.fitMu.Unlock()

	if s.current.Load().Fitted() {
		return true
	}
	st, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoState) {
			s.log.Warn("no persisted vectorizer state, fit it soon")
		} else {
			s.log.Error("loading vectorizer state failed, staying unfitted", zap.Error(err))
		}
		return false
	}
	m, err := FromState(st)
	if err != nil {
		s.log.Error("persisted vectorizer state rejected, staying unfitted", zap.Error(err))
		return false
	}
	s.current.Store(m)
	s.needsRefit.Store(false)
	s.log.Info("vectorizer state loaded",
		zap.Int("terms", m.VocabularySize()),
		zap.Int("docs", m.NumDocs()),
		zap.Time("fitted_at", m.FittedAt()),
	)
	return true
}

// GetOrLoad returns the current model, attempting a single Load the first
// time it is called while the service is still unfitted. The result is never
// nil but may be unfitted.
func (s *Service) GetOrLoad(ctx context.Context) *Model {
	if m := s.current.Load(); m.Fitted() {
		return m
	}
	s.loadOnce.Do(func() { s.Load(ctx) })
	return s.current.Load()
}

// Fit builds a model from corpus, persists it and makes it current.
// An empty corpus, or one that prunes to nothing, is logged and leaves the
// previous model in place; Fit then returns nil. A persistence failure is
// returned, but the new model is still installed.
func (s *Service) Fit(ctx context.Context, corpus []string) error {
	s.fitMu.Lock()
	defer s.fitMu.Unlock()

	s.fitting.Store(true)
	defer s.fitting.Store(false)

	if len(corpus) == 0 {
		s.log.Warn("cannot fit TF-IDF vectorizer on an empty corpus")
		return nil
	}

	s.log.Info("fitting TF-IDF vectorizer", zap.Int("docs", len(corpus)))
	m, err := Fit(corpus, s.opts)
	if err != nil {
		s.log.Error("fitting vectorizer failed, keeping previous state", zap.Error(err))
		return nil
	}

	s.current.Store(m)
	s.needsRefit.Store(false)
	s.log.Info("vectorizer fitted", zap.Int("terms", m.VocabularySize()), zap.Int("docs", m.NumDocs()))

	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, m.Snapshot()); err != nil {
		return fmt.Errorf("persist vectorizer: %w", err)
	}
	return nil
}

// Transform projects texts into the current vector space.
func (s *Service) Transform(ctx context.Context, texts []string) ([]Vector, error) {
	m := s.GetOrLoad(ctx)
	vecs, err := m.Transform(texts)
	if err != nil && !errors.Is(err, ErrUnfitted) {
		s.needsRefit.Store(true)
	}
	return vecs, err
}

// Current returns the model readers currently see.
func (s *Service) Current() *Model {
	return s.current.Load()
}

// Fitted reports whether a usable vocabulary is installed.
func (s *Service) Fitted() bool {
	return s.current.Load().Fitted()
}

// Fitting reports whether a refit is in progress.
func (s *Service) Fitting() bool {
	return s.fitting.Load()
}

// NeedsRefit reports whether a transform failed against the current model.
func (s *Service) NeedsRefit() bool {
	return s.needsRefit.Load()
}
