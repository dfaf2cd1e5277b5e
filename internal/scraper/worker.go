package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/match-service/internal/corpus"
	"jobmate/match-service/internal/model"
)

// Ingester stores fetched jobs.
type Ingester interface {
	Ingest(ctx context.Context, source string, jobs []model.Job) (corpus.Result, error)
}

// Worker runs one scrape cycle over all sources concurrently. Each source is
// isolated: its failure is logged and reported but never stops the others.
type Worker struct {
	sources  []Source
	ingester Ingester
	log      *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(ingester Ingester, log *zap.Logger, sources ...Source) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{sources: sources, ingester: ingester, log: log}
}

// Run fetches from every source and ingests what each returned. The result
// aggregates all sources; the error joins per-source failures.
func (w *Worker) Run(ctx context.Context) (corpus.Result, error) {
	w.log.Info("scrape cycle started", zap.Int("sources", len(w.sources)))

	var (
		mu    sync.Mutex
		total corpus.Result
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range w.sources {
		g.Go(func() error {
			res, err := w.runSource(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			total.Add(res)
			if err != nil {
				errs = append(errs, err)
			}
			// Never fail the group: one source must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	w.log.Info("scrape cycle complete",
		zap.Int("inserted", total.Inserted),
		zap.Int("filtered", total.Filtered),
		zap.Int("duplicates", total.Duplicates),
		zap.Int("failed_sources", len(errs)),
	)
	return total, errors.Join(errs...)
}

func (w *Worker) runSource(ctx context.Context, src Source) (res corpus.Result, err error) {
	log := w.log.With(zap.String("source", src.Name()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
			log.Error("source panicked", zap.Any("panic", r))
		}
	}()

	jobs, fetchErr := src.Fetch(ctx)
	if fetchErr != nil {
		log.Warn("fetch failed", zap.Int("partial", len(jobs)), zap.Error(fetchErr))
	}
	if len(jobs) > 0 {
		res, err = w.ingester.Ingest(ctx, src.Name(), jobs)
		if err != nil {
			log.Error("ingest failed", zap.Error(err))
			return res, fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}
	if fetchErr != nil {
		return res, fmt.Errorf("source %s: %w", src.Name(), fetchErr)
	}
	return res, nil
}
