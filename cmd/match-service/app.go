package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/match-service/internal/config"
	"jobmate/match-service/internal/corpus"
	"jobmate/match-service/internal/db"
	"jobmate/match-service/internal/events"
	"jobmate/match-service/internal/matches"
	"jobmate/match-service/internal/matching"
	"jobmate/match-service/internal/profile"
	"jobmate/match-service/internal/scraper"
	"jobmate/match-service/internal/service"
	"jobmate/match-service/internal/tasks"
	"jobmate/match-service/internal/vectorizer"
)

// app holds the long-lived dependencies shared by every subcommand.
type app struct {
	pool *pgxpool.Pool
	rdb  *redis.Client

	corpus   *corpus.Store
	profiles *profile.Store
	matches  *matches.Store
	ingester *corpus.Ingester
	vec      *vectorizer.Service
	tracker  *tasks.Tracker
	svc      *service.Service
}

// newApp connects to PostgreSQL and Redis, applies migrations and restores
// the persisted vectorizer. Refresh tasks live in Redis when serving so every
// replica can answer a poll; one-shot commands keep them in memory. Call
// close when done.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, serving bool) (*app, error) {
	log.Info("connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("PostgreSQL connected ✓")

	log.Info("connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("Redis connected ✓")

	a := &app{
		pool:     pool,
		rdb:      rdb,
		corpus:   corpus.NewStore(pool),
		profiles: profile.NewStore(pool),
		matches:  matches.NewStore(pool),
	}
	var taskStore tasks.Store = tasks.NewMemoryStore()
	if serving {
		taskStore = tasks.NewRedisStore(rdb)
	}
	a.tracker = tasks.NewTracker(taskStore, cfg.Tasks.TTL)
	a.ingester = corpus.NewIngester(a.corpus, cfg.Corpus.ExcludeTerms, log.Named("ingest"))

	var state vectorizer.StateStore = vectorizer.NewFileStore(cfg.Matching.VectorizerPath)
	if cfg.Matching.VectorizerInDB {
		state = vectorizer.NewPostgresStore(pool)
	}
	a.vec = vectorizer.NewService(state, vectorizer.Options{
		MaxDF: cfg.Matching.MaxDF,
		MinDF: cfg.Matching.MinDF,
	}, log.Named("vectorizer"))
	if a.vec.Load(ctx) {
		log.Info("vectorizer restored ✓")
	}

	adzuna := scraper.NewAdzunaSource(
		cfg.Adzuna.AppID, cfg.Adzuna.AppKey, cfg.Adzuna.Country,
		cfg.Adzuna.What, cfg.Adzuna.Where,
		log.Named("adzuna"),
	)

	a.svc = service.New(service.Deps{
		Corpus:   a.corpus,
		Profiles: a.profiles,
		Matches:  a.matches,
		Engine: matching.NewEngine(a.vec, matching.Options{
			RoleBoost: cfg.Matching.RoleBoost,
			TopN:      cfg.Matching.TopN,
		}),
		Fitter:  a.vec,
		Scraper: scraper.NewWorker(a.ingester, log.Named("scraper"), adzuna),
		Tracker: a.tracker,
		Events:  events.NewRedisPublisher(rdb),
		Log:     log.Named("service"),
	}, service.Options{
		FetchLimit:      cfg.Corpus.FetchLimit,
		TopN:            cfg.Matching.TopN,
		MinPersistScore: cfg.Matching.MinPersistScore,
		RoleSkillRepeat: cfg.Matching.RoleSkillRepeat,
		Concurrency:     cfg.Matching.Concurrency,
		Retention:       cfg.RetentionWindow(),
	})
	return a, nil
}

func (a *app) close() {
	a.svc.Wait()
	a.rdb.Close()
	a.pool.Close()
}
