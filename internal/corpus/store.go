package corpus

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/match-service/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Reader is the read side the matcher and the vectorizer fit depend on.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]model.Job, error)
}

// Saver persists already-normalised job records.
type Saver interface {
	SaveBatch(ctx context.Context, jobs []model.Job) (inserted int, err error)
}

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	Jobs    int64
	Matches int64
}

// Store is the Postgres-backed corpus.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveBatch inserts jobs in one transaction, skipping any whose canonical URL
// is already stored. It returns how many rows were new.
func (s *Store) SaveBatch(ctx context.Context, jobs []model.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("saveBatch begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(
			`INSERT INTO jobs (id, title, company, location, description, url, source, posted_date, scraped_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (url) DO NOTHING`,
			j.ID, j.Title, j.Company, j.Location, j.Description, j.URL, j.Source, j.PostedDate, j.ScrapedAt,
		)
	}

	inserted := 0
	br := tx.SendBatch(ctx, batch)
	for _, j := range jobs {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert job %q: %w", j.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("saveBatch close: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("saveBatch commit: %w", err)
	}
	return inserted, nil
}

// Recent returns at most limit jobs, newest scrape first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.Job, error) {
	builder := psql.Select(
		"id", "title", "company", "location", "description",
		"url", "source", "posted_date", "scraped_at",
	).
		From("jobs").
		OrderBy("scraped_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("recentJobs build: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recentJobs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(
			&j.ID, &j.Title, &j.Company, &j.Location, &j.Description,
			&j.URL, &j.Source, &j.PostedDate, &j.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("recentJobs scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Count returns the number of stored jobs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("countJobs: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes jobs scraped before cutoff together with their
// matches, atomically.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	var res SweepResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("sweep begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The foreign key cascades as well; deleting explicitly gives a count.
	tag, err := tx.Exec(ctx,
		`DELETE FROM user_job_matches
		 WHERE job_id IN (SELECT id FROM jobs WHERE scraped_at < $1)`,
		cutoff,
	)
	if err != nil {
		return res, fmt.Errorf("sweep matches: %w", err)
	}
	res.Matches = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM jobs WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return res, fmt.Errorf("sweep jobs: %w", err)
	}
	res.Jobs = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return SweepResult{}, fmt.Errorf("sweep commit: %w", err)
	}
	return res, nil
}
