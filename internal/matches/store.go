package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/match-service/internal/model"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Match is a stored job joined with the user's score and status.
type Match struct {
	model.Job
	RelevanceScore float64   `json:"relevanceScore"`
	Status         Status    `json:"status"`
	MatchedAt      time.Time `json:"matchedAt"`
}

// Filter narrows ListForUser. Zero values mean "no constraint".
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Counts is the per-status breakdown of a user's matches.
type Counts struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
}

// Writer is the persistence side the matcher depends on.
type Writer interface {
	Upsert(ctx context.Context, userID string, scored []model.ScoredJob) (int, error)
}

// ─── Store ───────────────────────────────────────────────────────────────────

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the Postgres-backed match repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert writes one score per job in a single transaction. A new pair is
// inserted as pending; an existing pair only has its score refreshed, so a
// status set by the user survives every re-match. Pairs absent from scored
// are left alone. It returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, userID string, scored []model.ScoredJob) (int, error) {
	if len(scored) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("upsert matches begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, sj := range scored {
		batch.Queue(
			`INSERT INTO user_job_matches (user_id, job_id, relevance_score)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, job_id) DO UPDATE
			 SET relevance_score = EXCLUDED.relevance_score,
			     updated_at      = NOW()`,
			userID, sj.JobID, sj.Score,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for _, sj := range scored {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert match %s: %w", sj.JobID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("upsert matches batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("upsert matches commit: %w", err)
	}
	return len(scored), nil
}

func matchColumns() []string {
	return []string{
		"j.id", "j.title", "j.company", "j.location", "j.description",
		"j.url", "j.source", "j.posted_date", "j.scraped_at",
		"m.relevance_score", "m.status", "m.updated_at",
	}
}

func scanMatch(row pgx.Row) (Match, error) {
	var m Match
	err := row.Scan(
		&m.ID, &m.Title, &m.Company, &m.Location, &m.Description,
		&m.URL, &m.Source, &m.PostedDate, &m.ScrapedAt,
		&m.RelevanceScore, &m.Status, &m.MatchedAt,
	)
	return m, err
}

// ListForUser returns the user's matches, best score first.
func (s *Store) ListForUser(ctx context.Context, userID string, f Filter) ([]Match, error) {
	builder := psql.Select(matchColumns()...).
		From("user_job_matches m").
		Join("jobs j ON j.id = m.job_id").
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("m.relevance_score DESC", "j.scraped_at DESC")
	if f.Status != "" {
		builder = builder.Where(sq.Eq{"m.status": string(f.Status)})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("listMatches build: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listMatches query: %w", err)
	}
	defer rows.Close()

	out := make([]Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("listMatches scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listMatches rows: %w", err)
	}
	return out, nil
}

// Get returns one match of the user.
func (s *Store) Get(ctx context.Context, userID string, jobID uuid.UUID) (*Match, error) {
	query, args, err := psql.Select(matchColumns()...).
		From("user_job_matches m").
		Join("jobs j ON j.id = m.job_id").
		Where(sq.Eq{"m.user_id": userID, "m.job_id": jobID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("getMatch build: %w", err)
	}
	m, err := scanMatch(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getMatch: %w", err)
	}
	return &m, nil
}

// UpdateStatus moves a match to a new status on behalf of the user.
// Returns ErrNotFound if the user has no match for jobID and a
// *ValidationError for unknown statuses or forbidden moves.
func (s *Store) UpdateStatus(ctx context.Context, userID string, jobID uuid.UUID, newStatusStr string) (*Match, error) {
	newStatus, err := ParseStatus(newStatusStr)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("updateStatus begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM user_job_matches WHERE user_id = $1 AND job_id = $2 FOR UPDATE`,
		userID, jobID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updateStatus select: %w", err)
	}

	if !IsTransitionAllowed(current, newStatus) {
		return nil, &ValidationError{
			Msg: fmt.Sprintf("transition %s → %s is not allowed", current, newStatus),
		}
	}

	if current != newStatus {
		_, err = tx.Exec(ctx,
			`UPDATE user_job_matches SET status = $1, updated_at = NOW()
			 WHERE user_id = $2 AND job_id = $3`,
			string(newStatus), userID, jobID,
		)
		if err != nil {
			return nil, fmt.Errorf("updateStatus update: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("updateStatus commit: %w", err)
	}
	return s.Get(ctx, userID, jobID)
}

// CountByStatus returns the number of matches of the user per status.
// Every status is present in the result, possibly with a zero count.
func (s *Store) CountByStatus(ctx context.Context, userID string) (Counts, error) {
	counts := Counts{ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, st := range AllStatuses {
		counts.ByStatus[st] = 0
	}

	query, args, err := psql.Select("status", "COUNT(*)").
		From("user_job_matches").
		Where(sq.Eq{"user_id": userID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return counts, fmt.Errorf("countMatches build: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return counts, fmt.Errorf("countMatches query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return counts, fmt.Errorf("countMatches scan: %w", err)
		}
		counts.ByStatus[st] = n
		counts.Total += n
	}
	return counts, rows.Err()
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound is returned when a match is missing or does not belong to the user.
var ErrNotFound = errors.New("match not found")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
