package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/match-service/internal/model"
)

// ErrNotFound is returned when a user has no profile row.
var ErrNotFound = errors.New("profile not found")

// Reader is what the matcher needs from the profile collaborator.
type Reader interface {
	Get(ctx context.Context, userID string) (model.ProfileAggregate, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

// Store is the Postgres-backed profile repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get loads the profile row with its skills and experiences.
func (s *Store) Get(ctx context.Context, userID string) (model.ProfileAggregate, error) {
	var (
		agg model.ProfileAggregate
		p   model.Profile
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, desired_roles, desired_locations, min_salary
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.DesiredRoles, &p.DesiredLocations, &p.MinSalary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agg, ErrNotFound
		}
		return agg, fmt.Errorf("get profile: %w", err)
	}
	agg.Profile = &p

	rows, err := s.pool.Query(ctx,
		`SELECT name, level FROM skills WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return agg, fmt.Errorf("get skills: %w", err)
	}
	agg.Skills, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Skill, error) {
		var sk model.Skill
		err := row.Scan(&sk.Name, &sk.Level)
		return sk, err
	})
	if err != nil {
		return agg, fmt.Errorf("scan skills: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT title, company, location, start_date, end_date, description
		 FROM experiences WHERE user_id = $1 ORDER BY start_date DESC NULLS LAST, id`, userID)
	if err != nil {
		return agg, fmt.Errorf("get experiences: %w", err)
	}
	agg.Experiences, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Experience, error) {
		var e model.Experience
		err := row.Scan(&e.Title, &e.Company, &e.Location, &e.StartDate, &e.EndDate, &e.Description)
		return e, err
	})
	if err != nil {
		return agg, fmt.Errorf("scan experiences: %w", err)
	}
	return agg, nil
}

// ListActiveUserIDs returns every user whose profile is active.
func (s *Store) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM profiles WHERE is_active ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan active users: %w", err)
	}
	return ids, nil
}

// UpsertPreferences creates or replaces the preference fields of a profile.
func (s *Store) UpsertPreferences(ctx context.Context, p model.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("upsert profile: empty user id")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, desired_roles, desired_locations, min_salary)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET desired_roles     = EXCLUDED.desired_roles,
		     desired_locations = EXCLUDED.desired_locations,
		     min_salary        = EXCLUDED.min_salary,
		     updated_at        = NOW()`,
		p.UserID, p.DesiredRoles, p.DesiredLocations, p.MinSalary,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// AddSkills attaches skills to a profile. Names are compared
// case-insensitively: duplicates within the batch and skills the profile
// already has are skipped. It returns how many rows were inserted.
func (s *Store) AddSkills(ctx context.Context, userID string, skills []model.Skill) (int, error) {
	skills = DedupSkills(skills)
	if len(skills) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("add skills begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	added := 0
	for _, sk := range skills {
		tag, err := tx.Exec(ctx,
			`INSERT INTO skills (user_id, name, level) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, (lower(name))) DO NOTHING`,
			userID, sk.Name, sk.Level,
		)
		if err != nil {
			return 0, fmt.Errorf("add skill %q: %w", sk.Name, err)
		}
		added += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("add skills commit: %w", err)
	}
	return added, nil
}

// AddExperience appends one experience entry to a profile.
func (s *Store) AddExperience(ctx context.Context, userID string, e model.Experience) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO experiences (user_id, title, company, location, start_date, end_date, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, e.Title, e.Company, e.Location, e.StartDate, e.EndDate, e.Description,
	)
	if err != nil {
		return fmt.Errorf("add experience: %w", err)
	}
	return nil
}

// DedupSkills trims names, drops blanks and keeps the first occurrence of
// each case-folded name.
func DedupSkills(skills []model.Skill) []model.Skill {
	seen := make(map[string]struct{}, len(skills))
	out := make([]model.Skill, 0, len(skills))
	for _, sk := range skills {
		sk.Name = strings.TrimSpace(sk.Name)
		key := strings.ToLower(sk.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sk)
	}
	return out
}
