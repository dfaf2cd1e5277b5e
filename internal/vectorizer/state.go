package vectorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoState is returned by a StateStore that has never been written.
var ErrNoState = errors.New("no persisted vectorizer state")

// State is the serialised form of a Model.
type State struct {
	Terms    []string  `json:"terms"`
	IDF      []float64 `json:"idf"`
	NumDocs  int       `json:"numDocs"`
	MaxDF    float64   `json:"maxDf"`
	MinDF    int       `json:"minDf"`
	FittedAt time.Time `json:"fittedAt"`
}

// StateStore persists the fitted vectorizer between process restarts.
type StateStore interface {
	Save(ctx context.Context, st *State) error
	Load(ctx context.Context) (*State, error)
}

// Snapshot returns the serialisable state of m.
func (m *Model) Snapshot() *State {
	terms := make([]string, len(m.terms))
	copy(terms, m.terms)
	idf := make([]float64, len(m.idf))
	copy(idf, m.idf)
	return &State{
		Terms:    terms,
		IDF:      idf,
		NumDocs:  m.numDocs,
		MaxDF:    m.opts.MaxDF,
		MinDF:    m.opts.MinDF,
		FittedAt: m.fittedAt,
	}
}

// FromState rebuilds a Model, rejecting states whose vocabulary and weights
// are inconsistent.
func FromState(st *State) (*Model, error) {
	if st == nil || len(st.Terms) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrCorruptState)
	}
	if len(st.Terms) != len(st.IDF) {
		return nil, fmt.Errorf("%w: %d terms, %d weights", ErrCorruptState, len(st.Terms), len(st.IDF))
	}
	m := &Model{
		terms:    st.Terms,
		index:    make(map[string]int, len(st.Terms)),
		idf:      st.IDF,
		numDocs:  st.NumDocs,
		opts:     Options{MaxDF: st.MaxDF, MinDF: st.MinDF},
		fittedAt: st.FittedAt,
	}
	for i, term := range st.Terms {
		if _, dup := m.index[term]; dup {
			return nil, fmt.Errorf("%w: duplicate term %q", ErrCorruptState, term)
		}
		if st.IDF[i] <= 0 {
			return nil, fmt.Errorf("%w: non-positive weight for %q", ErrCorruptState, term)
		}
		m.index[term] = i
	}
	return m, nil
}

// ─── File store ──────────────────────────────────────────────────────────────

// FileStore keeps the state as a JSON document on local disk.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Save writes the state atomically (temp file + rename).
func (f *FileStore) Save(_ context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".vectorizer-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Load reads the state file. A missing file yields ErrNoState.
func (f *FileStore) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &st, nil
}

// ─── Postgres store ──────────────────────────────────────────────────────────

// PostgresStore keeps the state in the single-row vectorizer_state table so
// that every replica of the service reloads the same vocabulary.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Save upserts the state row.
func (p *PostgresStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO vectorizer_state (id, state, fitted_at)
		 VALUES (1, $1::jsonb, $2)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, fitted_at = EXCLUDED.fitted_at`,
		string(data), st.FittedAt,
	)
	if err != nil {
		return fmt.Errorf("save vectorizer_state: %w", err)
	}
	return nil
}

// Load reads the state row.
func (p *PostgresStore) Load(ctx context.Context) (*State, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT state FROM vectorizer_state WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("load vectorizer_state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &st, nil
}
