// Package tasks tracks asynchronous refresh-and-match cycles so clients can
// poll their progress by an opaque id.
//
// Lifecycle:
//
//	queued ──► running ──► completed
//	   │          │
//	   └──────────┴──────► failed
//
// Every write resets the record's TTL, so a finished task disappears TTL
// after it finished.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a task.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Finished reports whether s is terminal.
func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed
}

// DefaultTTL is how long a task record is kept after its last update.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound is returned for unknown or evicted task ids.
	ErrNotFound = errors.New("task not found")
	// ErrFinished is returned when updating a completed or failed task.
	ErrFinished = errors.New("task already finished")
)

// Task is the pollable status of one background cycle.
type Task struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserID    string    `json:"userId,omitempty"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists task records with an expiry.
type Store interface {
	Put(ctx context.Context, t *Task, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Task, error)
}

// Tracker creates tasks and drives their state.
type Tracker struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewTracker returns a Tracker writing to store. ttl <= 0 selects DefaultTTL.
func NewTracker(store Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl, now: time.Now}
}

// Create registers a new queued task.
func (tr *Tracker) Create(ctx context.Context, kind, userID string) (*Task, error) {
	now := tr.now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		State:     StateQueued,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tr.store.Put(ctx, t, tr.ttl); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Get returns the current record of id.
func (tr *Tracker) Get(ctx context.Context, id string) (*Task, error) {
	return tr.store.Get(ctx, id)
}

// Start moves a task to running.
func (tr *Tracker) Start(ctx context.Context, id, msg string) error {
	return tr.set(ctx, id, StateRunning, msg)
}

// Progress updates the message of a running task.
func (tr *Tracker) Progress(ctx context.Context, id, msg string) error {
	return tr.set(ctx, id, StateRunning, msg)
}

// Complete marks a task as completed.
func (tr *Tracker) Complete(ctx context.Context, id, msg string) error {
	return tr.set(ctx, id, StateCompleted, msg)
}

// Fail marks a task as failed with cause as its message.
func (tr *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := "failed"
	if cause != nil {
		msg = cause.Error()
	}
	return tr.set(ctx, id, StateFailed, msg)
}

func (tr *Tracker) set(ctx context.Context, id string, state State, msg string) error {
	t, err := tr.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.State.Finished() {
		return fmt.Errorf("%w: %s is %s", ErrFinished, id, t.State)
	}
	t.State = state
	t.Message = msg
	t.UpdatedAt = tr.now().UTC()
	if err := tr.store.Put(ctx, t, tr.ttl); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}
