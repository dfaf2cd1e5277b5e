// Package scraper pulls job postings from external boards and hands them to
// the corpus ingester.
package scraper

import (
	"context"

	"jobmate/match-service/internal/model"
)

// Source is one external job board. Fetch returns whatever it could collect;
// a partial result together with an error is allowed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Job, error)
}
