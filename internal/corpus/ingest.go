package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/match-service/internal/logger"
	"jobmate/match-service/internal/model"
)

// Result counts what happened to one ingested batch.
type Result struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
	Invalid    int `json:"invalid"`
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Filtered += o.Filtered
	r.Invalid += o.Invalid
}

// Ingester normalises job records handed in by scraper collaborators and
// stores the new ones.
type Ingester struct {
	store   Saver
	exclude []string
	log     *zap.Logger
	now     func() time.Time
}

// NewIngester constructs an Ingester. Offers mentioning any of exclude are
// dropped.
func NewIngester(store Saver, exclude []string, log *zap.Logger) *Ingester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{store: store, exclude: exclude, log: log, now: time.Now}
}

// Ingest canonicalises URLs, drops invalid, excluded and in-batch duplicate
// records, and saves the rest. Records already in the store count as
// duplicates. Every stored record gets a fresh id; ids carried by the
// payload are ignored.
func (in *Ingester) Ingest(ctx context.Context, source string, jobs []model.Job) (Result, error) {
	var res Result
	if len(jobs) == 0 {
		return res, nil
	}

	now := in.now().UTC()
	seen := make(map[string]struct{}, len(jobs))
	batch := make([]model.Job, 0, len(jobs))

	for _, j := range jobs {
		j.Title = strings.TrimSpace(j.Title)
		if j.Title == "" {
			res.Invalid++
			continue
		}
		canon, err := CanonicalURL(j.URL)
		if err != nil {
			in.log.Debug("dropping job with unusable url", zap.String("url", j.URL), zap.Error(err))
			res.Invalid++
			continue
		}
		j.URL = canon

		if ContainsExcluded(j, in.exclude) {
			in.log.Debug("dropping excluded job",
				zap.String("title", logger.Truncate(j.Title, 80)),
				zap.String("company", logger.Truncate(j.Company, 40)),
			)
			res.Filtered++
			continue
		}
		if _, dup := seen[canon]; dup {
			res.Duplicates++
			continue
		}
		seen[canon] = struct{}{}

		j.ID = uuid.New()
		if j.Source == "" {
			j.Source = source
		}
		if j.ScrapedAt.IsZero() {
			j.ScrapedAt = now
		}
		batch = append(batch, j)
	}

	inserted, err := in.store.SaveBatch(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("ingest %s: %w", source, err)
	}
	res.Inserted = inserted
	res.Duplicates += len(batch) - inserted

	in.log.Info("batch ingested",
		zap.String("source", source),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("filtered", res.Filtered),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}
