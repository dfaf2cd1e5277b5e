// Package matching scores a profile against a set of jobs in the shared
// TF-IDF space and ranks the result.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/vectorizer"
)

// DefaultTopN bounds the number of ranked entries returned by Match.
const DefaultTopN = 50

var (
	// ErrNotComputable means a match list cannot be produced right now. The
	// caller keeps whatever list it already has and tries again later.
	ErrNotComputable = errors.New("match not computable")

	// ErrProfileInsufficient is returned when the profile text is empty.
	ErrProfileInsufficient = fmt.Errorf("%w: profile insufficient", ErrNotComputable)

	// ErrNoCandidates is returned when there are no jobs to score.
	ErrNoCandidates = errors.New("no candidate jobs")

	// ErrTransformFailed is returned when projecting texts into the vector
	// space fails for a fitted vectorizer. A refit recovers.
	ErrTransformFailed = errors.New("transform failed")
)

// Options tune the ranking.
type Options struct {
	// RoleBoost is added when a job title contains a desired-role keyword.
	RoleBoost float64
	// TopN is used when Match is called with topN <= 0.
	TopN int
}

// DefaultOptions returns the production ranking parameters.
func DefaultOptions() Options {
	return Options{RoleBoost: 0.1, TopN: DefaultTopN}
}

// Engine ranks jobs for a profile.
type Engine struct {
	vec  vectorizer.Vectorizer
	opts Options
}

// NewEngine returns an Engine projecting through vec.
func NewEngine(vec vectorizer.Vectorizer, opts Options) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	return &Engine{vec: vec, opts: opts}
}

// Match scores every job against profileText and returns at most topN
// entries, highest first. Scores are cosine similarities plus the role boost,
// clamped to [0,1]. Equal scores keep the order of jobs.
//
// roleKeywords are lowercased keywords (see profile.RoleKeywords); a job whose
// lowercased title contains any of them is boosted once.
func (e *Engine) Match(ctx context.Context, profileText string, roleKeywords []string, jobs []model.Job, topN int) ([]model.ScoredJob, error) {
	if strings.TrimSpace(profileText) == "" {
		return nil, ErrProfileInsufficient
	}
	if len(jobs) == 0 {
		return nil, ErrNoCandidates
	}
	if topN <= 0 {
		topN = e.opts.TopN
	}

	// One call so the profile and the jobs land in the same model snapshot.
	texts := make([]string, 0, len(jobs)+1)
	texts = append(texts, profileText)
	for _, j := range jobs {
		texts = append(texts, j.Text())
	}
	vecs, err := e.vec.Transform(ctx, texts)
	if err != nil {
		if errors.Is(err, vectorizer.ErrUnfitted) {
			return nil, fmt.Errorf("%w: %w", ErrNotComputable, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrTransformFailed, len(vecs), len(texts))
	}

	profileVec := vecs[0]
	scored := make([]model.ScoredJob, len(jobs))
	for i, j := range jobs {
		score := vectorizer.Cosine(profileVec, vecs[i+1])
		if titleMatches(j.Title, roleKeywords) {
			score += e.opts.RoleBoost
		}
		scored[i] = model.ScoredJob{JobID: j.ID, Score: clamp(score)}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}

// FilterPersistable keeps entries scoring strictly above minScore, preserving
// order.
func FilterPersistable(scored []model.ScoredJob, minScore float64) []model.ScoredJob {
	out := make([]model.ScoredJob, 0, len(scored))
	for _, s := range scored {
		if s.Score > minScore {
			out = append(out, s)
		}
	}
	return out
}

func titleMatches(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	t := strings.ToLower(title)
	for _, k := range keywords {
		if k != "" && strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
