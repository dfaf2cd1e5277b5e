package corpus_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"jobmate/match-service/internal/corpus"
	"jobmate/match-service/internal/model"
)

// ── CanonicalURL ───────────────────────────────────────────────────────────

func TestCanonicalURL_StripsTrackingParams(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://jobs.example.com/offer/42?utm_source=x", "https://jobs.example.com/offer/42"},
		{"https://jobs.example.com/offer/42?UTM_Source=x&utm_medium=y&gclid=abc", "https://jobs.example.com/offer/42"},
		{"https://jobs.example.com/offer/42?ref=home&fbclid=1&_ga=2", "https://jobs.example.com/offer/42?ref=home"},
		{"https://jobs.example.com/offer/42?b=2&a=1&mc_cid=3&mc_eid=4", "https://jobs.example.com/offer/42?a=1&b=2"},
		{"HTTPS://Jobs.Example.COM/offer/42?utm_campaign=c&utm_term=t#apply", "https://jobs.example.com/offer/42"},
		{"https://jobs.example.com/offer/42?utm_content=z&id=7", "https://jobs.example.com/offer/42?id=7"},
		{"  https://jobs.example.com/Offer/42  ", "https://jobs.example.com/Offer/42"},
	}
	for _, c := range cases {
		got, err := corpus.CanonicalURL(c.in)
		if assert.NoError(t, err, c.in) {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestCanonicalURL_Collapses(t *testing.T) {
	a, err := corpus.CanonicalURL("https://example.com/jobs/1?utm_source=x")
	require.NoError(t, err)
	b, err := corpus.CanonicalURL("https://example.com/jobs/1?utm_source=y&utm_medium=mail")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "/relative/path", "not a url", "http://%zz"} {
		_, err := corpus.CanonicalURL(in)
		assert.Error(t, err, in)
	}
}

// ── ContainsExcluded ───────────────────────────────────────────────────────

func TestContainsExcluded(t *testing.T) {
	j := model.Job{Title: "Senior Engineer", Company: "Crypto Ventures", Description: "Unpaid internship track"}

	assert.False(t, corpus.ContainsExcluded(j, nil))
	assert.False(t, corpus.ContainsExcluded(j, []string{"", "  "}))
	assert.True(t, corpus.ContainsExcluded(j, []string{"crypto"}))
	assert.True(t, corpus.ContainsExcluded(j, []string{"UNPAID"}))
	assert.False(t, corpus.ContainsExcluded(j, []string{"gambling"}))
}

// ── Ingester ───────────────────────────────────────────────────────────────

// memSaver keeps jobs keyed by URL, mimicking ON CONFLICT (url) DO NOTHING.
type memSaver struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	err  error
}

func newMemSaver() *memSaver { return &memSaver{jobs: map[string]model.Job{}} }

func (m *memSaver) SaveBatch(_ context.Context, jobs []model.Job) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, j := range jobs {
		if _, ok := m.jobs[j.URL]; ok {
			continue
		}
		m.jobs[j.URL] = j
		n++
	}
	return n, nil
}

func TestIngest_DedupOnCanonicalURL(t *testing.T) {
	store := newMemSaver()
	in := corpus.NewIngester(store, nil, nil)
	ctx := context.Background()

	res, err := in.Ingest(ctx, "adzuna", []model.Job{
		{Title: "Backend Engineer", URL: "https://example.com/jobs/1?utm_source=x"},
		{Title: "Backend Engineer", URL: "https://example.com/jobs/1?utm_source=y"},
	})
	require.NoError(t, err)
	assert.Equal(t, corpus.Result{Inserted: 1, Duplicates: 1}, res)
	require.Len(t, store.jobs, 1)

	stored := store.jobs["https://example.com/jobs/1"]
	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.Equal(t, "adzuna", stored.Source)
	assert.WithinDuration(t, time.Now(), stored.ScrapedAt, time.Minute)

	// A later batch hitting the same posting is a duplicate too.
	res, err = in.Ingest(ctx, "kafka", []model.Job{
		{Title: "Backend Engineer", URL: "https://EXAMPLE.com/jobs/1?gclid=1"},
	})
	require.NoError(t, err)
	assert.Equal(t, corpus.Result{Duplicates: 1}, res)
	assert.Len(t, store.jobs, 1)
}

func TestIngest_FiltersAndInvalid(t *testing.T) {
	store := newMemSaver()
	in := corpus.NewIngester(store, []string{"crypto"}, nil)

	res, err := in.Ingest(context.Background(), "seed", []model.Job{
		{Title: "Crypto Trader", URL: "https://example.com/a"},
		{Title: "  ", URL: "https://example.com/b"},
		{Title: "Data Engineer", URL: "relative/c"},
		{Title: "Data Engineer", URL: "https://example.com/d", Source: "weworkremotely"},
	})
	require.NoError(t, err)
	assert.Equal(t, corpus.Result{Inserted: 1, Filtered: 1, Invalid: 2}, res)
	assert.Equal(t, "weworkremotely", store.jobs["https://example.com/d"].Source)
}

func TestIngest_AssignsFreshIDs(t *testing.T) {
	store := newMemSaver()
	in := corpus.NewIngester(store, nil, nil)
	supplied := uuid.New()

	res, err := in.Ingest(context.Background(), "kafka", []model.Job{
		{ID: supplied, Title: "Go Dev", URL: "https://example.com/1"},
		{ID: supplied, Title: "SRE", URL: "https://example.com/2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	a, b := store.jobs["https://example.com/1"].ID, store.jobs["https://example.com/2"].ID
	assert.NotEqual(t, supplied, a)
	assert.NotEqual(t, supplied, b)
	assert.NotEqual(t, a, b)
}

func TestIngest_LogsExcludedJobsTruncated(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	in := corpus.NewIngester(newMemSaver(), []string{"crypto"}, zap.New(core))

	title := "Crypto " + strings.Repeat("x", 200)
	_, err := in.Ingest(context.Background(), "seed", []model.Job{
		{Title: title, URL: "https://example.com/a"},
	})
	require.NoError(t, err)

	dropped := logs.FilterMessage("dropping excluded job").All()
	require.Len(t, dropped, 1)
	logged := dropped[0].ContextMap()["title"].(string)
	assert.True(t, strings.HasPrefix(title, strings.TrimSuffix(logged, "...")))
	assert.Len(t, []rune(logged), 83)
}

func TestIngest_StoreError(t *testing.T) {
	store := newMemSaver()
	store.err = errors.New("db down")
	in := corpus.NewIngester(store, nil, nil)

	_, err := in.Ingest(context.Background(), "adzuna", []model.Job{{Title: "x", URL: "https://example.com/x"}})
	assert.ErrorIs(t, err, store.err)
}

func TestResult_Add(t *testing.T) {
	r := corpus.Result{Inserted: 1}
	r.Add(corpus.Result{Inserted: 2, Duplicates: 3, Filtered: 4, Invalid: 5})
	assert.Equal(t, corpus.Result{Inserted: 3, Duplicates: 3, Filtered: 4, Invalid: 5}, r)
}
