package vectorizer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobsCorpus = []string{
	"Python Backend Engineer Acme Remote build APIs with Python",
	"Senior Backend Engineer Globex Berlin Python Django APIs",
	"Frontend Engineer Initech Remote React TypeScript",
	"UI Designer Acme Remote Figma prototypes",
	"Data Engineer Umbrella London Python Spark pipelines",
	"UI Designer Hooli Paris Figma design systems",
}

// ── Tokenize ──────────────────────────────────────────────────────────────

func TestTokenize(t *testing.T) {
	got := Tokenize("Senior Go/Python engineer, building REST APIs & node.js services (C++ a plus)")
	// "go", "a" are stop words; single-rune tokens are dropped.
	assert.Equal(t, []string{"senior", "python", "engineer", "building", "rest", "apis", "node", "js", "services", "plus"}, got)
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   ,,, !!"))
}

func TestTokenize_Unicode(t *testing.T) {
	assert.Equal(t, []string{"développeur", "zürich"}, Tokenize("Développeur à Zürich"))
}

// ── Fit ───────────────────────────────────────────────────────────────────

func TestFit_PrunesByDocumentFrequency(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	// Present in at least two documents.
	for _, term := range []string{"python", "backend", "engineer", "apis", "remote", "acme", "ui", "designer", "figma"} {
		assert.True(t, m.Contains(term), "expected %q in vocabulary", term)
	}
	// Present in a single document.
	for _, term := range []string{"django", "spark", "react", "hooli"} {
		assert.False(t, m.Contains(term), "expected %q pruned (min_df)", term)
	}
	// Stop words never enter the vocabulary.
	assert.False(t, m.Contains("with"))
	assert.Equal(t, len(jobsCorpus), m.NumDocs())
}

func TestFit_MaxDFDropsUbiquitousTerms(t *testing.T) {
	corpus := []string{
		"remote python role",
		"remote python job",
		"remote golang role",
		"remote rust job",
	}
	m, err := Fit(corpus, Options{MaxDF: 0.95, MinDF: 1})
	require.NoError(t, err)
	assert.False(t, m.Contains("remote"), "term present in 100% of docs must be dropped")
	assert.True(t, m.Contains("python"))
}

func TestFit_SmoothIDF(t *testing.T) {
	corpus := []string{"alpha beta", "alpha gamma", "beta delta"}
	m, err := Fit(corpus, Options{MaxDF: 1, MinDF: 1})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4.0/3.0)+1, m.IDF("alpha"), 1e-12)
	assert.InDelta(t, math.Log(4.0/2.0)+1, m.IDF("gamma"), 1e-12)
	assert.Zero(t, m.IDF("unknown"))
}

func TestFit_EmptyCorpus(t *testing.T) {
	_, err := Fit(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestFit_NoTermsRemain(t *testing.T) {
	_, err := Fit([]string{"python backend", "figma designer", "rust systems"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoTerms)
}

// ── Transform ─────────────────────────────────────────────────────────────

func TestTransform_Unfitted(t *testing.T) {
	var m Model
	_, err := m.Transform([]string{"python"})
	assert.ErrorIs(t, err, ErrUnfitted)
}

func TestTransform_EmptyInput(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	vecs, err := m.Transform([]string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestTransform_UnseenTermsIgnored(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	vecs, err := m.Transform([]string{"kubernetes haskell", "python kubernetes"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Zero(t, vecs[0].Len())
	assert.Equal(t, 1, vecs[1].Len())
	assert.InDelta(t, 1.0, vecs[1].Norm(), 1e-12)
}

func TestTransform_Normalised(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	vecs, err := m.Transform(jobsCorpus)
	require.NoError(t, err)
	for i, v := range vecs {
		assert.InDelta(t, 1.0, v.Norm(), 1e-9, "row %d", i)
		for k := 1; k < len(v.Indices); k++ {
			assert.Less(t, v.Indices[k-1], v.Indices[k])
		}
	}
}

func TestCosine(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	vecs, err := m.Transform([]string{
		"python backend engineer apis",
		"Python Backend Engineer Acme Remote build APIs with Python",
		"UI Designer Acme Remote Figma prototypes",
		"",
	})
	require.NoError(t, err)

	self := Cosine(vecs[1], vecs[1])
	near := Cosine(vecs[0], vecs[1])
	far := Cosine(vecs[0], vecs[2])

	assert.InDelta(t, 1.0, self, 1e-9)
	assert.Greater(t, near, far)
	assert.Zero(t, far)
	assert.Zero(t, Cosine(vecs[0], vecs[3]))
}

// ── State ─────────────────────────────────────────────────────────────────

func TestSnapshotRoundTrip(t *testing.T) {
	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)

	restored, err := FromState(m.Snapshot())
	require.NoError(t, err)

	want, _ := m.Transform(jobsCorpus)
	got, _ := restored.Transform(jobsCorpus)
	assert.Equal(t, want, got)
}

func TestFromState_Corrupt(t *testing.T) {
	cases := map[string]*State{
		"nil":       nil,
		"empty":     {},
		"mismatch":  {Terms: []string{"a", "b"}, IDF: []float64{1}},
		"duplicate": {Terms: []string{"a", "a"}, IDF: []float64{1, 1}},
		"zero idf":  {Terms: []string{"a"}, IDF: []float64{0}},
	}
	for name, st := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromState(st)
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "tfidf.json"))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoState)

	m, err := Fit(jobsCorpus, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, m.Snapshot()))

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot().Terms, st.Terms)
}

// ── Service ───────────────────────────────────────────────────────────────

func TestService_UnfittedAtColdStart(t *testing.T) {
	svc := NewService(nil, DefaultOptions(), nil)
	assert.False(t, svc.Fitted())

	_, err := svc.Transform(context.Background(), []string{"python"})
	assert.ErrorIs(t, err, ErrUnfitted)
	assert.False(t, svc.NeedsRefit(), "unfitted is not a transform failure")
}

func TestService_FitPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tfidf.json")

	svc := NewService(NewFileStore(path), DefaultOptions(), nil)
	require.NoError(t, svc.Fit(ctx, jobsCorpus))
	assert.True(t, svc.Fitted())

	restarted := NewService(NewFileStore(path), DefaultOptions(), nil)
	assert.True(t, restarted.GetOrLoad(ctx).Fitted())
	assert.Equal(t, svc.Current().VocabularySize(), restarted.Current().VocabularySize())
}

func TestService_EmptyCorpusKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, DefaultOptions(), nil)
	require.NoError(t, svc.Fit(ctx, jobsCorpus))
	before := svc.Current()

	require.NoError(t, svc.Fit(ctx, nil))
	assert.Same(t, before, svc.Current())

	require.NoError(t, svc.Fit(ctx, []string{"one", "two"}))
	assert.Same(t, before, svc.Current(), "a corpus that prunes to nothing keeps the prior model")
}

func TestService_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tfidf.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	svc := NewService(NewFileStore(path), DefaultOptions(), nil)
	assert.False(t, svc.Load(context.Background()))
	assert.False(t, svc.Fitted())
}

func TestService_ConcurrentReadsDuringRefit(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, DefaultOptions(), nil)
	require.NoError(t, svc.Fit(ctx, jobsCorpus))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				vecs, err := svc.Transform(ctx, []string{"python backend engineer"})
				if assert.NoError(t, err) {
					assert.InDelta(t, 1.0, vecs[0].Norm(), 1e-9)
				}
			}
		}()
	}
	for k := 0; k < 5; k++ {
		require.NoError(t, svc.Fit(ctx, jobsCorpus))
	}
	wg.Wait()
	assert.False(t, svc.Fitting())
}

// blockingStore holds every Load until release is closed, then reports that
// nothing was ever persisted.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	loads   atomic.Int32
	saved   atomic.Int32
}

func (b *blockingStore) Save(context.Context, *State) error {
	b.saved.Add(1)
	return nil
}

func (b *blockingStore) Load(context.Context) (*State, error) {
	b.loads.Add(1)
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return nil, ErrNoState
}

func TestService_LazyLoadDoesNotReplaceConcurrentFit(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewService(store, DefaultOptions(), nil)

	transformDone := make(chan struct{})
	go func() {
		defer close(transformDone)
		_, _ = svc.Transform(ctx, []string{"python"})
	}()
	<-store.entered

	fitDone := make(chan error, 1)
	go func() { fitDone <- svc.Fit(ctx, jobsCorpus) }()
	close(store.release)

	<-transformDone
	require.NoError(t, <-fitDone)

	assert.True(t, svc.Fitted(), "the fitted model survives the lazy load")
	vecs, err := svc.Transform(ctx, []string{"python backend engineer"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vecs[0].Norm(), 1e-9)

	fitted := svc.Current()
	assert.True(t, svc.Load(ctx))
	assert.Same(t, fitted, svc.Current(), "an explicit load keeps the installed model")
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, int32(1), store.saved.Load())
}

func TestService_FailedLoadKeepsFittedModel(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tfidf.json")
	svc := NewService(NewFileStore(path), DefaultOptions(), nil)
	require.NoError(t, svc.Fit(ctx, jobsCorpus))
	fitted := svc.Current()

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.True(t, svc.Load(ctx))
	assert.Same(t, fitted, svc.Current())
}
