package vectorizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrUnfitted is returned by Transform before any successful fit or load.
	// Callers treat it as "not computable yet" and retry after a fit cycle.
	ErrUnfitted = errors.New("vectorizer is not fitted")

	// ErrEmptyCorpus is returned by Fit when there is nothing to learn from.
	ErrEmptyCorpus = errors.New("cannot fit vectorizer on an empty corpus")

	// ErrNoTerms is returned by Fit when document-frequency pruning leaves an
	// empty vocabulary.
	ErrNoTerms = errors.New("after pruning, no terms remain")

	// ErrCorruptState flags a model whose vocabulary and weights disagree.
	ErrCorruptState = errors.New("vectorizer state is corrupt")
)

// Options control vocabulary pruning.
type Options struct {
	// MaxDF drops terms present in more than this fraction of documents.
	MaxDF float64
	// MinDF drops terms present in fewer than this many documents.
	MinDF int
}

// DefaultOptions keeps terms seen in at least 2 documents and at most 95% of
// them.
func DefaultOptions() Options {
	return Options{MaxDF: 0.95, MinDF: 2}
}

// Vector is a sparse, L2-normalised TF-IDF row. Indices are ascending.
type Vector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of non-zero entries.
func (v Vector) Len() int { return len(v.Indices) }

// Dot returns the inner product of two sparse vectors.
func (v Vector) Dot(o Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += v.Values[i] * o.Values[j]
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, clamped to [0,1].
// Zero vectors have similarity 0 with everything.
func Cosine(a, b Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	sim := a.Dot(b) / (na * nb)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

// Model is a fitted vocabulary with inverse document frequencies. The zero
// value is a valid, unfitted model.
type Model struct {
	terms    []string       // index -> term, sorted
	index    map[string]int // term -> index
	idf      []float64
	numDocs  int
	opts     Options
	fittedAt time.Time
}

// Fitted reports whether the model has a vocabulary.
func (m *Model) Fitted() bool {
	return m != nil && len(m.terms) > 0
}

// VocabularySize returns the number of retained terms.
func (m *Model) VocabularySize() int {
	if m == nil {
		return 0
	}
	return len(m.terms)
}

// NumDocs returns the size of the corpus the model was fit on.
func (m *Model) NumDocs() int {
	if m == nil {
		return 0
	}
	return m.numDocs
}

// FittedAt returns when the model was built.
func (m *Model) FittedAt() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.fittedAt
}

// Contains reports whether term is part of the vocabulary.
func (m *Model) Contains(term string) bool {
	if m == nil {
		return false
	}
	_, ok := m.index[term]
	return ok
}

// IDF returns the weight of term, or 0 when the term is unknown.
func (m *Model) IDF(term string) float64 {
	if m == nil {
		return 0
	}
	i, ok := m.index[term]
	if !ok {
		return 0
	}
	return m.idf[i]
}

// Fit builds a new Model from corpus. The document frequency of a term is the
// number of documents containing it at least once; terms outside
// [opts.MinDF, opts.MaxDF*len(corpus)] are dropped. Weights use the smoothed
// formula ln((1+n)/(1+df)) + 1.
func Fit(corpus []string, opts Options) (*Model, error) {
	n := len(corpus)
	if n == 0 {
		return nil, ErrEmptyCorpus
	}
	if opts.MaxDF <= 0 || opts.MaxDF > 1 {
		return nil, fmt.Errorf("max_df must be in (0,1], got %v", opts.MaxDF)
	}
	if opts.MinDF < 1 {
		opts.MinDF = 1
	}

	maxDocs := opts.MaxDF * float64(n)
	if maxDocs < float64(opts.MinDF) {
		return nil, fmt.Errorf("max_df corresponds to < documents than min_df (%d docs, max_df=%v, min_df=%d)",
			n, opts.MaxDF, opts.MinDF)
	}

	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count < opts.MinDF || float64(count) > maxDocs {
			continue
		}
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return nil, ErrNoTerms
	}
	sort.Strings(terms)

	m := &Model{
		terms:    terms,
		index:    make(map[string]int, len(terms)),
		idf:      make([]float64, len(terms)),
		numDocs:  n,
		opts:     opts,
		fittedAt: time.Now().UTC(),
	}
	for i, term := range terms {
		m.index[term] = i
		m.idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	return m, nil
}

// Transform maps each text to an L2-normalised TF-IDF vector in the model's
// space. Terms outside the vocabulary are ignored. A text without known terms
// yields an empty vector.
func (m *Model) Transform(texts []string) ([]Vector, error) {
	if !m.Fitted() {
		return nil, ErrUnfitted
	}
	if len(m.idf) != len(m.terms) {
		return nil, fmt.Errorf("%w: %d terms, %d weights", ErrCorruptState, len(m.terms), len(m.idf))
	}

	out := make([]Vector, len(texts))
	for i, text := range texts {
		counts := make(map[int]float64)
		for _, tok := range Tokenize(text) {
			if idx, ok := m.index[tok]; ok {
				counts[idx]++
			}
		}
		out[i] = m.weigh(counts)
	}
	return out, nil
}

func (m *Model) weigh(counts map[int]float64) Vector {
	if len(counts) == 0 {
		return Vector{}
	}
	v := Vector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		v.Indices = append(v.Indices, idx)
	}
	sort.Ints(v.Indices)

	var norm float64
	for _, idx := range v.Indices {
		w := counts[idx] * m.idf[idx]
		v.Values = append(v.Values, w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for k := range v.Values {
			v.Values[k] /= norm
		}
	}
	return v
}
