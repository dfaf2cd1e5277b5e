package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/match-service/internal/matches"
	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/tasks"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type fakeMatchStore struct {
	list      []matches.Match
	gotFilter matches.Filter
	gotUser   string
	counts    matches.Counts
	updateErr error
	err       error
}

func (f *fakeMatchStore) ListForUser(_ context.Context, userID string, flt matches.Filter) ([]matches.Match, error) {
	f.gotUser, f.gotFilter = userID, flt
	return f.list, f.err
}

func (f *fakeMatchStore) CountByStatus(_ context.Context, userID string) (matches.Counts, error) {
	f.gotUser = userID
	return f.counts, f.err
}

func (f *fakeMatchStore) UpdateStatus(_ context.Context, userID string, jobID uuid.UUID, newStatus string) (*matches.Match, error) {
	f.gotUser = userID
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	st, _ := matches.ParseStatus(newStatus)
	return &matches.Match{Job: model.Job{ID: jobID}, Status: st}, nil
}

type fakePipeline struct {
	tracker  *tasks.Tracker
	refitErr error
	refits   int
}

func (f *fakePipeline) StartRefresh(ctx context.Context, userID string) (*tasks.Task, error) {
	return f.tracker.Create(ctx, "refresh", userID)
}

func (f *fakePipeline) StartRefit(ctx context.Context, userID string) (*tasks.Task, error) {
	if f.refitErr != nil {
		return nil, f.refitErr
	}
	f.refits++
	return f.tracker.Create(ctx, "refit", userID)
}

type fakeVec struct{ fitted, fitting, needsRefit bool }

func (v fakeVec) Fitted() bool     { return v.fitted }
func (v fakeVec) Fitting() bool    { return v.fitting }
func (v fakeVec) NeedsRefit() bool { return v.needsRefit }

// ── Helpers ────────────────────────────────────────────────────────────────

type testServer struct {
	router   *gin.Engine
	store    *fakeMatchStore
	pipeline *fakePipeline
	tracker  *tasks.Tracker
}

func newTestServer(vec fakeVec) *testServer {
	gin.SetMode(gin.TestMode)
	tr := tasks.NewTracker(tasks.NewMemoryStore(), 0)
	ts := &testServer{
		store:    &fakeMatchStore{},
		pipeline: &fakePipeline{tracker: tr},
		tracker:  tr,
	}
	h := NewHandler(ts.store, ts.pipeline, tr, vec, "test", nil)
	ts.router = NewRouter(h, DefaultIdentity, zap.NewNop())
	return ts
}

func (ts *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("x-user-id", userID)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	ts := newTestServer(fakeVec{fitted: true})
	rec := ts.do(http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"fitted": true, "fitting": false, "needsRefit": false}, body["vectorizer"])
}

func TestUserRoutesRequireIdentity(t *testing.T) {
	ts := newTestServer(fakeVec{})
	for _, path := range []string{"/matches", "/matches/count", "/tasks/x"} {
		rec := ts.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestListMatches(t *testing.T) {
	ts := newTestServer(fakeVec{fitted: true})
	ts.store.list = []matches.Match{{Job: model.Job{ID: uuid.New(), Title: "Go Dev"}, RelevanceScore: 0.7, Status: matches.StatusPending}}

	rec := ts.do(http.MethodGet, "/matches?status=interested&limit=500&offset=10", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "u1", ts.store.gotUser)
	assert.Equal(t, matches.Filter{Status: matches.StatusInterested, Limit: maxPageSize, Offset: 10}, ts.store.gotFilter)

	var got []matches.Match
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Go Dev", got[0].Title)
}

func TestListMatches_EmptyIsArray(t *testing.T) {
	ts := newTestServer(fakeVec{})
	rec := ts.do(http.MethodGet, "/matches", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Equal(t, defaultPageSize, ts.store.gotFilter.Limit)
}

func TestListMatches_BadQuery(t *testing.T) {
	ts := newTestServer(fakeVec{})
	for _, q := range []string{"?status=hired", "?limit=-1", "?offset=abc"} {
		rec := ts.do(http.MethodGet, "/matches"+q, "u1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListMatches_StoreError(t *testing.T) {
	ts := newTestServer(fakeVec{})
	ts.store.err = errors.New("connection refused")
	rec := ts.do(http.MethodGet, "/matches", "u1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestCountMatches(t *testing.T) {
	ts := newTestServer(fakeVec{})
	ts.store.counts = matches.Counts{Total: 3, ByStatus: map[matches.Status]int{
		matches.StatusPending: 2, matches.StatusApplied: 1,
	}}
	rec := ts.do(http.MethodGet, "/matches/count", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":3,"byStatus":{"pending":2,"applied":1}}`, rec.Body.String())
}

func TestUpdateMatchStatus(t *testing.T) {
	jobID := uuid.New()
	path := "/matches/" + jobID.String() + "/status"

	tests := []struct {
		name      string
		path      string
		body      any
		updateErr error
		want      int
	}{
		{name: "ok", path: path, body: map[string]string{"status": "applied"}, want: http.StatusOK},
		{name: "bad job id", path: "/matches/nope/status", body: map[string]string{"status": "applied"}, want: http.StatusBadRequest},
		{name: "missing status", path: path, body: map[string]string{}, want: http.StatusBadRequest},
		{name: "forbidden transition", path: path, body: map[string]string{"status": "pending"},
			updateErr: &matches.ValidationError{Msg: "transition applied → pending is not allowed"}, want: http.StatusBadRequest},
		{name: "unknown match", path: path, body: map[string]string{"status": "ignored"},
			updateErr: matches.ErrNotFound, want: http.StatusNotFound},
		{name: "db error", path: path, body: map[string]string{"status": "ignored"},
			updateErr: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(fakeVec{})
			ts.store.updateErr = tc.updateErr
			rec := ts.do(http.MethodPut, tc.path, "u1", tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRefreshAndPollTask(t *testing.T) {
	ts := newTestServer(fakeVec{fitted: true})

	rec := ts.do(http.MethodPost, "/refresh", "u1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id, _ := decode(t, rec)["id"].(string)
	require.NotEmpty(t, id)

	rec = ts.do(http.MethodGet, "/tasks/"+id, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(tasks.StateQueued), decode(t, rec)["state"])

	// Other users cannot see it.
	rec = ts.do(http.MethodGet, "/tasks/"+id, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/tasks/unknown", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefit(t *testing.T) {
	ts := newTestServer(fakeVec{fitted: true})
	rec := ts.do(http.MethodPost, "/admin/vectorizer/refit", "ops", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ts.pipeline.refits)
	id, _ := decode(t, rec)["id"].(string)
	require.NotEmpty(t, id)

	rec = ts.do(http.MethodGet, "/tasks/"+id, "ops", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refit", decode(t, rec)["kind"])

	ts.pipeline.refitErr = errors.New("redis gone")
	rec = ts.do(http.MethodPost, "/admin/vectorizer/refit", "ops", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefit_RequiresIdentity(t *testing.T) {
	ts := newTestServer(fakeVec{fitted: true})
	rec := ts.do(http.MethodPost, "/admin/vectorizer/refit", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ts.pipeline.refits)
}

func TestRefit_AlreadyRunning(t *testing.T) {
	ts := newTestServer(fakeVec{fitting: true})
	rec := ts.do(http.MethodPost, "/admin/vectorizer/refit", "ops", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, ts.pipeline.refits)
}
