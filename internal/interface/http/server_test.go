package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/application/command"
	"github.com/alem-hub/achievement-engine/internal/application/query"
	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeCollection struct {
	got query.GetCollectionQuery
	err error
}

func (f *fakeCollection) Handle(_ context.Context, q query.GetCollectionQuery) (*query.GetCollectionResult, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return &query.GetCollectionResult{UserID: q.UserID, EarnedCount: 1, TotalCount: 3}, nil
}

type fakeLeaderboard struct {
	got query.GetLeaderboardQuery
	err error
}

func (f *fakeLeaderboard) Handle(_ context.Context, q query.GetLeaderboardQuery) (*query.GetLeaderboardResult, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return &query.GetLeaderboardResult{Kind: q.Kind, TotalCount: 2}, nil
}

type fakeUnnotified struct{}

func (fakeUnnotified) Handle(context.Context, query.GetUnnotifiedQuery) ([]query.UnnotifiedDTO, error) {
	return nil, nil
}

type fakeMarker struct {
	got command.MarkNotifiedCommand
	err error
}

func (f *fakeMarker) Handle(_ context.Context, cmd command.MarkNotifiedCommand) (*command.MarkNotifiedResult, error) {
	f.got = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &command.MarkNotifiedResult{UserID: cmd.UserID, Marked: 1}, nil
}

type fakeUpdater struct {
	got command.UpdateDefinitionCommand
}

func (f *fakeUpdater) Handle(_ context.Context, cmd command.UpdateDefinitionCommand) (*command.UpdateDefinitionResult, error) {
	f.got = cmd
	return &command.UpdateDefinitionResult{
		Definition:    achievement.Definition{Code: achievement.Code(cmd.Code)},
		ChangedFields: []string{"active"},
	}, nil
}

type fakeEvaluator struct {
	userCalls int
	orgCalls  int
	scope     saga.Scope
	err       error
}

func (f *fakeEvaluator) EvaluateUser(_ context.Context, scope saga.Scope, _ time.Time, _ []achievement.Code) (*saga.RunResult, error) {
	f.userCalls++
	f.scope = scope
	if f.err != nil {
		return nil, f.err
	}
	return &saga.RunResult{RunID: "run-1", Users: 1, Earned: 2}, nil
}

func (f *fakeEvaluator) EvaluateOrganization(_ context.Context, scope saga.Scope, _ time.Time, _ []achievement.Code) (*saga.RunResult, error) {
	f.orgCalls++
	f.scope = scope
	if f.err != nil {
		return nil, f.err
	}
	return &saga.RunResult{RunID: "run-2", Users: 5}, nil
}

type fakeFacts struct {
	payload []byte
}

func (f *fakeFacts) HandleFact(_ context.Context, payload []byte) (shared.FactRecordedEvent, error) {
	f.payload = payload
	return shared.NewFactRecordedEvent("org-1", "", "", "u1", "task_completed", time.Now()), nil
}

type testEnv struct {
	server      *Server
	collection  *fakeCollection
	leaderboard *fakeLeaderboard
	marker      *fakeMarker
	updater     *fakeUpdater
	evaluator   *fakeEvaluator
	facts       *fakeFacts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		collection:  &fakeCollection{},
		leaderboard: &fakeLeaderboard{},
		marker:      &fakeMarker{},
		updater:     &fakeUpdater{},
		evaluator:   &fakeEvaluator{},
		facts:       &fakeFacts{},
	}
	cfg := DefaultConfig()
	cfg.APIKeys = []string{"secret"}
	env.server = NewServer(cfg, Dependencies{
		Collection:  env.collection,
		Leaderboard: env.leaderboard,
		Unnotified:  fakeUnnotified{},
		MarkNotify:  env.marker,
		Definitions: env.updater,
		Evaluator:   env.evaluator,
		Facts:       env.facts,
		Logger:      zap.NewNop(),
	})
	return env
}

func (e *testEnv) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready", "/live", "/"} {
		rec := env.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), path)
	}
}

func TestReady_FailingCheck(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return errors.New("down") })
	s := NewServer(DefaultConfig(), Dependencies{HealthChecker: checker})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/live", "", map[string]string{"X-Request-ID": "req-42"})

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", decode(t, rec).RequestID)
}

func TestGetCollection(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet,
		"/api/v1/users/u1/achievements?organization_id=org-1&progress=true&timezone=Asia/Almaty",
		"", map[string]string{"Accept-Language": "ru-RU"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := env.collection.got
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, "ru-RU", got.Language)
	assert.True(t, got.IncludeProgress)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Asia/Almaty", got.Location.String())
}

func TestGetCollection_LangOverridesHeader(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/v1/users/u1/achievements?lang=kk", "",
		map[string]string{"Accept-Language": "ru"})
	assert.Equal(t, "kk", env.collection.got.Language)
}

func TestGetCollection_InvalidTimezone(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/users/u1/achievements?timezone=Mars/Base", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnnotified_EmptyListNotNull(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/users/u1/achievements/unnotified", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestMarkNotified(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/users/u1/achievements/first_step/notified", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first_step", env.marker.got.Code)

	rec = env.do(http.MethodPost, "/api/v1/users/u1/achievements/notified", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.marker.got.Code)
	assert.Equal(t, "u1", env.marker.got.UserID)
}

func TestDomainErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", shared.NewDomainError("ledger", "MarkNotified", shared.ErrNotFound, "no record"), http.StatusNotFound},
		{"validation", shared.NewDomainError("query", "Get", shared.ErrInvalidInput, "bad"), http.StatusBadRequest},
		{"fact source", shared.FactSourceError("Snapshot", errors.New("conn refused")), http.StatusServiceUnavailable},
		{"ranking", shared.ErrRankingComputation, http.StatusServiceUnavailable},
		{"flow validate", &saga.EvaluationFlowError{Step: saga.StepValidate, Cause: errors.New("org required")}, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.marker.err = tt.err
			rec := env.do(http.MethodPost, "/api/v1/users/u1/achievements/notified", "", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, decode(t, rec).Success)
		})
	}
}

func TestGetLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/organizations/org-1/leaderboard?kind=count&user_id=u1&limit=5&workspace_id=ws", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := env.leaderboard.got
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, "count", got.Kind)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, "ws", got.WorkspaceID)
}

func TestGetLeaderboard_DefaultKind(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/v1/organizations/org-1/leaderboard?limit=abc", "", nil)
	assert.Equal(t, "difficulty", env.leaderboard.got.Kind)
	assert.Equal(t, 20, env.leaderboard.got.Limit)
}

func TestPostFact_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	body := `{"organization_id":"org-1","user_id":"u1","action_type":"task_completed"}`

	rec := env.do(http.MethodPost, "/api/v1/facts", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, env.facts.payload)

	rec = env.do(http.MethodPost, "/api/v1/facts", body, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/facts", body, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, body, string(env.facts.payload))
}

func TestPostFact_BodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeys = []string{"secret"}
	cfg.MaxBodyBytes = 16
	s := NewServer(cfg, Dependencies{Facts: &fakeFacts{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/facts", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEvaluate(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"X-API-Key": "secret"}

	rec := env.do(http.MethodPost, "/api/v1/admin/organizations/org-1/evaluate", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.evaluator.orgCalls)
	assert.Equal(t, "org-1", env.evaluator.scope.OrganizationID)

	rec = env.do(http.MethodPost, "/api/v1/admin/organizations/org-1/evaluate",
		`{"user_id":"u1","timezone":"Asia/Almaty"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.evaluator.userCalls)
	assert.Equal(t, "u1", env.evaluator.scope.UserID)
	require.NotNil(t, env.evaluator.scope.Location)
}

func TestEvaluate_FactSourceDown(t *testing.T) {
	env := newTestEnv(t)
	env.evaluator.err = &saga.EvaluationFlowError{
		Step:  saga.StepLoadFacts,
		Cause: shared.FactSourceError("Snapshot", errors.New("timeout")),
	}
	rec := env.do(http.MethodPost, "/api/v1/admin/organizations/org-1/evaluate", "",
		map[string]string{"X-API-Key": "secret"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestUpdateDefinition(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPatch, "/api/v1/admin/definitions/night_owl", `{"active":false,"sort_order":3}`,
		map[string]string{"X-API-Key": "secret", "X-Request-ID": "req-7"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := env.updater.got
	assert.Equal(t, "night_owl", got.Code)
	require.NotNil(t, got.Changes.Active)
	assert.False(t, *got.Changes.Active)
	require.NotNil(t, got.Changes.SortOrder)
	assert.Equal(t, 3, *got.Changes.SortOrder)
	assert.Nil(t, got.Changes.Category)
	assert.Equal(t, "req-7", got.CorrelationID)
}

func TestUnregisteredRoutes(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/achievements", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	s.router.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestShutdown_NotRunning(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.Uptime())
}
