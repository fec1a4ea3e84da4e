package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/circuitbreaker"
)

type recordingPublisher struct {
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func newTestWebhook(pub *recordingPublisher) *FactWebhook {
	h := NewFactWebhook(pub)
	h.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestFactWebhook_Publishes(t *testing.T) {
	pub := &recordingPublisher{}
	h := newTestWebhook(pub)

	event, err := h.HandleFact(context.Background(), []byte(`{
		"organization_id": "org-1",
		"workspace_id": "ws-1",
		"item_id": "task-9",
		"user_id": "u1",
		"action_type": "task_completed",
		"timezone": "Asia/Almaty",
		"occurred_at": "2024-02-29T23:30:00+05:00"
	}`))
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	assert.Equal(t, shared.EventFactRecorded, event.EventType())
	assert.Equal(t, "u1", event.AggregateID())
	assert.Equal(t, "task_completed", event.ActionType)
	assert.Equal(t, "Asia/Almaty", event.Timezone)
	assert.Equal(t, time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC), event.OccurredAt())
}

func TestFactWebhook_DefaultsOccurredAtToNow(t *testing.T) {
	pub := &recordingPublisher{}
	event, err := newTestWebhook(pub).HandleFact(context.Background(),
		[]byte(`{"organization_id":"org-1","user_id":"u1","action_type":"comment_added"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), event.OccurredAt())
}

func TestFactWebhook_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bad json", `{"organization_id":`},
		{"missing org", `{"user_id":"u1","action_type":"created"}`},
		{"missing user", `{"organization_id":"org-1","action_type":"created"}`},
		{"unknown action", `{"organization_id":"org-1","user_id":"u1","action_type":"liked"}`},
		{"bad timezone", `{"organization_id":"org-1","user_id":"u1","action_type":"created","timezone":"Mars/Base"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			_, err := newTestWebhook(pub).HandleFact(context.Background(), []byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFact)
			assert.Empty(t, pub.events)
		})
	}
}

func TestFactWebhook_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus closed")}
	_, err := newTestWebhook(pub).HandleFact(context.Background(),
		[]byte(`{"organization_id":"org-1","user_id":"u1","action_type":"created"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFact)
}

func TestAPIKeyAuth(t *testing.T) {
	auth := NewAPIKeyAuth("", []string{"k1", ""})
	assert.True(t, auth.Enabled())
	assert.True(t, auth.IsValid("k1"))
	assert.False(t, auth.IsValid(""))

	auth.AddKey("k2")
	assert.True(t, auth.IsValid("k2"))
	auth.RemoveKey("k1")
	assert.False(t, auth.IsValid("k1"))

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"invalid", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header", "X-API-Key", "k2", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer k2", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAPIKeyAuth_NoKeysClosesEndpoints(t *testing.T) {
	auth := NewAPIKeyAuth("X-Admin", nil)
	assert.False(t, auth.Enabled())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Admin", "anything")
	rec := httptest.NewRecorder()
	auth.Middleware(http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddCheck("redis", func(context.Context) error { return errors.New("refused") })
	c.AddCheck("cache", func(context.Context) error { return errors.New("refused") })

	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: cache, redis", status.Message)
	assert.True(t, status.Checks["database"].Healthy)
	assert.Equal(t, "refused", status.Checks["redis"].Message)
	assert.Equal(t, "v1", status.Version)
	assert.Equal(t, StateDown, status.State)

	c.RemoveCheck("redis")
	c.RemoveCheck("cache")
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestCompositeHealthChecker_DegradedKeepsReady(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("database", func(context.Context) error { return nil })
	c.AddDegradedCheck("redis", func(context.Context) error { return errors.New("refused") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, StateDegraded, status.State)
	assert.False(t, status.Checks["redis"].Critical)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline")
}

type stubBreaker struct{ state circuitbreaker.State }

func (b stubBreaker) State() circuitbreaker.State { return b.state }
func (b stubBreaker) Name() string                { return "fact_source" }

func TestBreakerCheck(t *testing.T) {
	assert.NoError(t, NewBreakerCheck(stubBreaker{state: circuitbreaker.StateClosed})(context.Background()))

	err := NewBreakerCheck(stubBreaker{state: circuitbreaker.StateOpen})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact_source")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestDatabaseAndCacheChecks(t *testing.T) {
	down := pingerFunc(func(context.Context) error { return errors.New("down") })
	up := pingerFunc(func(context.Context) error { return nil })

	assert.Error(t, NewDatabaseCheck(down)(context.Background()))
	assert.NoError(t, NewCacheCheck(up)(context.Background()))
}
