package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/agent"
	"github.com/auraforge/relay/internal/billing"
	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/health"
	"github.com/auraforge/relay/internal/httpserver"
	"github.com/auraforge/relay/internal/pricing"
	"github.com/auraforge/relay/internal/quota"
	"github.com/auraforge/relay/internal/registry"
	"github.com/auraforge/relay/internal/router"
)

// stubClient is a scriptable provider client for testing.
type stubClient struct {
	name string
	fn   func(ctx context.Context, req *domain.GenerateRequest) domain.Result
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Generate(ctx context.Context, req *domain.GenerateRequest) domain.Result {
	return s.fn(ctx, req)
}

func succeeding(name string) *stubClient {
	return &stubClient{
		name: name,
		fn: func(_ context.Context, req *domain.GenerateRequest) domain.Result {
			return domain.Result{
				Provider:     name,
				Model:        req.Model,
				Message:      "stub response",
				InputTokens:  400,
				OutputTokens: 100,
			}
		},
	}
}

type fixture struct {
	handler  *httpserver.Handler
	monitor  *health.Monitor
	counters *quota.MemoryCounter
	store    *billing.MemoryStore
}

func newFixture(t *testing.T, clients map[string]domain.ProviderClient) *fixture {
	t.Helper()

	reg := registry.NewDefault()
	monitor := health.NewMonitor()
	counters := quota.NewMemoryCounter()
	store := billing.NewMemoryStore()

	dispatcher := agent.NewDispatcher(
		reg,
		router.New(reg, monitor),
		quota.NewEnforcer(counters),
		monitor,
		pricing.NewCalculator(reg),
		billing.NewAccountant(store, counters),
		clients,
		nil,
		time.Second,
	)

	return &fixture{
		handler:  httpserver.NewHandler(dispatcher, agent.NewPipeline(dispatcher), monitor, store, store),
		monitor:  monitor,
		counters: counters,
		store:    store,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandler_HandleChat(t *testing.T) {
	t.Run("should serve a chat request", func(t *testing.T) {
		f := newFixture(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: succeeding(domain.ProviderOpenAI),
		})

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierFree,
		})

		require.Equal(t, http.StatusOK, w.Code)

		var result domain.Result
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		require.Equal(t, domain.ProviderOpenAI, result.Provider)
		require.Equal(t, "stub response", result.Message)
	})

	t.Run("should reject non-POST requests", func(t *testing.T) {
		f := newFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
		w := httptest.NewRecorder()
		f.handler.HandleChat(w, req)

		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("should require a user id", func(t *testing.T) {
		f := newFixture(t, nil)

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should map quota denials to 429", func(t *testing.T) {
		f := newFixture(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: succeeding(domain.ProviderOpenAI),
		})

		ctx := context.Background()
		for i := 0; i < 20; i++ {
			require.NoError(t, f.counters.CommitUsage(ctx, "user-1", 10))
		}

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierFree,
		})

		require.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("should reject suspended users with 403", func(t *testing.T) {
		f := newFixture(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: succeeding(domain.ProviderOpenAI),
		})

		ctx := context.Background()
		require.NoError(t, f.store.Upsert(ctx, &domain.User{
			ID:        "user-1",
			Tier:      domain.TierPro,
			Suspended: true,
		}))

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierPro,
		})

		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should keep the stored tier over the request tier", func(t *testing.T) {
		f := newFixture(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: succeeding(domain.ProviderOpenAI),
		})

		ctx := context.Background()
		require.NoError(t, f.store.Upsert(ctx, &domain.User{
			ID:   "user-1",
			Tier: domain.TierFree,
		}))

		// 20 requests exhaust the free daily limit even though the caller
		// claims the ultra tier.
		for i := 0; i < 20; i++ {
			require.NoError(t, f.counters.CommitUsage(ctx, "user-1", 10))
		}

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierUltra,
		})

		require.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("should map chain exhaustion to 502", func(t *testing.T) {
		// No provider configured at all: every candidate is skipped.
		f := newFixture(t, map[string]domain.ProviderClient{})

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierFree,
		})

		require.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestHandler_HandleUsage(t *testing.T) {
	t.Run("should summarize recorded spend", func(t *testing.T) {
		f := newFixture(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: succeeding(domain.ProviderOpenAI),
		})

		w := postJSON(t, f.handler.HandleChat, "/v1/chat", httpserver.ChatRequest{
			Agent:   "aura",
			Message: "hello",
			UserID:  "user-1",
			Tier:    domain.TierFree,
		})
		require.Equal(t, http.StatusOK, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/v1/usage?user_id=user-1", nil)
		w = httptest.NewRecorder()
		f.handler.HandleUsage(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var usage httpserver.UsageResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&usage))
		require.Equal(t, "user-1", usage.UserID)
		require.Len(t, usage.Records, 1)
		require.InDelta(t, 0.00035, usage.TotalCostUSD, 1e-9)
	})

	t.Run("should require a user id", func(t *testing.T) {
		f := newFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
		w := httptest.NewRecorder()
		f.handler.HandleUsage(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should reject malformed time bounds", func(t *testing.T) {
		f := newFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/usage?user_id=user-1&from=yesterday", nil)
		w := httptest.NewRecorder()
		f.handler.HandleUsage(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Admin(t *testing.T) {
	t.Run("should report provider health", func(t *testing.T) {
		f := newFixture(t, nil)
		f.monitor.Record(domain.ProviderOpenAI, true, time.Second, 0.01, domain.ErrKindNone)

		req := httptest.NewRequest(http.MethodGet, "/v1/admin/health", nil)
		w := httptest.NewRecorder()
		f.handler.HandleProviderHealth(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var report map[string]domain.ProviderSnapshot
		require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
		require.Contains(t, report, domain.ProviderOpenAI)
		require.Equal(t, 1, report[domain.ProviderOpenAI].Successful)
	})

	t.Run("should pick the best provider for a priority", func(t *testing.T) {
		f := newFixture(t, nil)
		f.monitor.Record(domain.ProviderOpenAI, true, 2*time.Second, 0.01, domain.ErrKindNone)
		f.monitor.Record(domain.ProviderGoogle, true, 200*time.Millisecond, 0.002, domain.ErrKindNone)

		req := httptest.NewRequest(http.MethodGet, "/v1/admin/best?priority=fastest", nil)
		w := httptest.NewRecorder()
		f.handler.HandleBest(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Equal(t, domain.ProviderGoogle, body["provider"])
	})

	t.Run("should suspend and reinstate a user", func(t *testing.T) {
		f := newFixture(t, nil)

		ctx := context.Background()
		require.NoError(t, f.store.Upsert(ctx, &domain.User{ID: "user-1", Tier: domain.TierPro}))

		w := postJSON(t, f.handler.HandleSuspend, "/v1/admin/suspend", httpserver.SuspendRequest{
			UserID:    "user-1",
			Suspended: true,
		})
		require.Equal(t, http.StatusOK, w.Code)

		user, err := f.store.Get(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, user.Suspended)
		require.Equal(t, domain.TierPro, user.Tier)

		w = postJSON(t, f.handler.HandleSuspend, "/v1/admin/suspend", httpserver.SuspendRequest{
			UserID:    "user-1",
			Suspended: false,
		})
		require.Equal(t, http.StatusOK, w.Code)

		user, err = f.store.Get(ctx, "user-1")
		require.NoError(t, err)
		require.False(t, user.Suspended)
	})

	t.Run("should return 404 for unknown suspend targets", func(t *testing.T) {
		f := newFixture(t, nil)

		w := postJSON(t, f.handler.HandleSuspend, "/v1/admin/suspend", httpserver.SuspendRequest{
			UserID:    "nobody",
			Suspended: true,
		})

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should reset health samples", func(t *testing.T) {
		f := newFixture(t, nil)
		f.monitor.Record(domain.ProviderOpenAI, false, time.Second, 0, domain.ErrKindRateLimit)

		req := httptest.NewRequest(http.MethodPost, "/v1/admin/reset", nil)
		w := httptest.NewRecorder()
		f.handler.HandleHealthReset(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, f.monitor.Report())
	})
}

func TestHandler_HandleHealth(t *testing.T) {
	t.Run("should report healthy", func(t *testing.T) {
		f := newFixture(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		f.handler.HandleHealth(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		require.Equal(t, "healthy", body["status"])
	})
}
