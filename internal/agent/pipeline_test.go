package agent_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/agent"
	"github.com/auraforge/relay/internal/domain"
)

func TestPipeline_RunBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("should run planner, builder, and composer in order", func(t *testing.T) {
		var prompts []string
		openai := &stubClient{
			name: domain.ProviderOpenAI,
			fn: func(_ context.Context, req *domain.GenerateRequest) domain.Result {
				prompts = append(prompts, req.Messages[len(req.Messages)-1].Text())
				return domain.Result{
					Provider:     domain.ProviderOpenAI,
					Model:        req.Model,
					Message:      fmt.Sprintf("output %d", len(prompts)),
					InputTokens:  200,
					OutputTokens: 100,
				}
			},
		}
		h := newHarness(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: openai,
		})
		pipeline := agent.NewPipeline(h.dispatcher)
		user := &domain.User{ID: "user-1", Tier: domain.TierPro}

		stages, err := pipeline.RunBuild(ctx, "build me a todo app", domain.RequestContext{}, user)

		require.NoError(t, err)
		require.Len(t, stages, 3)
		require.Equal(t, "planner", stages[0].Agent)
		require.Equal(t, "builder", stages[1].Agent)
		require.Equal(t, "composer", stages[2].Agent)

		// Later stages see the original request plus the previous output.
		require.Equal(t, "build me a todo app", prompts[0])
		require.Contains(t, prompts[1], "build me a todo app")
		require.Contains(t, prompts[1], "output 1")
		require.Contains(t, prompts[2], "output 2")

		// Each stage is billed independently.
		records := h.store.All()
		require.Len(t, records, 3)
		ids := map[string]bool{}
		for _, rec := range records {
			require.True(t, rec.Success)
			ids[rec.RequestID] = true
		}
		require.Len(t, ids, 3)

		daily, err := h.counters.DailyRequests(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, 3, daily)
	})

	t.Run("should abort on a stage failure", func(t *testing.T) {
		h := newHarness(t, map[string]domain.ProviderClient{
			domain.ProviderOpenAI: failing(domain.ProviderOpenAI, domain.ErrKindNetwork),
			domain.ProviderOllama: failing(domain.ProviderOllama, domain.ErrKindNetwork),
		})
		pipeline := agent.NewPipeline(h.dispatcher)
		user := &domain.User{ID: "user-1", Tier: domain.TierPro}

		stages, err := pipeline.RunBuild(ctx, "build me a todo app", domain.RequestContext{}, user)

		require.Error(t, err)
		require.Contains(t, err.Error(), "planner")
		require.Empty(t, stages)
	})

	t.Run("should reject an empty message", func(t *testing.T) {
		h := newHarness(t, nil)
		pipeline := agent.NewPipeline(h.dispatcher)
		user := &domain.User{ID: "user-1", Tier: domain.TierPro}

		_, err := pipeline.RunBuild(ctx, "", domain.RequestContext{}, user)

		require.Error(t, err)
	})
}
