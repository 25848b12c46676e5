package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/provider/ollama"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *ollama.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ollama.NewClient(ollama.Config{BaseURL: server.URL})
}

func textRequest(model, content string) *domain.GenerateRequest {
	return &domain.GenerateRequest{
		Model:        model,
		Messages:     []domain.Message{{Role: "user", Content: content}},
		Capabilities: domain.Capability{Text: true},
	}
}

func TestClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("should translate the wire request and map usage counts", func(t *testing.T) {
		var wire map[string]any
		client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/chat", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"message":           map[string]string{"role": "assistant", "content": "hello back"},
				"prompt_eval_count": 12,
				"eval_count":        4,
			})
		})

		result := client.Generate(ctx, textRequest("llama3.1", "hello"))

		require.False(t, result.Failed())
		require.Equal(t, "hello back", result.Message)
		require.Equal(t, 12, result.InputTokens)
		require.Equal(t, 4, result.OutputTokens)
		require.Equal(t, domain.ProviderOllama, result.Provider)

		require.Equal(t, "llama3.1", wire["model"])
		require.Equal(t, false, wire["stream"])
	})

	t.Run("should estimate usage when the daemon omits counts", func(t *testing.T) {
		client := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": "four char chunks"},
			})
		})

		result := client.Generate(ctx, textRequest("llama3.1", "hello there"))

		require.False(t, result.Failed())
		require.Positive(t, result.InputTokens)
		require.Equal(t, domain.EstimateTokens("four char chunks"), result.OutputTokens)
	})

	t.Run("should classify HTTP error statuses", func(t *testing.T) {
		client := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model is busy", http.StatusTooManyRequests)
		})

		result := client.Generate(ctx, textRequest("llama3.1", "hello"))

		require.True(t, result.Failed())
		require.Equal(t, domain.ErrKindRateLimit, result.ErrorKind)
		require.Zero(t, result.InputTokens)
	})

	t.Run("should classify server errors as network failures", func(t *testing.T) {
		client := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		})

		result := client.Generate(ctx, textRequest("llama3.1", "hello"))

		require.True(t, result.Failed())
		require.Equal(t, domain.ErrKindNetwork, result.ErrorKind)
	})

	t.Run("should report unreachable daemons as network failures", func(t *testing.T) {
		client := ollama.NewClient(ollama.Config{BaseURL: "http://127.0.0.1:1"})

		result := client.Generate(ctx, textRequest("llama3.1", "hello"))

		require.True(t, result.Failed())
		require.Contains(t,
			[]domain.ErrorKind{domain.ErrKindNetwork, domain.ErrKindTimeout},
			result.ErrorKind)
	})

	t.Run("should reject image input before reaching the daemon", func(t *testing.T) {
		called := false
		client := chatServer(t, func(http.ResponseWriter, *http.Request) {
			called = true
		})

		req := &domain.GenerateRequest{
			Model: "llama3.1",
			Messages: []domain.Message{{
				Role:  "user",
				Parts: []domain.Part{{Kind: domain.PartImage, Data: []byte{0xFF}, MIMEType: "image/png"}},
			}},
			Capabilities: domain.Capability{Text: true},
		}

		result := client.Generate(ctx, req)

		require.True(t, result.Failed())
		require.Equal(t, domain.ErrKindOther, result.ErrorKind)
		require.False(t, called)
	})
}
