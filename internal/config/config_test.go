package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg := config.Load()

		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 120, cfg.Server.WriteTimeout)
		require.Equal(t, 6379, cfg.Redis.Port)
		require.Equal(t, "relay.db", cfg.Billing.DBPath)
		require.Equal(t, 30, cfg.Dispatch.CallTimeoutS)
		require.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	})

	t.Run("should read values from the environment", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("REDIS_HOST", "redis.internal")
		t.Setenv("PROVIDER_CALL_TIMEOUT_S", "45")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg := config.Load()

		require.Equal(t, 9090, cfg.Server.Port)
		require.Equal(t, "redis.internal", cfg.Redis.Host)
		require.True(t, cfg.Redis.Enabled())
		require.Equal(t, 45, cfg.Dispatch.CallTimeoutS)
		require.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	})

	t.Run("should split CORS lists on commas", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

		cfg := config.Load()

		require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("should fan sub-configs out for injection", func(t *testing.T) {
		cfg := config.Load()

		deps := config.ParseDependenciesConfig(cfg)

		require.Same(t, &cfg.Server, deps.Server)
		require.Same(t, &cfg.Redis, deps.Redis)
		require.Same(t, &cfg.OpenAI, deps.OpenAI)
	})
}
