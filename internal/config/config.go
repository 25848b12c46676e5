package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/auraforge/relay/internal/provider/anthropic"
	"github.com/auraforge/relay/internal/provider/copilot"
	"github.com/auraforge/relay/internal/provider/google"
	"github.com/auraforge/relay/internal/provider/ollama"
	"github.com/auraforge/relay/internal/provider/openai"
)

// Config represents the full process configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Billing   BillingConfig
	Dispatch  DispatchConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
	Google    google.Config
	Ollama    ollama.Config
	Copilot   copilot.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig enables distributed quota counters when Host is set;
// otherwise counters are in-memory.
type RedisConfig struct {
	Host string `env:"REDIS_HOST"`
	Port int    `env:"REDIS_PORT" envDefault:"6379"`
}

// Enabled reports whether Redis-backed counters are configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// BillingConfig locates the durable billing store.
type BillingConfig struct {
	DBPath string `env:"BILLING_DB_PATH" envDefault:"relay.db"`
}

// DispatchConfig contains dispatcher settings.
type DispatchConfig struct {
	// Per-provider-call timeout in seconds.
	CallTimeoutS int `env:"PROVIDER_CALL_TIMEOUT_S" envDefault:"30"`
}

// DepConfig is used for dependency injection with dig. Provider configs get
// named fields because every provider package exports a type called Config.
type DepConfig struct {
	dig.Out

	Server    *ServerConfig
	CORS      *CORSConfig
	Redis     *RedisConfig
	Billing   *BillingConfig
	Dispatch  *DispatchConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
	Google    *google.Config
	Ollama    *ollama.Config
	Copilot   *copilot.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:    &cfg.Server,
		CORS:      &cfg.CORS,
		Redis:     &cfg.Redis,
		Billing:   &cfg.Billing,
		Dispatch:  &cfg.Dispatch,
		OpenAI:    &cfg.OpenAI,
		Anthropic: &cfg.Anthropic,
		Google:    &cfg.Google,
		Ollama:    &cfg.Ollama,
		Copilot:   &cfg.Copilot,
	}
}
