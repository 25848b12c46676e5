package main

import (
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/auraforge/relay/internal/agent"
	"github.com/auraforge/relay/internal/billing"
	"github.com/auraforge/relay/internal/config"
	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/health"
	"github.com/auraforge/relay/internal/httpserver"
	"github.com/auraforge/relay/internal/httpserver/middleware"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/pricing"
	"github.com/auraforge/relay/internal/provider/anthropic"
	"github.com/auraforge/relay/internal/provider/copilot"
	"github.com/auraforge/relay/internal/provider/google"
	"github.com/auraforge/relay/internal/provider/ollama"
	"github.com/auraforge/relay/internal/provider/openai"
	"github.com/auraforge/relay/internal/quota"
	"github.com/auraforge/relay/internal/registry"
	"github.com/auraforge/relay/internal/router"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func(bus *observability.EventBus) domain.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event publisher: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Model registry and pricing
	if err := container.Provide(registry.NewDefault); err != nil {
		log.Fatalf("Failed to provide model registry: %v", err)
	}
	if err := container.Provide(func(reg domain.ModelRegistry) domain.CostModel {
		return pricing.NewCalculator(reg)
	}); err != nil {
		log.Fatalf("Failed to provide cost model: %v", err)
	}

	// Health monitor
	if err := container.Provide(func() domain.HealthMonitor {
		return health.NewMonitor()
	}); err != nil {
		log.Fatalf("Failed to provide health monitor: %v", err)
	}

	// Usage counters: Redis when configured, otherwise in-memory.
	if err := container.Provide(func(cfg *config.RedisConfig, logger *zap.Logger) domain.UsageCounter {
		if cfg.Enabled() {
			client := redis.NewClient(&redis.Options{
				Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			})
			logger.Info("using Redis usage counters", zap.String("addr", client.Options().Addr))
			return quota.NewRedisCounter(client)
		}
		logger.Info("using in-memory usage counters")
		return quota.NewMemoryCounter()
	}); err != nil {
		log.Fatalf("Failed to provide usage counters: %v", err)
	}

	// Quota enforcement
	if err := container.Provide(func(counters domain.UsageCounter) domain.QuotaEnforcer {
		return quota.NewEnforcer(counters)
	}); err != nil {
		log.Fatalf("Failed to provide quota enforcer: %v", err)
	}

	// Billing: one SQLite database backs the record store, usage queries,
	// and the user directory.
	if err := container.Provide(func(cfg *config.BillingConfig) (*billing.SQLiteStore, error) {
		return billing.NewSQLiteStore(cfg.DBPath)
	}); err != nil {
		log.Fatalf("Failed to provide billing store: %v", err)
	}
	if err := container.Provide(func(store *billing.SQLiteStore) billing.Store {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide billing record store: %v", err)
	}
	if err := container.Provide(func(store billing.Store, counters domain.UsageCounter) domain.AccountingSink {
		return billing.NewAccountant(store, counters)
	}); err != nil {
		log.Fatalf("Failed to provide accounting sink: %v", err)
	}
	if err := container.Provide(func(store *billing.SQLiteStore) domain.BillingQuerier {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide billing querier: %v", err)
	}
	if err := container.Provide(func(store *billing.SQLiteStore) domain.UserDirectory {
		return store
	}); err != nil {
		log.Fatalf("Failed to provide user directory: %v", err)
	}

	// Provider clients (each optional; missing credentials skip the provider)
	if err := container.Provide(buildClients); err != nil {
		log.Fatalf("Failed to provide provider clients: %v", err)
	}

	// Routing and dispatch
	if err := container.Provide(func(reg domain.ModelRegistry, monitor domain.HealthMonitor) domain.Router {
		return router.New(reg, monitor)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}
	if err := container.Provide(func(
		reg domain.ModelRegistry,
		rt domain.Router,
		enforcer domain.QuotaEnforcer,
		monitor domain.HealthMonitor,
		cost domain.CostModel,
		sink domain.AccountingSink,
		clients map[string]domain.ProviderClient,
		events domain.EventPublisher,
		dispatch *config.DispatchConfig,
	) *agent.Dispatcher {
		timeout := time.Duration(dispatch.CallTimeoutS) * time.Second
		return agent.NewDispatcher(reg, rt, enforcer, monitor, cost, sink, clients, events, timeout)
	}); err != nil {
		log.Fatalf("Failed to provide dispatcher: %v", err)
	}
	if err := container.Provide(agent.NewPipeline); err != nil {
		log.Fatalf("Failed to provide pipeline: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// buildClients constructs the provider client map from configuration.
// Providers without credentials are skipped; the dispatcher walks fallback
// chains past unconfigured providers.
func buildClients(
	cfg *config.Config,
	logger *zap.Logger,
) (map[string]domain.ProviderClient, error) {
	clients := make(map[string]domain.ProviderClient)

	if cfg.OpenAI.APIKey != "" {
		client, err := openai.NewClient(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("init OpenAI client: %w", err)
		}
		clients[domain.ProviderOpenAI] = client
	} else {
		logger.Info("OpenAI provider not configured, skipping")
	}

	if cfg.Anthropic.APIKey != "" {
		client, err := anthropic.NewClient(cfg.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("init Anthropic client: %w", err)
		}
		clients[domain.ProviderAnthropic] = client
	} else {
		logger.Info("Anthropic provider not configured, skipping")
	}

	if cfg.Google.APIKey != "" {
		client, err := google.NewClient(cfg.Google)
		if err != nil {
			return nil, fmt.Errorf("init Gemini client: %w", err)
		}
		clients[domain.ProviderGoogle] = client
	} else {
		logger.Info("Gemini provider not configured, skipping")
	}

	if cfg.Copilot.Token != "" {
		client, err := copilot.NewClient(cfg.Copilot)
		if err != nil {
			return nil, fmt.Errorf("init Copilot client: %w", err)
		}
		clients[domain.ProviderCopilot] = client
	} else {
		logger.Info("Copilot provider not configured, skipping")
	}

	// Ollama needs no credentials; the local daemon is always registered.
	clients[domain.ProviderOllama] = ollama.NewClient(cfg.Ollama)

	logger.Info("provider clients initialized", zap.Int("count", len(clients)))

	return clients, nil
}
