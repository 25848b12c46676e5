// Package agent binds personas to requests and orchestrates the full call
// path: route, admit, resolve, execute with fallback, price, observe,
// account. The dispatcher is safe for concurrent use; all mutable state
// lives in the injected components.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
)

// Dispatcher implements the core entry point: run agent X on message Y for
// user Z. Components are injected; tests construct a Dispatcher with stubs
// without patching globals.
type Dispatcher struct {
	registry domain.ModelRegistry
	router   domain.Router
	quota    domain.QuotaEnforcer
	health   domain.HealthMonitor
	cost     domain.CostModel
	sink     domain.AccountingSink
	clients  map[string]domain.ProviderClient
	events   domain.EventPublisher
	personas map[string]Persona
	timeout  time.Duration
}

// NewDispatcher creates a new dispatcher (DI constructor). callTimeout
// bounds each provider attempt; zero means the provider default.
func NewDispatcher(
	registry domain.ModelRegistry,
	router domain.Router,
	quota domain.QuotaEnforcer,
	health domain.HealthMonitor,
	cost domain.CostModel,
	sink domain.AccountingSink,
	clients map[string]domain.ProviderClient,
	events domain.EventPublisher,
	callTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		router:   router,
		quota:    quota,
		health:   health,
		cost:     cost,
		sink:     sink,
		clients:  clients,
		events:   events,
		personas: DefaultPersonas(),
		timeout:  callTimeout,
	}
}

// Handle runs one request end to end and returns the provider result that
// served it. Exactly one billing record is written per call, the admission
// is always released, and cancellation between attempts aborts the chain.
func (d *Dispatcher) Handle(
	ctx context.Context,
	agentName, message string,
	reqCtx domain.RequestContext,
	user *domain.User,
) (*domain.Result, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	persona, ok := d.personas[agentName]
	if !ok {
		persona = d.personas[DefaultAgent]
	}
	reqCtx = applyDefaults(persona, reqCtx)
	reqCtx.UserID = user.ID
	reqCtx.UserTier = user.Tier
	if reqCtx.RequestID == "" {
		reqCtx.RequestID = uuid.New().String()
	}

	ctx = observability.WithRequestID(ctx, reqCtx.RequestID)
	ctx = observability.WithUserID(ctx, user.ID)
	ctx = observability.WithAgent(ctx, persona.Name)
	logger := observability.FromContext(ctx)

	route, err := d.router.Pick(ctx, persona.Name, message, user.Tier, reqCtx.ModelHint)
	if err != nil {
		return nil, fmt.Errorf("routing failed: %w", err)
	}

	admission, err := d.quota.Admit(ctx, user, 0)
	if err != nil {
		logger.Info("admission denied", observability.Error(err))
		return nil, err
	}

	messages := []domain.Message{
		{Role: "system", Content: persona.SystemPrompt},
		{Role: "user", Content: message},
	}

	return d.runChain(ctx, route, messages, reqCtx, admission)
}

// HandleMessages is Handle for callers that build their own message list
// (multimodal input, prior turns). The last user message drives routing.
func (d *Dispatcher) HandleMessages(
	ctx context.Context,
	agentName string,
	messages []domain.Message,
	reqCtx domain.RequestContext,
	user *domain.User,
) (*domain.Result, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	persona, ok := d.personas[agentName]
	if !ok {
		persona = d.personas[DefaultAgent]
	}
	reqCtx = applyDefaults(persona, reqCtx)
	reqCtx.UserID = user.ID
	reqCtx.UserTier = user.Tier
	if reqCtx.RequestID == "" {
		reqCtx.RequestID = uuid.New().String()
	}

	ctx = observability.WithRequestID(ctx, reqCtx.RequestID)
	ctx = observability.WithUserID(ctx, user.ID)
	ctx = observability.WithAgent(ctx, persona.Name)

	route, err := d.router.Pick(ctx, persona.Name, lastUserText(messages), user.Tier, reqCtx.ModelHint)
	if err != nil {
		return nil, fmt.Errorf("routing failed: %w", err)
	}

	admission, err := d.quota.Admit(ctx, user, 0)
	if err != nil {
		return nil, err
	}

	withSystem := make([]domain.Message, 0, len(messages)+1)
	withSystem = append(withSystem, domain.Message{Role: "system", Content: persona.SystemPrompt})
	withSystem = append(withSystem, messages...)

	return d.runChain(ctx, route, withSystem, reqCtx, admission)
}

// runChain walks the primary and its fallback chain until a provider
// succeeds, the chain exhausts, or the caller cancels.
func (d *Dispatcher) runChain(
	ctx context.Context,
	route domain.Route,
	messages []domain.Message,
	reqCtx domain.RequestContext,
	admission domain.Admission,
) (*domain.Result, error) {
	logger := observability.FromContext(ctx)

	var lastFailure domain.Result
	attempts := 0

	for _, candidate := range route.Candidates() {
		if ctx.Err() != nil {
			return nil, d.cancelled(ctx, reqCtx, candidate, admission)
		}

		entry, err := d.registry.Resolve(candidate)
		if err != nil {
			logger.Warn("chain references unknown model",
				observability.String("model", candidate))
			continue
		}

		client, ok := d.clients[entry.Provider]
		if !ok {
			logger.Debug("provider not configured, skipping",
				observability.String("provider", entry.Provider))
			continue
		}

		if !entry.AlwaysAvailable && !d.health.IsAvailable(entry.Provider) {
			logger.Info("provider marked down, skipping",
				observability.String("provider", entry.Provider))
			continue
		}

		genReq := &domain.GenerateRequest{
			Model:           entry.Concrete(),
			Messages:        messages,
			MaxOutputTokens: reqCtx.MaxOutputTokens,
			Temperature:     reqCtx.Temperature,
			Capabilities:    entry.Capabilities,
			Timeout:         d.timeout,
		}

		attempts++
		started := time.Now()
		result := client.Generate(ctx, genReq)
		latency := time.Since(started)

		if !result.Failed() {
			cost := d.cost.Price(result.Model, result.InputTokens, result.OutputTokens)
			d.health.Record(entry.Provider, true, latency, cost, domain.ErrKindNone)
			admission.Release(ctx)

			d.account(ctx, &domain.BillingRecord{
				RequestID:     reqCtx.RequestID,
				UserID:        reqCtx.UserID,
				AgentName:     reqCtx.AgentName,
				LogicalModel:  entry.Name,
				Provider:      entry.Provider,
				ConcreteModel: result.Model,
				InputTokens:   result.InputTokens,
				OutputTokens:  result.OutputTokens,
				CostUSD:       cost,
				Success:       true,
				LatencyMs:     latency.Milliseconds(),
			})

			d.publish(ctx, "request_completed", map[string]interface{}{
				"agent":    reqCtx.AgentName,
				"model":    entry.Name,
				"provider": entry.Provider,
				"cost_usd": cost,
				"attempts": attempts,
			})

			return &result, nil
		}

		d.health.Record(entry.Provider, false, latency, 0, result.ErrorKind)
		lastFailure = result
		logger.Warn("provider attempt failed",
			observability.String("provider", entry.Provider),
			observability.String("error_kind", string(result.ErrorKind)),
			observability.String("detail", result.Message))

		if ctx.Err() != nil {
			return nil, d.cancelled(ctx, reqCtx, candidate, admission)
		}
	}

	admission.Release(ctx)

	d.account(ctx, &domain.BillingRecord{
		RequestID:     reqCtx.RequestID,
		UserID:        reqCtx.UserID,
		AgentName:     reqCtx.AgentName,
		LogicalModel:  route.Primary,
		Provider:      lastFailure.Provider,
		ConcreteModel: lastFailure.Model,
		Success:       false,
		ErrorKind:     lastFailure.ErrorKind,
	})

	return nil, &domain.AllProvidersFailedError{
		LastProvider: lastFailure.Provider,
		LastKind:     lastFailure.ErrorKind,
		LastMessage:  lastFailure.Message,
		Attempts:     attempts,
	}
}

// cancelled handles caller cancellation: release the admission, write the
// terminal record, propagate the context error.
func (d *Dispatcher) cancelled(
	ctx context.Context,
	reqCtx domain.RequestContext,
	candidate string,
	admission domain.Admission,
) error {
	admission.Release(context.WithoutCancel(ctx))

	d.account(context.WithoutCancel(ctx), &domain.BillingRecord{
		RequestID:    reqCtx.RequestID,
		UserID:       reqCtx.UserID,
		AgentName:    reqCtx.AgentName,
		LogicalModel: candidate,
		Success:      false,
		ErrorKind:    domain.ErrKindCancelled,
	})

	return ctx.Err()
}

// account writes the terminal billing record. Accounting failures are
// logged, not surfaced: the provider outcome has already happened.
func (d *Dispatcher) account(ctx context.Context, rec *domain.BillingRecord) {
	if err := d.sink.Record(ctx, rec); err != nil {
		observability.FromContext(ctx).Error("failed to record billing entry",
			observability.Error(err))
	}
}

func (d *Dispatcher) publish(ctx context.Context, event string, data map[string]interface{}) {
	if d.events != nil {
		d.events.Publish(ctx, event, data)
	}
}

// lastUserText returns the text of the last user message for routing.
func lastUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text()
		}
	}
	return ""
}
