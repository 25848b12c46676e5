package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/auraforge/relay/internal/agent"
	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	dispatcher *agent.Dispatcher
	pipeline   *agent.Pipeline
	health     domain.HealthMonitor
	billing    domain.BillingQuerier
	users      domain.UserDirectory
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	dispatcher *agent.Dispatcher,
	pipeline *agent.Pipeline,
	health domain.HealthMonitor,
	billing domain.BillingQuerier,
	users domain.UserDirectory,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		pipeline:   pipeline,
		health:     health,
		billing:    billing,
		users:      users,
	}
}

// resolveUser returns the stored user row, registering first-time callers
// with the requested tier. A stored row wins over the request body, so a
// suspension cannot be shed by re-declaring a tier.
func (h *Handler) resolveUser(ctx context.Context, userID string, tier domain.UserTier) (*domain.User, error) {
	user, err := h.users.Get(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUnknownUser) {
		return nil, err
	}

	user = &domain.User{ID: userID, Tier: tier}
	if err := h.users.Upsert(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChatRequest is the body for POST /v1/chat.
type ChatRequest struct {
	Agent     string          `json:"agent"`
	Message   string          `json:"message"`
	UserID    string          `json:"user_id"`
	Tier      domain.UserTier `json:"tier"`
	Model     string          `json:"model,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// HandleChat runs one agent request end to end.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Tier == "" {
		req.Tier = domain.TierFree
	}

	logger := observability.FromContext(ctx)
	logger.Info("chat request received",
		zap.String("agent", req.Agent),
		zap.String("user_id", req.UserID),
		zap.String("tier", string(req.Tier)),
	)

	user, err := h.resolveUser(ctx, req.UserID, req.Tier)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	reqCtx := domain.RequestContext{
		RequestID: req.RequestID,
		ModelHint: req.Model,
	}

	result, err := h.dispatcher.Handle(ctx, req.Agent, req.Message, reqCtx, user)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	logger.Info("chat request succeeded",
		zap.String("provider", result.Provider),
		zap.String("model", result.Model),
		zap.Int("output_tokens", result.OutputTokens),
	)

	h.writeJSON(ctx, w, result)
}

// BuildRequest is the body for POST /v1/build.
type BuildRequest struct {
	Message string          `json:"message"`
	UserID  string          `json:"user_id"`
	Tier    domain.UserTier `json:"tier"`
}

// BuildResponse carries the per-stage outputs of a build pipeline run.
type BuildResponse struct {
	Stages []agent.StageResult `json:"stages"`
}

// HandleBuild runs the planner/builder/composer pipeline.
func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Tier == "" {
		req.Tier = domain.TierFree
	}

	user, err := h.resolveUser(ctx, req.UserID, req.Tier)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	stages, err := h.pipeline.RunBuild(ctx, req.Message, domain.RequestContext{}, user)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, BuildResponse{Stages: stages})
}

// UsageResponse summarizes a user's recorded spend for a window.
type UsageResponse struct {
	UserID       string                  `json:"user_id"`
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	TotalCostUSD float64                 `json:"total_cost_usd"`
	Records      []*domain.BillingRecord `json:"records"`
}

// HandleUsage serves GET /v1/usage?user_id=&from=&to=.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid from: %v", err), http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid to: %v", err), http.StatusBadRequest)
			return
		}
		to = parsed
	}

	records, err := h.billing.ByUser(ctx, userID, from, to)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	total, err := h.billing.TotalCostByUser(ctx, userID, from, to)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, UsageResponse{
		UserID:       userID,
		From:         from,
		To:           to,
		TotalCostUSD: total,
		Records:      records,
	})
}

// HandleProviderHealth serves GET /v1/admin/health.
func (h *Handler) HandleProviderHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(r.Context(), w, h.health.Report())
}

// HandleBest serves GET /v1/admin/best?priority=.
func (h *Handler) HandleBest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	priority := domain.Priority(r.URL.Query().Get("priority"))
	if priority == "" {
		priority = domain.PriorityBalanced
	}

	report := h.health.Report()
	candidates := make([]string, 0, len(report))
	for name := range report {
		candidates = append(candidates, name)
	}

	best, err := h.health.Best(priority, candidates)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(r.Context(), w, map[string]string{
		"priority": string(priority),
		"provider": best,
	})
}

// SuspendRequest is the body for POST /v1/admin/suspend.
type SuspendRequest struct {
	UserID    string `json:"user_id"`
	Suspended bool   `json:"suspended"`
}

// HandleSuspend flips a user's suspension flag.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	user, err := h.users.Get(ctx, req.UserID)
	if errors.Is(err, domain.ErrUnknownUser) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	user.Suspended = req.Suspended
	if err := h.users.Upsert(ctx, user); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	observability.FromContext(ctx).Info("user suspension updated",
		zap.String("user_id", user.ID),
		zap.Bool("suspended", user.Suspended),
	)

	h.writeJSON(ctx, w, user)
}

// HandleHealthReset serves POST /v1/admin/reset.
func (h *Handler) HandleHealthReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.health.Reset()
	h.writeJSON(r.Context(), w, map[string]string{"status": "reset"})
}

// HandleHealth handles liveness check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.FromContext(ctx).Error("failed to encode response", zap.Error(err))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx)

	status := http.StatusInternalServerError
	var exhausted *domain.AllProvidersFailedError
	switch {
	case errors.Is(err, domain.ErrAccountSuspended):
		status = http.StatusForbidden
	case domain.IsQuotaError(err):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnknownModel), errors.Is(err, domain.ErrRouteExhausted):
		status = http.StatusBadRequest
	case errors.As(err, &exhausted):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}
