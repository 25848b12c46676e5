package domain

import (
	"context"
	"time"
)

// ProviderClient is the uniform async interface to one upstream LLM vendor.
// Generate never returns a Go error: every failure path yields a Result with
// ErrorKind set, a human-readable Message, and zero token counts.
type ProviderClient interface {
	// Generate translates the uniform message list into the vendor's native
	// request and executes it, bounded by the request timeout.
	Generate(ctx context.Context, req *GenerateRequest) Result

	// Name returns the provider tag.
	Name() string
}

// ModelRegistry resolves logical model names to entries. Read-only after
// process init.
type ModelRegistry interface {
	// Resolve returns the entry for a logical name, or ErrUnknownModel.
	Resolve(name string) (ModelEntry, error)

	// ResolveConcrete returns the entry whose vendor model id matches,
	// falling back to logical-name lookup.
	ResolveConcrete(concreteID string) (ModelEntry, error)

	// Has reports whether a logical name is registered.
	Has(name string) bool

	// ByTier returns entries of a tier in declaration order.
	ByTier(tier ModelTier) []ModelEntry

	// WithCapability returns entries matching the filter in declaration order.
	WithCapability(match func(Capability) bool) []ModelEntry

	// Entries returns all entries in declaration order.
	Entries() []ModelEntry
}

// HealthMonitor keeps rolling per-provider metrics and availability state.
// Implementations are safe for concurrent use.
type HealthMonitor interface {
	// Record atomically updates a provider's sample with one call outcome.
	Record(provider string, success bool, latency time.Duration, costUSD float64, kind ErrorKind)

	// IsAvailable reports whether a provider may be tried. A provider marked
	// down becomes available again after the re-probe window elapses; the
	// check clears the down state as a side effect so the next call reprobes.
	IsAvailable(provider string) bool

	// Best picks the best candidate provider for the given priority.
	Best(priority Priority, candidates []string) (string, error)

	// Report returns a snapshot of every observed provider.
	Report() map[string]ProviderSnapshot

	// Reset clears all samples (admin action).
	Reset()
}

// CostModel prices a completed call for the concrete model that served it.
type CostModel interface {
	// Price returns the USD cost rounded to 6 decimals. Unknown models use
	// the documented fallback rates; this never fails.
	Price(concreteModel string, inputTokens, outputTokens int) float64
}

// Admission is the handle returned by a successful quota check. Release
// must be called exactly once at call termination, including failure.
type Admission interface {
	Release(ctx context.Context)
}

// QuotaEnforcer performs pre-call admission by tier.
type QuotaEnforcer interface {
	// Admit checks suspension, daily, monthly, and concurrency limits. On
	// success the user's active-job count is incremented and the returned
	// Admission must be released by the caller.
	Admit(ctx context.Context, user *User, projectedTokens int64) (Admission, error)

	// Rule returns the quota rule for a tier.
	Rule(tier UserTier) QuotaRule
}

// UsageCounter tracks per-user rolling usage. Daily counters reset at UTC
// midnight, monthly at month start, both by period-keyed storage.
type UsageCounter interface {
	DailyRequests(ctx context.Context, userID string) (int, error)
	MonthlyTokens(ctx context.Context, userID string) (int64, error)
	ActiveJobs(ctx context.Context, userID string) (int, error)

	// IncrActiveJobs increments and returns the new in-flight count.
	IncrActiveJobs(ctx context.Context, userID string) (int, error)
	DecrActiveJobs(ctx context.Context, userID string) error

	// CommitUsage adds one request and the consumed tokens to the rolling
	// counters after a successful call.
	CommitUsage(ctx context.Context, userID string, tokens int64) error
}

// AccountingSink durably records billing outcomes. Record is idempotent
// under caller retries keyed by BillingRecord.RequestID.
type AccountingSink interface {
	Record(ctx context.Context, rec *BillingRecord) error
}

// UserDirectory persists user identity, tier, and suspension state.
type UserDirectory interface {
	// Get returns the user row, or ErrUnknownUser.
	Get(ctx context.Context, id string) (*User, error)

	// Upsert creates or replaces the user row.
	Upsert(ctx context.Context, user *User) error
}

// BillingQuerier exposes read access to recorded usage.
type BillingQuerier interface {
	ByUser(ctx context.Context, userID string, from, to time.Time) ([]*BillingRecord, error)
	TotalCostByUser(ctx context.Context, userID string, from, to time.Time) (float64, error)
}

// Router selects a logical model and fallback chain for a request.
type Router interface {
	Pick(ctx context.Context, agentName, lastUserMessage string, tier UserTier, modelHint string) (Route, error)
}

// EventPublisher publishes structured events for observability.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
