// Package quota implements pre-call admission by user tier: daily request
// caps, monthly token quotas, and a concurrency ceiling. Counters are
// period-keyed so daily windows roll at UTC midnight and monthly windows at
// month start without a reset job.
package quota

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
)

// DefaultRules returns the contract limits per tier.
func DefaultRules() map[domain.UserTier]domain.QuotaRule {
	return map[domain.UserTier]domain.QuotaRule{
		domain.TierFree:  {DailyRequests: 20, MonthlyTokens: 20_000, MaxConcurrentJobs: 1},
		domain.TierPro:   {DailyRequests: 200, MonthlyTokens: 500_000, MaxConcurrentJobs: 5},
		domain.TierUltra: {DailyRequests: 2000, MonthlyTokens: 5_000_000, MaxConcurrentJobs: 20},
	}
}

// Enforcer implements the domain.QuotaEnforcer interface.
type Enforcer struct {
	counters domain.UsageCounter
	rules    map[domain.UserTier]domain.QuotaRule
}

// NewEnforcer creates a quota enforcer with the default tier rules
// (DI constructor).
func NewEnforcer(counters domain.UsageCounter) *Enforcer {
	return &Enforcer{
		counters: counters,
		rules:    DefaultRules(),
	}
}

// NewEnforcerWithRules creates an enforcer with custom rules.
func NewEnforcerWithRules(counters domain.UsageCounter, rules map[domain.UserTier]domain.QuotaRule) *Enforcer {
	return &Enforcer{
		counters: counters,
		rules:    rules,
	}
}

// Rule returns the quota rule for a tier. Unknown tiers get the free rule.
func (e *Enforcer) Rule(tier domain.UserTier) domain.QuotaRule {
	if rule, ok := e.rules[tier]; ok {
		return rule
	}
	return e.rules[domain.TierFree]
}

// Admit checks suspension, daily, monthly, and concurrency limits in that
// order. On success the user's in-flight count is incremented; the returned
// admission must be released at call termination, including failure.
func (e *Enforcer) Admit(ctx context.Context, user *domain.User, projectedTokens int64) (domain.Admission, error) {
	if user == nil {
		return nil, fmt.Errorf("user cannot be nil")
	}

	if user.Suspended {
		return nil, domain.ErrAccountSuspended
	}

	rule := e.Rule(user.Tier)

	daily, err := e.counters.DailyRequests(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily counter: %w", err)
	}
	if daily >= rule.DailyRequests {
		return nil, domain.ErrDailyLimit
	}

	monthly, err := e.counters.MonthlyTokens(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read monthly counter: %w", err)
	}
	if monthly+projectedTokens >= rule.MonthlyTokens {
		return nil, domain.ErrMonthlyTokenQuota
	}

	// Increment-then-check keeps the concurrency ceiling atomic across
	// racing tasks and distributed counters alike.
	active, err := e.counters.IncrActiveJobs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve job slot: %w", err)
	}
	if active > rule.MaxConcurrentJobs {
		if decrErr := e.counters.DecrActiveJobs(ctx, user.ID); decrErr != nil {
			observability.FromContext(ctx).Warn("failed to roll back job slot",
				observability.Error(decrErr))
		}
		return nil, domain.ErrConcurrencyLimit
	}

	return &admission{userID: user.ID, counters: e.counters}, nil
}

// admission is the capacity reservation for one request. Release is
// idempotent: at most one decrement per admission.
type admission struct {
	userID   string
	counters domain.UsageCounter
	released atomic.Bool
}

// Release returns the reserved job slot.
func (a *admission) Release(ctx context.Context) {
	if !a.released.CompareAndSwap(false, true) {
		return
	}
	if err := a.counters.DecrActiveJobs(ctx, a.userID); err != nil {
		observability.FromContext(ctx).Warn("failed to release job slot",
			observability.Error(err))
	}
}
