package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/quota"
)

func freeUser() *domain.User {
	return &domain.User{ID: "user-1", Tier: domain.TierFree}
}

func proUser() *domain.User {
	return &domain.User{ID: "user-2", Tier: domain.TierPro}
}

func TestEnforcer_Admit(t *testing.T) {
	ctx := context.Background()

	t.Run("should admit a user under all limits", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		admission, err := enforcer.Admit(ctx, freeUser(), 0)

		require.NoError(t, err)
		require.NotNil(t, admission)

		active, err := counters.ActiveJobs(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, 1, active)

		admission.Release(ctx)
	})

	t.Run("should reject nil user", func(t *testing.T) {
		enforcer := quota.NewEnforcer(quota.NewMemoryCounter())

		_, err := enforcer.Admit(ctx, nil, 0)

		require.Error(t, err)
	})

	t.Run("should reject suspended accounts before any counter read", func(t *testing.T) {
		enforcer := quota.NewEnforcer(quota.NewMemoryCounter())
		user := freeUser()
		user.Suspended = true

		_, err := enforcer.Admit(ctx, user, 0)

		require.ErrorIs(t, err, domain.ErrAccountSuspended)
	})

	t.Run("should reject when the daily request limit is reached", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		// Free tier: 20 requests per day.
		for i := 0; i < 20; i++ {
			require.NoError(t, counters.CommitUsage(ctx, "user-1", 10))
		}

		_, err := enforcer.Admit(ctx, freeUser(), 0)

		require.ErrorIs(t, err, domain.ErrDailyLimit)
	})

	t.Run("should admit the last request under the daily limit", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		for i := 0; i < 19; i++ {
			require.NoError(t, counters.CommitUsage(ctx, "user-1", 10))
		}

		admission, err := enforcer.Admit(ctx, freeUser(), 0)

		require.NoError(t, err)
		admission.Release(ctx)
	})

	t.Run("should reject when the monthly token quota is reached", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		// Free tier: 20k tokens per month.
		require.NoError(t, counters.CommitUsage(ctx, "user-1", 20_000))

		_, err := enforcer.Admit(ctx, freeUser(), 0)

		require.ErrorIs(t, err, domain.ErrMonthlyTokenQuota)
	})

	t.Run("should count projected tokens against the monthly quota", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		require.NoError(t, counters.CommitUsage(ctx, "user-1", 19_000))

		_, err := enforcer.Admit(ctx, freeUser(), 1_500)

		require.ErrorIs(t, err, domain.ErrMonthlyTokenQuota)
	})

	t.Run("should admit a request that may overshoot the quota mid-flight", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)

		// 19,999 of 20,000 used: the call is admitted and its full token
		// consumption is billed on completion.
		require.NoError(t, counters.CommitUsage(ctx, "user-1", 19_999))

		admission, err := enforcer.Admit(ctx, freeUser(), 0)

		require.NoError(t, err)
		admission.Release(ctx)
	})

	t.Run("should fall back to free limits for unknown tiers", func(t *testing.T) {
		enforcer := quota.NewEnforcer(quota.NewMemoryCounter())

		rule := enforcer.Rule(domain.UserTier("enterprise"))

		require.Equal(t, enforcer.Rule(domain.TierFree), rule)
	})
}

func TestEnforcer_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject the request beyond the concurrency ceiling", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)
		user := proUser()

		// Pro tier: 5 concurrent jobs.
		admissions := make([]domain.Admission, 0, 5)
		for i := 0; i < 5; i++ {
			admission, err := enforcer.Admit(ctx, user, 0)
			require.NoError(t, err)
			admissions = append(admissions, admission)
		}

		_, err := enforcer.Admit(ctx, user, 0)
		require.ErrorIs(t, err, domain.ErrConcurrencyLimit)

		// The rejected attempt must not leak a slot.
		active, err := counters.ActiveJobs(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, 5, active)

		for _, admission := range admissions {
			admission.Release(ctx)
		}
	})

	t.Run("should admit again after a slot is released", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)
		user := freeUser()

		first, err := enforcer.Admit(ctx, user, 0)
		require.NoError(t, err)

		_, err = enforcer.Admit(ctx, user, 0)
		require.ErrorIs(t, err, domain.ErrConcurrencyLimit)

		first.Release(ctx)

		second, err := enforcer.Admit(ctx, user, 0)
		require.NoError(t, err)
		second.Release(ctx)
	})

	t.Run("should release at most once per admission", func(t *testing.T) {
		counters := quota.NewMemoryCounter()
		enforcer := quota.NewEnforcer(counters)
		user := proUser()

		first, err := enforcer.Admit(ctx, user, 0)
		require.NoError(t, err)
		second, err := enforcer.Admit(ctx, user, 0)
		require.NoError(t, err)

		first.Release(ctx)
		first.Release(ctx)
		first.Release(ctx)

		active, err := counters.ActiveJobs(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, 1, active)

		second.Release(ctx)
	})
}

func TestMemoryCounter_PeriodWindows(t *testing.T) {
	ctx := context.Background()

	t.Run("should reset daily counters at UTC midnight", func(t *testing.T) {
		now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
		counters := quota.NewMemoryCounterWithClock(func() time.Time { return now })

		require.NoError(t, counters.CommitUsage(ctx, "user-1", 100))
		daily, err := counters.DailyRequests(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, 1, daily)

		now = now.Add(2 * time.Minute) // past midnight

		daily, err = counters.DailyRequests(ctx, "user-1")
		require.NoError(t, err)
		require.Zero(t, daily)
	})

	t.Run("should reset monthly counters at month start", func(t *testing.T) {
		now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
		counters := quota.NewMemoryCounterWithClock(func() time.Time { return now })

		require.NoError(t, counters.CommitUsage(ctx, "user-1", 5_000))
		monthly, err := counters.MonthlyTokens(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, int64(5_000), monthly)

		now = time.Date(2025, 7, 1, 0, 0, 1, 0, time.UTC)

		monthly, err = counters.MonthlyTokens(ctx, "user-1")
		require.NoError(t, err)
		require.Zero(t, monthly)
	})

	t.Run("should keep the active job count period-free", func(t *testing.T) {
		now := time.Date(2025, 6, 30, 23, 59, 0, 0, time.UTC)
		counters := quota.NewMemoryCounterWithClock(func() time.Time { return now })

		_, err := counters.IncrActiveJobs(ctx, "user-1")
		require.NoError(t, err)

		now = now.Add(time.Hour) // into the next month

		active, err := counters.ActiveJobs(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, 1, active)
	})

	t.Run("should never decrement active jobs below zero", func(t *testing.T) {
		counters := quota.NewMemoryCounter()

		require.NoError(t, counters.DecrActiveJobs(ctx, "user-1"))

		active, err := counters.ActiveJobs(ctx, "user-1")
		require.NoError(t, err)
		require.Zero(t, active)
	})
}
