package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter is the in-process counter store used when Redis is not
// configured. Daily and monthly counters are keyed by period so stale
// windows simply stop being read.
type MemoryCounter struct {
	mu      sync.Mutex
	daily   map[string]int
	monthly map[string]int64
	active  map[string]int
	now     func() time.Time
}

// NewMemoryCounter creates an in-memory counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		daily:   make(map[string]int),
		monthly: make(map[string]int64),
		active:  make(map[string]int),
		now:     time.Now,
	}
}

// NewMemoryCounterWithClock creates a store with an injected clock for
// tests.
func NewMemoryCounterWithClock(now func() time.Time) *MemoryCounter {
	c := NewMemoryCounter()
	c.now = now
	return c
}

func (c *MemoryCounter) dailyKey(userID string) string {
	return userID + ":" + c.now().UTC().Format("20060102")
}

func (c *MemoryCounter) monthlyKey(userID string) string {
	return userID + ":" + c.now().UTC().Format("200601")
}

// DailyRequests returns the request count for the current UTC day.
func (c *MemoryCounter) DailyRequests(_ context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daily[c.dailyKey(userID)], nil
}

// MonthlyTokens returns the token count for the current UTC month.
func (c *MemoryCounter) MonthlyTokens(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monthly[c.monthlyKey(userID)], nil
}

// ActiveJobs returns the current in-flight count.
func (c *MemoryCounter) ActiveJobs(_ context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[userID], nil
}

// IncrActiveJobs increments and returns the new in-flight count.
func (c *MemoryCounter) IncrActiveJobs(_ context.Context, userID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[userID]++
	return c.active[userID], nil
}

// DecrActiveJobs decrements the in-flight count, never below zero.
func (c *MemoryCounter) DecrActiveJobs(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[userID] > 0 {
		c.active[userID]--
	}
	return nil
}

// CommitUsage adds one request and the consumed tokens to the rolling
// counters.
func (c *MemoryCounter) CommitUsage(_ context.Context, userID string, tokens int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily[c.dailyKey(userID)]++
	c.monthly[c.monthlyKey(userID)] += tokens
	return nil
}
