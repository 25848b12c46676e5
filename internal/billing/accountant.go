// Package billing durably records one billing record per terminal request
// outcome and settles the user's rolling usage counters. Records are
// immutable once written; replays sharing a request id write at most one
// record.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
)

// Store is the durable append-only record store behind the accountant.
type Store interface {
	// Insert writes a record unless one with the same request id exists.
	// Returns false when the record was deduplicated.
	Insert(ctx context.Context, rec *domain.BillingRecord) (bool, error)

	// ByUser returns records for a user in a time range, newest first.
	ByUser(ctx context.Context, userID string, from, to time.Time) ([]*domain.BillingRecord, error)

	// TotalCostByUser sums recorded cost for a user in a time range.
	TotalCostByUser(ctx context.Context, userID string, from, to time.Time) (float64, error)
}

// Accountant implements the domain.AccountingSink interface. On a
// successful outcome it also commits the request and token usage to the
// quota counters; deduplicated replays commit nothing.
type Accountant struct {
	store    Store
	counters domain.UsageCounter
}

// NewAccountant creates a new accountant (DI constructor).
func NewAccountant(store Store, counters domain.UsageCounter) *Accountant {
	return &Accountant{
		store:    store,
		counters: counters,
	}
}

// Record persists a billing record and settles usage counters.
func (a *Accountant) Record(ctx context.Context, rec *domain.BillingRecord) error {
	if rec == nil {
		return fmt.Errorf("billing record cannot be nil")
	}
	if rec.RequestID == "" {
		return fmt.Errorf("billing record requires a request id")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	inserted, err := a.store.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to record billing entry: %w", err)
	}
	if !inserted {
		observability.FromContext(ctx).Info("billing record deduplicated",
			observability.String("billing_request_id", rec.RequestID))
		return nil
	}

	if rec.Success {
		tokens := int64(rec.InputTokens + rec.OutputTokens)
		if commitErr := a.counters.CommitUsage(ctx, rec.UserID, tokens); commitErr != nil {
			return fmt.Errorf("failed to commit usage counters: %w", commitErr)
		}
	}

	return nil
}

// ByUser returns records for a user in a time range.
func (a *Accountant) ByUser(ctx context.Context, userID string, from, to time.Time) ([]*domain.BillingRecord, error) {
	return a.store.ByUser(ctx, userID, from, to)
}

// TotalCostByUser sums recorded cost for a user in a time range.
func (a *Accountant) TotalCostByUser(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	return a.store.TotalCostByUser(ctx, userID, from, to)
}
