package domain

import (
	"errors"
	"fmt"
)

// Admission failures surfaced by the quota enforcer. None are recovered
// inside the core; callers map them to 403/429-class responses.
var (
	ErrAccountSuspended  = errors.New("account is suspended")
	ErrDailyLimit        = errors.New("daily request limit reached")
	ErrMonthlyTokenQuota = errors.New("monthly token quota reached")
	ErrConcurrencyLimit  = errors.New("concurrent job limit reached")
)

// ErrUnknownModel indicates a logical model absent from the registry. This
// is a programmer error, not a routing condition.
var ErrUnknownModel = errors.New("unknown model")

// ErrRouteExhausted indicates the router produced no usable candidate.
var ErrRouteExhausted = errors.New("no routable model")

// ErrUnknownUser indicates a user id absent from the directory.
var ErrUnknownUser = errors.New("unknown user")

// AllProvidersFailedError is the dispatcher's terminal failure after the
// full fallback chain is exhausted. It carries the last attempt's provider
// and message.
type AllProvidersFailedError struct {
	LastProvider string
	LastKind     ErrorKind
	LastMessage  string
	Attempts     int
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed after %d attempts (last: %s, %s): %s",
		e.Attempts, e.LastProvider, e.LastKind, e.LastMessage)
}

// IsQuotaError reports whether err is one of the admission failures.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrDailyLimit) ||
		errors.Is(err, ErrMonthlyTokenQuota) ||
		errors.Is(err, ErrConcurrencyLimit)
}
