// Package provider holds the pieces shared by every vendor client: failure
// construction, error classification, and capability gating. Each vendor
// package translates the uniform message list to its native wire format;
// nothing vendor-specific leaks out of those packages.
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/auraforge/relay/internal/domain"
)

// DefaultTimeout bounds a provider call when the request does not set one.
const DefaultTimeout = 30 * time.Second

// Failure builds the uniform failure result. Token counts are zero on
// failure by contract.
func Failure(providerName, model string, kind domain.ErrorKind, message string) domain.Result {
	return domain.Result{
		Provider:  providerName,
		Model:     model,
		Message:   message,
		ErrorKind: kind,
	}
}

// ClassifyStatus maps an HTTP status to an error kind.
func ClassifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrKindAuth
	case status == http.StatusTooManyRequests:
		return domain.ErrKindRateLimit
	case status == http.StatusRequestTimeout:
		return domain.ErrKindTimeout
	case status == http.StatusRequestEntityTooLarge:
		return domain.ErrKindTokenLimit
	case status >= 500:
		return domain.ErrKindNetwork
	default:
		return domain.ErrKindOther
	}
}

// ClassifyErr maps a transport-level error to an error kind.
func ClassifyErr(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.ErrKindNone
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return domain.ErrKindCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.ErrKindTimeout
		}
		return domain.ErrKindNetwork
	}

	if IsTokenLimitMessage(err.Error()) {
		return domain.ErrKindTokenLimit
	}

	return domain.ErrKindOther
}

// IsTokenLimitMessage detects context-window overflow by message text, the
// only signal some vendors give for it.
func IsTokenLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context window") ||
		strings.Contains(lower, "too many tokens") ||
		strings.Contains(lower, "maximum token")
}

// GateCapabilities rejects media the model cannot consume. Returns a
// failure result and false when the request must not be forwarded, so the
// router can fall over to a capable model.
func GateCapabilities(providerName, model string, messages []domain.Message, caps domain.Capability) (domain.Result, bool) {
	for _, m := range messages {
		for _, p := range m.Parts {
			if p.Kind == domain.PartImage && !caps.Vision {
				return Failure(providerName, model, domain.ErrKindOther,
					"capability unsupported: model cannot accept image input"), false
			}
			if p.Kind == domain.PartAudio && !caps.Audio {
				return Failure(providerName, model, domain.ErrKindOther,
					"capability unsupported: model cannot accept audio input"), false
			}
		}
	}
	return domain.Result{}, true
}

// CallTimeout returns the per-call timeout for a request.
func CallTimeout(req *domain.GenerateRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return DefaultTimeout
}

// EnsureUsage substitutes estimated token counts when a vendor omits usage
// on a successful call; a success never reports zero for non-empty text.
func EnsureUsage(res *domain.Result, messages []domain.Message) {
	if res.Failed() {
		return
	}
	if res.InputTokens == 0 {
		res.InputTokens = domain.EstimateInputTokens(messages)
	}
	if res.OutputTokens == 0 {
		res.OutputTokens = domain.EstimateTokens(res.Message)
	}
}
