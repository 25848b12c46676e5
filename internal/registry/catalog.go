package registry

import (
	"log"

	"github.com/auraforge/relay/internal/domain"
)

// DefaultCatalog returns the logical models the process ships with. Rates
// are USD per token. Declaration order matters: the router breaks tier ties
// by it, so the preferred model of each tier comes first.
func DefaultCatalog() []domain.ModelEntry {
	return []domain.ModelEntry{
		// Reasoning tier.
		{
			Name:         "o1",
			Provider:     domain.ProviderOpenAI,
			Tier:         domain.ModelTierReasoning,
			Capabilities: domain.Capability{Text: true, Reasoning: true, LongContext: true},
			InputRate:    15e-6,
			OutputRate:   60e-6,
			Fallbacks:    []string{"claude-opus-4", "gemini-2.5-pro", "gpt-4o", "gpt-4o-mini", "llama-3.1"},
		},
		{
			Name:         "claude-opus-4",
			Provider:     domain.ProviderAnthropic,
			ConcreteID:   "claude-opus-4-20250514",
			Tier:         domain.ModelTierReasoning,
			Capabilities: domain.Capability{Text: true, Vision: true, Reasoning: true, LongContext: true},
			InputRate:    15e-6,
			OutputRate:   75e-6,
			Fallbacks:    []string{"o1", "gemini-2.5-pro", "gpt-4o", "gpt-4o-mini", "llama-3.1"},
		},
		{
			Name:         "gemini-2.5-pro",
			Provider:     domain.ProviderGoogle,
			Tier:         domain.ModelTierReasoning,
			Capabilities: domain.Capability{Text: true, Vision: true, Audio: true, Reasoning: true, LongContext: true},
			InputRate:    1.25e-6,
			OutputRate:   10e-6,
			Fallbacks:    []string{"claude-opus-4", "gpt-4o", "gpt-4o-mini", "llama-3.1"},
		},

		// Normal (strong general) tier.
		{
			Name:         "gpt-4o",
			Provider:     domain.ProviderOpenAI,
			Tier:         domain.ModelTierNormal,
			Capabilities: domain.Capability{Text: true, Vision: true, Audio: true},
			InputRate:    2.5e-6,
			OutputRate:   10e-6,
			Fallbacks:    []string{"claude-sonnet-4", "gemini-2.0-flash", "gpt-4o-mini", "llama-3.1"},
		},
		{
			Name:         "claude-sonnet-4",
			Provider:     domain.ProviderAnthropic,
			ConcreteID:   "claude-sonnet-4-20250514",
			Tier:         domain.ModelTierNormal,
			Capabilities: domain.Capability{Text: true, Vision: true, LongContext: true},
			InputRate:    3e-6,
			OutputRate:   15e-6,
			Fallbacks:    []string{"gpt-4o", "gemini-2.0-flash", "gpt-4o-mini", "llama-3.1"},
		},

		// Vision tier.
		{
			Name:         "gemini-pro-vision",
			Provider:     domain.ProviderGoogle,
			ConcreteID:   "gemini-2.5-pro",
			Tier:         domain.ModelTierVision,
			Capabilities: domain.Capability{Text: true, Vision: true, Audio: true, LongContext: true},
			InputRate:    1.25e-6,
			OutputRate:   10e-6,
			Fallbacks:    []string{"gpt-4o", "llama-3.1"},
		},

		// Fast tier.
		{
			Name:         "gpt-4o-mini",
			Provider:     domain.ProviderOpenAI,
			Tier:         domain.ModelTierFast,
			Capabilities: domain.Capability{Text: true, Vision: true},
			InputRate:    5e-7,
			OutputRate:   1.5e-6,
			Fallbacks:    []string{"gemini-2.0-flash", "llama-3.1"},
		},
		{
			Name:         "gemini-2.0-flash",
			Provider:     domain.ProviderGoogle,
			Tier:         domain.ModelTierFast,
			Capabilities: domain.Capability{Text: true, Vision: true},
			InputRate:    1e-7,
			OutputRate:   4e-7,
			Fallbacks:    []string{"gpt-4o-mini", "llama-3.1"},
		},
		{
			// Copilot rides the subscription, so per-token rates are zero.
			Name:         "copilot-chat",
			Provider:     domain.ProviderCopilot,
			ConcreteID:   "gpt-4o",
			Tier:         domain.ModelTierFast,
			Capabilities: domain.Capability{Text: true},
			Fallbacks:    []string{"gpt-4o-mini", "llama-3.1"},
		},

		// Local terminator. Always available, free.
		{
			Name:            "llama-3.1",
			Provider:        domain.ProviderOllama,
			ConcreteID:      "llama3.1",
			Tier:            domain.ModelTierFast,
			Capabilities:    domain.Capability{Text: true},
			AlwaysAvailable: true,
		},
	}
}

// NewDefault creates a registry from the default catalog (DI constructor).
func NewDefault() domain.ModelRegistry {
	r, err := New(DefaultCatalog())
	if err != nil {
		// The default catalog is compiled in; a validation failure here is a
		// programming error.
		log.Fatalf("invalid default model catalog: %v", err)
	}
	return r
}
