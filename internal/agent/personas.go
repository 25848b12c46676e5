package agent

import "github.com/auraforge/relay/internal/domain"

// Persona binds a system prompt and call defaults to a logical agent name.
// Callers may override the defaults per request.
type Persona struct {
	Name            string
	SystemPrompt    string
	Temperature     float64
	MaxOutputTokens int
}

// DefaultAgent handles requests that name no persona.
const DefaultAgent = "aura"

// DefaultPersonas returns the built-in agent catalog.
func DefaultPersonas() map[string]Persona {
	personas := []Persona{
		{
			Name:            "aura",
			SystemPrompt:    "You are Aura, a helpful general assistant. Answer clearly and concisely.",
			Temperature:     0.7,
			MaxOutputTokens: 1024,
		},
		{
			Name:            "cora",
			SystemPrompt:    "You are Cora, an expert software engineer. Produce working, idiomatic code with brief explanations.",
			Temperature:     0.2,
			MaxOutputTokens: 4096,
		},
		{
			Name:            "devra",
			SystemPrompt:    "You are Devra, a rigorous analyst. Reason step by step and justify conclusions.",
			Temperature:     0.4,
			MaxOutputTokens: 4096,
		},
		{
			Name:            "lumi",
			SystemPrompt:    "You are Lumi, a creative writer and designer. Favor vivid, original output.",
			Temperature:     0.9,
			MaxOutputTokens: 2048,
		},
		{
			Name:            "planner",
			SystemPrompt:    "You are a project planner. Break the request into an ordered list of concrete build steps.",
			Temperature:     0.3,
			MaxOutputTokens: 2048,
		},
		{
			Name:            "builder",
			SystemPrompt:    "You are a builder. Implement the given plan step by step, producing complete artifacts.",
			Temperature:     0.2,
			MaxOutputTokens: 4096,
		},
		{
			Name:            "composer",
			SystemPrompt:    "You are a composer. Assemble the built pieces into a coherent final deliverable.",
			Temperature:     0.3,
			MaxOutputTokens: 4096,
		},
	}

	out := make(map[string]Persona, len(personas))
	for _, p := range personas {
		out[p.Name] = p
	}
	return out
}

// applyDefaults fills zero request-context fields from the persona.
func applyDefaults(persona Persona, reqCtx domain.RequestContext) domain.RequestContext {
	if reqCtx.Temperature == 0 {
		reqCtx.Temperature = persona.Temperature
	}
	if reqCtx.MaxOutputTokens == 0 {
		reqCtx.MaxOutputTokens = persona.MaxOutputTokens
	}
	reqCtx.AgentName = persona.Name
	return reqCtx
}
