package domain

import "time"

// Provider tags for the supported upstream vendors.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderCopilot   = "copilot"
)

// PartKind identifies the payload type of a message part.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartAudio PartKind = "audio"
)

// Part is one typed segment of a multimodal message. Text parts carry Text;
// image and audio parts carry raw bytes plus a MIME type the provider client
// inlines as base64 where the vendor requires.
type Part struct {
	Kind     PartKind `json:"kind"`
	Text     string   `json:"text,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	MIMEType string   `json:"mime_type,omitempty"`
}

// Message represents a chat message. Content is used for plain text; Parts
// takes precedence when set and its ordering is preserved across the chain.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`
}

// Text returns the textual content of the message, concatenating text parts
// when the message is multimodal.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// HasMedia reports whether the message carries image or audio parts.
func (m Message) HasMedia() bool {
	for _, p := range m.Parts {
		if p.Kind == PartImage || p.Kind == PartAudio {
			return true
		}
	}
	return false
}

// UserTier is the billing class of a user account.
type UserTier string

const (
	TierFree  UserTier = "free"
	TierPro   UserTier = "pro"
	TierUltra UserTier = "ultra"
)

// ModelTier is the coarse capability class of a logical model.
type ModelTier string

const (
	ModelTierFast      ModelTier = "fast"
	ModelTierNormal    ModelTier = "normal"
	ModelTierReasoning ModelTier = "reasoning"
	ModelTierVision    ModelTier = "vision"
)

// Capability flags describe what a logical model can consume.
type Capability struct {
	Text        bool
	Vision      bool
	Audio       bool
	LongContext bool
	Reasoning   bool
}

// ModelEntry is one logical model in the registry. Entries are populated at
// startup and immutable at runtime; the registry is the single source of
// truth for pricing, provider ownership, and capability flags.
type ModelEntry struct {
	Name            string // stable logical name, e.g. "gpt-4o"
	Provider        string // provider tag
	ConcreteID      string // vendor model string; defaults to Name
	Tier            ModelTier
	Capabilities    Capability
	InputRate       float64  // USD per input token
	OutputRate      float64  // USD per output token
	AlwaysAvailable bool     // local models that never go down
	Fallbacks       []string // ordered logical names; acyclic, ends always-available
}

// Concrete returns the vendor model identifier used on the wire.
func (e ModelEntry) Concrete() string {
	if e.ConcreteID != "" {
		return e.ConcreteID
	}
	return e.Name
}

// RequestContext carries per-request knobs supplied by the caller. Persona
// defaults fill the zero fields before dispatch.
type RequestContext struct {
	RequestID       string
	MaxOutputTokens int
	Temperature     float64
	VisionEnabled   bool
	UserTier        UserTier
	UserID          string
	AgentName       string
	ModelHint       string
}

// ErrorKind classifies a provider failure for routing and health decisions.
type ErrorKind string

const (
	ErrKindNone       ErrorKind = ""
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindTokenLimit ErrorKind = "token_limit"
	ErrKindNetwork    ErrorKind = "network"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindAuth       ErrorKind = "auth"
	ErrKindCancelled  ErrorKind = "cancelled"
	ErrKindOther      ErrorKind = "other"
)

// Result is the uniform shape every provider client returns, success or
// failure. No vendor-specific fields leak upward.
type Result struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"` // concrete id that served the request
	Message      string    `json:"message"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
}

// Failed reports whether the result represents a provider failure.
func (r Result) Failed() bool {
	return r.ErrorKind != ErrKindNone
}

// GenerateRequest is the provider-neutral call a client translates to the
// vendor's native wire format.
type GenerateRequest struct {
	Model           string // concrete vendor model id
	Messages        []Message
	MaxOutputTokens int
	Temperature     float64
	Capabilities    Capability
	Timeout         time.Duration
}

// QuotaRule holds the per-tier admission limits.
type QuotaRule struct {
	DailyRequests     int
	MonthlyTokens     int64
	MaxConcurrentJobs int
}

// User is the account record the quota enforcer and accounting sink operate
// on. Usage counters live in the counter store; this row carries identity
// and tier.
type User struct {
	ID        string
	Tier      UserTier
	Suspended bool
}

// BillingRecord is the single durable artifact produced per terminal
// outcome. Immutable once written; replays sharing a RequestID are
// deduplicated by the sink.
type BillingRecord struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	UserID        string    `json:"user_id"`
	AgentName     string    `json:"agent_name"`
	LogicalModel  string    `json:"logical_model"`
	Provider      string    `json:"provider"`
	ConcreteModel string    `json:"concrete_model"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	CostUSD       float64   `json:"cost_usd"`
	Success       bool      `json:"success"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Priority selects the optimization axis for health-based provider choice.
type Priority string

const (
	PriorityFastest  Priority = "fastest"
	PriorityCheapest Priority = "cheapest"
	PriorityReliable Priority = "reliable"
	PriorityBalanced Priority = "balanced"
)

// ProviderSnapshot is a point-in-time view of one provider's health sample.
type ProviderSnapshot struct {
	Total            int       `json:"total"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	RateLimitErrors  int       `json:"rate_limit_errors"`
	TokenLimitErrors int       `json:"token_limit_errors"`
	TimeoutErrors    int       `json:"timeout_errors"`
	TotalLatencyS    float64   `json:"total_latency_s"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	AvgLatencyS      float64   `json:"avg_latency_s"`
	AvgCostUSD       float64   `json:"avg_cost_usd"`
	ErrorRate        float64   `json:"error_rate"`
	LastSuccess      time.Time `json:"last_success,omitzero"`
	LastError        time.Time `json:"last_error,omitzero"`
	DownSince        time.Time `json:"down_since,omitzero"`
}

// Route is the router's decision: a primary logical model plus the ordered
// fallback chain consulted when the primary fails.
type Route struct {
	Primary string
	Chain   []string
}

// Candidates returns the primary followed by the chain.
func (r Route) Candidates() []string {
	out := make([]string, 0, len(r.Chain)+1)
	out = append(out, r.Primary)
	out = append(out, r.Chain...)
	return out
}
