// Package anthropic adapts the official Anthropic SDK to the uniform
// provider client contract.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/provider"
)

// The messages API requires max_tokens; applied when the request leaves it
// unset.
const defaultMaxTokens = 4096

// Config contains Anthropic provider configuration.
type Config struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL"`
}

// Client implements the domain.ProviderClient interface for Anthropic.
type Client struct {
	client anthropic.Client
	name   string
}

// NewClient creates a new Anthropic provider client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		name:   domain.ProviderAnthropic,
	}, nil
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return c.name
}

// Generate executes one messages call.
func (c *Client) Generate(ctx context.Context, req *domain.GenerateRequest) domain.Result {
	if res, ok := provider.GateCapabilities(c.name, req.Model, req.Messages, req.Capabilities); !ok {
		return res
	}

	// Anthropic has no audio input; gate it here rather than letting the
	// API reject it with an opaque 400.
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if p.Kind == domain.PartAudio {
				return provider.Failure(c.name, req.Model, domain.ErrKindOther,
					"capability unsupported: provider cannot accept audio input")
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, provider.CallTimeout(req))
	defer cancel()

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API")

	params := c.toSDKParams(req)

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		kind, msg := classify(err)
		logger.Warn("Anthropic API call failed",
			observability.String("error_kind", string(kind)),
			observability.Error(err))
		return provider.Failure(c.name, req.Model, kind, msg)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	result := domain.Result{
		Provider:     c.name,
		Model:        string(resp.Model),
		Message:      content,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	provider.EnsureUsage(&result, req.Messages)

	logger.Debug("Anthropic API call succeeded",
		observability.Int("input_tokens", result.InputTokens),
		observability.Int("output_tokens", result.OutputTokens),
	)

	return result
}

// classify maps SDK errors to the uniform error kinds.
func classify(err error) (domain.ErrorKind, string) {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		kind := provider.ClassifyStatus(apierr.StatusCode)
		if kind == domain.ErrKindOther && provider.IsTokenLimitMessage(apierr.Error()) {
			kind = domain.ErrKindTokenLimit
		}
		return kind, apierr.Error()
	}
	return provider.ClassifyErr(err), err.Error()
}

// toSDKParams converts the uniform request to SDK parameters. System
// messages move to the dedicated system field, as the messages API
// requires.
func (c *Client) toSDKParams(req *domain.GenerateRequest) anthropic.MessageNewParams {
	var system string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system += msg.Text()
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text())))
		default:
			messages = append(messages, anthropic.NewUserMessage(toContentBlocks(msg)...))
		}
	}

	maxTokens := int64(req.MaxOutputTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	return params
}

// toContentBlocks converts one message's parts, preserving order. Images
// are inlined as base64 blocks.
func toContentBlocks(msg domain.Message) []anthropic.ContentBlockParamUnion {
	if len(msg.Parts) == 0 {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Kind {
		case domain.PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MIMEType,
				base64.StdEncoding.EncodeToString(p.Data)))
		default:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		}
	}
	return blocks
}
