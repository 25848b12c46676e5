// Package google adapts the Gemini SDK to the uniform provider client
// contract.
package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/provider"
)

// Config contains Google provider configuration.
type Config struct {
	APIKey string `env:"GEMINI_API_KEY"`
}

// Client implements the domain.ProviderClient interface for Gemini.
type Client struct {
	client *genai.Client
	name   string
}

// NewClient creates a new Google provider client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client: client,
		name:   domain.ProviderGoogle,
	}, nil
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return c.name
}

// Generate executes one generateContent call.
func (c *Client) Generate(ctx context.Context, req *domain.GenerateRequest) domain.Result {
	if res, ok := provider.GateCapabilities(c.name, req.Model, req.Messages, req.Capabilities); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, provider.CallTimeout(req))
	defer cancel()

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini API")

	contents, cfg := c.toSDKParams(req)

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		kind, msg := classify(err)
		logger.Warn("Gemini API call failed",
			observability.String("error_kind", string(kind)),
			observability.Error(err))
		return provider.Failure(c.name, req.Model, kind, msg)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return provider.Failure(c.name, req.Model, domain.ErrKindOther,
			"Gemini returned no candidates")
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			content += part.Text
		}
	}

	result := domain.Result{
		Provider: c.name,
		Model:    req.Model,
		Message:  content,
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	provider.EnsureUsage(&result, req.Messages)

	logger.Debug("Gemini API call succeeded",
		observability.Int("input_tokens", result.InputTokens),
		observability.Int("output_tokens", result.OutputTokens),
	)

	return result
}

// classify maps SDK errors to the uniform error kinds.
func classify(err error) (domain.ErrorKind, string) {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		kind := provider.ClassifyStatus(apierr.Code)
		if kind == domain.ErrKindOther && provider.IsTokenLimitMessage(apierr.Message) {
			kind = domain.ErrKindTokenLimit
		}
		return kind, apierr.Error()
	}
	return provider.ClassifyErr(err), err.Error()
}

// toSDKParams converts the uniform request. System messages become the
// system instruction; assistant turns map to the "model" role.
func (c *Client) toSDKParams(req *domain.GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Text()}},
			}
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Text()}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: toSDKParts(msg),
			})
		}
	}

	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	return contents, cfg
}

// toSDKParts converts one message's parts, preserving order. Media is
// forwarded as inline blobs.
func toSDKParts(msg domain.Message) []*genai.Part {
	if len(msg.Parts) == 0 {
		return []*genai.Part{{Text: msg.Content}}
	}

	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Kind {
		case domain.PartImage, domain.PartAudio:
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: p.MIMEType,
					Data:     p.Data,
				},
			})
		default:
			parts = append(parts, &genai.Part{Text: p.Text})
		}
	}
	return parts
}
