// Package copilot adapts GitHub Copilot's chat endpoint, which speaks the
// OpenAI chat-completions wire, through the OpenAI SDK with a different
// base URL and token. Text only; usage counts are estimated because the
// endpoint often omits them.
package copilot

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/provider"
)

// Config contains Copilot provider configuration.
type Config struct {
	Token   string `env:"COPILOT_TOKEN"`
	BaseURL string `env:"COPILOT_BASE_URL" envDefault:"https://api.githubcopilot.com"`
}

// Client implements the domain.ProviderClient interface for Copilot.
type Client struct {
	client openai.Client
	name   string
}

// NewClient creates a new Copilot provider client.
func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("Copilot token is required")
	}

	return &Client{
		client: openai.NewClient(
			option.WithAPIKey(config.Token),
			option.WithBaseURL(config.BaseURL),
		),
		name: domain.ProviderCopilot,
	}, nil
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return c.name
}

// Generate executes one chat completion.
func (c *Client) Generate(ctx context.Context, req *domain.GenerateRequest) domain.Result {
	if res, ok := provider.GateCapabilities(c.name, req.Model, req.Messages, req.Capabilities); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, provider.CallTimeout(req))
	defer cancel()

	logger := observability.FromContext(ctx)
	logger.Debug("calling Copilot API")

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Text()))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Text()))
		default:
			messages = append(messages, openai.UserMessage(msg.Text()))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		kind, msg := classify(err)
		logger.Warn("Copilot API call failed",
			observability.String("error_kind", string(kind)),
			observability.Error(err))
		return provider.Failure(c.name, req.Model, kind, msg)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	result := domain.Result{
		Provider:     c.name,
		Model:        req.Model,
		Message:      content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	provider.EnsureUsage(&result, req.Messages)

	return result
}

// classify maps SDK errors to the uniform error kinds.
func classify(err error) (domain.ErrorKind, string) {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return provider.ClassifyStatus(apierr.StatusCode), apierr.Error()
	}
	return provider.ClassifyErr(err), err.Error()
}
