// Package openai adapts the official OpenAI SDK to the uniform provider
// client contract: translate messages (including multimodal parts), bound
// the call by a timeout, classify failures, and never let an error escape
// as anything but a Result.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/provider"
)

// Config contains OpenAI provider configuration.
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"2"`
}

// Client implements the domain.ProviderClient interface for OpenAI.
type Client struct {
	client openai.Client
	name   string
}

// NewClient creates a new OpenAI provider client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Client{
		client: openai.NewClient(opts...),
		name:   domain.ProviderOpenAI,
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
	logger.Debug("calling OpenAI API")

	params := c.toSDKParams(req)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		kind, msg := classify(err)
		logger.Warn("OpenAI API call failed",
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
		Model:        string(resp.Model),
		Message:      content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	provider.EnsureUsage(&result, req.Messages)

	logger.Debug("OpenAI API call succeeded",
		observability.Int("input_tokens", result.InputTokens),
		observability.Int("output_tokens", result.OutputTokens),
	)

	return result
}

// classify maps SDK errors to the uniform error kinds.
func classify(err error) (domain.ErrorKind, string) {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		kind := provider.ClassifyStatus(apierr.StatusCode)
		if kind == domain.ErrKindOther && provider.IsTokenLimitMessage(apierr.Error()) {
			kind = domain.ErrKindTokenLimit
		}
		return kind, apierr.Error()
	}
	return provider.ClassifyErr(err), err.Error()
}

// toSDKParams converts the uniform request to SDK parameters.
func (c *Client) toSDKParams(req *domain.GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Text()))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Text()))
		default:
			if len(msg.Parts) == 0 {
				messages = append(messages, openai.UserMessage(msg.Content))
				continue
			}
			messages = append(messages, openai.UserMessage(toContentParts(msg.Parts)))
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

	return params
}

// toContentParts converts multimodal parts, preserving order. Images are
// inlined as base64 data URLs; audio as base64 with a declared format.
func toContentParts(parts []domain.Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case domain.PartImage:
			url := fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data))
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: url,
			}))
		case domain.PartAudio:
			out = append(out, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   base64.StdEncoding.EncodeToString(p.Data),
				Format: audioFormat(p.MIMEType),
			}))
		default:
			out = append(out, openai.TextContentPart(p.Text))
		}
	}
	return out
}

func audioFormat(mimeType string) string {
	if strings.Contains(mimeType, "wav") {
		return "wav"
	}
	return "mp3"
}
