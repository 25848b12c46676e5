// Package ollama speaks the local Ollama chat API directly. There is no
// official SDK; the wire is a small JSON POST. Local models are free and
// usually the always-available terminator of fallback chains.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/auraforge/relay/internal/domain"
	"github.com/auraforge/relay/internal/observability"
	"github.com/auraforge/relay/internal/provider"
)

// Config contains Ollama provider configuration.
type Config struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
}

// Client implements the domain.ProviderClient interface for Ollama.
type Client struct {
	baseURL    string
	httpClient *http.Client
	name       string
}

// NewClient creates a new Ollama provider client. One pooled HTTP client
// serves all calls.
func NewClient(config Config) *Client {
	return &Client{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{},
		name:       domain.ProviderOllama,
	}
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return c.name
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Generate executes one /api/chat call.
func (c *Client) Generate(ctx context.Context, req *domain.GenerateRequest) domain.Result {
	if res, ok := provider.GateCapabilities(c.name, req.Model, req.Messages, req.Capabilities); !ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, provider.CallTimeout(req))
	defer cancel()

	logger := observability.FromContext(ctx)
	logger.Debug("calling Ollama API")

	body, err := json.Marshal(c.toWireRequest(req))
	if err != nil {
		return provider.Failure(c.name, req.Model, domain.ErrKindOther,
			fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return provider.Failure(c.name, req.Model, domain.ErrKindOther,
			fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := provider.ClassifyErr(err)
		if kind == domain.ErrKindOther {
			kind = domain.ErrKindNetwork
		}
		logger.Warn("Ollama API call failed",
			observability.String("error_kind", string(kind)),
			observability.Error(err))
		return provider.Failure(c.name, req.Model, kind, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		kind := provider.ClassifyStatus(resp.StatusCode)
		return provider.Failure(c.name, req.Model, kind,
			fmt.Sprintf("Ollama API returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var wireResp chatResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&wireResp); decodeErr != nil {
		return provider.Failure(c.name, req.Model, domain.ErrKindOther,
			fmt.Sprintf("failed to decode response: %v", decodeErr))
	}

	result := domain.Result{
		Provider:     c.name,
		Model:        req.Model,
		Message:      wireResp.Message.Content,
		InputTokens:  wireResp.PromptEvalCount,
		OutputTokens: wireResp.EvalCount,
	}
	provider.EnsureUsage(&result, req.Messages)

	logger.Debug("Ollama API call succeeded",
		observability.Int("input_tokens", result.InputTokens),
		observability.Int("output_tokens", result.OutputTokens),
		observability.Duration("latency", time.Since(started)),
	)

	return result
}

// toWireRequest converts the uniform request. Image parts ride the
// message's images field as base64; Ollama has no audio input, which the
// capability gate rejects before this point.
func (c *Client) toWireRequest(req *domain.GenerateRequest) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		wire := chatMessage{
			Role:    msg.Role,
			Content: msg.Text(),
		}
		for _, p := range msg.Parts {
			if p.Kind == domain.PartImage {
				wire.Images = append(wire.Images, base64.StdEncoding.EncodeToString(p.Data))
			}
		}
		messages = append(messages, wire)
	}

	return chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxOutputTokens,
		},
	}
}
