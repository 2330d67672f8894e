// Package llm provides the chat-completion client and the two model roles
// built on it: the controller that decides what the engine does next, and
// the reader that summarizes single documents. Both roles run in JSON mode
// against an OpenAI-compatible endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *CircuitBreaker
	options    ChatOptions
}

// ChatOptions configures completion requests.
type ChatOptions struct {
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// chatRequest is the OpenAI-style wire request. ResponseFormat pins the
// model to JSON output so downstream parsing has a fighting chance.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the OpenAI-style wire response.
type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewChatClient creates a chat client for one model role.
func NewChatClient(baseURL, apiKey, model string, options *ChatOptions) *ChatClient {
	if options == nil {
		options = &ChatOptions{
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		}
	}
	if options.Timeout <= 0 {
		options.Timeout = 2 * time.Minute
	}

	return &ChatClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: options.Timeout,
		},
		breaker: NewCircuitBreaker(),
		options: *options,
	}
}

// Complete performs a JSON-mode chat completion and returns the raw
// assistant text. Transport and protocol failures come back as
// TransportError so callers can decide what is retryable.
func (c *ChatClient) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if !c.breaker.CanExecute() {
		return "", domain.NewTransportError("chat", fmt.Errorf("circuit breaker %s", c.breaker.GetState()))
	}

	req := chatRequest{
		Model:          c.model,
		Messages:       c.convertMessages(messages),
		Temperature:    c.options.Temperature,
		MaxTokens:      c.options.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		fmt.Sprintf("%s/chat/completions", c.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		return "", domain.NewTransportError("chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		respBody, _ := io.ReadAll(resp.Body)
		return "", domain.NewTransportError("chat",
			fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		c.breaker.RecordFailure()
		return "", domain.NewTransportError("chat", fmt.Errorf("failed to decode response: %w", err))
	}

	if len(completion.Choices) == 0 {
		c.breaker.RecordFailure()
		return "", domain.NewTransportError("chat", fmt.Errorf("response contained no choices"))
	}

	c.breaker.RecordSuccess()
	return completion.Choices[0].Message.Content, nil
}

// CheckHealth verifies the completion endpoint is accessible
func (c *ChatClient) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(
		ctx,
		"GET",
		fmt.Sprintf("%s/models", c.baseURL),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completion endpoint unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

func (c *ChatClient) convertMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		out[i] = chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return out
}
