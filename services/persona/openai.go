package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"nudfans-backend/apperrors"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
	openaiMaxRetries  = 3
	openaiRetryDelay  = 500 * time.Millisecond
	maxResponseLength = 1 << 20
)

// OpenAIClient calls an OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func unavailable(err error) error {
	return apperrors.Wrap(apperrors.KindLLMUnavailable, apperrors.ErrLLMUnavailable.Code, apperrors.ErrLLMUnavailable.Message, err)
}

func (c *OpenAIClient) GenerateReply(ctx context.Context, p Persona, history []Turn, message string) (string, error) {
	if c.apiKey == "" {
		return "", unavailable(fmt.Errorf("LLM_API_KEY not set"))
	}

	messages := make([]Turn, 0, len(history)+2)
	messages = append(messages, Turn{Role: RoleSystem, Content: p.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Turn{Role: RoleUser, Content: message})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", unavailable(fmt.Errorf("failed to marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt < openaiMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * openaiRetryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", unavailable(ctx.Err())
			}
		}

		reply, retry, err := c.do(ctx, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return "", unavailable(lastErr)
}

func (c *OpenAIClient) do(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return "", true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr openaiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("LLM API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		} else {
			err = fmt.Errorf("LLM API error (%d)", resp.StatusCode)
		}
		return "", resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, err
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", false, fmt.Errorf("LLM returned no choices")
	}
	return out.Choices[0].Message.Content, false, nil
}
