package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expense_ingest/internal/model"
)

// GatewayConfig configures an OpenAI-compatible chat completions endpoint.
type GatewayConfig struct {
	APIKey  string
	BaseURL string // e.g. https://ai.gateway.lovable.dev/v1
	Model   string
	Timeout time.Duration
}

// GatewayClient extracts expenses through a chat completions API.
type GatewayClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGatewayClient creates a chat completions extractor.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	return &GatewayClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract sends the message and category vocabulary to the model.
func (c *GatewayClient) Extract(ctx context.Context, text string, categories []model.Category) (*Candidate, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(categories)},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(body), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("%w: undecodable envelope: %v", ErrUnavailable, err)
	}
	if chat.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no completion returned", ErrUnavailable)
	}

	return ParseCandidate(chat.Choices[0].Message.Content)
}
