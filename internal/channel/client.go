// Package channel sends outbound text messages through the WhatsApp Cloud API.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable wraps every transport or provider failure.
var ErrUnavailable = errors.New("messaging provider unavailable")

// Sender delivers a text message to a channel address.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Config holds the provider endpoint and credentials.
type Config struct {
	APIBase       string // e.g. https://graph.facebook.com/v17.0
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client is the HTTP implementation of Sender.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a WhatsApp Cloud API client.
func NewClient(cfg Config) *Client {
	return &Client{
		endpoint:    fmt.Sprintf("%s/%s/messages", cfg.APIBase, cfg.PhoneNumberID),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

type textBody struct {
	Body string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendText posts a plain text message. Any non-2xx answer is reported as ErrUnavailable.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
