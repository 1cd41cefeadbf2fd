package extraction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClient_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"amount\": 18.5, \"description\": \"padaria\", \"category_name\": \"Food\"}"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "key-1",
		Model:   "gemini-2.5-flash",
		BaseURL: server.URL,
		Timeout: time.Second,
	})
	require.NoError(t, err)

	c, err := client.Extract(context.Background(), "padaria 18,50", foodCategories)
	require.NoError(t, err)
	assert.Equal(t, "18.50", c.Amount.Decimal.StringFixed(2))
	assert.Equal(t, "padaria", c.Description)
}

func TestGeminiClient_Extract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "key-1", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}
