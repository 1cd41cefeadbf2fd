package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"expense_ingest/internal/model"
	"expense_ingest/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBody  = 1 << 20
)

// webhookEnvelope is the subset of the WhatsApp Cloud API notification we read.
type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// firstMessage returns the first message unit of the envelope, if any.
func (e *webhookEnvelope) firstMessage() (webhookMessage, bool) {
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return change.Value.Messages[0], true
			}
		}
	}
	return webhookMessage{}, false
}

// WebhookHandler handles the provider handshake and inbound deliveries.
type WebhookHandler struct {
	pipeline    service.IngestionService
	verifyToken string
	appSecret   string
	logger      *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler. An empty appSecret disables
// signature checks.
func NewWebhookHandler(pipeline service.IngestionService, verifyToken, appSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, verifyToken: verifyToken, appSecret: appSecret, logger: logger}
}

func queryFirst(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := queryFirst(c, "hub.mode", "mode")
	token := queryFirst(c, "hub.verify_token", "verify_token")
	challenge := queryFirst(c, "hub.challenge", "challenge")

	if mode != "subscribe" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	h.logger.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive hands the first message of a delivery to the ingestion pipeline.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if h.appSecret != "" && !validSignature(h.appSecret, body, c.GetHeader(signatureHeader)) {
		h.logger.Warn("webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var envelope webhookEnvelope
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload: " + err.Error()})
		return
	}

	msg, ok := envelope.firstMessage()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if msg.ID == "" || msg.From == "" {
		h.logger.Warn("webhook message without id or sender", zap.String("type", msg.Type))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	outcome, err := h.pipeline.HandleMessage(c.Request.Context(), model.InboundMessage{
		From:      msg.From,
		Text:      msg.Text.Body,
		MessageID: msg.ID,
	})
	if err != nil {
		h.logger.Error("webhook processing failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// RegisterWebhookRoutes registers the provider callback routes.
func (h *WebhookHandler) RegisterWebhookRoutes(r gin.IRoutes) {
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
}
