package handler

import (
	"errors"
	"net/http"

	"expense_ingest/internal/channel"
	"expense_ingest/internal/middleware"
	"expense_ingest/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actionSendCode   = "send_code"
	actionVerifyCode = "verify_code"
)

// VerificationHandler exposes phone verification to the signed-in front end.
type VerificationHandler struct {
	service service.VerificationService
	logger  *zap.Logger
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(s service.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{service: s, logger: logger}
}

type verifyPhoneRequest struct {
	Action      string `json:"action" binding:"required"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	UserID      string `json:"user_id"`
}

func respond(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": status < http.StatusBadRequest, "message": message})
}

// authorizedUser returns the token subject, rejecting a body user_id that names someone else.
func authorizedUser(c *gin.Context, bodyUserID string) (string, bool) {
	userID, ok := middleware.AuthUserID(c)
	if !ok {
		respond(c, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	if bodyUserID != "" && bodyUserID != userID {
		respond(c, http.StatusForbidden, "user_id does not match the authenticated user")
		return "", false
	}
	return userID, true
}

// Action dispatches send_code and verify_code.
func (h *VerificationHandler) Action(c *gin.Context) {
	var req verifyPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	userID, ok := authorizedUser(c, req.UserID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case actionSendCode:
		if req.PhoneNumber == "" {
			respond(c, http.StatusBadRequest, "phone_number is required")
			return
		}
		if err := h.service.IssueCode(ctx, userID, req.PhoneNumber); err != nil {
			h.fail(c, userID, req.Action, err)
			return
		}
		respond(c, http.StatusOK, "Código enviado com sucesso")
	case actionVerifyCode:
		if req.Code == "" {
			respond(c, http.StatusBadRequest, "code is required")
			return
		}
		if err := h.service.VerifyCode(ctx, userID, req.Code); err != nil {
			h.fail(c, userID, req.Action, err)
			return
		}
		respond(c, http.StatusOK, "Telefone verificado com sucesso")
	default:
		respond(c, http.StatusBadRequest, "Invalid action")
	}
}

// Disconnect unlinks the caller's phone.
func (h *VerificationHandler) Disconnect(c *gin.Context) {
	userID, ok := authorizedUser(c, "")
	if !ok {
		return
	}
	if err := h.service.Disconnect(c.Request.Context(), userID); err != nil {
		h.fail(c, userID, "disconnect", err)
		return
	}
	respond(c, http.StatusOK, "WhatsApp desconectado")
}

func (h *VerificationHandler) fail(c *gin.Context, userID, action string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPhone):
		respond(c, http.StatusBadRequest, "Número de telefone inválido")
	case errors.Is(err, service.ErrCodeNotFound):
		respond(c, http.StatusBadRequest, "Nenhum código de verificação encontrado")
	case errors.Is(err, service.ErrIncorrectCode):
		respond(c, http.StatusBadRequest, "Código incorreto")
	case errors.Is(err, service.ErrCodeExpired):
		respond(c, http.StatusBadRequest, "Código expirado")
	case errors.Is(err, service.ErrProfileNotFound):
		respond(c, http.StatusNotFound, "Perfil não encontrado")
	case errors.Is(err, service.ErrTooManyRequests):
		respond(c, http.StatusTooManyRequests, "Aguarde antes de solicitar um novo código")
	case errors.Is(err, channel.ErrUnavailable):
		h.logger.Error("verification channel unavailable", zap.String("user_id", userID), zap.String("action", action), zap.Error(err))
		respond(c, http.StatusBadGateway, "Erro ao enviar mensagem")
	default:
		h.logger.Error("verification action failed", zap.String("user_id", userID), zap.String("action", action), zap.Error(err))
		respond(c, http.StatusInternalServerError, "Erro interno")
	}
}

// RegisterVerificationRoutes registers the verify-phone routes behind the given middlewares.
// Preflights are answered by the CORS middleware on rg before authentication runs.
func (h *VerificationHandler) RegisterVerificationRoutes(rg *gin.RouterGroup, authMW ...gin.HandlerFunc) {
	rg.OPTIONS("/verify-phone", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	group := rg.Group("/verify-phone")
	group.Use(authMW...)
	{
		group.POST("", h.Action)
		group.DELETE("", h.Disconnect)
	}
}
