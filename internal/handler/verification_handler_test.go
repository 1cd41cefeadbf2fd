package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expense_ingest/internal/channel"
	"expense_ingest/internal/middleware"
	"expense_ingest/internal/service"
	"expense_ingest/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUserID = "0b7e2f4c-3a51-4c1e-9d7a-7f3f0f9a2c11"
	otherUser  = "9d1c7a55-0000-4000-8000-000000000001"
	testOrigin = "https://app.trackyfinance.test"
)

type verifyCall struct {
	Method string
	UserID string
	Arg    string
}

type fakeVerification struct {
	calls []verifyCall
	err   error
}

func (f *fakeVerification) IssueCode(_ context.Context, userID, phone string) error {
	f.calls = append(f.calls, verifyCall{"IssueCode", userID, phone})
	return f.err
}

func (f *fakeVerification) VerifyCode(_ context.Context, userID, code string) error {
	f.calls = append(f.calls, verifyCall{"VerifyCode", userID, code})
	return f.err
}

func (f *fakeVerification) Disconnect(_ context.Context, userID string) error {
	f.calls = append(f.calls, verifyCall{"Disconnect", userID, ""})
	return f.err
}

func newVerificationRouter(t *testing.T, svc service.VerificationService) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtUtil := utils.NewJWTUtil("secret", time.Hour)
	token, err := jwtUtil.GenerateToken(testUserID, utils.RoleAuthenticated)
	require.NoError(t, err)

	r := gin.New()
	NewVerificationHandler(svc, zap.NewNop()).RegisterVerificationRoutes(r.Group("/api/v1", middleware.CORSMiddleware(testOrigin)),
		middleware.JWTAuthMiddleware(jwtUtil), middleware.AuthenticatedMiddleware())
	return r, token
}

func doJSON(r *gin.Engine, method, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/verify-phone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerificationHandler_SendCode(t *testing.T) {
	svc := &fakeVerification{}
	router, token := newVerificationRouter(t, svc)

	w := doJSON(router, http.MethodPost, token,
		`{"action":"send_code","phone_number":"+55 11 99999-8888","user_id":"`+testUserID+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, []verifyCall{{"IssueCode", testUserID, "+55 11 99999-8888"}}, svc.calls)
}

func TestVerificationHandler_VerifyCodeUsesTokenSubject(t *testing.T) {
	svc := &fakeVerification{}
	router, token := newVerificationRouter(t, svc)

	w := doJSON(router, http.MethodPost, token, `{"action":"verify_code","code":"123456"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []verifyCall{{"VerifyCode", testUserID, "123456"}}, svc.calls)
}

func TestVerificationHandler_Disconnect(t *testing.T) {
	svc := &fakeVerification{}
	router, token := newVerificationRouter(t, svc)

	w := doJSON(router, http.MethodDelete, token, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []verifyCall{{"Disconnect", testUserID, ""}}, svc.calls)
}

func TestVerificationHandler_Preflight(t *testing.T) {
	svc := &fakeVerification{}
	router, _ := newVerificationRouter(t, svc)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/verify-phone", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Empty(t, svc.calls)
}

func TestVerificationHandler_ResponsesCarryCORSHeaders(t *testing.T) {
	router, token := newVerificationRouter(t, &fakeVerification{})

	w := doJSON(router, http.MethodPost, token, `{"action":"verify_code","code":"123456"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))

	w = doJSON(router, http.MethodPost, "", `{"action":"verify_code","code":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, testOrigin, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerificationHandler_RejectedRequests(t *testing.T) {
	tests := []struct {
		name       string
		token      bool
		body       string
		wantStatus int
	}{
		{"no token", false, `{"action":"send_code","phone_number":"5511999998888"}`, http.StatusUnauthorized},
		{"mismatched user", true, `{"action":"send_code","phone_number":"5511999998888","user_id":"` + otherUser + `"}`, http.StatusForbidden},
		{"unknown action", true, `{"action":"reset"}`, http.StatusBadRequest},
		{"missing action", true, `{}`, http.StatusBadRequest},
		{"missing phone", true, `{"action":"send_code"}`, http.StatusBadRequest},
		{"missing code", true, `{"action":"verify_code"}`, http.StatusBadRequest},
		{"not json", true, `nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeVerification{}
			router, token := newVerificationRouter(t, svc)
			if !tt.token {
				token = ""
			}

			w := doJSON(router, http.MethodPost, token, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestVerificationHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{service.ErrInvalidPhone, http.StatusBadRequest},
		{service.ErrCodeNotFound, http.StatusBadRequest},
		{service.ErrIncorrectCode, http.StatusBadRequest},
		{service.ErrCodeExpired, http.StatusBadRequest},
		{service.ErrProfileNotFound, http.StatusNotFound},
		{fmt.Errorf("%w (retry in 42s)", service.ErrTooManyRequests), http.StatusTooManyRequests},
		{fmt.Errorf("failed to send verification code: %w", channel.ErrUnavailable), http.StatusBadGateway},
		{fmt.Errorf("failed to load profile: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router, token := newVerificationRouter(t, &fakeVerification{err: tt.err})

			w := doJSON(router, http.MethodPost, token, `{"action":"verify_code","code":"123456"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}
