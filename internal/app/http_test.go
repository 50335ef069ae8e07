package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moai/api/internal/authpw"
	"moai/api/internal/email"
	"moai/api/internal/realtime"
	"moai/api/internal/translate"
)

const testPassword = "correct-horse"

func authSignUp(emailAddr, name string) authpw.SignUpRequest {
	return authpw.SignUpRequest{Email: emailAddr, Password: testPassword, DisplayName: name}
}

func authSignIn(emailAddr string) authpw.SignInRequest {
	return authpw.SignInRequest{Email: emailAddr, Password: testPassword}
}

type recordingSender struct {
	mu   sync.Mutex
	to   [][]string
	fail error
}

func (r *recordingSender) send(_ string, _ smtp.Auth, _ string, to []string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.to = append(r.to, to)
	return nil
}

func configuredEmail(sender *recordingSender) *email.Service {
	return email.NewService(email.Config{
		Host:  "smtp.test",
		Port:  "587",
		From:  "noreply@moai.test",
		Inbox: "hello@moai.test",
	}).WithSender(sender.send)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "body=%s", rr.Body.String())
	}
	return rr, payload
}

func signedInToken(t *testing.T, svc *Service, emailAddr, name string) string {
	t.Helper()
	ctx := context.Background()
	resp, err := svc.SignUp(ctx, authSignUp(emailAddr, name))
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, resp.VerificationToken))
	session, err := svc.SignIn(ctx, authSignIn(emailAddr))
	require.NoError(t, err)
	return session.Token
}

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, payload["ok"])

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", payload["status"])
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", payload["code"])

	rr, payload = doJSON(t, handler, http.MethodPatch, "/api/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", payload["code"])
}

func TestCORSPreflight(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "http://app.test").Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://app.test", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthFlowOverHTTP(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       "ana@moai.test",
		"password":    testPassword,
		"displayName": "Ana",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	verifyToken, _ := payload["devVerificationToken"].(string)
	require.NotEmpty(t, verifyToken)

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "ana@moai.test", "password": testPassword,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", payload["code"])

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": verifyToken})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "ana@moai.test", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", payload["code"])

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": "ana@moai.test", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	token, _ := payload["token"].(string)
	refreshToken, _ := payload["refreshToken"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, refreshToken)

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, "Ana", payload["userName"])
	assert.Equal(t, false, payload["isToolkitAdmin"])

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/session/logout", token, map[string]string{"refreshToken": refreshToken})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, payload = doJSON(t, handler, http.MethodGet, "/api/conversations", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", payload["code"])
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodGet, "/api/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", payload["code"])

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/notifications", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSendEmailValidation(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{Email: configuredEmail(&recordingSender{})})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/send-email", "", map[string]string{
		"name":  "Ana",
		"email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
	fields := payload["details"].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "required", fields["subject"])
	assert.Equal(t, "required", fields["message"])

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/send-email", "", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_BODY", payload["code"])
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/send-email", "", map[string]string{
		"name": "Ana", "email": "ana@moai.test", "subject": "Hi", "message": "Hello",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "EMAIL_UNAVAILABLE", payload["code"])
}

func TestSendEmailDeliversNoticeAndConfirmation(t *testing.T) {
	sender := &recordingSender{}
	svc, _ := newTestService(t, Dependencies{Email: configuredEmail(sender)})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/send-email", "", map[string]string{
		"name": "Ana", "email": "ana@moai.test", "subject": "Hi", "message": "Hello",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, payload["ok"])
	assert.Len(t, payload["ids"], 2)
	require.Len(t, sender.to, 2)
	assert.Equal(t, []string{"hello@moai.test"}, sender.to[0])
	assert.Equal(t, []string{"ana@moai.test"}, sender.to[1])
}

func TestSendEmailProviderFailure(t *testing.T) {
	sender := &recordingSender{fail: errors.New("connection refused")}
	svc, _ := newTestService(t, Dependencies{Email: configuredEmail(sender)})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/send-email", "", map[string]string{
		"name": "Ana", "email": "ana@moai.test", "subject": "Hi", "message": "Hello",
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "EMAIL_FAILED", payload["code"])
	assert.Contains(t, payload["details"].(map[string]any)["error"], "connection refused")
}

func translateProvider(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTranslateEndpoint(t *testing.T) {
	provider := translateProvider(t, http.StatusOK, `{"translatedText":"Olá"}`)
	svc, _ := newTestService(t, Dependencies{Translator: translate.NewClient(provider.URL, "")})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/translate", "", map[string]string{"text": "Hello", "targetLang": "pt"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Olá", payload["translatedText"])

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/translate", "", map[string]string{"text": "   ", "targetLang": "pt"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "   ", payload["translatedText"])

	rr, payload = doJSON(t, handler, http.MethodPost, "/api/translate", "", map[string]string{"text": "Hello"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
}

func TestTranslateProviderFailure(t *testing.T) {
	provider := translateProvider(t, http.StatusBadGateway, `{"error":"upstream down"}`)
	svc, _ := newTestService(t, Dependencies{Translator: translate.NewClient(provider.URL, "")})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/translate", "", map[string]string{"text": "Hello", "targetLang": "pt"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "TRANSLATION_FAILED", payload["code"])
}

func TestTranslateUnconfigured(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/translate", "", map[string]string{"text": "Hello", "targetLang": "pt"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "TRANSLATE_UNAVAILABLE", payload["code"])
}

func TestConversationRoutes(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()
	aliceToken := signedInToken(t, svc, "alice@moai.test", "Alice")
	bobToken := signedInToken(t, svc, "bob@moai.test", "Bob")

	_, bobSession := doJSON(t, handler, http.MethodGet, "/api/session", bobToken, nil)
	bobID := bobSession["userId"].(string)

	rr, conversation := doJSON(t, handler, http.MethodPost, "/api/conversations", aliceToken, map[string]string{"recipientId": bobID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	conversationID := conversation["id"].(string)

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/conversations/"+conversationID+"/messages", aliceToken, map[string]string{"text": "hi bob"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr, unread := doJSON(t, handler, http.MethodGet, "/api/conversations/unread", bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), unread["unread"])

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/conversations/"+conversationID+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr, unread = doJSON(t, handler, http.MethodGet, "/api/conversations/unread", bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(0), unread["unread"])
}

func TestModerationRoutesRequireAdmin(t *testing.T) {
	svc, _ := newTestService(t, Dependencies{})
	handler := NewHTTPServer(svc, "*").Handler()
	memberToken := signedInToken(t, svc, "member@moai.test", "Member")
	adminToken := signedInToken(t, svc, toolkitAdminEmail, "Admin")

	rr, item := doJSON(t, handler, http.MethodPost, "/api/toolkits", memberToken, map[string]string{"title": "Brushes", "description": "A set"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id := item["id"].(string)

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/admin/toolkits/pending", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/admin/toolkits/"+id+"/reject", adminToken, map[string]string{"reason": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr, approved := doJSON(t, handler, http.MethodPost, "/api/admin/toolkits/"+id+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "approved", approved["status"])

	rr, payload := doJSON(t, handler, http.MethodPost, "/api/admin/toolkits/"+id+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "INVALID_TRANSITION", payload["code"])

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/admin/news/pending", adminToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	svc, _ := newTestService(t, Dependencies{Broker: broker})
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer server.Close()
	token := signedInToken(t, svc, "ana@moai.test", "Ana")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var event realtime.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, realtime.EventSync, event.Type)

	var snapshot map[string]int
	require.NoError(t, json.Unmarshal(event.Data, &snapshot))
	assert.Equal(t, 0, snapshot["unreadMessages"])
	assert.Equal(t, 0, snapshot["unreadNotifications"])
}
