package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"moai/api/internal/auth"
	"moai/api/internal/authpw"
	"moai/api/internal/logging"
	"moai/api/internal/metrics"
	"moai/api/internal/rbac"
	"moai/api/internal/realtime"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	router     *mux.Router
	streamer   *realtime.Streamer
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		router:     mux.NewRouter(),
		streamer:   realtime.NewStreamer(service.Broker(), service.cfg.SyncInterval, corsOrigin),
	}
	s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

func (s *HTTPServer) routes() {
	r := s.router
	r.Use(recordRoute)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Auth routes (no session required)
	r.HandleFunc("/api/auth/signup", s.handleAuthSignUp).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin", s.handleAuthSignIn).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify-email", s.handleAuthVerifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password/request", s.handleAuthRequestReset).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password", s.handleAuthResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session/refresh", s.handleSessionRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/session/logout", s.handleSessionLogout).Methods(http.MethodPost)

	// Contact, translate, search and the event stream
	r.HandleFunc("/api/send-email", s.handleSendEmail).Methods(http.MethodPost)
	r.HandleFunc("/api/translate", s.handleTranslate).Methods(http.MethodPost)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/api/stream", s.handleStream).Methods(http.MethodGet)

	// Profiles, blocking and uploads
	r.HandleFunc("/api/profile", s.authed(s.handleGetOwnProfile)).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.authed(s.handleUpdateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{id}", s.handleGetProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/block", s.authed(s.handleBlockUser)).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id}/block", s.authed(s.handleUnblockUser)).Methods(http.MethodDelete)
	r.HandleFunc("/api/media/uploads", s.authed(s.handleCreateUpload)).Methods(http.MethodPost)

	r.HandleFunc("/api/projects", s.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/api/projects", s.authed(s.handleCreateProject)).Methods(http.MethodPost)
	r.HandleFunc("/api/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{id}", s.authed(s.handleDeleteProject)).Methods(http.MethodDelete)

	// Messaging
	r.HandleFunc("/api/conversations", s.authed(s.handleListConversations)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations", s.authed(s.handleStartConversation)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/unread", s.authed(s.handleUnreadTotal)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations/{id}", s.authed(s.handleDeleteConversation)).Methods(http.MethodDelete)
	r.HandleFunc("/api/conversations/{id}/messages", s.authed(s.handleListMessages)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations/{id}/messages", s.authed(s.handleSendMessage)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id}/read", s.authed(s.handleMarkRead)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id}/messages/{messageId}", s.authed(s.handleDeleteMessage)).Methods(http.MethodDelete)

	r.HandleFunc("/api/notifications", s.authed(s.handleListNotifications)).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/read-all", s.authed(s.handleMarkAllNotificationsRead)).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/clear", s.authed(s.handleClearNotifications)).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}/read", s.authed(s.handleMarkNotificationRead)).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}", s.authed(s.handleDeleteNotification)).Methods(http.MethodDelete)

	// Reviews and favorites
	r.HandleFunc("/api/toolkits/{id}/reviews", s.handleListReviews).Methods(http.MethodGet)
	r.HandleFunc("/api/toolkits/{id}/rating", s.handleRating).Methods(http.MethodGet)
	r.HandleFunc("/api/toolkits/{id}/reviews/mine", s.authed(s.handleGetMyReview)).Methods(http.MethodGet)
	r.HandleFunc("/api/toolkits/{id}/reviews/mine", s.authed(s.handleSaveReview)).Methods(http.MethodPut)
	r.HandleFunc("/api/reviews/{id}", s.authed(s.handleDeleteReview)).Methods(http.MethodDelete)
	r.HandleFunc("/api/toolkits/{id}/favorite", s.authed(s.handleCheckFavorite)).Methods(http.MethodGet)
	r.HandleFunc("/api/toolkits/{id}/favorite", s.authed(s.handleAddFavorite)).Methods(http.MethodPost)
	r.HandleFunc("/api/favorites", s.authed(s.handleListFavorites)).Methods(http.MethodGet)
	r.HandleFunc("/api/favorites/{id}", s.authed(s.handleRemoveFavorite)).Methods(http.MethodDelete)

	// Moderation; admin routes are checked against the allow-list in the service
	r.HandleFunc("/api/admin/{kind:toolkits|news}/pending", s.authed(s.handleListPending)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/{kind:toolkits|news}/{id}/approve", s.authed(s.handleApprove)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/{kind:toolkits|news}/{id}/reject", s.authed(s.handleReject)).Methods(http.MethodPost)

	// Public listings and submissions; /mine must stay ahead of /{id}
	r.HandleFunc("/api/{kind:toolkits|news}", s.handleListApproved).Methods(http.MethodGet)
	r.HandleFunc("/api/{kind:toolkits|news}", s.authed(s.handleSubmit)).Methods(http.MethodPost)
	r.HandleFunc("/api/{kind:toolkits|news}/mine", s.authed(s.handleListMine)).Methods(http.MethodGet)
	r.HandleFunc("/api/{kind:toolkits|news}/{id}", s.handleGetSubmission).Methods(http.MethodGet)
	r.HandleFunc("/api/{kind:toolkits|news}/{id}", s.authed(s.handleUpdateSubmission)).Methods(http.MethodPut)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// authed wraps a handler that needs a signed-in user.
func (s *HTTPServer) authed(next func(http.ResponseWriter, *http.Request, Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// optionalSession resolves the caller when a valid token is present.
func (s *HTTPServer) optionalSession(r *http.Request) *Session {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return nil
	}
	return &session
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		route := &routeLabel{name: "unmatched"}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, routeLabelKey{}, route)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		elapsed := time.Since(started)
		metrics.HTTPRequests.WithLabelValues(r.Method, route.name, strconv.Itoa(writer.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route.name).Observe(elapsed.Seconds())
		logging.Logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route.name,
			"status":      writer.status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type routeLabelKey struct{}

// routeLabel carries the matched route template back out to the request
// logger so metrics stay low-cardinality.
type routeLabel struct {
	name string
}

func recordRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeLabelKey{}).(*routeLabel); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					label.name = tmpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the stream endpoint upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeServiceError maps a service error to its response. Unmapped errors
// are logged since the client only sees SERVER_ERROR.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if code == "SERVER_ERROR" {
		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		logging.Logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       r.URL.Path,
			"error":      err,
		}).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func queryInt(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: include verification token in response when email not configured
	if !s.service.EmailConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: the token is only returned when it could not be mailed
	if token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	session := s.optionalSession(r)
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":  true,
		"userId":         session.UserID,
		"userName":       session.UserName,
		"email":          session.Email,
		"isToolkitAdmin": s.service.IsAdmin(*session, rbac.AreaToolkits),
		"isNewsAdmin":    s.service.IsAdmin(*session, rbac.AreaNews),
	})
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	session := Session{}
	if parsed := s.optionalSession(r); parsed != nil {
		session = *parsed
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	_ = s.service.Logout(r.Context(), session, body.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

// handleStream also accepts ?token= since browsers cannot set headers on a
// WebSocket handshake.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if bearerToken(r) == "" {
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	s.streamer.Serve(w, r, session.UserID, func(ctx context.Context) (any, error) {
		return s.service.SyncSnapshot(ctx, session.UserID)
	})
}
