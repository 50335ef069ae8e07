package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"moai/api/internal/search"
	"moai/api/internal/store"
)

func (s *HTTPServer) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var body ContactInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ids, err := s.service.SendContactEmail(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ids": ids})
}

func (s *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var body TranslateInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	translated, err := s.service.Translate(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"translatedText": translated})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := search.Query{
		Text:   strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	if typ := search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))); typ != "" {
		if !typ.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be toolkit, news or project", nil)
			return
		}
		query.FilterType = typ
	}
	if query.Limit == 0 || query.Limit > 100 {
		query.Limit = 20
	}
	writeJSON(w, http.StatusOK, s.service.Search(query))
}

// Profiles and projects

func (s *HTTPServer) handleGetOwnProfile(w http.ResponseWriter, r *http.Request, session Session) {
	profile, err := s.service.GetProfile(r.Context(), &session, session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProfileInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	profile, err := s.service.UpdateProfile(r.Context(), session, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.GetProfile(r.Context(), s.optionalSession(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleBlockUser(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.BlockUser(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleUnblockUser(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.UnblockUser(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleCreateUpload(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Purpose     string `json:"purpose"`
		ContentType string `json:"contentType"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	upload, err := s.service.CreateUpload(r.Context(), session, body.Purpose, body.ContentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListProjects(r.Context(), r.URL.Query().Get("ownerId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProjectInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	project, err := s.service.CreateProject(r.Context(), session, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.service.GetProject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteProject(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Messaging

func (s *HTTPServer) handleListConversations(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.GetUserConversations(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleStartConversation(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		RecipientID string `json:"recipientId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	conversation, err := s.service.StartConversation(r.Context(), session, body.RecipientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (s *HTTPServer) handleUnreadTotal(w http.ResponseWriter, r *http.Request, session Session) {
	total, err := s.service.UnreadTotal(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": total})
}

func (s *HTTPServer) handleDeleteConversation(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteConversation(r.Context(), mux.Vars(r)["id"], session.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.GetConversationMessages(r.Context(), mux.Vars(r)["id"], session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	message, err := s.service.Reply(r.Context(), session, mux.Vars(r)["id"], body.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request, session Session) {
	marked, err := s.service.MarkMessagesAsRead(r.Context(), mux.Vars(r)["id"], session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

func (s *HTTPServer) handleDeleteMessage(w http.ResponseWriter, r *http.Request, session Session) {
	vars := mux.Vars(r)
	if err := s.service.DeleteMessage(r.Context(), vars["id"], vars["messageId"], session.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Notifications

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.ListNotifications(r.Context(), session.UserID, queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.MarkNotificationRead(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request, session Session) {
	marked, err := s.service.MarkAllNotificationsRead(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

func (s *HTTPServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteNotification(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleClearNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	removed, err := s.service.ClearNotifications(r.Context(), session.UserID, body.IDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// Reviews and favorites

func (s *HTTPServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListToolkitReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleRating(w http.ResponseWriter, r *http.Request) {
	rating, err := s.service.GetToolkitAverageRating(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *HTTPServer) handleGetMyReview(w http.ResponseWriter, r *http.Request, session Session) {
	review, err := s.service.GetUserReview(r.Context(), session.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": review})
}

func (s *HTTPServer) handleSaveReview(w http.ResponseWriter, r *http.Request, session Session) {
	var body ReviewInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	review, err := s.service.SaveReview(r.Context(), session.UserID, mux.Vars(r)["id"], body.ReviewID, body.Rating, body.Comment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *HTTPServer) handleDeleteReview(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteReview(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleCheckFavorite(w http.ResponseWriter, r *http.Request, session Session) {
	favoriteID, err := s.service.CheckIsFavorited(r.Context(), session.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var id any
	if favoriteID != "" {
		id = favoriteID
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorited": favoriteID != "", "favoriteId": id})
}

func (s *HTTPServer) handleAddFavorite(w http.ResponseWriter, r *http.Request, session Session) {
	favorite, err := s.service.AddFavorite(r.Context(), session.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favorite)
}

func (s *HTTPServer) handleRemoveFavorite(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.RemoveFavorite(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListFavorites(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListFavorites(r.Context(), session.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Moderation

func routeKind(r *http.Request) store.Kind {
	kind, _ := ParseKind(mux.Vars(r)["kind"])
	return kind
}

func (s *HTTPServer) handleListApproved(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListApproved(r.Context(), routeKind(r), r.URL.Query().Get("category"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, session Session) {
	var body SubmissionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.Submit(r.Context(), session, routeKind(r), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleListMine(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListMySubmissions(r.Context(), session, routeKind(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetSubmission(r.Context(), s.optionalSession(r), routeKind(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleUpdateSubmission(w http.ResponseWriter, r *http.Request, session Session) {
	var body SubmissionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.UpdatePending(r.Context(), session, routeKind(r), mux.Vars(r)["id"], body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleListPending(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListPending(r.Context(), session, routeKind(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request, session Session) {
	item, err := s.service.Approve(r.Context(), session, routeKind(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.Reject(r.Context(), session, routeKind(r), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
