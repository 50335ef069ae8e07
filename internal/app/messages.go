package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/metrics"
	"moai/api/internal/realtime"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

const (
	maxMessageLength = 5000
	previewLength    = 80
)

// SendMessage stores a message and bumps the recipient's unread counter in
// one transaction. Events and the recipient notification follow the commit
// and never fail the send.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID string, senderData store.ParticipantData, recipientID, text string) (map[string]any, error) {
	// Validate input
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("Message text is required", nil)
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, validationError(fmt.Sprintf("Message text must be at most %d characters", maxMessageLength), map[string]any{"max": maxMessageLength})
	}

	conversation, err := s.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if recipientID == senderID || !conversation.HasParticipant(recipientID) {
		return nil, validationError("Recipient is not part of this conversation", nil)
	}

	// Check if either side has blocked the other
	blocked, err := s.blockedBetween(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, domainError(http.StatusForbidden, "BLOCKED", "Messaging between these users is blocked", nil)
	}

	msg := store.Message{
		ID:             util.NewID("msg"),
		ConversationID: conversation.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Text:           text,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg, senderData); err != nil {
		logging.Logger.WithFields(logrus.Fields{
			"conversation_id": conversation.ID,
			"sender_id":       senderID,
			"error":           err,
		}).Error("send message")
		return nil, err
	}
	metrics.MessagesSent.Inc()

	// Both participants see the new message on open streams
	view := messageView(msg)
	s.publish(ctx, recipientID, realtime.EventMessageCreated, view)
	s.publish(ctx, senderID, realtime.EventMessageCreated, view)

	senderName := senderData.DisplayName
	if senderName == "" {
		senderName = "Someone"
	}
	_, _ = s.CreateNotification(ctx, NotificationInput{
		UserID:  recipientID,
		Type:    NotificationMessage,
		Title:   "New message from " + senderName,
		Message: preview(text),
		Link:    "/messages/" + conversation.ID,
	})
	return view, nil
}

// Reply sends text from the session user to the other participant.
func (s *Service) Reply(ctx context.Context, session Session, conversationID, text string) (map[string]any, error) {
	conversation, err := s.participantConversation(ctx, conversationID, session.UserID)
	if err != nil {
		return nil, err
	}
	sender, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.SendMessage(ctx, conversation.ID, sender.ID, participantData(sender), conversation.Other(sender.ID), text)
}

func (s *Service) GetConversationMessages(ctx context.Context, conversationID, userID string) ([]map[string]any, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		items = append(items, messageView(msg))
	}
	return items, nil
}

// MarkMessagesAsRead stamps every unread message addressed to userID and
// resets their counter. It returns how many messages were marked.
func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID, userID string) (int, error) {
	conversation, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	marked, err := s.store.MarkMessagesRead(ctx, conversation.ID, userID, s.now().UTC())
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"conversation_id": conversation.ID, "user_id": userID, "error": err}).Error("mark messages read")
		return 0, err
	}
	if marked > 0 {
		s.publish(ctx, conversation.Other(userID), realtime.EventConversationRead, map[string]any{
			"conversationId": conversation.ID,
			"readerId":       userID,
			"marked":         marked,
		})
	}
	return marked, nil
}

// DeleteMessage hides a message from userID. The row stays for the other
// participant.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, userID string) error {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	ok, err := s.store.HideMessage(ctx, conversationID, messageID, userID)
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"message_id": messageID, "user_id": userID, "error": err}).Error("delete message")
		return err
	}
	if !ok {
		return notFound("Message not found")
	}
	return nil
}

// IsBlocked reports whether either user has blocked the other. Lookup
// failures are logged and treated as not blocked.
func (s *Service) IsBlocked(ctx context.Context, userA, userB string) bool {
	blocked, err := s.blockedBetween(ctx, userA, userB)
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_a": userA, "user_b": userB, "error": err}).Warn("block check failed")
		return false
	}
	return blocked
}

func (s *Service) blockedBetween(ctx context.Context, userA, userB string) (bool, error) {
	a, err := s.store.GetUserByID(ctx, userA)
	if err != nil {
		return false, err
	}
	b, err := s.store.GetUserByID(ctx, userB)
	if err != nil {
		return false, err
	}
	return a.HasBlocked(b.ID) || b.HasBlocked(a.ID), nil
}

func messageView(msg store.Message) map[string]any {
	return map[string]any{
		"id":             msg.ID,
		"conversationId": msg.ConversationID,
		"senderId":       msg.SenderID,
		"recipientId":    msg.RecipientID,
		"text":           msg.Text,
		"read":           msg.ReadAt != nil,
		"readAt":         formatTimePtr(msg.ReadAt),
		"createdAt":      formatTime(msg.CreatedAt),
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
