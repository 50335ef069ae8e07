package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

// GetOrCreateConversation returns the single conversation between userA and
// userB, creating it on first contact. The sorted pair is unique in the
// store, so concurrent callers converge on one row. A thread userA had
// hidden is shown to them again.
func (s *Service) GetOrCreateConversation(ctx context.Context, userA string, dataA store.ParticipantData, userB string, dataB store.ParticipantData) (store.Conversation, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return store.Conversation{}, validationError("Both participants are required", nil)
	}
	if userA == userB {
		return store.Conversation{}, validationError("Cannot start a conversation with yourself", nil)
	}

	existing, err := s.store.FindConversation(ctx, userA, userB)
	switch {
	case err == nil:
		if existing.Deleted[userA] {
			if _, err := s.store.SetConversationDeleted(ctx, existing.ID, userA, false); err != nil {
				return store.Conversation{}, err
			}
			existing.Deleted[userA] = false
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		logging.Logger.WithFields(logrus.Fields{"user_a": userA, "user_b": userB, "error": err}).Error("find conversation")
		return store.Conversation{}, err
	}

	created, err := s.store.CreateConversation(ctx, store.Conversation{
		ID:           util.NewID("cnv"),
		Participants: store.SortedPair(userA, userB),
		ParticipantData: map[string]store.ParticipantData{
			userA: dataA,
			userB: dataB,
		},
	})
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_a": userA, "user_b": userB, "error": err}).Error("create conversation")
		return store.Conversation{}, err
	}
	return created, nil
}

// StartConversation opens the session user's thread with otherUserID.
func (s *Service) StartConversation(ctx context.Context, session Session, otherUserID string) (map[string]any, error) {
	if isBlank(otherUserID) {
		return nil, validationError("recipientId is required", nil)
	}
	me, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	other, err := s.store.GetUserByID(ctx, strings.TrimSpace(otherUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("User not found")
		}
		return nil, err
	}
	conversation, err := s.GetOrCreateConversation(ctx, me.ID, participantData(me), other.ID, participantData(other))
	if err != nil {
		return nil, err
	}
	return s.conversationView(conversation, me.ID), nil
}

func (s *Service) GetUserConversations(ctx context.Context, userID string) ([]map[string]any, error) {
	conversations, err := s.store.ListUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(conversations))
	for _, conversation := range conversations {
		items = append(items, s.conversationView(conversation, userID))
	}
	return items, nil
}

// DeleteConversation hides the thread for userID only.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	ok, err := s.store.SetConversationDeleted(ctx, conversationID, userID, true)
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"conversation_id": conversationID, "user_id": userID, "error": err}).Error("delete conversation")
		return err
	}
	if !ok {
		return notFound("Conversation not found")
	}
	return nil
}

func (s *Service) UnreadTotal(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadTotal(ctx, userID)
}

// participantConversation loads a conversation userID belongs to. Outsiders
// get the same 404 as a missing id.
func (s *Service) participantConversation(ctx context.Context, conversationID, userID string) (store.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Conversation{}, notFound("Conversation not found")
		}
		return store.Conversation{}, err
	}
	if !conversation.HasParticipant(userID) {
		return store.Conversation{}, notFound("Conversation not found")
	}
	return conversation, nil
}

func participantData(user store.User) store.ParticipantData {
	return store.ParticipantData{DisplayName: user.DisplayName, AvatarKey: user.AvatarKey}
}

func (s *Service) conversationView(conversation store.Conversation, viewerID string) map[string]any {
	otherID := conversation.Other(viewerID)
	other := conversation.ParticipantData[otherID]
	return map[string]any{
		"id":           conversation.ID,
		"participants": []string{conversation.Participants[0], conversation.Participants[1]},
		"otherUser": map[string]any{
			"id":          otherID,
			"displayName": other.DisplayName,
			"avatarUrl":   s.media.PublicURL(other.AvatarKey),
		},
		"lastMessage":   conversation.LastMessage,
		"lastMessageAt": formatTimePtr(conversation.LastMessageAt),
		"lastSenderId":  conversation.LastSenderID,
		"unreadCount":   conversation.UnreadCount[viewerID],
		"createdAt":     formatTime(conversation.CreatedAt),
	}
}
