package app

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"moai/api/internal/logging"
	"moai/api/internal/metrics"
	"moai/api/internal/rbac"
	"moai/api/internal/realtime"
	"moai/api/internal/store"
	"moai/api/internal/util"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

const (
	NotificationMessage          = "message"
	NotificationToolkitSubmitted = "toolkit_submitted"
	NotificationToolkitApproved  = "toolkit_approved"
	NotificationToolkitRejected  = "toolkit_rejected"
	NotificationNewsSubmitted    = "news_submitted"
	NotificationNewsApproved     = "news_approved"
	NotificationNewsRejected     = "news_rejected"
)

type NotificationInput struct {
	UserID  string `json:"userId"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// CreateNotification writes one unread notification and pushes it to the
// user's stream. Failures are logged and returned; callers running it as a
// side effect ignore the error.
func (s *Service) CreateNotification(ctx context.Context, input NotificationInput) (map[string]any, error) {
	if isBlank(input.UserID) || isBlank(input.Type) || isBlank(input.Title) {
		return nil, validationError("userId, type and title are required", nil)
	}
	item := store.Notification{
		ID:        util.NewID("ntf"),
		UserID:    strings.TrimSpace(input.UserID),
		Type:      strings.TrimSpace(input.Type),
		Title:     strings.TrimSpace(input.Title),
		Message:   input.Message,
		Link:      input.Link,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, item); err != nil {
		logging.Logger.WithFields(logrus.Fields{
			"user_id": item.UserID,
			"type":    item.Type,
			"error":   err,
		}).Warn("create notification")
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(item.Type).Inc()

	view := notificationView(item)
	s.publish(ctx, item.UserID, realtime.EventNotificationCreated, view)
	return view, nil
}

// NotifyAdmins sends input to every admin of area who has an account.
// Configured emails without a profile are skipped. It returns the number
// of notifications written.
func (s *Service) NotifyAdmins(ctx context.Context, area rbac.Area, input NotificationInput) int {
	emails := s.policy.Admins(area)
	if len(emails) == 0 {
		return 0
	}
	admins, err := s.store.ListUsersByEmails(ctx, emails)
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"area": area, "error": err}).Warn("resolve admins")
		return 0
	}
	sent := 0
	for _, admin := range admins {
		input.UserID = admin.ID
		if _, err := s.CreateNotification(ctx, input); err == nil {
			sent++
		}
	}
	return sent
}

// ListNotifications returns the newest notifications for userID and the
// unread count across all of them.
func (s *Service) ListNotifications(ctx context.Context, userID string, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = s.cfg.NotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	notifications, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, item := range notifications {
		items = append(items, notificationView(item))
	}
	return map[string]any{
		"items":       items,
		"unreadCount": unread,
	}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	ok, err := s.store.MarkNotificationRead(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("Notification not found")
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	if isBlank(notificationID) {
		return notFound("Notification not found")
	}
	removed, err := s.store.DeleteNotifications(ctx, userID, []string{notificationID})
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"notification_id": notificationID, "error": err}).Error("delete notification")
		return err
	}
	if removed == 0 {
		return notFound("Notification not found")
	}
	return nil
}

// ClearNotifications deletes the given ids in one batch. An empty list
// clears everything the user owns.
func (s *Service) ClearNotifications(ctx context.Context, userID string, ids []string) (int, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(ids) > 0 && len(cleaned) == 0 {
		return 0, nil
	}
	removed, err := s.store.DeleteNotifications(ctx, userID, cleaned)
	if err != nil {
		logging.Logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("clear notifications")
		return 0, err
	}
	return removed, nil
}

func notificationView(item store.Notification) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"userId":    item.UserID,
		"type":      item.Type,
		"title":     item.Title,
		"message":   item.Message,
		"link":      item.Link,
		"read":      item.Read,
		"createdAt": formatTime(item.CreatedAt),
	}
}
