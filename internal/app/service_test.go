package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"moai/api/internal/config"
	"moai/api/internal/realtime"
	"moai/api/internal/store"
)

const (
	toolkitAdminEmail = "kit-admin@moai.test"
	newsAdminEmail    = "news-admin@moai.test"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:     "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		AppURL:        "http://app.test",
		ToolkitAdmins: []string{toolkitAdminEmail},
		NewsAdmins:    []string{newsAdminEmail},
		SyncInterval:  time.Minute,
	}
}

func newTestService(t *testing.T, deps Dependencies) (*Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	deps.PasswordCost = bcrypt.MinCost
	return New(testConfig(), ms, deps), ms
}

func addUser(t *testing.T, ms *store.MemoryStore, id, name, email string) Session {
	t.Helper()
	require.NoError(t, ms.CreateUser(context.Background(), store.User{
		ID:              id,
		DisplayName:     name,
		Email:           email,
		IsEmailVerified: true,
	}))
	return Session{UserID: id, UserName: name, Email: email}
}

func requireDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	assert.Equal(t, status, domainErr.Status)
	assert.Equal(t, code, domainErr.Code)
	return domainErr
}

func notificationItems(t *testing.T, svc *Service, userID string) []map[string]any {
	t.Helper()
	out, err := svc.ListNotifications(context.Background(), userID, 0)
	require.NoError(t, err)
	return out["items"].([]map[string]any)
}

func TestGetOrCreateConversationReturnsSameThread(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	first, err := svc.GetOrCreateConversation(ctx, alice.UserID, store.ParticipantData{DisplayName: "Alice"}, bob.UserID, store.ParticipantData{DisplayName: "Bob"})
	require.NoError(t, err)
	second, err := svc.GetOrCreateConversation(ctx, bob.UserID, store.ParticipantData{DisplayName: "Bob"}, alice.UserID, store.ParticipantData{DisplayName: "Alice"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, [2]string{"usr-alice", "usr-bob"}, second.Participants)
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")

	_, err := svc.GetOrCreateConversation(context.Background(), alice.UserID, store.ParticipantData{}, alice.UserID, store.ParticipantData{})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.GetOrCreateConversation(context.Background(), " ", store.ParticipantData{}, alice.UserID, store.ParticipantData{})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestStartConversationRevivesDeletedThread(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, "usr-bob")
	require.NoError(t, err)
	conversationID := started["id"].(string)

	require.NoError(t, svc.DeleteConversation(ctx, conversationID, alice.UserID))
	list, err := svc.GetUserConversations(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, list)

	again, err := svc.StartConversation(ctx, alice, "usr-bob")
	require.NoError(t, err)
	assert.Equal(t, conversationID, again["id"])

	list, err = svc.GetUserConversations(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bob", list[0]["otherUser"].(map[string]any)["displayName"])
}

func TestStartConversationUnknownUser(t *testing.T) {
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")

	_, err := svc.StartConversation(context.Background(), alice, "usr-ghost")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestSendMessageBumpsRecipientUnread(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, bob.UserID)
	require.NoError(t, err)
	conversationID := started["id"].(string)

	msg, err := svc.Reply(ctx, alice, conversationID, "  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", msg["text"])
	assert.Equal(t, bob.UserID, msg["recipientId"])
	assert.Equal(t, false, msg["read"])

	bobUnread, err := svc.UnreadTotal(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, bobUnread)
	aliceUnread, err := svc.UnreadTotal(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, aliceUnread)

	bobList, err := svc.GetUserConversations(ctx, bob.UserID)
	require.NoError(t, err)
	require.Len(t, bobList, 1)
	assert.Equal(t, "hello there", bobList[0]["lastMessage"])
	assert.Equal(t, alice.UserID, bobList[0]["lastSenderId"])

	items := notificationItems(t, svc, bob.UserID)
	require.Len(t, items, 1)
	assert.Equal(t, NotificationMessage, items[0]["type"])
	assert.Equal(t, "New message from Alice", items[0]["title"])
	assert.Equal(t, "/messages/"+conversationID, items[0]["link"])
}

func TestSendMessagePublishesToBothParticipants(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := realtime.NewMemoryBroker()
	svc, ms := newTestService(t, Dependencies{Broker: broker})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, bob.UserID)
	require.NoError(t, err)

	events, unsubscribe := broker.Subscribe(ctx, bob.UserID)
	defer unsubscribe()

	_, err = svc.Reply(ctx, alice, started["id"].(string), "ping")
	require.NoError(t, err)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-events:
			seen[event.Type] = true
		case <-timeout:
			t.Fatalf("expected message and notification events, got %v", seen)
		}
	}
	assert.True(t, seen[realtime.EventMessageCreated])
	assert.True(t, seen[realtime.EventNotificationCreated])
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")
	carol := addUser(t, ms, "usr-carol", "Carol", "carol@moai.test")

	started, err := svc.StartConversation(ctx, alice, "usr-bob")
	require.NoError(t, err)
	conversationID := started["id"].(string)

	_, err = svc.Reply(ctx, alice, conversationID, "   ")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.Reply(ctx, alice, conversationID, strings.Repeat("a", maxMessageLength+1))
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.SendMessage(ctx, conversationID, alice.UserID, store.ParticipantData{DisplayName: "Alice"}, carol.UserID, "hi")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.Reply(ctx, carol, conversationID, "hi")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestSendMessageBlocked(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, bob.UserID)
	require.NoError(t, err)
	require.NoError(t, svc.BlockUser(ctx, bob, alice.UserID))
	assert.True(t, svc.IsBlocked(ctx, alice.UserID, bob.UserID))
	assert.True(t, svc.IsBlocked(ctx, bob.UserID, alice.UserID))

	_, err = svc.Reply(ctx, alice, started["id"].(string), "hello?")
	requireDomainError(t, err, http.StatusForbidden, "BLOCKED")

	unread, err := svc.UnreadTotal(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.NoError(t, svc.UnblockUser(ctx, bob, alice.UserID))
	_, err = svc.Reply(ctx, alice, started["id"].(string), "hello again")
	require.NoError(t, err)
}

func TestMarkMessagesAsReadResetsCounter(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, bob.UserID)
	require.NoError(t, err)
	conversationID := started["id"].(string)
	for _, text := range []string{"one", "two"} {
		_, err := svc.Reply(ctx, alice, conversationID, text)
		require.NoError(t, err)
	}

	marked, err := svc.MarkMessagesAsRead(ctx, conversationID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	unread, err := svc.UnreadTotal(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	messages, err := svc.GetConversationMessages(ctx, conversationID, alice.UserID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	for _, msg := range messages {
		assert.Equal(t, true, msg["read"])
	}

	marked, err = svc.MarkMessagesAsRead(ctx, conversationID, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestDeleteMessageHidesOnlyForViewer(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	started, err := svc.StartConversation(ctx, alice, bob.UserID)
	require.NoError(t, err)
	conversationID := started["id"].(string)
	msg, err := svc.Reply(ctx, alice, conversationID, "regrettable")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMessage(ctx, conversationID, msg["id"].(string), alice.UserID))

	aliceView, err := svc.GetConversationMessages(ctx, conversationID, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, aliceView)
	bobView, err := svc.GetConversationMessages(ctx, conversationID, bob.UserID)
	require.NoError(t, err)
	assert.Len(t, bobView, 1)

	err = svc.DeleteMessage(ctx, conversationID, "msg-missing", alice.UserID)
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestSubmitNotifiesAdminsAndStaysPending(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	member := addUser(t, ms, "usr-member", "Member", "member@moai.test")
	addUser(t, ms, "usr-admin", "Admin", toolkitAdminEmail)

	item, err := svc.SubmitToolkit(ctx, member, SubmissionInput{
		Title:       "Brush pack",
		Description: "Forty brushes",
		Link:        "https://example.com/brushes",
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, item["status"])

	adminItems := notificationItems(t, svc, "usr-admin")
	require.Len(t, adminItems, 1)
	assert.Equal(t, NotificationToolkitSubmitted, adminItems[0]["type"])

	public, err := svc.ListApproved(ctx, store.KindToolkit, "", 0)
	require.NoError(t, err)
	assert.Empty(t, public)

	mine, err := svc.ListMySubmissions(ctx, member, store.KindToolkit)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSubmitValidation(t *testing.T) {
	svc, ms := newTestService(t, Dependencies{})
	member := addUser(t, ms, "usr-member", "Member", "member@moai.test")

	_, err := svc.SubmitNews(context.Background(), member, SubmissionInput{Title: " ", Link: "ftp://example.com"})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	fields := domainErr.Details.(map[string]any)["fields"].(map[string]string)
	assert.Equal(t, "required", fields["title"])
	assert.Equal(t, "required", fields["description"])
	assert.Contains(t, fields, "link")
}

func TestAdminSubmissionIsAutoApproved(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	editor := addUser(t, ms, "usr-editor", "Editor", newsAdminEmail)

	item, err := svc.SubmitNews(ctx, editor, SubmissionInput{Title: "Open call", Description: "Deadline Friday"})
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, item["status"])
	assert.NotNil(t, item["publishedAt"])

	public, err := svc.ListApproved(ctx, store.KindNews, "", 0)
	require.NoError(t, err)
	assert.Len(t, public, 1)
	assert.Empty(t, notificationItems(t, svc, editor.UserID))
}

func TestApproveAndRejectTransitions(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	member := addUser(t, ms, "usr-member", "Member", "member@moai.test")
	admin := addUser(t, ms, "usr-admin", "Admin", toolkitAdminEmail)
	newsAdmin := addUser(t, ms, "usr-news", "News", newsAdminEmail)

	item, err := svc.SubmitToolkit(ctx, member, SubmissionInput{Title: "Palette", Description: "Warm tones"})
	require.NoError(t, err)
	id := item["id"].(string)

	_, err = svc.Approve(ctx, member, store.KindToolkit, id)
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
	_, err = svc.Approve(ctx, newsAdmin, store.KindToolkit, id)
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	_, err = svc.Reject(ctx, admin, store.KindToolkit, id, "   ")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	assert.Empty(t, notificationItems(t, svc, member.UserID))

	approved, err := svc.Approve(ctx, admin, store.KindToolkit, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusApproved, approved["status"])
	assert.Equal(t, admin.UserID, approved["reviewedBy"])

	memberItems := notificationItems(t, svc, member.UserID)
	require.Len(t, memberItems, 1)
	assert.Equal(t, NotificationToolkitApproved, memberItems[0]["type"])

	_, err = svc.Reject(ctx, admin, store.KindToolkit, id, "too late")
	domainErr := requireDomainError(t, err, http.StatusConflict, "INVALID_TRANSITION")
	assert.Equal(t, store.StatusApproved, domainErr.Details.(map[string]any)["status"])

	_, err = svc.Approve(ctx, admin, store.KindToolkit, id)
	requireDomainError(t, err, http.StatusConflict, "INVALID_TRANSITION")
}

func TestRejectRecordsReason(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	member := addUser(t, ms, "usr-member", "Member", "member@moai.test")
	admin := addUser(t, ms, "usr-admin", "Admin", newsAdminEmail)

	item, err := svc.SubmitNews(ctx, member, SubmissionInput{Title: "Rumor", Description: "Unsourced"})
	require.NoError(t, err)
	id := item["id"].(string)

	rejected, err := svc.Reject(ctx, admin, store.KindNews, id, " needs a source ")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, rejected["status"])
	assert.Equal(t, "needs a source", rejected["rejectionReason"])

	memberItems := notificationItems(t, svc, member.UserID)
	require.Len(t, memberItems, 1)
	assert.Equal(t, NotificationNewsRejected, memberItems[0]["type"])
	assert.Contains(t, memberItems[0]["message"], "needs a source")

	_, err = svc.UpdatePending(ctx, member, store.KindNews, id, SubmissionInput{Title: "Rumor", Description: "Now sourced"})
	requireDomainError(t, err, http.StatusConflict, "INVALID_TRANSITION")

	_, err = svc.GetSubmission(ctx, nil, store.KindNews, id)
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
	owned, err := svc.GetSubmission(ctx, &member, store.KindNews, id)
	require.NoError(t, err)
	assert.Equal(t, id, owned["id"])
}

func TestUpdatePendingOnlyBySubmitter(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	member := addUser(t, ms, "usr-member", "Member", "member@moai.test")
	other := addUser(t, ms, "usr-other", "Other", "other@moai.test")

	item, err := svc.SubmitToolkit(ctx, member, SubmissionInput{Title: "Draft", Description: "v1"})
	require.NoError(t, err)
	id := item["id"].(string)

	_, err = svc.UpdatePending(ctx, other, store.KindToolkit, id, SubmissionInput{Title: "Hijack", Description: "v2"})
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	updated, err := svc.UpdatePending(ctx, member, store.KindToolkit, id, SubmissionInput{Title: "Draft", Description: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", updated["description"])
}

func approvedToolkit(t *testing.T, svc *Service, ms *store.MemoryStore) string {
	t.Helper()
	admin := addUser(t, ms, "usr-admin", "Admin", toolkitAdminEmail)
	item, err := svc.SubmitToolkit(context.Background(), admin, SubmissionInput{Title: "Inks", Description: "Ink set"})
	require.NoError(t, err)
	return item["id"].(string)
}

func TestAverageRating(t *testing.T) {
	average, count := averageRating(nil)
	assert.Equal(t, 0.0, average)
	assert.Equal(t, 0, count)

	average, count = averageRating([]int{5, 4})
	assert.Equal(t, 4.5, average)
	assert.Equal(t, 2, count)

	average, _ = averageRating([]int{5, 4, 4})
	assert.Equal(t, 4.3, average)
}

func TestSaveReviewOnePerUser(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	toolkitID := approvedToolkit(t, svc, ms)
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	empty, err := svc.GetToolkitAverageRating(ctx, toolkitID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"average": 0.0, "count": 0}, empty)

	_, err = svc.SaveReview(ctx, alice.UserID, toolkitID, "", 3, "ok")
	require.NoError(t, err)
	_, err = svc.SaveReview(ctx, alice.UserID, toolkitID, "", 5, "great after all")
	require.NoError(t, err)
	_, err = svc.SaveReview(ctx, bob.UserID, toolkitID, "", 4, "")
	require.NoError(t, err)

	reviews, err := svc.ListToolkitReviews(ctx, toolkitID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)

	rating, err := svc.GetToolkitAverageRating(ctx, toolkitID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, rating["average"])
	assert.Equal(t, 2, rating["count"])

	mine, err := svc.GetUserReview(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, 5, mine["rating"])

	updated, err := svc.SaveReview(ctx, alice.UserID, toolkitID, mine["id"].(string), 2, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, 2, updated["rating"])

	_, err = svc.SaveReview(ctx, bob.UserID, toolkitID, mine["id"].(string), 1, "not mine")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	// A review id only updates the toolkit it belongs to.
	admin := Session{UserID: "usr-admin", UserName: "Admin", Email: toolkitAdminEmail}
	other, err := svc.SubmitToolkit(ctx, admin, SubmissionInput{Title: "Brushes", Description: "Brush pack"})
	require.NoError(t, err)
	otherID := other["id"].(string)

	_, err = svc.SaveReview(ctx, alice.UserID, otherID, mine["id"].(string), 1, "wrong toolkit")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	mine, err = svc.GetUserReview(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	assert.Equal(t, 2, mine["rating"])
	assert.Equal(t, toolkitID, mine["toolkitId"])

	otherRating, err := svc.GetToolkitAverageRating(ctx, otherID)
	require.NoError(t, err)
	assert.Equal(t, 0, otherRating["count"])
}

func TestSaveReviewValidation(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	toolkitID := approvedToolkit(t, svc, ms)
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")

	_, err := svc.SaveReview(ctx, alice.UserID, toolkitID, "", 0, "")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	_, err = svc.SaveReview(ctx, alice.UserID, toolkitID, "", 6, "")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	pending, err := svc.SubmitToolkit(ctx, alice, SubmissionInput{Title: "Unreviewed", Description: "pending"})
	require.NoError(t, err)
	_, err = svc.SaveReview(ctx, alice.UserID, pending["id"].(string), "", 4, "")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	mine, err := svc.GetUserReview(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	assert.Nil(t, mine)
}

func TestAddFavoriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	toolkitID := approvedToolkit(t, svc, ms)
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")

	first, err := svc.AddFavorite(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	second, err := svc.AddFavorite(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	assert.Equal(t, first["id"], second["id"])

	favorites, err := svc.ListFavorites(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, favorites, 1)

	favoriteID, err := svc.CheckIsFavorited(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	assert.Equal(t, first["id"], favoriteID)

	require.NoError(t, svc.RemoveFavorite(ctx, alice.UserID, favoriteID))
	favoriteID, err = svc.CheckIsFavorited(ctx, alice.UserID, toolkitID)
	require.NoError(t, err)
	assert.Empty(t, favoriteID)

	err = svc.RemoveFavorite(ctx, alice.UserID, first["id"].(string))
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		created, err := svc.CreateNotification(ctx, NotificationInput{UserID: alice.UserID, Type: NotificationMessage, Title: title})
		require.NoError(t, err)
		ids = append(ids, created["id"].(string))
	}
	_, err := svc.CreateNotification(ctx, NotificationInput{UserID: alice.UserID, Title: "untyped"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	listed, err := svc.ListNotifications(ctx, alice.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, listed["unreadCount"])

	require.NoError(t, svc.MarkNotificationRead(ctx, alice.UserID, ids[0]))
	listed, err = svc.ListNotifications(ctx, alice.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, listed["unreadCount"])

	marked, err := svc.MarkAllNotificationsRead(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	removed, err := svc.ClearNotifications(ctx, alice.UserID, []string{" ", ""})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, notificationItems(t, svc, alice.UserID), 3)

	removed, err = svc.ClearNotifications(ctx, alice.UserID, []string{ids[1]})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = svc.ClearNotifications(ctx, alice.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, notificationItems(t, svc, alice.UserID))
}

func TestDeleteNotificationScopedToOwner(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	created, err := svc.CreateNotification(ctx, NotificationInput{UserID: alice.UserID, Type: NotificationMessage, Title: "hi"})
	require.NoError(t, err)

	err = svc.DeleteNotification(ctx, bob.UserID, created["id"].(string))
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
	require.NoError(t, svc.DeleteNotification(ctx, alice.UserID, created["id"].(string)))
}

func TestProfilePrivacy(t *testing.T) {
	ctx := context.Background()
	svc, ms := newTestService(t, Dependencies{})
	alice := addUser(t, ms, "usr-alice", "Alice", "alice@moai.test")
	bob := addUser(t, ms, "usr-bob", "Bob", "bob@moai.test")

	location := "Lisbon"
	hidden := false
	_, err := svc.UpdateProfile(ctx, alice, ProfileInput{Location: &location, LocationPublic: &hidden})
	require.NoError(t, err)

	public, err := svc.GetProfile(ctx, &bob, alice.UserID)
	require.NoError(t, err)
	assert.NotContains(t, public, "email")
	assert.NotContains(t, public, "location")

	own, err := svc.GetProfile(ctx, &alice, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", own["location"])

	_, err = svc.UpdateProfile(ctx, alice, ProfileInput{ContactMethods: []string{"carrier-pigeon"}})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	avatar := "avatars/usr-bob/face.png"
	_, err = svc.UpdateProfile(ctx, alice, ProfileInput{AvatarKey: &avatar})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Dependencies{})

	resp, err := svc.SignUp(ctx, authSignUp("ana@moai.test", "Ana"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.VerificationToken)

	_, err = svc.SignIn(ctx, authSignIn("ana@moai.test"))
	requireDomainError(t, err, http.StatusForbidden, "EMAIL_NOT_VERIFIED")

	require.NoError(t, svc.VerifyEmail(ctx, resp.VerificationToken))
	session, err := svc.SignIn(ctx, authSignIn("ana@moai.test"))
	require.NoError(t, err)
	assert.Equal(t, "Ana", session.UserName)

	fromToken, err := svc.SessionFromToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, fromToken.UserID)

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)
	_, err = svc.Refresh(ctx, session.RefreshToken)
	assert.Error(t, err)

	require.NoError(t, svc.Logout(ctx, fromToken, refreshed.RefreshToken))
	_, err = svc.SessionFromToken(ctx, session.Token)
	assert.Error(t, err)

	_, err = svc.SignUp(ctx, authSignUp("ana@moai.test", "Ana again"))
	requireDomainError(t, err, http.StatusConflict, "EMAIL_EXISTS")
}
