package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps every collection in process memory. It backs local
// development without PostgreSQL and the service tests; it follows the same
// uniqueness and transition rules as PostgresStore.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]User
	resets        map[string]passwordReset
	refresh       map[string]refreshSession
	revoked       map[string]time.Time
	projects      map[string]Project
	submissions   map[Kind]map[string]Submission
	conversations map[string]Conversation
	messages      map[string][]Message
	notifications map[string]Notification
	reviews       map[string]Review
	favorites     map[string]Favorite
	now           func() time.Time
}

type passwordReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

type refreshSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		resets:        make(map[string]passwordReset),
		refresh:       make(map[string]refreshSession),
		revoked:       make(map[string]time.Time),
		projects:      make(map[string]Project),
		submissions:   map[Kind]map[string]Submission{KindToolkit: {}, KindNews: {}},
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		notifications: make(map[string]Notification),
		reviews:       make(map[string]Review),
		favorites:     make(map[string]Favorite),
		now:           time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneUser(user User) User {
	user.ContactMethods = cloneStrings(user.ContactMethods)
	user.BlockedUserIDs = cloneStrings(user.BlockedUserIDs)
	return user
}

func cloneConversation(item Conversation) Conversation {
	data := make(map[string]ParticipantData, len(item.ParticipantData))
	for k, v := range item.ParticipantData {
		data[k] = v
	}
	unread := make(map[string]int, len(item.UnreadCount))
	for k, v := range item.UnreadCount {
		unread[k] = v
	}
	deleted := make(map[string]bool, len(item.Deleted))
	for k, v := range item.Deleted {
		deleted[k] = v
	}
	item.ParticipantData = data
	item.UnreadCount = unread
	item.Deleted = deleted
	return item
}

// Users

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, strings.TrimSpace(user.Email)) {
			return fmt.Errorf("create user: email %q already exists", user.Email)
		}
	}
	now := s.now()
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.ContactMethods == nil {
		user.ContactMethods = []string{}
	}
	if user.BlockedUserIDs == nil {
		user.BlockedUserIDs = []string{}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return cloneUser(user), nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *MemoryStore) ListUsersByEmails(_ context.Context, emails []string) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]User, 0)
	for _, user := range s.users {
		for _, email := range emails {
			if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
				items = append(items, cloneUser(user))
				break
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.DisplayName = user.DisplayName
	existing.Bio = user.Bio
	existing.AvatarKey = user.AvatarKey
	existing.Location = user.Location
	existing.Phone = user.Phone
	existing.EmailPublic = user.EmailPublic
	existing.PhonePublic = user.PhonePublic
	existing.LocationPublic = user.LocationPublic
	existing.ContactMethods = cloneStrings(user.ContactMethods)
	existing.UpdatedAt = s.now()
	s.users[user.ID] = existing
	return nil
}

func (s *MemoryStore) AddBlockedUser(_ context.Context, userID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.HasBlocked(blockedID) {
		return nil
	}
	user.BlockedUserIDs = append(cloneStrings(user.BlockedUserIDs), blockedID)
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) RemoveBlockedUser(_ context.Context, userID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(user.BlockedUserIDs))
	for _, id := range user.BlockedUserIDs {
		if id != blockedID {
			kept = append(kept, id)
		}
	}
	user.BlockedUserIDs = kept
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) VerifyUserEmail(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, user := range s.users {
		if token == "" || user.VerificationToken != token {
			continue
		}
		if user.VerificationExpiresAt != nil && !s.now().Before(*user.VerificationExpiresAt) {
			return sql.ErrNoRows
		}
		user.IsEmailVerified = true
		user.VerificationToken = ""
		user.VerificationExpiresAt = nil
		s.users[id] = user
		return nil
	}
	return sql.ErrNoRows
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	s.users[userID] = user
	return nil
}

func (s *MemoryStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token] = passwordReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset, ok := s.resets[token]
	if !ok || reset.used || !s.now().Before(reset.expiresAt) {
		return "", sql.ErrNoRows
	}
	return reset.userID, nil
}

func (s *MemoryStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reset, ok := s.resets[token]; ok {
		reset.used = true
		s.resets[token] = reset
	}
	return nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	s.mu.Lock()
	session, ok := s.refresh[tokenHash]
	s.mu.Unlock()
	if !ok || session.revoked || !s.now().Before(session.expiresAt) {
		return User{}, sql.ErrNoRows
	}
	return s.GetUserByID(ctx, session.userID)
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.refresh[tokenHash]; ok {
		session.revoked = true
		s.refresh[tokenHash] = session
	}
	return nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = exp
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

// Projects

func (s *MemoryStore) InsertProject(_ context.Context, project Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now
	project.Tags = cloneStrings(project.Tags)
	s.projects[project.ID] = project
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, projectID string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, ownerID string, limit int) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Project, 0)
	for _, project := range s.projects {
		if ownerID == "" || project.OwnerID == ownerID {
			items = append(items, project)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, projectID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok || project.OwnerID != ownerID {
		return false, nil
	}
	delete(s.projects, projectID)
	return true, nil
}

// Moderation

func (s *MemoryStore) InsertSubmission(_ context.Context, item Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.submissions[item.Kind]
	if !ok {
		return fmt.Errorf("unknown submission kind %q", item.Kind)
	}
	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	items[item.ID] = item
	return nil
}

func (s *MemoryStore) GetSubmission(_ context.Context, kind Kind, id string) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[kind][id]
	if !ok {
		return Submission{}, sql.ErrNoRows
	}
	return item, nil
}

func (s *MemoryStore) ListSubmissions(_ context.Context, kind Kind, filter SubmissionFilter) ([]Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Submission, 0)
	for _, item := range s.submissions[kind] {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.SubmitterID != "" && item.SubmittedByID != filter.SubmitterID {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		items = append(items, item)
	}
	sortAt := func(item Submission) time.Time { return item.CreatedAt }
	if filter.Status == StatusApproved {
		sortAt = Submission.listedAt
	}
	sort.Slice(items, func(i, j int) bool { return sortAt(items[i]).After(sortAt(items[j])) })
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *MemoryStore) UpdatePendingSubmission(_ context.Context, kind Kind, id, submitterID string, edit SubmissionEdit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[kind][id]
	if !ok || item.SubmittedByID != submitterID || item.Status != StatusPending {
		return false, nil
	}
	item.Title = edit.Title
	item.Description = edit.Description
	item.Link = edit.Link
	item.Category = edit.Category
	item.ImageKey = edit.ImageKey
	item.UpdatedAt = s.now()
	s.submissions[kind][id] = item
	return true, nil
}

func (s *MemoryStore) ApproveSubmission(_ context.Context, kind Kind, id, reviewerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[kind][id]
	if !ok || item.Status != StatusPending {
		return false, nil
	}
	item.Status = StatusApproved
	item.ReviewedBy = reviewerID
	item.ReviewedAt = &at
	if kind == KindNews {
		item.PublishedAt = &at
	}
	item.UpdatedAt = s.now()
	s.submissions[kind][id] = item
	return true, nil
}

func (s *MemoryStore) RejectSubmission(_ context.Context, kind Kind, id, reviewerID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.submissions[kind][id]
	if !ok || item.Status != StatusPending {
		return false, nil
	}
	item.Status = StatusRejected
	item.ReviewedBy = reviewerID
	item.ReviewedAt = &at
	item.RejectionReason = reason
	item.UpdatedAt = s.now()
	s.submissions[kind][id] = item
	return true, nil
}

// Messaging

func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, sql.ErrNoRows
	}
	return cloneConversation(item), nil
}

func (s *MemoryStore) FindConversation(_ context.Context, userA, userB string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findConversationLocked(SortedPair(userA, userB))
}

func (s *MemoryStore) findConversationLocked(pair [2]string) (Conversation, error) {
	for _, item := range s.conversations {
		if item.Participants == pair {
			return cloneConversation(item), nil
		}
	}
	return Conversation{}, sql.ErrNoRows
}

func (s *MemoryStore) CreateConversation(_ context.Context, item Conversation) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := SortedPair(item.Participants[0], item.Participants[1])
	if existing, err := s.findConversationLocked(pair); err == nil {
		return existing, nil
	}
	item.Participants = pair
	item.CreatedAt = s.now()
	item.UnreadCount = map[string]int{pair[0]: 0, pair[1]: 0}
	item.Deleted = map[string]bool{pair[0]: false, pair[1]: false}
	if item.ParticipantData == nil {
		item.ParticipantData = map[string]ParticipantData{}
	}
	s.conversations[item.ID] = cloneConversation(item)
	return cloneConversation(item), nil
}

func (s *MemoryStore) SetConversationDeleted(_ context.Context, conversationID, userID string, deleted bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.conversations[conversationID]
	if !ok || !item.HasParticipant(userID) {
		return false, nil
	}
	item.Deleted[userID] = deleted
	return true, nil
}

func (s *MemoryStore) ListUserConversations(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Conversation, 0)
	for _, item := range s.conversations {
		if item.HasParticipant(userID) && !item.Deleted[userID] {
			items = append(items, cloneConversation(item))
		}
	}
	sortKey := func(c Conversation) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.SliceStable(items, func(i, j int) bool { return sortKey(items[i]).After(sortKey(items[j])) })
	return items, nil
}

func (s *MemoryStore) UnreadTotal(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, item := range s.conversations {
		if item.HasParticipant(userID) && !item.Deleted[userID] {
			total += item.UnreadCount[userID]
		}
	}
	return total, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg Message, senderData ParticipantData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.conversations[msg.ConversationID]
	if !ok {
		return sql.ErrNoRows
	}
	msg.DeletedFor = []string{}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)

	at := msg.CreatedAt
	item.LastMessage = msg.Text
	item.LastMessageAt = &at
	item.LastSenderID = msg.SenderID
	item.ParticipantData[msg.SenderID] = senderData
	item.UnreadCount[msg.RecipientID]++
	item.Deleted[msg.RecipientID] = false
	item.Deleted[msg.SenderID] = false
	s.conversations[msg.ConversationID] = item
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID, viewerID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Message, 0)
	for _, msg := range s.messages[conversationID] {
		if msg.DeletedBy(viewerID) {
			continue
		}
		msg.DeletedFor = cloneStrings(msg.DeletedFor)
		items = append(items, msg)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *MemoryStore) MarkMessagesRead(_ context.Context, conversationID, userID string, readAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].RecipientID == userID && msgs[i].ReadAt == nil {
			at := readAt
			msgs[i].ReadAt = &at
			marked++
		}
	}
	if item, ok := s.conversations[conversationID]; ok && item.HasParticipant(userID) {
		item.UnreadCount[userID] = 0
	}
	return marked, nil
}

func (s *MemoryStore) HideMessage(_ context.Context, conversationID, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if !msgs[i].DeletedBy(userID) {
			msgs[i].DeletedFor = append(msgs[i].DeletedFor, userID)
		}
		return true, nil
	}
	return false, nil
}

// Notifications

func (s *MemoryStore) InsertNotification(_ context.Context, item Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[item.ID] = item
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Notification, 0)
	for _, item := range s.notifications {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) UnreadNotificationCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.notifications {
		if item.UserID == userID && !item.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, notificationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.notifications[notificationID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	item.Read = true
	s.notifications[notificationID] = item
	return true, nil
}

func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	for id, item := range s.notifications {
		if item.UserID == userID && !item.Read {
			item.Read = true
			s.notifications[id] = item
			marked++
		}
	}
	return marked, nil
}

func (s *MemoryStore) DeleteNotifications(_ context.Context, userID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	removed := 0
	for id, item := range s.notifications {
		if item.UserID != userID {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		delete(s.notifications, id)
		removed++
	}
	return removed, nil
}

// Reviews and favorites

func (s *MemoryStore) UpsertReview(_ context.Context, item Review) (Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, existing := range s.reviews {
		if existing.UserID == item.UserID && existing.ToolkitID == item.ToolkitID {
			existing.Rating = item.Rating
			existing.Comment = item.Comment
			existing.UserName = item.UserName
			existing.UpdatedAt = now
			s.reviews[id] = existing
			return existing, nil
		}
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	s.reviews[item.ID] = item
	return item, nil
}

func (s *MemoryStore) UpdateReview(_ context.Context, reviewID, userID, toolkitID string, rating int, comment string) (Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.reviews[reviewID]
	if !ok || item.UserID != userID || item.ToolkitID != toolkitID {
		return Review{}, sql.ErrNoRows
	}
	item.Rating = rating
	item.Comment = comment
	item.UpdatedAt = s.now()
	s.reviews[reviewID] = item
	return item, nil
}

func (s *MemoryStore) GetUserReview(_ context.Context, userID, toolkitID string) (Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.reviews {
		if item.UserID == userID && item.ToolkitID == toolkitID {
			return item, nil
		}
	}
	return Review{}, sql.ErrNoRows
}

func (s *MemoryStore) ListReviews(_ context.Context, toolkitID string) ([]Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Review, 0)
	for _, item := range s.reviews {
		if item.ToolkitID == toolkitID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *MemoryStore) DeleteReview(_ context.Context, reviewID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.reviews[reviewID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(s.reviews, reviewID)
	return true, nil
}

func (s *MemoryStore) InsertFavorite(_ context.Context, item Favorite) (Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.favorites {
		if existing.UserID == item.UserID && existing.ToolkitID == item.ToolkitID {
			return existing, nil
		}
	}
	item.CreatedAt = s.now()
	s.favorites[item.ID] = item
	return item, nil
}

func (s *MemoryStore) GetFavorite(_ context.Context, userID, toolkitID string) (Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.favorites {
		if item.UserID == userID && item.ToolkitID == toolkitID {
			return item, nil
		}
	}
	return Favorite{}, sql.ErrNoRows
}

func (s *MemoryStore) DeleteFavorite(_ context.Context, favoriteID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.favorites[favoriteID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(s.favorites, favoriteID)
	return true, nil
}

func (s *MemoryStore) ListFavorites(_ context.Context, userID string) ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Favorite, 0)
	for _, item := range s.favorites {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}
