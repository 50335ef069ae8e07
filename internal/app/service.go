package app

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"moai/api/internal/auth"
	"moai/api/internal/authpw"
	"moai/api/internal/config"
	"moai/api/internal/email"
	"moai/api/internal/logging"
	"moai/api/internal/media"
	"moai/api/internal/rbac"
	"moai/api/internal/realtime"
	"moai/api/internal/search"
	"moai/api/internal/store"
	"moai/api/internal/translate"
	"moai/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsersByEmails(context.Context, []string) ([]store.User, error)
	UpdateProfile(context.Context, store.User) error
	AddBlockedUser(context.Context, string, string) error
	RemoveBlockedUser(context.Context, string, string) error
	UpdateUserVerificationToken(context.Context, string, string, time.Time) error
	VerifyUserEmail(context.Context, string) error
	UpdateUserPassword(context.Context, string, string) error
	CreatePasswordReset(context.Context, string, string, time.Time) error
	GetPasswordReset(context.Context, string) (string, error)
	MarkPasswordResetUsed(context.Context, string) error

	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context, string, int) ([]store.Project, error)
	DeleteProject(context.Context, string, string) (bool, error)

	InsertSubmission(context.Context, store.Submission) error
	GetSubmission(context.Context, store.Kind, string) (store.Submission, error)
	ListSubmissions(context.Context, store.Kind, store.SubmissionFilter) ([]store.Submission, error)
	UpdatePendingSubmission(context.Context, store.Kind, string, string, store.SubmissionEdit) (bool, error)
	ApproveSubmission(context.Context, store.Kind, string, string, time.Time) (bool, error)
	RejectSubmission(context.Context, store.Kind, string, string, string, time.Time) (bool, error)

	GetConversation(context.Context, string) (store.Conversation, error)
	FindConversation(context.Context, string, string) (store.Conversation, error)
	CreateConversation(context.Context, store.Conversation) (store.Conversation, error)
	SetConversationDeleted(context.Context, string, string, bool) (bool, error)
	ListUserConversations(context.Context, string) ([]store.Conversation, error)
	UnreadTotal(context.Context, string) (int, error)
	AppendMessage(context.Context, store.Message, store.ParticipantData) error
	ListMessages(context.Context, string, string) ([]store.Message, error)
	MarkMessagesRead(context.Context, string, string, time.Time) (int, error)
	HideMessage(context.Context, string, string, string) (bool, error)

	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
	MarkNotificationRead(context.Context, string, string) (bool, error)
	MarkAllNotificationsRead(context.Context, string) (int, error)
	DeleteNotifications(context.Context, string, []string) (int, error)

	UpsertReview(context.Context, store.Review) (store.Review, error)
	UpdateReview(context.Context, string, string, string, int, string) (store.Review, error)
	GetUserReview(context.Context, string, string) (store.Review, error)
	ListReviews(context.Context, string) ([]store.Review, error)
	DeleteReview(context.Context, string, string) (bool, error)
	InsertFavorite(context.Context, store.Favorite) (store.Favorite, error)
	GetFavorite(context.Context, string, string) (store.Favorite, error)
	DeleteFavorite(context.Context, string, string) (bool, error)
	ListFavorites(context.Context, string) ([]store.Favorite, error)

	sessionStore
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens and the access token denylist. Redis
// serves it in production; the data store covers single-node setups.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

// Dependencies are the optional collaborators of Service. Nil fields fall
// back to in-process or disabled behavior.
type Dependencies struct {
	Sessions   sessionStore
	Broker     realtime.Broker
	Search     *search.Service
	Media      *media.Store
	Email      *email.Service
	Translator *translate.Client
	// PasswordCost overrides the bcrypt cost; zero keeps the default.
	PasswordCost int
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   sessionStore
	broker     realtime.Broker
	search     *search.Service
	media      *media.Store
	email      *email.Service
	translator *translate.Client
	policy     *rbac.Policy
	passwords  *authpw.Service
	now        func() time.Time
}

func New(cfg config.Config, dataStore dataStore, deps Dependencies) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	broker := deps.Broker
	if broker == nil {
		broker = realtime.NewMemoryBroker()
	}
	passwords := authpw.NewService(dataStore)
	if deps.PasswordCost > 0 {
		passwords = passwords.WithCost(deps.PasswordCost)
	}
	if cfg.NotificationLimit <= 0 {
		cfg.NotificationLimit = defaultNotificationLimit
	}
	return &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   sessions,
		broker:     broker,
		search:     deps.Search,
		media:      deps.Media,
		email:      deps.Email,
		translator: deps.Translator,
		policy: rbac.NewPolicy(map[rbac.Area][]string{
			rbac.AreaToolkits: cfg.ToolkitAdmins,
			rbac.AreaNews:     cfg.NewsAdmins,
		}),
		passwords: passwords,
		now:       time.Now,
	}
}

// Bootstrap prepares external dependencies. Failures are logged; the API
// still serves without search or media.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.media != nil {
		if err := s.media.EnsureBucket(ctx); err != nil {
			logging.Logger.WithError(err).Warn("media bucket unavailable")
		}
	}
	if s.search != nil {
		go s.search.ReindexAll(context.WithoutCancel(ctx))
	}
	return nil
}

func (s *Service) Broker() realtime.Broker {
	return s.broker
}

func (s *Service) PasswordAuth() *authpw.Service {
	return s.passwords
}

func (s *Service) EmailConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The session store only knows the user
// id, so the profile is reloaded for the new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// IsAdmin reports whether the session email is on area's allow-list.
func (s *Service) IsAdmin(session Session, area rbac.Area) bool {
	return s.policy.IsAdmin(area, session.Email)
}

func (s *Service) Can(session Session, area rbac.Area, action rbac.Action) bool {
	return s.policy.Can(area, session.Email, action)
}

// publish delivers a change event to userID. Delivery failures never fail
// the operation that caused them.
func (s *Service) publish(ctx context.Context, userID, eventType string, data any) {
	event, err := realtime.NewEvent(eventType, data)
	if err != nil {
		logging.Logger.WithError(err).Warn("encode event")
		return
	}
	if err := s.broker.Publish(ctx, userID, event); err != nil {
		logging.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"event":   eventType,
			"error":   err,
		}).Warn("publish event")
	}
}

func (s *Service) Search(query search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}
	}
	return s.search.Search(query)
}

// SyncSnapshot is the payload of the periodic stream sync event.
func (s *Service) SyncSnapshot(ctx context.Context, userID string) (map[string]any, error) {
	messages, err := s.store.UnreadTotal(ctx, userID)
	if err != nil {
		return nil, err
	}
	notifications, err := s.store.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"unreadMessages":      messages,
		"unreadNotifications": notifications,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
