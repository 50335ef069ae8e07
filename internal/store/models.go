package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	Bio                   string
	AvatarKey             string
	Location              string
	Phone                 string
	EmailPublic           bool
	PhonePublic           bool
	LocationPublic        bool
	ContactMethods        []string
	BlockedUserIDs        []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasBlocked reports whether u has otherID on their blocked list.
func (u User) HasBlocked(otherID string) bool {
	for _, id := range u.BlockedUserIDs {
		if id == otherID {
			return true
		}
	}
	return false
}

type Project struct {
	ID          string
	OwnerID     string
	OwnerName   string
	Title       string
	Description string
	ImageKey    string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Kind names a moderated collection. The value is also the table name.
type Kind string

const (
	KindToolkit Kind = "toolkits"
	KindNews    Kind = "news"
)

func (k Kind) Valid() bool {
	return k == KindToolkit || k == KindNews
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Submission is a toolkit or news item moving through moderation.
type Submission struct {
	Kind             Kind
	ID               string
	Title            string
	Description      string
	Link             string
	Category         string
	ImageKey         string
	Status           string
	SubmittedByID    string
	SubmittedByName  string
	SubmittedByEmail string
	ReviewedBy       string
	ReviewedAt       *time.Time
	PublishedAt      *time.Time
	RejectionReason  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// listedAt is the time an approved item went public.
func (s Submission) listedAt() time.Time {
	switch {
	case s.PublishedAt != nil:
		return *s.PublishedAt
	case s.ReviewedAt != nil:
		return *s.ReviewedAt
	}
	return s.CreatedAt
}

type SubmissionFilter struct {
	Status      string
	SubmitterID string
	Category    string
	Limit       int
}

// SubmissionEdit carries the fields a submitter may change while pending.
type SubmissionEdit struct {
	Title       string
	Description string
	Link        string
	Category    string
	ImageKey    string
}

type ParticipantData struct {
	DisplayName string `json:"displayName"`
	AvatarKey   string `json:"avatarKey"`
}

// Conversation is a two-party thread. Participants is always the sorted pair.
type Conversation struct {
	ID              string
	Participants    [2]string
	ParticipantData map[string]ParticipantData
	LastMessage     string
	LastMessageAt   *time.Time
	LastSenderID    string
	UnreadCount     map[string]int
	Deleted         map[string]bool
	CreatedAt       time.Time
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// SortedPair orders two user ids so each unordered pair has one key.
func SortedPair(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Text           string
	ReadAt         *time.Time
	DeletedFor     []string
	CreatedAt      time.Time
}

func (m Message) DeletedBy(userID string) bool {
	for _, id := range m.DeletedFor {
		if id == userID {
			return true
		}
	}
	return false
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Link      string
	Read      bool
	CreatedAt time.Time
}

type Review struct {
	ID        string
	UserID    string
	UserName  string
	ToolkitID string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Favorite struct {
	ID        string
	UserID    string
	ToolkitID string
	CreatedAt time.Time
}
