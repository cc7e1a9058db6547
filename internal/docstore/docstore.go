package docstore

import (
	"context"
	"errors"
	"time"
)

// UserID identifies a user across all documents.
type UserID string

// ConversationID identifies a two-party conversation.
type ConversationID string

// User represents an account in the system.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// Message is a single entry in a conversation log. Immutable once appended;
// CreatedAt is the ordering key.
type Message struct {
	ID        string
	SenderID  UserID
	Text      string
	ImageURL  string // empty when the message carries no attachment
	CreatedAt time.Time
}

// Conversation is the append-only message log between two participants.
type Conversation struct {
	ID           ConversationID
	Participants [2]UserID
	Messages     []Message
	CreatedAt    time.Time
}

// Other returns the participant that is not the given user.
func (c *Conversation) Other(u UserID) UserID {
	if c.Participants[0] == u {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// HasParticipant reports whether the user takes part in the conversation.
func (c *Conversation) HasParticipant(u UserID) bool {
	return c.Participants[0] == u || c.Participants[1] == u
}

// ChatSummary is the denormalized per-user view of one conversation,
// used to render a conversation list without reading the full log.
// Exactly two summaries exist per conversation, one per participant.
type ChatSummary struct {
	ChatID      ConversationID
	LastMessage string
	IsSeen      bool
	UpdatedAt   time.Time
}

// Common errors returned by store implementations.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSummaryNotFound      = errors.New("chat summary not found")
	ErrStoreClosed          = errors.New("store is closed")
)

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id UserID) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserBySessionID retrieves a guest user by session ID.
	GetUserBySessionID(ctx context.Context, sessionID string) (*User, error)
}

// ConversationStore owns the authoritative append-only message log.
type ConversationStore interface {
	// CreateConversation creates an empty conversation between two users.
	// Conversations exist before their first message; appends never create them.
	CreateConversation(ctx context.Context, a, b UserID) (*Conversation, error)

	// GetConversation returns the current full snapshot of the log.
	GetConversation(ctx context.Context, id ConversationID) (*Conversation, error)

	// AppendMessage durably adds a message to the log. The conversation must
	// already exist. No deduplication is performed: a retried append whose
	// earlier write actually succeeded produces a duplicate entry.
	AppendMessage(ctx context.Context, id ConversationID, msg Message) error

	// WatchConversation opens a live subscription on one conversation.
	// The current snapshot is delivered first, then one snapshot per committed
	// write to that conversation, in the store's write order for that id.
	// No ordering holds across different conversation ids.
	WatchConversation(ctx context.Context, id ConversationID) (*Watch, error)
}

// ChatIndexStore owns the per-user set of conversation summaries.
// Writes are plain read-modify-write upserts; two concurrent writers to the
// same (user, chat) pair race and the last one wins. The interface isolates
// that step so an atomic-merge implementation can replace it.
type ChatIndexStore interface {
	// GetSummary returns the summary for one (user, conversation) pair.
	// Returns ErrSummaryNotFound before the first fan-out write.
	GetSummary(ctx context.Context, userID UserID, chatID ConversationID) (*ChatSummary, error)

	// PutSummary upserts a summary, creating it on first write.
	PutSummary(ctx context.Context, userID UserID, summary ChatSummary) error

	// ListSummaries returns all summaries for a user.
	ListSummaries(ctx context.Context, userID UserID) ([]*ChatSummary, error)

	// MarkSeen clears the unread flag on one summary.
	MarkSeen(ctx context.Context, userID UserID, chatID ConversationID) error
}

// BlockStore persists directional block relations.
type BlockStore interface {
	// CreateBlock records that blocker blocks blocked. Idempotent.
	CreateBlock(ctx context.Context, blocker, blocked UserID) error

	// DeleteBlock removes a block relation. Reports whether one existed.
	DeleteBlock(ctx context.Context, blocker, blocked UserID) (bool, error)

	// HasBlock reports whether blocker blocks blocked (directional).
	HasBlock(ctx context.Context, blocker, blocked UserID) (bool, error)

	// ListBlocked returns all users blocked by the given user.
	ListBlocked(ctx context.Context, blocker UserID) ([]UserID, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	ChatIndexStore
	BlockStore

	// Close closes the underlying database connection and ends all watches.
	Close() error
}
