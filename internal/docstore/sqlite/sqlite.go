package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"chatsync/internal/docstore"
)

// SQLiteStore implements docstore.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	hub *watchHub

	// writeMu serializes conversation writes with snapshot reads so that
	// watch delivery order matches write order per conversation.
	writeMu sync.Mutex
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, hub: newWatchHub()}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_guest      BOOLEAN NOT NULL DEFAULT 0,
		session_id    TEXT,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		sender_id       TEXT NOT NULL,
		text            TEXT NOT NULL,
		image_url       TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	);

	CREATE TABLE IF NOT EXISTS userchats (
		user_id      TEXT NOT NULL,
		chat_id      TEXT NOT NULL,
		last_message TEXT NOT NULL DEFAULT '',
		is_seen      BOOLEAN NOT NULL DEFAULT 0,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);

	CREATE TABLE IF NOT EXISTS blocks (
		blocker_id TEXT NOT NULL,
		blocked_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (blocker_id, blocked_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_userchats_user ON userchats(user_id, updated_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// Close ends all watches and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*docstore.User, error) {
	id := docstore.UserID(uuid.NewString())
	query := `
		INSERT INTO users (id, username, password_hash, is_guest, created_at)
		VALUES (?, ?, ?, 0, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, passwordHash, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*docstore.User, error) {
	id := docstore.UserID(uuid.NewString())
	guestUsername := "guest_" + sessionID[:8]
	query := `
		INSERT INTO users (id, username, password_hash, is_guest, session_id, created_at)
		VALUES (?, ?, '', 1, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, guestUsername, sessionID, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id docstore.UserID) (*docstore.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*docstore.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// GetUserBySessionID retrieves a guest user by session ID.
func (s *SQLiteStore) GetUserBySessionID(ctx context.Context, sessionID string) (*docstore.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE session_id = ? AND is_guest = 1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, sessionID))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*docstore.User, error) {
	var user docstore.User
	var createdAt int64
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

// ==== ConversationStore implementation ====

// CreateConversation creates an empty conversation between two users.
func (s *SQLiteStore) CreateConversation(ctx context.Context, a, b docstore.UserID) (*docstore.Conversation, error) {
	id := docstore.ConversationID(uuid.NewString())
	query := `
		INSERT INTO conversations (id, participant_a, participant_b, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, a, b, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// GetConversation returns the current full snapshot of the log.
func (s *SQLiteStore) GetConversation(ctx context.Context, id docstore.ConversationID) (*docstore.Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, created_at
		FROM conversations
		WHERE id = ?
	`
	var conv docstore.Conversation
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.Participants[0],
		&conv.Participants[1],
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrConversationNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, createdAt).UTC()

	msgQuery := `
		SELECT id, sender_id, text, image_url, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, seq
	`
	rows, err := s.db.QueryContext(ctx, msgQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg docstore.Message
		var msgCreatedAt int64
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.Text, &msg.ImageURL, &msgCreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, msgCreatedAt).UTC()
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return &conv, nil
}

// AppendMessage durably adds a message to the log and notifies watchers.
func (s *SQLiteStore) AppendMessage(ctx context.Context, id docstore.ConversationID, msg docstore.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.conversationExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return docstore.ErrConversationNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, id, msg.SenderID, msg.Text, msg.ImageURL, msg.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	// Snapshot is read under writeMu so watchers observe commits in order.
	snap, err := s.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("read snapshot after append: %w", err)
	}
	s.hub.publish(id, snap)

	return nil
}

// WatchConversation opens a live subscription on one conversation.
func (s *SQLiteStore) WatchConversation(ctx context.Context, id docstore.ConversationID) (*docstore.Watch, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.hub.isClosed() {
		return nil, docstore.ErrStoreClosed
	}
	snap, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.hub.add(id, snap)
}

func (s *SQLiteStore) conversationExists(ctx context.Context, id docstore.ConversationID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query conversation: %w", err)
	}
	return true, nil
}

// ==== ChatIndexStore implementation ====

// GetSummary returns the summary for one (user, conversation) pair.
func (s *SQLiteStore) GetSummary(ctx context.Context, userID docstore.UserID, chatID docstore.ConversationID) (*docstore.ChatSummary, error) {
	query := `
		SELECT chat_id, last_message, is_seen, updated_at
		FROM userchats
		WHERE user_id = ? AND chat_id = ?
	`
	var sum docstore.ChatSummary
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID, chatID).Scan(
		&sum.ChatID,
		&sum.LastMessage,
		&sum.IsSeen,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrSummaryNotFound
		}
		return nil, fmt.Errorf("query summary: %w", err)
	}
	sum.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &sum, nil
}

// PutSummary upserts a summary, creating it on first write.
func (s *SQLiteStore) PutSummary(ctx context.Context, userID docstore.UserID, summary docstore.ChatSummary) error {
	query := `
		INSERT INTO userchats (user_id, chat_id, last_message, is_seen, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, chat_id) DO UPDATE SET
			last_message = excluded.last_message,
			is_seen      = excluded.is_seen,
			updated_at   = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, userID, summary.ChatID, summary.LastMessage, summary.IsSeen, summary.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// ListSummaries returns all summaries for a user, most recent first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, userID docstore.UserID) ([]*docstore.ChatSummary, error) {
	query := `
		SELECT chat_id, last_message, is_seen, updated_at
		FROM userchats
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*docstore.ChatSummary
	for rows.Next() {
		var sum docstore.ChatSummary
		var updatedAt int64
		if err := rows.Scan(&sum.ChatID, &sum.LastMessage, &sum.IsSeen, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updatedAt).UTC()
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// MarkSeen clears the unread flag on one summary.
func (s *SQLiteStore) MarkSeen(ctx context.Context, userID docstore.UserID, chatID docstore.ConversationID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE userchats SET is_seen = 1 WHERE user_id = ? AND chat_id = ?`,
		userID, chatID,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return docstore.ErrSummaryNotFound
	}
	return nil
}

// ==== BlockStore implementation ====

// CreateBlock records that blocker blocks blocked. Idempotent.
func (s *SQLiteStore) CreateBlock(ctx context.Context, blocker, blocked docstore.UserID) error {
	query := `
		INSERT OR IGNORE INTO blocks (blocker_id, blocked_id, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, blocker, blocked, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block relation.
func (s *SQLiteStore) DeleteBlock(ctx context.Context, blocker, blocked docstore.UserID) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE blocker_id = ? AND blocked_id = ?`,
		blocker, blocked,
	)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// HasBlock reports whether blocker blocks blocked.
func (s *SQLiteStore) HasBlock(ctx context.Context, blocker, blocked docstore.UserID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM blocks WHERE blocker_id = ? AND blocked_id = ?`,
		blocker, blocked,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query block: %w", err)
	}
	return true, nil
}

// ListBlocked returns all users blocked by the given user.
func (s *SQLiteStore) ListBlocked(ctx context.Context, blocker docstore.UserID) ([]docstore.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT blocked_id FROM blocks WHERE blocker_id = ? ORDER BY created_at`,
		blocker,
	)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var blocked []docstore.UserID
	for rows.Next() {
		var id docstore.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocked = append(blocked, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return blocked, nil
}

var _ docstore.Store = (*SQLiteStore)(nil)
