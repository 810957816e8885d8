package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/messenger/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	clockMu   sync.Mutex
	lastStamp int64
	now       func() time.Time
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			avatar TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL CHECK (length(content) > 0),
			created_at INTEGER NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, is_read)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			notification_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			link TEXT,
			is_read INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// stamp returns a creation time strictly later than every stamp handed out before.
func (s *SQLiteStore) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	n := s.now().UnixNano()
	if n <= s.lastStamp {
		n = s.lastStamp + 1
	}
	s.lastStamp = n
	return time.Unix(0, n).UTC()
}

func gatewayErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrGateway, op, err)
}

const messageColumns = `message_id, sender_id, receiver_id, content, created_at, is_read`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, extra ...any) (domain.Message, error) {
	var msg domain.Message
	var createdAt int64
	dest := append([]any{&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &createdAt, &msg.Read}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Message{}, err
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return msg, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.stamp()
	}
	message.Read = false

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.SenderID, message.ReceiverID, message.Content, message.CreatedAt.UnixNano(), false)
	if err != nil {
		return gatewayErr("create message", err)
	}
	return nil
}

// GetConversation retrieves the messages exchanged between two users, oldest first.
func (s *SQLiteStore) GetConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC`,
		a, b, b, a)
	if err != nil {
		return nil, gatewayErr("get conversation", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, gatewayErr("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("get conversation", err)
	}
	return messages, nil
}

// MarkConversationRead marks unread messages from peerID to readerID as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, peerID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`,
		peerID, readerID)
	if err != nil {
		return 0, gatewayErr("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, gatewayErr("mark read", err)
	}
	return n, nil
}

// ListThreads returns one summary per peer, ordered by the latest message descending.
func (s *SQLiteStore) ListThreads(ctx context.Context, userID string) ([]domain.ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH peers AS (
			SELECT CASE WHEN sender_id = ?1 THEN receiver_id ELSE sender_id END AS peer_id,
				`+messageColumns+`, rowid AS rid
			FROM messages
			WHERE sender_id = ?1 OR receiver_id = ?1
		),
		ranked AS (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY peer_id ORDER BY created_at DESC, rid DESC) AS rn
			FROM peers
		)
		SELECT `+messageColumns+`, peer_id,
			(SELECT COUNT(*) FROM messages m
				WHERE m.sender_id = ranked.peer_id AND m.receiver_id = ?1 AND m.is_read = 0) AS unread
		FROM ranked
		WHERE rn = 1
		ORDER BY created_at DESC, rid DESC`,
		userID)
	if err != nil {
		return nil, gatewayErr("list threads", err)
	}
	defer rows.Close()

	threads := []domain.ThreadSummary{}
	for rows.Next() {
		var summary domain.ThreadSummary
		msg, err := scanMessage(rows, &summary.PeerID, &summary.UnreadCount)
		if err != nil {
			return nil, gatewayErr("scan thread", err)
		}
		summary.LastMessage = msg
		threads = append(threads, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("list threads", err)
	}
	return threads, nil
}

// CreateNotification creates a new notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.stamp()
	}

	var link sql.NullString
	if n.Link != "" {
		link = sql.NullString{String: n.Link, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (notification_id, user_id, type, title, message, link, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, link, n.Read, n.CreatedAt.UnixNano())
	if err != nil {
		return gatewayErr("create notification", err)
	}
	return nil
}

// ListNotifications returns the latest notifications of a user, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT notification_id, user_id, type, title, message, link, is_read, created_at
		FROM notifications WHERE user_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, gatewayErr("list notifications", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var link sql.NullString
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &link, &n.Read, &createdAt); err != nil {
			return nil, gatewayErr("scan notification", err)
		}
		if link.Valid {
			n.Link = link.String
		}
		n.CreatedAt = time.Unix(0, createdAt).UTC()
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("list notifications", err)
	}
	return notifications, nil
}

// CountUnreadNotifications counts the unread notifications of a user.
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, gatewayErr("count notifications", err)
	}
	return count, nil
}

// MarkNotificationRead marks one notification of userID as read.
// It reports false when no such notification belongs to the user.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE notification_id = ? AND user_id = ?`,
		notificationID, userID)
	if err != nil {
		return false, gatewayErr("mark notification read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, gatewayErr("mark notification read", err)
	}
	return n > 0, nil
}

// MarkAllNotificationsRead marks every unread notification of userID as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, gatewayErr("mark notifications read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, gatewayErr("mark notifications read", err)
	}
	return n, nil
}

// GetUser retrieves a user profile by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var user domain.UserProfile
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, avatar FROM users WHERE user_id = ?`, userID).
		Scan(&user.ID, &user.Name, &avatar)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayErr("get user", err)
	}
	if avatar.Valid {
		user.Avatar = avatar.String
	}
	return &user, nil
}

// UpsertUser creates or updates a user profile.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.UserProfile) error {
	var avatar sql.NullString
	if user.Avatar != "" {
		avatar = sql.NullString{String: user.Avatar, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, name, avatar, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar, updated_at = excluded.updated_at`,
		user.ID, user.Name, avatar, time.Now().UnixNano())
	if err != nil {
		return gatewayErr("upsert user", err)
	}
	return nil
}
