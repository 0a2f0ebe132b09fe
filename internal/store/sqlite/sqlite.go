package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	otp           TEXT NOT NULL DEFAULT '',
	otp_expires   DATETIME,
	is_verified   BOOLEAN NOT NULL DEFAULT 0,
	online        BOOLEAN NOT NULL DEFAULT 0,
	connection_id TEXT NOT NULL DEFAULT '',
	avatar        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	from_user       INTEGER NOT NULL,
	to_user         INTEGER NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	attachment      TEXT NOT NULL DEFAULT '',
	attachment_kind TEXT NOT NULL DEFAULT '',
	delivered       BOOLEAN NOT NULL DEFAULT 0,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	FOREIGN KEY (from_user) REFERENCES users(id),
	FOREIGN KEY (to_user) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(from_user, to_user, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(to_user, is_read);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
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

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function
// instead of the embedded schema. Useful for tests.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Schema returns the embedded schema DDL. Exposed for test setups.
func Schema() string {
	return schema
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user and fills in the generated ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, otp, otp_expires, is_verified, avatar)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var expires interface{}
	if !u.OTPExpires.IsZero() {
		expires = u.OTPExpires
	}
	result, err := s.db.ExecContext(ctx, query, u.Name, u.Email, u.PasswordHash, u.OTP, expires, u.IsVerified, u.Avatar)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	u.ID = id
	return nil
}

const userColumns = `id, name, email, password_hash, otp, otp_expires, is_verified, online, connection_id, avatar, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var user store.User
	var otpExpires sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.OTP,
		&otpExpires,
		&user.IsVerified,
		&user.Online,
		&user.ConnectionID,
		&user.Avatar,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if otpExpires.Valid {
		user.OTPExpires = otpExpires.Time
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// SetOTP stores a one-time code and its expiry for the user.
func (s *SQLiteStore) SetOTP(ctx context.Context, userID int64, otp string, expires time.Time) error {
	query := `UPDATE users SET otp = ?, otp_expires = ? WHERE id = ?`
	var exp interface{}
	if !expires.IsZero() {
		exp = expires
	}
	result, err := s.db.ExecContext(ctx, query, otp, exp, userID)
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	return requireRow(result)
}

// MarkVerified flags the account as verified and clears the OTP.
func (s *SQLiteStore) MarkVerified(ctx context.Context, userID int64) error {
	query := `UPDATE users SET is_verified = 1, otp = '', otp_expires = NULL WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return requireRow(result)
}

// UpdatePassword replaces the password hash and clears the OTP.
func (s *SQLiteStore) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, otp = '', otp_expires = NULL WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(result)
}

// SetPresence records the user's online flag and connection reference.
func (s *SQLiteStore) SetPresence(ctx context.Context, userID int64, online bool, connectionID string) error {
	query := `UPDATE users SET online = ?, connection_id = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, online, connectionID, userID)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return requireRow(result)
}

// ResetPresence marks every user offline.
func (s *SQLiteStore) ResetPresence(ctx context.Context) error {
	query := `UPDATE users SET online = 0, connection_id = '' WHERE online = 1 OR connection_id != ''`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, from_user, to_user, content, attachment, attachment_kind, delivered, is_read, created_at`

// CreateMessage persists a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, from_user, to_user, content, attachment, attachment_kind, delivered, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.From,
		msg.To,
		msg.Content,
		msg.Attachment,
		string(msg.AttachmentKind),
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var msg store.Message
	var kind string
	err := row.Scan(
		&msg.ID,
		&msg.From,
		&msg.To,
		&msg.Content,
		&msg.Attachment,
		&kind,
		&msg.Delivered,
		&msg.Read,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.AttachmentKind = store.AttachmentKind(kind)
	return &msg, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// MarkDelivered flips delivered to true for the message.
// The WHERE clause keeps the transition monotonic: an already delivered
// message reports zero rows changed.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	query := `UPDATE messages SET delivered = 1 WHERE id = ? AND delivered = 0`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// BulkMarkRead flips read to true on all unread messages from -> to.
func (s *SQLiteStore) BulkMarkRead(ctx context.Context, from, to int64) (int64, error) {
	query := `UPDATE messages SET is_read = 1 WHERE from_user = ? AND to_user = ? AND is_read = 0`
	result, err := s.db.ExecContext(ctx, query, from, to)
	if err != nil {
		return 0, fmt.Errorf("bulk mark read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return rows, nil
}

// ListConversation returns all messages between two users, ascending.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB int64) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// DeleteMessage removes a persisted message record.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireRow(result)
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
