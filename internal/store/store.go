package store

import (
	"context"
	"time"
)

// User represents a registered account.
// Online and ConnectionID are ephemeral presence fields: they are written
// only by the presence registry and reset to offline on process start,
// since live connection handles cannot survive a restart.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	OTP          string
	OTPExpires   time.Time
	IsVerified   bool
	Online       bool
	ConnectionID string
	Avatar       string
	CreatedAt    time.Time
}

// AttachmentKind classifies a stored attachment.
type AttachmentKind string

const (
	AttachmentNone  AttachmentKind = ""
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Message is a persisted private message between two users.
// Immutable after creation except for the two monotonic status flags:
// Delivered and Read only ever flip false -> true.
type Message struct {
	ID             string
	From           int64
	To             int64
	Content        string
	Attachment     string
	AttachmentKind AttachmentKind
	Delivered      bool
	Read           bool
	CreatedAt      time.Time
}

// Clone returns an independent copy of the message. Event payloads are
// handed to per-connection goroutines, so they carry clones rather
// than sharing a record the router may still flip flags on.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a new user and fills in the generated ID.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers returns all users ordered by creation time.
	ListUsers(ctx context.Context) ([]*User, error)

	// SetOTP stores a one-time code and its expiry for the user.
	// An empty otp clears the code.
	SetOTP(ctx context.Context, userID int64, otp string, expires time.Time) error

	// MarkVerified flags the account as verified and clears the OTP.
	MarkVerified(ctx context.Context, userID int64) error

	// UpdatePassword replaces the password hash and clears the OTP.
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error

	// SetPresence records the user's online flag and connection reference.
	SetPresence(ctx context.Context, userID int64, online bool, connectionID string) error

	// ResetPresence marks every user offline. Called once at startup.
	ResetPresence(ctx context.Context) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message. The record must be durable
	// before any delivery is attempted by the caller.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// MarkDelivered flips delivered to true for the message.
	// Returns false if the message does not exist or was already delivered.
	MarkDelivered(ctx context.Context, id string) (bool, error)

	// BulkMarkRead flips read to true on all unread messages from -> to.
	// Returns the number of rows changed; zero means the call was a no-op.
	BulkMarkRead(ctx context.Context, from, to int64) (int64, error)

	// ListConversation returns all messages between two users, both
	// directions, ordered by creation time ascending.
	ListConversation(ctx context.Context, userA, userB int64) ([]*Message, error)

	// DeleteMessage removes a persisted message record.
	DeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
