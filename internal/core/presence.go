package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// Registry is the single source of truth for which users currently have
// a live connection. It maps a user identity to the session registered
// for it and mirrors the online flag into the user store.
//
// All methods are safe for concurrent use from per-connection
// goroutines. The registry is process-local; a multi-node deployment
// would swap the backing map for a shared presence store behind the
// same surface.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	users store.UserStore
	log   *zerolog.Logger
}

// NewRegistry builds an empty registry persisting presence through users.
func NewRegistry(users store.UserStore, logger *zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		users:    users,
		log:      logger,
	}
}

// Register records sess as the live connection for its bound user,
// unconditionally overwriting any previous entry (last writer wins; the
// orphaned session is not forcibly closed here). It persists online=true
// and broadcasts user_online to every other registered session.
func (r *Registry) Register(ctx context.Context, sess *Session) {
	userID := sess.UserID()

	r.mu.Lock()
	r.sessions[userID] = sess
	r.mu.Unlock()

	if err := r.users.SetPresence(ctx, userID, true, sess.ID); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to persist online presence")
	}

	r.broadcast(&Event{Kind: EventUserOnline, UserID: userID}, sess)
	r.log.Debug().Int64("user_id", userID).Str("session_id", sess.ID).Msg("session registered")
}

// Unregister removes the entry for the session's user only if the
// registry still points at this exact session. A stale disconnect after
// a reconnect is a no-op, so the fresher session keeps the entry. On
// successful removal it persists online=false and broadcasts
// user_offline.
func (r *Registry) Unregister(ctx context.Context, sess *Session) {
	userID := sess.UserID()

	r.mu.Lock()
	current, ok := r.sessions[userID]
	if !ok || current.ID != sess.ID {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, userID)
	r.mu.Unlock()

	if err := r.users.SetPresence(ctx, userID, false, ""); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to persist offline presence")
	}

	r.broadcast(&Event{Kind: EventUserOffline, UserID: userID}, sess)
	r.log.Debug().Int64("user_id", userID).Str("session_id", sess.ID).Msg("session unregistered")
}

// Lookup returns the session registered for the user, if any.
// Non-blocking; absence means the user is offline.
func (r *Registry) Lookup(userID int64) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()
	return sess, ok
}

// Online reports whether the user currently has a registered session.
func (r *Registry) Online(userID int64) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// broadcast sends an event to every registered session except the one
// given. Slow consumers are dropped, never waited on.
func (r *Registry) broadcast(ev *Event, except *Session) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if except != nil && sess.ID == except.ID {
			continue
		}
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	for _, sess := range targets {
		sess.Send(ev)
	}
}
