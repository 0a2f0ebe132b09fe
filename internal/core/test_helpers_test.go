package core

import (
	"context"
	"testing"
	"time"

	"github.com/vmarkelov/talkwire-server/internal/log"
	"github.com/vmarkelov/talkwire-server/internal/store"
	"github.com/vmarkelov/talkwire-server/internal/store/sqlite"
)

type testCore struct {
	registry *Registry
	router   *Router
	store    *sqlite.SQLiteStore
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.Discard()
	registry := NewRegistry(st, logger)
	router := NewRouter(registry, st, st, logger)

	return &testCore{registry: registry, router: router, store: st}
}

func (tc *testCore) seedUser(t *testing.T, name, email string) *store.User {
	t.Helper()

	u := &store.User{Name: name, Email: email, PasswordHash: "hash", IsVerified: true}
	if err := tc.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}
	return u
}

// connect binds a fresh session to the user and registers it.
func (tc *testCore) connect(t *testing.T, userID int64, name string) *Session {
	t.Helper()

	sess := NewSession()
	if !sess.Bind(userID, name) {
		t.Fatalf("failed to bind session for user %d", userID)
	}
	if !sess.Activate() {
		t.Fatalf("failed to activate session for user %d", userID)
	}
	tc.registry.Register(context.Background(), sess)
	return sess
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent drains the channel and fails if an event of the given
// kind is pending.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
