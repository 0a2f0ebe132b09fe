package http

import (
	"context"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vmarkelov/talkwire-server/internal/auth"
	"github.com/vmarkelov/talkwire-server/internal/config"
	"github.com/vmarkelov/talkwire-server/internal/core"
	"github.com/vmarkelov/talkwire-server/internal/log"
	"github.com/vmarkelov/talkwire-server/internal/store"
	"github.com/vmarkelov/talkwire-server/internal/store/sqlite"
	"github.com/vmarkelov/talkwire-server/internal/upload"
)

// captureMailer records outgoing mail instead of sending it.
type captureMailer struct {
	bodies []string
}

func (m *captureMailer) Send(to, subject, body string) error {
	m.bodies = append(m.bodies, body)
	return nil
}

// lastOTP extracts the code from the most recent captured mail body.
func (m *captureMailer) lastOTP(t *testing.T) string {
	t.Helper()

	if len(m.bodies) == 0 {
		t.Fatal("no mail captured")
	}
	fields := strings.Fields(m.bodies[len(m.bodies)-1])
	return fields[len(fields)-1]
}

type testEnv struct {
	store       store.Store
	authService *auth.Service
	uploads     *upload.Store
	registry    *core.Registry
	router      *core.Router
	mailer      *captureMailer
	jwtConfig   *auth.JWTConfig
	server      *stdhttp.Server
	ts          *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	uploads, err := upload.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create upload store: %v", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	mailer := &captureMailer{}
	authService := auth.NewService(st, mailer, jwtConfig)

	logger := log.Discard()
	registry := core.NewRegistry(st, logger)
	router := core.NewRouter(registry, st, st, logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	server := NewServer(authService, st, uploads, registry, router, &cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		store:       st,
		authService: authService,
		uploads:     uploads,
		registry:    registry,
		router:      router,
		mailer:      mailer,
		jwtConfig:   jwtConfig,
		server:      server,
		ts:          ts,
	}
}

// seedVerifiedUser creates a ready-to-login account and returns it with
// a valid bearer token.
func (env *testEnv) seedVerifiedUser(t *testing.T, name, email string) (*store.User, string) {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	u := &store.User{Name: name, Email: email, PasswordHash: hash, IsVerified: true}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}

	token, err := auth.GenerateToken(env.jwtConfig, u.ID, u.Email)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return u, token
}
