package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vmarkelov/talkwire-server/internal/store/sqlite"
)

// fakeMailer records outgoing mail so tests can fish out the OTP.
type fakeMailer struct {
	to      []string
	bodies  []string
	failing bool
}

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.failing {
		return errors.New("smtp down")
	}
	m.to = append(m.to, to)
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *fakeMailer) lastOTP(t *testing.T) string {
	t.Helper()
	if len(m.bodies) == 0 {
		t.Fatal("no mail sent")
	}
	body := m.bodies[len(m.bodies)-1]
	fields := strings.Fields(body)
	return fields[len(fields)-1]
}

func newTestAuthService(t *testing.T) (*Service, *fakeMailer) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	mailer := &fakeMailer{}
	return NewService(st, mailer, jwtConfig), mailer
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "alice@example.com", "password123", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "not-an-email", "password123", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "alice@example.com", "12345", ""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, mailer := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", " Alice@Example.com ", "password123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.IsVerified {
		t.Fatal("new account must not be verified")
	}

	// Login before verification is refused.
	if _, err := svc.Login(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	// Wrong OTP is rejected.
	if _, _, err := svc.VerifyOTP(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrInvalidOTP) {
		// One-in-a-million collision with the real code; regenerate and move on.
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	token, verified, err := svc.VerifyOTP(ctx, "alice@example.com", mailer.lastOTP(t))
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	if token == "" || !verified.IsVerified {
		t.Fatalf("expected token and verified account, got token=%q user=%+v", token, verified)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// OTP is single-use.
	if _, _, err := svc.VerifyOTP(ctx, "alice@example.com", mailer.lastOTP(t)); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP on reuse, got %v", err)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "password123"); err != nil {
		t.Fatalf("login after verification: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// Duplicate registration collides on the normalized email.
	if _, err := svc.Register(ctx, "clone", "alice@example.com", "password123", ""); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegister_FailsWhenMailerFails(t *testing.T) {
	svc, mailer := newTestAuthService(t)
	mailer.failing = true
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "password123", ""); err == nil {
		t.Fatal("expected error when verification mail cannot be sent")
	}
}

func TestPasswordReset(t *testing.T) {
	svc, mailer := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "password123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.VerifyOTP(ctx, "alice@example.com", mailer.lastOTP(t)); err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	resetOTP := mailer.lastOTP(t)

	if err := svc.ResetPassword(ctx, "alice@example.com", "999999", "newpassword"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if err := svc.ResetPassword(ctx, "alice@example.com", resetOTP, "newpassword"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := svc.Login(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must be invalid, got %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "newpassword"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestExpiredOTPRejected(t *testing.T) {
	svc, mailer := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "password123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	otp := mailer.lastOTP(t)

	svc.now = func() time.Time { return time.Now().Add(OTPTTL + time.Minute) }
	if _, _, err := svc.VerifyOTP(ctx, "alice@example.com", otp); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for expired code, got %v", err)
	}
}
