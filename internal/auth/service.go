package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmarkelov/talkwire-server/internal/mail"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no account matches the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidName is returned when the name doesn't meet constraints.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidOTP is returned when a one-time code is wrong or expired.
	ErrInvalidOTP = errors.New("invalid or expired otp")
	// ErrNotVerified is returned when logging into an unverified account.
	ErrNotVerified = errors.New("account not verified")
)

// Service provides authentication operations: registration with OTP
// email verification, login, and OTP-based password reset.
type Service struct {
	store     store.UserStore
	mailer    mail.Sender
	jwtConfig *JWTConfig
	now       func() time.Time
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, mailer mail.Sender, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		mailer:    mailer,
		jwtConfig: jwtConfig,
		now:       time.Now,
	}
}

// Register creates an unverified user, stores a hashed password, and
// emails a one-time verification code. No token is issued until the
// account is verified.
func (s *Service) Register(ctx context.Context, name, email, password, avatar string) (*store.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || len(name) > 64 {
		return nil, ErrInvalidName
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	otp, err := GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	user := &store.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		OTP:          otp,
		OTPExpires:   s.now().Add(OTPTTL),
		Avatar:       avatar,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.Send(email, "Verify your account", "Your verification code is "+otp); err != nil {
		return nil, fmt.Errorf("send verification mail: %w", err)
	}

	return user, nil
}

// VerifyOTP checks the code sent at registration, marks the account
// verified, and returns a JWT token.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) (string, *store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, ErrUserNotFound
	}

	if !s.otpValid(user, otp) {
		return "", nil, ErrInvalidOTP
	}

	if err := s.store.MarkVerified(ctx, user.ID); err != nil {
		return "", nil, fmt.Errorf("mark verified: %w", err)
	}
	user.IsVerified = true

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials for a verified account and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.IsVerified {
		return "", ErrNotVerified
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ForgotPassword issues a fresh OTP and emails it for a password reset.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return ErrUserNotFound
	}

	otp, err := GenerateOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.SetOTP(ctx, user.ID, otp, s.now().Add(OTPTTL)); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if err := s.mailer.Send(user.Email, "Password reset code", "Your password reset code is "+otp); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword checks the reset OTP and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, email, otp, password string) error {
	if len(password) < 6 {
		return ErrInvalidPassword
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return ErrUserNotFound
	}

	if !s.otpValid(user, otp) {
		return ErrInvalidOTP
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Profile returns the account for the given user ID.
func (s *Service) Profile(ctx context.Context, userID int64) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) otpValid(user *store.User, otp string) bool {
	if user.OTP == "" || otp == "" {
		return false
	}
	if user.OTP != otp {
		return false
	}
	return s.now().Before(user.OTPExpires)
}
