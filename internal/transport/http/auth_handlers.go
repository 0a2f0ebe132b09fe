package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmarkelov/talkwire-server/internal/auth"
	"github.com/vmarkelov/talkwire-server/internal/store"
	"github.com/vmarkelov/talkwire-server/internal/upload"
)

// AuthHandlers provides HTTP handlers for account operations.
type AuthHandlers struct {
	authService *auth.Service
	uploads     *upload.Store
	log         *zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(authService *auth.Service, uploads *upload.Store, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		uploads:     uploads,
		log:         logger,
	}
}

// VerifyOTPRequest represents the OTP verification request body.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordRequest represents the password reset initiation body.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest represents the password reset completion body.
type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required"`
	OTP      string `json:"otp" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user,omitempty"`
}

// MessageResponse represents a plain informational response body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles account creation with an optional avatar image.
// POST /api/auth/register (multipart form: name, email, password, image)
func (h *AuthHandlers) Register(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	password := c.PostForm("password")

	avatar := ""
	if file, err := c.FormFile("image"); err == nil {
		src, err := file.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to open avatar upload")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		defer src.Close()

		webPath, kind, err := h.uploads.Save(upload.KindAvatar, file.Filename, src)
		if err != nil {
			h.log.Debug().Err(err).Msg("avatar upload rejected")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported avatar file"})
			return
		}
		if kind != store.AttachmentImage {
			_ = h.uploads.Remove(webPath)
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "avatar must be an image"})
			return
		}
		avatar = webPath
	}

	user, err := h.authService.Register(c.Request.Context(), name, email, password, avatar)
	if err != nil {
		if avatar != "" {
			_ = h.uploads.Remove(avatar)
		}
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "verification code sent to " + user.Email})
}

// VerifyOTP handles the email verification step and issues the first token.
// POST /api/auth/verify-otp
func (h *AuthHandlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, user, err := h.authService.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: newUserResponse(user)})
}

// Login handles credential authentication.
// POST /api/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// ForgotPassword mails a password reset code.
// POST /api/auth/forgot-password
func (h *AuthHandlers) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password reset code sent"})
}

// ResetPassword completes an OTP-verified password reset.
// POST /api/auth/reset-password
func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.Password); err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// Profile returns the authenticated account.
// GET /api/auth/profile
func (h *AuthHandlers) Profile(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	user, err := h.authService.Profile(c.Request.Context(), uid)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *AuthHandlers) respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidName),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrNotVerified):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("auth operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
