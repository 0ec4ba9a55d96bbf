package auth

import (
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/user"
	"github.com/edutech/marketplace-server-go/pkg/config"
	"github.com/edutech/marketplace-server-go/pkg/email"
	"github.com/edutech/marketplace-server-go/pkg/response"
	"github.com/edutech/marketplace-server-go/pkg/types"
)

// Handler processes authentication HTTP requests.
type Handler struct {
	db             *gorm.DB
	logger         *slog.Logger
	cfg            *config.Config
	emailClient    *email.Client
	googleVerifier GoogleVerifier
}

// NewHandler constructs an auth handler instance.
func NewHandler(db *gorm.DB, logger *slog.Logger, cfg *config.Config, emailClient *email.Client, googleVerifier GoogleVerifier) *Handler {
	return &Handler{
		db:             db,
		logger:         logger,
		cfg:            cfg,
		emailClient:    emailClient,
		googleVerifier: googleVerifier,
	}
}

// Register creates a new user account.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required"`
		Role      string `json:"role"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid registration payload", err)
		return
	}

	authResp, err := Register(h.db, RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      types.Role(req.Role),
	}, h.tokenConfig())

	if err != nil {
		h.respondError(c, err, "registration failed")
		return
	}

	go func() {
		if err := h.emailClient.SendWelcome(req.Email, authResp.User.DisplayName()); err != nil {
			h.logger.Error("failed to send welcome email",
				slog.String("email", req.Email),
				slog.String("error", err.Error()))
		}
	}()

	response.Created(c, authResp, "Registration successful")
}

// Login authenticates a user and returns JWT tokens.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid login payload", err)
		return
	}

	authResp, err := Login(h.db, LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, h.tokenConfig())

	if err != nil {
		h.respondError(c, err, "login failed")
		return
	}

	response.Success(c, http.StatusOK, authResp, "Login successful", nil)
}

// GoogleSignIn authenticates a user via a Google OAuth authorization code.
func (h *Handler) GoogleSignIn(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid google sign-in payload", err)
		return
	}

	authResp, err := GoogleSignIn(c.Request.Context(), h.db, h.googleVerifier, req.Code, h.tokenConfig())
	if err != nil {
		h.respondError(c, err, "google sign-in failed")
		return
	}

	response.Success(c, http.StatusOK, authResp, "Login successful", nil)
}

// GoogleAuthURL returns the Google consent-screen URL the client redirects to.
func (h *Handler) GoogleAuthURL(c *gin.Context) {
	state := c.Query("state")
	response.Success(c, http.StatusOK, gin.H{"url": h.googleVerifier.AuthURL(state)}, "", nil)
}

// Logout clears the user's refresh token.
func (h *Handler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "no access token provided", nil)
		return
	}

	if err := Logout(h.db, ExtractToken(authHeader), h.tokenConfig()); err != nil {
		h.respondError(c, err, "logout failed")
		return
	}

	response.Success(c, http.StatusOK, true, "Logout successful", nil)
}

// RequestPasswordReset sends a password reset email.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid email", err)
		return
	}

	resetInfo, err := RequestPasswordReset(h.db, req.Email, h.tokenConfig())
	if err != nil {
		h.respondError(c, err, "failed to request password reset")
		return
	}

	if resetInfo != nil {
		go func() {
			if err := h.emailClient.SendPasswordReset(resetInfo.Email, resetInfo.Token, h.cfg.Email.FrontendURL); err != nil {
				h.logger.Error("failed to send password reset email",
					slog.String("email", resetInfo.Email),
					slog.String("error", err.Error()))
			}
		}()
		h.logger.Info("password reset requested", slog.String("email", req.Email))
	}

	response.Success(c, http.StatusOK, true, "If the email exists in our system, a password reset link has been sent.", nil)
}

// ResetPassword changes a user's password using a reset token.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid reset payload", err)
		return
	}

	if err := ResetPassword(h.db, req.Token, req.NewPassword, h.tokenConfig()); err != nil {
		h.respondError(c, err, "password reset failed")
		return
	}

	response.Success(c, http.StatusOK, true, "Password reset successful. Please login with your new password.", nil)
}

// RefreshToken generates new tokens using a refresh token.
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid refresh token payload", err)
		return
	}

	tokenPair, err := RefreshAccessToken(h.db, req.RefreshToken, h.tokenConfig())
	if err != nil {
		h.respondError(c, err, "token refresh failed")
		return
	}

	response.Success(c, http.StatusOK, tokenPair, "", nil)
}

func (h *Handler) tokenConfig() TokenConfig {
	return TokenConfig{
		JWTSecret:           h.cfg.JWTSecret,
		JWTRefreshSecret:    h.cfg.JWTRefreshSecret,
		AccessTokenExpiry:   h.cfg.AccessTokenExpiry,
		RefreshTokenExpiry:  h.cfg.RefreshTokenExpiry,
		PasswordResetExpiry: time.Hour,
	}
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "Invalid email or password"
	case errors.Is(err, ErrMissingFields):
		status = http.StatusBadRequest
		message = "Missing required fields"
	case errors.Is(err, ErrInvalidEmail):
		status = http.StatusBadRequest
		message = "Invalid email format"
	case errors.Is(err, ErrWeakPassword):
		status = http.StatusBadRequest
		message = "Password must be at least 8 characters long"
	case errors.Is(err, ErrInvalidToken):
		status = http.StatusUnauthorized
		message = "Invalid or expired token"
	case errors.Is(err, ErrInvalidTokenType):
		status = http.StatusBadRequest
		message = "Invalid token type"
	case errors.Is(err, ErrGoogleAuthFailed):
		status = http.StatusUnauthorized
		message = "Google authentication failed"
	case errors.Is(err, user.ErrEmailTaken):
		status = http.StatusBadRequest
		message = "A user with this email already exists"
	case errors.Is(err, user.ErrInvalidRole):
		status = http.StatusBadRequest
		message = "Role must be tutor or student"
	case errors.Is(err, user.ErrUserNotFound):
		status = http.StatusNotFound
		message = "User not found"
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
