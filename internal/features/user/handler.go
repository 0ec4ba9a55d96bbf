package user

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/pkg/objectstore"
	"github.com/edutech/marketplace-server-go/pkg/request"
	"github.com/edutech/marketplace-server-go/pkg/response"
)

// Handler processes user profile HTTP requests.
type Handler struct {
	db      *gorm.DB
	storage *objectstore.Client
	logger  *slog.Logger
}

// NewHandler constructs a user handler instance.
func NewHandler(db *gorm.DB, storage *objectstore.Client, logger *slog.Logger) *Handler {
	return &Handler{db: db, storage: storage, logger: logger}
}

// GetProfile returns the authenticated user's profile.
func (h *Handler) GetProfile(c *gin.Context) {
	currentUser, ok := userFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	usr, err := Get(h.db, currentUser.ID)
	if err != nil {
		h.respondError(c, err, "failed to load profile")
		return
	}

	response.Success(c, http.StatusOK, usr, "", nil)
}

// UpdateProfile modifies the allow-listed profile fields of the current user.
func (h *Handler) UpdateProfile(c *gin.Context) {
	currentUser, ok := userFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	body := map[string]interface{}{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid profile payload", err)
		return
	}

	input := UpdateInput{}

	if value, ok := body["firstName"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "firstName must be a string", err)
			return
		}
		input.FirstName = &str
	}

	if value, ok := body["lastName"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "lastName must be a string", err)
			return
		}
		input.LastName = &str
	}

	if value, ok := body["bio"]; ok {
		input.BioProvided = true
		if value != nil {
			str, err := request.ReadString(value)
			if err != nil {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "bio must be a string", err)
				return
			}
			input.Bio = &str
		}
	}

	usr, err := Update(h.db, currentUser.ID, input)
	if err != nil {
		h.respondError(c, err, "failed to update profile")
		return
	}

	response.Success(c, http.StatusOK, usr, "", nil)
}

// UploadProfilePicture stores a new profile picture and returns its URL.
func (h *Handler) UploadProfilePicture(c *gin.Context) {
	currentUser, ok := userFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}

	fileHeader, err := c.FormFile("picture")
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "No file uploaded", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "failed to read uploaded file", err)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	remotePath := fmt.Sprintf("profile-pictures/%s%s", currentUser.ID, ext)
	contentType := fileHeader.Header.Get("Content-Type")

	// Replace the previous picture before uploading the new one
	if currentUser.ProfilePicture != nil {
		oldPath := h.storage.ExtractRelativePath(*currentUser.ProfilePicture)
		if err := h.storage.Delete(c.Request.Context(), oldPath); err != nil {
			h.logger.Warn("failed to delete old profile picture",
				slog.String("userId", currentUser.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	publicURL, err := h.storage.UploadStream(c.Request.Context(), remotePath, file, contentType)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to upload profile picture", err)
		return
	}

	usr, err := SetProfilePicture(h.db, currentUser.ID, publicURL)
	if err != nil {
		h.respondError(c, err, "failed to save profile picture")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"profilePicture": usr.ProfilePicture}, "", nil)
}

// userFromContext reads the authenticated user set by the auth middleware,
// mirroring middleware.GetUserFromContext without importing pkg/middleware
// (which imports this package).
func userFromContext(c *gin.Context) (*User, bool) {
	userVal, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	if usr, ok := userVal.(*User); ok && usr != nil {
		return usr, true
	}

	if usr, ok := userVal.(User); ok {
		return &usr, true
	}

	return nil, false
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
		message = "User not found"
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusBadRequest
		message = "A user with this email already exists"
	case errors.Is(err, ErrInvalidPassword):
		status = http.StatusBadRequest
		message = "Password must be at least 8 characters"
	case errors.Is(err, ErrInvalidRole):
		status = http.StatusBadRequest
		message = "Role must be tutor or student"
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
