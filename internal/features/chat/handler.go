package chat

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/response"
)

// Handler processes chat HTTP requests.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs a chat handler instance.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// GetRoom returns the course room, creating it on first access.
func (h *Handler) GetRoom(c *gin.Context) {
	courseID, currentUser, ok := h.courseAndUser(c)
	if !ok {
		return
	}

	room, err := h.service.GetOrCreateRoom(courseID, currentUser)
	if err != nil {
		h.respondError(c, err, "failed to load chat room")
		return
	}

	response.Success(c, http.StatusOK, room, "", nil)
}

// SendMessage appends a message to the course room.
func (h *Handler) SendMessage(c *gin.Context) {
	courseID, currentUser, ok := h.courseAndUser(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	message, err := h.service.AppendMessage(courseID, currentUser, req.Content)
	if err != nil {
		h.respondError(c, err, "failed to send message")
		return
	}

	response.Success(c, http.StatusCreated, message, "Message sent.", nil)
}

// MarkRead marks every message from other senders as read.
func (h *Handler) MarkRead(c *gin.Context) {
	courseID, currentUser, ok := h.courseAndUser(c)
	if !ok {
		return
	}

	if err := h.service.MarkRead(courseID, currentUser); err != nil {
		h.respondError(c, err, "failed to mark messages as read")
		return
	}

	response.Success(c, http.StatusOK, nil, "Messages marked as read.", nil)
}

// UnreadCount returns the caller's unread message count for the room.
func (h *Handler) UnreadCount(c *gin.Context) {
	courseID, currentUser, ok := h.courseAndUser(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(courseID, currentUser)
	if err != nil {
		h.respondError(c, err, "failed to count unread messages")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unreadCount": count}, "", nil)
}

func (h *Handler) courseAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return uuid.Nil, uuid.Nil, false
	}

	currentUser, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "authentication required", nil)
		return uuid.Nil, uuid.Nil, false
	}

	return courseID, currentUser.ID, true
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrCourseNotFound), errors.Is(err, ErrRoomNotFound):
		response.ErrorWithLog(h.logger, c, http.StatusNotFound, "Course not found.", err)
	case errors.Is(err, ErrNotParticipant):
		response.ErrorWithLog(h.logger, c, http.StatusForbidden, "You are not a participant of this course.", err)
	case errors.Is(err, ErrEmptyContent):
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "Message content is required.", err)
	default:
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, fallback, err)
	}
}
