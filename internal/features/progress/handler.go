package progress

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/course"
	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/response"
)

// Handler processes video progress HTTP requests.
type Handler struct {
	db       *gorm.DB
	recorder *Recorder
	logger   *slog.Logger
}

// NewHandler constructs a progress handler instance.
func NewHandler(db *gorm.DB, recorder *Recorder, logger *slog.Logger) *Handler {
	return &Handler{db: db, recorder: recorder, logger: logger}
}

// Get returns the caller's progress for one video. A viewer who has
// never watched the video gets a zeroed record, not an error.
func (h *Handler) Get(c *gin.Context) {
	courseID, videoID, userID, ok := h.identifiers(c)
	if !ok {
		return
	}

	record, err := h.recorder.Get(c.Request.Context(), courseID, videoID, userID)
	if err == ErrProgressNotFound {
		record = &VideoProgress{CourseID: courseID, VideoID: videoID, UserID: userID}
		err = nil
	}
	if err != nil {
		h.respondError(c, err, "failed to load video progress")
		return
	}

	response.Success(c, http.StatusOK, record, "", nil)
}

// Save records a progress update for the caller.
func (h *Handler) Save(c *gin.Context) {
	courseID, videoID, userID, ok := h.identifiers(c)
	if !ok {
		return
	}

	var req struct {
		Progress  float64 `json:"progress"`
		Completed bool    `json:"completed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	record, err := h.recorder.Record(c.Request.Context(), courseID, videoID, userID, req.Progress, req.Completed)
	if err != nil {
		h.respondError(c, err, "failed to save video progress")
		return
	}

	response.Success(c, http.StatusOK, record, "Progress saved.", nil)
}

func (h *Handler) identifiers(c *gin.Context) (uuid.UUID, uuid.UUID, uuid.UUID, bool) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	videoID, err := uuid.Parse(c.Param("videoId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid video id", err)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	currentUser, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "authentication required", nil)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	participant, err := course.IsParticipant(h.db, courseID, currentUser.ID)
	if err != nil {
		h.respondError(c, err, "failed to verify course access")
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	if !participant {
		response.ErrorWithLog(h.logger, c, http.StatusForbidden, "You are not a participant of this course.", nil)
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	if _, err := course.GetVideo(h.db, courseID, videoID); err != nil {
		h.respondError(c, err, "failed to load video")
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	return courseID, videoID, currentUser.ID, true
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, course.ErrCourseNotFound):
		response.ErrorWithLog(h.logger, c, http.StatusNotFound, "Course not found.", err)
	case errors.Is(err, course.ErrVideoNotFound):
		response.ErrorWithLog(h.logger, c, http.StatusNotFound, "Video not found.", err)
	case errors.Is(err, ErrInvalidProgress):
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "Progress must be between 0 and 100.", err)
	default:
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, fallback, err)
	}
}
