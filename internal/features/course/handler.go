package course

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/user"
	"github.com/edutech/marketplace-server-go/pkg/cache"
	"github.com/edutech/marketplace-server-go/pkg/memory"
	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/objectstore"
	"github.com/edutech/marketplace-server-go/pkg/pagination"
	"github.com/edutech/marketplace-server-go/pkg/request"
	"github.com/edutech/marketplace-server-go/pkg/response"
	"github.com/edutech/marketplace-server-go/pkg/transcription"
	"github.com/edutech/marketplace-server-go/pkg/types"
	"github.com/edutech/marketplace-server-go/pkg/validation"
)

const (
	catalogCacheTTL = 5 * time.Minute
	catalogMaxAge   = 60 // seconds, Cache-Control for catalog responses
)

// Handler processes course HTTP requests.
type Handler struct {
	db          *gorm.DB
	storage     *objectstore.Client
	transcriber *transcription.Client
	cache       *cache.RedisClient
	local       *memory.Cache
	logger      *slog.Logger
}

// NewHandler constructs a course handler instance. The in-process cache
// backs the catalog when no Redis address is configured.
func NewHandler(db *gorm.DB, storage *objectstore.Client, transcriber *transcription.Client, cacheClient *cache.RedisClient, logger *slog.Logger) *Handler {
	return &Handler{
		db:          db,
		storage:     storage,
		transcriber: transcriber,
		cache:       cacheClient,
		local:       memory.New(catalogCacheTTL),
		logger:      logger,
	}
}

type catalogPage struct {
	Courses    []CourseWithTutor   `json:"courses"`
	Pagination pagination.Metadata `json:"pagination"`
}

// List returns the published course catalog with search and category filters.
func (h *Handler) List(c *gin.Context) {
	params := pagination.Extract(c)
	filters := ListFilters{
		Search:   strings.TrimSpace(c.Query("search")),
		Category: strings.TrimSpace(c.Query("category")),
	}

	cacheKey := fmt.Sprintf("courses:catalog:%s:%s:%d:%d", filters.Search, filters.Category, params.Page, params.Limit)

	if page, ok := h.cachedCatalogPage(c, cacheKey); ok {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", catalogMaxAge))
		response.Success(c, http.StatusOK, page.Courses, "", page.Pagination)
		return
	}

	courses, total, err := ListPublished(h.db, filters, params)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load courses", err)
		return
	}

	meta := pagination.MetadataFrom(total, params)
	page := catalogPage{Courses: courses, Pagination: meta}

	if h.cache.Enabled() {
		if err := h.cache.SetJSON(c.Request.Context(), cacheKey, page, catalogCacheTTL); err != nil {
			h.logger.Warn("failed to cache catalog page", slog.String("error", err.Error()))
		}
	} else {
		h.local.Set(cacheKey, page)
	}

	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", catalogMaxAge))
	response.Success(c, http.StatusOK, courses, "", meta)
}

func (h *Handler) cachedCatalogPage(c *gin.Context, key string) (catalogPage, bool) {
	if h.cache.Enabled() {
		var page catalogPage
		if err := h.cache.GetJSON(c.Request.Context(), key, &page); err == nil {
			return page, true
		}
		return catalogPage{}, false
	}

	if value, ok := h.local.Get(key); ok {
		if page, ok := value.(catalogPage); ok {
			return page, true
		}
	}
	return catalogPage{}, false
}

// GetByID returns a course with its videos, tutor, and enrolled students.
func (h *Handler) GetByID(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	crs, err := Get(h.db, courseID)
	if err != nil {
		h.respondError(c, err, "failed to load course")
		return
	}

	studentIDs, err := EnrolledStudentIDs(h.db, courseID)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load course", err)
		return
	}

	summaries, err := user.GetSummaries(h.db, append(studentIDs, crs.TutorID))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load course", err)
		return
	}

	students := make([]user.Summary, 0, len(studentIDs))
	for _, id := range studentIDs {
		if summary, ok := summaries[id]; ok {
			students = append(students, summary)
		}
	}

	payload := gin.H{"course": crs, "enrolledStudents": students}
	if tutor, ok := summaries[crs.TutorID]; ok {
		payload["tutor"] = tutor
	}

	response.SuccessWithCache(c, http.StatusOK, payload, "", catalogMaxAge)
}

// Create inserts a new course owned by the authenticated tutor.
func (h *Handler) Create(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	var req struct {
		Title       string   `json:"title" binding:"required"`
		Description string   `json:"description" binding:"required"`
		Price       float64  `json:"price"`
		Category    string   `json:"category" binding:"required"`
		Tags        []string `json:"tags"`
		Published   *bool    `json:"isPublished"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course payload", err)
		return
	}

	category, err := validation.NormalizeIdentifier(req.Category)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, err.Error(), err)
		return
	}

	crs, err := Create(h.db, CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       types.NewMoney(req.Price),
		TutorID:     currentUser.ID,
		Category:    category,
		Tags:        req.Tags,
		Published:   req.Published,
	})
	if err != nil {
		h.respondError(c, err, "failed to create course")
		return
	}

	response.Created(c, crs, "")
}

// Update modifies a course's allow-listed fields.
func (h *Handler) Update(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	body := map[string]interface{}{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course payload", err)
		return
	}

	input := UpdateInput{}

	if value, ok := body["title"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "title must be a string", err)
			return
		}
		input.Title = &str
	}

	if value, ok := body["description"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "description must be a string", err)
			return
		}
		input.Description = &str
	}

	if value, ok := body["price"]; ok {
		val, err := request.ReadFloat(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "price must be a number", err)
			return
		}
		price := types.NewMoney(val)
		input.Price = &price
	}

	if value, ok := body["category"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "category must be a string", err)
			return
		}
		normalized, err := validation.NormalizeIdentifier(str)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, err.Error(), err)
			return
		}
		input.Category = &normalized
	}

	if value, ok := body["tags"]; ok {
		input.TagsProvided = true
		if value != nil {
			items, ok := value.([]interface{})
			if !ok {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "tags must be an array of strings", nil)
				return
			}
			tags := make([]string, 0, len(items))
			for _, item := range items {
				str, err := request.ReadString(item)
				if err != nil {
					response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "tags must be an array of strings", err)
					return
				}
				tags = append(tags, str)
			}
			input.Tags = tags
		}
	}

	if value, ok := body["isPublished"]; ok {
		val, err := request.ReadBool(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "isPublished must be boolean", err)
			return
		}
		input.Published = &val
	}

	crs, err := Update(h.db, courseID, currentUser.ID, input)
	if err != nil {
		h.respondError(c, err, "failed to update course")
		return
	}

	response.Success(c, http.StatusOK, crs, "", nil)
}

// Delete removes a course and its stored media.
func (h *Handler) Delete(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	crs, err := Delete(h.db, courseID, currentUser.ID)
	if err != nil {
		h.respondError(c, err, "failed to delete course")
		return
	}

	// Media cleanup happens after the database delete so a storage failure
	// never resurrects the course
	ctx := c.Request.Context()
	if crs.ThumbnailURL != nil {
		if err := h.storage.Delete(ctx, h.storage.ExtractRelativePath(*crs.ThumbnailURL)); err != nil {
			h.logger.Warn("failed to delete course thumbnail", slog.String("courseId", courseID.String()), slog.String("error", err.Error()))
		}
	}
	for _, video := range crs.Videos {
		if video.URL != "" {
			if err := h.storage.Delete(ctx, h.storage.ExtractRelativePath(video.URL)); err != nil {
				h.logger.Warn("failed to delete course video", slog.String("videoId", video.ID.String()), slog.String("error", err.Error()))
			}
		}
		if video.ThumbnailURL != "" {
			if err := h.storage.Delete(ctx, h.storage.ExtractRelativePath(video.ThumbnailURL)); err != nil {
				h.logger.Warn("failed to delete video thumbnail", slog.String("videoId", video.ID.String()), slog.String("error", err.Error()))
			}
		}
	}

	response.Success(c, http.StatusOK, true, "Course deleted successfully", nil)
}

// UploadThumbnail stores a new course thumbnail and returns its URL.
func (h *Handler) UploadThumbnail(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	crs, err := GetOwned(h.db, courseID, currentUser.ID)
	if err != nil {
		h.respondError(c, err, "failed to load course")
		return
	}

	fileHeader, err := c.FormFile("thumbnail")
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

	ctx := c.Request.Context()

	if crs.ThumbnailURL != nil {
		if err := h.storage.Delete(ctx, h.storage.ExtractRelativePath(*crs.ThumbnailURL)); err != nil {
			h.logger.Warn("failed to delete old thumbnail", slog.String("courseId", courseID.String()), slog.String("error", err.Error()))
		}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	remotePath := fmt.Sprintf("course-thumbnails/%s%s", courseID, ext)

	publicURL, err := h.storage.UploadStream(ctx, remotePath, file, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to upload thumbnail", err)
		return
	}

	if err := SetThumbnail(h.db, courseID, publicURL); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to save thumbnail", err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"thumbnailUrl": publicURL}, "", nil)
}

// AddVideo uploads a lecture video and appends it to the course.
func (h *Handler) AddVideo(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if _, err := GetOwned(h.db, courseID, currentUser.ID); err != nil {
		h.respondError(c, err, "failed to load course")
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	description := strings.TrimSpace(c.PostForm("description"))
	if title == "" {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "Title is required", nil)
		return
	}

	fileHeader, err := c.FormFile("video")
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "No video file uploaded", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "failed to read uploaded file", err)
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	remotePath := fmt.Sprintf("course-videos/%s/%s%s", courseID, uuid.New(), ext)

	videoURL, err := h.storage.UploadStream(ctx, remotePath, file, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to upload video", err)
		return
	}

	var transcript, summary *string
	if h.transcriber.Enabled() && description != "" {
		if text, err := h.transcriber.GenerateTranscript(ctx, description); err != nil {
			h.logger.Warn("failed to generate transcript", slog.String("courseId", courseID.String()), slog.String("error", err.Error()))
		} else if text != "" {
			transcript = &text
			if brief, err := h.transcriber.SummarizeTranscript(ctx, text); err != nil {
				h.logger.Warn("failed to summarize transcript", slog.String("courseId", courseID.String()), slog.String("error", err.Error()))
			} else if brief != "" {
				summary = &brief
			}
		}
	}

	video, err := AddVideo(h.db, courseID, AddVideoInput{
		Title:       title,
		Description: description,
		URL:         videoURL,
		Transcript:  transcript,
		Summary:     summary,
	})
	if err != nil {
		h.respondError(c, err, "failed to add video")
		return
	}

	response.Created(c, video, "")
}

// Enroll adds the authenticated student to a course.
func (h *Handler) Enroll(c *gin.Context) {
	currentUser, _ := middleware.GetUserFromContext(c)

	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if err := Enroll(h.db, courseID, currentUser.ID); err != nil {
		h.respondError(c, err, "failed to enroll")
		return
	}

	response.Success(c, http.StatusOK, true, "Enrolled successfully", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrCourseNotFound):
		status = http.StatusNotFound
		message = "Course not found"
	case errors.Is(err, ErrVideoNotFound):
		status = http.StatusNotFound
		message = "Video not found"
	case errors.Is(err, ErrNotCourseTutor):
		status = http.StatusNotFound
		message = "Course not found"
	case errors.Is(err, ErrAlreadyEnrolled):
		status = http.StatusBadRequest
		message = "Already enrolled in this course"
	case errors.Is(err, ErrTitleRequired):
		status = http.StatusBadRequest
		message = "Title is required"
	case errors.Is(err, ErrInvalidPrice):
		status = http.StatusBadRequest
		message = "Price cannot be negative"
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
