package course

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/user"
	"github.com/edutech/marketplace-server-go/pkg/pagination"
	"github.com/edutech/marketplace-server-go/pkg/types"
)

// Course represents a published or draft course owned by a tutor.
type Course struct {
	types.BaseModel

	Title        string         `gorm:"type:varchar(200);not null" json:"title"`
	Description  string         `gorm:"type:text;not null" json:"description"`
	ThumbnailURL *string        `gorm:"type:text;column:thumbnail_url" json:"thumbnailUrl,omitempty"`
	Price        types.Money    `gorm:"type:numeric(10,2);not null;default:0" json:"price"`
	TutorID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"tutorId"`
	Category     string         `gorm:"type:varchar(100);not null;index" json:"category"`
	Tags         pq.StringArray `gorm:"type:text[]" json:"tags"`
	Rating       float64        `gorm:"not null;default:0" json:"rating"`
	TotalRatings int            `gorm:"not null;default:0;column:total_ratings" json:"totalRatings"`
	Published    bool           `gorm:"not null;default:false;column:is_published;index" json:"isPublished"`

	Videos []Video `gorm:"foreignKey:CourseID" json:"videos,omitempty"`
}

// TableName overrides the default table name.
func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Video represents a single lecture video inside a course.
type Video struct {
	types.BaseModel

	CourseID     uuid.UUID `gorm:"type:uuid;not null;index:idx_course_order" json:"courseId"`
	Title        string    `gorm:"type:varchar(200);not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	URL          string    `gorm:"type:text;not null" json:"url"`
	ThumbnailURL string    `gorm:"type:text;column:thumbnail_url" json:"thumbnailUrl"`
	Duration     int       `gorm:"not null;default:0" json:"duration"`
	Transcript   *string   `gorm:"type:text" json:"transcript,omitempty"`
	Summary      *string   `gorm:"type:text" json:"summary,omitempty"`
	Order        int       `gorm:"not null;default:0;index:idx_course_order" json:"order"`
}

// TableName overrides the default table name.
func (Video) TableName() string { return "videos" }

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Enrollment links a student to a course.
type Enrollment struct {
	types.BaseModel

	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_student" json:"courseId"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_course_student;index" json:"studentId"`
}

// TableName overrides the default table name.
func (Enrollment) TableName() string { return "enrollments" }

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ListFilters defines catalog query filters.
type ListFilters struct {
	Search   string
	Category string
}

// CourseWithTutor decorates a course with the tutor's display fields.
type CourseWithTutor struct {
	Course
	Tutor *user.Summary `json:"tutor,omitempty"`
}

// ListPublished queries the published catalog with search and pagination.
func ListPublished(db *gorm.DB, filters ListFilters, params pagination.Params) ([]CourseWithTutor, int64, error) {
	query := db.Model(&Course{}).Where("is_published = ?", true)

	if filters.Search != "" {
		keyword := "%" + strings.ToLower(strings.TrimSpace(filters.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", keyword, keyword)
	}

	if filters.Category != "" {
		query = query.Where("category = ?", filters.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var courses []Course
	if err := query.Order("created_at DESC").
		Offset(params.Skip).
		Limit(params.Limit).
		Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	result, err := attachTutors(db, courses)
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func attachTutors(db *gorm.DB, courses []Course) ([]CourseWithTutor, error) {
	tutorIDs := make([]uuid.UUID, 0, len(courses))
	seen := make(map[uuid.UUID]bool, len(courses))
	for _, crs := range courses {
		if !seen[crs.TutorID] {
			seen[crs.TutorID] = true
			tutorIDs = append(tutorIDs, crs.TutorID)
		}
	}

	tutors, err := user.GetSummaries(db, tutorIDs)
	if err != nil {
		return nil, err
	}

	result := make([]CourseWithTutor, 0, len(courses))
	for _, crs := range courses {
		item := CourseWithTutor{Course: crs}
		if summary, ok := tutors[crs.TutorID]; ok {
			copied := summary
			item.Tutor = &copied
		}
		result = append(result, item)
	}

	return result, nil
}

// Get retrieves a course by ID with its videos ordered.
func Get(db *gorm.DB, id uuid.UUID) (*Course, error) {
	var crs Course
	err := db.Preload("Videos", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("\"order\" ASC")
	}).First(&crs, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &crs, nil
}

// GetOwned retrieves a course and verifies tutor ownership.
func GetOwned(db *gorm.DB, id, tutorID uuid.UUID) (*Course, error) {
	crs, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if crs.TutorID != tutorID {
		return nil, ErrNotCourseTutor
	}
	return crs, nil
}

// CreateInput defines the payload to create a course.
type CreateInput struct {
	Title       string
	Description string
	Price       types.Money
	TutorID     uuid.UUID
	Category    string
	Tags        []string
	Published   *bool
}

// Create inserts a new course owned by a tutor.
func Create(db *gorm.DB, input CreateInput) (*Course, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	if input.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	crs := Course{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price,
		TutorID:     input.TutorID,
		Category:    strings.TrimSpace(input.Category),
		Tags:        trimTags(input.Tags),
	}

	if input.Published != nil {
		crs.Published = *input.Published
	}

	if err := db.Create(&crs).Error; err != nil {
		return nil, err
	}

	return &crs, nil
}

// UpdateInput captures mutable course fields.
type UpdateInput struct {
	Title        *string
	Description  *string
	Price        *types.Money
	Category     *string
	TagsProvided bool
	Tags         []string
	Published    *bool
}

// Update modifies an existing course after verifying ownership.
func Update(db *gorm.DB, id, tutorID uuid.UUID, input UpdateInput) (*Course, error) {
	crs, err := GetOwned(db, id, tutorID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}

	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		if trimmed == "" {
			return nil, ErrTitleRequired
		}
		updates["title"] = trimmed
	}

	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}

	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, ErrInvalidPrice
		}
		updates["price"] = *input.Price
	}

	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}

	if input.TagsProvided {
		updates["tags"] = trimTags(input.Tags)
	}

	if input.Published != nil {
		updates["is_published"] = *input.Published
	}

	if len(updates) > 0 {
		if err := db.Model(&Course{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	return Get(db, crs.ID)
}

// Delete removes a course with its videos and enrollments.
func Delete(db *gorm.DB, id, tutorID uuid.UUID) (*Course, error) {
	crs, err := GetOwned(db, id, tutorID)
	if err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Video{}, "course_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Enrollment{}, "course_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Course{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	return crs, nil
}

// SetThumbnail stores the public URL of an uploaded course thumbnail.
func SetThumbnail(db *gorm.DB, id uuid.UUID, url string) error {
	return db.Model(&Course{}).Where("id = ?", id).Update("thumbnail_url", url).Error
}

// AddVideoInput defines the payload to append a video to a course.
type AddVideoInput struct {
	Title       string
	Description string
	URL         string
	Duration    int
	Transcript  *string
	Summary     *string
}

// AddVideo appends a video at the end of the course's ordering.
func AddVideo(db *gorm.DB, courseID uuid.UUID, input AddVideoInput) (*Video, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	var video Video
	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Video{}).Where("course_id = ?", courseID).Count(&count).Error; err != nil {
			return err
		}

		video = Video{
			CourseID:    courseID,
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			URL:         input.URL,
			Duration:    input.Duration,
			Transcript:  input.Transcript,
			Summary:     input.Summary,
			Order:       int(count),
		}

		return tx.Create(&video).Error
	})
	if err != nil {
		return nil, err
	}

	return &video, nil
}

// GetVideo retrieves a single video belonging to a course.
func GetVideo(db *gorm.DB, courseID, videoID uuid.UUID) (*Video, error) {
	var video Video
	if err := db.First(&video, "id = ? AND course_id = ?", videoID, courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return &video, nil
}

// Enroll adds a student to a course once.
func Enroll(db *gorm.DB, courseID, studentID uuid.UUID) error {
	if _, err := Get(db, courseID); err != nil {
		return err
	}

	var existing Enrollment
	err := db.First(&existing, "course_id = ? AND student_id = ?", courseID, studentID).Error
	if err == nil {
		return ErrAlreadyEnrolled
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	enrollment := Enrollment{CourseID: courseID, StudentID: studentID}
	if err := db.Create(&enrollment).Error; err != nil {
		if strings.Contains(err.Error(), "idx_course_student") ||
			strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyEnrolled
		}
		return err
	}

	return nil
}

// EnrolledStudentIDs returns the IDs of all students enrolled in a course.
func EnrolledStudentIDs(db *gorm.DB, courseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&Enrollment{}).
		Where("course_id = ?", courseID).
		Order("created_at ASC").
		Pluck("student_id", &ids).Error
	return ids, err
}

// GetRoster returns the tutor and enrolled-student IDs for a course.
func GetRoster(db *gorm.DB, courseID uuid.UUID) (uuid.UUID, []uuid.UUID, error) {
	var crs Course
	if err := db.Select("id", "tutor_id").First(&crs, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, nil, ErrCourseNotFound
		}
		return uuid.Nil, nil, err
	}

	studentIDs, err := EnrolledStudentIDs(db, courseID)
	if err != nil {
		return uuid.Nil, nil, err
	}

	return crs.TutorID, studentIDs, nil
}

// IsParticipant reports whether a user is the course tutor or an enrolled student.
func IsParticipant(db *gorm.DB, courseID, userID uuid.UUID) (bool, error) {
	var crs Course
	if err := db.Select("id", "tutor_id").First(&crs, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrCourseNotFound
		}
		return false, err
	}

	if crs.TutorID == userID {
		return true, nil
	}

	var count int64
	if err := db.Model(&Enrollment{}).
		Where("course_id = ? AND student_id = ?", courseID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func trimTags(tags []string) pq.StringArray {
	result := make(pq.StringArray, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
