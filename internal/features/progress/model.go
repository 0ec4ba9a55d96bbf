package progress

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutech/marketplace-server-go/pkg/types"
)

// VideoProgress tracks how far one user has watched one video. One
// record exists per (course, video, user) triple.
type VideoProgress struct {
	types.BaseModel
	CourseID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_course_video_user;not null" json:"courseId"`
	VideoID     uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_course_video_user;not null" json:"videoId"`
	UserID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_course_video_user;not null" json:"userId"`
	Progress    float64   `gorm:"not null;default:0" json:"progress"`
	Completed   bool      `gorm:"not null;default:false" json:"completed"`
	LastWatched time.Time `gorm:"column:last_watched" json:"lastWatched"`
}

func (VideoProgress) TableName() string { return "video_progress" }

func (p *VideoProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Get loads the stored progress record for one viewer and video.
func Get(db *gorm.DB, courseID, videoID, userID uuid.UUID) (*VideoProgress, error) {
	var record VideoProgress
	err := db.First(&record,
		"course_id = ? AND video_id = ? AND user_id = ?", courseID, videoID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Upsert writes a batch of progress records, replacing position and
// last-watched on conflict. Completed only ever moves to true.
func Upsert(db *gorm.DB, records []VideoProgress) error {
	if len(records) == 0 {
		return nil
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "course_id"}, {Name: "video_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"progress":     gorm.Expr("excluded.progress"),
			"completed":    gorm.Expr("video_progress.completed OR excluded.completed"),
			"last_watched": gorm.Expr("excluded.last_watched"),
			"updated_at":   time.Now(),
		}),
	}).Create(&records).Error
}
