package chat

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/course"
	"github.com/edutech/marketplace-server-go/internal/features/user"
)

// GormCourseDirectory answers membership queries from the course tables.
type GormCourseDirectory struct {
	DB *gorm.DB
}

func (d GormCourseDirectory) Roster(courseID uuid.UUID) (*Roster, error) {
	tutorID, studentIDs, err := course.GetRoster(d.DB, courseID)
	if err != nil {
		if err == course.ErrCourseNotFound {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &Roster{TutorID: tutorID, StudentIDs: studentIDs}, nil
}

func (d GormCourseDirectory) IsParticipant(courseID, userID uuid.UUID) (bool, error) {
	ok, err := course.IsParticipant(d.DB, courseID, userID)
	if err != nil {
		if err == course.ErrCourseNotFound {
			return false, ErrCourseNotFound
		}
		return false, err
	}
	return ok, nil
}

// GormUserDirectory answers sender lookups from the users table.
type GormUserDirectory struct {
	DB *gorm.DB
}

func (d GormUserDirectory) Senders(ids []uuid.UUID) (map[uuid.UUID]Sender, error) {
	summaries, err := user.GetSummaries(d.DB, ids)
	if err != nil {
		return nil, err
	}

	senders := make(map[uuid.UUID]Sender, len(summaries))
	for id, summary := range summaries {
		senders[id] = Sender{
			ID:             summary.ID,
			FirstName:      summary.FirstName,
			LastName:       summary.LastName,
			ProfilePicture: summary.ProfilePicture,
		}
	}
	return senders, nil
}
