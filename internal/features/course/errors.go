package course

import "errors"

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrVideoNotFound   = errors.New("video not found")
	ErrNotCourseTutor  = errors.New("course does not belong to this tutor")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	ErrTitleRequired   = errors.New("course title is required")
	ErrInvalidPrice    = errors.New("course price cannot be negative")
)
