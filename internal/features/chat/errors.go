package chat

import "errors"

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrRoomNotFound   = errors.New("chat room not found")
	ErrNotParticipant = errors.New("user is not a participant of this course")
	ErrEmptyContent   = errors.New("message content is required")
)
