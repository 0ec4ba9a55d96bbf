package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sender holds the display fields attached to an outgoing message.
type Sender struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	ProfilePicture *string   `json:"profilePicture,omitempty"`
}

// Roster is the course membership snapshot used to seed a new room.
type Roster struct {
	TutorID    uuid.UUID
	StudentIDs []uuid.UUID
}

// CourseDirectory resolves course membership. Participant checks run
// against the live course record, not the room snapshot, so students
// who enroll after the room was created can still take part.
type CourseDirectory interface {
	Roster(courseID uuid.UUID) (*Roster, error)
	IsParticipant(courseID, userID uuid.UUID) (bool, error)
}

// UserDirectory resolves sender display fields.
type UserDirectory interface {
	Senders(ids []uuid.UUID) (map[uuid.UUID]Sender, error)
}

// Broadcaster fans an event out to every live connection in a room.
// Delivery is best effort; a failed push never fails the caller.
type Broadcaster interface {
	Publish(room, event string, payload any)
}

// MessageView is a message with its sender expanded for clients.
type MessageView struct {
	Message
	Sender Sender `json:"sender"`
}

// RoomView is the full room payload returned on a room fetch.
type RoomView struct {
	ChatRoom
	Participants []Sender      `json:"participants"`
	Messages     []MessageView `json:"messages"`
}

// Service orchestrates room access, message append, and read-state
// mutation, and triggers the broadcaster on new messages.
type Service struct {
	db        *gorm.DB
	courses   CourseDirectory
	users     UserDirectory
	broadcast Broadcaster
	logger    *slog.Logger
}

// NewService constructs a chat service instance.
func NewService(db *gorm.DB, courses CourseDirectory, users UserDirectory, broadcast Broadcaster, logger *slog.Logger) *Service {
	return &Service{db: db, courses: courses, users: users, broadcast: broadcast, logger: logger}
}

// GetOrCreateRoom fetches the room for a course, creating it on first
// access. Concurrent first-access callers are resolved by the unique
// index on course_id: the loser re-fetches the winner's room.
func (s *Service) GetOrCreateRoom(courseID, userID uuid.UUID) (*RoomView, error) {
	if err := s.requireParticipant(courseID, userID); err != nil {
		return nil, err
	}

	room, err := findRoomByCourse(s.db, courseID)
	if err == ErrRoomNotFound {
		room, err = s.createRoom(courseID)
	}
	if err != nil {
		return nil, err
	}

	return s.roomView(room)
}

func (s *Service) createRoom(courseID uuid.UUID) (*ChatRoom, error) {
	roster, err := s.courses.Roster(courseID)
	if err != nil {
		return nil, err
	}

	room := &ChatRoom{CourseID: courseID, LastMessageAt: time.Now()}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}

		participants := make([]ChatParticipant, 0, len(roster.StudentIDs)+1)
		participants = append(participants, ChatParticipant{RoomID: room.ID, UserID: roster.TutorID})
		for _, studentID := range roster.StudentIDs {
			if studentID == roster.TutorID {
				continue
			}
			participants = append(participants, ChatParticipant{RoomID: room.ID, UserID: studentID})
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		if isDuplicateRoomError(err) {
			return findRoomByCourse(s.db, courseID)
		}
		return nil, err
	}

	return room, nil
}

func (s *Service) roomView(room *ChatRoom) (*RoomView, error) {
	participantIDs, err := roomParticipantIDs(s.db, room.ID)
	if err != nil {
		return nil, err
	}

	messages, err := roomMessages(s.db, room.ID)
	if err != nil {
		return nil, err
	}

	senderIDs := make([]uuid.UUID, 0, len(participantIDs)+len(messages))
	senderIDs = append(senderIDs, participantIDs...)
	for _, msg := range messages {
		senderIDs = append(senderIDs, msg.SenderID)
	}

	senders, err := s.users.Senders(senderIDs)
	if err != nil {
		return nil, err
	}

	view := &RoomView{
		ChatRoom:     *room,
		Participants: make([]Sender, 0, len(participantIDs)),
		Messages:     make([]MessageView, 0, len(messages)),
	}
	for _, id := range participantIDs {
		view.Participants = append(view.Participants, senders[id])
	}
	for _, msg := range messages {
		view.Messages = append(view.Messages, MessageView{Message: msg, Sender: senders[msg.SenderID]})
	}

	return view, nil
}

// AppendMessage persists a new message and broadcasts it to the room.
// The room row is updated first inside the transaction so concurrent
// appends to the same room serialize, keeping seq assignment gapless
// and monotonic by commit order.
func (s *Service) AppendMessage(courseID, senderID uuid.UUID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	if err := s.requireParticipant(courseID, senderID); err != nil {
		return nil, err
	}

	room, err := findRoomByCourse(s.db, courseID)
	if err != nil {
		return nil, err
	}

	message := &Message{RoomID: room.ID, SenderID: senderID, Content: content}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ChatRoom{}).
			Where("id = ?", room.ID).
			Update("last_message_at", time.Now()).Error; err != nil {
			return err
		}

		var maxSeq int64
		if err := tx.Model(&Message{}).
			Where("room_id = ?", room.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		message.Seq = maxSeq + 1
		return tx.Create(message).Error
	})
	if err != nil {
		return nil, err
	}

	view := &MessageView{Message: *message}
	senders, err := s.users.Senders([]uuid.UUID{senderID})
	if err != nil {
		s.logger.Warn("failed to expand message sender", "messageId", message.ID, "error", err)
	} else {
		view.Sender = senders[senderID]
	}

	// Persistence is the authoritative outcome; delivery is best effort.
	s.broadcast.Publish(courseID.String(), "newMessage", view)

	return view, nil
}

// MarkRead flips every unread message not sent by the reader to read.
// Idempotent; a second call with nothing unread is a no-op.
func (s *Service) MarkRead(courseID, readerID uuid.UUID) error {
	if err := s.requireParticipant(courseID, readerID); err != nil {
		return err
	}

	room, err := findRoomByCourse(s.db, courseID)
	if err != nil {
		return err
	}

	return s.db.Model(&Message{}).
		Where("room_id = ? AND sender_id != ? AND is_read = ?", room.ID, readerID, false).
		Update("is_read", true).Error
}

// UnreadCount counts unread messages sent by others.
func (s *Service) UnreadCount(courseID, readerID uuid.UUID) (int64, error) {
	if err := s.requireParticipant(courseID, readerID); err != nil {
		return 0, err
	}

	room, err := findRoomByCourse(s.db, courseID)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.db.Model(&Message{}).
		Where("room_id = ? AND sender_id != ? AND is_read = ?", room.ID, readerID, false).
		Count(&count).Error
	return count, err
}

func (s *Service) requireParticipant(courseID, userID uuid.UUID) error {
	ok, err := s.courses.IsParticipant(courseID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func isDuplicateRoomError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "chat_rooms_course_id_key") ||
		strings.Contains(msg, "idx_chat_rooms_course_id") ||
		strings.Contains(msg, "UNIQUE constraint failed: chat_rooms.course_id")
}
