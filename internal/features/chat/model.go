package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/pkg/types"
)

// ChatRoom is the per-course message room. Exactly one room exists per
// course; it is created lazily on first access.
type ChatRoom struct {
	types.BaseModel
	CourseID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"courseId"`
	LastMessageAt time.Time `gorm:"column:last_message_at" json:"lastMessageAt"`
}

func (ChatRoom) TableName() string { return "chat_rooms" }

func (r *ChatRoom) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ChatParticipant records a user as eligible for a room. The set is a
// snapshot taken at room creation (tutor plus enrolled students).
type ChatParticipant struct {
	types.BaseModel
	RoomID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_room_user;not null" json:"roomId"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_room_user;not null" json:"userId"`
}

func (ChatParticipant) TableName() string { return "chat_participants" }

func (p *ChatParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Message is immutable once written except for the IsRead flag, which
// only ever moves from false to true.
type Message struct {
	types.BaseModel
	RoomID   uuid.UUID `gorm:"type:uuid;index;not null" json:"roomId"`
	SenderID uuid.UUID `gorm:"type:uuid;not null" json:"senderId"`
	Content  string    `gorm:"type:text;not null" json:"content"`
	Seq      int64     `gorm:"not null" json:"seq"`
	IsRead   bool      `gorm:"not null;default:false" json:"isRead"`
}

func (Message) TableName() string { return "chat_messages" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func findRoomByCourse(db *gorm.DB, courseID uuid.UUID) (*ChatRoom, error) {
	var room ChatRoom
	if err := db.First(&room, "course_id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func roomParticipantIDs(db *gorm.DB, roomID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&ChatParticipant{}).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func roomMessages(db *gorm.DB, roomID uuid.UUID) ([]Message, error) {
	var messages []Message
	err := db.Where("room_id = ?", roomID).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}
