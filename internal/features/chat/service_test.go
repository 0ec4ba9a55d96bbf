package chat

import (
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeCourses struct {
	roster  *Roster
	members map[uuid.UUID]bool
}

func (f *fakeCourses) Roster(courseID uuid.UUID) (*Roster, error) {
	if f.roster == nil {
		return nil, ErrCourseNotFound
	}
	return f.roster, nil
}

func (f *fakeCourses) IsParticipant(courseID, userID uuid.UUID) (bool, error) {
	return f.members[userID], nil
}

type fakeUsers struct{}

func (fakeUsers) Senders(ids []uuid.UUID) (map[uuid.UUID]Sender, error) {
	senders := make(map[uuid.UUID]Sender, len(ids))
	for _, id := range ids {
		senders[id] = Sender{ID: id, FirstName: "Test", LastName: "User"}
	}
	return senders, nil
}

type publishedEvent struct {
	room    string
	event   string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeBroadcaster) Publish(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{room: room, event: event, payload: payload})
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access underlying database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&ChatRoom{}, &ChatParticipant{}, &Message{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Exec("DELETE FROM chat_messages")
		db.Exec("DELETE FROM chat_participants")
		db.Exec("DELETE FROM chat_rooms")
	})

	return db
}

func newTestService(t *testing.T, db *gorm.DB, courses *fakeCourses) (*Service, *fakeBroadcaster) {
	t.Helper()
	broadcast := &fakeBroadcaster{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, courses, fakeUsers{}, broadcast, log), broadcast
}

func rosterFixture() (uuid.UUID, uuid.UUID, uuid.UUID, *fakeCourses) {
	courseID := uuid.New()
	tutorID := uuid.New()
	studentID := uuid.New()
	courses := &fakeCourses{
		roster:  &Roster{TutorID: tutorID, StudentIDs: []uuid.UUID{studentID}},
		members: map[uuid.UUID]bool{tutorID: true, studentID: true},
	}
	return courseID, tutorID, studentID, courses
}

func TestGetOrCreateRoom_LazyCreation(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, studentID, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	view, err := svc.GetOrCreateRoom(courseID, tutorID)
	if err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}
	if view.CourseID != courseID {
		t.Errorf("expected course id %v, got %v", courseID, view.CourseID)
	}
	if len(view.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(view.Participants))
	}

	again, err := svc.GetOrCreateRoom(courseID, studentID)
	if err != nil {
		t.Fatalf("second GetOrCreateRoom() error = %v", err)
	}
	if again.ID != view.ID {
		t.Errorf("expected same room on second fetch, got %v and %v", view.ID, again.ID)
	}

	var count int64
	db.Model(&ChatRoom{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 room, found %d", count)
	}
}

func TestGetOrCreateRoom_MissingCourse(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()
	courses := &fakeCourses{members: map[uuid.UUID]bool{userID: true}}
	svc, _ := newTestService(t, db, courses)

	_, err := svc.GetOrCreateRoom(uuid.New(), userID)
	if err != ErrCourseNotFound {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestGetOrCreateRoom_NonParticipant(t *testing.T) {
	db := setupTestDB(t)
	courseID, _, _, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	_, err := svc.GetOrCreateRoom(courseID, uuid.New())
	if err != ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestGetOrCreateRoom_ConcurrentCallersSingleRoom(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, _, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	roomIDs := make([]uuid.UUID, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := svc.GetOrCreateRoom(courseID, tutorID)
			errs[i] = err
			if view != nil {
				roomIDs[i] = view.ID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: GetOrCreateRoom() error = %v", i, err)
		}
		if roomIDs[i] != roomIDs[0] {
			t.Errorf("caller %d got room %v, expected %v", i, roomIDs[i], roomIDs[0])
		}
	}

	var count int64
	db.Model(&ChatRoom{}).Where("course_id = ?", courseID).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 room, found %d", count)
	}
}

func TestAppendMessage_PreservesCallOrder(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, studentID, courses := rosterFixture()
	svc, broadcast := newTestService(t, db, courses)

	if _, err := svc.GetOrCreateRoom(courseID, tutorID); err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		if _, err := svc.AppendMessage(courseID, studentID, content); err != nil {
			t.Fatalf("AppendMessage(%q) error = %v", content, err)
		}
	}

	view, err := svc.GetOrCreateRoom(courseID, tutorID)
	if err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}
	if len(view.Messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(view.Messages))
	}
	for i, msg := range view.Messages {
		if msg.Content != contents[i] {
			t.Errorf("message %d: expected %q, got %q", i, contents[i], msg.Content)
		}
		if msg.Seq != int64(i+1) {
			t.Errorf("message %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
	}

	if len(broadcast.events) != len(contents) {
		t.Fatalf("expected %d broadcasts, got %d", len(contents), len(broadcast.events))
	}
	for i, event := range broadcast.events {
		if event.room != courseID.String() {
			t.Errorf("broadcast %d: expected room %s, got %s", i, courseID, event.room)
		}
		if event.event != "newMessage" {
			t.Errorf("broadcast %d: expected event newMessage, got %s", i, event.event)
		}
	}
}

func TestAppendMessage_RejectsEmptyContent(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, _, courses := rosterFixture()
	svc, broadcast := newTestService(t, db, courses)

	if _, err := svc.GetOrCreateRoom(courseID, tutorID); err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := svc.AppendMessage(courseID, tutorID, content); err != ErrEmptyContent {
			t.Errorf("AppendMessage(%q): expected ErrEmptyContent, got %v", content, err)
		}
	}

	if len(broadcast.events) != 0 {
		t.Errorf("expected no broadcasts for rejected messages, got %d", len(broadcast.events))
	}
}

func TestAppendMessage_RequiresExistingRoom(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, _, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	_, err := svc.AppendMessage(courseID, tutorID, "hello")
	if err != ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestMarkRead_IdempotentAndScopedToOthers(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, studentID, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	if _, err := svc.GetOrCreateRoom(courseID, tutorID); err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}
	if _, err := svc.AppendMessage(courseID, studentID, "hello"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	assertUnread := func(readerID uuid.UUID, want int64) {
		t.Helper()
		count, err := svc.UnreadCount(courseID, readerID)
		if err != nil {
			t.Fatalf("UnreadCount() error = %v", err)
		}
		if count != want {
			t.Errorf("expected unread count %d for %v, got %d", want, readerID, count)
		}
	}

	assertUnread(tutorID, 1)
	assertUnread(studentID, 0)

	if err := svc.MarkRead(courseID, tutorID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	assertUnread(tutorID, 0)
	assertUnread(studentID, 0)

	// Re-invoking with nothing unread is a no-op, not an error.
	if err := svc.MarkRead(courseID, tutorID); err != nil {
		t.Fatalf("second MarkRead() error = %v", err)
	}
	assertUnread(tutorID, 0)
}

func TestMarkRead_IsReadNeverReverts(t *testing.T) {
	db := setupTestDB(t)
	courseID, tutorID, studentID, courses := rosterFixture()
	svc, _ := newTestService(t, db, courses)

	if _, err := svc.GetOrCreateRoom(courseID, tutorID); err != nil {
		t.Fatalf("GetOrCreateRoom() error = %v", err)
	}

	first, err := svc.AppendMessage(courseID, studentID, "hello")
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := svc.MarkRead(courseID, tutorID); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	// A later append and subsequent read-marking must not touch the
	// already-read message, and the new one stays unread until marked.
	if _, err := svc.AppendMessage(courseID, studentID, "again"); err != nil {
		t.Fatalf("second AppendMessage() error = %v", err)
	}
	if err := svc.MarkRead(courseID, studentID); err != nil {
		t.Fatalf("MarkRead() by sender error = %v", err)
	}

	var stored Message
	if err := db.First(&stored, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("failed to load message: %v", err)
	}
	if !stored.IsRead {
		t.Error("expected first message to remain read")
	}

	count, err := svc.UnreadCount(courseID, tutorID)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 unread message for tutor, got %d", count)
	}
}
