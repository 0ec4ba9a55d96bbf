package progress

import (
	"context"
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edutech/marketplace-server-go/pkg/cache"
)

func setupRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
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

	if err := db.AutoMigrate(&VideoProgress{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cacheClient, err := cache.NewRedisClient("", "", 0)
	if err != nil {
		t.Fatalf("failed to build disabled cache client: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecorder(db, cacheClient, log), db
}

func TestRecorder_RecordAndGetBeforeFlush(t *testing.T) {
	recorder, _ := setupRecorder(t)
	ctx := context.Background()
	courseID, videoID, userID := uuid.New(), uuid.New(), uuid.New()

	record, err := recorder.Record(ctx, courseID, videoID, userID, 42.5, false)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if record.Progress != 42.5 {
		t.Errorf("expected progress 42.5, got %v", record.Progress)
	}

	// The update is visible before any flush has run.
	fetched, err := recorder.Get(ctx, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fetched.Progress != 42.5 || fetched.Completed {
		t.Errorf("unexpected buffered record: %+v", fetched)
	}
}

func TestRecorder_RejectsOutOfRangeProgress(t *testing.T) {
	recorder, _ := setupRecorder(t)
	ctx := context.Background()

	for _, percent := range []float64{-1, 100.1, 250} {
		_, err := recorder.Record(ctx, uuid.New(), uuid.New(), uuid.New(), percent, false)
		if err != ErrInvalidProgress {
			t.Errorf("Record(%v): expected ErrInvalidProgress, got %v", percent, err)
		}
	}
}

func TestRecorder_FlushPersistsBatch(t *testing.T) {
	recorder, db := setupRecorder(t)
	ctx := context.Background()
	courseID, videoID, userID := uuid.New(), uuid.New(), uuid.New()

	if _, err := recorder.Record(ctx, courseID, videoID, userID, 10, false); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := recorder.Record(ctx, courseID, videoID, userID, 55, false); err != nil {
		t.Fatalf("second Record() error = %v", err)
	}

	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var count int64
	db.Model(&VideoProgress{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 persisted record, got %d", count)
	}

	stored, err := Get(db, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Progress != 55 {
		t.Errorf("expected latest progress 55, got %v", stored.Progress)
	}

	// An empty buffer flush is a no-op.
	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("empty Flush() error = %v", err)
	}
}

func TestRecorder_FlushUpsertsExistingRow(t *testing.T) {
	recorder, db := setupRecorder(t)
	ctx := context.Background()
	courseID, videoID, userID := uuid.New(), uuid.New(), uuid.New()

	if _, err := recorder.Record(ctx, courseID, videoID, userID, 30, false); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if _, err := recorder.Record(ctx, courseID, videoID, userID, 80, true); err != nil {
		t.Fatalf("second Record() error = %v", err)
	}
	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}

	var count int64
	db.Model(&VideoProgress{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row after upsert, got %d", count)
	}

	stored, err := Get(db, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Progress != 80 || !stored.Completed {
		t.Errorf("unexpected upserted record: %+v", stored)
	}
}

func TestRecorder_ConcurrentUpdatesKeepCompleted(t *testing.T) {
	recorder, db := setupRecorder(t)
	ctx := context.Background()
	courseID, videoID, userID := uuid.New(), uuid.New(), uuid.New()

	// One update in the burst reports completed=true; however the
	// writes interleave, the buffered record must never lose it.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		completed := i == 3
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := recorder.Record(ctx, courseID, videoID, userID, 50, completed); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	buffered, err := recorder.Get(ctx, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !buffered.Completed {
		t.Error("expected buffered record to stay completed")
	}

	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	stored, err := Get(db, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.Completed {
		t.Error("expected persisted record to stay completed")
	}
}

func TestRecorder_CompletedIsMonotonic(t *testing.T) {
	recorder, db := setupRecorder(t)
	ctx := context.Background()
	courseID, videoID, userID := uuid.New(), uuid.New(), uuid.New()

	if _, err := recorder.Record(ctx, courseID, videoID, userID, 100, true); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// A rewatch reports completed=false; the stored flag must not revert.
	record, err := recorder.Record(ctx, courseID, videoID, userID, 5, false)
	if err != nil {
		t.Fatalf("rewatch Record() error = %v", err)
	}
	if !record.Completed {
		t.Error("expected buffered record to stay completed")
	}

	if err := recorder.Flush(ctx); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}

	stored, err := Get(db, courseID, videoID, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.Completed {
		t.Error("expected persisted record to stay completed")
	}
	if stored.Progress != 5 {
		t.Errorf("expected rewatch progress 5, got %v", stored.Progress)
	}
}
