package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/pkg/cache"
)

const progressCacheTTL = 24 * time.Hour

type tripleKey struct {
	courseID uuid.UUID
	videoID  uuid.UUID
	userID   uuid.UUID
}

// Recorder buffers progress writes in memory and mirrors them to the
// cache so reads stay fresh between flushes. Progress updates arrive
// every few seconds per viewer; flushing on an interval keeps that
// write volume off the database hot path.
type Recorder struct {
	db     *gorm.DB
	cache  *cache.RedisClient
	logger *slog.Logger

	mu      sync.Mutex
	pending map[tripleKey]VideoProgress
}

// NewRecorder constructs a progress recorder.
func NewRecorder(db *gorm.DB, cacheClient *cache.RedisClient, logger *slog.Logger) *Recorder {
	return &Recorder{
		db:      db,
		cache:   cacheClient,
		logger:  logger,
		pending: make(map[tripleKey]VideoProgress),
	}
}

func cacheKey(key tripleKey) string {
	return fmt.Sprintf("progress:%s:%s:%s", key.courseID, key.videoID, key.userID)
}

// Record merges a progress update into the write buffer. Completed is
// monotonic: once a viewer has completed a video, later updates with
// completed=false keep it completed.
func (r *Recorder) Record(ctx context.Context, courseID, videoID, userID uuid.UUID, percent float64, completed bool) (*VideoProgress, error) {
	if percent < 0 || percent > 100 {
		return nil, ErrInvalidProgress
	}

	key := tripleKey{courseID: courseID, videoID: videoID, userID: userID}

	// Completion baseline from the cache or database; the buffered entry
	// is merged under the lock below so concurrent updates for the same
	// viewer cannot drop a buffered completed=true.
	baseline := false
	if current, err := r.Get(ctx, courseID, videoID, userID); err == nil {
		baseline = current.Completed
	} else if err != ErrProgressNotFound {
		return nil, err
	}

	record := VideoProgress{
		CourseID:    courseID,
		VideoID:     videoID,
		UserID:      userID,
		Progress:    percent,
		Completed:   completed || baseline,
		LastWatched: time.Now(),
	}

	r.mu.Lock()
	if buffered, ok := r.pending[key]; ok {
		record.Completed = record.Completed || buffered.Completed
	}
	r.pending[key] = record
	r.mu.Unlock()

	if err := r.cache.SetJSON(ctx, cacheKey(key), record, progressCacheTTL); err != nil {
		r.logger.Warn("failed to cache video progress", "key", cacheKey(key), "error", err)
	}

	return &record, nil
}

// Get returns the freshest known progress for one viewer and video:
// the write buffer first, then the cache, then the database.
func (r *Recorder) Get(ctx context.Context, courseID, videoID, userID uuid.UUID) (*VideoProgress, error) {
	key := tripleKey{courseID: courseID, videoID: videoID, userID: userID}

	r.mu.Lock()
	buffered, ok := r.pending[key]
	r.mu.Unlock()
	if ok {
		return &buffered, nil
	}

	var cached VideoProgress
	if err := r.cache.GetJSON(ctx, cacheKey(key), &cached); err == nil {
		return &cached, nil
	} else if err != cache.ErrMiss {
		r.logger.Warn("failed to read cached video progress", "key", cacheKey(key), "error", err)
	}

	record, err := Get(r.db, courseID, videoID, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetJSON(ctx, cacheKey(key), record, progressCacheTTL); err != nil {
		r.logger.Warn("failed to cache video progress", "key", cacheKey(key), "error", err)
	}

	return record, nil
}

// Flush persists all buffered updates in one batch. On failure the
// batch is merged back into the buffer for the next attempt.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := r.pending
	r.pending = make(map[tripleKey]VideoProgress)
	r.mu.Unlock()

	records := make([]VideoProgress, 0, len(batch))
	for _, record := range batch {
		records = append(records, record)
	}

	if err := Upsert(r.db.WithContext(ctx), records); err != nil {
		r.mu.Lock()
		for key, record := range batch {
			if _, exists := r.pending[key]; !exists {
				r.pending[key] = record
			}
		}
		r.mu.Unlock()
		return err
	}

	r.logger.Debug("flushed video progress", "records", len(records))
	return nil
}

// FlushJob adapts the recorder to the background job scheduler.
type FlushJob struct {
	Recorder *Recorder
}

func (FlushJob) Name() string { return "video-progress-flush" }

func (j FlushJob) Execute(ctx context.Context) error {
	return j.Recorder.Flush(ctx)
}
