package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aiamusic/api/internal/service"
)

const (
	// TaskTypeArchiveSong copies one song's audio into object storage.
	TaskTypeArchiveSong = "archive:song"

	// QueueArchive is the asynq queue archival tasks run on.
	QueueArchive = "archive"
)

type archiveTaskPayload struct {
	SongID uint `json:"songId"`
}

// NewArchiveTask builds the asynq task for archiving one song.
func NewArchiveTask(songID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(archiveTaskPayload{SongID: songID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	return asynq.NewTask(TaskTypeArchiveSong, payload), nil
}

// AsynqArchiveScheduler enqueues archival tasks on redis. Implements
// service.ArchiveScheduler.
type AsynqArchiveScheduler struct {
	client *asynq.Client
}

func NewAsynqArchiveScheduler(client *asynq.Client) *AsynqArchiveScheduler {
	return &AsynqArchiveScheduler{client: client}
}

func (s *AsynqArchiveScheduler) ScheduleArchive(ctx context.Context, songID uint) error {
	task, err := NewArchiveTask(songID)
	if err != nil {
		return err
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueArchive),
		asynq.MaxRetry(5),
		asynq.Timeout(3*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue archive task: %w", err)
	}
	return nil
}

// SyncArchiveScheduler runs archival inline instead of queueing it.
// Used when redis is not available.
type SyncArchiveScheduler struct {
	archiver *service.ArchiveService
}

func NewSyncArchiveScheduler(archiver *service.ArchiveService) *SyncArchiveScheduler {
	return &SyncArchiveScheduler{archiver: archiver}
}

func (s *SyncArchiveScheduler) ScheduleArchive(ctx context.Context, songID uint) error {
	_, _, err := s.archiver.Archive(ctx, songID)
	return err
}

// ArchiveWorker processes archival tasks.
type ArchiveWorker struct {
	archiver *service.ArchiveService
}

func NewArchiveWorker(archiver *service.ArchiveService) *ArchiveWorker {
	return &ArchiveWorker{archiver: archiver}
}

// ProcessTask handles one archival task. Non-archival outcomes without
// an error (storage unconfigured, no audio URL) are terminal: retrying
// would not change them.
func (w *ArchiveWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload archiveTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal archive payload: %w", err)
	}

	log.Printf("[Archive Worker] archiving song %d", payload.SongID)

	_, archived, err := w.archiver.Archive(ctx, payload.SongID)
	if err != nil {
		log.Printf("[Archive Worker] song %d failed: %v", payload.SongID, err)
		return err
	}
	if !archived {
		log.Printf("[Archive Worker] song %d skipped", payload.SongID)
	}
	return nil
}
