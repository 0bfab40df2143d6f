package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/store"
)

// ErrUnknownTask is returned when a payload references a task id no
// song was submitted under.
var ErrUnknownTask = errors.New("unknown generation task")

// ArchiveScheduler queues a song for background archival.
type ArchiveScheduler interface {
	ScheduleArchive(ctx context.Context, songID uint) error
}

// Broadcaster pushes realtime lifecycle events to song subscribers.
type Broadcaster interface {
	BroadcastStatus(songID uint, status model.SongStatus, errorMessage string)
	BroadcastArchived(songID uint, archivedURL string, fileSizeBytes int64)
}

// ReconcileOutcome is the result of processing one task observation.
type ReconcileOutcome struct {
	Class       client.StatusClass
	Songs       []*model.Song
	AlreadyDone bool
	Message     string
}

// ReconcileService funnels webhook deliveries and status polls through
// one normalization and materialization path, so push and pull
// observations of the same task behave identically.
type ReconcileService struct {
	songs    SongRepository
	provider client.GenerationProvider
	archiver ArchiveScheduler
	hub      Broadcaster
}

func NewReconcileService(songs SongRepository, provider client.GenerationProvider, archiver ArchiveScheduler, hub Broadcaster) *ReconcileService {
	return &ReconcileService{
		songs:    songs,
		provider: provider,
		archiver: archiver,
		hub:      hub,
	}
}

// Reconcile applies one raw provider payload to the songs table. The
// operation is idempotent: repeat deliveries of a terminal result
// return the existing sibling set without writing anything.
func (s *ReconcileService) Reconcile(ctx context.Context, taskID string, payload client.Payload) (*ReconcileOutcome, error) {
	ns := client.ParsePayload(payload)
	class := ns.Classify()

	switch class {
	case client.StatusSuccess:
		return s.reconcileSuccess(ctx, taskID, ns)
	case client.StatusFailure:
		return s.reconcileFailure(ctx, taskID, ns)
	default:
		// Pending and unknown observations change nothing. The anchor
		// must still exist so unknown tasks are rejected.
		if _, err := s.songs.AnchorForTask(ctx, taskID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUnknownTask
			}
			return nil, err
		}
		return &ReconcileOutcome{Class: class, Message: ns.Message}, nil
	}
}

func (s *ReconcileService) reconcileSuccess(ctx context.Context, taskID string, ns *client.NormalizedStatus) (*ReconcileOutcome, error) {
	var audioURLs []string
	for _, track := range ns.Tracks {
		if track.AudioURL != "" {
			audioURLs = append(audioURLs, track.AudioURL)
		}
	}

	// A success without any playable track is treated as still pending:
	// some relays report SUCCESS before the audio URLs are filled in.
	if len(audioURLs) == 0 {
		log.Printf("[Reconcile] task %s reported success with no audio yet", taskID)
		if _, err := s.songs.AnchorForTask(ctx, taskID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUnknownTask
			}
			return nil, err
		}
		return &ReconcileOutcome{Class: client.StatusPending, Message: ns.Message}, nil
	}

	songs, alreadyDone, err := s.songs.MaterializeTracks(ctx, taskID, audioURLs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTask
		}
		return nil, fmt.Errorf("failed to materialize tracks for task %s: %w", taskID, err)
	}

	if !alreadyDone {
		log.Printf("[Reconcile] task %s completed with %d track(s)", taskID, len(songs))
		for _, song := range songs {
			if s.hub != nil {
				s.hub.BroadcastStatus(song.ID, song.Status, "")
			}
			if s.archiver != nil {
				if err := s.archiver.ScheduleArchive(ctx, song.ID); err != nil {
					log.Printf("[Reconcile] failed to schedule archival for song %d: %v", song.ID, err)
				}
			}
		}
	}

	return &ReconcileOutcome{
		Class:       client.StatusSuccess,
		Songs:       songs,
		AlreadyDone: alreadyDone,
		Message:     ns.Message,
	}, nil
}

func (s *ReconcileService) reconcileFailure(ctx context.Context, taskID string, ns *client.NormalizedStatus) (*ReconcileOutcome, error) {
	message := ns.Message
	if message == "" {
		message = "Generation failed"
	}

	song, err := s.songs.FailTask(ctx, taskID, message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTask
		}
		return nil, err
	}

	if song.Status == model.SongStatusFailed && s.hub != nil {
		s.hub.BroadcastStatus(song.ID, song.Status, song.ErrorMessage)
	}
	log.Printf("[Reconcile] task %s failed: %s", taskID, message)

	return &ReconcileOutcome{
		Class:   client.StatusFailure,
		Songs:   []*model.Song{song},
		Message: message,
	}, nil
}

// CheckSong polls the provider for one song and reconciles the result.
// A song that is not awaiting generation is returned unchanged.
func (s *ReconcileService) CheckSong(ctx context.Context, userID, songID uint) (*model.CheckResult, error) {
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	if song.UserID != userID {
		return nil, ErrForbidden
	}

	result := &model.CheckResult{
		SongID: song.ID,
		Title:  song.SpecificTitle,
		Status: string(song.Status),
	}

	if song.Status != model.SongStatusSubmitted || song.SunoTaskID == nil {
		return result, nil
	}

	payload, err := s.provider.Query(ctx, *song.SunoTaskID)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	outcome, err := s.Reconcile(ctx, *song.SunoTaskID, payload)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	if len(outcome.Songs) > 0 {
		result.Status = string(outcome.Songs[0].Status)
		result.Songs = outcome.Songs
	}
	return result, nil
}

// CheckAllSubmitted polls every submitted song of the caller, one task
// at a time. Per-song failures are aggregated, never fatal.
func (s *ReconcileService) CheckAllSubmitted(ctx context.Context, userID uint) (*model.BulkCheckResponse, error) {
	submitted, err := s.songs.ListSubmitted(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &model.BulkCheckResponse{
		Results:      []model.CheckResult{},
		TotalChecked: len(submitted),
	}
	if len(submitted) == 0 {
		resp.Message = "No submitted songs to check"
		return resp, nil
	}

	for i := range submitted {
		result, err := s.CheckSong(ctx, userID, submitted[i].ID)
		if err != nil {
			resp.Errors++
			resp.Results = append(resp.Results, model.CheckResult{
				SongID: submitted[i].ID,
				Title:  submitted[i].SpecificTitle,
				Status: string(submitted[i].Status),
				Error:  err.Error(),
			})
			continue
		}
		if result.Error != "" {
			resp.Errors++
		} else if result.Status != string(model.SongStatusSubmitted) {
			resp.Updated++
		}
		resp.Results = append(resp.Results, *result)
	}

	resp.Message = fmt.Sprintf("Checked %d song(s): %d updated, %d error(s)",
		resp.TotalChecked, resp.Updated, resp.Errors)
	return resp, nil
}
