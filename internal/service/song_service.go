package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/store"
)

// ErrForbidden is returned when a caller touches another user's record.
var ErrForbidden = errors.New("not the owner of this record")

// SongRepository defines the persistence operations the services need.
type SongRepository interface {
	Create(ctx context.Context, song *model.Song) error
	GetByID(ctx context.Context, id uint) (*model.Song, error)
	Save(ctx context.Context, song *model.Song) error
	Delete(ctx context.Context, id uint) error
	MarkSubmitted(ctx context.Context, songID uint, taskID string) error
	List(ctx context.Context, q model.SongListQuery) ([]model.Song, error)
	ListSubmitted(ctx context.Context, userID uint) ([]model.Song, error)
	ListArchivable(ctx context.Context, userID uint) ([]model.Song, error)
	SetArchived(ctx context.Context, songID uint, archivedURL string, sizeBytes int64) error
	Stats(ctx context.Context, userID uint, allUsers bool) (*model.SongStats, error)
	MaterializeTracks(ctx context.Context, taskID string, audioURLs []string) ([]*model.Song, bool, error)
	FailTask(ctx context.Context, taskID, errorMessage string) (*model.Song, error)
	AnchorForTask(ctx context.Context, taskID string) (*model.Song, error)
}

// StyleRepository is the slice of the style store the song service
// needs for prompt resolution.
type StyleRepository interface {
	GetByID(ctx context.Context, id uint) (*model.Style, error)
}

// SongService drives the song lifecycle: authoring, submission to the
// generation API, updates and deletion.
type SongService struct {
	songs    SongRepository
	styles   StyleRepository
	provider client.GenerationProvider
	storage  client.StorageClient
	archiver *ArchiveService
}

func NewSongService(songs SongRepository, styles StyleRepository, provider client.GenerationProvider, storage client.StorageClient, archiver *ArchiveService) *SongService {
	return &SongService{
		songs:    songs,
		styles:   styles,
		provider: provider,
		storage:  storage,
		archiver: archiver,
	}
}

// resolveStylePrompt maps a style reference onto prompt text. A missing
// style or an empty prompt resolves to the default, never an error.
func (s *SongService) resolveStylePrompt(ctx context.Context, styleID *uint) string {
	if styleID == nil {
		return model.DefaultStylePrompt
	}
	style, err := s.styles.GetByID(ctx, *styleID)
	if err != nil || style.StylePrompt == "" {
		return model.DefaultStylePrompt
	}
	return style.StylePrompt
}

// Create persists a new song and submits it for generation. On
// submission failure the song is returned alongside the provider error:
// it stays in `create` with no task id so it can be resubmitted.
func (s *SongService) Create(ctx context.Context, userID uint, req *model.CreateSongRequest) (*model.Song, error) {
	song := &model.Song{
		UserID:           userID,
		Status:           model.SongStatusCreate,
		SourceType:       model.SourceGenerated,
		SpecificTitle:    req.SpecificTitle,
		Version:          req.Version,
		SpecificLyrics:   req.SpecificLyrics,
		PromptToGenerate: req.PromptToGenerate,
		StyleID:          req.StyleID,
	}
	if song.Version == "" {
		song.Version = "v1"
	}
	if req.VocalGender != "" {
		g := model.NormalizeVocalGender(req.VocalGender)
		song.VocalGender = &g
	}

	if err := s.songs.Create(ctx, song); err != nil {
		return nil, err
	}

	// An explicit non-create status skips submission (e.g. importing
	// already-known songs).
	if req.Status != "" && req.Status != string(model.SongStatusCreate) {
		song.Status = model.SongStatus(req.Status)
		if err := s.songs.Save(ctx, song); err != nil {
			return nil, err
		}
		return song, nil
	}

	return s.Submit(ctx, song)
}

// Submit sends a song in `create` to the generation API and flips it to
// `submitted` with the provider task id in one update.
func (s *SongService) Submit(ctx context.Context, song *model.Song) (*model.Song, error) {
	stylePrompt := s.resolveStylePrompt(ctx, song.StyleID)

	taskID, err := s.provider.Submit(ctx, song, stylePrompt)
	if err != nil {
		log.Printf("[Song Service] submission failed for song %d: %v", song.ID, err)
		return song, err
	}

	if err := s.songs.MarkSubmitted(ctx, song.ID, taskID); err != nil {
		return song, err
	}
	song.SunoTaskID = &taskID
	song.Status = model.SongStatusSubmitted
	return song, nil
}

func (s *SongService) Get(ctx context.Context, userID, songID uint) (*model.Song, error) {
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, err
	}
	if song.UserID != userID {
		return nil, ErrForbidden
	}
	return song, nil
}

// Update applies the non-nil fields of the request. Status changes are
// explicit only: this is the single path to `unspecified`.
func (s *SongService) Update(ctx context.Context, userID, songID uint, req *model.UpdateSongRequest) (*model.Song, error) {
	song, err := s.Get(ctx, userID, songID)
	if err != nil {
		return nil, err
	}

	if req.SpecificTitle != nil {
		song.SpecificTitle = *req.SpecificTitle
	}
	if req.SpecificLyrics != nil {
		song.SpecificLyrics = *req.SpecificLyrics
	}
	if req.PromptToGenerate != nil {
		song.PromptToGenerate = *req.PromptToGenerate
	}
	if req.StyleID != nil {
		song.StyleID = req.StyleID
	}
	if req.VocalGender != nil {
		g := model.NormalizeVocalGender(*req.VocalGender)
		song.VocalGender = &g
	}
	if req.Status != nil {
		song.Status = model.SongStatus(*req.Status)
	}
	if req.StarRating != nil {
		song.StarRating = *req.StarRating
	}

	if err := s.songs.Save(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

// Delete removes a song and its archived artifacts. Storage cleanup is
// best-effort: a failed prefix delete never blocks the row delete.
func (s *SongService) Delete(ctx context.Context, userID, songID uint) error {
	song, err := s.Get(ctx, userID, songID)
	if err != nil {
		return err
	}

	if s.archiver != nil {
		if err := s.archiver.DeleteFiles(ctx, song.ID); err != nil {
			log.Printf("[Song Service] failed to delete archived files for song %d: %v", song.ID, err)
		}
	}

	return s.songs.Delete(ctx, song.ID)
}

func (s *SongService) List(ctx context.Context, q model.SongListQuery) ([]model.Song, error) {
	return s.songs.List(ctx, q)
}

func (s *SongService) Stats(ctx context.Context, userID uint, allUsers bool) (*model.SongStats, error) {
	return s.songs.Stats(ctx, userID, allUsers)
}

// Upload stores a user-provided MP3 directly. The song is born
// completed and archived, with its own sibling group so it never
// collides with generated tracks.
func (s *SongService) Upload(ctx context.Context, userID uint, title string, file io.Reader, size int64) (*model.Song, error) {
	if s.storage == nil || !s.storage.IsConfigured() {
		return nil, errors.New("object storage is not configured")
	}

	groupID := uuid.New().String()
	gender := model.VocalOther
	song := &model.Song{
		UserID:         userID,
		Status:         model.SongStatusCompleted,
		SourceType:     model.SourceUploaded,
		SpecificTitle:  title,
		Version:        "v1",
		VocalGender:    &gender,
		SiblingGroupID: &groupID,
		TrackNumber:    1,
	}
	if err := s.songs.Create(ctx, song); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("songs/%d/track_1.mp3", song.ID)
	archivedURL, err := s.storage.Upload(ctx, key, file, "audio/mpeg")
	if err != nil {
		// Drop the half-created row rather than leaving a completed
		// song with no audio.
		_ = s.songs.Delete(ctx, song.ID)
		return nil, fmt.Errorf("failed to store uploaded audio: %w", err)
	}

	song.DownloadURL = archivedURL
	if err := s.songs.Save(ctx, song); err != nil {
		return nil, err
	}
	if err := s.songs.SetArchived(ctx, song.ID, archivedURL, size); err != nil {
		return nil, err
	}

	return s.songs.GetByID(ctx, song.ID)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
