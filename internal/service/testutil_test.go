package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/store"
)

// fakeSongRepo is an in-memory SongRepository with the same anchor and
// idempotency semantics as the MySQL store.
type fakeSongRepo struct {
	mu     sync.Mutex
	nextID uint
	songs  map[uint]*model.Song
}

func newFakeSongRepo() *fakeSongRepo {
	return &fakeSongRepo{nextID: 1, songs: make(map[uint]*model.Song)}
}

func (r *fakeSongRepo) add(song *model.Song) *model.Song {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(song)
}

func (r *fakeSongRepo) addLocked(song *model.Song) *model.Song {
	if song.ID == 0 {
		song.ID = r.nextID
		r.nextID++
	} else if song.ID >= r.nextID {
		r.nextID = song.ID + 1
	}
	copied := *song
	r.songs[copied.ID] = &copied
	return song
}

func (r *fakeSongRepo) Create(ctx context.Context, song *model.Song) error {
	r.add(song)
	return nil
}

func (r *fakeSongRepo) GetByID(ctx context.Context, id uint) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.songs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *song
	return &copied, nil
}

func (r *fakeSongRepo) Save(ctx context.Context, song *model.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.songs[song.ID]; !ok {
		return store.ErrNotFound
	}
	copied := *song
	r.songs[song.ID] = &copied
	return nil
}

func (r *fakeSongRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.songs, id)
	return nil
}

func (r *fakeSongRepo) MarkSubmitted(ctx context.Context, songID uint, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.songs[songID]
	if !ok {
		return store.ErrNotFound
	}
	song.SunoTaskID = &taskID
	song.Status = model.SongStatusSubmitted
	return nil
}

func (r *fakeSongRepo) List(ctx context.Context, q model.SongListQuery) ([]model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Song
	for _, song := range r.songs {
		if !q.AllUsers && song.UserID != q.UserID {
			continue
		}
		if q.Status != "" && q.Status != "all" && string(song.Status) != q.Status {
			continue
		}
		out = append(out, *song)
	}
	return out, nil
}

func (r *fakeSongRepo) ListSubmitted(ctx context.Context, userID uint) ([]model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Song
	for _, song := range r.songs {
		if song.UserID == userID && song.Status == model.SongStatusSubmitted {
			out = append(out, *song)
		}
	}
	return out, nil
}

func (r *fakeSongRepo) ListArchivable(ctx context.Context, userID uint) ([]model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Song
	for _, song := range r.songs {
		if song.UserID == userID && song.Status == model.SongStatusCompleted &&
			!song.IsArchived && song.AudioRef() != "" {
			out = append(out, *song)
		}
	}
	return out, nil
}

func (r *fakeSongRepo) SetArchived(ctx context.Context, songID uint, archivedURL string, sizeBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.songs[songID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	song.ArchivedURL = archivedURL
	song.IsArchived = true
	song.ArchivedAt = &now
	song.FileSizeBytes = sizeBytes
	return nil
}

func (r *fakeSongRepo) Stats(ctx context.Context, userID uint, allUsers bool) (*model.SongStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.SongStats{}
	for _, song := range r.songs {
		if !allUsers && song.UserID != userID {
			continue
		}
		stats.Total++
		switch song.Status {
		case model.SongStatusCreate:
			stats.Create++
		case model.SongStatusSubmitted:
			stats.Submitted++
		case model.SongStatusCompleted:
			if song.AudioRef() != "" {
				stats.Completed++
			}
		case model.SongStatusFailed:
			stats.Failed++
		case model.SongStatusUnspecified:
			stats.Unspecified++
		}
	}
	return stats, nil
}

func (r *fakeSongRepo) anchorLocked(taskID string) *model.Song {
	for _, song := range r.songs {
		if song.SunoTaskID != nil && *song.SunoTaskID == taskID && song.SiblingGroupID == nil {
			return song
		}
	}
	for _, song := range r.songs {
		if song.SunoTaskID != nil && *song.SunoTaskID == taskID &&
			song.SiblingGroupID != nil && *song.SiblingGroupID == taskID && song.TrackNumber == 1 {
			return song
		}
	}
	return nil
}

func (r *fakeSongRepo) AnchorForTask(ctx context.Context, taskID string) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, store.ErrNotFound
	}
	copied := *anchor
	return &copied, nil
}

func (r *fakeSongRepo) MaterializeTracks(ctx context.Context, taskID string, audioURLs []string) ([]*model.Song, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, false, store.ErrNotFound
	}

	if anchor.Status.IsTerminal() {
		var group []*model.Song
		for _, song := range r.songs {
			if song.SiblingGroupID != nil && *song.SiblingGroupID == taskID {
				copied := *song
				group = append(group, &copied)
			}
		}
		if len(group) == 0 {
			copied := *anchor
			group = append(group, &copied)
		}
		return group, true, nil
	}

	groupID := taskID
	var out []*model.Song
	for i, audioURL := range audioURLs {
		if i == 0 {
			anchor.DownloadURL = audioURL
			anchor.SiblingGroupID = &groupID
			anchor.TrackNumber = 1
			anchor.Status = model.SongStatusCompleted
			anchor.ErrorMessage = ""
			copied := *anchor
			out = append(out, &copied)
			continue
		}
		sibling := &model.Song{
			UserID:           anchor.UserID,
			SourceType:       anchor.SourceType,
			Status:           model.SongStatusCompleted,
			SpecificTitle:    fmt.Sprintf("%s (v%d)", anchor.SpecificTitle, i+1),
			SpecificLyrics:   anchor.SpecificLyrics,
			PromptToGenerate: anchor.PromptToGenerate,
			StyleID:          anchor.StyleID,
			VocalGender:      anchor.VocalGender,
			DownloadURL:      audioURL,
			SiblingGroupID:   &groupID,
			TrackNumber:      i + 1,
			SunoTaskID:       &groupID,
		}
		r.addLocked(sibling)
		out = append(out, sibling)
	}
	return out, false, nil
}

func (r *fakeSongRepo) FailTask(ctx context.Context, taskID, errorMessage string) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, store.ErrNotFound
	}
	if anchor.Status.IsTerminal() {
		copied := *anchor
		return &copied, nil
	}
	anchor.Status = model.SongStatusFailed
	anchor.ErrorMessage = errorMessage
	copied := *anchor
	return &copied, nil
}

// fakeScheduler records archival scheduling calls.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []uint
	err   error
}

func (s *fakeScheduler) ScheduleArchive(ctx context.Context, songID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, songID)
	return nil
}

// fakeHub records broadcast calls.
type fakeHub struct {
	mu       sync.Mutex
	statuses []uint
	archived []uint
}

func (h *fakeHub) BroadcastStatus(songID uint, status model.SongStatus, errorMessage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, songID)
}

func (h *fakeHub) BroadcastArchived(songID uint, archivedURL string, fileSizeBytes int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.archived = append(h.archived, songID)
}

// fakeProvider is a canned GenerationProvider.
type fakeProvider struct {
	submitTaskID string
	submitErr    error
	queryPayload client.Payload
	queryErr     error
	submits      int
	queries      int
}

func (p *fakeProvider) Submit(ctx context.Context, song *model.Song, stylePrompt string) (string, error) {
	p.submits++
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.submitTaskID, nil
}

func (p *fakeProvider) Query(ctx context.Context, taskID string) (client.Payload, error) {
	p.queries++
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.queryPayload, nil
}

func (p *fakeProvider) IsConfigured() bool { return true }

// fakeStyleRepo serves canned styles.
type fakeStyleRepo struct {
	styles map[uint]*model.Style
}

func (r *fakeStyleRepo) GetByID(ctx context.Context, id uint) (*model.Style, error) {
	style, ok := r.styles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return style, nil
}

// submittedSong seeds a song awaiting reconciliation.
func submittedSong(repo *fakeSongRepo, userID uint, taskID, title string) *model.Song {
	song := &model.Song{
		UserID:        userID,
		Status:        model.SongStatusSubmitted,
		SourceType:    model.SourceGenerated,
		SpecificTitle: title,
		SunoTaskID:    &taskID,
	}
	repo.add(song)
	return song
}
