package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aiamusic/api/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// SongStore persists songs. The songs table is the single source of
// truth for lifecycle state; no component caches Song state across
// calls.
type SongStore struct {
	db *gorm.DB
}

func (s *SongStore) Create(ctx context.Context, song *model.Song) error {
	return s.db.WithContext(ctx).Create(song).Error
}

func (s *SongStore) GetByID(ctx context.Context, id uint) (*model.Song, error) {
	var song model.Song
	if err := s.db.WithContext(ctx).Preload("Style").First(&song, id).Error; err != nil {
		return nil, err
	}
	return &song, nil
}

func (s *SongStore) Save(ctx context.Context, song *model.Song) error {
	return s.db.WithContext(ctx).Save(song).Error
}

func (s *SongStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&model.Song{}, id).Error
}

// MarkSubmitted records the provider task id and flips the song to
// submitted in a single UPDATE, so a song is never observable as
// submitted without a correlatable task id.
func (s *SongStore) MarkSubmitted(ctx context.Context, songID uint, taskID string) error {
	return s.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ?", songID).
		Updates(map[string]interface{}{
			"suno_task_id": taskID,
			"status":       model.SongStatusSubmitted,
		}).Error
}

// List returns songs matching the query, newest first.
func (s *SongStore) List(ctx context.Context, q model.SongListQuery) ([]model.Song, error) {
	tx := s.db.WithContext(ctx).Model(&model.Song{}).Preload("Style")

	if !q.AllUsers {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" && q.Status != "all" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.StyleID != nil {
		tx = tx.Where("style_id = ?", *q.StyleID)
	}
	if q.VocalGender != "" && q.VocalGender != "all" {
		tx = tx.Where("vocal_gender = ?", q.VocalGender)
	}
	if q.PlaylistID != nil {
		tx = tx.Joins("JOIN playlist_songs ON playlist_songs.song_id = songs.id AND playlist_songs.playlist_id = ?", *q.PlaylistID)
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		tx = tx.Where("specific_title LIKE ? OR specific_lyrics LIKE ?", pattern, pattern)
	}

	var songs []model.Song
	if err := tx.Order("created_at DESC").Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

// ListSubmitted returns the caller's songs awaiting reconciliation.
func (s *SongStore) ListSubmitted(ctx context.Context, userID uint) ([]model.Song, error) {
	var songs []model.Song
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SongStatusSubmitted).
		Find(&songs).Error
	return songs, err
}

// ListArchivable returns the caller's completed, unarchived songs that
// carry an audio reference.
func (s *SongStore) ListArchivable(ctx context.Context, userID uint) ([]model.Song, error) {
	var songs []model.Song
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND is_archived = ?", userID, model.SongStatusCompleted, false).
		Where("download_url <> '' OR download_url_1 <> '' OR download_url_2 <> ''").
		Find(&songs).Error
	return songs, err
}

// SetArchived records a successful copy to durable storage. is_archived
// is monotonic: this is the only place it is written, and it is only
// ever set to true.
func (s *SongStore) SetArchived(ctx context.Context, songID uint, archivedURL string, sizeBytes int64) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ?", songID).
		Updates(map[string]interface{}{
			"archived_url":    archivedURL,
			"is_archived":     true,
			"archived_at":     now,
			"file_size_bytes": sizeBytes,
		}).Error
}

// Stats aggregates songs by status. Completed only counts songs that
// actually carry an audio reference.
func (s *SongStore) Stats(ctx context.Context, userID uint, allUsers bool) (*model.SongStats, error) {
	base := s.db.WithContext(ctx).Model(&model.Song{})
	if !allUsers {
		base = base.Where("user_id = ?", userID)
	}

	stats := &model.SongStats{}
	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	counts := []struct {
		status model.SongStatus
		dest   *int64
	}{
		{model.SongStatusCreate, &stats.Create},
		{model.SongStatusSubmitted, &stats.Submitted},
		{model.SongStatusFailed, &stats.Failed},
		{model.SongStatusUnspecified, &stats.Unspecified},
	}
	for _, c := range counts {
		if err := base.Session(&gorm.Session{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	err := base.Session(&gorm.Session{}).
		Where("status = ?", model.SongStatusCompleted).
		Where("download_url <> '' OR download_url_1 <> ''").
		Count(&stats.Completed).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// lockAnchor resolves the anchor song for a task inside a transaction,
// taking a row lock so concurrent webhook and poll deliveries for the
// same task serialize here. The anchor is the original submission row:
// first the one not yet in a sibling group, otherwise track 1 of the
// already-materialized group.
func lockAnchor(tx *gorm.DB, taskID string) (*model.Song, error) {
	var anchor model.Song
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("suno_task_id = ? AND sibling_group_id IS NULL", taskID).
		First(&anchor).Error
	if err == nil {
		return &anchor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("suno_task_id = ? AND sibling_group_id = ? AND track_number = 1", taskID, taskID).
		First(&anchor).Error
	if err != nil {
		return nil, err
	}
	return &anchor, nil
}

// MaterializeTracks turns a successful task result into one song per
// track, atomically. Track 1 mutates the anchor in place; every
// further track becomes a new sibling row copying the anchor's
// authorship and descriptive metadata. The whole batch commits or
// rolls back as a unit, and the unique index on
// (sibling_group_id, track_number) backstops against duplicate
// materialization. Returns the sibling set and whether the task had
// already been reconciled.
func (s *SongStore) MaterializeTracks(ctx context.Context, taskID string, audioURLs []string) ([]*model.Song, bool, error) {
	var (
		songs       []*model.Song
		alreadyDone bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anchor, err := lockAnchor(tx, taskID)
		if err != nil {
			return err
		}

		// Idempotency guard: a terminal anchor means this delivery is
		// a repeat. Return the existing set, create nothing.
		if anchor.Status.IsTerminal() {
			alreadyDone = true
			group, err := siblingGroup(tx, taskID, anchor)
			if err != nil {
				return err
			}
			songs = group
			return nil
		}

		groupID := taskID
		for i, audioURL := range audioURLs {
			trackNumber := i + 1
			if trackNumber == 1 {
				anchor.DownloadURL = audioURL
				anchor.SiblingGroupID = &groupID
				anchor.TrackNumber = 1
				anchor.Status = model.SongStatusCompleted
				anchor.ErrorMessage = ""
				if err := tx.Save(anchor).Error; err != nil {
					return err
				}
				songs = append(songs, anchor)
				continue
			}

			sibling := &model.Song{
				UserID:           anchor.UserID,
				SourceType:       anchor.SourceType,
				Status:           model.SongStatusCompleted,
				SpecificTitle:    fmt.Sprintf("%s (v%d)", anchorTitle(anchor), trackNumber),
				Version:          anchor.Version,
				SpecificLyrics:   anchor.SpecificLyrics,
				PromptToGenerate: anchor.PromptToGenerate,
				StyleID:          anchor.StyleID,
				VocalGender:      anchor.VocalGender,
				DownloadURL:      audioURL,
				SiblingGroupID:   &groupID,
				TrackNumber:      trackNumber,
				SunoTaskID:       &groupID,
			}
			if err := tx.Create(sibling).Error; err != nil {
				return err
			}
			songs = append(songs, sibling)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return songs, alreadyDone, nil
}

// FailTask records a failed generation on the anchor song. A terminal
// anchor is left untouched (repeat delivery).
func (s *SongStore) FailTask(ctx context.Context, taskID, errorMessage string) (*model.Song, error) {
	var result *model.Song

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anchor, err := lockAnchor(tx, taskID)
		if err != nil {
			return err
		}
		if anchor.Status.IsTerminal() {
			result = anchor
			return nil
		}

		anchor.Status = model.SongStatusFailed
		anchor.ErrorMessage = errorMessage
		if err := tx.Save(anchor).Error; err != nil {
			return err
		}
		result = anchor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AnchorForTask resolves the anchor song outside a transaction, for
// read-only callers.
func (s *SongStore) AnchorForTask(ctx context.Context, taskID string) (*model.Song, error) {
	var anchor model.Song
	err := s.db.WithContext(ctx).
		Where("suno_task_id = ? AND sibling_group_id IS NULL", taskID).
		First(&anchor).Error
	if err == nil {
		return &anchor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Where("suno_task_id = ? AND sibling_group_id = ? AND track_number = 1", taskID, taskID).
		First(&anchor).Error
	if err != nil {
		return nil, err
	}
	return &anchor, nil
}

func siblingGroup(tx *gorm.DB, taskID string, anchor *model.Song) ([]*model.Song, error) {
	var group []model.Song
	err := tx.Where("sibling_group_id = ?", taskID).
		Order("track_number ASC").
		Find(&group).Error
	if err != nil {
		return nil, err
	}
	if len(group) == 0 {
		// failed tasks never grow a sibling group
		return []*model.Song{anchor}, nil
	}
	out := make([]*model.Song, len(group))
	for i := range group {
		out[i] = &group[i]
	}
	return out, nil
}

func anchorTitle(anchor *model.Song) string {
	if anchor.SpecificTitle != "" {
		return anchor.SpecificTitle
	}
	return "Untitled"
}
