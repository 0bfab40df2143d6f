package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/aiamusic/api/internal/model"
)

type PlaylistStore struct {
	db *gorm.DB
}

func (s *PlaylistStore) Create(ctx context.Context, playlist *model.Playlist) error {
	return s.db.WithContext(ctx).Create(playlist).Error
}

func (s *PlaylistStore) GetByID(ctx context.Context, id uint) (*model.Playlist, error) {
	var playlist model.Playlist
	err := s.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("songs.created_at DESC")
		}).
		First(&playlist, id).Error
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

// List returns playlists visible to the user: their own plus public
// ones.
func (s *PlaylistStore) List(ctx context.Context, userID uint) ([]model.Playlist, error) {
	var playlists []model.Playlist
	err := s.db.WithContext(ctx).
		Where("created_by = ? OR is_public = ?", userID, true).
		Order("created_at DESC").
		Find(&playlists).Error
	return playlists, err
}

func (s *PlaylistStore) Save(ctx context.Context, playlist *model.Playlist) error {
	return s.db.WithContext(ctx).Save(playlist).Error
}

func (s *PlaylistStore) Delete(ctx context.Context, id uint) error {
	playlist := model.Playlist{ID: id}
	if err := s.db.WithContext(ctx).Model(&playlist).Association("Songs").Clear(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&playlist).Error
}

func (s *PlaylistStore) AddSong(ctx context.Context, playlist *model.Playlist, song *model.Song) error {
	return s.db.WithContext(ctx).Model(playlist).Association("Songs").Append(song)
}

func (s *PlaylistStore) RemoveSong(ctx context.Context, playlist *model.Playlist, song *model.Song) error {
	return s.db.WithContext(ctx).Model(playlist).Association("Songs").Delete(song)
}
