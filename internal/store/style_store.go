package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aiamusic/api/internal/model"
)

// ErrDuplicateName is returned when a unique-named record already
// exists.
var ErrDuplicateName = errors.New("name already exists")

type StyleStore struct {
	db *gorm.DB
}

func (s *StyleStore) Create(ctx context.Context, style *model.Style) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Style{}).
		Where("name = ?", style.Name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateName
	}
	return s.db.WithContext(ctx).Create(style).Error
}

func (s *StyleStore) GetByID(ctx context.Context, id uint) (*model.Style, error) {
	var style model.Style
	if err := s.db.WithContext(ctx).First(&style, id).Error; err != nil {
		return nil, err
	}
	return &style, nil
}

func (s *StyleStore) List(ctx context.Context) ([]model.Style, error) {
	var styles []model.Style
	err := s.db.WithContext(ctx).Order("name ASC").Find(&styles).Error
	return styles, err
}

func (s *StyleStore) Save(ctx context.Context, style *model.Style) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Style{}).
		Where("name = ? AND id <> ?", style.Name, style.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateName
	}
	return s.db.WithContext(ctx).Save(style).Error
}

// Delete removes a style. Songs referencing it keep their rows; the
// foreign key is nulled by the schema constraint.
func (s *StyleStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&model.Style{}, id).Error
}

// InUse reports whether any song references the style.
func (s *StyleStore) InUse(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Song{}).
		Where("style_id = ?", id).Count(&count).Error
	return count > 0, err
}
