package model

import "time"

// Playlist is a named collection of songs. Public playlists are visible
// to every user; private ones only to their creator.
type Playlist struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedBy   uint      `json:"created_by" gorm:"not null;index"`
	IsPublic    bool      `json:"is_public" gorm:"default:true"`
	Songs       []Song    `json:"songs,omitempty" gorm:"many2many:playlist_songs"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreatePlaylistRequest is the body for POST /api/v1/playlists.
type CreatePlaylistRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

// UpdatePlaylistRequest is the body for PUT /api/v1/playlists/:id.
type UpdatePlaylistRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}
