package model

import "time"

// Style is a reusable music style definition. Its prompt text is passed
// to the generation API when a song references the style.
type Style struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:255;uniqueIndex;not null"`
	StylePrompt string    `json:"style_prompt" gorm:"type:text"`
	CreatedBy   *uint     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateStyleRequest is the body for POST /api/v1/styles.
type CreateStyleRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	StylePrompt string `json:"style_prompt"`
}

// UpdateStyleRequest is the body for PUT /api/v1/styles/:id.
type UpdateStyleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	StylePrompt *string `json:"style_prompt"`
}
