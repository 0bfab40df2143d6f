package model

import "time"

// Song is the unit of generated (or uploaded) audio. Songs produced by
// the same generation task share a sibling group: the original
// submission row becomes track 1 and every additional provider track is
// materialized as its own row during reconciliation.
type Song struct {
	ID     uint       `json:"id" gorm:"primaryKey"`
	UserID uint       `json:"user_id" gorm:"not null;index"`
	Status SongStatus `json:"status" gorm:"type:varchar(20);default:'create';index"`

	SourceType SourceType `json:"source_type" gorm:"type:varchar(20);default:'generated'"`

	SpecificTitle    string       `json:"specific_title" gorm:"size:500"`
	Version          string       `json:"version" gorm:"size:20;default:'v1'"`
	SpecificLyrics   string       `json:"specific_lyrics" gorm:"type:text"`
	PromptToGenerate string       `json:"prompt_to_generate" gorm:"type:text"`
	StyleID          *uint        `json:"style_id"`
	Style            *Style       `json:"style,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	VocalGender      *VocalGender `json:"vocal_gender" gorm:"type:varchar(10)"`
	StarRating       int          `json:"star_rating" gorm:"default:0"`

	// Provider correlation. SunoTaskID is set exactly when the song has
	// been accepted by the generation API; SiblingGroupID equals the
	// task id once the task's tracks have been materialized.
	SunoTaskID     *string `json:"suno_task_id" gorm:"size:255;index"`
	SiblingGroupID *string `json:"sibling_group_id" gorm:"size:255;uniqueIndex:uniq_sibling_track"`
	TrackNumber    int     `json:"track_number" gorm:"default:1;uniqueIndex:uniq_sibling_track"`

	// Audio references. DownloadURL is canonical; the numbered fields
	// are legacy dual-track columns kept readable for old rows.
	DownloadURL  string `json:"download_url" gorm:"size:1000"`
	DownloadURL1 string `json:"download_url_1" gorm:"size:1000"`
	DownloadURL2 string `json:"download_url_2" gorm:"size:1000"`

	// Archival bookkeeping. IsArchived is monotonic: once a copy landed
	// in durable storage it is never unset.
	ArchivedURL   string     `json:"archived_url" gorm:"size:1000"`
	IsArchived    bool       `json:"is_archived" gorm:"default:false"`
	ArchivedAt    *time.Time `json:"archived_at"`
	FileSizeBytes int64      `json:"file_size_bytes" gorm:"default:0"`

	// Last provider error message, recorded when generation fails.
	ErrorMessage string `json:"error_message,omitempty" gorm:"size:1000"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AudioRef returns the effective download URL, preferring the canonical
// field over the legacy columns.
func (s *Song) AudioRef() string {
	if s.DownloadURL != "" {
		return s.DownloadURL
	}
	if s.DownloadURL1 != "" {
		return s.DownloadURL1
	}
	return s.DownloadURL2
}

// CreateSongRequest is the body for POST /api/v1/songs.
type CreateSongRequest struct {
	SpecificTitle    string `json:"specific_title" validate:"omitempty,max=500"`
	Version          string `json:"version" validate:"omitempty,max=20"`
	SpecificLyrics   string `json:"specific_lyrics"`
	PromptToGenerate string `json:"prompt_to_generate"`
	StyleID          *uint  `json:"style_id"`
	VocalGender      string `json:"vocal_gender" validate:"omitempty,oneof=male female other"`
	Status           string `json:"status" validate:"omitempty,oneof=create submitted completed failed unspecified"`
}

// UpdateSongRequest is the body for PUT /api/v1/songs/:id. Pointer
// fields distinguish "absent" from "set to zero value".
type UpdateSongRequest struct {
	UserID           *uint   `json:"user_id"`
	SpecificTitle    *string `json:"specific_title" validate:"omitempty,max=500"`
	SpecificLyrics   *string `json:"specific_lyrics"`
	PromptToGenerate *string `json:"prompt_to_generate"`
	StyleID          *uint   `json:"style_id"`
	VocalGender      *string `json:"vocal_gender"`
	Status           *string `json:"status" validate:"omitempty,oneof=create submitted completed failed unspecified"`
	StarRating       *int    `json:"star_rating" validate:"omitempty,min=0,max=5"`
}

// SongListQuery captures the filters for GET /api/v1/songs.
type SongListQuery struct {
	UserID      uint
	AllUsers    bool
	Status      string
	StyleID     *uint
	VocalGender string
	Search      string
	PlaylistID  *uint
}

// SongStats is the payload for GET /api/v1/songs/stats. Completed only
// counts songs that actually carry an audio reference.
type SongStats struct {
	Total       int64 `json:"total"`
	Create      int64 `json:"create"`
	Submitted   int64 `json:"submitted"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Unspecified int64 `json:"unspecified"`
}

// CheckResult describes the outcome of reconciling one song, for the
// poll endpoints.
type CheckResult struct {
	SongID uint    `json:"song_id"`
	Title  string  `json:"title"`
	Status string  `json:"status"`
	Songs  []*Song `json:"songs,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BulkCheckResponse aggregates a bulk poll across every submitted song
// of the caller.
type BulkCheckResponse struct {
	Message      string        `json:"message,omitempty"`
	Results      []CheckResult `json:"results"`
	Updated      int           `json:"updated"`
	Errors       int           `json:"errors"`
	TotalChecked int           `json:"total_checked"`
}

// ArchiveAllResponse reports a bulk archival run.
type ArchiveAllResponse struct {
	Message  string `json:"message"`
	Archived int    `json:"archived"`
	Failed   int    `json:"failed"`
	Total    int    `json:"total"`
}

// StorageStats aggregates archived artifacts by scanning storage. Not
// on any request-critical path.
type StorageStats struct {
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	TotalSizeGB    float64 `json:"total_size_gb"`
	FileCount      int     `json:"file_count"`
	SongCount      int     `json:"song_count"`
}
