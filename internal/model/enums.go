package model

// Song status
type SongStatus string

const (
	SongStatusCreate      SongStatus = "create"
	SongStatusSubmitted   SongStatus = "submitted"
	SongStatusCompleted   SongStatus = "completed"
	SongStatusFailed      SongStatus = "failed"
	SongStatusUnspecified SongStatus = "unspecified"
)

var ValidSongStatuses = []SongStatus{
	SongStatusCreate, SongStatusSubmitted, SongStatusCompleted,
	SongStatusFailed, SongStatusUnspecified,
}

// IsTerminal reports whether no further generation transition can
// leave the status.
func (s SongStatus) IsTerminal() bool {
	return s == SongStatusCompleted || s == SongStatusFailed
}

// Source types
type SourceType string

const (
	SourceGenerated SourceType = "generated"
	SourceUploaded  SourceType = "uploaded"
)

// Vocal gender
type VocalGender string

const (
	VocalMale   VocalGender = "male"
	VocalFemale VocalGender = "female"
	VocalOther  VocalGender = "other"
)

// NormalizeVocalGender coerces arbitrary input to a submittable value.
// The generation API only accepts male or female.
func NormalizeVocalGender(v string) VocalGender {
	switch VocalGender(v) {
	case VocalMale, VocalFemale:
		return VocalGender(v)
	default:
		return VocalMale
	}
}

// DefaultStylePrompt is used when a song has no style or the style has
// no prompt text.
const DefaultStylePrompt = "pop"
