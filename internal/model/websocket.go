package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeArchived = "archived"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the minimal envelope used for client control frames.
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is pushed to subscribers of a song when its lifecycle
// status changes (reconciliation outcome).
type WSStatusMessage struct {
	Type   string     `json:"type"`
	SongID uint       `json:"song_id"`
	Status SongStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// WSArchivedMessage is pushed when a song's audio has been copied to
// durable storage.
type WSArchivedMessage struct {
	Type          string `json:"type"`
	SongID        uint   `json:"song_id"`
	ArchivedURL   string `json:"archived_url"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}
