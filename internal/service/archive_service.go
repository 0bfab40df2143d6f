package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
)

// fetchTimeout bounds the transfer of one generated track from the
// provider CDN into storage. Downloads can be slow but a stuck
// transfer must not pin a worker.
const fetchTimeout = 120 * time.Second

// signedURLTTL is how long a presigned download link stays valid.
const signedURLTTL = time.Hour

// ArchiveService copies generated audio from the provider's transient
// CDN into our own object storage.
type ArchiveService struct {
	songs      SongRepository
	storage    client.StorageClient
	hub        Broadcaster
	httpClient *http.Client
}

func NewArchiveService(songs SongRepository, storage client.StorageClient, hub Broadcaster) *ArchiveService {
	return &ArchiveService{
		songs:      songs,
		storage:    storage,
		hub:        hub,
		httpClient: &http.Client{},
	}
}

// storageKey is the canonical object key for one song's audio.
func storageKey(songID uint, trackNumber int) string {
	if trackNumber < 1 {
		trackNumber = 1
	}
	return fmt.Sprintf("songs/%d/track_%d.mp3", songID, trackNumber)
}

// Archive copies one song's audio to object storage and records the
// result. Returns whether the song is archived after the call. Missing
// storage and missing audio are logged no-ops, not errors: archival
// must never take a completed song down with it.
func (s *ArchiveService) Archive(ctx context.Context, songID uint) (*model.Song, bool, error) {
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return nil, false, err
	}

	if song.IsArchived {
		return song, true, nil
	}

	if s.storage == nil || !s.storage.IsConfigured() {
		log.Printf("[Archive] storage not configured, skipping song %d", song.ID)
		return song, false, nil
	}

	audioURL := song.AudioRef()
	if audioURL == "" {
		log.Printf("[Archive] song %d has no audio URL to archive", song.ID)
		return song, false, nil
	}

	// The audio is streamed straight from the CDN response into
	// storage; one timeout spans the whole transfer.
	tctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	body, err := s.fetchAudio(tctx, audioURL)
	if err != nil {
		return song, false, fmt.Errorf("failed to fetch audio for song %d: %w", song.ID, err)
	}
	defer body.Close()

	counted := &countingReader{r: body}
	key := storageKey(song.ID, song.TrackNumber)
	archivedURL, err := s.storage.Upload(tctx, key, counted, "audio/mpeg")
	if err != nil {
		return song, false, fmt.Errorf("failed to upload audio for song %d: %w", song.ID, err)
	}

	size := counted.n
	if err := s.songs.SetArchived(ctx, song.ID, archivedURL, size); err != nil {
		return song, false, err
	}

	song.ArchivedURL = archivedURL
	song.IsArchived = true
	song.FileSizeBytes = size

	log.Printf("[Archive] song %d archived to %s (%d bytes)", song.ID, key, size)
	if s.hub != nil {
		s.hub.BroadcastArchived(song.ID, archivedURL, size)
	}

	return song, true, nil
}

func (s *ArchiveService) fetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// countingReader tallies bytes as they stream through to storage.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// DownloadURL resolves a link for a song's audio. Archived songs get a
// short-lived presigned storage URL; everything else falls back to the
// provider URL still on the record.
func (s *ArchiveService) DownloadURL(ctx context.Context, songID uint) (string, error) {
	song, err := s.songs.GetByID(ctx, songID)
	if err != nil {
		return "", err
	}

	if song.IsArchived && s.storage != nil && s.storage.IsConfigured() {
		return s.storage.GetSignedURL(ctx, storageKey(song.ID, song.TrackNumber), signedURLTTL)
	}

	if url := song.AudioRef(); url != "" {
		return url, nil
	}
	return "", fmt.Errorf("song %d has no audio to download", song.ID)
}

// ArchiveAll archives every completed, unarchived song of the caller
// that has an audio reference. Per-song failures are counted, never
// fatal.
func (s *ArchiveService) ArchiveAll(ctx context.Context, userID uint) (*model.ArchiveAllResponse, error) {
	candidates, err := s.songs.ListArchivable(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &model.ArchiveAllResponse{Total: len(candidates)}
	for i := range candidates {
		_, archived, err := s.Archive(ctx, candidates[i].ID)
		if err != nil {
			log.Printf("[Archive] bulk archival failed for song %d: %v", candidates[i].ID, err)
			resp.Failed++
			continue
		}
		if archived {
			resp.Archived++
		} else {
			resp.Failed++
		}
	}

	resp.Message = fmt.Sprintf("Archived %d of %d song(s)", resp.Archived, resp.Total)
	return resp, nil
}

// DeleteFiles removes every archived object belonging to a song. An
// empty prefix is a silent success.
func (s *ArchiveService) DeleteFiles(ctx context.Context, songID uint) error {
	if s.storage == nil || !s.storage.IsConfigured() {
		return nil
	}

	prefix := fmt.Sprintf("songs/%d/", songID)
	deleted, err := s.storage.DeletePrefix(ctx, prefix)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("[Archive] deleted %d object(s) for song %d", deleted, songID)
	}
	return nil
}

// Stats scans the archive prefix and aggregates storage usage. Not on
// any request-critical path.
func (s *ArchiveService) Stats(ctx context.Context) (*model.StorageStats, error) {
	stats := &model.StorageStats{}
	if s.storage == nil || !s.storage.IsConfigured() {
		return stats, nil
	}

	objects, err := s.storage.ListPrefix(ctx, "songs/")
	if err != nil {
		return nil, err
	}

	songIDs := make(map[string]bool)
	for _, obj := range objects {
		stats.TotalSizeBytes += obj.Size
		stats.FileCount++
		// key layout: songs/{songID}/track_{n}.mp3
		parts := strings.Split(obj.Key, "/")
		if len(parts) >= 2 {
			songIDs[parts[1]] = true
		}
	}
	stats.SongCount = len(songIDs)
	stats.TotalSizeMB = float64(stats.TotalSizeBytes) / (1024 * 1024)
	stats.TotalSizeGB = float64(stats.TotalSizeBytes) / (1024 * 1024 * 1024)

	return stats, nil
}
