package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
)

// fakeStorage is an in-memory StorageClient.
type fakeStorage struct {
	mu         sync.Mutex
	objects    map[string][]byte
	configured bool
	uploadErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), configured: true}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) ListPrefix(ctx context.Context, prefix string) ([]client.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []client.ObjectInfo
	for key, data := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, client.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (s *fakeStorage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, _ := s.ListPrefix(ctx, prefix)
	for _, obj := range objects {
		s.Delete(ctx, obj.Key)
	}
	return len(objects), nil
}

func (s *fakeStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signed", nil
}

func (s *fakeStorage) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *fakeStorage) IsConfigured() bool { return s.configured }

func audioServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completedSong(repo *fakeSongRepo, userID uint, url string, trackNumber int) *model.Song {
	song := &model.Song{
		UserID:      userID,
		Status:      model.SongStatusCompleted,
		DownloadURL: url,
		TrackNumber: trackNumber,
	}
	repo.add(song)
	return song
}

func TestArchiveCopiesAudio(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	hub := &fakeHub{}
	svc := NewArchiveService(repo, storage, hub)

	srv := audioServer(t, "mp3-bytes")
	song := completedSong(repo, 1, srv.URL+"/a.mp3", 2)

	got, archived, err := svc.Archive(context.Background(), song.ID)
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if !archived {
		t.Fatal("expected archived=true")
	}
	if !got.IsArchived || got.FileSizeBytes != int64(len("mp3-bytes")) {
		t.Errorf("song = %+v", got)
	}

	key := fmt.Sprintf("songs/%d/track_2.mp3", song.ID)
	if string(storage.objects[key]) != "mp3-bytes" {
		t.Errorf("stored object missing under %q", key)
	}

	stored, _ := repo.GetByID(context.Background(), song.ID)
	if !stored.IsArchived || stored.ArchivedURL == "" || stored.ArchivedAt == nil {
		t.Errorf("persisted song = %+v", stored)
	}
	if len(hub.archived) != 1 {
		t.Errorf("broadcast %d archived events, want 1", len(hub.archived))
	}
}

func TestArchiveAlreadyArchivedIsNoop(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	song := completedSong(repo, 1, "http://unreachable.invalid/a.mp3", 1)
	repo.SetArchived(context.Background(), song.ID, "https://cdn.example.com/x", 10)

	_, archived, err := svc.Archive(context.Background(), song.ID)
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if !archived {
		t.Error("already-archived song must report archived")
	}
	if len(storage.objects) != 0 {
		t.Error("no upload may happen for an archived song")
	}
}

func TestArchiveWithoutStorageOrAudio(t *testing.T) {
	repo := newFakeSongRepo()
	svc := NewArchiveService(repo, nil, nil)

	song := completedSong(repo, 1, "http://cdn/a.mp3", 1)
	_, archived, err := svc.Archive(context.Background(), song.ID)
	if err != nil {
		t.Fatalf("nil storage: %v", err)
	}
	if archived {
		t.Error("nil storage must report not archived")
	}

	storage := newFakeStorage()
	svc = NewArchiveService(repo, storage, nil)
	noAudio := &model.Song{UserID: 1, Status: model.SongStatusCompleted}
	repo.add(noAudio)

	_, archived, err = svc.Archive(context.Background(), noAudio.ID)
	if err != nil {
		t.Fatalf("no audio: %v", err)
	}
	if archived {
		t.Error("song without audio must report not archived")
	}
}

func TestArchiveLegacyURLFallback(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	srv := audioServer(t, "legacy-bytes")
	song := &model.Song{
		UserID:       1,
		Status:       model.SongStatusCompleted,
		DownloadURL1: srv.URL + "/legacy.mp3",
	}
	repo.add(song)

	_, archived, err := svc.Archive(context.Background(), song.ID)
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if !archived {
		t.Error("legacy URL must be archivable")
	}
}

func TestArchiveFetchFailure(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	song := completedSong(repo, 1, srv.URL+"/gone.mp3", 1)
	_, archived, err := svc.Archive(context.Background(), song.ID)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if archived {
		t.Error("failed fetch must not report archived")
	}

	stored, _ := repo.GetByID(context.Background(), song.ID)
	if stored.IsArchived {
		t.Error("failed archival must leave is_archived false")
	}
}

func TestDownloadURL(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	// Archived song: presigned URL against the canonical key.
	archived := completedSong(repo, 1, "http://cdn/a.mp3", 2)
	repo.SetArchived(context.Background(), archived.ID, "https://cdn.example.com/x", 10)

	url, err := svc.DownloadURL(context.Background(), archived.ID)
	if err != nil {
		t.Fatalf("DownloadURL() error: %v", err)
	}
	want := fmt.Sprintf("https://cdn.example.com/songs/%d/track_2.mp3?signed", archived.ID)
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	// Unarchived song: falls back to the provider URL.
	fresh := completedSong(repo, 1, "http://cdn/b.mp3", 1)
	url, err = svc.DownloadURL(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("DownloadURL() error: %v", err)
	}
	if url != "http://cdn/b.mp3" {
		t.Errorf("url = %q, want provider URL", url)
	}

	// Archived but storage gone: still fall back to the provider URL.
	svc = NewArchiveService(repo, nil, nil)
	url, err = svc.DownloadURL(context.Background(), archived.ID)
	if err != nil {
		t.Fatalf("DownloadURL() error: %v", err)
	}
	if url != "http://cdn/a.mp3" {
		t.Errorf("url = %q, want provider URL", url)
	}

	// No audio anywhere is an error.
	empty := &model.Song{UserID: 1, Status: model.SongStatusCompleted}
	repo.add(empty)
	if _, err := svc.DownloadURL(context.Background(), empty.ID); err == nil {
		t.Error("expected error for song without audio")
	}
}

func TestArchiveAll(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	srv := audioServer(t, "bytes")
	completedSong(repo, 1, srv.URL+"/a.mp3", 1)
	completedSong(repo, 1, srv.URL+"/b.mp3", 1)
	// Failed fetch counts as failed, not fatal.
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)
	completedSong(repo, 1, bad.URL+"/c.mp3", 1)
	// Other users' songs are out of scope.
	completedSong(repo, 2, srv.URL+"/d.mp3", 1)

	resp, err := svc.ArchiveAll(context.Background(), 1)
	if err != nil {
		t.Fatalf("ArchiveAll() error: %v", err)
	}
	if resp.Total != 3 || resp.Archived != 2 || resp.Failed != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDeleteFiles(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	storage.objects["songs/7/track_1.mp3"] = []byte("a")
	storage.objects["songs/7/track_2.mp3"] = []byte("b")
	storage.objects["songs/8/track_1.mp3"] = []byte("c")

	if err := svc.DeleteFiles(context.Background(), 7); err != nil {
		t.Fatalf("DeleteFiles() error: %v", err)
	}
	if len(storage.objects) != 1 {
		t.Errorf("objects left = %d, want 1", len(storage.objects))
	}

	// Empty prefix is a silent success.
	if err := svc.DeleteFiles(context.Background(), 99); err != nil {
		t.Errorf("empty prefix: %v", err)
	}
}

func TestStorageStats(t *testing.T) {
	repo := newFakeSongRepo()
	storage := newFakeStorage()
	svc := NewArchiveService(repo, storage, nil)

	storage.objects["songs/1/track_1.mp3"] = make([]byte, 100)
	storage.objects["songs/1/track_2.mp3"] = make([]byte, 50)
	storage.objects["songs/2/track_1.mp3"] = make([]byte, 25)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalSizeBytes != 175 || stats.FileCount != 3 || stats.SongCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
