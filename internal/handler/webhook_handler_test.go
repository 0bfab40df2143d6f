package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/internal/store"
)

// webhookSongRepo is an in-memory service.SongRepository sufficient for
// exercising the webhook endpoints.
type webhookSongRepo struct {
	mu     sync.Mutex
	nextID uint
	songs  map[uint]*model.Song
}

func newWebhookSongRepo() *webhookSongRepo {
	return &webhookSongRepo{nextID: 1, songs: make(map[uint]*model.Song)}
}

func (r *webhookSongRepo) add(song *model.Song) *model.Song {
	r.mu.Lock()
	defer r.mu.Unlock()
	if song.ID == 0 {
		song.ID = r.nextID
		r.nextID++
	}
	copied := *song
	r.songs[copied.ID] = &copied
	return song
}

func (r *webhookSongRepo) Create(ctx context.Context, song *model.Song) error {
	r.add(song)
	return nil
}

func (r *webhookSongRepo) GetByID(ctx context.Context, id uint) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.songs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *song
	return &copied, nil
}

func (r *webhookSongRepo) Save(ctx context.Context, song *model.Song) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *song
	r.songs[song.ID] = &copied
	return nil
}

func (r *webhookSongRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.songs, id)
	return nil
}

func (r *webhookSongRepo) MarkSubmitted(ctx context.Context, songID uint, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	song, ok := r.songs[songID]
	if !ok {
		return store.ErrNotFound
	}
	song.SunoTaskID = &taskID
	song.Status = model.SongStatusSubmitted
	return nil
}

func (r *webhookSongRepo) List(ctx context.Context, q model.SongListQuery) ([]model.Song, error) {
	return nil, nil
}

func (r *webhookSongRepo) ListSubmitted(ctx context.Context, userID uint) ([]model.Song, error) {
	return nil, nil
}

func (r *webhookSongRepo) ListArchivable(ctx context.Context, userID uint) ([]model.Song, error) {
	return nil, nil
}

func (r *webhookSongRepo) SetArchived(ctx context.Context, songID uint, archivedURL string, sizeBytes int64) error {
	return nil
}

func (r *webhookSongRepo) Stats(ctx context.Context, userID uint, allUsers bool) (*model.SongStats, error) {
	return &model.SongStats{}, nil
}

func (r *webhookSongRepo) anchorLocked(taskID string) *model.Song {
	for _, song := range r.songs {
		if song.SunoTaskID != nil && *song.SunoTaskID == taskID && song.SiblingGroupID == nil {
			return song
		}
	}
	for _, song := range r.songs {
		if song.SunoTaskID != nil && *song.SunoTaskID == taskID &&
			song.SiblingGroupID != nil && *song.SiblingGroupID == taskID && song.TrackNumber == 1 {
			return song
		}
	}
	return nil
}

func (r *webhookSongRepo) AnchorForTask(ctx context.Context, taskID string) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, store.ErrNotFound
	}
	copied := *anchor
	return &copied, nil
}

func (r *webhookSongRepo) MaterializeTracks(ctx context.Context, taskID string, audioURLs []string) ([]*model.Song, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, false, store.ErrNotFound
	}
	if anchor.Status.IsTerminal() {
		var group []*model.Song
		for _, song := range r.songs {
			if song.SiblingGroupID != nil && *song.SiblingGroupID == taskID {
				copied := *song
				group = append(group, &copied)
			}
		}
		return group, true, nil
	}

	groupID := taskID
	var out []*model.Song
	for i, audioURL := range audioURLs {
		if i == 0 {
			anchor.DownloadURL = audioURL
			anchor.SiblingGroupID = &groupID
			anchor.TrackNumber = 1
			anchor.Status = model.SongStatusCompleted
			copied := *anchor
			out = append(out, &copied)
			continue
		}
		sibling := &model.Song{
			ID:             r.nextID,
			UserID:         anchor.UserID,
			Status:         model.SongStatusCompleted,
			SpecificTitle:  fmt.Sprintf("%s (v%d)", anchor.SpecificTitle, i+1),
			DownloadURL:    audioURL,
			SiblingGroupID: &groupID,
			TrackNumber:    i + 1,
			SunoTaskID:     &groupID,
		}
		r.nextID++
		r.songs[sibling.ID] = sibling
		copied := *sibling
		out = append(out, &copied)
	}
	return out, false, nil
}

func (r *webhookSongRepo) FailTask(ctx context.Context, taskID, errorMessage string) (*model.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	anchor := r.anchorLocked(taskID)
	if anchor == nil {
		return nil, store.ErrNotFound
	}
	if !anchor.Status.IsTerminal() {
		anchor.Status = model.SongStatusFailed
		anchor.ErrorMessage = errorMessage
	}
	copied := *anchor
	return &copied, nil
}

// newWebhookApp mounts the webhook routes on a bare fiber app backed by
// the in-memory repository.
func newWebhookApp(repo *webhookSongRepo) *fiber.App {
	reconcile := service.NewReconcileService(repo, nil, nil, nil)
	h := NewWebhookHandler(reconcile, repo)

	app := fiber.New()
	webhooks := app.Group("/api/v1/webhooks")
	webhooks.Post("/suno-callback", h.SunoCallback)
	webhooks.Post("/suno-submitted", h.SunoSubmitted)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func seedSubmitted(repo *webhookSongRepo, taskID, title string) *model.Song {
	song := &model.Song{
		UserID:        1,
		Status:        model.SongStatusSubmitted,
		SourceType:    model.SourceGenerated,
		SpecificTitle: title,
		SunoTaskID:    &taskID,
	}
	repo.add(song)
	return song
}

func TestSunoCallbackSuccess(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)
	song := seedSubmitted(repo, "task-1", "Sunrise")

	body := `{
		"data": {
			"callbackType": "complete",
			"task_id": "task-1",
			"data": [
				{"audio_url": "http://cdn/a.mp3", "title": "Sunrise"},
				{"audio_url": "http://cdn/b.mp3", "title": "Sunrise"}
			]
		}
	}`

	resp := postJSON(t, app, "/api/v1/webhooks/suno-callback", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeJSON(t, resp)
	if got["status"] != "success" || got["songs"] != float64(2) {
		t.Errorf("response body = %+v", got)
	}

	updated, _ := repo.GetByID(context.Background(), song.ID)
	if updated.Status != model.SongStatusCompleted || updated.DownloadURL != "http://cdn/a.mp3" {
		t.Errorf("anchor after callback = %+v", updated)
	}
	if len(repo.songs) != 2 {
		t.Errorf("song rows = %d, want 2 (anchor + sibling)", len(repo.songs))
	}
}

func TestSunoCallbackRepeatDelivery(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)
	seedSubmitted(repo, "task-1", "Sunrise")

	body := `{
		"data": {
			"callbackType": "complete",
			"task_id": "task-1",
			"data": [{"audio_url": "http://cdn/a.mp3"}]
		}
	}`

	for i := 0; i < 2; i++ {
		resp := postJSON(t, app, "/api/v1/webhooks/suno-callback", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	if len(repo.songs) != 1 {
		t.Errorf("song rows = %d, want 1 after repeat delivery", len(repo.songs))
	}
}

func TestSunoCallbackFailure(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)
	song := seedSubmitted(repo, "task-1", "Sunrise")

	body := `{"data": {"task_id": "task-1", "status": "CREATE_TASK_FAILED", "msg": "content flagged"}}`
	resp := postJSON(t, app, "/api/v1/webhooks/suno-callback", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, _ := repo.GetByID(context.Background(), song.ID)
	if updated.Status != model.SongStatusFailed || updated.ErrorMessage != "content flagged" {
		t.Errorf("song after failure callback = %+v", updated)
	}
}

func TestSunoCallbackRejectsBadPayloads(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)

	// Invalid JSON.
	resp := postJSON(t, app, "/api/v1/webhooks/suno-callback", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// No task id anywhere in the payload.
	resp = postJSON(t, app, "/api/v1/webhooks/suno-callback", `{"data": {"status": "SUCCESS"}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing task id: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Task nobody submitted.
	resp = postJSON(t, app, "/api/v1/webhooks/suno-callback", `{"data": {"task_id": "ghost", "status": "SUCCESS"}}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task: status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSunoSubmitted(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)
	song := repo.add(&model.Song{UserID: 1, Status: model.SongStatusCreate, SpecificTitle: "Pending"})

	body := fmt.Sprintf(`{"song_id": %d, "task_id": "ext-task-9"}`, song.ID)
	resp := postJSON(t, app, "/api/v1/webhooks/suno-submitted", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, _ := repo.GetByID(context.Background(), song.ID)
	if updated.Status != model.SongStatusSubmitted || updated.SunoTaskID == nil || *updated.SunoTaskID != "ext-task-9" {
		t.Errorf("song after report = %+v", updated)
	}
}

func TestSunoSubmittedValidation(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)

	resp := postJSON(t, app, "/api/v1/webhooks/suno-submitted", `{"task_id": "t"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing song_id: status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, app, "/api/v1/webhooks/suno-submitted", `{"song_id": 42, "task_id": "t"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown song: status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSunoSubmittedTerminalSong(t *testing.T) {
	repo := newWebhookSongRepo()
	app := newWebhookApp(repo)
	song := repo.add(&model.Song{UserID: 1, Status: model.SongStatusCompleted, DownloadURL: "http://cdn/a.mp3"})

	body := fmt.Sprintf(`{"song_id": %d, "task_id": "late-task"}`, song.ID)
	resp := postJSON(t, app, "/api/v1/webhooks/suno-submitted", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	updated, _ := repo.GetByID(context.Background(), song.ID)
	if updated.Status != model.SongStatusCompleted || updated.SunoTaskID != nil {
		t.Errorf("terminal song must be untouched, got %+v", updated)
	}
}
