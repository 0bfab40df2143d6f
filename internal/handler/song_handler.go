package handler

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/middleware"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/pkg/response"
)

// maxUploadBytes bounds direct MP3 uploads.
const maxUploadBytes = 100 * 1024 * 1024

// SongHandler handles the song lifecycle endpoints.
type SongHandler struct {
	songs     *service.SongService
	reconcile *service.ReconcileService
	archive   *service.ArchiveService
	validator *validator.Validate
}

func NewSongHandler(songs *service.SongService, reconcile *service.ReconcileService, archive *service.ArchiveService, v *validator.Validate) *SongHandler {
	return &SongHandler{
		songs:     songs,
		reconcile: reconcile,
		archive:   archive,
		validator: v,
	}
}

// List handles GET /api/v1/songs
func (h *SongHandler) List(c *fiber.Ctx) error {
	q := model.SongListQuery{
		UserID:      middleware.GetUserID(c),
		AllUsers:    c.QueryBool("all_users"),
		Status:      c.Query("status"),
		VocalGender: c.Query("vocal_gender"),
		Search:      c.Query("search"),
	}
	if raw := c.Query("style_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			styleID := uint(id)
			q.StyleID = &styleID
		}
	}
	if raw := c.Query("playlist_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			playlistID := uint(id)
			q.PlaylistID = &playlistID
		}
	}

	songs, err := h.songs.List(c.Context(), q)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"songs": songs, "count": len(songs)})
}

// Create handles POST /api/v1/songs — persists the song and submits it
// for generation. A submission failure still returns the created song
// so it can be resubmitted.
func (h *SongHandler) Create(c *fiber.Ctx) error {
	var req model.CreateSongRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	song, err := h.songs.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		if pe, ok := client.AsProviderError(err); ok && song != nil {
			// Song persisted but submission failed: surface the
			// provider message with the song attached so it can be
			// resubmitted.
			status := fiber.StatusBadGateway
			code := response.CodeProviderError
			switch pe.Kind {
			case client.ErrKindQuota:
				status, code = fiber.StatusPaymentRequired, response.CodeQuotaExceeded
			case client.ErrKindRateLimit:
				status, code = fiber.StatusTooManyRequests, response.CodeRateLimited
			}
			return response.Error(c, status, code, pe.Message, fiber.Map{"song": song})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, song)
}

// Get handles GET /api/v1/songs/:id
func (h *SongHandler) Get(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	song, err := h.songs.Get(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, song)
}

// Update handles PUT /api/v1/songs/:id
func (h *SongHandler) Update(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	var req model.UpdateSongRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	song, err := h.songs.Update(c.Context(), middleware.GetUserID(c), id, &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, song)
}

// Delete handles DELETE /api/v1/songs/:id
func (h *SongHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	if err := h.songs.Delete(c.Context(), middleware.GetUserID(c), id); err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, fiber.Map{"message": "Song deleted"})
}

// Stats handles GET /api/v1/songs/stats
func (h *SongHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.songs.Stats(c.Context(), middleware.GetUserID(c), c.QueryBool("all_users"))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, stats)
}

// CheckStatus handles POST /api/v1/songs/:id/check-status — polls the
// provider and reconciles the result.
func (h *SongHandler) CheckStatus(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	result, err := h.reconcile.CheckSong(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, result)
}

// CheckSubmitted handles POST /api/v1/songs/check-submitted — bulk
// polls every submitted song of the caller.
func (h *SongHandler) CheckSubmitted(c *fiber.Ctx) error {
	result, err := h.reconcile.CheckAllSubmitted(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Archive handles POST /api/v1/songs/:id/archive
func (h *SongHandler) Archive(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	// Ownership check before touching storage.
	if _, err := h.songs.Get(c.Context(), middleware.GetUserID(c), id); err != nil {
		return serviceError(c, err)
	}

	song, archived, err := h.archive.Archive(c.Context(), id)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"song": song, "archived": archived})
}

// Download handles GET /api/v1/songs/:id/download — resolves a link to
// the song's audio, presigned when it lives in our own storage.
func (h *SongHandler) Download(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid song id", nil)
	}

	// Ownership check before touching storage.
	if _, err := h.songs.Get(c.Context(), middleware.GetUserID(c), id); err != nil {
		return serviceError(c, err)
	}

	url, err := h.archive.DownloadURL(c.Context(), id)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"url": url})
}

// ArchiveAll handles POST /api/v1/songs/archive-all
func (h *SongHandler) ArchiveAll(c *fiber.Ctx) error {
	result, err := h.archive.ArchiveAll(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// StorageStats handles GET /api/v1/songs/storage/stats
func (h *SongHandler) StorageStats(c *fiber.Ctx) error {
	stats, err := h.archive.Stats(c.Context())
	if err != nil {
		return response.StorageUnavailable(c, err.Error())
	}
	return response.OK(c, stats)
}

// Upload handles POST /api/v1/songs/upload — stores a user-provided
// MP3 directly; the song is born completed and archived.
func (h *SongHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "Missing file field", nil)
	}
	if fileHeader.Size > maxUploadBytes {
		return response.ValidationError(c, "File exceeds the 100MB upload limit", nil)
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".mp3") {
		return response.ValidationError(c, "Only MP3 uploads are supported", nil)
	}

	title := c.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer file.Close()

	song, err := h.songs.Upload(c.Context(), middleware.GetUserID(c), title, file, fileHeader.Size)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, song)
}
