package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/middleware"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/store"
	"github.com/aiamusic/api/pkg/response"
)

// PlaylistHandler handles the playlist endpoints.
type PlaylistHandler struct {
	playlists *store.PlaylistStore
	songs     *store.SongStore
	validator *validator.Validate
}

func NewPlaylistHandler(playlists *store.PlaylistStore, songs *store.SongStore, v *validator.Validate) *PlaylistHandler {
	return &PlaylistHandler{
		playlists: playlists,
		songs:     songs,
		validator: v,
	}
}

// visible reports whether the playlist may be read by the user.
func visible(p *model.Playlist, userID uint) bool {
	return p.IsPublic || p.CreatedBy == userID
}

// List handles GET /api/v1/playlists
func (h *PlaylistHandler) List(c *fiber.Ctx) error {
	playlists, err := h.playlists.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"playlists": playlists})
}

// Create handles POST /api/v1/playlists
func (h *PlaylistHandler) Create(c *fiber.Ctx) error {
	var req model.CreatePlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	playlist := &model.Playlist{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   middleware.GetUserID(c),
		IsPublic:    true,
	}
	if req.IsPublic != nil {
		playlist.IsPublic = *req.IsPublic
	}

	if err := h.playlists.Create(c.Context(), playlist); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Created(c, playlist)
}

// Get handles GET /api/v1/playlists/:id
func (h *PlaylistHandler) Get(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid playlist id", nil)
	}

	playlist, err := h.playlists.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if !visible(playlist, middleware.GetUserID(c)) {
		return response.Forbidden(c, "This playlist is private")
	}
	return response.OK(c, playlist)
}

// Update handles PUT /api/v1/playlists/:id
func (h *PlaylistHandler) Update(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid playlist id", nil)
	}

	var req model.UpdatePlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	playlist, err := h.playlists.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if playlist.CreatedBy != middleware.GetUserID(c) {
		return response.Forbidden(c, "Only the creator can modify a playlist")
	}

	if req.Name != nil {
		playlist.Name = *req.Name
	}
	if req.Description != nil {
		playlist.Description = *req.Description
	}
	if req.IsPublic != nil {
		playlist.IsPublic = *req.IsPublic
	}

	if err := h.playlists.Save(c.Context(), playlist); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, playlist)
}

// Delete handles DELETE /api/v1/playlists/:id
func (h *PlaylistHandler) Delete(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return response.ValidationError(c, "Invalid playlist id", nil)
	}

	playlist, err := h.playlists.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if playlist.CreatedBy != middleware.GetUserID(c) {
		return response.Forbidden(c, "Only the creator can delete a playlist")
	}

	if err := h.playlists.Delete(c.Context(), id); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"message": "Playlist deleted"})
}

// AddSong handles POST /api/v1/playlists/:id/songs/:songId
func (h *PlaylistHandler) AddSong(c *fiber.Ctx) error {
	playlist, song, ok := h.resolvePair(c)
	if !ok {
		return nil
	}

	if err := h.playlists.AddSong(c.Context(), playlist, song); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"message": "Song added to playlist"})
}

// RemoveSong handles DELETE /api/v1/playlists/:id/songs/:songId
func (h *PlaylistHandler) RemoveSong(c *fiber.Ctx) error {
	playlist, song, ok := h.resolvePair(c)
	if !ok {
		return nil
	}

	if err := h.playlists.RemoveSong(c.Context(), playlist, song); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"message": "Song removed from playlist"})
}

// resolvePair loads the playlist and song for the membership endpoints,
// enforcing that the caller owns the playlist. On failure the response
// has already been written and ok is false.
func (h *PlaylistHandler) resolvePair(c *fiber.Ctx) (*model.Playlist, *model.Song, bool) {
	playlistID, ok := parseID(c, "id")
	if !ok {
		_ = response.ValidationError(c, "Invalid playlist id", nil)
		return nil, nil, false
	}
	songID, ok := parseID(c, "songId")
	if !ok {
		_ = response.ValidationError(c, "Invalid song id", nil)
		return nil, nil, false
	}

	playlist, err := h.playlists.GetByID(c.Context(), playlistID)
	if err != nil {
		_ = serviceError(c, err)
		return nil, nil, false
	}
	if playlist.CreatedBy != middleware.GetUserID(c) {
		_ = response.Forbidden(c, "Only the creator can modify a playlist")
		return nil, nil, false
	}

	song, err := h.songs.GetByID(c.Context(), songID)
	if err != nil {
		_ = serviceError(c, err)
		return nil, nil, false
	}

	return playlist, song, true
}
