package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/pkg/response"
)

// WebhookHandler receives unauthenticated provider callbacks. Delivery
// is at-least-once: the reconciliation engine makes repeats harmless,
// so the handler acknowledges everything it can resolve.
type WebhookHandler struct {
	reconcile *service.ReconcileService
	songs     service.SongRepository
}

func NewWebhookHandler(reconcile *service.ReconcileService, songs service.SongRepository) *WebhookHandler {
	return &WebhookHandler{
		reconcile: reconcile,
		songs:     songs,
	}
}

// SunoCallback handles POST /api/v1/webhooks/suno-callback. A payload
// with no extractable task id is a 400; a task no song was submitted
// under is a 404; everything else is acknowledged with 200 regardless
// of the reconciliation verdict.
func (h *WebhookHandler) SunoCallback(c *fiber.Ctx) error {
	var payload client.Payload
	if err := c.BodyParser(&payload); err != nil {
		return response.ValidationError(c, "Invalid JSON payload", nil)
	}

	taskID, ok := client.ExtractTaskID(payload)
	if !ok {
		log.Printf("[Webhook] callback without task id: %v", payload)
		return response.ValidationError(c, "No task ID in callback payload", nil)
	}

	outcome, err := h.reconcile.Reconcile(c.Context(), taskID, payload)
	if err != nil {
		if err == service.ErrUnknownTask {
			log.Printf("[Webhook] callback for unknown task %s", taskID)
			return response.NotFound(c, "No song found for this task")
		}
		log.Printf("[Webhook] reconciliation failed for task %s: %v", taskID, err)
		return response.ServiceError(c, "Failed to process callback")
	}

	return response.OK(c, fiber.Map{
		"message": "Callback processed",
		"status":  outcome.Class.String(),
		"songs":   len(outcome.Songs),
	})
}

// sunoSubmittedRequest reports an externally performed submission.
type sunoSubmittedRequest struct {
	SongID uint   `json:"song_id"`
	TaskID string `json:"task_id"`
}

// SunoSubmitted handles POST /api/v1/webhooks/suno-submitted — an
// external submitter reports the task id it obtained for a song.
func (h *WebhookHandler) SunoSubmitted(c *fiber.Ctx) error {
	var req sunoSubmittedRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid JSON payload", nil)
	}
	if req.SongID == 0 || req.TaskID == "" {
		return response.ValidationError(c, "song_id and task_id are required", nil)
	}

	song, err := h.songs.GetByID(c.Context(), req.SongID)
	if err != nil {
		if service.IsNotFound(err) {
			return response.NotFound(c, "Song not found")
		}
		return response.ServiceError(c, err.Error())
	}
	if song.Status.IsTerminal() {
		return response.OK(c, fiber.Map{"message": "Song already finalized", "song": song})
	}

	if err := h.songs.MarkSubmitted(c.Context(), song.ID, req.TaskID); err != nil {
		return response.ServiceError(c, err.Error())
	}
	song.SunoTaskID = &req.TaskID
	song.Status = model.SongStatusSubmitted

	return response.OK(c, fiber.Map{"message": "Song marked submitted", "song": song})
}
