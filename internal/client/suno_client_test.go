package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aiamusic/api/internal/config"
	"github.com/aiamusic/api/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*SunoClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewSunoClient(&config.SunoConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "V5",
	}, "http://localhost:8000/api/v1/webhooks/suno-callback")
	return client, srv
}

func TestSubmitCustomMode(t *testing.T) {
	var got generateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"data": map[string]interface{}{"taskId": "task-abc"},
		})
	})

	gender := model.VocalFemale
	song := &model.Song{
		ID:             1,
		SpecificTitle:  "My Song",
		SpecificLyrics: "verse one\nchorus",
		VocalGender:    &gender,
	}

	taskID, err := client.Submit(context.Background(), song, "dream pop")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if taskID != "task-abc" {
		t.Errorf("taskID = %q, want task-abc", taskID)
	}

	if !got.CustomMode {
		t.Error("expected custom mode for a song with lyrics")
	}
	if got.Prompt != "verse one\nchorus" {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if got.Title != "My Song" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Style != "dream pop" {
		t.Errorf("style = %q", got.Style)
	}
	if got.VocalGender != "female" {
		t.Errorf("vocalGender = %q", got.VocalGender)
	}
	if got.Model != "V5" || got.Instrumental || got.StyleWeight != 1 {
		t.Errorf("unexpected fixed fields: %+v", got)
	}
	if got.CallBackURL == "" {
		t.Error("expected callback URL to be set")
	}
}

func TestSubmitSimpleModeFallbacks(t *testing.T) {
	var got generateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"taskId": "t"},
		})
	})

	// Blank lyrics: simple mode, prompt falls back to the title.
	song := &model.Song{SpecificTitle: "Only Title", SpecificLyrics: "   "}
	if _, err := client.Submit(context.Background(), song, ""); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if got.CustomMode {
		t.Error("expected simple mode for blank lyrics")
	}
	if got.Prompt != "Only Title" {
		t.Errorf("prompt = %q, want title fallback", got.Prompt)
	}
	if got.Style != model.DefaultStylePrompt {
		t.Errorf("style = %q, want default", got.Style)
	}

	// Nothing at all: the fixed last-resort prompt.
	if _, err := client.Submit(context.Background(), &model.Song{}, ""); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if got.Prompt != "Create a song" {
		t.Errorf("prompt = %q, want last-resort fallback", got.Prompt)
	}
}

func TestSubmitNoTaskID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": map[string]interface{}{}})
	})

	_, err := client.Submit(context.Background(), &model.Song{SpecificTitle: "x"}, "")
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if pe.Kind != ErrKindNoTaskID {
		t.Errorf("kind = %v, want %v", pe.Kind, ErrKindNoTaskID)
	}
}

func TestSubmitHTTPErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   ProviderErrorKind
	}{
		{http.StatusUnauthorized, `{}`, ErrKindAuth},
		{http.StatusPaymentRequired, `{"msg":"Insufficient credits"}`, ErrKindQuota},
		{http.StatusForbidden, `{}`, ErrKindQuota},
		{http.StatusTooManyRequests, `{}`, ErrKindRateLimit},
		{http.StatusInternalServerError, `{}`, ErrKindUnavailable},
		{http.StatusBadGateway, `{}`, ErrKindUnavailable},
		{http.StatusTeapot, `{"msg":"odd"}`, ErrKindAPI},
	}

	for _, tt := range tests {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		})

		_, err := client.Submit(context.Background(), &model.Song{SpecificTitle: "x"}, "")
		pe, ok := AsProviderError(err)
		if !ok {
			t.Fatalf("status %d: expected provider error, got %v", tt.status, err)
		}
		if pe.Kind != tt.kind {
			t.Errorf("status %d: kind = %v, want %v", tt.status, pe.Kind, tt.kind)
		}
	}
}

func TestSubmitBodyLevelError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 429,
			"msg":  "Too many concurrent generations",
		})
	})

	_, err := client.Submit(context.Background(), &model.Song{SpecificTitle: "x"}, "")
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if pe.Kind != ErrKindAPI {
		t.Errorf("kind = %v, want %v", pe.Kind, ErrKindAPI)
	}
}

func TestSubmitNotConfigured(t *testing.T) {
	client := NewSunoClient(&config.SunoConfig{BaseURL: "http://example.invalid"}, "")
	if client.IsConfigured() {
		t.Fatal("client without API key must not be configured")
	}

	_, err := client.Submit(context.Background(), &model.Song{}, "")
	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ErrKindConfig {
		t.Errorf("expected not-configured provider error, got %v", err)
	}
}

func TestQueryReturnsRawPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/generate/record-info" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("taskId"); got != "task-abc" {
			t.Errorf("taskId = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"data": map[string]interface{}{
				"taskId": "task-abc",
				"status": "SUCCESS",
				"response": map[string]interface{}{
					"sunoData": []interface{}{
						map[string]interface{}{"audioUrl": "http://cdn/a.mp3"},
					},
				},
			},
		})
	})

	payload, err := client.Query(context.Background(), "task-abc")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}

	// The raw payload must run through the same normalizer as webhooks.
	ns := ParsePayload(payload)
	if ns.TaskID != "task-abc" || ns.Classify() != StatusSuccess || len(ns.Tracks) != 1 {
		t.Errorf("normalized poll result unexpected: %+v", ns)
	}
}

func TestConnectionError(t *testing.T) {
	client := NewSunoClient(&config.SunoConfig{
		APIKey:  "k",
		BaseURL: "http://127.0.0.1:1", // nothing listens here
	}, "")

	_, err := client.Query(context.Background(), "t")
	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if pe.Kind != ErrKindConnection && pe.Kind != ErrKindTimeout {
		t.Errorf("kind = %v, want connection or timeout", pe.Kind)
	}
}
