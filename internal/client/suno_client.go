package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aiamusic/api/internal/config"
	"github.com/aiamusic/api/internal/model"
)

const (
	// Generation acceptance is expected to be fast; status lookups may
	// be slower.
	submitTimeout = 10 * time.Second
	queryTimeout  = 30 * time.Second
)

// GenerationProvider defines the interface for the music generation API.
type GenerationProvider interface {
	Submit(ctx context.Context, song *model.Song, stylePrompt string) (string, error)
	Query(ctx context.Context, taskID string) (Payload, error)
	IsConfigured() bool
}

// SunoClient implements GenerationProvider for the Suno API.
type SunoClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	callbackURL string
}

// generateRequest is the body for POST /api/v1/generate.
type generateRequest struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
	Prompt       string `json:"prompt"`
	Title        string `json:"title,omitempty"`
	Style        string `json:"style"`
	VocalGender  string `json:"vocalGender,omitempty"`
	StyleWeight  int    `json:"styleWeight"`
}

// NewSunoClient creates a new Suno API client.
func NewSunoClient(cfg *config.SunoConfig, callbackURL string) *SunoClient {
	return &SunoClient{
		httpClient:  &http.Client{},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		callbackURL: callbackURL,
	}
}

// IsConfigured returns true if the client has valid configuration.
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Submit sends a song to the generation API and returns the provider's
// task id. Custom mode (explicit lyrics + title) is used whenever the
// song carries non-blank lyrics; otherwise simple mode with a single
// prompt string. A submission without a correlatable task id is a hard
// failure, never a silent success.
func (c *SunoClient) Submit(ctx context.Context, song *model.Song, stylePrompt string) (string, error) {
	if !c.IsConfigured() {
		return "", newProviderError(ErrKindConfig,
			"Suno API key is not configured. Please contact the administrator to set up SUNO_API_KEY.")
	}

	customMode := strings.TrimSpace(song.SpecificLyrics) != ""

	req := generateRequest{
		CustomMode:   customMode,
		Instrumental: false,
		Model:        c.model,
		CallBackURL:  c.callbackURL,
		StyleWeight:  1,
	}

	if customMode {
		req.Prompt = song.SpecificLyrics
		req.Title = song.SpecificTitle
		if req.Title == "" {
			req.Title = "Untitled Song"
		}
	} else {
		req.Prompt = song.PromptToGenerate
		if req.Prompt == "" {
			req.Prompt = song.SpecificTitle
		}
		if req.Prompt == "" {
			req.Prompt = "Create a song"
		}
	}

	if song.VocalGender != nil {
		req.VocalGender = string(*song.VocalGender)
	}

	req.Style = stylePrompt
	if req.Style == "" {
		req.Style = model.DefaultStylePrompt
	}

	result, err := c.post(ctx, "/api/v1/generate", req, submitTimeout)
	if err != nil {
		return "", err
	}

	taskID, ok := ExtractTaskID(result)
	if !ok {
		log.Printf("[Suno API] no task id in submit response for song %d: %v", song.ID, result)
		return "", newProviderError(ErrKindNoTaskID,
			"Suno API did not return a task ID. The request may have failed. Please try again.")
	}

	log.Printf("[Suno API] stored task id %s for song %d", taskID, song.ID)
	return taskID, nil
}

// Query fetches the current state of a generation task. The raw payload
// is returned so that poll results run through the exact same
// normalization as webhook deliveries.
func (c *SunoClient) Query(ctx context.Context, taskID string) (Payload, error) {
	if !c.IsConfigured() {
		return nil, newProviderError(ErrKindConfig,
			"Suno API key is not configured. Please contact the administrator to set up SUNO_API_KEY.")
	}

	endpoint := "/api/v1/generate/record-info?taskId=" + url.QueryEscape(taskID)
	return c.get(ctx, endpoint, queryTimeout)
}

// post sends a POST request with JSON body.
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}, timeout time.Duration) (Payload, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// get sends a GET request and parses the JSON response.
func (c *SunoClient) get(ctx context.Context, endpoint string, timeout time.Duration) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req)
}

// doRequest executes an HTTP request, normalizing transport, HTTP and
// body-level errors into the provider taxonomy.
func (c *SunoClient) doRequest(req *http.Request) (Payload, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Suno API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Suno API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return nil, normalizeTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, normalizeTransportError(err)
	}

	log.Printf("[Suno API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if err := normalizeHTTPError(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var result Payload
	if err := json.Unmarshal(respBody, &result); err != nil {
		log.Printf("[Suno API] ✗ unmarshal error: %v (body: %s)", err, string(respBody))
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if err := bodyLevelError(result); err != nil {
		return nil, err
	}

	return result, nil
}

// normalizeHTTPError maps HTTP status codes onto the provider taxonomy
// with user-displayable messages.
func normalizeHTTPError(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return newProviderError(ErrKindAuth,
			"Suno API authentication failed. The API key may be invalid or expired. Please contact the administrator.")
	case status == http.StatusPaymentRequired || status == http.StatusForbidden:
		msg := "Suno API access denied. You may be out of credits or your subscription has expired."
		if detail := bodyMessage(body); detail != "" {
			msg = msg + " " + detail
		}
		return newProviderError(ErrKindQuota, msg)
	case status == http.StatusTooManyRequests:
		return newProviderError(ErrKindRateLimit,
			"Suno API rate limit exceeded. Please wait a few minutes and try again.")
	case status >= http.StatusInternalServerError:
		return newProviderError(ErrKindUnavailable,
			"Suno API is currently unavailable. The service may be down. Please try again later.")
	case status < 200 || status >= 300:
		msg := bodyMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("Suno API returned status %d.", status)
		}
		return newProviderError(ErrKindAPI, msg)
	}
	return nil
}

// bodyLevelError rejects responses that report an error inside a 2xx
// body (code field, error field or status:"error").
func bodyLevelError(result Payload) error {
	if code, ok := result["code"].(float64); ok && int(code) >= 400 {
		msg, _ := anyKeyString(result, messageKeys)
		if msg == "" {
			msg = "Unknown error from Suno API"
		}
		return newProviderError(ErrKindAPI, "Suno API error: "+msg)
	}
	if _, hasErr := result["error"]; hasErr || result["status"] == "error" {
		msg, _ := anyKeyString(result, messageKeys)
		if msg == "" {
			msg = "Unknown error from Suno API"
		}
		return newProviderError(ErrKindAPI, "Suno API error: "+msg)
	}
	return nil
}

// normalizeTransportError distinguishes timeouts from other network
// failures.
func normalizeTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newProviderError(ErrKindTimeout,
			"Suno API request timed out. The service may be slow or unavailable. Please try again.")
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return newProviderError(ErrKindTimeout,
			"Suno API request timed out. The service may be slow or unavailable. Please try again.")
	}
	return newProviderError(ErrKindConnection,
		"Cannot connect to Suno API. Please check your internet connection or try again later.")
}

func bodyMessage(body []byte) string {
	var parsed Payload
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	msg, _ := anyKeyString(parsed, messageKeys)
	return msg
}
