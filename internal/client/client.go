// Package client talks to the kokoro-service HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiSynthesize = "/api/tts"
	apiHealth     = "/health"
	apiVoices     = "/api/voices"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "american_female_bella"

var (
	// ErrTextEmpty is returned for requests without text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio is returned when the service answers with no bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrUnexpectedContentType is returned for non-WAV success responses.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrServiceStatus is returned for non-OK responses.
	ErrServiceStatus = errors.New("tts service returned an error")
)

// HTTPClient is a client for the speech synthesis HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// Request is the JSON body of a synthesis request. A nil Speed lets the
// service apply its default.
type Request struct {
	Text  string   `json:"text"`
	Voice string   `json:"voice"`
	Speed *float32 `json:"speed,omitempty"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// VoiceInfo describes one catalog voice as reported by the service.
type VoiceInfo struct {
	ID       string `json:"id"`
	Dialect  string `json:"dialect"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
	Loaded   bool   `json:"loaded"`
}

// NewHTTPClient creates a client for the service at baseURL
// (e.g. "http://localhost:3002"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateSpeech requests synthesis of req and returns the WAV bytes.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.Voice == "" {
		req.Voice = DefaultVoice
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiSynthesize, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to tts service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedContentType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck returns nil when the service reports healthy.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check status %s", ErrServiceStatus, resp.Status)
	}

	return nil
}

// Voices lists the service's voice catalog.
func (c *HTTPClient) Voices(ctx context.Context) ([]VoiceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read voices response: %w", err)
	}

	var voiceList []VoiceInfo

	err = parseJSON(body, &voiceList)
	if err != nil {
		return nil, err
	}

	return voiceList, nil
}

// parseErrorResponse decodes the service's JSON error, falling back to the
// raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error != "" {
		return fmt.Errorf("%w (%s): %s", ErrServiceStatus, resp.Status, errorResp.Error)
	}

	return fmt.Errorf("%w (%s): %s", ErrServiceStatus, resp.Status, strings.TrimSpace(string(body)))
}

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}
