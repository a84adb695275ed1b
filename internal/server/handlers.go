package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts"
	"github.com/book-expert/kokoro-service/internal/tts/audio"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBytes = 1 << 20

// VoiceCatalog reports which voice embeddings are resident.
type VoiceCatalog interface {
	IsVoiceLoaded(voice voices.Voice) bool
}

// Handler serves the synthesis API.
type Handler struct {
	synthesizer  core.Synthesizer
	catalog      VoiceCatalog
	log          *logger.Logger
	defaultSpeed float32
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithDefaultSpeed sets the speed used when a request omits one. Zero keeps
// tts.DefaultSpeed.
func WithDefaultSpeed(speed float32) HandlerOption {
	return func(h *Handler) {
		if speed != 0 {
			h.defaultSpeed = speed
		}
	}
}

// NewHandler creates a handler around synthesizer.
func NewHandler(
	synthesizer core.Synthesizer,
	catalog VoiceCatalog,
	log *logger.Logger,
	opts ...HandlerOption,
) *Handler {
	handler := &Handler{
		synthesizer:  synthesizer,
		catalog:      catalog,
		log:          log,
		defaultSpeed: tts.DefaultSpeed,
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// SynthesizeRequest is the body of POST /api/tts.
type SynthesizeRequest struct {
	Text  string   `json:"text"`
	Voice string   `json:"voice"`
	Speed *float32 `json:"speed,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VoiceResponse describes one catalog voice.
type VoiceResponse struct {
	ID       string `json:"id"`
	Dialect  string `json:"dialect"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
	Loaded   bool   `json:"loaded"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Voices handles GET /api/voices.
func (h *Handler) Voices(w http.ResponseWriter, _ *http.Request) {
	catalog := voices.All()
	response := make([]VoiceResponse, 0, len(catalog))

	for _, voice := range catalog {
		response = append(response, VoiceResponse{
			ID:       voice.ID(),
			Dialect:  string(voice.Dialect()),
			Gender:   string(voice.Gender()),
			Language: voice.LanguageCode(),
			Loaded:   h.catalog.IsVoiceLoaded(voice),
		})
	}

	respondJSON(w, http.StatusOK, response)
}

// Synthesize handles POST /api/tts. The voice is checked before the speed,
// and both before any synthesis work.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))

	err := decoder.Decode(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))

		return
	}

	voice, err := voices.Parse(req.Voice)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	speed := h.defaultSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}

	err = tts.ValidateSpeed(speed)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())

		return
	}

	h.log.Info("Processing TTS request [%s]: voice=%s, speed=%v, chars=%d",
		middleware.GetReqID(r.Context()), voice, speed, len(req.Text))

	waveform, err := h.synthesizer.Synthesize(r.Context(), req.Text, voice.ID(), speed)
	if err != nil {
		if core.IsKind(err, core.KindValidation) {
			respondError(w, http.StatusBadRequest, err.Error())

			return
		}

		h.log.Error("TTS processing error: %v", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("TTS processing error: %v", err))

		return
	}

	wavData, err := audio.EncodeWAV(waveform)
	if err != nil {
		h.log.Error("Failed to encode WAV: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to convert audio data")

		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="tts.wav"`)
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(wavData)
	if err != nil {
		h.log.Warn("Failed to write audio response: %v", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: strings.TrimSpace(message)})
}
