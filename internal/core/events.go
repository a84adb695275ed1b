package core

import "time"

// EventHeader carries the identifiers shared by every bus event.
type EventHeader struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
}

// TextProcessedEvent asks the worker to voice the text stored under TextKey.
type TextProcessedEvent struct {
	Header     EventHeader `json:"header"`
	TextKey    string      `json:"text_key"`
	Voice      string      `json:"voice"`
	Speed      float32     `json:"speed,omitempty"`
	PageNumber int         `json:"page_number"`
	TotalPages int         `json:"total_pages"`
}

// AudioChunkCreatedEvent is the reply announcing the uploaded WAV object.
type AudioChunkCreatedEvent struct {
	Header     EventHeader `json:"header"`
	AudioKey   string      `json:"audio_key"`
	PageNumber int         `json:"page_number"`
	TotalPages int         `json:"total_pages"`
	Samples    int         `json:"samples"`
}
