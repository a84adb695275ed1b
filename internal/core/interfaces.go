// Package core defines the interfaces, events and error types shared by the
// speech synthesis service.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Phonemizer converts text into a phoneme string for the given language code
// (for example "en-us" or "en-gb").
type Phonemizer interface {
	Phonemize(ctx context.Context, text, language string) (string, error)
}

// InferenceEngine runs the neural voice model. Tokens must already be padded,
// style holds 256 values and speed is the playback rate multiplier.
type InferenceEngine interface {
	Infer(tokens []int64, style []float32, speed float32) ([]float32, error)
}

// Synthesizer is the end-to-end text to waveform pipeline consumed by the
// transports.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float32) ([]float32, error)
}
