package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the synthesis pipeline.
type Kind int

// Failure kinds reported by the synthesis pipeline.
const (
	KindModelLoad Kind = iota + 1
	KindPhoneme
	KindTokenization
	KindInference
	KindVoiceData
	KindValidation
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindModelLoad:
		return "model_load"
	case KindPhoneme:
		return "phoneme"
	case KindTokenization:
		return "tokenization"
	case KindInference:
		return "inference"
	case KindVoiceData:
		return "voice_data"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed pipeline failure carrying a human-readable cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindModelLoad:
		return fmt.Sprintf("Failed to load model: %v", e.Err)
	case KindPhoneme:
		return fmt.Sprintf("Failed to generate phonemes: %v", e.Err)
	case KindTokenization:
		return fmt.Sprintf("Failed to tokenize text: %v", e.Err)
	case KindInference:
		return fmt.Sprintf("Inference error: %v", e.Err)
	case KindVoiceData:
		return fmt.Sprintf("Failed to load voice data: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps cause with the given kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Errorf builds a typed error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain is a pipeline error of kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}

	return typed.Kind == kind
}
