package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestError_Messages(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	tests := []struct {
		kind     core.Kind
		expected string
	}{
		{core.KindModelLoad, "Failed to load model: boom"},
		{core.KindPhoneme, "Failed to generate phonemes: boom"},
		{core.KindTokenization, "Failed to tokenize text: boom"},
		{core.KindInference, "Inference error: boom"},
		{core.KindVoiceData, "Failed to load voice data: boom"},
		{core.KindValidation, "boom"},
	}

	for _, testCase := range tests {
		t.Run(testCase.kind.String(), func(t *testing.T) {
			t.Parallel()

			err := core.NewError(testCase.kind, cause)
			assert.Equal(t, testCase.expected, err.Error())
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestIsKind_WrappedChain(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("request failed: %w", core.Errorf(core.KindVoiceData, "missing %s", "af_sky.bin"))

	assert.True(t, core.IsKind(err, core.KindVoiceData))
	assert.False(t, core.IsKind(err, core.KindInference))
	assert.False(t, core.IsKind(errors.New("plain"), core.KindVoiceData))
}
