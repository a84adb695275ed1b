// Package tts composes the normalizer, phonemizer, vocabulary, voice store,
// inference engine and cache into the text-to-waveform pipeline.
package tts

import (
	"context"
	"sync"
	"time"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts/cache"
	"github.com/book-expert/kokoro-service/internal/tts/text"
	"github.com/book-expert/kokoro-service/internal/tts/vocab"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/book-expert/logger"
)

// Accepted speed range, inclusive, and the default.
const (
	MinSpeed     float32 = 0.5
	MaxSpeed     float32 = 2.0
	DefaultSpeed float32 = 1.0
)

const errSpeedRange = "Speed must be between 0.5 and 2.0"

// Synthesizer runs the synthesis pipeline. The model lock guards the voice
// store and inference engine as one resource; the cache has its own lock and
// is never held across phonemization or inference, so concurrent misses on
// one key may both infer and the last insert wins.
type Synthesizer struct {
	normalizer *text.Normalizer
	codec      *vocab.Codec
	phonemizer core.Phonemizer
	engine     core.InferenceEngine
	store      *voices.Store
	cache      *cache.Cache
	log        *logger.Logger

	modelMu sync.Mutex
}

// New wires a synthesizer from its collaborators.
func New(
	phonemizer core.Phonemizer,
	engine core.InferenceEngine,
	store *voices.Store,
	resultCache *cache.Cache,
	log *logger.Logger,
) *Synthesizer {
	return &Synthesizer{
		normalizer: text.NewNormalizer(),
		codec:      vocab.New(),
		phonemizer: phonemizer,
		engine:     engine,
		store:      store,
		cache:      resultCache,
		log:        log,
	}
}

// ValidateSpeed rejects speeds outside [MinSpeed, MaxSpeed], including NaN.
func ValidateSpeed(speed float32) error {
	if !(speed >= MinSpeed && speed <= MaxSpeed) {
		return core.Errorf(core.KindValidation, errSpeedRange)
	}

	return nil
}

// Synthesize parses the voice identifier and runs SynthesizeVoice.
func (s *Synthesizer) Synthesize(ctx context.Context, input, voiceID string, speed float32) ([]float32, error) {
	voice, err := voices.Parse(voiceID)
	if err != nil {
		return nil, err
	}

	return s.SynthesizeVoice(ctx, input, voice, speed)
}

// SynthesizeVoice turns input into a 24 kHz waveform spoken by voice.
func (s *Synthesizer) SynthesizeVoice(
	ctx context.Context,
	input string,
	voice voices.Voice,
	speed float32,
) ([]float32, error) {
	err := ValidateSpeed(speed)
	if err != nil {
		return nil, err
	}

	if !voice.Valid() {
		return nil, core.Errorf(core.KindValidation, "Unsupported voice: %s", voice)
	}

	normalized := s.normalizer.Normalize(input)
	key := cache.Key(normalized, voice.FileName(), speed)

	waveform, hit := s.cache.Get(key)
	if hit {
		s.logInfo("Cache hit for voice %s (%d samples)", voice, len(waveform))

		return waveform, nil
	}

	started := time.Now()

	phonemes, err := s.phonemizer.Phonemize(ctx, normalized, voice.LanguageCode())
	if err != nil {
		return nil, core.NewError(core.KindPhoneme, err)
	}

	tokens := vocab.Pad(s.codec.Tokenize(phonemes))

	waveform, err = s.infer(voice, tokens, speed)
	if err != nil {
		return nil, err
	}

	s.cache.Put(key, waveform)
	s.logInfo("Synthesized %d tokens with voice %s at speed %v into %d samples in %s",
		len(tokens), voice, speed, len(waveform), time.Since(started))

	return waveform, nil
}

// infer resolves the style vector and runs the engine under one acquisition
// of the model lock. Engine panics are reported as inference errors.
func (s *Synthesizer) infer(voice voices.Voice, tokens []int64, speed float32) (waveform []float32, err error) {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	embedding, err := s.store.GetOrLoad(voice)
	if err != nil {
		if !core.IsKind(err, core.KindVoiceData) {
			err = core.NewError(core.KindVoiceData, err)
		}

		return nil, err
	}

	style := voices.StyleVector(embedding)

	defer func() {
		recovered := recover()
		if recovered != nil {
			waveform = nil
			err = core.Errorf(core.KindInference, "engine panicked: %v", recovered)
		}
	}()

	waveform, err = s.engine.Infer(tokens, style, speed)
	if err != nil {
		return nil, core.NewError(core.KindInference, err)
	}

	if len(waveform) == 0 {
		return nil, core.Errorf(core.KindInference, "engine returned an empty waveform")
	}

	return waveform, nil
}

// AvailableVoices lists the voices whose embeddings are loaded.
func (s *Synthesizer) AvailableVoices() []voices.Voice {
	return s.store.Available()
}

// IsVoiceLoaded reports whether voice's embedding is in memory.
func (s *Synthesizer) IsVoiceLoaded(voice voices.Voice) bool {
	return s.store.IsLoaded(voice)
}

// CacheStats returns the synthesis cache counters.
func (s *Synthesizer) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Synthesizer) logInfo(format string, args ...any) {
	if s.log != nil {
		s.log.Info(format, args...)
	}
}
