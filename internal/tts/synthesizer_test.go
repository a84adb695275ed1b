package tts_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts"
	"github.com/book-expert/kokoro-service/internal/tts/cache"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMockPhonemize = errors.New("mock phonemize error")
	errMockInfer     = errors.New("mock infer error")
)

// mockPhonemizer returns a fixed phoneme string and records its calls.
type mockPhonemizer struct {
	mu        sync.Mutex
	phonemes  string
	fail      bool
	calls     int
	languages []string
	texts     []string
}

func (m *mockPhonemizer) Phonemize(_ context.Context, text, language string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.texts = append(m.texts, text)
	m.languages = append(m.languages, language)

	if m.fail {
		return "", errMockPhonemize
	}

	return m.phonemes, nil
}

func (m *mockPhonemizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// mockEngine returns one sample per token and records its inputs.
type mockEngine struct {
	mu         sync.Mutex
	fail       bool
	panics     bool
	empty      bool
	calls      int
	lastTokens []int64
	lastStyle  []float32
	lastSpeed  float32
}

func (m *mockEngine) Infer(tokens []int64, style []float32, speed float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastTokens = tokens
	m.lastStyle = style
	m.lastSpeed = speed

	if m.panics {
		panic("onnx exploded")
	}

	if m.fail {
		return nil, errMockInfer
	}

	if m.empty {
		return nil, nil
	}

	waveform := make([]float32, len(tokens))
	for index := range waveform {
		waveform[index] = speed / 4
	}

	return waveform, nil
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

// writeVoiceFiles stores a column-constant embedding for each voice.
func writeVoiceFiles(t *testing.T, assetsDir string, voiceList ...voices.Voice) {
	t.Helper()

	values := make([]float32, voices.EmbeddingLen)
	for index := range values {
		values[index] = float32(index % voices.StyleDim)
	}

	var buffer bytes.Buffer

	require.NoError(t, binary.Write(&buffer, binary.LittleEndian, values))

	for _, voice := range voiceList {
		path, _ := voices.Resolve(assetsDir, voice)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o600))
	}
}

type testHarness struct {
	synthesizer *tts.Synthesizer
	phonemizer  *mockPhonemizer
	engine      *mockEngine
	cache       *cache.Cache
	clock       *fakeClock
}

func setupTest(t *testing.T) *testHarness {
	t.Helper()

	assetsDir := t.TempDir()
	writeVoiceFiles(t, assetsDir, voices.AmericanFemaleBella, voices.BritishMaleGeorge)

	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}

	resultCache, err := cache.New(cache.DefaultCapacity, cache.DefaultTTL, cache.WithClock(clock.Now))
	require.NoError(t, err)

	phonemizer := &mockPhonemizer{phonemes: "həlˈoʊ"}
	engine := &mockEngine{}

	return &testHarness{
		synthesizer: tts.New(phonemizer, engine, voices.NewStore(assetsDir), resultCache, nil),
		phonemizer:  phonemizer,
		engine:      engine,
		cache:       resultCache,
		clock:       clock,
	}
}

func TestSynthesize_Pipeline(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)

	waveform, err := harness.synthesizer.Synthesize(
		context.Background(), "  Dr. Smith, at 5-12 Main St.  ", "british_male_george", 1.5)
	require.NoError(t, err)

	assert.Equal(t, []string{"Doctor Smith, at 5 to 12 Main Street"}, harness.phonemizer.texts)
	assert.Equal(t, []string{"en-gb"}, harness.phonemizer.languages)
	assert.Equal(t, []int64{0, 50, 83, 54, 156, 57, 135, 0}, harness.engine.lastTokens)
	assert.InDelta(t, 1.5, harness.engine.lastSpeed, 0)
	require.Len(t, harness.engine.lastStyle, 256)
	assert.InDelta(t, 42.0, harness.engine.lastStyle[42], 0)
	assert.Len(t, waveform, 8)
}

func TestSynthesize_SpeedValidation(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)
	ctx := context.Background()

	for _, speed := range []float32{0.4, 2.1, 0, -1} {
		_, err := harness.synthesizer.Synthesize(ctx, "Hello", "american_female_bella", speed)
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.KindValidation))
		assert.Equal(t, "Speed must be between 0.5 and 2.0", err.Error())
	}

	assert.Zero(t, harness.phonemizer.callCount(), "validation must precede phonemization")
	assert.Zero(t, harness.cache.Stats().Size)

	for _, speed := range []float32{0.5, 2.0} {
		_, err := harness.synthesizer.Synthesize(ctx, "Hello", "american_female_bella", speed)
		require.NoError(t, err)
	}
}

func TestSynthesize_UnknownVoice(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)

	_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", "american_female_alexa", 1)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = harness.synthesizer.SynthesizeVoice(context.Background(), "Hello", voices.Voice(0), 1)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.Zero(t, harness.phonemizer.callCount())
}

func TestSynthesize_CacheHit(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)
	ctx := context.Background()

	first, err := harness.synthesizer.Synthesize(ctx, "Hello  world", "american_female_bella", 1)
	require.NoError(t, err)

	second, err := harness.synthesizer.Synthesize(ctx, " Hello world ", "american_female_bella", 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, harness.phonemizer.callCount())
	assert.Equal(t, 1, harness.engine.callCount())
	assert.Equal(t, uint64(1), harness.synthesizer.CacheStats().Hits)

	_, err = harness.synthesizer.Synthesize(ctx, "Hello world", "british_male_george", 1)
	require.NoError(t, err)

	_, err = harness.synthesizer.Synthesize(ctx, "Hello world", "american_female_bella", 1.25)
	require.NoError(t, err)

	assert.Equal(t, 3, harness.engine.callCount(), "voice and speed are part of the key")
}

func TestSynthesize_ExpiredEntryIsRegenerated(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)
	ctx := context.Background()

	_, err := harness.synthesizer.Synthesize(ctx, "Hello", "american_female_bella", 1)
	require.NoError(t, err)

	harness.clock.Advance(cache.DefaultTTL)

	_, err = harness.synthesizer.Synthesize(ctx, "Hello", "american_female_bella", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, harness.engine.callCount())

	harness.clock.Advance(cache.DefaultTTL / 2)

	_, err = harness.synthesizer.Synthesize(ctx, "Hello", "american_female_bella", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, harness.engine.callCount(), "regenerated entry has a fresh timestamp")
}

func TestSynthesize_PhonemeError(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)
	harness.phonemizer.fail = true

	_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", "american_female_bella", 1)
	require.ErrorIs(t, err, errMockPhonemize)
	assert.True(t, core.IsKind(err, core.KindPhoneme))
	assert.Zero(t, harness.engine.callCount())
	assert.Zero(t, harness.cache.Stats().Size)
}

func TestSynthesize_InferenceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		configure func(engine *mockEngine)
	}{
		{name: "engine error", configure: func(engine *mockEngine) { engine.fail = true }},
		{name: "engine panic", configure: func(engine *mockEngine) { engine.panics = true }},
		{name: "empty output", configure: func(engine *mockEngine) { engine.empty = true }},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			harness := setupTest(t)
			testCase.configure(harness.engine)

			_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", "american_female_bella", 1)
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindInference))
			assert.Zero(t, harness.cache.Stats().Size, "failed inference must not be cached")

			// The model lock was released: a healthy engine succeeds afterwards.
			harness.engine.mu.Lock()
			harness.engine.fail, harness.engine.panics, harness.engine.empty = false, false, false
			harness.engine.mu.Unlock()

			_, err = harness.synthesizer.Synthesize(context.Background(), "Hello", "american_female_bella", 1)
			require.NoError(t, err)
		})
	}
}

func TestSynthesize_MissingVoiceData(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)

	_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", "american_male_puck", 1)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindVoiceData))
	assert.Zero(t, harness.engine.callCount())
	assert.Zero(t, harness.cache.Stats().Size)
}

func TestSynthesize_LoadsVoicesLazily(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)
	assert.Empty(t, harness.synthesizer.AvailableVoices())

	_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", "british_male_george", 1)
	require.NoError(t, err)

	assert.Equal(t, []voices.Voice{voices.BritishMaleGeorge}, harness.synthesizer.AvailableVoices())
	assert.True(t, harness.synthesizer.IsVoiceLoaded(voices.BritishMaleGeorge))
}

func TestSynthesize_Concurrent(t *testing.T) {
	t.Parallel()

	harness := setupTest(t)

	var waitGroup sync.WaitGroup

	errs := make(chan error, 32)

	for index := range 32 {
		waitGroup.Add(1)

		go func(id int) {
			defer waitGroup.Done()

			voice := "american_female_bella"
			if id%2 == 0 {
				voice = "british_male_george"
			}

			_, err := harness.synthesizer.Synthesize(context.Background(), "Hello", voice, 1)
			errs <- err
		}(index)
	}

	waitGroup.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 2, harness.cache.Stats().Size)
	assert.GreaterOrEqual(t, harness.engine.callCount(), 2)
}

func TestValidateSpeed(t *testing.T) {
	t.Parallel()

	require.NoError(t, tts.ValidateSpeed(tts.DefaultSpeed))
	require.NoError(t, tts.ValidateSpeed(tts.MinSpeed))
	require.NoError(t, tts.ValidateSpeed(tts.MaxSpeed))
	require.Error(t, tts.ValidateSpeed(0.49))
	require.Error(t, tts.ValidateSpeed(2.01))
}
