package voices_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVoiceFile stores values as a little-endian voice file for voice under assetsDir.
func writeVoiceFile(t *testing.T, assetsDir string, voice voices.Voice, values []float32) {
	t.Helper()

	var buffer bytes.Buffer

	err := binary.Write(&buffer, binary.LittleEndian, values)
	require.NoError(t, err)

	path, _ := voices.Resolve(assetsDir, voice)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o600))
}

// columnEmbedding returns a full embedding whose column i holds the value i.
func columnEmbedding() []float32 {
	values := make([]float32, voices.EmbeddingLen)
	for index := range values {
		values[index] = float32(index % voices.StyleDim)
	}

	return values
}

func TestCatalog_Attributes(t *testing.T) {
	t.Parallel()

	all := voices.All()
	require.Len(t, all, 12)

	tests := []struct {
		voice    voices.Voice
		id       string
		fileName string
		language string
		dialect  voices.Dialect
		gender   voices.Gender
	}{
		{voices.AmericanFemaleBella, "american_female_bella", "af_bella.bin", "en-us", voices.DialectAmerican, voices.GenderFemale},
		{voices.AmericanMalePuck, "american_male_puck", "am_puck.bin", "en-us", voices.DialectAmerican, voices.GenderMale},
		{voices.BritishFemaleIsabella, "british_female_isabella", "bf_isabella.bin", "en-gb", voices.DialectBritish, voices.GenderFemale},
		{voices.BritishMaleLewis, "british_male_lewis", "bm_lewis.bin", "en-gb", voices.DialectBritish, voices.GenderMale},
	}

	for _, testCase := range tests {
		t.Run(testCase.id, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.id, testCase.voice.ID())
			assert.Equal(t, testCase.fileName, testCase.voice.FileName())
			assert.Equal(t, testCase.language, testCase.voice.LanguageCode())
			assert.Equal(t, testCase.dialect, testCase.voice.Dialect())
			assert.Equal(t, testCase.gender, testCase.voice.Gender())
		})
	}
}

func TestCatalog_GroupCounts(t *testing.T) {
	t.Parallel()

	counts := make(map[string]int)
	fileNames := make(map[string]struct{})

	for _, voice := range voices.All() {
		counts[string(voice.Dialect())+"_"+string(voice.Gender())]++
		fileNames[voice.FileName()] = struct{}{}
	}

	assert.Equal(t, map[string]int{
		"american_female": 3,
		"american_male":   3,
		"british_female":  3,
		"british_male":    3,
	}, counts)
	assert.Len(t, fileNames, 12)
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, voice := range voices.All() {
		parsed, err := voices.Parse(voice.ID())
		require.NoError(t, err)
		assert.Equal(t, voice, parsed)
	}

	_, err := voices.Parse("klingon_male_worf")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.Equal(t, "Unsupported voice: klingon_male_worf", err.Error())
}

func TestResolve(t *testing.T) {
	t.Parallel()

	path, language := voices.Resolve("/assets", voices.BritishMaleGeorge)
	assert.Equal(t, filepath.Join("/assets", "Kokoro", "bm_george.bin"), path)
	assert.Equal(t, "en-gb", language)
	assert.Equal(t, filepath.Join("/assets", "Kokoro", "model.onnx"), voices.ModelPath("/assets"))
}

func TestStore_LoadValidFile(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	writeVoiceFile(t, assetsDir, voices.AmericanFemaleSky, columnEmbedding())

	embedding, err := voices.NewStore(assetsDir).Load(voices.AmericanFemaleSky)
	require.NoError(t, err)
	require.Len(t, embedding, 510*1*256)
	assert.InDelta(t, 255.0, embedding[255], 0)
	assert.InDelta(t, 1.0, embedding[257], 0)
}

func TestStore_LoadWrongSize(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	writeVoiceFile(t, assetsDir, voices.AmericanFemaleSky, make([]float32, voices.EmbeddingLen-1))

	_, err := voices.NewStore(assetsDir).Load(voices.AmericanFemaleSky)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindVoiceData))
}

func TestStore_LoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := voices.NewStore(t.TempDir()).Load(voices.BritishFemaleEmma)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindVoiceData))
}

func TestStore_LoadUnknownVoice(t *testing.T) {
	t.Parallel()

	_, err := voices.NewStore(t.TempDir()).Load(voices.Voice(99))
	require.ErrorIs(t, err, voices.ErrUnknownVoice)
	assert.True(t, core.IsKind(err, core.KindVoiceData))
}

func TestStore_GetOrLoadCachesAndCopies(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	writeVoiceFile(t, assetsDir, voices.AmericanMaleMichael, columnEmbedding())

	store := voices.NewStore(assetsDir)
	assert.False(t, store.IsLoaded(voices.AmericanMaleMichael))

	first, err := store.GetOrLoad(voices.AmericanMaleMichael)
	require.NoError(t, err)

	// The file is no longer needed once cached.
	path, _ := voices.Resolve(assetsDir, voices.AmericanMaleMichael)
	require.NoError(t, os.Remove(path))

	first[0] = -1

	second, err := store.GetOrLoad(voices.AmericanMaleMichael)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, second[0], 0)
	assert.Equal(t, []voices.Voice{voices.AmericanMaleMichael}, store.Available())
}

func TestStore_PreloadAllPartialSuccess(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	writeVoiceFile(t, assetsDir, voices.AmericanFemaleBella, columnEmbedding())
	writeVoiceFile(t, assetsDir, voices.BritishMaleFable, columnEmbedding())

	store := voices.NewStore(assetsDir)

	err := store.PreloadAll()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindVoiceData))
	assert.Contains(t, err.Error(), "af_nicole.bin")
	assert.Equal(t, []voices.Voice{voices.AmericanFemaleBella, voices.BritishMaleFable}, store.Available())
}

func TestStore_PreloadAllSuccess(t *testing.T) {
	t.Parallel()

	assetsDir := t.TempDir()
	for _, voice := range voices.All() {
		writeVoiceFile(t, assetsDir, voice, columnEmbedding())
	}

	store := voices.NewStore(assetsDir)
	require.NoError(t, store.PreloadAll())
	assert.Equal(t, voices.All(), store.Available())
}

func TestStyleVector_ColumnAverage(t *testing.T) {
	t.Parallel()

	style := voices.StyleVector(columnEmbedding())
	require.Len(t, style, 256)

	for index, value := range style {
		require.InDelta(t, float32(index), value, 0, "column %d", index)
	}
}

func TestStyleVector_FallbackPadsAndTruncates(t *testing.T) {
	t.Parallel()

	short := voices.StyleVector([]float32{1, 2, 3})
	require.Len(t, short, 256)
	assert.Equal(t, []float32{1, 2, 3, 0}, short[:4])
	assert.InDelta(t, 0.0, short[255], 0)

	long := make([]float32, 300)
	for index := range long {
		long[index] = float32(index)
	}

	truncated := voices.StyleVector(long)
	require.Len(t, truncated, 256)
	assert.InDelta(t, 255.0, truncated[255], 0)

	assert.Len(t, voices.StyleVector(nil), 256)
}
