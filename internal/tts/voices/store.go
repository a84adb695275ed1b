package voices

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/book-expert/kokoro-service/internal/core"
)

// Embedding tensor layout: 510 frames x 1 x 256 style values, float32 LE.
const (
	EmbeddingFrames = 510
	StyleDim        = 256
	EmbeddingLen    = EmbeddingFrames * 1 * StyleDim
	EmbeddingBytes  = EmbeddingLen * 4
)

// ErrUnknownVoice is returned for values outside the catalog.
var ErrUnknownVoice = errors.New("unknown voice")

// Store loads voice embeddings lazily and keeps them for the life of the
// process. It is safe for concurrent use.
type Store struct {
	assetsDir  string
	mu         sync.Mutex
	embeddings map[Voice][]float32
}

// NewStore creates an empty store reading from assetsDir.
func NewStore(assetsDir string) *Store {
	return &Store{
		assetsDir:  assetsDir,
		embeddings: make(map[Voice][]float32),
	}
}

// Load reads the voice's embedding file without caching it.
func (s *Store) Load(voice Voice) ([]float32, error) {
	if !voice.Valid() {
		return nil, core.NewError(core.KindVoiceData, fmt.Errorf("%w: %d", ErrUnknownVoice, int(voice)))
	}

	path, _ := Resolve(s.assetsDir, voice)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Errorf(core.KindVoiceData, "failed to read voice file '%s': %w", path, err)
	}

	if len(data) != EmbeddingBytes {
		return nil, core.Errorf(core.KindVoiceData,
			"voice file '%s' has %d bytes, expected %d", path, len(data), EmbeddingBytes)
	}

	embedding := make([]float32, EmbeddingLen)

	err = binary.Read(bytes.NewReader(data), binary.LittleEndian, embedding)
	if err != nil {
		return nil, core.Errorf(core.KindVoiceData, "failed to decode voice file '%s': %w", path, err)
	}

	return embedding, nil
}

// GetOrLoad returns a copy of the cached embedding, loading it on first use.
func (s *Store) GetOrLoad(voice Voice) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	embedding, ok := s.embeddings[voice]
	if !ok {
		loaded, err := s.Load(voice)
		if err != nil {
			return nil, err
		}

		s.embeddings[voice] = loaded
		embedding = loaded
	}

	return slices.Clone(embedding), nil
}

// PreloadAll loads every catalog voice. Voices that load are kept even when
// others fail; the first failure is returned.
func (s *Store) PreloadAll() error {
	var failures []error

	for _, voice := range All() {
		_, err := s.GetOrLoad(voice)
		if err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return failures[0]
	}

	return nil
}

// Available lists the voices currently loaded, in catalog order.
func (s *Store) Available() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make([]Voice, 0, len(s.embeddings))
	for _, voice := range All() {
		if _, ok := s.embeddings[voice]; ok {
			loaded = append(loaded, voice)
		}
	}

	return loaded
}

// IsLoaded reports whether voice has been loaded.
func (s *Store) IsLoaded(voice Voice) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.embeddings[voice]

	return ok
}
