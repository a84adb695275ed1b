package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// HealthCheckTimeout bounds the pre-flight health check.
	HealthCheckTimeout = 10 * time.Second
	// DefaultWorkers is the number of chunks synthesized concurrently.
	DefaultWorkers = 2
	// DefaultRequestTimeout bounds one synthesis request when neither the
	// options nor the HTTP client set a timeout.
	DefaultRequestTimeout = 2 * time.Minute

	filePermissions = 0o600
	dirPermissions  = 0o750

	outputFileFormat = "chunk_%04d.wav"
)

var (
	ErrChunksPathEmpty = errors.New("chunks path cannot be empty")
	ErrOutputDirEmpty  = errors.New("output directory cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoChunksFound   = errors.New("no chunks found")
)

// BatchOptions controls how a Batch synthesizes chunks.
type BatchOptions struct {
	Voice   string
	Speed   *float32
	Workers int
	Timeout time.Duration
}

// Batch synthesizes JSON chunk files through an HTTPClient, writing one WAV
// file per chunk.
type Batch struct {
	client  *HTTPClient
	options BatchOptions
	logger  *logger.Logger
}

// NewBatch creates a batch runner. Zero Workers and Timeout take defaults.
func NewBatch(client *HTTPClient, options BatchOptions, log *logger.Logger) *Batch {
	if options.Workers <= 0 {
		options.Workers = DefaultWorkers
	}

	if options.Timeout <= 0 {
		options.Timeout = client.httpClient.Timeout
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultRequestTimeout
	}

	return &Batch{client: client, options: options, logger: log}
}

// ProcessChunks reads a JSON array of strings from chunksPath and writes
// chunk_0001.wav, chunk_0002.wav, ... into outputDir. All chunks are
// attempted; the first failure is returned once the rest have finished.
func (b *Batch) ProcessChunks(ctx context.Context, chunksPath, outputDir string) error {
	if chunksPath == "" {
		return ErrChunksPathEmpty
	}

	if outputDir == "" {
		return ErrOutputDirEmpty
	}

	chunks, err := readChunksFile(chunksPath)
	if err != nil {
		return fmt.Errorf("failed to read chunks: %w", err)
	}

	err = os.MkdirAll(outputDir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	healthCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err = b.client.HealthCheck(healthCtx)
	if err != nil {
		return fmt.Errorf("TTS service health check failed: %w", err)
	}

	b.logger.Info("TTS service is healthy, processing %d chunks", len(chunks))

	return b.processChunksParallel(ctx, chunks, outputDir)
}

// ProcessSingleChunk synthesizes text and writes the WAV to outputPath.
func (b *Batch) ProcessSingleChunk(ctx context.Context, text, outputPath string) error {
	if text == "" {
		return ErrTextEmpty
	}

	if outputPath == "" {
		return ErrOutputPathEmpty
	}

	err := os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, b.options.Timeout)
	defer cancel()

	audioData, err := b.client.GenerateSpeech(requestCtx, Request{
		Text:  text,
		Voice: b.options.Voice,
		Speed: b.options.Speed,
	})
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	err = os.WriteFile(outputPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	b.logger.Info("Generated audio: %s (%d bytes)", outputPath, len(audioData))

	return nil
}

func readChunksFile(chunksPath string) ([]string, error) {
	data, err := os.ReadFile(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var chunks []string

	err = parseJSON(data, &chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunks JSON: %w", err)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunksFound, chunksPath)
	}

	return chunks, nil
}

// processChunksParallel bounds concurrency with the group limit. Chunk
// failures are logged and do not cancel the remaining chunks.
func (b *Batch) processChunksParallel(ctx context.Context, chunks []string, outputDir string) error {
	var (
		group    errgroup.Group
		mutex    sync.Mutex
		firstErr error
	)

	group.SetLimit(b.options.Workers)

	for chunkIndex, chunk := range chunks {
		group.Go(func() error {
			outputPath := filepath.Join(outputDir, fmt.Sprintf(outputFileFormat, chunkIndex+1))

			err := b.ProcessSingleChunk(ctx, chunk, outputPath)
			if err != nil {
				b.logger.Error("Failed to process chunk %d: %v", chunkIndex+1, err)

				mutex.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("chunk %d failed: %w", chunkIndex+1, err)
				}
				mutex.Unlock()

				return nil
			}

			b.logger.Info("Processed chunk %d/%d", chunkIndex+1, len(chunks))

			return nil
		})
	}

	_ = group.Wait()

	return firstErr
}
