// Package onnx implements core.InferenceEngine on top of ONNX Runtime.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/logger"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the onnxruntime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB_PATH"

// Kokoro graph tensor names.
const (
	inputTokens  = "tokens"
	inputStyle   = "style"
	inputSpeed   = "speed"
	outputAudio  = "audio"
	alreadyReady = "already initialized"
)

// DefaultIntraOpThreads bounds the CPU threads used by one inference.
const DefaultIntraOpThreads = 4

var (
	// ErrEmptyOutput is returned when the model yields no samples.
	ErrEmptyOutput = errors.New("model returned an empty waveform")
	// ErrUnexpectedOutput is returned when the output tensor is not float32.
	ErrUnexpectedOutput = errors.New("unexpected output tensor type")
	// ErrSessionClosed is returned by Infer after Close.
	ErrSessionClosed = errors.New("inference session is closed")
)

var (
	environmentOnce sync.Once
	environmentErr  error
)

// Config selects the model file and runtime library.
type Config struct {
	ModelPath      string
	LibraryPath    string
	IntraOpThreads int
}

// Engine wraps a Kokoro ONNX session. Callers serialize Infer calls.
type Engine struct {
	session *ort.DynamicAdvancedSession
	log     *logger.Logger
}

// initEnvironment loads the runtime library once per process.
func initEnvironment(libraryPath string) error {
	environmentOnce.Do(func() {
		if libraryPath == "" {
			libraryPath = os.Getenv(LibraryPathEnv)
		}

		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}

		err := ort.InitializeEnvironment()
		if err != nil && !strings.Contains(err.Error(), alreadyReady) {
			environmentErr = err
		}
	})

	return environmentErr
}

// New loads the model at cfg.ModelPath. Every failure is a model-load error.
func New(cfg Config, log *logger.Logger) (*Engine, error) {
	_, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, core.Errorf(core.KindModelLoad, "model file not found at path %s: %w", cfg.ModelPath, err)
	}

	err = initEnvironment(cfg.LibraryPath)
	if err != nil {
		return nil, core.Errorf(core.KindModelLoad, "failed to initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, core.Errorf(core.KindModelLoad, "failed to create session options: %w", err)
	}
	defer options.Destroy()

	threads := cfg.IntraOpThreads
	if threads <= 0 {
		threads = DefaultIntraOpThreads
	}

	err = options.SetIntraOpNumThreads(threads)
	if err != nil {
		return nil, core.Errorf(core.KindModelLoad, "failed to set intra-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputTokens, inputStyle, inputSpeed},
		[]string{outputAudio},
		options,
	)
	if err != nil {
		return nil, core.Errorf(core.KindModelLoad, "failed to create session for %s: %w", cfg.ModelPath, err)
	}

	if log != nil {
		log.Info("Loaded Kokoro model from %s with %d intra-op threads", cfg.ModelPath, threads)
	}

	return &Engine{session: session, log: log}, nil
}

// Infer runs the model on padded tokens, a 256-value style vector and speed.
func (e *Engine) Infer(tokens []int64, style []float32, speed float32) ([]float32, error) {
	if e.session == nil {
		return nil, ErrSessionClosed
	}

	tokenTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(tokens))), tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create token tensor: %w", err)
	}
	defer destroy(e.log, tokenTensor)

	styleTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(style))), style)
	if err != nil {
		return nil, fmt.Errorf("failed to create style tensor: %w", err)
	}
	defer destroy(e.log, styleTensor)

	speedTensor, err := ort.NewTensor(ort.NewShape(1), []float32{speed})
	if err != nil {
		return nil, fmt.Errorf("failed to create speed tensor: %w", err)
	}
	defer destroy(e.log, speedTensor)

	outputs := []ort.Value{nil}

	err = e.session.Run([]ort.Value{tokenTensor, styleTensor, speedTensor}, outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to run kokoro session: %w", err)
	}
	defer destroy(e.log, outputs[0])

	audioTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedOutput, outputs[0])
	}

	samples := audioTensor.GetData()
	if len(samples) == 0 {
		return nil, ErrEmptyOutput
	}

	waveform := make([]float32, len(samples))
	copy(waveform, samples)

	return waveform, nil
}

// Close releases the session.
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}

	err := e.session.Destroy()
	e.session = nil

	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	return nil
}

func destroy(log *logger.Logger, value ort.Value) {
	if value == nil {
		return
	}

	err := value.Destroy()
	if err != nil && log != nil {
		log.Warn("Failed to destroy onnx value: %v", err)
	}
}
