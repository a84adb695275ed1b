// Command kokoro-client sends text to a running kokoro-service and writes
// the returned WAV audio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/kokoro-service/internal/client"
	"github.com/book-expert/logger"
)

// Flag names.
const (
	flagText    = "text"
	flagOutput  = "output"
	flagChunks  = "chunks"
	flagVoice   = "voice"
	flagSpeed   = "speed"
	flagURL     = "url"
	flagWorkers = "workers"
	flagTimeout = "timeout"
	flagLogDir  = "log-dir"
	flagHealth  = "health"
	flagVoices  = "voices"
)

const (
	defaultURL        = "http://localhost:3002"
	defaultOutputFile = "output.wav"
	defaultOutputDir  = "audio"
	defaultTimeout    = 2 * time.Minute
	logFileName       = "kokoro-client.log"
)

var (
	errEitherTextOrChunks = errors.New("either --text or --chunks must be provided")
	errCannotSpecifyBoth  = errors.New("cannot specify both --text and --chunks")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	output  string
	chunks  string
	voice   string
	speed   float64
	url     string
	workers int
	timeout time.Duration
	logDir  string
	health  bool
	voices  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	log, err := logger.New(flags.logDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	httpClient := client.NewHTTPClient(flags.url, flags.timeout)

	switch {
	case flags.health:
		return handleHealthCheck(ctx, httpClient, log, stdout)
	case flags.voices:
		return handleVoices(ctx, httpClient, stdout)
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	batch := client.NewBatch(httpClient, client.BatchOptions{
		Voice:   flags.voice,
		Speed:   speedOption(flags.speed),
		Workers: flags.workers,
		Timeout: flags.timeout,
	}, log)

	if flags.text != "" {
		return processSingleText(ctx, batch, log, stdout, flags)
	}

	return processChunks(ctx, batch, log, stdout, flags)
}

// parseFlags parses args into appFlags.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("kokoro-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", "Text to convert to speech")
	flagSet.StringVar(&flags.output, flagOutput, "", "Output .wav file, or output directory with --chunks")
	flagSet.StringVar(&flags.chunks, flagChunks, "", "JSON file containing an array of text chunks")
	flagSet.StringVar(&flags.voice, flagVoice, client.DefaultVoice, "Voice identifier, e.g. british_male_george")
	flagSet.Float64Var(&flags.speed, flagSpeed, 0, "Speech speed between 0.5 and 2.0 (service default when 0)")
	flagSet.StringVar(&flags.url, flagURL, defaultURL, "Base URL of the kokoro-service")
	flagSet.IntVar(&flags.workers, flagWorkers, client.DefaultWorkers, "Concurrent requests in --chunks mode")
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, "Per-request timeout")
	flagSet.StringVar(&flags.logDir, flagLogDir, os.TempDir(), "Directory for the client log file")
	flagSet.BoolVar(&flags.health, flagHealth, false, "Check service health and exit")
	flagSet.BoolVar(&flags.voices, flagVoices, false, "List the service's voices and exit")

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks that exactly one of --text and --chunks was given.
func validateFlags(flags appFlags) error {
	if flags.text == "" && flags.chunks == "" {
		return errEitherTextOrChunks
	}

	if flags.text != "" && flags.chunks != "" {
		return errCannotSpecifyBoth
	}

	return nil
}

func speedOption(speed float64) *float32 {
	if speed == 0 {
		return nil
	}

	value := float32(speed)

	return &value
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(ctx context.Context, httpClient *client.HTTPClient, log *logger.Logger, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, client.HealthCheckTimeout)
	defer cancel()

	err := httpClient.HealthCheck(ctx)
	if err != nil {
		log.Error("Health check failed: %v", err)

		return fmt.Errorf("TTS service is not healthy: %w", err)
	}

	fmt.Fprintln(stdout, "TTS service is healthy")

	return nil
}

func handleVoices(ctx context.Context, httpClient *client.HTTPClient, stdout io.Writer) error {
	voiceList, err := httpClient.Voices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	for _, voice := range voiceList {
		loaded := ""
		if voice.Loaded {
			loaded = " (loaded)"
		}

		fmt.Fprintf(stdout, "%-26s %-8s %-6s %s%s\n", voice.ID, voice.Dialect, voice.Gender, voice.Language, loaded)
	}

	return nil
}

// processSingleText converts a single text string.
func processSingleText(ctx context.Context, batch *client.Batch, log *logger.Logger, stdout io.Writer, flags appFlags) error {
	outputPath := flags.output
	if outputPath == "" {
		outputPath = defaultOutputFile
	}

	log.Info("Processing single text to: %s", outputPath)

	err := batch.ProcessSingleChunk(ctx, flags.text, outputPath)
	if err != nil {
		log.Error("Failed to process text: %v", err)

		return fmt.Errorf("failed to process text: %w", err)
	}

	fmt.Fprintf(stdout, "Generated: %s\n", outputPath)

	return nil
}

// processChunks converts a file of text chunks.
func processChunks(ctx context.Context, batch *client.Batch, log *logger.Logger, stdout io.Writer, flags appFlags) error {
	outputDir := flags.output
	if outputDir == "" {
		outputDir = defaultOutputDir
	}

	log.Info("Processing chunks from %s into %s", flags.chunks, outputDir)

	err := batch.ProcessChunks(ctx, flags.chunks, outputDir)
	if err != nil {
		log.Error("Failed to process chunks: %v", err)

		return fmt.Errorf("failed to process chunks: %w", err)
	}

	fmt.Fprintf(stdout, "Generated audio files in: %s\n", filepath.Clean(outputDir))

	return nil
}
