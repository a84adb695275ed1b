package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/kokoro-service/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{
		"--text", "Hello, world!",
		"--voice", "british_female_emma",
		"--speed", "1.25",
		"--workers", "4",
		"--timeout", "5s",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "british_female_emma", flags.voice)
	assert.InDelta(t, 1.25, flags.speed, 1e-9)
	assert.Equal(t, 4, flags.workers)
	assert.Equal(t, 5*time.Second, flags.timeout)
	assert.Equal(t, defaultURL, flags.url)
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, client.DefaultVoice, flags.voice)
	assert.Equal(t, client.DefaultWorkers, flags.workers)
	assert.Nil(t, speedOption(flags.speed))
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--bogus"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{"neither", appFlags{}, errEitherTextOrChunks},
		{"both", appFlags{text: "hi", chunks: "c.json"}, errCannotSpecifyBoth},
		{"text only", appFlags{text: "hi"}, nil},
		{"chunks only", appFlags{chunks: "c.json"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(tt.flags)
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpeedOption(t *testing.T) {
	t.Parallel()

	speed := speedOption(0.75)
	require.NotNil(t, speed)
	assert.InDelta(t, 0.75, *speed, 1e-6)
}

func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/voices":
			_ = json.NewEncoder(w).Encode([]client.VoiceInfo{
				{ID: "american_female_bella", Dialect: "american", Gender: "female", Language: "en-us", Loaded: true},
			})
		case "/api/tts":
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte("RIFFdata"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	t.Cleanup(server.Close)

	return server
}

func TestRun_Health(t *testing.T) {
	t.Parallel()

	service := newFakeService(t)

	var stdout bytes.Buffer

	err := run(context.Background(), []string{"--health", "--url", service.URL, "--log-dir", t.TempDir()}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "TTS service is healthy")
}

func TestRun_Voices(t *testing.T) {
	t.Parallel()

	service := newFakeService(t)

	var stdout bytes.Buffer

	err := run(context.Background(), []string{"--voices", "--url", service.URL, "--log-dir", t.TempDir()}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "american_female_bella")
	assert.Contains(t, stdout.String(), "(loaded)")
}

func TestRun_SingleText(t *testing.T) {
	t.Parallel()

	service := newFakeService(t)
	outputPath := filepath.Join(t.TempDir(), "hello.wav")

	var stdout bytes.Buffer

	err := run(context.Background(), []string{
		"--text", "Hello", "--output", outputPath, "--url", service.URL, "--log-dir", t.TempDir(),
	}, &stdout)
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))
	assert.Contains(t, stdout.String(), "Generated: "+outputPath)
}

func TestRun_Chunks(t *testing.T) {
	t.Parallel()

	service := newFakeService(t)
	chunksPath := filepath.Join(t.TempDir(), "chunks.json")
	require.NoError(t, os.WriteFile(chunksPath, []byte(`["one","two"]`), 0o600))

	outputDir := filepath.Join(t.TempDir(), "out")

	var stdout bytes.Buffer

	err := run(context.Background(), []string{
		"--chunks", chunksPath, "--output", outputDir, "--url", service.URL, "--log-dir", t.TempDir(),
	}, &stdout)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outputDir, "chunk_0001.wav"))
	assert.FileExists(t, filepath.Join(outputDir, "chunk_0002.wav"))
}

func TestRun_MissingInput(t *testing.T) {
	t.Parallel()

	var stdout bytes.Buffer

	err := run(context.Background(), []string{"--log-dir", t.TempDir()}, &stdout)
	require.ErrorIs(t, err, errEitherTextOrChunks)
}
