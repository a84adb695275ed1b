// Package audio encodes synthesized waveforms into WAV containers.
package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Output format of the Kokoro model.
const (
	SAMPLE_RATE = 24000
	BIT_DEPTH   = 16
	CHANNELS    = 1
	// PCM format tag in the WAVE fmt chunk.
	FORMAT_PCM = 1
	// Size of the canonical RIFF/WAVE header preceding the samples.
	HEADER_SIZE = 44
)

// ContentType is the MIME type of the encoded output.
const ContentType = "audio/wav"

// ErrSeekPosition is returned by memory buffer seeks before the start.
var ErrSeekPosition = errors.New("negative seek position")

// EncodeWAV clamps each sample to [-1, 1], scales it to 16-bit PCM and wraps
// the result in a mono 24 kHz WAV container.
func EncodeWAV(waveform []float32) ([]byte, error) {
	buffer := &writeSeeker{}
	encoder := wav.NewEncoder(buffer, SAMPLE_RATE, BIT_DEPTH, CHANNELS, FORMAT_PCM)

	pcm := &goaudio.IntBuffer{
		Data:           ToPCM16(waveform),
		Format:         &goaudio.Format{SampleRate: SAMPLE_RATE, NumChannels: CHANNELS},
		SourceBitDepth: BIT_DEPTH,
	}

	err := encoder.Write(pcm)
	if err != nil {
		return nil, fmt.Errorf("failed to write pcm samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", err)
	}

	return buffer.Bytes(), nil
}

// ToPCM16 converts float samples to rounded signed 16-bit values.
func ToPCM16(waveform []float32) []int {
	samples := make([]int, len(waveform))

	for index, sample := range waveform {
		clamped := math.Max(-1.0, math.Min(1.0, float64(sample)))
		if math.IsNaN(clamped) {
			clamped = 0
		}

		samples[index] = int(math.Round(clamped * math.MaxInt16))
	}

	return samples
}

// Duration returns the playback length of a waveform with the given number
// of samples.
func Duration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / SAMPLE_RATE
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch the chunk sizes once all samples are written.
type writeSeeker struct {
	data []byte
	pos  int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.data) {
		w.data = append(w.data, make([]byte, end-len(w.data))...)
	}

	copy(w.data[w.pos:end], p)
	w.pos = end

	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.data))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	position := base + offset
	if position < 0 {
		return 0, ErrSeekPosition
	}

	w.pos = int(position)

	return position, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.data
}
