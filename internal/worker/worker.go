// Package worker provides a NATS worker that voices text pages.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/tts"
	"github.com/book-expert/kokoro-service/internal/tts/audio"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultMessageTimeout bounds the handling of one message.
const DefaultMessageTimeout = 30 * time.Second

var (
	// ErrTextKeyEmpty indicates that the event names no text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTextEmpty indicates that the downloaded text object is blank.
	ErrTextEmpty = errors.New("text object is empty")
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
)

// Options configures a NatsWorker.
type Options struct {
	// Subject carries TextProcessedEvent messages.
	Subject string
	// QueueGroup load-balances messages across workers when set.
	QueueGroup string
	// ResultSubject receives AudioChunkCreatedEvent for messages without a
	// reply inbox.
	ResultSubject string
	// DefaultVoice is used for events that name no voice.
	DefaultVoice string
	// DefaultSpeed is used for events with a zero speed; zero means
	// tts.DefaultSpeed.
	DefaultSpeed float32
	// MessageTimeout bounds one message; zero means DefaultMessageTimeout.
	MessageTimeout time.Duration
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	options        Options
	store          core.ObjectStore
	synthesizer    core.Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	options Options,
	store core.ObjectStore,
	synthesizer core.Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if options.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if options.MessageTimeout <= 0 {
		options.MessageTimeout = DefaultMessageTimeout
	}

	if options.DefaultSpeed == 0 {
		options.DefaultSpeed = tts.DefaultSpeed
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		options:        options,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.options.QueueGroup != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.options.Subject, w.options.QueueGroup, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.options.Subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.options.Subject, err)
	}

	w.log.Info("Listening for synthesis jobs on subject: %s", w.options.Subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.options.MessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	audioKey, samples, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	replyEvent := &core.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
		Samples:    samples,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesizes it and uploads the WAV.
func (w *NatsWorker) processJob(ctx context.Context, event *core.TextProcessedEvent) (string, int, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", 0, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	text := string(textData)
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("%w: '%s'", ErrTextEmpty, event.TextKey)
	}

	waveform, err := w.synthesizer.Synthesize(ctx, text, event.Voice, event.Speed)
	if err != nil {
		return "", 0, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	wavData, err := audio.EncodeWAV(waveform)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode audio: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavData)
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Voiced page %d/%d of workflow %s as %s (%s)",
		event.PageNumber, event.TotalPages, event.Header.WorkflowID, audioKey, audio.Duration(len(waveform)))

	return audioKey, len(waveform), nil
}

// publishReplyEvent responds on the message inbox, or publishes to the
// result subject when the sender did not ask for a reply.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *core.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(replyData)
		if err != nil {
			return fmt.Errorf("failed to publish reply event: %w", err)
		}

		return nil
	}

	if w.options.ResultSubject == "" {
		return nil
	}

	err = w.natsConnection.Publish(w.options.ResultSubject, replyData)
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", w.options.ResultSubject, err)
	}

	return nil
}

// parseAndValidateEvent decodes the event and applies voice and speed
// defaults before rejecting unknown voices and out-of-range speeds.
func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*core.TextProcessedEvent, error) {
	var event core.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.Voice == "" {
		event.Voice = w.options.DefaultVoice
	}

	if event.Speed == 0 {
		event.Speed = w.options.DefaultSpeed
	}

	_, err = voices.Parse(event.Voice)
	if err != nil {
		return nil, err
	}

	err = tts.ValidateSpeed(event.Speed)
	if err != nil {
		return nil, err
	}

	return &event, nil
}
