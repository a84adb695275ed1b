// Package phonemizer implements core.Phonemizer by calling the espeak-ng binary.
package phonemizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/mattn/go-shellwords"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "espeak-ng"

// espeakDataEnv points espeak-ng at a non-default voice data directory.
const espeakDataEnv = "ESPEAK_DATA_PATH"

// punctuationPattern matches runs of the punctuation symbols the model has
// tokens for. espeak-ng drops them from --ipa output, so they are cut out
// before phonemization and spliced back afterwards.
var punctuationPattern = regexp.MustCompile(`[;:,.!?¡¿—…"«»“”]+`)

var (
	// ErrEmptyLanguage is returned when no language code is given.
	ErrEmptyLanguage = errors.New("language code cannot be empty")
	// ErrNoPhonemes is returned when espeak-ng produces no output.
	ErrNoPhonemes = errors.New("espeak-ng produced no phonemes")
)

// Config holds the espeak-ng invocation settings.
type Config struct {
	BinaryPath string
	DataPath   string
	// ExtraArgs is a shell-quoted argument string appended to every call.
	ExtraArgs string
}

// Espeak runs one espeak-ng process per call and is safe for concurrent use.
type Espeak struct {
	binaryPath string
	dataPath   string
	extraArgs  []string
	log        *logger.Logger
}

// New validates cfg and returns an Espeak phonemizer.
func New(cfg Config, log *logger.Logger) (*Espeak, error) {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath = DefaultBinary
	}

	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to locate espeak-ng binary '%s': %w", binaryPath, err)
	}

	extraArgs, err := shellwords.Parse(cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse espeak-ng extra args %q: %w", cfg.ExtraArgs, err)
	}

	return &Espeak{
		binaryPath: resolved,
		dataPath:   cfg.DataPath,
		extraArgs:  extraArgs,
		log:        log,
	}, nil
}

// Phonemize returns the IPA transcription of text for the given language.
// Punctuation is kept in place: "Hello, world!" becomes "həlˈoʊ, wˈɜːld!".
func (e *Espeak) Phonemize(ctx context.Context, text, language string) (string, error) {
	if language == "" {
		return "", ErrEmptyLanguage
	}

	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	var builder strings.Builder

	position := 0

	for _, match := range punctuationPattern.FindAllStringIndex(text, -1) {
		err := e.appendWords(ctx, &builder, text, position, match[0], language)
		if err != nil {
			return "", err
		}

		appendPiece(&builder, text[match[0]:match[1]], spaceBefore(text, match[0]))

		position = match[1]
	}

	err := e.appendWords(ctx, &builder, text, position, len(text), language)
	if err != nil {
		return "", err
	}

	if builder.Len() == 0 {
		return "", ErrNoPhonemes
	}

	return builder.String(), nil
}

// appendWords phonemizes the punctuation-free span text[start:end].
func (e *Espeak) appendWords(
	ctx context.Context,
	builder *strings.Builder,
	text string,
	start, end int,
	language string,
) error {
	chunk := text[start:end]

	words := strings.TrimSpace(chunk)
	if words == "" {
		return nil
	}

	phonemes, err := e.run(ctx, words, language)
	if err != nil {
		return err
	}

	appendPiece(builder, phonemes, spaceBefore(text, start+strings.Index(chunk, words)))

	return nil
}

// appendPiece writes piece, separated by one space when the source text had
// whitespace before it.
func appendPiece(builder *strings.Builder, piece string, spaced bool) {
	if piece == "" {
		return
	}

	if spaced && builder.Len() > 0 {
		builder.WriteByte(' ')
	}

	builder.WriteString(piece)
}

func spaceBefore(text string, offset int) bool {
	if offset == 0 {
		return false
	}

	previous, _ := utf8.DecodeLastRuneInString(text[:offset])

	return unicode.IsSpace(previous)
}

// run invokes espeak-ng once and returns its output with whitespace collapsed.
func (e *Espeak) run(ctx context.Context, text, language string) (string, error) {
	args := []string{"-q", "--ipa", "-v", language}
	args = append(args, e.extraArgs...)
	args = append(args, "--stdin")

	// #nosec G204 -- binary resolved at construction, text is passed on stdin
	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	cmd.Stdin = strings.NewReader(text)

	if e.dataPath != "" {
		cmd.Env = append(os.Environ(), espeakDataEnv+"="+e.dataPath)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("espeak-ng execution failed: %w - output: %s", err, strings.TrimSpace(stderr.String()))
	}

	if stderr.Len() > 0 && e.log != nil {
		e.log.Warn("espeak-ng reported for language %s: %s", language, strings.TrimSpace(stderr.String()))
	}

	return strings.Join(strings.Fields(stdout.String()), " "), nil
}
