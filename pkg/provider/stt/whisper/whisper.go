// Package whisper provides a Recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp is a batch engine, so the recognizer buffers the accepted
// frames of an utterance and runs inference when the pipeline asks for the
// result (or when the buffer reaches its cap). There are no true low-latency
// partials; PartialResult reports the text of the last completed inference.
package whisper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/earshot-voice/earshot/pkg/provider/stt"
)

const (
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultMaxBufferDurationMs = 30_000
)

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithSampleRate sets the PCM sample rate in Hz of the frames delivered via
// AcceptFrame. Defaults to 16000, the rate whisper models are trained on.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) { r.sampleRate = rate }
}

// WithMaxBufferDurationMs caps the buffered utterance length in milliseconds.
// When the cap is reached AcceptFrame finalizes the buffer early. Defaults to
// 30 000 ms, the window whisper.cpp processes at once.
func WithMaxBufferDurationMs(ms int) Option {
	return func(r *Recognizer) { r.maxBufferDurationMs = ms }
}

// Recognizer implements stt.Recognizer on a local whisper.cpp model. The
// model is loaded once at construction; each inference gets a fresh
// whisper.cpp context.
type Recognizer struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	maxBufferDurationMs int

	mu     sync.Mutex
	buf    []byte
	final  string
	hasFin bool
	closed bool
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path. The caller must call Close when done.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// AcceptFrame appends one PCM frame to the utterance buffer. It reports true
// only when the buffer hits its duration cap, which forces an early
// inference; otherwise finalization happens when Result is called.
func (r *Recognizer) AcceptFrame(frame []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, stt.ErrClosed
	}

	r.buf = append(r.buf, frame...)

	maxBytes := r.maxBufferDurationMs * r.sampleRate * 2 / 1000
	if maxBytes > 0 && len(r.buf) >= maxBytes {
		if err := r.finalizeLocked(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Result returns the text of the buffered utterance, running inference if it
// has not happened yet.
func (r *Recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", stt.ErrClosed
	}
	if !r.hasFin {
		if err := r.finalizeLocked(); err != nil {
			return "", err
		}
	}
	return r.final, nil
}

// PartialResult reports the text of the last completed inference. whisper.cpp
// has no incremental decoding path, so mid-utterance this is empty.
func (r *Recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", stt.ErrClosed
	}
	if r.hasFin {
		return r.final, nil
	}
	return "", nil
}

// Reset drops the utterance buffer and any finalized text.
func (r *Recognizer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrClosed
	}
	r.buf = nil
	r.final = ""
	r.hasFin = false
	return nil
}

// Close releases the whisper model. Safe to call more than once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// finalizeLocked runs inference over the buffered audio and records the text.
// Must be called with r.mu held.
func (r *Recognizer) finalizeLocked() error {
	pcm := r.buf
	r.buf = nil
	r.hasFin = true
	r.final = ""

	if len(pcm) == 0 {
		return nil
	}

	text, err := r.infer(pcm)
	if err != nil {
		return err
	}
	r.final = text
	return nil
}

// infer converts the PCM to float32, runs whisper.cpp with a fresh context,
// and returns the concatenated segment text.
func (r *Recognizer) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Compile-time assertion that Recognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)
