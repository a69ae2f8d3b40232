// Package portaudio implements audio.Source on top of the PortAudio default
// capture device. It is the production microphone backend.
//
// The stream is opened lazily on the first Read, because the frame size is a
// pipeline decision that the source learns only at read time. When the device
// rejects the requested sample rate the source falls back to 48 kHz capture
// and resamples down, so an unsupported rate is a warning, never a fatal
// error.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/earshot-voice/earshot/pkg/audio"
)

// fallbackRate is the capture rate tried when the device rejects the
// configured one. 48 kHz is universally supported by capture hardware.
const fallbackRate = 48000

// Source captures 16-bit mono PCM from the PortAudio default input device.
// It implements [audio.Source]. Not safe for concurrent use; the pipeline
// reads it from a single worker goroutine.
type Source struct {
	sampleRate int

	mu          sync.Mutex
	initialized bool
	stream      *portaudio.Stream
	buf         []int16
	captureRate int // actual device rate; differs from sampleRate on fallback
	frameSize   int // frameSamples the stream was opened for
}

// New creates a Source that will capture at sampleRate Hz.
func New(sampleRate int) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate must be positive, got %d", sampleRate)
	}
	return &Source{sampleRate: sampleRate}, nil
}

// Open initialises the PortAudio runtime. The capture stream itself is opened
// on the first Read, once the frame size is known.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	s.initialized = true
	return nil
}

// Read blocks until one frame of frameSamples mono samples has been captured
// and returns it as little-endian PCM16. Device overflow is reported as
// [audio.ErrOverflow].
func (s *Source) Read(frameSamples int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, errors.New("portaudio: source is not open")
	}
	if s.stream == nil || s.frameSize != frameSamples {
		if err := s.openStream(frameSamples); err != nil {
			return nil, err
		}
	}

	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return nil, audio.ErrOverflow
		}
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}

	pcm := make([]byte, len(s.buf)*2)
	for i, sample := range s.buf {
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}

	if s.captureRate != s.sampleRate {
		pcm = audio.ResampleMono16(pcm, s.captureRate, s.sampleRate)
	}
	return pcm, nil
}

// openStream opens (or reopens) the capture stream for the given frame size.
// Must be called with s.mu held.
func (s *Source) openStream(frameSamples int) error {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}

	rate := s.sampleRate
	bufLen := frameSamples
	s.buf = make([]int16, bufLen)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), bufLen, s.buf)
	if err != nil {
		// Fall back to 48 kHz capture and resample down.
		if s.sampleRate == fallbackRate {
			return fmt.Errorf("portaudio: open stream at %d Hz: %w", rate, err)
		}
		slog.Warn("portaudio: device rejected sample rate, capturing at fallback rate",
			"requested_hz", s.sampleRate,
			"fallback_hz", fallbackRate,
			"err", err,
		)
		rate = fallbackRate
		bufLen = frameSamples * fallbackRate / s.sampleRate
		s.buf = make([]int16, bufLen)
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(rate), bufLen, s.buf)
		if err != nil {
			return fmt.Errorf("portaudio: open stream at fallback %d Hz: %w", fallbackRate, err)
		}
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.stream = stream
	s.captureRate = rate
	s.frameSize = frameSamples
	slog.Info("portaudio: capture stream opened",
		"device_hz", rate,
		"pipeline_hz", s.sampleRate,
		"frame_samples", frameSamples,
	)
	return nil
}

// Close stops the capture stream and tears down the PortAudio runtime.
// Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, err)
		}
		s.stream = nil
	}
	if s.initialized {
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, err)
		}
		s.initialized = false
	}
	return errors.Join(errs...)
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
