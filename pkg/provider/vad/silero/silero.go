// Package silero implements vad.Engine on top of the Silero VAD ONNX model
// via the silero-vad-go bindings. It is the high-accuracy classifier backend.
//
// The model consumes fixed windows (512 samples at 16 kHz, 256 at 8 kHz) that
// do not line up with the pipeline's frame size, so each session carries
// leftover samples between Classify calls and reports the in-speech state as
// of the last fully processed window.
package silero

import (
	"fmt"
	"strings"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/earshot-voice/earshot/pkg/audio"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// thresholds maps the 0..3 aggressiveness scale onto the model's speech
// probability threshold.
var thresholds = [vad.MaxAggressiveness + 1]float32{0.3, 0.4, 0.5, 0.6}

// windowSamples returns the model window size for a sample rate, or 0 when
// the model does not support the rate.
func windowSamples(sampleRate int) int {
	switch sampleRate {
	case 16000:
		return 512
	case 8000:
		return 256
	default:
		return 0
	}
}

// Engine creates Silero classifier sessions sharing one model file.
type Engine struct {
	modelPath string
}

// New returns an Engine that loads the ONNX model at modelPath. Each session
// gets its own detector instance; the model file is only read at session
// creation.
func New(modelPath string) *Engine {
	return &Engine{modelPath: modelPath}
}

// NewSession creates a classifier session. The Silero model only supports
// 8 kHz and 16 kHz input; other rates return an error, which callers treat as
// "classifier unavailable".
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	window := windowSamples(cfg.SampleRate)
	if window == 0 {
		return nil, fmt.Errorf("silero: model supports 8000 or 16000 Hz, got %d", cfg.SampleRate)
	}

	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  e.modelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  thresholds[cfg.Aggressiveness],
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}

	return &session{
		engine:         e,
		detector:       detector,
		sampleRate:     cfg.SampleRate,
		frameBytes:     cfg.FrameBytes(),
		window:         window,
		aggressiveness: cfg.Aggressiveness,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu             sync.Mutex
	engine         *Engine
	detector       *speech.Detector
	sampleRate     int
	frameBytes     int
	window         int
	aggressiveness int

	carry    []float32 // samples waiting for a full model window
	inSpeech bool
	closed   bool
}

// Classify feeds the frame into the model window buffer and reports the
// in-speech state after the last completed window. Frames shorter than one
// window simply extend the buffer and return the previous state.
func (s *session) Classify(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("silero: session is closed")
	}
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("silero: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	for _, sample := range audio.DecodeInt16(frame) {
		s.carry = append(s.carry, float32(sample)/32768)
	}

	for len(s.carry) >= s.window {
		event, err := s.detector.DetectStreamFrame(s.carry[:s.window])
		s.carry = s.carry[s.window:]
		if err != nil {
			// The detector refuses a speech-end without a matching start
			// after an internal state mismatch. Recover by resetting.
			if strings.Contains(err.Error(), "unexpected speech end") {
				s.detector.Reset()
				s.inSpeech = false
				continue
			}
			return false, fmt.Errorf("silero: detect: %w", err)
		}
		if event != nil {
			if event.IsStart {
				s.inSpeech = true
			}
			if event.IsEnd {
				s.inSpeech = false
			}
		}
	}
	return s.inSpeech, nil
}

// SetAggressiveness swaps the detector for one built with the new threshold.
// Silero thresholds are fixed at detector construction, so retuning restarts
// window accumulation for this session.
func (s *session) SetAggressiveness(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 {
		level = 0
	} else if level > vad.MaxAggressiveness {
		level = vad.MaxAggressiveness
	}
	if level == s.aggressiveness || s.closed {
		s.aggressiveness = level
		return
	}
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  s.engine.modelPath,
		SampleRate: s.sampleRate,
		Threshold:  thresholds[level],
	})
	if err != nil {
		// Keep the current detector; the old threshold is better than none.
		return
	}
	_ = s.detector.Destroy()
	s.detector = detector
	s.aggressiveness = level
	s.carry = s.carry[:0]
	s.inSpeech = false
}

// Reset clears window accumulation and the model's internal state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.detector.Reset()
	s.carry = s.carry[:0]
	s.inSpeech = false
}

// Close destroys the underlying detector. Safe to call more than once.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.detector.Destroy(); err != nil {
		return fmt.Errorf("silero: destroy detector: %w", err)
	}
	return nil
}

var _ vad.SessionHandle = (*session)(nil)
