// Package vad defines the Engine interface for frame-level speech classifiers.
//
// A VAD engine wraps a binary speech/non-speech detector (an ONNX model, a
// DSP heuristic, or a test double) and surfaces it as a stateful per-stream
// session. Each session maintains its own internal state (windowing buffers,
// running noise estimates) so that independent audio streams never interfere.
//
// Classification is synchronous by design: Classify returns immediately with
// a boolean verdict, making it suitable for the per-frame gating loop that
// decides what reaches the recognizer. The energy pre-gate and all smoothing
// live ABOVE this interface, in internal/gate; an engine only answers "does
// this one frame sound like speech".
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is used by one goroutine at a time.
package vad

import (
	"log/slog"
)

// Supported parameter sets. Values outside these sets are snapped to the
// nearest supported value by [NormalizeConfig] — a warning, never an error.
var (
	supportedRates     = []int{8000, 16000, 32000, 48000}
	supportedDurations = []int{10, 20, 30}
)

// MaxAggressiveness is the upper bound of the aggressiveness scale.
// 0 filters the least non-speech, 3 the most.
const MaxAggressiveness = 3

// Config holds the parameters for a classifier session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Supported: 8000, 16000,
	// 32000, 48000.
	SampleRate int

	// FrameDurationMs is the duration of each audio frame in milliseconds.
	// Supported: 10, 20, 30. Classify returns an error for frames that do
	// not match this size.
	FrameDurationMs int

	// Aggressiveness tunes how eagerly the classifier rejects non-speech,
	// from 0 (least filtering) to 3 (most). Engines map this onto their
	// native threshold scale.
	Aggressiveness int
}

// FrameBytes returns the expected byte length of one PCM16 frame under this
// config.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameDurationMs / 1000 * 2
}

// NormalizeConfig snaps unsupported sample rates, frame durations, and
// aggressiveness levels to the nearest supported value, logging a warning for
// each adjustment. It never fails: misconfiguration degrades, it does not
// stop the pipeline.
func NormalizeConfig(cfg Config) Config {
	if snapped := nearest(cfg.SampleRate, supportedRates); snapped != cfg.SampleRate {
		slog.Warn("vad: unsupported sample rate, snapping to nearest supported value",
			"requested_hz", cfg.SampleRate,
			"using_hz", snapped,
		)
		cfg.SampleRate = snapped
	}
	if snapped := nearest(cfg.FrameDurationMs, supportedDurations); snapped != cfg.FrameDurationMs {
		slog.Warn("vad: unsupported frame duration, snapping to nearest supported value",
			"requested_ms", cfg.FrameDurationMs,
			"using_ms", snapped,
		)
		cfg.FrameDurationMs = snapped
	}
	if cfg.Aggressiveness < 0 {
		slog.Warn("vad: aggressiveness below range, clamping", "requested", cfg.Aggressiveness, "using", 0)
		cfg.Aggressiveness = 0
	} else if cfg.Aggressiveness > MaxAggressiveness {
		slog.Warn("vad: aggressiveness above range, clamping", "requested", cfg.Aggressiveness, "using", MaxAggressiveness)
		cfg.Aggressiveness = MaxAggressiveness
	}
	return cfg
}

// nearest returns the element of supported closest to v. Ties resolve to the
// smaller value (first match wins).
func nearest(v int, supported []int) int {
	best := supported[0]
	bestDist := abs(v - best)
	for _, s := range supported[1:] {
		if d := abs(v - s); d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SessionHandle represents an active classifier session for a single audio
// stream. It is an interface so that test code can supply scripted
// implementations without a live engine.
//
// A SessionHandle is not shared between goroutines.
type SessionHandle interface {
	// Classify analyses a single frame of little-endian PCM16 mono audio
	// and reports whether it sounds like speech. The frame length must be
	// Config.FrameBytes(); a mismatched frame returns an error and leaves
	// session state untouched.
	//
	// Classify is called once per frame on the real-time path; it must not
	// block.
	Classify(frame []byte) (bool, error)

	// SetAggressiveness retunes the session's non-speech filtering in place
	// without losing accumulated state. Used by sensitivity reconfiguration.
	SetAggressiveness(level int)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for classifier sessions, implemented by each VAD
// backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously.
type Engine interface {
	// NewSession creates a classifier session for the given (already
	// normalized) configuration. Returns an error when the engine cannot
	// serve it — e.g. a model file is missing or the rate is outside what
	// the backend model supports. Callers treat that as "classifier
	// unavailable" and fail open rather than aborting.
	NewSession(cfg Config) (SessionHandle, error)
}
