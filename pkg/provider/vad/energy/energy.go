// Package energy implements a dependency-free vad.Engine built on signal
// energy and zero-crossing rate. It is the default classifier backend: no
// model file, no CGO, works at every supported rate.
//
// A frame is voiced when its mean absolute amplitude clears an adaptive noise
// floor AND its zero-crossing rate falls inside the band characteristic of
// speech. The noise floor is the minimum frame energy over a sliding window,
// so the detector adapts to room tone instead of requiring calibration: a
// steady hum raises the floor and stops registering, while speech keeps
// clearing it because utterances always contain quieter frames.
package energy

import (
	"fmt"
	"sync"

	"github.com/earshot-voice/earshot/pkg/audio"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// Per-aggressiveness tuning. Higher levels demand a larger margin over the
// noise floor and a tighter zero-crossing band.
var levels = [vad.MaxAggressiveness + 1]struct {
	floorRatio float64 // required energy as a multiple of the noise floor
	minEnergy  float64 // absolute energy floor, guards against digital silence
	zcrLow     float64 // crossings per sample, lower bound
	zcrHigh    float64 // crossings per sample, upper bound
}{
	{floorRatio: 1.5, minEnergy: 80, zcrLow: 0.00, zcrHigh: 0.50},
	{floorRatio: 2.0, minEnergy: 120, zcrLow: 0.01, zcrHigh: 0.40},
	{floorRatio: 2.5, minEnergy: 180, zcrLow: 0.02, zcrHigh: 0.30},
	{floorRatio: 3.5, minEnergy: 260, zcrLow: 0.02, zcrHigh: 0.25},
}

const (
	// floorWindow is the number of recent frames the noise floor is tracked
	// over. 100 frames is 3 s at the default 30 ms frame duration.
	floorWindow = 100

	// initialFloor is the noise floor assumed before any frames have been
	// observed.
	initialFloor = 50.0
)

// Engine creates energy-based classifier sessions.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession creates a classifier session. Every supported rate and duration
// is accepted.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return &session{
		frameBytes:     cfg.FrameBytes(),
		aggressiveness: cfg.Aggressiveness,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu             sync.Mutex
	frameBytes     int
	aggressiveness int
	closed         bool

	// recent is a ring buffer of frame energies used for the noise floor.
	recent [floorWindow]float64
	head   int
	filled int
}

// Classify reports whether the frame clears the adaptive energy threshold
// within the speech zero-crossing band.
func (s *session) Classify(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return false, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	e := audio.Energy(frame)
	samples := len(frame) / 2
	zcr := float64(audio.ZeroCrossings(frame)) / float64(samples)

	lvl := levels[s.aggressiveness]
	voiced := e >= lvl.minEnergy &&
		e >= s.noiseFloor()*lvl.floorRatio &&
		zcr >= lvl.zcrLow && zcr <= lvl.zcrHigh

	s.recent[s.head] = e
	s.head = (s.head + 1) % floorWindow
	if s.filled < floorWindow {
		s.filled++
	}

	return voiced, nil
}

// noiseFloor returns the minimum frame energy over the tracked window, or the
// initial estimate when no frames have been observed yet. Must be called with
// s.mu held.
func (s *session) noiseFloor() float64 {
	if s.filled == 0 {
		return initialFloor
	}
	floor := s.recent[0]
	for _, e := range s.recent[1:s.filled] {
		if e < floor {
			floor = e
		}
	}
	return floor
}

func (s *session) SetAggressiveness(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 {
		level = 0
	} else if level > vad.MaxAggressiveness {
		level = vad.MaxAggressiveness
	}
	s.aggressiveness = level
}

// Reset discards the tracked noise floor.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.filled = 0
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ vad.SessionHandle = (*session)(nil)
