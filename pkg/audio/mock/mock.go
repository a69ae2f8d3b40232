// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to script the frames the pipeline reads and to inspect lifecycle
// calls. Frames are served in order; when the script is exhausted Read
// returns ExhaustedErr (io.EOF by default) so test loops terminate.
package mock

import (
	"io"
	"sync"

	"github.com/earshot-voice/earshot/pkg/audio"
)

// ReadResult scripts a single Read outcome.
type ReadResult struct {
	// Frame is the PCM returned by Read. Ignored when Err is non-nil.
	Frame []byte

	// Err, if non-nil, is returned instead of a frame.
	Err error
}

// Source is a mock implementation of audio.Source.
type Source struct {
	mu sync.Mutex

	// Script is the ordered list of Read outcomes.
	Script []ReadResult

	// ExhaustedErr is returned once the script runs out. Defaults to io.EOF.
	ExhaustedErr error

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// OpenCallCount is the number of times Open was called.
	OpenCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// ReadCallCount is the number of times Read was called.
	ReadCallCount int
}

// Open records the call and returns OpenErr.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCallCount++
	return s.OpenErr
}

// Read returns the next scripted outcome, or ExhaustedErr when the script is
// exhausted.
func (s *Source) Read(frameSamples int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCallCount++
	if len(s.Script) == 0 {
		if s.ExhaustedErr != nil {
			return nil, s.ExhaustedErr
		}
		return nil, io.EOF
	}
	next := s.Script[0]
	s.Script = s.Script[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return next.Frame, nil
}

// Close records the call and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Append adds frames to the end of the script, each as a successful Read.
func (s *Source) Append(frames ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range frames {
		s.Script = append(s.Script, ReadResult{Frame: f})
	}
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// DirectionalSource is a mock Source that additionally implements
// audio.DirectionProvider with a fixed bearing.
type DirectionalSource struct {
	Source

	// Bearing is returned by Direction.
	Bearing int

	// HasBearing controls the ok return of Direction.
	HasBearing bool
}

// Direction returns the configured bearing.
func (s *DirectionalSource) Direction() (int, bool) {
	return s.Bearing, s.HasBearing
}

// Ensure DirectionalSource implements the optional capability at compile time.
var _ audio.DirectionProvider = (*DirectionalSource)(nil)
