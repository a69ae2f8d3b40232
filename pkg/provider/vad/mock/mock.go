// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script Classify verdicts and inspect the frames that were
// submitted.
//
// Example:
//
//	sess := &mock.Session{Verdict: true}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ClassifyCall records a single invocation of Session.Classify.
type ClassifyCall struct {
	// Frame is a copy of the bytes passed to Classify.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Verdict is returned by Classify when Script is empty.
	Verdict bool

	// Script, when non-empty, supplies per-call verdicts in order. Once
	// exhausted, Classify falls back to Verdict.
	Script []bool

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// Aggressiveness is the most recent value passed to SetAggressiveness.
	Aggressiveness int

	// SetAggressivenessCallCount is the number of SetAggressiveness calls.
	SetAggressivenessCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Classify records the call and returns the next scripted verdict (or the
// static Verdict) together with ClassifyErr.
func (s *Session) Classify(frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ClassifyCalls = append(s.ClassifyCalls, ClassifyCall{Frame: cp})

	verdict := s.Verdict
	if len(s.Script) > 0 {
		verdict = s.Script[0]
		s.Script = s.Script[1:]
	}
	return verdict, s.ClassifyErr
}

// SetAggressiveness records the new level.
func (s *Session) SetAggressiveness(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aggressiveness = level
	s.SetAggressivenessCallCount++
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ClassifyCallCount returns the number of Classify invocations. Thread-safe.
func (s *Session) ClassifyCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ClassifyCalls)
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
