// Package mock provides a test double for the stt.Recognizer interface.
//
// Script per-frame outcomes with Steps; each AcceptFrame consumes one step.
// A step with Final=true arms the final text that Result will return. The
// mock records every frame so tests can assert exactly which audio reached
// the recognizer.
//
// Example:
//
//	rec := &mock.Recognizer{Steps: []mock.Step{
//	    {Partial: "hel"},
//	    {Partial: "hello"},
//	    {Final: true, Text: "hello world"},
//	}}
package mock

import (
	"sync"

	"github.com/earshot-voice/earshot/pkg/provider/stt"
)

// Step scripts the outcome of a single AcceptFrame call.
type Step struct {
	// Final is the isFinal value AcceptFrame reports.
	Final bool

	// Text becomes the pending final when Final is true.
	Text string

	// Partial becomes the current interim hypothesis when Final is false.
	Partial string

	// Err, if non-nil, is returned by AcceptFrame instead of a verdict.
	Err error
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Steps supplies per-AcceptFrame outcomes in order. Once exhausted,
	// AcceptFrame returns (false, nil) without touching state.
	Steps []Step

	// ResultErr, if non-nil, is returned by Result.
	ResultErr error

	// ResetErr, if non-nil, is returned by Reset.
	ResetErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Frames holds a copy of every frame passed to AcceptFrame, in order.
	Frames [][]byte

	// ResultCallCount is the number of Result calls.
	ResultCallCount int

	// ResetCallCount is the number of Reset calls.
	ResetCallCount int

	// CloseCallCount is the number of Close calls.
	CloseCallCount int

	final   string
	partial string
	closed  bool
}

// AcceptFrame records the frame and plays the next scripted step.
func (r *Recognizer) AcceptFrame(frame []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, stt.ErrClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.Frames = append(r.Frames, cp)

	if len(r.Steps) == 0 {
		return false, nil
	}
	step := r.Steps[0]
	r.Steps = r.Steps[1:]
	if step.Err != nil {
		return false, step.Err
	}
	if step.Final {
		r.final = step.Text
		r.partial = ""
		return true, nil
	}
	r.partial = step.Partial
	return false, nil
}

// Result returns the armed final text.
func (r *Recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResultCallCount++
	if r.closed {
		return "", stt.ErrClosed
	}
	if r.ResultErr != nil {
		return "", r.ResultErr
	}
	return r.final, nil
}

// PartialResult returns the current interim hypothesis.
func (r *Recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", stt.ErrClosed
	}
	return r.partial, nil
}

// Reset clears the armed final and partial.
func (r *Recognizer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResetCallCount++
	if r.closed {
		return stt.ErrClosed
	}
	if r.ResetErr != nil {
		return r.ResetErr
	}
	r.final = ""
	r.partial = ""
	return nil
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	r.closed = true
	return r.CloseErr
}

// FrameCount returns the number of AcceptFrame invocations. Thread-safe.
func (r *Recognizer) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Frames)
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
