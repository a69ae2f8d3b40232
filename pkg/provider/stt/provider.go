// Package stt defines the Recognizer interface for streaming Speech-to-Text
// backends.
//
// A recognizer wraps a transcription engine (a Vosk server, a local
// whisper.cpp model, or a test double) behind a synchronous frame-at-a-time
// interface. The gating pipeline pushes one PCM frame per loop iteration and
// asks, in lock step, whether the engine has committed to a final result; the
// pull-style Result and PartialResult accessors keep the hot loop free of
// channel plumbing.
//
// A Recognizer is used by one goroutine at a time — the pipeline worker owns
// it. Implementations do not need internal locking beyond protecting their own
// connection state.
package stt

import "errors"

// ErrClosed is returned by recognizer methods after Close.
var ErrClosed = errors.New("stt: recognizer is closed")

// Recognizer is the abstraction over any streaming STT backend.
type Recognizer interface {
	// AcceptFrame delivers one frame of little-endian PCM16 mono audio and
	// reports whether the engine has finalized an utterance. After a true
	// return, Result yields the committed text until the next Reset.
	AcceptFrame(frame []byte) (bool, error)

	// Result returns the text of the finalized utterance. When no utterance
	// has been finalized yet it forces finalization of whatever audio the
	// engine has buffered (possibly yielding an empty string).
	Result() (string, error)

	// PartialResult returns the engine's current interim hypothesis, which
	// may be empty. Partials are advisory and may be revised by the final.
	PartialResult() (string, error)

	// Reset clears the engine's utterance state so the next AcceptFrame
	// starts a fresh utterance. It does not drop the connection or model.
	Reset() error

	// Close releases all resources. Calling Close more than once is safe and
	// returns nil.
	Close() error
}
