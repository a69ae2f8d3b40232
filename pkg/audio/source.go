// Package audio defines the capture-side interfaces and PCM16 helpers for
// Earshot.
//
// The central abstraction is [Source] — a blocking, frame-oriented reader over
// some capture backend (a microphone device, a network tap, a test fixture).
// The gating pipeline owns exactly one Source and reads it from a single
// worker goroutine, so implementations do not need to support concurrent
// Read calls.
//
// Optional capabilities are discovered by explicit interface query rather
// than runtime attribute probing: a Source that can report the direction the
// current speaker is facing additionally implements [DirectionProvider].
// Callers type-assert once at wiring time and keep the result.
//
// This package lives under pkg/ because external capture adapters are
// expected to implement [Source].
package audio

import "errors"

// ErrOverflow is returned by [Source.Read] when the capture backend dropped
// samples because the caller fell behind. It is a recoverable condition: the
// pipeline substitutes silence for the lost frame and keeps reading.
var ErrOverflow = errors.New("audio: input overflow")

// Source is a blocking, frame-oriented audio capture stream.
//
// A Source is used by a single goroutine; implementations are not required
// to be safe for concurrent use.
type Source interface {
	// Open acquires the underlying capture resource. It must be called
	// exactly once before the first Read.
	Open() error

	// Read blocks until frameSamples 16-bit mono samples are available and
	// returns them as little-endian PCM (2×frameSamples bytes). A Read must
	// not block longer than roughly one frame duration once audio is
	// flowing.
	//
	// Overflow is reported as [ErrOverflow]; any other error is treated by
	// the pipeline as a transient read failure and replaced with silence.
	Read(frameSamples int) ([]byte, error)

	// Close releases the capture resource. Close is called exactly once,
	// after the final Read, even when the read loop exits via a fault.
	Close() error
}

// DirectionProvider is an optional [Source] capability for hardware that
// reports a direction-of-arrival bearing (e.g. a USB microphone array).
//
// Direction returns the most recent bearing in degrees and true, or 0 and
// false when no bearing is currently available. Implementations must be safe
// to call from the pipeline worker while capture is active.
type DirectionProvider interface {
	Direction() (int, bool)
}

// SilenceFrame returns a zero-filled PCM16 frame of frameSamples samples.
// Used both to substitute failed reads and to flush the recognizer at
// utterance end.
func SilenceFrame(frameSamples int) []byte {
	return make([]byte, frameSamples*2)
}
