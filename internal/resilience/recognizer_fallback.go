package resilience

import (
	"errors"
	"log/slog"

	"github.com/earshot-voice/earshot/pkg/provider/stt"
)

// RecognizerFallback implements [stt.Recognizer] with automatic failover
// across multiple recognition backends. Each backend has its own circuit
// breaker.
//
// Recognizers are stateful, so routing is sticky: all calls land on the
// current backend until one fails, at which point the group switches to the
// next backend (resetting it first so no stale hypothesis leaks in) and the
// utterance continues there. Reset moves the cursor back to the primary, so
// every new utterance retries the preferred backend; while its breaker is
// still open the retry fast-fails and the fallback keeps serving.
type RecognizerFallback struct {
	group *FallbackGroup[stt.Recognizer]
}

// Compile-time interface assertion.
var _ stt.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred backend.
func NewRecognizerFallback(primary stt.Recognizer, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *RecognizerFallback) AddFallback(name string, rec stt.Recognizer) {
	f.group.AddFallback(name, rec)
}

// ActiveName returns the backend currently serving calls. Intended for health
// reporting.
func (f *RecognizerFallback) ActiveName() string {
	return f.group.ActiveName()
}

// resetOnSwitch clears the backend a failover is about to land on.
func resetOnSwitch(name string, rec stt.Recognizer) {
	if err := rec.Reset(); err != nil {
		slog.Warn("resetting recognizer on failover", "provider", name, "error", err)
	}
}

// AcceptFrame submits one frame to the active backend, failing over when it
// errors.
func (f *RecognizerFallback) AcceptFrame(frame []byte) (bool, error) {
	return ExecuteActiveWithResult(f.group, func(r stt.Recognizer) (bool, error) {
		return r.AcceptFrame(frame)
	}, resetOnSwitch)
}

// Result fetches the final hypothesis from the active backend. A failover
// here lands on a freshly reset backend, which reports an empty final.
func (f *RecognizerFallback) Result() (string, error) {
	return ExecuteActiveWithResult(f.group, func(r stt.Recognizer) (string, error) {
		return r.Result()
	}, resetOnSwitch)
}

// PartialResult fetches the interim hypothesis from the active backend.
func (f *RecognizerFallback) PartialResult() (string, error) {
	return ExecuteActiveWithResult(f.group, func(r stt.Recognizer) (string, error) {
		return r.PartialResult()
	}, resetOnSwitch)
}

// Reset clears the active backend and moves the cursor back to the primary
// for the next utterance.
func (f *RecognizerFallback) Reset() error {
	_, err := ExecuteActiveWithResult(f.group, func(r stt.Recognizer) (struct{}, error) {
		return struct{}{}, r.Reset()
	}, resetOnSwitch)
	f.group.ResetActive()
	return err
}

// Close closes every registered backend and joins their errors.
func (f *RecognizerFallback) Close() error {
	var errs []error
	f.group.Each(func(name string, rec stt.Recognizer) {
		if err := rec.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
