package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain checkers for the capture pipeline. They read lock-free signals
// exposed by the pipeline worker, so probing never contends with the audio
// loop.

// AudioSource reports ready while frames keep arriving. lastFrame is
// typically Controller.LastFrameAt; the check fails before the first frame
// and whenever the most recent one is older than staleAfter.
func AudioSource(lastFrame func() (time.Time, bool), staleAfter time.Duration) Checker {
	return Checker{
		Name: "audio_source",
		Check: func(ctx context.Context) error {
			last, ok := lastFrame()
			if !ok {
				return errors.New("no audio frames received yet")
			}
			if age := time.Since(last); age > staleAfter {
				return fmt.Errorf("last audio frame is %s old", age.Round(time.Millisecond))
			}
			return nil
		},
	}
}

// Classifier reports whether speech gating came up as configured. A pipeline
// that intentionally runs ungated passes; one that wanted gating but fell
// open because the classifier could not be built fails.
func Classifier(requested bool, gated func() bool) Checker {
	return Checker{
		Name: "classifier",
		Check: func(ctx context.Context) error {
			if requested && !gated() {
				return errors.New("classifier unavailable, running fail-open")
			}
			return nil
		},
	}
}

// Recognizer reports whether the most recent recognizer interaction
// succeeded. healthy is typically Controller.RecognizerHealthy.
func Recognizer(healthy func() bool) Checker {
	return Checker{
		Name: "recognizer",
		Check: func(ctx context.Context) error {
			if !healthy() {
				return errors.New("last recognizer interaction failed")
			}
			return nil
		},
	}
}
