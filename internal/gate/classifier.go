package gate

import (
	"log/slog"

	"github.com/earshot-voice/earshot/pkg/audio"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// Classifier makes the per-frame speech decision: a cheap energy pre-gate in
// front of the configured classifier session. Frames below the energy
// threshold are non-speech without the session ever being consulted, which
// both saves the model invocation and keeps ambient hiss from triggering it.
type Classifier struct {
	frameBytes      int
	energyThreshold float64
	session         vad.SessionHandle
}

// NewClassifier wraps a classifier session. frameBytes is the only accepted
// frame length; session must be non-nil (a pipeline without a usable
// classifier bypasses gating entirely instead of constructing one).
func NewClassifier(frameBytes int, energyThreshold float64, session vad.SessionHandle) *Classifier {
	return &Classifier{
		frameBytes:      frameBytes,
		energyThreshold: energyThreshold,
		session:         session,
	}
}

// Classify decides speech/non-speech for one frame. ok is false when the
// frame has the wrong length and was dropped without producing a decision;
// every other outcome, including a classifier fault, yields a decision so the
// pipeline never stalls. Classifier faults are logged and count as
// non-speech.
func (c *Classifier) Classify(frame []byte) (speech, ok bool) {
	if len(frame) != c.frameBytes {
		slog.Warn("gate: dropping frame of unexpected size",
			"got_bytes", len(frame),
			"want_bytes", c.frameBytes,
		)
		return false, false
	}

	if audio.Energy(frame) < c.energyThreshold {
		return false, true
	}

	speech, err := c.session.Classify(frame)
	if err != nil {
		slog.Error("gate: classifier fault, treating frame as non-speech", "error", err)
		return false, true
	}
	return speech, true
}

// Retune adjusts the energy pre-gate and the session's aggressiveness in
// place, without dropping accumulated classifier state.
func (c *Classifier) Retune(energyThreshold float64, aggressiveness int) {
	c.energyThreshold = energyThreshold
	c.session.SetAggressiveness(aggressiveness)
}

// Reset clears the underlying session's detection state.
func (c *Classifier) Reset() {
	c.session.Reset()
}
