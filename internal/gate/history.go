package gate

import "time"

// History debounces raw per-frame classifications into a stable speech bit.
//
// Two independent quorums must both hold for a speech decision: enough
// positives inside the sliding window AND a long-enough consecutive-positive
// run. The dual quorum rejects short transients such as claps, which break
// the consecutive run almost immediately even when a few frames individually
// look speech-like. Once speech is confirmed, the decision latches true for a
// hang window so micro-pauses inside normal speech cadence do not toggle the
// bit every frame.
//
// All methods take the timestamp explicitly so tests can drive a synthetic
// clock.
type History struct {
	capacity          int
	window            []bool
	head              int
	size              int
	positives         int
	consecutive       int
	positiveThreshold int
	minSpeech         int
	hang              time.Duration
	smoothing         bool

	lastSpeech    time.Time
	hasLastSpeech bool
}

// NewHistory creates a History with the given window capacity and quorum
// thresholds. The hang latch is enabled; use SetSmoothing to turn it off.
func NewHistory(capacity, positiveThreshold, minSpeech int, hang time.Duration) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		capacity:          capacity,
		window:            make([]bool, capacity),
		positiveThreshold: positiveThreshold,
		minSpeech:         minSpeech,
		hang:              hang,
		smoothing:         true,
	}
}

// Process pushes one classification and returns the smoothed speech decision
// as of now.
func (h *History) Process(speech bool, now time.Time) bool {
	// Slide the window, evicting the oldest entry when full.
	idx := (h.head + h.size) % h.capacity
	if h.size == h.capacity {
		if h.window[h.head] {
			h.positives--
		}
		h.head = (h.head + 1) % h.capacity
	} else {
		h.size++
	}
	h.window[idx] = speech
	if speech {
		h.positives++
		h.consecutive++
	} else {
		h.consecutive = 0
	}

	if h.positives >= h.positiveThreshold && h.consecutive >= h.minSpeech {
		h.lastSpeech = now
		h.hasLastSpeech = true
		return true
	}
	if h.smoothing && h.hasLastSpeech {
		if now.Sub(h.lastSpeech) <= h.hang {
			return true
		}
		h.hasLastSpeech = false
	}
	return false
}

// SetThresholds adjusts the two quorums in place without dropping the window.
func (h *History) SetThresholds(positiveThreshold, minSpeech int) {
	h.positiveThreshold = positiveThreshold
	h.minSpeech = minSpeech
}

// SetSmoothing enables or disables the hang-window latch.
func (h *History) SetSmoothing(enabled bool) {
	h.smoothing = enabled
}

// Reset clears the window, the consecutive run, and the hang latch.
func (h *History) Reset() {
	h.head = 0
	h.size = 0
	h.positives = 0
	h.consecutive = 0
	h.hasLastSpeech = false
}
