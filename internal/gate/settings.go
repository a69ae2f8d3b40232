package gate

import "time"

// Settings holds every tunable of the gating pipeline. The zero value is not
// useful; start from DefaultSettings.
type Settings struct {
	// EnergyThreshold is the mean absolute sample magnitude below which a
	// frame is classified as non-speech without consulting the classifier.
	EnergyThreshold float64

	// PositiveFramesThreshold is the minimum number of speech-positive
	// classifications inside the history window for a smoothed speech
	// decision.
	PositiveFramesThreshold int

	// MinSpeechFrames is the minimum consecutive-positive run length for a
	// smoothed speech decision.
	MinSpeechFrames int

	// HistorySize is the capacity of the classification history window.
	HistorySize int

	// Aggressiveness is the classifier's non-speech filtering level, 0-3.
	Aggressiveness int

	// Attack is how long the smoothed decision must stay true before the
	// gate opens.
	Attack time.Duration

	// Release is how long the smoothed decision must stay false before the
	// gate closes. Deliberately much longer than Attack so intra-sentence
	// pauses do not truncate an utterance.
	Release time.Duration

	// Hang is the latch window after the last confirmed speech during which
	// the smoothed decision stays true.
	Hang time.Duration

	// PreRollSeconds is how much pre-speech audio is replayed into the
	// recognizer when the gate opens.
	PreRollSeconds float64
}

// DefaultSettings returns the tuning that ships with the pipeline.
func DefaultSettings() Settings {
	return Settings{
		EnergyThreshold:         500,
		PositiveFramesThreshold: 4,
		MinSpeechFrames:         3,
		HistorySize:             12,
		Aggressiveness:          3,
		Attack:                  100 * time.Millisecond,
		Release:                 900 * time.Millisecond,
		Hang:                    300 * time.Millisecond,
		PreRollSeconds:          1.0,
	}
}

// WithSensitivity maps a single 0-100 knob onto the detection thresholds and
// returns the adjusted settings. 0 is least sensitive (every threshold at its
// strictest), 100 most sensitive. Values outside the range are clamped.
// Timing parameters (Attack, Release, Hang) are not affected.
func (s Settings) WithSensitivity(sensitivity int) Settings {
	if sensitivity < 0 {
		sensitivity = 0
	} else if sensitivity > 100 {
		sensitivity = 100
	}

	s.EnergyThreshold = float64(1000 - sensitivity*9)
	s.PositiveFramesThreshold = int(8 - float64(sensitivity)/100*6)
	s.MinSpeechFrames = int(5 - float64(sensitivity)/100*4)
	s.Aggressiveness = 3 - int(float64(sensitivity)/100*3)
	return s
}

// PreRollCapacity returns the pre-roll buffer capacity in frames:
// ceil(PreRollSeconds x sampleRate / frameSamples).
func (s Settings) PreRollCapacity(sampleRate, frameSamples int) int {
	if frameSamples <= 0 {
		return 0
	}
	samples := s.PreRollSeconds * float64(sampleRate)
	frames := int(samples) / frameSamples
	if float64(frames*frameSamples) < samples {
		frames++
	}
	return frames
}
