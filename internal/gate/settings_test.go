package gate

import "testing"

func TestWithSensitivityEndpoints(t *testing.T) {
	tests := []struct {
		sensitivity int
		energy      float64
		positive    int
		minSpeech   int
		aggressive  int
	}{
		{0, 1000, 8, 5, 3},
		{50, 550, 5, 3, 2},
		{100, 100, 2, 1, 0},
	}
	for _, tt := range tests {
		got := DefaultSettings().WithSensitivity(tt.sensitivity)
		if got.EnergyThreshold != tt.energy {
			t.Errorf("sensitivity %d: EnergyThreshold = %v, want %v", tt.sensitivity, got.EnergyThreshold, tt.energy)
		}
		if got.PositiveFramesThreshold != tt.positive {
			t.Errorf("sensitivity %d: PositiveFramesThreshold = %d, want %d", tt.sensitivity, got.PositiveFramesThreshold, tt.positive)
		}
		if got.MinSpeechFrames != tt.minSpeech {
			t.Errorf("sensitivity %d: MinSpeechFrames = %d, want %d", tt.sensitivity, got.MinSpeechFrames, tt.minSpeech)
		}
		if got.Aggressiveness != tt.aggressive {
			t.Errorf("sensitivity %d: Aggressiveness = %d, want %d", tt.sensitivity, got.Aggressiveness, tt.aggressive)
		}
	}
}

func TestWithSensitivityClamps(t *testing.T) {
	low := DefaultSettings().WithSensitivity(-20)
	if low != DefaultSettings().WithSensitivity(0) {
		t.Error("sensitivity below 0 not clamped to 0")
	}
	high := DefaultSettings().WithSensitivity(150)
	if high != DefaultSettings().WithSensitivity(100) {
		t.Error("sensitivity above 100 not clamped to 100")
	}
}

func TestWithSensitivityKeepsTimers(t *testing.T) {
	def := DefaultSettings()
	got := def.WithSensitivity(80)
	if got.Attack != def.Attack || got.Release != def.Release || got.Hang != def.Hang {
		t.Error("sensitivity mapping touched the gate timers")
	}
	if got.HistorySize != def.HistorySize {
		t.Error("sensitivity mapping touched the history capacity")
	}
}

func TestPreRollCapacity(t *testing.T) {
	tests := []struct {
		seconds      float64
		rate         int
		frameSamples int
		want         int
	}{
		{1.0, 16000, 480, 34},  // 33.3 frames rounds up
		{1.0, 16000, 1024, 16}, // 15.6 frames rounds up
		{0.45, 16000, 480, 15}, // exact
		{1.0, 16000, 0, 0},
	}
	for _, tt := range tests {
		s := DefaultSettings()
		s.PreRollSeconds = tt.seconds
		if got := s.PreRollCapacity(tt.rate, tt.frameSamples); got != tt.want {
			t.Errorf("PreRollCapacity(%v s, %d Hz, %d samples) = %d, want %d",
				tt.seconds, tt.rate, tt.frameSamples, got, tt.want)
		}
	}
}
