package config_test

import (
	"strings"
	"testing"

	"github.com/earshot-voice/earshot/internal/config"
)

func TestValidate_MissingSTTProvider(t *testing.T) {
	t.Parallel()
	yaml := `
gate:
  energy_threshold: 400
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing stt provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt.name") {
		t.Errorf("error should mention providers.stt.name, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
providers:
  stt:
    name: vosk
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  sample_rate: -1
gate:
  aggressiveness: 7
  attack_ms: -5
providers:
  stt:
    name: vosk
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"log_level", "sample_rate", "aggressiveness", "attack_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_QuorumExceedsWindow(t *testing.T) {
	t.Parallel()
	yaml := `
gate:
  history_frames: 6
  positive_frames_threshold: 9
providers:
  stt:
    name: vosk
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unreachable quorum, got nil")
	}
	if !strings.Contains(err.Error(), "never be met") {
		t.Errorf("error should explain the quorum is unreachable, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: "/etc/earshot/cert.pem"
providers:
  stt:
    name: vosk
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for partial TLS config, got nil")
	}
	if !strings.Contains(err.Error(), "cert_file and key_file") {
		t.Errorf("error should mention both TLS files, got: %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: vosk
gatte:
  energy_threshold: 400
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_UnusualValuesAreOnlyWarned(t *testing.T) {
	t.Parallel()
	// Off-spec rate, off-spec frame duration, out-of-range sensitivity:
	// the consuming layers snap or clamp these, so loading succeeds.
	yaml := `
audio:
  sample_rate: 44100
  frame_duration_ms: 25
gate:
  sensitivity: 140
providers:
  stt:
    name: vosk
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The clamp happens in Settings.
	s := cfg.Gate.Settings()
	want := cfg.Gate.Settings().WithSensitivity(100)
	if s != want {
		t.Errorf("settings = %+v, want clamped-to-100 %+v", s, want)
	}
}
