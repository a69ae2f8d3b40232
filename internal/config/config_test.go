package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/earshot-voice/earshot/internal/config"
	"github.com/earshot-voice/earshot/internal/gate"
	"github.com/earshot-voice/earshot/pkg/audio"
	audiomock "github.com/earshot-voice/earshot/pkg/audio/mock"
	"github.com/earshot-voice/earshot/pkg/provider/stt"
	sttmock "github.com/earshot-voice/earshot/pkg/provider/stt/mock"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
	vadmock "github.com/earshot-voice/earshot/pkg/provider/vad/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info

audio:
  sample_rate: 16000
  frame_duration_ms: 30

gate:
  energy_threshold: 450
  positive_frames_threshold: 5
  min_speech_frames: 2
  history_frames: 10
  aggressiveness: 2
  attack_ms: 120
  release_ms: 800
  hang_ms: 250
  pre_roll_seconds: 0.5

providers:
  vad:
    name: silero
    model: "models/silero_vad.onnx"
  stt:
    name: vosk
    base_url: "ws://localhost:2700"
  stt_fallback:
    name: whisper
    model: "models/ggml-base.en.bin"
  audio:
    name: portaudio
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameDurationMs != 30 {
		t.Errorf("audio = %+v, want 16000/30", cfg.Audio)
	}
	if cfg.Providers.VAD.Name != "silero" {
		t.Errorf("vad provider = %q, want silero", cfg.Providers.VAD.Name)
	}
	if cfg.Providers.STT.BaseURL != "ws://localhost:2700" {
		t.Errorf("stt base_url = %q", cfg.Providers.STT.BaseURL)
	}
	if cfg.Providers.STTFallback.Name != "whisper" {
		t.Errorf("stt_fallback = %q, want whisper", cfg.Providers.STTFallback.Name)
	}
}

func TestGateConfig_SettingsDefaults(t *testing.T) {
	t.Parallel()
	var g config.GateConfig
	if got, want := g.Settings(), gate.DefaultSettings(); got != want {
		t.Errorf("zero GateConfig settings = %+v, want defaults %+v", got, want)
	}
	if !g.GateEnabled() {
		t.Error("gating disabled by default")
	}
	if !g.SmoothingEnabled() {
		t.Error("smoothing disabled by default")
	}
}

func TestGateConfig_SettingsOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Gate.Settings()
	if s.EnergyThreshold != 450 {
		t.Errorf("energy threshold = %v, want 450", s.EnergyThreshold)
	}
	if s.PositiveFramesThreshold != 5 || s.MinSpeechFrames != 2 || s.HistorySize != 10 {
		t.Errorf("quorums = %d/%d/%d, want 5/2/10",
			s.PositiveFramesThreshold, s.MinSpeechFrames, s.HistorySize)
	}
	if s.Aggressiveness != 2 {
		t.Errorf("aggressiveness = %d, want 2", s.Aggressiveness)
	}
	if s.Attack != 120*time.Millisecond || s.Release != 800*time.Millisecond || s.Hang != 250*time.Millisecond {
		t.Errorf("timers = %v/%v/%v, want 120ms/800ms/250ms", s.Attack, s.Release, s.Hang)
	}
	if s.PreRollSeconds != 0.5 {
		t.Errorf("pre-roll = %v, want 0.5", s.PreRollSeconds)
	}
}

func TestGateConfig_SensitivityOverridesDetectionKnobs(t *testing.T) {
	t.Parallel()
	yaml := `
gate:
  energy_threshold: 450
  sensitivity: 100
providers:
  stt:
    name: vosk
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Gate.Settings()
	want := gate.DefaultSettings()
	want.EnergyThreshold = 450
	want = want.WithSensitivity(100)
	if s != want {
		t.Errorf("settings = %+v, want sensitivity-derived %+v", s, want)
	}
	if s.EnergyThreshold != 100 {
		t.Errorf("energy threshold = %v, want 100 (sensitivity wins)", s.EnergyThreshold)
	}
}

func TestGateConfig_ExplicitZeroAggressiveness(t *testing.T) {
	t.Parallel()
	yaml := `
gate:
  aggressiveness: 0
providers:
  stt:
    name: vosk
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Gate.Settings().Aggressiveness; got != 0 {
		t.Errorf("aggressiveness = %d, want explicit 0", got)
	}
}

func TestAudioConfig_Defaults(t *testing.T) {
	t.Parallel()
	var a config.AudioConfig
	if a.SampleRateOrDefault() != 16000 {
		t.Errorf("sample rate default = %d, want 16000", a.SampleRateOrDefault())
	}
	if a.FrameDurationOrDefault() != 30 {
		t.Errorf("frame duration default = %d, want 30", a.FrameDurationOrDefault())
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	r.RegisterVAD("mock", func(e config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})
	r.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Recognizer, error) {
		return &sttmock.Recognizer{}, nil
	})
	r.RegisterAudio("mock", func(e config.ProviderEntry) (audio.Source, error) {
		return &audiomock.Source{}, nil
	})

	if _, err := r.CreateVAD(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := r.CreateSTT(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := r.CreateAudio(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateAudio: %v", err)
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateSTT(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
