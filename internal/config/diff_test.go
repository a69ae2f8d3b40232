package config_test

import (
	"testing"

	"github.com/earshot-voice/earshot/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":9090",
			LogLevel:   config.LogInfo,
		},
		Audio: config.AudioConfig{SampleRate: 16000, FrameDurationMs: 30},
		Gate:  config.GateConfig{EnergyThreshold: 500},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "vosk", BaseURL: "ws://localhost:2700"},
			VAD: config.ProviderEntry{Name: "energy"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.GateChanged || !d.HotReloadable() {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if !d.HotReloadable() {
		t.Error("log level change should be hot-reloadable")
	}
}

func TestDiff_GateSettings(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	sens := 70
	new.Gate.Sensitivity = &sens

	d := config.Diff(old, new)
	if !d.GateChanged {
		t.Error("gate change not detected")
	}
	if !d.HotReloadable() {
		t.Error("gate change should be hot-reloadable")
	}
}

func TestDiff_RestartSections(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Audio.FrameDurationMs = 20
	new.Providers.STT.BaseURL = "ws://other:2700"

	d := config.Diff(old, new)
	if d.HotReloadable() {
		t.Fatal("server/audio/provider changes should require restart")
	}
	want := map[string]bool{"server": true, "audio": true, "providers": true}
	for _, section := range d.RestartNeeded {
		if !want[section] {
			t.Errorf("unexpected restart section %q", section)
		}
		delete(want, section)
	}
	for section := range want {
		t.Errorf("missing restart section %q", section)
	}
}
