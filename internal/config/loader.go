package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":   {"energy", "silero"},
	"stt":   {"vosk", "whisper"},
	"audio": {"portaudio"},
}

// frameDurations are the frame lengths the classifier layer accepts without
// snapping.
var frameDurations = []int{10, 20, 30}

// sampleRates are the capture rates the classifier layer accepts without
// snapping.
var sampleRates = []int{8000, 16000, 32000, 48000}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Values that are merely unusual (an off-spec sample rate, an out-of-range
// sensitivity) are warned about and later snapped by the consuming layer
// rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio geometry. Negative values are nonsense; off-spec values are
	// snapped downstream, so only warn.
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate > 0 && !slices.Contains(sampleRates, cfg.Audio.SampleRate) {
		slog.Warn("unsupported sample rate, the classifier will snap it",
			"sample_rate_hz", cfg.Audio.SampleRate,
			"supported", sampleRates,
		)
	}
	if cfg.Audio.FrameDurationMs < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is negative", cfg.Audio.FrameDurationMs))
	} else if cfg.Audio.FrameDurationMs > 0 && !slices.Contains(frameDurations, cfg.Audio.FrameDurationMs) {
		slog.Warn("unsupported frame duration, the classifier will snap it",
			"frame_duration_ms", cfg.Audio.FrameDurationMs,
			"supported", frameDurations,
		)
	}

	// Gate thresholds.
	g := cfg.Gate
	if g.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("gate.energy_threshold %.1f is negative", g.EnergyThreshold))
	}
	if g.Aggressiveness != nil && (*g.Aggressiveness < 0 || *g.Aggressiveness > 3) {
		errs = append(errs, fmt.Errorf("gate.aggressiveness %d is out of range [0, 3]", *g.Aggressiveness))
	}
	if g.AttackMs < 0 || g.ReleaseMs < 0 || g.HangMs < 0 {
		errs = append(errs, errors.New("gate timers (attack_ms, release_ms, hang_ms) must not be negative"))
	}
	if g.PreRollSeconds < 0 {
		errs = append(errs, fmt.Errorf("gate.pre_roll_seconds %.2f is negative", g.PreRollSeconds))
	}
	if g.HistoryFrames > 0 && g.PositiveFramesThreshold > g.HistoryFrames {
		errs = append(errs, fmt.Errorf("gate.positive_frames_threshold %d exceeds gate.history_frames %d and could never be met",
			g.PositiveFramesThreshold, g.HistoryFrames))
	}
	if g.Sensitivity != nil && (*g.Sensitivity < 0 || *g.Sensitivity > 100) {
		slog.Warn("gate.sensitivity out of range, it will be clamped",
			"sensitivity", *g.Sensitivity,
		)
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.STTFallback.Name != "" && cfg.Providers.STTFallback.Name == cfg.Providers.STT.Name {
		slog.Warn("stt fallback is the same backend as the primary; failover will not add redundancy",
			"name", cfg.Providers.STT.Name,
		)
	}
	if cfg.Gate.GateEnabled() && cfg.Providers.VAD.Name == "" {
		slog.Warn("gating is enabled but providers.vad is not configured; the gate will fail open")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
