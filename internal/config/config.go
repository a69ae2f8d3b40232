// Package config provides the configuration schema, loader, provider
// registry, and hot-reload watcher for the Earshot pipeline.
package config

import (
	"log/slog"
	"time"

	"github.com/earshot-voice/earshot/internal/gate"
)

// LogLevel controls log verbosity for the Earshot process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level scale. Unrecognised values map to
// Info; Validate rejects them before they get here.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Earshot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Gate      GateConfig      `yaml:"gate"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds admin endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the admin HTTP server (metrics, health)
	// listens on (e.g., ":9090"). Empty disables the admin server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the admin server. When nil, plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig defines the capture frame geometry.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. Unusual rates are snapped to the
	// nearest supported rate by the classifier layer. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the frame length in milliseconds (10, 20, or 30).
	// Default: 30.
	FrameDurationMs int `yaml:"frame_duration_ms"`
}

// SampleRateOrDefault returns the configured sample rate, defaulting to 16000.
func (a AudioConfig) SampleRateOrDefault() int {
	if a.SampleRate <= 0 {
		return 16000
	}
	return a.SampleRate
}

// FrameDurationOrDefault returns the configured frame duration, defaulting to
// 30 ms.
func (a AudioConfig) FrameDurationOrDefault() int {
	if a.FrameDurationMs <= 0 {
		return 30
	}
	return a.FrameDurationMs
}

// GateConfig tunes the speech gate. Zero-valued fields fall back to the
// pipeline defaults; pointer fields distinguish "unset" from an explicit
// zero/false.
type GateConfig struct {
	// Enabled turns speech gating on or off. Default: true. When the
	// classifier cannot be built at runtime the gate fails open regardless.
	Enabled *bool `yaml:"enabled"`

	// EnergyThreshold is the mean-absolute-amplitude pre-gate below which a
	// frame is non-speech without consulting the classifier.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// PositiveFramesThreshold is the window quorum for a speech decision.
	PositiveFramesThreshold int `yaml:"positive_frames_threshold"`

	// MinSpeechFrames is the required consecutive-positive run.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// HistoryFrames is the smoothing window capacity.
	HistoryFrames int `yaml:"history_frames"`

	// Aggressiveness is the classifier strictness level, 0 (permissive) to 3
	// (strict). Default: 3.
	Aggressiveness *int `yaml:"aggressiveness"`

	// AttackMs is how long speech must persist before the gate opens.
	AttackMs int `yaml:"attack_ms"`

	// ReleaseMs is how long silence must persist before the gate closes.
	ReleaseMs int `yaml:"release_ms"`

	// HangMs is the latch window keeping the smoothed decision true across
	// micro-pauses.
	HangMs int `yaml:"hang_ms"`

	// PreRollSeconds sizes the buffer replayed into the recognizer on gate
	// open.
	PreRollSeconds float64 `yaml:"pre_roll_seconds"`

	// Smoothing toggles the hang-window latch. Default: true.
	Smoothing *bool `yaml:"smoothing"`

	// Sensitivity, when set (0-100), derives energy_threshold,
	// positive_frames_threshold, min_speech_frames, and aggressiveness from a
	// single knob, overriding those four fields.
	Sensitivity *int `yaml:"sensitivity"`
}

// GateEnabled reports whether gating is requested. Defaults to true.
func (g GateConfig) GateEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// SmoothingEnabled reports whether the hang latch is requested. Defaults to
// true.
func (g GateConfig) SmoothingEnabled() bool {
	return g.Smoothing == nil || *g.Smoothing
}

// Settings converts the YAML block into pipeline settings, applying defaults
// for unset fields and the sensitivity override last.
func (g GateConfig) Settings() gate.Settings {
	s := gate.DefaultSettings()
	if g.EnergyThreshold > 0 {
		s.EnergyThreshold = g.EnergyThreshold
	}
	if g.PositiveFramesThreshold > 0 {
		s.PositiveFramesThreshold = g.PositiveFramesThreshold
	}
	if g.MinSpeechFrames > 0 {
		s.MinSpeechFrames = g.MinSpeechFrames
	}
	if g.HistoryFrames > 0 {
		s.HistorySize = g.HistoryFrames
	}
	if g.Aggressiveness != nil {
		s.Aggressiveness = *g.Aggressiveness
	}
	if g.AttackMs > 0 {
		s.Attack = time.Duration(g.AttackMs) * time.Millisecond
	}
	if g.ReleaseMs > 0 {
		s.Release = time.Duration(g.ReleaseMs) * time.Millisecond
	}
	if g.HangMs > 0 {
		s.Hang = time.Duration(g.HangMs) * time.Millisecond
	}
	if g.PreRollSeconds > 0 {
		s.PreRollSeconds = g.PreRollSeconds
	}
	if g.Sensitivity != nil {
		s = s.WithSensitivity(*g.Sensitivity)
	}
	return s
}

// ProvidersConfig declares which implementation serves each pipeline stage.
// Each entry selects a named factory registered in the [Registry].
type ProvidersConfig struct {
	// VAD selects the speech classifier backend.
	VAD ProviderEntry `yaml:"vad"`

	// STT selects the primary recognizer backend.
	STT ProviderEntry `yaml:"stt"`

	// STTFallback optionally selects a secondary recognizer that serves when
	// the primary's circuit breaker is open.
	STTFallback ProviderEntry `yaml:"stt_fallback"`

	// Audio selects the capture backend.
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "vosk", "silero").
	Name string `yaml:"name"`

	// APIKey is the authentication key for hosted backends, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint (e.g., the vosk-server
	// WebSocket URL). Leave empty to use the built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the backend (a model file path for local
	// engines).
	Model string `yaml:"model"`

	// Options holds backend-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}
