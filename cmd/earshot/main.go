// Command earshot is the speech-gating transcription pipeline. It captures
// microphone audio, gates it through a voice-activity classifier, streams
// speech into a recognizer, and speaks a line-delimited JSON protocol with
// its host process: commands on stdin, recognition events on stdout.
//
// Everything diagnostic goes to stderr; stdout carries nothing but protocol
// events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/earshot-voice/earshot/internal/app"
	"github.com/earshot-voice/earshot/internal/config"
	"github.com/earshot-voice/earshot/internal/observe"
	"github.com/earshot-voice/earshot/pkg/audio"
	paudio "github.com/earshot-voice/earshot/pkg/audio/portaudio"
	"github.com/earshot-voice/earshot/pkg/provider/stt"
	"github.com/earshot-voice/earshot/pkg/provider/stt/vosk"
	"github.com/earshot-voice/earshot/pkg/provider/stt/whisper"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
	"github.com/earshot-voice/earshot/pkg/provider/vad/energy"
	"github.com/earshot-voice/earshot/pkg/provider/vad/silero"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Logs go to stderr; stdout is reserved for the event protocol. The level
	// var stays adjustable so config reloads can retune verbosity.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("earshot starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"stt", cfg.Providers.STT.Name,
		"stt_fallback", cfg.Providers.STTFallback.Name,
		"vad", cfg.Providers.VAD.Name,
		"audio", cfg.Providers.Audio.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "earshot"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, cfg, reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.HandleConfigChange)
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("pipeline ready — send {\"STT\": ...} commands on stdin")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the backend
// from the real implementation packages. ctx bounds the lifetime of
// network-backed providers (the vosk connection re-dials under it).
func registerBuiltinProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) {
	sampleRate := cfg.Audio.SampleRateOrDefault()

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterVAD("silero", func(entry config.ProviderEntry) (vad.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		if modelPath == "" {
			return nil, errors.New("silero provider requires a model path")
		}
		return silero.New(modelPath), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		opts := []vosk.Option{vosk.WithSampleRate(sampleRate)}
		if phrases := optStrings(entry.Options, "phrases"); len(phrases) > 0 {
			opts = append(opts, vosk.WithPhrases(phrases))
		}
		return vosk.Dial(ctx, entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		opts := []whisper.Option{whisper.WithSampleRate(sampleRate)}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.Model, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (audio.Source, error) {
		return paudio.New(sampleRate)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct. The recognizer and the audio
// source are load-bearing; the classifier and the fallback recognizer degrade
// to warnings.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			slog.Warn("vad provider unavailable, pipeline will run ungated", "name", name, "err", err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	name := cfg.Providers.STT.Name
	p, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", name, err)
	}
	ps.STT = p
	slog.Info("provider created", "kind", "stt", "name", name)

	if name := cfg.Providers.STTFallback.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STTFallback)
		if err != nil {
			slog.Warn("fallback stt provider unavailable, continuing without failover", "name", name, "err", err)
		} else {
			ps.STTFallback = p
			slog.Info("provider created", "kind", "stt_fallback", "name", name)
		}
	}

	audioEntry := cfg.Providers.Audio
	if audioEntry.Name == "" {
		audioEntry.Name = "portaudio"
	}
	src, err := reg.CreateAudio(audioEntry)
	if err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", audioEntry.Name, err)
	}
	ps.Audio = src
	slog.Info("provider created", "kind", "audio", "name", audioEntry.Name)

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a list of strings from a provider Options map. YAML
// decodes sequences as []any, so each element is converted individually.
func optStrings(opts map[string]any, key string) []string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
