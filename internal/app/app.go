// Package app wires all Earshot subsystems into a running process.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context is cancelled or stdin
// closes, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithCommandInput,
// WithEventOutput, etc.). When an option is not provided, New wires the real
// thing: stdin, stdout, and the providers populated by main via the config
// registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot-voice/earshot/internal/config"
	"github.com/earshot-voice/earshot/internal/control"
	"github.com/earshot-voice/earshot/internal/health"
	"github.com/earshot-voice/earshot/internal/observe"
	"github.com/earshot-voice/earshot/internal/resilience"
	"github.com/earshot-voice/earshot/internal/session"
	"github.com/earshot-voice/earshot/pkg/audio"
	"github.com/earshot-voice/earshot/pkg/provider/stt"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// audioStaleAfter is how long the admin readiness probe tolerates no frame
// arriving before reporting the capture path unhealthy.
const audioStaleAfter = 3 * time.Second

// adminShutdownTimeout bounds the graceful drain of the admin HTTP server.
const adminShutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	// VAD builds classifier sessions. Nil runs the pipeline ungated.
	VAD vad.Engine

	// STT is the primary recognizer. Required.
	STT stt.Recognizer

	// STTFallback, when non-nil, serves utterances while the primary's
	// circuit breaker is open.
	STTFallback stt.Recognizer

	// Audio is the capture source. Required.
	Audio audio.Source
}

// App owns all subsystem lifetimes and orchestrates the capture pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	emitter    *control.Emitter
	reader     *control.Reader
	classifier vad.SessionHandle
	recognizer stt.Recognizer
	controller *session.Controller
	admin      *http.Server

	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	// Test injection points; default to stdin/stdout.
	commandInput io.Reader
	eventOutput  io.Writer

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCommandInput replaces stdin as the command stream.
func WithCommandInput(r io.Reader) Option {
	return func(a *App) { a.commandInput = r }
}

// WithEventOutput replaces stdout as the event stream.
func WithEventOutput(w io.Writer) Option {
	return func(a *App) { a.eventOutput = w }
}

// WithMetrics injects a metrics set instead of using the global defaults.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the App the level variable backing the process
// logger, so hot config reloads can retune verbosity in place.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
//
// New performs all initialisation synchronously: classifier session,
// recognizer failover chain, pipeline controller, and the admin HTTP server.
// The audio source itself is not opened until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:          cfg,
		providers:    providers,
		commandInput: os.Stdin,
		eventOutput:  os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Event emitter + command reader ────────────────────────────────
	a.emitter = control.NewEmitter(a.eventOutput)

	// ── 2. Speech classifier ─────────────────────────────────────────────
	a.initClassifier()

	// ── 3. Recognizer chain ──────────────────────────────────────────────
	if err := a.initRecognizer(); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 4. Pipeline controller ───────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.reader = control.NewReader(a.commandInput, a.emitter, a.controller)

	// ── 5. Admin HTTP server ─────────────────────────────────────────────
	a.initAdmin()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initClassifier builds the classifier session when gating is requested. Any
// failure here degrades to an ungated pipeline rather than aborting startup.
func (a *App) initClassifier() {
	if !a.cfg.Gate.GateEnabled() {
		slog.Info("speech gating disabled by config")
		return
	}
	if a.providers.VAD == nil {
		slog.Warn("gating requested but no vad provider configured, running ungated")
		return
	}

	settings := a.cfg.Gate.Settings()
	vadCfg := vad.NormalizeConfig(vad.Config{
		SampleRate:      a.cfg.Audio.SampleRateOrDefault(),
		FrameDurationMs: a.cfg.Audio.FrameDurationOrDefault(),
		Aggressiveness:  settings.Aggressiveness,
	})

	sess, err := a.providers.VAD.NewSession(vadCfg)
	if err != nil {
		slog.Warn("classifier session failed to start, running ungated", "error", err)
		return
	}
	a.classifier = sess
	a.closers = append(a.closers, sess.Close)
}

// initRecognizer wires the primary recognizer, wrapping it in a failover
// group when a fallback backend is configured.
func (a *App) initRecognizer() error {
	if a.providers.STT == nil {
		return errors.New("an stt provider is required")
	}

	if a.providers.STTFallback == nil {
		a.recognizer = a.providers.STT
		a.closers = append(a.closers, a.providers.STT.Close)
		return nil
	}

	fb := resilience.NewRecognizerFallback(a.providers.STT, a.cfg.Providers.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
	})
	fb.AddFallback(a.cfg.Providers.STTFallback.Name, a.providers.STTFallback)
	a.recognizer = fb
	a.closers = append(a.closers, fb.Close)

	slog.Info("recognizer failover enabled",
		"primary", a.cfg.Providers.STT.Name,
		"fallback", a.cfg.Providers.STTFallback.Name,
	)
	return nil
}

// initController assembles the pipeline worker around the wired providers.
func (a *App) initController() error {
	if a.providers.Audio == nil {
		return errors.New("an audio source is required")
	}

	ctrl, err := session.New(session.Config{
		Source:            a.providers.Audio,
		Recognizer:        a.recognizer,
		Classifier:        a.classifier,
		Settings:          a.cfg.Gate.Settings(),
		SampleRate:        a.cfg.Audio.SampleRateOrDefault(),
		FrameDurationMs:   a.cfg.Audio.FrameDurationOrDefault(),
		SmoothingDisabled: !a.cfg.Gate.SmoothingEnabled(),
		Sink:              control.NewSink(a.emitter),
		Metrics:           a.metrics,
	})
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

// initAdmin builds the metrics/health HTTP server. An empty listen_addr
// leaves the admin surface off entirely.
func (a *App) initAdmin() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	// Gating counts as "requested" only when a classifier backend exists;
	// a deliberately ungated deployment should stay ready.
	gateRequested := a.cfg.Gate.GateEnabled() && a.providers.VAD != nil
	checks := health.New(
		health.AudioSource(a.controller.LastFrameAt, audioStaleAfter),
		health.Classifier(gateRequested, a.controller.Gated),
		health.Recognizer(a.controller.RecognizerHealthy),
	)
	checks.Register(mux)

	a.admin = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline worker, the command reader, and the admin server,
// and blocks until ctx is cancelled or the command stream closes. A closed
// stdin is the host telling us to exit, so it shuts the whole process down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Pipeline worker. Owns the audio source for the duration.
	g.Go(func() error {
		return a.controller.Run(gctx)
	})

	// Command stream. Kept outside the group: a read blocked on stdin cannot
	// be interrupted, so shutdown must not wait on it.
	go func() {
		if err := a.reader.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("command reader failed", "error", err)
		}
		cancel()
	}()

	if a.admin != nil {
		g.Go(func() error {
			err := a.serveAdmin()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, drainCancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer drainCancel()
			return a.admin.Shutdown(drainCtx)
		})
	}

	slog.Info("earshot running",
		"gated", a.controller.Gated(),
		"admin_addr", a.cfg.Server.ListenAddr,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveAdmin starts the admin listener, with TLS when configured.
func (a *App) serveAdmin() error {
	if tls := a.cfg.Server.TLS; tls != nil {
		slog.Info("admin server listening", "addr", a.admin.Addr, "tls", true)
		return a.admin.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	slog.Info("admin server listening", "addr", a.admin.Addr)
	return a.admin.ListenAndServe()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// HandleConfigChange applies a validated config update to the running app.
// Wired as the config watcher callback by main. Hot-reloadable sections (log
// level, gate tuning) take effect immediately; anything else is logged as
// requiring a restart.
func (a *App) HandleConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level change ignored, no level var wired")
		}
	}

	if d.GateChanged {
		a.controller.Reconfigure(new.Gate.Settings())
		slog.Info("gate settings reloaded")
	}

	if !d.HotReloadable() {
		slog.Warn("config change requires a restart to take effect",
			"sections", d.RestartNeeded)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
