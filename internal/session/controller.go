// Package session drives the real-time pipeline: one worker goroutine
// executing the continuous read -> classify -> smooth -> gate -> route loop
// against an audio source, a speech classifier, and a recognizer.
//
// The worker is the only goroutine that touches the gate state, the pre-roll
// buffer, or the recognizer. Control operations (pause, resume, sensitivity,
// reconfigure, reset) are posted on a command channel and applied at most
// once per loop iteration, so no shared mutable state crosses goroutines.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/earshot-voice/earshot/internal/gate"
	"github.com/earshot-voice/earshot/internal/observe"
	"github.com/earshot-voice/earshot/pkg/audio"
	"github.com/earshot-voice/earshot/pkg/provider/stt"
	"github.com/earshot-voice/earshot/pkg/provider/vad"
)

// flushFrames is how many zero-filled frames are pushed into the recognizer
// on gate close to force it to commit a final result.
const flushFrames = 3

// Result is one recognition outcome delivered to the sink.
type Result struct {
	// Text is the recognized text, never empty.
	Text string

	// Final reports whether this is a committed result or an interim
	// hypothesis.
	Final bool

	// Direction is the reported bearing of the speaker in degrees, when the
	// audio source can provide one.
	Direction *int
}

// Sink receives results synchronously on the worker goroutine. It must not
// block; hand off to a queue if the consumer can be slow.
type Sink func(Result)

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdSensitivity
	cmdReconfigure
	cmdReset
)

type command struct {
	kind        commandKind
	sensitivity int
	settings    gate.Settings
}

// Config assembles a Controller.
type Config struct {
	// Source delivers PCM frames. Required.
	Source audio.Source

	// Recognizer consumes routed frames. Required.
	Recognizer stt.Recognizer

	// Classifier is the speech/non-speech session. When nil the gate fails
	// open: every frame is routed to the recognizer ungated.
	Classifier vad.SessionHandle

	// Settings tunes the gating pipeline. Zero value gets DefaultSettings.
	Settings gate.Settings

	// SampleRate and FrameDurationMs define the frame geometry.
	SampleRate      int
	FrameDurationMs int

	// SmoothingDisabled turns off the hang-window latch in the decision
	// smoother. The dual quorum still applies.
	SmoothingDisabled bool

	// Sink receives partial and final results. Required.
	Sink Sink

	// Metrics records pipeline telemetry. When nil, DefaultMetrics is used.
	Metrics *observe.Metrics

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// Controller owns the pipeline worker loop.
type Controller struct {
	src audio.Source
	rec stt.Recognizer

	classifier *gate.Classifier
	history    *gate.History
	machine    *gate.Machine
	preroll    *gate.PreRoll

	settings     gate.Settings
	sampleRate   int
	frameSamples int
	frameBytes   int

	sink    Sink
	metrics *observe.Metrics
	now     func() time.Time

	commands chan command

	paused   bool
	freshRec bool
	openedAt time.Time

	// utterSpan covers one gate-open interval; nil while the gate is closed.
	utterSpan trace.Span

	// Health signals, read by probe handlers outside the worker goroutine.
	lastRead atomic.Int64 // unix nanos of the last successful source read
	recOK    atomic.Bool  // last recognizer interaction succeeded
}

// New assembles a Controller. It does not open the source; Run does.
func New(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, errors.New("session: Source is required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("session: Recognizer is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("session: Sink is required")
	}
	if cfg.Settings == (gate.Settings{}) {
		cfg.Settings = gate.DefaultSettings()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameDurationMs <= 0 {
		cfg.FrameDurationMs = 30
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	frameSamples := audio.FrameSamples(cfg.SampleRate, cfg.FrameDurationMs)
	c := &Controller{
		src:          cfg.Source,
		rec:          cfg.Recognizer,
		settings:     cfg.Settings,
		sampleRate:   cfg.SampleRate,
		frameSamples: frameSamples,
		frameBytes:   frameSamples * 2,
		sink:         cfg.Sink,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		commands:     make(chan command, 16),
		freshRec:     true,
	}
	c.recOK.Store(true)

	if cfg.Classifier != nil {
		c.classifier = gate.NewClassifier(c.frameBytes, cfg.Settings.EnergyThreshold, cfg.Classifier)
		c.history = gate.NewHistory(
			cfg.Settings.HistorySize,
			cfg.Settings.PositiveFramesThreshold,
			cfg.Settings.MinSpeechFrames,
			cfg.Settings.Hang,
		)
		if cfg.SmoothingDisabled {
			c.history.SetSmoothing(false)
		}
		c.machine = gate.NewMachine(cfg.Settings.Attack, cfg.Settings.Release)
		c.preroll = gate.NewPreRoll(cfg.Settings.PreRollCapacity(cfg.SampleRate, frameSamples))
	} else {
		slog.Warn("session: no speech classifier available, gating disabled, routing all audio")
	}

	return c, nil
}

// Gated reports whether speech gating is active.
func (c *Controller) Gated() bool {
	return c.classifier != nil
}

// LastFrameAt returns the wall-clock time of the last successful source read.
// ok is false before the first frame arrives. Safe to call from any
// goroutine.
func (c *Controller) LastFrameAt() (time.Time, bool) {
	nanos := c.lastRead.Load()
	if nanos == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// RecognizerHealthy reports whether the most recent recognizer interaction
// succeeded. Safe to call from any goroutine.
func (c *Controller) RecognizerHealthy() bool {
	return c.recOK.Load()
}

// Pause stops routing audio to the recognizer. Frames keep flowing through
// the gate logic so the gate state stays truthful.
func (c *Controller) Pause() {
	c.commands <- command{kind: cmdPause}
}

// Resume restarts transcription with a clean recognizer state.
func (c *Controller) Resume() {
	c.commands <- command{kind: cmdResume}
}

// SetSensitivity applies the 0-100 sensitivity knob to the detection
// thresholds.
func (c *Controller) SetSensitivity(sensitivity int) {
	c.commands <- command{kind: cmdSensitivity, sensitivity: sensitivity}
}

// Reconfigure applies a full settings replacement, e.g. from a config reload.
func (c *Controller) Reconfigure(s gate.Settings) {
	c.commands <- command{kind: cmdReconfigure, settings: s}
}

// Reset clears all detection state: history, gate, pre-roll, classifier, and
// recognizer.
func (c *Controller) Reset() {
	c.commands <- command{kind: cmdReset}
}

// Run executes the worker loop until ctx is cancelled. The audio source is
// opened on entry and closed on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.src.Open(); err != nil {
		return fmt.Errorf("session: open audio source: %w", err)
	}
	defer func() {
		if c.utterSpan != nil {
			c.utterSpan.End()
			c.utterSpan = nil
		}
		if err := c.src.Close(); err != nil {
			slog.Error("session: closing audio source", "error", err)
		}
	}()

	slog.Info("session: pipeline started",
		"gated", c.Gated(),
		"sample_rate_hz", c.sampleRate,
		"frame_samples", c.frameSamples,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			c.apply(ctx, cmd)
		default:
		}

		frame, readErr := c.src.Read(c.frameSamples)
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readErr, io.EOF) {
				// Source exhausted: a clean end of stream, not a fault.
				slog.Info("session: audio source exhausted, stopping")
				return nil
			}
			// Substitute silence so gate timing and recognizer cadence
			// never stall.
			slog.Warn("session: audio read failed, substituting silence", "error", readErr)
			c.metrics.RecordPipelineError(ctx, "read")
			frame = audio.SilenceFrame(c.frameSamples)
		} else {
			c.lastRead.Store(time.Now().UnixNano())
		}

		if c.Gated() {
			c.stepGated(ctx, frame)
		} else {
			c.stepUngated(ctx, frame)
		}
	}
}

// stepGated routes one frame through classification, smoothing, and the gate.
func (c *Controller) stepGated(ctx context.Context, frame []byte) {
	speech, ok := c.classifier.Classify(frame)
	if !ok {
		// Malformed frame: dropped, no decision, state untouched.
		c.metrics.RecordFrame(ctx, "discarded")
		return
	}

	now := c.now()
	smoothed := c.history.Process(speech, now)

	switch c.machine.Update(smoothed, now) {
	case gate.TransitionOpened:
		c.metrics.RecordGateTransition(ctx, true)
		c.openedAt = now
		_, c.utterSpan = observe.StartSpan(ctx, "utterance")
		c.onOpen(ctx)
	case gate.TransitionClosed:
		c.metrics.RecordGateTransition(ctx, false)
		c.metrics.UtteranceDuration.Record(ctx, now.Sub(c.openedAt).Seconds())
		c.onClose(ctx)
		if c.utterSpan != nil {
			c.utterSpan.End()
			c.utterSpan = nil
		}
	}

	if c.machine.State() == gate.Open {
		if c.paused {
			// Hold the recognizer reset so no stale partial survives.
			c.holdReset(ctx)
			c.metrics.RecordFrame(ctx, "discarded")
			return
		}
		c.feed(ctx, frame)
		c.metrics.RecordFrame(ctx, "recognizer")
		return
	}

	if !c.paused {
		c.preroll.Push(frame)
		c.metrics.RecordFrame(ctx, "preroll")
		return
	}
	c.metrics.RecordFrame(ctx, "discarded")
}

// stepUngated routes every frame straight to the recognizer (gate failed
// open).
func (c *Controller) stepUngated(ctx context.Context, frame []byte) {
	if c.paused {
		c.holdReset(ctx)
		c.metrics.RecordFrame(ctx, "discarded")
		return
	}
	c.feed(ctx, frame)
	c.metrics.RecordFrame(ctx, "recognizer")
}

// onOpen replays the pre-roll buffer into the recognizer ahead of the live
// frames of the new utterance.
func (c *Controller) onOpen(ctx context.Context) {
	if c.paused {
		c.preroll.Drain()
		return
	}
	if !c.freshRec {
		c.resetRecognizer(ctx)
	}
	buffered := c.preroll.Drain()
	for _, f := range buffered {
		if _, err := c.rec.AcceptFrame(f); err != nil {
			slog.Error("session: recognizer rejected pre-roll frame", "error", err)
			c.metrics.RecordPipelineError(ctx, "recognize")
			break
		}
		c.freshRec = false
	}
	slog.Debug("session: gate opened", "preroll_frames", len(buffered))
}

// onClose flushes the recognizer with synthetic silence, emits a final result
// when one comes back, and resets the recognizer for the next utterance.
func (c *Controller) onClose(ctx context.Context) {
	silence := audio.SilenceFrame(c.frameSamples)
	for i := 0; i < flushFrames; i++ {
		if _, err := c.rec.AcceptFrame(silence); err != nil {
			slog.Error("session: recognizer rejected flush frame", "error", err)
			c.metrics.RecordPipelineError(ctx, "recognize")
			break
		}
		c.freshRec = false
	}

	text, err := c.rec.Result()
	if err != nil {
		slog.Error("session: fetching final result on gate close", "error", err)
		c.metrics.RecordPipelineError(ctx, "recognize")
	} else if text != "" {
		c.emit(ctx, Result{Text: text, Final: true})
	}
	c.resetRecognizer(ctx)
	slog.Debug("session: gate closed")
}

// feed routes one live frame into the recognizer and emits whatever result it
// produces.
func (c *Controller) feed(ctx context.Context, frame []byte) {
	start := time.Now()
	final, err := c.rec.AcceptFrame(frame)
	c.metrics.RecognizerDuration.Record(ctx, time.Since(start).Seconds())
	c.recOK.Store(err == nil)
	if err != nil {
		slog.Error("session: recognizer rejected frame", "error", err)
		c.metrics.RecordPipelineError(ctx, "recognize")
		return
	}
	c.freshRec = false

	if final {
		text, err := c.rec.Result()
		if err != nil {
			slog.Error("session: fetching final result", "error", err)
			c.metrics.RecordPipelineError(ctx, "recognize")
			return
		}
		if text != "" {
			c.emit(ctx, Result{Text: text, Final: true})
		}
		c.resetRecognizer(ctx)
		return
	}

	partial, err := c.rec.PartialResult()
	if err != nil {
		slog.Error("session: fetching partial result", "error", err)
		c.metrics.RecordPipelineError(ctx, "recognize")
		return
	}
	if partial != "" {
		c.emit(ctx, Result{Text: partial, Final: false})
	}
}

// holdReset keeps the recognizer in a fresh state while paused.
func (c *Controller) holdReset(ctx context.Context) {
	if c.freshRec {
		return
	}
	c.resetRecognizer(ctx)
}

func (c *Controller) resetRecognizer(ctx context.Context) {
	err := c.rec.Reset()
	c.recOK.Store(err == nil)
	if err != nil {
		slog.Error("session: recognizer reset failed", "error", err)
		c.metrics.RecordPipelineError(ctx, "recognize")
		return
	}
	c.freshRec = true
}

// emit delivers one result to the sink, attaching the speaker bearing when
// the source can report one.
func (c *Controller) emit(ctx context.Context, r Result) {
	r.Direction = c.direction()
	kind := "partial"
	if r.Final {
		kind = "final"
	}
	c.metrics.RecordUtterance(ctx, kind)
	c.sink(r)
}

// direction queries the optional DirectionProvider capability of the source.
func (c *Controller) direction() *int {
	dp, ok := c.src.(audio.DirectionProvider)
	if !ok {
		return nil
	}
	bearing, ok := dp.Direction()
	if !ok {
		return nil
	}
	return &bearing
}

// apply executes one control command on the worker goroutine.
func (c *Controller) apply(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdPause:
		if !c.paused {
			c.paused = true
			slog.Info("session: paused")
		}
	case cmdResume:
		if c.paused {
			c.paused = false
			slog.Info("session: resumed")
		}
	case cmdSensitivity:
		c.settings = c.settings.WithSensitivity(cmd.sensitivity)
		c.applyDetectionSettings()
		slog.Info("session: sensitivity applied",
			"sensitivity", cmd.sensitivity,
			"energy_threshold", c.settings.EnergyThreshold,
			"positive_frames", c.settings.PositiveFramesThreshold,
			"min_speech_frames", c.settings.MinSpeechFrames,
			"aggressiveness", c.settings.Aggressiveness,
		)
	case cmdReconfigure:
		c.settings = cmd.settings
		c.applyDetectionSettings()
		if c.machine != nil {
			c.machine.SetTimers(c.settings.Attack, c.settings.Release)
		}
		slog.Info("session: settings reconfigured")
	case cmdReset:
		if c.history != nil {
			c.history.Reset()
		}
		if c.machine != nil {
			c.machine.Reset()
		}
		if c.preroll != nil {
			c.preroll.Drain()
		}
		if c.classifier != nil {
			c.classifier.Reset()
		}
		c.resetRecognizer(ctx)
		slog.Info("session: detection state reset")
	}
}

// applyDetectionSettings pushes the current threshold settings into the
// classifier and history in place.
func (c *Controller) applyDetectionSettings() {
	if c.classifier != nil {
		c.classifier.Retune(c.settings.EnergyThreshold, c.settings.Aggressiveness)
	}
	if c.history != nil {
		c.history.SetThresholds(c.settings.PositiveFramesThreshold, c.settings.MinSpeechFrames)
	}
}
