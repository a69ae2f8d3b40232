// Package control implements the line-delimited JSON protocol Earshot speaks
// with its host process: commands arrive on stdin, recognition events leave
// on stdout. Everything diagnostic goes to stderr via slog, so stdout stays a
// clean event stream.
//
// Commands are objects keyed by "STT":
//
//	{"STT": "pause"}
//	{"STT": "resume"}
//	{"STT": "sensitivity", "value": 70}
//	{"STT": "reset"}
//	{"STT": "send_message", "name": "status", "message": "ready"}
//
// Events are single-key objects, optionally carrying the speaker bearing:
//
//	{"confirmedText": "hello world", "direction": 90}
//	{"interimResult": "hello wo"}
//
// A malformed command line produces {"error": "..."} on stdout and the reader
// keeps going; an unknown verb is logged and skipped.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/earshot-voice/earshot/internal/session"
)

// Event keys on the outbound protocol.
const (
	keyFinal   = "confirmedText"
	keyPartial = "interimResult"
	keyError   = "error"
)

// Emitter serialises outbound protocol events onto a single writer. Safe for
// concurrent use; each event is one line.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter creates an Emitter writing to w (stdout in production).
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Final emits a committed transcription result.
func (e *Emitter) Final(text string, direction *int) {
	e.send(keyFinal, text, direction)
}

// Partial emits an interim hypothesis.
func (e *Emitter) Partial(text string, direction *int) {
	e.send(keyPartial, text, direction)
}

// Message emits an arbitrary single-key event, used by the send_message
// passthrough command.
func (e *Emitter) Message(name, value string) {
	e.send(name, value, nil)
}

// Error emits an error event. Used for protocol-level problems the host
// should see, not for internal faults (those go to stderr).
func (e *Emitter) Error(msg string) {
	e.send(keyError, msg, nil)
}

func (e *Emitter) send(key, value string, direction *int) {
	payload := map[string]any{key: value}
	if direction != nil {
		payload["direction"] = *direction
	}
	line, err := json.Marshal(payload)
	if err != nil {
		slog.Error("control: marshalling event", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "%s\n", line); err != nil {
		slog.Error("control: writing event", "error", err)
	}
}

// NewSink adapts an Emitter into a session.Sink, mapping final results to
// confirmedText events and partials to interimResult events.
func NewSink(e *Emitter) session.Sink {
	return func(r session.Result) {
		if r.Final {
			e.Final(r.Text, r.Direction)
			return
		}
		e.Partial(r.Text, r.Direction)
	}
}

// PipelineControls is the slice of the pipeline controller the command reader
// drives.
type PipelineControls interface {
	Pause()
	Resume()
	SetSensitivity(sensitivity int)
	Reset()
}

// rawCommand is the inbound wire shape.
type rawCommand struct {
	STT     string `json:"STT"`
	Value   *int   `json:"value"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Reader consumes the inbound command stream and drives the pipeline.
type Reader struct {
	in       io.Reader
	emit     *Emitter
	pipeline PipelineControls
}

// NewReader creates a Reader over in (stdin in production).
func NewReader(in io.Reader, emit *Emitter, pipeline PipelineControls) *Reader {
	return &Reader{in: in, emit: emit, pipeline: pipeline}
}

// Run reads commands until the input is exhausted or ctx is cancelled.
// A closed stdin is a normal shutdown signal and returns nil.
func (r *Reader) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.dispatch(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("control: reading command stream: %w", err)
	}
	slog.Info("control: command stream closed")
	return nil
}

// dispatch parses and executes one command line.
func (r *Reader) dispatch(line string) {
	if len(line) == 0 {
		return
	}

	var cmd rawCommand
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		slog.Warn("control: malformed command line", "error", err)
		r.emit.Error(err.Error())
		return
	}

	switch cmd.STT {
	case "pause":
		slog.Info("control: pause command")
		r.pipeline.Pause()
	case "resume":
		slog.Info("control: resume command")
		r.pipeline.Resume()
	case "sensitivity":
		if cmd.Value == nil {
			slog.Warn("control: sensitivity command without value")
			r.emit.Error("sensitivity command requires a value")
			return
		}
		slog.Info("control: sensitivity command", "value", *cmd.Value)
		r.pipeline.SetSensitivity(*cmd.Value)
	case "reset":
		slog.Info("control: reset command")
		r.pipeline.Reset()
	case "send_message":
		r.emit.Message(cmd.Name, cmd.Message)
	default:
		slog.Warn("control: unknown command verb", "verb", cmd.STT)
	}
}
