// Package vosk provides a Recognizer backed by a Vosk transcription server
// over its streaming WebSocket protocol.
//
// The protocol is lock-step: the client sends one binary PCM chunk and the
// server answers with one JSON message, either {"partial": ...} while an
// utterance is in flight or {"text": ...} once the server-side endpointer has
// committed. {"eof": 1} forces the final result and ends the stream; the
// session transparently re-dials on the next Reset or AcceptFrame, so each
// utterance gets a fresh server-side recognizer.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/earshot-voice/earshot/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000
	opTimeout         = 10 * time.Second
)

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithSampleRate sets the PCM sample rate in Hz announced to the server.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) { r.sampleRate = rate }
}

// WithPhrases restricts recognition to the given phrase list (the server's
// grammar feature). An empty list leaves the full language model active.
func WithPhrases(phrases []string) Option {
	return func(r *Recognizer) { r.phrases = phrases }
}

// serverReply is the JSON structure of a Vosk server response. Exactly one of
// the fields is present per message.
type serverReply struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// Recognizer implements stt.Recognizer against a Vosk WebSocket server.
type Recognizer struct {
	url        string
	sampleRate int
	phrases    []string

	ctx context.Context

	mu      sync.Mutex
	conn    *websocket.Conn
	partial string
	final   string
	hasFin  bool
	closed  bool
}

// Dial connects to the Vosk server at wsURL (e.g. "ws://localhost:2700") and
// announces the audio configuration. ctx bounds the lifetime of the
// connection, including later re-dials.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Recognizer, error) {
	if wsURL == "" {
		return nil, errors.New("vosk: server URL must not be empty")
	}
	r := &Recognizer{
		url:        wsURL,
		sampleRate: defaultSampleRate,
		ctx:        ctx,
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.dial(); err != nil {
		return nil, err
	}
	return r, nil
}

// dial establishes the connection and sends the config message. Must be
// called with r.mu held (or before the Recognizer is shared).
func (r *Recognizer) dial() error {
	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("vosk: dial %s: %w", r.url, err)
	}

	cfg := map[string]any{"sample_rate": r.sampleRate}
	if len(r.phrases) > 0 {
		cfg["phrase_list"] = r.phrases
	}
	msg, err := json.Marshal(map[string]any{"config": cfg})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config marshal failed")
		return fmt.Errorf("vosk: marshal config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		conn.Close(websocket.StatusInternalError, "config write failed")
		return fmt.Errorf("vosk: send config: %w", err)
	}

	r.conn = conn
	return nil
}

// AcceptFrame sends one PCM frame and reads the server's verdict for it.
// Reports true once the server has committed a final utterance text.
func (r *Recognizer) AcceptFrame(frame []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, stt.ErrClosed
	}
	if r.conn == nil {
		if err := r.dial(); err != nil {
			return false, err
		}
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	if err := r.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		r.dropConn()
		return false, fmt.Errorf("vosk: send frame: %w", err)
	}
	reply, err := r.readReply(ctx)
	if err != nil {
		r.dropConn()
		return false, err
	}

	if reply.Text != nil {
		r.final = *reply.Text
		r.hasFin = true
		r.partial = ""
		return true, nil
	}
	if reply.Partial != nil {
		r.partial = *reply.Partial
	}
	return false, nil
}

// Result returns the committed utterance text. When the server has not
// finalized yet it forces finalization with an EOF message; the connection is
// consumed and re-established on the next utterance.
func (r *Recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", stt.ErrClosed
	}
	if r.hasFin {
		return r.final, nil
	}
	if r.conn == nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(r.ctx, opTimeout)
	defer cancel()

	if err := r.conn.Write(ctx, websocket.MessageText, []byte(`{"eof" : 1}`)); err != nil {
		r.dropConn()
		return "", fmt.Errorf("vosk: send eof: %w", err)
	}
	// The server flushes its buffer and replies with the final text before
	// closing the stream. Skip any partials still in flight.
	for {
		reply, err := r.readReply(ctx)
		if err != nil {
			r.dropConn()
			return "", err
		}
		if reply.Text != nil {
			r.final = *reply.Text
			r.hasFin = true
			r.partial = ""
			r.dropConn()
			return r.final, nil
		}
	}
}

// PartialResult returns the latest interim hypothesis.
func (r *Recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", stt.ErrClosed
	}
	return r.partial, nil
}

// Reset clears utterance state. A consumed connection is re-dialed lazily by
// the next AcceptFrame.
func (r *Recognizer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrClosed
	}
	r.partial = ""
	r.final = ""
	r.hasFin = false
	return nil
}

// Close terminates the connection. Safe to call more than once.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.conn != nil {
		err := r.conn.Close(websocket.StatusNormalClosure, "recognizer closed")
		r.conn = nil
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("vosk: close: %w", err)
		}
	}
	return nil
}

// readReply reads and parses one server message. Must be called with r.mu
// held.
func (r *Recognizer) readReply(ctx context.Context) (serverReply, error) {
	_, data, err := r.conn.Read(ctx)
	if err != nil {
		return serverReply{}, fmt.Errorf("vosk: read reply: %w", err)
	}
	return parseReply(data)
}

// parseReply parses a raw server message into a serverReply.
func parseReply(data []byte) (serverReply, error) {
	var reply serverReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return serverReply{}, fmt.Errorf("vosk: parse reply %q: %w", data, err)
	}
	return reply, nil
}

// dropConn discards the connection so the next use re-dials. Must be called
// with r.mu held.
func (r *Recognizer) dropConn() {
	if r.conn != nil {
		_ = r.conn.Close(websocket.StatusNormalClosure, "")
		r.conn = nil
	}
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
