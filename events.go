package goAssist

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Session event types.
const (
	EventSessionRestored = "session_restored"
	EventLogin           = "login"
	EventRegister        = "register"
	EventLogout          = "logout"
	EventInvalidated     = "invalidated"
	EventExpired         = "expired"
	EventLoginSuperseded = "login_superseded"
	EventLoginFailed     = "login_failed"
	EventRegisterFailed  = "register_failed"
)

// SessionEvent describes one session lifecycle event. Credentials are never
// included.
type SessionEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	State      string            `json:"state"`
	Email      string            `json:"email,omitempty"`
	Generation uint64            `json:"generation"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EventSink receives session events from the dispatcher goroutine.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, SessionEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan SessionEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SessionEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan SessionEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event SessionEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
