package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// SlogSink logs every event at info level. Useful as a default consumer
// for CLI runs without a renderer attached.
type SlogSink struct {
	Logger *slog.Logger
}

func (s *SlogSink) Emit(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("engine event",
		"type", ev.Type,
		"workflow_id", ev.WorkflowID,
		"payload", string(ev.Payload))
	return nil
}

// JSONLSink appends events to a file, one JSON object per line.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink opens (or creates) the file in append mode.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	return &JSONLSink{file: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ChanSink delivers events to a buffered channel. Test probes drain the
// channel to assert on event order. Events are dropped when the buffer
// is full rather than blocking the engine.
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a sink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

func (s *ChanSink) Emit(_ context.Context, ev Event) error {
	select {
	case s.C <- ev:
		return nil
	default:
		return fmt.Errorf("event channel full, dropped %s", ev.Type)
	}
}

// Drain returns all events currently buffered without blocking.
func (s *ChanSink) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-s.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}
