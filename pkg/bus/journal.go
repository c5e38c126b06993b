package bus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rolewise/rolewise/pkg/models"
)

// journalRecord is one JSONL line. Exactly one of Message and Context
// is set, discriminated by Type.
type journalRecord struct {
	Type    string               `json:"type"` // "message" or "context"
	Message *models.AgentMessage `json:"message,omitempty"`
	Key     string               `json:"key,omitempty"`
	Context *models.ContextEntry `json:"context,omitempty"`
}

const (
	recordMessage = "message"
	recordContext = "context"
)

// Journal appends bus traffic to a JSONL file. Writes are best-effort:
// a failed append is logged and the bus keeps running in memory.
type Journal struct {
	path    string
	file    *os.File
	encoder *json.Encoder
	logger  *slog.Logger
}

// OpenJournal opens (or creates) the journal file for appending.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus journal %s: %w", path, err)
	}
	return &Journal{
		path:    path,
		file:    f,
		encoder: json.NewEncoder(f),
		logger:  slog.With("component", "bus_journal", "path", path),
	}, nil
}

func (j *Journal) appendMessage(msg models.AgentMessage) {
	j.append(journalRecord{Type: recordMessage, Message: &msg})
}

func (j *Journal) appendContext(key string, entry models.ContextEntry) {
	j.append(journalRecord{Type: recordContext, Key: key, Context: &entry})
}

func (j *Journal) append(rec journalRecord) {
	if err := j.encoder.Encode(rec); err != nil {
		j.logger.Warn("Failed to append journal record", "error", err)
	}
}

func (j *Journal) close() error {
	return j.file.Close()
}

// Replay reads a journal file and applies every record to the bus:
// messages re-enter their recipients' mailboxes (recipients are
// registered as needed) and context entries are restored with their
// original timestamps.
func Replay(path string, b *Bus) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open bus journal %s: %w", path, err)
	}
	defer f.Close()

	applied := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return applied, fmt.Errorf("corrupt journal record: %w", err)
		}

		switch rec.Type {
		case recordMessage:
			if rec.Message == nil {
				continue
			}
			b.mu.Lock()
			if _, ok := b.mailboxes[rec.Message.To]; !ok {
				b.mailboxes[rec.Message.To] = []models.AgentMessage{}
			}
			b.mailboxes[rec.Message.To] = append(b.mailboxes[rec.Message.To], *rec.Message)
			if rec.Message.Timestamp.After(b.lastStamp) {
				b.lastStamp = rec.Message.Timestamp
			}
			b.mu.Unlock()
			applied++
		case recordContext:
			if rec.Context == nil {
				continue
			}
			b.mu.Lock()
			if prev, ok := b.shared[rec.Key]; !ok || !prev.Timestamp.After(rec.Context.Timestamp) {
				b.shared[rec.Key] = *rec.Context
			}
			if rec.Context.Timestamp.After(b.lastStamp) {
				b.lastStamp = rec.Context.Timestamp
			}
			b.mu.Unlock()
			applied++
		}
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("failed to read bus journal: %w", err)
	}
	return applied, nil
}
