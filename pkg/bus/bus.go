// Package bus carries messages between agents and holds the shared
// context they collaborate through. Each registered agent owns a FIFO
// mailbox; shared context resolves concurrent writes last-writer-wins
// on a monotonic timestamp. An optional JSONL journal makes traffic
// durable enough to replay after a restart.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/models"
)

// Bus routes agent messages and stores shared context. Safe for
// concurrent use.
type Bus struct {
	mu sync.Mutex

	mailboxes map[string][]models.AgentMessage
	shared    map[string]models.ContextEntry

	// lastStamp makes message and context timestamps strictly monotonic
	// even when the wall clock stalls.
	lastStamp time.Time

	journal   *Journal
	publisher *events.Publisher
	logger    *slog.Logger
}

// Option customizes bus construction.
type Option func(*Bus)

// WithJournal enables the durable JSONL journal at the given path.
func WithJournal(j *Journal) Option {
	return func(b *Bus) { b.journal = j }
}

// WithPublisher streams agent.message events for delivered traffic.
func WithPublisher(p *events.Publisher) Option {
	return func(b *Bus) { b.publisher = p }
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		mailboxes: make(map[string][]models.AgentMessage),
		shared:    make(map[string]models.ContextEntry),
		logger:    slog.With("component", "bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates a mailbox for the agent. Registering twice is a
// no-op and preserves queued messages.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[agentID]; !ok {
		b.mailboxes[agentID] = []models.AgentMessage{}
	}
}

// Unregister removes the agent's mailbox, dropping queued messages.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, agentID)
}

// Agents returns registered agent ids sorted.
func (b *Bus) Agents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Publish delivers a message to its recipient's mailbox, or to every
// other registered agent when addressed to the broadcast target.
// Missing id and timestamp are filled in.
func (b *Bus) Publish(msg models.AgentMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Timestamp = b.stamp()

	if msg.To == models.BroadcastTarget {
		for agentID := range b.mailboxes {
			if agentID == msg.From {
				continue
			}
			delivered := msg
			delivered.To = agentID
			b.deliver(delivered)
		}
		return nil
	}

	if _, ok := b.mailboxes[msg.To]; !ok {
		return fmt.Errorf("unknown recipient %q", msg.To)
	}
	b.deliver(msg)
	return nil
}

// deliver appends to the recipient mailbox. Caller holds the lock.
func (b *Bus) deliver(msg models.AgentMessage) {
	b.mailboxes[msg.To] = append(b.mailboxes[msg.To], msg)
	if b.journal != nil {
		b.journal.appendMessage(msg)
	}
	_ = b.publisher.PublishAgentMessage(context.Background(), events.AgentMessagePayload{
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To,
		Kind:      string(msg.Kind),
	})
}

// Subscribe drains and returns the agent's mailbox in delivery order.
func (b *Bus) Subscribe(agentID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.mailboxes[agentID]
	if len(msgs) == 0 {
		return nil
	}
	b.mailboxes[agentID] = []models.AgentMessage{}
	return msgs
}

// Peek returns a copy of the agent's mailbox without draining it.
func (b *Bus) Peek(agentID string) []models.AgentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.AgentMessage{}, b.mailboxes[agentID]...)
}

// ShareContext writes a shared-context value. Concurrent writers
// resolve last-writer-wins on the strictly monotonic timestamp.
func (b *Bus) ShareContext(key string, value any, owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := models.ContextEntry{
		Value:     value,
		Owner:     owner,
		Timestamp: b.stamp(),
	}
	if prev, ok := b.shared[key]; ok && prev.Timestamp.After(entry.Timestamp) {
		return
	}
	b.shared[key] = entry
	if b.journal != nil {
		b.journal.appendContext(key, entry)
	}
}

// GetContext returns the shared-context value for a key.
func (b *Bus) GetContext(key string) (models.ContextEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.shared[key]
	return entry, ok
}

// ContextSnapshot returns a copy of the whole shared context.
func (b *Bus) ContextSnapshot() map[string]models.ContextEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]models.ContextEntry, len(b.shared))
	for k, v := range b.shared {
		out[k] = v
	}
	return out
}

// RestoreContext replaces the shared context, for checkpoint restore.
func (b *Bus) RestoreContext(entries map[string]models.ContextEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shared = make(map[string]models.ContextEntry, len(entries))
	for k, v := range entries {
		b.shared[k] = v
		if v.Timestamp.After(b.lastStamp) {
			b.lastStamp = v.Timestamp
		}
	}
}

// Close flushes and closes the journal, if any.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	return b.journal.close()
}

// stamp returns a strictly increasing timestamp. Caller holds the lock.
func (b *Bus) stamp() time.Time {
	now := time.Now().UTC()
	if !now.After(b.lastStamp) {
		now = b.lastStamp.Add(time.Nanosecond)
	}
	b.lastStamp = now
	return now
}
