package models

import "time"

// MessageKind classifies bus traffic.
type MessageKind string

const (
	MessageRequest      MessageKind = "request"
	MessageResponse     MessageKind = "response"
	MessageNotification MessageKind = "notification"
	MessageContextShare MessageKind = "context_share"
)

// BroadcastTarget addresses a message to every registered agent except
// the sender.
const BroadcastTarget = "broadcast"

// AgentMessage is one bus message. Delivery is FIFO per (From, To) pair;
// no global order across senders.
type AgentMessage struct {
	ID            string         `yaml:"id" json:"id"`
	From          string         `yaml:"from" json:"from"`
	To            string         `yaml:"to" json:"to"`
	Kind          MessageKind    `yaml:"kind" json:"kind"`
	Payload       map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Timestamp     time.Time      `yaml:"timestamp" json:"timestamp"`
	CorrelationID string         `yaml:"correlation_id,omitempty" json:"correlation_id,omitempty"`
}

// ContextEntry is one shared-context value with last-writer-wins
// resolution on Timestamp.
type ContextEntry struct {
	Value     any       `yaml:"value" json:"value"`
	Owner     string    `yaml:"owner" json:"owner"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}
