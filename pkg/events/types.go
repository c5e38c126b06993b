// Package events defines the engine's one-way event stream: typed event
// constants, payload structs, and a Publisher that fans marshaled events
// out to pluggable sinks. Consumers include CLI progress renderers and
// test probes.
package events

import (
	"encoding/json"
	"time"
)

// Event type constants. The type string is carried in every envelope.
const (
	EventStageStarted      = "stage.started"
	EventStageCompleted    = "stage.completed"
	EventStageBlocked      = "stage.blocked"
	EventTaskCreated       = "task.created"
	EventTaskCompleted     = "task.completed"
	EventSkillInvoked      = "skill.invoked"
	EventSkillCompleted    = "skill.completed"
	EventSkillProgress     = "skill.progress"
	EventCheckpointCreated = "checkpoint.created"
	EventGateFailed        = "gate.failed"
	EventAgentMessage      = "agent.message"
)

// NoStreamEnvVar disables transient streaming events (skill.progress)
// when set to a non-empty value. Lifecycle events are always emitted.
const NoStreamEnvVar = "ROLEWISE_NO_STREAM"

// Event is the envelope delivered to sinks. Payload is the marshaled
// form of one of the payload structs below.
type Event struct {
	Type       string          `json:"type"`
	WorkflowID string          `json:"workflow_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// StageStartedPayload accompanies stage.started.
type StageStartedPayload struct {
	StageID string `json:"stage_id"`
	RoleID  string `json:"role_id,omitempty"`
}

// StageCompletedPayload accompanies stage.completed.
type StageCompletedPayload struct {
	StageID    string   `json:"stage_id"`
	Outputs    []string `json:"outputs,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
}

// StageBlockedPayload accompanies stage.blocked.
type StageBlockedPayload struct {
	StageID  string   `json:"stage_id"`
	Findings []string `json:"findings,omitempty"`
}

// TaskCreatedPayload accompanies task.created.
type TaskCreatedPayload struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
}

// TaskCompletedPayload accompanies task.completed (terminal status,
// success or failure).
type TaskCompletedPayload struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SkillInvokedPayload accompanies skill.invoked.
type SkillInvokedPayload struct {
	SkillID     string `json:"skill_id"`
	TaskID      string `json:"task_id,omitempty"`
	StageID     string `json:"stage_id,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
	Invoker     string `json:"invoker,omitempty"`
	InputDigest string `json:"input_digest,omitempty"`
}

// SkillCompletedPayload accompanies skill.completed.
type SkillCompletedPayload struct {
	SkillID     string  `json:"skill_id"`
	ExecutionID string  `json:"execution_id"`
	Status      string  `json:"status"`
	Score       float64 `json:"score,omitempty"`
	DurationMS  int64   `json:"duration_ms,omitempty"`
	Reused      bool    `json:"reused,omitempty"`
}

// SkillProgressPayload accompanies the transient skill.progress stream
// (LLM token chunks). Suppressed when streaming is disabled.
type SkillProgressPayload struct {
	SkillID string `json:"skill_id"`
	TaskID  string `json:"task_id,omitempty"`
	Chunk   string `json:"chunk"`
}

// CheckpointCreatedPayload accompanies checkpoint.created.
type CheckpointCreatedPayload struct {
	CheckpointID string `json:"checkpoint_id"`
	Name         string `json:"name,omitempty"`
	StageID      string `json:"stage_id,omitempty"`
}

// GateFailedPayload accompanies gate.failed, once per failing gate.
type GateFailedPayload struct {
	StageID  string `json:"stage_id"`
	GateID   string `json:"gate_id"`
	Kind     string `json:"kind"`
	Blocking bool   `json:"blocking"`
	Message  string `json:"message,omitempty"`
}

// AgentMessagePayload accompanies agent.message.
type AgentMessagePayload struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Kind      string `json:"kind"`
}
