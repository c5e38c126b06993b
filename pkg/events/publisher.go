package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Sink receives marshaled events. Implementations must be safe for
// concurrent use; delivery is best-effort.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Publisher marshals typed payloads into Event envelopes and fans them
// out to every sink. A nil *Publisher is valid and drops everything, so
// callers never need nil checks at emit sites.
type Publisher struct {
	workflowID string
	sinks      []Sink
	noStream   bool
	logger     *slog.Logger
}

// NewPublisher creates a publisher scoped to one workflow run.
// Streaming (transient) events are disabled when NoStreamEnvVar is set.
func NewPublisher(workflowID string, sinks ...Sink) *Publisher {
	return &Publisher{
		workflowID: workflowID,
		sinks:      sinks,
		noStream:   os.Getenv(NoStreamEnvVar) != "",
		logger:     slog.With("workflow_id", workflowID),
	}
}

// StreamingEnabled reports whether transient progress events are emitted.
func (p *Publisher) StreamingEnabled() bool {
	return p != nil && !p.noStream
}

// publish marshals the payload and delivers to all sinks. Returns the
// first sink error after attempting every sink.
func (p *Publisher) publish(ctx context.Context, eventType string, payload any) error {
	if p == nil || len(p.sinks) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	ev := Event{
		Type:       eventType,
		WorkflowID: p.workflowID,
		Timestamp:  time.Now().UTC(),
		Payload:    raw,
	}
	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.Emit(ctx, ev); err != nil {
			p.logger.Warn("Event sink delivery failed",
				"event_type", eventType, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Publisher) PublishStageStarted(ctx context.Context, payload StageStartedPayload) error {
	return p.publish(ctx, EventStageStarted, payload)
}

func (p *Publisher) PublishStageCompleted(ctx context.Context, payload StageCompletedPayload) error {
	return p.publish(ctx, EventStageCompleted, payload)
}

func (p *Publisher) PublishStageBlocked(ctx context.Context, payload StageBlockedPayload) error {
	return p.publish(ctx, EventStageBlocked, payload)
}

func (p *Publisher) PublishTaskCreated(ctx context.Context, payload TaskCreatedPayload) error {
	return p.publish(ctx, EventTaskCreated, payload)
}

func (p *Publisher) PublishTaskCompleted(ctx context.Context, payload TaskCompletedPayload) error {
	return p.publish(ctx, EventTaskCompleted, payload)
}

func (p *Publisher) PublishSkillInvoked(ctx context.Context, payload SkillInvokedPayload) error {
	return p.publish(ctx, EventSkillInvoked, payload)
}

func (p *Publisher) PublishSkillCompleted(ctx context.Context, payload SkillCompletedPayload) error {
	return p.publish(ctx, EventSkillCompleted, payload)
}

// PublishSkillProgress emits a transient streaming chunk. Dropped when
// streaming is disabled via NoStreamEnvVar.
func (p *Publisher) PublishSkillProgress(ctx context.Context, payload SkillProgressPayload) error {
	if p == nil || p.noStream {
		return nil
	}
	return p.publish(ctx, EventSkillProgress, payload)
}

func (p *Publisher) PublishCheckpointCreated(ctx context.Context, payload CheckpointCreatedPayload) error {
	return p.publish(ctx, EventCheckpointCreated, payload)
}

func (p *Publisher) PublishGateFailed(ctx context.Context, payload GateFailedPayload) error {
	return p.publish(ctx, EventGateFailed, payload)
}

func (p *Publisher) PublishAgentMessage(ctx context.Context, payload AgentMessagePayload) error {
	return p.publish(ctx, EventAgentMessage, payload)
}
