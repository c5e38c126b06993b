// Package agent implements the reasoning layer of the engine. An agent
// plans intents from a goal, reviews outputs other agents produced, and
// talks to its peers over the bus. Agents never execute skills
// themselves; execution belongs to the orchestrator and its dispatcher,
// which keeps role constraints enforceable in one place.
package agent

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rolewise/rolewise/pkg/bus"
	"github.com/rolewise/rolewise/pkg/models"
)

// Intent is one planned unit of work derived from a goal.
type Intent struct {
	Description string         `json:"description"`
	Mode        string         `json:"mode,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`

	// CorrelationID links the intent to the bus request that asked for
	// it, when there is one.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ReviewOutput is an agent's verdict on another agent's work.
type ReviewOutput struct {
	Approved           bool     `json:"approved"`
	Comments           []string `json:"comments,omitempty"`
	SuggestedRevisions []string `json:"suggested_revisions,omitempty"`
}

// Agent reasons on behalf of one role instance.
type Agent struct {
	id     string
	role   *models.Role
	bus    *bus.Bus
	logger *slog.Logger
}

// New creates an agent and registers its mailbox on the bus.
func New(id string, role *models.Role, b *bus.Bus) *Agent {
	b.Register(id)
	return &Agent{
		id:     id,
		role:   role,
		bus:    b,
		logger: slog.With("component", "agent", "agent_id", id, "role", role.ID),
	}
}

// ID returns the agent's bus identity.
func (a *Agent) ID() string { return a.id }

// Role returns the role the agent acts as.
func (a *Agent) Role() *models.Role { return a.role }

// Prepare turns a goal into intents. Pending request messages in the
// agent's mailbox become additional intents so peers' asks are not
// lost. An empty goal with an empty mailbox is insufficient context.
func (a *Agent) Prepare(goal string) ([]Intent, error) {
	requests := a.drainRequests()

	goal = strings.TrimSpace(goal)
	if goal == "" && len(requests) == 0 {
		return nil, fmt.Errorf("%w: agent %q has no goal and no pending requests",
			models.ErrInsufficientContext, a.id)
	}

	var intents []Intent
	for _, clause := range splitGoal(goal) {
		intents = append(intents, Intent{
			Description: clause,
			Mode:        modeOf(clause),
		})
	}
	intents = append(intents, requests...)

	a.logger.Debug("Prepared intents", "goal", goal, "intents", len(intents))
	return intents, nil
}

// Review judges an output map. Outputs with missing or empty values are
// rejected with one comment and suggested revision per gap; mock values
// pass with a comment, so placeholder runs flow through review.
func (a *Agent) Review(outputs map[string]any) ReviewOutput {
	review := ReviewOutput{Approved: true}

	if len(outputs) == 0 {
		review.Approved = false
		review.Comments = append(review.Comments, "no outputs produced")
		review.SuggestedRevisions = append(review.SuggestedRevisions, "produce the declared outputs")
		return review
	}

	for key, value := range outputs {
		switch v := value.(type) {
		case nil:
			review.Approved = false
			review.Comments = append(review.Comments, fmt.Sprintf("output %q is nil", key))
			review.SuggestedRevisions = append(review.SuggestedRevisions, fmt.Sprintf("set output %q", key))
		case string:
			if v == "" {
				review.Approved = false
				review.Comments = append(review.Comments, fmt.Sprintf("output %q is empty", key))
				review.SuggestedRevisions = append(review.SuggestedRevisions, fmt.Sprintf("fill output %q", key))
			} else if strings.HasPrefix(v, "[mock_") {
				review.Comments = append(review.Comments, fmt.Sprintf("output %q is a placeholder value", key))
			}
		}
	}
	return review
}

// Send posts a message to one peer.
func (a *Agent) Send(to string, kind models.MessageKind, payload map[string]any) error {
	return a.bus.Publish(models.AgentMessage{
		From:    a.id,
		To:      to,
		Kind:    kind,
		Payload: payload,
	})
}

// Broadcast posts a notification to every other agent.
func (a *Agent) Broadcast(kind models.MessageKind, payload map[string]any) error {
	return a.bus.Publish(models.AgentMessage{
		From:    a.id,
		To:      models.BroadcastTarget,
		Kind:    kind,
		Payload: payload,
	})
}

// RequestFeedback asks a peer to review outputs. The returned id
// correlates the peer's eventual response message.
func (a *Agent) RequestFeedback(to string, outputs map[string]any) (string, error) {
	id := uuid.NewString()
	err := a.bus.Publish(models.AgentMessage{
		ID:   id,
		From: a.id,
		To:   to,
		Kind: models.MessageRequest,
		Payload: map[string]any{
			"description": fmt.Sprintf("review outputs from %s", a.id),
			"outputs":     outputs,
		},
	})
	return id, err
}

// RespondFeedback answers a feedback request with a review verdict.
func (a *Agent) RespondFeedback(to, correlationID string, review ReviewOutput) error {
	return a.bus.Publish(models.AgentMessage{
		From:          a.id,
		To:            to,
		Kind:          models.MessageResponse,
		CorrelationID: correlationID,
		Payload: map[string]any{
			"approved":            review.Approved,
			"comments":            review.Comments,
			"suggested_revisions": review.SuggestedRevisions,
		},
	})
}

// Inbox drains and returns the agent's mailbox.
func (a *Agent) Inbox() []models.AgentMessage {
	return a.bus.Subscribe(a.id)
}

// Share publishes a value into the shared context under this agent's
// ownership.
func (a *Agent) Share(key string, value any) {
	a.bus.ShareContext(key, value, a.id)
}

// Lookup reads a shared-context value.
func (a *Agent) Lookup(key string) (models.ContextEntry, bool) {
	return a.bus.GetContext(key)
}

// drainRequests consumes the mailbox and converts request messages into
// intents. Other kinds are informational and only logged here.
func (a *Agent) drainRequests() []Intent {
	var intents []Intent
	for _, msg := range a.bus.Subscribe(a.id) {
		if msg.Kind != models.MessageRequest {
			a.logger.Debug("Consumed non-request message during prepare",
				"from", msg.From, "kind", msg.Kind)
			continue
		}
		desc, _ := msg.Payload["description"].(string)
		if desc == "" {
			desc = fmt.Sprintf("handle request from %s", msg.From)
		}
		intents = append(intents, Intent{
			Description:   desc,
			Inputs:        msg.Payload,
			CorrelationID: msg.ID,
		})
	}
	return intents
}

// splitGoal breaks a goal into independent clauses.
func splitGoal(goal string) []string {
	if goal == "" {
		return nil
	}
	parts := []string{goal}
	for _, sep := range []string{" and then ", ", then ", "; ", " and "} {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// modeOf guesses whether a clause wants analysis or implementation.
func modeOf(clause string) string {
	lower := strings.ToLower(clause)
	for _, kw := range []string{"analyze", "analyse", "review", "design", "plan", "assess", "evaluate"} {
		if strings.Contains(lower, kw) {
			return "analysis"
		}
	}
	for _, kw := range []string{"implement", "write", "build", "fix", "create", "refactor", "test", "deploy"} {
		if strings.Contains(lower, kw) {
			return "implementation"
		}
	}
	return ""
}
