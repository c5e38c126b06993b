package models

import "time"

// ExecutionStatus is the outcome of a single skill invocation.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
	ExecutionTimeout ExecutionStatus = "timeout"
	ExecutionSkipped ExecutionStatus = "skipped"
)

// SkillExecution is one append-only tracker record. Timeouts count as
// failures for scoring purposes.
type SkillExecution struct {
	ID      string `yaml:"id" json:"id"`
	SkillID string `yaml:"skill_id" json:"skill_id"`
	TaskID  string `yaml:"task_id,omitempty" json:"task_id,omitempty"`
	StageID string `yaml:"stage_id,omitempty" json:"stage_id,omitempty"`
	RoleID  string `yaml:"role_id,omitempty" json:"role_id,omitempty"`

	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	EndedAt   time.Time `yaml:"ended_at" json:"ended_at"`

	Status    ExecutionStatus `yaml:"status" json:"status"`
	ErrorKind ErrorKind       `yaml:"error_kind,omitempty" json:"error_kind,omitempty"`
	Error     string          `yaml:"error,omitempty" json:"error,omitempty"`

	// Score is a quality score in [0,1], set only on success.
	Score float64 `yaml:"score" json:"score"`

	InputDigest  string `yaml:"input_digest,omitempty" json:"input_digest,omitempty"`
	OutputDigest string `yaml:"output_digest,omitempty" json:"output_digest,omitempty"`

	// Output keeps the produced artifact map so the orchestrator can
	// replay deterministic executions with a matching input digest.
	Output map[string]any `yaml:"output,omitempty" json:"output,omitempty"`
}

// Succeeded reports whether the execution counts as a success for
// historical scoring.
func (e SkillExecution) Succeeded() bool {
	return e.Status == ExecutionSuccess
}

// Duration is the wall-clock time of the invocation.
func (e SkillExecution) Duration() time.Duration {
	if e.EndedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// AgentContext is the working context an agent reasons over during one
// stage or task. Outputs accumulate as intents execute.
type AgentContext struct {
	Role           *Role          `yaml:"-" json:"-"`
	RoleID         string         `yaml:"role_id" json:"role_id"`
	ProjectContext map[string]any `yaml:"project_context,omitempty" json:"project_context,omitempty"`

	// SharedContext is a copy-on-read snapshot from the bus at prepare
	// time; later bus writes do not appear here.
	SharedContext map[string]any `yaml:"shared_context,omitempty" json:"shared_context,omitempty"`

	Outputs map[string]any `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// History references SkillExecution ids recorded on behalf of this
	// context.
	History []string `yaml:"history,omitempty" json:"history,omitempty"`
}

// NewAgentContext builds an empty context for a role.
func NewAgentContext(role *Role) *AgentContext {
	ac := &AgentContext{
		ProjectContext: map[string]any{},
		SharedContext:  map[string]any{},
		Outputs:        map[string]any{},
	}
	if role != nil {
		ac.Role = role
		ac.RoleID = role.ID
	}
	return ac
}

// MergeOutputs copies artifacts into the context, later writes winning.
func (ac *AgentContext) MergeOutputs(out map[string]any) {
	if ac.Outputs == nil {
		ac.Outputs = map[string]any{}
	}
	for k, v := range out {
		ac.Outputs[k] = v
	}
}
