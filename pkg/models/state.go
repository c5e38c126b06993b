package models

import "time"

// StateSchemaVersion is bumped whenever the persisted ExecutionState
// layout changes incompatibly. Loads reject newer versions.
const StateSchemaVersion = 1

// CheckpointMeta describes one stored checkpoint. The snapshot itself is
// stored in the state store under "{workflow_id}:{checkpoint_id}".
type CheckpointMeta struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name,omitempty" json:"name,omitempty"`
	StageID   string    `yaml:"stage_id,omitempty" json:"stage_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// ExecutionState is the engine's single mutable focus: the live progress
// of one workflow run. Only the workflow executor mutates stage fields
// and only the orchestrator appends to Tracker; everything else reads.
type ExecutionState struct {
	SchemaVersion int    `yaml:"schema_version" json:"schema_version"`
	WorkflowID    string `yaml:"workflow_id" json:"workflow_id"`

	CurrentStageID  string   `yaml:"current_stage_id,omitempty" json:"current_stage_id,omitempty"`
	CurrentRoleID   string   `yaml:"current_role_id,omitempty" json:"current_role_id,omitempty"`
	CompletedStages []string `yaml:"completed_stages" json:"completed_stages"`

	// StageStatuses maps stage id → state-machine status. Stages absent
	// from the map are Pending.
	StageStatuses map[string]StageStatus `yaml:"stage_statuses,omitempty" json:"stage_statuses,omitempty"`

	// StageFindings holds the human-readable findings of the gate run
	// that blocked a stage. Cleared on retry.
	StageFindings map[string][]string `yaml:"stage_findings,omitempty" json:"stage_findings,omitempty"`

	// ActiveAgents maps agent id → role id.
	ActiveAgents map[string]string `yaml:"active_agents,omitempty" json:"active_agents,omitempty"`

	Tracker []SkillExecution `yaml:"tracker" json:"tracker"`

	SharedContext map[string]ContextEntry `yaml:"shared_context,omitempty" json:"shared_context,omitempty"`

	Checkpoints []CheckpointMeta `yaml:"checkpoints,omitempty" json:"checkpoints,omitempty"`

	Cancelled bool `yaml:"cancelled,omitempty" json:"cancelled,omitempty"`
}

// NewExecutionState creates a fresh state for a workflow run.
func NewExecutionState(workflowID string) *ExecutionState {
	return &ExecutionState{
		SchemaVersion:   StateSchemaVersion,
		WorkflowID:      workflowID,
		CompletedStages: []string{},
		StageStatuses:   map[string]StageStatus{},
		StageFindings:   map[string][]string{},
		ActiveAgents:    map[string]string{},
		Tracker:         []SkillExecution{},
		SharedContext:   map[string]ContextEntry{},
	}
}

// StageStatus returns the status of a stage, defaulting to Pending.
func (s *ExecutionState) StageStatus(stageID string) StageStatus {
	if st, ok := s.StageStatuses[stageID]; ok {
		return st
	}
	return StagePending
}

// StageCompleted reports whether the stage reached Completed.
func (s *ExecutionState) StageCompleted(stageID string) bool {
	return s.StageStatus(stageID) == StageCompleted
}

// Clone returns a deep copy suitable for checkpointing while mutators
// continue on the original.
func (s *ExecutionState) Clone() *ExecutionState {
	c := &ExecutionState{
		SchemaVersion:  s.SchemaVersion,
		WorkflowID:     s.WorkflowID,
		CurrentStageID: s.CurrentStageID,
		CurrentRoleID:  s.CurrentRoleID,
		Cancelled:      s.Cancelled,
	}
	c.CompletedStages = append([]string{}, s.CompletedStages...)
	c.Tracker = append([]SkillExecution{}, s.Tracker...)
	c.Checkpoints = append([]CheckpointMeta{}, s.Checkpoints...)
	c.StageStatuses = make(map[string]StageStatus, len(s.StageStatuses))
	for k, v := range s.StageStatuses {
		c.StageStatuses[k] = v
	}
	c.StageFindings = make(map[string][]string, len(s.StageFindings))
	for k, v := range s.StageFindings {
		c.StageFindings[k] = append([]string{}, v...)
	}
	c.ActiveAgents = make(map[string]string, len(s.ActiveAgents))
	for k, v := range s.ActiveAgents {
		c.ActiveAgents[k] = v
	}
	c.SharedContext = make(map[string]ContextEntry, len(s.SharedContext))
	for k, v := range s.SharedContext {
		c.SharedContext[k] = v
	}
	return c
}
