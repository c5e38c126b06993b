package models

// StageStatus is the workflow state machine status of a stage.
// Transitions: Pending → InProgress → {Completed | Blocked};
// Blocked → InProgress via explicit retry; Completed is terminal.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageBlocked    StageStatus = "blocked"
)

// GateKind identifies a quality gate check.
type GateKind string

const (
	GateArtifactExists  GateKind = "artifact_exists"
	GateRegexMatch      GateKind = "regex_match"
	GateCountThreshold  GateKind = "count_threshold"
	GateCustomPredicate GateKind = "custom_predicate"
)

// QualityGate is a predicate evaluated when a stage completes. Blocking
// gates that fail transition the stage to Blocked; non-blocking gates
// produce warnings only.
type QualityGate struct {
	ID         string         `yaml:"id" json:"id"`
	Kind       GateKind       `yaml:"kind" json:"kind"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Blocking   bool           `yaml:"blocking" json:"blocking"`
}

// Stage is a node in the workflow DAG.
type Stage struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// RoleID may be empty, in which case the workflow executor infers a
	// role from RequiredSkills overlap.
	RoleID string `yaml:"role_id,omitempty" json:"role_id,omitempty"`

	RequiredSkills []SkillRequirement `yaml:"required_skills,omitempty" json:"required_skills,omitempty"`

	// Inputs and Outputs name the stage's artifact contract. Outputs are
	// shared to the bus context when produced.
	Inputs  []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	DependsOn      []string      `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	QualityGates   []QualityGate `yaml:"quality_gates,omitempty" json:"quality_gates,omitempty"`
	Parallelizable bool          `yaml:"parallelizable,omitempty" json:"parallelizable,omitempty"`

	// ExecutionMode feeds selector mode-fit scoring
	// (e.g. "implementation", "analysis").
	ExecutionMode string `yaml:"execution_mode,omitempty" json:"execution_mode,omitempty"`
}

// Workflow is an ordered list of stages forming a DAG over DependsOn.
type Workflow struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Stages      []*Stage `yaml:"stages" json:"stages"`

	// DefaultRole receives tasks the decomposer cannot match to a role.
	DefaultRole string `yaml:"default_role,omitempty" json:"default_role,omitempty"`
}

// Stage returns the stage with the given id.
func (w *Workflow) Stage(id string) (*Stage, bool) {
	for _, s := range w.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
