package models

// TaskStatus is the lifecycle status of a decomposed task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Task is a unit of work produced by the decomposer and executed by a
// single agent.
type Task struct {
	ID          string         `yaml:"id" json:"id"`
	Description string         `yaml:"description" json:"description"`
	RoleID      string         `yaml:"role_id" json:"role_id"`
	DependsOn   []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Status      TaskStatus     `yaml:"status" json:"status"`
	Inputs      map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     map[string]any `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// StageID links the task back to the workflow stage it was derived
	// from, when the rule strategy mapped it. Empty for LLM-planned tasks.
	StageID string `yaml:"stage_id,omitempty" json:"stage_id,omitempty"`

	ErrorKind ErrorKind `yaml:"error_kind,omitempty" json:"error_kind,omitempty"`
	Error     string    `yaml:"error,omitempty" json:"error,omitempty"`
}

// TaskDecomposition is the decomposer output: tasks plus a topological
// ordering into groups of mutually independent tasks.
type TaskDecomposition struct {
	Tasks []*Task `yaml:"tasks" json:"tasks"`

	// ExecutionOrder holds task ids grouped so that every task's
	// dependencies live in strictly earlier groups and no edges exist
	// inside a group.
	ExecutionOrder [][]string `yaml:"execution_order" json:"execution_order"`

	// DependencyGraph maps task id → ids it depends on.
	DependencyGraph map[string][]string `yaml:"dependency_graph" json:"dependency_graph"`

	// Strategy records which decomposition strategy produced the plan
	// ("llm" or "rule").
	Strategy string `yaml:"strategy" json:"strategy"`
}

// Task returns the task with the given id.
func (d *TaskDecomposition) Task(id string) (*Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}
