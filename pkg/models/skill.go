// Package models defines the domain entities shared across the engine:
// skills, roles, workflow stages, tasks, execution records, and the
// mutable execution state. Registry entities are immutable once loaded;
// ExecutionState is the single mutable focus of the engine.
package models

// SkillType classifies how a skill produces its output.
type SkillType string

const (
	SkillTypeCognitive  SkillType = "cognitive"
	SkillTypeProcedural SkillType = "procedural"
	SkillTypeHybrid     SkillType = "hybrid"
)

// MinSkillLevel and MaxSkillLevel bound the proficiency scale.
const (
	MinSkillLevel = 1
	MaxSkillLevel = 3
)

// Skill is a capability unit with typed input/output and a declared
// invocation backend. Immutable after registry load.
type Skill struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Dimensions  []string       `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
	Levels      map[int]string `yaml:"levels,omitempty" json:"levels,omitempty"`
	Tools       []string       `yaml:"tools,omitempty" json:"tools,omitempty"`
	Constraints []string       `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	// ExecutionCapabilities are the action tags this skill exercises when
	// invoked. A role whose forbidden_actions intersect them may not use
	// the skill.
	ExecutionCapabilities []string `yaml:"execution_capabilities,omitempty" json:"execution_capabilities,omitempty"`

	InputSchema  map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`

	Metadata Metadata  `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Type     SkillType `yaml:"skill_type,omitempty" json:"skill_type,omitempty"`

	Deterministic bool     `yaml:"deterministic,omitempty" json:"deterministic,omitempty"`
	Testable      bool     `yaml:"testable,omitempty" json:"testable,omitempty"`
	SideEffects   []string `yaml:"side_effects,omitempty" json:"side_effects,omitempty"`
}

// Reusable reports whether a prior successful execution of this skill may
// be replayed for an identical input instead of re-invoking the backend.
func (s *Skill) Reusable() bool {
	return s.Deterministic && len(s.SideEffects) == 0
}

// Metadata carries invoker hints. Known keys are typed; everything else
// lands in Extra untouched.
type Metadata struct {
	// ExecutionMode tags the skill for stage mode-fit scoring
	// (e.g. "implementation", "analysis").
	ExecutionMode string `yaml:"execution_mode,omitempty" json:"execution_mode,omitempty"`

	// TimeoutMS bounds a single invocation. Zero applies the dispatcher
	// default.
	TimeoutMS int64 `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`

	// InvokerType routes dispatch directly ("placeholder", "llm", "mcp",
	// "composite"). Empty means the composite picks the first invoker
	// that supports the skill.
	InvokerType string `yaml:"invoker_type,omitempty" json:"invoker_type,omitempty"`

	// ComposedOf names constituent skills executed in order by the
	// composite invoker, threading each output into the next input.
	ComposedOf []string `yaml:"composed_of,omitempty" json:"composed_of,omitempty"`

	MCP *MCPSpec `yaml:"mcp,omitempty" json:"mcp,omitempty"`

	Extra map[string]any `yaml:",inline" json:"extra,omitempty"`
}

// MCPSpec configures an MCP-backed skill.
type MCPSpec struct {
	// Action is one of "list_resources", "fetch_resource", "call_tool".
	Action      string `yaml:"action" json:"action"`
	Server      string `yaml:"server" json:"server"`
	ResourceURI string `yaml:"resource_uri,omitempty" json:"resource_uri,omitempty"`
	Tool        string `yaml:"tool,omitempty" json:"tool,omitempty"`
}

// MCP action names recognized in Metadata.MCP.Action.
const (
	MCPActionListResources = "list_resources"
	MCPActionFetchResource = "fetch_resource"
	MCPActionCallTool      = "call_tool"
)

// SkillRequirement references a skill (or a bundle, expanded at load time)
// with a minimum proficiency level.
type SkillRequirement struct {
	SkillID  string   `yaml:"skill_id" json:"skill_id"`
	MinLevel int      `yaml:"min_level" json:"min_level"`
	Focus    []string `yaml:"focus,omitempty" json:"focus,omitempty"`
}

// SkillBundle groups requirements under one id. Bundles may reference
// other bundles; expansion must be acyclic.
type SkillBundle struct {
	ID     string             `yaml:"id" json:"id"`
	Skills []SkillRequirement `yaml:"skills" json:"skills"`
}
