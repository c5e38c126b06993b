package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a configuration file was not found
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrRoleNotFound indicates a role was not found in the registry
	ErrRoleNotFound = errors.New("role not found")

	// ErrSkillNotFound indicates a skill was not found in the registry
	ErrSkillNotFound = errors.New("skill not found")

	// ErrBundleNotFound indicates a skill bundle was not found in the registry
	ErrBundleNotFound = errors.New("skill bundle not found")

	// ErrStageNotFound indicates a stage was not found in the workflow
	ErrStageNotFound = errors.New("stage not found")

	// ErrMCPServerNotFound indicates an MCP server was not found in the registry
	ErrMCPServerNotFound = errors.New("MCP server not found")

	// ErrMissingRef indicates a cross-reference that does not resolve
	ErrMissingRef = errors.New("unresolved configuration reference")

	// ErrDuplicateID indicates two entities share an id
	ErrDuplicateID = errors.New("duplicate id")

	// ErrBundleCycle indicates a cycle in skill bundle expansion
	ErrBundleCycle = errors.New("skill bundle expansion cycle")

	// ErrRoleCycle indicates a cycle in the role extends relation
	ErrRoleCycle = errors.New("role extends cycle")

	// ErrActionOverlap indicates allowed and forbidden actions intersect
	ErrActionOverlap = errors.New("allowed and forbidden actions overlap")

	// ErrLevelOutOfRange indicates a skill level outside 1..3
	ErrLevelOutOfRange = errors.New("skill level out of range")

	// ErrWorkflowCycle indicates a cycle in stage dependencies
	ErrWorkflowCycle = errors.New("workflow dependency cycle")

	// ErrUnregisteredPredicate indicates a custom_predicate gate naming an
	// unknown predicate
	ErrUnregisteredPredicate = errors.New("unregistered gate predicate")

	// ErrUnauthorizedStageSkill indicates a stage requiring a skill its
	// assigned role does not authorize
	ErrUnauthorizedStageSkill = errors.New("stage skill not authorized for role")
)

// ValidationError wraps configuration validation errors with context
type ValidationError struct {
	Component string // Component being validated (skill, role, bundle, stage, gate, mcp_server)
	ID        string // ID of the component
	Field     string // Field name (optional)
	Err       error  // Underlying error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Component, e.ID, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		ID:        id,
		Field:     field,
		Err:       err,
	}
}

// LoadError wraps configuration loading errors with file context
type LoadError struct {
	File string // Configuration file being loaded
	Err  error  // Underlying error
}

// Error returns formatted error message
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{
		File: file,
		Err:  err,
	}
}
