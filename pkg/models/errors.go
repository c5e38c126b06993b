package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the engine's complete failure taxonomy. Every failure a
// task or stage surfaces carries exactly one kind.
type ErrorKind string

const (
	ErrorKindConfig              ErrorKind = "config"
	ErrorKindValidation          ErrorKind = "validation"
	ErrorKindExecution           ErrorKind = "execution"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindInsufficientContext ErrorKind = "insufficient_context"
	ErrorKindNoSkillAvailable    ErrorKind = "no_skill_available"
	ErrorKindGateFailure         ErrorKind = "gate_failure"
	ErrorKindCancelled           ErrorKind = "cancelled"
	ErrorKindInternal            ErrorKind = "internal"
)

var (
	// ErrNoSkillAvailable signals the selector found no candidate with a
	// positive score. Recoverable: the agent may broaden its description
	// once before the task fails.
	ErrNoSkillAvailable = errors.New("no skill available for task")

	// ErrInsufficientContext signals an agent could not produce intents.
	ErrInsufficientContext = errors.New("insufficient context to produce intents")

	// ErrCancelled signals workflow-level cancellation.
	ErrCancelled = errors.New("workflow cancelled")

	// ErrStateNotFound signals a missing workflow state or checkpoint blob.
	ErrStateNotFound = errors.New("state not found")
)

// EngineError is the uniform error value crossing component boundaries.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError builds an EngineError of the given kind.
func NewEngineError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Err: err}
}

func NewConfigError(message string, err error) *EngineError {
	return NewEngineError(ErrorKindConfig, message, err)
}

func NewValidationError(message string, err error) *EngineError {
	return NewEngineError(ErrorKindValidation, message, err)
}

func NewExecutionError(message string, err error) *EngineError {
	return NewEngineError(ErrorKindExecution, message, err)
}

func NewTimeoutError(message string, err error) *EngineError {
	return NewEngineError(ErrorKindTimeout, message, err)
}

func NewGateFailure(message string) *EngineError {
	return NewEngineError(ErrorKindGateFailure, message, nil)
}

func NewInternalError(message string, err error) *EngineError {
	return NewEngineError(ErrorKindInternal, message, err)
}

// KindOf classifies any error into the taxonomy. Unknown errors map to
// ErrorKindInternal; nil maps to the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	switch {
	case errors.Is(err, ErrNoSkillAvailable):
		return ErrorKindNoSkillAvailable
	case errors.Is(err, ErrInsufficientContext):
		return ErrorKindInsufficientContext
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	}
	return ErrorKindInternal
}

// Exit codes of a workflow run, consumed by the CLI wrapper.
const (
	ExitSuccess     = 0
	ExitGateBlocked = 1
	ExitTaskFailure = 2
	ExitConfigError = 3
	ExitCancelled   = 4
	ExitInternal    = 5
)

// ExitCode maps a run error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case ErrorKindGateFailure:
		return ExitGateBlocked
	case ErrorKindValidation, ErrorKindExecution, ErrorKindTimeout,
		ErrorKindInsufficientContext, ErrorKindNoSkillAvailable:
		return ExitTaskFailure
	case ErrorKindConfig:
		return ExitConfigError
	case ErrorKindCancelled:
		return ExitCancelled
	default:
		return ExitInternal
	}
}
