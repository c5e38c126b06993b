// Package invoker executes skills. A Dispatcher validates input against
// the skill's schema, routes to the right Invoker implementation, bounds
// execution with the skill's timeout, validates output, and records the
// execution in the tracker.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/tracker"
)

// DefaultTimeout applies when the skill metadata declares none.
const DefaultTimeout = 60 * time.Second

// Invoker executes one class of skills.
type Invoker interface {
	// Name identifies the invoker in metadata.invoker_type routing.
	Name() string

	// Supports reports whether this invoker can execute the skill.
	Supports(skill *models.Skill) bool

	// Invoke executes the skill and returns its output.
	Invoke(ctx context.Context, skill *models.Skill, input map[string]any, ac *models.AgentContext) (map[string]any, error)
}

// Request carries the identifiers an execution is recorded under.
type Request struct {
	Skill   *models.Skill
	TaskID  string
	StageID string
	RoleID  string
	Input   map[string]any
	Context *models.AgentContext
}

// Dispatcher routes skill invocations and wraps them in the validate,
// execute, record pipeline.
type Dispatcher struct {
	invokers  []Invoker
	tracker   *tracker.Tracker
	publisher *events.Publisher
	schemas   *schemaCache
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given invokers. Order
// matters: the first invoker that supports a skill wins when the skill
// does not name one explicitly.
func NewDispatcher(tr *tracker.Tracker, publisher *events.Publisher, invokers ...Invoker) *Dispatcher {
	return &Dispatcher{
		invokers:  invokers,
		tracker:   tr,
		publisher: publisher,
		schemas:   newSchemaCache(),
		logger:    slog.With("component", "invoker"),
	}
}

// Execute runs the full invocation pipeline and returns the recorded
// execution. The returned error is non-nil exactly when the execution
// failed; the execution record is returned in both cases.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (models.SkillExecution, error) {
	skill := req.Skill

	exec := models.SkillExecution{
		ID:        uuid.NewString(),
		SkillID:   skill.ID,
		TaskID:    req.TaskID,
		StageID:   req.StageID,
		RoleID:    req.RoleID,
		StartedAt: time.Now().UTC(),
	}

	if err := d.schemas.validate(skill.ID+"/input", skill.InputSchema, req.Input); err != nil {
		return d.fail(ctx, exec, models.NewValidationError(
			fmt.Sprintf("input for skill %q rejected", skill.ID), err))
	}

	digest, err := DigestOf(req.Input)
	if err != nil {
		return d.fail(ctx, exec, models.NewInternalError("failed to digest input", err))
	}
	exec.InputDigest = digest

	// Deterministic, side-effect-free skills reuse a prior success on
	// identical input within the same stage.
	if skill.Reusable() {
		if prior, ok := d.tracker.FindReusable(skill.ID, req.StageID, digest); ok {
			exec.Status = models.ExecutionSuccess
			exec.Output = prior.Output
			exec.OutputDigest = prior.OutputDigest
			exec.Score = prior.Score
			exec.EndedAt = time.Now().UTC()
			d.tracker.Record(exec)
			d.publishCompleted(ctx, exec, true)
			return exec, nil
		}
	}

	inv, err := d.route(skill)
	if err != nil {
		return d.fail(ctx, exec, err)
	}

	_ = d.publisher.PublishSkillInvoked(ctx, events.SkillInvokedPayload{
		SkillID:     skill.ID,
		TaskID:      req.TaskID,
		StageID:     req.StageID,
		RoleID:      req.RoleID,
		Invoker:     inv.Name(),
		InputDigest: digest,
	})

	timeout := DefaultTimeout
	if skill.Metadata.TimeoutMS > 0 {
		timeout = time.Duration(skill.Metadata.TimeoutMS) * time.Millisecond
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, invokeErr := inv.Invoke(execCtx, skill, req.Input, acOrEmpty(req.Context))
	if invokeErr != nil {
		switch {
		case errors.Is(invokeErr, context.DeadlineExceeded):
			exec.Status = models.ExecutionTimeout
			return d.fail(ctx, exec, models.NewTimeoutError(
				fmt.Sprintf("skill %q exceeded %s", skill.ID, timeout), invokeErr))
		case errors.Is(invokeErr, context.Canceled):
			return d.fail(ctx, exec, fmt.Errorf("%w: skill %q", models.ErrCancelled, skill.ID))
		default:
			return d.fail(ctx, exec, models.NewExecutionError(
				fmt.Sprintf("skill %q failed", skill.ID), invokeErr))
		}
	}

	if err := d.schemas.validate(skill.ID+"/output", skill.OutputSchema, output); err != nil {
		return d.fail(ctx, exec, models.NewValidationError(
			fmt.Sprintf("output of skill %q rejected", skill.ID), err))
	}

	exec.Status = models.ExecutionSuccess
	exec.Output = output
	exec.Score = 1.0
	if outDigest, err := DigestOf(output); err == nil {
		exec.OutputDigest = outDigest
	}
	exec.EndedAt = time.Now().UTC()

	d.tracker.Record(exec)
	d.publishCompleted(ctx, exec, false)
	return exec, nil
}

// route picks the invoker for a skill: the explicitly named one first,
// then the first that supports it.
func (d *Dispatcher) route(skill *models.Skill) (Invoker, error) {
	if name := skill.Metadata.InvokerType; name != "" {
		for _, inv := range d.invokers {
			if inv.Name() == name {
				return inv, nil
			}
		}
		return nil, models.NewConfigError(
			fmt.Sprintf("skill %q names unknown invoker %q", skill.ID, name), nil)
	}
	for _, inv := range d.invokers {
		if inv.Supports(skill) {
			return inv, nil
		}
	}
	return nil, models.NewExecutionError(
		fmt.Sprintf("no invoker supports skill %q", skill.ID), nil)
}

func (d *Dispatcher) fail(ctx context.Context, exec models.SkillExecution, err error) (models.SkillExecution, error) {
	if exec.Status != models.ExecutionTimeout {
		exec.Status = models.ExecutionFailure
	}
	exec.ErrorKind = models.KindOf(err)
	exec.Error = err.Error()
	exec.EndedAt = time.Now().UTC()

	d.tracker.Record(exec)
	d.publishCompleted(ctx, exec, false)

	d.logger.Error("Skill execution failed",
		"skill_id", exec.SkillID,
		"task_id", exec.TaskID,
		"error_kind", exec.ErrorKind,
		"error", err)
	return exec, err
}

func (d *Dispatcher) publishCompleted(ctx context.Context, exec models.SkillExecution, reused bool) {
	_ = d.publisher.PublishSkillCompleted(ctx, events.SkillCompletedPayload{
		SkillID:     exec.SkillID,
		ExecutionID: exec.ID,
		Status:      string(exec.Status),
		Score:       exec.Score,
		DurationMS:  exec.Duration().Milliseconds(),
		Reused:      reused,
	})
}

func acOrEmpty(ac *models.AgentContext) *models.AgentContext {
	if ac == nil {
		return models.NewAgentContext(nil)
	}
	return ac
}
