// Package orchestrator schedules agents over stages and tasks. It owns
// the engine's hot loop: agent intents in, skill selections and
// dispatches out, with outputs accumulating in agent contexts and
// shared stage artifacts flowing to the bus.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rolewise/rolewise/pkg/agent"
	"github.com/rolewise/rolewise/pkg/bus"
	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/decomposer"
	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/invoker"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/selector"
	"github.com/rolewise/rolewise/pkg/tracker"
)

// StageResult is the outcome of one stage body in a parallel partition.
// A failed stage does not cancel its partition siblings; callers read
// Err per stage.
type StageResult struct {
	StageID string
	RoleID  string
	Context *models.AgentContext
	Err     error
}

// Orchestrator runs stage bodies and decomposition groups. It is the
// only component that appends to the tracker (through the dispatcher).
type Orchestrator struct {
	registry   *config.Registry
	selector   *selector.Selector
	dispatcher *invoker.Dispatcher
	tracker    *tracker.Tracker
	bus        *bus.Bus
	decomposer *decomposer.Decomposer
	publisher  *events.Publisher
	logger     *slog.Logger

	// projectContext seeds every agent context.
	projectContext map[string]any
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDecomposer enables ExecuteWithCollaboration.
func WithDecomposer(d *decomposer.Decomposer) Option {
	return func(o *Orchestrator) { o.decomposer = d }
}

// WithPublisher attaches the event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithProjectContext seeds agent contexts with static project facts.
func WithProjectContext(pc map[string]any) Option {
	return func(o *Orchestrator) { o.projectContext = pc }
}

// New creates an orchestrator.
func New(
	registry *config.Registry,
	sel *selector.Selector,
	dispatcher *invoker.Dispatcher,
	tr *tracker.Tracker,
	b *bus.Bus,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		selector:   sel,
		dispatcher: dispatcher,
		tracker:    tr,
		bus:        b,
		logger:     slog.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RoleFor resolves the acting role of a stage: the stage's declared
// role, else the role whose required skills overlap the stage's the
// most, ties broken by lower role id.
func (o *Orchestrator) RoleFor(stage *models.Stage) (*models.Role, error) {
	if stage.RoleID != "" {
		return o.registry.GetRole(stage.RoleID)
	}

	var best *models.Role
	bestOverlap := -1
	for _, role := range o.registry.AllRoles() {
		overlap := 0
		for _, req := range stage.RequiredSkills {
			if role.Authorizes(req.SkillID) {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = role, overlap
		}
	}
	if best == nil {
		return nil, models.NewConfigError(
			fmt.Sprintf("no role resolvable for stage %q", stage.ID), nil)
	}
	return best, nil
}

// ExecuteStage runs one stage body with a single agent and returns the
// final agent context. goal is the stage-level objective the agent
// plans against.
func (o *Orchestrator) ExecuteStage(ctx context.Context, stage *models.Stage, role *models.Role, goal string) (*models.AgentContext, error) {
	agentID := fmt.Sprintf("%s-%s", role.ID, stage.ID)
	a := agent.New(agentID, role, o.bus)
	defer o.bus.Unregister(agentID)

	_ = o.publisher.PublishStageStarted(ctx, events.StageStartedPayload{
		StageID: stage.ID,
		RoleID:  role.ID,
	})

	// The closing stage.completed/stage.blocked event belongs to the
	// workflow executor, which decides the transition after gates run.
	return o.runAgent(ctx, a, stage, goal, nil)
}

// ExecuteParallelStages partitions the stages by dependency readiness
// and runs each ready partition concurrently, one agent per stage.
// A stage failure does not cancel partition siblings; results carry
// per-stage errors so the caller sees partial success. Dependencies on
// stages outside the given set are assumed already satisfied.
func (o *Orchestrator) ExecuteParallelStages(ctx context.Context, stages []*models.Stage, goal string) ([]StageResult, error) {
	inSet := make(map[string]bool, len(stages))
	for _, s := range stages {
		inSet[s.ID] = true
	}

	results := make([]StageResult, 0, len(stages))
	done := make(map[string]bool, len(stages))
	remaining := append([]*models.Stage{}, stages...)

	for len(remaining) > 0 {
		var ready, blocked []*models.Stage
		for _, s := range remaining {
			if isReady(s, inSet, done) {
				ready = append(ready, s)
			} else {
				blocked = append(blocked, s)
			}
		}
		if len(ready) == 0 {
			return results, models.NewConfigError(
				fmt.Sprintf("unresolvable stage dependencies among %d stages", len(remaining)), nil)
		}

		partition := make([]StageResult, len(ready))
		var g errgroup.Group
		for i, s := range ready {
			g.Go(func() error {
				partition[i] = o.runOneStage(ctx, s, goal)
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range partition {
			done[r.StageID] = true
			results = append(results, r)
		}
		remaining = blocked
	}
	return results, nil
}

func (o *Orchestrator) runOneStage(ctx context.Context, stage *models.Stage, goal string) StageResult {
	role, err := o.RoleFor(stage)
	if err != nil {
		return StageResult{StageID: stage.ID, Err: err}
	}
	ac, err := o.ExecuteStage(ctx, stage, role, goal)
	return StageResult{StageID: stage.ID, RoleID: role.ID, Context: ac, Err: err}
}

// ExecuteWithCollaboration decomposes the goal into tasks and runs each
// execution-order group concurrently, one agent per task, all wired
// into the bus. Task failures do not stop group siblings; cancellation
// marks every not-yet-started task as cancelled.
func (o *Orchestrator) ExecuteWithCollaboration(ctx context.Context, goal string) (*models.TaskDecomposition, error) {
	if o.decomposer == nil {
		return nil, models.NewConfigError("no decomposer configured", nil)
	}

	decomp, err := o.decomposer.Decompose(ctx, goal)
	if err != nil {
		return nil, err
	}

	for _, task := range decomp.Tasks {
		_ = o.publisher.PublishTaskCreated(ctx, events.TaskCreatedPayload{
			TaskID:      task.ID,
			Description: task.Description,
			RoleID:      task.RoleID,
		})
	}

	for _, group := range decomp.ExecutionOrder {
		if ctx.Err() != nil {
			o.cancelPending(ctx, decomp)
			return decomp, fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
		}

		var g errgroup.Group
		for _, id := range group {
			task, ok := decomp.Task(id)
			if !ok {
				continue
			}
			g.Go(func() error {
				o.runTask(ctx, task)
				return nil
			})
		}
		_ = g.Wait()
	}
	return decomp, nil
}

// runTask executes one decomposed task to a terminal status.
func (o *Orchestrator) runTask(ctx context.Context, task *models.Task) {
	task.Status = models.TaskRunning

	role, err := o.registry.GetRole(task.RoleID)
	if err != nil {
		o.failTask(ctx, task, err)
		return
	}

	var stage *models.Stage
	if wf := o.registry.Workflow(); wf != nil && task.StageID != "" {
		stage, _ = wf.Stage(task.StageID)
	}

	a := agent.New(task.ID, role, o.bus)
	defer o.bus.Unregister(task.ID)

	ac, err := o.runAgent(ctx, a, stage, task.Description, task.Inputs)
	if err != nil {
		o.failTask(ctx, task, err)
		return
	}

	task.Status = models.TaskCompleted
	task.Outputs = ac.Outputs
	_ = o.publisher.PublishTaskCompleted(ctx, events.TaskCompletedPayload{
		TaskID: task.ID,
		Status: string(models.TaskCompleted),
	})
}

func (o *Orchestrator) failTask(ctx context.Context, task *models.Task, err error) {
	task.Status = models.TaskFailed
	task.ErrorKind = models.KindOf(err)
	task.Error = err.Error()
	o.logger.Error("Task failed", "task_id", task.ID, "error_kind", task.ErrorKind, "error", err)
	_ = o.publisher.PublishTaskCompleted(ctx, events.TaskCompletedPayload{
		TaskID:    task.ID,
		Status:    string(models.TaskFailed),
		ErrorKind: string(task.ErrorKind),
		Error:     task.Error,
	})
}

func (o *Orchestrator) cancelPending(ctx context.Context, decomp *models.TaskDecomposition) {
	for _, task := range decomp.Tasks {
		if task.Status.Terminal() || task.Status == models.TaskRunning {
			continue
		}
		o.failTask(ctx, task, models.ErrCancelled)
	}
}

// runAgent is the per-agent hot loop: prepare intents, then for each
// intent select a skill, dispatch it, and merge outputs. Stage contract
// outputs are shared to the bus as they appear. Intents arriving after
// cancellation are rejected.
func (o *Orchestrator) runAgent(ctx context.Context, a *agent.Agent, stage *models.Stage, goal string, seed map[string]any) (*models.AgentContext, error) {
	ac := models.NewAgentContext(a.Role())
	for k, v := range o.projectContext {
		ac.ProjectContext[k] = v
	}
	for k, entry := range o.bus.ContextSnapshot() {
		ac.SharedContext[k] = entry.Value
	}

	intents, err := a.Prepare(goal)
	if err != nil {
		return ac, err
	}

	stageID, mode := "", ""
	if stage != nil {
		stageID, mode = stage.ID, stage.ExecutionMode
	}

	for _, intent := range intents {
		if ctx.Err() != nil {
			return ac, fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
		}

		intentMode := intent.Mode
		if intentMode == "" {
			intentMode = mode
		}
		skill, err := o.selector.Select(intent.Description, a.Role(), selector.Options{Mode: intentMode})
		if err != nil {
			return ac, fmt.Errorf("intent %q: %w", intent.Description, err)
		}

		input := mergeInputs(seed, intent.Inputs)
		exec, err := o.dispatcher.Execute(ctx, invoker.Request{
			Skill:   skill,
			TaskID:  intent.CorrelationID,
			StageID: stageID,
			RoleID:  a.Role().ID,
			Input:   input,
			Context: ac,
		})
		ac.History = append(ac.History, exec.ID)
		if err != nil {
			return ac, err
		}

		ac.MergeOutputs(exec.Output)
		o.shareStageOutputs(a, stage, exec.Output)
	}
	return ac, nil
}

// shareStageOutputs publishes outputs named in the stage contract to
// the bus shared context.
func (o *Orchestrator) shareStageOutputs(a *agent.Agent, stage *models.Stage, outputs map[string]any) {
	if stage == nil {
		return
	}
	for _, name := range stage.Outputs {
		if v, ok := outputs[name]; ok {
			a.Share(name, v)
		}
	}
}

func isReady(stage *models.Stage, inSet, done map[string]bool) bool {
	for _, dep := range stage.DependsOn {
		if inSet[dep] && !done[dep] {
			return false
		}
	}
	return true
}

func mergeInputs(seed, inputs map[string]any) map[string]any {
	if len(seed) == 0 {
		return inputs
	}
	merged := make(map[string]any, len(seed)+len(inputs))
	for k, v := range seed {
		merged[k] = v
	}
	for k, v := range inputs {
		merged[k] = v
	}
	return merged
}
