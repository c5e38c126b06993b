// Package workflow drives the stage state machine over a workflow DAG.
// Stages move Pending → InProgress → {Completed | Blocked}; Blocked
// stages return to InProgress through an explicit retry; Completed is
// terminal. Stage bodies are delegated to the orchestrator and gate
// verdicts decide the closing transition.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/rolewise/rolewise/pkg/checkpoint"
	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/gates"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/orchestrator"
	"github.com/rolewise/rolewise/pkg/statestore"
	"github.com/rolewise/rolewise/pkg/tracker"
)

// ErrStageNotFound is returned when a stage id is not in the workflow.
var ErrStageNotFound = errors.New("stage not found in workflow")

// ErrInvalidTransition is returned when a requested stage transition is
// not allowed by the state machine.
var ErrInvalidTransition = errors.New("invalid stage transition")

// ErrDependenciesIncomplete is returned when a stage is started before
// all of its dependencies completed.
var ErrDependenciesIncomplete = errors.New("stage dependencies not completed")

// Executor owns the ExecutionState of one workflow run. It is the only
// component that mutates stage state.
type Executor struct {
	registry  *config.Registry
	orch      *orchestrator.Orchestrator
	gates     *gates.Evaluator
	ckpt      *checkpoint.Manager
	store     statestore.Store
	tracker   *tracker.Tracker
	publisher *events.Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	state *models.ExecutionState
}

// Option configures an Executor.
type Option func(*Executor)

// WithCheckpoints enables automatic checkpoints after stage transitions
// and at auto-run boundaries.
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(e *Executor) { e.ckpt = m }
}

// WithStore persists the live state blob after every transition.
func WithStore(s statestore.Store) Option {
	return func(e *Executor) { e.store = s }
}

// WithPublisher attaches the event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithState resumes from a previously persisted or restored state
// instead of starting fresh.
func WithState(state *models.ExecutionState) Option {
	return func(e *Executor) { e.state = state }
}

// WithTracker snapshots the execution log into persisted state and,
// when resuming, restores the log from it.
func WithTracker(tr *tracker.Tracker) Option {
	return func(e *Executor) { e.tracker = tr }
}

// NewExecutor creates an executor for the registry's workflow.
func NewExecutor(registry *config.Registry, orch *orchestrator.Orchestrator, ge *gates.Evaluator, opts ...Option) (*Executor, error) {
	wf := registry.Workflow()
	if wf == nil {
		return nil, models.NewConfigError("no workflow configured", nil)
	}
	e := &Executor{
		registry: registry,
		orch:     orch,
		gates:    ge,
		logger:   slog.With("component", "workflow", "workflow_id", wf.ID),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.state == nil {
		e.state = models.NewExecutionState(wf.ID)
	} else if e.tracker != nil {
		e.tracker.Restore(e.state.Tracker)
	}
	return e, nil
}

// State returns the live execution state. Callers must treat it as
// read-only.
func (e *Executor) State() *models.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// canTransition encodes the stage state machine.
func canTransition(from, to models.StageStatus) bool {
	switch from {
	case models.StagePending:
		return to == models.StageInProgress
	case models.StageInProgress:
		return to == models.StageCompleted || to == models.StageBlocked
	case models.StageBlocked:
		return to == models.StageInProgress
	default:
		return false
	}
}

// transition moves a stage to a new status after checking the machine.
func (e *Executor) transition(stageID string, to models.StageStatus) error {
	from := e.state.StageStatus(stageID)
	if !canTransition(from, to) {
		return fmt.Errorf("%w: stage %q %s → %s", ErrInvalidTransition, stageID, from, to)
	}
	e.state.StageStatuses[stageID] = to
	e.logger.Info("Stage transition", "stage_id", stageID, "from", from, "to", to)
	return nil
}

// resolveRole picks the acting role: explicit id, else the stage's
// declared role, else inference from required-skill overlap.
func (e *Executor) resolveRole(stage *models.Stage, roleID string) (*models.Role, error) {
	if roleID != "" {
		return e.registry.GetRole(roleID)
	}
	return e.orch.RoleFor(stage)
}

// Start moves a Pending stage with completed dependencies to
// InProgress. roleID may be empty. The stage body is not run; use
// RunStage for start-body-complete in one call.
func (e *Executor) Start(ctx context.Context, stageID, roleID string) (*models.Stage, *models.Role, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start(ctx, stageID, roleID)
}

func (e *Executor) start(_ context.Context, stageID, roleID string) (*models.Stage, *models.Role, error) {
	stage, ok := e.registry.Workflow().Stage(stageID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}
	for _, dep := range stage.DependsOn {
		if !e.state.StageCompleted(dep) {
			return nil, nil, fmt.Errorf("%w: stage %q needs %q", ErrDependenciesIncomplete, stageID, dep)
		}
	}

	role, err := e.resolveRole(stage, roleID)
	if err != nil {
		return nil, nil, err
	}

	if err := e.transition(stageID, models.StageInProgress); err != nil {
		return nil, nil, err
	}
	e.state.CurrentStageID = stageID
	e.state.CurrentRoleID = role.ID
	e.state.ActiveAgents[fmt.Sprintf("%s-%s", role.ID, stageID)] = role.ID
	return stage, role, nil
}

// Complete runs the stage's quality gates over the returned context and
// closes the stage: Completed when every blocking gate passes, Blocked
// with findings otherwise. Blocked stages surface a gate failure error.
func (e *Executor) Complete(ctx context.Context, stageID string, ac *models.AgentContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete(ctx, stageID, ac)
}

func (e *Executor) complete(ctx context.Context, stageID string, ac *models.AgentContext) error {
	stage, ok := e.registry.Workflow().Stage(stageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}

	passed, findings, err := e.gates.Evaluate(ctx, stage, ac)
	if err != nil {
		return err
	}
	for _, f := range findings {
		if f.Passed {
			continue
		}
		_ = e.publisher.PublishGateFailed(ctx, events.GateFailedPayload{
			StageID:  stageID,
			GateID:   f.GateID,
			Kind:     string(f.Kind),
			Blocking: f.Blocking,
			Message:  f.Message,
		})
	}

	if !passed {
		if err := e.transition(stageID, models.StageBlocked); err != nil {
			return err
		}
		msgs := failureMessages(findings)
		e.state.StageFindings[stageID] = msgs
		_ = e.publisher.PublishStageBlocked(ctx, events.StageBlockedPayload{
			StageID:  stageID,
			Findings: msgs,
		})
		e.afterTransition(ctx, stageID)
		return models.NewGateFailure(
			fmt.Sprintf("stage %q blocked: %s", stageID, strings.Join(msgs, "; ")))
	}

	if err := e.transition(stageID, models.StageCompleted); err != nil {
		return err
	}
	e.state.CompletedStages = append(e.state.CompletedStages, stageID)
	_ = e.publisher.PublishStageCompleted(ctx, events.StageCompletedPayload{
		StageID: stageID,
		Outputs: outputKeys(ac),
	})
	e.afterTransition(ctx, stageID)
	return nil
}

func outputKeys(ac *models.AgentContext) []string {
	if ac == nil {
		return nil
	}
	out := make([]string, 0, len(ac.Outputs))
	for k := range ac.Outputs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Retry returns a Blocked stage to InProgress with cleared findings and
// runs its body and gates again.
func (e *Executor) Retry(ctx context.Context, stageID, goal string) error {
	e.mu.Lock()
	if e.state.StageStatus(stageID) != models.StageBlocked {
		e.mu.Unlock()
		return fmt.Errorf("%w: stage %q is not blocked", ErrInvalidTransition, stageID)
	}
	if err := e.transition(stageID, models.StageInProgress); err != nil {
		e.mu.Unlock()
		return err
	}
	delete(e.state.StageFindings, stageID)
	stage, okStage := e.registry.Workflow().Stage(stageID)
	e.mu.Unlock()

	if !okStage {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}
	role, err := e.resolveRole(stage, "")
	if err != nil {
		return err
	}
	return e.runBody(ctx, stage, role, goal)
}

// RunStage starts the stage, runs its body through the orchestrator,
// and completes it. The full single-stage entry point.
func (e *Executor) RunStage(ctx context.Context, stageID, roleID, goal string) error {
	e.mu.Lock()
	stage, role, err := e.start(ctx, stageID, roleID)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.runBody(ctx, stage, role, goal)
}

func (e *Executor) runBody(ctx context.Context, stage *models.Stage, role *models.Role, goal string) error {
	ac, err := e.orch.ExecuteStage(ctx, stage, role, stageGoal(stage, goal))
	if err != nil {
		e.failStage(ctx, stage.ID, err)
		return err
	}
	return e.Complete(ctx, stage.ID, ac)
}

// failStage closes an InProgress stage whose body errored. The stage
// becomes Blocked with the error recorded as its only finding, so an
// explicit retry can pick it back up.
func (e *Executor) failStage(ctx context.Context, stageID string, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.transition(stageID, models.StageBlocked); err != nil {
		e.logger.Error("Stage failed outside InProgress", "stage_id", stageID, "error", cause)
		return
	}
	msgs := []string{cause.Error()}
	e.state.StageFindings[stageID] = msgs
	_ = e.publisher.PublishStageBlocked(ctx, events.StageBlockedPayload{
		StageID:  stageID,
		Findings: msgs,
	})
	e.afterTransition(ctx, stageID)
}

// Auto repeatedly starts every startable stage until the workflow
// completes or a stage fails. Pending stages whose dependencies are all
// Completed are startable; when several are startable at once and all
// are marked parallelizable they run concurrently.
func (e *Executor) Auto(ctx context.Context, goal string) error {
	for {
		if ctx.Err() != nil {
			e.mu.Lock()
			e.state.Cancelled = true
			e.mu.Unlock()
			// The store write must outlive the cancelled run context.
			e.persist(context.WithoutCancel(ctx))
			return fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
		}

		startable := e.startableStages()
		if len(startable) == 0 {
			return e.autoVerdict()
		}

		if len(startable) > 1 && allParallelizable(startable) {
			if err := e.runParallel(ctx, startable, goal); err != nil {
				return err
			}
		} else {
			if err := e.RunStage(ctx, startable[0].ID, "", goal); err != nil {
				return err
			}
		}
		e.autoCheckpoint(ctx, "auto")
	}
}

// runParallel drives one parallelizable partition through the
// orchestrator and closes each stage on its own result.
func (e *Executor) runParallel(ctx context.Context, stages []*models.Stage, goal string) error {
	for _, s := range stages {
		e.mu.Lock()
		_, _, err := e.start(ctx, s.ID, "")
		e.mu.Unlock()
		if err != nil {
			return err
		}
	}

	results, err := e.orch.ExecuteParallelStages(ctx, stages, goal)
	if err != nil {
		return err
	}

	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			e.failStage(ctx, r.StageID, r.Err)
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		if err := e.Complete(ctx, r.StageID, r.Context); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// startableStages returns Pending stages whose dependencies are all
// Completed, in workflow declaration order.
func (e *Executor) startableStages() []*models.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*models.Stage
	for _, stage := range e.registry.Workflow().Stages {
		if e.state.StageStatus(stage.ID) != models.StagePending {
			continue
		}
		ready := true
		for _, dep := range stage.DependsOn {
			if !e.state.StageCompleted(dep) {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, stage)
		}
	}
	return out
}

// autoVerdict decides how an auto run with no startable stages ends.
func (e *Executor) autoVerdict() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var blocked []string
	for _, stage := range e.registry.Workflow().Stages {
		switch e.state.StageStatus(stage.ID) {
		case models.StageCompleted:
		case models.StageBlocked:
			blocked = append(blocked, stage.ID)
		default:
			blocked = append(blocked, stage.ID)
		}
	}
	if len(blocked) == 0 {
		return nil
	}
	return models.NewGateFailure(
		fmt.Sprintf("workflow halted with unfinished stages: %s", strings.Join(blocked, ", ")))
}

// afterTransition persists the live state and takes the automatic
// post-transition checkpoint. Callers hold e.mu.
func (e *Executor) afterTransition(ctx context.Context, stageID string) {
	e.persistLocked(ctx)
	if e.ckpt != nil {
		if _, err := e.ckpt.Create(ctx, e.state, "auto-"+stageID); err != nil {
			e.logger.Warn("Automatic checkpoint failed", "stage_id", stageID, "error", err)
		}
	}
}

// autoCheckpoint takes a checkpoint at an auto-run boundary.
func (e *Executor) autoCheckpoint(ctx context.Context, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked(ctx)
	if e.ckpt != nil {
		if _, err := e.ckpt.Create(ctx, e.state, name); err != nil {
			e.logger.Warn("Automatic checkpoint failed", "error", err)
		}
	}
}

func (e *Executor) persist(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistLocked(ctx)
}

func (e *Executor) persistLocked(ctx context.Context) {
	if e.tracker != nil {
		e.state.Tracker = e.tracker.Snapshot()
	}
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, e.state.WorkflowID, e.state); err != nil {
		e.logger.Warn("Failed to persist state", "error", err)
	}
}

// StageReport is one stage line in a run report.
type StageReport struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Findings []string `json:"findings,omitempty"`
}

// Report summarizes a run for CLI output and event sink consumers.
type Report struct {
	WorkflowID string        `json:"workflow_id"`
	Completed  bool          `json:"completed"`
	Cancelled  bool          `json:"cancelled"`
	Stages     []StageReport `json:"stages"`
	Executions int           `json:"executions"`
	Successes  int           `json:"successes"`
	Failures   int           `json:"failures"`
}

// Report builds a summary of the run so far.
func (e *Executor) Report() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &Report{
		WorkflowID: e.state.WorkflowID,
		Cancelled:  e.state.Cancelled,
		Completed:  true,
		Executions: len(e.state.Tracker),
	}
	for _, stage := range e.registry.Workflow().Stages {
		status := e.state.StageStatus(stage.ID)
		if status != models.StageCompleted {
			r.Completed = false
		}
		r.Stages = append(r.Stages, StageReport{
			ID:       stage.ID,
			Status:   string(status),
			Findings: e.state.StageFindings[stage.ID],
		})
	}
	for _, exec := range e.state.Tracker {
		if exec.Succeeded() {
			r.Successes++
		} else if exec.Status != models.ExecutionSkipped {
			r.Failures++
		}
	}
	return r
}

func failureMessages(findings []gates.Finding) []string {
	var out []string
	for _, f := range findings {
		if !f.Passed && f.Blocking {
			out = append(out, fmt.Sprintf("%s: %s", f.GateID, f.Message))
		}
	}
	return out
}

func allParallelizable(stages []*models.Stage) bool {
	for _, s := range stages {
		if !s.Parallelizable {
			return false
		}
	}
	return true
}

// stageGoal composes the agent goal for a stage body.
func stageGoal(stage *models.Stage, goal string) string {
	if goal == "" {
		return stage.Name
	}
	if stage.Name == "" {
		return goal
	}
	return fmt.Sprintf("%s: %s", stage.Name, goal)
}
