// Package decomposer turns a free-form goal into a task decomposition:
// concrete tasks mapped onto the workflow's stages, with dependencies
// and role assignments resolved. An LLM plans the decomposition when a
// client is configured; a deterministic rule strategy is the fallback
// and the baseline.
package decomposer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/llm"
	"github.com/rolewise/rolewise/pkg/models"
)

// ErrCyclicDecomposition indicates task dependencies that contain a
// cycle and therefore admit no execution order.
var ErrCyclicDecomposition = errors.New("cyclic task decomposition")

// ErrNoWorkflow indicates decomposition was attempted without a
// workflow definition to map tasks onto.
var ErrNoWorkflow = errors.New("no workflow configured")

const (
	StrategyLLM   = "llm"
	StrategyRules = "rule"
)

// Decomposer plans task decompositions for goals.
type Decomposer struct {
	registry    *config.Registry
	client      llm.Client
	defaultRole string
	logger      *slog.Logger
}

// Option customizes a decomposer.
type Option func(*Decomposer)

// WithLLM enables LLM-planned decomposition with rule fallback.
func WithLLM(client llm.Client) Option {
	return func(d *Decomposer) { d.client = client }
}

// New creates a decomposer. defaultRole receives tasks no other role
// matches.
func New(registry *config.Registry, defaultRole string, opts ...Option) *Decomposer {
	d := &Decomposer{
		registry:    registry,
		defaultRole: defaultRole,
		logger:      slog.With("component", "decomposer"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose plans tasks for the goal against the configured workflow.
func (d *Decomposer) Decompose(ctx context.Context, goal string) (*models.TaskDecomposition, error) {
	wf := d.registry.Workflow()
	if wf == nil || len(wf.Stages) == 0 {
		return nil, ErrNoWorkflow
	}

	if d.client != nil {
		dec, err := d.llmDecompose(ctx, goal, wf)
		if err == nil {
			return dec, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		d.logger.Warn("LLM decomposition failed, falling back to rules", "error", err)
	}

	return d.ruleDecompose(goal, wf)
}

// ruleDecompose maps goal keywords onto workflow stages and creates one
// task per mapped stage, pulling in each mapped stage's transitive
// dependencies so the plan stays executable. An empty goal yields zero
// tasks; a goal touching no stage vocabulary yields a single generic
// task under the default role. Task dependencies mirror stage
// dependencies within the mapped set; roles resolve from the stage,
// skill matching, or the default role, in that order.
func (d *Decomposer) ruleDecompose(goal string, wf *models.Workflow) (*models.TaskDecomposition, error) {
	goalTokens := tokens(goal)
	if len(goalTokens) == 0 {
		return d.assemble(nil, StrategyRules)
	}

	mapped := map[string]bool{}
	for _, stage := range wf.Stages {
		if overlaps(goalTokens, d.stageVocabulary(stage)) {
			mapped[stage.ID] = true
		}
	}
	d.closeOverDependencies(wf, mapped)

	if len(mapped) == 0 {
		d.logger.Info("Goal matched no stage vocabulary, planning a single generic task",
			"goal", goal)
		task := &models.Task{
			ID:          "task-goal",
			Description: strings.TrimSpace(goal),
			RoleID:      firstNonEmpty(wf.DefaultRole, d.defaultRole),
			Status:      models.TaskPending,
			Inputs:      map[string]any{"goal": goal},
		}
		return d.assemble([]*models.Task{task}, StrategyRules)
	}

	tasks := make([]*models.Task, 0, len(mapped))
	for _, stage := range wf.Stages {
		if !mapped[stage.ID] {
			continue
		}
		deps := make([]string, 0, len(stage.DependsOn))
		for _, dep := range stage.DependsOn {
			if mapped[dep] {
				deps = append(deps, taskID(dep))
			}
		}

		tasks = append(tasks, &models.Task{
			ID:          taskID(stage.ID),
			Description: taskDescription(goal, stage),
			RoleID:      d.resolveRole(stage, wf),
			DependsOn:   deps,
			Status:      models.TaskPending,
			StageID:     stage.ID,
			Inputs:      map[string]any{"goal": goal},
		})
	}
	return d.assemble(tasks, StrategyRules)
}

// Keyword classes shared by goals and stages. A stage inherits a class
// vocabulary when its execution mode names the class or its own words
// already touch it, so "add caching" reaches an "implement" stage.
var keywordClasses = map[string][]string{
	"analysis":       {"analyze", "analyse", "design", "plan", "assess", "evaluate", "review", "requirements"},
	"implementation": {"implement", "write", "build", "add", "create", "fix", "refactor", "develop", "code"},
}

// stageVocabulary collects the tokens a goal can map the stage by: id,
// name, declared outputs, required skill ids, execution mode, and the
// keyword classes those words belong to.
func (d *Decomposer) stageVocabulary(stage *models.Stage) map[string]struct{} {
	parts := []string{stage.ID, stage.Name, stage.ExecutionMode}
	parts = append(parts, stage.Outputs...)
	for _, req := range stage.RequiredSkills {
		parts = append(parts, strings.ReplaceAll(req.SkillID, "_", " "))
	}
	vocab := tokens(strings.Join(parts, " "))

	for class, words := range keywordClasses {
		inClass := stage.ExecutionMode == class
		for _, w := range words {
			if _, ok := vocab[w]; ok {
				inClass = true
				break
			}
		}
		if inClass {
			for _, w := range words {
				vocab[w] = struct{}{}
			}
		}
	}
	return vocab
}

// closeOverDependencies extends the mapped set with every transitive
// dependency of a mapped stage.
func (d *Decomposer) closeOverDependencies(wf *models.Workflow, mapped map[string]bool) {
	deps := make(map[string][]string, len(wf.Stages))
	for _, stage := range wf.Stages {
		deps[stage.ID] = stage.DependsOn
	}

	var visit func(id string)
	visit = func(id string) {
		for _, dep := range deps[id] {
			if !mapped[dep] {
				mapped[dep] = true
				visit(dep)
			}
		}
	}
	for id := range mapped {
		visit(id)
	}
}

// assemble builds the dependency graph and execution order shared by
// both strategies.
func (d *Decomposer) assemble(tasks []*models.Task, strategy string) (*models.TaskDecomposition, error) {
	graph := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		graph[task.ID] = append([]string{}, task.DependsOn...)
	}

	order, err := topoGroups(tasks)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Decomposed goal",
		"strategy", strategy, "tasks", len(tasks), "groups", len(order))

	return &models.TaskDecomposition{
		Tasks:           tasks,
		ExecutionOrder:  order,
		DependencyGraph: graph,
		Strategy:        strategy,
	}, nil
}

// resolveRole picks the acting role for a stage: the stage's explicit
// role, then the role whose skill set best covers the stage's required
// skills, then the default.
func (d *Decomposer) resolveRole(stage *models.Stage, wf *models.Workflow) string {
	if stage.RoleID != "" {
		return stage.RoleID
	}

	if len(stage.RequiredSkills) > 0 {
		bestRole := ""
		bestOverlap := 0
		for _, role := range d.registry.AllRoles() {
			overlap := 0
			for _, req := range stage.RequiredSkills {
				if role.Authorizes(req.SkillID) {
					overlap++
				}
			}
			// Ties keep the first role in id order.
			if overlap > bestOverlap {
				bestOverlap = overlap
				bestRole = role.ID
			}
		}
		if bestRole != "" {
			return bestRole
		}
	}

	if wf.DefaultRole != "" {
		return wf.DefaultRole
	}
	return d.defaultRole
}

// topoGroups sorts tasks into dependency layers: every task in a group
// depends only on tasks in earlier groups, so groups run sequentially
// and members of a group can run together.
func topoGroups(tasks []*models.Task) ([][]string, error) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		indegree[task.ID] = 0
	}
	for _, task := range tasks {
		for _, dep := range task.DependsOn {
			if _, ok := indegree[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", task.ID, dep)
			}
			indegree[task.ID]++
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	var order [][]string
	remaining := len(tasks)
	frontier := make([]string, 0, len(tasks))
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		order = append(order, frontier)
		remaining -= len(frontier)

		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d tasks unreachable", ErrCyclicDecomposition, remaining)
	}
	return order, nil
}

func taskID(stageID string) string {
	return "task-" + stageID
}

func tokens(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// taskDescription blends the goal into the stage's vocabulary so skill
// selection sees both.
func taskDescription(goal string, stage *models.Stage) string {
	name := stage.Name
	if name == "" {
		name = stage.ID
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, goal)
}
