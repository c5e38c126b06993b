package decomposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rolewise/rolewise/pkg/llm"
	"github.com/rolewise/rolewise/pkg/models"
)

// plannedTask is the JSON shape the model is asked to produce.
type plannedTask struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	RoleID      string   `json:"role_id"`
	DependsOn   []string `json:"depends_on"`
	StageID     string   `json:"stage_id"`
}

type plan struct {
	Tasks []plannedTask `json:"tasks"`
}

// llmDecompose asks the model for a task plan and validates it against
// the registry. Any defect in the plan is an error; the caller falls
// back to the rule strategy.
func (d *Decomposer) llmDecompose(ctx context.Context, goal string, wf *models.Workflow) (*models.TaskDecomposition, error) {
	text, err := llm.Collect(ctx, d.client, llm.GenerateInput{
		System: d.planSystemPrompt(wf),
		Prompt: fmt.Sprintf("Goal:\n%s", goal),
	})
	if err != nil {
		return nil, err
	}

	parsed, err := parsePlan(text)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(parsed.Tasks))
	for _, pt := range parsed.Tasks {
		if pt.ID == "" || pt.Description == "" {
			return nil, fmt.Errorf("planned task missing id or description")
		}
		roleID := pt.RoleID
		if roleID == "" {
			roleID = d.defaultRole
		}
		if _, err := d.registry.GetRole(roleID); err != nil {
			return nil, fmt.Errorf("planned task %q: %w", pt.ID, err)
		}
		if pt.StageID != "" {
			if _, ok := wf.Stage(pt.StageID); !ok {
				return nil, fmt.Errorf("planned task %q references unknown stage %q", pt.ID, pt.StageID)
			}
		}

		tasks = append(tasks, &models.Task{
			ID:          pt.ID,
			Description: pt.Description,
			RoleID:      roleID,
			DependsOn:   pt.DependsOn,
			Status:      models.TaskPending,
			StageID:     pt.StageID,
			Inputs:      map[string]any{"goal": goal},
		})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("model produced an empty plan")
	}

	return d.assemble(tasks, StrategyLLM)
}

func (d *Decomposer) planSystemPrompt(wf *models.Workflow) string {
	var sb strings.Builder
	sb.WriteString("You decompose a goal into tasks for a multi-agent workflow engine. ")
	sb.WriteString("Respond with a single JSON object: {\"tasks\": [{\"id\", \"description\", \"role_id\", \"depends_on\", \"stage_id\"}]}.\n")
	sb.WriteString("Dependencies must form a DAG. Available stages:\n")
	for _, stage := range wf.Stages {
		fmt.Fprintf(&sb, "- %s (%s), depends on %v\n", stage.ID, stage.Name, stage.DependsOn)
	}
	sb.WriteString("Available roles:\n")
	for _, role := range d.registry.AllRoles() {
		fmt.Fprintf(&sb, "- %s (%s)\n", role.ID, role.Name)
	}
	return sb.String()
}

// parsePlan extracts the plan object from model output, tolerating
// prose and markdown fences around it.
func parsePlan(text string) (*plan, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	decoder := json.NewDecoder(strings.NewReader(text[start:]))
	var p plan
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &p, nil
}
