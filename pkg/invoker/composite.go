package invoker

import (
	"context"
	"fmt"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/models"
)

// CompositeInvoker executes skills composed of other skills. Members
// run in declaration order through the dispatcher; each member's output
// merges into the input of the next, and the final merged map is the
// composite's output.
type CompositeInvoker struct {
	registry   *config.Registry
	dispatcher *Dispatcher
}

// NewComposite creates a composite invoker. The dispatcher reference is
// set after construction because the two depend on each other.
func NewComposite(registry *config.Registry) *CompositeInvoker {
	return &CompositeInvoker{registry: registry}
}

// Bind attaches the dispatcher the composite delegates member skills to.
func (c *CompositeInvoker) Bind(d *Dispatcher) {
	c.dispatcher = d
}

func (c *CompositeInvoker) Name() string { return "composite" }

func (c *CompositeInvoker) Supports(skill *models.Skill) bool {
	return len(skill.Metadata.ComposedOf) > 0
}

func (c *CompositeInvoker) Invoke(ctx context.Context, skill *models.Skill, input map[string]any, ac *models.AgentContext) (map[string]any, error) {
	if c.dispatcher == nil {
		return nil, models.NewInternalError("composite invoker is not bound to a dispatcher", nil)
	}

	merged := make(map[string]any, len(input))
	for k, v := range input {
		merged[k] = v
	}

	for _, memberID := range skill.Metadata.ComposedOf {
		member, err := c.registry.GetSkill(memberID)
		if err != nil {
			return nil, fmt.Errorf("composite skill %q: %w", skill.ID, err)
		}

		exec, err := c.dispatcher.Execute(ctx, Request{
			Skill:   member,
			Input:   merged,
			Context: ac,
		})
		if err != nil {
			return nil, fmt.Errorf("composite member %q: %w", memberID, err)
		}
		for k, v := range exec.Output {
			merged[k] = v
		}
	}

	return merged, nil
}
