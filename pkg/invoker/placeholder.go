package invoker

import (
	"context"
	"fmt"

	"github.com/rolewise/rolewise/pkg/models"
)

// PlaceholderInvoker synthesizes plausible output from the skill's
// output schema without doing real work. It backs dry runs and skills
// with no executable backend, and supports every skill, so it belongs
// last in the dispatcher's invoker list.
type PlaceholderInvoker struct{}

// NewPlaceholder creates a placeholder invoker.
func NewPlaceholder() *PlaceholderInvoker {
	return &PlaceholderInvoker{}
}

func (p *PlaceholderInvoker) Name() string { return "placeholder" }

func (p *PlaceholderInvoker) Supports(_ *models.Skill) bool { return true }

// Invoke builds output matching the skill's output schema: each
// declared property gets a type-appropriate mock value. Skills without
// a schema get a generic result.
func (p *PlaceholderInvoker) Invoke(_ context.Context, skill *models.Skill, _ map[string]any, _ *models.AgentContext) (map[string]any, error) {
	props, ok := schemaProperties(skill.OutputSchema)
	if !ok || len(props) == 0 {
		return map[string]any{
			"result": fmt.Sprintf("executed %s", skill.Name),
		}, nil
	}

	out := make(map[string]any, len(props))
	for name, spec := range props {
		out[name] = mockValue(name, spec)
	}
	return out, nil
}

// schemaProperties extracts the properties map from an object schema.
func schemaProperties(schema map[string]any) (map[string]any, bool) {
	if schema == nil {
		return nil, false
	}
	props, ok := schema["properties"].(map[string]any)
	return props, ok
}

func mockValue(name string, spec any) any {
	propType := ""
	if m, ok := spec.(map[string]any); ok {
		propType, _ = m["type"].(string)
	}
	switch propType {
	case "number", "integer":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return fmt.Sprintf("[mock_%s]", name)
	}
}
