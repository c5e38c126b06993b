package invoker

import (
	"context"
	"fmt"

	"github.com/rolewise/rolewise/pkg/mcp"
	"github.com/rolewise/rolewise/pkg/models"
)

// MCPInvoker executes skills backed by MCP servers: listing resources,
// fetching a resource, or calling a tool, per the skill's metadata.
type MCPInvoker struct {
	client *mcp.Client
}

// NewMCP creates an MCP-backed invoker.
func NewMCP(client *mcp.Client) *MCPInvoker {
	return &MCPInvoker{client: client}
}

func (m *MCPInvoker) Name() string { return "mcp" }

func (m *MCPInvoker) Supports(skill *models.Skill) bool {
	return skill.Metadata.MCP != nil
}

func (m *MCPInvoker) Invoke(ctx context.Context, skill *models.Skill, input map[string]any, _ *models.AgentContext) (map[string]any, error) {
	spec := skill.Metadata.MCP
	if spec == nil {
		return nil, fmt.Errorf("skill %q has no MCP metadata", skill.ID)
	}

	switch spec.Action {
	case models.MCPActionListResources:
		uris, err := m.client.ListResources(ctx, spec.Server)
		if err != nil {
			return nil, err
		}
		resources := make([]any, 0, len(uris))
		for _, uri := range uris {
			resources = append(resources, uri)
		}
		return map[string]any{"resources": resources}, nil

	case models.MCPActionFetchResource:
		content, err := m.client.ReadResource(ctx, spec.Server, spec.ResourceURI)
		if err != nil {
			return nil, err
		}
		return map[string]any{"content": content}, nil

	case models.MCPActionCallTool:
		result, err := m.client.CallTool(ctx, spec.Server, spec.Tool, input)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": result}, nil

	default:
		return nil, fmt.Errorf("unknown MCP action %q for skill %q", spec.Action, skill.ID)
	}
}
