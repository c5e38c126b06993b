// Package config loads, merges, and validates the engine configuration:
// skills, skill bundles, roles, the workflow definition, MCP servers,
// and engine defaults. Built-in entities are merged with user YAML
// (user wins), then everything is validated totally; a partially valid
// configuration is rejected so downstream components can assume every
// reference resolves.
package config

import (
	"github.com/rolewise/rolewise/pkg/models"
)

// RolewiseYAMLConfig represents the complete rolewise.yaml file structure.
// Entity maps are keyed by id; the key is copied into the entity on load.
type RolewiseYAMLConfig struct {
	Skills       map[string]*models.Skill       `yaml:"skills"`
	SkillBundles map[string]*models.SkillBundle `yaml:"skill_bundles"`
	Roles        map[string]*models.Role        `yaml:"roles"`
	Workflow     *models.Workflow               `yaml:"workflow"`
	MCPServers   map[string]*MCPServerConfig    `yaml:"mcp_servers"`
	Defaults     *Defaults                      `yaml:"defaults"`
	LLM          *LLMConfig                     `yaml:"llm"`
}

// Defaults groups engine-wide settings with built-in fallbacks.
type Defaults struct {
	// DefaultRole receives decomposed tasks that match no role.
	DefaultRole string `yaml:"default_role"`

	// StateDir is the file state store root.
	StateDir string `yaml:"state_dir"`

	// ProjectContext is opaque context handed to every agent.
	ProjectContext map[string]any `yaml:"project_context"`

	// JournalPath enables the durable bus journal when non-empty.
	JournalPath string `yaml:"journal_path"`
}

// LLMConfig configures the optional LLM client. When absent, LLM-backed
// invokers and LLM decomposition are disabled and the engine runs on the
// placeholder and MCP invokers alone.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // currently "anthropic"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// TransportType identifies how to reach an MCP server.
type TransportType string

const (
	TransportTypeStdio TransportType = "stdio"
	TransportTypeHTTP  TransportType = "http"
)

// TransportConfig describes the connection to one MCP server.
type TransportConfig struct {
	Type TransportType `yaml:"type"`

	// Stdio transport
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// HTTP transport
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	Timeout     int    `yaml:"timeout,omitempty"` // seconds
}

// MCPServerConfig describes one MCP server entry.
type MCPServerConfig struct {
	ID        string          `yaml:"id,omitempty"`
	Transport TransportConfig `yaml:"transport"`
}

// Config is the fully loaded, validated configuration.
type Config struct {
	configDir string

	Defaults *Defaults
	LLM      *LLMConfig

	Registry          *Registry
	MCPServerRegistry *MCPServerRegistry
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetRole returns the role with the given id.
func (c *Config) GetRole(id string) (*models.Role, error) {
	return c.Registry.GetRole(id)
}

// GetSkill returns the skill with the given id.
func (c *Config) GetSkill(id string) (*models.Skill, error) {
	return c.Registry.GetSkill(id)
}

// Workflow returns the loaded workflow definition.
func (c *Config) Workflow() *models.Workflow {
	return c.Registry.Workflow()
}

// AllMCPServerIDs returns the ids of all configured MCP servers.
func (c *Config) AllMCPServerIDs() []string {
	return c.MCPServerRegistry.IDs()
}

// Stats summarizes registry sizes for startup logging.
type Stats struct {
	Skills     int
	Bundles    int
	Roles      int
	Stages     int
	MCPServers int
}

// Stats returns registry entity counts.
func (c *Config) Stats() Stats {
	s := Stats{
		Skills:     len(c.Registry.skills),
		Bundles:    len(c.Registry.bundles),
		Roles:      len(c.Registry.roles),
		MCPServers: c.MCPServerRegistry.Len(),
	}
	if wf := c.Registry.Workflow(); wf != nil {
		s.Stages = len(wf.Stages)
	}
	return s
}
