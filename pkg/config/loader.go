package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/rolewise/rolewise/pkg/models"
)

// Option customizes configuration loading.
type Option func(*loadOptions)

type loadOptions struct {
	predicates map[string]bool
}

// WithPredicates declares the custom gate predicate ids registered by
// the embedding application. Gates referencing any other predicate are
// rejected at load time, never at runtime.
func WithPredicates(ids ...string) Option {
	return func(o *loadOptions) {
		for _, id := range ids {
			o.predicates[id] = true
		}
	}
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load rolewise.yaml from configDir
//  2. Expand environment variables
//  3. Merge built-in + user-defined entities (user overrides built-in)
//  4. Build the registry (bundle + extends expansion)
//  5. Apply default values
//  6. Validate all configuration
func Initialize(ctx context.Context, configDir string, opts ...Option) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	options := &loadOptions{predicates: map[string]bool{}}
	for _, opt := range opts {
		opt(options)
	}

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg, options); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"skills", stats.Skills,
		"bundles", stats.Bundles,
		"roles", stats.Roles,
		"stages", stats.Stages,
		"mcp_servers", stats.MCPServers)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	userCfg, err := loader.loadRolewiseYAML()
	if err != nil {
		return nil, NewLoadError("rolewise.yaml", err)
	}

	builtin := GetBuiltinConfig()

	skills, err := mergeSkills(builtin.Skills, userCfg.Skills)
	if err != nil {
		return nil, err
	}
	bundles := mergeBundles(builtin.SkillBundles, userCfg.SkillBundles)
	roles, err := mergeRoles(builtin.Roles, userCfg.Roles)
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(skills, bundles, roles, userCfg.Workflow)
	if err != nil {
		return nil, err
	}

	defaults := &Defaults{
		DefaultRole: builtin.DefaultRole,
		StateDir:    builtin.StateDir,
	}
	if userCfg.Defaults != nil {
		if err := mergo.Merge(defaults, userCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	return &Config{
		configDir:         configDir,
		Defaults:          defaults,
		LLM:               userCfg.LLM,
		Registry:          registry,
		MCPServerRegistry: NewMCPServerRegistry(userCfg.MCPServers),
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config, opts *loadOptions) error {
	validator := NewValidator(cfg, opts.predicates)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadRolewiseYAML() (*RolewiseYAMLConfig, error) {
	var cfg RolewiseYAMLConfig

	// Initialize maps to avoid nil maps
	cfg.Skills = make(map[string]*models.Skill)
	cfg.SkillBundles = make(map[string]*models.SkillBundle)
	cfg.Roles = make(map[string]*models.Role)
	cfg.MCPServers = make(map[string]*MCPServerConfig)

	if err := l.loadYAML("rolewise.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
