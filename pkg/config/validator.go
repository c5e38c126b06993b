package config

import (
	"fmt"
	"regexp"

	"github.com/rolewise/rolewise/pkg/models"
)

// Validator performs total validation of a loaded configuration. All
// checks run against the fully merged, fully expanded registry; the
// first failure is returned and the configuration is rejected whole.
type Validator struct {
	cfg        *Config
	predicates map[string]bool
}

// NewValidator creates a validator. predicates holds the custom gate
// predicate ids registered by the caller.
func NewValidator(cfg *Config, predicates map[string]bool) *Validator {
	if predicates == nil {
		predicates = map[string]bool{}
	}
	return &Validator{cfg: cfg, predicates: predicates}
}

// ValidateAll runs every validation pass.
func (v *Validator) ValidateAll() error {
	if err := v.validateSkills(); err != nil {
		return err
	}
	if err := v.validateBundles(); err != nil {
		return err
	}
	if err := v.validateRoles(); err != nil {
		return err
	}
	if err := v.validateMCPServers(); err != nil {
		return err
	}
	if err := v.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateMCPServers() error {
	for _, id := range v.cfg.MCPServerRegistry.IDs() {
		server, err := v.cfg.MCPServerRegistry.Get(id)
		if err != nil {
			return err
		}
		switch server.Transport.Type {
		case TransportTypeStdio:
			if server.Transport.Command == "" {
				return NewValidationError("mcp_server", id, "transport.command",
					fmt.Errorf("required for stdio transport"))
			}
		case TransportTypeHTTP:
			if server.Transport.URL == "" {
				return NewValidationError("mcp_server", id, "transport.url",
					fmt.Errorf("required for http transport"))
			}
		default:
			return NewValidationError("mcp_server", id, "transport.type",
				fmt.Errorf("unknown transport type %q", server.Transport.Type))
		}
	}
	return nil
}

func (v *Validator) validateSkills() error {
	for _, skill := range v.cfg.Registry.AllSkills() {
		if skill.ID == "" {
			return NewValidationError("skill", skill.Name, "id",
				fmt.Errorf("id must not be empty"))
		}
		for level := range skill.Levels {
			if level < models.MinSkillLevel || level > models.MaxSkillLevel {
				return NewValidationError("skill", skill.ID, "levels",
					fmt.Errorf("%w: %d", ErrLevelOutOfRange, level))
			}
		}
		if mcp := skill.Metadata.MCP; mcp != nil {
			if err := v.validateMCPSpec(skill.ID, mcp); err != nil {
				return err
			}
		}
		for _, member := range skill.Metadata.ComposedOf {
			if _, err := v.cfg.Registry.GetSkill(member); err != nil {
				return NewValidationError("skill", skill.ID, "metadata.composed_of",
					fmt.Errorf("%w: skill %q", ErrMissingRef, member))
			}
		}
	}
	return nil
}

func (v *Validator) validateMCPSpec(skillID string, mcp *models.MCPSpec) error {
	switch mcp.Action {
	case models.MCPActionListResources:
	case models.MCPActionFetchResource:
		if mcp.ResourceURI == "" {
			return NewValidationError("skill", skillID, "metadata.mcp.resource_uri",
				fmt.Errorf("required for action %q", mcp.Action))
		}
	case models.MCPActionCallTool:
		if mcp.Tool == "" {
			return NewValidationError("skill", skillID, "metadata.mcp.tool",
				fmt.Errorf("required for action %q", mcp.Action))
		}
	default:
		return NewValidationError("skill", skillID, "metadata.mcp.action",
			fmt.Errorf("unknown MCP action %q", mcp.Action))
	}
	if mcp.Server == "" {
		return NewValidationError("skill", skillID, "metadata.mcp.server",
			fmt.Errorf("server is required"))
	}
	if _, err := v.cfg.MCPServerRegistry.Get(mcp.Server); err != nil {
		return NewValidationError("skill", skillID, "metadata.mcp.server",
			fmt.Errorf("%w: mcp server %q", ErrMissingRef, mcp.Server))
	}
	return nil
}

func (v *Validator) validateBundles() error {
	// Role expansion already proved acyclicity for bundles reachable from
	// roles; check membership resolution for every bundle, reachable or
	// not.
	for id, bundle := range v.cfg.Registry.bundles {
		for _, req := range bundle.Skills {
			if _, bundleErr := v.cfg.Registry.GetBundle(req.SkillID); bundleErr == nil {
				continue
			}
			if _, err := v.cfg.Registry.GetSkill(req.SkillID); err != nil {
				return NewValidationError("bundle", id, "skills",
					fmt.Errorf("%w: skill %q", ErrMissingRef, req.SkillID))
			}
		}
	}
	return nil
}

func (v *Validator) validateRoles() error {
	for _, role := range v.cfg.Registry.AllRoles() {
		allowed := map[string]bool{}
		for _, a := range role.Constraints.AllowedActions {
			allowed[a] = true
		}
		for _, f := range role.Constraints.ForbiddenActions {
			if allowed[f] {
				return NewValidationError("role", role.ID, "constraints",
					fmt.Errorf("%w: %q", ErrActionOverlap, f))
			}
		}

		for _, req := range role.RequiredSkills {
			if _, err := v.cfg.Registry.GetSkill(req.SkillID); err != nil {
				return NewValidationError("role", role.ID, "required_skills",
					fmt.Errorf("%w: skill %q", ErrMissingRef, req.SkillID))
			}
			if req.MinLevel < models.MinSkillLevel || req.MinLevel > models.MaxSkillLevel {
				return NewValidationError("role", role.ID, "required_skills",
					fmt.Errorf("%w: %d for skill %q", ErrLevelOutOfRange, req.MinLevel, req.SkillID))
			}
		}
	}
	return nil
}

func (v *Validator) validateWorkflow() error {
	wf := v.cfg.Registry.Workflow()
	if wf == nil {
		return nil
	}

	seen := map[string]bool{}
	for _, stage := range wf.Stages {
		if stage.ID == "" {
			return NewValidationError("stage", stage.Name, "id",
				fmt.Errorf("id must not be empty"))
		}
		if seen[stage.ID] {
			return NewValidationError("stage", stage.ID, "",
				fmt.Errorf("%w: stage %q", ErrDuplicateID, stage.ID))
		}
		seen[stage.ID] = true
	}

	if wf.DefaultRole != "" {
		if _, err := v.cfg.Registry.GetRole(wf.DefaultRole); err != nil {
			return NewValidationError("workflow", wf.ID, "default_role",
				fmt.Errorf("%w: role %q", ErrMissingRef, wf.DefaultRole))
		}
	}

	sources := 0
	for _, stage := range wf.Stages {
		if len(stage.DependsOn) == 0 {
			sources++
		}
		for _, dep := range stage.DependsOn {
			if !seen[dep] {
				return NewValidationError("stage", stage.ID, "depends_on",
					fmt.Errorf("%w: stage %q", ErrMissingRef, dep))
			}
		}
		if err := v.validateStage(stage); err != nil {
			return err
		}
	}
	if len(wf.Stages) > 0 && sources != 1 {
		return NewValidationError("workflow", wf.ID, "stages",
			fmt.Errorf("expected exactly one source stage with no dependencies, found %d", sources))
	}

	return v.checkStageCycles(wf)
}

func (v *Validator) validateStage(stage *models.Stage) error {
	var role *models.Role
	if stage.RoleID != "" {
		r, err := v.cfg.Registry.GetRole(stage.RoleID)
		if err != nil {
			return NewValidationError("stage", stage.ID, "role_id",
				fmt.Errorf("%w: role %q", ErrMissingRef, stage.RoleID))
		}
		role = r
	}

	for _, req := range stage.RequiredSkills {
		skill, err := v.cfg.Registry.GetSkill(req.SkillID)
		if err != nil {
			return NewValidationError("stage", stage.ID, "required_skills",
				fmt.Errorf("%w: skill %q", ErrMissingRef, req.SkillID))
		}
		if role != nil && role.Constraints.Forbids(skill.ExecutionCapabilities) {
			return NewValidationError("stage", stage.ID, "required_skills",
				fmt.Errorf("%w: skill %q, role %q", ErrUnauthorizedStageSkill, req.SkillID, role.ID))
		}
		// The assigned role must also carry the skill in its expanded
		// required set.
		if role != nil && !role.Authorizes(req.SkillID) {
			return NewValidationError("stage", stage.ID, "required_skills",
				fmt.Errorf("%w: skill %q not required by role %q", ErrUnauthorizedStageSkill, req.SkillID, role.ID))
		}
	}

	for _, gate := range stage.QualityGates {
		if err := v.validateGate(stage.ID, gate); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateGate(stageID string, gate models.QualityGate) error {
	switch gate.Kind {
	case models.GateArtifactExists:
		if stringParam(gate.Parameters, "output") == "" {
			return NewValidationError("gate", gate.ID, "parameters.output",
				fmt.Errorf("required for %s gate (stage %q)", gate.Kind, stageID))
		}
	case models.GateRegexMatch:
		pattern := stringParam(gate.Parameters, "pattern")
		if pattern == "" {
			return NewValidationError("gate", gate.ID, "parameters.pattern",
				fmt.Errorf("required for %s gate (stage %q)", gate.Kind, stageID))
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return NewValidationError("gate", gate.ID, "parameters.pattern",
				fmt.Errorf("invalid regex: %w", err))
		}
	case models.GateCountThreshold:
		if stringParam(gate.Parameters, "output") == "" {
			return NewValidationError("gate", gate.ID, "parameters.output",
				fmt.Errorf("required for %s gate (stage %q)", gate.Kind, stageID))
		}
		if _, ok := numberParam(gate.Parameters, "threshold"); !ok {
			return NewValidationError("gate", gate.ID, "parameters.threshold",
				fmt.Errorf("numeric threshold required for %s gate (stage %q)", gate.Kind, stageID))
		}
	case models.GateCustomPredicate:
		predicate := stringParam(gate.Parameters, "predicate")
		if predicate == "" {
			return NewValidationError("gate", gate.ID, "parameters.predicate",
				fmt.Errorf("required for %s gate (stage %q)", gate.Kind, stageID))
		}
		if !v.predicates[predicate] {
			return NewValidationError("gate", gate.ID, "parameters.predicate",
				fmt.Errorf("%w: %q", ErrUnregisteredPredicate, predicate))
		}
	default:
		return NewValidationError("gate", gate.ID, "kind",
			fmt.Errorf("unknown gate kind %q (stage %q)", gate.Kind, stageID))
	}
	return nil
}

// checkStageCycles rejects workflows whose depends_on edges contain a
// cycle, using iterative DFS with three-color marking.
func (v *Validator) checkStageCycles(wf *models.Workflow) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	deps := map[string][]string{}
	for _, s := range wf.Stages {
		deps[s.ID] = s.DependsOn
	}

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return NewValidationError("workflow", wf.ID, "stages",
				fmt.Errorf("%w: involving stage %q", ErrWorkflowCycle, id))
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, s := range wf.Stages {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func numberParam(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch n := params[key].(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
