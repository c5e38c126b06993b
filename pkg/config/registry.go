package config

import (
	"fmt"
	"sort"

	"github.com/rolewise/rolewise/pkg/models"
)

// Registry is the validated in-memory store of skills, bundles, roles,
// and the workflow. Entities are immutable after construction; all
// lookups are read-only and safe for concurrent use.
type Registry struct {
	skills  map[string]*models.Skill
	bundles map[string]*models.SkillBundle
	roles   map[string]*models.Role

	workflow *models.Workflow
}

// NewRegistry builds a registry from already-merged entity maps and
// applies bundle and extends expansion to every role. Roles stored in
// the registry carry their fully expanded required-skill set.
func NewRegistry(
	skills map[string]*models.Skill,
	bundles map[string]*models.SkillBundle,
	roles map[string]*models.Role,
	workflow *models.Workflow,
) (*Registry, error) {
	r := &Registry{
		skills:   skills,
		bundles:  bundles,
		roles:    make(map[string]*models.Role, len(roles)),
		workflow: workflow,
	}
	// Map keys are authoritative for entity ids.
	for id, s := range skills {
		s.ID = id
	}
	for id, b := range bundles {
		b.ID = id
	}
	for id, role := range roles {
		role.ID = id
	}
	for id, role := range roles {
		expanded, err := r.expandRole(role, roles)
		if err != nil {
			return nil, err
		}
		r.roles[id] = expanded
	}
	return r, nil
}

// GetSkill returns the skill with the given id. Lookup failures are
// configuration errors: a resolvable registry is a load-time guarantee.
func (r *Registry) GetSkill(id string) (*models.Skill, error) {
	skill, ok := r.skills[id]
	if !ok {
		return nil, models.NewConfigError(fmt.Sprintf("skill %q", id), ErrSkillNotFound)
	}
	return skill, nil
}

// GetRole returns the role with the given id, with required skills fully
// expanded.
func (r *Registry) GetRole(id string) (*models.Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return nil, models.NewConfigError(fmt.Sprintf("role %q", id), ErrRoleNotFound)
	}
	return role, nil
}

// GetBundle returns the skill bundle with the given id.
func (r *Registry) GetBundle(id string) (*models.SkillBundle, error) {
	bundle, ok := r.bundles[id]
	if !ok {
		return nil, models.NewConfigError(fmt.Sprintf("bundle %q", id), ErrBundleNotFound)
	}
	return bundle, nil
}

// SkillsForRole returns the role's expanded requirement list sorted by
// skill id.
func (r *Registry) SkillsForRole(roleID string) ([]models.SkillRequirement, error) {
	role, err := r.GetRole(roleID)
	if err != nil {
		return nil, err
	}
	out := append([]models.SkillRequirement{}, role.RequiredSkills...)
	return out, nil
}

// Workflow returns the workflow definition (may be nil when the
// configuration declares none).
func (r *Registry) Workflow() *models.Workflow {
	return r.workflow
}

// AllSkills returns every skill sorted by id. Selector candidates come
// from this list, so its order underpins selection determinism.
func (r *Registry) AllSkills() []*models.Skill {
	out := make([]*models.Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllRoles returns every role sorted by id.
func (r *Registry) AllRoles() []*models.Role {
	out := make([]*models.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// expandRole resolves the extends chain and bundle references into a
// flat requirement list. Duplicate skill ids keep the max min_level.
func (r *Registry) expandRole(role *models.Role, all map[string]*models.Role) (*models.Role, error) {
	// Walk the extends chain root-first so nearer roles override.
	chain := []*models.Role{}
	seen := map[string]bool{}
	cur := role
	for cur != nil {
		if seen[cur.ID] {
			return nil, NewValidationError("role", role.ID, "extends", ErrRoleCycle)
		}
		seen[cur.ID] = true
		chain = append([]*models.Role{cur}, chain...)
		if cur.Extends == "" {
			break
		}
		parent, ok := all[cur.Extends]
		if !ok {
			return nil, NewValidationError("role", cur.ID, "extends",
				fmt.Errorf("%w: role %q", ErrMissingRef, cur.Extends))
		}
		cur = parent
	}

	merged := map[string]models.SkillRequirement{}
	for _, link := range chain {
		for _, req := range link.RequiredSkills {
			expanded, err := r.expandRequirement(req, map[string]bool{})
			if err != nil {
				return nil, NewValidationError("role", role.ID, "required_skills", err)
			}
			for _, e := range expanded {
				if prev, ok := merged[e.SkillID]; ok && prev.MinLevel > e.MinLevel {
					continue
				}
				merged[e.SkillID] = e
			}
		}
	}

	reqs := make([]models.SkillRequirement, 0, len(merged))
	for _, req := range merged {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].SkillID < reqs[j].SkillID })

	expanded := *role
	expanded.RequiredSkills = reqs
	return &expanded, nil
}

// expandRequirement resolves a requirement that may reference a bundle.
// Bundle expansion is transitive and must be acyclic.
func (r *Registry) expandRequirement(req models.SkillRequirement, visiting map[string]bool) ([]models.SkillRequirement, error) {
	bundle, ok := r.bundles[req.SkillID]
	if !ok {
		return []models.SkillRequirement{req}, nil
	}
	if visiting[bundle.ID] {
		return nil, fmt.Errorf("%w: bundle %q", ErrBundleCycle, bundle.ID)
	}
	visiting[bundle.ID] = true
	defer delete(visiting, bundle.ID)

	var out []models.SkillRequirement
	for _, inner := range bundle.Skills {
		expanded, err := r.expandRequirement(inner, visiting)
		if err != nil {
			return nil, err
		}
		for _, e := range expanded {
			// Bundle members inherit the referencing requirement's
			// min_level when it is stricter.
			if req.MinLevel > e.MinLevel {
				e.MinLevel = req.MinLevel
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// MCPServerRegistry stores MCP server configurations keyed by id.
type MCPServerRegistry struct {
	servers map[string]*MCPServerConfig
}

// NewMCPServerRegistry builds a registry from a server map.
func NewMCPServerRegistry(servers map[string]*MCPServerConfig) *MCPServerRegistry {
	if servers == nil {
		servers = map[string]*MCPServerConfig{}
	}
	for id, s := range servers {
		s.ID = id
	}
	return &MCPServerRegistry{servers: servers}
}

// Get returns the server config with the given id.
func (r *MCPServerRegistry) Get(id string) (*MCPServerConfig, error) {
	s, ok := r.servers[id]
	if !ok {
		return nil, models.NewConfigError(fmt.Sprintf("mcp server %q", id), ErrMCPServerNotFound)
	}
	return s, nil
}

// IDs returns all server ids sorted.
func (r *MCPServerRegistry) IDs() []string {
	out := make([]string, 0, len(r.servers))
	for id := range r.servers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of configured servers.
func (r *MCPServerRegistry) Len() int {
	return len(r.servers)
}
