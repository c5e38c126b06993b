package models

// RoleConstraints declares what a role may and may not do. The two sets
// are disjoint; the registry rejects overlap at load time.
type RoleConstraints struct {
	AllowedActions   []string `yaml:"allowed_actions,omitempty" json:"allowed_actions,omitempty"`
	ForbiddenActions []string `yaml:"forbidden_actions,omitempty" json:"forbidden_actions,omitempty"`
}

// Forbids reports whether any of the given action tags is forbidden.
func (c RoleConstraints) Forbids(actions []string) bool {
	if len(c.ForbiddenActions) == 0 || len(actions) == 0 {
		return false
	}
	forbidden := make(map[string]struct{}, len(c.ForbiddenActions))
	for _, a := range c.ForbiddenActions {
		forbidden[a] = struct{}{}
	}
	for _, a := range actions {
		if _, ok := forbidden[a]; ok {
			return true
		}
	}
	return false
}

// Role is a named set of required skills and action constraints.
// RequiredSkills is the post-expansion set: bundle references and the
// extends relation are resolved by the registry, with min_level kept as
// the max across duplicates.
type Role struct {
	ID              string             `yaml:"id" json:"id"`
	Name            string             `yaml:"name" json:"name"`
	Description     string             `yaml:"description,omitempty" json:"description,omitempty"`
	Extends         string             `yaml:"extends,omitempty" json:"extends,omitempty"`
	RequiredSkills  []SkillRequirement `yaml:"required_skills,omitempty" json:"required_skills,omitempty"`
	Constraints     RoleConstraints    `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	ValidationRules []string           `yaml:"validation_rules,omitempty" json:"validation_rules,omitempty"`
}

// Requirement returns the role's requirement for a skill id, if any.
func (r *Role) Requirement(skillID string) (SkillRequirement, bool) {
	for _, req := range r.RequiredSkills {
		if req.SkillID == skillID {
			return req, true
		}
	}
	return SkillRequirement{}, false
}

// Authorizes reports whether the skill is in the role's expanded
// required-skill set.
func (r *Role) Authorizes(skillID string) bool {
	_, ok := r.Requirement(skillID)
	return ok
}
