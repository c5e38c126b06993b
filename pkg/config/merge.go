package config

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/rolewise/rolewise/pkg/models"
)

// mergeSkills overlays user skills on built-ins. A user entry sharing an
// id with a built-in replaces the built-in wholesale after a field-level
// merge (user fields win).
func mergeSkills(builtin, user map[string]*models.Skill) (map[string]*models.Skill, error) {
	out := make(map[string]*models.Skill, len(builtin)+len(user))
	for id, s := range builtin {
		copied := *s
		copied.ID = id
		out[id] = &copied
	}
	for id, s := range user {
		if s == nil {
			continue
		}
		if base, ok := out[id]; ok {
			merged := *s
			if err := mergo.Merge(&merged, *base); err != nil {
				return nil, fmt.Errorf("failed to merge skill %q: %w", id, err)
			}
			merged.ID = id
			out[id] = &merged
			continue
		}
		s.ID = id
		out[id] = s
	}
	return out, nil
}

func mergeBundles(builtin, user map[string]*models.SkillBundle) map[string]*models.SkillBundle {
	out := make(map[string]*models.SkillBundle, len(builtin)+len(user))
	for id, b := range builtin {
		copied := *b
		copied.ID = id
		out[id] = &copied
	}
	for id, b := range user {
		if b == nil {
			continue
		}
		b.ID = id
		out[id] = b
	}
	return out
}

func mergeRoles(builtin, user map[string]*models.Role) (map[string]*models.Role, error) {
	out := make(map[string]*models.Role, len(builtin)+len(user))
	for id, r := range builtin {
		copied := *r
		copied.ID = id
		out[id] = &copied
	}
	for id, r := range user {
		if r == nil {
			continue
		}
		if base, ok := out[id]; ok {
			merged := *r
			if err := mergo.Merge(&merged, *base); err != nil {
				return nil, fmt.Errorf("failed to merge role %q: %w", id, err)
			}
			merged.ID = id
			out[id] = &merged
			continue
		}
		r.ID = id
		out[id] = r
	}
	return out, nil
}
