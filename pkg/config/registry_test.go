package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/models"
)

func testSkills() map[string]*models.Skill {
	return map[string]*models.Skill{
		"write_code":  {ID: "write_code", Name: "Write code"},
		"write_tests": {ID: "write_tests", Name: "Write tests"},
		"review_code": {ID: "review_code", Name: "Review code"},
	}
}

func TestRegistryBundleExpansion(t *testing.T) {
	bundles := map[string]*models.SkillBundle{
		"core": {ID: "core", Skills: []models.SkillRequirement{
			{SkillID: "write_code", MinLevel: 1},
			{SkillID: "inner", MinLevel: 1},
		}},
		"inner": {ID: "inner", Skills: []models.SkillRequirement{
			{SkillID: "write_tests", MinLevel: 2},
		}},
	}
	roles := map[string]*models.Role{
		"developer": {ID: "developer", RequiredSkills: []models.SkillRequirement{
			{SkillID: "core", MinLevel: 2},
		}},
	}

	r, err := NewRegistry(testSkills(), bundles, roles, nil)
	require.NoError(t, err)

	role, err := r.GetRole("developer")
	require.NoError(t, err)
	require.Len(t, role.RequiredSkills, 2)

	// Sorted by skill id, bundle min_level lifted to the stricter of the
	// referencing requirement and the member's own declaration.
	assert.Equal(t, "write_code", role.RequiredSkills[0].SkillID)
	assert.Equal(t, 2, role.RequiredSkills[0].MinLevel)
	assert.Equal(t, "write_tests", role.RequiredSkills[1].SkillID)
	assert.Equal(t, 2, role.RequiredSkills[1].MinLevel)
}

func TestRegistryBundleCycle(t *testing.T) {
	bundles := map[string]*models.SkillBundle{
		"a": {ID: "a", Skills: []models.SkillRequirement{{SkillID: "b", MinLevel: 1}}},
		"b": {ID: "b", Skills: []models.SkillRequirement{{SkillID: "a", MinLevel: 1}}},
	}
	roles := map[string]*models.Role{
		"developer": {ID: "developer", RequiredSkills: []models.SkillRequirement{
			{SkillID: "a", MinLevel: 1},
		}},
	}

	_, err := NewRegistry(testSkills(), bundles, roles, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBundleCycle)
}

func TestRegistryExtendsChain(t *testing.T) {
	roles := map[string]*models.Role{
		"base": {ID: "base", RequiredSkills: []models.SkillRequirement{
			{SkillID: "write_code", MinLevel: 1},
		}},
		"senior": {ID: "senior", Extends: "base", RequiredSkills: []models.SkillRequirement{
			{SkillID: "write_code", MinLevel: 3},
			{SkillID: "review_code", MinLevel: 2},
		}},
	}

	r, err := NewRegistry(testSkills(), nil, roles, nil)
	require.NoError(t, err)

	role, err := r.GetRole("senior")
	require.NoError(t, err)
	require.Len(t, role.RequiredSkills, 2)
	assert.Equal(t, 2, role.RequiredSkills[0].MinLevel) // review_code
	assert.Equal(t, 3, role.RequiredSkills[1].MinLevel) // write_code keeps the max
}

func TestRegistryExtendsCycle(t *testing.T) {
	roles := map[string]*models.Role{
		"a": {ID: "a", Extends: "b"},
		"b": {ID: "b", Extends: "a"},
	}

	_, err := NewRegistry(testSkills(), nil, roles, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoleCycle)
}

func TestRegistryExtendsMissingParent(t *testing.T) {
	roles := map[string]*models.Role{
		"a": {ID: "a", Extends: "ghost"},
	}

	_, err := NewRegistry(testSkills(), nil, roles, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRef)
}

func TestRegistryAllSkillsSorted(t *testing.T) {
	r, err := NewRegistry(testSkills(), nil, nil, nil)
	require.NoError(t, err)

	skills := r.AllSkills()
	require.Len(t, skills, 3)
	assert.Equal(t, "review_code", skills[0].ID)
	assert.Equal(t, "write_code", skills[1].ID)
	assert.Equal(t, "write_tests", skills[2].ID)
}

func TestRegistryLookupErrors(t *testing.T) {
	r, err := NewRegistry(testSkills(), nil, nil, nil)
	require.NoError(t, err)

	_, err = r.GetSkill("nope")
	assert.ErrorIs(t, err, ErrSkillNotFound)

	_, err = r.GetRole("nope")
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = r.GetBundle("nope")
	assert.ErrorIs(t, err, ErrBundleNotFound)
}

// Registry lookups are configuration failures: an unresolved reference
// at runtime must exit with the config code, not the internal one.
func TestRegistryLookupErrorKind(t *testing.T) {
	r, err := NewRegistry(testSkills(), nil, nil, nil)
	require.NoError(t, err)

	_, err = r.GetRole("nope")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindConfig, models.KindOf(err))
	assert.Equal(t, models.ExitConfigError, models.ExitCode(err))

	_, err = r.GetSkill("nope")
	assert.Equal(t, models.ErrorKindConfig, models.KindOf(err))
}

func TestMCPServerRegistry(t *testing.T) {
	reg := NewMCPServerRegistry(map[string]*MCPServerConfig{
		"files": {Transport: TransportConfig{Type: TransportTypeStdio, Command: "mcp-files"}},
	})

	s, err := reg.Get("files")
	require.NoError(t, err)
	assert.Equal(t, "files", s.ID)

	_, err = reg.Get("ghost")
	assert.ErrorIs(t, err, ErrMCPServerNotFound)

	assert.Equal(t, []string{"files"}, reg.IDs())
	assert.Equal(t, 1, reg.Len())
}
