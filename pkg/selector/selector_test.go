package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/tracker"
)

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	builtin := config.GetBuiltinConfig()
	r, err := config.NewRegistry(builtin.Skills, builtin.SkillBundles, builtin.Roles, nil)
	require.NoError(t, err)
	return r
}

func mustRole(t *testing.T, r *config.Registry, id string) *models.Role {
	t.Helper()
	role, err := r.GetRole(id)
	require.NoError(t, err)
	return role
}

func TestSelectByDescription(t *testing.T) {
	reg := testRegistry(t)
	sel := New(reg, tracker.New())
	developer := mustRole(t, reg, "developer")

	skill, err := sel.Select("implement the caching feature in code", developer, Options{})
	require.NoError(t, err)
	assert.Equal(t, "write_code", skill.ID)

	skill, err = sel.Select("write tests covering the new behavior", developer, Options{})
	require.NoError(t, err)
	assert.Equal(t, "write_tests", skill.ID)
}

func TestSelectRespectsForbiddenCapabilities(t *testing.T) {
	reg := testRegistry(t)
	sel := New(reg, tracker.New())
	architect := mustRole(t, reg, "architect")

	// The architect forbids write_code; even a description aimed straight
	// at implementation must not select it.
	skill, err := sel.Select("write code implementing the feature", architect, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, "write_code", skill.ID)
	assert.NotEqual(t, "write_tests", skill.ID)
}

func TestSelectModeFit(t *testing.T) {
	skills := map[string]*models.Skill{
		"audit": {
			ID: "audit", Name: "Inspect the service",
			Metadata: models.Metadata{ExecutionMode: "analysis"},
		},
		"adjust": {
			ID: "adjust", Name: "Inspect the service",
		},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)
	sel := New(reg, tracker.New())

	// The mode boost applies only on an exact match; an unmoded skill
	// gets nothing even when the request names a mode.
	skill, err := sel.Select("inspect the service", nil, Options{Mode: "analysis"})
	require.NoError(t, err)
	assert.Equal(t, "audit", skill.ID)

	// Without a requested mode no candidate is boosted, so the id
	// tie-break decides.
	skill, err = sel.Select("inspect the service", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "adjust", skill.ID)
}

func TestSelectOnlyAuthorizedSkills(t *testing.T) {
	skills := map[string]*models.Skill{
		"plan":   {ID: "plan", Name: "Plan the work", Description: "plan the service rollout"},
		"deploy": {ID: "deploy", Name: "Deploy service", Description: "deploy the service to production"},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)
	sel := New(reg, tracker.New())

	planner := &models.Role{
		ID:             "planner",
		RequiredSkills: []models.SkillRequirement{{SkillID: "plan", MinLevel: 1}},
	}

	// Authorization gates candidacy outright: even a description aimed
	// straight at the unauthorized skill cannot surface it.
	skill, err := sel.Select("deploy the service to production", planner, Options{})
	require.NoError(t, err)
	assert.Equal(t, "plan", skill.ID)

	// A role with an empty requirement set has no candidates at all.
	empty := &models.Role{ID: "empty"}
	_, err = sel.Select("deploy the service to production", empty, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoSkillAvailable)
}

func TestSelectHistoryBreaksTies(t *testing.T) {
	skills := map[string]*models.Skill{
		"alpha": {ID: "alpha", Name: "Deploy service", Description: "deploy the service"},
		"beta":  {ID: "beta", Name: "Deploy service", Description: "deploy the service"},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)

	tr := tracker.New()
	tr.Record(models.SkillExecution{ID: "e1", SkillID: "beta", Status: models.ExecutionSuccess})
	tr.Record(models.SkillExecution{ID: "e2", SkillID: "alpha", Status: models.ExecutionFailure})

	sel := New(reg, tr)
	skill, err := sel.Select("deploy the service", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "beta", skill.ID)
}

func TestSelectTieBreakByID(t *testing.T) {
	skills := map[string]*models.Skill{
		"zeta":  {ID: "zeta", Name: "Deploy service", Description: "deploy the service"},
		"alpha": {ID: "alpha", Name: "Deploy service", Description: "deploy the service"},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)

	sel := New(reg, tracker.New())
	skill, err := sel.Select("deploy the service", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", skill.ID)
}

func TestSelectBroadensWhenNothingMatches(t *testing.T) {
	reg := testRegistry(t)
	sel := New(reg, tracker.New())
	developer := mustRole(t, reg, "developer")

	// Gibberish matches no skill vocabulary; the broadened pass still
	// returns a skill the role authorizes rather than failing outright.
	skill, err := sel.Select("xyzzy plugh frobnicate", developer, Options{})
	require.NoError(t, err)
	require.NotNil(t, skill)
	assert.True(t, developer.Authorizes(skill.ID))
	assert.False(t, developer.Constraints.Forbids(skill.ExecutionCapabilities))
}

func TestSelectNoSkillAvailable(t *testing.T) {
	skills := map[string]*models.Skill{
		"only": {ID: "only", Name: "Dangerous", ExecutionCapabilities: []string{"rm_rf"}},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)

	restricted := &models.Role{
		ID:             "restricted",
		RequiredSkills: []models.SkillRequirement{{SkillID: "only", MinLevel: 1}},
		Constraints:    models.RoleConstraints{ForbiddenActions: []string{"rm_rf"}},
	}

	sel := New(reg, tracker.New())
	_, err = sel.Select("anything at all", restricted, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoSkillAvailable)
}

func TestSelectDeterminism(t *testing.T) {
	reg := testRegistry(t)
	sel := New(reg, tracker.New())
	developer := mustRole(t, reg, "developer")

	first, err := sel.Select("implement and document the feature", developer, Options{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := sel.Select("implement and document the feature", developer, Options{})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
}
