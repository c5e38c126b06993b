package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/tracker"
)

func TestCompositeChainsMembers(t *testing.T) {
	skills := map[string]*models.Skill{
		"analyze": {ID: "analyze", Name: "Analyze"},
		"draft":   {ID: "draft", Name: "Draft"},
		"ship": {
			ID: "ship", Name: "Ship",
			Metadata: models.Metadata{ComposedOf: []string{"analyze", "draft"}},
		},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)

	composite := NewComposite(reg)
	placeholder := NewPlaceholder()
	d := NewDispatcher(tracker.New(), nil, composite, placeholder)
	composite.Bind(d)

	ship, err := reg.GetSkill("ship")
	require.NoError(t, err)

	exec, err := d.Execute(context.Background(), Request{
		Skill: ship,
		Input: map[string]any{"goal": "release"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, exec.Status)

	// Members without schemas produce generic results that accumulate
	// into the composite output alongside the original input.
	assert.Equal(t, "release", exec.Output["goal"])
	assert.Contains(t, exec.Output, "result")
}

func TestCompositeMemberFailureFailsComposite(t *testing.T) {
	skills := map[string]*models.Skill{
		"broken": {
			ID: "broken", Name: "Broken",
			OutputSchema: map[string]any{
				"type":     "object",
				"required": []any{"never_produced"},
			},
		},
		"wrapper": {
			ID: "wrapper", Name: "Wrapper",
			Metadata: models.Metadata{ComposedOf: []string{"broken"}},
		},
	}
	reg, err := config.NewRegistry(skills, nil, nil, nil)
	require.NoError(t, err)

	composite := NewComposite(reg)
	d := NewDispatcher(tracker.New(), nil, composite, NewPlaceholder())
	composite.Bind(d)

	wrapper, err := reg.GetSkill("wrapper")
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), Request{Skill: wrapper, Input: map[string]any{}})
	require.Error(t, err)
}
