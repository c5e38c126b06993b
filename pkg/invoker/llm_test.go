package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/llm"
	"github.com/rolewise/rolewise/pkg/models"
)

type scriptedLLM struct {
	response     string
	inputTokens  int64
	outputTokens int64
}

func (s *scriptedLLM) GenerateStream(_ context.Context, _ llm.GenerateInput) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk, 2)
	errs := make(chan error, 1)
	chunks <- llm.StreamChunk{Content: s.response}
	chunks <- llm.StreamChunk{IsFinal: true,
		InputTokens: s.inputTokens, OutputTokens: s.outputTokens}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (s *scriptedLLM) Close() error { return nil }

func cognitiveSkill() *models.Skill {
	return &models.Skill{
		ID:   "analyze",
		Name: "Analyze",
		Type: models.SkillTypeCognitive,
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"analysis": map[string]any{"type": "string"},
			},
		},
	}
}

func TestLLMInvokerParsesJSON(t *testing.T) {
	inv := NewLLM(&scriptedLLM{response: "Here you go:\n```json\n{\"analysis\": \"looks solid\"}\n```"}, nil)

	out, err := inv.Invoke(context.Background(), cognitiveSkill(),
		map[string]any{"goal": "x"}, models.NewAgentContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "looks solid", out["analysis"])
}

func TestLLMInvokerFallsBackToRawText(t *testing.T) {
	inv := NewLLM(&scriptedLLM{response: "no json here, just prose"}, nil)

	out, err := inv.Invoke(context.Background(), cognitiveSkill(),
		map[string]any{"goal": "x"}, models.NewAgentContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "no json here, just prose", out["analysis"])
}

func TestLLMInvokerAccumulatesUsage(t *testing.T) {
	inv := NewLLM(&scriptedLLM{response: `{"analysis": "ok"}`,
		inputTokens: 120, outputTokens: 45}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := inv.Invoke(ctx, cognitiveSkill(),
			map[string]any{"goal": "x"}, models.NewAgentContext(nil))
		require.NoError(t, err)
	}

	in, out := inv.Usage()
	assert.Equal(t, int64(240), in)
	assert.Equal(t, int64(90), out)
}

func TestLLMInvokerSupports(t *testing.T) {
	inv := NewLLM(&scriptedLLM{}, nil)
	assert.True(t, inv.Supports(&models.Skill{Type: models.SkillTypeCognitive}))
	assert.True(t, inv.Supports(&models.Skill{Type: models.SkillTypeHybrid}))
	assert.False(t, inv.Supports(&models.Skill{Type: models.SkillTypeProcedural}))
}
