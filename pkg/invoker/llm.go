package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/llm"
	"github.com/rolewise/rolewise/pkg/models"
)

// LLMInvoker executes cognitive skills by prompting the model with the
// skill definition, the task input, and the agent's context. Streaming
// text is forwarded as skill.progress events.
type LLMInvoker struct {
	client    llm.Client
	publisher *events.Publisher
	logger    *slog.Logger

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewLLM creates an LLM-backed invoker.
func NewLLM(client llm.Client, publisher *events.Publisher) *LLMInvoker {
	return &LLMInvoker{
		client:    client,
		publisher: publisher,
		logger:    slog.With("component", "llm_invoker"),
	}
}

func (l *LLMInvoker) Name() string { return "llm" }

// Supports accepts cognitive and hybrid skills.
func (l *LLMInvoker) Supports(skill *models.Skill) bool {
	return skill.Type == models.SkillTypeCognitive || skill.Type == models.SkillTypeHybrid
}

func (l *LLMInvoker) Invoke(ctx context.Context, skill *models.Skill, input map[string]any, ac *models.AgentContext) (map[string]any, error) {
	prompt, err := l.buildPrompt(skill, input, ac)
	if err != nil {
		return nil, err
	}

	chunks, errs := l.client.GenerateStream(ctx, llm.GenerateInput{
		System: l.systemPrompt(skill, ac),
		Prompt: prompt,
	})

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Error != "" {
			return nil, fmt.Errorf("llm error: %s", chunk.Error)
		}
		l.inputTokens.Add(chunk.InputTokens)
		l.outputTokens.Add(chunk.OutputTokens)
		if chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		_ = l.publisher.PublishSkillProgress(ctx, events.SkillProgressPayload{
			SkillID: skill.ID,
			Chunk:   chunk.Content,
		})
	}
	if err := <-errs; err != nil {
		return nil, err
	}

	return l.parseOutput(skill, sb.String())
}

// Usage returns the input and output token totals accumulated across
// all invocations.
func (l *LLMInvoker) Usage() (input, output int64) {
	return l.inputTokens.Load(), l.outputTokens.Load()
}

func (l *LLMInvoker) systemPrompt(skill *models.Skill, ac *models.AgentContext) string {
	var sb strings.Builder
	sb.WriteString("You are executing the skill \"")
	sb.WriteString(skill.Name)
	sb.WriteString("\": ")
	sb.WriteString(skill.Description)
	if ac.Role != nil {
		fmt.Fprintf(&sb, "\nYou act as the %s role. %s", ac.Role.Name, ac.Role.Description)
	}
	if len(skill.OutputSchema) > 0 {
		schemaJSON, err := json.Marshal(skill.OutputSchema)
		if err == nil {
			fmt.Fprintf(&sb, "\nRespond with a single JSON object matching this schema:\n%s", schemaJSON)
		}
	}
	return sb.String()
}

func (l *LLMInvoker) buildPrompt(skill *models.Skill, input map[string]any, ac *models.AgentContext) (string, error) {
	var sb strings.Builder

	if len(ac.ProjectContext) > 0 {
		projectJSON, err := json.Marshal(ac.ProjectContext)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "Project context:\n%s\n\n", projectJSON)
	}
	if len(ac.SharedContext) > 0 {
		sharedJSON, err := json.Marshal(ac.SharedContext)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "Shared context from other agents:\n%s\n\n", sharedJSON)
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "Task input:\n%s\n", inputJSON)
	return sb.String(), nil
}

// parseOutput extracts the JSON object from the model's response,
// tolerating surrounding prose and markdown fences. A response with no
// parseable object lands whole under the schema's first property, or
// "result".
func (l *LLMInvoker) parseOutput(skill *models.Skill, text string) (map[string]any, error) {
	if obj, ok := extractJSONObject(text); ok {
		return obj, nil
	}

	key := "result"
	if props, ok := schemaProperties(skill.OutputSchema); ok && len(props) > 0 {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		key = names[0]
	}
	l.logger.Warn("LLM response was not JSON, keeping raw text",
		"skill_id", skill.ID, "key", key)
	return map[string]any{key: strings.TrimSpace(text)}, nil
}

// extractJSONObject finds the first top-level JSON object in the text.
func extractJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, false
	}
	decoder := json.NewDecoder(strings.NewReader(text[start:]))
	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}
