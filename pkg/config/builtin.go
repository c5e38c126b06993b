package config

import (
	"github.com/rolewise/rolewise/pkg/models"
)

// BuiltinConfig holds the entities shipped with the engine. User YAML
// merges on top; user entries with the same id override built-ins.
type BuiltinConfig struct {
	Skills       map[string]*models.Skill
	SkillBundles map[string]*models.SkillBundle
	Roles        map[string]*models.Role
	DefaultRole  string
	StateDir     string
}

// GetBuiltinConfig returns the built-in skill and role library. The
// built-ins cover a generic software-delivery pipeline so a minimal user
// config only has to declare a workflow.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		Skills: map[string]*models.Skill{
			"analyze_requirements": {
				Name:        "Analyze requirements",
				Description: "Analyze a goal and derive requirements and design constraints",
				Dimensions:  []string{"analysis", "design", "architecture"},
				Levels:      map[int]string{1: "outline", 2: "structured analysis", 3: "full design doc"},
				Type:        models.SkillTypeCognitive,
				Metadata:    models.Metadata{ExecutionMode: "analysis"},
				OutputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"analysis": map[string]any{"type": "string"},
					},
					"required": []any{"analysis"},
				},
			},
			"write_code": {
				Name:                  "Write code",
				Description:           "Implement a feature or change described by the task",
				Dimensions:            []string{"implementation", "coding", "build"},
				Levels:                map[int]string{1: "small change", 2: "feature", 3: "subsystem"},
				Type:                  models.SkillTypeHybrid,
				ExecutionCapabilities: []string{"write_code"},
				Metadata:              models.Metadata{ExecutionMode: "implementation"},
				OutputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"result": map[string]any{"type": "string"},
					},
					"required": []any{"result"},
				},
			},
			"review_code": {
				Name:        "Review code",
				Description: "Review an artifact for correctness and style issues",
				Dimensions:  []string{"review", "quality", "feedback"},
				Levels:      map[int]string{1: "spot check", 2: "full review", 3: "deep audit"},
				Type:        models.SkillTypeCognitive,
				Metadata:    models.Metadata{ExecutionMode: "analysis"},
				OutputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"review": map[string]any{"type": "string"},
					},
					"required": []any{"review"},
				},
			},
			"write_tests": {
				Name:                  "Write tests",
				Description:           "Write and run tests verifying the implemented behavior",
				Dimensions:            []string{"testing", "verification", "qa"},
				Levels:                map[int]string{1: "smoke", 2: "coverage", 3: "property"},
				Type:                  models.SkillTypeHybrid,
				ExecutionCapabilities: []string{"run_tests"},
				Metadata:              models.Metadata{ExecutionMode: "implementation"},
				OutputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"test_report": map[string]any{"type": "string"},
					},
					"required": []any{"test_report"},
				},
			},
			"write_docs": {
				Name:        "Write documentation",
				Description: "Document a delivered change for users and maintainers",
				Dimensions:  []string{"documentation", "writing"},
				Levels:      map[int]string{1: "notes", 2: "guide", 3: "reference"},
				Type:        models.SkillTypeCognitive,
				OutputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"documentation": map[string]any{"type": "string"},
					},
					"required": []any{"documentation"},
				},
			},
		},
		SkillBundles: map[string]*models.SkillBundle{
			"engineering_core": {
				Skills: []models.SkillRequirement{
					{SkillID: "write_code", MinLevel: 1},
					{SkillID: "write_tests", MinLevel: 1},
				},
			},
		},
		Roles: map[string]*models.Role{
			"architect": {
				Name:        "Architect",
				Description: "Designs the solution and owns the technical direction",
				RequiredSkills: []models.SkillRequirement{
					{SkillID: "analyze_requirements", MinLevel: 2},
					{SkillID: "write_docs", MinLevel: 1},
				},
				Constraints: models.RoleConstraints{
					AllowedActions:   []string{"read_code", "write_docs"},
					ForbiddenActions: []string{"write_code", "run_tests"},
				},
			},
			"developer": {
				Name:        "Developer",
				Description: "Implements changes and keeps the build green",
				RequiredSkills: []models.SkillRequirement{
					{SkillID: "engineering_core", MinLevel: 2},
				},
				Constraints: models.RoleConstraints{
					AllowedActions: []string{"read_code", "write_code", "run_tests"},
				},
			},
			"reviewer": {
				Name:        "Reviewer",
				Description: "Reviews artifacts produced by other roles",
				RequiredSkills: []models.SkillRequirement{
					{SkillID: "review_code", MinLevel: 2},
				},
				Constraints: models.RoleConstraints{
					AllowedActions:   []string{"read_code", "write_docs"},
					ForbiddenActions: []string{"write_code"},
				},
			},
			"qa": {
				Name:        "QA Engineer",
				Description: "Verifies behavior against requirements",
				RequiredSkills: []models.SkillRequirement{
					{SkillID: "write_tests", MinLevel: 2},
					{SkillID: "review_code", MinLevel: 1},
				},
				Constraints: models.RoleConstraints{
					AllowedActions: []string{"read_code", "run_tests"},
				},
			},
		},
		DefaultRole: "developer",
		StateDir:    "./state",
	}
}
