// Package selector picks the best skill for a task description given
// the acting role, execution history, and the requested execution mode.
// Scoring is deterministic: identical registry, history, and inputs
// always produce the same choice.
package selector

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/tracker"
)

// Score weights. Affinity dominates so the task description drives the
// choice; history and role fit break close calls.
const (
	weightAffinity = 0.5
	weightRoleFit  = 0.2
	weightHistory  = 0.2
	weightModeFit  = 0.1
)

// Options tune a single selection.
type Options struct {
	// Mode is the requested execution mode ("analysis", "implementation").
	// Empty accepts any mode.
	Mode string
}

// Candidate is a scored skill.
type Candidate struct {
	Skill *models.Skill
	Score float64

	// Affinity is the lexical overlap component of the score.
	Affinity float64

	// MinLevel is the acting role's declared requirement level for this
	// skill, zero when the role does not require it.
	MinLevel int
}

// Selector scores registry skills against task descriptions.
type Selector struct {
	registry *config.Registry
	tracker  *tracker.Tracker
	logger   *slog.Logger
}

// New creates a selector over the given registry and execution history.
func New(registry *config.Registry, tr *tracker.Tracker) *Selector {
	return &Selector{
		registry: registry,
		tracker:  tr,
		logger:   slog.With("component", "selector"),
	}
}

// Select returns the best-scoring skill for the description, acting as
// the given role. Only skills the role's expanded requirement set
// authorizes are considered, and skills whose execution capabilities
// the role forbids are never selected. When no authorized skill's
// vocabulary overlaps the description, selection broadens once to
// every authorized skill before giving up with
// models.ErrNoSkillAvailable.
func (s *Selector) Select(description string, role *models.Role, opts Options) (*models.Skill, error) {
	candidates := s.rank(description, role, opts)

	matched := withAffinity(candidates)
	if len(matched) > 0 {
		return matched[0].Skill, nil
	}

	if len(candidates) > 0 {
		s.logger.Warn("No skill matched the task description, broadening selection",
			"description", truncate(description, 80),
			"fallback_skill", candidates[0].Skill.ID)
		return candidates[0].Skill, nil
	}

	return nil, fmt.Errorf("%w: no permitted skill for role %q", models.ErrNoSkillAvailable, roleID(role))
}

// SelectTopN returns up to n authorized candidates, best first.
func (s *Selector) SelectTopN(description string, role *models.Role, opts Options, n int) []Candidate {
	candidates := s.rank(description, role, opts)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// rank scores every authorized registry skill and sorts best first.
// Authorization is a gate, not a weight: a role only ever ranks skills
// from its expanded requirement set, minus those its constraints
// forbid. A nil role ranks the whole registry. Ties prefer the higher
// role requirement level, then the lower skill id.
func (s *Selector) rank(description string, role *models.Role, opts Options) []Candidate {
	descTokens := tokenize(description)

	var candidates []Candidate
	for _, skill := range s.registry.AllSkills() {
		if role != nil && role.Constraints.Forbids(skill.ExecutionCapabilities) {
			continue
		}

		c := Candidate{Skill: skill}

		roleFit := 0.0
		if role != nil {
			req, ok := role.Requirement(skill.ID)
			if !ok {
				continue
			}
			roleFit = 1.0
			c.MinLevel = req.MinLevel
		}
		c.Affinity = affinityOf(descTokens, skill)
		history := s.tracker.ScoreOf(skill.ID)
		modeFit := 0.0
		if opts.Mode != "" && opts.Mode == skill.Metadata.ExecutionMode {
			modeFit = 1.0
		}

		c.Score = weightAffinity*c.Affinity +
			weightRoleFit*roleFit +
			weightHistory*history +
			weightModeFit*modeFit
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].MinLevel != candidates[j].MinLevel {
			return candidates[i].MinLevel > candidates[j].MinLevel
		}
		return candidates[i].Skill.ID < candidates[j].Skill.ID
	})
	return candidates
}

// withAffinity keeps only candidates whose vocabulary overlaps the
// description at all.
func withAffinity(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Affinity > 0 {
			out = append(out, c)
		}
	}
	return out
}

// affinityOf measures lexical overlap between the description and the
// skill's name, description, and dimensions, normalized by description
// length.
func affinityOf(descTokens map[string]struct{}, skill *models.Skill) float64 {
	if len(descTokens) == 0 {
		return 0
	}
	vocab := tokenize(skill.Name + " " + skill.Description + " " + strings.Join(skill.Dimensions, " "))
	hits := 0
	for tok := range descTokens {
		if _, ok := vocab[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(descTokens))
}

func tokenize(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func roleID(role *models.Role) string {
	if role == nil {
		return ""
	}
	return role.ID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
