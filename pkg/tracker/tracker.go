// Package tracker keeps the append-only history of skill executions and
// derives per-skill success scores from it. Scores weight recent
// executions more heavily so the selector adapts to a skill going bad
// without forgetting long-run behavior all at once.
package tracker

import (
	"log/slog"
	"math"
	"sync"

	"github.com/rolewise/rolewise/pkg/models"
)

const (
	// historyWindow bounds how many executions per skill feed the score.
	historyWindow = 100

	// halfLife is the execution-count half-life for score weighting: an
	// execution halfLife entries older than the latest carries half its
	// weight.
	halfLife = 10.0

	// unseenScore is the neutral prior for skills with no history.
	unseenScore = 0.5
)

// Tracker records skill executions and answers score and reuse queries.
// Safe for concurrent use. Records are never mutated after Record.
type Tracker struct {
	mu sync.RWMutex

	// executions holds every record in arrival order.
	executions []models.SkillExecution

	// bySkill indexes execution positions per skill id, oldest first.
	bySkill map[string][]int

	logger *slog.Logger
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		bySkill: make(map[string][]int),
		logger:  slog.With("component", "tracker"),
	}
}

// Record appends an execution to the history.
func (t *Tracker) Record(exec models.SkillExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := len(t.executions)
	t.executions = append(t.executions, exec)
	t.bySkill[exec.SkillID] = append(t.bySkill[exec.SkillID], idx)

	t.logger.Debug("Recorded skill execution",
		"skill_id", exec.SkillID,
		"task_id", exec.TaskID,
		"status", exec.Status,
		"duration", exec.Duration())
}

// HistoryForSkill returns the skill's executions oldest first, capped at
// the scoring window.
func (t *Tracker) HistoryForSkill(skillID string) []models.SkillExecution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idxs := t.bySkill[skillID]
	if len(idxs) > historyWindow {
		idxs = idxs[len(idxs)-historyWindow:]
	}
	out := make([]models.SkillExecution, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, t.executions[i])
	}
	return out
}

// Recent returns the newest n executions across all skills, newest first.
func (t *Tracker) Recent(n int) []models.SkillExecution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n > len(t.executions) {
		n = len(t.executions)
	}
	out := make([]models.SkillExecution, 0, n)
	for i := len(t.executions) - 1; i >= len(t.executions)-n; i-- {
		out = append(out, t.executions[i])
	}
	return out
}

// ScoreOf returns the skill's recency-weighted success rate in [0, 1].
// Timeouts count as failures, skipped executions do not count at all, and
// a skill with no history scores the neutral prior.
func (t *Tracker) ScoreOf(skillID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idxs := t.bySkill[skillID]
	if len(idxs) > historyWindow {
		idxs = idxs[len(idxs)-historyWindow:]
	}

	var weighted, total float64
	age := 0
	for i := len(idxs) - 1; i >= 0; i-- {
		exec := t.executions[idxs[i]]
		if exec.Status == models.ExecutionSkipped {
			continue
		}
		w := math.Pow(0.5, float64(age)/halfLife)
		if exec.Status == models.ExecutionSuccess {
			weighted += w
		}
		total += w
		age++
	}
	if total == 0 {
		return unseenScore
	}
	return weighted / total
}

// FindReusable returns the most recent successful execution of the skill
// within the given stage whose input digest matches, if any. Used by the
// orchestrator hot loop to skip re-running deterministic skills on
// identical input.
func (t *Tracker) FindReusable(skillID, stageID, inputDigest string) (models.SkillExecution, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idxs := t.bySkill[skillID]
	for i := len(idxs) - 1; i >= 0; i-- {
		exec := t.executions[idxs[i]]
		if exec.StageID == stageID &&
			exec.InputDigest == inputDigest &&
			exec.Status == models.ExecutionSuccess {
			return exec, true
		}
	}
	return models.SkillExecution{}, false
}

// Stats aggregates a skill's full history.
type Stats struct {
	SkillID   string  `json:"skill_id"`
	Total     int     `json:"total"`
	Successes int     `json:"successes"`
	Failures  int     `json:"failures"`
	Timeouts  int     `json:"timeouts"`
	Score     float64 `json:"score"`
}

// StatsFor aggregates counters over the skill's entire history and pairs
// them with the windowed score.
func (t *Tracker) StatsFor(skillID string) Stats {
	t.mu.RLock()
	idxs := t.bySkill[skillID]
	s := Stats{SkillID: skillID}
	for _, i := range idxs {
		exec := t.executions[i]
		switch exec.Status {
		case models.ExecutionSuccess:
			s.Successes++
		case models.ExecutionFailure:
			s.Failures++
		case models.ExecutionTimeout:
			s.Timeouts++
		default:
			continue
		}
		s.Total++
	}
	t.mu.RUnlock()

	s.Score = t.ScoreOf(skillID)
	return s
}

// Len returns the total number of recorded executions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.executions)
}

// Snapshot returns a copy of the full history in arrival order, for
// checkpointing.
func (t *Tracker) Snapshot() []models.SkillExecution {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.SkillExecution{}, t.executions...)
}

// Restore replaces the history with a checkpointed snapshot.
func (t *Tracker) Restore(execs []models.SkillExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.executions = append([]models.SkillExecution{}, execs...)
	t.bySkill = make(map[string][]int, len(execs))
	for i, exec := range t.executions {
		t.bySkill[exec.SkillID] = append(t.bySkill[exec.SkillID], i)
	}
}
