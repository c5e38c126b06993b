// Package gates evaluates stage quality gates against the outputs an
// agent produced. Gates run in declaration order and every gate is
// evaluated even after a failure, so one pass reports the complete
// picture. Blocking gate failures block the stage; warning gates only
// produce findings.
package gates

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/rolewise/rolewise/pkg/models"
)

// Predicate is an application-registered check for custom_predicate
// gates. It returns pass/fail plus a human-readable message.
type Predicate func(ctx context.Context, ac *models.AgentContext) (bool, string, error)

// Finding is the outcome of one gate evaluation.
type Finding struct {
	GateID   string          `json:"gate_id"`
	Kind     models.GateKind `json:"kind"`
	Passed   bool            `json:"passed"`
	Blocking bool            `json:"blocking"`
	Message  string          `json:"message"`
}

// Evaluator evaluates quality gates. Predicates must be registered
// before configuration load so custom_predicate gates validate.
type Evaluator struct {
	predicates map[string]Predicate
	logger     *slog.Logger
}

// NewEvaluator creates an evaluator with no predicates registered.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		predicates: make(map[string]Predicate),
		logger:     slog.With("component", "gates"),
	}
}

// RegisterPredicate registers a named predicate for custom_predicate
// gates. Re-registering a name replaces the previous predicate.
func (e *Evaluator) RegisterPredicate(id string, p Predicate) {
	e.predicates[id] = p
}

// HasPredicate reports whether a predicate id is registered.
func (e *Evaluator) HasPredicate(id string) bool {
	_, ok := e.predicates[id]
	return ok
}

// PredicateIDs returns registered predicate ids sorted, for handing to
// config.WithPredicates.
func (e *Evaluator) PredicateIDs() []string {
	out := make([]string, 0, len(e.predicates))
	for id := range e.predicates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs every gate of the stage against the agent context and
// returns whether all blocking gates passed, plus one finding per gate
// in declaration order.
func (e *Evaluator) Evaluate(ctx context.Context, stage *models.Stage, ac *models.AgentContext) (bool, []Finding, error) {
	passed := true
	findings := make([]Finding, 0, len(stage.QualityGates))

	for _, gate := range stage.QualityGates {
		ok, msg, err := e.evaluateGate(ctx, gate, ac)
		if err != nil {
			return false, findings, fmt.Errorf("gate %q: %w", gate.ID, err)
		}

		findings = append(findings, Finding{
			GateID:   gate.ID,
			Kind:     gate.Kind,
			Passed:   ok,
			Blocking: gate.Blocking,
			Message:  msg,
		})

		if ok {
			continue
		}
		if gate.Blocking {
			passed = false
			e.logger.Info("Blocking gate failed",
				"stage_id", stage.ID, "gate_id", gate.ID, "message", msg)
		} else {
			e.logger.Warn("Warning gate failed",
				"stage_id", stage.ID, "gate_id", gate.ID, "message", msg)
		}
	}

	return passed, findings, nil
}

func (e *Evaluator) evaluateGate(ctx context.Context, gate models.QualityGate, ac *models.AgentContext) (bool, string, error) {
	switch gate.Kind {
	case models.GateArtifactExists:
		return e.artifactExists(gate, ac)
	case models.GateRegexMatch:
		return e.regexMatch(gate, ac)
	case models.GateCountThreshold:
		return e.countThreshold(gate, ac)
	case models.GateCustomPredicate:
		return e.customPredicate(ctx, gate, ac)
	default:
		return false, "", fmt.Errorf("unknown gate kind %q", gate.Kind)
	}
}

func (e *Evaluator) artifactExists(gate models.QualityGate, ac *models.AgentContext) (bool, string, error) {
	key := stringParam(gate.Parameters, "output")
	value, ok := ac.Outputs[key]
	if !ok || value == nil {
		return false, fmt.Sprintf("output %q missing", key), nil
	}
	if s, isStr := value.(string); isStr && s == "" {
		return false, fmt.Sprintf("output %q is empty", key), nil
	}
	return true, fmt.Sprintf("output %q present", key), nil
}

func (e *Evaluator) regexMatch(gate models.QualityGate, ac *models.AgentContext) (bool, string, error) {
	key := stringParam(gate.Parameters, "output")
	pattern := stringParam(gate.Parameters, "pattern")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	value, ok := ac.Outputs[key]
	if !ok {
		return false, fmt.Sprintf("output %q missing", key), nil
	}
	text := fmt.Sprintf("%v", value)
	if !re.MatchString(text) {
		return false, fmt.Sprintf("output %q does not match %q", key, pattern), nil
	}
	return true, fmt.Sprintf("output %q matches %q", key, pattern), nil
}

func (e *Evaluator) countThreshold(gate models.QualityGate, ac *models.AgentContext) (bool, string, error) {
	key := stringParam(gate.Parameters, "output")
	threshold, ok := numberParam(gate.Parameters, "threshold")
	if !ok {
		return false, "", fmt.Errorf("missing numeric threshold")
	}

	value, present := ac.Outputs[key]
	if !present {
		return false, fmt.Sprintf("output %q missing", key), nil
	}

	count, err := countOf(value)
	if err != nil {
		return false, "", fmt.Errorf("output %q: %w", key, err)
	}
	if count < threshold {
		return false, fmt.Sprintf("output %q count %v below threshold %v", key, count, threshold), nil
	}
	return true, fmt.Sprintf("output %q count %v meets threshold %v", key, count, threshold), nil
}

func (e *Evaluator) customPredicate(ctx context.Context, gate models.QualityGate, ac *models.AgentContext) (bool, string, error) {
	id := stringParam(gate.Parameters, "predicate")
	p, ok := e.predicates[id]
	if !ok {
		// Configuration load validates registration; hitting this means
		// the evaluator and the loaded config disagree.
		return false, "", models.NewInternalError(
			fmt.Sprintf("predicate %q not registered", id), nil)
	}
	return p(ctx, ac)
}

// countOf interprets a value as a countable quantity: collections count
// their elements, numbers count as themselves.
func countOf(value any) (float64, error) {
	switch v := value.(type) {
	case []any:
		return float64(len(v)), nil
	case []string:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("value of type %T is not countable", value)
	}
}

func stringParam(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

func numberParam(params map[string]any, key string) (float64, bool) {
	switch n := params[key].(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
