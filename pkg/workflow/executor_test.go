package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolewise/rolewise/pkg/bus"
	"github.com/rolewise/rolewise/pkg/checkpoint"
	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/gates"
	"github.com/rolewise/rolewise/pkg/invoker"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/orchestrator"
	"github.com/rolewise/rolewise/pkg/selector"
	"github.com/rolewise/rolewise/pkg/statestore"
	"github.com/rolewise/rolewise/pkg/tracker"
)

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Emit(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// completedOrder returns stage ids from stage.completed events in
// emission order.
func (s *captureSink) completedOrder(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Type != events.EventStageCompleted {
			continue
		}
		var payload events.StageCompletedPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		out = append(out, payload.StageID)
	}
	return out
}

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          "delivery",
		DefaultRole: "developer",
		Stages: []*models.Stage{
			{ID: "design", Name: "Design", RoleID: "architect",
				Outputs: []string{"analysis"},
				QualityGates: []models.QualityGate{{
					ID: "g-analysis", Kind: models.GateArtifactExists,
					Parameters: map[string]any{"output": "analysis"}, Blocking: true,
				}}},
			{ID: "implement", Name: "Implement", DependsOn: []string{"design"},
				RequiredSkills: []models.SkillRequirement{{SkillID: "write_code", MinLevel: 1}}},
			{ID: "verify", Name: "Verify", RoleID: "qa", DependsOn: []string{"implement"}},
		},
	}
}

type fixture struct {
	exec    *Executor
	reg     *config.Registry
	tracker *tracker.Tracker
	store   statestore.Store
	ckpt    *checkpoint.Manager
	sink    *captureSink
	gates   *gates.Evaluator
}

func newFixture(t *testing.T, wf *models.Workflow, opts ...Option) *fixture {
	t.Helper()
	builtin := config.GetBuiltinConfig()
	reg, err := config.NewRegistry(builtin.Skills, builtin.SkillBundles, builtin.Roles, wf)
	require.NoError(t, err)

	sink := &captureSink{}
	pub := events.NewPublisher(wf.ID, sink)
	tr := tracker.New()
	b := bus.New()
	disp := invoker.NewDispatcher(tr, pub, invoker.NewPlaceholder())
	orch := orchestrator.New(reg, selector.New(reg, tr), disp, tr, b,
		orchestrator.WithPublisher(pub))

	store, err := statestore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := checkpoint.NewManager(store, checkpoint.WithBus(b), checkpoint.WithPublisher(pub))

	ge := gates.NewEvaluator()
	opts = append([]Option{
		WithPublisher(pub),
		WithStore(store),
		WithCheckpoints(mgr),
		WithTracker(tr),
	}, opts...)
	exec, err := NewExecutor(reg, orch, ge, opts...)
	require.NoError(t, err)

	return &fixture{
		exec: exec, reg: reg, tracker: tr,
		store: store, ckpt: mgr, sink: sink, gates: ge,
	}
}

func TestAutoLinearRun(t *testing.T) {
	f := newFixture(t, linearWorkflow())

	err := f.exec.Auto(context.Background(), "deliver rate limiting")
	require.NoError(t, err)

	state := f.exec.State()
	assert.Equal(t, []string{"design", "implement", "verify"}, state.CompletedStages)
	for _, id := range []string{"design", "implement", "verify"} {
		assert.Equal(t, models.StageCompleted, state.StageStatus(id), id)
	}
	assert.Equal(t, 3, f.tracker.Len())
	assert.Len(t, state.Tracker, 3)

	// Live state blob persisted under the workflow id.
	loaded, err := f.store.Load(context.Background(), "delivery")
	require.NoError(t, err)
	assert.Equal(t, state.CompletedStages, loaded.CompletedStages)

	// One automatic checkpoint per stage transition, plus auto boundaries.
	assert.GreaterOrEqual(t, f.sink.count(events.EventCheckpointCreated), 3)
	assert.Equal(t, 3, f.sink.count(events.EventStageCompleted))
}

func TestStartPreconditions(t *testing.T) {
	f := newFixture(t, linearWorkflow())
	ctx := context.Background()

	t.Run("unknown stage", func(t *testing.T) {
		_, _, err := f.exec.Start(ctx, "ghost", "")
		assert.ErrorIs(t, err, ErrStageNotFound)
	})

	t.Run("dependencies incomplete", func(t *testing.T) {
		_, _, err := f.exec.Start(ctx, "implement", "")
		assert.ErrorIs(t, err, ErrDependenciesIncomplete)
	})

	t.Run("explicit role overrides stage role", func(t *testing.T) {
		_, role, err := f.exec.Start(ctx, "design", "reviewer")
		require.NoError(t, err)
		assert.Equal(t, "reviewer", role.ID)
		assert.Equal(t, "design", f.exec.State().CurrentStageID)
		assert.Equal(t, "reviewer", f.exec.State().CurrentRoleID)
		assert.Equal(t, "reviewer", f.exec.State().ActiveAgents["reviewer-design"])
	})

	t.Run("double start rejected", func(t *testing.T) {
		_, _, err := f.exec.Start(ctx, "design", "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestBlockedGateAndRetry(t *testing.T) {
	wf := linearWorkflow()
	wf.Stages[0].QualityGates = []models.QualityGate{{
		ID: "g-flaky", Kind: models.GateCustomPredicate,
		Parameters: map[string]any{"predicate": "flaky"}, Blocking: true,
	}}
	f := newFixture(t, wf)

	calls := 0
	f.gates.RegisterPredicate("flaky", func(_ context.Context, _ *models.AgentContext) (bool, string, error) {
		calls++
		if calls == 1 {
			return false, "first pass rejected", nil
		}
		return true, "ok", nil
	})

	ctx := context.Background()
	err := f.exec.RunStage(ctx, "design", "", "design the rate limiter")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindGateFailure, models.KindOf(err))

	state := f.exec.State()
	assert.Equal(t, models.StageBlocked, state.StageStatus("design"))
	require.Contains(t, state.StageFindings, "design")
	assert.Contains(t, state.StageFindings["design"][0], "first pass rejected")
	assert.Equal(t, 1, f.sink.count(events.EventStageBlocked))
	assert.Equal(t, 1, f.sink.count(events.EventGateFailed))

	// Retry clears findings and re-runs body and gates.
	require.NoError(t, f.exec.Retry(ctx, "design", "design the rate limiter"))
	state = f.exec.State()
	assert.Equal(t, models.StageCompleted, state.StageStatus("design"))
	assert.NotContains(t, state.StageFindings, "design")
	assert.Equal(t, []string{"design"}, state.CompletedStages)
}

func TestRetryRequiresBlocked(t *testing.T) {
	f := newFixture(t, linearWorkflow())
	err := f.exec.Retry(context.Background(), "design", "goal")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWarningGateDoesNotBlock(t *testing.T) {
	wf := linearWorkflow()
	wf.Stages[0].QualityGates = append(wf.Stages[0].QualityGates, models.QualityGate{
		ID: "g-warn", Kind: models.GateArtifactExists,
		Parameters: map[string]any{"output": "benchmark_report"}, Blocking: false,
	})
	f := newFixture(t, wf)

	err := f.exec.RunStage(context.Background(), "design", "", "design the rate limiter")
	require.NoError(t, err)

	assert.Equal(t, models.StageCompleted, f.exec.State().StageStatus("design"))
	// The warning still surfaces as a gate.failed event.
	assert.Equal(t, 1, f.sink.count(events.EventGateFailed))
}

func TestAutoParallelStages(t *testing.T) {
	wf := &models.Workflow{
		ID:          "fanout",
		DefaultRole: "developer",
		Stages: []*models.Stage{
			{ID: "design", Name: "Design", RoleID: "architect"},
			{ID: "review", Name: "Review", RoleID: "reviewer",
				DependsOn: []string{"design"}, Parallelizable: true},
			{ID: "verify", Name: "Verify", RoleID: "qa",
				DependsOn: []string{"design"}, Parallelizable: true},
		},
	}
	f := newFixture(t, wf)

	err := f.exec.Auto(context.Background(), "review and verify the change")
	require.NoError(t, err)

	state := f.exec.State()
	for _, id := range []string{"design", "review", "verify"} {
		assert.Equal(t, models.StageCompleted, state.StageStatus(id), id)
	}
	assert.Len(t, state.CompletedStages, 3)

	// design closes before either fan-out stage; review and verify land
	// in either order.
	order := f.sink.completedOrder(t)
	require.Len(t, order, 3)
	assert.Equal(t, "design", order[0])
	assert.ElementsMatch(t, []string{"review", "verify"}, order[1:])
}

func TestAutoStopsOnBlockedStage(t *testing.T) {
	wf := linearWorkflow()
	wf.Stages[0].QualityGates = []models.QualityGate{{
		ID: "g-impossible", Kind: models.GateArtifactExists,
		Parameters: map[string]any{"output": "artifact_never_produced"}, Blocking: true,
	}}
	f := newFixture(t, wf)

	err := f.exec.Auto(context.Background(), "deliver rate limiting")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindGateFailure, models.KindOf(err))

	state := f.exec.State()
	assert.Equal(t, models.StageBlocked, state.StageStatus("design"))
	assert.Equal(t, models.StagePending, state.StageStatus("implement"))
	assert.Empty(t, state.CompletedStages)
}

func TestAutoCancelled(t *testing.T) {
	f := newFixture(t, linearWorkflow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.exec.Auto(ctx, "deliver rate limiting")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.True(t, f.exec.State().Cancelled)

	// The cancellation is persisted.
	loaded, err := f.store.Load(context.Background(), "delivery")
	require.NoError(t, err)
	assert.True(t, loaded.Cancelled)
}

// TestCheckpointResume runs the first stage, checkpoints, then resumes
// the run from the checkpoint in a fresh executor as if the process had
// crashed in between.
func TestCheckpointResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, linearWorkflow())

	require.NoError(t, f.exec.RunStage(ctx, "design", "", "deliver rate limiting"))
	_, err := f.ckpt.Create(ctx, f.exec.State(), "mid")
	require.NoError(t, err)

	baseline := f.tracker.Len()
	assert.Equal(t, 1, baseline)

	// Fresh process: new bus, tracker, and orchestrator over the same
	// store.
	builtin := config.GetBuiltinConfig()
	reg, err := config.NewRegistry(builtin.Skills, builtin.SkillBundles, builtin.Roles, linearWorkflow())
	require.NoError(t, err)

	tr2 := tracker.New()
	b2 := bus.New()
	pub2 := events.NewPublisher("delivery")
	disp2 := invoker.NewDispatcher(tr2, pub2, invoker.NewPlaceholder())
	orch2 := orchestrator.New(reg, selector.New(reg, tr2), disp2, tr2, b2,
		orchestrator.WithPublisher(pub2))
	mgr2 := checkpoint.NewManager(f.store, checkpoint.WithBus(b2))

	restored, err := mgr2.Restore(ctx, "delivery", "mid")
	require.NoError(t, err)
	assert.Equal(t, []string{"design"}, restored.CompletedStages)

	exec2, err := NewExecutor(reg, orch2, gates.NewEvaluator(),
		WithState(restored), WithStore(f.store), WithCheckpoints(mgr2),
		WithTracker(tr2), WithPublisher(pub2))
	require.NoError(t, err)

	// The execution log was restored from the snapshot.
	assert.Equal(t, baseline, tr2.Len())

	require.NoError(t, exec2.Auto(ctx, "deliver rate limiting"))

	state := exec2.State()
	assert.Equal(t, []string{"design", "implement", "verify"}, state.CompletedStages)
	// Total executions across crash and resume match a single run.
	assert.Equal(t, 3, tr2.Len())
}
