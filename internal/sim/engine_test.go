package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"farol/internal/grid"
	"farol/internal/policy"
)

type recordingSink struct {
	frames    []grid.Snapshot
	openTicks int
}

func (s *recordingSink) Publish(snapshot grid.Snapshot) error {
	s.frames = append(s.frames, snapshot)
	return nil
}

func (s *recordingSink) Open() bool {
	return s.openTicks <= 0 || len(s.frames) < s.openTicks
}

type scriptedPolicy struct {
	actions []grid.Action
	calls   int
}

func (p *scriptedPolicy) Decide(grid.Observation) grid.Action {
	if p.calls >= len(p.actions) {
		return grid.Stay
	}
	a := p.actions[p.calls]
	p.calls++
	return a
}

func mustEnv(t *testing.T, w, h int, goal grid.Position) *grid.Environment {
	t.Helper()
	env, err := grid.New(w, h, goal)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env
}

func greedyAgent(id string, seed int64) *Agent {
	agent := NewAgent(id, policy.NewGreedy(rand.New(rand.NewSource(seed))))
	agent.Install(grid.UnitSensors()...)
	return agent
}

func TestRunGreedyReachesGoal(t *testing.T) {
	env := mustEnv(t, 5, 5, grid.Position{X: 4, Y: 4})
	engine := NewEngine(env)
	agent := greedyAgent("a1", 1)
	if err := engine.AddAgent(agent, grid.Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("add agent: %v", err)
	}

	result, err := engine.Run(context.Background(), 50)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonGoal {
		t.Fatalf("reason got=%s want=%s", result.Reason, ReasonGoal)
	}
	if result.Steps != 8 {
		t.Fatalf("steps got=%d want=8", result.Steps)
	}
	outcome := result.Agents[0]
	if !outcome.AtGoal || outcome.Final != (grid.Position{X: 4, Y: 4}) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if outcome.Collisions != 0 {
		t.Fatalf("collisions got=%d want=0", outcome.Collisions)
	}
	if outcome.PathLength != 9 {
		t.Fatalf("path length got=%d want=9", outcome.PathLength)
	}
	if outcome.Policy != policy.KindFixed {
		t.Fatalf("policy got=%s want=%s", outcome.Policy, policy.KindFixed)
	}
	if engine.State() != Terminated {
		t.Fatal("engine should be terminated")
	}
}

func TestRunStopsAtBudget(t *testing.T) {
	env := mustEnv(t, 10, 10, grid.Position{X: 9, Y: 9})
	engine := NewEngine(env)
	stuck := NewAgent("a1", &scriptedPolicy{})
	if err := engine.AddAgent(stuck, grid.Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("add agent: %v", err)
	}
	result, err := engine.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonBudget || result.Steps != 5 {
		t.Fatalf("got reason=%s steps=%d want budget/5", result.Reason, result.Steps)
	}
	if result.AtGoalCount() != 0 {
		t.Fatalf("at goal got=%d want=0", result.AtGoalCount())
	}
}

func TestGoalIsStickyUntilEveryAgentArrives(t *testing.T) {
	env := mustEnv(t, 5, 1, grid.Position{X: 2, Y: 0})
	engine := NewEngine(env)
	near := &scriptedPolicy{actions: []grid.Action{grid.East, grid.West, grid.West}}
	far := &scriptedPolicy{actions: []grid.Action{grid.East, grid.East}}
	first := NewAgent("near", near)
	second := NewAgent("far", far)
	if err := engine.AddAgent(first, grid.Position{X: 1, Y: 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.AddAgent(second, grid.Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := engine.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !first.ReachedGoal() || second.ReachedGoal() {
		t.Fatalf("after tick 1 near=%v far=%v", first.ReachedGoal(), second.ReachedGoal())
	}
	if engine.State() != Running {
		t.Fatal("engine should still run while one agent is away")
	}

	result, err := engine.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonGoal || result.Steps != 2 {
		t.Fatalf("got reason=%s steps=%d want goal/2", result.Reason, result.Steps)
	}
	if near.calls != 1 {
		t.Fatalf("agent at goal should stop deciding, calls=%d", near.calls)
	}
	if pos, _ := env.Position("near"); pos != (grid.Position{X: 2, Y: 0}) {
		t.Fatalf("agent at goal moved to %s", pos)
	}
}

func TestSinkClosingTerminatesRun(t *testing.T) {
	env := mustEnv(t, 10, 10, grid.Position{X: 9, Y: 9})
	sink := &recordingSink{openTicks: 3}
	engine := NewEngine(env, WithSink(sink))
	if err := engine.AddAgent(NewAgent("a1", &scriptedPolicy{}), grid.Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	result, err := engine.Run(context.Background(), 100)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonClosed || result.Steps != 3 {
		t.Fatalf("got reason=%s steps=%d want closed/3", result.Reason, result.Steps)
	}
	if len(sink.frames) != 3 || sink.frames[2].Step != 3 {
		t.Fatalf("frames got=%d last step=%d", len(sink.frames), sink.frames[len(sink.frames)-1].Step)
	}
}

func TestSnapshotFollowsAgentOrder(t *testing.T) {
	env := mustEnv(t, 6, 6, grid.Position{X: 5, Y: 5})
	sink := &recordingSink{}
	engine := NewEngine(env, WithSink(sink))
	for i, id := range []string{"b", "a", "c"} {
		if err := engine.AddAgent(NewAgent(id, &scriptedPolicy{}), grid.Position{X: i, Y: 0}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	if err := engine.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	agents := sink.frames[0].Agents
	for i, want := range []int{0, 1, 2} {
		if agents[i].X != want {
			t.Fatalf("agent %d x got=%d want=%d", i, agents[i].X, want)
		}
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	env := mustEnv(t, 5, 5, grid.Position{X: 4, Y: 4})
	engine := NewEngine(env)
	if err := engine.AddAgent(NewAgent("a1", &scriptedPolicy{}), grid.Position{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := engine.Run(ctx, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err got=%v want=%v", err, context.Canceled)
	}
	if result.Reason != ReasonCancelled || result.Steps != 0 {
		t.Fatalf("got reason=%s steps=%d", result.Reason, result.Steps)
	}
}

func TestEmptyEngineTerminatesAfterFirstTick(t *testing.T) {
	engine := NewEngine(mustEnv(t, 3, 3, grid.Position{X: 2, Y: 2}))
	result, err := engine.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonGoal || result.Steps != 1 {
		t.Fatalf("got reason=%s steps=%d want goal/1", result.Reason, result.Steps)
	}
}

func TestAddAgentRejectsDuplicates(t *testing.T) {
	engine := NewEngine(mustEnv(t, 3, 3, grid.Position{X: 2, Y: 2}))
	if err := engine.AddAgent(NewAgent("a1", nil), grid.Position{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.AddAgent(NewAgent("a1", nil), grid.Position{X: 1}); err == nil {
		t.Fatal("expected duplicate agent error")
	}
}

func TestResetClearsAgents(t *testing.T) {
	env := mustEnv(t, 5, 5, grid.Position{X: 4, Y: 4})
	engine := NewEngine(env)
	if err := engine.AddAgent(greedyAgent("a1", 1), grid.Position{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := engine.Run(context.Background(), 50); err != nil {
		t.Fatalf("run: %v", err)
	}
	engine.Reset()
	if len(engine.Agents()) != 0 || engine.State() != Running || env.Step() != 0 {
		t.Fatalf("reset left agents=%d state=%v step=%d", len(engine.Agents()), engine.State(), env.Step())
	}
	if _, ok := env.Position("a1"); ok {
		t.Fatal("environment should forget agent positions on reset")
	}
}

func TestResetFitnessClearsCollisions(t *testing.T) {
	agent := NewAgent("a1", nil)
	agent.RecordCollision()
	agent.RecordCollision()
	agent.ResetFitness()
	if agent.Collisions() != 0 {
		t.Fatalf("collisions got=%d want=0", agent.Collisions())
	}
	if agent.Act() != grid.Stay {
		t.Fatal("agent without policy should stay")
	}
}

func TestNopSinkNeverCloses(t *testing.T) {
	env := mustEnv(t, 4, 4, grid.Position{X: 3, Y: 3})
	engine := NewEngine(env, WithSink(NopSink{}))
	if err := engine.AddAgent(NewAgent("a1", &scriptedPolicy{}), grid.Position{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	result, err := engine.Run(context.Background(), 4)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != ReasonBudget || result.Steps != 4 {
		t.Fatalf("got reason=%s steps=%d want budget/4", result.Reason, result.Steps)
	}
}

func TestRunWithZeroDepthSensor(t *testing.T) {
	env := mustEnv(t, 5, 5, grid.Position{X: 4, Y: 4})
	engine := NewEngine(env)
	agent := NewAgent("a1", policy.NewGreedy(rand.New(rand.NewSource(2))))
	agent.Install(grid.Sensor{Direction: grid.North})
	if err := engine.AddAgent(agent, grid.Position{X: 0, Y: 0}); err != nil {
		t.Fatalf("add agent: %v", err)
	}

	result, err := engine.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Steps != 1 || result.Reason != ReasonBudget {
		t.Fatalf("got reason=%s steps=%d want budget/1", result.Reason, result.Steps)
	}
}
