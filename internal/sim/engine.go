// Package sim drives the observe, decide, act and update cycle for a set of
// agents sharing one grid environment.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farol/internal/grid"
	"farol/internal/logging"
	"farol/internal/policy"
)

type State int

const (
	Running State = iota
	Terminated
)

// Reason records why a run terminated.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonGoal      Reason = "goal"
	ReasonBudget    Reason = "budget"
	ReasonClosed    Reason = "closed"
	ReasonCancelled Reason = "cancelled"
)

// Sink receives one read-only frame per tick. Open reporting false ends the run.
type Sink interface {
	Publish(snapshot grid.Snapshot) error
	Open() bool
}

// NopSink accepts every frame and never closes.
type NopSink struct{}

func (NopSink) Publish(grid.Snapshot) error { return nil }
func (NopSink) Open() bool                  { return true }

type Option func(*Engine)

func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithDelay paces ticks for human viewing. It only applies when a sink is set.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine resolves agents strictly in insertion order: every agent decides on
// the previous tick's state, then moves are applied one agent at a time.
type Engine struct {
	env    *grid.Environment
	agents []*Agent
	sink   Sink
	delay  time.Duration
	logger *slog.Logger

	state  State
	reason Reason
}

func NewEngine(env *grid.Environment, opts ...Option) *Engine {
	e := &Engine{env: env}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

func (e *Engine) Environment() *grid.Environment { return e.env }
func (e *Engine) State() State                   { return e.state }
func (e *Engine) Reason() Reason                 { return e.reason }

func (e *Engine) Agents() []*Agent {
	return append([]*Agent(nil), e.agents...)
}

func (e *Engine) AddAgent(agent *Agent, start grid.Position) error {
	for _, existing := range e.agents {
		if existing.ID() == agent.ID() {
			return fmt.Errorf("agent %s already added", agent.ID())
		}
	}
	if err := e.env.AddAgent(agent, start); err != nil {
		return err
	}
	e.agents = append(e.agents, agent)
	return nil
}

// Reset drops every agent and clears environment per-agent state.
func (e *Engine) Reset() {
	e.agents = nil
	e.env.Reset()
	e.state = Running
	e.reason = ReasonNone
}

func (e *Engine) order() []string {
	ids := make([]string, len(e.agents))
	for i, a := range e.agents {
		ids[i] = a.ID()
	}
	return ids
}

// Step runs one tick. It is a no-op once the engine has terminated.
func (e *Engine) Step(ctx context.Context) error {
	if e.state == Terminated {
		return nil
	}

	actions := make([]grid.Action, len(e.agents))
	for i, agent := range e.agents {
		agent.Perceive(e.env.Observe(agent))
		actions[i] = agent.Act()
	}
	for i, agent := range e.agents {
		result := e.env.Apply(actions[i], agent)
		e.logger.Log(ctx, logging.LevelTrace, "agent moved",
			"step", e.env.Step(),
			"agent", agent.ID(),
			"intent", actions[i].String(),
			"action", result.Action.String(),
			"to", result.To.String(),
			"committed", result.Committed,
		)
	}
	e.env.Advance()

	if e.sink != nil {
		if err := e.sink.Publish(e.env.Snapshot(e.order())); err != nil {
			e.logger.Warn("publish snapshot", "step", e.env.Step(), "err", err)
		}
		if e.delay > 0 {
			timer := time.NewTimer(e.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				e.terminate(ReasonCancelled)
				return ctx.Err()
			case <-timer.C:
			}
		}
		if !e.sink.Open() {
			e.logger.Info("visualization closed, stopping run", "step", e.env.Step())
			e.terminate(ReasonClosed)
			return nil
		}
	}

	allAtGoal := true
	for _, agent := range e.agents {
		if e.env.AtGoal(agent.ID()) {
			agent.markGoal()
		}
		if !agent.ReachedGoal() {
			allAtGoal = false
		}
	}
	if allAtGoal {
		e.terminate(ReasonGoal)
	}
	return nil
}

func (e *Engine) terminate(reason Reason) {
	e.state = Terminated
	e.reason = reason
}

// Run ticks until every agent reached the goal, the environment step counter
// hits maxSteps, the sink closes or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, maxSteps int) (Result, error) {
	e.logger.Info("run started", "agents", len(e.agents), "max_steps", maxSteps)
	for e.state == Running && e.env.Step() < maxSteps {
		if err := ctx.Err(); err != nil {
			e.terminate(ReasonCancelled)
			return e.Result(), err
		}
		if err := e.Step(ctx); err != nil {
			return e.Result(), err
		}
	}
	if e.state == Running {
		e.terminate(ReasonBudget)
	}

	result := e.Result()
	e.logger.Info("run finished",
		"reason", string(result.Reason),
		"steps", result.Steps,
		"agents", len(result.Agents),
		"at_goal", result.AtGoalCount(),
	)
	for _, outcome := range result.Agents {
		if outcome.AtGoal {
			e.logger.Debug("agent reached goal", "agent", outcome.ID, "policy", outcome.Policy, "path_length", outcome.PathLength)
		}
	}
	return result, nil
}

// Outcome is what trainers and reports read back per agent after a run.
type Outcome struct {
	ID         string
	Policy     string
	Collisions int
	Final      grid.Position
	AtGoal     bool
	Distance   float64
	PathLength int
}

type Result struct {
	Reason Reason
	Steps  int
	Agents []Outcome
}

func (r Result) AtGoalCount() int {
	n := 0
	for _, a := range r.Agents {
		if a.AtGoal {
			n++
		}
	}
	return n
}

// Result reports the current per-agent outcomes in agent order.
func (e *Engine) Result() Result {
	outcomes := make([]Outcome, 0, len(e.agents))
	for _, agent := range e.agents {
		final, _ := e.env.Position(agent.ID())
		outcomes = append(outcomes, Outcome{
			ID:         agent.ID(),
			Policy:     policy.Name(agent.Policy()),
			Collisions: agent.Collisions(),
			Final:      final,
			AtGoal:     agent.ReachedGoal() || e.env.AtGoal(agent.ID()),
			Distance:   e.env.DistanceToGoal(agent.ID()),
			PathLength: len(e.env.Path(agent.ID())),
		})
	}
	return Result{Reason: e.reason, Steps: e.env.Step(), Agents: outcomes}
}
