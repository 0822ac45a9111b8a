package sim

import (
	"farol/internal/grid"
	"farol/internal/policy"
)

// Agent owns its sensors and policy. The environment tracks where it is.
type Agent struct {
	id          string
	policy      policy.Policy
	sensors     []grid.Sensor
	collisions  int
	reachedGoal bool
	observation grid.Observation
}

func NewAgent(id string, p policy.Policy) *Agent {
	return &Agent{id: id, policy: p}
}

func (a *Agent) ID() string                { return a.id }
func (a *Agent) Policy() policy.Policy     { return a.policy }
func (a *Agent) SetPolicy(p policy.Policy) { a.policy = p }
func (a *Agent) Collisions() int           { return a.collisions }
func (a *Agent) ReachedGoal() bool         { return a.reachedGoal }

func (a *Agent) Install(sensors ...grid.Sensor) {
	a.sensors = append(a.sensors, sensors...)
}

func (a *Agent) Sensors() []grid.Sensor {
	return append([]grid.Sensor(nil), a.sensors...)
}

func (a *Agent) RecordCollision() {
	a.collisions++
}

// ResetFitness zeroes the collision counter between evaluations.
func (a *Agent) ResetFitness() {
	a.collisions = 0
}

func (a *Agent) Perceive(obs grid.Observation) {
	a.observation = obs
}

func (a *Agent) Observation() grid.Observation {
	return a.observation
}

// Act decides from the last observation. Agents that reached the goal stay put.
func (a *Agent) Act() grid.Action {
	if a.reachedGoal || a.policy == nil {
		return grid.Stay
	}
	return a.policy.Decide(a.observation)
}

func (a *Agent) markGoal() {
	a.reachedGoal = true
}
