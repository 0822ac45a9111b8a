// Package policy holds the decision strategies agents plug in: random,
// fixed greedy-sensor, tabular Q-learning and neural-network driven.
package policy

import (
	"math/rand"

	"farol/internal/grid"
)

const (
	KindRandom    = "random"
	KindFixed     = "fixed"
	KindQLearning = "qlearning"
	KindNeural    = "neural"
)

// Policy maps an observation to an action.
type Policy interface {
	Decide(obs grid.Observation) grid.Action
}

// Learner is implemented by policies that update from experience.
type Learner interface {
	Learn(prev grid.Position, action grid.Action, reward float64, next grid.Position)
}

// Name returns the kind label used in reports.
func Name(p Policy) string {
	switch p.(type) {
	case *Random:
		return KindRandom
	case *Greedy:
		return KindFixed
	case *QLearning:
		return KindQLearning
	case *Neural:
		return KindNeural
	case nil:
		return "none"
	default:
		return "custom"
	}
}

// Random ignores the observation and picks a cardinal uniformly.
type Random struct {
	rng *rand.Rand
}

func NewRandom(rng *rand.Rand) *Random {
	return &Random{rng: rng}
}

func (p *Random) Decide(grid.Observation) grid.Action {
	return grid.Cardinals[p.rng.Intn(len(grid.Cardinals))]
}

// Greedy follows the sensor with the highest probed reward. The first sensor
// wins ties. Without readings it defers to a random choice.
type Greedy struct {
	fallback Policy
}

func NewGreedy(rng *rand.Rand) *Greedy {
	return &Greedy{fallback: NewRandom(rng)}
}

func (p *Greedy) Decide(obs grid.Observation) grid.Action {
	if len(obs.Readings) == 0 {
		return p.fallback.Decide(obs)
	}
	best := obs.Readings[0]
	for _, reading := range obs.Readings[1:] {
		if reading.Reward > best.Reward {
			best = reading
		}
	}
	return best.Base
}
