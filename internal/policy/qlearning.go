package policy

import (
	"math/rand"
	"sort"

	"farol/internal/grid"
	"farol/internal/model"
)

const (
	DefaultAlpha   = 0.1
	DefaultGamma   = 0.9
	DefaultEpsilon = 0.1
)

// actionValues holds one value per cardinal, indexed like grid.Cardinals.
type actionValues [4]float64

// QLearning is a tabular epsilon-greedy policy keyed by grid cell. A single
// instance may be shared by several agents; it is not safe for concurrent use.
type QLearning struct {
	Alpha    float64
	Gamma    float64
	Epsilon  float64
	Training bool

	rng   *rand.Rand
	table map[grid.Position]*actionValues
}

func NewQLearning(rng *rand.Rand, alpha, gamma, epsilon float64) *QLearning {
	return &QLearning{
		Alpha:    alpha,
		Gamma:    gamma,
		Epsilon:  epsilon,
		Training: true,
		rng:      rng,
		table:    make(map[grid.Position]*actionValues),
	}
}

// NewQLearningFromRecord restores an exported table. The policy starts in
// evaluation mode; set Training to resume learning.
func NewQLearningFromRecord(rng *rand.Rand, record model.QTable) *QLearning {
	q := NewQLearning(rng, record.Alpha, record.Gamma, record.Epsilon)
	q.Training = false
	for _, entry := range record.Entries {
		idx := actionIndex(grid.Action{DX: entry.DX, DY: entry.DY})
		if idx < 0 {
			continue
		}
		values := q.values(grid.Position{X: entry.X, Y: entry.Y})
		values[idx] = entry.Value
	}
	return q
}

func (q *QLearning) values(state grid.Position) *actionValues {
	values, ok := q.table[state]
	if !ok {
		values = &actionValues{}
		q.table[state] = values
	}
	return values
}

func (q *QLearning) Decide(obs grid.Observation) grid.Action {
	if obs.Position == nil {
		return grid.Stay
	}
	values := q.values(*obs.Position)

	explore := 0.0
	if q.Training {
		explore = q.Epsilon
	}
	if q.rng.Float64() < explore {
		return grid.Cardinals[q.rng.Intn(len(grid.Cardinals))]
	}

	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	tied := make([]int, 0, len(values))
	for i, v := range values {
		if v == best {
			tied = append(tied, i)
		}
	}
	return grid.Cardinals[tied[q.rng.Intn(len(tied))]]
}

// Learn applies the Bellman update for one transition. Non-cardinal actions
// and calls outside training mode are ignored.
func (q *QLearning) Learn(prev grid.Position, action grid.Action, reward float64, next grid.Position) {
	if !q.Training {
		return
	}
	idx := actionIndex(action)
	if idx < 0 {
		return
	}
	current := q.values(prev)
	following := q.values(next)

	maxNext := following[0]
	for _, v := range following[1:] {
		if v > maxNext {
			maxNext = v
		}
	}
	current[idx] += q.Alpha * (reward + q.Gamma*maxNext - current[idx])
}

// Value reports Q(state, action) and whether the state has been seen.
func (q *QLearning) Value(state grid.Position, action grid.Action) (float64, bool) {
	values, ok := q.table[state]
	idx := actionIndex(action)
	if !ok || idx < 0 {
		return 0, false
	}
	return values[idx], true
}

func (q *QLearning) States() int {
	return len(q.table)
}

// DecayEpsilon multiplies epsilon by factor without going below floor.
func (q *QLearning) DecayEpsilon(factor, floor float64) {
	q.Epsilon *= factor
	if q.Epsilon < floor {
		q.Epsilon = floor
	}
}

// Export snapshots the table with entries sorted by cell then action.
func (q *QLearning) Export(id string) model.QTable {
	states := make([]grid.Position, 0, len(q.table))
	for s := range q.table {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].Y != states[j].Y {
			return states[i].Y < states[j].Y
		}
		return states[i].X < states[j].X
	})

	entries := make([]model.QEntry, 0, len(states)*len(grid.Cardinals))
	for _, s := range states {
		for i, a := range grid.Cardinals {
			entries = append(entries, model.QEntry{X: s.X, Y: s.Y, DX: a.DX, DY: a.DY, Value: q.table[s][i]})
		}
	}
	return model.QTable{
		ID:      id,
		Alpha:   q.Alpha,
		Gamma:   q.Gamma,
		Epsilon: q.Epsilon,
		Entries: entries,
	}
}

func actionIndex(a grid.Action) int {
	for i, c := range grid.Cardinals {
		if a == c {
			return i
		}
	}
	return -1
}
