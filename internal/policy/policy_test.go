package policy

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"farol/internal/grid"
)

func obsAt(x, y int, readings ...grid.SensorReading) grid.Observation {
	p := grid.Position{X: x, Y: y}
	return grid.Observation{Position: &p, Readings: readings}
}

func TestRandomReturnsCardinals(t *testing.T) {
	p := NewRandom(rand.New(rand.NewSource(1)))
	seen := map[grid.Action]int{}
	for i := 0; i < 400; i++ {
		a := p.Decide(grid.Observation{})
		if !a.IsCardinal() {
			t.Fatalf("non-cardinal action %s", a)
		}
		seen[a]++
	}
	if len(seen) != 4 {
		t.Fatalf("expected all four cardinals, got %v", seen)
	}
}

func TestGreedyPicksHighestRewardFirstOnTies(t *testing.T) {
	p := NewGreedy(rand.New(rand.NewSource(1)))
	obs := obsAt(0, 0,
		grid.SensorReading{Base: grid.North, Reward: -5},
		grid.SensorReading{Base: grid.South, Reward: -2},
		grid.SensorReading{Base: grid.East, Reward: -2},
		grid.SensorReading{Base: grid.West, Reward: grid.ObstacleReward},
	)
	if got := p.Decide(obs); got != grid.South {
		t.Fatalf("got=%s want=%s", got, grid.South)
	}
}

func TestGreedyFallsBackWithoutReadings(t *testing.T) {
	p := NewGreedy(rand.New(rand.NewSource(3)))
	if got := p.Decide(obsAt(1, 1)); !got.IsCardinal() {
		t.Fatalf("fallback should return a cardinal, got %s", got)
	}
}

func TestQLearningBellmanUpdate(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.5, 0.9, 0)
	s := grid.Position{X: 1, Y: 1}
	next := grid.Position{X: 2, Y: 1}

	q.Learn(s, grid.East, 10, next)
	got, ok := q.Value(s, grid.East)
	if !ok || got != 5.0 {
		t.Fatalf("Q(s,a) got=%v want=5.0", got)
	}
	if _, ok := q.Value(next, grid.North); !ok {
		t.Fatal("next state should be lazily initialised")
	}
	if q.States() != 2 {
		t.Fatalf("states got=%d want=2", q.States())
	}
}

func TestQLearningBellmanUsesMaxNext(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.5, 0.9, 0)
	a := grid.Position{X: 0, Y: 0}
	b := grid.Position{X: 1, Y: 0}
	q.Learn(b, grid.South, 10, a) // Q(b,S) = 5
	q.Learn(a, grid.East, 0, b)   // Q(a,E) = 0.5 * 0.9 * 5

	got, _ := q.Value(a, grid.East)
	if math.Abs(got-2.25) > 1e-12 {
		t.Fatalf("got=%f want=2.25", got)
	}
}

func TestQLearningLearnNoopOutsideTraining(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.5, 0.9, 0)
	q.Training = false
	q.Learn(grid.Position{}, grid.East, 10, grid.Position{X: 1})
	if q.States() != 0 {
		t.Fatalf("learn outside training should not touch the table, states=%d", q.States())
	}
}

func TestQLearningTieBreakIsUniform(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(42)), 0.1, 0.9, 0)
	const trials = 20000
	counts := map[grid.Action]int{}
	for i := 0; i < trials; i++ {
		counts[q.Decide(obsAt(3, 3))]++
	}
	expected := float64(trials) / 4
	chi := 0.0
	for _, a := range grid.Cardinals {
		d := float64(counts[a]) - expected
		chi += d * d / expected
	}
	// 3 degrees of freedom, p=0.001 critical value.
	if chi > 16.27 {
		t.Fatalf("tie-break not uniform: counts=%v chi2=%f", counts, chi)
	}
}

func TestQLearningTieBreakOnlyAmongMaxima(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(9)), 1, 0, 0)
	s := grid.Position{X: 0, Y: 0}
	q.Learn(s, grid.North, 1, s)
	q.Learn(s, grid.West, 1, s)
	for i := 0; i < 200; i++ {
		a := q.Decide(obsAt(0, 0))
		if a != grid.North && a != grid.West {
			t.Fatalf("picked non-maximal action %s", a)
		}
	}
}

func TestQLearningNilPositionStays(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.1, 0.9, 1)
	if got := q.Decide(grid.Observation{}); got != grid.Stay {
		t.Fatalf("got=%s want=Stay", got)
	}
}

func TestQLearningEpsilonIgnoredWhenNotTraining(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(5)), 1, 0, 1)
	s := grid.Position{X: 2, Y: 2}
	q.Learn(s, grid.South, 3, s)
	q.Training = false
	for i := 0; i < 100; i++ {
		if got := q.Decide(obsAt(2, 2)); got != grid.South {
			t.Fatalf("evaluation mode should be greedy, got %s", got)
		}
	}
}

func TestQLearningExportImport(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.5, 0.9, 0.3)
	q.Learn(grid.Position{X: 1, Y: 2}, grid.West, 4, grid.Position{X: 0, Y: 2})
	record := q.Export("ql-1")
	if record.ID != "ql-1" || record.Alpha != 0.5 || record.Gamma != 0.9 || record.Epsilon != 0.3 {
		t.Fatalf("unexpected record header: %+v", record)
	}
	if len(record.Entries) != 8 {
		t.Fatalf("entries got=%d want=8", len(record.Entries))
	}

	restored := NewQLearningFromRecord(rand.New(rand.NewSource(1)), record)
	if restored.Training {
		t.Fatal("restored policy should start in evaluation mode")
	}
	got, ok := restored.Value(grid.Position{X: 1, Y: 2}, grid.West)
	if !ok || got != 2.0 {
		t.Fatalf("restored value got=%v want=2", got)
	}
}

func TestDecayEpsilonFloor(t *testing.T) {
	q := NewQLearning(rand.New(rand.NewSource(1)), 0.1, 0.9, 0.02)
	q.DecayEpsilon(0.1, 0.01)
	if q.Epsilon != 0.01 {
		t.Fatalf("epsilon got=%f want=0.01", q.Epsilon)
	}
}

type fixedNetwork struct {
	out []float64
	err error
}

func (n fixedNetwork) Activate([]float64) ([]float64, error) { return n.out, n.err }

type fixedFeatures struct{}

func (fixedFeatures) Features(grid.Body) []float64 { return make([]float64, grid.FeatureCount) }

func TestNeuralArgMax(t *testing.T) {
	cases := []struct {
		name string
		net  fixedNetwork
		want grid.Action
	}{
		{name: "north", net: fixedNetwork{out: []float64{0.9, 0.1, 0.2, 0.3}}, want: grid.North},
		{name: "south", net: fixedNetwork{out: []float64{0.1, 0.9, 0.2, 0.3}}, want: grid.South},
		{name: "west", net: fixedNetwork{out: []float64{0.1, 0.2, 0.9, 0.3}}, want: grid.West},
		{name: "east", net: fixedNetwork{out: []float64{0.1, 0.2, 0.3, 0.9}}, want: grid.East},
		{name: "first-of-ties", net: fixedNetwork{out: []float64{0.5, 0.5, 0.5, 0.5}}, want: grid.North},
		{name: "extra-output-wins", net: fixedNetwork{out: []float64{0.1, 0.2, 0.3, 0.4, 0.9}}, want: grid.Stay},
		{name: "empty", net: fixedNetwork{}, want: grid.Stay},
		{name: "error", net: fixedNetwork{err: errors.New("boom")}, want: grid.Stay},
		{name: "nan-skipped", net: fixedNetwork{out: []float64{math.NaN(), 0.2, 0.1, 0}}, want: grid.South},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewNeural(tc.net, fixedFeatures{}, nil)
			if got := p.Decide(grid.Observation{}); got != tc.want {
				t.Fatalf("got=%s want=%s", got, tc.want)
			}
		})
	}
}

func TestName(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := map[string]Policy{
		KindRandom:    NewRandom(rng),
		KindFixed:     NewGreedy(rng),
		KindQLearning: NewQLearning(rng, 0.1, 0.9, 0.1),
		KindNeural:    NewNeural(fixedNetwork{}, fixedFeatures{}, nil),
	}
	for want, p := range cases {
		if got := Name(p); got != want {
			t.Fatalf("got=%s want=%s", got, want)
		}
	}
}
