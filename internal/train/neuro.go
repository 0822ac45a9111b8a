package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"farol/internal/evo"
	"farol/internal/grid"
	"farol/internal/logging"
	"farol/internal/model"
	"farol/internal/nn"
	"farol/internal/novelty"
	"farol/internal/policy"
	"farol/internal/sim"
)

// FitnessWeights balance goal proximity (A), novelty (B) and collisions (C).
type FitnessWeights struct {
	A float64
	B float64
	C float64
}

func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{A: 60, B: 120, C: 20}
}

// Fitness combines goal proximity, novelty and collisions, floored at zero.
func Fitness(w FitnessWeights, distance float64, atGoal bool, noveltyScore float64, collisions int) float64 {
	objective := 1.0 / (distance + 0.1)
	if atGoal {
		objective += 2.0
	}
	f := w.A*objective + w.B*noveltyScore - w.C*float64(collisions)
	if f < 0 {
		return 0
	}
	return f
}

// EnvFactory builds a fresh environment for one generation. Random obstacles
// are added by the trainer after agents are placed.
type EnvFactory func() (*grid.Environment, error)

type NeuroTrainer struct {
	Population  int
	Generations int
	MaxSteps    int
	Start       grid.Position
	EliteCount  int
	MaxDelta    float64
	Weights     FitnessWeights
	Selector    evo.Selector
	Archive     *novelty.Archive
	Logger      *slog.Logger
}

func DefaultNeuroTrainer() NeuroTrainer {
	return NeuroTrainer{
		Population:  50,
		Generations: 150,
		MaxSteps:    70,
		Start:       grid.Position{X: 1, Y: 1},
		EliteCount:  10,
		MaxDelta:    0.5,
		Weights:     DefaultFitnessWeights(),
		Selector:    evo.EliteSelector{},
	}
}

type GenerationStats struct {
	Generation  int
	BestID      string
	Best        float64
	Mean        float64
	AtGoal      int
	ArchiveSize int
	Threshold   float64
}

type NeuroResult struct {
	Best    evo.ScoredGenome
	History []GenerationStats
}

// Train evolves dense genomes. Every genome of a generation runs as its own
// agent in one shared environment.
func (t NeuroTrainer) Train(ctx context.Context, rng *rand.Rand, newEnv EnvFactory) (NeuroResult, error) {
	if rng == nil || newEnv == nil {
		return NeuroResult{}, errors.New("random source and environment factory are required")
	}
	if t.Population <= 0 || t.Generations <= 0 || t.MaxSteps <= 0 {
		return NeuroResult{}, fmt.Errorf("population, generations and max steps must be > 0")
	}
	logger := logging.OrDiscard(t.Logger)
	archive := t.Archive
	if archive == nil {
		archive = novelty.NewArchive(novelty.WithThreshold(5.0), novelty.WithDecayRate(0.02))
	}
	selector := t.Selector
	if selector == nil {
		selector = evo.EliteSelector{}
	}
	elite := t.EliteCount
	if elite < 1 {
		elite = 1
	}
	maxDelta := t.MaxDelta
	if maxDelta <= 0 {
		maxDelta = 0.5
	}
	ops := []evo.Operator{
		&evo.PerturbWeightsProportional{Rand: rng, MaxDelta: maxDelta},
		&evo.PerturbRandomBias{Rand: rng, MaxDelta: maxDelta},
	}

	population := make([]model.Genome, t.Population)
	for i := range population {
		population[i] = nn.NewDenseGenome(fmt.Sprintf("g0-%d", i), grid.FeatureCount, len(grid.Cardinals), rng)
	}

	var result NeuroResult
	for gen := 0; gen < t.Generations; gen++ {
		scored, atGoal, err := t.evaluate(ctx, rng, newEnv, archive, population)
		if err != nil {
			return result, fmt.Errorf("generation %d: %w", gen, err)
		}
		archive.Decay()

		ranked := evo.Rank(scored)
		stats := summarize(gen, ranked)
		stats.ArchiveSize = archive.Len()
		stats.Threshold = archive.Threshold()
		stats.AtGoal = atGoal
		result.History = append(result.History, stats)
		if gen == 0 || ranked[0].Fitness > result.Best.Fitness {
			result.Best = ranked[0]
		}
		logger.Info("generation evaluated",
			"generation", gen,
			"best", stats.Best,
			"mean", stats.Mean,
			"at_goal", stats.AtGoal,
			"archive", stats.ArchiveSize,
			"threshold", stats.Threshold,
		)

		if gen == t.Generations-1 {
			break
		}
		population, err = evo.NextGeneration(ctx, rng, ranked, t.Population, elite, selector, ops, fmt.Sprintf("g%d", gen+1))
		if err != nil {
			return result, fmt.Errorf("generation %d: %w", gen, err)
		}
	}
	return result, nil
}

func (t NeuroTrainer) evaluate(
	ctx context.Context,
	rng *rand.Rand,
	newEnv EnvFactory,
	archive *novelty.Archive,
	population []model.Genome,
) ([]evo.ScoredGenome, int, error) {
	env, err := newEnv()
	if err != nil {
		return nil, 0, err
	}
	engine := sim.NewEngine(env, sim.WithLogger(t.Logger))
	for _, genome := range population {
		net, err := nn.NewNetwork(genome)
		if err != nil {
			return nil, 0, err
		}
		agent := sim.NewAgent(genome.ID, nil)
		agent.SetPolicy(policy.NewNeural(net, env, agent))
		agent.Install(grid.UnitSensors()...)
		if err := engine.AddAgent(agent, t.Start); err != nil {
			return nil, 0, err
		}
	}
	env.Populate(rng)

	result, err := engine.Run(ctx, t.MaxSteps)
	if err != nil {
		return nil, 0, err
	}

	finals := make([]grid.Position, len(result.Agents))
	for i, outcome := range result.Agents {
		finals[i] = outcome.Final
	}
	scored := make([]evo.ScoredGenome, len(population))
	for i, outcome := range result.Agents {
		score := archive.Score(outcome.Final, finals)
		archive.TryAdmit(outcome.Final, score)
		scored[i] = evo.ScoredGenome{
			Genome:  population[i],
			Fitness: Fitness(t.Weights, outcome.Distance, outcome.AtGoal, score, outcome.Collisions),
		}
	}
	return scored, result.AtGoalCount(), nil
}

func summarize(gen int, ranked []evo.ScoredGenome) GenerationStats {
	stats := GenerationStats{Generation: gen}
	if len(ranked) == 0 {
		return stats
	}
	stats.BestID = ranked[0].Genome.ID
	stats.Best = ranked[0].Fitness
	total := 0.0
	for _, s := range ranked {
		total += s.Fitness
	}
	stats.Mean = total / float64(len(ranked))
	return stats
}
