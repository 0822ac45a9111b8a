package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"farol/internal/grid"
	"farol/internal/logging"
	"farol/internal/nn"
	"farol/internal/policy"
	"farol/internal/sim"
	"farol/internal/storage"
)

var ErrModelNotFound = errors.New("model not found")

// LoadIssue records an agent whose learned model could not be loaded. The
// agent runs with a random policy instead.
type LoadIssue struct {
	AgentID string
	Policy  string
	Model   string
	Err     error
}

func (i LoadIssue) Error() string {
	return fmt.Sprintf("agent %s: load %s model %q: %v", i.AgentID, i.Policy, i.Model, i.Err)
}

func (i LoadIssue) Unwrap() error { return i.Err }

type Built struct {
	Engine *sim.Engine
	Issues []LoadIssue
}

// Build creates the environment, registers agents in file order and then
// places random obstacles so agent cells stay clear. store may be nil when no
// agent uses a learned policy.
func Build(ctx context.Context, sc Scenario, store storage.Store, logger *slog.Logger, opts ...sim.Option) (Built, error) {
	logger = logging.OrDiscard(logger)
	mazeDir := sc.Environment.MazeDir
	if mazeDir == "" {
		mazeDir = DefaultMazeDir
	}
	env, err := grid.NewFromKind(sc.Environment.Type, grid.Params{
		Width:      sc.Environment.Width,
		Height:     sc.Environment.Height,
		Difficulty: sc.Environment.Difficulty,
		MazeDir:    mazeDir,
	})
	if err != nil {
		return Built{}, err
	}
	logger.Info("environment created",
		"type", env.Kind(),
		"width", env.Width(),
		"height", env.Height(),
		"difficulty", env.Difficulty(),
	)

	seed := sc.Environment.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	engine := sim.NewEngine(env, append([]sim.Option{sim.WithLogger(logger)}, opts...)...)
	var built Built
	for _, spec := range sc.Agents {
		agent := sim.NewAgent(spec.ID, nil)
		sensors, err := spec.sensors()
		if err != nil {
			return Built{}, fmt.Errorf("%w: agent %s: %v", ErrInvalidScenario, spec.ID, err)
		}
		agent.Install(sensors...)

		p, issue := buildPolicy(ctx, spec, store, env, agent, rand.New(rand.NewSource(rng.Int63())))
		if issue != nil {
			logger.Warn("model unavailable, using random policy", "agent", issue.AgentID, "model", issue.Model, "err", issue.Err)
			built.Issues = append(built.Issues, *issue)
		}
		agent.SetPolicy(p)

		if err := engine.AddAgent(agent, spec.start()); err != nil {
			return Built{}, fmt.Errorf("add agent %s: %w", spec.ID, err)
		}
		logger.Debug("agent added", "agent", spec.ID, "policy", policy.Name(p), "start", spec.start().String())
	}

	placed := env.Populate(rng)
	logger.Info("scenario built", "agents", len(sc.Agents), "obstacles", len(env.Obstacles()), "random_obstacles", placed)

	built.Engine = engine
	return built, nil
}

func buildPolicy(
	ctx context.Context,
	spec AgentSpec,
	store storage.Store,
	env *grid.Environment,
	agent *sim.Agent,
	rng *rand.Rand,
) (policy.Policy, *LoadIssue) {
	kind := spec.Policy.Type
	switch kind {
	case policy.KindRandom:
		return policy.NewRandom(rng), nil
	case policy.KindFixed:
		return policy.NewGreedy(rng), nil
	case policy.KindQLearning:
		model := modelID(spec.Policy.Model, policy.KindQLearning)
		q, err := loadQLearning(ctx, store, model, spec.Policy, rng)
		if err != nil {
			return policy.NewRandom(rng), &LoadIssue{AgentID: spec.ID, Policy: kind, Model: model, Err: err}
		}
		return q, nil
	case policy.KindNeural:
		model := modelID(spec.Policy.Model, policy.KindNeural)
		net, err := loadNetwork(ctx, store, model)
		if err != nil {
			return policy.NewRandom(rng), &LoadIssue{AgentID: spec.ID, Policy: kind, Model: model, Err: err}
		}
		return policy.NewNeural(net, env, agent), nil
	default:
		return policy.NewRandom(rng), &LoadIssue{
			AgentID: spec.ID,
			Policy:  kind,
			Err:     fmt.Errorf("unknown policy type %q", kind),
		}
	}
}

func modelID(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func loadQLearning(ctx context.Context, store storage.Store, id string, spec PolicySpec, rng *rand.Rand) (*policy.QLearning, error) {
	if store == nil {
		return nil, errors.New("no model store configured")
	}
	record, ok, err := store.GetQTable(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrModelNotFound
	}
	q := policy.NewQLearningFromRecord(rng, record)
	q.Epsilon = 0
	if spec.Alpha != nil {
		q.Alpha = *spec.Alpha
	}
	if spec.Gamma != nil {
		q.Gamma = *spec.Gamma
	}
	if spec.Epsilon != nil {
		q.Epsilon = *spec.Epsilon
	}
	return q, nil
}

func loadNetwork(ctx context.Context, store storage.Store, id string) (*nn.Network, error) {
	if store == nil {
		return nil, errors.New("no model store configured")
	}
	genome, ok, err := store.GetGenome(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrModelNotFound
	}
	return nn.NewNetwork(genome)
}
