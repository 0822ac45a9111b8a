// Package farol is the public entry point for running grid scenarios,
// training learned policies and comparing them.
package farol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"farol/internal/evo"
	"farol/internal/grid"
	"farol/internal/logging"
	"farol/internal/model"
	"farol/internal/novelty"
	"farol/internal/policy"
	"farol/internal/scenario"
	"farol/internal/sim"
	"farol/internal/stats"
	"farol/internal/storage"
	"farol/internal/train"
)

const (
	RunKindScenario = "scenario"
	RunKindCompare  = "compare"

	defaultCompareEpisodes = 30
	defaultCompareMaxSteps = 100

	// createdAtLayout keeps a fixed width so stored timestamps sort as text.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type Options struct {
	StoreKind string
	DSN       string
	MazeDir   string
	Logger    *slog.Logger
}

type Client struct {
	store   storage.Store
	mazeDir string
	logger  *slog.Logger

	initialized bool
}

func New(opts Options) (*Client, error) {
	store, err := storage.NewStore(opts.StoreKind, opts.DSN)
	if err != nil {
		return nil, err
	}
	mazeDir := opts.MazeDir
	if mazeDir == "" {
		mazeDir = scenario.DefaultMazeDir
	}
	return &Client{
		store:   store,
		mazeDir: mazeDir,
		logger:  logging.OrDiscard(opts.Logger),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// ModelID names the stored model a policy kind uses in an environment. Farol
// worlds share one model across difficulties; mazes get one per layout.
func ModelID(policyKind, envKind string, difficulty int) string {
	if envKind == grid.KindMaze {
		return fmt.Sprintf("maze%d-%s", difficulty, policyKind)
	}
	return fmt.Sprintf("%s-%s", envKind, policyKind)
}

type RunRequest struct {
	// ScenarioPath is read when Scenario is nil.
	ScenarioPath string
	Scenario     *scenario.Scenario
	Sink         sim.Sink
	Delay        time.Duration
	// MaxSteps overrides the scenario budget when positive.
	MaxSteps int
	Save     bool
}

type RunSummary struct {
	RunID    string
	Scenario string
	Reason   string
	Steps    int
	Outcomes []model.AgentOutcome
	Issues   []scenario.LoadIssue
}

// RunScenario builds and runs one scenario. Agents whose models fail to load
// run with a random policy and are listed in Issues.
func (c *Client) RunScenario(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	sc, err := c.resolveScenario(req)
	if err != nil {
		return RunSummary{}, err
	}

	var opts []sim.Option
	if req.Sink != nil {
		opts = append(opts, sim.WithSink(req.Sink), sim.WithDelay(req.Delay))
	}
	built, err := scenario.Build(ctx, sc, c.store, c.logger, opts...)
	if err != nil {
		return RunSummary{}, err
	}
	maxSteps := sc.MaxSteps
	if req.MaxSteps > 0 {
		maxSteps = req.MaxSteps
	}
	result, err := built.Engine.Run(ctx, maxSteps)
	if err != nil {
		return RunSummary{}, err
	}

	record := c.newRunRecord(RunKindScenario, sc.Name, built.Engine.Environment(), result)
	if req.Save {
		if err := c.store.SaveRun(ctx, record); err != nil {
			return RunSummary{}, fmt.Errorf("save run: %w", err)
		}
	}
	return RunSummary{
		RunID:    record.ID,
		Scenario: sc.Name,
		Reason:   record.Reason,
		Steps:    record.Steps,
		Outcomes: record.Outcomes,
		Issues:   built.Issues,
	}, nil
}

func (c *Client) resolveScenario(req RunRequest) (scenario.Scenario, error) {
	if req.Scenario != nil {
		sc := *req.Scenario
		if sc.Environment.MazeDir == "" {
			sc.Environment.MazeDir = c.mazeDir
		}
		return sc, sc.Validate()
	}
	if req.ScenarioPath == "" {
		return scenario.Scenario{}, errors.New("scenario path is required")
	}
	sc, err := scenario.Load(req.ScenarioPath)
	if err != nil {
		return scenario.Scenario{}, err
	}
	if sc.Environment.MazeDir == "" {
		sc.Environment.MazeDir = c.mazeDir
	}
	return sc, nil
}

func (c *Client) newRunRecord(kind, name string, env *grid.Environment, result sim.Result) model.RunRecord {
	outcomes := make([]model.AgentOutcome, 0, len(result.Agents))
	for _, a := range result.Agents {
		outcomes = append(outcomes, model.AgentOutcome{
			AgentID:    a.ID,
			Policy:     a.Policy,
			Collisions: a.Collisions,
			FinalX:     a.Final.X,
			FinalY:     a.Final.Y,
			AtGoal:     a.AtGoal,
			Distance:   a.Distance,
			PathLength: a.PathLength,
		})
	}
	return model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Kind:            kind,
		Scenario:        name,
		Environment:     env.Kind(),
		Difficulty:      env.Difficulty(),
		CreatedAtUTC:    time.Now().UTC().Format(createdAtLayout),
		Steps:           result.Steps,
		Reason:          string(result.Reason),
		Outcomes:        outcomes,
	}
}

// EnvironmentRequest selects the world a trainer runs in.
type EnvironmentRequest struct {
	Type       string
	Width      int
	Height     int
	Difficulty int
}

func (c *Client) newEnvironment(req EnvironmentRequest) (*grid.Environment, error) {
	kind := req.Type
	if kind == "" {
		kind = grid.KindFarol
	}
	difficulty := req.Difficulty
	if difficulty == 0 {
		difficulty = scenario.DefaultDifficulty
	}
	return grid.NewFromKind(kind, grid.Params{
		Width:      req.Width,
		Height:     req.Height,
		Difficulty: difficulty,
		MazeDir:    c.mazeDir,
	})
}

type TrainQLearningRequest struct {
	Environment EnvironmentRequest
	// ModelID defaults to ModelID("qlearning", type, difficulty).
	ModelID  string
	Episodes int
	MaxSteps int

	// Alpha, Gamma and Epsilon default to 0.1, 0.9 and 1.0 when nil.
	Alpha   *float64
	Gamma   *float64
	Epsilon *float64
	Seed    int64
}

type TrainQLearningSummary struct {
	ModelID      string
	Episodes     int
	GoalEpisodes int
	States       int
	FinalEpsilon float64
	MeanReward   float64
}

// TrainQLearning trains a fresh Q-table and stores it under ModelID.
func (c *Client) TrainQLearning(ctx context.Context, req TrainQLearningRequest) (TrainQLearningSummary, error) {
	if err := c.Init(ctx); err != nil {
		return TrainQLearningSummary{}, err
	}
	env, err := c.newEnvironment(req.Environment)
	if err != nil {
		return TrainQLearningSummary{}, err
	}
	rng := rand.New(rand.NewSource(seedOrNow(req.Seed)))

	trainer := train.DefaultQLearningTrainer()
	trainer.Logger = c.logger
	if req.Episodes > 0 {
		trainer.Episodes = req.Episodes
	}
	if req.MaxSteps > 0 {
		trainer.MaxSteps = req.MaxSteps
	}

	// Obstacles are drawn once with the start cell protected and kept for
	// every episode.
	placeholder := sim.NewAgent("start", nil)
	if err := env.AddAgent(placeholder, trainer.Start); err != nil {
		return TrainQLearningSummary{}, err
	}
	env.Populate(rng)
	env.Reset()

	q := policy.NewQLearning(rng, floatOr(req.Alpha, 0.1), floatOr(req.Gamma, 0.9), floatOr(req.Epsilon, 1.0))
	history, err := trainer.Train(ctx, env, q)
	if err != nil {
		return TrainQLearningSummary{}, err
	}

	id := req.ModelID
	if id == "" {
		id = ModelID(policy.KindQLearning, env.Kind(), env.Difficulty())
	}
	table := q.Export(id)
	table.VersionedRecord = storage.CurrentVersion()
	if err := c.store.SaveQTable(ctx, table); err != nil {
		return TrainQLearningSummary{}, fmt.Errorf("save q-table: %w", err)
	}

	summary := TrainQLearningSummary{
		ModelID:      id,
		Episodes:     len(history),
		States:       q.States(),
		FinalEpsilon: q.Epsilon,
	}
	total := 0.0
	for _, ep := range history {
		total += ep.Reward
		if ep.AtGoal {
			summary.GoalEpisodes++
		}
	}
	if len(history) > 0 {
		summary.MeanReward = total / float64(len(history))
	}
	c.logger.Info("q-table saved", "model", id, "states", summary.States, "goal_episodes", summary.GoalEpisodes)
	return summary, nil
}

type TrainNeuralRequest struct {
	Environment EnvironmentRequest
	// ModelID defaults to ModelID("neural", type, difficulty).
	ModelID     string
	Population  int
	Generations int
	MaxSteps    int
	EliteCount  int
	Selection   string
	Seed        int64
}

type TrainNeuralSummary struct {
	ModelID          string
	BestFitness      float64
	BestByGeneration []float64
	ArchiveSize      int
}

// TrainNeural evolves a population of networks and stores the fittest genome
// under ModelID.
func (c *Client) TrainNeural(ctx context.Context, req TrainNeuralRequest) (TrainNeuralSummary, error) {
	if err := c.Init(ctx); err != nil {
		return TrainNeuralSummary{}, err
	}
	// Fail fast on a bad environment before evolving anything.
	probe, err := c.newEnvironment(req.Environment)
	if err != nil {
		return TrainNeuralSummary{}, err
	}
	selector, err := evo.SelectorFromName(req.Selection)
	if err != nil {
		return TrainNeuralSummary{}, err
	}

	trainer := train.DefaultNeuroTrainer()
	trainer.Logger = c.logger
	trainer.Selector = selector
	trainer.Archive = novelty.NewArchive(novelty.WithThreshold(5.0), novelty.WithDecayRate(0.02))
	if req.Population > 0 {
		trainer.Population = req.Population
	}
	if req.Generations > 0 {
		trainer.Generations = req.Generations
	}
	if req.MaxSteps > 0 {
		trainer.MaxSteps = req.MaxSteps
	}
	if req.EliteCount > 0 {
		trainer.EliteCount = req.EliteCount
	}

	rng := rand.New(rand.NewSource(seedOrNow(req.Seed)))
	result, err := trainer.Train(ctx, rng, func() (*grid.Environment, error) {
		return c.newEnvironment(req.Environment)
	})
	if err != nil {
		return TrainNeuralSummary{}, err
	}

	id := req.ModelID
	if id == "" {
		id = ModelID(policy.KindNeural, probe.Kind(), probe.Difficulty())
	}
	genome := result.Best.Genome
	genome.ID = id
	genome.VersionedRecord = storage.CurrentVersion()
	if err := c.store.SaveGenome(ctx, genome); err != nil {
		return TrainNeuralSummary{}, fmt.Errorf("save genome: %w", err)
	}

	summary := TrainNeuralSummary{
		ModelID:     id,
		BestFitness: result.Best.Fitness,
		ArchiveSize: trainer.Archive.Len(),
	}
	for _, gen := range result.History {
		summary.BestByGeneration = append(summary.BestByGeneration, gen.Best)
	}
	c.logger.Info("genome saved", "model", id, "fitness", summary.BestFitness)
	return summary, nil
}

type RunsRequest struct {
	Limit int
	Kind  string
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, req.Limit)
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		if req.Kind != "" && runs[i].Kind != req.Kind {
			continue
		}
		out = append(out, runs[i])
	}
	return out, nil
}

// Run fetches one stored run.
func (c *Client) Run(ctx context.Context, id string) (model.RunRecord, bool, error) {
	if err := c.Init(ctx); err != nil {
		return model.RunRecord{}, false, err
	}
	return c.store.GetRun(ctx, id)
}

type CompareEnvironment struct {
	Type         string
	Difficulties []int
}

// DefaultCompareEnvironments sweeps farol difficulties 1-5 and the four maze
// layouts.
func DefaultCompareEnvironments() []CompareEnvironment {
	return []CompareEnvironment{
		{Type: grid.KindFarol, Difficulties: []int{1, 2, 3, 4, 5}},
		{Type: grid.KindMaze, Difficulties: []int{1, 2, 3, 4}},
	}
}

type CompareRequest struct {
	Environments []CompareEnvironment
	// Policies defaults to fixed, qlearning and neural.
	Policies []string
	Episodes int
	MaxSteps int
	Seed     int64
	// OutDir receives compare.csv and compare.json when set.
	OutDir   string
	SaveRuns bool
}

// SkippedPolicy is a learned policy left out of one environment because its
// model is not stored.
type SkippedPolicy struct {
	Environment string
	Difficulty  int
	Policy      string
	Model       string
}

type CompareSummary struct {
	Rows      []stats.Summary
	Skipped   []SkippedPolicy
	Runs      int
	ReportDir string
}

// Compare runs every available policy side by side in each environment and
// difficulty, starting from (1, 1), and aggregates path lengths and
// collisions per policy.
func (c *Client) Compare(ctx context.Context, req CompareRequest) (CompareSummary, error) {
	if err := c.Init(ctx); err != nil {
		return CompareSummary{}, err
	}
	envs := req.Environments
	if len(envs) == 0 {
		envs = DefaultCompareEnvironments()
	}
	policies := req.Policies
	if len(policies) == 0 {
		policies = []string{policy.KindFixed, policy.KindQLearning, policy.KindNeural}
	}
	episodes := req.Episodes
	if episodes <= 0 {
		episodes = defaultCompareEpisodes
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultCompareMaxSteps
	}
	rng := rand.New(rand.NewSource(seedOrNow(req.Seed)))

	var summary CompareSummary
	var records []model.RunRecord
	for _, env := range envs {
		for _, difficulty := range env.Difficulties {
			agents, skipped, err := c.compareAgents(ctx, env.Type, difficulty, policies)
			if err != nil {
				return summary, err
			}
			summary.Skipped = append(summary.Skipped, skipped...)
			if len(agents) == 0 {
				continue
			}
			c.logger.Info("comparing policies", "environment", env.Type, "difficulty", difficulty, "agents", len(agents), "episodes", episodes)

			for ep := 0; ep < episodes; ep++ {
				sc := scenario.Scenario{
					Name: fmt.Sprintf("compare-%s-%d", env.Type, difficulty),
					Environment: scenario.EnvironmentSpec{
						Type:       env.Type,
						Difficulty: difficulty,
						MazeDir:    c.mazeDir,
						Seed:       rng.Int63() | 1,
					},
					Agents:   agents,
					MaxSteps: maxSteps,
				}
				built, err := scenario.Build(ctx, sc, c.store, c.logger)
				if err != nil {
					return summary, fmt.Errorf("%s difficulty %d: %w", env.Type, difficulty, err)
				}
				result, err := built.Engine.Run(ctx, maxSteps)
				if err != nil {
					return summary, err
				}
				record := c.newRunRecord(RunKindCompare, sc.Name, built.Engine.Environment(), result)
				if req.SaveRuns {
					if err := c.store.SaveRun(ctx, record); err != nil {
						return summary, fmt.Errorf("save run: %w", err)
					}
				}
				records = append(records, record)
			}
		}
	}

	summary.Runs = len(records)
	summary.Rows = stats.Aggregate(records)
	if req.OutDir != "" {
		dir, err := stats.WriteReport(req.OutDir, summary.Rows)
		if err != nil {
			return summary, fmt.Errorf("write report: %w", err)
		}
		summary.ReportDir = dir
	}
	return summary, nil
}

func (c *Client) compareAgents(ctx context.Context, envKind string, difficulty int, policies []string) ([]scenario.AgentSpec, []SkippedPolicy, error) {
	var agents []scenario.AgentSpec
	var skipped []SkippedPolicy
	for _, kind := range policies {
		spec := scenario.AgentSpec{
			ID:      kind,
			Policy:  scenario.PolicySpec{Type: kind},
			Sensors: unitSensorSpecs(),
			Start:   []int{1, 1},
		}
		switch kind {
		case policy.KindQLearning, policy.KindNeural:
			id := ModelID(kind, envKind, difficulty)
			ok, err := c.hasModel(ctx, kind, id)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				c.logger.Warn("model not found, skipping policy", "policy", kind, "model", id)
				skipped = append(skipped, SkippedPolicy{Environment: envKind, Difficulty: difficulty, Policy: kind, Model: id})
				continue
			}
			spec.Policy.Model = id
		case policy.KindFixed, policy.KindRandom:
		default:
			return nil, nil, fmt.Errorf("unknown policy %q", kind)
		}
		agents = append(agents, spec)
	}
	return agents, skipped, nil
}

func (c *Client) hasModel(ctx context.Context, kind, id string) (bool, error) {
	if kind == policy.KindQLearning {
		_, ok, err := c.store.GetQTable(ctx, id)
		return ok, err
	}
	_, ok, err := c.store.GetGenome(ctx, id)
	return ok, err
}

func unitSensorSpecs() []scenario.SensorSpec {
	sensors := grid.UnitSensors()
	out := make([]scenario.SensorSpec, len(sensors))
	for i, s := range sensors {
		out[i] = scenario.SensorSpec{Direction: []int{s.Direction.DX, s.Direction.DY}, Depth: s.Depth}
	}
	return out
}

func seedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
