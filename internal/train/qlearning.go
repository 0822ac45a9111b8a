// Package train runs the offline training loops that produce Q-tables and
// neural genomes for later simulation runs.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"farol/internal/grid"
	"farol/internal/logging"
	"farol/internal/policy"
	"farol/internal/sim"
)

const (
	stepPenalty      = -0.1
	collisionPenalty = -0.01
	approachBonus    = 0.1
	goalReward       = 100.0
	stallReward      = -1.0

	// reportEvery is the episode window for progress logs.
	reportEvery = 100
)

// QLearningTrainer runs episodic tabular Q-learning from a fixed start cell.
type QLearningTrainer struct {
	Episodes     int
	MaxSteps     int
	Start        grid.Position
	EpsilonDecay float64
	EpsilonFloor float64
	Logger       *slog.Logger
}

func DefaultQLearningTrainer() QLearningTrainer {
	return QLearningTrainer{
		Episodes:     1000,
		MaxSteps:     60,
		Start:        grid.Position{X: 1, Y: 1},
		EpsilonDecay: 0.995,
		EpsilonFloor: 0.01,
	}
}

type EpisodeStats struct {
	Episode int
	Reward  float64
	Steps   int
	AtGoal  bool
	Epsilon float64
}

// Train updates q in place over t.Episodes episodes in env. Obstacles already
// placed in env are kept between episodes.
func (t QLearningTrainer) Train(ctx context.Context, env *grid.Environment, q *policy.QLearning) ([]EpisodeStats, error) {
	if env == nil || q == nil {
		return nil, errors.New("environment and policy are required")
	}
	if t.Episodes <= 0 || t.MaxSteps <= 0 {
		return nil, fmt.Errorf("episodes and max steps must be > 0: episodes=%d max_steps=%d", t.Episodes, t.MaxSteps)
	}
	logger := logging.OrDiscard(t.Logger)
	q.Training = true

	history := make([]EpisodeStats, 0, t.Episodes)
	for ep := 0; ep < t.Episodes; ep++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		stats, err := t.episode(env, q, ep)
		if err != nil {
			return history, err
		}
		q.DecayEpsilon(t.EpsilonDecay, t.EpsilonFloor)
		stats.Epsilon = q.Epsilon
		history = append(history, stats)

		if (ep+1)%reportEvery == 0 {
			logger.Info("qlearning progress",
				"episode", ep+1,
				"episodes", t.Episodes,
				"mean_reward", meanReward(history[len(history)-reportEvery:]),
				"epsilon", q.Epsilon,
				"states", q.States(),
			)
		}
	}
	return history, nil
}

func (t QLearningTrainer) episode(env *grid.Environment, q *policy.QLearning, ep int) (EpisodeStats, error) {
	env.Reset()
	agent := sim.NewAgent(fmt.Sprintf("train-%d", ep), q)
	agent.Install(grid.UnitSensors()...)
	if err := env.AddAgent(agent, t.Start); err != nil {
		return EpisodeStats{}, fmt.Errorf("episode %d: %w", ep, err)
	}

	stats := EpisodeStats{Episode: ep}
	for stats.Steps < t.MaxSteps && !stats.AtGoal {
		obs := env.Observe(agent)
		prev := *obs.Position
		agent.Perceive(obs)
		action := agent.Act()

		env.Apply(action, agent)
		env.Advance()
		next, _ := env.Position(agent.ID())

		done := env.AtGoal(agent.ID())
		reward := ShapedReward(prev, next, env.Goal(), action, agent.Collisions(), done)
		q.Learn(prev, action, reward, next)

		stats.Reward += reward
		stats.Steps++
		stats.AtGoal = done
	}
	return stats, nil
}

// ShapedReward scores one training step. collisions is the agent's running
// total for the episode.
func ShapedReward(prev, next, goal grid.Position, action grid.Action, collisions int, atGoal bool) float64 {
	reward := stepPenalty + collisionPenalty*float64(collisions)
	if next.DistanceTo(goal) < prev.DistanceTo(goal) {
		reward += approachBonus
	}
	if atGoal {
		reward = goalReward
	}
	if prev == next && !action.IsZero() {
		reward = stallReward
	}
	return reward
}

func meanReward(stats []EpisodeStats) float64 {
	if len(stats) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range stats {
		total += s.Reward
	}
	return total / float64(len(stats))
}
