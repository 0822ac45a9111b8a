package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"farol/pkg/farol"
)

func addEnvironmentFlags(cmd *cobra.Command) {
	cmd.Flags().String("env", "farol", "environment type: farol|maze")
	cmd.Flags().Int("difficulty", 1, "environment difficulty")
	cmd.Flags().Int("width", 0, "farol grid width (default 15)")
	cmd.Flags().Int("height", 0, "farol grid height (default 10)")
	cmd.Flags().String("model", "", "model id to store (default <env>-<policy>, maze<N>-<policy> for mazes)")
	cmd.Flags().Int64("seed", 0, "random seed (0 uses the clock)")
}

func environmentFromFlags(cmd *cobra.Command) farol.EnvironmentRequest {
	kind, _ := cmd.Flags().GetString("env")
	difficulty, _ := cmd.Flags().GetInt("difficulty")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	return farol.EnvironmentRequest{Type: kind, Width: width, Height: height, Difficulty: difficulty}
}

func newTrainQLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train-ql",
		Short: "Train a Q-learning policy and store its table",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			req := farol.TrainQLearningRequest{
				Environment: environmentFromFlags(cmd),
				Episodes:    cfg.QLearning.Episodes,
				MaxSteps:    cfg.QLearning.MaxSteps,
				Alpha:       &cfg.QLearning.Alpha,
				Gamma:       &cfg.QLearning.Gamma,
				Epsilon:     &cfg.QLearning.Epsilon,
			}
			req.ModelID, _ = cmd.Flags().GetString("model")
			req.Seed, _ = cmd.Flags().GetInt64("seed")
			if cmd.Flags().Changed("episodes") {
				req.Episodes, _ = cmd.Flags().GetInt("episodes")
			}
			if cmd.Flags().Changed("max-steps") {
				req.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
			}

			summary, err := client.TrainQLearning(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "model=%s episodes=%d goal_episodes=%d states=%d epsilon=%.4f mean_reward=%.3f\n",
				summary.ModelID, summary.Episodes, summary.GoalEpisodes, summary.States, summary.FinalEpsilon, summary.MeanReward)
			return err
		},
	}
	addEnvironmentFlags(cmd)
	cmd.Flags().Int("episodes", 0, "training episodes (default from config)")
	cmd.Flags().Int("max-steps", 0, "steps per episode (default from config)")
	return cmd
}

func newTrainNeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train-neat",
		Short: "Evolve a neural policy with novelty search and store the best genome",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			req := farol.TrainNeuralRequest{
				Environment: environmentFromFlags(cmd),
				Population:  cfg.Neuro.Population,
				Generations: cfg.Neuro.Generations,
				MaxSteps:    cfg.Neuro.MaxSteps,
				EliteCount:  cfg.Neuro.EliteCount,
				Selection:   cfg.Neuro.Selection,
			}
			req.ModelID, _ = cmd.Flags().GetString("model")
			req.Seed, _ = cmd.Flags().GetInt64("seed")
			if cmd.Flags().Changed("population") {
				req.Population, _ = cmd.Flags().GetInt("population")
			}
			if cmd.Flags().Changed("generations") {
				req.Generations, _ = cmd.Flags().GetInt("generations")
			}
			if cmd.Flags().Changed("selection") {
				req.Selection, _ = cmd.Flags().GetString("selection")
			}

			summary, err := client.TrainNeural(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "model=%s generations=%d best_fitness=%.3f archive=%d\n",
				summary.ModelID, len(summary.BestByGeneration), summary.BestFitness, summary.ArchiveSize)
			return err
		},
	}
	addEnvironmentFlags(cmd)
	cmd.Flags().Int("population", 0, "population size (default from config)")
	cmd.Flags().Int("generations", 0, "generations (default from config)")
	cmd.Flags().String("selection", "", "parent selection: elite|tournament")
	return cmd
}
