package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"farol/internal/grid"
	"farol/pkg/farol"
)

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare stored policies across environments and difficulties",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			farolLevels, _ := cmd.Flags().GetIntSlice("farol")
			mazeLevels, _ := cmd.Flags().GetIntSlice("maze")
			policies, _ := cmd.Flags().GetStringSlice("policies")
			req := farol.CompareRequest{
				Policies: policies,
				Episodes: cfg.Compare.Episodes,
				MaxSteps: cfg.Compare.MaxSteps,
				OutDir:   cfg.Compare.OutDir,
			}
			if len(farolLevels) > 0 {
				req.Environments = append(req.Environments, farol.CompareEnvironment{Type: grid.KindFarol, Difficulties: farolLevels})
			}
			if len(mazeLevels) > 0 {
				req.Environments = append(req.Environments, farol.CompareEnvironment{Type: grid.KindMaze, Difficulties: mazeLevels})
			}
			if len(req.Environments) == 0 {
				return fmt.Errorf("nothing to compare: set --farol or --maze")
			}
			req.Seed, _ = cmd.Flags().GetInt64("seed")
			req.SaveRuns, _ = cmd.Flags().GetBool("save-runs")
			if cmd.Flags().Changed("episodes") {
				req.Episodes, _ = cmd.Flags().GetInt("episodes")
			}
			if cmd.Flags().Changed("max-steps") {
				req.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
			}
			if cmd.Flags().Changed("out") {
				req.OutDir, _ = cmd.Flags().GetString("out")
			}

			summary, err := client.Compare(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			for _, s := range summary.Skipped {
				fmt.Fprintf(out, "skipped: env=%s difficulty=%d policy=%s model=%s not found\n", s.Environment, s.Difficulty, s.Policy, s.Model)
			}
			for _, row := range summary.Rows {
				fmt.Fprintf(out, "env=%s difficulty=%d policy=%s samples=%d success=%.2f path=%.2f±%.2f collisions=%.2f\n",
					row.Environment, row.Difficulty, row.Policy, row.Samples, row.SuccessRate,
					row.MeanPathLength, row.StdPathLength, row.MeanCollisions)
			}
			if summary.ReportDir != "" {
				fmt.Fprintf(out, "report=%s\n", summary.ReportDir)
			}
			return nil
		},
	}
	cmd.Flags().IntSlice("farol", []int{1, 2, 3, 4, 5}, "farol difficulties to sweep")
	cmd.Flags().IntSlice("maze", []int{1, 2, 3, 4}, "maze difficulties to sweep")
	cmd.Flags().StringSlice("policies", nil, "policies to compare (default fixed,qlearning,neural)")
	cmd.Flags().Int("episodes", 0, "episodes per environment (default from config)")
	cmd.Flags().Int("max-steps", 0, "steps per episode (default from config)")
	cmd.Flags().Int64("seed", 0, "random seed (0 uses the clock)")
	cmd.Flags().String("out", "", "report directory (default from config)")
	cmd.Flags().Bool("save-runs", false, "store every comparison run")
	return cmd
}
