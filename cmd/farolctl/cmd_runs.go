package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"farol/pkg/farol"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			kind, _ := cmd.Flags().GetString("kind")
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			runs, err := client.Runs(cmd.Context(), farol.RunsRequest{Limit: limit, Kind: kind})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, r := range runs {
				atGoal := 0
				for _, o := range r.Outcomes {
					if o.AtGoal {
						atGoal++
					}
				}
				fmt.Fprintf(out, "run_id=%s created_at=%s kind=%s scenario=%s env=%s difficulty=%d reason=%s steps=%d at_goal=%d/%d\n",
					r.ID, r.CreatedAtUTC, r.Kind, r.Scenario, r.Environment, r.Difficulty, r.Reason, r.Steps, atGoal, len(r.Outcomes))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "max runs to list")
	cmd.Flags().String("kind", "", "only list runs of this kind: scenario|compare")
	return cmd
}
