package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"farol/internal/logging"
	"farol/internal/viz"
	"farol/pkg/farol"
)

const (
	vizNone = "none"
	vizText = "text"
	vizWS   = "ws"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file",
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			mode, _ := cmd.Flags().GetString("viz")
			maxSteps, _ := cmd.Flags().GetInt("max-steps")
			save, _ := cmd.Flags().GetBool("save")
			if scenarioPath == "" {
				return errors.New("--scenario is required")
			}

			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			addr := cfg.Viz.Addr
			if cmd.Flags().Changed("addr") {
				addr, _ = cmd.Flags().GetString("addr")
			}
			delay := cfg.Viz.Delay
			if cmd.Flags().Changed("delay") {
				delay, _ = cmd.Flags().GetDuration("delay")
			}

			req := farol.RunRequest{ScenarioPath: scenarioPath, MaxSteps: maxSteps, Save: save}
			switch mode {
			case vizNone, "":
			case vizText:
				req.Sink = viz.NewTextSink(cmd.OutOrStdout())
				req.Delay = delay
			case vizWS:
				hub := viz.NewHub(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
				stop, err := serveHub(hub, addr)
				if err != nil {
					return err
				}
				defer stop()
				fmt.Fprintf(cmd.ErrOrStderr(), "streaming frames on ws://%s/ws\n", addr)
				req.Sink = hub
				req.Delay = delay
			default:
				return fmt.Errorf("unknown viz mode: %s (valid: none, text, ws)", mode)
			}

			summary, err := client.RunScenario(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scenario=%s reason=%s steps=%d\n", summary.Scenario, summary.Reason, summary.Steps)
			for _, o := range summary.Outcomes {
				fmt.Fprintf(out, "agent=%s policy=%s at_goal=%t final=(%d,%d) path=%d collisions=%d\n",
					o.AgentID, o.Policy, o.AtGoal, o.FinalX, o.FinalY, o.PathLength, o.Collisions)
			}
			for _, issue := range summary.Issues {
				fmt.Fprintf(out, "warning: %v\n", issue)
			}
			if save {
				fmt.Fprintf(out, "run_id=%s\n", summary.RunID)
			}
			return nil
		},
	}
	cmd.Flags().String("scenario", "", "scenario file (.yaml, .yml or .json)")
	cmd.Flags().String("viz", vizNone, "visualization: none|text|ws")
	cmd.Flags().String("addr", "", "listen address for --viz ws")
	cmd.Flags().Duration("delay", 0, "pause between visualized ticks")
	cmd.Flags().Int("max-steps", 0, "override the scenario step budget")
	cmd.Flags().Bool("save", true, "store the run record")
	return cmd
}

// serveHub exposes hub at /ws until the returned stop func is called.
func serveHub(hub *viz.Hub, addr string) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("serve visualization: %w", err)
	case <-time.After(50 * time.Millisecond):
	}
	return func() {
		_ = hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
