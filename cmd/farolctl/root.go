package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"farol/internal/config"
	"farol/internal/logging"
	"farol/pkg/farol"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "farolctl",
		Short: "Grid-world lighthouse and maze simulator",
		Long: `farolctl runs agents through lighthouse and maze grid worlds.

It trains Q-learning and neuro-evolved policies, replays scenarios with
optional live visualization, and compares policies across difficulties.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("store", "", "store backend: memory|sqlite|postgres")
	rootCmd.PersistentFlags().String("dsn", "", "sqlite file or postgres connection string")
	rootCmd.PersistentFlags().String("log-level", "", "log level: info|debug|trace")
	rootCmd.PersistentFlags().String("maze-dir", "", "directory holding dificuldadeN.txt layouts")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newTrainQLCmd(),
		newTrainNeatCmd(),
		newCompareCmd(),
		newRunsCmd(),
	)
	return rootCmd
}

// loadConfig resolves defaults, the config file, environment variables and
// finally any global flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind, _ = flags.GetString("store")
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN, _ = flags.GetString("dsn")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("maze-dir") {
		cfg.Mazes.Dir, _ = flags.GetString("maze-dir")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient opens the configured store. Callers close the client.
func newClient(cmd *cobra.Command) (*farol.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := farol.New(farol.Options{
		StoreKind: cfg.Store.Kind,
		DSN:       cfg.Store.DSN,
		MazeDir:   cfg.Mazes.Dir,
		Logger:    logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	})
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
