package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/pandora-weather-scanner/internal/config"
	"github.com/kjstillabower/pandora-weather-scanner/internal/observability"
	"github.com/kjstillabower/pandora-weather-scanner/internal/registry"
)

func main() {
	if err := newRootCmd(observability.NewLogger).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the CLI: serve runs the HTTP service, lookup and locations
// query the same core from the terminal. The logger is built only after config
// loading has applied .env, so LOG_LEVEL may come from there.
func newRootCmd(buildLogger func() (*zap.Logger, error)) *cobra.Command {
	var (
		configDir string
		cfg       *config.Config
		logger    *zap.Logger
	)

	root := &cobra.Command{
		Use:          "pandora-weather",
		Short:        "Pandora Weather Scanner: current conditions for named Pandora locations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configDir == "" {
				cfg, err = config.Load()
			} else {
				cfg, err = config.LoadFrom(configDir)
			}
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if logger, err = buildLogger(); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = observability.FlushTelemetry(logger)
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding .env and config/{ENV_NAME}.yaml (default: working directory)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, logger)
				if err != nil {
					return err
				}
				return a.serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "lookup <location>",
			Short: "Look up current conditions for one location and print them as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, logger)
				if err != nil {
					return err
				}
				record, err := a.service.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(record, "", "  ")
				if err != nil {
					return fmt.Errorf("encode record: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			},
		},
		&cobra.Command{
			Use:   "locations",
			Short: "List the known location keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				reg, err := registry.New(cfg.Locations)
				if err != nil {
					return fmt.Errorf("registry: %w", err)
				}
				for _, key := range reg.Keys() {
					loc, _ := reg.Lookup(key)
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, loc.Name)
				}
				return nil
			},
		},
	)
	return root
}
