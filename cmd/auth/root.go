package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/tabauth/internal/auth/app"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "tabauth",
		Short:         "Token based session authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flag > AUTH_CONFIG_FILE; LoadConfig reads the variable.
			if cmd.Flags().Changed("config") {
				return os.Setenv("AUTH_CONFIG_FILE", configFile)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (env: AUTH_CONFIG_FILE)")

	rootCmd.AddCommand(
		newServeCmd(),
		newKeygenCmd(),
		newUserCmd(),
		newImportCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// openApp builds the application for one-shot commands. Logs go to stderr so
// stdout stays parseable.
func openApp(ctx context.Context, cmd *cobra.Command) (*app.Application, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := slogx.New(slogx.Config{
		Service: "tabauth",
		Version: app.BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  "text",
		Output:  cmd.ErrOrStderr(),
	})
	return app.NewWithLogger(ctx, cfg, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the service version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tabauth %s\n", app.BuildVersion)
			return err
		},
	}
}
