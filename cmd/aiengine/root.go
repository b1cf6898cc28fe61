package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigFile string
	EnvFile    string
}

// NewRootCmd creates the aiengine root command
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "aiengine",
		Short: "Query AI providers through one engine",
		Long: `aiengine dispatches text, image, audio and embedding queries to the
configured AI environments and answers function calls in a feedback loop.

Available subcommands:
  query       Run one query and print the reply or its event stream
  models      List the configured environments and their models
  continuity  Inspect continuation tokens
  serve       Run the HTTP query service
  mcp-serve   Run a small MCP server exposing test tools

Examples:
  aiengine query "Summarize the plot of Hamlet"
  aiengine query --stream --model gpt-4o "Write a haiku"
  aiengine models --env openai
  aiengine serve --config config.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(flags.EnvFile)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to the config file (default: AIENGINE_CONFIG, ./config.yaml or /etc/aiengine/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.EnvFile, "env-file", ".env", "Environment file loaded before the config")

	cmd.AddCommand(NewQueryCmd(flags))
	cmd.AddCommand(NewModelsCmd(flags))
	cmd.AddCommand(NewContinuityCmd())
	cmd.AddCommand(NewServeCmd(flags))
	cmd.AddCommand(NewMCPServeCmd())

	return cmd
}

// loadEnvFile loads path into the process environment. A missing file is
// not an error; variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	slog.Debug("environment file loaded", "path", path)
	return nil
}
