package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brubru/aiengine/pkg/config"
	"github.com/brubru/aiengine/pkg/engine"
)

// ModelsConfig holds the flags of the models command
type ModelsConfig struct {
	EnvID  string
	Remote bool
	Output string
}

// environmentModels is one listed environment.
type environmentModels struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	Type   string   `json:"type" yaml:"type"`
	Models []string `json:"models" yaml:"models"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewModelsCmd creates the models command
func NewModelsCmd(flags *globalFlags) *cobra.Command {
	cfg := &ModelsConfig{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List environments and models",
		Long: `List the configured environments and their models.

By default the models come from the configuration. With --remote each
environment backend is asked for the models it serves.

Examples:
  aiengine models
  aiengine models --env openai --remote
  aiengine models --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags.ConfigFile)
			if err != nil {
				return err
			}
			defer a.Close()

			list := listModels(cmd.Context(), a.cfg, a.engine, cfg)
			return printModels(cmd.OutOrStdout(), list, cfg.Output)
		},
	}

	cmd.Flags().StringVar(&cfg.EnvID, "env", "", "Only list this environment")
	cmd.Flags().BoolVar(&cfg.Remote, "remote", false, "Ask the backends for their models")
	cmd.Flags().StringVarP(&cfg.Output, "output", "o", "table", "Output format (table, json, yaml)")

	return cmd
}

func listModels(ctx context.Context, cfg *config.Config, eng *engine.Engine, mc *ModelsConfig) []environmentModels {
	var out []environmentModels
	for _, env := range cfg.Environments {
		if mc.EnvID != "" && env.ID != mc.EnvID {
			continue
		}
		item := environmentModels{ID: env.ID, Name: env.Name, Type: env.Type, Models: []string{}}
		if !mc.Remote {
			for _, m := range env.Models {
				item.Models = append(item.Models, m.Model)
			}
			for _, m := range cfg.Models {
				if m.EnvID == env.ID {
					item.Models = append(item.Models, m.Model)
				}
			}
			out = append(out, item)
			continue
		}

		models, err := eng.ListModels(ctx, env.ID)
		if err != nil {
			slog.Warn("listing models failed", "env", env.ID, "error", err)
			item.Error = err.Error()
		}
		for _, m := range models {
			item.Models = append(item.Models, m.ID)
		}
		out = append(out, item)
	}
	return out
}

func printModels(w io.Writer, list []environmentModels, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENV\tTYPE\tMODELS")
		for _, e := range list {
			models := strings.Join(e.Models, ", ")
			if e.Error != "" {
				models = "error: " + e.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.Type, models)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
