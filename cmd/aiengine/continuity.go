package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brubru/aiengine/pkg/continuity"
)

// NewContinuityCmd creates the continuity command
func NewContinuityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continuity [token]",
		Short: "Inspect a continuation token",
		Long: `Inspect a continuation token and print the provider and protocol it
belongs to.

Examples:
  aiengine continuity resp_68af4c2e
  aiengine continuity chatcmpl-9xYz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := continuity.Inspect(args[0])
			if info.Protocol == continuity.Unknown {
				return fmt.Errorf("unrecognized continuation token %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	return cmd
}
