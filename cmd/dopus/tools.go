package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the calculator agent's tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listTools(cmd.OutOrStdout(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print each tool's parameter schema as JSON")
	return cmd
}

func listTools(out io.Writer, jsonOutput bool) error {
	calc := &calculator{}
	for _, d := range calc.Tools() {
		if !jsonOutput {
			_, _ = fmt.Fprintf(out, "%-10s %s\n", d.ID(), d.Description())
			continue
		}
		data, err := json.MarshalIndent(map[string]any{
			"name":        d.ID(),
			"description": d.Description(),
			"parameters":  d.JSONSchema(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", d.ID(), err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	}
	return nil
}
