// Command dopus chats with a tool-calling calculator agent on OpenAI, Anthropic or Gemini.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dopus",
		Short:        "Run a tool-calling agent loop against an LLM provider",
		SilenceUsage: true,
	}
	cmd.AddCommand(chatCmd())
	cmd.AddCommand(toolsCmd())
	return cmd
}
