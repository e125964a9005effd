package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "anthropic-play",
	Short: "Chat relay for streaming LLM conversations",
	Long: `anthropic-play relays chat conversations to a streaming LLM provider and
re-frames the response as newline-delimited JSON stream events.

Examples:
  anthropic-play serve                 # run the relay server
  anthropic-play chat                  # interactive chat against a running relay
  anthropic-play chat --ephemeral      # chat without a persisted transcript
  anthropic-play config                # show the effective configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
