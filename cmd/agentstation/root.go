package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentstation",
		Short: "Plan-and-execute multi-agent workflow server",
		Long: `agentstation plans natural-language requests into tool-invocation
steps, executes them with retries and human-in-the-loop suspension, and
streams progress to subscribed clients.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd())
	return cmd
}
