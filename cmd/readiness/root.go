package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	mock       bool
	logLevel   string
	jsonOut    bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Evaluate and compensate the agentic readiness of language models",
		Long: `readiness runs standardized tool-calling batteries against single models
and main+executor model pairs, scores them, and synthesizes prosthetic
prompts that compensate for measured weaknesses.

Use --mock to run every command offline against deterministic scripted models.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (default: $READINESS_CONFIG)")
	cmd.PersistentFlags().BoolVar(&flags.mock, "mock", false, "Use scripted models instead of a real inference runtime")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level")
	cmd.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "Print results as JSON")

	cmd.AddCommand(newComboCommand(flags))
	cmd.AddCommand(newAssessCommand(flags))
	cmd.AddCommand(newDistillCommand(flags))
	cmd.AddCommand(newRouteCommand(flags))
	cmd.AddCommand(newServeCommand(flags))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
