package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "l0scanner",
	Short: "Layer-0 security filter for LLM input pipelines",
	Long: `l0scanner is a multi-stage security filter that sits in front of an LLM:
normalization, code detection, and rule-based pattern matching catch prompt
injection and jailbreak attempts before they reach the model.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
