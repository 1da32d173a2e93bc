package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/l0scanner/l0scanner/pkg/types"
)

var rulesFormat string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the currently loaded rule set",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active rules by severity",
	RunE:  runRulesList,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesListCmd.Flags().StringVar(&rulesFormat, "format", "table", "Output format: table, json")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	c, err := bootstrap()
	if err != nil {
		return err
	}
	rules := c.registry.Current().ActiveRules()

	switch rulesFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	case "table":
		return outputRulesTable(cmd, rules)
	default:
		return fmt.Errorf("unknown output format: %s", rulesFormat)
	}
}

func outputRulesTable(cmd *cobra.Command, rules []*types.Rule) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID\tSeverity\tState\tImpact\tName\n")
	fmt.Fprintf(w, "--\t--------\t-----\t------\t----\n")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", r.ID, r.Severity, r.State, r.ImpactScore, r.Name)
	}
	return nil
}
