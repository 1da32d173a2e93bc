package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l0scanner/l0scanner/pkg/types"
)

var (
	scanChunksFlag []string
	scanJSONFlag   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Scan a single piece of text from the command line or stdin",
	Long: `Scan reads text (as an argument, or from stdin if no argument is given)
and runs it through the full Layer-0 pipeline once, printing the verdict.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringArrayVar(&scanChunksFlag, "chunk", nil, "external context chunk (repeatable)")
	scanCmd.Flags().BoolVar(&scanJSONFlag, "json", false, "print the full ScanResult as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	c, err := bootstrap()
	if err != nil {
		return err
	}

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(raw)
	}

	in := types.PreparedInput{UserInput: text, ExternalChunks: scanChunksFlag}
	result, err := c.scanner.Scan(context.Background(), in)
	if err != nil && result == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSONFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "status: %s\n", result.Status)
	if len(result.Matches) > 0 {
		fmt.Fprintf(out, "matched rule: %s (%s)\n", result.Matches[0].RuleID, result.Matches[0].Severity)
	}
	if result.Note != "" {
		fmt.Fprintf(out, "note: %s\n", result.Note)
	}
	fmt.Fprintf(out, "rule set version: %s\n", result.RuleSetVersion)
	fmt.Fprintf(out, "scanner version: %s\n", result.ScannerVersion)
	fmt.Fprintf(out, "processing time: %.2fms\n", result.ProcessingTimeMs)
	fmt.Fprintf(out, "audit token: %s\n", result.AuditToken)
	return nil
}
