package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mon-metrics/incentive-dashboard/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build an incentive report from a pools file",
	Long: `Build the hierarchical incentive report from a local JSON file.

The file carries the same payload as POST /api/report.csv: pools, the
date range, monPrice and optional oracle figures.

Examples:
  incentctl report -i pools.json                 # CSV to stdout
  incentctl report -i pools.json --table         # rendered table
  incentctl report -i pools.json -o report.csv   # CSV to file`,
	RunE: runReport,
}

// Flags
var (
	reportInput string
	reportOut   string
	reportTable bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportInput, "input", "i", "-", "Pools JSON file, - for stdin")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write CSV to a file instead of stdout")
	reportCmd.Flags().BoolVar(&reportTable, "table", false, "Render a table instead of CSV")
}

func runReport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if reportInput == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(reportInput)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var in report.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if in.AdjustmentFactor == 0 {
		in.AdjustmentFactor = 1
	}

	rep, err := report.Build(in)
	if err != nil {
		return err
	}

	if reportTable {
		renderTable(os.Stdout, rep)
		return nil
	}

	if reportOut != "" {
		if err := os.WriteFile(reportOut, []byte(rep.CSV()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", reportOut, err)
		}
		fmt.Printf("wrote %s\n", reportOut)
		return nil
	}

	fmt.Print(rep.CSV())
	return nil
}

func renderTable(w io.Writer, rep *report.Report) {
	table := tablewriter.NewWriter(w)
	table.Header(anyCells(report.Columns)...)
	for _, rec := range rep.Records() {
		table.Append(anyCells(rec)...)
	}
	table.Render()
}

func anyCells(cells []string) []any {
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}
