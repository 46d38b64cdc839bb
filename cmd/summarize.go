package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"chatq/internal/report"
	"chatq/internal/stats"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <csv>",
	Short: "Re-aggregate a saved result file over its full time range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := report.ImportCSV(args[0])
		if err != nil {
			return err
		}
		s := stats.Summarize(rows, stats.Window{}, 0, 0)
		report.PrintSummary(os.Stdout, s)

		if out, _ := cmd.Flags().GetString("json"); out != "" {
			return report.ExportSummary(s, out)
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().String("json", "", "Also write the summary as JSON to this file")
}
