package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatq/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("history")
		if path == "" {
			path = defaultHistoryPath()
		}
		if path == "" {
			return errors.New("no history database configured")
		}
		store, err := storage.NewStore(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if id, _ := cmd.Flags().GetString("delete"); id != "" {
			if err := store.Delete(id); err != nil {
				return err
			}
			fmt.Printf("🗑️  Deleted %s\n", id)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No history found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tBASE URL\tUSERS\tTARGET QPS\tQPS\tFINISHED\tFAILED\tMEAN TTFT")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%g\t%.2f\t%s\t%d\t%.1f ms\n",
				it.ID,
				humanize.Time(it.Timestamp),
				it.Config.BaseURL,
				it.Config.NumUsers,
				it.Config.QPS,
				it.Summary.QPS,
				humanize.Comma(int64(it.Summary.Finished)),
				it.Failures,
				float64(it.Summary.MeanTTFT.Microseconds())/1000,
			)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Show at most this many runs (0 for all)")
	historyCmd.Flags().String("delete", "", "Delete the run with this id")
}
