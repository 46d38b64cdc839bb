package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"chatq/internal/apps"
)

var genAppsCmd = &cobra.Command{
	Use:   "gen-apps",
	Short: "Generate a random app pool file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var opts apps.GenerateOptions
		opts.NumApps, _ = f.GetInt("num-apps")
		opts.SystemPromptLen, _ = f.GetInt("sys-prompt-len")
		opts.ToolsLen, _ = f.GetInt("tools-len")
		opts.RagDocLen, _ = f.GetInt("rag-doc-len")
		opts.RagDocCount, _ = f.GetInt("rag-doc-count")
		out, _ := f.GetString("output")
		seed, _ := f.GetInt64("seed")

		if opts.NumApps <= 0 {
			return fmt.Errorf("num-apps must be positive, got %d", opts.NumApps)
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		pool := apps.Generate(rand.New(rand.NewSource(seed)), opts)
		if err := apps.Save(out, pool); err != nil {
			return err
		}
		fmt.Printf("✅ Wrote %d apps to %s\n", len(pool), out)
		return nil
	},
}

func init() {
	f := genAppsCmd.Flags()
	f.Int("num-apps", 10, "Number of apps")
	f.Int("sys-prompt-len", 1000, "System prompt length (characters)")
	f.Int("tools-len", 500, "Tool description length (characters)")
	f.Int("rag-doc-len", 1000, "Length of each RAG document (characters)")
	f.Int("rag-doc-count", 2, "RAG documents per app")
	f.StringP("output", "o", "apps.json", "Output file (.yaml or .yml writes YAML, anything else JSON)")
	f.Int64("seed", 0, "Random seed (0 picks one)")
}
