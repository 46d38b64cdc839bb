package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatq/internal/dummy"
	"chatq/internal/logging"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a fake streaming completion server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		maxReply, _ := cmd.Flags().GetInt("max-reply")
		omitUsage, _ := cmd.Flags().GetBool("omit-usage")

		srv := dummy.Start(dummy.ServerConfig{
			Port:      port,
			MaxReply:  maxReply,
			OmitUsage: omitUsage,
			Logger:    logging.New(viper.GetString("log-level"), os.Stderr),
		})

		ctx, stop := interruptContext(cmd.Context())
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run dummy server on")
	dummyCmd.Flags().Int("max-reply", 0, "Cap on streamed tokens per reply (0 honors max_tokens)")
	dummyCmd.Flags().Bool("omit-usage", false, "Leave usage out of streams to exercise the client fallback")
}
