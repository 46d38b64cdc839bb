package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatq/internal/banner"
	"chatq/internal/cli"
	"chatq/internal/executor"
	"chatq/internal/logging"
	"chatq/internal/metrics"
	"chatq/internal/report"
	"chatq/internal/runner"
	"chatq/internal/storage"
	"chatq/internal/tui/app"

	tea "github.com/charmbracelet/bubbletea"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatq",
	Short: "chatq - multi-round chat load generator for LLM serving engines",
	Long: `
chatq simulates many concurrent users holding multi-round conversations
against an OpenAI-compatible /v1/completions endpoint, paced to a target QPS,
and reports TTFT, throughput and decode speed.

It runs headless by default. Pass --tui for the interactive dashboard.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromViper()
		if err != nil {
			return err
		}
		if viper.GetBool("tui") {
			return runTUI(cfg)
		}
		return runHeadless(cmd.Context(), cfg)
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd, summarizeCmd, genAppsCmd, historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatq.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	def := runner.DefaultConfig()
	f := rootCmd.Flags()
	f.Int("num-users", def.NumUsers, "Max number of users in the system concurrently")
	f.Int("shared-system-prompt", def.SystemPromptLen, "Length of the placeholder system prompt (tokens)")
	f.Int("user-history-prompt", def.UserInfoLen, "Length of the placeholder per-user history (tokens)")
	f.Int("answer-len", def.AnswerLen, "Max tokens generated per answer")
	f.Int("num-rounds", def.NumRounds, "Rounds per conversation")
	f.Float64("qps", def.QPS, "Target requests per second across all users")
	f.String("model", def.Model, "Model name sent to the endpoint")
	f.String("base-url", def.BaseURL, "Base URL of the serving engine")
	f.String("api-key", "", "API key sent as a bearer token (default EMPTY)")
	f.Int("time", 0, "Run duration in seconds (0 runs until interrupted)")
	f.String("output", def.Output, "CSV file the per-round rows are written to")
	f.Int("init-user-id", def.InitUserID, "First user id minus one")
	f.Bool("request-with-user-id", def.RequestWithUserID, "Send the x-user-id header with every request")
	f.Int("log-interval", int(def.LogInterval.Seconds()), "Seconds between periodic summaries")
	f.String("apps-file", "", "JSON or YAML app pool (system prompt, tools, rag docs)")
	f.Int("users-per-app", def.UsersPerApp, "Consecutive users sharing one app")
	f.String("sharegpt", "", "ShareGPT JSON file to replay instead of synthetic questions")
	f.Bool("warmup", def.Warmup, "Send warmup requests before the run")
	f.Duration("request-timeout", def.RequestTimeout, "Per-call timeout")
	f.Duration("drain-timeout", def.DrainTimeout, "How long to wait for in-flight calls after the run (0 waits forever)")
	f.String("failure-policy", def.FailurePolicy, "What a failed round does to its user: abandon or stall")
	f.Int64("seed", def.Seed, "Seed for the synthetic text generator")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.Bool("tui", false, "Run the interactive dashboard")
	f.String("history", defaultHistoryPath(), "Run history database (empty disables)")

	viper.BindPFlags(rootCmd.PersistentFlags())
	viper.BindPFlags(f)
}

func defaultHistoryPath() string {
	p, err := storage.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".chatq")
		}
	}
	viper.SetEnvPrefix("CHATQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func configFromViper() (runner.Config, error) {
	cfg := runner.Config{
		NumUsers:          viper.GetInt("num-users"),
		SystemPromptLen:   viper.GetInt("shared-system-prompt"),
		UserInfoLen:       viper.GetInt("user-history-prompt"),
		AnswerLen:         viper.GetInt("answer-len"),
		NumRounds:         viper.GetInt("num-rounds"),
		QPS:               viper.GetFloat64("qps"),
		Model:             viper.GetString("model"),
		BaseURL:           viper.GetString("base-url"),
		APIKey:            viper.GetString("api-key"),
		Duration:          time.Duration(viper.GetInt("time")) * time.Second,
		LogInterval:       time.Duration(viper.GetInt("log-interval")) * time.Second,
		Output:            viper.GetString("output"),
		InitUserID:        viper.GetInt("init-user-id"),
		RequestWithUserID: viper.GetBool("request-with-user-id"),
		AppsFile:          viper.GetString("apps-file"),
		UsersPerApp:       viper.GetInt("users-per-app"),
		ShareGPT:          viper.GetString("sharegpt"),
		Warmup:            viper.GetBool("warmup"),
		RequestTimeout:    viper.GetDuration("request-timeout"),
		DrainTimeout:      viper.GetDuration("drain-timeout"),
		FailurePolicy:     viper.GetString("failure-policy"),
		Seed:              viper.GetInt64("seed"),
	}
	return cfg, cfg.Validate()
}

func newClient(cfg runner.Config, log *zap.Logger) executor.Client {
	return executor.NewHTTPClient(executor.ClientConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Logger:  log,
	})
}

func openHistory(log *zap.Logger) *storage.Store {
	path := viper.GetString("history")
	if path == "" {
		return nil
	}
	store, err := storage.NewStore(path)
	if err != nil {
		log.Warn("run history disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return store
}

// --- Runners ---

func runTUI(cfg runner.Config) error {
	// Logs would tear the alt screen
	log := logging.Nop()

	store := openHistory(log)
	if store != nil {
		defer store.Close()
	}

	factory := func(c runner.Config, updates runner.StatsUpdateChan) (*runner.Runner, error) {
		return runner.NewRunner(c, newClient(c, log), updates, runner.WithLogger(log))
	}

	m := app.NewModel(cfg, factory, store, log)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chatq: %w", err)
	}
	return nil
}

// interruptContext is cancelled by the first SIGINT or SIGTERM. The handler
// is released right after, so a second interrupt during the drain kills the
// process.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

func runHeadless(ctx context.Context, cfg runner.Config) error {
	log := logging.New(viper.GetString("log-level"), os.Stderr)
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := interruptContext(ctx)
	defer stop()

	opts := []runner.Option{runner.WithLogger(log)}
	collector := metrics.New()
	addr := viper.GetString("metrics-addr")
	if addr != "" {
		opts = append(opts, runner.WithObserver(collector))
	}

	r, err := runner.NewRunner(cfg, newClient(cfg, log), make(runner.StatsUpdateChan, 100), opts...)
	if err != nil {
		return err
	}

	// The metrics server lives as long as the run.
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	if addr != "" {
		g.Go(func() error { return collector.Serve(serveCtx, addr, log) })
	}

	var res runner.Result
	g.Go(func() error {
		defer stopServe()
		var err error
		res, err = cli.Start(gctx, r, os.Stdout)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.Output != "" {
		if err := report.ExportCSV(res.Rows, cfg.Output); err != nil {
			return fmt.Errorf("writing %s: %w", cfg.Output, err)
		}
		fmt.Printf("\n✅ Rows written to %s\n", cfg.Output)
	}

	if store := openHistory(log); store != nil {
		defer store.Close()
		if err := store.Save(storage.NewHistoryItem(cfg, res)); err != nil {
			log.Warn("saving run history", zap.Error(err))
		}
	}
	return nil
}
