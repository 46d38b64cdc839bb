package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatq/internal/apps"
	"chatq/internal/conversation"
	"chatq/internal/executor"
	"chatq/internal/scheduler"
	"chatq/internal/stats"
	"chatq/internal/textgen"
	"chatq/internal/transcript"
)

const (
	// StepInterval is the controller poll period.
	StepInterval = 100 * time.Millisecond

	warmupUsers     = 10
	warmupMaxTokens = 100
)

// StatsSnapshot is sent over the channel
type StatsSnapshot struct {
	Elapsed     time.Duration
	Total       time.Duration
	Active      int
	Admitted    int
	Outstanding int
	Pending     int
	Draining    bool

	Live stats.Snapshot

	// Window is the most recent periodic summary.
	Window stats.Summary
}

// StatsUpdateChan is the channel type
type StatsUpdateChan chan StatsSnapshot

// Result is what a finished run hands back for reporting.
type Result struct {
	Start    time.Time
	End      time.Time
	Summary  stats.Summary
	Rows     []stats.Row
	Admitted int
	Failures int
	// Abandoned counts calls still outstanding when draining gave up.
	Abandoned int
}

type Runner struct {
	Cfg  Config
	Live *stats.Live

	// Event Channel
	Updates StatsUpdateChan

	client executor.Client
	exec   *executor.Executor
	sched  *scheduler.Scheduler
	log    *zap.Logger
	tick   time.Duration
	window stats.Summary
}

type Option func(*runnerOptions)

type runnerOptions struct {
	log       *zap.Logger
	observers []scheduler.Observer
	tick      time.Duration
}

func WithLogger(l *zap.Logger) Option {
	return func(o *runnerOptions) { o.log = l }
}

// WithObserver adds a scheduler event sink, e.g. the Prometheus collector.
func WithObserver(obs scheduler.Observer) Option {
	return func(o *runnerOptions) { o.observers = append(o.observers, obs) }
}

// WithTickInterval overrides StepInterval.
func WithTickInterval(d time.Duration) Option {
	return func(o *runnerOptions) { o.tick = d }
}

// NewRunner loads the app pool and transcripts named by cfg and wires the
// scheduler to an executor around client.
func NewRunner(cfg Config, client executor.Client, updates StatsUpdateChan, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := runnerOptions{log: zap.NewNop(), tick: StepInterval}
	for _, opt := range opts {
		opt(&o)
	}

	if updates == nil {
		// Avoid nil panics if not provided
		updates = make(StatsUpdateChan, 10)
	}

	var store *apps.Store
	if cfg.AppsFile != "" {
		pool, err := apps.Load(cfg.AppsFile)
		if err != nil {
			return nil, err
		}
		store, err = apps.NewStore(pool, cfg.UsersPerApp)
		if err != nil {
			return nil, err
		}
		o.log.Info("loaded app pool", zap.String("file", cfg.AppsFile), zap.Int("apps", store.Len()))
	}

	schedOpts := []scheduler.Option{scheduler.WithLogger(o.log)}
	if cfg.ShareGPT != "" {
		set, err := transcript.Load(cfg.ShareGPT, cfg.NumRounds)
		if err != nil {
			return nil, err
		}
		o.log.Info("loaded transcripts", zap.String("file", cfg.ShareGPT), zap.Int("eligible", set.Len()))
		schedOpts = append(schedOpts, scheduler.WithTranscripts(set))
	}

	live := stats.NewLive()
	observers := append(scheduler.Observers{liveObserver{live}}, o.observers...)
	schedOpts = append(schedOpts, scheduler.WithObserver(observers))

	exec := executor.New(client, executor.Options{Timeout: cfg.RequestTimeout, Logger: o.log})
	return &Runner{
		Cfg:     cfg,
		Live:    live,
		Updates: updates,
		client:  client,
		exec:    exec,
		sched:   scheduler.New(cfg.Workload(), store, exec, schedOpts...),
		log:     o.log,
		tick:    o.tick,
	}, nil
}

// Warmup sends a fixed set of prompts concurrently and waits for all of them.
func (r *Runner) Warmup(ctx context.Context) error {
	r.log.Info("warming up the engine", zap.Int("requests", warmupUsers))
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < warmupUsers; i++ {
		i := i
		g.Go(func() error {
			callCtx := ctx
			if r.Cfg.RequestTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.Cfg.RequestTimeout)
				defer cancel()
			}
			prompt := executor.BuildPrompt([]conversation.Turn{
				{Role: conversation.RoleUser, Content: textgen.Warmup(i)},
			})
			if _, err := r.client.Complete(callCtx, executor.Call{Prompt: prompt, MaxTokens: warmupMaxTokens}); err != nil {
				return fmt.Errorf("warmup request %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) snapshot(start time.Time, draining bool) StatsSnapshot {
	return StatsSnapshot{
		Elapsed:     time.Since(start),
		Total:       r.Cfg.Duration,
		Active:      r.sched.Active(),
		Admitted:    r.sched.Admitted(),
		Outstanding: r.sched.Outstanding(),
		Pending:     r.sched.Pending(),
		Draining:    draining,
		Live:        r.Live.Snapshot(),
		Window:      r.window,
	}
}

func (r *Runner) sendUpdate(s StatsSnapshot) {
	// Non-blocking send
	select {
	case r.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}

// Run drives the scheduler until the configured duration passes or ctx is
// cancelled, then drains outstanding calls and aggregates the whole run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.exec.Start()
	defer r.exec.Close()

	if r.Cfg.Warmup {
		if err := r.Warmup(ctx); err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			r.log.Warn("warmup failed, continuing", zap.Error(err))
		}
	}

	start := time.Now()
	lastSummary := start
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			r.log.Info("interrupted, waiting for the final result")
			break loop
		case <-ticker.C:
			now := time.Now()
			r.sched.Step(now)

			if now.Sub(lastSummary) > r.Cfg.LogInterval {
				r.window = r.sched.Summary(lastSummary, now)
				logSummary(r.log, "periodic summary", r.window)
				lastSummary = now
			}
			r.sendUpdate(r.snapshot(start, false))

			if r.Cfg.Duration > 0 && now.Sub(start) > r.Cfg.Duration {
				break loop
			}
		}
	}

	abandoned := r.drain(start)
	end := time.Now()
	res := Result{
		Start:     start,
		End:       end,
		Summary:   r.sched.Summary(start, end),
		Rows:      r.sched.Rows(),
		Admitted:  r.sched.Admitted(),
		Failures:  r.sched.Failures(),
		Abandoned: abandoned,
	}
	logSummary(r.log, "final summary", res.Summary)
	return res, nil
}

// drain waits for outstanding calls, publishing progress while it does. It
// returns the number of calls still outstanding when it gave up.
func (r *Runner) drain(start time.Time) int {
	deadline := time.Now().Add(r.Cfg.DrainTimeout)
	if r.sched.Outstanding() > 0 {
		r.log.Info("draining in-flight requests", zap.Int("outstanding", r.sched.Outstanding()))
	}
	for r.sched.Outstanding() > 0 {
		if r.Cfg.DrainTimeout > 0 && time.Now().After(deadline) {
			r.log.Warn("gave up waiting for in-flight requests", zap.Int("outstanding", r.sched.Outstanding()))
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.tick)
		err := r.sched.Drain(ctx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			r.log.Warn("draining", zap.Error(err))
			break
		}
		r.sendUpdate(r.snapshot(start, true))
	}
	return r.sched.Outstanding()
}

func logSummary(log *zap.Logger, msg string, s stats.Summary) {
	log.Info(msg,
		zap.Float64("qps", s.QPS),
		zap.Float64("target_qps", s.TargetQPS),
		zap.Float64("finished_qps", s.FinishedQPS),
		zap.Int("launched", s.Launched),
		zap.Int("finished", s.Finished),
		zap.Int("pending", s.Pending),
		zap.Float64("prefill_tokens_per_sec", s.PrefillTokensPerSec),
		zap.Float64("decode_tokens_per_sec", s.DecodeTokensPerSec),
		zap.Float64("decode_speed_per_request", s.DecodeSpeedPerRequest),
		zap.Duration("mean_ttft", s.MeanTTFT),
		zap.Duration("window", s.Duration))
}

// liveObserver feeds the UI counters.
type liveObserver struct {
	live *stats.Live
}

func (o liveObserver) Admitted(int, int) {}
func (o liveObserver) Launched(int, int) { o.live.AddLaunch() }
func (o liveObserver) Finished(r stats.Row) { o.live.AddRow(r) }
func (o liveObserver) Failed(int, int, error) { o.live.AddFailure() }
func (o liveObserver) Backpressure(int) { o.live.AddBackpressure() }
func (o liveObserver) Reaped(int, int) {}
