// Package metrics exposes run progress in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chatq/internal/stats"
)

const namespace = "chatq"

// Collector records scheduler events. It satisfies scheduler.Observer.
type Collector struct {
	reg *prometheus.Registry

	activeUsers  prometheus.Gauge
	inFlight     prometheus.Gauge
	admitted     prometheus.Counter
	launched     prometheus.Counter
	finished     prometheus.Counter
	failed       prometheus.Counter
	backpressure prometheus.Counter
	promptTokens prometheus.Counter
	genTokens    prometheus.Counter
	ttft         prometheus.Histogram
	genTime      prometheus.Histogram
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_users",
			Help: "Simulated users currently in the system.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "requests_in_flight",
			Help: "Completion calls submitted and not yet handled.",
		}),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "users_admitted_total",
			Help: "Users created, including the initial ramp-up.",
		}),
		launched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_launched_total",
			Help: "Rounds fired.",
		}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_finished_total",
			Help: "Rounds answered.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_failed_total",
			Help: "Rounds whose call failed.",
		}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "backpressure_warnings_total",
			Help: "Times a user was due while its previous round was still in flight.",
		}),
		promptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "prompt_tokens_total",
			Help: "Prompt tokens reported by the server.",
		}),
		genTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "generation_tokens_total",
			Help: "Generated tokens reported by the server.",
		}),
		ttft: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ttft_seconds",
			Help:    "Time to first token.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
		}),
		genTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "generation_seconds",
			Help:    "Time from first token to end of stream.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
	}
	c.reg.MustRegister(
		c.activeUsers, c.inFlight, c.admitted, c.launched, c.finished, c.failed,
		c.backpressure, c.promptTokens, c.genTokens, c.ttft, c.genTime,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Admitted(_, active int) {
	c.admitted.Inc()
	c.activeUsers.Set(float64(active))
}

func (c *Collector) Launched(int, int) {
	c.launched.Inc()
	c.inFlight.Inc()
}

func (c *Collector) Finished(r stats.Row) {
	c.finished.Inc()
	c.inFlight.Dec()
	c.promptTokens.Add(float64(r.PromptTokens))
	c.genTokens.Add(float64(r.GenTokens))
	c.ttft.Observe(r.TTFT.Seconds())
	c.genTime.Observe(r.GenerationTime.Seconds())
}

func (c *Collector) Failed(int, int, error) {
	c.failed.Inc()
	c.inFlight.Dec()
}

func (c *Collector) Backpressure(int) { c.backpressure.Inc() }

func (c *Collector) Reaped(_, active int) { c.activeUsers.Set(float64(active)) }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
