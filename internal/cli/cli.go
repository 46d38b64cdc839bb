// Package cli runs a load test headless, drawing a one-line progress bar
// from the runner's updates.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"chatq/internal/report"
	"chatq/internal/runner"
)

// Start runs r to completion and prints the final summary to w.
func Start(ctx context.Context, r *runner.Runner, w io.Writer) (runner.Result, error) {
	printHeader(w, r.Cfg)

	type outcome struct {
		res runner.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Run(ctx)
		done <- outcome{res, err}
	}()

	for {
		select {
		case s := <-r.Updates:
			printProgress(w, s)
		case o := <-done:
			if o.err != nil {
				fmt.Fprintln(w)
				return o.res, o.err
			}
			fmt.Fprintf(w, "\n\n📊 LOAD TEST RESULTS\n")
			fmt.Fprintf(w, "Users admitted : %s\n", humanize.Comma(int64(o.res.Admitted)))
			fmt.Fprintf(w, "Rounds answered: %s\n", humanize.Comma(int64(len(o.res.Rows))))
			fmt.Fprintf(w, "Rounds failed  : %s\n", humanize.Comma(int64(o.res.Failures)))
			if o.res.Abandoned > 0 {
				fmt.Fprintf(w, "Still in flight: %d (gave up draining)\n", o.res.Abandoned)
			}
			report.PrintSummary(w, o.res.Summary)
			return o.res, nil
		}
	}
}

func printHeader(w io.Writer, cfg runner.Config) {
	fmt.Fprintf(w, "\n🚀 STARTING CHATQ LOAD TEST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", cfg.BaseURL)
	fmt.Fprintf(w, "Model      : %s\n", cfg.Model)
	fmt.Fprintf(w, "Users / QPS: %d / %g\n", cfg.NumUsers, cfg.QPS)
	fmt.Fprintf(w, "Rounds     : %d (answer %d tokens)\n", cfg.NumRounds, cfg.AnswerLen)
	if cfg.Duration > 0 {
		fmt.Fprintf(w, "Duration   : %s\n", cfg.Duration)
	} else {
		fmt.Fprintf(w, "Duration   : until interrupted\n")
	}
	if cfg.AppsFile != "" {
		fmt.Fprintf(w, "Apps       : %s (%d users per app)\n", cfg.AppsFile, cfg.UsersPerApp)
	}
	if cfg.ShareGPT != "" {
		fmt.Fprintf(w, "Replay     : %s\n", cfg.ShareGPT)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

func printProgress(w io.Writer, s runner.StatsSnapshot) {
	if s.Draining {
		fmt.Fprintf(w, "\r%s %3.0f%% | %s | Draining: %d requests...                ",
			progressBar(1.0, 20), 100.0, s.Elapsed.Round(time.Second), s.Outstanding)
		return
	}

	pct := 0.0
	total := "∞"
	if s.Total > 0 {
		pct = s.Elapsed.Seconds() / s.Total.Seconds()
		if pct > 1.0 {
			pct = 1.0
		}
		total = s.Total.String()
	}
	fmt.Fprintf(w, "\r%s %3.0f%% | %s/%s | Users: %3d | Inf: %3d | OK: %d | Err: %d | TTFT p50: %.0fms",
		progressBar(pct, 20), pct*100,
		s.Elapsed.Round(time.Second), total,
		s.Active,
		s.Outstanding,
		s.Live.Finished,
		s.Live.Failed,
		s.Live.P50TTFTMs,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
