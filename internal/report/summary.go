package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"

	"chatq/internal/stats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const rule = "==============================================================="

// PrintSummary writes the performance summary box.
func PrintSummary(w io.Writer, s stats.Summary) {
	fmt.Fprintf(w, "\n%s\n", "==================== Performance summary ======================")
	fmt.Fprintf(w, "  QPS (target)          : %s reqs/s\n", humanize.CommafWithDigits(s.TargetQPS, 4))
	fmt.Fprintf(w, "  QPS (achieved)        : %s reqs/s\n", humanize.CommafWithDigits(s.QPS, 4))
	fmt.Fprintf(w, "  Processing speed      : %s reqs/s\n", humanize.CommafWithDigits(s.FinishedQPS, 4))
	fmt.Fprintf(w, "  Requests on-the-fly   : %d\n", s.Pending)
	fmt.Fprintf(w, "  Launched / finished   : %s / %s\n", humanize.Comma(int64(s.Launched)), humanize.Comma(int64(s.Finished)))
	fmt.Fprintf(w, "  Input tokens/s        : %s tokens/s\n", humanize.CommafWithDigits(s.PrefillTokensPerSec, 2))
	fmt.Fprintf(w, "  Output tokens/s       : %s tokens/s\n", humanize.CommafWithDigits(s.DecodeTokensPerSec, 2))
	fmt.Fprintf(w, "  Generation throughput : %s tokens/req/s\n", humanize.CommafWithDigits(s.DecodeSpeedPerRequest, 2))
	fmt.Fprintf(w, "  Average TTFT          : %.4fs (±%.4fs)\n", s.MeanTTFT.Seconds(), s.TTFTStdErr.Seconds())
	fmt.Fprintf(w, "  TTFT P50/P90/P99      : %.4fs / %.4fs / %.4fs\n", s.P50TTFT.Seconds(), s.P90TTFT.Seconds(), s.P99TTFT.Seconds())
	fmt.Fprintf(w, "  Time range            : %s - %s (%.2fs)\n",
		s.Start.Format(time.TimeOnly), s.End.Format(time.TimeOnly), s.Duration.Seconds())
	fmt.Fprintf(w, "%s\n\n", rule)
}

// ExportSummary writes s as JSON to filename.
func ExportSummary(s stats.Summary, filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
