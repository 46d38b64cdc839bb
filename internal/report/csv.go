// Package report writes and reads per-round result files and prints run
// summaries for the console.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"chatq/internal/stats"
)

// Header is the column layout of result files.
var Header = []string{
	"prompt_tokens", "generation_tokens", "ttft", "generation_time",
	"user_id", "question_id", "launch_time", "finish_time",
}

func formatSeconds(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// WriteCSV writes rows to w. Durations are seconds, times are unix seconds.
func WriteCSV(w io.Writer, rows []stats.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.PromptTokens),
			strconv.Itoa(r.GenTokens),
			formatSeconds(r.TTFT.Seconds()),
			formatSeconds(r.GenerationTime.Seconds()),
			strconv.Itoa(r.UserID),
			strconv.Itoa(r.RoundID),
			formatSeconds(unixSeconds(r.LaunchTime)),
			formatSeconds(unixSeconds(r.FinishTime)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes rows to filename.
func ExportCSV(rows []stats.Row, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return f.Close()
}

// ReadCSV parses a result file. Columns are matched by name, so extra
// columns and any column order are accepted.
func ReadCSV(r io.Reader) ([]stats.Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range Header {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []stats.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p := parser{rec: rec, idx: idx}
		row := stats.Row{
			PromptTokens:   p.int("prompt_tokens"),
			GenTokens:      p.int("generation_tokens"),
			TTFT:           p.seconds("ttft"),
			GenerationTime: p.seconds("generation_time"),
			UserID:         p.int("user_id"),
			RoundID:        p.int("question_id"),
			LaunchTime:     fromUnixSeconds(p.float("launch_time")),
			FinishTime:     fromUnixSeconds(p.float("finish_time")),
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, p.err)
		}
		rows = append(rows, row)
	}
}

// ImportCSV reads a result file from disk.
func ImportCSV(filename string) ([]stats.Row, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// parser keeps the first conversion error of a record.
type parser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *parser) float(col string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.rec[p.idx[col]], 64)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *parser) int(col string) int {
	// pandas writes integer columns as floats once a NaN shows up
	return int(p.float(col))
}

func (p *parser) seconds(col string) time.Duration {
	return time.Duration(p.float(col) * float64(time.Second))
}
