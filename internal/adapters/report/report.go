// Package report renders the per-key detail rows of scored rounds.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"

	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/internal/domain/scoring"
	"github.com/okian/ryno/pkg/logger"
)

var header = []string{"uid", "provider", "model", "similarity", "weight", "bandwidth", "weighted_score"}

// TableSink writes each round as an aligned table.
type TableSink struct {
	mu     sync.Mutex
	w      io.Writer
	logger logger.Logger
}

var _ scoring.Reporter = (*TableSink)(nil)

// NewTableSink creates a sink writing to w. log receives a one-line summary
// per round and may be nil.
func NewTableSink(w io.Writer, log logger.Logger) *TableSink {
	if log == nil {
		log = logger.Nop()
	}
	return &TableSink{w: w, logger: log}
}

// Report implements scoring.Reporter.
func (s *TableSink) Report(ctx context.Context, rows []model.DetailRow) {
	if len(rows) == 0 {
		return
	}
	table := Table(rows)

	s.mu.Lock()
	_, err := io.WriteString(s.w, table)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn(ctx, "failed to write score table", logger.Error(err))
	}

	var total float64
	workers := map[int]struct{}{}
	for _, r := range rows {
		total += r.Weighted
		workers[r.WorkerID] = struct{}{}
	}
	s.logger.Info(ctx, "round report",
		logger.Int("rows", len(rows)),
		logger.Int("workers", len(workers)),
		logger.Float64("total_weighted", total))
}

// Table formats rows as a table with a header line.
func Table(rows []model.DetailRow) string {
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, header)
	for _, r := range rows {
		cells = append(cells, []string{
			strconv.Itoa(r.WorkerID),
			r.Provider,
			r.Model,
			formatFloat(r.Similarity),
			formatFloat(r.ModelWeight),
			strconv.Itoa(r.Bandwidth),
			formatFloat(r.Weighted),
		})
	}

	widths := make([]int, len(header))
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	var b strings.Builder
	for _, row := range cells {
		for i, c := range row {
			if i == len(row)-1 {
				b.WriteString(c)
				break
			}
			b.WriteString(padRight(c, widths[i]))
			b.WriteString("  ")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.4f", f)
}

// LogSink logs one record per detail row.
type LogSink struct {
	logger logger.Logger
}

var _ scoring.Reporter = LogSink{}

// NewLogSink creates a sink logging at info level.
func NewLogSink(log logger.Logger) LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return LogSink{logger: log}
}

// Report implements scoring.Reporter.
func (s LogSink) Report(ctx context.Context, rows []model.DetailRow) {
	for _, r := range rows {
		s.logger.Info(ctx, "score",
			logger.Int("uid", r.WorkerID),
			logger.String("provider", r.Provider),
			logger.String("model", r.Model),
			logger.Float64("similarity", r.Similarity),
			logger.Float64("weight", r.ModelWeight),
			logger.Int("bandwidth", r.Bandwidth),
			logger.Float64("weighted_score", r.Weighted))
	}
}

// Multi fans rows out to several reporters in order.
type Multi []scoring.Reporter

// Report implements scoring.Reporter.
func (m Multi) Report(ctx context.Context, rows []model.DetailRow) {
	for _, r := range m {
		r.Report(ctx, rows)
	}
}
