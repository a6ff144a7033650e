// Package reporting prints the session configuration and the closed-position
// ledger as plain text tables.
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"fibexecutor/src/model"
	"fibexecutor/src/strategy"
)

const timeLayout = "2006-01-02 15:04:05.000"

type Summary struct {
	Profits  int             `json:"profits"`
	Losses   int             `json:"losses"`
	Total    int             `json:"total"`
	TotalNet decimal.Decimal `json:"total_net"`
	WinRate  float64         `json:"win_rate"` // percent
}

func Summarize(closed []model.ClosedPosition) Summary {
	var s Summary
	for _, c := range closed {
		switch c.Outcome {
		case model.OutcomeProfit:
			s.Profits++
		case model.OutcomeLoss:
			s.Losses++
		}
		s.TotalNet = s.TotalNet.Add(c.Net)
	}
	s.Total = len(closed)
	if s.Total > 0 {
		s.WinRate = float64(s.Profits) / float64(s.Total) * 100
	}
	return s
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// PrintCloseTable writes one row per closed position.
func PrintCloseTable(w io.Writer, closed []model.ClosedPosition) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Fib Ratio\tPosition Type\tEntry Price\tEntry Time\tClosing Price\tClosing Time\tOutcome\tNet")
	for _, c := range closed {
		p := c.Position
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			strconv.FormatFloat(p.FibRatio, 'f', -1, 64),
			p.Side,
			p.EntryPrice,
			formatTime(p.EntryTime),
			c.ExitPrice,
			formatTime(c.ExitTime),
			c.Outcome,
			c.Net.StringFixed(2),
		)
	}
	return tw.Flush()
}

func PrintSummary(w io.Writer, s Summary) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Profits\tLosses\tTotal\tTotal Net\tWin Rate")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%.1f%%\n", s.Profits, s.Losses, s.Total, s.TotalNet.StringFixed(2), s.WinRate)
	return tw.Flush()
}

// PrintConfiguration writes the startup parameter table followed by the
// level prices, when levels are already known.
func PrintConfiguration(w io.Writer, cfg strategy.SessionConfig, backtest bool, levels []strategy.Level) error {
	mode := "Production"
	if backtest {
		mode = "Backtest"
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "Parameter\tValue")
	rows := [][2]string{
		{"Mode", mode},
		{"Instrument", cfg.Instrument},
		{"Point A", optional(cfg.PointA)},
		{"Point B", optional(cfg.PointB)},
		{"Quantity", strconv.Itoa(cfg.Quantity)},
		{"Take Profit", cfg.TakeProfit.String()},
		{"Stop Loss", cfg.StopLoss.String()},
		{"Reactivation Distance", cfg.ReactivationDistance.String()},
		{"Rounding", string(cfg.Rounding)},
		{"Computation Window", cfg.ComputationWindow.String()},
		{"Profit Threshold", optional(cfg.ProfitThreshold)},
		{"Loss Threshold", optional(cfg.LossThreshold)},
		{"NinjaTrader Account", cfg.Account},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(levels) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "Ratio\tPrice Level")
	for _, l := range levels {
		fmt.Fprintf(tw, "%s\t%s\n", l.Key(), l.Price)
	}
	return tw.Flush()
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}
