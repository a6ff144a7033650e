package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding selects the tick increment levels snap to.
type Rounding string

const (
	RoundingQuarter Rounding = "QUARTER"
	RoundingInteger Rounding = "INTEGER"
)

var quarter = decimal.NewFromInt(4)

func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoundingQuarter, RoundingInteger:
		return r, nil
	case "":
		return RoundingQuarter, nil
	default:
		return "", fmt.Errorf("unknown rounding %q", s)
	}
}

// Round snaps v to the increment, halves away from zero.
func (r Rounding) Round(v decimal.Decimal) decimal.Decimal {
	if r == RoundingInteger {
		return v.Round(0)
	}
	return v.Mul(quarter).Round(0).Div(quarter)
}

// Level is one Fibonacci price of the session and its hysteresis flag.
type Level struct {
	Ratio  float64         `json:"ratio"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

func (l Level) Key() string {
	return strconv.FormatFloat(l.Ratio, 'f', -1, 64)
}

// LevelPrice computes B + (A-B)*r for r >= 0 and B - (A-B)*|r| for r < 0.
func LevelPrice(pointA, pointB decimal.Decimal, ratio float64, rounding Rounding) decimal.Decimal {
	diff := pointA.Sub(pointB)
	r := decimal.NewFromFloat(ratio)

	var level decimal.Decimal
	if ratio >= 0 {
		level = pointB.Add(diff.Mul(r))
	} else {
		level = pointB.Sub(diff.Mul(r.Abs()))
	}
	return rounding.Round(level)
}

// ComputeLevels returns the levels in ratio order; all start inactive.
func ComputeLevels(pointA, pointB decimal.Decimal, ratios []float64, rounding Rounding) []Level {
	levels := make([]Level, 0, len(ratios))
	for _, r := range ratios {
		levels = append(levels, Level{Ratio: r, Price: LevelPrice(pointA, pointB, r, rounding)})
	}
	return levels
}
