// Package session resolves the session configuration shared by the backtest
// and production commands: the session file first, then command line flags.
package session

import (
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"

	"fibexecutor/src/strategy"
)

// Flags understood by every trading command.
var Flags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "session config file (json, yaml or toml)"},
	cli.StringFlag{Name: "instrument", Usage: "instrument, e.g. \"NQ 12-25\""},
	cli.StringFlag{Name: "account", Usage: "terminal account"},
	cli.IntFlag{Name: "quantity", Usage: "contracts per order"},
	cli.Float64Flag{Name: "point-a", Usage: "anchor A, skips precalculation together with point-b"},
	cli.Float64Flag{Name: "point-b", Usage: "anchor B"},
	cli.Float64Flag{Name: "take-profit", Usage: "take profit in points"},
	cli.Float64Flag{Name: "stop-loss", Usage: "stop loss in points"},
	cli.Float64Flag{Name: "reactivation-distance", Usage: "distance in points before a filled level is re-armed"},
	cli.Float64Flag{Name: "profit-threshold", Usage: "halt the session once P&L reaches this value"},
	cli.Float64Flag{Name: "loss-threshold", Usage: "halt the session once P&L falls to minus this value"},
	cli.StringFlag{Name: "rounding", Usage: "level rounding: QUARTER or INTEGER"},
}

// Overrides holds the flags that were set explicitly.
type Overrides struct {
	Instrument           *string
	Account              *string
	Quantity             *int
	PointA               *float64
	PointB               *float64
	TakeProfit           *float64
	StopLoss             *float64
	ReactivationDistance *float64
	ProfitThreshold      *float64
	LossThreshold        *float64
	Rounding             *string
}

func FromContext(c *cli.Context) Overrides {
	var o Overrides
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	num := func(name string) *float64 {
		if !c.IsSet(name) {
			return nil
		}
		v := c.Float64(name)
		return &v
	}
	o.Instrument = str("instrument")
	o.Account = str("account")
	o.Rounding = str("rounding")
	if c.IsSet("quantity") {
		q := c.Int("quantity")
		o.Quantity = &q
	}
	o.PointA = num("point-a")
	o.PointB = num("point-b")
	o.TakeProfit = num("take-profit")
	o.StopLoss = num("stop-loss")
	o.ReactivationDistance = num("reactivation-distance")
	o.ProfitThreshold = num("profit-threshold")
	o.LossThreshold = num("loss-threshold")
	return o
}

// Apply writes the overrides on top of cfg and validates the result.
func (o Overrides) Apply(cfg strategy.SessionConfig) (strategy.SessionConfig, error) {
	if o.Instrument != nil {
		cfg.Instrument = *o.Instrument
	}
	if o.Account != nil {
		cfg.Account = *o.Account
	}
	if o.Quantity != nil {
		cfg.Quantity = *o.Quantity
	}
	if o.Rounding != nil {
		r, err := strategy.ParseRounding(*o.Rounding)
		if err != nil {
			return cfg, err
		}
		cfg.Rounding = r
	}
	if o.PointA != nil {
		cfg.PointA = dec(o.PointA)
	}
	if o.PointB != nil {
		cfg.PointB = dec(o.PointB)
	}
	if o.TakeProfit != nil {
		cfg.TakeProfit = *dec(o.TakeProfit)
	}
	if o.StopLoss != nil {
		cfg.StopLoss = *dec(o.StopLoss)
	}
	if o.ReactivationDistance != nil {
		cfg.ReactivationDistance = *dec(o.ReactivationDistance)
	}
	if o.ProfitThreshold != nil {
		cfg.ProfitThreshold = dec(o.ProfitThreshold)
	}
	if o.LossThreshold != nil {
		cfg.SetLossThreshold(dec(o.LossThreshold))
	}
	return cfg, cfg.Validate()
}

// Load reads the session file named by --config and applies the flags.
func Load(c *cli.Context) (strategy.SessionConfig, error) {
	cfg, err := strategy.LoadSessionConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}
	return FromContext(c).Apply(cfg)
}

func dec(f *float64) *decimal.Decimal {
	v := decimal.NewFromFloat(*f)
	return &v
}
