package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"fibexecutor/src/risk"
)

// SessionConfig is the resolved configuration of one trading session.
type SessionConfig struct {
	Instrument  string
	Account     string
	Quantity    int
	TimeInForce string

	Ratios   []float64
	Rounding Rounding

	ComputationWindow risk.Window
	TradingWindows    risk.Windows

	TakeProfit           decimal.Decimal
	StopLoss             decimal.Decimal
	ReactivationDistance decimal.Decimal

	// Optional anchors. With both set the session skips precalculation.
	PointA *decimal.Decimal
	PointB *decimal.Decimal

	ProfitThreshold *decimal.Decimal
	LossThreshold   *decimal.Decimal
}

// fileConfig mirrors the session file.
type fileConfig struct {
	Instrument           string     `mapstructure:"instrument"`
	Account              string     `mapstructure:"account"`
	Quantity             int        `mapstructure:"quantity"`
	TimeInForce          string     `mapstructure:"time_in_force"`
	Ratios               []float64  `mapstructure:"ratios"`
	Rounding             string     `mapstructure:"rounding"`
	ComputationWindow    []string   `mapstructure:"computation_window"`
	TradingWindows       [][]string `mapstructure:"trading_windows"`
	TakeProfit           float64    `mapstructure:"take_profit"`
	StopLoss             float64    `mapstructure:"stop_loss"`
	ReactivationDistance float64    `mapstructure:"reactivation_distance"`
	PointA               *float64   `mapstructure:"point_a"`
	PointB               *float64   `mapstructure:"point_b"`
	ProfitThreshold      *float64   `mapstructure:"profit_threshold"`
	LossThreshold        *float64   `mapstructure:"loss_threshold"`
}

func DefaultRatios() []float64 {
	return []float64{
		0, 0.23, 0.38, 0.50, 0.618, 0.78, 1.0, 1.23, 1.618, 2.14, 2.618, 3.618,
		-0.23, -0.618, -1.14, -1.618, -2.14, -2.618, -3.618,
	}
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Instrument:           "NQ 12-24",
		Account:              "Sim101",
		Quantity:             1,
		TimeInForce:          "GTC",
		Ratios:               DefaultRatios(),
		Rounding:             RoundingQuarter,
		ComputationWindow:    risk.DefaultComputationWindow(),
		TradingWindows:       risk.DefaultTradingWindows(),
		TakeProfit:           decimal.NewFromInt(20),
		StopLoss:             decimal.NewFromInt(20),
		ReactivationDistance: decimal.NewFromInt(10),
	}
}

// LoadSessionConfig reads a JSON, YAML or TOML session file on top of the
// defaults. Keys can be overridden from the environment with the FIB_ prefix.
// An empty path returns the defaults.
func LoadSessionConfig(path string) (SessionConfig, error) {
	def := DefaultSessionConfig()
	if strings.TrimSpace(path) == "" {
		return def, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("instrument", def.Instrument)
	v.SetDefault("account", def.Account)
	v.SetDefault("quantity", def.Quantity)
	v.SetDefault("time_in_force", def.TimeInForce)
	v.SetDefault("ratios", def.Ratios)
	v.SetDefault("rounding", string(def.Rounding))
	v.SetDefault("take_profit", def.TakeProfit.InexactFloat64())
	v.SetDefault("stop_loss", def.StopLoss.InexactFloat64())
	v.SetDefault("reactivation_distance", def.ReactivationDistance.InexactFloat64())

	if err := v.ReadInConfig(); err != nil {
		return SessionConfig{}, fmt.Errorf("read session config %s: %w", path, err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return SessionConfig{}, fmt.Errorf("decode session config %s: %w", path, err)
	}

	cfg, err := fc.resolve(def)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (fc fileConfig) resolve(def SessionConfig) (SessionConfig, error) {
	cfg := def
	cfg.Instrument = fc.Instrument
	cfg.Account = fc.Account
	cfg.Quantity = fc.Quantity
	cfg.TimeInForce = fc.TimeInForce
	if len(fc.Ratios) > 0 {
		cfg.Ratios = fc.Ratios
	}

	rounding, err := ParseRounding(fc.Rounding)
	if err != nil {
		return cfg, err
	}
	cfg.Rounding = rounding

	if len(fc.ComputationWindow) > 0 {
		ws, err := risk.ParseWindows([][]string{fc.ComputationWindow})
		if err != nil {
			return cfg, fmt.Errorf("computation window: %w", err)
		}
		cfg.ComputationWindow = ws[0]
	}
	if len(fc.TradingWindows) > 0 {
		ws, err := risk.ParseWindows(fc.TradingWindows)
		if err != nil {
			return cfg, err
		}
		cfg.TradingWindows = ws
	}

	cfg.TakeProfit = decimal.NewFromFloat(fc.TakeProfit)
	cfg.StopLoss = decimal.NewFromFloat(fc.StopLoss)
	cfg.ReactivationDistance = decimal.NewFromFloat(fc.ReactivationDistance)
	cfg.PointA = decimalPtr(fc.PointA)
	cfg.PointB = decimalPtr(fc.PointB)
	cfg.ProfitThreshold = decimalPtr(fc.ProfitThreshold)
	cfg.SetLossThreshold(decimalPtr(fc.LossThreshold))
	return cfg, nil
}

// SetLossThreshold stores the loss limit as -|x|.
func (c *SessionConfig) SetLossThreshold(v *decimal.Decimal) {
	if v == nil {
		c.LossThreshold = nil
		return
	}
	n := v.Abs().Neg()
	c.LossThreshold = &n
}

// HasAnchors reports whether both anchor overrides are configured.
func (c SessionConfig) HasAnchors() bool {
	return c.PointA != nil && c.PointB != nil
}

// Template is the ATM strategy tag sent with every order.
func (c SessionConfig) Template() string {
	return c.TakeProfit.String() + "_" + c.StopLoss.String()
}

func (c SessionConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Instrument) == "" {
		errs = append(errs, errors.New("instrument is required"))
	}
	if strings.TrimSpace(c.Account) == "" {
		errs = append(errs, errors.New("account is required"))
	}
	if c.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be positive, got %d", c.Quantity))
	}
	if len(c.Ratios) == 0 {
		errs = append(errs, errors.New("at least one ratio is required"))
	}
	if c.Rounding != RoundingQuarter && c.Rounding != RoundingInteger {
		errs = append(errs, fmt.Errorf("unknown rounding %q", c.Rounding))
	}
	if !c.TakeProfit.IsPositive() {
		errs = append(errs, errors.New("take profit must be positive"))
	}
	if !c.StopLoss.IsPositive() {
		errs = append(errs, errors.New("stop loss must be positive"))
	}
	if c.ReactivationDistance.IsNegative() {
		errs = append(errs, errors.New("reactivation distance must not be negative"))
	}
	if len(c.TradingWindows) == 0 {
		errs = append(errs, errors.New("at least one trading window is required"))
	}
	if c.ProfitThreshold != nil && !c.ProfitThreshold.IsPositive() {
		errs = append(errs, errors.New("profit threshold must be positive"))
	}
	return errors.Join(errs...)
}

func decimalPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	v := decimal.NewFromFloat(*f)
	return &v
}
