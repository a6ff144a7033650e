package session

import (
	"flag"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"fibexecutor/src/strategy"
)

func contextWith(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func f64(v float64) *float64 { return &v }

func TestApply_NoOverridesKeepsDefaults(t *testing.T) {
	def := strategy.DefaultSessionConfig()
	cfg, err := Overrides{}.Apply(def)
	require.NoError(t, err)
	assert.Equal(t, def.Instrument, cfg.Instrument)
	assert.True(t, def.TakeProfit.Equal(cfg.TakeProfit))
	assert.False(t, cfg.HasAnchors())
}

func TestApply_Overrides(t *testing.T) {
	inst := "ES 12-25"
	qty := 3
	rounding := "integer"
	o := Overrides{
		Instrument:      &inst,
		Quantity:        &qty,
		Rounding:        &rounding,
		PointA:          f64(110),
		PointB:          f64(100),
		TakeProfit:      f64(15),
		StopLoss:        f64(12.5),
		ProfitThreshold: f64(50),
		LossThreshold:   f64(40),
	}

	cfg, err := o.Apply(strategy.DefaultSessionConfig())
	require.NoError(t, err)

	assert.Equal(t, "ES 12-25", cfg.Instrument)
	assert.Equal(t, 3, cfg.Quantity)
	assert.Equal(t, strategy.RoundingInteger, cfg.Rounding)
	assert.True(t, cfg.HasAnchors())
	assert.True(t, cfg.PointA.Equal(decimal.NewFromInt(110)))
	assert.Equal(t, "15_12.5", cfg.Template())
	assert.True(t, cfg.ProfitThreshold.Equal(decimal.NewFromInt(50)))
	assert.True(t, cfg.LossThreshold.Equal(decimal.NewFromInt(-40)))
}

func TestApply_Invalid(t *testing.T) {
	bad := "HALF"
	_, err := Overrides{Rounding: &bad}.Apply(strategy.DefaultSessionConfig())
	require.Error(t, err)

	_, err = Overrides{TakeProfit: f64(0)}.Apply(strategy.DefaultSessionConfig())
	require.ErrorContains(t, err, "take profit must be positive")
}

func TestFromContext_OnlySetFlags(t *testing.T) {
	c := contextWith(t, "--point-a", "21000.5", "--quantity", "2", "--account", "Sim202")
	o := FromContext(c)

	require.NotNil(t, o.PointA)
	assert.Equal(t, 21000.5, *o.PointA)
	require.NotNil(t, o.Quantity)
	assert.Equal(t, 2, *o.Quantity)
	require.NotNil(t, o.Account)
	assert.Equal(t, "Sim202", *o.Account)

	assert.Nil(t, o.PointB)
	assert.Nil(t, o.Instrument)
	assert.Nil(t, o.LossThreshold)
}

func TestLoad_WithoutConfigFile(t *testing.T) {
	c := contextWith(t, "--instrument", "NQ 03-26")
	cfg, err := Load(c)
	require.NoError(t, err)
	assert.Equal(t, "NQ 03-26", cfg.Instrument)
}
