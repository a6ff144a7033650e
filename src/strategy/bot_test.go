package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibexecutor/src/connectors"
	"fibexecutor/src/model"
	"fibexecutor/src/risk"
)

type fakeClient struct {
	frames     []connectors.CommandFrame
	cancels    []string
	commandErr error
}

func (f *fakeClient) LastPrice(string) float64 { return 0 }

func (f *fakeClient) Command(frame connectors.CommandFrame) error {
	if f.commandErr != nil {
		return f.commandErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeClient) CancelOrder(_ context.Context, _, _, orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return nil
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Publish(_ context.Context, ev Event) {
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds(kind string) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func nullLog() *logrus.Entry {
	l, _ := logrustest.NewNullLogger()
	return logrus.NewEntry(l)
}

func at(h, m, s int) time.Time {
	return time.Date(2024, 9, 12, h, m, s, 0, time.UTC)
}

// testConfig has a single level at 102 and a 09:00-16:00 trading window.
func testConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	a, b := d("110"), d("100")
	cfg.PointA, cfg.PointB = &a, &b
	cfg.Ratios = []float64{0.2}
	cfg.TradingWindows = risk.Windows{{Start: risk.Clock(9, 0), End: risk.Clock(16, 0)}}
	cfg.TakeProfit = d("15")
	cfg.StopLoss = d("15")
	cfg.ReactivationDistance = d("10")
	return cfg
}

func newBacktestBot(t *testing.T, cfg SessionConfig) (*Bot, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	bot, err := NewBot(cfg, Options{SessionID: "s1", Backtest: true, Sink: sink, Log: nullLog()})
	require.NoError(t, err)
	return bot, sink
}

func feed(t *testing.T, bot *Bot, start time.Time, prices ...string) {
	t.Helper()
	for i, p := range prices {
		require.NoError(t, bot.ProcessPrice(context.Background(), d(p), start.Add(time.Duration(i)*time.Second)))
	}
}

func TestNewBot_StartsActiveWithAnchors(t *testing.T) {
	bot, _ := newBacktestBot(t, testConfig())
	assert.Equal(t, StateActive, bot.State())

	levels := bot.Levels()
	require.Len(t, levels, 1)
	assert.True(t, levels[0].Price.Equal(d("102")))
	assert.False(t, levels[0].Active)
}

func TestNewBot_RequiresClientOutsideBacktest(t *testing.T) {
	_, err := NewBot(testConfig(), Options{Log: nullLog()})
	require.Error(t, err)
}

func TestProcessPrice_ReactivationGeneratesPendingOrder(t *testing.T) {
	bot, sink := newBacktestBot(t, testConfig())

	// first tick only records the price
	feed(t, bot, at(10, 0, 0), "112")
	assert.Empty(t, bot.Status().Pending)

	feed(t, bot, at(10, 0, 1), "112")
	st := bot.Status()
	require.Len(t, st.Pending, 1)
	p := st.Pending[0]
	assert.Equal(t, model.SideBuy, p.Side)
	assert.True(t, p.Price.Equal(d("102")))
	assert.True(t, p.TakeProfit.Equal(d("117")))
	assert.True(t, p.StopLoss.Equal(d("87")))
	assert.Empty(t, p.OrderID)
	assert.True(t, st.Levels[0].Active)

	require.Len(t, sink.kinds(model.EventPendingOrder), 1)
	require.Len(t, sink.kinds(model.EventKickoff), 1)
}

func TestProcessPrice_ReactivationIsInclusive(t *testing.T) {
	bot, _ := newBacktestBot(t, testConfig())
	feed(t, bot, at(10, 0, 0), "92", "92")
	require.Len(t, bot.Status().Pending, 1)
	assert.Equal(t, model.SideSell, bot.Status().Pending[0].Side)
}

func TestProcessPrice_NoReactivationInsideDistance(t *testing.T) {
	bot, _ := newBacktestBot(t, testConfig())
	feed(t, bot, at(10, 0, 0), "111.75", "92.25")
	assert.Empty(t, bot.Status().Pending)
	assert.False(t, bot.Levels()[0].Active)
}

func TestProcessPrice_FillOpensAtTickPrice(t *testing.T) {
	tests := []struct {
		name     string
		prices   []string
		wantSide string
		entry    string
		tp, sl   string
	}{
		{name: "sell level crossed upward", prices: []string{"92", "92", "105"}, wantSide: model.PositionShort, entry: "105", tp: "90", sl: "120"},
		{name: "buy level crossed downward", prices: []string{"112", "112", "100"}, wantSide: model.PositionLong, entry: "100", tp: "115", sl: "85"},
		{name: "touch exactly at level", prices: []string{"112", "112", "102"}, wantSide: model.PositionLong, entry: "102", tp: "117", sl: "87"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, _ := newBacktestBot(t, testConfig())
			feed(t, bot, at(10, 0, 0), tt.prices...)

			st := bot.Status()
			assert.Empty(t, st.Pending)
			assert.False(t, st.Levels[0].Active)
			require.Len(t, st.Open, 1)
			pos := st.Open[0]
			assert.Equal(t, tt.wantSide, pos.Side)
			assert.True(t, pos.EntryPrice.Equal(d(tt.entry)), "entry %s", pos.EntryPrice)
			assert.True(t, pos.TakeProfit.Equal(d(tt.tp)), "tp %s", pos.TakeProfit)
			assert.True(t, pos.StopLoss.Equal(d(tt.sl)), "sl %s", pos.StopLoss)
		})
	}
}

func TestProcessPrice_Exits(t *testing.T) {
	tests := []struct {
		name    string
		exit    string
		outcome string
		net     string
	}{
		{name: "take profit", exit: "115", outcome: model.OutcomeProfit, net: "15"},
		{name: "past take profit", exit: "118", outcome: model.OutcomeProfit, net: "15"},
		{name: "stop loss", exit: "85", outcome: model.OutcomeLoss, net: "-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, sink := newBacktestBot(t, testConfig())
			// LONG at 100 with tp 115 and sl 85
			feed(t, bot, at(10, 0, 0), "112", "112", "100", tt.exit)

			closed := bot.ClosedPositions()
			require.Len(t, closed, 1)
			assert.Equal(t, tt.outcome, closed[0].Outcome)
			assert.True(t, closed[0].Net.Equal(d(tt.net)), "net %s", closed[0].Net)
			assert.True(t, closed[0].ExitPrice.Equal(d(tt.exit)))
			assert.True(t, bot.PnL().Equal(d(tt.net)))
			assert.Empty(t, bot.Status().Open)

			events := sink.kinds(model.EventPositionClose)
			require.Len(t, events, 1)
			assert.Equal(t, tt.outcome, events[0].Closed.Outcome)
			assert.True(t, events[0].Backtest)
		})
	}
}

func TestProcessPrice_ProfitThresholdHalts(t *testing.T) {
	cfg := testConfig()
	cfg.TakeProfit = d("26")
	cfg.StopLoss = d("26")
	threshold := d("50")
	cfg.ProfitThreshold = &threshold

	client := &fakeClient{}
	sink := &recordingSink{}
	bot, err := NewBot(cfg, Options{SessionID: "s1", Client: client, Sink: sink, Log: nullLog()})
	require.NoError(t, err)

	ctx := context.Background()
	prices := []string{"112", "112", "100", "126", "100"}
	for i, p := range prices {
		require.NoError(t, bot.ProcessPrice(ctx, d(p), at(10, 0, i)))
	}
	pendingBefore := len(sink.kinds(model.EventPendingOrder))
	assert.Equal(t, 2, pendingBefore)

	err = bot.ProcessPrice(ctx, d("126"), at(10, 0, 10))
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, StateHalted, bot.State())
	assert.True(t, bot.PnL().Equal(d("52")))
	assert.Empty(t, bot.Status().Pending)
	assert.Len(t, client.cancels, 2)

	err = bot.ProcessPrice(ctx, d("80"), at(10, 0, 11))
	require.True(t, errors.Is(err, ErrHalted))
	assert.Len(t, sink.kinds(model.EventPendingOrder), pendingBefore)
	assert.Len(t, bot.ClosedPositions(), 2)
}

func TestProcessPrice_LossThresholdHalts(t *testing.T) {
	cfg := testConfig()
	cfg.SetLossThreshold(decimalPtr(floatPtr(10)))

	bot, _ := newBacktestBot(t, cfg)
	ctx := context.Background()
	for i, p := range []string{"112", "112", "100"} {
		require.NoError(t, bot.ProcessPrice(ctx, d(p), at(10, 0, i)))
	}
	err := bot.ProcessPrice(ctx, d("85"), at(10, 0, 3))
	require.ErrorIs(t, err, ErrHalted)
	assert.True(t, bot.PnL().Equal(d("-15")))
}

func TestProcessPrice_TradingWindowInclusive(t *testing.T) {
	cfg := testConfig()
	cfg.TradingWindows = risk.Windows{{Start: risk.Clock(10, 0), End: risk.Clock(10, 30)}}
	bot, _ := newBacktestBot(t, cfg)
	ctx := context.Background()

	require.NoError(t, bot.ProcessPrice(ctx, d("112"), at(9, 59, 59)))
	assert.False(t, bot.Status().InsideWindow)

	require.NoError(t, bot.ProcessPrice(ctx, d("112"), at(10, 0, 0)))
	assert.True(t, bot.Status().InsideWindow)

	require.NoError(t, bot.ProcessPrice(ctx, d("112"), at(10, 30, 0)))
	assert.True(t, bot.Status().InsideWindow)

	require.NoError(t, bot.ProcessPrice(ctx, d("112"), at(10, 30, 0).Add(time.Millisecond)))
	assert.False(t, bot.Status().InsideWindow)
}

func TestProcessPrice_OutsideWindowNoPendingOrders(t *testing.T) {
	cfg := testConfig()
	cfg.TradingWindows = risk.Windows{{Start: risk.Clock(10, 0), End: risk.Clock(10, 30)}}
	bot, _ := newBacktestBot(t, cfg)

	feed(t, bot, at(9, 0, 0), "112", "112")
	assert.True(t, bot.Levels()[0].Active)
	assert.Empty(t, bot.Status().Pending)

	// entering the window arms every active level
	feed(t, bot, at(10, 0, 0), "112")
	require.Len(t, bot.Status().Pending, 1)

	// leaving it clears them
	feed(t, bot, at(10, 31, 0), "112")
	assert.Empty(t, bot.Status().Pending)
}

func TestCancelAllOrders_Idempotent(t *testing.T) {
	client := &fakeClient{}
	bot, err := NewBot(testConfig(), Options{Client: client, Log: nullLog()})
	require.NoError(t, err)

	ctx := context.Background()
	feed(t, bot, at(10, 0, 0), "112", "112")
	require.Len(t, bot.Status().Pending, 1)
	require.Len(t, client.frames, 1)

	bot.CancelAllOrders(ctx)
	assert.Empty(t, bot.Status().Pending)
	assert.Len(t, client.cancels, 1)

	bot.CancelAllOrders(ctx)
	assert.Empty(t, bot.Status().Pending)
	assert.Len(t, client.cancels, 1)
}

// slowCancelClient holds every cancel until release is closed.
type slowCancelClient struct {
	fakeClient
	entered chan struct{}
	release chan struct{}
}

func (c *slowCancelClient) CancelOrder(ctx context.Context, account, instrument, orderID string) error {
	c.entered <- struct{}{}
	<-c.release
	return c.fakeClient.CancelOrder(ctx, account, instrument, orderID)
}

func TestCancelAllOrders_ReadersDoNotWaitForTerminal(t *testing.T) {
	client := &slowCancelClient{entered: make(chan struct{}, 1), release: make(chan struct{})}
	bot, err := NewBot(testConfig(), Options{Client: client, Log: nullLog()})
	require.NoError(t, err)

	feed(t, bot, at(10, 0, 0), "112", "112")
	require.Len(t, bot.Status().Pending, 1)

	done := make(chan struct{})
	go func() {
		bot.CancelAllOrders(context.Background())
		close(done)
	}()

	select {
	case <-client.entered:
	case <-time.After(time.Second):
		t.Fatal("cancel was not sent")
	}

	status := make(chan Status, 1)
	go func() { status <- bot.Status() }()
	select {
	case st := <-status:
		assert.Empty(t, st.Pending)
	case <-time.After(time.Second):
		t.Fatal("Status blocked while orders were being cancelled")
	}

	close(client.release)
	<-done
	assert.Len(t, client.cancels, 1)
}

func TestProcessPrice_LiveOrderFrame(t *testing.T) {
	client := &fakeClient{}
	bot, err := NewBot(testConfig(), Options{Client: client, Log: nullLog()})
	require.NoError(t, err)

	feed(t, bot, at(10, 0, 0), "112", "112")
	require.Len(t, client.frames, 1)
	frame := client.frames[0]
	assert.Equal(t, connectors.CommandPlace, frame.Command)
	assert.Equal(t, connectors.ActionBuy, frame.Action)
	assert.Equal(t, "Sim101", frame.Account)
	assert.Equal(t, "15_15", frame.Template)
	assert.Equal(t, 102.0, frame.LimitPrice)

	pending := bot.Status().Pending
	require.Len(t, pending, 1)
	assert.Equal(t, frame.OrderID, pending[0].OrderID)
}

func TestProcessPrice_PlaceFailureSkipsPendingOrder(t *testing.T) {
	client := &fakeClient{commandErr: connectors.ErrNotConnected}
	bot, err := NewBot(testConfig(), Options{Client: client, Log: nullLog()})
	require.NoError(t, err)

	feed(t, bot, at(10, 0, 0), "112", "112")
	assert.Empty(t, bot.Status().Pending)
	assert.True(t, bot.Levels()[0].Active)
}

func TestProcessPrice_BacktestSendsNothing(t *testing.T) {
	client := &fakeClient{}
	bot, err := NewBot(testConfig(), Options{Backtest: true, Client: client, Log: nullLog()})
	require.NoError(t, err)

	feed(t, bot, at(10, 0, 0), "112", "112", "100", "115")
	bot.CancelAllOrders(context.Background())

	assert.Empty(t, client.frames)
	assert.Empty(t, client.cancels)
	assert.Len(t, bot.ClosedPositions(), 1)
}

func TestPrecalculation(t *testing.T) {
	cfg := testConfig()
	cfg.PointA, cfg.PointB = nil, nil
	cfg.Ratios = []float64{0, 1}
	cfg.ComputationWindow = risk.DefaultComputationWindow()
	cfg.TradingWindows = risk.Windows{{Start: risk.Clock(15, 5), End: risk.Clock(15, 57)}}

	bot, sink := newBacktestBot(t, cfg)
	assert.Equal(t, StatePrecalculation, bot.State())

	feed(t, bot, at(14, 0, 0), "50")
	feed(t, bot, at(14, 30, 0), "100")
	feed(t, bot, at(14, 40, 0), "110")
	feed(t, bot, at(14, 50, 0), "95")
	feed(t, bot, at(15, 0, 0), "105")
	assert.Equal(t, StatePrecalculation, bot.State())
	assert.Empty(t, sink.kinds(model.EventKickoff))

	feed(t, bot, at(15, 0, 1), "104")
	assert.Equal(t, StateActive, bot.State())

	a, b := bot.Anchors()
	assert.True(t, a.Equal(d("110")), "point A %s", a)
	assert.True(t, b.Equal(d("95")), "point B %s", b)

	kick := sink.kinds(model.EventKickoff)
	require.Len(t, kick, 1)
	assert.Equal(t, "95", kick[0].Kickoff.Levels["0"])
	assert.Equal(t, "110", kick[0].Kickoff.Levels["1"])
}

func TestPrecalculation_PartialOverride(t *testing.T) {
	cfg := testConfig()
	a := d("120")
	cfg.PointA, cfg.PointB = &a, nil
	cfg.ComputationWindow = risk.Window{Start: risk.Clock(9, 0), End: risk.Clock(9, 30)}
	bot, _ := newBacktestBot(t, cfg)

	feed(t, bot, at(9, 10, 0), "105", "98")
	feed(t, bot, at(9, 31, 0), "100")

	pa, pb := bot.Anchors()
	assert.True(t, pa.Equal(d("120")))
	assert.True(t, pb.Equal(d("98")))
}

func TestPrecalculation_NoTicksInWindow(t *testing.T) {
	cfg := testConfig()
	cfg.PointA, cfg.PointB = nil, nil
	cfg.ComputationWindow = risk.Window{Start: risk.Clock(9, 0), End: risk.Clock(9, 30)}
	bot, _ := newBacktestBot(t, cfg)

	feed(t, bot, at(10, 0, 0), "100", "101", "102")
	assert.Equal(t, StatePrecalculation, bot.State())
	assert.Empty(t, bot.Levels())
}

func TestStatus_IsCopy(t *testing.T) {
	bot, _ := newBacktestBot(t, testConfig())
	feed(t, bot, at(10, 0, 0), "112", "112")

	st := bot.Status()
	st.Levels[0].Active = false
	st.Pending[0].Price = decimal.Zero
	assert.True(t, bot.Levels()[0].Active)
	assert.True(t, bot.Status().Pending[0].Price.Equal(d("102")))
	require.NotNil(t, st.LastPrice)
	assert.True(t, st.LastPrice.Equal(d("112")))
}

func floatPtr(f float64) *float64 { return &f }
