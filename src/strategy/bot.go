package strategy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/controller"
	"fibexecutor/src/metrics"
	"fibexecutor/src/model"
	"fibexecutor/src/risk"
	"fibexecutor/src/tp_sl"
)

const (
	StatePrecalculation = "PRECALCULATION"
	StateActive         = "ACTIVE"
	StateHalted         = "HALTED"
)

// ErrHalted is returned once a profit or loss threshold stopped the session.
var ErrHalted = errors.New("session halted by threshold")

type Options struct {
	SessionID string
	Backtest  bool
	// Client is required outside backtest mode.
	Client controller.OrderClient
	Sink   EventSink
	Log    *logrus.Entry
}

// Bot is the Fibonacci level state machine of one session. ProcessPrice must
// be called from a single goroutine; the readers are safe from any goroutine.
type Bot struct {
	cfg       SessionConfig
	sessionID string
	backtest  bool
	client    controller.OrderClient
	sink      *MultiSink
	log       *logrus.Entry

	mu    sync.RWMutex
	state string

	high, low      decimal.Decimal
	seen           bool
	warnedNoAnchor bool
	pointA, pointB decimal.Decimal

	levels       []Level
	insideWindow bool
	lastPrice    *decimal.Decimal

	pending []model.PendingOrder
	open    []model.OpenPosition
	closed  []model.ClosedPosition
	placed  []*controller.Order
	pnl     decimal.Decimal

	// events raised while the lock is held, published after release
	outbox []Event
	// orders to cancel once the lock is released
	toCancel []*controller.Order
}

func NewBot(cfg SessionConfig, opts Options) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !opts.Backtest && opts.Client == nil {
		return nil, errors.New("an order client is required outside backtest mode")
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	b := &Bot{
		cfg:       cfg,
		sessionID: sessionID,
		backtest:  opts.Backtest,
		client:    opts.Client,
		sink:      NewMultiSink(opts.Sink),
		log: log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"instrument": cfg.Instrument,
			"backtest":   opts.Backtest,
		}),
		state: StatePrecalculation,
	}

	if cfg.HasAnchors() {
		b.activate(*cfg.PointA, *cfg.PointB)
	}
	return b, nil
}

// Subscribe adds an event sink.
func (b *Bot) Subscribe(s EventSink) {
	b.sink.Add(s)
}

func (b *Bot) SessionID() string { return b.sessionID }

func (b *Bot) Config() SessionConfig { return b.cfg }

// ProcessPrice feeds one tick through the state machine.
func (b *Bot) ProcessPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error {
	b.mu.Lock()
	err := b.process(ctx, price, ts)
	cancels := b.drainCancels()
	events := b.drain()
	b.mu.Unlock()

	b.sendCancels(ctx, cancels)
	b.publish(ctx, events)
	return err
}

func (b *Bot) process(ctx context.Context, price decimal.Decimal, ts time.Time) error {
	switch b.state {
	case StateHalted:
		return ErrHalted
	case StatePrecalculation:
		if !b.precalculate(price, ts) {
			return nil
		}
	}

	was := b.insideWindow
	b.insideWindow = b.cfg.TradingWindows.Contains(ts)
	metrics.BoolGauge(metrics.TradingWindowActive, b.insideWindow)

	if was && !b.insideWindow {
		b.log.WithField("tick_time", ts).Warn("trading window ended, cancelling all orders")
		b.cancelAll()
	}
	if !was && b.insideWindow {
		b.log.WithField("tick_time", ts).Info("trading window started, generating pending orders for active levels")
		for i := range b.levels {
			if b.levels[i].Active {
				b.generatePending(ctx, b.levels[i], price, ts)
			}
		}
	}

	if b.lastPrice == nil {
		b.lastPrice = &price
		return nil
	}
	last := *b.lastPrice

	b.detectFills(last, price, ts)
	if b.detectExits(ctx, price, ts) {
		return ErrHalted
	}
	b.reactivate(ctx, price, ts)

	b.lastPrice = &price
	return nil
}

// precalculate tracks the session extrema inside the computation window and
// reports true once levels are computed.
func (b *Bot) precalculate(price decimal.Decimal, ts time.Time) bool {
	tod := risk.OfTime(ts)
	window := b.cfg.ComputationWindow

	if window.Contains(tod) {
		if !b.seen || price.GreaterThan(b.high) {
			b.high = price
		}
		if !b.seen || price.LessThan(b.low) {
			b.low = price
		}
		b.seen = true
		return false
	}
	if !window.Ended(tod) {
		return false
	}

	a, bb := b.high, b.low
	if b.cfg.PointA != nil {
		a = *b.cfg.PointA
	}
	if b.cfg.PointB != nil {
		bb = *b.cfg.PointB
	}
	if !b.seen && (b.cfg.PointA == nil || b.cfg.PointB == nil) {
		if !b.warnedNoAnchor {
			b.log.WithField("window", window.String()).Warn("no ticks inside the computation window, levels cannot be computed")
			b.warnedNoAnchor = true
		}
		return false
	}

	b.log.WithFields(logrus.Fields{
		"high": b.high.String(),
		"low":  b.low.String(),
	}).Info("computation window closed")
	b.activate(a, bb)
	return true
}

func (b *Bot) activate(pointA, pointB decimal.Decimal) {
	b.pointA, b.pointB = pointA, pointB
	b.levels = ComputeLevels(pointA, pointB, b.cfg.Ratios, b.cfg.Rounding)
	b.state = StateActive

	kick := &model.Kickoff{
		Instrument: b.cfg.Instrument,
		PointA:     pointA,
		PointB:     pointB,
		Levels:     make(map[string]string, len(b.levels)),
	}
	for _, l := range b.levels {
		kick.Levels[l.Key()] = l.Price.String()
	}
	b.emit(Event{Kind: model.EventKickoff, Kickoff: kick})

	b.log.WithFields(logrus.Fields{
		"point_a": pointA.String(),
		"point_b": pointB.String(),
		"levels":  len(b.levels),
	}).Info("levels computed, session active")
}

func (b *Bot) detectFills(last, price decimal.Decimal, ts time.Time) {
	lo, hi := decimal.Min(last, price), decimal.Max(last, price)

	kept := b.pending[:0]
	for _, p := range b.pending {
		if p.Price.LessThan(lo) || p.Price.GreaterThan(hi) {
			kept = append(kept, p)
			continue
		}

		b.setActive(p.FibRatio, false)
		b.log.WithFields(logrus.Fields{
			"fib_ratio": p.FibRatio,
			"level":     p.Price.String(),
			"tick_time": ts,
		}).Warn("level deactivated until price moves past the reactivation distance")

		if !b.insideWindow {
			b.log.WithField("fib_ratio", p.FibRatio).Debug("position entry void outside the trading window")
			kept = append(kept, p)
			continue
		}

		side := tp_sl.SideForAction(p.Side)
		tp, sl := tp_sl.Bracket(side, price, b.cfg.TakeProfit, b.cfg.StopLoss)
		pos := model.OpenPosition{
			Instrument: b.cfg.Instrument,
			FibRatio:   p.FibRatio,
			Side:       string(side),
			EntryPrice: price,
			EntryTime:  ts,
			TakeProfit: tp,
			StopLoss:   sl,
			SystemTime: time.Now(),
		}
		b.open = append(b.open, pos)
		b.log.WithFields(logrus.Fields{
			"side":        pos.Side,
			"fib_ratio":   pos.FibRatio,
			"entry":       price.String(),
			"take_profit": tp.String(),
			"stop_loss":   sl.String(),
		}).Info("position opened")
	}
	b.pending = kept
	metrics.OpenPositions.Set(float64(len(b.open)))
}

// detectExits closes positions that reached a bracket price and reports
// whether a threshold halted the session.
func (b *Bot) detectExits(ctx context.Context, price decimal.Decimal, ts time.Time) bool {
	remaining := make([]model.OpenPosition, 0, len(b.open))
	halted := false
	for i, pos := range b.open {
		if halted {
			remaining = append(remaining, b.open[i:]...)
			break
		}
		exit, ok := tp_sl.EvaluateExit(tp_sl.Side(pos.Side), price, pos.EntryPrice, pos.TakeProfit, pos.StopLoss)
		if !ok {
			remaining = append(remaining, pos)
			continue
		}

		closed := model.ClosedPosition{
			Position:   pos,
			ExitPrice:  price,
			ExitTime:   ts,
			Outcome:    exit.Outcome,
			Net:        exit.Net,
			SystemTime: time.Now(),
		}
		b.closed = append(b.closed, closed)
		b.pnl = b.pnl.Add(exit.Net)

		metrics.PositionsClosed.WithLabelValues(exit.Outcome).Inc()
		metrics.PnL.Set(b.pnl.InexactFloat64())
		b.emit(Event{Kind: model.EventPositionClose, Closed: &closed})
		b.log.WithFields(logrus.Fields{
			"outcome":   exit.Outcome,
			"net":       exit.Net.String(),
			"exit":      price.String(),
			"total_pnl": b.pnl.String(),
		}).Info("position closed")

		halted = b.thresholdReached()
	}
	b.open = remaining
	metrics.OpenPositions.Set(float64(len(b.open)))

	if halted {
		b.log.WithField("total_pnl", b.pnl.String()).Warn("threshold reached, stopping trading")
		b.cancelAll()
		b.state = StateHalted
		metrics.ThresholdHalts.Inc()
	}
	return halted
}

func (b *Bot) thresholdReached() bool {
	if t := b.cfg.ProfitThreshold; t != nil && b.pnl.GreaterThanOrEqual(*t) {
		return true
	}
	if t := b.cfg.LossThreshold; t != nil && b.pnl.LessThanOrEqual(*t) {
		return true
	}
	return false
}

func (b *Bot) reactivate(ctx context.Context, price decimal.Decimal, ts time.Time) {
	for i := range b.levels {
		l := &b.levels[i]
		if l.Active || price.Sub(l.Price).Abs().LessThan(b.cfg.ReactivationDistance) {
			continue
		}
		l.Active = true
		b.log.WithFields(logrus.Fields{
			"fib_ratio": l.Ratio,
			"level":     l.Price.String(),
			"price":     price.String(),
		}).Info("level reactivated")
		b.generatePending(ctx, *l, price, ts)
	}
}

// generatePending creates the pending order for a level: SELL when the level
// is above the price, BUY otherwise. Outside backtest mode the order is sent
// to the terminal first and skipped if that fails.
func (b *Bot) generatePending(ctx context.Context, l Level, price decimal.Decimal, ts time.Time) {
	if !b.insideWindow {
		b.log.WithField("fib_ratio", l.Ratio).Debug("skipping pending order outside the trading window")
		return
	}

	side := model.SideBuy
	if l.Price.GreaterThan(price) {
		side = model.SideSell
	}

	order := controller.NewOrder(b.cfg.Instrument, side, b.cfg.Template(), b.cfg.Quantity, l.Price.InexactFloat64())
	if b.backtest {
		b.log.WithFields(logrus.Fields{
			"side":  side,
			"price": l.Price.String(),
		}).Debug("backtest order not sent")
	} else if err := order.Place(ctx, b.client, b.cfg.Account, b.cfg.TimeInForce, false, b.log); err != nil {
		b.log.WithError(err).WithField("fib_ratio", l.Ratio).Error("failed to place order")
		return
	}
	b.placed = append(b.placed, order)

	tp, sl := tp_sl.Bracket(tp_sl.SideForAction(side), l.Price, b.cfg.TakeProfit, b.cfg.StopLoss)
	p := model.PendingOrder{
		ID:          uuid.NewString(),
		OrderID:     order.ID,
		Instrument:  b.cfg.Instrument,
		Side:        side,
		Price:       l.Price,
		FibRatio:    l.Ratio,
		TakeProfit:  tp,
		StopLoss:    sl,
		GeneratedAt: ts,
		SystemTime:  time.Now(),
	}
	b.pending = append(b.pending, p)

	metrics.PendingOrders.WithLabelValues(side).Inc()
	b.emit(Event{Kind: model.EventPendingOrder, Pending: &p})
}

// CancelAllOrders cancels every order placed by the session and clears the
// pending inventory. Calling it again with nothing placed is a no-op.
func (b *Bot) CancelAllOrders(ctx context.Context) {
	b.mu.Lock()
	b.cancelAll()
	cancels := b.drainCancels()
	b.mu.Unlock()

	b.sendCancels(ctx, cancels)
}

// cancelAll clears the inventory and queues the placed orders for
// cancellation. The terminal is only contacted after the lock is released.
func (b *Bot) cancelAll() {
	if !b.backtest {
		b.toCancel = append(b.toCancel, b.placed...)
	}
	if len(b.placed) > 0 || len(b.pending) > 0 {
		b.log.WithFields(logrus.Fields{
			"orders":  len(b.placed),
			"pending": len(b.pending),
		}).Warn("all active orders cancelled")
	}
	b.placed = nil
	b.pending = nil
}

func (b *Bot) drainCancels() []*controller.Order {
	orders := b.toCancel
	b.toCancel = nil
	return orders
}

func (b *Bot) sendCancels(ctx context.Context, orders []*controller.Order) {
	for _, o := range orders {
		if err := o.Cancel(ctx, b.client, b.cfg.Account); err != nil {
			b.log.WithError(err).WithField("order_id", o.ID).Error("failed to cancel order")
		}
	}
}

func (b *Bot) setActive(ratio float64, active bool) {
	for i := range b.levels {
		if b.levels[i].Ratio == ratio {
			b.levels[i].Active = active
		}
	}
}

func (b *Bot) emit(ev Event) {
	ev.SessionID = b.sessionID
	ev.Backtest = b.backtest
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.outbox = append(b.outbox, ev)
}

func (b *Bot) drain() []Event {
	events := b.outbox
	b.outbox = nil
	return events
}

func (b *Bot) publish(ctx context.Context, events []Event) {
	for _, ev := range events {
		b.sink.Publish(ctx, ev)
	}
}

// Flush publishes events raised outside ProcessPrice, such as the kickoff of
// a session that starts with both anchors configured.
func (b *Bot) Flush(ctx context.Context) {
	b.mu.Lock()
	events := b.drain()
	b.mu.Unlock()
	b.publish(ctx, events)
}

// Status is a point-in-time view of the bot.
type Status struct {
	SessionID    string               `json:"session_id"`
	Instrument   string               `json:"instrument"`
	State        string               `json:"state"`
	Backtest     bool                 `json:"backtest"`
	InsideWindow bool                 `json:"inside_window"`
	LastPrice    *decimal.Decimal     `json:"last_price,omitempty"`
	PointA       decimal.Decimal      `json:"point_a"`
	PointB       decimal.Decimal      `json:"point_b"`
	PnL          decimal.Decimal      `json:"pnl"`
	Levels       []Level              `json:"levels"`
	Pending      []model.PendingOrder `json:"pending"`
	Open         []model.OpenPosition `json:"open"`
	Closed       int                  `json:"closed"`
}

func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Status{
		SessionID:    b.sessionID,
		Instrument:   b.cfg.Instrument,
		State:        b.state,
		Backtest:     b.backtest,
		InsideWindow: b.insideWindow,
		PointA:       b.pointA,
		PointB:       b.pointB,
		PnL:          b.pnl,
		Levels:       append([]Level(nil), b.levels...),
		Pending:      append([]model.PendingOrder(nil), b.pending...),
		Open:         append([]model.OpenPosition(nil), b.open...),
		Closed:       len(b.closed),
	}
	if b.lastPrice != nil {
		p := *b.lastPrice
		s.LastPrice = &p
	}
	return s
}

func (b *Bot) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Bot) PnL() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pnl
}

// ClosedPositions returns a copy of the ledger.
func (b *Bot) ClosedPositions() []model.ClosedPosition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.ClosedPosition(nil), b.closed...)
}

// Levels returns a copy of the levels in ratio order.
func (b *Bot) Levels() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Level(nil), b.levels...)
}

// Anchors returns the points the levels were computed from.
func (b *Bot) Anchors() (pointA, pointB decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pointA, b.pointB
}
