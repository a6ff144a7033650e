package executors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/controller"
	"fibexecutor/src/model"
	"fibexecutor/src/strategy"
)

var ErrSourceStopped = errors.New("price source stopped")

type tickProcessor interface {
	ProcessPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error
	CancelAllOrders(ctx context.Context)
}

type terminal interface {
	FlatInstrument(ctx context.Context, account, instrument string) error
	Close() error
}

type backgroundTask interface {
	Run(ctx context.Context, period time.Duration)
}

type exceptionRecorder interface {
	Create(ctx context.Context, ex *model.Exception) error
}

// LoopDeps is everything the live loop owns for the lifetime of a session.
type LoopDeps struct {
	Bot        tickProcessor
	Source     connectors.PriceSource
	Terminal   terminal
	Account    string
	Instrument string

	Reconciler      backgroundTask
	ReconcilePeriod time.Duration
	Exceptions      exceptionRecorder

	StartupDelay    time.Duration
	TeardownTimeout time.Duration
	Log             *logrus.Entry
}

// StartLoop feeds ticks to the bot one at a time until the session halts,
// the source stops or ctx is cancelled. On every exit path it cancels the
// bot's orders, flattens the instrument and releases the source and the
// terminal connection.
func StartLoop(ctx context.Context, deps LoopDeps) (err error) {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "live_loop")

	defer teardown(deps, log)

	if deps.StartupDelay > 0 {
		log.WithField("delay", deps.StartupDelay).Info("starting bot")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(deps.StartupDelay):
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if deps.Reconciler != nil {
		go deps.Reconciler.Run(loopCtx, deps.ReconcilePeriod)
	}

	ticks, errs := deps.Source.Ticks(loopCtx)
	log.Info("bot is now running")

	for {
		select {
		case <-ctx.Done():
			log.Info("loop stopped")
			return nil

		case ferr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.WithError(ferr).Warn("price source error")

		case tick, ok := <-ticks:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("price source closed")
				return ErrSourceStopped
			}
			perr := processTick(loopCtx, deps.Bot, tick)
			switch {
			case perr == nil:
			case errors.Is(perr, strategy.ErrHalted):
				log.Warn("session halted, stopping the loop")
				return nil
			default:
				controller.Capture(ctx, deps.Exceptions, "fibexecutor", "executors", "StartLoop", "error", perr,
					map[string]interface{}{"price": tick.Price.String(), "tick_time": tick.Timestamp})
				log.WithError(perr).Error("error in main price streaming loop, cancelling all orders")
				return perr
			}
		}
	}
}

// processTick turns a panic in the bot into an error.
func processTick(ctx context.Context, bot tickProcessor, tick model.Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing tick: %v\n%s", r, debug.Stack())
		}
	}()
	return bot.ProcessPrice(ctx, tick.Price, tick.Timestamp)
}

func teardown(deps LoopDeps, log *logrus.Entry) {
	timeout := deps.TeardownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if deps.Bot != nil {
		deps.Bot.CancelAllOrders(ctx)
	}
	if deps.Terminal != nil {
		if err := deps.Terminal.FlatInstrument(ctx, deps.Account, deps.Instrument); err != nil {
			log.WithError(err).Error("failed to flatten instrument")
		}
	}
	if deps.Source != nil {
		if err := deps.Source.Close(); err != nil {
			log.WithError(err).Warn("failed to close price source")
		}
	}
	if deps.Terminal != nil {
		if err := deps.Terminal.Close(); err != nil {
			log.WithError(err).Warn("failed to close terminal connection")
		}
	}
	log.Info("subscriber closed")
}
