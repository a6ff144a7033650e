package backtest

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"fibexecutor/src/database"
	"fibexecutor/src/reporting"
	"fibexecutor/src/repository"
	"fibexecutor/src/strategy"
)

// Backtest replays a tick file through the strategy without a terminal.
type Backtest struct {
	Session  strategy.SessionConfig
	FilePath string
	Out      io.Writer
	Log      *logrus.Entry
}

func (t *Backtest) Start(ctx context.Context) error {
	if t.FilePath == "" {
		return errors.New("--filepath is required in backtest mode")
	}
	if t.Out == nil {
		t.Out = os.Stdout
	}
	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "backtest")
	}

	bot, err := strategy.NewBot(t.Session, strategy.Options{
		Backtest: true,
		Sink:     strategy.NewLogSink(log),
		Log:      log,
	})
	if err != nil {
		return err
	}

	config := GetConfig()
	if config.PersistLedger && database.GetConfig().EnableDB {
		if err := database.InitMainDB(); err != nil {
			return err
		}
		bot.Subscribe(strategy.NewLedgerSink(
			repository.NewLevelOrderRepository().WithDB(database.MainDB),
			repository.NewPositionRepository().WithDB(database.MainDB),
			bot,
			t.Session.ReactivationDistance,
			log,
		))
		log.WithField("session_id", bot.SessionID()).Info("ledger persistence enabled")
	}

	if err := reporting.PrintConfiguration(t.Out, t.Session, true, bot.Levels()); err != nil {
		return err
	}

	if _, err := strategy.RunBacktest(ctx, bot, t.FilePath, log); err != nil {
		return err
	}
	bot.Flush(ctx)

	closed := bot.ClosedPositions()
	if err := reporting.PrintCloseTable(t.Out, closed); err != nil {
		return err
	}
	return reporting.PrintSummary(t.Out, reporting.Summarize(closed))
}
