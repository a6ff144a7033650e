package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/controller"
	"fibexecutor/src/database"
	"fibexecutor/src/executors"
	"fibexecutor/src/handler"
	"fibexecutor/src/model"
	"fibexecutor/src/reporting"
	"fibexecutor/src/repository"
	"fibexecutor/src/server"
	"fibexecutor/src/strategy"
)

type positionLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.ClosedPositionRecord, error)
}

// Production trades the session live against the terminal.
type Production struct {
	Session strategy.SessionConfig
	Log     *logrus.Entry
}

func (t *Production) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "production")
	}
	config := GetConfig()
	ntConfig := connectors.GetConfig()
	loopConfig := executors.GetConfig()

	client, err := connectTerminal(ntConfig, log)
	if err != nil {
		return err
	}

	source, err := newPriceSource(ntConfig, client, t.Session.Instrument, log)
	if err != nil {
		_ = client.Close()
		return err
	}

	hub := handler.NewEventHub()
	bot, err := strategy.NewBot(t.Session, strategy.Options{
		SessionID: config.SessionID,
		Client:    client,
		Sink:      strategy.NewMultiSink(strategy.NewLogSink(log), hub),
		Log:       log,
	})
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return err
	}
	log = log.WithField("session_id", bot.SessionID())

	deps := executors.LoopDeps{
		Bot:             bot,
		Source:          source,
		Terminal:        client,
		Account:         t.Session.Account,
		Instrument:      t.Session.Instrument,
		StartupDelay:    loopConfig.StartupDelay,
		TeardownTimeout: loopConfig.TeardownTimeout,
		Log:             log,
	}

	// stays a nil interface without a database
	var positions positionLister
	if database.GetConfig().EnableDB {
		if err := database.InitMainDB(); err != nil {
			logrus.WithError(err).Error("Failed to connect to main database")
			_ = source.Close()
			_ = client.Close()
			return err
		}
		levelRepo := repository.NewLevelOrderRepository().WithDB(database.MainDB)
		positionRepo := repository.NewPositionRepository().WithDB(database.MainDB)
		exceptionRepo := repository.NewExceptionRepository().WithDB(database.MainDB)
		eventRepo := repository.NewEventRepository().WithDB(database.MainDB)

		bot.Subscribe(strategy.NewLedgerSink(levelRepo, positionRepo, bot, t.Session.ReactivationDistance, log))
		bot.Subscribe(strategy.NewOutboxSink(eventRepo, loopConfig.NotificationsEnabled, log))

		deps.Exceptions = exceptionRepo
		deps.Reconciler = controller.NewReconciler(bot.SessionID(), client, levelRepo, exceptionRepo, log)
		deps.ReconcilePeriod = controller.GetConfig().ReconcilePeriod
		positions = positionRepo
	}

	if err := reporting.PrintConfiguration(os.Stdout, t.Session, false, bot.Levels()); err != nil {
		log.WithError(err).Warn("failed to print configuration")
	}

	serverConfig := server.GetConfig()
	if serverConfig.Enabled {
		router := server.NewRouter(server.BotRoutes(bot, positions, hub))
		go func() {
			if err := server.Run(ctx, serverConfig.Port, router); err != nil {
				log.WithError(err).Error("status server stopped")
			}
		}()
	}

	err = executors.StartLoop(ctx, deps)
	bot.Flush(context.Background())

	closed := bot.ClosedPositions()
	if perr := reporting.PrintCloseTable(os.Stdout, closed); perr != nil {
		log.WithError(perr).Warn("failed to print closed positions")
	}
	_ = reporting.PrintSummary(os.Stdout, reporting.Summarize(closed))

	if errors.Is(err, executors.ErrSourceStopped) {
		log.Error("price source stopped, session ended")
	}
	return err
}

// connectTerminal releases the client, and with it the reconnect timer armed
// by the failed attempt, when the first connection fails.
func connectTerminal(cfg connectors.Config, log *logrus.Entry) (*connectors.NTClient, error) {
	client := connectors.NewNTClient(cfg, log)
	if err := client.Connect(cfg.NTHost, cfg.NTPort); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to terminal: %w", err)
	}
	return client, nil
}

func newPriceSource(cfg connectors.Config, client *connectors.NTClient, instrument string, log *logrus.Entry) (connectors.PriceSource, error) {
	switch cfg.PriceSource {
	case connectors.PriceSourceATI, "":
		return connectors.NewATIFeed(client, instrument, cfg.ATIPollPeriod, log), nil
	case connectors.PriceSourceWebsocket:
		return connectors.NewWebsocketFeed(cfg.PriceFeedURL, cfg.FeedRetryDelay, log), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", cfg.PriceSource)
	}
}
