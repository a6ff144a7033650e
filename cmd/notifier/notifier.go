package notifier

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/database"
	"fibexecutor/src/executors"
	"fibexecutor/src/repository"
)

// Notifier drains the notification outbox to Discord, mirroring to Telegram
// when a bot token is configured.
type Notifier struct {
	Log *logrus.Entry
}

func (t *Notifier) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := t.Log
	if log == nil {
		log = logrus.WithField("cmd", "notifier")
	}
	config := executors.GetConfig()
	ntConfig := connectors.GetConfig()

	if ntConfig.DiscordWebhookURL == "" {
		return errors.New("DISCORD_WEBHOOK_URL is required")
	}
	if !database.GetConfig().EnableDB {
		return errors.New("the notifier reads the outbox and needs ENABLE_DB=true")
	}
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	var mirrors []executors.Notifier
	if ntConfig.TelegramToken != "" && ntConfig.TelegramChatID != 0 {
		tg, err := connectors.NewTelegramNotifier(ntConfig.TelegramToken, ntConfig.TelegramChatID, log)
		if err != nil {
			log.WithError(err).Warn("telegram disabled")
		} else {
			mirrors = append(mirrors, tg)
		}
	}

	loop := executors.NewNotificationLoop(
		repository.NewEventRepository().WithDB(database.MainDB),
		connectors.NewDiscordNotifier(ntConfig.DiscordWebhookURL, log),
		config,
		log,
		mirrors...,
	)
	loop.Run(ctx, config.NotifyPeriod)
	return nil
}
