package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"fibexecutor/cmd/backtest"
	"fibexecutor/cmd/notifier"
	"fibexecutor/cmd/production"
	"fibexecutor/cmd/session"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "fibexecutor"
	app.Usage = "Fibonacci level executor for the NinjaTrader ATI"
	app.Version = Version
	app.Before = before

	app.Commands = []cli.Command{
		backtestCMD,
		productionCMD,
		notifierCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backtestCMD = cli.Command{
		Name:      "backtest",
		Usage:     "replay a tick file through the strategy",
		Action:    backtestAction,
		ArgsUsage: "",
		Flags: append([]cli.Flag{
			cli.StringFlag{Name: "filepath, f", Usage: "tick file, one \"timestamp;last;...\" per line"},
		}, session.Flags...),
		Description: `Run the strategy over historical ticks without sending orders`,
	}
	productionCMD = cli.Command{
		Name:        "production",
		Usage:       "trade live against the terminal",
		Action:      productionAction,
		ArgsUsage:   "",
		Flags:       session.Flags,
		Description: `Run the strategy live through the ATI connection`,
	}
	notifierCMD = cli.Command{
		Name:        "notifier",
		Usage:       "deliver queued notifications",
		Action:      notifierAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Drain the notification outbox to Discord and Telegram`,
	}
)

// before loads .env when present and configures the logger.
func before(_ *cli.Context) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env")
	}
	SetupLogger()
	return nil
}

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func backtestAction(c *cli.Context) error {

	logrus.Info("Starting backtest CMD")
	cfg, err := session.Load(c)
	if err != nil {
		logrus.WithError(err).Error("Invalid session configuration")
		return err
	}

	bt := &backtest.Backtest{
		Session:  cfg,
		FilePath: c.String("filepath"),
		Out:      os.Stdout,
		Log:      logrus.WithField("cmd", "backtest"),
	}
	if err := bt.Start(context.Background()); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func productionAction(c *cli.Context) error {

	logrus.Info("Starting production CMD")
	cfg, err := session.Load(c)
	if err != nil {
		logrus.WithError(err).Error("Invalid session configuration")
		return err
	}

	prod := &production.Production{
		Session: cfg,
		Log:     logrus.WithField("cmd", "production"),
	}
	if err := prod.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func notifierAction(_ *cli.Context) error {

	logrus.Info("Starting notifier CMD")

	n := &notifier.Notifier{Log: logrus.WithField("cmd", "notifier")}
	if err := n.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
