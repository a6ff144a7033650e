package backtest

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// PersistLedger stores levels and closed positions when the database is enabled.
	PersistLedger bool `envconfig:"BACKTEST_PERSIST_LEDGER" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
