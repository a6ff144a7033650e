package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartupDelay    time.Duration `envconfig:"STARTUP_DELAY" default:"10s"`
	TeardownTimeout time.Duration `envconfig:"TEARDOWN_TIMEOUT" default:"15s"`

	NotificationsEnabled bool          `envconfig:"NOTIFICATIONS_ENABLED" default:"true"`
	NotifyPeriod         time.Duration `envconfig:"NOTIFY_PERIOD" default:"1s"`
	NotifyBatch          int           `envconfig:"NOTIFY_BATCH" default:"10"`
	NotifyPause          time.Duration `envconfig:"NOTIFY_PAUSE" default:"30ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
