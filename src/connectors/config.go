package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	NTHost            string        `envconfig:"NT_HOST" default:"127.0.0.1"`
	NTPort            int           `envconfig:"NT_PORT" default:"36973"`
	NTAccount         string        `envconfig:"NT_ACCOUNT" default:"Sim101"`
	HandshakePolls    int           `envconfig:"NT_HANDSHAKE_POLLS" default:"1000"`
	HandshakeInterval time.Duration `envconfig:"NT_HANDSHAKE_INTERVAL" default:"10ms"`
	ReconnectDelay    time.Duration `envconfig:"NT_RECONNECT_DELAY" default:"10s"`
	DialTimeout       time.Duration `envconfig:"NT_DIAL_TIMEOUT" default:"5s"`

	PriceSource    string        `envconfig:"PRICE_SOURCE" default:"ati"` // ati | websocket
	PriceFeedURL   string        `envconfig:"PRICE_FEED_URL" default:"ws://127.0.0.1:8765/prices"`
	ATIPollPeriod  time.Duration `envconfig:"ATI_POLL_PERIOD" default:"250ms"`
	FeedRetryDelay time.Duration `envconfig:"PRICE_FEED_RETRY_DELAY" default:"2s"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	TelegramToken     string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID    int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
