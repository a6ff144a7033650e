package production

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SessionID resumes a session; a new one is generated when empty.
	SessionID string `envconfig:"SESSION_ID"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
