package notify

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WebhookURL     string        `envconfig:"ESCALATION_WEBHOOK_URL"`
	WebhookTimeout time.Duration `envconfig:"ESCALATION_WEBHOOK_TIMEOUT" default:"5s"`
	RetryCount     int           `envconfig:"ESCALATION_WEBHOOK_RETRIES" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
