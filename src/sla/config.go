package sla

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SweepEnabled  bool   `envconfig:"SLA_SWEEP_ENABLED" default:"true"`
	SweepSchedule string `envconfig:"SLA_SWEEP_SCHEDULE" default:"@every 5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
