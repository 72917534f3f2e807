package repository

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	NumberPrefix string `envconfig:"EXCEPTION_NUMBER_PREFIX" default:"EXC"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
