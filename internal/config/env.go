package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the process level settings read from the environment.
type Env struct {
	DataDir      string `env:"MDSIM_DATA_DIR"      envDefault:"./runs"`
	Workers      int    `env:"MDSIM_WORKERS"`
	LogLevel     string `env:"MDSIM_LOG_LEVEL"     envDefault:"info"`
	OTelEndpoint string `env:"MDSIM_OTEL_ENDPOINT"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ApplyEnv lets the environment override the worker count.
func (c *Config) ApplyEnv(e Env) {
	if e.Workers > 0 {
		c.Compute.Workers = e.Workers
	}
}
