package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries environment defaults for the global flags, so scripted
// and containerized invocations can set them once instead of repeating
// flags.
type Config struct {
	SavePath string `env:"SUZERAIN_SAVE" envDefault:"suzerain.db"`
	Format   string `env:"SUZERAIN_FORMAT" envDefault:"text"`
	Verbose  bool   `env:"SUZERAIN_VERBOSE" envDefault:"false"`
}

// LoadConfig reads the environment. Flag values still win over these
// defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
