package app

import (
	"errors"

	"github.com/vk/promptgrid/internal/config"
)

// Config holds everything an App needs: the layered runtime settings plus
// what a single invocation names.
type Config struct {
	config.Config

	ScriptPath string
	Vars       []string
	VarFiles   []string
	InputPath  string
}

// NewConfig checks cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// requireScript reports a missing script path for operations that need one.
func (c *Config) requireScript() error {
	if c.ScriptPath == "" {
		return errors.New("a script path is required")
	}
	return nil
}
