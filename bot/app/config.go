package app

import (
	"fmt"

	"github.com/m3rciful/evabot/core/ai"
	coreconfig "github.com/m3rciful/evabot/core/config"
	"github.com/m3rciful/evabot/core/dadata"
	coredatabase "github.com/m3rciful/evabot/core/database"
)

// Config is the bot configuration: the core sections plus the integrations.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	OpenAI   ai.Config           `yaml:"openai"`
	DaData   dadata.Config       `yaml:"dadata"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path, overlays the environment and fills defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == coreconfig.BackendSQL {
		if err := cfg.Database.Normalize(); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}
	cfg.OpenAI.Normalize()
	cfg.DaData.Normalize()
	return &cfg, nil
}
