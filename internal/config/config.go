package config

import (
	"fmt"
	"log"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Config holds everything ghostline reads from the environment.
type Config struct {
	StoragePath      string `env:"STORAGE_PATH" envDefault:"data/ghost.json"`
	TriggerTablePath string `env:"TRIGGER_TABLE_PATH"`

	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// GhostLinesPerMinute caps ghost-authored chat output.
	GhostLinesPerMinute float64 `env:"GHOST_LINES_PER_MINUTE" envDefault:"2"`
}

// New parses the environment into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}
