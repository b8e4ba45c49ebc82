// Package config loads process settings from the environment, after
// merging an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string  `env:"DATABASE_URL"`
	AutoMigrate   bool    `env:"AUTO_MIGRATE"`
	Port          string  `env:"PORT" envDefault:"8080"`
	DeckSeed      int64   `env:"DECK_SEED"`
	Deck          string  `env:"DECK"` // fixed deal, bottom to top; overrides DECK_SEED shuffles
	Runs          int     `env:"RUNS" envDefault:"20"`
	Agent         string  `env:"AGENT" envDefault:"greedy"`
	AgentB        string  `env:"AGENT_B" envDefault:"random"`
	JudgeSamples  int     `env:"JUDGE_SAMPLES"`
	MaxSeconds    int     `env:"MAX_SECONDS"`
	StopFile      string  `env:"STOP_FILE"`
	StopImmediate bool    `env:"STOP_IMMEDIATE"`
	Debug         bool    `env:"DEBUG"`
	NoColor       string  `env:"NO_COLOR"`
	UseColor      string  `env:"USE_COLOR"`
	EloStart      float64 `env:"ELO_START" envDefault:"1500"`
	EloK          float64 `env:"ELO_K" envDefault:"24"`
}

// Color reports whether terminal output should carry ANSI colour codes.
func (c Config) Color() bool {
	return c.NoColor == "" && strings.TrimSpace(c.UseColor) != "0"
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads .env (if present) without overriding variables already set,
// then parses the environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()
	loadAPIKeyFromSecret()

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Runs <= 0 {
		return Config{}, fmt.Errorf("RUNS must be positive, got %d", cfg.Runs)
	}
	if cfg.JudgeSamples < 0 {
		return Config{}, fmt.Errorf("JUDGE_SAMPLES must not be negative, got %d", cfg.JudgeSamples)
	}
	return cfg, nil
}

// Tries: env var file, ./secrets/openai_api_key.txt, ./server/openai_api_key.txt,
// ./openai_api_key.txt and /run/secrets/openai_api_key.
func loadAPIKeyFromSecret() {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return
	}
	var candidates []string
	if p := os.Getenv("OPENAI_API_KEY_FILE"); strings.TrimSpace(p) != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates,
		"./secrets/openai_api_key.txt",
		"./server/openai_api_key.txt",
		"./openai_api_key.txt",
		"/run/secrets/openai_api_key",
	)
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil {
			key := strings.TrimSpace(string(b))
			if key != "" {
				os.Setenv("OPENAI_API_KEY", key)
				return
			}
		}
	}
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
