// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// MapPoolSize is the number of map candidates in every map selection.
const MapPoolSize = 7

type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	BaseURL      string `env:"BASE_URL"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/inhouse.db"`
	DevMode      bool   `env:"DEV_MODE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	QueueSize           int           `env:"QUEUE_SIZE" envDefault:"10"`
	QueueConfirmTimeout time.Duration `env:"QUEUE_CONFIRM_TIMEOUT" envDefault:"60s"`
	MapPool             []string      `env:"MAP_POOL" envDefault:"de_dust2,de_mirage,de_inferno,de_nuke,de_overpass,de_vertigo,de_ancient" envSeparator:","`
	MatchMapCount       int           `env:"MATCH_MAP_COUNT" envDefault:"1"`

	GameServerToken string   `env:"GAMESERVER_TOKEN"`
	AdminUsernames  []string `env:"ADMIN_USERNAMES" envSeparator:","`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:admin@localhost"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.MapPool = mapNames(cfg.MapPool)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.QueueSize < 2 {
		return fmt.Errorf("QUEUE_SIZE must be at least 2, got %d", c.QueueSize)
	}
	switch c.MatchMapCount {
	case 1, 3, 5:
	default:
		return fmt.Errorf("MATCH_MAP_COUNT must be 1, 3 or 5, got %d", c.MatchMapCount)
	}
	if c.QueueConfirmTimeout <= 0 {
		return fmt.Errorf("QUEUE_CONFIRM_TIMEOUT must be positive, got %s", c.QueueConfirmTimeout)
	}
	if len(c.MapPool) != MapPoolSize {
		return fmt.Errorf("MAP_POOL must name exactly %d distinct maps, got %d", MapPoolSize, len(c.MapPool))
	}
	return nil
}

// mapNames trims names and drops blanks and duplicates.
func mapNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Logger builds the process logger.
func (c Config) Logger() (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	return log, nil
}
