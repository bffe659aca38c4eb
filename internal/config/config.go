package config

import (
	"fmt"

	"go-tube-download/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and populates a models.Config with defaults applied.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.SavePath == "" {
		log.Warn("Warning: SavePath is not set in config.toml")
	}
	applyDefaults(&cfg)

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the documented defaults.
func applyDefaults(cfg *models.Config) {
	if cfg.CookieBrowser == "" {
		cfg.CookieBrowser = "chrome"
	}
	if cfg.SubLangs == "" {
		cfg.SubLangs = "en"
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = 100
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 3
	}
	if cfg.RateLimitWindowMs <= 0 {
		cfg.RateLimitWindowMs = 60000
	}
	if cfg.JitterMinMs <= 0 {
		cfg.JitterMinMs = 1000
	}
	if cfg.JitterMaxMs <= cfg.JitterMinMs {
		cfg.JitterMaxMs = cfg.JitterMinMs + 2000
	}
}

// Defaults returns a config with only the defaults applied, for callers that
// run without a config file.
func Defaults() models.Config {
	var cfg models.Config
	applyDefaults(&cfg)
	return cfg
}
