// Package config loads the small set of knobs the streaming demo host
// needs, via a viper-backed Config, trimmed down to what internal/mjpeg and
// cmd/mjpegdemo actually read.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	ServerURL string `mapstructure:"server_url"`
	SessionID string `mapstructure:"session_id"`
	AuthToken string `mapstructure:"auth_token"`

	StartingBitRateBps uint64 `mapstructure:"starting_bit_rate_bps"`
	MinBitRateBps      uint64 `mapstructure:"min_bit_rate_bps"`
	MaxBitRateBps      uint64 `mapstructure:"max_bit_rate_bps"`
	MaxFPS             int    `mapstructure:"max_fps"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`
	SessionQueueSize      int `mapstructure:"session_queue_size"`
}

func Default() *Config {
	return &Config{
		StartingBitRateBps:    8_000_000,
		MinBitRateBps:         500_000,
		MaxBitRateBps:         20_000_000,
		MaxFPS:                25,
		LogLevel:              "info",
		LogFormat:             "text",
		LogMaxSizeMB:          50,
		LogMaxBackups:         3,
		MaxConcurrentSessions: 8,
		SessionQueueSize:      64,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mjpegrc")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MJPEG")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("server_url", cfg.ServerURL)
	viper.Set("session_id", cfg.SessionID)
	viper.Set("auth_token", cfg.AuthToken)
	viper.Set("starting_bit_rate_bps", cfg.StartingBitRateBps)
	viper.Set("min_bit_rate_bps", cfg.MinBitRateBps)
	viper.Set("max_bit_rate_bps", cfg.MaxBitRateBps)
	viper.Set("max_fps", cfg.MaxFPS)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "mjpegrc.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (contains auth token)
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "mjpegrc")
	case "darwin":
		return "/Library/Application Support/mjpegrc"
	default:
		return "/etc/mjpegrc"
	}
}
