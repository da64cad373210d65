package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"screentime/internal/ipc"
)

// MinSyncIntervalMinutes is the platform floor for periodic background
// collection.
const MinSyncIntervalMinutes = 15

type Config struct {
	DatabasePath          string `mapstructure:"database_path"`
	SocketPath            string `mapstructure:"socket_path"`
	SampleIntervalSeconds int    `mapstructure:"sample_interval_seconds"`
	SyncIntervalMinutes   int    `mapstructure:"sync_interval_minutes"`
	IconSize              int    `mapstructure:"icon_size"`
}

func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/screentime")
		viper.AddConfigPath("/etc/screentime/")
	}

	viper.SetEnvPrefix("SCREENTIME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("database_path", "screentime.db")
	viper.SetDefault("socket_path", ipc.DefaultSocketPath)
	viper.SetDefault("sample_interval_seconds", 2)
	viper.SetDefault("sync_interval_minutes", MinSyncIntervalMinutes)
	viper.SetDefault("icon_size", 96)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.SampleIntervalSeconds < 1 {
		log.Println("Warning: sample_interval_seconds too low, setting to 1")
		cfg.SampleIntervalSeconds = 1
	}
	if cfg.SyncIntervalMinutes < MinSyncIntervalMinutes {
		log.Printf("Warning: sync_interval_minutes below platform minimum, setting to %d", MinSyncIntervalMinutes)
		cfg.SyncIntervalMinutes = MinSyncIntervalMinutes
	}
	if cfg.IconSize < 16 {
		log.Println("Warning: icon_size too small, setting to 16")
		cfg.IconSize = 16
	}

	log.Printf("Configuration loaded: %+v", cfg)
	return &cfg, nil
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}
