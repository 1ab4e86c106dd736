package config

import "fmt"

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	History     HistoryConfig     `yaml:"history"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

// ServerConfig holds http listener and storage path settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HistoryConfig bounds the in-memory mirror and version history.
type HistoryConfig struct {
	// MaxVersions caps stored snapshots per message (default 20).
	MaxVersions int `yaml:"max_versions"`
	// ErrorLogSize caps the global error log (default 10).
	ErrorLogSize int `yaml:"error_log_size"`
	// TopicErrorLogSize caps each topic's error log (default 5).
	TopicErrorLogSize int `yaml:"topic_error_log_size"`
}

// MaintenanceConfig holds configuration for the background sweeper.
type MaintenanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// RateLimitConfig holds per-client request limits for the HTTP surface.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Address: "", Port: 8080, DBPath: "./db"},
		Logging: LoggingConfig{Level: "info"},
		History: HistoryConfig{
			MaxVersions:       20,
			ErrorLogSize:      10,
			TopicErrorLogSize: 5,
		},
		Maintenance: MaintenanceConfig{Enabled: false, Cron: "0 2 * * *"},
		RateLimit:   RateLimitConfig{RPS: 50, Burst: 100},
	}
}
