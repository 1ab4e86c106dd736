package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, applies env overrides on top of defaults
// and returns the effective config. An empty path loads defaults + env only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays HISTORYDB_* env vars onto the config. Env wins over
// file values; explicit flags are handled by the caller and win over both.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HISTORYDB_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		if ok {
			cfg.Server.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if v := os.Getenv("HISTORYDB_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := os.Getenv("HISTORYDB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HISTORYDB_MAX_VERSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.MaxVersions = n
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.History.MaxVersions <= 0 {
		return fmt.Errorf("history.max_versions must be positive")
	}
	if c.History.ErrorLogSize <= 0 || c.History.TopicErrorLogSize <= 0 {
		return fmt.Errorf("history error log sizes must be positive")
	}
	return nil
}

// ParseCommandFlags parses the standard server flags and reports which were
// explicitly set so callers can let flags win over file/env values.
func ParseCommandFlags() (addr, dbPath, cfgPath string, setFlags map[string]bool) {
	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.StringVar(&dbPath, "db", "./db", "path to the database directory")
	flag.StringVar(&cfgPath, "config", "", "path to YAML config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return addr, dbPath, cfgPath, setFlags
}

// ResolveConfigPath picks the config file path: explicit flag wins, then the
// HISTORYDB_CONFIG env var, then empty (defaults only).
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("HISTORYDB_CONFIG"); v != "" {
		return v
	}
	return ""
}
