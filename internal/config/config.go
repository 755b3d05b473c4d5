package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Server   struct {
		BaseURL    string `json:"base_url"`
		StreamPath string `json:"stream_path"`
	} `json:"server"`
	Streams struct {
		MaxConcurrent int `json:"max_concurrent"`
		DialAttempts  int `json:"dial_attempts"`
	} `json:"streams"`
	History struct {
		Backend           string `json:"backend"`
		Key               string `json:"key"`
		Capacity          int    `json:"capacity"`
		TitleLength       int    `json:"title_length"`
		RetentionDays     int    `json:"retention_days"`
		RetentionSchedule string `json:"retention_schedule"`
	} `json:"history"`
	Render struct {
		Markdown bool `json:"markdown"`
		Color    bool `json:"color"`
		Width    int  `json:"width"`
	} `json:"render"`
}

// DefaultPath is ~/.memchat/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".memchat", "config.json")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".memchat"),
		LogLevel: "warn",
	}
	cfg.Server.BaseURL = "http://localhost:8080"
	cfg.Server.StreamPath = "/stream/mem/agent"
	cfg.Streams.MaxConcurrent = 4
	cfg.Streams.DialAttempts = 3
	cfg.History.Backend = "file"
	cfg.History.Key = "memchat-history"
	cfg.History.Capacity = 1000
	cfg.History.TitleLength = 30
	cfg.History.RetentionSchedule = "@daily"
	cfg.Render.Markdown = true
	cfg.Render.Color = true
	cfg.Render.Width = 100
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("MEMCHAT_BASE_URL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if dataDir := os.Getenv("MEMCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level := os.Getenv("MEMCHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("history.backend must be file, sqlite or memory, got %q", c.History.Backend)
	}
	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1, got %d", c.History.Capacity)
	}
	if c.History.TitleLength < 1 {
		return fmt.Errorf("history.title_length must be at least 1, got %d", c.History.TitleLength)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative, got %d", c.History.RetentionDays)
	}
	if c.Streams.MaxConcurrent < 1 {
		return fmt.Errorf("streams.max_concurrent must be at least 1, got %d", c.Streams.MaxConcurrent)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	return nil
}

// SQLitePath is where the sqlite history backend keeps its database.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Save writes cfg to path atomically via a temp file.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListValues returns every setting keyed by its dotted name.
func ListValues(cfg *Config) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	return Flatten(m), nil
}

// GetValue reads one dotted key from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v, nil
}

// SetValue parses raw according to the key's current type, validates the
// result and saves it to path.
func SetValue(path, key, raw string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	flat, err := ListValues(cfg)
	if err != nil {
		return err
	}
	current, ok := flat[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false: %w", key, err)
		}
		flat[key] = b
	case float64:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("%s expects a number: %w", key, err)
		}
		flat[key] = n
	default:
		flat[key] = raw
	}

	updated, err := fromMap(Unflatten(flat))
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	return Save(path, updated)
}
