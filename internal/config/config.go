package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	CRM         CRMConfig                 `json:"crm"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	APIKey        string `json:"api_key"`
	MediaDir      string `json:"media_dir"`
	Debug         bool   `json:"debug"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// CRMConfig controls the internal CRM intake dispatch.
type CRMConfig struct {
	IntakeURL      string `json:"intake_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Workers        int    `json:"workers"`
	QueueSize      int    `json:"queue_size"`
}

// Load reads configuration from the provided path (defaults to config.json).
// VOXLOOM_API_KEY overrides the file value so the shared secret can live in
// the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if key := os.Getenv("VOXLOOM_API_KEY"); key != "" {
		cfg.BasicConfig.APIKey = key
	}
	if cfg.BasicConfig.APIKey == "" {
		return nil, fmt.Errorf("api_key must be configured")
	}

	if cfg.BasicConfig.MediaDir == "" {
		cfg.BasicConfig.MediaDir = "media"
	}
	if !filepath.IsAbs(cfg.BasicConfig.MediaDir) {
		cfg.BasicConfig.MediaDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.MediaDir)
	}

	return &cfg, nil
}
