package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API     API     `yaml:"api"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type API struct {
	// BaseURL of the remote archive service.
	BaseURL string `yaml:"base_url"`
}

type Storage struct {
	// DataDir holds the guest store and the cookie file.
	DataDir string `yaml:"data_dir"`
	// RedisAddr switches the guest store to Redis when set.
	RedisAddr string `yaml:"redis_addr"`
	// PageSize is the default listing window.
	PageSize int `yaml:"page_size"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for arkeep.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "arkeep")
}

// DefaultDataDir returns the XDG data directory for arkeep.
func DefaultDataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "arkeep")
}

// Load reads the config file at path, or the XDG default when path is
// empty. A missing file yields the defaults; ARKEEP_API_BASE overrides
// the remote base URL either way.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if base := os.Getenv("ARKEEP_API_BASE"); base != "" {
		cfg.API.BaseURL = base
	}
	cfg.Storage.DataDir = expandHome(cfg.Storage.DataDir)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API:     API{BaseURL: "http://localhost:8080"},
		Storage: Storage{DataDir: DefaultDataDir(), PageSize: 8},
		Server:  Server{Port: 3000},
		Logging: Logging{Level: "info"},
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
