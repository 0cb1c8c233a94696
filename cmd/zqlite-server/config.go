package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loadable from a YAML file.
type Config struct {
	// Port is the TCP port to listen on.
	Port int `yaml:"port"`

	// Database is the database file path; empty runs in-memory.
	Database string `yaml:"database"`

	// Key is the encryption password for the database file.
	Key string `yaml:"key"`

	// WAL enables write-ahead logging on startup.
	WAL bool `yaml:"wal"`

	// Auth configures JWT authentication.
	Auth AuthConfig `yaml:"auth"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{Port: 3306}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
