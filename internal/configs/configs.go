/*
Package configs loads the client's startup configuration.

Values come from environment variables, optionally layered over a TOML file named by
CONFIG_FILE. Configuration is read once at startup; the realtime endpoint and its
anonymous key are mandatory and their absence is a hard initialization failure.
*/
package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AppConfig contains all configuration parameters required by the client.
type AppConfig struct {
	// General Settings
	Environment string `toml:"environment"`

	// Backend API Settings
	BackendURL string `toml:"backend_url"`

	// Realtime Transport Settings
	RealtimeURL     string `toml:"supabase_url"`
	RealtimeAnonKey string `toml:"supabase_anon_key"`

	// Local Persistence Settings
	LocalStorePath string `toml:"local_store_path"`

	// Loopback Callback Settings
	CallbackPort int `toml:"callback_port"`

	// Attachment Storage Settings
	StorageBucket string `toml:"storage_bucket"`
	StorageRegion string `toml:"storage_region"`
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// CallbackURL is the redirect target registered with the identity provider.
func (c *AppConfig) CallbackURL() string {
	return fmt.Sprintf("http://localhost:%d/auth/callback", c.CallbackPort)
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("invalid CONFIG_FILE %s: %w", path, err)
		}
	}

	// --- General Settings ---
	overrideString(&cfg.Environment, "ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// --- Backend API Settings ---
	// An empty base URL is permitted and means same-origin relative paths.
	overrideString(&cfg.BackendURL, "BACKEND_URL")
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")

	// --- Realtime Transport Settings ---
	overrideString(&cfg.RealtimeURL, "SUPABASE_URL")
	cfg.RealtimeURL = strings.TrimRight(strings.TrimSpace(cfg.RealtimeURL), "/")
	if cfg.RealtimeURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL environment variable is required for the realtime transport")
	}

	overrideString(&cfg.RealtimeAnonKey, "SUPABASE_ANON_KEY")
	if strings.TrimSpace(cfg.RealtimeAnonKey) == "" {
		return nil, fmt.Errorf("SUPABASE_ANON_KEY environment variable is required for the realtime transport")
	}

	// --- Local Persistence Settings ---
	overrideString(&cfg.LocalStorePath, "LOCAL_STORE_PATH")
	if cfg.LocalStorePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("LOCAL_STORE_PATH is unset and the home directory is unknown: %w", err)
		}
		cfg.LocalStorePath = filepath.Join(home, ".cfoclient", "local.db")
	}

	// --- Loopback Callback Settings ---
	if portStr := os.Getenv("CALLBACK_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CALLBACK_PORT environment variable: %w", err)
		}
		cfg.CallbackPort = port
	}
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = 8765
	}
	if cfg.CallbackPort < 1024 || cfg.CallbackPort > 65535 {
		return nil, fmt.Errorf("callback port %d is outside the allowed range (%d-%d)", cfg.CallbackPort, 1024, 65535)
	}

	// --- Attachment Storage Settings ---
	overrideString(&cfg.StorageBucket, "STORAGE_BUCKET")
	if cfg.StorageBucket == "" {
		cfg.StorageBucket = "chat-files"
	}

	overrideString(&cfg.StorageRegion, "STORAGE_REGION")
	if cfg.StorageRegion == "" {
		cfg.StorageRegion = "us-east-1"
	}

	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
