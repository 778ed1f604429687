// Package config holds the service configuration. Fields are pointer-typed
// so a partial JSON file only overrides what it names; the Get* accessors
// supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "yard_data.db"
	defaultBrokerURL      = "tcp://localhost:1883"
	defaultTopicPrefix    = "yard"
	defaultModelsDir      = "models"
	defaultMinSamples     = 50
	defaultConnectTimeout = "10s"
)

// Config is the root service configuration. The schema is flat so the same
// JSON shape works for files and for future runtime updates.
type Config struct {
	ListenAddr         *string `json:"listen_addr,omitempty"`
	DBPath             *string `json:"db_path,omitempty"`
	BrokerURL          *string `json:"broker_url,omitempty"`
	TopicPrefix        *string `json:"topic_prefix,omitempty"`
	ModelsDir          *string `json:"models_dir,omitempty"`
	MinTrainingSamples *int    `json:"min_training_samples,omitempty"`
	ConnectTimeout     *string `json:"connect_timeout,omitempty"` // duration string like "10s"
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Fields omitted from the file fall
// back to defaults via the Get* accessors, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set fields carry usable values.
func (c *Config) Validate() error {
	if c.BrokerURL != nil {
		u := *c.BrokerURL
		if u == "" || (!strings.Contains(u, "://")) {
			return fmt.Errorf("broker_url must be a scheme://host:port URL, got %q", u)
		}
	}
	if c.TopicPrefix != nil {
		p := *c.TopicPrefix
		if p == "" || strings.ContainsAny(p, "+#") || strings.HasSuffix(p, "/") {
			return fmt.Errorf("topic_prefix must be a plain topic segment, got %q", p)
		}
	}
	if c.MinTrainingSamples != nil && *c.MinTrainingSamples <= 0 {
		return fmt.Errorf("min_training_samples must be positive, got %d", *c.MinTrainingSamples)
	}
	if c.ConnectTimeout != nil && *c.ConnectTimeout != "" {
		if _, err := time.ParseDuration(*c.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid connect_timeout %q: %w", *c.ConnectTimeout, err)
		}
	}
	return nil
}

func (c *Config) GetListenAddr() string {
	if c.ListenAddr != nil {
		return *c.ListenAddr
	}
	return defaultListenAddr
}

func (c *Config) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return defaultDBPath
}

func (c *Config) GetBrokerURL() string {
	if c.BrokerURL != nil {
		return *c.BrokerURL
	}
	return defaultBrokerURL
}

func (c *Config) GetTopicPrefix() string {
	if c.TopicPrefix != nil {
		return *c.TopicPrefix
	}
	return defaultTopicPrefix
}

func (c *Config) GetModelsDir() string {
	if c.ModelsDir != nil {
		return *c.ModelsDir
	}
	return defaultModelsDir
}

func (c *Config) GetMinTrainingSamples() int {
	if c.MinTrainingSamples != nil {
		return *c.MinTrainingSamples
	}
	return defaultMinSamples
}

func (c *Config) GetConnectTimeout() time.Duration {
	if c.ConnectTimeout != nil && *c.ConnectTimeout != "" {
		if d, err := time.ParseDuration(*c.ConnectTimeout); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(defaultConnectTimeout)
	return d
}
