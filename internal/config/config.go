// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads xseed's configuration file via viper and exposes it
// as an immutable value threaded through every component's constructor
// (spec.md §9's "re-architect as an explicit immutable configuration value"
// design note). There is no process-wide singleton: Load returns a *Config
// and nothing in this module reads viper directly afterwards.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// IndexerConfig is one configured Torznab indexer.
type IndexerConfig struct {
	Name           string `mapstructure:"name"`
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"apiKey"`
	Priority       int    `mapstructure:"priority"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// ArrConfig is one configured Sonarr or Radarr instance.
type ArrConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"apiKey"`
}

// ClientConfig configures the BitTorrent client adapter.
type ClientConfig struct {
	Type     string `mapstructure:"type"` // currently only "qbittorrent"
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HTTPConfig configures the daemon HTTP surface (§6).
type HTTPConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
}

// Config is the fully-resolved, immutable configuration for one process.
type Config struct {
	DataDir   string `mapstructure:"dataDir"`
	OutputDir string `mapstructure:"outputDir"`
	LinkDir   string `mapstructure:"linkDir"`
	DBPath    string `mapstructure:"dbPath"`

	SearchCadence time.Duration `mapstructure:"searchCadence"`

	PartialMatchEnabled  bool    `mapstructure:"partialMatchEnabled"`
	PartialThreshold     float64 `mapstructure:"partialThreshold"`
	SizeOnlyMatchEnabled bool    `mapstructure:"sizeOnlyMatchEnabled"`
	SizeFuzz             float64 `mapstructure:"sizeFuzz"`
	AllowCrossDeviceCopy bool    `mapstructure:"allowCrossDeviceCopy"`

	// DecisionRetention is how long a DOWNLOAD_FAILED decision is honored
	// before the search pipeline is willing to re-ask an indexer about the
	// same (searchee, guid). All other decision kinds never expire
	// (spec.md §9 design note).
	DecisionRetention time.Duration `mapstructure:"decisionRetention"`

	// Concurrency bounds the indexer fan-out worker pool (§5).
	Concurrency int `mapstructure:"concurrency"`

	// ActionMode selects the action dispatcher's behavior: "save" or
	// "inject" (§4.8).
	ActionMode string `mapstructure:"actionMode"`

	// LinkMode selects how INJECT materializes matched files into the
	// client's staging tree: "hardlink" or "reflink" (§4.8).
	LinkMode string `mapstructure:"linkMode"`

	// Category and Tags are applied to every torrent INJECT adds to the
	// client, matching qBittorrent's addTorrent(category, tags) surface.
	Category string   `mapstructure:"category"`
	Tags     []string `mapstructure:"tags"`

	Indexers []IndexerConfig      `mapstructure:"indexers"`
	Arrs     struct {
		Sonarr []ArrConfig `mapstructure:"sonarr"`
		Radarr []ArrConfig `mapstructure:"radarr"`
	} `mapstructure:"arrs"`
	Client ClientConfig `mapstructure:"client"`
	HTTP   HTTPConfig   `mapstructure:"http"`

	// EncryptionKey is the 32-byte key used to encrypt indexer API keys at
	// rest, reusing the AES-GCM scheme the teacher applies to its own
	// torznab_indexers table.
	EncryptionKey string `mapstructure:"encryptionKey"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", "./data")
	v.SetDefault("outputDir", "./output")
	v.SetDefault("linkDir", "./links")
	v.SetDefault("dbPath", "./data/xseed.db")
	v.SetDefault("searchCadence", "24h")
	v.SetDefault("partialMatchEnabled", true)
	v.SetDefault("partialThreshold", 1.0)
	v.SetDefault("sizeOnlyMatchEnabled", false)
	v.SetDefault("sizeFuzz", 0.025)
	v.SetDefault("allowCrossDeviceCopy", false)
	v.SetDefault("decisionRetention", "1h")
	v.SetDefault("concurrency", 4)
	v.SetDefault("actionMode", "save")
	v.SetDefault("linkMode", "hardlink")
	v.SetDefault("http.listenAddr", "127.0.0.1:2468")
}

// Load reads configuration from path (if non-empty), environment variables
// prefixed XSEED_, and defaults, in viper's usual precedence order (explicit
// Set calls > flags > env > config file > default).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("XSEED")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the ConfigurationError-class checks from spec.md §7 that
// are cheap to perform without network access: missing apikeys and invalid
// paths. Unreachable-arr-on-probe is checked at startup by cmd/xseed's
// bootstrap (arr.Instance.Ping), not here.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("dataDir must be set")
	}
	if c.OutputDir == "" {
		return errors.New("outputDir must be set")
	}
	if c.ActionMode != "save" && c.ActionMode != "inject" {
		return fmt.Errorf("actionMode must be \"save\" or \"inject\", got %q", c.ActionMode)
	}
	if c.ActionMode == "inject" && c.LinkDir == "" {
		return errors.New("linkDir must be set when actionMode is \"inject\"")
	}
	if c.ActionMode == "inject" && c.LinkMode != "hardlink" && c.LinkMode != "reflink" {
		return fmt.Errorf("linkMode must be \"hardlink\" or \"reflink\", got %q", c.LinkMode)
	}
	for _, idx := range c.Indexers {
		if idx.Name == "" || idx.URL == "" || idx.APIKey == "" {
			return fmt.Errorf("indexer %q missing name/url/apiKey", idx.Name)
		}
	}
	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != 32 {
		return errors.New("encryptionKey must be exactly 32 bytes when set")
	}
	return nil
}
