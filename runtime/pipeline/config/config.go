// Package config loads pipelinectl's YAML configuration (spec §6: "Config
// file") and builds the Unified LLM Core / log store instances it
// describes. The loader shape (a struct decoded with gopkg.in/yaml.v3,
// a concrete Load(path) entry point) is grounded on
// petal-labs-petalflow/cli's config-file handling and haasonsaas-nexus's
// cmd/nexus/handlers_setup.go, both of which decode a single YAML document
// into a root config struct before wiring concrete clients from it.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/pipeforge/pipeforge/runtime/llm/client"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/fslog"
	"github.com/pipeforge/pipeforge/runtime/pipeline/logstore/redislog"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/anthropic"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/gemini"
	"github.com/pipeforge/pipeforge/runtime/llm/provider/openai"
)

// ProviderConfig is one entry under the config's `providers` map: the
// credentials and default model pipelinectl registers a provider adapter
// with.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
}

// Config is pipelinectl's root YAML document (spec §6).
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`

	LogsRoot string `yaml:"logs_root"`

	// CheckpointBackend selects the LogStore implementation: "fs" (default)
	// or "redis".
	CheckpointBackend string `yaml:"checkpoint_backend"`
	RedisAddr         string `yaml:"redis_addr"`
}

// Load reads and decodes a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.LogsRoot == "" {
		cfg.LogsRoot = "./pipelinectl-logs"
	}
	if cfg.CheckpointBackend == "" {
		cfg.CheckpointBackend = "fs"
	}
	return &cfg, nil
}

// BuildClient registers the three known providers (spec §4.9: Provider
// A/B/C) named in cfg.Providers against a fresh Unified LLM Client,
// mirroring runtime/llm/client.FromEnv's environment-variable-driven
// registration but sourced from config instead.
func (cfg *Config) BuildClient(ctx context.Context) (*client.Client, error) {
	c := client.New()
	registered := false

	if pc, ok := cfg.Providers["anthropic"]; ok && pc.APIKey != "" {
		p, err := anthropic.NewFromAPIKey(pc.APIKey, pc.DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("config: anthropic provider: %w", err)
		}
		c.Register(p)
		registered = true
	}
	if pc, ok := cfg.Providers["openai"]; ok && pc.APIKey != "" {
		p, err := openai.NewFromAPIKey(pc.APIKey, pc.DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("config: openai provider: %w", err)
		}
		c.Register(p)
		registered = true
	}
	if pc, ok := cfg.Providers["gemini"]; ok && pc.APIKey != "" {
		p, err := gemini.NewFromAPIKey(ctx, pc.APIKey, pc.DefaultModel)
		if err != nil {
			return nil, fmt.Errorf("config: gemini provider: %w", err)
		}
		c.Register(p)
		registered = true
	}
	if !registered {
		return nil, fmt.Errorf("config: no provider credentials configured")
	}
	if cfg.DefaultProvider != "" {
		c.SetDefault(cfg.DefaultProvider)
	}
	return c, nil
}

// OpenLogStore opens the LogStore backend cfg.CheckpointBackend names.
func (cfg *Config) OpenLogStore() (logstore.LogStore, error) {
	switch cfg.CheckpointBackend {
	case "", "fs":
		store, err := fslog.New(cfg.LogsRoot)
		if err != nil {
			return nil, fmt.Errorf("config: open fs log store: %w", err)
		}
		return store, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("config: checkpoint_backend=redis requires redis_addr")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redislog.New(rdb, cfg.LogsRoot), nil
	default:
		return nil, fmt.Errorf("config: unknown checkpoint_backend %q", cfg.CheckpointBackend)
	}
}
