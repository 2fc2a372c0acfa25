package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// Load reads and parses the configuration file. The format is chosen by
// extension: .json, .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext, applies defaults and validates
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.FlushDelay == 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
	}

	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		if ep.Transport == "" {
			ep.Transport = DefaultTransport
		}
		if ep.Transport == TransportHTTP {
			if ep.Method == "" {
				ep.Method = DefaultMethod
			}
			ep.Method = strings.ToUpper(ep.Method)
		}
		if ep.RateLimit > 0 && ep.RateBurst == 0 {
			ep.RateBurst = DefaultRateBurst
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.FlushDelay < 0 {
		return fmt.Errorf("flushDelay must be non-negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.HandshakeTimeout < 0 {
		return fmt.Errorf("handshakeTimeout must be non-negative")
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdownTimeout must be non-negative")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return fmt.Errorf("cache.size must be positive when cache is enabled")
		}
	}

	kinds := make(map[string]bool)
	for i, exc := range cfg.Exceptions {
		if exc.Name == "" {
			return fmt.Errorf("exception[%d]: name is required", i)
		}
		if kinds[exc.Name] {
			return fmt.Errorf("exception[%d]: duplicate exception name '%s'", i, exc.Name)
		}
		if exc.Parent != "" && !kinds[exc.Parent] {
			return fmt.Errorf("exception '%s': parent '%s' must be declared before it", exc.Name, exc.Parent)
		}
		kinds[exc.Name] = true
	}

	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	endpointNames := make(map[string]bool)
	operationOwners := make(map[string]string)
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("endpoint[%d]: name is required", i)
		}
		if endpointNames[ep.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, ep.Name)
		}
		endpointNames[ep.Name] = true

		if ep.URL == "" {
			return fmt.Errorf("endpoint '%s': url is required", ep.Name)
		}

		switch ep.Transport {
		case TransportHTTP, TransportJSONRPC, TransportWS:
		default:
			return fmt.Errorf("endpoint '%s': transport must be one of: http, jsonrpc, ws", ep.Name)
		}

		if ep.RateLimit < 0 {
			return fmt.Errorf("endpoint '%s': rateLimit must be non-negative", ep.Name)
		}
		if ep.RateBurst < 0 {
			return fmt.Errorf("endpoint '%s': rateBurst must be non-negative", ep.Name)
		}

		for j, op := range ep.Operations {
			if op.Name == "" {
				return fmt.Errorf("endpoint '%s', operation[%d]: name is required", ep.Name, j)
			}
			if owner, exists := operationOwners[op.Name]; exists {
				return fmt.Errorf("endpoint '%s': operation '%s' already served by endpoint '%s'", ep.Name, op.Name, owner)
			}
			operationOwners[op.Name] = ep.Name

			if op.MinArgs < 0 || op.GetMaxArgs() < op.MinArgs {
				return fmt.Errorf("endpoint '%s', operation '%s': maxArgs must be at least minArgs", ep.Name, op.Name)
			}
			if len(op.ArgNames) != 0 && len(op.ArgNames) != op.GetMaxArgs() {
				return fmt.Errorf("endpoint '%s', operation '%s': expected %d argNames, got %d",
					ep.Name, op.Name, op.GetMaxArgs(), len(op.ArgNames))
			}
		}
	}

	return nil
}
