// Package config loads engine and server configuration from YAML files
// with environment-variable expansion and documented defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the gridbase configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds storage backend settings.
type DatabaseConfig struct {
	Driver    string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// EngineConfig holds the engine settings enumerated by the engine's
// construction contract. Zero values take the documented defaults.
type EngineConfig struct {
	MaxCollections          int  `yaml:"max_collections"`
	MaxRecordsPerCollection int  `yaml:"max_records_per_collection"`
	MaxFieldsPerCollection  int  `yaml:"max_fields_per_collection"`
	MaxViewsPerCollection   int  `yaml:"max_views_per_collection"`
	EnableQueryCache        *bool `yaml:"enable_query_cache"`
	QueryCacheTTLSec        int  `yaml:"query_cache_ttl_sec"`
	EnableQueryOptimization *bool `yaml:"enable_query_optimization"`
	MaxQueryExecutionMS     int  `yaml:"max_query_execution_time_ms"`
	EnablePermissions       bool `yaml:"enable_permissions"`
	DefaultPermissionLevel  string `yaml:"default_permission_level"`
	MaxGraphNodes           int  `yaml:"max_graph_nodes"`
	MaxGraphEdges           int  `yaml:"max_graph_edges"`
	MaxTraversalDepth       int  `yaml:"max_traversal_depth"`
}

// QueryCacheEnabled resolves the cache flag with its default (true).
func (e EngineConfig) QueryCacheEnabled() bool {
	return e.EnableQueryCache == nil || *e.EnableQueryCache
}

// OptimizationEnabled resolves the optimizer flag with its default (true).
func (e EngineConfig) OptimizationEnabled() bool {
	return e.EnableQueryOptimization == nil || *e.EnableQueryOptimization
}

// QueryCacheTTL returns the cache TTL as a duration.
func (e EngineConfig) QueryCacheTTL() time.Duration {
	return time.Duration(e.QueryCacheTTLSec) * time.Second
}

// QueryTimeout returns the default query execution ceiling.
func (e EngineConfig) QueryTimeout() time.Duration {
	return time.Duration(e.MaxQueryExecutionMS) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name
// (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", configPath, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied, for hosts
// embedding the engine without a config file.
func Default() Config {
	var cfg Config
	cfg.HTTP.Port = 8080
	cfg.ApplyDefaults()
	return cfg
}

// GetEnv returns the current environment from ENV, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with the documented default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "gridbase:"
	}

	e := &c.Engine
	if e.MaxCollections <= 0 {
		e.MaxCollections = 100
	}
	if e.MaxRecordsPerCollection <= 0 {
		e.MaxRecordsPerCollection = 10000
	}
	if e.MaxFieldsPerCollection <= 0 {
		e.MaxFieldsPerCollection = 100
	}
	if e.MaxViewsPerCollection <= 0 {
		e.MaxViewsPerCollection = 20
	}
	if e.QueryCacheTTLSec <= 0 {
		e.QueryCacheTTLSec = 300
	}
	if e.MaxQueryExecutionMS <= 0 {
		e.MaxQueryExecutionMS = 30000
	}
	if e.DefaultPermissionLevel == "" {
		e.DefaultPermissionLevel = "editor"
	}
	if e.MaxGraphNodes <= 0 {
		e.MaxGraphNodes = 2000
	}
	if e.MaxGraphEdges <= 0 {
		e.MaxGraphEdges = 10000
	}
	if e.MaxTraversalDepth <= 0 {
		e.MaxTraversalDepth = 5
	}
}

// Validate checks the configuration for coherence.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Engine.DefaultPermissionLevel {
	case "viewer", "editor", "admin":
	default:
		return fmt.Errorf("engine.default_permission_level must be viewer, editor or admin, got %q",
			c.Engine.DefaultPermissionLevel)
	}
	return nil
}

// findConfigPath locates the config file for an environment.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
