package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("port: got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver: got %q", cfg.Database.Driver)
	}
	if cfg.Database.KeyPrefix != "gridbase:" {
		t.Errorf("key prefix: got %q", cfg.Database.KeyPrefix)
	}

	e := cfg.Engine
	if e.MaxCollections != 100 || e.MaxRecordsPerCollection != 10000 ||
		e.MaxFieldsPerCollection != 100 || e.MaxViewsPerCollection != 20 {
		t.Errorf("quota defaults: %+v", e)
	}
	if e.MaxGraphNodes != 2000 || e.MaxGraphEdges != 10000 || e.MaxTraversalDepth != 5 {
		t.Errorf("graph defaults: %+v", e)
	}
	if e.DefaultPermissionLevel != "editor" {
		t.Errorf("permission level: got %q", e.DefaultPermissionLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestEngineConfig_ResolvedFlags(t *testing.T) {
	var e EngineConfig

	// Unset pointers resolve to enabled.
	if !e.QueryCacheEnabled() || !e.OptimizationEnabled() {
		t.Error("cache and optimizer default to enabled")
	}
	off := false
	e.EnableQueryCache = &off
	e.EnableQueryOptimization = &off
	if e.QueryCacheEnabled() || e.OptimizationEnabled() {
		t.Error("explicit false must win")
	}

	e.QueryCacheTTLSec = 300
	if e.QueryCacheTTL() != 5*time.Minute {
		t.Errorf("ttl: got %s", e.QueryCacheTTL())
	}
	e.MaxQueryExecutionMS = 30000
	if e.QueryTimeout() != 30*time.Second {
		t.Errorf("timeout: got %s", e.QueryTimeout())
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }, true},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"redis without addrs", func(c *Config) { c.Database.Driver = "redis" }, true},
		{"redis with addrs", func(c *Config) {
			c.Database.Driver = "redis"
			c.Database.Addrs = []string{"localhost:6379"}
		}, false},
		{"bad permission level", func(c *Config) { c.Engine.DefaultPermissionLevel = "owner" }, true},
		{"viewer level", func(c *Config) { c.Engine.DefaultPermissionLevel = "viewer" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GRIDBASE_TEST_PORT", "9090")

	in := []byte("port: ${GRIDBASE_TEST_PORT}\nprefix: ${GRIDBASE_TEST_MISSING:-fallback:}\nempty: ${GRIDBASE_TEST_UNSET}\n")
	out := string(expandEnvVars(in))

	want := "port: 9090\nprefix: fallback:\nempty: \n"
	if out != want {
		t.Errorf("expansion:\n got %q\nwant %q", out, want)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("default env: got %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("env override: got %q", GetEnv())
	}
}
