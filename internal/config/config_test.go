// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/database/plugin"
)

func resetGlobalConfig(t *testing.T) {
	t.Helper()
	globalConfig = defaultConfig()
	// Keep a config file in the real home directory out of the tests
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "daogov.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpFile
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig(t)
	tmpFile := writeConfig(t, `
chainId: 137
rpcUrl: "https://polygon.example.org"
keyFile: "/etc/daogov/key.json"
confirmations: 3
longWaitThreshold: "5m"
indexerUrl: "https://indexer.example.org/graphql"
indexTimeout: "2m"
electionUrl: "https://elections.example.org/v2"
dataDir: "/var/lib/daogov"
bindAddr: "0.0.0.0"
apiPort: 9000
metricsPort: 9001
shutdownTimeout: "10s"
tracingExporter: "otlp"
tracingEndpoint: "localhost:4318"
`)

	expected := &Config{
		ChainID:           137,
		RpcUrl:            "https://polygon.example.org",
		KeyFile:           "/etc/daogov/key.json",
		Confirmations:     3,
		LongWaitThreshold: 5 * time.Minute,
		IndexerUrl:        "https://indexer.example.org/graphql",
		IndexTimeout:      2 * time.Minute,
		ElectionUrl:       "https://elections.example.org/v2",
		DataDir:           "/var/lib/daogov",
		BlobPlugin:        "badger",
		CachePlugin:       "sqlite",
		BindAddr:          "0.0.0.0",
		ApiPort:           9000,
		MetricsPort:       9001,
		ShutdownTimeout:   10 * time.Second,
		TracingExporter:   TracingOtlp,
		TracingEndpoint:   "localhost:4318",
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
	require.NoError(t, actual.Validate())
	assert.Equal(t, "0.0.0.0:9000", actual.ApiAddress())
	assert.Equal(t, "0.0.0.0:9001", actual.MetricsAddress())
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			defaultConfig(),
			cfg,
		)
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigSectionKeepsDefaults(t *testing.T) {
	resetGlobalConfig(t)
	tmpFile := writeConfig(t, `
config:
  rpcUrl: "http://localhost:8545"
`)
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RpcUrl)
	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, uint(DefaultApiPort), cfg.ApiPort)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	resetGlobalConfig(t)
	tmpFile := writeConfig(t, `
chainId: 10
indexerUrl: "https://file.example.org"
`)
	t.Setenv("DAOGOV_INDEXER_URL", "https://env.example.org")
	t.Setenv("DAOGOV_DATABASE_CACHE_PLUGIN", "postgres")
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cfg.ChainID)
	assert.Equal(t, "https://env.example.org", cfg.IndexerUrl)
	assert.Equal(t, "postgres", cfg.CachePlugin)
}

func TestLoad_DatabasePluginSection(t *testing.T) {
	resetGlobalConfig(t)
	dataDir := t.TempDir()
	tmpFile := writeConfig(t, `
database:
  blob:
    plugin: badger
    badger:
      data-dir: "`+dataDir+`"
  cache:
    plugin: mysql
`)
	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.BlobPlugin)
	assert.Equal(t, "mysql", cfg.CachePlugin)

	var found bool
	for _, p := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		if p.Name != "badger" {
			continue
		}
		for _, opt := range p.Options {
			if opt.Name == "data-dir" {
				found = true
				assert.Equal(t, dataDir, *(opt.Dest.(*string)))
			}
		}
	}
	assert.True(t, found, "badger data-dir option not registered")
}

func TestLoad_UnknownPluginType(t *testing.T) {
	resetGlobalConfig(t)
	tmpFile := writeConfig(t, `
metadata:
  sqlite:
    data-dir: "/tmp"
`)
	// Unknown top-level sections are ignored
	_, err := LoadConfig(tmpFile)
	require.NoError(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	resetGlobalConfig(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "zero chain", modify: func(c *Config) { c.ChainID = 0 }},
		{name: "unknown exporter", modify: func(c *Config) { c.TracingExporter = "jaeger" }},
		{name: "otlp without endpoint", modify: func(c *Config) { c.TracingExporter = TracingOtlp }},
		{name: "zero confirmations", modify: func(c *Config) { c.Confirmations = 0 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := defaultConfig()
			test.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
