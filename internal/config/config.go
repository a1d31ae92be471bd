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
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/daogov/database"
	"github.com/blinklabs-io/daogov/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "daogov.config"

const (
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultConfirmations     = 1
	DefaultLongWaitThreshold = 2 * time.Minute
	DefaultIndexTimeout      = 10 * time.Minute
	DefaultMetricsPort       = 12799
	DefaultApiPort           = 8080
	envPrefix                = "daogov"
)

// Tracing exporters
const (
	TracingNone   = ""
	TracingOtlp   = "otlp"
	TracingStdout = "stdout"
)

var ErrInvalidConfig = errors.New("invalid config")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *yaml.Node                `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Cache    map[string]map[string]any `yaml:"cache,omitempty"`
}

type databaseConfig struct {
	Blob  map[string]any `yaml:"blob,omitempty"`
	Cache map[string]any `yaml:"cache,omitempty"`
}

type Config struct {
	// Chain
	ChainID           uint64        `yaml:"chainId"           split_words:"true"`
	RpcUrl            string        `yaml:"rpcUrl"            split_words:"true"`
	KeyFile           string        `yaml:"keyFile"           split_words:"true"`
	Confirmations     uint64        `yaml:"confirmations"`
	LongWaitThreshold time.Duration `yaml:"longWaitThreshold" split_words:"true"`

	// Indexing and election services
	IndexerUrl     string        `yaml:"indexerUrl"     split_words:"true"`
	IndexerApiKey  string        `yaml:"indexerApiKey"  split_words:"true"`
	IndexTimeout   time.Duration `yaml:"indexTimeout"   split_words:"true"`
	ElectionUrl    string        `yaml:"electionUrl"    split_words:"true"`
	ElectionApiKey string        `yaml:"electionApiKey" split_words:"true"`

	// Content storage. Metadata is pinned to IPFS when IpfsApiUrl is set,
	// otherwise to the blob plugin.
	IpfsApiUrl string `yaml:"ipfsApiUrl" split_words:"true"`
	IpfsApiKey string `yaml:"ipfsApiKey" split_words:"true"`

	DataDir     string `yaml:"dataDir"     split_words:"true"`
	BlobPlugin  string `yaml:"blobPlugin"  envconfig:"DAOGOV_DATABASE_BLOB_PLUGIN"`
	CachePlugin string `yaml:"cachePlugin" envconfig:"DAOGOV_DATABASE_CACHE_PLUGIN"`

	BindAddr        string        `yaml:"bindAddr"        split_words:"true"`
	ApiPort         uint          `yaml:"apiPort"         split_words:"true"`
	MetricsPort     uint          `yaml:"metricsPort"     split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`

	TracingExporter string `yaml:"tracingExporter" split_words:"true"`
	// TracingEndpoint is the OTLP HTTP endpoint, host:port
	TracingEndpoint string `yaml:"tracingEndpoint" split_words:"true"`

	Debug bool `yaml:"debug"`
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("%w: chainId required", ErrInvalidConfig)
	}
	switch c.TracingExporter {
	case TracingNone, TracingOtlp, TracingStdout:
	default:
		return fmt.Errorf(
			"%w: tracingExporter %q (must be '%s' or '%s')",
			ErrInvalidConfig,
			c.TracingExporter,
			TracingOtlp,
			TracingStdout,
		)
	}
	if c.TracingExporter == TracingOtlp && c.TracingEndpoint == "" {
		return fmt.Errorf("%w: tracingEndpoint required for otlp", ErrInvalidConfig)
	}
	if c.Confirmations == 0 {
		return fmt.Errorf("%w: confirmations must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ApiAddress returns the listen address of the REST API
func (c *Config) ApiAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ApiPort)
}

// MetricsAddress returns the listen address of the metrics endpoint
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.MetricsPort)
}

func defaultConfig() *Config {
	return &Config{
		ChainID:           1,
		Confirmations:     DefaultConfirmations,
		LongWaitThreshold: DefaultLongWaitThreshold,
		IndexTimeout:      DefaultIndexTimeout,
		DataDir:           ".daogov",
		BlobPlugin:        database.DefaultBlobPlugin,
		CachePlugin:       database.DefaultCachePlugin,
		BindAddr:          "127.0.0.1",
		ApiPort:           DefaultApiPort,
		MetricsPort:       DefaultMetricsPort,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

var globalConfig = defaultConfig()

// LoadConfig overlays the YAML file and then the environment onto the
// defaults. Without a configFile, ~/.daogov/daogov.yaml and then
// /etc/daogov/daogov.yaml are tried.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".daogov", "daogov.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/daogov/daogov.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		if err := loadFile(configFile); err != nil {
			return nil, err
		}
	}
	err := envconfig.Process(envPrefix, globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	return globalConfig, nil
}

func loadFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// Plugin sections are split off first
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	// A config section holds the main settings, otherwise they are at the
	// top level
	if tempCfg.Config != nil {
		if err := tempCfg.Config.Decode(globalConfig); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else if err := yaml.Unmarshal(buf, globalConfig); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	if tempCfg.Cache != nil {
		pluginConfig["cache"] = tempCfg.Cache
	}
	if tempCfg.Database != nil {
		if tempCfg.Database.Blob != nil {
			if name, ok := pluginName(tempCfg.Database.Blob); ok {
				globalConfig.BlobPlugin = name
			}
			mergePluginSection(pluginConfig, "blob", tempCfg.Database.Blob)
		}
		if tempCfg.Database.Cache != nil {
			if name, ok := pluginName(tempCfg.Database.Cache); ok {
				globalConfig.CachePlugin = name
			}
			mergePluginSection(pluginConfig, "cache", tempCfg.Database.Cache)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf("error processing plugin config: %w", err)
		}
	}
	return nil
}

// pluginName removes and returns the "plugin" key of a database section
func pluginName(section map[string]any) (string, bool) {
	val, exists := section["plugin"]
	if !exists {
		return "", false
	}
	name, ok := val.(string)
	if !ok {
		return "", false
	}
	delete(section, "plugin")
	return name, true
}

func mergePluginSection(
	pluginConfig map[string]map[string]map[string]any,
	typeName string,
	section map[string]any,
) {
	sectionConfig := make(map[string]map[string]any)
	for k, v := range section {
		switch val := v.(type) {
		case map[string]any:
			sectionConfig[k] = val
		case map[any]any:
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			sectionConfig[k] = stringAnyMap
		default:
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				typeName,
				k,
				v,
			)
		}
	}
	if pluginConfig[typeName] == nil {
		pluginConfig[typeName] = sectionConfig
	} else {
		maps.Copy(pluginConfig[typeName], sectionConfig)
	}
}

func GetConfig() *Config {
	return globalConfig
}
