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

package database

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	logcache "github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/database/plugin"
	"github.com/blinklabs-io/daogov/database/plugin/blob"
	"github.com/blinklabs-io/daogov/database/plugin/cache"

	// Register plugins
	_ "github.com/blinklabs-io/daogov/database/plugin/blob/aws"
	_ "github.com/blinklabs-io/daogov/database/plugin/blob/badger"
	_ "github.com/blinklabs-io/daogov/database/plugin/blob/gcs"
	_ "github.com/blinklabs-io/daogov/database/plugin/cache/mysql"
	_ "github.com/blinklabs-io/daogov/database/plugin/cache/postgres"
	_ "github.com/blinklabs-io/daogov/database/plugin/cache/sqlite"
)

const (
	DefaultBlobPlugin  = "badger"
	DefaultCachePlugin = "sqlite"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	BlobPlugin   string
	CachePlugin  string
	// DataDir overrides the data-dir option of the local plugins. Each
	// plugin gets its own subdirectory.
	DataDir string
}

// Database bundles the content blob store and the action log store
type Database struct {
	logger *slog.Logger
	blob   blob.BlobStore
	cache  cache.CacheStore
}

// Blob returns the underlying blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// Cache returns the underlying action log store
func (d *Database) Cache() logcache.Store {
	return d.cache
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Close stops both stores
func (d *Database) Close() error {
	var err error
	if d.cache != nil {
		err = errors.Join(err, d.cache.Stop())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Stop())
	}
	return err
}

// New starts the configured blob and cache plugins
func New(cfg Config) (*Database, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.BlobPlugin == "" {
		cfg.BlobPlugin = DefaultBlobPlugin
	}
	if cfg.CachePlugin == "" {
		cfg.CachePlugin = DefaultCachePlugin
	}
	plugin.SetCommonOptions(cfg.Logger, cfg.PromRegistry)
	if cfg.DataDir != "" {
		if err := plugin.SetPluginOption(
			plugin.PluginTypeBlob,
			cfg.BlobPlugin,
			"data-dir",
			filepath.Join(cfg.DataDir, "content"),
		); err != nil {
			return nil, err
		}
		if err := plugin.SetPluginOption(
			plugin.PluginTypeCache,
			cfg.CachePlugin,
			"data-dir",
			filepath.Join(cfg.DataDir, "cache"),
		); err != nil {
			return nil, err
		}
	}
	cacheStore, err := cache.New(cfg.CachePlugin)
	if err != nil {
		return nil, err
	}
	blobStore, err := blob.New(cfg.BlobPlugin)
	if err != nil {
		_ = cacheStore.Stop()
		return nil, err
	}
	cfg.Logger.Debug(
		"database started",
		"component", "database",
		"blob", cfg.BlobPlugin,
		"cache", cfg.CachePlugin,
	)
	return &Database{
		logger: cfg.Logger,
		blob:   blobStore,
		cache:  cacheStore,
	}, nil
}
