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

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/chain/eth"
	"github.com/blinklabs-io/daogov/content"
	"github.com/blinklabs-io/daogov/database"
	"github.com/blinklabs-io/daogov/election"
	"github.com/blinklabs-io/daogov/event"
	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/keystore"
	"github.com/blinklabs-io/daogov/transaction"
)

var ErrChainMismatch = errors.New("RPC endpoint serves a different chain")

// SessionOptions carries the process level handles of a session. The
// ChainClient and Indexer overrides replace the clients built from the
// config.
type SessionOptions struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	TracerProvider trace.TracerProvider
	ChainClient    chain.Client
	Indexer        indexer.Indexer
}

// Session holds every handle of a connection to one chain. It is opened
// once and closed on shutdown.
type Session struct {
	config     *config.Config
	logger     *slog.Logger
	db         *database.Database
	eventBus   *event.EventBus
	keys       *keystore.KeyStore
	chain      chain.Client
	pipeline   *transaction.Pipeline
	governance *governance.Service
	closers    []func(context.Context) error
}

// Open builds a session from the config. Handles opened before a failure
// are closed again.
func Open(
	ctx context.Context,
	cfg *config.Config,
	opts SessionOptions,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Session{
		config: cfg,
		logger: opts.Logger,
	}
	if err := s.open(ctx, opts); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	s.logger.Info(
		"session opened",
		"component", "node",
		"chain_id", cfg.ChainID,
		"account", s.governance.Account(),
	)
	return s, nil
}

func (s *Session) open(ctx context.Context, opts SessionOptions) error {
	cfg := s.config
	db, err := database.New(database.Config{
		Logger:       opts.Logger,
		PromRegistry: opts.PromRegistry,
		BlobPlugin:   cfg.BlobPlugin,
		CachePlugin:  cfg.CachePlugin,
		DataDir:      cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = db
	s.addCloser(func(context.Context) error { return db.Close() })

	s.eventBus = event.NewEventBus(opts.PromRegistry, opts.Logger)
	s.addCloser(func(context.Context) error {
		s.eventBus.Stop()
		return nil
	})

	var account string
	s.chain = opts.ChainClient
	if s.chain == nil {
		ethCfg := eth.Config{
			RPCURL: cfg.RpcUrl,
			Logger: opts.Logger,
		}
		if cfg.KeyFile != "" {
			s.keys = keystore.NewKeyStore(keystore.KeyStoreConfig{
				KeyPath: cfg.KeyFile,
				Logger:  opts.Logger,
			})
			if err := s.keys.Load(); err != nil {
				return err
			}
			signer, err := s.keys.Signer()
			if err != nil {
				return err
			}
			ethCfg.Signer = signer
			account = signer.Address().Hex()
		}
		ethClient, err := eth.New(ctx, ethCfg)
		if err != nil {
			return fmt.Errorf("connect to chain: %w", err)
		}
		s.addCloser(func(context.Context) error {
			ethClient.Close()
			return nil
		})
		s.chain = ethClient
	}
	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if chainID != cfg.ChainID {
		return fmt.Errorf("%w: expected %d, got %d", ErrChainMismatch, cfg.ChainID, chainID)
	}

	s.pipeline, err = transaction.NewPipeline(transaction.PipelineConfig{
		Client:            s.chain,
		Logger:            opts.Logger,
		EventBus:          s.eventBus,
		PromRegistry:      opts.PromRegistry,
		TracerProvider:    opts.TracerProvider,
		Confirmations:     cfg.Confirmations,
		LongWaitThreshold: cfg.LongWaitThreshold,
	})
	if err != nil {
		return err
	}
	// Registered after the event bus so in-flight jobs finish publishing
	// before the bus stops
	s.addCloser(s.pipeline.Shutdown)

	actionCache, err := cache.New(cache.CacheConfig{
		Store:        db.Cache(),
		Logger:       opts.Logger,
		EventBus:     s.eventBus,
		PromRegistry: opts.PromRegistry,
	})
	if err != nil {
		return err
	}

	idx := opts.Indexer
	if idx == nil && cfg.IndexerUrl != "" {
		idx, err = indexer.NewClient(indexer.ClientConfig{
			Endpoint: cfg.IndexerUrl,
			APIKey:   cfg.IndexerApiKey,
			ChainID:  cfg.ChainID,
			Logger:   opts.Logger,
		})
		if err != nil {
			return err
		}
	}

	var elections election.Service
	if cfg.ElectionUrl != "" {
		elections, err = election.NewClient(election.ClientConfig{
			URL:    cfg.ElectionUrl,
			APIKey: cfg.ElectionApiKey,
			Logger: opts.Logger,
		})
		if err != nil {
			return err
		}
	}

	var store content.Store = content.NewLocalStore(db.Blob(), opts.Logger)
	if cfg.IpfsApiUrl != "" {
		store, err = content.NewIPFSStore(content.IPFSConfig{
			APIURL: cfg.IpfsApiUrl,
			APIKey: cfg.IpfsApiKey,
			Logger: opts.Logger,
		})
		if err != nil {
			return err
		}
	}

	s.governance, err = governance.New(governance.Config{
		ChainID:        cfg.ChainID,
		Indexer:        idx,
		Cache:          actionCache,
		Pipeline:       s.pipeline,
		Elections:      elections,
		Content:        store,
		Account:        account,
		Logger:         opts.Logger,
		EventBus:       s.eventBus,
		PromRegistry:   opts.PromRegistry,
		TracerProvider: opts.TracerProvider,
		IndexTimeout:   cfg.IndexTimeout,
	})
	return err
}

func (s *Session) addCloser(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Governance returns the session façade
func (s *Session) Governance() *governance.Service {
	return s.governance
}

// EventBus returns the bus the session components publish on
func (s *Session) EventBus() *event.EventBus {
	return s.eventBus
}

// Close releases the handles in reverse order of opening. In-flight jobs
// are waited for until ctx ends.
func (s *Session) Close(ctx context.Context) error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, s.closers[i](ctx))
	}
	s.closers = nil
	return err
}
