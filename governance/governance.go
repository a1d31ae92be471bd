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

// Package governance is the session façade over proposal reads, optimistic
// action caching and the transaction and step flows that change proposals.
package governance

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/content"
	"github.com/blinklabs-io/daogov/election"
	"github.com/blinklabs-io/daogov/event"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/reconcile"
	"github.com/blinklabs-io/daogov/transaction"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollInterval = 30 * time.Second
	DefaultIndexTimeout    = 10 * time.Minute
)

var (
	ErrNotFound              = errors.New("proposal not found")
	ErrInvalidRequest        = errors.New("invalid governance request")
	ErrIndexerRequired       = errors.New("governance requires an indexer")
	ErrCacheRequired         = errors.New("governance requires a cache")
	ErrPipelineRequired      = errors.New("governance requires a transaction pipeline")
	ErrContentRequired       = errors.New("governance requires a content store")
	ErrElectionsRequired     = errors.New("gasless governance requires an election service")
	ErrAccountRequired       = errors.New("no account to act as")
	ErrUnsupportedForKind    = errors.New("operation not supported for governance kind")
	ErrIndexTimeout          = errors.New("timed out waiting for the indexer")
	ErrProposalIDUnavailable = errors.New("created proposal id not available")
)

type Config struct {
	ChainID uint64
	Indexer indexer.Indexer
	Cache   *cache.Cache
	// Reconciler is built from Cache when not set
	Reconciler *reconcile.Reconciler
	Pipeline   *transaction.Pipeline
	Elections  election.Service
	Content    content.Store
	// Account is the address transactions are sent from and actions are
	// recorded for when a request names none
	Account        string
	Logger         *slog.Logger
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	TracerProvider trace.TracerProvider
	Now            func() time.Time
	// Indexer polling used by WaitForIndexed
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	IndexTimeout    time.Duration
}

// Service serves one chain session. It is safe for concurrent use.
type Service struct {
	config     Config
	logger     *slog.Logger
	indexer    indexer.Indexer
	cache      *cache.Cache
	reconciler *reconcile.Reconciler
	pipeline   *transaction.Pipeline
	now        func() time.Time
	metrics    struct {
		operations *prometheus.CounterVec
		failures   *prometheus.CounterVec
	}
}

// View is a reconciled proposal with its resolved status
type View struct {
	Proposal *proposal.Proposal `json:"proposal"`
	Status   proposal.Status    `json:"status"`
	// Indexed is false while only the locally cached copy exists
	Indexed bool `json:"indexed"`
}

// Page is one page of reconciled proposals
type Page struct {
	Items   []*View `json:"items"`
	Page    int     `json:"page"`
	Count   int     `json:"count"`
	HasMore bool    `json:"hasMore"`
}

func New(cfg Config) (*Service, error) {
	if cfg.Indexer == nil {
		return nil, ErrIndexerRequired
	}
	if cfg.Cache == nil {
		return nil, ErrCacheRequired
	}
	if cfg.Pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = DefaultMaxPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = DefaultIndexTimeout
	}
	cfg.Account = proposal.NormalizeAddress(cfg.Account)
	s := &Service{
		config:     cfg,
		logger:     cfg.Logger,
		indexer:    cfg.Indexer,
		cache:      cfg.Cache,
		reconciler: cfg.Reconciler,
		pipeline:   cfg.Pipeline,
		now:        cfg.Now,
	}
	if s.reconciler == nil {
		r, err := reconcile.New(reconcile.ReconcilerConfig{
			Cache:          cfg.Cache,
			Logger:         cfg.Logger,
			PromRegistry:   cfg.PromRegistry,
			TracerProvider: cfg.TracerProvider,
		})
		if err != nil {
			return nil, err
		}
		s.reconciler = r
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.operations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daogov_governance_operations_total",
			Help: "governance operations started, by operation and kind",
		},
		[]string{"operation", "kind"},
	)
	s.metrics.failures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daogov_governance_operation_errors_total",
			Help: "governance operations rejected before a job or sequence started",
		},
		[]string{"operation"},
	)
	return s, nil
}

// ChainID returns the chain the service is bound to
func (s *Service) ChainID() uint64 {
	return s.config.ChainID
}

// Account returns the default acting address
func (s *Service) Account() string {
	return s.config.Account
}

func (s *Service) view(p *proposal.Proposal, indexed bool) *View {
	return &View{
		Proposal: p,
		Status:   proposal.ResolveStatus(p, s.now()),
		Indexed:  indexed,
	}
}

// actor returns the address to act as
func (s *Service) actor(addr string) (string, error) {
	if addr = proposal.NormalizeAddress(addr); addr != "" {
		return addr, nil
	}
	if s.config.Account == "" {
		return "", ErrAccountRequired
	}
	return s.config.Account, nil
}

// normalizeID binds the id to the session chain and puts it in canonical
// form
func (s *Service) normalizeID(id proposal.ID) (proposal.ID, error) {
	if id.ChainID == 0 {
		id.ChainID = s.config.ChainID
	}
	if id.ChainID != s.config.ChainID {
		return id, fmt.Errorf(
			"%w: proposal is on chain %d, not %d",
			ErrInvalidRequest,
			id.ChainID,
			s.config.ChainID,
		)
	}
	if proposal.NormalizeAddress(id.PluginAddress) == "" {
		return id, fmt.Errorf("%w: plugin address required", ErrInvalidRequest)
	}
	number, err := id.Number()
	if err != nil {
		return id, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	// Rebuilt so that 0x01 and 0x1 share one cache key
	return proposal.NewID(id.ChainID, id.PluginAddress, number), nil
}

func (s *Service) rejected(operation string, err error) error {
	s.metrics.failures.WithLabelValues(operation).Inc()
	return err
}
