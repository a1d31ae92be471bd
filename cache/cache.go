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

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/daogov/event"
	"github.com/blinklabs-io/daogov/proposal"
)

const UpdateEventType event.EventType = "cache.update"

// UpdateEvent is published whenever the action log of a proposal changes
type UpdateEvent struct {
	Key     Key
	Entries int
	Removed bool
}

var ErrStoreRequired = errors.New("cache store is required")

var errUnchanged = errors.New("log unchanged")

// Store persists action logs. Implementations only need to be safe for
// concurrent use across different keys: the Cache serializes updates to
// the same key.
type Store interface {
	// Get returns the log for a key, or nil when nothing is cached
	Get(ctx context.Context, key Key) (*Log, error)
	Set(ctx context.Context, log Log) error
	Remove(ctx context.Context, key Key) error
	// ListByPluginAddress returns every log cached for a plugin on a chain
	ListByPluginAddress(
		ctx context.Context,
		chainID uint64,
		pluginAddress string,
	) ([]Log, error)
}

type CacheConfig struct {
	Store        Store
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Now          func() time.Time
}

// Cache holds the optimistic action logs of locally submitted transactions
type Cache struct {
	store    Store
	logger   *slog.Logger
	eventBus *event.EventBus
	now      func() time.Time
	locks    keyLocks
	metrics  struct {
		entriesRecorded  *prometheus.CounterVec
		entriesCompacted prometheus.Counter
		updateErrors     prometheus.Counter
	}
}

func New(cfg CacheConfig) (*Cache, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	c := &Cache{
		store:    cfg.Store,
		logger:   cfg.Logger,
		eventBus: cfg.EventBus,
		now:      cfg.Now,
		locks:    keyLocks{locks: make(map[Key]*keyLock)},
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.now == nil {
		c.now = time.Now
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	c.metrics.entriesRecorded = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daogov_cache_entries_recorded_total",
			Help: "optimistic action entries recorded",
		},
		[]string{"kind"},
	)
	c.metrics.entriesCompacted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "daogov_cache_entries_compacted_total",
			Help: "optimistic action entries dropped after being indexed",
		},
	)
	c.metrics.updateErrors = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "daogov_cache_update_errors_total",
			Help: "failed cache updates",
		},
	)
	return c, nil
}

// Get returns the action log for a proposal. Missing logs are returned
// empty.
func (c *Cache) Get(ctx context.Context, id proposal.ID, kind proposal.Kind) (Log, error) {
	l, err := c.store.Get(ctx, KeyFor(id))
	if err != nil {
		return Log{}, fmt.Errorf("get cache entry %s: %w", id, err)
	}
	if l == nil {
		return NewLog(id, kind), nil
	}
	return *l, nil
}

// ListByPluginAddress returns every non-empty log for a plugin
func (c *Cache) ListByPluginAddress(
	ctx context.Context,
	chainID uint64,
	pluginAddress string,
) ([]Log, error) {
	logs, err := c.store.ListByPluginAddress(
		ctx,
		chainID,
		proposal.NormalizeAddress(pluginAddress),
	)
	if err != nil {
		return nil, fmt.Errorf("list cache entries for %s: %w", pluginAddress, err)
	}
	return logs, nil
}

// Update runs fn as an atomic read-modify-write on the log of a proposal.
// Concurrent updates to the same proposal are serialized. A log left empty
// by fn is removed from the store. fn returns errUnchanged to skip the write.
func (c *Cache) Update(
	ctx context.Context,
	id proposal.ID,
	kind proposal.Kind,
	fn func(Log) (Log, error),
) (Log, error) {
	key := KeyFor(id)
	unlock := c.locks.lock(key)
	defer unlock()
	current, err := c.Get(ctx, id, kind)
	if err != nil {
		c.metrics.updateErrors.Inc()
		return Log{}, err
	}
	next, err := fn(current)
	if errors.Is(err, errUnchanged) {
		return current, nil
	}
	if err != nil {
		return current, err
	}
	if next.Empty() {
		if current.Empty() {
			return next, nil
		}
		if err := c.store.Remove(ctx, key); err != nil {
			c.metrics.updateErrors.Inc()
			return current, fmt.Errorf("remove cache entry %s: %w", id, err)
		}
	} else if err := c.store.Set(ctx, next); err != nil {
		c.metrics.updateErrors.Inc()
		return current, fmt.Errorf("store cache entry %s: %w", id, err)
	}
	c.publish(key, next)
	return next, nil
}

// Record appends an optimistic action to the log of a proposal
func (c *Cache) Record(
	ctx context.Context,
	id proposal.ID,
	kind proposal.Kind,
	entry Entry,
) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = c.now()
	}
	_, err := c.Update(ctx, id, kind, func(l Log) (Log, error) {
		return l.Append(entry), nil
	})
	if err != nil {
		return err
	}
	c.metrics.entriesRecorded.WithLabelValues(string(entry.Kind)).Inc()
	c.logger.Debug(
		"recorded optimistic action",
		"component", "cache",
		"proposal", id.String(),
		"kind", entry.Kind,
		"tx_hash", entry.TxHash,
	)
	return nil
}

// Reconcile compacts the log of a proposal against the remote record and
// returns the entries still pending
func (c *Cache) Reconcile(
	ctx context.Context,
	id proposal.ID,
	kind proposal.Kind,
	remote *proposal.Proposal,
) (Log, error) {
	var dropped []Entry
	l, err := c.Update(ctx, id, kind, func(l Log) (Log, error) {
		var kept Log
		kept, dropped = Compact(l, remote)
		if len(dropped) == 0 {
			return l, errUnchanged
		}
		return kept, nil
	})
	if err != nil {
		return Log{}, err
	}
	if len(dropped) > 0 {
		c.metrics.entriesCompacted.Add(float64(len(dropped)))
		c.logger.Debug(
			"compacted optimistic actions",
			"component", "cache",
			"proposal", id.String(),
			"dropped", len(dropped),
			"pending", len(l.Entries),
		)
	}
	return l, nil
}

func (c *Cache) publish(key Key, l Log) {
	if c.eventBus == nil {
		return
	}
	c.eventBus.PublishAsync(
		UpdateEventType,
		event.NewEvent(
			UpdateEventType,
			UpdateEvent{Key: key, Entries: len(l.Entries), Removed: l.Empty()},
		),
	)
}

// keyLocks hands out a mutex per key. Entries are reference counted and
// dropped once nobody holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyLocks) lock(key Key) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
