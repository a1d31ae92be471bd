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

// Package reconcile merges the optimistic action cache with the records
// served by the indexer.
package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/proposal"
)

const tracerName = "github.com/blinklabs-io/daogov/reconcile"

var ErrCacheRequired = errors.New("reconciler requires a cache")

type ReconcilerConfig struct {
	Cache          *cache.Cache
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	TracerProvider trace.TracerProvider
}

// Reconciler produces the proposal a user should see: the indexer's record
// with the user's own not-yet-indexed actions applied on top
type Reconciler struct {
	cache   *cache.Cache
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics struct {
		reconciled *prometheus.CounterVec
	}
}

func New(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Cache == nil {
		return nil, ErrCacheRequired
	}
	r := &Reconciler{
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	r.tracer = tp.Tracer(tracerName)
	promautoFactory := promauto.With(cfg.PromRegistry)
	r.metrics.reconciled = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daogov_reconcile_proposals_total",
			Help: "proposals reconciled, by source of the base record",
		},
		[]string{"source"},
	)
	return r, nil
}

// Proposal reconciles a single proposal. With a remote record, cached
// actions the indexer already reflects are deleted and the rest are applied
// on top of it. Without one, the optimistic proposal from the cache is
// returned with its actions applied, or nil when nothing is cached.
func (r *Reconciler) Proposal(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
	remote *proposal.Proposal,
) (*proposal.Proposal, error) {
	ctx, span := r.tracer.Start(
		ctx,
		"reconcile.Proposal",
		trace.WithAttributes(
			attribute.String("proposal.id", id.String()),
			attribute.String("proposal.kind", string(kind)),
			attribute.Bool("remote", remote != nil),
		),
	)
	defer span.End()
	ret, err := r.proposal(ctx, kind, id, remote)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ret, nil
}

func (r *Reconciler) proposal(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
	remote *proposal.Proposal,
) (*proposal.Proposal, error) {
	if remote != nil {
		pending, err := r.cache.Reconcile(ctx, id, kind, remote)
		if err != nil {
			return nil, err
		}
		r.metrics.reconciled.WithLabelValues("remote").Inc()
		return cache.Apply(remote, pending), nil
	}
	l, err := r.cache.Get(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	base := l.Proposal()
	if base == nil {
		r.metrics.reconciled.WithLabelValues("missing").Inc()
		return nil, nil
	}
	r.metrics.reconciled.WithLabelValues("cache").Inc()
	r.logger.Debug(
		"serving optimistic proposal",
		"component", "reconcile",
		"proposal", id.String(),
		"pending", len(l.Entries),
	)
	return cache.Apply(base, l), nil
}

// Page reconciles one page of indexer results for a plugin. Cached
// optimistic proposals not yet present in the page are prepended, newest
// first. Proposals present in the page lose their optimistic copy.
func (r *Reconciler) Page(
	ctx context.Context,
	chainID uint64,
	pluginAddress string,
	remote []*proposal.Proposal,
) ([]*proposal.Proposal, error) {
	ctx, span := r.tracer.Start(
		ctx,
		"reconcile.Page",
		trace.WithAttributes(
			attribute.Int64("chain.id", int64(chainID)),
			attribute.String("plugin.address", pluginAddress),
			attribute.Int("page.size", len(remote)),
		),
	)
	defer span.End()
	ret, err := r.page(ctx, chainID, pluginAddress, remote)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ret, nil
}

func (r *Reconciler) page(
	ctx context.Context,
	chainID uint64,
	pluginAddress string,
	remote []*proposal.Proposal,
) ([]*proposal.Proposal, error) {
	inPage := make(map[cache.Key]struct{}, len(remote))
	merged := make([]*proposal.Proposal, 0, len(remote))
	for _, p := range remote {
		if p == nil {
			continue
		}
		inPage[cache.KeyFor(p.ID)] = struct{}{}
		tmp, err := r.proposal(ctx, p.Kind, p.ID, p)
		if err != nil {
			return nil, err
		}
		merged = append(merged, tmp)
	}
	logs, err := r.cache.ListByPluginAddress(ctx, chainID, pluginAddress)
	if err != nil {
		return nil, err
	}
	type optimistic struct {
		proposal *proposal.Proposal
		log      cache.Log
	}
	var pending []optimistic
	for _, l := range logs {
		if _, ok := inPage[l.Key()]; ok {
			continue
		}
		base := l.Proposal()
		if base == nil {
			continue
		}
		pending = append(pending, optimistic{proposal: base, log: l})
	}
	slices.SortStableFunc(pending, func(a, b optimistic) int {
		return b.proposal.CreationDate.Compare(a.proposal.CreationDate)
	})
	ret := make([]*proposal.Proposal, 0, len(pending)+len(merged))
	for _, o := range pending {
		ret = append(ret, cache.Apply(o.proposal, o.log))
	}
	if len(pending) > 0 {
		r.metrics.reconciled.WithLabelValues("cache").Add(float64(len(pending)))
	}
	return append(ret, merged...), nil
}
