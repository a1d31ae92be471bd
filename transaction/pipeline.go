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

// Package transaction drives contract calls through gas estimation,
// signature and confirmation.
package transaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/event"
)

const (
	StateEventType event.EventType = "transaction.state"

	DefaultConfirmations     = 2
	DefaultLongWaitThreshold = 20 * time.Second

	tracerName = "github.com/blinklabs-io/daogov/transaction"
)

var ErrClientRequired = errors.New("transaction pipeline requires a chain client")

// StateEvent is published on every job state change
type StateEvent struct {
	State State
}

// Request describes a contract call to submit
type Request struct {
	// Name labels the job in logs, metrics and events
	Name string
	Tx   chain.Tx
	// OnSuccess runs once, after the transaction is confirmed
	OnSuccess func(ctx context.Context, receipt *chain.Receipt)
}

type PipelineConfig struct {
	Client            chain.Client
	Logger            *slog.Logger
	EventBus          *event.EventBus
	PromRegistry      prometheus.Registerer
	TracerProvider    trace.TracerProvider
	Confirmations     uint64
	LongWaitThreshold time.Duration
}

// Pipeline submits transaction jobs against a chain client
type Pipeline struct {
	config  PipelineConfig
	client  chain.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	wg      sync.WaitGroup
	metrics struct {
		phaseTransitions *prometheus.CounterVec
		jobsRunning      prometheus.Gauge
		confirmSeconds   prometheus.Histogram
	}
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, ErrClientRequired
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = DefaultConfirmations
	}
	if cfg.LongWaitThreshold <= 0 {
		cfg.LongWaitThreshold = DefaultLongWaitThreshold
	}
	p := &Pipeline{
		config: cfg,
		client: cfg.Client,
		logger: cfg.Logger,
	}
	if p.logger == nil {
		// Create logger to throw away logs
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	p.tracer = tp.Tracer(tracerName)
	promautoFactory := promauto.With(cfg.PromRegistry)
	p.metrics.phaseTransitions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daogov_transaction_phase_transitions_total",
			Help: "transaction job phase transitions",
		},
		[]string{"phase"},
	)
	p.metrics.jobsRunning = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "daogov_transaction_jobs_running",
		Help: "transaction jobs currently running",
	})
	p.metrics.confirmSeconds = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "daogov_transaction_confirmation_seconds",
			Help:    "time from broadcast to confirmation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	return p, nil
}

// Submit creates a job for the request and starts it at gas estimation. The
// job keeps running after ctx is canceled; only its values are carried over.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Job, error) {
	j := &Job{
		id:       uuid.NewString(),
		pipeline: p,
		req:      req,
		ctx:      context.WithoutCancel(ctx),
		changed:  make(chan struct{}),
		subs:     make(map[int]chan State),
	}
	j.state = State{
		JobID:     j.id,
		Name:      req.Name,
		Phase:     PhaseIdle,
		UpdatedAt: time.Now(),
	}
	if err := j.start(PhaseEstimating); err != nil {
		return nil, err
	}
	return j, nil
}

// Shutdown waits for running jobs to settle or for ctx to end
func (p *Pipeline) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) publish(s State) {
	if p.config.EventBus == nil {
		return
	}
	p.config.EventBus.PublishAsync(
		StateEventType,
		event.NewEvent(StateEventType, StateEvent{State: s}),
	)
}
