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

package transaction

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const subscriberQueueSize = 16

// Job is a single transaction moving through the pipeline. Phases of a job
// never interleave: at most one run is in flight.
type Job struct {
	id          string
	pipeline    *Pipeline
	req         Request
	ctx         context.Context
	successOnce sync.Once

	mu        sync.Mutex
	state     State
	busy      bool
	estimate  uint64
	changed   chan struct{}
	subs      map[int]chan State
	lastSubID int
}

func (j *Job) ID() string {
	return j.id
}

// State returns the current snapshot
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Subscribe returns a channel receiving every state change of the current
// run. The channel is closed when the run settles or on Unsubscribe. A slow
// reader misses intermediate snapshots but State always has the latest.
func (j *Job) Subscribe() (int, <-chan State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan State, subscriberQueueSize)
	ch <- j.state
	if !j.busy {
		close(ch)
		return 0, ch
	}
	j.lastSubID++
	j.subs[j.lastSubID] = ch
	return j.lastSubID, ch
}

func (j *Job) Unsubscribe(id int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ch, ok := j.subs[id]; ok {
		delete(j.subs, id)
		close(ch)
	}
}

// Wait blocks until the current run settles or ctx ends
func (j *Job) Wait(ctx context.Context) (State, error) {
	for {
		j.mu.Lock()
		s := j.state
		busy := j.busy
		changed := j.changed
		j.mu.Unlock()
		if !busy && s.Settled() {
			return s, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// Retry performs the recovery action of the current error state
func (j *Job) Retry() error {
	switch j.State().Recovery {
	case RecoveryProceedWithoutEstimate:
		return j.ProceedWithoutEstimate()
	case RecoveryResend:
		return j.Resend()
	case RecoveryRetry:
		return j.recover(RecoveryRetry, PhaseEstimating, false)
	default:
		return ErrNothingToRetry
	}
}

// ProceedWithoutEstimate continues a job halted on a failed gas estimate,
// leaving the gas limit to the chain client
func (j *Job) ProceedWithoutEstimate() error {
	return j.recover(RecoveryProceedWithoutEstimate, PhaseAwaitingSignature, true)
}

// Resend asks for a signature again after a signing or broadcast failure
func (j *Job) Resend() error {
	return j.recover(RecoveryResend, PhaseAwaitingSignature, false)
}

func (j *Job) recover(action RecoveryAction, from Phase, dropEstimate bool) error {
	j.mu.Lock()
	if j.busy {
		j.mu.Unlock()
		return ErrJobBusy
	}
	if j.state.Recovery != action {
		j.mu.Unlock()
		return ErrInvalidRecovery
	}
	if dropEstimate {
		j.estimate = 0
	}
	j.mu.Unlock()
	return j.start(from)
}

func (j *Job) start(from Phase) error {
	j.mu.Lock()
	if j.busy {
		j.mu.Unlock()
		return ErrJobBusy
	}
	j.busy = true
	j.mu.Unlock()
	j.pipeline.wg.Add(1)
	j.pipeline.metrics.jobsRunning.Inc()
	go j.run(from)
	return nil
}

func (j *Job) run(from Phase) {
	p := j.pipeline
	defer p.wg.Done()
	defer p.metrics.jobsRunning.Dec()
	ctx, span := p.tracer.Start(
		j.ctx,
		"transaction.Job",
		trace.WithAttributes(
			attribute.String("job.id", j.id),
			attribute.String("job.name", j.req.Name),
			attribute.String("job.start_phase", string(from)),
		),
	)
	defer span.End()
	final := j.runPhases(ctx, span, from)
	if final.Error != nil {
		span.RecordError(final.Error)
		span.SetStatus(codes.Error, final.ErrorMessage)
	}
	// Observers of the succeeded state can rely on OnSuccess having run
	if final.Phase == PhaseSucceeded && j.req.OnSuccess != nil {
		j.successOnce.Do(func() {
			j.req.OnSuccess(ctx, final.Receipt)
		})
	}
	j.settle(final)
}

// runPhases executes the phases starting at from and returns the state the
// run settles with
func (j *Job) runPhases(ctx context.Context, span trace.Span, from Phase) State {
	p := j.pipeline
	tx := j.req.Tx
	if from == PhaseEstimating {
		s := j.update(func(s *State) {
			s.Phase = PhaseEstimating
			s.clearError()
			s.TxHash = ""
			s.Receipt = nil
			s.LongWait = false
			s.Gas = 0
		})
		span.AddEvent(string(PhaseEstimating))
		gas, err := p.client.EstimateGas(ctx, tx)
		if err != nil {
			p.logger.Warn(
				"gas estimation failed",
				"component", "transaction",
				"job", j.id,
				"name", j.req.Name,
				"error", err,
			)
			s.setError(PhaseEstimating, ErrorKindEstimation, RecoveryProceedWithoutEstimate, err)
			return s
		}
		j.mu.Lock()
		j.estimate = gas
		j.mu.Unlock()
	}
	j.mu.Lock()
	tx.Gas = j.estimate
	j.mu.Unlock()

	j.update(func(s *State) {
		s.Phase = PhaseAwaitingSignature
		s.clearError()
		s.Gas = tx.Gas
		s.TxHash = ""
		s.Receipt = nil
		s.LongWait = false
	})
	span.AddEvent(string(PhaseAwaitingSignature))
	hash, err := p.client.SendTransaction(ctx, tx)
	if err != nil {
		p.logger.Warn(
			"transaction not sent",
			"component", "transaction",
			"job", j.id,
			"name", j.req.Name,
			"error", err,
		)
		s := j.State()
		s.Phase = PhaseFailed
		s.setError(PhaseAwaitingSignature, ErrorKindSignature, RecoveryResend, err)
		return s
	}

	j.update(func(s *State) {
		s.Phase = PhaseAwaitingConfirmation
		s.TxHash = hash
	})
	span.AddEvent(
		string(PhaseAwaitingConfirmation),
		trace.WithAttributes(attribute.String("tx.hash", hash)),
	)
	sentAt := time.Now()
	longWait := time.AfterFunc(p.config.LongWaitThreshold, func() {
		j.update(func(s *State) {
			if s.Phase == PhaseAwaitingConfirmation && s.TxHash == hash {
				s.LongWait = true
			}
		})
	})
	receipt, err := p.client.WaitForReceipt(ctx, hash, p.config.Confirmations)
	longWait.Stop()
	s := j.State()
	s.Receipt = receipt
	if err != nil {
		p.logger.Warn(
			"transaction not confirmed",
			"component", "transaction",
			"job", j.id,
			"name", j.req.Name,
			"tx_hash", hash,
			"error", err,
		)
		s.Phase = PhaseFailed
		s.setError(PhaseAwaitingConfirmation, ErrorKindConfirmation, RecoveryRetry, err)
		return s
	}
	p.metrics.confirmSeconds.Observe(time.Since(sentAt).Seconds())
	p.logger.Info(
		"transaction confirmed",
		"component", "transaction",
		"job", j.id,
		"name", j.req.Name,
		"tx_hash", hash,
		"block", receipt.BlockNumber,
	)
	s.Phase = PhaseSucceeded
	s.clearError()
	return s
}

// update applies fn to the state while the run is in flight and returns the
// new snapshot
func (j *Job) update(fn func(*State)) State {
	j.mu.Lock()
	prev := j.state
	fn(&j.state)
	j.state.UpdatedAt = time.Now()
	s := j.state
	j.notifyLocked()
	j.mu.Unlock()
	if prev.Phase != s.Phase {
		j.pipeline.metrics.phaseTransitions.WithLabelValues(string(s.Phase)).Inc()
	}
	j.pipeline.publish(s)
	return s
}

// settle stores the final state of a run, releases the busy flag and closes
// all subscriptions
func (j *Job) settle(final State) {
	j.mu.Lock()
	prev := j.state
	final.UpdatedAt = time.Now()
	final.LongWait = final.LongWait || prev.LongWait
	j.state = final
	j.busy = false
	j.notifyLocked()
	for id, ch := range j.subs {
		delete(j.subs, id)
		close(ch)
	}
	j.mu.Unlock()
	if prev.Phase != final.Phase {
		j.pipeline.metrics.phaseTransitions.WithLabelValues(string(final.Phase)).Inc()
	}
	j.pipeline.publish(final)
}

func (j *Job) notifyLocked() {
	for _, ch := range j.subs {
		select {
		case ch <- j.state:
		default:
		}
	}
	close(j.changed)
	j.changed = make(chan struct{})
}
