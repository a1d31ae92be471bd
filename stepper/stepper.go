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

// Package stepper runs an ordered list of asynchronous steps with per-step
// status and resumable retry.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blinklabs-io/daogov/event"
)

const (
	SnapshotEventType event.EventType = "stepper.snapshot"

	subscriberQueueSize = 16
)

var (
	ErrSequenceBusy   = errors.New("sequence is already running")
	ErrNothingToRetry = errors.New("sequence has no failed step")
	ErrAlreadyDone    = errors.New("sequence already completed")
)

// Status of a single step
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// GlobalState summarizes a whole sequence
type GlobalState string

const (
	GlobalIdle    GlobalState = "idle"
	GlobalLoading GlobalState = "loading"
	GlobalSuccess GlobalState = "success"
	GlobalError   GlobalState = "error"
)

// Outputs maps step IDs to the values returned by successful steps
type Outputs map[string]any

// OutputAs returns the output of step id converted to T
func OutputAs[T any](in Outputs, id string) (T, error) {
	var zero T
	v, ok := in[id]
	if !ok {
		return zero, fmt.Errorf("no output for step %q", id)
	}
	ret, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("output of step %q has type %T", id, v)
	}
	return ret, nil
}

// Step is a unit of work in a sequence. Run receives the outputs of all
// steps that have succeeded so far.
type Step interface {
	ID() string
	Run(ctx context.Context, in Outputs) (any, error)
}

// StepFunc is the body of a step created with NewStep
type StepFunc func(ctx context.Context, in Outputs) (any, error)

type funcStep struct {
	id string
	fn StepFunc
}

func (f funcStep) ID() string {
	return f.id
}

func (f funcStep) Run(ctx context.Context, in Outputs) (any, error) {
	return f.fn(ctx, in)
}

// NewStep wraps fn as a step
func NewStep(id string, fn StepFunc) Step {
	return funcStep{id: id, fn: fn}
}

// StepError is returned when a step rejects
type StepError struct {
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %s", e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type StepSnapshot struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	// JobID is set for steps backed by a transaction job
	JobID string `json:"jobId,omitempty"`
}

// Snapshot is the observable state of a sequence
type Snapshot struct {
	SequenceID  string         `json:"sequenceId"`
	Name        string         `json:"name,omitempty"`
	GlobalState GlobalState    `json:"globalState"`
	Steps       []StepSnapshot `json:"steps"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Current returns the first step that is not yet successful
func (s Snapshot) Current() (StepSnapshot, bool) {
	for _, step := range s.Steps {
		if step.Status != StatusSuccess {
			return step, true
		}
	}
	return StepSnapshot{}, false
}

// SnapshotEvent is published on every sequence change
type SnapshotEvent struct {
	Snapshot Snapshot
}

type SequenceConfig struct {
	Name     string
	Logger   *slog.Logger
	EventBus *event.EventBus
}

type jobStep interface {
	JobID() string
}

// Sequence executes its steps strictly in order. The first rejecting step
// halts the sequence; later steps stay waiting until Retry.
type Sequence struct {
	id     string
	config SequenceConfig
	logger *slog.Logger
	steps  []Step
	wg     sync.WaitGroup

	mu        sync.Mutex
	global    GlobalState
	status    []Status
	errs      []error
	outputs   Outputs
	running   bool
	updatedAt time.Time
	changed   chan struct{}
	subs      map[int]chan Snapshot
	lastSubID int
}

func New(cfg SequenceConfig, steps ...Step) *Sequence {
	s := &Sequence{
		id:        uuid.NewString(),
		config:    cfg,
		logger:    cfg.Logger,
		steps:     steps,
		global:    GlobalIdle,
		status:    make([]Status, len(steps)),
		errs:      make([]error, len(steps)),
		outputs:   make(Outputs),
		updatedAt: time.Now(),
		changed:   make(chan struct{}),
		subs:      make(map[int]chan Snapshot),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	for i := range s.status {
		s.status[i] = StatusWaiting
	}
	return s
}

func (s *Sequence) ID() string {
	return s.id
}

// Run executes the sequence from its first unfinished step and blocks until
// it succeeds or a step rejects
func (s *Sequence) Run(ctx context.Context) error {
	if err := s.begin(false); err != nil {
		return err
	}
	return s.run(ctx)
}

// Retry resumes a failed sequence at the first step in error or waiting.
// Successful steps are never invoked again.
func (s *Sequence) Retry(ctx context.Context) error {
	if err := s.begin(true); err != nil {
		return err
	}
	return s.run(ctx)
}

// Start runs the sequence in the background. The run is detached from the
// cancellation of ctx.
func (s *Sequence) Start(ctx context.Context) error {
	return s.startAsync(ctx, false)
}

// StartRetry is the background form of Retry
func (s *Sequence) StartRetry(ctx context.Context) error {
	return s.startAsync(ctx, true)
}

func (s *Sequence) startAsync(ctx context.Context, retry bool) error {
	if err := s.begin(retry); err != nil {
		return err
	}
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(runCtx)
	}()
	return nil
}

func (s *Sequence) begin(retry bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSequenceBusy
	}
	switch s.global {
	case GlobalSuccess:
		return ErrAlreadyDone
	case GlobalError:
	default:
		if retry {
			return ErrNothingToRetry
		}
	}
	s.running = true
	return nil
}

func (s *Sequence) run(ctx context.Context) (err error) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.notifyLocked()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}()
	for i, step := range s.steps {
		s.mu.Lock()
		if s.status[i] == StatusSuccess {
			s.mu.Unlock()
			continue
		}
		s.status[i] = StatusLoading
		s.errs[i] = nil
		s.global = GlobalLoading
		in := make(Outputs, len(s.outputs))
		for k, v := range s.outputs {
			in[k] = v
		}
		s.changeLocked()
		s.mu.Unlock()
		s.logger.Debug(
			"running step",
			"component", "stepper",
			"sequence", s.id,
			"name", s.config.Name,
			"step", step.ID(),
		)
		out, stepErr := runStep(ctx, step, in)
		s.mu.Lock()
		if stepErr != nil {
			s.status[i] = StatusError
			s.errs[i] = stepErr
			s.global = GlobalError
			s.changeLocked()
			s.mu.Unlock()
			s.logger.Warn(
				"step failed",
				"component", "stepper",
				"sequence", s.id,
				"name", s.config.Name,
				"step", step.ID(),
				"error", stepErr,
			)
			return &StepError{StepID: step.ID(), Err: stepErr}
		}
		s.status[i] = StatusSuccess
		s.outputs[step.ID()] = out
		s.changeLocked()
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.global = GlobalSuccess
	s.changeLocked()
	s.mu.Unlock()
	s.logger.Info(
		"sequence complete",
		"component", "stepper",
		"sequence", s.id,
		"name", s.config.Name,
	)
	return nil
}

func runStep(ctx context.Context, step Step, in Outputs) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panic: %v", r)
		}
	}()
	return step.Run(ctx, in)
}

// Snapshot returns the current state of the sequence
func (s *Sequence) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sequence) snapshotLocked() Snapshot {
	ret := Snapshot{
		SequenceID:  s.id,
		Name:        s.config.Name,
		GlobalState: s.global,
		Steps:       make([]StepSnapshot, len(s.steps)),
		UpdatedAt:   s.updatedAt,
	}
	for i, step := range s.steps {
		ret.Steps[i] = StepSnapshot{
			ID:     step.ID(),
			Status: s.status[i],
		}
		if s.errs[i] != nil {
			ret.Steps[i].Error = s.errs[i].Error()
		}
		if js, ok := step.(jobStep); ok {
			ret.Steps[i].JobID = js.JobID()
		}
	}
	return ret
}

// Output returns the value produced by a successful step
func (s *Sequence) Output(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.outputs[id]
	return v, ok
}

// Err returns the error of the failed step, if any
func (s *Sequence) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, err := range s.errs {
		if err != nil {
			return &StepError{StepID: s.steps[i].ID(), Err: err}
		}
	}
	return nil
}

// Subscribe returns a channel receiving snapshots of the current run. The
// channel is closed when the run halts or completes, or on Unsubscribe.
func (s *Sequence) Subscribe() (int, <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, subscriberQueueSize)
	ch <- s.snapshotLocked()
	if !s.running {
		close(ch)
		return 0, ch
	}
	s.lastSubID++
	s.subs[s.lastSubID] = ch
	return s.lastSubID, ch
}

func (s *Sequence) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// Wait blocks until no run is in flight and the sequence is not idle, or
// until ctx ends
func (s *Sequence) Wait(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		snap := s.snapshotLocked()
		running := s.running
		changed := s.changed
		s.mu.Unlock()
		if !running && snap.GlobalState != GlobalIdle {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Shutdown waits for background runs started by Start or StartRetry
func (s *Sequence) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequence) changeLocked() {
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.notifyLocked()
	if s.config.EventBus != nil {
		s.config.EventBus.PublishAsync(
			SnapshotEventType,
			event.NewEvent(SnapshotEventType, SnapshotEvent{Snapshot: snap}),
		)
	}
}

func (s *Sequence) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
