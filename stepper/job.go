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

package stepper

import (
	"context"
	"errors"
	"sync"

	"github.com/blinklabs-io/daogov/transaction"
)

// SubmitFunc starts the transaction job backing a JobStep
type SubmitFunc func(ctx context.Context, in Outputs) (*transaction.Job, error)

// JobStep runs a transaction job as a step. Its output is the final
// transaction.State. On retry the existing job is resumed with its own
// recovery action instead of submitting a new transaction.
type JobStep struct {
	id     string
	submit SubmitFunc

	mu  sync.Mutex
	job *transaction.Job
}

func NewJobStep(id string, submit SubmitFunc) *JobStep {
	return &JobStep{
		id:     id,
		submit: submit,
	}
}

func (s *JobStep) ID() string {
	return s.id
}

// Job returns the backing job, or nil before the first run
func (s *JobStep) Job() *transaction.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *JobStep) JobID() string {
	if job := s.Job(); job != nil {
		return job.ID()
	}
	return ""
}

func (s *JobStep) Run(ctx context.Context, in Outputs) (any, error) {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		var err error
		job, err = s.submit(ctx, in)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.job = job
		s.mu.Unlock()
	} else if cur := job.State(); cur.Settled() && cur.Phase != transaction.PhaseSucceeded {
		// A job that is mid-run is only waited on
		if err := job.Retry(); err != nil && !errors.Is(err, transaction.ErrJobBusy) {
			return nil, err
		}
	}
	state, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if state.Phase != transaction.PhaseSucceeded {
		if jobErr := state.Err(); jobErr != nil {
			return nil, jobErr
		}
		return nil, errors.New("transaction job did not succeed")
	}
	return state, nil
}

// Job returns the transaction job with the given id backing one of the
// sequence's steps
func (s *Sequence) Job(id string) (*transaction.Job, bool) {
	for _, step := range s.steps {
		js, ok := step.(*JobStep)
		if !ok {
			continue
		}
		if job := js.Job(); job != nil && job.ID() == id {
			return job, true
		}
	}
	return nil, false
}
