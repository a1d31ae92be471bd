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

package api

import (
	"sync"
	"time"

	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

const DefaultHandleRetention = time.Hour

// createdBy identifies the proposal a creation sequence produces
type createdBy struct {
	kind          proposal.Kind
	pluginAddress string
}

type sequenceHandle struct {
	seq     *stepper.Sequence
	created *createdBy
}

// registry keeps the jobs and sequences started through the API so they can
// be observed and retried by id. Settled handles are dropped once they have
// not changed for the retention period.
type registry struct {
	retention time.Duration
	now       func() time.Time

	mu        sync.Mutex
	jobs      map[string]*transaction.Job
	sequences map[string]*sequenceHandle
}

func newRegistry(retention time.Duration) *registry {
	return &registry{
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*transaction.Job),
		sequences: make(map[string]*sequenceHandle),
	}
}

func (r *registry) addJob(job *transaction.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.jobs[job.ID()] = job
}

func (r *registry) addSequence(seq *stepper.Sequence, created *createdBy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.sequences[seq.ID()] = &sequenceHandle{seq: seq, created: created}
}

// job returns a registered job, including jobs backing sequence steps
func (r *registry) job(id string) (*transaction.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		return job, true
	}
	for _, h := range r.sequences {
		if job, ok := h.seq.Job(id); ok {
			return job, true
		}
	}
	return nil, false
}

func (r *registry) sequence(id string) (*sequenceHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.sequences[id]
	return h, ok
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs) + len(r.sequences)
}

func (r *registry) pruneLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, job := range r.jobs {
		s := job.State()
		if s.Settled() && s.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
	for id, h := range r.sequences {
		snap := h.seq.Snapshot()
		if snap.GlobalState != stepper.GlobalLoading && snap.UpdatedAt.Before(cutoff) {
			delete(r.sequences, id)
		}
	}
}
