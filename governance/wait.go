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

package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blinklabs-io/daogov/proposal"
)

var errNotIndexed = errors.New("not indexed yet")

// Condition reports whether the indexer's record reflects an action. The
// record is nil while the proposal is not indexed.
type Condition func(remote *proposal.Proposal) bool

// Indexed holds once the indexer knows the proposal
func Indexed() Condition {
	return func(remote *proposal.Proposal) bool {
		return remote != nil
	}
}

// VoteIndexed holds once the indexer reports a vote or approval by voter
func VoteIndexed(voter string) Condition {
	return func(remote *proposal.Proposal) bool {
		if remote == nil {
			return false
		}
		var votes []proposal.Vote
		switch t := remote.Tally.(type) {
		case *proposal.MultisigTally:
			votes = t.Approvals
		case *proposal.TokenVotingTally:
			votes = t.Voters
		case *proposal.GaslessTally:
			votes = append(append(votes, t.Voting.Voters...), t.Approvers...)
		}
		for _, v := range votes {
			if proposal.SameAddress(v.Voter, voter) {
				return true
			}
		}
		return false
	}
}

// ExecutionIndexed holds once the indexer reports the proposal executed
func ExecutionIndexed() Condition {
	return func(remote *proposal.Proposal) bool {
		return remote != nil && remote.Executed
	}
}

// IndexWait is a running WaitForIndexed poll
type IndexWait struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *View
	err    error
}

// Cancel stops the poll. Done is closed once it has stopped.
func (w *IndexWait) Cancel() {
	w.cancel()
}

func (w *IndexWait) Done() <-chan struct{} {
	return w.done
}

// Result returns the reconciled proposal once Done is closed
func (w *IndexWait) Result() (*View, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.err
}

// Wait blocks until the poll ends or ctx ends. Ending ctx does not cancel
// the poll.
func (w *IndexWait) Wait(ctx context.Context) (*View, error) {
	select {
	case <-w.done:
		return w.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForIndexed polls the indexer with exponential backoff until cond
// holds for the proposal, then reconciles it against the cache. The poll
// stops when ctx ends, when Cancel is called on the returned handle, or
// after the configured index timeout.
func (s *Service) WaitForIndexed(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
	cond Condition,
) (*IndexWait, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, proposal.ErrUnknownKind, kind)
	}
	id, err := s.normalizeID(id)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		cond = Indexed()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	w := &IndexWait{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		defer cancel()
		v, err := s.pollIndexed(pollCtx, kind, id, cond)
		w.mu.Lock()
		w.result, w.err = v, err
		w.mu.Unlock()
	}()
	return w, nil
}

func (s *Service) pollIndexed(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
	cond Condition,
) (*View, error) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.config.PollInterval),
		backoff.WithMaxInterval(s.config.MaxPollInterval),
		backoff.WithMaxElapsedTime(s.config.IndexTimeout),
	)
	op := func() (*proposal.Proposal, error) {
		remote, err := s.indexer.Proposal(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if !cond(remote) {
			return nil, errNotIndexed
		}
		return remote, nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debug(
			"waiting for indexer",
			"component", "governance",
			"proposal", id.String(),
			"reason", err,
			"retry_in", next,
		)
	}
	remote, err := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
	if err != nil {
		if errors.Is(err, errNotIndexed) {
			return nil, fmt.Errorf("%w: %s", ErrIndexTimeout, id)
		}
		return nil, err
	}
	merged, err := s.reconciler.Proposal(ctx, kind, id, remote)
	if err != nil {
		return nil, fmt.Errorf("reconcile proposal %s: %w", id, err)
	}
	if merged == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.view(merged, remote != nil), nil
}
