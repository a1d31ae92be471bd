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
	"math/big"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/contracts"
	"github.com/blinklabs-io/daogov/election"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

// VoteRequest casts a token-voting ballot or a multisig / gasless tally
// approval
type VoteRequest struct {
	ID   proposal.ID
	Kind proposal.Kind
	// Voter defaults to the service account
	Voter string
	// Option and VotingPower apply to token-voting only. VotingPower may be
	// omitted when replacing a ballot whose weight is known.
	Option       proposal.VoteOption
	VotingPower  *big.Int
	TryExecution bool
}

type ExecutionRequest struct {
	ID       proposal.ID
	Kind     proposal.Kind
	Executor string
}

// GaslessVoteRequest casts an off-chain vote in the election backing a
// gasless proposal
type GaslessVoteRequest struct {
	ID         proposal.ID
	ElectionID string
	Voter      string
	Option     proposal.VoteOption
	// Signature is the voter's signature over the ballot
	Signature string
}

// Steps of a gasless vote
const (
	StepFetchCensusProof = "fetchCensusProof"
	StepSubmitVote       = "submitVote"
	StepRecordVote       = "recordVote"
)

// SubmitVoteOrApproval submits the vote or approval transaction. The
// returned job is already running. Once it is confirmed the action is
// recorded in the cache so it shows up before the indexer reports it.
func (s *Service) SubmitVoteOrApproval(
	ctx context.Context,
	req VoteRequest,
) (*transaction.Job, error) {
	const op = "vote"
	id, err := s.normalizeID(req.ID)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	voter, err := s.actor(req.Voter)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	plugin, err := contracts.ForKind(req.Kind)
	if err != nil {
		return nil, s.rejected(op, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	number, _ := id.Number()
	var (
		data  []byte
		entry cache.Entry
		name  string
	)
	switch req.Kind {
	case proposal.KindMultisig, proposal.KindGasless:
		data, err = plugin.Approve(number, req.TryExecution)
		approval := proposal.Approval(voter)
		entry = cache.Entry{Kind: cache.EntryApproval, Vote: &approval}
		name = "approve"
		if req.Kind == proposal.KindGasless {
			name = "approveTally"
		}
	case proposal.KindTokenVoting:
		switch req.Option {
		case proposal.VoteOptionAbstain, proposal.VoteOptionYes, proposal.VoteOptionNo:
		default:
			return nil, s.rejected(op, fmt.Errorf("%w: vote option %d", ErrInvalidRequest, req.Option))
		}
		data, err = plugin.Vote(number, req.Option, req.TryExecution)
		if err != nil {
			break
		}
		prior, verr := s.priorBallot(ctx, req.Kind, id, voter)
		if verr != nil {
			return nil, s.rejected(op, verr)
		}
		weight := req.VotingPower
		if weight == nil && prior != nil && prior.Weight != nil {
			weight = new(big.Int).Set(prior.Weight)
		}
		if weight == nil {
			return nil, s.rejected(op, fmt.Errorf("%w: voting power required", ErrInvalidRequest))
		}
		vote := proposal.Vote{
			Voter:    voter,
			Option:   req.Option,
			Weight:   weight,
			Replaced: prior != nil,
		}
		entry = cache.Entry{Kind: cache.EntryVote, Vote: &vote}
		name = "vote"
	}
	if err != nil {
		return nil, s.rejected(op, fmt.Errorf("encode %s: %w", req.Kind, err))
	}
	job, err := s.pipeline.Submit(ctx, transaction.Request{
		Name: name,
		Tx: chain.Tx{
			From: voter,
			To:   id.PluginAddress,
			Data: data,
		},
		OnSuccess: func(ctx context.Context, receipt *chain.Receipt) {
			entry.TxHash = receipt.TxHash
			s.record(ctx, id, req.Kind, entry)
		},
	})
	if err != nil {
		return nil, s.rejected(op, err)
	}
	s.metrics.operations.WithLabelValues(op, string(req.Kind)).Inc()
	return job, nil
}

// SubmitExecution submits the execution of a succeeded proposal
func (s *Service) SubmitExecution(
	ctx context.Context,
	req ExecutionRequest,
) (*transaction.Job, error) {
	const op = "execute"
	id, err := s.normalizeID(req.ID)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	executor, err := s.actor(req.Executor)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	plugin, err := contracts.ForKind(req.Kind)
	if err != nil {
		return nil, s.rejected(op, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	number, _ := id.Number()
	data, err := plugin.Execute(number)
	if err != nil {
		return nil, s.rejected(op, fmt.Errorf("encode execute: %w", err))
	}
	job, err := s.pipeline.Submit(ctx, transaction.Request{
		Name: "execute",
		Tx: chain.Tx{
			From: executor,
			To:   id.PluginAddress,
			Data: data,
		},
		OnSuccess: func(ctx context.Context, receipt *chain.Receipt) {
			s.record(ctx, id, req.Kind, cache.Entry{
				Kind:   cache.EntryExecution,
				TxHash: receipt.TxHash,
				Execution: &cache.Execution{
					Executor: executor,
					TxHash:   receipt.TxHash,
					Date:     s.now(),
				},
			})
		},
	})
	if err != nil {
		return nil, s.rejected(op, err)
	}
	s.metrics.operations.WithLabelValues(op, string(req.Kind)).Inc()
	return job, nil
}

// SubmitGaslessVote casts an off-chain vote: the census proof gives the
// voting weight, the election service takes the ballot, and the vote is
// then recorded in the cache. The returned sequence is already running.
func (s *Service) SubmitGaslessVote(
	ctx context.Context,
	req GaslessVoteRequest,
) (*stepper.Sequence, error) {
	const op = "gaslessVote"
	if s.config.Elections == nil {
		return nil, s.rejected(op, ErrElectionsRequired)
	}
	id, err := s.normalizeID(req.ID)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	voter, err := s.actor(req.Voter)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	if req.ElectionID == "" {
		return nil, s.rejected(op, fmt.Errorf("%w: election id required", ErrInvalidRequest))
	}
	choice, ok := electionChoice(req.Option)
	if !ok {
		return nil, s.rejected(op, fmt.Errorf("%w: vote option %d", ErrInvalidRequest, req.Option))
	}
	elections := s.config.Elections
	seq := stepper.New(
		stepper.SequenceConfig{
			Name:     op,
			Logger:   s.logger,
			EventBus: s.config.EventBus,
		},
		stepper.NewStep(StepFetchCensusProof, func(ctx context.Context, _ stepper.Outputs) (any, error) {
			return elections.FetchCensusProof(ctx, req.ElectionID, voter)
		}),
		stepper.NewStep(StepSubmitVote, func(ctx context.Context, in stepper.Outputs) (any, error) {
			proof, err := stepper.OutputAs[*election.CensusProof](in, StepFetchCensusProof)
			if err != nil {
				return nil, err
			}
			return elections.SubmitVote(ctx, election.VoteParams{
				ElectionID: req.ElectionID,
				Voter:      voter,
				Choice:     choice,
				Proof:      proof.Proof,
				Signature:  req.Signature,
			})
		}),
		stepper.NewStep(StepRecordVote, func(ctx context.Context, in stepper.Outputs) (any, error) {
			proof, err := stepper.OutputAs[*election.CensusProof](in, StepFetchCensusProof)
			if err != nil {
				return nil, err
			}
			voteID, err := stepper.OutputAs[string](in, StepSubmitVote)
			if err != nil {
				return nil, err
			}
			prior, err := s.priorBallot(ctx, proposal.KindGasless, id, voter)
			if err != nil {
				return nil, err
			}
			vote := proposal.Vote{
				Voter:    voter,
				Option:   req.Option,
				Weight:   proof.Weight,
				Replaced: prior != nil,
			}
			err = s.cache.Record(ctx, id, proposal.KindGasless, cache.Entry{
				Kind:   cache.EntryVote,
				Vote:   &vote,
				TxHash: voteID,
			})
			if err != nil {
				return nil, err
			}
			return vote, nil
		}),
	)
	if err := seq.Start(ctx); err != nil {
		return nil, s.rejected(op, err)
	}
	s.metrics.operations.WithLabelValues(op, string(proposal.KindGasless)).Inc()
	return seq, nil
}

// electionChoice maps a ballot option to its index in DefaultChoices
func electionChoice(opt proposal.VoteOption) (int, bool) {
	switch opt {
	case proposal.VoteOptionAbstain:
		return 0, true
	case proposal.VoteOptionYes:
		return 1, true
	case proposal.VoteOptionNo:
		return 2, true
	default:
		return 0, false
	}
}

// priorBallot returns the voter's current ballot on the proposal, counting
// pending cached votes, or nil when there is none
func (s *Service) priorBallot(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
	voter string,
) (*proposal.Vote, error) {
	v, err := s.GetProposal(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var voters []proposal.Vote
	switch t := v.Proposal.Tally.(type) {
	case *proposal.TokenVotingTally:
		voters = t.Voters
	case *proposal.GaslessTally:
		voters = t.Voting.Voters
	}
	for _, existing := range voters {
		if proposal.SameAddress(existing.Voter, voter) {
			return &existing, nil
		}
	}
	return nil, nil
}

// record stores an optimistic action. Failures are logged: the transaction
// already succeeded and the indexer will report it eventually.
func (s *Service) record(
	ctx context.Context,
	id proposal.ID,
	kind proposal.Kind,
	entry cache.Entry,
) {
	if err := s.cache.Record(ctx, id, kind, entry); err != nil {
		s.logger.Error(
			"failed to record optimistic action",
			"component", "governance",
			"proposal", id.String(),
			"kind", entry.Kind,
			"tx_hash", entry.TxHash,
			"error", err,
		)
	}
}
