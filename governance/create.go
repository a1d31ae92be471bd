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
	"fmt"
	"math/big"
	"time"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/content"
	"github.com/blinklabs-io/daogov/contracts"
	"github.com/blinklabs-io/daogov/election"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

// Steps of proposal creation
const (
	StepRegisterVoterIdentity = "registerVoterIdentity"
	StepPinMetadata           = "pinMetadata"
	StepPublishOffChainTally  = "publishOffChainTally"
	StepAnchorOnChainProposal = "anchorOnChainProposal"
	StepCreateProposal        = "createProposal"
)

// DefaultChoices are the election choices of a gasless proposal, in the
// order the on-chain tally reports them
var DefaultChoices = []string{"abstain", "yes", "no"}

// PluginSettings are the plugin parameters copied into the optimistic
// proposal until the indexer reports the real one
type PluginSettings struct {
	// multisig
	MinApprovals int `json:"minApprovals,omitempty"`
	// token-voting and the gasless voting stage
	SupportThreshold uint32              `json:"supportThreshold,omitempty"`
	MinParticipation uint32              `json:"minParticipation,omitempty"`
	Mode             proposal.VotingMode `json:"mode,omitempty"`
	TotalVotingPower *big.Int            `json:"totalVotingPower,omitempty"`
	// gasless approval stage
	MinTallyApprovals int `json:"minTallyApprovals,omitempty"`
}

// CreateRequest creates a multisig or token-voting proposal
type CreateRequest struct {
	Kind          proposal.Kind
	PluginAddress string
	// Creator defaults to the service account
	Creator string
	// Metadata is pinned as JSON and referenced by its content id
	Metadata        any
	Actions         []proposal.Action
	AllowFailureMap *big.Int
	StartDate       time.Time
	EndDate         time.Time
	// Approve adds the creator's approval on a multisig proposal
	Approve bool
	// VoteOption casts the creator's token vote along with the creation
	VoteOption   proposal.VoteOption
	TryExecution bool
	Settings     PluginSettings
}

// GaslessRequest creates a gasless proposal backed by an off-chain
// election
type GaslessRequest struct {
	PluginAddress string
	// Organization is the DAO address the election belongs to
	Organization    string
	Creator         string
	Metadata        any
	Actions         []proposal.Action
	AllowFailureMap *big.Int
	StartDate       time.Time
	EndDate         time.Time
	TallyEndDate    time.Time
	CensusBlock     uint64
	// Choices defaults to DefaultChoices
	Choices  []string
	Settings PluginSettings
}

// CreateProposal pins the metadata and submits the createProposal
// transaction. The returned sequence is already running. On confirmation
// the new proposal id is read from the ProposalCreated event and the
// proposal is cached until the indexer reports it.
func (s *Service) CreateProposal(
	ctx context.Context,
	req CreateRequest,
) (*stepper.Sequence, error) {
	const op = "createProposal"
	if s.config.Content == nil {
		return nil, s.rejected(op, ErrContentRequired)
	}
	switch req.Kind {
	case proposal.KindMultisig, proposal.KindTokenVoting:
	case proposal.KindGasless:
		return nil, s.rejected(op, fmt.Errorf("%w: use CreateGaslessProposal", ErrUnsupportedForKind))
	default:
		return nil, s.rejected(op, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, proposal.ErrUnknownKind, req.Kind))
	}
	pluginAddress, creator, err := s.createTarget(req.PluginAddress, req.Creator)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	if err := checkDates(req.StartDate, req.EndDate, time.Time{}); err != nil {
		return nil, s.rejected(op, err)
	}
	plugin, err := contracts.ForKind(req.Kind)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	seq := stepper.New(
		stepper.SequenceConfig{
			Name:     op,
			Logger:   s.logger,
			EventBus: s.config.EventBus,
		},
		s.pinStep(req.Metadata),
		stepper.NewJobStep(StepCreateProposal, func(ctx context.Context, in stepper.Outputs) (*transaction.Job, error) {
			cid, err := stepper.OutputAs[string](in, StepPinMetadata)
			if err != nil {
				return nil, err
			}
			data, err := plugin.CreateProposal(contracts.CreateProposalParams{
				Metadata:        cid,
				Actions:         req.Actions,
				AllowFailureMap: req.AllowFailureMap,
				StartDate:       req.StartDate,
				EndDate:         req.EndDate,
				Approve:         req.Approve,
				VoteOption:      req.VoteOption,
				TryExecution:    req.TryExecution,
			})
			if err != nil {
				return nil, fmt.Errorf("encode createProposal: %w", err)
			}
			draft := &proposal.Proposal{
				Kind:      req.Kind,
				Creator:   creator,
				Metadata:  cid,
				StartDate: req.StartDate,
				EndDate:   req.EndDate,
				Actions:   req.Actions,
				Tally:     newTally(req.Kind, req.Settings),
			}
			if t, ok := draft.Tally.(*proposal.MultisigTally); ok && req.Approve {
				t.Approvals = []proposal.Vote{proposal.Approval(creator)}
			}
			return s.submitCreate(ctx, plugin, pluginAddress, creator, data, draft)
		}),
	)
	if err := seq.Start(ctx); err != nil {
		return nil, s.rejected(op, err)
	}
	s.metrics.operations.WithLabelValues(op, string(req.Kind)).Inc()
	return seq, nil
}

// CreateGaslessProposal runs the gasless creation flow: the creator's
// voter identity is registered with the election service, the metadata is
// pinned, the off-chain election that tallies the votes is published, and
// finally the proposal is anchored on chain with the election id. The
// returned sequence is already running.
func (s *Service) CreateGaslessProposal(
	ctx context.Context,
	req GaslessRequest,
) (*stepper.Sequence, error) {
	const op = "createGaslessProposal"
	if s.config.Elections == nil {
		return nil, s.rejected(op, ErrElectionsRequired)
	}
	if s.config.Content == nil {
		return nil, s.rejected(op, ErrContentRequired)
	}
	pluginAddress, creator, err := s.createTarget(req.PluginAddress, req.Creator)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	if err := checkDates(req.StartDate, req.EndDate, req.TallyEndDate); err != nil {
		return nil, s.rejected(op, err)
	}
	choices := req.Choices
	if len(choices) == 0 {
		choices = DefaultChoices
	}
	plugin, err := contracts.ForKind(proposal.KindGasless)
	if err != nil {
		return nil, s.rejected(op, err)
	}
	elections := s.config.Elections
	seq := stepper.New(
		stepper.SequenceConfig{
			Name:     op,
			Logger:   s.logger,
			EventBus: s.config.EventBus,
		},
		stepper.NewStep(StepRegisterVoterIdentity, func(ctx context.Context, _ stepper.Outputs) (any, error) {
			return elections.CreateAccount(ctx, creator)
		}),
		s.pinStep(req.Metadata),
		stepper.NewStep(StepPublishOffChainTally, func(ctx context.Context, in stepper.Outputs) (any, error) {
			cid, err := stepper.OutputAs[string](in, StepPinMetadata)
			if err != nil {
				return nil, err
			}
			return elections.CreateElection(ctx, election.ElectionParams{
				Organization:  proposal.NormalizeAddress(req.Organization),
				PluginAddress: pluginAddress,
				Metadata:      content.URI(cid),
				StartDate:     req.StartDate,
				EndDate:       req.EndDate,
				CensusBlock:   req.CensusBlock,
				Choices:       choices,
			})
		}),
		stepper.NewJobStep(StepAnchorOnChainProposal, func(ctx context.Context, in stepper.Outputs) (*transaction.Job, error) {
			cid, err := stepper.OutputAs[string](in, StepPinMetadata)
			if err != nil {
				return nil, err
			}
			elec, err := stepper.OutputAs[*election.Election](in, StepPublishOffChainTally)
			if err != nil {
				return nil, err
			}
			electionID, err := elec.OnChainID()
			if err != nil {
				return nil, err
			}
			data, err := plugin.CreateProposal(contracts.CreateProposalParams{
				Metadata:        cid,
				Actions:         req.Actions,
				AllowFailureMap: req.AllowFailureMap,
				StartDate:       req.StartDate,
				EndDate:         req.EndDate,
				ElectionID:      electionID,
				TallyEndDate:    req.TallyEndDate,
			})
			if err != nil {
				return nil, fmt.Errorf("encode createProposal: %w", err)
			}
			draft := &proposal.Proposal{
				Kind:         proposal.KindGasless,
				Creator:      creator,
				Metadata:     cid,
				StartDate:    req.StartDate,
				EndDate:      req.EndDate,
				TallyEndDate: req.TallyEndDate,
				Actions:      req.Actions,
				Tally:        newTally(proposal.KindGasless, req.Settings),
			}
			return s.submitCreate(ctx, plugin, pluginAddress, creator, data, draft)
		}),
	)
	if err := seq.Start(ctx); err != nil {
		return nil, s.rejected(op, err)
	}
	s.metrics.operations.WithLabelValues(op, string(proposal.KindGasless)).Inc()
	return seq, nil
}

// CreatedProposalID returns the id of the proposal created by a finished
// CreateProposal or CreateGaslessProposal sequence
func (s *Service) CreatedProposalID(
	seq *stepper.Sequence,
	kind proposal.Kind,
	pluginAddress string,
) (proposal.ID, error) {
	stepID := StepCreateProposal
	if kind == proposal.KindGasless {
		stepID = StepAnchorOnChainProposal
	}
	out, ok := seq.Output(stepID)
	if !ok {
		return proposal.ID{}, ErrProposalIDUnavailable
	}
	state, ok := out.(transaction.State)
	if !ok || state.Receipt == nil {
		return proposal.ID{}, ErrProposalIDUnavailable
	}
	plugin, err := contracts.ForKind(kind)
	if err != nil {
		return proposal.ID{}, err
	}
	created, err := plugin.ParseProposalCreated(pluginAddress, state.Receipt.Logs)
	if err != nil {
		return proposal.ID{}, fmt.Errorf("%w: %w", ErrProposalIDUnavailable, err)
	}
	return proposal.NewID(s.config.ChainID, pluginAddress, created.ProposalID), nil
}

func (s *Service) pinStep(metadata any) stepper.Step {
	store := s.config.Content
	return stepper.NewStep(StepPinMetadata, func(ctx context.Context, _ stepper.Outputs) (any, error) {
		return content.PinJSON(ctx, store, metadata)
	})
}

// submitCreate submits a createProposal call. The draft is completed from
// the ProposalCreated event and cached once the transaction is confirmed.
func (s *Service) submitCreate(
	ctx context.Context,
	plugin *contracts.Plugin,
	pluginAddress string,
	creator string,
	data []byte,
	draft *proposal.Proposal,
) (*transaction.Job, error) {
	return s.pipeline.Submit(ctx, transaction.Request{
		Name: "createProposal",
		Tx: chain.Tx{
			From: creator,
			To:   pluginAddress,
			Data: data,
		},
		OnSuccess: func(ctx context.Context, receipt *chain.Receipt) {
			created, err := plugin.ParseProposalCreated(pluginAddress, receipt.Logs)
			if err != nil {
				s.logger.Error(
					"created proposal not found in receipt",
					"component", "governance",
					"tx_hash", receipt.TxHash,
					"plugin", pluginAddress,
					"error", err,
				)
				return
			}
			p := draft.Clone()
			p.ID = proposal.NewID(s.config.ChainID, pluginAddress, created.ProposalID)
			p.CreationDate = s.now()
			if created.Creator != "" {
				p.Creator = proposal.NormalizeAddress(created.Creator)
			}
			if !created.StartDate.IsZero() && created.StartDate.Unix() > 0 {
				p.StartDate = created.StartDate
			}
			if !created.EndDate.IsZero() && created.EndDate.Unix() > 0 {
				p.EndDate = created.EndDate
			}
			s.logger.Info(
				"proposal created",
				"component", "governance",
				"proposal", p.ID.String(),
				"kind", p.Kind,
				"tx_hash", receipt.TxHash,
			)
			s.record(ctx, p.ID, p.Kind, cache.Entry{
				Kind:     cache.EntryProposal,
				Proposal: p,
				TxHash:   receipt.TxHash,
			})
		},
	})
}

// createTarget validates the plugin and creator addresses
func (s *Service) createTarget(pluginAddress, creator string) (string, string, error) {
	pluginAddress = proposal.NormalizeAddress(pluginAddress)
	if pluginAddress == "" {
		return "", "", fmt.Errorf("%w: plugin address required", ErrInvalidRequest)
	}
	creator, err := s.actor(creator)
	if err != nil {
		return "", "", err
	}
	return pluginAddress, creator, nil
}

func checkDates(start, end, tallyEnd time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidRequest)
	}
	if !tallyEnd.IsZero() && !end.IsZero() && tallyEnd.Before(end) {
		return fmt.Errorf("%w: tally end date before end date", ErrInvalidRequest)
	}
	return nil
}

// newTally returns an empty tally carrying the plugin settings
func newTally(kind proposal.Kind, settings PluginSettings) proposal.Tally {
	voting := proposal.TokenVotingTally{
		Yes:              new(big.Int),
		No:               new(big.Int),
		Abstain:          new(big.Int),
		TotalVotingPower: new(big.Int),
		SupportThreshold: settings.SupportThreshold,
		MinParticipation: settings.MinParticipation,
		Mode:             settings.Mode,
	}
	if settings.TotalVotingPower != nil {
		voting.TotalVotingPower.Set(settings.TotalVotingPower)
	}
	switch kind {
	case proposal.KindMultisig:
		return &proposal.MultisigTally{MinApprovals: settings.MinApprovals}
	case proposal.KindTokenVoting:
		return &voting
	default:
		return &proposal.GaslessTally{
			Voting:            voting,
			MinTallyApprovals: settings.MinTallyApprovals,
		}
	}
}
