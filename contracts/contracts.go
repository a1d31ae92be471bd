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

// Package contracts encodes governance plugin calls and decodes their
// events.
package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/proposal"
)

// MetadataPrefix is prepended to content ids stored on chain
const MetadataPrefix = "ipfs://"

var (
	ErrUnsupportedCall    = errors.New("call not supported by governance kind")
	ErrProposalNotCreated = errors.New("ProposalCreated event not found")
)

// action mirrors the plugin's Action tuple
type action struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Plugin encodes calls for one governance kind
type Plugin struct {
	kind proposal.Kind
	abi  abi.ABI
}

var (
	pluginsOnce sync.Once
	plugins     map[proposal.Kind]*Plugin
	pluginsErr  error
)

// ForKind returns the call encoder for a governance kind
func ForKind(kind proposal.Kind) (*Plugin, error) {
	pluginsOnce.Do(func() {
		plugins = make(map[proposal.Kind]*Plugin)
		for k, def := range map[proposal.Kind]string{
			proposal.KindMultisig:    multisigABI,
			proposal.KindTokenVoting: tokenVotingABI,
			proposal.KindGasless:     gaslessABI,
		} {
			parsed, err := abi.JSON(strings.NewReader(def))
			if err != nil {
				pluginsErr = fmt.Errorf("parse %s ABI: %w", k, err)
				return
			}
			plugins[k] = &Plugin{kind: k, abi: parsed}
		}
	})
	if pluginsErr != nil {
		return nil, pluginsErr
	}
	p, ok := plugins[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", proposal.ErrUnknownKind, kind)
	}
	return p, nil
}

func (p *Plugin) Kind() proposal.Kind {
	return p.kind
}

// Approve encodes a multisig approval or a gasless tally approval
func (p *Plugin) Approve(proposalID *big.Int, tryExecution bool) ([]byte, error) {
	switch p.kind {
	case proposal.KindMultisig:
		return p.abi.Pack("approve", proposalID, tryExecution)
	case proposal.KindGasless:
		return p.abi.Pack("approveTally", proposalID, tryExecution)
	default:
		return nil, fmt.Errorf("%w: approve on %s", ErrUnsupportedCall, p.kind)
	}
}

// Vote encodes a token-voting ballot
func (p *Plugin) Vote(
	proposalID *big.Int,
	option proposal.VoteOption,
	tryEarlyExecution bool,
) ([]byte, error) {
	if p.kind != proposal.KindTokenVoting {
		return nil, fmt.Errorf("%w: vote on %s", ErrUnsupportedCall, p.kind)
	}
	return p.abi.Pack("vote", proposalID, uint8(option), tryEarlyExecution)
}

// Execute encodes the execution of a succeeded proposal
func (p *Plugin) Execute(proposalID *big.Int) ([]byte, error) {
	if p.kind == proposal.KindGasless {
		return p.abi.Pack("executeProposal", proposalID)
	}
	return p.abi.Pack("execute", proposalID)
}

// SetTally encodes the publication of an off-chain tally. Each inner slice
// holds the abstain, yes and no weights of one question.
func (p *Plugin) SetTally(proposalID *big.Int, tally [][]*big.Int) ([]byte, error) {
	if p.kind != proposal.KindGasless {
		return nil, fmt.Errorf("%w: setTally on %s", ErrUnsupportedCall, p.kind)
	}
	return p.abi.Pack("setTally", proposalID, tally)
}

// CreateProposalParams holds the arguments of a createProposal call
type CreateProposalParams struct {
	// Metadata is the content id of the proposal metadata
	Metadata        string
	Actions         []proposal.Action
	AllowFailureMap *big.Int
	StartDate       time.Time
	EndDate         time.Time
	// multisig
	Approve bool
	// token-voting
	VoteOption proposal.VoteOption
	// multisig and token-voting
	TryExecution bool
	// gasless
	ElectionID   common.Hash
	TallyEndDate time.Time
}

// CreateProposal encodes a createProposal call
func (p *Plugin) CreateProposal(params CreateProposalParams) ([]byte, error) {
	actions := make([]action, 0, len(params.Actions))
	for _, a := range params.Actions {
		if !common.IsHexAddress(a.To) {
			return nil, fmt.Errorf("invalid action target %q", a.To)
		}
		value := a.Value
		if value == nil {
			value = new(big.Int)
		}
		actions = append(actions, action{
			To:    common.HexToAddress(a.To),
			Value: value,
			Data:  a.Data,
		})
	}
	failureMap := params.AllowFailureMap
	if failureMap == nil {
		failureMap = new(big.Int)
	}
	metadata := []byte(MetadataPrefix + params.Metadata)
	switch p.kind {
	case proposal.KindMultisig:
		return p.abi.Pack(
			"createProposal",
			metadata,
			actions,
			failureMap,
			params.Approve,
			params.TryExecution,
			unixSeconds(params.StartDate),
			unixSeconds(params.EndDate),
		)
	case proposal.KindTokenVoting:
		return p.abi.Pack(
			"createProposal",
			metadata,
			actions,
			failureMap,
			unixSeconds(params.StartDate),
			unixSeconds(params.EndDate),
			uint8(params.VoteOption),
			params.TryExecution,
		)
	default:
		return p.abi.Pack(
			"createProposal",
			[32]byte(params.ElectionID),
			metadata,
			actions,
			failureMap,
			unixSeconds(params.StartDate),
			unixSeconds(params.EndDate),
			unixSeconds(params.TallyEndDate),
		)
	}
}

// ProposalCreated is the decoded ProposalCreated event
type ProposalCreated struct {
	ProposalID *big.Int
	Creator    string
	StartDate  time.Time
	EndDate    time.Time
	// Metadata is the content id with the ipfs:// prefix removed
	Metadata string
}

// ParseProposalCreated finds the ProposalCreated event emitted by the plugin
// in a receipt's logs
func (p *Plugin) ParseProposalCreated(
	pluginAddress string,
	logs []chain.Log,
) (*ProposalCreated, error) {
	evt := p.abi.Events["ProposalCreated"]
	topic := evt.ID.Hex()
	for _, l := range logs {
		if !proposal.SameAddress(l.Address, pluginAddress) {
			continue
		}
		if len(l.Topics) < 3 || !strings.EqualFold(l.Topics[0], topic) {
			continue
		}
		values, err := evt.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("decode ProposalCreated: %w", err)
		}
		if len(values) != 4 {
			return nil, fmt.Errorf("decode ProposalCreated: unexpected field count %d", len(values))
		}
		startDate, _ := values[0].(uint64)
		endDate, _ := values[1].(uint64)
		metadata, _ := values[2].([]byte)
		return &ProposalCreated{
			ProposalID: common.HexToHash(l.Topics[1]).Big(),
			Creator:    common.BytesToAddress(common.HexToHash(l.Topics[2]).Bytes()).Hex(),
			StartDate:  time.Unix(int64(startDate), 0).UTC(),
			EndDate:    time.Unix(int64(endDate), 0).UTC(),
			Metadata:   strings.TrimPrefix(string(metadata), MetadataPrefix),
		}, nil
	}
	return nil, ErrProposalNotCreated
}

// EncodeProposalCreated builds the log a plugin emits for a new proposal
func (p *Plugin) EncodeProposalCreated(
	pluginAddress string,
	evt ProposalCreated,
) (chain.Log, error) {
	data, err := p.abi.Events["ProposalCreated"].Inputs.NonIndexed().Pack(
		unixSeconds(evt.StartDate),
		unixSeconds(evt.EndDate),
		[]byte(MetadataPrefix+evt.Metadata),
		new(big.Int),
	)
	if err != nil {
		return chain.Log{}, err
	}
	return chain.Log{
		Address: pluginAddress,
		Topics: []string{
			p.abi.Events["ProposalCreated"].ID.Hex(),
			common.BigToHash(evt.ProposalID).Hex(),
			common.BytesToHash(common.HexToAddress(evt.Creator).Bytes()).Hex(),
		},
		Data: data,
	}, nil
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
