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
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
)

// RootResponse is returned by GET /
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ChainID uint64 `json:"chain_id"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// HandleResponse points at a job or sequence started by a request
type HandleResponse struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	URL  string `json:"url"`
}

// SequenceResponse is a sequence snapshot. ProposalID is set once a
// creation sequence has succeeded.
type SequenceResponse struct {
	stepper.Snapshot
	ProposalID *proposal.ID `json:"proposalId,omitempty"`
}

// VoteRequest is the body of POST .../votes. Setting ElectionID casts an
// off-chain vote on a gasless proposal instead of a transaction.
type VoteRequest struct {
	Kind         string `json:"kind"`
	Voter        string `json:"voter,omitempty"`
	Option       string `json:"option,omitempty"`
	VotingPower  string `json:"votingPower,omitempty"`
	TryExecution bool   `json:"tryExecution,omitempty"`
	ElectionID   string `json:"electionId,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

type ExecuteRequest struct {
	Kind     string `json:"kind"`
	Executor string `json:"executor,omitempty"`
}

type Action struct {
	To    string `json:"to"`
	Value string `json:"value,omitempty"`
	// Data is 0x-prefixed hex
	Data string `json:"data,omitempty"`
}

type CreateRequest struct {
	Kind            string                    `json:"kind"`
	PluginAddress   string                    `json:"pluginAddress"`
	Creator         string                    `json:"creator,omitempty"`
	Metadata        json.RawMessage           `json:"metadata"`
	Actions         []Action                  `json:"actions,omitempty"`
	AllowFailureMap string                    `json:"allowFailureMap,omitempty"`
	StartDate       time.Time                 `json:"startDate"`
	EndDate         time.Time                 `json:"endDate"`
	Approve         bool                      `json:"approve,omitempty"`
	VoteOption      string                    `json:"voteOption,omitempty"`
	TryExecution    bool                      `json:"tryExecution,omitempty"`
	Settings        governance.PluginSettings `json:"settings"`
}

type GaslessRequest struct {
	PluginAddress   string                    `json:"pluginAddress"`
	Organization    string                    `json:"organization"`
	Creator         string                    `json:"creator,omitempty"`
	Metadata        json.RawMessage           `json:"metadata"`
	Actions         []Action                  `json:"actions,omitempty"`
	AllowFailureMap string                    `json:"allowFailureMap,omitempty"`
	StartDate       time.Time                 `json:"startDate"`
	EndDate         time.Time                 `json:"endDate"`
	TallyEndDate    time.Time                 `json:"tallyEndDate"`
	CensusBlock     uint64                    `json:"censusBlock"`
	Choices         []string                  `json:"choices,omitempty"`
	Settings        governance.PluginSettings `json:"settings"`
}

func (a Action) toProposal() (proposal.Action, error) {
	ret := proposal.Action{To: a.To}
	value, err := parseBigInt(a.Value)
	if err != nil {
		return ret, fmt.Errorf("action value: %w", err)
	}
	ret.Value = value
	if a.Data != "" {
		ret.Data, err = hexutil.Decode(a.Data)
		if err != nil {
			return ret, fmt.Errorf("action data: %w", err)
		}
	}
	return ret, nil
}

func toActions(in []Action) ([]proposal.Action, error) {
	ret := make([]proposal.Action, 0, len(in))
	for _, a := range in {
		tmp, err := a.toProposal()
		if err != nil {
			return nil, err
		}
		ret = append(ret, tmp)
	}
	return ret, nil
}

// parseBigInt accepts decimal or 0x-prefixed hex. An empty string is nil.
func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	ret, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return ret, nil
}

func parseOption(s string) (proposal.VoteOption, error) {
	if s == "" {
		return proposal.VoteOptionNone, nil
	}
	return proposal.ParseVoteOption(s)
}

// ToGovernance validates the request body and converts it
func (r CreateRequest) ToGovernance() (governance.CreateRequest, error) {
	var ret governance.CreateRequest
	kind, err := proposal.ParseKind(r.Kind)
	if err != nil {
		return ret, err
	}
	actions, err := toActions(r.Actions)
	if err != nil {
		return ret, err
	}
	failureMap, err := parseBigInt(r.AllowFailureMap)
	if err != nil {
		return ret, err
	}
	option, err := parseOption(r.VoteOption)
	if err != nil {
		return ret, err
	}
	return governance.CreateRequest{
		Kind:            kind,
		PluginAddress:   r.PluginAddress,
		Creator:         r.Creator,
		Metadata:        r.Metadata,
		Actions:         actions,
		AllowFailureMap: failureMap,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Approve:         r.Approve,
		VoteOption:      option,
		TryExecution:    r.TryExecution,
		Settings:        r.Settings,
	}, nil
}

func (r GaslessRequest) ToGovernance() (governance.GaslessRequest, error) {
	var ret governance.GaslessRequest
	actions, err := toActions(r.Actions)
	if err != nil {
		return ret, err
	}
	failureMap, err := parseBigInt(r.AllowFailureMap)
	if err != nil {
		return ret, err
	}
	return governance.GaslessRequest{
		PluginAddress:   r.PluginAddress,
		Organization:    r.Organization,
		Creator:         r.Creator,
		Metadata:        r.Metadata,
		Actions:         actions,
		AllowFailureMap: failureMap,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		TallyEndDate:    r.TallyEndDate,
		CensusBlock:     r.CensusBlock,
		Choices:         r.Choices,
		Settings:        r.Settings,
	}, nil
}
