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

package indexer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/daogov/proposal"
)

type rawVote struct {
	Address      string `json:"address"`
	VoteOption   string `json:"voteOption"`
	VotingPower  string `json:"votingPower"`
	VoteReplaced bool   `json:"voteReplaced"`
}

type rawAction struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// rawProposal is the union of the per-kind indexer entities. Numbers are
// decimal strings and dates are unix seconds.
type rawProposal struct {
	ID               string      `json:"id"`
	PluginAddress    string      `json:"pluginAddress"`
	PluginProposalID string      `json:"pluginProposalId"`
	Creator          string      `json:"creator"`
	Metadata         string      `json:"metadata"`
	CreatedAt        string      `json:"createdAt"`
	StartDate        string      `json:"startDate"`
	EndDate          string      `json:"endDate"`
	TallyEndDate     string      `json:"tallyEndDate"`
	Executed         bool        `json:"executed"`
	ExecutionDate    string      `json:"executionDate"`
	ExecutionTxHash  string      `json:"executionTxHash"`
	Actions          []rawAction `json:"actions"`

	// multisig
	Approvals    []rawVote `json:"approvals"`
	MinApprovals int       `json:"minApprovals"`

	// token voting, and the voting stage of gasless
	Yes              string    `json:"yes"`
	No               string    `json:"no"`
	Abstain          string    `json:"abstain"`
	TotalVotingPower string    `json:"totalVotingPower"`
	SupportThreshold string    `json:"supportThreshold"`
	MinParticipation string    `json:"minParticipation"`
	VotingMode       string    `json:"votingMode"`
	Voters           []rawVote `json:"voters"`

	// gasless
	Approvers         []rawVote `json:"approvers"`
	MinTallyApprovals int       `json:"minTallyApprovals"`
}

func (r *rawProposal) toProposal(kind proposal.Kind, chainID uint64) (*proposal.Proposal, error) {
	id, err := r.proposalID(chainID)
	if err != nil {
		return nil, err
	}
	p := &proposal.Proposal{
		ID:              id,
		Kind:            kind,
		Creator:         proposal.NormalizeAddress(r.Creator),
		Metadata:        r.Metadata,
		Executed:        r.Executed,
		ExecutionTxHash: r.ExecutionTxHash,
	}
	dates := []struct {
		dst *time.Time
		src string
	}{
		{&p.CreationDate, r.CreatedAt},
		{&p.StartDate, r.StartDate},
		{&p.EndDate, r.EndDate},
		{&p.TallyEndDate, r.TallyEndDate},
		{&p.ExecutionDate, r.ExecutionDate},
	}
	for _, d := range dates {
		if *d.dst, err = parseUnix(d.src); err != nil {
			return nil, fmt.Errorf("proposal %s: %w", r.ID, err)
		}
	}
	for _, a := range r.Actions {
		action, err := a.toAction()
		if err != nil {
			return nil, fmt.Errorf("proposal %s: %w", r.ID, err)
		}
		p.Actions = append(p.Actions, action)
	}
	switch kind {
	case proposal.KindMultisig:
		p.Tally = &proposal.MultisigTally{
			Approvals:    approvals(r.Approvals),
			MinApprovals: r.MinApprovals,
		}
	case proposal.KindTokenVoting:
		tally, err := r.tokenVoting()
		if err != nil {
			return nil, fmt.Errorf("proposal %s: %w", r.ID, err)
		}
		p.Tally = tally
	case proposal.KindGasless:
		tally, err := r.tokenVoting()
		if err != nil {
			return nil, fmt.Errorf("proposal %s: %w", r.ID, err)
		}
		p.Tally = &proposal.GaslessTally{
			Voting:            *tally,
			Approvers:         approvals(r.Approvers),
			MinTallyApprovals: r.MinTallyApprovals,
		}
	default:
		return nil, fmt.Errorf("%w: %q", proposal.ErrUnknownKind, kind)
	}
	return p, nil
}

func (r *rawProposal) proposalID(chainID uint64) (proposal.ID, error) {
	if r.PluginAddress != "" && r.PluginProposalID != "" {
		n, err := parseBig(r.PluginProposalID)
		if err != nil {
			return proposal.ID{}, fmt.Errorf("proposal %s: %w", r.ID, err)
		}
		return proposal.NewID(chainID, r.PluginAddress, n), nil
	}
	return proposal.ParseKey(chainID, r.ID)
}

func (r *rawProposal) tokenVoting() (*proposal.TokenVotingTally, error) {
	ret := &proposal.TokenVotingTally{}
	ints := []struct {
		dst **big.Int
		src string
	}{
		{&ret.Yes, r.Yes},
		{&ret.No, r.No},
		{&ret.Abstain, r.Abstain},
		{&ret.TotalVotingPower, r.TotalVotingPower},
	}
	for _, i := range ints {
		v, err := parseBig(i.src)
		if err != nil {
			return nil, err
		}
		*i.dst = v
	}
	support, err := parseRatio(r.SupportThreshold)
	if err != nil {
		return nil, err
	}
	participation, err := parseRatio(r.MinParticipation)
	if err != nil {
		return nil, err
	}
	mode, err := proposal.ParseVotingMode(r.VotingMode)
	if err != nil {
		return nil, err
	}
	ret.SupportThreshold = support
	ret.MinParticipation = participation
	ret.Mode = mode
	for _, v := range r.Voters {
		vote, err := v.toVote()
		if err != nil {
			return nil, err
		}
		ret.Voters = append(ret.Voters, vote)
	}
	return ret, nil
}

func (v rawVote) toVote() (proposal.Vote, error) {
	ret := proposal.Vote{
		Voter:    proposal.NormalizeAddress(v.Address),
		Replaced: v.VoteReplaced,
	}
	if v.VoteOption != "" {
		opt, err := proposal.ParseVoteOption(v.VoteOption)
		if err != nil {
			return ret, err
		}
		ret.Option = opt
	}
	weight, err := parseBig(v.VotingPower)
	if err != nil {
		return ret, err
	}
	ret.Weight = weight
	return ret, nil
}

func approvals(raw []rawVote) []proposal.Vote {
	ret := make([]proposal.Vote, 0, len(raw))
	for _, v := range raw {
		ret = append(ret, proposal.Approval(v.Address))
	}
	return ret
}

func (a rawAction) toAction() (proposal.Action, error) {
	ret := proposal.Action{To: proposal.NormalizeAddress(a.To)}
	value, err := parseBig(a.Value)
	if err != nil {
		return ret, err
	}
	if value.Sign() != 0 {
		ret.Value = value
	}
	if a.Data != "" && a.Data != "0x" {
		ret.Data, err = hex.DecodeString(strings.TrimPrefix(a.Data, "0x"))
		if err != nil {
			return ret, fmt.Errorf("invalid action data: %w", err)
		}
	}
	return ret, nil
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	// Accepts decimal and 0x-prefixed hex
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func parseUnix(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.Unix(secs, 0).UTC(), nil
}

func parseRatio(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q", s)
	}
	if v > proposal.RatioBase {
		return 0, fmt.Errorf("ratio %d exceeds %d", v, proposal.RatioBase)
	}
	return uint32(v), nil
}
