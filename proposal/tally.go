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

package proposal

import (
	"fmt"
	"math/big"
	"strings"
)

// RatioBase is the denominator for support threshold and minimum
// participation ratios (parts per million)
const RatioBase = 1_000_000

// Tally is the kind-specific vote data of a proposal. The set of
// implementations is closed: MultisigTally, TokenVotingTally and
// GaslessTally.
type Tally interface {
	Kind() Kind
	clone() Tally
}

// VotingMode controls how a token-voting proposal reaches success
type VotingMode uint8

const (
	VotingModeStandard        VotingMode = 0
	VotingModeEarlyExecution  VotingMode = 1
	VotingModeVoteReplacement VotingMode = 2
)

func (m VotingMode) String() string {
	switch m {
	case VotingModeEarlyExecution:
		return "early-execution"
	case VotingModeVoteReplacement:
		return "vote-replacement"
	default:
		return "standard"
	}
}

// ParseVotingMode converts the indexer's voting mode name into a VotingMode
func ParseVotingMode(s string) (VotingMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "standard":
		return VotingModeStandard, nil
	case "early-execution", "earlyexecution":
		return VotingModeEarlyExecution, nil
	case "vote-replacement", "votereplacement":
		return VotingModeVoteReplacement, nil
	default:
		return VotingModeStandard, fmt.Errorf("invalid voting mode %q", s)
	}
}

// MultisigTally holds the approvals of a multisig proposal
type MultisigTally struct {
	Approvals    []Vote `json:"approvals"`
	MinApprovals int    `json:"minApprovals"`
}

func (*MultisigTally) Kind() Kind { return KindMultisig }

func (t *MultisigTally) clone() Tally {
	ret := *t
	ret.Approvals = cloneVotes(t.Approvals)
	return &ret
}

// TokenVotingTally holds the weighted ballots of a token-voting proposal
type TokenVotingTally struct {
	Yes              *big.Int   `json:"yes"`
	No               *big.Int   `json:"no"`
	Abstain          *big.Int   `json:"abstain"`
	TotalVotingPower *big.Int   `json:"totalVotingPower"`
	Voters           []Vote     `json:"voters"`
	SupportThreshold uint32     `json:"supportThreshold"`
	MinParticipation uint32     `json:"minParticipation"`
	Mode             VotingMode `json:"mode"`
}

func (*TokenVotingTally) Kind() Kind { return KindTokenVoting }

func (t *TokenVotingTally) clone() Tally {
	return t.cloneTokenVoting()
}

func (t *TokenVotingTally) cloneTokenVoting() *TokenVotingTally {
	ret := *t
	ret.Yes = cloneInt(t.Yes)
	ret.No = cloneInt(t.No)
	ret.Abstain = cloneInt(t.Abstain)
	ret.TotalVotingPower = cloneInt(t.TotalVotingPower)
	ret.Voters = cloneVotes(t.Voters)
	return &ret
}

// Count returns the tallied weight for a vote option
func (t *TokenVotingTally) Count(opt VoteOption) *big.Int {
	switch opt {
	case VoteOptionYes:
		return intOrZero(t.Yes)
	case VoteOptionNo:
		return intOrZero(t.No)
	case VoteOptionAbstain:
		return intOrZero(t.Abstain)
	default:
		return new(big.Int)
	}
}

// AddWeight adjusts the tally for a vote option, never going below zero
func (t *TokenVotingTally) AddWeight(opt VoteOption, delta *big.Int) {
	if delta == nil {
		return
	}
	sum := new(big.Int).Add(t.Count(opt), delta)
	if sum.Sign() < 0 {
		sum.SetInt64(0)
	}
	switch opt {
	case VoteOptionYes:
		t.Yes = sum
	case VoteOptionNo:
		t.No = sum
	case VoteOptionAbstain:
		t.Abstain = sum
	}
}

// SupportReached returns true when (1 - threshold) * yes > threshold * no
func (t *TokenVotingTally) SupportReached() bool {
	return t.supportOver(t.Count(VoteOptionNo))
}

// ParticipationReached returns true when the cast voting power is at least
// the minimum participation share of the total voting power
func (t *TokenVotingTally) ParticipationReached() bool {
	cast := new(big.Int).Add(t.Count(VoteOptionYes), t.Count(VoteOptionNo))
	cast.Add(cast, t.Count(VoteOptionAbstain))
	lhs := cast.Mul(cast, big.NewInt(RatioBase))
	rhs := new(big.Int).Mul(
		intOrZero(t.TotalVotingPower),
		big.NewInt(int64(t.MinParticipation)),
	)
	return lhs.Cmp(rhs) >= 0
}

// ApprovalReached returns true when both the support threshold and the
// minimum participation are met
func (t *TokenVotingTally) ApprovalReached() bool {
	return t.SupportReached() && t.ParticipationReached()
}

// EarlyExecutable returns true when the outcome can no longer change: the
// support threshold holds even if all remaining voting power votes no
func (t *TokenVotingTally) EarlyExecutable() bool {
	if !t.ParticipationReached() {
		return false
	}
	worstCaseNo := new(big.Int).Sub(
		intOrZero(t.TotalVotingPower),
		t.Count(VoteOptionYes),
	)
	worstCaseNo.Sub(worstCaseNo, t.Count(VoteOptionAbstain))
	if worstCaseNo.Sign() < 0 {
		worstCaseNo.SetInt64(0)
	}
	return t.supportOver(worstCaseNo)
}

func (t *TokenVotingTally) supportOver(no *big.Int) bool {
	threshold := big.NewInt(int64(t.SupportThreshold))
	lhs := new(big.Int).Sub(big.NewInt(RatioBase), threshold)
	lhs.Mul(lhs, t.Count(VoteOptionYes))
	rhs := new(big.Int).Mul(threshold, no)
	return lhs.Cmp(rhs) > 0
}

// GaslessTally holds the off-chain voting result and the on-chain tally
// approvals of a gasless proposal
type GaslessTally struct {
	Voting            TokenVotingTally `json:"voting"`
	Approvers         []Vote           `json:"approvers"`
	MinTallyApprovals int              `json:"minTallyApprovals"`
}

func (*GaslessTally) Kind() Kind { return KindGasless }

func (t *GaslessTally) clone() Tally {
	ret := *t
	ret.Voting = *t.Voting.cloneTokenVoting()
	ret.Approvers = cloneVotes(t.Approvers)
	return &ret
}

func cloneVotes(votes []Vote) []Vote {
	if votes == nil {
		return nil
	}
	ret := make([]Vote, len(votes))
	for i, v := range votes {
		ret[i] = v
		ret[i].Weight = cloneInt(v.Weight)
	}
	return ret
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func intOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
