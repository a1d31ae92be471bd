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

package cache

import (
	"math/big"
	"time"

	"github.com/blinklabs-io/daogov/proposal"
)

// EntryKind identifies the type of an optimistic action record
type EntryKind string

const (
	// EntryProposal is a proposal created locally but not yet indexed
	EntryProposal EntryKind = "proposal"
	// EntryVote is a token-voting ballot or a gasless off-chain vote
	EntryVote EntryKind = "vote"
	// EntryApproval is a multisig approval or a gasless tally approval
	EntryApproval EntryKind = "approval"
	// EntryExecution is a locally submitted execution
	EntryExecution EntryKind = "execution"
)

// Key identifies the action log of one proposal, namespaced by chain
type Key struct {
	ChainID  uint64
	Proposal string
}

// KeyFor returns the cache key for a proposal id
func KeyFor(id proposal.ID) Key {
	return Key{ChainID: id.ChainID, Proposal: id.Key()}
}

// Execution describes a locally submitted proposal execution
type Execution struct {
	Executor string    `json:"executor"`
	TxHash   string    `json:"txHash"`
	Date     time.Time `json:"date"`
}

// Entry is a single optimistic action record
type Entry struct {
	Kind       EntryKind          `json:"kind"`
	Vote       *proposal.Vote     `json:"vote,omitempty"`
	Proposal   *proposal.Proposal `json:"proposal,omitempty"`
	Execution  *Execution         `json:"execution,omitempty"`
	TxHash     string             `json:"txHash,omitempty"`
	RecordedAt time.Time          `json:"recordedAt"`
}

// voter returns the normalized voter address of vote and approval entries
func (e Entry) voter() string {
	if e.Vote == nil {
		return ""
	}
	return proposal.NormalizeAddress(e.Vote.Voter)
}

// Log is the ordered list of optimistic actions recorded for a proposal.
// Entries are appended when a locally submitted transaction succeeds and
// compacted away once the indexer reports the same action.
type Log struct {
	ChainID       uint64        `json:"chainId"`
	ProposalKey   string        `json:"proposalKey"`
	PluginAddress string        `json:"pluginAddress"`
	Kind          proposal.Kind `json:"kind"`
	Entries       []Entry       `json:"entries"`
}

// NewLog returns an empty log for a proposal
func NewLog(id proposal.ID, kind proposal.Kind) Log {
	return Log{
		ChainID:       id.ChainID,
		ProposalKey:   id.Key(),
		PluginAddress: proposal.NormalizeAddress(id.PluginAddress),
		Kind:          kind,
	}
}

// Key returns the cache key of the log
func (l Log) Key() Key {
	return Key{ChainID: l.ChainID, Proposal: l.ProposalKey}
}

// Empty returns true when the log holds no entries
func (l Log) Empty() bool {
	return len(l.Entries) == 0
}

// Append returns a copy of the log with the entry added. An entry replaces
// an earlier entry for the same action: the same voter's vote or approval,
// or the single proposal/execution record.
func (l Log) Append(e Entry) Log {
	ret := l.withEntries(nil)
	for _, existing := range l.Entries {
		if sameAction(existing, e) {
			continue
		}
		ret.Entries = append(ret.Entries, existing)
	}
	ret.Entries = append(ret.Entries, e)
	return ret
}

// Proposal returns the cached optimistic proposal, if any
func (l Log) Proposal() *proposal.Proposal {
	for _, e := range l.Entries {
		if e.Kind == EntryProposal && e.Proposal != nil {
			return e.Proposal
		}
	}
	return nil
}

// Count returns the number of entries of the given kind
func (l Log) Count(kind EntryKind) int {
	n := 0
	for _, e := range l.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (l Log) withEntries(entries []Entry) Log {
	ret := l
	ret.Entries = entries
	return ret
}

func sameAction(a, b Entry) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case EntryVote, EntryApproval:
		return a.voter() == b.voter()
	default:
		return true
	}
}

// Compact returns the log without the entries the remote proposal already
// reflects, along with the entries that were dropped. A nil remote
// compacts nothing. The optimistic proposal record is always dropped once a
// remote proposal exists.
func Compact(l Log, remote *proposal.Proposal) (kept Log, dropped []Entry) {
	if remote == nil {
		return l, nil
	}
	kept = l.withEntries(nil)
	for _, e := range l.Entries {
		if confirmed(e, remote) {
			dropped = append(dropped, e)
			continue
		}
		kept.Entries = append(kept.Entries, e)
	}
	return kept, dropped
}

// confirmed reports whether the remote proposal already contains the action
func confirmed(e Entry, remote *proposal.Proposal) bool {
	switch e.Kind {
	case EntryProposal:
		return true
	case EntryExecution:
		return remote.Executed
	case EntryApproval:
		if e.Vote == nil {
			return true
		}
		_, found := findVote(approvalsOf(remote), e.voter())
		return found
	case EntryVote:
		if e.Vote == nil {
			return true
		}
		voters := votersOf(remote)
		idx, found := findVote(voters, e.voter())
		if !found {
			return false
		}
		return !cachedVoteWins(*e.Vote, voters[idx])
	default:
		return false
	}
}

// cachedVoteWins decides which copy of a vote is newer when both the cache
// and the remote hold one for the same voter. A replaced vote is newer than
// an unreplaced one. When both are replaced, the cached copy wins unless the
// remote already carries the same ballot. A cached vote of unknown weight
// matches on the option alone.
func cachedVoteWins(cached, remote proposal.Vote) bool {
	if cached.Replaced != remote.Replaced {
		return cached.Replaced
	}
	if !cached.Replaced {
		return false
	}
	if cached.Option != remote.Option {
		return true
	}
	if cached.Weight == nil {
		return false
	}
	return cached.Weight.Cmp(remote.WeightOrZero()) != 0
}

// Apply returns a copy of base with the log's pending actions merged in.
// Cached votes and approvals are placed ahead of the remote ones. Token
// tallies are adjusted by the cached vote weight, moving weight away from
// a remote ballot that the cached one replaces. The log is expected to be
// compacted against base first.
func Apply(base *proposal.Proposal, l Log) *proposal.Proposal {
	if base == nil {
		return nil
	}
	ret := base.Clone()
	for _, e := range l.Entries {
		switch e.Kind {
		case EntryApproval:
			applyApproval(ret, e)
		case EntryVote:
			applyVote(ret, e)
		case EntryExecution:
			if e.Execution == nil || ret.Executed {
				continue
			}
			ret.Executed = true
			ret.ExecutionDate = e.Execution.Date
			ret.ExecutionTxHash = e.Execution.TxHash
		}
	}
	return ret
}

func applyApproval(p *proposal.Proposal, e Entry) {
	if e.Vote == nil {
		return
	}
	approval := proposal.Approval(e.Vote.Voter)
	switch t := p.Tally.(type) {
	case *proposal.MultisigTally:
		if _, found := findVote(t.Approvals, approval.Voter); !found {
			t.Approvals = prepend(t.Approvals, approval)
		}
	case *proposal.GaslessTally:
		if _, found := findVote(t.Approvers, approval.Voter); !found {
			t.Approvers = prepend(t.Approvers, approval)
		}
	}
}

func applyVote(p *proposal.Proposal, e Entry) {
	if e.Vote == nil {
		return
	}
	var tally *proposal.TokenVotingTally
	switch t := p.Tally.(type) {
	case *proposal.TokenVotingTally:
		tally = t
	case *proposal.GaslessTally:
		tally = &t.Voting
	default:
		return
	}
	cached := *e.Vote
	cached.Voter = proposal.NormalizeAddress(cached.Voter)
	if idx, found := findVote(tally.Voters, cached.Voter); found {
		existing := tally.Voters[idx]
		if !cachedVoteWins(cached, existing) {
			return
		}
		// Voting power is fixed per proposal, so a replacement of unknown
		// weight carries the weight of the ballot it replaces
		if cached.Weight == nil && existing.Weight != nil {
			cached.Weight = new(big.Int).Set(existing.Weight)
		}
		tally.AddWeight(existing.Option, new(big.Int).Neg(existing.WeightOrZero()))
		tally.Voters = append(tally.Voters[:idx], tally.Voters[idx+1:]...)
	}
	tally.AddWeight(cached.Option, cached.WeightOrZero())
	tally.Voters = prepend(tally.Voters, cached)
}

func approvalsOf(p *proposal.Proposal) []proposal.Vote {
	switch t := p.Tally.(type) {
	case *proposal.MultisigTally:
		return t.Approvals
	case *proposal.GaslessTally:
		return t.Approvers
	default:
		return nil
	}
}

func votersOf(p *proposal.Proposal) []proposal.Vote {
	switch t := p.Tally.(type) {
	case *proposal.TokenVotingTally:
		return t.Voters
	case *proposal.GaslessTally:
		return t.Voting.Voters
	default:
		return nil
	}
}

func findVote(votes []proposal.Vote, voter string) (int, bool) {
	for i, v := range votes {
		if proposal.SameAddress(v.Voter, voter) {
			return i, true
		}
	}
	return -1, false
}

func prepend(votes []proposal.Vote, v proposal.Vote) []proposal.Vote {
	ret := make([]proposal.Vote, 0, len(votes)+1)
	ret = append(ret, v)
	return append(ret, votes...)
}
