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

package cache_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/proposal"
)

func tokenVotingRemote(voters ...proposal.Vote) *proposal.Proposal {
	tally := &proposal.TokenVotingTally{
		Yes:              new(big.Int),
		No:               new(big.Int),
		Abstain:          new(big.Int),
		TotalVotingPower: big.NewInt(1000),
		Mode:             proposal.VotingModeVoteReplacement,
	}
	for _, v := range voters {
		tally.AddWeight(v.Option, v.WeightOrZero())
	}
	tally.Voters = voters
	return &proposal.Proposal{ID: testID, Kind: proposal.KindTokenVoting, Tally: tally}
}

func voteEntry(voter string, opt proposal.VoteOption, weight int64, replaced bool) cache.Entry {
	return cache.Entry{
		Kind: cache.EntryVote,
		Vote: &proposal.Vote{
			Voter:    voter,
			Option:   opt,
			Weight:   big.NewInt(weight),
			Replaced: replaced,
		},
	}
}

func logWith(entries ...cache.Entry) cache.Log {
	l := cache.NewLog(testID, proposal.KindTokenVoting)
	for _, e := range entries {
		l = l.Append(e)
	}
	return l
}

func TestCompactNilRemoteKeepsEverything(t *testing.T) {
	l := logWith(voteEntry("0xa", proposal.VoteOptionYes, 1, false))
	kept, dropped := cache.Compact(l, nil)
	assert.Equal(t, l, kept)
	assert.Empty(t, dropped)
}

func TestCompactDropsProposalOnceIndexed(t *testing.T) {
	l := logWith(cache.Entry{
		Kind:     cache.EntryProposal,
		Proposal: &proposal.Proposal{ID: testID, Kind: proposal.KindTokenVoting},
	})
	kept, dropped := cache.Compact(l, tokenVotingRemote())
	assert.True(t, kept.Empty())
	assert.Len(t, dropped, 1)
}

func TestApplyNewVoteAddsWeight(t *testing.T) {
	remote := tokenVotingRemote(proposal.Vote{
		Voter: "0xbob", Option: proposal.VoteOptionNo, Weight: big.NewInt(30),
	})
	l := logWith(voteEntry("0xAlice", proposal.VoteOptionYes, 50, false))
	kept, _ := cache.Compact(l, remote)
	require.Len(t, kept.Entries, 1)

	merged := cache.Apply(remote, kept)
	tally := merged.Tally.(*proposal.TokenVotingTally)
	assert.Equal(t, int64(50), tally.Yes.Int64())
	assert.Equal(t, int64(30), tally.No.Int64())
	require.Len(t, tally.Voters, 2)
	assert.Equal(t, "0xalice", tally.Voters[0].Voter)

	// The remote record is never mutated
	assert.Equal(t, int64(0), remote.Tally.(*proposal.TokenVotingTally).Yes.Int64())
}

func TestVoteReplacementTieBreak(t *testing.T) {
	tests := []struct {
		name        string
		cached      cache.Entry
		remote      proposal.Vote
		keepCached  bool
		expectYes   int64
		expectNo    int64
		expectFirst proposal.VoteOption
	}{
		{
			name:   "indexed original vote is superseded by cached replacement",
			cached: voteEntry("0xa", proposal.VoteOptionNo, 40, true),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionYes, Weight: big.NewInt(40),
			},
			keepCached:  true,
			expectYes:   0,
			expectNo:    40,
			expectFirst: proposal.VoteOptionNo,
		},
		{
			name:   "indexed replacement wins over cached original",
			cached: voteEntry("0xa", proposal.VoteOptionYes, 40, false),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(40), Replaced: true,
			},
			keepCached:  false,
			expectYes:   0,
			expectNo:    40,
			expectFirst: proposal.VoteOptionNo,
		},
		{
			name:   "both replaced with different ballot keeps cached",
			cached: voteEntry("0xa", proposal.VoteOptionYes, 40, true),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(40), Replaced: true,
			},
			keepCached:  true,
			expectYes:   40,
			expectNo:    0,
			expectFirst: proposal.VoteOptionYes,
		},
		{
			name:   "both replaced with same ballot drops cached",
			cached: voteEntry("0xa", proposal.VoteOptionNo, 40, true),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(40), Replaced: true,
			},
			keepCached:  false,
			expectYes:   0,
			expectNo:    40,
			expectFirst: proposal.VoteOptionNo,
		},
		{
			name: "indexed replacement confirms cached replacement of unknown weight",
			cached: cache.Entry{
				Kind: cache.EntryVote,
				Vote: &proposal.Vote{Voter: "0xa", Option: proposal.VoteOptionNo, Replaced: true},
			},
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(100), Replaced: true,
			},
			keepCached:  false,
			expectYes:   0,
			expectNo:    100,
			expectFirst: proposal.VoteOptionNo,
		},
		{
			name: "cached replacement of unknown weight takes the indexed weight",
			cached: cache.Entry{
				Kind: cache.EntryVote,
				Vote: &proposal.Vote{Voter: "0xa", Option: proposal.VoteOptionYes, Replaced: true},
			},
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(100), Replaced: true,
			},
			keepCached:  true,
			expectYes:   100,
			expectNo:    0,
			expectFirst: proposal.VoteOptionYes,
		},
		{
			name:   "both replaced with different weight keeps cached",
			cached: voteEntry("0xa", proposal.VoteOptionNo, 60, true),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionNo, Weight: big.NewInt(100), Replaced: true,
			},
			keepCached:  true,
			expectYes:   0,
			expectNo:    60,
			expectFirst: proposal.VoteOptionNo,
		},
		{
			name:   "plain indexed vote confirms cached vote",
			cached: voteEntry("0xA", proposal.VoteOptionYes, 40, false),
			remote: proposal.Vote{
				Voter: "0xa", Option: proposal.VoteOptionYes, Weight: big.NewInt(40),
			},
			keepCached:  false,
			expectYes:   40,
			expectNo:    0,
			expectFirst: proposal.VoteOptionYes,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			remote := tokenVotingRemote(test.remote)
			kept, dropped := cache.Compact(logWith(test.cached), remote)
			if test.keepCached {
				assert.Len(t, kept.Entries, 1)
				assert.Empty(t, dropped)
			} else {
				assert.Empty(t, kept.Entries)
				assert.Len(t, dropped, 1)
			}
			merged := cache.Apply(remote, kept)
			tally := merged.Tally.(*proposal.TokenVotingTally)
			assert.Equal(t, test.expectYes, tally.Yes.Int64())
			assert.Equal(t, test.expectNo, tally.No.Int64())
			require.Len(t, tally.Voters, 1)
			assert.Equal(t, test.expectFirst, tally.Voters[0].Option)
		})
	}
}

func TestApplyMultisigApprovalIdempotent(t *testing.T) {
	remote := &proposal.Proposal{
		ID:   testID,
		Kind: proposal.KindMultisig,
		Tally: &proposal.MultisigTally{
			Approvals:    []proposal.Vote{proposal.Approval("0xbob")},
			MinApprovals: 2,
		},
	}
	l := cache.NewLog(testID, proposal.KindMultisig).Append(cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xAlice"},
	})
	kept, _ := cache.Compact(l, remote)
	once := cache.Apply(remote, kept)
	twice := cache.Apply(once, kept)
	assert.Equal(t, once, twice)
	approvals := once.Tally.(*proposal.MultisigTally).Approvals
	require.Len(t, approvals, 2)
	assert.Equal(t, "0xalice", approvals[0].Voter)
}

func TestApplyGaslessVoteAndApproval(t *testing.T) {
	remote := &proposal.Proposal{
		ID:   testID,
		Kind: proposal.KindGasless,
		Tally: &proposal.GaslessTally{
			Voting: proposal.TokenVotingTally{
				Yes:              big.NewInt(10),
				TotalVotingPower: big.NewInt(100),
			},
		},
	}
	l := cache.NewLog(testID, proposal.KindGasless).
		Append(voteEntry("0xa", proposal.VoteOptionYes, 5, false)).
		Append(cache.Entry{Kind: cache.EntryApproval, Vote: &proposal.Vote{Voter: "0xb"}})
	merged := cache.Apply(remote, l)
	tally := merged.Tally.(*proposal.GaslessTally)
	assert.Equal(t, int64(15), tally.Voting.Yes.Int64())
	require.Len(t, tally.Approvers, 1)
	assert.Equal(t, "0xb", tally.Approvers[0].Voter)
}

func TestApplyExecution(t *testing.T) {
	remote := tokenVotingRemote()
	when := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := logWith(cache.Entry{
		Kind:      cache.EntryExecution,
		Execution: &cache.Execution{Executor: "0xa", TxHash: "0xfeed", Date: when},
	})
	kept, _ := cache.Compact(l, remote)
	merged := cache.Apply(remote, kept)
	assert.True(t, merged.Executed)
	assert.Equal(t, "0xfeed", merged.ExecutionTxHash)
	assert.Equal(t, when, merged.ExecutionDate)

	// Once the indexer reports the execution, the entry goes away
	remote.Executed = true
	kept, dropped := cache.Compact(l, remote)
	assert.True(t, kept.Empty())
	assert.Len(t, dropped, 1)
}
