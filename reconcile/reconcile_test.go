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

package reconcile_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/reconcile"
)

const testPlugin = "0x00000000000000000000000000000000000000aa"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T) (*reconcile.Reconciler, *cache.Cache, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	c, err := cache.New(cache.CacheConfig{Store: store})
	require.NoError(t, err)
	r, err := reconcile.New(reconcile.ReconcilerConfig{Cache: c})
	require.NoError(t, err)
	return r, c, store
}

func multisig(id proposal.ID, created time.Time, approvers ...string) *proposal.Proposal {
	approvals := make([]proposal.Vote, 0, len(approvers))
	for _, a := range approvers {
		approvals = append(approvals, proposal.Approval(a))
	}
	return &proposal.Proposal{
		ID:           id,
		Kind:         proposal.KindMultisig,
		CreationDate: created,
		StartDate:    created,
		EndDate:      created.Add(24 * time.Hour),
		Actions:      []proposal.Action{{To: "0xdao"}},
		Tally: &proposal.MultisigTally{
			Approvals:    approvals,
			MinApprovals: 3,
		},
	}
}

func TestNewRequiresCache(t *testing.T) {
	_, err := reconcile.New(reconcile.ReconcilerConfig{})
	require.ErrorIs(t, err, reconcile.ErrCacheRequired)
}

// A user's approval shows up immediately and the cached entry is deleted
// once the indexer reports it
func TestProposalSelfActionVisibility(t *testing.T) {
	r, c, store := newReconciler(t)
	ctx := context.Background()
	id := proposal.NewID(1, testPlugin, big.NewInt(1))
	require.NoError(t, c.Record(ctx, id, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xC"},
	}))

	remote := multisig(id, testNow.Add(-time.Hour), "0xa", "0xb")
	view, err := r.Proposal(ctx, proposal.KindMultisig, id, remote)
	require.NoError(t, err)
	approvals := view.Tally.(*proposal.MultisigTally).Approvals
	require.Len(t, approvals, 3)
	assert.Equal(t, "0xc", approvals[0].Voter)
	assert.Equal(t, proposal.StatusSucceeded, proposal.ResolveStatus(view, testNow))
	assert.Equal(t, 1, store.Len())

	// Indexer caught up
	remote = multisig(id, testNow.Add(-time.Hour), "0xa", "0xb", "0xC")
	view, err = r.Proposal(ctx, proposal.KindMultisig, id, remote)
	require.NoError(t, err)
	assert.Len(t, view.Tally.(*proposal.MultisigTally).Approvals, 3)
	assert.Equal(t, 0, store.Len())
}

func TestProposalIdempotent(t *testing.T) {
	r, c, store := newReconciler(t)
	ctx := context.Background()
	id := proposal.NewID(1, testPlugin, big.NewInt(2))
	require.NoError(t, c.Record(ctx, id, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xd"},
	}))
	remote := multisig(id, testNow.Add(-time.Hour), "0xa")
	first, err := r.Proposal(ctx, proposal.KindMultisig, id, remote)
	require.NoError(t, err)
	before, err := c.Get(ctx, id, proposal.KindMultisig)
	require.NoError(t, err)

	second, err := r.Proposal(ctx, proposal.KindMultisig, id, remote)
	require.NoError(t, err)
	after, err := c.Get(ctx, id, proposal.KindMultisig)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.Len())
}

func TestProposalOptimisticWithoutRemote(t *testing.T) {
	r, c, _ := newReconciler(t)
	ctx := context.Background()
	id := proposal.NewID(1, testPlugin, big.NewInt(3))

	view, err := r.Proposal(ctx, proposal.KindMultisig, id, nil)
	require.NoError(t, err)
	assert.Nil(t, view)

	require.NoError(t, c.Record(ctx, id, proposal.KindMultisig, cache.Entry{
		Kind:     cache.EntryProposal,
		Proposal: multisig(id, testNow),
	}))
	require.NoError(t, c.Record(ctx, id, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xcreator"},
	}))
	view, err = r.Proposal(ctx, proposal.KindMultisig, id, nil)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Len(t, view.Tally.(*proposal.MultisigTally).Approvals, 1)
}

func TestPageMergesOptimisticProposals(t *testing.T) {
	r, c, store := newReconciler(t)
	ctx := context.Background()
	indexed := proposal.NewID(1, testPlugin, big.NewInt(10))
	promoted := proposal.NewID(1, testPlugin, big.NewInt(11))
	older := proposal.NewID(1, testPlugin, big.NewInt(12))
	newer := proposal.NewID(1, testPlugin, big.NewInt(13))
	otherPlugin := proposal.NewID(1, "0xbb", big.NewInt(14))

	for _, tc := range []struct {
		id      proposal.ID
		created time.Time
	}{
		{promoted, testNow.Add(-3 * time.Hour)},
		{older, testNow.Add(-2 * time.Hour)},
		{newer, testNow.Add(-time.Hour)},
		{otherPlugin, testNow},
	} {
		require.NoError(t, c.Record(ctx, tc.id, proposal.KindMultisig, cache.Entry{
			Kind:     cache.EntryProposal,
			Proposal: multisig(tc.id, tc.created),
		}))
	}

	page := []*proposal.Proposal{
		multisig(indexed, testNow.Add(-48*time.Hour)),
		multisig(promoted, testNow.Add(-3*time.Hour)),
	}
	ret, err := r.Page(ctx, 1, testPlugin, page)
	require.NoError(t, err)
	require.Len(t, ret, 4)
	assert.Equal(t, newer, ret[0].ID)
	assert.Equal(t, older, ret[1].ID)
	assert.Equal(t, indexed, ret[2].ID)
	assert.Equal(t, promoted, ret[3].ID)

	// The promoted proposal's optimistic copy is gone
	l, err := c.Get(ctx, promoted, proposal.KindMultisig)
	require.NoError(t, err)
	assert.True(t, l.Empty())
	assert.Equal(t, 3, store.Len())
}

func TestPageTokenVotingWeights(t *testing.T) {
	r, c, _ := newReconciler(t)
	ctx := context.Background()
	id := proposal.NewID(1, testPlugin, big.NewInt(20))
	require.NoError(t, c.Record(ctx, id, proposal.KindTokenVoting, cache.Entry{
		Kind: cache.EntryVote,
		Vote: &proposal.Vote{
			Voter:  "0xvoter",
			Option: proposal.VoteOptionYes,
			Weight: big.NewInt(600),
		},
	}))
	remote := &proposal.Proposal{
		ID:        id,
		Kind:      proposal.KindTokenVoting,
		StartDate: testNow.Add(-time.Hour),
		EndDate:   testNow.Add(time.Hour),
		Actions:   []proposal.Action{{To: "0xdao"}},
		Tally: &proposal.TokenVotingTally{
			Yes:              big.NewInt(0),
			No:               big.NewInt(0),
			Abstain:          big.NewInt(0),
			TotalVotingPower: big.NewInt(1000),
			SupportThreshold: 500_000,
			MinParticipation: 150_000,
			Mode:             proposal.VotingModeEarlyExecution,
		},
	}
	ret, err := r.Page(ctx, 1, testPlugin, []*proposal.Proposal{remote})
	require.NoError(t, err)
	require.Len(t, ret, 1)
	tally := ret[0].Tally.(*proposal.TokenVotingTally)
	assert.Equal(t, int64(600), tally.Yes.Int64())
	assert.Equal(t, proposal.StatusSucceeded, proposal.ResolveStatus(ret[0], testNow))
}

func TestProposalReplacementOfUnknownWeightIsCompacted(t *testing.T) {
	r, c, store := newReconciler(t)
	ctx := context.Background()
	id := proposal.NewID(1, testPlugin, big.NewInt(21))
	require.NoError(t, c.Record(ctx, id, proposal.KindTokenVoting, cache.Entry{
		Kind: cache.EntryVote,
		Vote: &proposal.Vote{
			Voter:    "0xvoter",
			Option:   proposal.VoteOptionNo,
			Replaced: true,
		},
	}))
	remote := &proposal.Proposal{
		ID:        id,
		Kind:      proposal.KindTokenVoting,
		StartDate: testNow.Add(-time.Hour),
		EndDate:   testNow.Add(time.Hour),
		Tally: &proposal.TokenVotingTally{
			Yes:              big.NewInt(0),
			No:               big.NewInt(100),
			Abstain:          big.NewInt(0),
			TotalVotingPower: big.NewInt(1000),
			Voters: []proposal.Vote{{
				Voter:    "0xvoter",
				Option:   proposal.VoteOptionNo,
				Weight:   big.NewInt(100),
				Replaced: true,
			}},
			Mode: proposal.VotingModeVoteReplacement,
		},
	}
	for range 3 {
		ret, err := r.Proposal(ctx, proposal.KindTokenVoting, id, remote)
		require.NoError(t, err)
		tally := ret.Tally.(*proposal.TokenVotingTally)
		assert.Equal(t, int64(100), tally.No.Int64())
		assert.Len(t, tally.Voters, 1)
	}
	assert.Equal(t, 0, store.Len())
}
