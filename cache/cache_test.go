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
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/proposal"
)

// failingStore wraps a MemoryStore, fails reads on demand and counts
// writes
type failingStore struct {
	*cache.MemoryStore
	fail   error
	writes atomic.Int32
}

func (f *failingStore) Set(ctx context.Context, l cache.Log) error {
	f.writes.Add(1)
	return f.MemoryStore.Set(ctx, l)
}

func (f *failingStore) Remove(ctx context.Context, key cache.Key) error {
	f.writes.Add(1)
	return f.MemoryStore.Remove(ctx, key)
}

func (f *failingStore) Get(ctx context.Context, key cache.Key) (*cache.Log, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return f.MemoryStore.Get(ctx, key)
}

var testID = proposal.NewID(1, "0xPlugin", big.NewInt(7))

func newTestCache(t *testing.T) (*cache.Cache, *failingStore) {
	t.Helper()
	store := &failingStore{MemoryStore: cache.NewMemoryStore()}
	c, err := cache.New(cache.CacheConfig{Store: store})
	require.NoError(t, err)
	return c, store
}

func TestNewRequiresStore(t *testing.T) {
	_, err := cache.New(cache.CacheConfig{})
	require.ErrorIs(t, err, cache.ErrStoreRequired)
}

func TestRecordAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, testID, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xAlice"},
	}))
	l, err := c.Get(ctx, testID, proposal.KindMultisig)
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, "0xplugin", l.PluginAddress)
	assert.False(t, l.Entries[0].RecordedAt.IsZero())

	logs, err := c.ListByPluginAddress(ctx, 1, "0xPLUGIN")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	logs, err = c.ListByPluginAddress(ctx, 2, "0xplugin")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRecordSameVoterReplaces(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	for _, opt := range []proposal.VoteOption{proposal.VoteOptionYes, proposal.VoteOptionNo} {
		require.NoError(t, c.Record(ctx, testID, proposal.KindTokenVoting, cache.Entry{
			Kind: cache.EntryVote,
			Vote: &proposal.Vote{Voter: "0xAlice", Option: opt, Weight: big.NewInt(5)},
		}))
	}
	l, err := c.Get(ctx, testID, proposal.KindTokenVoting)
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, proposal.VoteOptionNo, l.Entries[0].Vote.Option)
}

func TestReconcileRemovesEmptyLog(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, testID, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xalice"},
	}))
	remote := &proposal.Proposal{
		ID:   testID,
		Kind: proposal.KindMultisig,
		Tally: &proposal.MultisigTally{
			Approvals: []proposal.Vote{proposal.Approval("0xALICE")},
		},
	}
	l, err := c.Reconcile(ctx, testID, proposal.KindMultisig, remote)
	require.NoError(t, err)
	assert.True(t, l.Empty())
	assert.Equal(t, 0, store.Len())
}

func TestReconcileWithoutIndexedActionsSkipsWrite(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, testID, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xalice"},
	}))
	require.Equal(t, int32(1), store.writes.Load())
	remote := &proposal.Proposal{
		ID:    testID,
		Kind:  proposal.KindMultisig,
		Tally: &proposal.MultisigTally{Approvals: []proposal.Vote{proposal.Approval("0xbob")}},
	}
	for range 3 {
		l, err := c.Reconcile(ctx, testID, proposal.KindMultisig, remote)
		require.NoError(t, err)
		assert.Len(t, l.Entries, 1)
	}
	assert.Equal(t, int32(1), store.writes.Load())
	assert.Equal(t, 1, store.Len())
}

func TestUpdateErrorKeepsLog(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, testID, proposal.KindMultisig, cache.Entry{
		Kind: cache.EntryApproval,
		Vote: &proposal.Vote{Voter: "0xalice"},
	}))
	boom := errors.New("boom")
	_, err := c.Update(ctx, testID, proposal.KindMultisig, func(cache.Log) (cache.Log, error) {
		return cache.Log{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.Len())

	store.fail = boom
	_, err = c.Get(ctx, testID, proposal.KindMultisig)
	require.ErrorIs(t, err, boom)
}

func TestConcurrentRecordsAreSerialized(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			voter := "0x" + big.NewInt(int64(i)+1).Text(16)
			assert.NoError(t, c.Record(ctx, testID, proposal.KindMultisig, cache.Entry{
				Kind: cache.EntryApproval,
				Vote: &proposal.Vote{Voter: voter},
			}))
		}()
	}
	wg.Wait()
	l, err := c.Get(ctx, testID, proposal.KindMultisig)
	require.NoError(t, err)
	assert.Len(t, l.Entries, 50)
}
