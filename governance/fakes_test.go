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

package governance_test

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/chain/chaintest"
	"github.com/blinklabs-io/daogov/content"
	"github.com/blinklabs-io/daogov/database/plugin/blob/badger"
	"github.com/blinklabs-io/daogov/election"
	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/transaction"
)

const (
	testChainID = 1
	testPlugin  = "0x00000000000000000000000000000000000000aa"
	testAccount = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	otherVoter  = "0x00000000000000000000000000000000000000b1"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeIndexer serves proposals from memory. OnProposal runs before every
// single proposal lookup.
type fakeIndexer struct {
	mu         sync.Mutex
	proposals  map[string]*proposal.Proposal
	lookups    int
	err        error
	OnProposal func(lookups int)
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{proposals: make(map[string]*proposal.Proposal)}
}

func (f *fakeIndexer) put(p *proposal.Proposal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals[p.ID.Key()] = p.Clone()
}

func (f *fakeIndexer) Proposal(
	_ context.Context,
	kind proposal.Kind,
	id proposal.ID,
) (*proposal.Proposal, error) {
	f.mu.Lock()
	f.lookups++
	hook := f.OnProposal
	lookups := f.lookups
	f.mu.Unlock()
	if hook != nil {
		hook(lookups)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.proposals[id.Key()]
	if !ok || p.Kind != kind {
		return nil, nil
	}
	return p.Clone(), nil
}

func (f *fakeIndexer) Proposals(
	_ context.Context,
	filters indexer.Filters,
) (*indexer.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var all []*proposal.Proposal
	for _, p := range f.proposals {
		if p.Kind != filters.Kind || !proposal.SameAddress(p.ID.PluginAddress, filters.PluginAddress) {
			continue
		}
		all = append(all, p.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreationDate.After(all[j].CreationDate)
	})
	start := (filters.Page - 1) * filters.Count
	if start > len(all) {
		start = len(all)
	}
	end := min(start+filters.Count, len(all))
	return &indexer.Page{
		Items:   all[start:end],
		Page:    filters.Page,
		Count:   filters.Count,
		HasMore: end < len(all),
	}, nil
}

func (f *fakeIndexer) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

type fakeElections struct {
	mu            sync.Mutex
	accounts      []string
	elections     []election.ElectionParams
	votes         []election.VoteParams
	failElections int
	weight        *big.Int
}

var errElectionService = errors.New("election service unavailable")

const testElectionID = "0x00000000000000000000000000000000000000000000000000000000000000e1"

func (f *fakeElections) CreateAccount(_ context.Context, address string) (*election.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, address)
	return &election.Account{Address: address}, nil
}

func (f *fakeElections) CreateElection(
	_ context.Context,
	params election.ElectionParams,
) (*election.Election, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failElections > 0 {
		f.failElections--
		return nil, errElectionService
	}
	f.elections = append(f.elections, params)
	return &election.Election{ID: testElectionID, Status: "ready"}, nil
}

func (f *fakeElections) SubmitVote(_ context.Context, params election.VoteParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, params)
	return "vote-1", nil
}

func (f *fakeElections) FetchCensusProof(
	_ context.Context,
	_ string,
	address string,
) (*election.CensusProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &election.CensusProof{Address: address, Weight: f.weight, Proof: "proof"}, nil
}

type harness struct {
	svc       *governance.Service
	indexer   *fakeIndexer
	elections *fakeElections
	chain     *chaintest.Client
	store     *cache.MemoryStore
	content   *content.LocalStore
}

func newHarness(t *testing.T, tweak ...func(*governance.Config)) *harness {
	t.Helper()
	h := &harness{
		indexer:   newFakeIndexer(),
		elections: &fakeElections{weight: big.NewInt(7)},
		chain:     &chaintest.Client{},
		store:     cache.NewMemoryStore(),
	}
	c, err := cache.New(cache.CacheConfig{
		Store: h.store,
		Now:   func() time.Time { return testNow },
	})
	require.NoError(t, err)
	pipeline, err := transaction.NewPipeline(transaction.PipelineConfig{
		Client:        h.chain,
		Confirmations: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pipeline.Shutdown(ctx)
	})
	blobStore, err := badger.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobStore.Close() })
	h.content = content.NewLocalStore(blobStore, nil)
	cfg := governance.Config{
		ChainID:         testChainID,
		Indexer:         h.indexer,
		Cache:           c,
		Pipeline:        pipeline,
		Elections:       h.elections,
		Content:         h.content,
		Account:         testAccount,
		Now:             func() time.Time { return testNow },
		PollInterval:    time.Millisecond,
		MaxPollInterval: 5 * time.Millisecond,
		IndexTimeout:    5 * time.Second,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	h.svc, err = governance.New(cfg)
	require.NoError(t, err)
	return h
}

func testID(n int64) proposal.ID {
	return proposal.NewID(testChainID, testPlugin, big.NewInt(n))
}

func multisigProposal(n int64, approvers ...string) *proposal.Proposal {
	approvals := make([]proposal.Vote, 0, len(approvers))
	for _, a := range approvers {
		approvals = append(approvals, proposal.Approval(a))
	}
	return &proposal.Proposal{
		ID:           testID(n),
		Kind:         proposal.KindMultisig,
		CreationDate: testNow.Add(-time.Duration(n) * time.Hour),
		StartDate:    testNow.Add(-time.Hour),
		EndDate:      testNow.Add(24 * time.Hour),
		Actions:      []proposal.Action{{To: "0x00000000000000000000000000000000000000dd"}},
		Tally: &proposal.MultisigTally{
			Approvals:    approvals,
			MinApprovals: 2,
		},
	}
}

func tokenProposal(n int64, voters ...proposal.Vote) *proposal.Proposal {
	tally := &proposal.TokenVotingTally{
		Yes:              new(big.Int),
		No:               new(big.Int),
		Abstain:          new(big.Int),
		TotalVotingPower: big.NewInt(100),
		SupportThreshold: 500_000,
		MinParticipation: 100_000,
	}
	for _, v := range voters {
		tally.AddWeight(v.Option, v.WeightOrZero())
		tally.Voters = append(tally.Voters, v)
	}
	return &proposal.Proposal{
		ID:           testID(n),
		Kind:         proposal.KindTokenVoting,
		CreationDate: testNow.Add(-time.Duration(n) * time.Hour),
		StartDate:    testNow.Add(-time.Hour),
		EndDate:      testNow.Add(24 * time.Hour),
		Tally:        tally,
	}
}

func waitJob(t *testing.T, job *transaction.Job) transaction.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := job.Wait(ctx)
	require.NoError(t, err)
	return state
}
