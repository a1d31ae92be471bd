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

package node

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/chain/chaintest"
	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/proposal"
)

type emptyIndexer struct{}

func (emptyIndexer) Proposal(context.Context, proposal.Kind, proposal.ID) (*proposal.Proposal, error) {
	return nil, nil
}

func (emptyIndexer) Proposals(_ context.Context, f indexer.Filters) (*indexer.Page, error) {
	return &indexer.Page{Page: f.Page, Count: f.Count}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ChainID:           1,
		Confirmations:     1,
		LongWaitThreshold: time.Minute,
		IndexTimeout:      time.Minute,
		DataDir:           t.TempDir(),
		BlobPlugin:        "badger",
		CachePlugin:       "sqlite",
		ShutdownTimeout:   5 * time.Second,
	}
}

func closeSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestOpenSession(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(context.Background(), cfg, SessionOptions{
		ChainClient: &chaintest.Client{},
		Indexer:     emptyIndexer{},
	})
	require.NoError(t, err)
	defer closeSession(t, s)

	gov := s.Governance()
	require.NotNil(t, gov)
	assert.Equal(t, uint64(1), gov.ChainID())
	assert.Empty(t, gov.Account())
	assert.NotNil(t, s.EventBus())

	// Reads go through the indexer and the sqlite action cache
	_, err = gov.GetProposal(
		context.Background(),
		proposal.KindMultisig,
		proposal.NewID(1, "0x00000000000000000000000000000000000000aa", big.NewInt(1)),
	)
	assert.ErrorIs(t, err, governance.ErrNotFound)
}

func TestOpenSessionChainMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChainID = 137
	_, err := Open(context.Background(), cfg, SessionOptions{
		ChainClient: &chaintest.Client{},
		Indexer:     emptyIndexer{},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChainMismatch))

	// The database was released and can be opened again
	cfg.ChainID = 1
	s, err := Open(context.Background(), cfg, SessionOptions{
		ChainClient: &chaintest.Client{},
		Indexer:     emptyIndexer{},
	})
	require.NoError(t, err)
	closeSession(t, s)
}

func TestOpenSessionRequiresIndexer(t *testing.T) {
	cfg := testConfig(t)
	_, err := Open(context.Background(), cfg, SessionOptions{
		ChainClient: &chaintest.Client{},
	})
	assert.ErrorIs(t, err, governance.ErrIndexerRequired)
}

func TestOpenSessionInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Confirmations = 0
	_, err := Open(context.Background(), cfg, SessionOptions{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRedacted(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexerApiKey = "secret"
	out := redacted(cfg)
	assert.Equal(t, "REDACTED", out.IndexerApiKey)
	assert.Empty(t, out.ElectionApiKey)
	assert.Equal(t, "secret", cfg.IndexerApiKey)
}

func TestSetupTracingNone(t *testing.T) {
	cfg := testConfig(t)
	tp, shutdown, err := setupTracing(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, shutdown(context.Background()))

	cfg.TracingExporter = config.TracingStdout
	tp, shutdown, err = setupTracing(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
