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

package eth_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/chain/eth"
)

const testTo = "0x00000000000000000000000000000000000000aa"

type fakeBackend struct {
	mu        sync.Mutex
	head      uint64
	receipts  map[common.Hash]*types.Receipt
	sent      []*types.Transaction
	estimate  uint64
	lookups   int
	onLookups func(n int)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{receipts: make(map[common.Hash]*types.Receipt), estimate: 21_000}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(137), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(100)}, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	f.lookups++
	n := f.lookups
	hook := f.onLookups
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) mine(hash common.Hash, block uint64, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(block),
		GasUsed:     21_000,
		Logs: []*types.Log{{
			Address: common.HexToAddress(testTo),
			Topics:  []common.Hash{common.HexToHash("0x01")},
		}},
	}
	if block > f.head {
		f.head = block
	}
}

func newTestClient(t *testing.T, backend *fakeBackend, signer eth.Signer) *eth.Client {
	t.Helper()
	c, err := eth.New(context.Background(), eth.Config{
		Backend:        backend,
		Signer:         signer,
		PollInterval:   time.Millisecond,
		MaxPollDelay:   5 * time.Millisecond,
		ReceiptTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func newKeySigner(t *testing.T) *eth.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return eth.NewKeySigner(key)
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := eth.New(context.Background(), eth.Config{})
	require.ErrorIs(t, err, eth.ErrBackendRequired)
}

func TestSendTransactionSignsDynamicFeeTx(t *testing.T) {
	backend := newFakeBackend()
	signer := newKeySigner(t)
	c := newTestClient(t, backend, signer)

	hash, err := c.SendTransaction(context.Background(), chain.Tx{
		To:   testTo,
		Data: []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, eth.DefaultGasLimit, tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, int64(202), tx.GasFeeCap().Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)
}

func TestSendTransactionKeepsEstimate(t *testing.T) {
	backend := newFakeBackend()
	c := newTestClient(t, backend, newKeySigner(t))
	gas, err := c.EstimateGas(context.Background(), chain.Tx{To: testTo})
	require.NoError(t, err)
	_, err = c.SendTransaction(context.Background(), chain.Tx{To: testTo, Gas: gas})
	require.NoError(t, err)
	assert.Equal(t, uint64(21_000), backend.sent[0].Gas())
}

func TestSendTransactionRejected(t *testing.T) {
	backend := newFakeBackend()
	signer := eth.ConfirmingSigner{
		Signer:  newKeySigner(t),
		Approve: func(context.Context, *types.Transaction) bool { return false },
	}
	c := newTestClient(t, backend, signer)
	_, err := c.SendTransaction(context.Background(), chain.Tx{To: testTo})
	require.ErrorIs(t, err, chain.ErrUserRejected)
	assert.Empty(t, backend.sent)
}

func TestSendTransactionWithoutSigner(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	_, err := c.SendTransaction(context.Background(), chain.Tx{To: testTo})
	require.ErrorIs(t, err, eth.ErrSignerRequired)
}

func TestWaitForReceiptConfirmations(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0xabc")
	backend.onLookups = func(n int) {
		switch n {
		case 3:
			backend.mine(hash, 10, types.ReceiptStatusSuccessful)
		case 5:
			backend.mu.Lock()
			backend.head = 11
			backend.mu.Unlock()
		}
	}
	c := newTestClient(t, backend, nil)
	receipt, err := c.WaitForReceipt(context.Background(), hash.Hex(), 2)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(10), receipt.BlockNumber)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, common.HexToAddress(testTo).Hex(), receipt.Logs[0].Address)
	assert.GreaterOrEqual(t, backend.lookups, 5)
}

func TestWaitForReceiptReverted(t *testing.T) {
	backend := newFakeBackend()
	hash := common.HexToHash("0xdef")
	backend.mine(hash, 3, types.ReceiptStatusFailed)
	c := newTestClient(t, backend, nil)
	receipt, err := c.WaitForReceipt(context.Background(), hash.Hex(), 1)
	require.ErrorIs(t, err, chain.ErrTransactionReverted)
	require.NotNil(t, receipt)
	assert.False(t, receipt.Succeeded())
}

func TestWaitForReceiptDropped(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	_, err := c.WaitForReceipt(context.Background(), "0x1234", 1)
	require.ErrorIs(t, err, chain.ErrTransactionDropped)
}

func TestWaitForReceiptCanceled(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitForReceipt(ctx, "0x1234", 1)
	require.ErrorIs(t, err, context.Canceled)
}
