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

// Package chain defines the contract between the transaction pipeline and
// the EVM chain it submits to.
package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrUserRejected is returned when the signer declines a transaction
	ErrUserRejected = errors.New("transaction rejected by signer")
	// ErrTransactionReverted is returned when a mined transaction failed
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrTransactionDropped is returned when a transaction disappears from
	// the mempool without being mined
	ErrTransactionDropped = errors.New("transaction dropped")
)

// Tx is an unsigned contract call
type Tx struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int
	// Gas is the gas limit. Zero lets the client pick one.
	Gas uint64
}

// Log is an event emitted by a mined transaction
type Log struct {
	Address string
	Topics  []string
	Data    []byte
}

// Receipt describes a mined transaction
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	// Status is 1 for success and 0 for a reverted transaction
	Status  uint64
	GasUsed uint64
	Logs    []Log
}

// Succeeded returns true when the transaction did not revert
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// Client is the chain access needed to submit and confirm transactions
type Client interface {
	// ChainID returns the id of the connected chain
	ChainID(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, tx Tx) (uint64, error)
	// SendTransaction signs and broadcasts the transaction, returning its hash
	SendTransaction(ctx context.Context, tx Tx) (string, error)
	// WaitForReceipt blocks until the transaction has the requested number
	// of confirmations. A reverted transaction returns its receipt along
	// with ErrTransactionReverted.
	WaitForReceipt(
		ctx context.Context,
		txHash string,
		confirmations uint64,
	) (*Receipt, error)
}
