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

// Package chaintest provides a scriptable chain.Client for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/blinklabs-io/daogov/chain"
)

// DefaultGas is returned by EstimateGas when no EstimateFunc is set
const DefaultGas = 21_000

// Client is an in-memory chain.Client. Each hook is optional; the default
// behavior is a successful estimate, send and confirmation.
type Client struct {
	EstimateFunc func(ctx context.Context, tx chain.Tx) (uint64, error)
	SendFunc     func(ctx context.Context, tx chain.Tx) (string, error)
	WaitFunc     func(ctx context.Context, hash string, confirmations uint64) (*chain.Receipt, error)
	// Logs are attached to receipts produced by the default WaitFunc
	Logs []chain.Log

	mu        sync.Mutex
	estimates int
	sent      []chain.Tx
	waits     []uint64
}

var _ chain.Client = (*Client)(nil)

func (c *Client) ChainID(context.Context) (uint64, error) {
	return 1, nil
}

func (c *Client) EstimateGas(ctx context.Context, tx chain.Tx) (uint64, error) {
	c.mu.Lock()
	c.estimates++
	fn := c.EstimateFunc
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, tx)
	}
	return DefaultGas, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx chain.Tx) (string, error) {
	c.mu.Lock()
	fn := c.SendFunc
	c.mu.Unlock()
	if fn != nil {
		hash, err := fn(ctx, tx)
		if err != nil {
			return "", err
		}
		c.record(tx)
		return hash, nil
	}
	n := c.record(tx)
	return fmt.Sprintf("0x%064x", n), nil
}

func (c *Client) WaitForReceipt(
	ctx context.Context,
	hash string,
	confirmations uint64,
) (*chain.Receipt, error) {
	c.mu.Lock()
	c.waits = append(c.waits, confirmations)
	fn := c.WaitFunc
	logs := c.Logs
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, hash, confirmations)
	}
	return &chain.Receipt{
		TxHash:      hash,
		BlockNumber: 100,
		Status:      1,
		GasUsed:     DefaultGas,
		Logs:        logs,
	}, nil
}

func (c *Client) record(tx chain.Tx) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	return len(c.sent)
}

// Sent returns the transactions broadcast so far
func (c *Client) Sent() []chain.Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chain.Tx(nil), c.sent...)
}

// Estimates returns the number of EstimateGas calls
func (c *Client) Estimates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimates
}

// Confirmations returns the confirmation counts requested per wait
func (c *Client) Confirmations() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.waits...)
}

// SetLogs replaces the logs attached to default receipts
func (c *Client) SetLogs(logs []chain.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logs = logs
}
