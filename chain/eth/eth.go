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

// Package eth implements chain.Client on top of go-ethereum's ethclient.
package eth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/blinklabs-io/daogov/chain"
)

const (
	// DefaultGasLimit is used when a transaction is sent without an estimate
	DefaultGasLimit = uint64(5_000_000)

	DefaultPollInterval   = 2 * time.Second
	DefaultMaxPollDelay   = 15 * time.Second
	DefaultReceiptTimeout = 10 * time.Minute
)

var (
	ErrBackendRequired = errors.New("eth client requires a backend or RPC URL")
	ErrSignerRequired  = errors.New("eth client requires a signer to send transactions")

	errReceiptPending = errors.New("receipt not yet available")
)

// Backend is the subset of ethclient.Client used by Client
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	// RPCURL is dialed when no Backend is provided
	RPCURL         string
	Backend        Backend
	Signer         Signer
	Logger         *slog.Logger
	PollInterval   time.Duration
	MaxPollDelay   time.Duration
	ReceiptTimeout time.Duration
}

// Client submits transactions to an EVM chain
type Client struct {
	backend        Backend
	closer         func()
	signer         Signer
	logger         *slog.Logger
	pollInterval   time.Duration
	maxPollDelay   time.Duration
	receiptTimeout time.Duration
}

var _ chain.Client = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{
		backend:        cfg.Backend,
		signer:         cfg.Signer,
		logger:         cfg.Logger,
		pollInterval:   cfg.PollInterval,
		maxPollDelay:   cfg.MaxPollDelay,
		receiptTimeout: cfg.ReceiptTimeout,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPollDelay <= 0 {
		c.maxPollDelay = DefaultMaxPollDelay
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = DefaultReceiptTimeout
	}
	if c.backend == nil {
		if cfg.RPCURL == "" {
			return nil, ErrBackendRequired
		}
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
		}
		c.backend = client
		c.closer = client.Close
	}
	return c, nil
}

// Close releases the RPC connection if the client dialed it
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	return id.Uint64(), nil
}

func (c *Client) EstimateGas(ctx context.Context, tx chain.Tx) (uint64, error) {
	msg, err := c.callMsg(tx)
	if err != nil {
		return 0, err
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// SendTransaction builds, signs and broadcasts an EIP-1559 transaction
func (c *Client) SendTransaction(ctx context.Context, tx chain.Tx) (string, error) {
	if c.signer == nil {
		return "", ErrSignerRequired
	}
	if !common.IsHexAddress(tx.To) {
		return "", fmt.Errorf("invalid destination address %q", tx.To)
	}
	from := c.signer.Address()
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("get nonce for %s: %w", from.Hex(), err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("get latest header: %w", err)
	}
	// Leave room for the base fee to double before the tx is mined
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas := tx.Gas
	if gas == 0 {
		gas = DefaultGasLimit
	}
	to := common.HexToAddress(tx.To)
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      tx.Data,
	})
	signed, err := c.signer.SignTx(ctx, unsigned, chainID)
	if err != nil {
		return "", err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	c.logger.Debug(
		"sent transaction",
		"component", "chain",
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
		"gas", gas,
	)
	return signed.Hash().Hex(), nil
}

// WaitForReceipt polls for the receipt with exponential backoff until the
// transaction is mined and buried under the requested confirmations. A
// transaction still unknown after the receipt timeout is reported dropped.
func (c *Client) WaitForReceipt(
	ctx context.Context,
	txHash string,
	confirmations uint64,
) (*chain.Receipt, error) {
	hash := common.HexToHash(txHash)
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.pollInterval),
		backoff.WithMaxInterval(c.maxPollDelay),
		backoff.WithMaxElapsedTime(c.receiptTimeout),
	)
	op := func() (*chain.Receipt, error) {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return nil, errReceiptPending
			}
			return nil, err
		}
		ret := convertReceipt(receipt)
		if receipt.Status != types.ReceiptStatusSuccessful {
			return ret, backoff.Permanent(
				fmt.Errorf("%w: %s", chain.ErrTransactionReverted, txHash),
			)
		}
		if confirmations > 1 {
			head, err := c.backend.BlockNumber(ctx)
			if err != nil {
				return nil, err
			}
			if head+1 < ret.BlockNumber+confirmations {
				return nil, errReceiptPending
			}
		}
		return ret, nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug(
			"waiting for receipt",
			"component", "chain",
			"tx_hash", txHash,
			"reason", err,
			"retry_in", next,
		)
	}
	receipt, err := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
	if err != nil {
		if errors.Is(err, errReceiptPending) {
			return nil, fmt.Errorf("%w: %s", chain.ErrTransactionDropped, txHash)
		}
		return receipt, err
	}
	return receipt, nil
}

func (c *Client) callMsg(tx chain.Tx) (ethereum.CallMsg, error) {
	msg := ethereum.CallMsg{
		Data:  tx.Data,
		Value: tx.Value,
	}
	switch {
	case tx.From != "":
		if !common.IsHexAddress(tx.From) {
			return msg, fmt.Errorf("invalid sender address %q", tx.From)
		}
		msg.From = common.HexToAddress(tx.From)
	case c.signer != nil:
		msg.From = c.signer.Address()
	}
	if !common.IsHexAddress(tx.To) {
		return msg, fmt.Errorf("invalid destination address %q", tx.To)
	}
	to := common.HexToAddress(tx.To)
	msg.To = &to
	return msg, nil
}

func convertReceipt(r *types.Receipt) *chain.Receipt {
	ret := &chain.Receipt{
		TxHash:  r.TxHash.Hex(),
		Status:  r.Status,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		ret.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		tmpLog := chain.Log{
			Address: l.Address.Hex(),
			Data:    l.Data,
		}
		for _, topic := range l.Topics {
			tmpLog.Topics = append(tmpLog.Topics, topic.Hex())
		}
		ret.Logs = append(ret.Logs, tmpLog)
	}
	return ret
}
