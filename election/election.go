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

// Package election talks to the off-chain voting service used by gasless
// proposals.
package election

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("election service: not found")

// APIError is a non-success response from the election service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("election service returned %d: %s", e.StatusCode, e.Message)
}

// Account is the off-chain identity of a voter
type Account struct {
	Address   string `json:"address"`
	Nonce     uint64 `json:"nonce"`
	CreatedAt int64  `json:"createdAt"`
}

// ElectionParams describes an off-chain election backing a gasless proposal
type ElectionParams struct {
	Organization  string    `json:"organization"`
	PluginAddress string    `json:"pluginAddress"`
	Metadata      string    `json:"metadata"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	// CensusBlock is the block the voting power census is taken at
	CensusBlock uint64 `json:"censusBlock"`
	Choices     []string `json:"choices"`
}

type Election struct {
	ID         string `json:"electionId"`
	CensusRoot string `json:"censusRoot"`
	Status     string `json:"status"`
}

// OnChainID returns the election id as the bytes32 value the gasless plugin
// stores
func (e *Election) OnChainID() (common.Hash, error) {
	b, err := decodeHex(e.ID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("election id: %w", err)
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("election id is %d bytes", len(b))
	}
	return common.BytesToHash(b), nil
}

type VoteParams struct {
	ElectionID string `json:"electionId"`
	Voter      string `json:"voter"`
	// Choice indexes ElectionParams.Choices
	Choice    int    `json:"choice"`
	Proof     string `json:"proof"`
	Signature string `json:"signature"`
}

type CensusProof struct {
	Address string   `json:"address"`
	Weight  *big.Int `json:"weight"`
	Proof   string   `json:"proof"`
}

// Service is the off-chain election service
type Service interface {
	CreateAccount(ctx context.Context, address string) (*Account, error)
	CreateElection(ctx context.Context, params ElectionParams) (*Election, error)
	SubmitVote(ctx context.Context, params VoteParams) (string, error)
	FetchCensusProof(ctx context.Context, electionID string, address string) (*CensusProof, error)
}
