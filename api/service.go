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

package api

import (
	"context"

	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

// Governance is the session the API serves. *governance.Service implements
// it.
type Governance interface {
	ChainID() uint64
	GetProposal(ctx context.Context, kind proposal.Kind, id proposal.ID) (*governance.View, error)
	ListProposals(ctx context.Context, filters indexer.Filters) (*governance.Page, error)
	SubmitVoteOrApproval(ctx context.Context, req governance.VoteRequest) (*transaction.Job, error)
	SubmitGaslessVote(ctx context.Context, req governance.GaslessVoteRequest) (*stepper.Sequence, error)
	SubmitExecution(ctx context.Context, req governance.ExecutionRequest) (*transaction.Job, error)
	CreateProposal(ctx context.Context, req governance.CreateRequest) (*stepper.Sequence, error)
	CreateGaslessProposal(ctx context.Context, req governance.GaslessRequest) (*stepper.Sequence, error)
	CreatedProposalID(seq *stepper.Sequence, kind proposal.Kind, pluginAddress string) (proposal.ID, error)
}

var _ Governance = (*governance.Service)(nil)
