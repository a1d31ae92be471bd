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

// Package indexer reads proposals from the governance indexing service.
// Indexer records are mapped to proposal.Proposal without interpreting
// them: status is always derived later by proposal.ResolveStatus.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/daogov/proposal"
)

var ErrInvalidFilter = errors.New("invalid proposal filter")

// SortField orders proposal lists
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortStartDate SortField = "startDate"
	SortEndDate   SortField = "endDate"
)

func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "createdat", "created_at":
		return SortCreatedAt, nil
	case "startdate", "start_date":
		return SortStartDate, nil
	case "enddate", "end_date":
		return SortEndDate, nil
	default:
		return "", fmt.Errorf("%w: sort %q", ErrInvalidFilter, s)
	}
}

// Order is the sort direction
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc":
		return OrderDesc, nil
	case "asc":
		return OrderAsc, nil
	default:
		return "", fmt.Errorf("%w: order %q", ErrInvalidFilter, s)
	}
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filters selects a page of proposals of one plugin
type Filters struct {
	ChainID       uint64
	DAO           string
	PluginAddress string
	Kind          proposal.Kind
	// Status narrows the query with date conditions. The indexer cannot
	// compute status, so callers re-filter on the resolved status.
	Status proposal.Status
	Sort   SortField
	Order  Order
	// Page is 1-based
	Page  int
	Count int
}

// Normalize fills defaults and validates the filters
func (f Filters) Normalize() (Filters, error) {
	if !f.Kind.Valid() {
		return f, fmt.Errorf("%w: kind %q", ErrInvalidFilter, f.Kind)
	}
	if f.PluginAddress == "" && f.DAO == "" {
		return f, fmt.Errorf("%w: plugin or dao address required", ErrInvalidFilter)
	}
	f.PluginAddress = proposal.NormalizeAddress(f.PluginAddress)
	f.DAO = proposal.NormalizeAddress(f.DAO)
	if f.Sort == "" {
		f.Sort = SortCreatedAt
	}
	if f.Order == "" {
		f.Order = OrderDesc
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Count <= 0 {
		f.Count = DefaultPageSize
	}
	if f.Count > MaxPageSize {
		f.Count = MaxPageSize
	}
	return f, nil
}

// Page is one page of indexed proposals
type Page struct {
	Items   []*proposal.Proposal
	Page    int
	Count   int
	HasMore bool
}

// Indexer is the read side of the indexing service
type Indexer interface {
	// Proposal returns nil without error when the proposal is not indexed
	// yet
	Proposal(ctx context.Context, kind proposal.Kind, id proposal.ID) (*proposal.Proposal, error)
	Proposals(ctx context.Context, filters Filters) (*Page, error)
}
