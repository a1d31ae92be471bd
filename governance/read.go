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

package governance

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/proposal"
)

// GetProposal returns the indexed proposal with the account's pending
// actions applied. A proposal the indexer does not know yet is served from
// the cache.
func (s *Service) GetProposal(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
) (*View, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, proposal.ErrUnknownKind, kind)
	}
	id, err := s.normalizeID(id)
	if err != nil {
		return nil, err
	}
	remote, err := s.indexer.Proposal(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetch proposal %s: %w", id, err)
	}
	merged, err := s.reconciler.Proposal(ctx, kind, id, remote)
	if err != nil {
		return nil, fmt.Errorf("reconcile proposal %s: %w", id, err)
	}
	if merged == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.view(merged, remote != nil), nil
}

// ListProposals returns one page of proposals. The first page of a plugin
// listing also carries the locally created proposals the indexer has not
// picked up yet. A status filter is applied to the resolved status, so a
// page can hold fewer items than requested.
func (s *Service) ListProposals(
	ctx context.Context,
	filters indexer.Filters,
) (*Page, error) {
	if filters.ChainID == 0 {
		filters.ChainID = s.config.ChainID
	}
	filters, err := filters.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if filters.Status != "" {
		if _, err := proposal.ParseStatus(string(filters.Status)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	remote, err := s.indexer.Proposals(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	indexed := make(map[string]struct{}, len(remote.Items))
	for _, p := range remote.Items {
		if p != nil {
			indexed[p.ID.Key()] = struct{}{}
		}
	}
	var merged []*proposal.Proposal
	if remote.Page == 1 && filters.PluginAddress != "" {
		merged, err = s.reconciler.Page(ctx, filters.ChainID, filters.PluginAddress, remote.Items)
		if err != nil {
			return nil, fmt.Errorf("reconcile proposals: %w", err)
		}
	} else {
		merged = make([]*proposal.Proposal, 0, len(remote.Items))
		for _, p := range remote.Items {
			if p == nil {
				continue
			}
			tmp, err := s.reconciler.Proposal(ctx, p.Kind, p.ID, p)
			if err != nil {
				return nil, fmt.Errorf("reconcile proposal %s: %w", p.ID, err)
			}
			merged = append(merged, tmp)
		}
	}
	ret := &Page{
		Items:   make([]*View, 0, len(merged)),
		Page:    remote.Page,
		Count:   remote.Count,
		HasMore: remote.HasMore,
	}
	for _, p := range merged {
		if p == nil || p.Kind != filters.Kind {
			continue
		}
		_, isIndexed := indexed[p.ID.Key()]
		v := s.view(p, isIndexed)
		if filters.Status != "" && v.Status != filters.Status {
			continue
		}
		ret.Items = append(ret.Items, v)
	}
	return ret, nil
}
