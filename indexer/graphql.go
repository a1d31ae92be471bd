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

package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/machinebox/graphql"

	"github.com/blinklabs-io/daogov/proposal"
)

const DefaultRetryMax = 3

var ErrEndpointRequired = errors.New("indexer endpoint is required")

const proposalFields = `
	id
	pluginAddress
	pluginProposalId
	creator
	metadata
	createdAt
	startDate
	endDate
	executed
	executionDate
	executionTxHash
	actions { to value data }
`

var kindFields = map[proposal.Kind]string{
	proposal.KindMultisig: `
	minApprovals
	approvals { address }
`,
	proposal.KindTokenVoting: `
	yes
	no
	abstain
	totalVotingPower
	supportThreshold
	minParticipation
	votingMode
	voters { address voteOption votingPower voteReplaced }
`,
	proposal.KindGasless: `
	tallyEndDate
	yes
	no
	abstain
	totalVotingPower
	supportThreshold
	minParticipation
	votingMode
	voters { address voteOption votingPower voteReplaced }
	minTallyApprovals
	approvers { address }
`,
}

var entityNames = map[proposal.Kind]string{
	proposal.KindMultisig:    "multisigProposal",
	proposal.KindTokenVoting: "tokenVotingProposal",
	proposal.KindGasless:     "gaslessProposal",
}

type ClientConfig struct {
	Endpoint string
	// APIKey is sent as a bearer token when set
	APIKey   string
	ChainID  uint64
	Logger   *slog.Logger
	RetryMax int
	Timeout  time.Duration
	// Now is used for status date conditions
	Now func() time.Time
}

// Client queries a GraphQL indexer
type Client struct {
	config ClientConfig
	logger *slog.Logger
	gql    *graphql.Client
}

var _ Indexer = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = cfg.Logger.With("component", "indexer")
	httpClient := rc.StandardClient()
	httpClient.Timeout = cfg.Timeout
	c := &Client{
		config: cfg,
		logger: cfg.Logger,
		gql:    graphql.NewClient(cfg.Endpoint, graphql.WithHTTPClient(httpClient)),
	}
	c.gql.Log = func(s string) {
		c.logger.Debug(s, "component", "indexer")
	}
	return c, nil
}

func (c *Client) newRequest(query string) *graphql.Request {
	req := graphql.NewRequest(query)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req
}

func (c *Client) Proposal(
	ctx context.Context,
	kind proposal.Kind,
	id proposal.ID,
) (*proposal.Proposal, error) {
	entity, ok := entityNames[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", proposal.ErrUnknownKind, kind)
	}
	query := fmt.Sprintf(
		"query Proposal($id: ID!) {\n  proposal: %s(id: $id) {%s%s  }\n}",
		entity,
		proposalFields,
		kindFields[kind],
	)
	req := c.newRequest(query)
	req.Var("id", id.Key())
	var resp struct {
		Proposal *rawProposal `json:"proposal"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query %s %s: %w", kind, id, err)
	}
	if resp.Proposal == nil {
		return nil, nil
	}
	return resp.Proposal.toProposal(kind, id.ChainID)
}

func (c *Client) Proposals(ctx context.Context, filters Filters) (*Page, error) {
	f, err := filters.Normalize()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"query Proposals($where: %s_filter!, $skip: Int!, $first: Int!, $orderBy: %s_orderBy!, $orderDirection: OrderDirection!) {\n  proposals: %ss(where: $where, skip: $skip, first: $first, orderBy: $orderBy, orderDirection: $orderDirection) {%s%s  }\n}",
		capitalize(entityNames[f.Kind]),
		capitalize(entityNames[f.Kind]),
		entityNames[f.Kind],
		proposalFields,
		kindFields[f.Kind],
	)
	req := c.newRequest(query)
	req.Var("where", WhereClause(f, c.config.Now()))
	req.Var("skip", (f.Page-1)*f.Count)
	// One extra item tells whether another page exists
	req.Var("first", f.Count+1)
	req.Var("orderBy", string(f.Sort))
	req.Var("orderDirection", string(f.Order))
	var resp struct {
		Proposals []rawProposal `json:"proposals"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query %s proposals: %w", f.Kind, err)
	}
	page := &Page{
		Page:  f.Page,
		Count: f.Count,
	}
	if len(resp.Proposals) > f.Count {
		page.HasMore = true
		resp.Proposals = resp.Proposals[:f.Count]
	}
	for i := range resp.Proposals {
		p, err := resp.Proposals[i].toProposal(f.Kind, f.ChainID)
		if err != nil {
			c.logger.Warn(
				"skipping malformed indexer record",
				"component", "indexer",
				"id", resp.Proposals[i].ID,
				"error", err,
			)
			continue
		}
		page.Items = append(page.Items, p)
	}
	return page, nil
}

// WhereClause builds the indexer filter for f. Status conditions only bound
// the dates: succeeded and defeated cannot be told apart without the tally.
func WhereClause(f Filters, now time.Time) map[string]any {
	where := map[string]any{}
	if f.PluginAddress != "" {
		where["pluginAddress"] = f.PluginAddress
	}
	if f.DAO != "" {
		where["dao"] = f.DAO
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	end := "endDate"
	if f.Kind == proposal.KindGasless {
		end = "tallyEndDate"
	}
	switch f.Status {
	case proposal.StatusPending:
		where["startDate_gt"] = ts
		where["executed"] = false
	case proposal.StatusActive:
		where["startDate_lte"] = ts
		where[end+"_gte"] = ts
		where["executed"] = false
	case proposal.StatusSucceeded:
		where["startDate_lte"] = ts
		where["executed"] = false
	case proposal.StatusDefeated:
		where["endDate_lt"] = ts
		where["executed"] = false
	case proposal.StatusExecuted:
		where["executed"] = true
	}
	return where
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
