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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/daogov/api"
	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
)

func proposalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Read and create proposals",
	}
	cmd.AddCommand(
		proposalGetCommand(),
		proposalListCommand(),
		proposalCreateCommand(),
	)
	return cmd
}

func proposalGetCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "get <plugin> <id>",
		Short: "Show a proposal with its resolved status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, gov *governance.Service) error {
				k, err := proposal.ParseKind(kind)
				if err != nil {
					return err
				}
				id, err := proposalArgs(gov, args)
				if err != nil {
					return err
				}
				view, err := gov.GetProposal(ctx, k, id)
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(proposal.KindMultisig), "plugin kind: multisig, token-voting or gasless")
	return cmd
}

func proposalListCommand() *cobra.Command {
	var (
		kind, plugin, dao, status, sort, order string
		page, count                            int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals of a plugin or DAO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, gov *governance.Service) error {
				filters := indexer.Filters{
					ChainID:       gov.ChainID(),
					DAO:           dao,
					PluginAddress: plugin,
					Page:          page,
					Count:         count,
				}
				var err error
				if filters.Kind, err = proposal.ParseKind(kind); err != nil {
					return err
				}
				if filters.Sort, err = indexer.ParseSortField(sort); err != nil {
					return err
				}
				if filters.Order, err = indexer.ParseOrder(order); err != nil {
					return err
				}
				if status != "" {
					if filters.Status, err = proposal.ParseStatus(status); err != nil {
						return err
					}
				}
				result, err := gov.ListProposals(ctx, filters)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(proposal.KindMultisig), "plugin kind: multisig, token-voting or gasless")
	cmd.Flags().StringVar(&plugin, "plugin", "", "plugin address")
	cmd.Flags().StringVar(&dao, "dao", "", "DAO address")
	cmd.Flags().StringVar(&status, "status", "", "only list proposals with this status")
	cmd.Flags().StringVar(&sort, "sort", "", "sort field: createdAt, startDate or endDate")
	cmd.Flags().StringVar(&order, "order", "", "sort order: asc or desc")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&count, "count", indexer.DefaultPageSize, "proposals per page")
	return cmd
}

// printCreated prints the id of the proposal a creation sequence produced
func printCreated(
	ctx context.Context,
	gov *governance.Service,
	seq *stepper.Sequence,
	kind proposal.Kind,
	pluginAddress string,
	wait bool,
) error {
	if _, err := waitSequence(ctx, seq); err != nil {
		return err
	}
	id, err := gov.CreatedProposalID(seq, kind, pluginAddress)
	if err != nil {
		return err
	}
	fmt.Println(id.String())
	if !wait {
		return nil
	}
	return waitIndexed(ctx, gov, kind, id, governance.Indexed())
}

func proposalCreateCommand() *cobra.Command {
	var (
		file string
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a multisig or token-voting proposal",
		Long: "Create a multisig or token-voting proposal from a JSON request " +
			"file with the body accepted by POST /api/v0/proposals",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body api.CreateRequest
			if err := readJSONFile(file, &body); err != nil {
				return err
			}
			req, err := body.ToGovernance()
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, gov *governance.Service) error {
				seq, err := gov.CreateProposal(ctx, req)
				if err != nil {
					return err
				}
				return printCreated(ctx, gov, seq, req.Kind, req.PluginAddress, wait)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request file")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the indexer reports the new proposal")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
