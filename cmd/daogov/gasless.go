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

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/daogov/api"
	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/proposal"
)

func gaslessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gasless",
		Short: "Gasless proposals backed by an off-chain election",
	}
	cmd.AddCommand(gaslessCreateCommand())
	return cmd
}

func gaslessCreateCommand() *cobra.Command {
	var (
		file string
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a gasless proposal",
		Long: "Create a gasless proposal from a JSON request file with the " +
			"body accepted by POST /api/v0/gasless",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body api.GaslessRequest
			if err := readJSONFile(file, &body); err != nil {
				return err
			}
			req, err := body.ToGovernance()
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, gov *governance.Service) error {
				seq, err := gov.CreateGaslessProposal(ctx, req)
				if err != nil {
					return err
				}
				return printCreated(ctx, gov, seq, proposal.KindGasless, req.PluginAddress, wait)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request file")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the indexer reports the new proposal")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
