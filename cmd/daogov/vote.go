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
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/proposal"
)

func voteCommand() *cobra.Command {
	var (
		kind, voter, option, power string
		electionID, signature      string
		tryExecution, wait         bool
	)
	cmd := &cobra.Command{
		Use:   "vote <plugin> <id>",
		Short: "Vote on or approve a proposal",
		Long: "Vote on a token-voting proposal or approve a multisig proposal. " +
			"With --election-id an off-chain vote is cast in the election " +
			"backing a gasless proposal instead.",
		Args: cobra.ExactArgs(2),
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
				var opt proposal.VoteOption
				if option != "" {
					if opt, err = proposal.ParseVoteOption(option); err != nil {
						return err
					}
				}
				if voter == "" {
					voter = gov.Account()
				}
				if electionID != "" {
					if k != proposal.KindGasless {
						return errors.New("--election-id requires --kind gasless")
					}
					seq, err := gov.SubmitGaslessVote(ctx, governance.GaslessVoteRequest{
						ID:         id,
						ElectionID: electionID,
						Voter:      voter,
						Option:     opt,
						Signature:  signature,
					})
					if err != nil {
						return err
					}
					_, err = waitSequence(ctx, seq)
					return err
				}
				req := governance.VoteRequest{
					ID:           id,
					Kind:         k,
					Voter:        voter,
					Option:       opt,
					TryExecution: tryExecution,
				}
				if power != "" {
					n, ok := new(big.Int).SetString(power, 0)
					if !ok {
						return fmt.Errorf("invalid voting power %q", power)
					}
					req.VotingPower = n
				}
				job, err := gov.SubmitVoteOrApproval(ctx, req)
				if err != nil {
					return err
				}
				if err := waitJob(ctx, job); err != nil {
					return err
				}
				if !wait {
					return nil
				}
				return waitIndexed(ctx, gov, k, id, governance.VoteIndexed(voter))
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(proposal.KindMultisig), "plugin kind: multisig, token-voting or gasless")
	cmd.Flags().StringVar(&voter, "voter", "", "voter address, defaults to the signing key account")
	cmd.Flags().StringVar(&option, "option", "", "token vote option: yes, no or abstain")
	cmd.Flags().StringVar(&power, "voting-power", "", "voting power of the voter, required for token voting unless replacing an indexed ballot")
	cmd.Flags().BoolVar(&tryExecution, "try-execution", false, "execute the proposal if the vote makes it pass")
	cmd.Flags().StringVar(&electionID, "election-id", "", "election of a gasless proposal")
	cmd.Flags().StringVar(&signature, "signature", "", "voter signature over the off-chain ballot")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the indexer reports the vote")
	return cmd
}

func executeCommand() *cobra.Command {
	var (
		kind, executor string
		wait           bool
	)
	cmd := &cobra.Command{
		Use:   "execute <plugin> <id>",
		Short: "Execute a succeeded proposal",
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
				job, err := gov.SubmitExecution(ctx, governance.ExecutionRequest{
					ID:       id,
					Kind:     k,
					Executor: executor,
				})
				if err != nil {
					return err
				}
				if err := waitJob(ctx, job); err != nil {
					return err
				}
				if !wait {
					return nil
				}
				return waitIndexed(ctx, gov, k, id, governance.ExecutionIndexed())
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(proposal.KindMultisig), "plugin kind: multisig, token-voting or gasless")
	cmd.Flags().StringVar(&executor, "executor", "", "executor address, defaults to the signing key account")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the indexer reports the execution")
	return cmd
}
