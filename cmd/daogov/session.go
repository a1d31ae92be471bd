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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/internal/node"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

// withSession runs fn against a session opened from the command config.
// SIGINT cancels the context passed to fn.
func withSession(
	cmd *cobra.Command,
	fn func(ctx context.Context, gov *governance.Service) error,
) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := commonRun()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	session, err := node.Open(ctx, cfg, node.SessionOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		//nolint:contextcheck
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Error("session close failed", "component", programName, "error", err)
		}
	}()
	return fn(ctx, session.Governance())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// proposalArgs parses the <plugin> <id> arguments. The id may be decimal
// or 0x-prefixed hex.
func proposalArgs(gov *governance.Service, args []string) (proposal.ID, error) {
	n, ok := new(big.Int).SetString(args[1], 0)
	if !ok || n.Sign() < 0 {
		return proposal.ID{}, fmt.Errorf("invalid proposal id %q", args[1])
	}
	return proposal.NewID(gov.ChainID(), args[0], n), nil
}

// waitJob blocks until the job settles and prints its final state
func waitJob(ctx context.Context, job *transaction.Job) error {
	state, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(state); err != nil {
		return err
	}
	return state.Err()
}

// waitSequence blocks until the sequence halts or completes and prints its
// final snapshot
func waitSequence(ctx context.Context, seq *stepper.Sequence) (stepper.Snapshot, error) {
	snap, err := seq.Wait(ctx)
	if err != nil {
		return snap, err
	}
	if err := printJSON(snap); err != nil {
		return snap, err
	}
	if snap.GlobalState == stepper.GlobalError {
		return snap, seq.Err()
	}
	return snap, nil
}

// waitIndexed polls the indexer until cond holds and prints the indexed
// view
func waitIndexed(
	ctx context.Context,
	gov *governance.Service,
	kind proposal.Kind,
	id proposal.ID,
	cond governance.Condition,
) error {
	w, err := gov.WaitForIndexed(ctx, kind, id, cond)
	if err != nil {
		return err
	}
	view, err := w.Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(view)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
