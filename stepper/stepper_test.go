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

package stepper_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/chain/chaintest"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingStep struct {
	id    string
	calls atomic.Int32
	fail  atomic.Bool
	out   any
	seen  stepper.Outputs
}

func (c *countingStep) ID() string {
	return c.id
}

func (c *countingStep) Run(_ context.Context, in stepper.Outputs) (any, error) {
	c.calls.Add(1)
	c.seen = in
	if c.fail.Load() {
		return nil, errors.New(c.id + " unavailable")
	}
	return c.out, nil
}

func statuses(snap stepper.Snapshot) []stepper.Status {
	ret := make([]stepper.Status, 0, len(snap.Steps))
	for _, s := range snap.Steps {
		ret = append(ret, s.Status)
	}
	return ret
}

func TestRunInOrderPassesOutputs(t *testing.T) {
	a := &countingStep{id: "identity", out: "voter-1"}
	b := &countingStep{id: "pin", out: "ipfs://cid"}
	c := &countingStep{id: "anchor", out: 42}
	seq := stepper.New(stepper.SequenceConfig{Name: "test"}, a, b, c)
	assert.Equal(t, stepper.GlobalIdle, seq.Snapshot().GlobalState)

	require.NoError(t, seq.Run(context.Background()))
	snap := seq.Snapshot()
	assert.Equal(t, stepper.GlobalSuccess, snap.GlobalState)
	assert.Equal(
		t,
		[]stepper.Status{stepper.StatusSuccess, stepper.StatusSuccess, stepper.StatusSuccess},
		statuses(snap),
	)
	assert.Empty(t, a.seen)
	assert.Equal(t, stepper.Outputs{"identity": "voter-1"}, b.seen)
	assert.Equal(t, stepper.Outputs{"identity": "voter-1", "pin": "ipfs://cid"}, c.seen)
	out, ok := seq.Output("anchor")
	require.True(t, ok)
	assert.Equal(t, 42, out)
	_, ok = snap.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, seq.Run(context.Background()), stepper.ErrAlreadyDone)
}

func TestFailureHaltsAndRetryResumes(t *testing.T) {
	a := &countingStep{id: "a", out: "A"}
	b := &countingStep{id: "b", out: "B"}
	c := &countingStep{id: "c"}
	b.fail.Store(true)
	seq := stepper.New(stepper.SequenceConfig{}, a, b, c)

	err := seq.Run(context.Background())
	var stepErr *stepper.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "b", stepErr.StepID)
	snap := seq.Snapshot()
	assert.Equal(t, stepper.GlobalError, snap.GlobalState)
	assert.Equal(
		t,
		[]stepper.Status{stepper.StatusSuccess, stepper.StatusError, stepper.StatusWaiting},
		statuses(snap),
	)
	assert.Equal(t, "b unavailable", snap.Steps[1].Error)
	assert.Zero(t, c.calls.Load())
	cur, ok := snap.Current()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)

	b.fail.Store(false)
	require.NoError(t, seq.Retry(context.Background()))
	assert.EqualValues(t, 1, a.calls.Load(), "successful step re-invoked")
	assert.EqualValues(t, 2, b.calls.Load())
	assert.EqualValues(t, 1, c.calls.Load())
	assert.Equal(t, stepper.Outputs{"a": "A"}, b.seen)
	assert.Equal(t, stepper.GlobalSuccess, seq.Snapshot().GlobalState)
	assert.NoError(t, seq.Err())
}

func TestRetryWithoutFailure(t *testing.T) {
	seq := stepper.New(stepper.SequenceConfig{}, &countingStep{id: "a"})
	assert.ErrorIs(t, seq.Retry(context.Background()), stepper.ErrNothingToRetry)
}

func TestStepPanicBecomesError(t *testing.T) {
	seq := stepper.New(
		stepper.SequenceConfig{},
		stepper.NewStep("boom", func(context.Context, stepper.Outputs) (any, error) {
			panic("kaboom")
		}),
	)
	require.Error(t, seq.Run(context.Background()))
	assert.Equal(t, stepper.StatusError, seq.Snapshot().Steps[0].Status)
}

func TestStartSubscribeAndBusy(t *testing.T) {
	release := make(chan struct{})
	seq := stepper.New(
		stepper.SequenceConfig{},
		stepper.NewStep("slow", func(ctx context.Context, _ stepper.Outputs) (any, error) {
			<-release
			return "done", nil
		}),
	)
	require.NoError(t, seq.Start(context.Background()))
	_, ch := seq.Subscribe()
	assert.ErrorIs(t, seq.Run(context.Background()), stepper.ErrSequenceBusy)
	close(release)

	var last stepper.Snapshot
	for snap := range ch {
		last = snap
	}
	assert.Equal(t, stepper.GlobalSuccess, last.GlobalState)
	snap, err := seq.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stepper.GlobalSuccess, snap.GlobalState)
	require.NoError(t, seq.Shutdown(context.Background()))
}

func TestOutputAs(t *testing.T) {
	in := stepper.Outputs{"n": 3}
	n, err := stepper.OutputAs[int](in, "n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = stepper.OutputAs[string](in, "n")
	assert.Error(t, err)
	_, err = stepper.OutputAs[int](in, "missing")
	assert.Error(t, err)
}

func TestJobStepResumesWithRecoveryAction(t *testing.T) {
	var rejections atomic.Int32
	rejections.Store(1)
	client := &chaintest.Client{
		SendFunc: func(_ context.Context, tx chain.Tx) (string, error) {
			if rejections.Add(-1) >= 0 {
				return "", chain.ErrUserRejected
			}
			return "0xabc", nil
		},
		WaitFunc: func(_ context.Context, hash string, _ uint64) (*chain.Receipt, error) {
			return &chain.Receipt{TxHash: hash, Status: 1, BlockNumber: 9}, nil
		},
	}
	pipeline, err := transaction.NewPipeline(transaction.PipelineConfig{Client: client})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, pipeline.Shutdown(ctx))
	}()

	var submits atomic.Int32
	identity := &countingStep{id: "identity", out: "voter"}
	anchor := stepper.NewJobStep("anchor", func(ctx context.Context, in stepper.Outputs) (*transaction.Job, error) {
		submits.Add(1)
		voter, err := stepper.OutputAs[string](in, "identity")
		if err != nil {
			return nil, err
		}
		return pipeline.Submit(ctx, transaction.Request{Name: "anchor-" + voter})
	})
	seq := stepper.New(stepper.SequenceConfig{}, identity, anchor)

	err = seq.Run(context.Background())
	require.ErrorIs(t, err, chain.ErrUserRejected)
	snap := seq.Snapshot()
	assert.Equal(t, stepper.StatusError, snap.Steps[1].Status)
	require.NotNil(t, anchor.Job())
	assert.Equal(t, anchor.Job().ID(), snap.Steps[1].JobID)
	assert.Equal(t, transaction.RecoveryResend, anchor.Job().State().Recovery)
	job, ok := seq.Job(snap.Steps[1].JobID)
	require.True(t, ok)
	assert.Same(t, anchor.Job(), job)
	_, ok = seq.Job("missing")
	assert.False(t, ok)

	require.NoError(t, seq.Retry(context.Background()))
	assert.EqualValues(t, 1, submits.Load(), "job resubmitted instead of resumed")
	assert.EqualValues(t, 1, identity.calls.Load())
	assert.Equal(t, 1, client.Estimates(), "resend must reuse the estimate")
	out, ok := seq.Output("anchor")
	require.True(t, ok)
	state, ok := out.(transaction.State)
	require.True(t, ok)
	assert.Equal(t, "0xabc", state.TxHash)
	assert.Equal(t, transaction.PhaseSucceeded, state.Phase)
}
