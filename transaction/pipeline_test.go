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

package transaction_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/daogov/chain"
	"github.com/blinklabs-io/daogov/chain/chaintest"
	"github.com/blinklabs-io/daogov/event"
	"github.com/blinklabs-io/daogov/transaction"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testTo = "0x00000000000000000000000000000000000000aa"

func newPipeline(t *testing.T, client chain.Client) *transaction.Pipeline {
	t.Helper()
	p, err := transaction.NewPipeline(transaction.PipelineConfig{
		Client:       client,
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, p.Shutdown(ctx))
	})
	return p
}

func waitSettled(t *testing.T, j *transaction.Job) transaction.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := j.Wait(ctx)
	require.NoError(t, err)
	return s
}

// collect records every phase observed through a subscription until it is
// closed
func collect(j *transaction.Job) <-chan []transaction.State {
	_, ch := j.Subscribe()
	out := make(chan []transaction.State, 1)
	go func() {
		var states []transaction.State
		for s := range ch {
			states = append(states, s)
		}
		out <- states
	}()
	return out
}

func TestNewPipelineRequiresClient(t *testing.T) {
	_, err := transaction.NewPipeline(transaction.PipelineConfig{})
	require.ErrorIs(t, err, transaction.ErrClientRequired)
}

func TestSubmitSucceeds(t *testing.T) {
	client := &chaintest.Client{}
	p := newPipeline(t, client)
	var calls atomic.Int32
	j, err := p.Submit(context.Background(), transaction.Request{
		Name: "vote",
		Tx:   chain.Tx{To: testTo},
		OnSuccess: func(_ context.Context, r *chain.Receipt) {
			calls.Add(1)
			assert.True(t, r.Succeeded())
		},
	})
	require.NoError(t, err)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseSucceeded, s.Phase)
	assert.NoError(t, s.Err())
	assert.NotEmpty(t, s.TxHash)
	assert.Equal(t, int32(1), calls.Load())

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint64(chaintest.DefaultGas), sent[0].Gas)
	assert.Equal(t, []uint64{transaction.DefaultConfirmations}, client.Confirmations())

	require.ErrorIs(t, j.Retry(), transaction.ErrNothingToRetry)
}

func TestEstimateFailureProceedWithoutEstimate(t *testing.T) {
	var j *transaction.Job
	var phases []transaction.Phase
	client := &chaintest.Client{
		EstimateFunc: func(context.Context, chain.Tx) (uint64, error) {
			return 0, errors.New("execution reverted")
		},
		SendFunc: func(context.Context, chain.Tx) (string, error) {
			phases = append(phases, j.State().Phase)
			return "0xabc", nil
		},
		WaitFunc: func(_ context.Context, hash string, _ uint64) (*chain.Receipt, error) {
			phases = append(phases, j.State().Phase)
			return &chain.Receipt{TxHash: hash, Status: 1}, nil
		},
	}
	p := newPipeline(t, client)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseEstimating, s.Phase)
	assert.True(t, s.IsEstimateGasError)
	assert.Equal(t, transaction.ErrorKindEstimation, s.ErrorKind)
	assert.Equal(t, transaction.RecoveryProceedWithoutEstimate, s.Recovery)
	assert.Empty(t, client.Sent())
	phases = append(phases, s.Phase)

	// Only the recovery action of the current state is allowed
	require.ErrorIs(t, j.Resend(), transaction.ErrInvalidRecovery)

	require.NoError(t, j.ProceedWithoutEstimate())
	s = waitSettled(t, j)
	phases = append(phases, s.Phase)
	assert.Equal(
		t,
		[]transaction.Phase{
			transaction.PhaseEstimating,
			transaction.PhaseAwaitingSignature,
			transaction.PhaseAwaitingConfirmation,
			transaction.PhaseSucceeded,
		},
		phases,
	)
	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].Gas)
	assert.Equal(t, 1, client.Estimates())
}

func TestSubscriptionClosesOnSettle(t *testing.T) {
	p := newPipeline(t, &chaintest.Client{})
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	states := collect(j)
	select {
	case got := <-states:
		require.NotEmpty(t, got)
		assert.Equal(t, transaction.PhaseSucceeded, got[len(got)-1].Phase)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSignatureFailureResend(t *testing.T) {
	var attempts atomic.Int32
	client := &chaintest.Client{}
	client.SendFunc = func(context.Context, chain.Tx) (string, error) {
		if attempts.Add(1) == 1 {
			return "", chain.ErrUserRejected
		}
		return "0xfeed", nil
	}
	p := newPipeline(t, client)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseFailed, s.Phase)
	assert.Equal(t, transaction.ErrorKindSignature, s.ErrorKind)
	assert.Equal(t, transaction.RecoveryResend, s.Recovery)
	require.ErrorIs(t, s.Err(), chain.ErrUserRejected)

	require.NoError(t, j.Retry())
	s = waitSettled(t, j)
	assert.Equal(t, transaction.PhaseSucceeded, s.Phase)
	assert.Equal(t, "0xfeed", s.TxHash)
	// The estimate is reused
	assert.Equal(t, 1, client.Estimates())
	require.Len(t, client.Sent(), 1)
	assert.Equal(t, uint64(chaintest.DefaultGas), client.Sent()[0].Gas)
}

func TestConfirmationFailureRetryRestarts(t *testing.T) {
	var waits atomic.Int32
	client := &chaintest.Client{}
	client.WaitFunc = func(_ context.Context, hash string, _ uint64) (*chain.Receipt, error) {
		if waits.Add(1) == 1 {
			return &chain.Receipt{TxHash: hash, Status: 0}, chain.ErrTransactionReverted
		}
		return &chain.Receipt{TxHash: hash, Status: 1}, nil
	}
	p := newPipeline(t, client)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseFailed, s.Phase)
	assert.Equal(t, transaction.ErrorKindConfirmation, s.ErrorKind)
	assert.Equal(t, transaction.RecoveryRetry, s.Recovery)
	require.ErrorIs(t, s.Err(), chain.ErrTransactionReverted)
	require.NotNil(t, s.Receipt)

	require.NoError(t, j.Retry())
	s = waitSettled(t, j)
	assert.Equal(t, transaction.PhaseSucceeded, s.Phase)
	assert.Equal(t, 2, client.Estimates())
	assert.Len(t, client.Sent(), 2)
}

func TestConfirmationIgnoresCallerCancel(t *testing.T) {
	release := make(chan struct{})
	client := &chaintest.Client{}
	client.WaitFunc = func(ctx context.Context, hash string, _ uint64) (*chain.Receipt, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &chain.Receipt{TxHash: hash, Status: 1}, nil
	}
	p := newPipeline(t, client)
	ctx, cancel := context.WithCancel(context.Background())
	j, err := p.Submit(ctx, transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return j.State().Phase == transaction.PhaseAwaitingConfirmation
	}, 5*time.Second, time.Millisecond)
	cancel()

	// The caller stops observing, the job carries on
	waitCtx, waitCancel := context.WithCancel(context.Background())
	waitCancel()
	_, err = j.Wait(waitCtx)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, j.Retry(), transaction.ErrNothingToRetry)

	close(release)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseSucceeded, s.Phase)
}

func TestLongWait(t *testing.T) {
	release := make(chan struct{})
	client := &chaintest.Client{}
	client.WaitFunc = func(_ context.Context, hash string, _ uint64) (*chain.Receipt, error) {
		<-release
		return &chain.Receipt{TxHash: hash, Status: 1}, nil
	}
	p, err := transaction.NewPipeline(transaction.PipelineConfig{
		Client:            client,
		LongWaitThreshold: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return j.State().LongWait
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, transaction.PhaseAwaitingConfirmation, j.State().Phase)
	close(release)
	s := waitSettled(t, j)
	assert.Equal(t, transaction.PhaseSucceeded, s.Phase)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestBusyJobRejectsRecovery(t *testing.T) {
	release := make(chan struct{})
	client := &chaintest.Client{}
	client.EstimateFunc = func(context.Context, chain.Tx) (uint64, error) {
		<-release
		return 0, errors.New("no estimate")
	}
	p := newPipeline(t, client)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	require.ErrorIs(t, j.ProceedWithoutEstimate(), transaction.ErrJobBusy)
	close(release)
	waitSettled(t, j)
	require.NoError(t, j.ProceedWithoutEstimate())
	waitSettled(t, j)
}

func TestStateEventsPublished(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	subID, ch := bus.Subscribe(transaction.StateEventType)
	defer bus.Unsubscribe(transaction.StateEventType, subID)

	p, err := transaction.NewPipeline(transaction.PipelineConfig{
		Client:   &chaintest.Client{},
		EventBus: bus,
	})
	require.NoError(t, err)
	j, err := p.Submit(context.Background(), transaction.Request{Tx: chain.Tx{To: testTo}})
	require.NoError(t, err)
	waitSettled(t, j)
	require.NoError(t, p.Shutdown(context.Background()))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-ch:
			data, ok := evt.Data.(transaction.StateEvent)
			require.True(t, ok)
			assert.Equal(t, j.ID(), data.State.JobID)
			if data.State.Phase == transaction.PhaseSucceeded {
				return
			}
		case <-timeout:
			t.Fatal("did not receive succeeded state event")
		}
	}
}
