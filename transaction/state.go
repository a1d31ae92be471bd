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

package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/daogov/chain"
)

// Phase is the position of a job in the submission flow
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseEstimating           Phase = "estimating"
	PhaseAwaitingSignature    Phase = "awaitingSignature"
	PhaseAwaitingConfirmation Phase = "awaitingConfirmation"
	PhaseSucceeded            Phase = "succeeded"
	PhaseFailed               Phase = "failed"
)

// ErrorKind classifies the phase a job failed in
type ErrorKind string

const (
	ErrorKindNone         ErrorKind = ""
	ErrorKindEstimation   ErrorKind = "estimation"
	ErrorKindSignature    ErrorKind = "signature"
	ErrorKindConfirmation ErrorKind = "confirmation"
)

// RecoveryAction is the single way out of an error state
type RecoveryAction string

const (
	RecoveryNone RecoveryAction = ""
	// RecoveryProceedWithoutEstimate sends the transaction without a gas
	// estimate
	RecoveryProceedWithoutEstimate RecoveryAction = "proceedWithoutEstimate"
	// RecoveryResend asks for a signature again, reusing the estimate
	RecoveryResend RecoveryAction = "resend"
	// RecoveryRetry restarts the job from gas estimation
	RecoveryRetry RecoveryAction = "retry"
)

var (
	ErrJobBusy         = errors.New("transaction job is already running")
	ErrNothingToRetry  = errors.New("transaction job has nothing to retry")
	ErrInvalidRecovery = errors.New("recovery action not available in current state")
)

// JobError is the error a job settled with
type JobError struct {
	Kind  ErrorKind
	Phase Phase
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s error in phase %s: %s", e.Kind, e.Phase, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// State is a snapshot of a job
type State struct {
	JobID              string         `json:"jobId"`
	Name               string         `json:"name,omitempty"`
	Phase              Phase          `json:"phase"`
	Error              *JobError      `json:"-"`
	ErrorMessage       string         `json:"error,omitempty"`
	ErrorKind          ErrorKind      `json:"errorKind,omitempty"`
	IsEstimateGasError bool           `json:"isEstimateGasError,omitempty"`
	Recovery           RecoveryAction `json:"recovery,omitempty"`
	Gas                uint64         `json:"gas,omitempty"`
	TxHash             string         `json:"txHash,omitempty"`
	Receipt            *chain.Receipt `json:"receipt,omitempty"`
	LongWait           bool           `json:"longWait,omitempty"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Settled returns true when the job needs no further work unless a
// recovery action is taken: it succeeded, failed, or halted on a failed
// gas estimate
func (s State) Settled() bool {
	switch s.Phase {
	case PhaseSucceeded, PhaseFailed:
		return true
	case PhaseEstimating:
		return s.IsEstimateGasError
	default:
		return false
	}
}

// Err returns the job error as an error value, or nil
func (s State) Err() error {
	if s.Error == nil {
		return nil
	}
	return s.Error
}

func (s *State) setError(phase Phase, kind ErrorKind, recovery RecoveryAction, err error) {
	s.Error = &JobError{Kind: kind, Phase: phase, Err: err}
	s.ErrorMessage = err.Error()
	s.ErrorKind = kind
	s.Recovery = recovery
	s.IsEstimateGasError = kind == ErrorKindEstimation
}

func (s *State) clearError() {
	s.Error = nil
	s.ErrorMessage = ""
	s.ErrorKind = ErrorKindNone
	s.Recovery = RecoveryNone
	s.IsEstimateGasError = false
}
