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

package proposal

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a proposal
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSucceeded Status = "succeeded"
	StatusDefeated  Status = "defeated"
	StatusExecuted  Status = "executed"
)

// Terminal returns true for statuses that can never change again
func (s Status) Terminal() bool {
	return s == StatusExecuted
}

// ParseStatus converts a user supplied string into a Status
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusActive, StatusSucceeded, StatusDefeated, StatusExecuted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid proposal status %q", s)
	}
}

// ResolveStatus derives the lifecycle state of a proposal at the given time.
//
// Rules are evaluated in a fixed order and the first match wins: executed,
// pending, kind-specific success, active, defeated. The function is pure and
// total: a nil proposal or a missing tally resolves like a proposal with no
// votes.
func ResolveStatus(p *Proposal, now time.Time) Status {
	if p == nil {
		return StatusDefeated
	}
	if p.Executed {
		return StatusExecuted
	}
	if !p.StartDate.Before(now) {
		return StatusPending
	}
	if succeeded(p, now) {
		return StatusSucceeded
	}
	if !now.After(activeUntil(p)) {
		return StatusActive
	}
	return StatusDefeated
}

func succeeded(p *Proposal, now time.Time) bool {
	switch t := p.Tally.(type) {
	case *MultisigTally:
		if len(t.Approvals) < t.MinApprovals {
			return false
		}
		return p.IsSignaling() || !now.After(p.EndDate)
	case *TokenVotingTally:
		if t.ApprovalReached() && !now.Before(p.EndDate) {
			return true
		}
		return t.Mode == VotingModeEarlyExecution &&
			now.Before(p.EndDate) &&
			t.EarlyExecutable()
	case *GaslessTally:
		if !t.Voting.ApprovalReached() || now.Before(p.EndDate) {
			return false
		}
		return len(t.Approvers) >= t.MinTallyApprovals &&
			!now.After(activeUntil(p))
	default:
		return false
	}
}

// activeUntil is the last instant at which a proposal can still be active
func activeUntil(p *Proposal) time.Time {
	if p.Kind == KindGasless && !p.TallyEndDate.IsZero() {
		return p.TallyEndDate
	}
	return p.EndDate
}
