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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	ErrUnknownKind   = errors.New("unknown governance kind")
	ErrTallyMismatch = errors.New("tally does not match governance kind")
)

// Kind identifies the governance plugin model a proposal belongs to
type Kind string

const (
	KindMultisig    Kind = "multisig"
	KindTokenVoting Kind = "token-voting"
	KindGasless     Kind = "gasless"
)

// Valid returns true if the Kind is a known governance kind
func (k Kind) Valid() bool {
	switch k {
	case KindMultisig, KindTokenVoting, KindGasless:
		return true
	default:
		return false
	}
}

// ParseKind converts a user supplied string into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// ID uniquely identifies a proposal across chains and plugins
type ID struct {
	ChainID       uint64 `json:"chainId"`
	PluginAddress string `json:"pluginAddress"`
	// ProposalID is the on-chain proposal id in 0x-prefixed hex
	ProposalID string `json:"proposalId"`
}

// NewID builds an ID from an on-chain numeric proposal id
func NewID(chainID uint64, pluginAddress string, number *big.Int) ID {
	return ID{
		ChainID:       chainID,
		PluginAddress: NormalizeAddress(pluginAddress),
		ProposalID:    "0x" + number.Text(16),
	}
}

// Key returns the indexer-compatible key for the proposal, unique per chain
func (i ID) Key() string {
	return NormalizeAddress(i.PluginAddress) + "_" + strings.ToLower(i.ProposalID)
}

// Number returns the on-chain numeric proposal id
func (i ID) Number() (*big.Int, error) {
	n, ok := new(big.Int).SetString(
		strings.TrimPrefix(strings.ToLower(i.ProposalID), "0x"),
		16,
	)
	if !ok {
		return nil, fmt.Errorf("invalid proposal id %q", i.ProposalID)
	}
	return n, nil
}

func (i ID) String() string {
	return fmt.Sprintf("%d/%s", i.ChainID, i.Key())
}

// ParseKey splits an indexer key of the form plugin_0xid
func ParseKey(chainID uint64, key string) (ID, error) {
	plugin, pid, ok := strings.Cut(key, "_")
	if !ok || plugin == "" || pid == "" {
		return ID{}, fmt.Errorf("invalid proposal key %q", key)
	}
	return ID{
		ChainID:       chainID,
		PluginAddress: NormalizeAddress(plugin),
		ProposalID:    strings.ToLower(pid),
	}, nil
}

// NormalizeAddress lower-cases an address so that comparisons are
// independent of checksum casing
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// VoteOption is a token-voting ballot choice. Values follow the plugin
// contract's enum.
type VoteOption uint8

const (
	VoteOptionNone    VoteOption = 0
	VoteOptionAbstain VoteOption = 1
	VoteOptionYes     VoteOption = 2
	VoteOptionNo      VoteOption = 3
)

func (v VoteOption) String() string {
	switch v {
	case VoteOptionAbstain:
		return "abstain"
	case VoteOptionYes:
		return "yes"
	case VoteOptionNo:
		return "no"
	default:
		return "none"
	}
}

// ParseVoteOption converts a user supplied string into a VoteOption
func ParseVoteOption(s string) (VoteOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abstain":
		return VoteOptionAbstain, nil
	case "yes":
		return VoteOptionYes, nil
	case "no":
		return VoteOptionNo, nil
	default:
		return VoteOptionNone, fmt.Errorf("invalid vote option %q", s)
	}
}

// Vote is a single vote or approval. Approvals only carry the voter.
type Vote struct {
	Voter    string     `json:"voter"`
	Option   VoteOption `json:"option,omitempty"`
	Weight   *big.Int   `json:"weight,omitempty"`
	Replaced bool       `json:"replaced,omitempty"`
}

// Approval builds an address-only vote
func Approval(voter string) Vote {
	return Vote{Voter: NormalizeAddress(voter)}
}

// WeightOrZero returns the vote weight, treating nil as zero
func (v Vote) WeightOrZero() *big.Int {
	if v.Weight == nil {
		return new(big.Int)
	}
	return v.Weight
}

// Action is a call the DAO performs when a proposal is executed
type Action struct {
	To    string   `json:"to"`
	Value *big.Int `json:"value,omitempty"`
	Data  []byte   `json:"data,omitempty"`
}

// Proposal is a governance proposal. Its status is never stored: use
// ResolveStatus.
type Proposal struct {
	ID              ID        `json:"id"`
	Kind            Kind      `json:"kind"`
	Creator         string    `json:"creator,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	CreationDate    time.Time `json:"creationDate"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	TallyEndDate    time.Time `json:"tallyEndDate"`
	Executed        bool      `json:"executed"`
	ExecutionDate   time.Time `json:"executionDate"`
	ExecutionTxHash string    `json:"executionTxHash,omitempty"`
	Actions         []Action  `json:"actions,omitempty"`
	Tally           Tally     `json:"-"`
}

// IsSignaling returns true for proposals with no on-chain actions
func (p *Proposal) IsSignaling() bool {
	return len(p.Actions) == 0
}

// Validate checks that the tally variant matches the proposal kind
func (p *Proposal) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if p.Tally == nil || p.Tally.Kind() != p.Kind {
		return fmt.Errorf("%w: %s", ErrTallyMismatch, p.Kind)
	}
	return nil
}

// Clone returns a deep copy of the proposal
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	ret := *p
	ret.Actions = make([]Action, len(p.Actions))
	for i, a := range p.Actions {
		ret.Actions[i] = Action{To: a.To, Data: append([]byte(nil), a.Data...)}
		if a.Value != nil {
			ret.Actions[i].Value = new(big.Int).Set(a.Value)
		}
	}
	if p.Tally != nil {
		ret.Tally = p.Tally.clone()
	}
	return &ret
}

type proposalAlias Proposal

type proposalJSON struct {
	*proposalAlias
	Tally json.RawMessage `json:"tally,omitempty"`
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	tmp := proposalJSON{proposalAlias: (*proposalAlias)(&p)}
	if p.Tally != nil {
		tallyBytes, err := json.Marshal(p.Tally)
		if err != nil {
			return nil, err
		}
		tmp.Tally = tallyBytes
	}
	return json.Marshal(tmp)
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	tmp := proposalJSON{proposalAlias: (*proposalAlias)(p)}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	if len(tmp.Tally) == 0 || string(tmp.Tally) == "null" {
		p.Tally = nil
		return nil
	}
	var tally Tally
	switch p.Kind {
	case KindMultisig:
		tally = &MultisigTally{}
	case KindTokenVoting:
		tally = &TokenVotingTally{}
	case KindGasless:
		tally = &GaslessTally{}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if err := json.Unmarshal(tmp.Tally, tally); err != nil {
		return fmt.Errorf("decode %s tally: %w", p.Kind, err)
	}
	p.Tally = tally
	return nil
}
