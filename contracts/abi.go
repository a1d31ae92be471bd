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

package contracts

// Plugin contract interfaces. Only the calls and events used by daogov are
// listed.

const actionTuple = `{"name":"_actions","type":"tuple[]","components":[` +
	`{"name":"to","type":"address"},` +
	`{"name":"value","type":"uint256"},` +
	`{"name":"data","type":"bytes"}]}`

const proposalCreatedEvent = `{"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[` +
	`{"name":"proposalId","type":"uint256","indexed":true},` +
	`{"name":"creator","type":"address","indexed":true},` +
	`{"name":"startDate","type":"uint64","indexed":false},` +
	`{"name":"endDate","type":"uint64","indexed":false},` +
	`{"name":"metadata","type":"bytes","indexed":false},` +
	`{"name":"allowFailureMap","type":"uint256","indexed":false}]}`

const multisigABI = `[
{"type":"function","name":"approve","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"},
	{"name":"_tryExecution","type":"bool"}]},
{"type":"function","name":"execute","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"}]},
{"type":"function","name":"createProposal","stateMutability":"nonpayable","outputs":[{"name":"proposalId","type":"uint256"}],"inputs":[
	{"name":"_metadata","type":"bytes"},
	` + actionTuple + `,
	{"name":"_allowFailureMap","type":"uint256"},
	{"name":"_approveProposal","type":"bool"},
	{"name":"_tryExecution","type":"bool"},
	{"name":"_startDate","type":"uint64"},
	{"name":"_endDate","type":"uint64"}]},
` + proposalCreatedEvent + `
]`

const tokenVotingABI = `[
{"type":"function","name":"vote","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"},
	{"name":"_voteOption","type":"uint8"},
	{"name":"_tryEarlyExecution","type":"bool"}]},
{"type":"function","name":"execute","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"}]},
{"type":"function","name":"createProposal","stateMutability":"nonpayable","outputs":[{"name":"proposalId","type":"uint256"}],"inputs":[
	{"name":"_metadata","type":"bytes"},
	` + actionTuple + `,
	{"name":"_allowFailureMap","type":"uint256"},
	{"name":"_startDate","type":"uint64"},
	{"name":"_endDate","type":"uint64"},
	{"name":"_voteOption","type":"uint8"},
	{"name":"_tryEarlyExecution","type":"bool"}]},
` + proposalCreatedEvent + `
]`

const gaslessABI = `[
{"type":"function","name":"setTally","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"},
	{"name":"_tally","type":"uint256[][]"}]},
{"type":"function","name":"approveTally","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"},
	{"name":"_tryExecution","type":"bool"}]},
{"type":"function","name":"executeProposal","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_proposalId","type":"uint256"}]},
{"type":"function","name":"createProposal","stateMutability":"nonpayable","outputs":[{"name":"proposalId","type":"uint256"}],"inputs":[
	{"name":"_vochainProposalId","type":"bytes32"},
	{"name":"_metadata","type":"bytes"},
	` + actionTuple + `,
	{"name":"_allowFailureMap","type":"uint256"},
	{"name":"_startDate","type":"uint64"},
	{"name":"_voteEndDate","type":"uint64"},
	{"name":"_tallyEndDate","type":"uint64"}]},
` + proposalCreatedEvent + `
]`
