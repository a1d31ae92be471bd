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

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/blinklabs-io/daogov/governance"
	"github.com/blinklabs-io/daogov/indexer"
	"github.com/blinklabs-io/daogov/internal/version"
	"github.com/blinklabs-io/daogov/proposal"
	"github.com/blinklabs-io/daogov/stepper"
	"github.com/blinklabs-io/daogov/transaction"
)

// maxBodySize bounds request bodies, which carry proposal metadata
const maxBodySize = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

// errorStatus maps an error to the response status
func errorStatus(err error) int {
	switch {
	case errors.Is(err, governance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, governance.ErrInvalidRequest),
		errors.Is(err, governance.ErrAccountRequired),
		errors.Is(err, governance.ErrUnsupportedForKind),
		errors.Is(err, indexer.ErrInvalidFilter),
		errors.Is(err, proposal.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, governance.ErrElectionsRequired),
		errors.Is(err, governance.ErrContentRequired):
		return http.StatusNotImplemented
	case errors.Is(err, transaction.ErrJobBusy),
		errors.Is(err, transaction.ErrInvalidRecovery),
		errors.Is(err, transaction.ErrNothingToRetry),
		errors.Is(err, stepper.ErrSequenceBusy),
		errors.Is(err, stepper.ErrNothingToRetry),
		errors.Is(err, stepper.ErrAlreadyDone):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the response for err. Server errors are logged and their
// details withheld.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func missingJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// handleRoot handles GET / and returns API metadata
func (s *Server) handleRoot(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, RootResponse{
		Name:    "daogov",
		Version: version.GetVersionString(),
		ChainID: s.gov.ChainID(),
	})
}

func (s *Server) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleListProposals handles GET /api/v0/proposals
func (s *Server) handleListProposals(
	w http.ResponseWriter,
	r *http.Request,
) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	kind, err := proposal.ParseKind(query.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortField, err := indexer.ParseSortField(query.Get("sort"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters := indexer.Filters{
		ChainID:       s.gov.ChainID(),
		DAO:           query.Get("dao"),
		PluginAddress: query.Get("plugin"),
		Kind:          kind,
		Sort:          sortField,
		Order:         indexer.Order(params.Order),
		Page:          params.Page,
		Count:         params.Count,
	}
	if status := query.Get("status"); status != "" {
		filters.Status, err = proposal.ParseStatus(status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	page, err := s.gov.ListProposals(r.Context(), filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	SetPaginationHeaders(w, params, len(page.Items), page.HasMore)
	writeJSON(w, http.StatusOK, page.Items)
}

// proposalID reads the plugin and proposal id path values. The id may be
// decimal or 0x-prefixed hex.
func (s *Server) proposalID(r *http.Request) (proposal.ID, error) {
	number, err := parseBigInt(r.PathValue("id"))
	if err != nil || number == nil || number.Sign() < 0 {
		return proposal.ID{}, fmt.Errorf(
			"%w: invalid proposal id %q",
			governance.ErrInvalidRequest,
			r.PathValue("id"),
		)
	}
	return proposal.NewID(s.gov.ChainID(), r.PathValue("plugin"), number), nil
}

// handleGetProposal handles GET /api/v0/proposals/{plugin}/{id}
func (s *Server) handleGetProposal(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, err := s.proposalID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kind, err := proposal.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.gov.GetProposal(r.Context(), kind, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleVote handles POST /api/v0/proposals/{plugin}/{id}/votes
func (s *Server) handleVote(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, err := s.proposalID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body VoteRequest
	if !decodeBody(w, r, &body) {
		return
	}
	kind, err := proposal.ParseKind(body.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	option, err := parseOption(body.Option)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ElectionID != "" {
		if kind != proposal.KindGasless {
			writeError(w, http.StatusBadRequest, "electionId only applies to gasless proposals")
			return
		}
		seq, err := s.gov.SubmitGaslessVote(r.Context(), governance.GaslessVoteRequest{
			ID:         id,
			ElectionID: body.ElectionID,
			Voter:      body.Voter,
			Option:     option,
			Signature:  body.Signature,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.acceptSequence(w, seq, nil)
		return
	}
	power, err := parseBigInt(body.VotingPower)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.gov.SubmitVoteOrApproval(r.Context(), governance.VoteRequest{
		ID:           id,
		Kind:         kind,
		Voter:        body.Voter,
		Option:       option,
		VotingPower:  power,
		TryExecution: body.TryExecution,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.acceptJob(w, job)
}

// handleExecute handles POST /api/v0/proposals/{plugin}/{id}/execute
func (s *Server) handleExecute(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, err := s.proposalID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ExecuteRequest
	if !decodeBody(w, r, &body) {
		return
	}
	kind, err := proposal.ParseKind(body.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.gov.SubmitExecution(r.Context(), governance.ExecutionRequest{
		ID:       id,
		Kind:     kind,
		Executor: body.Executor,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.acceptJob(w, job)
}

// handleCreateProposal handles POST /api/v0/proposals
func (s *Server) handleCreateProposal(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body CreateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if missingJSON(body.Metadata) {
		writeError(w, http.StatusBadRequest, "metadata required")
		return
	}
	req, err := body.ToGovernance()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seq, err := s.gov.CreateProposal(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.acceptSequence(w, seq, &createdBy{
		kind:          req.Kind,
		pluginAddress: proposal.NormalizeAddress(req.PluginAddress),
	})
}

// handleCreateGasless handles POST /api/v0/gasless
func (s *Server) handleCreateGasless(
	w http.ResponseWriter,
	r *http.Request,
) {
	var body GaslessRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if missingJSON(body.Metadata) {
		writeError(w, http.StatusBadRequest, "metadata required")
		return
	}
	req, err := body.ToGovernance()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seq, err := s.gov.CreateGaslessProposal(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.acceptSequence(w, seq, &createdBy{
		kind:          proposal.KindGasless,
		pluginAddress: proposal.NormalizeAddress(req.PluginAddress),
	})
}

func (s *Server) acceptJob(w http.ResponseWriter, job *transaction.Job) {
	s.handles.addJob(job)
	writeJSON(w, http.StatusAccepted, HandleResponse{
		Type: "job",
		ID:   job.ID(),
		URL:  "/api/v0/jobs/" + job.ID(),
	})
}

func (s *Server) acceptSequence(
	w http.ResponseWriter,
	seq *stepper.Sequence,
	created *createdBy,
) {
	s.handles.addSequence(seq, created)
	writeJSON(w, http.StatusAccepted, HandleResponse{
		Type: "sequence",
		ID:   seq.ID(),
		URL:  "/api/v0/sequences/" + seq.ID(),
	})
}

// handleID validates the id path value
func handleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id.String(), true
}

// handleGetJob handles GET /api/v0/jobs/{id}
func (s *Server) handleGetJob(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := handleID(w, r)
	if !ok {
		return
	}
	job, ok := s.handles.job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.State())
}

// handleJobAction handles POST /api/v0/jobs/{id}/{action}, where action is
// retry or one of the recovery actions
func (s *Server) handleJobAction(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := handleID(w, r)
	if !ok {
		return
	}
	job, ok := s.handles.job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	var err error
	switch transaction.RecoveryAction(r.PathValue("action")) {
	case transaction.RecoveryRetry:
		err = job.Retry()
	case transaction.RecoveryProceedWithoutEstimate:
		err = job.ProceedWithoutEstimate()
	case transaction.RecoveryResend:
		err = job.Resend()
	default:
		writeError(w, http.StatusNotFound, "unknown action "+strings.TrimSpace(r.PathValue("action")))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.State())
}

// handleGetSequence handles GET /api/v0/sequences/{id}
func (s *Server) handleGetSequence(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := handleID(w, r)
	if !ok {
		return
	}
	h, ok := s.handles.sequence(id)
	if !ok {
		writeError(w, http.StatusNotFound, "sequence not found")
		return
	}
	writeJSON(w, http.StatusOK, s.sequenceResponse(h))
}

// handleRetrySequence handles POST /api/v0/sequences/{id}/retry
func (s *Server) handleRetrySequence(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, ok := handleID(w, r)
	if !ok {
		return
	}
	h, ok := s.handles.sequence(id)
	if !ok {
		writeError(w, http.StatusNotFound, "sequence not found")
		return
	}
	if err := h.seq.StartRetry(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sequenceResponse(h))
}

func (s *Server) sequenceResponse(h *sequenceHandle) SequenceResponse {
	ret := SequenceResponse{Snapshot: h.seq.Snapshot()}
	if h.created != nil && ret.GlobalState == stepper.GlobalSuccess {
		id, err := s.gov.CreatedProposalID(h.seq, h.created.kind, h.created.pluginAddress)
		if err == nil {
			ret.ProposalID = &id
		}
	}
	return ret
}
