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

package election_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/election"
)

func newTestClient(t *testing.T, handler http.Handler) *election.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := election.NewClient(election.ClientConfig{
		URL:      srv.URL + "/",
		APIKey:   "secret",
		RetryMax: 2,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := election.NewClient(election.ClientConfig{})
	assert.ErrorIs(t, err, election.ErrURLRequired)
}

func TestCreateAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xabc", body["address"])
		_, _ = w.Write([]byte(`{"address":"0xabc","nonce":3}`))
	})
	c := newTestClient(t, mux)
	acct, err := c.CreateAccount(context.Background(), "0xABC")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), acct.Nonce)
}

func TestCreateElectionDefaultsChoices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /elections", func(w http.ResponseWriter, r *http.Request) {
		var params election.ElectionParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, []string{"yes", "no", "abstain"}, params.Choices)
		assert.Equal(t, uint64(1234), params.CensusBlock)
		_, _ = w.Write([]byte(`{"electionId":"0x0102","status":"ready"}`))
	})
	c := newTestClient(t, mux)
	e, err := c.CreateElection(context.Background(), election.ElectionParams{CensusBlock: 1234})
	require.NoError(t, err)
	id, err := e.OnChainID()
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash([]byte{0x01, 0x02}), id)
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /votes", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"voteId":"v1"}`))
	})
	c := newTestClient(t, mux)
	id, err := c.SubmitVote(context.Background(), election.VoteParams{ElectionID: "e", Choice: 0})
	require.NoError(t, err)
	assert.Equal(t, "v1", id)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /elections", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"end date before start date"}`))
	})
	c := newTestClient(t, mux)

	_, err := c.CreateElection(context.Background(), election.ElectionParams{})
	var apiErr *election.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "end date before start date", apiErr.Message)

	_, err = c.FetchCensusProof(context.Background(), "e1", "0xabc")
	assert.ErrorIs(t, err, election.ErrNotFound)
}

func TestFetchCensusProof(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /elections/{id}/census/{address}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "e1", r.PathValue("id"))
		assert.Equal(t, "0xabc", r.PathValue("address"))
		_, _ = w.Write([]byte(`{"address":"0xabc","weight":42,"proof":"0xff"}`))
	})
	c := newTestClient(t, mux)
	proof, err := c.FetchCensusProof(context.Background(), "e1", "0xABC")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), proof.Weight)
	assert.Equal(t, "0xff", proof.Proof)
}
