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

package election

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/blinklabs-io/daogov/proposal"
)

const (
	DefaultRetryMax = 3
	DefaultTimeout  = 30 * time.Second

	maxResponseSize = 1 << 20
)

var ErrURLRequired = errors.New("election service URL is required")

type ClientConfig struct {
	URL      string
	APIKey   string
	Logger   *slog.Logger
	RetryMax int
	Timeout  time.Duration
}

// Client is an HTTP client for the election service. Requests are retried
// on connection errors and 5xx responses.
type Client struct {
	baseURL *url.URL
	apiKey  string
	logger  *slog.Logger
	http    *retryablehttp.Client
}

var _ Service = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrURLRequired
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse election service URL: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = cfg.Logger.With("component", "election")
	// Hand the last response back so the status can be reported
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		logger:  cfg.Logger,
		http:    rc,
	}, nil
}

func (c *Client) CreateAccount(ctx context.Context, address string) (*Account, error) {
	var ret Account
	body := map[string]string{"address": proposal.NormalizeAddress(address)}
	if err := c.do(ctx, http.MethodPost, "/accounts", body, &ret); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &ret, nil
}

func (c *Client) CreateElection(ctx context.Context, params ElectionParams) (*Election, error) {
	if len(params.Choices) == 0 {
		params.Choices = []string{"yes", "no", "abstain"}
	}
	var ret Election
	if err := c.do(ctx, http.MethodPost, "/elections", params, &ret); err != nil {
		return nil, fmt.Errorf("create election: %w", err)
	}
	if ret.ID == "" {
		return nil, errors.New("create election: empty election id")
	}
	c.logger.Info(
		"election created",
		"component", "election",
		"election", ret.ID,
		"plugin", params.PluginAddress,
	)
	return &ret, nil
}

func (c *Client) SubmitVote(ctx context.Context, params VoteParams) (string, error) {
	var ret struct {
		VoteID string `json:"voteId"`
	}
	if err := c.do(ctx, http.MethodPost, "/votes", params, &ret); err != nil {
		return "", fmt.Errorf("submit vote: %w", err)
	}
	return ret.VoteID, nil
}

func (c *Client) FetchCensusProof(
	ctx context.Context,
	electionID string,
	address string,
) (*CensusProof, error) {
	var ret CensusProof
	path := fmt.Sprintf(
		"/elections/%s/census/%s",
		url.PathEscape(electionID),
		url.PathEscape(proposal.NormalizeAddress(address)),
	)
	if err := c.do(ctx, http.MethodGet, path, nil, &ret); err != nil {
		return nil, fmt.Errorf("fetch census proof: %w", err)
	}
	return &ret, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}
	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		method,
		c.baseURL.String()+path,
		reqBody,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
