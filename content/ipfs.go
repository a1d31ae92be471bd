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

package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultRetryMax = 3
	DefaultTimeout  = 30 * time.Second

	maxContentSize = 8 << 20
)

var ErrAPIURLRequired = errors.New("IPFS API URL is required")

type IPFSConfig struct {
	// APIURL is the base URL of a Kubo compatible RPC API
	APIURL   string
	APIKey   string
	Logger   *slog.Logger
	RetryMax int
	Timeout  time.Duration
}

// IPFSStore pins content through the RPC API of an IPFS node or pinning
// service
type IPFSStore struct {
	apiURL string
	apiKey string
	logger *slog.Logger
	http   *retryablehttp.Client
}

var _ Store = (*IPFSStore)(nil)

func NewIPFSStore(cfg IPFSConfig) (*IPFSStore, error) {
	if cfg.APIURL == "" {
		return nil, ErrAPIURLRequired
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("parse IPFS API URL: %w", err)
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
	rc.Logger = cfg.Logger.With("component", "content")
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &IPFSStore{
		apiURL: strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey: cfg.APIKey,
		logger: cfg.Logger,
		http:   rc,
	}, nil
}

func (s *IPFSStore) Pin(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	// Base58 CIDv0 ids parse like the local store ids
	query := url.Values{
		"pin":         {"true"},
		"cid-version": {"0"},
		"raw-leaves":  {"false"},
	}
	respData, err := s.post(
		ctx,
		"/api/v0/add?"+query.Encode(),
		mw.FormDataContentType(),
		body.Bytes(),
	)
	if err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	var ret struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(respData, &ret); err != nil {
		return "", fmt.Errorf("pin content: decode response: %w", err)
	}
	if _, err := ParseCID(ret.Hash); err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	s.logger.Debug(
		"content pinned",
		"component", "content",
		"cid", ret.Hash,
		"size", len(data),
	)
	return ret.Hash, nil
}

func (s *IPFSStore) Resolve(ctx context.Context, cid string) ([]byte, error) {
	sum, err := ParseCID(cid)
	if err != nil {
		return nil, err
	}
	query := url.Values{"arg": {sum.B58String()}}
	data, err := s.post(ctx, "/api/v0/cat?"+query.Encode(), "", nil)
	if err != nil {
		return nil, fmt.Errorf("resolve content %s: %w", sum.B58String(), err)
	}
	return data, nil
}

// The Kubo RPC API only accepts POST
func (s *IPFSStore) post(
	ctx context.Context,
	path string,
	contentType string,
	body []byte,
) ([]byte, error) {
	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.apiURL+path,
		reqBody,
	)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"Message"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		// Kubo reports unknown blocks as a 500
		if strings.Contains(msg, "not found") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("IPFS API status %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
