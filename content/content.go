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

// Package content stores proposal metadata by content address.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mh "github.com/multiformats/go-multihash"
)

// URIPrefix is prepended to content ids stored on chain
const URIPrefix = "ipfs://"

var (
	ErrNotFound   = errors.New("content not found")
	ErrInvalidCID = errors.New("invalid content id")
	// ErrHashMismatch is returned when resolved data does not hash to its id
	ErrHashMismatch = errors.New("content does not match its id")
)

// Store pins and resolves content addressed data
type Store interface {
	// Pin stores data and returns its content id
	Pin(ctx context.Context, data []byte) (string, error)
	// Resolve returns the data for a content id, with or without the
	// ipfs:// prefix
	Resolve(ctx context.Context, cid string) ([]byte, error)
}

// PinJSON pins the JSON encoding of v
func PinJSON(ctx context.Context, s Store, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return s.Pin(ctx, data)
}

// ResolveJSON resolves a content id and decodes it into v
func ResolveJSON(ctx context.Context, s Store, cid string, v any) error {
	data, err := s.Resolve(ctx, cid)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode content %s: %w", cid, err)
	}
	return nil
}

// ComputeCID returns the base58 sha2-256 multihash of data
func ComputeCID(data []byte) (string, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return sum.B58String(), nil
}

// ParseCID strips the ipfs:// prefix and validates the multihash
func ParseCID(cid string) (mh.Multihash, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(cid), URIPrefix)
	if raw == "" {
		return nil, ErrInvalidCID
	}
	sum, err := mh.FromB58String(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCID, err)
	}
	return sum, nil
}

// URI returns the on-chain form of a content id
func URI(cid string) string {
	if strings.HasPrefix(cid, URIPrefix) {
		return cid
	}
	return URIPrefix + cid
}

// Verify checks that data hashes to the multihash in cid
func Verify(cid string, data []byte) error {
	sum, err := ParseCID(cid)
	if err != nil {
		return err
	}
	decoded, err := mh.Decode(sum)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCID, err)
	}
	check, err := mh.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return err
	}
	if check.B58String() != sum.B58String() {
		return ErrHashMismatch
	}
	return nil
}
