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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/daogov/database/plugin/blob"
)

const blobKeyPrefix = "content/"

// LocalStore keeps content in a blob store under its sha2-256 multihash
type LocalStore struct {
	blob   blob.BlobStore
	logger *slog.Logger
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(blobStore blob.BlobStore, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LocalStore{
		blob:   blobStore,
		logger: logger,
	}
}

func (s *LocalStore) Pin(ctx context.Context, data []byte) (string, error) {
	cid, err := ComputeCID(data)
	if err != nil {
		return "", err
	}
	if err := s.blob.Put(ctx, blobKeyPrefix+cid, data); err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	s.logger.Debug(
		"content pinned",
		"component", "content",
		"cid", cid,
		"size", len(data),
	)
	return cid, nil
}

func (s *LocalStore) Resolve(ctx context.Context, cid string) ([]byte, error) {
	sum, err := ParseCID(cid)
	if err != nil {
		return nil, err
	}
	key := sum.B58String()
	data, err := s.blob.Get(ctx, blobKeyPrefix+key)
	if err != nil {
		if errors.Is(err, blob.ErrBlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve content %s: %w", key, err)
	}
	if err := Verify(key, data); err != nil {
		return nil, err
	}
	return data, nil
}
