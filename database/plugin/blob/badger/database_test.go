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

package badger_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/database/plugin/blob"
	"github.com/blinklabs-io/daogov/database/plugin/blob/badger"
)

func TestInMemoryRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, err := badger.New(badger.WithPromRegistry(reg))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)

	require.NoError(t, store.Put(ctx, "k", []byte("value")))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)

	n, err := testutil.GatherAndCount(reg, "daogov_blob_ops_total")
	require.NoError(t, err)
	// get, put and delete series
	assert.Equal(t, 3, n)
}

func TestDataDirPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := badger.New(badger.WithDataDir(dir), badger.WithGc(true))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "cid", []byte{1, 2, 3}))
	require.NoError(t, store.Stop())

	store, err = badger.New(badger.WithDataDir(dir))
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(ctx, "cid")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}
