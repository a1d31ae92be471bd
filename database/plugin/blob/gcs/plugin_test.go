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

package gcs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/database/plugin"
	"github.com/blinklabs-io/daogov/database/plugin/blob/gcs"
)

func TestValidateCredentials(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(valid, []byte("{}"), 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "valid credentials file", path: valid},
		{name: "empty path", path: ""},
		{
			name:    "nonexistent credentials file",
			path:    filepath.Join(dir, "missing.json"),
			wantErr: "GCS credentials file does not exist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gcs.ValidateCredentials(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewLocation(t *testing.T) {
	_, err := gcs.New("gcs://")
	assert.Error(t, err)
	_, err = gcs.New("s3://bucket")
	assert.Error(t, err)
	store, err := gcs.New("gcs://bucket/proposals", gcs.WithCredentialsFile(""))
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestStartWithoutLocationFails(t *testing.T) {
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "gcs", "location", ""))
	p := plugin.GetPlugin(plugin.PluginTypeBlob, "gcs")
	require.NotNil(t, p)
	assert.ErrorContains(t, p.Start(), "location not set")
}

func TestStartMissingCredentialsFails(t *testing.T) {
	store, err := gcs.New(
		"gcs://bucket",
		gcs.WithCredentialsFile(filepath.Join(t.TempDir(), "missing.json")),
	)
	require.NoError(t, err)
	assert.ErrorContains(t, store.Start(), "does not exist")
}
