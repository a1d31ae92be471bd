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

package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/daogov/database/plugin"
)

// ErrBlobNotFound is returned by Get for a missing key
var ErrBlobNotFound = errors.New("blob not found")

// ContentType of stored proposal metadata documents
const ContentType = "application/json"

// ParseLocation splits a bucket location such as s3://bucket/some/prefix into
// its bucket and key prefix. A non-empty prefix always ends with a slash.
func ParseLocation(location string, scheme string) (string, string, error) {
	path, ok := strings.CutPrefix(location, scheme+"://")
	if !ok {
		return "", "", fmt.Errorf(
			"expected location %s://<bucket>[/prefix], got %q",
			scheme,
			location,
		)
	}
	bucket, prefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("location %q: missing bucket", location)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// BlobStore is a content blob backend
type BlobStore interface {
	plugin.Plugin
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// New returns the started blob plugin selected by name
func New(pluginName string) (BlobStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName)
	if err != nil {
		return nil, err
	}
	blobStore, ok := p.(BlobStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf("blob plugin %q is not a BlobStore", pluginName)
	}
	return blobStore, nil
}
