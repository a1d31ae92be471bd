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

package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	"github.com/blinklabs-io/daogov/database/plugin/blob"
)

const startupTimeout = 30 * time.Second

// BlobStoreGCS keeps content in a Google Cloud Storage bucket
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	metrics         *blob.Metrics
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
}

var _ blob.BlobStore = (*BlobStoreGCS)(nil)

type BlobStoreGCSOptionFunc func(*BlobStoreGCS)

func WithLogger(logger *slog.Logger) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.promRegistry = registry
	}
}

// WithCredentialsFile uses a service account file instead of the default
// application credentials
func WithCredentialsFile(path string) BlobStoreGCSOptionFunc {
	return func(b *BlobStoreGCS) {
		b.credentialsFile = path
	}
}

// New creates a GCS store for a location of the form gcs://bucket[/prefix].
// The client is created by Start.
func New(location string, opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	bucketName, prefix, err := blob.ParseLocation(location, "gcs")
	if err != nil {
		return nil, fmt.Errorf("gcs blob: %w", err)
	}
	db := &BlobStoreGCS{
		bucketName: bucketName,
		prefix:     prefix,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// ValidateCredentials checks that a credentials file exists and is readable
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	f, err := os.Open(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("GCS credentials file does not exist: %s", credentialsFile)
		}
		return fmt.Errorf("GCS credentials file is not readable: %w", err)
	}
	return f.Close()
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Start() error {
	if err := ValidateCredentials(d.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if d.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(d.credentialsFile))
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gcs blob: create storage client: %w", err)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	d.metrics = blob.NewMetrics(d.promRegistry, "gcs")
	d.logger.Info(
		"using GCS content store",
		"component", "database",
		"bucket", d.bucketName,
		"prefix", d.prefix,
	)
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client.
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func (d *BlobStoreGCS) object(key string) *storage.ObjectHandle {
	return d.bucket.Object(d.prefix + key)
}

func (d *BlobStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := d.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			d.metrics.Observe("get", 0, nil)
			return nil, blob.ErrBlobNotFound
		}
		d.metrics.Observe("get", 0, err)
		return nil, fmt.Errorf("gcs get %q: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	d.metrics.Observe("get", len(data), err)
	if err != nil {
		return nil, fmt.Errorf("gcs read %q: %w", key, err)
	}
	return data, nil
}

func (d *BlobStoreGCS) Put(ctx context.Context, key string, data []byte) error {
	w := d.object(key).NewWriter(ctx)
	w.ContentType = blob.ContentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		d.metrics.Observe("put", 0, err)
		return fmt.Errorf("gcs put %q: %w", key, err)
	}
	err := w.Close()
	d.metrics.Observe("put", len(data), err)
	if err != nil {
		d.logger.Warn(
			"content upload failed",
			"component", "database",
			"key", key,
			"error", err,
		)
		return fmt.Errorf("gcs put %q: %w", key, err)
	}
	return nil
}

func (d *BlobStoreGCS) Delete(ctx context.Context, key string) error {
	err := d.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		err = nil
	}
	d.metrics.Observe("delete", 0, err)
	if err != nil {
		return fmt.Errorf("gcs delete %q: %w", key, err)
	}
	return nil
}
