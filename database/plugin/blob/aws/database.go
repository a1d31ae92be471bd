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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/daogov/database/plugin/blob"
)

const defaultStartupTimeout = 60 * time.Second

// BlobStoreS3 keeps content in an S3 bucket, or any S3 compatible service
// when an endpoint is set
type BlobStoreS3 struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	metrics      *blob.Metrics
	client       *s3.Client
	bucket       string
	prefix       string
	region       string
	endpoint     string
	timeout      time.Duration
}

var _ blob.BlobStore = (*BlobStoreS3)(nil)

type BlobStoreS3OptionFunc func(*BlobStoreS3)

func WithLogger(logger *slog.Logger) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.promRegistry = registry
	}
}

// WithRegion overrides the region of the default AWS config
func WithRegion(region string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.region = region
	}
}

// WithEndpoint points the client at an S3 compatible service such as minio
func WithEndpoint(endpoint string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.endpoint = endpoint
	}
}

// WithTimeout bounds loading the AWS config in Start
func WithTimeout(timeout time.Duration) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.timeout = timeout
	}
}

// New creates an S3 store for a location of the form s3://bucket[/prefix].
// The client is created by Start.
func New(location string, opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	bucket, prefix, err := blob.ParseLocation(location, "s3")
	if err != nil {
		return nil, fmt.Errorf("s3 blob: %w", err)
	}
	db := &BlobStoreS3{
		bucket:  bucket,
		prefix:  prefix,
		timeout: defaultStartupTimeout,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreS3) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			o.UsePathStyle = true
		}
	})
	d.metrics = blob.NewMetrics(d.promRegistry, "s3")
	d.logger.Info(
		"using S3 content store",
		"component", "database",
		"bucket", d.bucket,
		"prefix", d.prefix,
	)
	return nil
}

// Stop implements the plugin.Plugin interface. The S3 client holds nothing
// that needs releasing.
func (d *BlobStoreS3) Stop() error {
	return nil
}

func (d *BlobStoreS3) fullKey(key string) string {
	return d.prefix + key
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (d *BlobStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			d.metrics.Observe("get", 0, nil)
			return nil, blob.ErrBlobNotFound
		}
		d.metrics.Observe("get", 0, err)
		return nil, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	d.metrics.Observe("get", len(data), err)
	if err != nil {
		return nil, fmt.Errorf("s3 read %q: %w", key, err)
	}
	return data, nil
}

func (d *BlobStoreS3) Put(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(blob.ContentType),
	})
	d.metrics.Observe("put", len(data), err)
	if err != nil {
		d.logger.Warn(
			"content upload failed",
			"component", "database",
			"key", key,
			"error", err,
		)
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

func (d *BlobStoreS3) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	d.metrics.Observe("delete", 0, err)
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}
