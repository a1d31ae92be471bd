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
	"errors"
	"sync"

	"github.com/blinklabs-io/daogov/database/plugin"
)

var (
	cmdlineOptions struct {
		location string
		region   string
		endpoint string
	}
	cmdlineOptionsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "s3",
			Description:        "proposal metadata in an S3 bucket",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "location",
					Type:         plugin.PluginOptionTypeString,
					Description:  "bucket location as s3://<bucket>[/prefix]",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.location),
				},
				{
					Name:         "region",
					Type:         plugin.PluginOptionTypeString,
					Description:  "AWS region, defaults to the AWS config",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.region),
				},
				{
					Name:         "endpoint",
					Type:         plugin.PluginOptionTypeString,
					Description:  "endpoint URL of an S3 compatible service",
					DefaultValue: "",
					Dest:         &(cmdlineOptions.endpoint),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	location := cmdlineOptions.location
	opts := []BlobStoreS3OptionFunc{
		WithLogger(plugin.Logger()),
		WithPromRegistry(plugin.PromRegistry()),
		WithRegion(cmdlineOptions.region),
		WithEndpoint(cmdlineOptions.endpoint),
	}
	cmdlineOptionsMutex.RUnlock()
	if location == "" {
		return plugin.NewErrorPlugin(errors.New("s3 blob: location not set"))
	}
	p, err := New(location, opts...)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
