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

package cache

import (
	"fmt"

	logcache "github.com/blinklabs-io/daogov/cache"
	"github.com/blinklabs-io/daogov/database/plugin"
)

// CacheStore is a persistent backend for optimistic action logs
type CacheStore interface {
	plugin.Plugin
	logcache.Store
}

// New returns the started cache plugin selected by name
func New(pluginName string) (CacheStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeCache, pluginName)
	if err != nil {
		return nil, err
	}
	cacheStore, ok := p.(CacheStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement CacheStore interface",
			pluginName,
		)
	}
	return cacheStore, nil
}
