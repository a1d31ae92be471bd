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
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is a Store that keeps logs in process memory. Logs are copied
// on the way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[Key]Log
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[Key]Log)}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (*Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.logs[key]
	if !ok {
		return nil, nil
	}
	ret := l.withEntries(slices.Clone(l.Entries))
	return &ret, nil
}

func (m *MemoryStore) Set(_ context.Context, l Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[l.Key()] = l.withEntries(slices.Clone(l.Entries))
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, key)
	return nil
}

func (m *MemoryStore) ListByPluginAddress(
	_ context.Context,
	chainID uint64,
	pluginAddress string,
) ([]Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ret []Log
	for _, l := range m.logs {
		if l.ChainID != chainID || !strings.EqualFold(l.PluginAddress, pluginAddress) {
			continue
		}
		ret = append(ret, l.withEntries(slices.Clone(l.Entries)))
	}
	slices.SortFunc(ret, func(a, b Log) int {
		return strings.Compare(a.ProposalKey, b.ProposalKey)
	})
	return ret, nil
}

// Len returns the number of cached logs
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}
