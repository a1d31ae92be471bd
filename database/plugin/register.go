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

package plugin

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes the environment variables of plugin options, as in
// DAOGOV_BLOB_BADGER_DATA_DIR
const EnvPrefix = "DAOGOV"

type PluginType int

const (
	PluginTypeBlob PluginType = iota + 1
	PluginTypeCache
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeBlob:
		return "blob"
	case PluginTypeCache:
		return "cache"
	default:
		return "unknown"
	}
}

// PluginTypeFromName is the inverse of PluginTypeName
func PluginTypeFromName(name string) (PluginType, bool) {
	switch name {
	case "blob":
		return PluginTypeBlob, true
	case "cache":
		return PluginTypeCache, true
	default:
		return 0, false
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

// PluginOption describes a single configurable value of a plugin. Dest must
// point at a variable matching Type: *string, *bool, *int or *uint64.
type PluginOption struct {
	Name         string
	Type         PluginOptionType
	Description  string
	DefaultValue any
	Dest         any
}

type PluginEntry struct {
	Type               PluginType
	Name               string
	Description        string
	NewFromOptionsFunc func() Plugin
	Options            []PluginOption
}

func (p PluginEntry) flagName(opt PluginOption) string {
	return fmt.Sprintf("%s-%s-%s", PluginTypeName(p.Type), p.Name, opt.Name)
}

func (p PluginEntry) envName(opt PluginOption) string {
	name := strings.Join(
		[]string{EnvPrefix, PluginTypeName(p.Type), p.Name, opt.Name},
		"_",
	)
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. Plugins register themselves from
// init(). A later registration with the same type and name replaces the
// earlier one.
func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	for i, p := range pluginEntries {
		if p.Type == pluginEntry.Type && p.Name == pluginEntry.Name {
			pluginEntries[i] = pluginEntry
			return
		}
	}
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered plugins of a type sorted by name
func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	var ret []PluginEntry
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	slices.SortFunc(ret, func(a, b PluginEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ret
}

// GetPlugin creates a plugin instance from its current options, or returns
// nil if no such plugin is registered
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	pluginEntriesMutex.RLock()
	var entry *PluginEntry
	for i := range pluginEntries {
		if pluginEntries[i].Type == pluginType && pluginEntries[i].Name == pluginName {
			entry = &pluginEntries[i]
			break
		}
	}
	pluginEntriesMutex.RUnlock()
	if entry == nil || entry.NewFromOptionsFunc == nil {
		return nil
	}
	return entry.NewFromOptionsFunc()
}

// PopulateCmdlineOptions adds a flag for every plugin option to fs
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			name := p.flagName(opt)
			desc := fmt.Sprintf("%s (%s plugin %s)", opt.Description, PluginTypeName(p.Type), p.Name)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok {
					return fmt.Errorf("option %s: destination is not *string", name)
				}
				def, _ := opt.DefaultValue.(string)
				fs.StringVar(dest, name, def, desc)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok {
					return fmt.Errorf("option %s: destination is not *bool", name)
				}
				def, _ := opt.DefaultValue.(bool)
				fs.BoolVar(dest, name, def, desc)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok {
					return fmt.Errorf("option %s: destination is not *int", name)
				}
				def, _ := opt.DefaultValue.(int)
				fs.IntVar(dest, name, def, desc)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok {
					return fmt.Errorf("option %s: destination is not *uint64", name)
				}
				def, _ := opt.DefaultValue.(uint64)
				fs.Uint64Var(dest, name, def, desc)
			default:
				return fmt.Errorf("option %s: unknown option type %d", name, opt.Type)
			}
		}
	}
	return nil
}

// ProcessConfig applies values from the config file, keyed by plugin type
// name, plugin name and option name
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for typeName, plugins := range pluginConfig {
		pluginType, ok := PluginTypeFromName(typeName)
		if !ok {
			return fmt.Errorf("unknown plugin type %q", typeName)
		}
		for pluginName, options := range plugins {
			for optName, value := range options {
				if err := SetPluginOption(pluginType, pluginName, optName, normalizeValue(value)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from the environment
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	type envValue struct {
		pluginType PluginType
		plugin     string
		option     string
		optType    PluginOptionType
		env        string
		raw        string
	}
	var values []envValue
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			env := p.envName(opt)
			if raw, ok := os.LookupEnv(env); ok {
				values = append(values, envValue{p.Type, p.Name, opt.Name, opt.Type, env, raw})
			}
		}
	}
	pluginEntriesMutex.RUnlock()
	for _, v := range values {
		var value any
		var err error
		switch v.optType {
		case PluginOptionTypeString:
			value = v.raw
		case PluginOptionTypeBool:
			value, err = strconv.ParseBool(v.raw)
		case PluginOptionTypeInt:
			value, err = strconv.Atoi(v.raw)
		case PluginOptionTypeUint:
			value, err = strconv.ParseUint(v.raw, 10, 64)
		}
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", v.env, err)
		}
		if err := SetPluginOption(v.pluginType, v.plugin, v.option, value); err != nil {
			return err
		}
	}
	return nil
}

// normalizeValue converts YAML decoded numbers to the types SetPluginOption
// accepts
func normalizeValue(value any) any {
	switch v := value.(type) {
	case int64:
		return int(v)
	case uint:
		return uint64(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return value
}

var (
	commonLogger       *slog.Logger
	commonPromRegistry prometheus.Registerer
	commonMutex        sync.RWMutex
)

// SetCommonOptions sets the logger and metrics registry handed to plugins
// created afterwards
func SetCommonOptions(logger *slog.Logger, promRegistry prometheus.Registerer) {
	commonMutex.Lock()
	defer commonMutex.Unlock()
	commonLogger = logger
	commonPromRegistry = promRegistry
}

// Logger returns the logger for new plugin instances
func Logger() *slog.Logger {
	commonMutex.RLock()
	defer commonMutex.RUnlock()
	if commonLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return commonLogger
}

// PromRegistry returns the metrics registry for new plugin instances, which
// may be nil
func PromRegistry() prometheus.Registerer {
	commonMutex.RLock()
	defer commonMutex.RUnlock()
	return commonPromRegistry
}
