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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/blinklabs-io/daogov/database"
	"github.com/blinklabs-io/daogov/database/plugin"
	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/internal/version"
)

const (
	programName = "daogov"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var (
	globalFlags = struct {
		debug   bool
		chainID uint64
		rpcUrl  string
		keyFile string
		indexer string
	}{}
	configFile string
)

func commonRun() *slog.Logger {
	logLevel := slog.LevelInfo
	addSource := false
	if globalFlags.debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	// One-shot commands print results to stdout, so logs go to stderr
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	// Configure max processes with our logger wrapper, toss undo func
	_, err := maxprocs.Set(maxprocs.Logger(slogPrintf))
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	logger.Debug(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

func listAllPlugins() string {
	var buf strings.Builder
	buf.WriteString("Available plugins:\n\n")

	buf.WriteString("Blob Storage Plugins:\n")
	for _, p := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		fmt.Fprintf(&buf, "  %s: %s\n", p.Name, p.Description)
	}

	buf.WriteString("\nAction Cache Plugins:\n")
	for _, p := range plugin.GetPlugins(plugin.PluginTypeCache) {
		fmt.Fprintf(&buf, "  %s: %s\n", p.Name, p.Description)
	}
	return buf.String()
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all available plugins",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(listAllPlugins())
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", programName, version.GetVersionString())
		},
	}
}

// applyFlags overrides config values with flags set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("blob") {
		cfg.BlobPlugin, _ = flags.GetString("blob")
	}
	if flags.Changed("cache") {
		cfg.CachePlugin, _ = flags.GetString("cache")
	}
	if flags.Changed("chain-id") {
		cfg.ChainID = globalFlags.chainID
	}
	if flags.Changed("rpc-url") {
		cfg.RpcUrl = globalFlags.rpcUrl
	}
	if flags.Changed("key-file") {
		cfg.KeyFile = globalFlags.keyFile
	}
	if flags.Changed("indexer-url") {
		cfg.IndexerUrl = globalFlags.indexer
	}
	if flags.Changed("debug") {
		cfg.Debug = globalFlags.debug
	}
	globalFlags.debug = cfg.Debug
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "DAO governance proposal engine",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().
		StringP("blob", "b", database.DefaultBlobPlugin, "content blob store plugin to use")
	rootCmd.PersistentFlags().
		StringP("cache", "c", database.DefaultCachePlugin, "action cache store plugin to use")
	rootCmd.PersistentFlags().
		Uint64Var(&globalFlags.chainID, "chain-id", 0, "chain id of the session")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.rpcUrl, "rpc-url", "", "JSON-RPC endpoint of the chain")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.keyFile, "key-file", "", "signing key file")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.indexer, "indexer-url", "", "GraphQL endpoint of the indexer")

	// Add plugin-specific flags
	if err := plugin.PopulateCmdlineOptions(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Error adding plugin flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlags(cmd, cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(proposalCommand())
	rootCmd.AddCommand(voteCommand())
	rootCmd.AddCommand(executeCommand())
	rootCmd.AddCommand(gaslessCommand())
	rootCmd.AddCommand(keyCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
