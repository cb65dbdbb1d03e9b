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

	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	programName = "treasury"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var (
	globalFlags = struct {
		debug   bool
		network string
		dataDir string
	}{}
	configFile string
)

func newLogger(debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	addSource := false
	if debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	return slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	)
}

func commonRun() *slog.Logger {
	logger := newLogger(globalFlags.debug)
	slog.SetDefault(logger)
	// Configure max processes with our logger wrapper, toss undo func
	_, err := maxprocs.Set(maxprocs.Logger(slogPrintf))
	if err != nil {
		// If we hit this, something really wrong happened
		slog.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

// applyFlags overrides config file and environment values with flags given
// on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Root().PersistentFlags()
	if flags.Changed("network") {
		cfg.Network = globalFlags.network
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = globalFlags.dataDir
	}
	return cfg.Validate()
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Treasury proposal and budget governance daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd, args)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().
		StringVarP(&globalFlags.network, "network", "n", "", "network name (mainnet, testnet, regtest)")
	rootCmd.PersistentFlags().
		StringVarP(&globalFlags.dataDir, "data-dir", "d", "", "directory holding the budget snapshot")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// These commands need no config
		if cmd.Name() == "version" || cmd.Name() == "keygen" {
			return nil
		}
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(inspectCommand())
	rootCmd.AddCommand(verifyCommand())
	rootCmd.AddCommand(keygenCommand())
	rootCmd.AddCommand(versionCommand())
	return rootCmd
}

func main() {
	// Execute cobra command
	if err := newRootCommand().Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
