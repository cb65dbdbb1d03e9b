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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/keystore"
	"github.com/blinklabs-io/treasury/msgsign"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "treasury.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultDumpInterval    = "15m"
	DefaultSnapshotStore   = "file"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	Network              string `yaml:"network"`
	DataDir              string `yaml:"dataDir"              split_words:"true"`
	SnapshotStore        string `yaml:"snapshotStore"        split_words:"true"`
	DumpInterval         string `yaml:"dumpInterval"         split_words:"true"`
	BudgetMode           string `yaml:"budgetMode"           split_words:"true"`
	MasternodeOutpoint   string `yaml:"masternodeOutpoint"   split_words:"true"`
	MasternodePrivateKey string `yaml:"masternodePrivateKey" split_words:"true"`
	MasternodeKeyFile    string `yaml:"masternodeKeyFile"    split_words:"true"`
	ApiListenAddress     string `yaml:"apiListenAddress"     split_words:"true"`
	MetricsBindAddr      string `yaml:"metricsBindAddr"      split_words:"true"`
	ShutdownTimeout      string `yaml:"shutdownTimeout"      split_words:"true"`
	ChainHeight          int64  `yaml:"chainHeight"          split_words:"true"`
	MetricsPort          uint   `yaml:"metricsPort"          split_words:"true"`
	MasternodeCount      int    `yaml:"masternodeCount"      split_words:"true"`
	AutoVoteChance       int    `yaml:"autoVoteChance"       split_words:"true"`
	ResyncChance         int    `yaml:"resyncChance"         split_words:"true"`
	ArchiveEnabled       bool   `yaml:"archiveEnabled"       split_words:"true"`
	TrustCollateral      bool   `yaml:"trustCollateral"      split_words:"true"`
	Tracing              bool   `yaml:"tracing"`
	TracingStdout        bool   `yaml:"tracingStdout"        split_words:"true"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Network:          chainparams.NetworkMainnet,
		DataDir:          ".treasury",
		SnapshotStore:    DefaultSnapshotStore,
		DumpInterval:     DefaultDumpInterval,
		BudgetMode:       string(budget.BudgetModeSuggest),
		ApiListenAddress: "",
		MetricsBindAddr:  "127.0.0.1",
		MetricsPort:      12799,
		ShutdownTimeout:  DefaultShutdownTimeout,
		AutoVoteChance:   budget.DefaultAutoVoteChance,
		ResyncChance:     budget.DefaultResyncChance,
	}
}

var globalConfig = DefaultConfig()

// LoadConfig reads the YAML config file, if any, over the defaults and then
// applies TREASURY_* environment variables. Without an explicit path
// ~/.treasury/treasury.yaml and /etc/treasury/treasury.yaml are tried.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".treasury", "treasury.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/treasury/treasury.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("treasury", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

// GetConfig returns the most recently loaded config
func GetConfig() *Config {
	return globalConfig
}

func (c *Config) Validate() error {
	if _, err := chainparams.ByName(c.Network); err != nil {
		return err
	}
	switch c.SnapshotStore {
	case "file", "badger":
	default:
		return fmt.Errorf(
			"invalid snapshotStore: %q (must be 'file' or 'badger')",
			c.SnapshotStore,
		)
	}
	if _, err := budget.ParseBudgetMode(c.BudgetMode); err != nil {
		return err
	}
	if _, err := c.DumpIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	if c.ChainHeight < 0 || c.MasternodeCount < 0 {
		return errors.New("chainHeight and masternodeCount must not be negative")
	}
	if c.AutoVoteChance < 0 || c.ResyncChance < 0 {
		return errors.New("chance values must not be negative")
	}
	if _, err := c.Masternode(); err != nil {
		return err
	}
	return nil
}

// DumpIntervalDuration parses DumpInterval. An empty value disables
// periodic snapshot writes.
func (c *Config) DumpIntervalDuration() (time.Duration, error) {
	if c.DumpInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.DumpInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid dumpInterval: %w", err)
	}
	return d, nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout: %w", err)
	}
	return d, nil
}

// Masternode returns the configured voting identity, or nil when the node
// does not vote. The outpoint needs exactly one of a hex key or a key file.
func (c *Config) Masternode() (*budget.ActiveMasternode, error) {
	hasKey := c.MasternodePrivateKey != "" || c.MasternodeKeyFile != ""
	if c.MasternodeOutpoint == "" && !hasKey {
		return nil, nil
	}
	if c.MasternodeOutpoint == "" || !hasKey {
		return nil, errors.New(
			"masternodeOutpoint and a masternode key must be set together",
		)
	}
	if c.MasternodePrivateKey != "" && c.MasternodeKeyFile != "" {
		return nil, errors.New(
			"masternodePrivateKey and masternodeKeyFile are mutually exclusive",
		)
	}
	out, err := budget.ParseOutpoint(c.MasternodeOutpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid masternodeOutpoint: %w", err)
	}
	var key *msgsign.PrivateKey
	if c.MasternodeKeyFile != "" {
		key, err = keystore.LoadSigningKey(c.MasternodeKeyFile)
		if err != nil {
			return nil, fmt.Errorf("invalid masternodeKeyFile: %w", err)
		}
	} else {
		key, err = msgsign.ParsePrivateKey(c.MasternodePrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid masternodePrivateKey: %w", err)
		}
	}
	return &budget.ActiveMasternode{Outpoint: out, Key: key}, nil
}
