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

package treasury

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/prometheus/client_golang/prometheus"
)

// StorageBackend selects where the manager snapshot is kept
type StorageBackend string

const (
	StorageBackendFile   StorageBackend = "file"
	StorageBackendBadger StorageBackend = "badger"
)

func (b StorageBackend) Valid() bool {
	switch b {
	case StorageBackendFile, StorageBackendBadger:
		return true
	default:
		return false
	}
}

const (
	DefaultDumpInterval    = 15 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	params           *chainparams.Params
	chain            budget.ChainOracle
	registry         budget.MasternodeRegistry
	peers            budget.Network
	syncTracker      budget.SyncTracker
	funder           budget.CollateralFunder
	masternode       *budget.ActiveMasternode
	network          string
	dataDir          string
	storageBackend   StorageBackend
	budgetMode       budget.BudgetMode
	apiListenAddress string
	dumpInterval     time.Duration
	shutdownTimeout  time.Duration
	autoVoteChance   int
	resyncChance     int
	archive          bool
	trustCollateral  bool
	tracing          bool
	tracingStdout    bool
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new treasury config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		storageBackend:  StorageBackendFile,
		budgetMode:      budget.BudgetModeSuggest,
		dumpInterval:    DefaultDumpInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		autoVoteChance:  budget.DefaultAutoVoteChance,
		resyncChance:    budget.DefaultResyncChance,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// populateParams resolves the named network into chain params when
// none were given explicitly
func (c *Config) populateParams() error {
	if c.params != nil {
		return nil
	}
	params, err := chainparams.ByName(c.network)
	if err != nil {
		return err
	}
	c.params = params
	return nil
}

func (c *Config) validate() error {
	if c.chain == nil {
		return errors.New("no chain oracle configured")
	}
	if c.registry == nil {
		return errors.New("no masternode registry configured")
	}
	if c.peers == nil {
		return errors.New("no peer network configured")
	}
	if c.syncTracker == nil {
		return errors.New("no sync tracker configured")
	}
	if !c.storageBackend.Valid() {
		return fmt.Errorf("invalid storage backend: %q", c.storageBackend)
	}
	if c.storageBackend == StorageBackendFile && c.dataDir == "" {
		return errors.New("file storage requires a data directory")
	}
	if c.budgetMode == budget.BudgetModeSuggest && c.masternode != nil && c.funder == nil {
		return errors.New("budget suggestion requires a collateral funder")
	}
	if c.autoVoteChance < 0 || c.resyncChance < 0 {
		return errors.New("chance values must not be negative")
	}
	return nil
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithNetwork specifies the named network to operate on. This selects the
// chain params unless WithChainParams is also given
func WithNetwork(network string) ConfigOptionFunc {
	return func(c *Config) {
		c.network = network
	}
}

// WithChainParams specifies the chain params directly
func WithChainParams(params *chainparams.Params) ConfigOptionFunc {
	return func(c *Config) {
		c.params = params
	}
}

// WithDataDir specifies the persistent data directory. An empty value keeps
// the badger snapshot store and the archive in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithStorageBackend selects the snapshot store
func WithStorageBackend(backend StorageBackend) ConfigOptionFunc {
	return func(c *Config) {
		c.storageBackend = backend
	}
}

// WithChainOracle specifies the chain index view
func WithChainOracle(chain budget.ChainOracle) ConfigOptionFunc {
	return func(c *Config) {
		c.chain = chain
	}
}

// WithMasternodeRegistry specifies the masternode list view
func WithMasternodeRegistry(registry budget.MasternodeRegistry) ConfigOptionFunc {
	return func(c *Config) {
		c.registry = registry
	}
}

// WithPeerNetwork specifies the peer messaging transport
func WithPeerNetwork(peers budget.Network) ConfigOptionFunc {
	return func(c *Config) {
		c.peers = peers
	}
}

// WithSyncTracker specifies the node sync progress view
func WithSyncTracker(tracker budget.SyncTracker) ConfigOptionFunc {
	return func(c *Config) {
		c.syncTracker = tracker
	}
}

// WithCollateralFunder specifies the wallet used to fund suggested
// finalized budgets
func WithCollateralFunder(funder budget.CollateralFunder) ConfigOptionFunc {
	return func(c *Config) {
		c.funder = funder
	}
}

// WithMasternode specifies the local masternode identity used for voting
func WithMasternode(mn *budget.ActiveMasternode) ConfigOptionFunc {
	return func(c *Config) {
		c.masternode = mn
	}
}

// WithBudgetMode specifies how the node takes part in budget finalization.
// The default is suggest
func WithBudgetMode(mode budget.BudgetMode) ConfigOptionFunc {
	return func(c *Config) {
		c.budgetMode = mode
	}
}

// WithApiListenAddress specifies the listen address for the query API. An
// empty value disables it
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithArchive enables the SQLite audit archive
func WithArchive(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.archive = enabled
	}
}

// WithDumpInterval specifies how often the snapshot is written. Zero only
// writes at shutdown
func WithDumpInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.dumpInterval = interval
	}
}

// WithChances specifies the 1-in-N chances of an auto-vote and a resync per
// maintenance pass. Zero disables either
func WithChances(autoVote, resync int) ConfigOptionFunc {
	return func(c *Config) {
		c.autoVoteChance = autoVote
		c.resyncChance = resync
	}
}

// WithTrustCollateral skips collateral checks. This is meant for inspecting
// a snapshot without a chain index
func WithTrustCollateral(trust bool) ConfigOptionFunc {
	return func(c *Config) {
		c.trustCollateral = trust
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
