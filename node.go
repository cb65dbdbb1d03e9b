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

// Package treasury embeds the budget manager into a host node. The host
// supplies the chain, masternode list and peer transport, publishes block
// connected events on the node event bus and forwards governance messages.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/treasury/api"
	"github.com/blinklabs-io/treasury/archive"
	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/event"
	"github.com/blinklabs-io/treasury/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Node struct {
	config        Config
	eventBus      *event.EventBus
	manager       *budget.Manager
	store         budget.SnapshotStore
	archive       *archive.Archive
	apiServer     *api.Server
	tracer        trace.Tracer
	shutdownFuncs []func(context.Context) error
	blockSubId    event.EventSubscriberId
	dumpMu        sync.Mutex
	dumpStop      chan struct{}
	dumpWg        sync.WaitGroup
	started       chan struct{}
	startOnce     sync.Once
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if err := cfg.populateParams(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		tracer:   otel.Tracer(tracerName),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	return n, nil
}

// EventBus returns the bus block connected events are published on
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// Manager returns the budget manager. It is nil until Run has initialized
// it; Started is closed at that point.
func (n *Node) Manager() *budget.Manager {
	return n.manager
}

// Started is closed once Run has finished initialization
func (n *Node) Started() <-chan struct{} {
	return n.started
}

// ApiAddr returns the bound API listen address or an empty string
func (n *Node) ApiAddr() string {
	if n.apiServer == nil {
		return ""
	}
	if addr := n.apiServer.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (n *Node) Run(ctx context.Context) error {
	if err := n.start(ctx); err != nil {
		// Release whatever was opened before the failure
		_ = n.Stop()
		return err
	}
	n.startOnce.Do(func() { close(n.started) })
	select {
	case <-n.done:
	case <-ctx.Done():
		if err := n.Stop(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) start(ctx context.Context) error {
	logger := n.config.logger
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Open snapshot store
	if err := n.openStore(); err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	// Load budget manager
	mgr, err := budget.NewManager(budget.ManagerConfig{
		Params:          n.config.params,
		Chain:           n.config.chain,
		Registry:        n.config.registry,
		Network:         n.config.peers,
		Sync:            n.config.syncTracker,
		Funder:          n.config.funder,
		Masternode:      n.config.masternode,
		Mode:            n.config.budgetMode,
		Logger:          logger,
		PromRegistry:    n.config.promRegistry,
		EventBus:        n.eventBus,
		AutoVoteChance:  n.config.autoVoteChance,
		ResyncChance:    n.config.resyncChance,
		TrustCollateral: n.config.trustCollateral,
	})
	if err != nil {
		return fmt.Errorf("failed to create budget manager: %w", err)
	}
	n.manager = mgr
	// Audit archive
	if n.config.archive {
		a, err := archive.New(n.config.dataDir, logger)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		a.Attach(n.eventBus)
		n.archive = a
	}
	err = n.traced(ctx, "budget.load", func() error {
		return n.manager.Load(n.store)
	})
	switch {
	case err == nil:
		logger.Info(
			"loaded budget snapshot: "+n.manager.String(),
			"component", "treasury",
		)
	case errors.Is(err, fs.ErrNotExist):
		logger.Info(
			"no budget snapshot found, starting empty",
			"component", "treasury",
		)
	default:
		logger.Warn(
			"failed to load budget snapshot, starting empty",
			"component", "treasury",
			"error", err,
		)
	}
	// Feed connected blocks into the manager
	n.blockSubId = n.eventBus.SubscribeFunc(
		event.BlockConnectedEventType,
		n.handleBlockConnected,
	)
	// Periodic snapshot writes
	if n.config.dumpInterval > 0 {
		n.dumpStop = make(chan struct{})
		n.dumpWg.Add(1)
		go n.dumpLoop(n.config.dumpInterval, n.dumpStop)
	}
	// Query API
	if n.config.apiListenAddress != "" {
		n.apiServer = api.New(
			api.Config{ListenAddress: n.config.apiListenAddress},
			n.manager,
			logger,
		)
		if err := n.apiServer.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) openStore() error {
	switch n.config.storageBackend {
	case StorageBackendBadger:
		dir := ""
		if n.config.dataDir != "" {
			dir = filepath.Join(n.config.dataDir, "snapshot")
		}
		s, err := store.NewBadgerStore(
			store.WithDataDir(dir),
			store.WithLogger(n.config.logger),
			store.WithPromRegistry(n.config.promRegistry),
		)
		if err != nil {
			return err
		}
		n.store = s
	default:
		s, err := store.NewFileStore(n.config.dataDir, n.config.logger)
		if err != nil {
			return err
		}
		n.store = s
	}
	return nil
}

func (n *Node) handleBlockConnected(evt event.Event) {
	data, ok := evt.Data.(event.BlockConnectedEvent)
	if !ok {
		return
	}
	_ = n.traced(
		context.Background(),
		"budget.new_block",
		func() error {
			n.manager.NewBlock(data.Height)
			return nil
		},
		attribute.Int64("height", data.Height),
	)
}

func (n *Node) dumpLoop(interval time.Duration, stop <-chan struct{}) {
	defer n.dumpWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := n.Dump(context.Background()); err != nil {
				n.config.logger.Error(
					"failed to write budget snapshot",
					"component", "treasury",
					"error", err,
				)
			}
		case <-stop:
			return
		}
	}
}

// Dump writes the manager state to the snapshot store
func (n *Node) Dump(ctx context.Context) error {
	if n.manager == nil || n.store == nil {
		return errors.New("node not started")
	}
	n.dumpMu.Lock()
	defer n.dumpMu.Unlock()
	return n.traced(ctx, "budget.dump", func() error {
		return n.manager.Dump(n.store)
	})
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		n.config.shutdownTimeout,
	)
	defer cancel()
	logger := n.config.logger
	var err error

	logger.Debug("starting graceful shutdown", "component", "treasury")

	// Phase 1: stop accepting new work
	if n.apiServer != nil {
		if stopErr := n.apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	n.eventBus.Unsubscribe(event.BlockConnectedEventType, n.blockSubId)
	if n.dumpStop != nil {
		close(n.dumpStop)
		n.dumpWg.Wait()
	}

	// Phase 2: flush state
	if n.manager != nil && n.store != nil {
		if dumpErr := n.Dump(ctx); dumpErr != nil {
			err = errors.Join(err, fmt.Errorf("final snapshot: %w", dumpErr))
		}
	}

	// Phase 3: cleanup resources
	n.eventBus.Stop()
	if n.archive != nil {
		if closeErr := n.archive.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("archive close: %w", closeErr))
		}
	}
	if closer, ok := n.store.(io.Closer); ok {
		if closeErr := closer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("snapshot store close: %w", closeErr))
		}
	}
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	logger.Debug("graceful shutdown complete", "component", "treasury")
	close(n.done)
	return err
}
