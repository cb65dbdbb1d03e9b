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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/blinklabs-io/treasury"
	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// NodeOptions translates the daemon config into treasury node options
func NodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
) ([]treasury.ConfigOptionFunc, error) {
	params, err := chainparams.ByName(cfg.Network)
	if err != nil {
		return nil, err
	}
	mode, err := budget.ParseBudgetMode(cfg.BudgetMode)
	if err != nil {
		return nil, err
	}
	dumpInterval, err := cfg.DumpIntervalDuration()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	mn, err := cfg.Masternode()
	if err != nil {
		return nil, err
	}
	opts := []treasury.ConfigOptionFunc{
		treasury.WithLogger(logger),
		treasury.WithPrometheusRegistry(reg),
		treasury.WithNetwork(params.Name),
		treasury.WithChainParams(params),
		treasury.WithDataDir(cfg.DataDir),
		treasury.WithStorageBackend(treasury.StorageBackend(cfg.SnapshotStore)),
		treasury.WithChainOracle(NewStaticChain(params, cfg.ChainHeight)),
		treasury.WithMasternodeRegistry(NewStaticRegistry(cfg.MasternodeCount)),
		treasury.WithPeerNetwork(NewNullNetwork(logger)),
		treasury.WithSyncTracker(SyncedTracker{}),
		treasury.WithCollateralFunder(NoWallet{}),
		treasury.WithBudgetMode(mode),
		treasury.WithApiListenAddress(cfg.ApiListenAddress),
		treasury.WithArchive(cfg.ArchiveEnabled),
		treasury.WithDumpInterval(dumpInterval),
		treasury.WithChances(cfg.AutoVoteChance, cfg.ResyncChance),
		treasury.WithTrustCollateral(cfg.TrustCollateral),
		treasury.WithTracing(cfg.Tracing),
		treasury.WithTracingStdout(cfg.TracingStdout),
		treasury.WithShutdownTimeout(shutdownTimeout),
	}
	if mn != nil {
		opts = append(opts, treasury.WithMasternode(mn))
	}
	return opts, nil
}

// MetricsHandler serves the registry in the Prometheus text format along
// with the pprof endpoints
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Run starts a treasury node from the daemon config and blocks until ctx is
// cancelled, a termination signal arrives or the node fails
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", redacted(cfg)), "component", "node")
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts, err := NodeOptions(cfg, logger, reg)
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	n, err := treasury.New(treasury.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsListener net.Listener
	if cfg.MetricsPort > 0 {
		addr := net.JoinHostPort(
			cfg.MetricsBindAddr,
			strconv.FormatUint(uint64(cfg.MetricsPort), 10),
		)
		metricsListener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to start metrics listener: %w", err)
		}
		logger.Info(
			"serving prometheus metrics on "+addr,
			"component", "node",
		)
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		ctx,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	runCtx, runCancel := context.WithCancel(signalCtx)
	defer runCancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer runCancel()
		return n.Run(gctx)
	})
	if metricsListener != nil {
		metricsServer := &http.Server{
			Handler:           MetricsHandler(reg),
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		g.Go(func() error {
			err := metricsServer.Serve(metricsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			//nolint:contextcheck
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("node error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// redacted returns a copy of cfg that is safe to log
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if ret.MasternodePrivateKey != "" {
		ret.MasternodePrivateKey = "<redacted>"
	}
	return ret
}
