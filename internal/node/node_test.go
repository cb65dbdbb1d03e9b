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
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/internal/test/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Network = chainparams.NetworkRegtest
	cfg.DataDir = t.TempDir()
	cfg.DumpInterval = ""
	cfg.BudgetMode = string(budget.BudgetModeNone)
	cfg.MetricsPort = 0
	cfg.ShutdownTimeout = "5s"
	cfg.ChainHeight = 1000
	cfg.MasternodeCount = 10
	cfg.TrustCollateral = true
	return cfg
}

func TestStaticChain(t *testing.T) {
	c := NewStaticChain(&chainparams.Regtest, 500)
	assert.Equal(t, int64(500), c.Height())
	c.SetHeight(501)
	assert.Equal(t, int64(501), c.Height())
	_, _, ok := c.Transaction(budget.Hash{1})
	assert.False(t, ok)
	_, ok = c.Block(budget.Hash{1})
	assert.False(t, ok)
	assert.Zero(t, c.InstantConfirmations(budget.Hash{1}))
	assert.Equal(t, 500*chainparams.Coin, c.BlockValue(501))
}

func TestStandaloneCollaborators(t *testing.T) {
	r := NewStaticRegistry(7)
	assert.Equal(t, 7, r.CountEnabled())
	mn, ok := r.Find(budget.Outpoint{Index: 1})
	assert.True(t, ok)
	assert.Equal(t, uint32(1), mn.Outpoint.Index)

	n := NewNullNetwork(testutil.DiscardLogger())
	n.RelayInventory(budget.Inventory{Type: budget.InventoryProposal})
	n.PushMessage("peer", budget.Vote{})
	assert.Empty(t, n.Peers())

	var s SyncedTracker
	assert.True(t, s.IsBlockchainSynced())
	assert.True(t, s.IsSynced())
	assert.True(t, s.BudgetSynced())

	_, err := NoWallet{}.CreateBudgetCollateral(budget.Hash{})
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestNodeOptions(t *testing.T) {
	cfg := testConfig(t)
	opts, err := NodeOptions(cfg, testutil.DiscardLogger(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg.Network = "nowhere"
	_, err = NodeOptions(cfg, testutil.DiscardLogger(), nil)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.BudgetMode = "sometimes"
	_, err = NodeOptions(cfg, testutil.DiscardLogger(), nil)
	assert.Error(t, err)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treasury_test_total",
		Help: "test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()
	srv := httptest.NewServer(MetricsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "treasury_test_total 1")

	resp, err = http.Get(srv.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunWritesSnapshotOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, Run(ctx, cfg, testutil.DiscardLogger()))
	_, err := os.Stat(filepath.Join(cfg.DataDir, "budget.dat"))
	assert.NoError(t, err)
}

func TestRunServesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsBindAddr = "127.0.0.1"
	cfg.MetricsPort = uint(testutil.FreePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg, testutil.DiscardLogger())
	}()
	url := "http://" + net.JoinHostPort(
		cfg.MetricsBindAddr,
		strconv.FormatUint(uint64(cfg.MetricsPort), 10),
	) + "/metrics"
	var body []byte
	testutil.WaitForCondition(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, "metrics endpoint")
	assert.Contains(t, string(body), "treasury_budget_proposals")
	assert.Contains(t, string(body), "go_goroutines")
	cancel()
	err := testutil.RequireReceive(t, errCh, 10*time.Second, "Run return")
	assert.NoError(t, err)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShutdownTimeout = "soon"
	assert.Error(t, Run(context.Background(), cfg, testutil.DiscardLogger()))
}
