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
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/event"
	"github.com/blinklabs-io/treasury/internal/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	height atomic.Int64
}

func (c *fakeChain) Height() int64 { return c.height.Load() }

func (c *fakeChain) Transaction(budget.Hash) (budget.Transaction, budget.Hash, bool) {
	return budget.Transaction{}, budget.Hash{}, false
}

func (c *fakeChain) Block(budget.Hash) (budget.BlockInfo, bool) {
	return budget.BlockInfo{}, false
}

func (c *fakeChain) InstantConfirmations(budget.Hash) int64 { return 0 }
func (c *fakeChain) BlockValue(int64) int64                 { return 0 }

type fakeRegistry struct{}

func (fakeRegistry) Find(budget.Outpoint) (budget.Masternode, bool) {
	return budget.Masternode{}, false
}
func (fakeRegistry) CountEnabled() int                     { return 10 }
func (fakeRegistry) AskFor(budget.PeerID, budget.Outpoint) {}

type fakePeers struct{}

func (fakePeers) PushInventory(budget.PeerID, budget.Inventory) {}
func (fakePeers) PushMessage(budget.PeerID, budget.Message)     {}
func (fakePeers) RelayInventory(budget.Inventory)               {}
func (fakePeers) Misbehaving(budget.PeerID, int)                {}
func (fakePeers) Peers() []budget.PeerID                        { return nil }

type fakeSync struct{}

func (fakeSync) IsBlockchainSynced() bool    { return true }
func (fakeSync) IsSynced() bool              { return true }
func (fakeSync) BudgetSynced() bool          { return true }
func (fakeSync) AddedBudgetItem(budget.Hash) {}

func newTestNode(t *testing.T, chain *fakeChain, opts ...ConfigOptionFunc) *Node {
	t.Helper()
	base := []ConfigOptionFunc{
		WithNetwork(chainparams.NetworkRegtest),
		WithChainOracle(chain),
		WithMasternodeRegistry(fakeRegistry{}),
		WithPeerNetwork(fakePeers{}),
		WithSyncTracker(fakeSync{}),
		WithBudgetMode(budget.BudgetModeNone),
		WithTrustCollateral(true),
		WithDumpInterval(0),
	}
	n, err := New(NewConfig(append(base, opts...)...))
	require.NoError(t, err)
	return n
}

// runNode starts n and returns a func that stops it and waits for Run
func runNode(t *testing.T, n *Node) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()
	select {
	case <-n.Started():
	case err := <-errCh:
		cancel()
		t.Fatalf("node failed to start: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("timed out waiting for node start")
	}
	return func() {
		cancel()
		err := testutil.RequireReceive(t, errCh, 10*time.Second, "node stop")
		require.NoError(t, err)
	}
}

func testP2PKH() budget.Script {
	keyHash := make([]byte, 20)
	keyHash[0] = 0x42
	return budget.PayToPubKeyHashScript(keyHash)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(NewConfig(WithNetwork(chainparams.NetworkRegtest)))
	assert.Error(t, err)

	_, err = New(NewConfig(WithNetwork("nope")))
	assert.Error(t, err)
}

func TestNodeLifecycle(t *testing.T) {
	dir := t.TempDir()
	chain := &fakeChain{}
	chain.height.Store(1000)

	n := newTestNode(
		t,
		chain,
		WithDataDir(dir),
		WithArchive(true),
		WithApiListenAddress("127.0.0.1:0"),
	)
	stop := runNode(t, n)

	params := n.Manager().Params()
	proposal := budget.NewProposalBroadcast(
		params,
		"alpha",
		"https://example.com/alpha",
		2,
		testP2PKH(),
		100*chainparams.Coin,
		1008,
		budget.Hash{0x01},
	)
	hash, err := n.Manager().SubmitProposal(proposal)
	require.NoError(t, err)

	// Connected blocks advance the manager
	n.EventBus().Publish(
		event.BlockConnectedEventType,
		event.NewEvent(
			event.BlockConnectedEventType,
			event.BlockConnectedEvent{Height: 1001},
		),
	)
	testutil.WaitForCondition(
		t,
		func() bool { return n.Manager().Height() == 1001 },
		5*time.Second,
		"manager height",
	)

	// The query API serves the manager state
	addr := n.ApiAddr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/api/v1/proposals/alpha")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), hash.String())

	stop()

	// Shutdown writes the snapshot
	_, err = os.Stat(filepath.Join(dir, "budget.dat"))
	require.NoError(t, err)
	// Stop after shutdown is a no-op
	require.NoError(t, n.Stop())

	// A new node restores the saved state
	n2 := newTestNode(t, chain, WithDataDir(dir))
	stop2 := runNode(t, n2)
	defer stop2()
	p, ok := n2.Manager().GetProposal(hash)
	require.True(t, ok)
	assert.Equal(t, "alpha", p.Name)
}

func TestNodeBadgerInMemory(t *testing.T) {
	chain := &fakeChain{}
	chain.height.Store(500)
	n := newTestNode(t, chain, WithStorageBackend(StorageBackendBadger))
	stop := runNode(t, n)
	require.NoError(t, n.Dump(context.Background()))
	assert.Empty(t, n.ApiAddr())
	stop()
}

func TestNodeDumpBeforeStart(t *testing.T) {
	n := newTestNode(t, &fakeChain{}, WithDataDir(t.TempDir()))
	assert.Error(t, n.Dump(context.Background()))
	assert.Nil(t, n.Manager())
}

func TestNodeRunFailure(t *testing.T) {
	// The data dir is a regular file so the snapshot store cannot be opened
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	n := newTestNode(t, &fakeChain{}, WithDataDir(path))
	err := n.Run(context.Background())
	assert.Error(t, err)
}
