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

package budget

import (
	"io/fs"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/msgsign"
)

const testPeer = PeerID("peer-1")

var testNow = time.Unix(1_750_000_000, 0)

func testParams() *chainparams.Params {
	p := chainparams.Regtest
	p.BudgetFeeConfirmations = 6
	return &p
}

type fakeTx struct {
	tx        Transaction
	blockHash Hash
}

type fakeChain struct {
	mu         sync.Mutex
	height     int64
	txs        map[Hash]fakeTx
	blocks     map[Hash]BlockInfo
	blockTime  int64
	blockValue int64
}

func newFakeChain(height int64) *fakeChain {
	return &fakeChain{
		height:     height,
		txs:        make(map[Hash]fakeTx),
		blocks:     make(map[Hash]BlockInfo),
		blockTime:  testNow.Add(-48 * time.Hour).Unix(),
		blockValue: 500 * chainparams.Coin,
	}
}

func (c *fakeChain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *fakeChain) setHeight(height int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}

func (c *fakeChain) Transaction(h Hash) (Transaction, Hash, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ftx, ok := c.txs[h]
	return ftx.tx, ftx.blockHash, ok
}

func (c *fakeChain) Block(h Hash) (BlockInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.blocks[h]
	return info, ok
}

func (c *fakeChain) InstantConfirmations(Hash) int64 { return 0 }

func (c *fakeChain) BlockValue(int64) int64 { return c.blockValue }

// addCollateral mines a collateral transaction committing to target at
// blockHeight and returns its hash
func (c *fakeChain) addCollateral(target Hash, fee int64, blockHeight int64) Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	txHash := hashFields("collateral", target, fee, blockHeight)
	blockHash := hashFields("block", blockHeight)
	c.blocks[blockHash] = BlockInfo{
		Height: blockHeight,
		Time:   c.blockTime,
		Active: true,
	}
	c.txs[txHash] = fakeTx{
		tx: Transaction{
			Hash: txHash,
			Outputs: []TxOut{
				{Value: fee, Script: CommitmentScript(target)},
			},
		},
		blockHash: blockHash,
	}
	return txHash
}

type fakeRegistry struct {
	mu      sync.Mutex
	nodes   map[Outpoint]Masternode
	keys    []*msgsign.PrivateKey
	outs    []Outpoint
	enabled int
	asked   []Outpoint
}

func newFakeRegistry(t *testing.T, count int) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{nodes: make(map[Outpoint]Masternode)}
	for i := range count {
		key, err := msgsign.GenerateKey()
		require.NoError(t, err)
		out := Outpoint{Hash: hashFields("masternode", i), Index: uint32(i)}
		r.nodes[out] = Masternode{
			Outpoint: out,
			PubKey:   msgsign.PublicKeyBytes(key),
		}
		r.keys = append(r.keys, key)
		r.outs = append(r.outs, out)
	}
	r.enabled = count
	return r
}

func (r *fakeRegistry) Find(out Outpoint) (Masternode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mn, ok := r.nodes[out]
	return mn, ok
}

func (r *fakeRegistry) CountEnabled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *fakeRegistry) AskFor(_ PeerID, out Outpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, out)
}

func (r *fakeRegistry) remove(out Outpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, out)
}

type pushedMessage struct {
	peer PeerID
	msg  Message
}

type fakeNetwork struct {
	mu          sync.Mutex
	peers       []PeerID
	inventory   map[PeerID][]Inventory
	messages    []pushedMessage
	relayed     []Inventory
	misbehaving map[PeerID]int
}

func newFakeNetwork(peers ...PeerID) *fakeNetwork {
	return &fakeNetwork{
		peers:       peers,
		inventory:   make(map[PeerID][]Inventory),
		misbehaving: make(map[PeerID]int),
	}
}

func (n *fakeNetwork) PushInventory(peer PeerID, inv Inventory) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inventory[peer] = append(n.inventory[peer], inv)
}

func (n *fakeNetwork) PushMessage(peer PeerID, msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, pushedMessage{peer: peer, msg: msg})
}

func (n *fakeNetwork) RelayInventory(inv Inventory) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.relayed = append(n.relayed, inv)
}

func (n *fakeNetwork) Misbehaving(peer PeerID, score int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.misbehaving[peer] += score
}

func (n *fakeNetwork) Peers() []PeerID {
	return n.peers
}

func (n *fakeNetwork) relayedOfType(t InventoryType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	ret := 0
	for _, inv := range n.relayed {
		if inv.Type == t {
			ret++
		}
	}
	return ret
}

func (n *fakeNetwork) syncRequests() []SyncRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ret []SyncRequest
	for _, m := range n.messages {
		if req, ok := m.msg.(SyncRequest); ok {
			ret = append(ret, req)
		}
	}
	return ret
}

type fakeSync struct {
	blockchainSynced bool
	synced           bool
	budgetSynced     bool
	mu               sync.Mutex
	added            []Hash
}

func (s *fakeSync) IsBlockchainSynced() bool { return s.blockchainSynced }
func (s *fakeSync) IsSynced() bool           { return s.synced }
func (s *fakeSync) BudgetSynced() bool       { return s.budgetSynced }

func (s *fakeSync) AddedBudgetItem(h Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, h)
}

type fakeFunder struct {
	chain *fakeChain
	fee   int64
	calls int
}

func (f *fakeFunder) CreateBudgetCollateral(h Hash) (Hash, error) {
	f.calls++
	return f.chain.addCollateral(h, f.fee, f.chain.Height()-10), nil
}

type memStore struct {
	data []byte
}

func (s *memStore) Load() ([]byte, error) {
	if s.data == nil {
		return nil, fs.ErrNotExist
	}
	return s.data, nil
}

func (s *memStore) Save(data []byte) error {
	s.data = append([]byte(nil), data...)
	return nil
}

type testEnv struct {
	t        *testing.T
	params   *chainparams.Params
	chain    *fakeChain
	registry *fakeRegistry
	network  *fakeNetwork
	sync     *fakeSync
	promReg  *prometheus.Registry
	manager  *Manager
}

func newTestEnv(t *testing.T, height int64, opts ...func(*ManagerConfig)) *testEnv {
	t.Helper()
	env := &testEnv{
		t:        t,
		params:   testParams(),
		chain:    newFakeChain(height),
		registry: newFakeRegistry(t, 10),
		network:  newFakeNetwork(),
		sync: &fakeSync{
			blockchainSynced: true,
			synced:           true,
			budgetSynced:     true,
		},
		promReg: prometheus.NewRegistry(),
	}
	env.manager = env.newManager(opts...)
	return env
}

// newManager builds another manager sharing the environment collaborators
func (e *testEnv) newManager(opts ...func(*ManagerConfig)) *Manager {
	e.t.Helper()
	cfg := ManagerConfig{
		Params:         e.params,
		Chain:          e.chain,
		Registry:       e.registry,
		Network:        e.network,
		Sync:           e.sync,
		Mode:           BudgetModeNone,
		PromRegistry:   prometheus.NewRegistry(),
		Now:            func() time.Time { return testNow },
		Rand:           rand.New(rand.NewPCG(1, 2)),
		AutoVoteChance: 1,
	}
	if e.manager == nil {
		cfg.PromRegistry = e.promReg
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(e.t, err)
	return m
}

func testPayee(name string) Script {
	h := hashFields("payee", name)
	return PayToPubKeyHashScript(h[:20])
}

// proposal builds a proposal broadcast with confirmed collateral
func (e *testEnv) proposal(name string, amount int64, blockStart int64, payments int64) ProposalBroadcast {
	b := NewProposalBroadcast(
		e.params,
		name,
		"https://example.com/"+name,
		payments,
		testPayee(name),
		amount,
		blockStart,
		ZeroHash,
	)
	b.FeeTxHash = e.chain.addCollateral(
		b.Hash(),
		e.params.ProposalFee,
		e.chain.Height()-10,
	)
	return b
}

// finalized builds a finalized budget broadcast with confirmed collateral
func (e *testEnv) finalized(blockStart int64, payments []Payment) FinalizedBudgetBroadcast {
	b := NewFinalizedBudgetBroadcast(MainBudgetName, blockStart, payments, ZeroHash)
	b.FeeTxHash = e.chain.addCollateral(
		b.Hash(),
		e.params.FinalizationFee,
		e.chain.Height()-10,
	)
	return b
}

// vote returns a vote signed by masternode i
func (e *testEnv) vote(i int, proposal Hash, direction VoteDirection, at time.Time) Vote {
	v := NewVote(e.registry.outs[i], proposal, direction, at)
	v.Sign(e.registry.keys[i])
	return v
}

func (e *testEnv) finalizedVote(i int, budget Hash, at time.Time) FinalizedBudgetVote {
	v := NewFinalizedBudgetVote(e.registry.outs[i], budget, at)
	v.Sign(e.registry.keys[i])
	return v
}

// addPassingProposal submits a proposal and enough yes votes to fund it
func (e *testEnv) addPassingProposal(m *Manager, name string, amount int64, blockStart int64) ProposalBroadcast {
	e.t.Helper()
	b := e.proposal(name, amount, blockStart, 2)
	m.ProcessMessage(testPeer, b)
	for i := range 3 {
		m.ProcessMessage(testPeer, e.vote(i, b.Hash(), VoteYes, testNow))
	}
	p, ok := m.GetProposal(b.Hash())
	require.True(e.t, ok, "proposal %s not added", name)
	require.Equal(e.t, 3, p.Yeas())
	return b
}
