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
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
)

// ErrNoWallet is returned when a finalized budget needs collateral and the
// daemon runs without a wallet
var ErrNoWallet = errors.New("no wallet available to fund collateral")

// StaticChain is a chain view pinned to a configured height. It knows no
// transactions, so collateral must be trusted when it is used.
type StaticChain struct {
	params *chainparams.Params
	height atomic.Int64
}

func NewStaticChain(params *chainparams.Params, height int64) *StaticChain {
	c := &StaticChain{params: params}
	c.height.Store(height)
	return c
}

func (c *StaticChain) Height() int64 {
	return c.height.Load()
}

func (c *StaticChain) SetHeight(height int64) {
	c.height.Store(height)
}

func (c *StaticChain) Transaction(budget.Hash) (budget.Transaction, budget.Hash, bool) {
	return budget.Transaction{}, budget.Hash{}, false
}

func (c *StaticChain) Block(budget.Hash) (budget.BlockInfo, bool) {
	return budget.BlockInfo{}, false
}

func (c *StaticChain) InstantConfirmations(budget.Hash) int64 {
	return 0
}

func (c *StaticChain) BlockValue(height int64) int64 {
	return c.params.BlockSubsidy(height)
}

// StaticRegistry reports a fixed number of enabled masternodes and treats
// every voter as registered, so stored votes keep counting. It has no keys
// to check new signatures against.
type StaticRegistry struct {
	count int
}

func NewStaticRegistry(count int) *StaticRegistry {
	return &StaticRegistry{count: count}
}

func (r *StaticRegistry) Find(outpoint budget.Outpoint) (budget.Masternode, bool) {
	return budget.Masternode{Outpoint: outpoint}, true
}

func (r *StaticRegistry) CountEnabled() int {
	return r.count
}

func (r *StaticRegistry) AskFor(budget.PeerID, budget.Outpoint) {}

// NullNetwork drops outgoing messages
type NullNetwork struct {
	logger *slog.Logger
}

func NewNullNetwork(logger *slog.Logger) *NullNetwork {
	return &NullNetwork{logger: logger}
}

func (n *NullNetwork) PushInventory(peer budget.PeerID, inv budget.Inventory) {
	n.logger.Debug(
		"dropping inventory",
		"component", "node",
		"peer", peer,
		"inv", inv.String(),
	)
}

func (n *NullNetwork) PushMessage(peer budget.PeerID, msg budget.Message) {
	n.logger.Debug(
		"dropping message",
		"component", "node",
		"peer", peer,
		"command", msg.Command(),
	)
}

func (n *NullNetwork) RelayInventory(inv budget.Inventory) {
	n.logger.Debug(
		"dropping relay",
		"component", "node",
		"inv", inv.String(),
	)
}

func (n *NullNetwork) Misbehaving(budget.PeerID, int) {}

func (n *NullNetwork) Peers() []budget.PeerID {
	return nil
}

// SyncedTracker always reports a completed sync
type SyncedTracker struct{}

func (SyncedTracker) IsBlockchainSynced() bool    { return true }
func (SyncedTracker) IsSynced() bool              { return true }
func (SyncedTracker) BudgetSynced() bool          { return true }
func (SyncedTracker) AddedBudgetItem(budget.Hash) {}

// NoWallet refuses every collateral request
type NoWallet struct{}

func (NoWallet) CreateBudgetCollateral(budget.Hash) (budget.Hash, error) {
	return budget.Hash{}, ErrNoWallet
}
