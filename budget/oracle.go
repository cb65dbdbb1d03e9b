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

// BlockInfo describes a block known to the chain index
type BlockInfo struct {
	Height int64
	Time   int64
	// Active is false for blocks that are not on the best chain
	Active bool
}

// ChainOracle is the read-only view of the chain index
type ChainOracle interface {
	// Height returns the height of the best chain tip
	Height() int64
	// Transaction looks up a transaction by hash. The returned block hash is
	// zero for unmined transactions.
	Transaction(hash Hash) (Transaction, Hash, bool)
	// Block returns information about a block by hash
	Block(hash Hash) (BlockInfo, bool)
	// InstantConfirmations returns the number of instant-lock confirmations
	// credited to a transaction
	InstantConfirmations(txHash Hash) int64
	// BlockValue returns the total block reward at a height
	BlockValue(height int64) int64
}

// Masternode is a registered voting node
type Masternode struct {
	Outpoint Outpoint
	// PubKey is the compressed secp256k1 key votes are signed with
	PubKey []byte
}

// MasternodeRegistry is the read-only view of the masternode list
type MasternodeRegistry interface {
	Find(outpoint Outpoint) (Masternode, bool)
	CountEnabled() int
	// AskFor requests a fresh announcement for a masternode from a peer
	AskFor(peer PeerID, outpoint Outpoint)
}

// PeerID identifies a connected peer
type PeerID string

// Network is the peer messaging transport. All calls are fire-and-forget.
type Network interface {
	PushInventory(peer PeerID, inv Inventory)
	PushMessage(peer PeerID, msg Message)
	RelayInventory(inv Inventory)
	Misbehaving(peer PeerID, score int)
	// Peers returns the peers that speak the active protocol version
	Peers() []PeerID
}

// SyncTracker exposes the node's own synchronization progress
type SyncTracker interface {
	IsBlockchainSynced() bool
	// IsSynced reports whether masternode and governance sync is complete
	IsSynced() bool
	// BudgetSynced reports whether sync has progressed past the budget stage
	BudgetSynced() bool
	// AddedBudgetItem notes that a governance item was received
	AddedBudgetItem(hash Hash)
}

// CollateralFunder creates and broadcasts the fee transaction that anchors
// a locally suggested finalized budget
type CollateralFunder interface {
	CreateBudgetCollateral(budgetHash Hash) (Hash, error)
}
