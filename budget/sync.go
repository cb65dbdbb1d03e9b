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
	"errors"
	"fmt"
	"maps"
)

// HandleWireMessage decodes and processes a governance message from a peer
func (m *Manager) HandleWireMessage(peer PeerID, cmd Command, payload []byte) error {
	msg, err := DecodeMessage(cmd, payload)
	if err != nil {
		return err
	}
	m.ProcessMessage(peer, msg)
	return nil
}

// ProcessMessage handles a governance message received from a peer
func (m *Manager) ProcessMessage(peer PeerID, msg Message) {
	if !m.config.Sync.IsBlockchainSynced() {
		return
	}
	m.metrics.messages.WithLabelValues(string(msg.Command())).Inc()
	switch msg := msg.(type) {
	case SyncRequest:
		m.processSyncRequest(peer, msg)
	case ProposalBroadcast:
		m.processProposal(peer, msg)
	case Vote:
		m.processProposalVote(peer, msg)
	case FinalizedBudgetBroadcast:
		m.processFinalizedBudget(peer, msg)
	case FinalizedBudgetVote:
		m.processFinalizedVote(peer, msg)
	case SyncStatusCount:
		// Consumed by the sync tracker
	default:
		m.logger.Debug(
			"ignoring unexpected governance message",
			"command", string(msg.Command()),
			"peer", string(peer),
		)
	}
}

func (m *Manager) processSyncRequest(peer PeerID, req SyncRequest) {
	if m.config.Params.SingleFullSync && req.Hash.IsZero() {
		m.requestsMu.Lock()
		fulfilled := m.fulfilledSync[peer]
		m.fulfilledSync[peer] = true
		m.requestsMu.Unlock()
		if fulfilled {
			m.logger.Debug(
				"peer already asked for the full budget list",
				"peer", string(peer),
			)
			m.config.Network.Misbehaving(peer, misbehaviorScore)
			return
		}
	}
	m.Sync(peer, req.Hash, false)
	m.logger.Debug("sent budget items to peer", "peer", string(peer))
}

func (m *Manager) processProposal(peer PeerID, b ProposalBroadcast) {
	h := b.Hash()
	if m.haveSeenProposal(h) {
		m.config.Sync.AddedBudgetItem(h)
		return
	}
	res, err := m.checkCollateral(b.FeeTxHash, h, false)
	if res.BlockTime != 0 {
		b.Time = res.BlockTime
	}
	if err != nil {
		m.logger.Debug(
			"proposal collateral not valid",
			"hash", h.String(),
			"fee_tx", b.FeeTxHash.String(),
			"error", err,
		)
		if isImmature(err) {
			m.proposalsMu.Lock()
			m.immatureProposals = append(m.immatureProposals, b)
			m.metrics.immatureItems.WithLabelValues(voteKindProposal).
				Set(float64(len(m.immatureProposals)))
			m.proposalsMu.Unlock()
		}
		return
	}
	m.addSeenProposal(b)
	added, err := m.addProposal(b.ToProposal())
	if err != nil {
		m.logger.Debug(
			"invalid budget proposal",
			"hash", h.String(),
			"peer", string(peer),
			"error", err,
		)
		return
	}
	if added {
		m.config.Network.RelayInventory(Inventory{Type: InventoryProposal, Hash: h})
	}
	m.config.Sync.AddedBudgetItem(h)
	m.logger.Debug("new budget proposal", "hash", h.String())
	m.CheckOrphanVotes()
}

func (m *Manager) processProposalVote(peer PeerID, vote Vote) {
	vote.SetValid(true)
	h := vote.Hash()
	if m.haveSeenProposalVote(h) {
		m.config.Sync.AddedBudgetItem(h)
		return
	}
	mn, ok := m.config.Registry.Find(vote.Voter)
	if !ok {
		m.logger.Debug(
			"proposal vote from unknown masternode",
			"voter", vote.Voter.String(),
		)
		m.config.Registry.AskFor(peer, vote.Voter)
		m.recordVote(voteKindProposal, ErrUnknownMasternode)
		return
	}
	m.addSeenProposalVote(vote)
	if err := vote.CheckSignature(mn.PubKey); err != nil {
		m.rejectSignature(peer, vote.Voter, voteKindProposal, err)
		return
	}
	if err := m.UpdateProposal(vote, peer); err != nil {
		m.logger.Debug(
			"proposal vote rejected",
			"hash", h.String(),
			"error", err,
		)
		return
	}
	m.config.Network.RelayInventory(Inventory{Type: InventoryProposalVote, Hash: h})
	m.config.Sync.AddedBudgetItem(h)
	m.logger.Debug(
		"new proposal vote",
		"proposal", vote.Proposal.String(),
		"hash", h.String(),
	)
}

func (m *Manager) processFinalizedBudget(peer PeerID, b FinalizedBudgetBroadcast) {
	h := b.Hash()
	if m.haveSeenFinalizedBudget(h) {
		m.config.Sync.AddedBudgetItem(h)
		return
	}
	res, err := m.checkCollateral(b.FeeTxHash, h, true)
	if res.BlockTime != 0 {
		b.Time = res.BlockTime
	}
	if err != nil {
		m.logger.Debug(
			"finalized budget collateral not valid",
			"hash", h.String(),
			"fee_tx", b.FeeTxHash.String(),
			"error", err,
		)
		if isImmature(err) {
			m.budgetsMu.Lock()
			m.immatureFinalizedBudgets = append(m.immatureFinalizedBudgets, b)
			m.metrics.immatureItems.WithLabelValues(voteKindFinalized).
				Set(float64(len(m.immatureFinalizedBudgets)))
			m.budgetsMu.Unlock()
		}
		return
	}
	m.addSeenFinalizedBudget(b)
	added, err := m.addFinalizedBudget(b.ToFinalizedBudget())
	if err != nil {
		m.logger.Debug(
			"invalid finalized budget",
			"hash", h.String(),
			"peer", string(peer),
			"error", err,
		)
		return
	}
	if added {
		m.config.Network.RelayInventory(
			Inventory{Type: InventoryFinalizedBudget, Hash: h},
		)
	}
	m.config.Sync.AddedBudgetItem(h)
	m.logger.Debug("new finalized budget", "hash", h.String())
	m.CheckOrphanVotes()
}

func (m *Manager) processFinalizedVote(peer PeerID, vote FinalizedBudgetVote) {
	vote.SetValid(true)
	h := vote.Hash()
	if m.haveSeenFinalizedVote(h) {
		m.config.Sync.AddedBudgetItem(h)
		return
	}
	mn, ok := m.config.Registry.Find(vote.Voter)
	if !ok {
		m.logger.Debug(
			"finalized budget vote from unknown masternode",
			"voter", vote.Voter.String(),
		)
		m.config.Registry.AskFor(peer, vote.Voter)
		m.recordVote(voteKindFinalized, ErrUnknownMasternode)
		return
	}
	m.addSeenFinalizedVote(vote)
	if err := vote.CheckSignature(mn.PubKey); err != nil {
		m.rejectSignature(peer, vote.Voter, voteKindFinalized, err)
		return
	}
	if err := m.UpdateFinalizedBudget(vote, peer); err != nil {
		m.logger.Debug(
			"finalized budget vote rejected",
			"hash", h.String(),
			"error", err,
		)
		return
	}
	m.config.Network.RelayInventory(
		Inventory{Type: InventoryFinalizedBudgetVote, Hash: h},
	)
	m.config.Sync.AddedBudgetItem(h)
	m.logger.Debug(
		"new finalized budget vote",
		"budget", vote.Budget.String(),
		"hash", h.String(),
	)
}

// rejectSignature penalizes the peer once the local node is synced and asks
// for a fresh masternode announcement in case our copy is outdated
func (m *Manager) rejectSignature(peer PeerID, voter Outpoint, kind string, err error) {
	m.logger.Info(
		"vote signature invalid",
		"kind", kind,
		"voter", voter.String(),
		"peer", string(peer),
		"error", err,
	)
	if m.config.Sync.IsSynced() {
		m.config.Network.Misbehaving(peer, misbehaviorScore)
	}
	m.config.Registry.AskFor(peer, voter)
	m.recordVote(kind, err)
}

func isImmature(err error) bool {
	var cerr *CollateralError
	return errors.As(err, &cerr) && cerr.Immature && cerr.Confirmations >= 1
}

// requestSource asks peer for an unknown proposal or finalized budget
// unless it was already requested
func (m *Manager) requestSource(peer PeerID, h Hash) {
	m.requestsMu.Lock()
	_, asked := m.askedFor[h]
	if !asked {
		m.askedFor[h] = m.now()
	}
	m.requestsMu.Unlock()
	if asked {
		return
	}
	m.logger.Debug(
		"asking peer for unknown vote target",
		"hash", h.String(),
		"peer", string(peer),
	)
	m.config.Network.PushMessage(peer, SyncRequest{Hash: h})
}

// UpdateProposal applies a vote to its proposal. Votes for unknown proposals
// received from a peer are kept as orphans once the local node is synced.
// An empty peer marks a locally originated vote.
func (m *Manager) UpdateProposal(vote Vote, peer PeerID) error {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	p, ok := m.proposals[vote.Proposal]
	if !ok {
		if peer != "" && m.config.Sync.IsSynced() {
			m.votesMu.Lock()
			m.orphanProposalVotes[vote.Hash()] = orphanVote[Vote]{
				vote:     vote,
				received: m.now(),
			}
			m.metrics.orphanVotes.WithLabelValues(voteKindProposal).
				Set(float64(len(m.orphanProposalVotes)))
			m.votesMu.Unlock()
			m.requestSource(peer, vote.Proposal)
		}
		return fmt.Errorf("%w: %s", ErrProposalNotFound, vote.Proposal)
	}
	err := p.AddOrUpdateVote(vote, m.config.Params, m.now())
	m.recordVote(voteKindProposal, err)
	if err != nil {
		return err
	}
	m.publishVote(vote)
	return nil
}

// UpdateFinalizedBudget applies a vote to its finalized budget
func (m *Manager) UpdateFinalizedBudget(vote FinalizedBudgetVote, peer PeerID) error {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	f, ok := m.finalizedBudgets[vote.Budget]
	if !ok {
		if peer != "" && m.config.Sync.IsSynced() {
			m.finalizedVotesMu.Lock()
			m.orphanFinalizedVotes[vote.Hash()] = orphanVote[FinalizedBudgetVote]{
				vote:     vote,
				received: m.now(),
			}
			m.metrics.orphanVotes.WithLabelValues(voteKindFinalized).
				Set(float64(len(m.orphanFinalizedVotes)))
			m.finalizedVotesMu.Unlock()
			m.requestSource(peer, vote.Budget)
		}
		return fmt.Errorf("%w: %s", ErrFinalizedBudgetNotFound, vote.Budget)
	}
	err := f.AddOrUpdateVote(vote, m.config.Params, m.now())
	m.recordVote(voteKindFinalized, err)
	if err != nil {
		return err
	}
	m.publishFinalizedVote(vote)
	return nil
}

// CheckOrphanVotes retries orphan votes whose target may now be known
func (m *Manager) CheckOrphanVotes() {
	m.votesMu.Lock()
	proposalOrphans := maps.Clone(m.orphanProposalVotes)
	m.votesMu.Unlock()
	var resolved []Hash
	for h, o := range proposalOrphans {
		if m.UpdateProposal(o.vote, "") == nil {
			resolved = append(resolved, h)
		}
	}
	m.votesMu.Lock()
	for _, h := range resolved {
		delete(m.orphanProposalVotes, h)
	}
	m.metrics.orphanVotes.WithLabelValues(voteKindProposal).
		Set(float64(len(m.orphanProposalVotes)))
	m.votesMu.Unlock()

	m.finalizedVotesMu.Lock()
	finalizedOrphans := maps.Clone(m.orphanFinalizedVotes)
	m.finalizedVotesMu.Unlock()
	resolved = resolved[:0]
	for h, o := range finalizedOrphans {
		if m.UpdateFinalizedBudget(o.vote, "") == nil {
			resolved = append(resolved, h)
		}
	}
	m.finalizedVotesMu.Lock()
	for _, h := range resolved {
		delete(m.orphanFinalizedVotes, h)
	}
	m.metrics.orphanVotes.WithLabelValues(voteKindFinalized).
		Set(float64(len(m.orphanFinalizedVotes)))
	m.finalizedVotesMu.Unlock()
}

// Sync announces the valid seen items to a peer. A non-zero hash limits the
// announcement to that item. Partial syncs only announce unsynced votes.
func (m *Manager) Sync(peer PeerID, h Hash, partial bool) {
	count := 0
	m.proposalsMu.Lock()
	for _, seen := range sortedKeys(m.seenProposals) {
		p, ok := m.proposals[seen]
		if !ok || !p.IsValid() || (!h.IsZero() && seen != h) {
			continue
		}
		m.config.Network.PushInventory(
			peer,
			Inventory{Type: InventoryProposal, Hash: seen},
		)
		count++
		for _, v := range p.Votes() {
			if v.IsValid() && (!partial || !v.IsSynced()) {
				m.config.Network.PushInventory(
					peer,
					Inventory{Type: InventoryProposalVote, Hash: v.Hash()},
				)
				count++
			}
		}
	}
	m.proposalsMu.Unlock()
	m.config.Network.PushMessage(
		peer,
		SyncStatusCount{Item: SyncItemProposals, Count: count},
	)
	m.logger.Debug("sent proposal inventory", "peer", string(peer), "count", count)

	count = 0
	m.budgetsMu.Lock()
	for _, seen := range sortedKeys(m.seenFinalizedBudgets) {
		f, ok := m.finalizedBudgets[seen]
		if !ok || !f.IsValid() || (!h.IsZero() && seen != h) {
			continue
		}
		m.config.Network.PushInventory(
			peer,
			Inventory{Type: InventoryFinalizedBudget, Hash: seen},
		)
		count++
		for _, v := range f.Votes() {
			if v.IsValid() && (!partial || !v.IsSynced()) {
				m.config.Network.PushInventory(
					peer,
					Inventory{Type: InventoryFinalizedBudgetVote, Hash: v.Hash()},
				)
				count++
			}
		}
	}
	m.budgetsMu.Unlock()
	m.config.Network.PushMessage(
		peer,
		SyncStatusCount{Item: SyncItemFinalizedBudgets, Count: count},
	)
	m.logger.Debug(
		"sent finalized budget inventory",
		"peer", string(peer),
		"count", count,
	)
}

// SetSynced marks the votes of all valid seen entries as synced or unsynced
func (m *Manager) SetSynced(synced bool) {
	m.proposalsMu.Lock()
	for h := range m.seenProposals {
		if p, ok := m.proposals[h]; ok && p.IsValid() {
			p.SetSynced(synced)
		}
	}
	m.proposalsMu.Unlock()
	m.budgetsMu.Lock()
	for h := range m.seenFinalizedBudgets {
		if f, ok := m.finalizedBudgets[h]; ok && f.IsValid() {
			f.SetSynced(synced)
		}
	}
	m.budgetsMu.Unlock()
}

func (m *Manager) ResetSync()  { m.SetSynced(false) }
func (m *Manager) MarkSynced() { m.SetSynced(true) }

// PeerDisconnected forgets per-peer request bookkeeping
func (m *Manager) PeerDisconnected(peer PeerID) {
	m.requestsMu.Lock()
	delete(m.fulfilledSync, peer)
	m.requestsMu.Unlock()
}

// LookupInventory resolves an announced item to its wire message
func (m *Manager) LookupInventory(inv Inventory) (Message, bool) {
	switch inv.Type {
	case InventoryProposal:
		m.proposalsMu.Lock()
		defer m.proposalsMu.Unlock()
		b, ok := m.seenProposals[inv.Hash]
		return b, ok
	case InventoryProposalVote:
		m.votesMu.Lock()
		defer m.votesMu.Unlock()
		v, ok := m.seenProposalVotes[inv.Hash]
		return v, ok
	case InventoryFinalizedBudget:
		m.budgetsMu.Lock()
		defer m.budgetsMu.Unlock()
		b, ok := m.seenFinalizedBudgets[inv.Hash]
		return b, ok
	case InventoryFinalizedBudgetVote:
		m.finalizedVotesMu.Lock()
		defer m.finalizedVotesMu.Unlock()
		v, ok := m.seenFinalizedVotes[inv.Hash]
		return v, ok
	}
	return nil, false
}

// SubmitProposal validates and relays a locally created proposal whose
// collateral has already confirmed
func (m *Manager) SubmitProposal(b ProposalBroadcast) (Hash, error) {
	h := b.Hash()
	res, err := m.checkCollateral(b.FeeTxHash, h, false)
	if err != nil {
		return h, fmt.Errorf("proposal collateral: %w", err)
	}
	if res.BlockTime != 0 {
		b.Time = res.BlockTime
	}
	added, err := m.addProposal(b.ToProposal())
	if err != nil {
		return h, err
	}
	if !added {
		return h, fmt.Errorf("proposal %s: %w", h, ErrAlreadyExists)
	}
	m.addSeenProposal(b)
	m.config.Network.RelayInventory(Inventory{Type: InventoryProposal, Hash: h})
	return h, nil
}

// AddAndRelayProposalVote applies a locally created vote and relays it
func (m *Manager) AddAndRelayProposalVote(vote Vote) error {
	if err := m.UpdateProposal(vote, ""); err != nil {
		return err
	}
	m.addSeenProposalVote(vote)
	m.config.Network.RelayInventory(
		Inventory{Type: InventoryProposalVote, Hash: vote.Hash()},
	)
	return nil
}

// VoteOnProposal signs a vote with the local masternode key and submits it
func (m *Manager) VoteOnProposal(proposal Hash, direction VoteDirection) (Vote, error) {
	mn := m.config.Masternode
	if mn == nil || mn.Key == nil {
		return Vote{}, ErrNotMasternode
	}
	vote := NewVote(mn.Outpoint, proposal, direction, m.now())
	vote.Sign(mn.Key)
	if err := m.AddAndRelayProposalVote(vote); err != nil {
		return vote, err
	}
	return vote, nil
}
