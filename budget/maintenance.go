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
)

// NewBlock is called for every block connected to the best chain
func (m *Manager) NewBlock(height int64) {
	m.bestHeight.Store(height)
	if !m.config.Sync.BudgetSynced() {
		return
	}
	if m.config.Mode == BudgetModeSuggest {
		m.SubmitFinalBudget()
	}
	// Heavy maintenance only runs every few blocks
	if height%m.config.MaintenanceInterval != 0 {
		return
	}
	m.metrics.maintenancePasses.Inc()
	if m.config.Sync.IsSynced() {
		m.logger.Debug("incremental budget sync started", "height", height)
		if m.chance(m.config.ResyncChance) {
			m.ClearSeen()
			m.ResetSync()
		}
		for _, peer := range m.config.Network.Peers() {
			m.Sync(peer, ZeroHash, true)
		}
		m.MarkSynced()
	}
	m.CheckAndRemove()
	m.expireRequests()
	m.maintainProposals()
	m.maintainFinalizedBudgets()
	m.updateGauges()
}

// CheckAndRemove revalidates every active entry and drops the invalid ones.
// Masternodes in auto mode may vote on matching finalized budgets.
func (m *Manager) CheckAndRemove() {
	ctx := m.validationContext(true)

	m.proposalsMu.Lock()
	before := len(m.proposals)
	for h, p := range m.proposals {
		if !p.UpdateValid(ctx) {
			m.removed(h, false, p.InvalidReason())
			delete(m.proposals, h)
		}
	}
	m.logger.Debug(
		"proposals cleanup",
		"before", before,
		"after", len(m.proposals),
	)
	m.metrics.proposals.Set(float64(len(m.proposals)))
	m.proposalsMu.Unlock()

	var autoVote []*FinalizedBudget
	m.budgetsMu.Lock()
	before = len(m.finalizedBudgets)
	for _, h := range sortedKeys(m.finalizedBudgets) {
		f := m.finalizedBudgets[h]
		if !f.UpdateValid(ctx) {
			m.removed(h, true, f.InvalidReason())
			delete(m.finalizedBudgets, h)
			continue
		}
		if m.autoVoteDue(f) {
			autoVote = append(autoVote, f.Clone())
		}
	}
	m.logger.Debug(
		"finalized budgets cleanup",
		"before", before,
		"after", len(m.finalizedBudgets),
	)
	m.metrics.finalizedBudgets.Set(float64(len(m.finalizedBudgets)))
	m.budgetsMu.Unlock()

	for _, f := range autoVote {
		m.checkAndVote(f)
	}
}

func (m *Manager) removed(h Hash, finalized bool, reason string) {
	m.logger.Debug(
		"removing invalid entry",
		"hash", h.String(),
		"finalized", finalized,
		"reason", reason,
	)
	m.publish(EntryRemovedEventType, EntryRemovedEvent{
		Hash:      h,
		Finalized: finalized,
		Reason:    reason,
	})
}

// autoVoteDue decides once per finalized budget whether the local
// masternode should check it for an automatic vote. Callers hold budgetsMu.
func (m *Manager) autoVoteDue(f *FinalizedBudget) bool {
	if m.config.Masternode == nil || f.autoChecked {
		return false
	}
	if !m.chance(m.config.AutoVoteChance) {
		return false
	}
	f.autoChecked = true
	return m.config.Mode == BudgetModeAuto
}

// checkAndVote votes for f when its payments exactly match the local budget
func (m *Manager) checkAndVote(f *FinalizedBudget) {
	funded := m.GetBudget()
	if !f.MatchesFunded(funded) {
		m.logger.Debug(
			"finalized budget does not match local budget",
			"hash", f.Hash().String(),
			"proposals", f.ProposalsString(),
			"funded", len(funded),
		)
		return
	}
	m.logger.Debug("finalized budget matches, submitting vote", "hash", f.Hash().String())
	if err := m.submitFinalizedVote(f.Hash()); err != nil {
		m.logger.Debug("error submitting finalized budget vote", "error", err)
	}
}

func (m *Manager) submitFinalizedVote(h Hash) error {
	mn := m.config.Masternode
	if mn == nil || mn.Key == nil {
		return ErrNotMasternode
	}
	vote := NewFinalizedBudgetVote(mn.Outpoint, h, m.now())
	vote.Sign(mn.Key)
	if err := m.UpdateFinalizedBudget(vote, ""); err != nil {
		return err
	}
	m.addSeenFinalizedVote(vote)
	m.config.Network.RelayInventory(
		Inventory{Type: InventoryFinalizedBudgetVote, Hash: vote.Hash()},
	)
	return nil
}

// expireRequests forgets stale source requests and orphan votes
func (m *Manager) expireRequests() {
	now := m.now()
	m.requestsMu.Lock()
	for h, t := range m.askedFor {
		if now.Sub(t) >= requestExpiry {
			delete(m.askedFor, h)
		}
	}
	m.requestsMu.Unlock()
	m.votesMu.Lock()
	for h, o := range m.orphanProposalVotes {
		if now.Sub(o.received) >= orphanExpiry {
			delete(m.orphanProposalVotes, h)
		}
	}
	m.votesMu.Unlock()
	m.finalizedVotesMu.Lock()
	for h, o := range m.orphanFinalizedVotes {
		if now.Sub(o.received) >= orphanExpiry {
			delete(m.orphanFinalizedVotes, h)
		}
	}
	m.finalizedVotesMu.Unlock()
}

// maintainProposals refreshes vote validity and promotes immature proposals
// whose collateral has matured. It is skipped when the proposals are busy.
func (m *Manager) maintainProposals() {
	if !m.proposalsMu.TryLock() {
		m.logger.Debug("proposals busy, skipping maintenance")
		return
	}
	for _, p := range m.proposals {
		p.CleanAndRemove(m.config.Registry)
	}
	var matured []ProposalBroadcast
	pending := m.immatureProposals[:0]
	for _, b := range m.immatureProposals {
		res, err := m.checkCollateral(b.FeeTxHash, b.Hash(), false)
		if err != nil {
			if isImmature(err) {
				pending = append(pending, b)
			}
			continue
		}
		if res.BlockTime != 0 {
			b.Time = res.BlockTime
		}
		matured = append(matured, b)
	}
	m.immatureProposals = pending
	m.proposalsMu.Unlock()

	for _, b := range matured {
		h := b.Hash()
		m.addSeenProposal(b)
		added, err := m.addProposal(b.ToProposal())
		if err != nil {
			m.logger.Debug("immature proposal invalid", "hash", h.String(), "error", err)
			continue
		}
		if added {
			m.logger.Debug("immature proposal accepted", "hash", h.String())
			m.config.Network.RelayInventory(Inventory{Type: InventoryProposal, Hash: h})
		}
	}
}

func (m *Manager) maintainFinalizedBudgets() {
	if !m.budgetsMu.TryLock() {
		m.logger.Debug("finalized budgets busy, skipping maintenance")
		return
	}
	for _, f := range m.finalizedBudgets {
		f.CleanAndRemove(m.config.Registry)
	}
	var matured []FinalizedBudgetBroadcast
	pending := m.immatureFinalizedBudgets[:0]
	for _, b := range m.immatureFinalizedBudgets {
		res, err := m.checkCollateral(b.FeeTxHash, b.Hash(), true)
		if err != nil {
			if isImmature(err) {
				pending = append(pending, b)
			}
			continue
		}
		if res.BlockTime != 0 {
			b.Time = res.BlockTime
		}
		matured = append(matured, b)
	}
	m.immatureFinalizedBudgets = pending
	m.budgetsMu.Unlock()

	for _, b := range matured {
		h := b.Hash()
		m.addSeenFinalizedBudget(b)
		added, err := m.addFinalizedBudget(b.ToFinalizedBudget())
		if err != nil {
			m.logger.Debug("immature finalized budget invalid", "hash", h.String(), "error", err)
			continue
		}
		if added {
			m.logger.Debug("immature finalized budget accepted", "hash", h.String())
			m.config.Network.RelayInventory(
				Inventory{Type: InventoryFinalizedBudget, Hash: h},
			)
		}
	}
}

// SubmitFinalBudget suggests the local budget as the finalized budget for
// the next superblock once inside the finalization window
func (m *Manager) SubmitFinalBudget() {
	params := m.config.Params
	height := m.Height()
	blockStart := params.NextSuperblock(height)
	m.requestsMu.Lock()
	submitted := m.submittedHeight
	m.requestsMu.Unlock()
	if submitted >= blockStart {
		return
	}
	if blockStart-height > params.FinalizationBlocks() {
		m.logger.Debug(
			"too early for budget finalization",
			"height", height,
			"superblock", blockStart,
			"first_block", blockStart-params.FinalizationBlocks(),
		)
		return
	}
	funded := m.GetBudget()
	payments := make([]Payment, 0, len(funded))
	for _, p := range funded {
		payments = append(payments, Payment{
			ProposalHash: p.Hash(),
			Payee:        p.Payee,
			Amount:       p.Allotted(),
		})
	}
	if len(payments) == 0 {
		m.logger.Debug("no proposals for budget period", "superblock", blockStart)
		return
	}
	budgetHash := NewFinalizedBudgetBroadcast(
		MainBudgetName,
		blockStart,
		payments,
		ZeroHash,
	).Hash()
	if m.haveSeenFinalizedBudget(budgetHash) {
		m.logger.Debug("finalized budget already exists", "hash", budgetHash.String())
		m.markSubmitted(blockStart)
		return
	}
	feeTx, err := m.budgetCollateral(budgetHash)
	if err != nil {
		m.logger.Debug("can't create finalized budget collateral", "error", err)
		return
	}
	b := NewFinalizedBudgetBroadcast(MainBudgetName, blockStart, payments, feeTx)
	res, err := m.checkCollateral(feeTx, b.Hash(), true)
	if err != nil {
		m.logger.Debug("finalized budget collateral not ready", "error", err)
		return
	}
	b.Time = res.BlockTime
	f := b.ToFinalizedBudget()
	if !f.UpdateValid(m.validationContext(false)) {
		m.logger.Debug("invalid finalized budget", "reason", f.InvalidReason())
		return
	}
	m.addSeenFinalizedBudget(b)
	m.config.Network.RelayInventory(
		Inventory{Type: InventoryFinalizedBudget, Hash: budgetHash},
	)
	if _, err := m.addFinalizedBudget(f); err != nil {
		m.logger.Debug("finalized budget not added", "error", err)
	}
	m.markSubmitted(blockStart)
	m.logger.Info(
		"submitted finalized budget",
		"hash", budgetHash.String(),
		"superblock", blockStart,
		"payments", len(payments),
	)
}

func (m *Manager) markSubmitted(blockStart int64) {
	m.requestsMu.Lock()
	m.submittedHeight = blockStart
	m.requestsMu.Unlock()
}

// budgetCollateral returns the cached collateral transaction for a budget
// hash or asks the funder for a new one
func (m *Manager) budgetCollateral(budgetHash Hash) (Hash, error) {
	m.requestsMu.Lock()
	txid, ok := m.collateralTxids[budgetHash]
	m.requestsMu.Unlock()
	if ok {
		return txid, nil
	}
	if m.config.Funder == nil {
		return ZeroHash, errors.New("no collateral funder configured")
	}
	txid, err := m.config.Funder.CreateBudgetCollateral(budgetHash)
	if err != nil {
		return ZeroHash, err
	}
	m.requestsMu.Lock()
	m.collateralTxids[budgetHash] = txid
	m.requestsMu.Unlock()
	return txid, nil
}
