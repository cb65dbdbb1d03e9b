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
	"strings"
)

// GetBudgetWithHighestVoteCount returns a copy of the finalized budget with
// the most votes among those covering height
func (m *Manager) GetBudgetWithHighestVoteCount(height int64) (*FinalizedBudget, bool) {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	f := m.highestVotedLocked(height)
	if f == nil {
		return nil, false
	}
	return f.Clone(), true
}

func (m *Manager) highestVotedLocked(height int64) *FinalizedBudget {
	var ret *FinalizedBudget
	highest := 0
	for _, h := range sortedKeys(m.finalizedBudgets) {
		f := m.finalizedBudgets[h]
		count := f.VoteCount()
		if count > highest && height >= f.BlockStart && height <= f.BlockEnd() {
			ret = f
			highest = count
		}
	}
	return ret
}

// HighestVoteCount returns the vote count of the best finalized budget at
// height, or -1 when none covers it
func (m *Manager) HighestVoteCount(height int64) int {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	if f := m.highestVotedLocked(height); f != nil {
		return f.VoteCount()
	}
	return -1
}

// paymentQuorum returns the highest vote count at height and five percent
// of the enabled masternodes
func (m *Manager) paymentQuorum(height int64) (int, int) {
	return m.HighestVoteCount(height), m.config.Registry.CountEnabled() / 20
}

// IsBudgetPaymentBlock reports whether a finalized budget has enough votes
// to pay out at height
func (m *Manager) IsBudgetPaymentBlock(height int64) bool {
	highest, fivePercent := m.paymentQuorum(height)
	return highest > fivePercent
}

// IsTransactionValid checks a block's payout transaction against the
// finalized budgets competing for height
func (m *Manager) IsTransactionValid(tx Transaction, height int64) TxValidationStatus {
	highest, fivePercent := m.paymentQuorum(height)
	m.logger.Debug(
		"checking budget payment",
		"height", height,
		"highest_votes", highest,
		"five_percent", fivePercent,
	)
	if highest <= fivePercent {
		return TxVoteThreshold
	}
	// Budgets within ten percent of the best one are accepted as well. The
	// best budget is always a candidate.
	threshold := highest - 2*fivePercent
	inRange := false
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	for _, h := range sortedKeys(m.finalizedBudgets) {
		f := m.finalizedBudgets[h]
		count := f.VoteCount()
		if count <= threshold && count < highest {
			continue
		}
		inRange = true
		switch f.IsTransactionValid(tx, height, m.logger) {
		case TxValid:
			return TxValid
		case TxDoublePayment:
			m.logger.Debug(
				"ignoring budget, proposal already paid",
				"budget", f.ProposalsString(),
			)
		case TxInvalid, TxVoteThreshold:
			m.logger.Debug(
				"ignoring budget, out of range or payment missing",
				"budget", f.ProposalsString(),
			)
		}
	}
	if inRange {
		return TxInvalid
	}
	return TxVoteThreshold
}

// GetPayeeAndAmount returns the budget payment scheduled for height by the
// best finalized budget
func (m *Manager) GetPayeeAndAmount(height int64) (Script, int64, bool) {
	f, ok := m.GetBudgetWithHighestVoteCount(height)
	if !ok {
		return nil, 0, false
	}
	return f.PayeeAndAmount(height)
}

// FillBlockPayee adds the budget payment for the next block to a block
// template's reward transaction. Proof of work blocks carry the payment as
// the second output with the full block value in the first output, proof of
// stake blocks append it.
func (m *Manager) FillBlockPayee(tx *Transaction, proofOfStake bool) bool {
	height := m.Height()
	if height <= 0 {
		return false
	}
	payee, amount, ok := m.GetPayeeAndAmount(height + 1)
	if !ok {
		return false
	}
	out := TxOut{Value: amount, Script: payee}
	if proofOfStake {
		tx.Outputs = append(tx.Outputs, out)
	} else {
		if len(tx.Outputs) == 0 {
			tx.Outputs = append(tx.Outputs, TxOut{})
		}
		tx.Outputs[0].Value = m.config.Chain.BlockValue(height + 1)
		tx.Outputs = append(tx.Outputs[:1], out)
	}
	m.logger.Debug(
		"budget payment added to block",
		"payee", payee.String(),
		"amount", amount,
		"height", height+1,
	)
	return true
}

// GetRequiredPaymentsString lists the proposals due at height across all
// finalized budgets
func (m *Manager) GetRequiredPaymentsString(height int64) string {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	var hashes []string
	for _, h := range sortedKeys(m.finalizedBudgets) {
		if p, ok := m.finalizedBudgets[h].PaymentAt(height); ok {
			hashes = append(hashes, p.ProposalHash.String())
		}
	}
	if len(hashes) == 0 {
		return "unknown-budget"
	}
	return strings.Join(hashes, ",")
}

// GetFinalizedBudgetStatus compares a finalized budget against the local
// proposals
func (m *Manager) GetFinalizedBudgetStatus(h Hash) string {
	f, ok := m.GetFinalizedBudget(h)
	if !ok {
		return "ERROR: cannot find finalized budget " + h.String()
	}
	var badHashes, badPayees []string
	for _, payment := range f.Payments {
		p, ok := m.GetProposal(payment.ProposalHash)
		if !ok {
			badHashes = append(badHashes, payment.ProposalHash.String())
			continue
		}
		if !p.Payee.Equal(payment.Payee) || p.Amount != payment.Amount {
			badPayees = append(badPayees, payment.ProposalHash.String())
		}
	}
	if len(badHashes) == 0 && len(badPayees) == 0 {
		return "OK"
	}
	var ret string
	if len(badHashes) > 0 {
		ret = "Unknown proposal(s) hash! Check this proposal(s) before voting: " +
			strings.Join(badHashes, ", ")
	}
	ret += " -- "
	if len(badPayees) > 0 {
		ret += "Budget payee/amount doesn't match our proposal(s)! " +
			strings.Join(badPayees, ", ")
	}
	return ret
}
