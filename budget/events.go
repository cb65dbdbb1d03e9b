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
	"github.com/blinklabs-io/treasury/event"
)

const (
	ProposalAddedEventType        = event.EventType("budget.proposal_added")
	FinalizedBudgetAddedEventType = event.EventType("budget.finalized_added")
	VoteAcceptedEventType         = event.EventType("budget.vote_accepted")
	EntryRemovedEventType         = event.EventType("budget.entry_removed")
)

// ProposalAddedEvent is emitted when a proposal enters the active set
type ProposalAddedEvent struct {
	Hash       Hash
	Name       string
	URL        string
	Payee      Script
	Amount     int64
	BlockStart int64
	BlockEnd   int64
	FeeTxHash  Hash
	Time       int64
}

// FinalizedBudgetAddedEvent is emitted when a finalized budget enters the
// active set
type FinalizedBudgetAddedEvent struct {
	Hash        Hash
	Name        string
	BlockStart  int64
	Payments    []Payment
	TotalPayout int64
	FeeTxHash   Hash
	Time        int64
}

// VoteAcceptedEvent is emitted for every accepted proposal or finalized
// budget vote. Direction is VoteYes for finalized budget votes.
type VoteAcceptedEvent struct {
	Hash      Hash
	Target    Hash
	Voter     Outpoint
	Direction VoteDirection
	Finalized bool
	Time      int64
}

// EntryRemovedEvent is emitted when maintenance drops an invalid entry
type EntryRemovedEvent struct {
	Hash      Hash
	Finalized bool
	Reason    string
}

func (m *Manager) publish(eventType event.EventType, data any) {
	if m.config.EventBus == nil {
		return
	}
	m.config.EventBus.PublishAsync(
		eventType,
		event.NewEvent(eventType, data),
	)
}

func (m *Manager) publishProposalAdded(p *Proposal) {
	m.publish(ProposalAddedEventType, ProposalAddedEvent{
		Hash:       p.Hash(),
		Name:       p.Name,
		URL:        p.URL,
		Payee:      append(Script(nil), p.Payee...),
		Amount:     p.Amount,
		BlockStart: p.BlockStart,
		BlockEnd:   p.BlockEnd,
		FeeTxHash:  p.FeeTxHash,
		Time:       p.Time,
	})
}

func (m *Manager) publishFinalizedBudgetAdded(f *FinalizedBudget) {
	m.publish(FinalizedBudgetAddedEventType, FinalizedBudgetAddedEvent{
		Hash:        f.Hash(),
		Name:        f.Name,
		BlockStart:  f.BlockStart,
		Payments:    clonePayments(f.Payments),
		TotalPayout: f.TotalPayout(),
		FeeTxHash:   f.FeeTxHash,
		Time:        f.Time,
	})
}

func (m *Manager) publishVote(vote Vote) {
	m.publish(VoteAcceptedEventType, VoteAcceptedEvent{
		Hash:      vote.Hash(),
		Target:    vote.Proposal,
		Voter:     vote.Voter,
		Direction: vote.Direction,
		Time:      vote.Time,
	})
}

func (m *Manager) publishFinalizedVote(vote FinalizedBudgetVote) {
	m.publish(VoteAcceptedEventType, VoteAcceptedEvent{
		Hash:      vote.Hash(),
		Target:    vote.Budget,
		Voter:     vote.Voter,
		Direction: VoteYes,
		Finalized: true,
		Time:      vote.Time,
	})
}
