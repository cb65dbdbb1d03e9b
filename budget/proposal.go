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
	"fmt"
	"maps"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"

	"github.com/blinklabs-io/treasury/chainparams"
)

// ValidationContext carries the chain state an entry is revalidated against
type ValidationContext struct {
	Params       *chainparams.Params
	Height       int64
	EnabledCount int
	Now          time.Time
	// Collateral is nil to skip the collateral check
	Collateral *CollateralValidator
}

// ProposalBroadcast is the wire form of a proposal
type ProposalBroadcast struct {
	cbor.StructAsArray
	Name       string
	URL        string
	Time       int64
	BlockStart int64
	BlockEnd   int64
	Amount     int64
	Payee      Script
	FeeTxHash  Hash
}

// NewProposalBroadcast builds a proposal paying amount to payee once per
// cycle for paymentCount cycles starting at blockStart
func NewProposalBroadcast(
	params *chainparams.Params,
	name string,
	url string,
	paymentCount int64,
	payee Script,
	amount int64,
	blockStart int64,
	feeTxHash Hash,
) ProposalBroadcast {
	cycleStart := params.CycleStart(blockStart)
	return ProposalBroadcast{
		Name:       name,
		URL:        url,
		BlockStart: blockStart,
		BlockEnd:   cycleStart + (params.BudgetCycleBlocks+1)*paymentCount,
		Amount:     amount,
		Payee:      payee,
		FeeTxHash:  feeTxHash,
	}
}

// Hash returns the proposal identifier. The collateral hash is excluded
// since the collateral commits to this value.
func (b ProposalBroadcast) Hash() Hash {
	return hashFields(
		b.Name,
		b.URL,
		b.BlockStart,
		b.BlockEnd,
		b.Amount,
		[]byte(b.Payee),
	)
}

// ToProposal converts the wire form into a ledger entry with no votes
func (b ProposalBroadcast) ToProposal() *Proposal {
	return &Proposal{
		Name:       b.Name,
		URL:        b.URL,
		BlockStart: b.BlockStart,
		BlockEnd:   b.BlockEnd,
		Payee:      append(Script(nil), b.Payee...),
		Amount:     b.Amount,
		FeeTxHash:  b.FeeTxHash,
		Time:       b.Time,
		votes:      make(map[Outpoint]Vote),
		valid:      true,
	}
}

// Proposal is a spending request tracked by the ledger
type Proposal struct {
	Name          string
	URL           string
	BlockStart    int64
	BlockEnd      int64
	Payee         Script
	Amount        int64
	FeeTxHash     Hash
	Time          int64
	votes         map[Outpoint]Vote
	valid         bool
	invalidReason string
	allotted      int64
}

func (p *Proposal) Hash() Hash {
	return p.Broadcast().Hash()
}

// Broadcast returns the wire form of the proposal
func (p *Proposal) Broadcast() ProposalBroadcast {
	return ProposalBroadcast{
		Name:       p.Name,
		URL:        p.URL,
		Time:       p.Time,
		BlockStart: p.BlockStart,
		BlockEnd:   p.BlockEnd,
		Amount:     p.Amount,
		Payee:      append(Script(nil), p.Payee...),
		FeeTxHash:  p.FeeTxHash,
	}
}

// Clone returns a deep copy
func (p *Proposal) Clone() *Proposal {
	ret := *p
	ret.Payee = append(Script(nil), p.Payee...)
	ret.votes = maps.Clone(p.votes)
	if ret.votes == nil {
		ret.votes = make(map[Outpoint]Vote)
	}
	return &ret
}

func (p *Proposal) IsValid() bool         { return p.valid }
func (p *Proposal) InvalidReason() string { return p.invalidReason }

// Allotted returns the amount granted by the last funded-set derivation
func (p *Proposal) Allotted() int64 { return p.allotted }

// Votes returns the stored votes ordered by voter
func (p *Proposal) Votes() []Vote {
	return sortedVotes(p.votes)
}

func (p *Proposal) voteCount(direction VoteDirection) int {
	ret := 0
	for _, v := range p.votes {
		if v.Direction == direction && v.IsValid() {
			ret++
		}
	}
	return ret
}

func (p *Proposal) Yeas() int     { return p.voteCount(VoteYes) }
func (p *Proposal) Nays() int     { return p.voteCount(VoteNo) }
func (p *Proposal) Abstains() int { return p.voteCount(VoteAbstain) }

// NetYes returns yes votes minus no votes
func (p *Proposal) NetYes() int {
	return p.Yeas() - p.Nays()
}

// Ratio returns the share of yes votes among yes and no votes
func (p *Proposal) Ratio() float64 {
	yeas := p.Yeas()
	nays := p.Nays()
	if yeas+nays == 0 {
		return 0
	}
	return float64(yeas) / float64(yeas+nays)
}

// TotalPaymentCount returns the number of cycles the proposal spans
func (p *Proposal) TotalPaymentCount(params *chainparams.Params) int64 {
	return (p.BlockEnd - params.CycleStart(p.BlockStart)) / params.BudgetCycleBlocks
}

// RemainingPaymentCount returns how many payments are still due after height
func (p *Proposal) RemainingPaymentCount(
	params *chainparams.Params,
	height int64,
) int64 {
	remaining := (p.BlockEnd-params.CycleStart(height))/params.BudgetCycleBlocks - 1
	return min(remaining, p.TotalPaymentCount(params))
}

func (p *Proposal) invalidate(format string, args ...any) bool {
	p.invalidReason = fmt.Sprintf("proposal %s: ", p.Name) +
		fmt.Sprintf(format, args...)
	return false
}

// CheckStartEnd verifies the block range matches the payment count
func (p *Proposal) CheckStartEnd(params *chainparams.Params) bool {
	if p.BlockStart < 0 {
		return p.invalidate("invalid block start")
	}
	if p.BlockEnd < p.BlockStart {
		return p.invalidate("invalid block end (end before start)")
	}
	expectedEnd := p.BlockStart +
		(params.BudgetCycleBlocks+1)*p.TotalPaymentCount(params)
	if p.BlockEnd != expectedEnd {
		return p.invalidate("invalid block end (mismatch with payments count)")
	}
	return true
}

// CheckAmount verifies the amount against the minimum and the cycle cap
func (p *Proposal) CheckAmount(params *chainparams.Params, totalBudget int64) bool {
	if p.Amount < params.MinProposalAmount {
		return p.invalidate("invalid amount (too low)")
	}
	if p.Amount > totalBudget {
		return p.invalidate("invalid amount (too high)")
	}
	return true
}

// CheckAddress rejects empty and pay-to-script-hash payees
func (p *Proposal) CheckAddress() bool {
	if len(p.Payee) == 0 {
		return p.invalidate("invalid payment address (null)")
	}
	if p.Payee.IsPayToScriptHash() {
		return p.invalidate("multisig is not currently supported")
	}
	return true
}

func (p *Proposal) IsWellFormed(params *chainparams.Params) bool {
	return p.CheckStartEnd(params) &&
		p.CheckAmount(params, params.TotalBudget(p.BlockStart)) &&
		p.CheckAddress()
}

// IsHeavilyDownvoted reports whether no votes exceed yes votes by more than
// a tenth of the enabled masternodes
func (p *Proposal) IsHeavilyDownvoted(enabledCount int) bool {
	if p.Nays()-p.Yeas() > enabledCount/10 {
		p.invalidate("active removal")
		return true
	}
	return false
}

func (p *Proposal) IsExpired(height int64) bool {
	if p.BlockEnd < height {
		p.invalidate("proposal expired")
		return true
	}
	return false
}

// UpdateValid recomputes the validity flag and reason
func (p *Proposal) UpdateValid(ctx ValidationContext) bool {
	p.valid = false
	if p.IsHeavilyDownvoted(ctx.EnabledCount) {
		return false
	}
	if !p.IsWellFormed(ctx.Params) {
		return false
	}
	if p.IsExpired(ctx.Height) {
		return false
	}
	if ctx.Collateral != nil {
		res, err := ctx.Collateral.Check(p.FeeTxHash, p.Hash(), false)
		if res.BlockTime != 0 {
			p.Time = res.BlockTime
		}
		if err != nil {
			return p.invalidate("invalid collateral (%s)", err)
		}
	}
	p.valid = true
	p.invalidReason = ""
	return true
}

// IsEstablished reports whether the proposal is old enough to be funded
func (p *Proposal) IsEstablished(params *chainparams.Params, now time.Time) bool {
	return p.Time < now.Add(-params.ProposalEstablishmentTime).Unix()
}

// IsPassing reports whether the proposal qualifies for the budget window
// [blockStart, blockEnd]
func (p *Proposal) IsPassing(
	params *chainparams.Params,
	blockStart int64,
	blockEnd int64,
	enabledCount int,
	now time.Time,
) bool {
	if !p.valid {
		return false
	}
	if p.BlockStart > blockStart || p.BlockEnd < blockEnd {
		return false
	}
	if p.NetYes() <= enabledCount/10 {
		return false
	}
	return p.IsEstablished(params, now)
}

// AddOrUpdateVote stores vote as the voter's current ballot
func (p *Proposal) AddOrUpdateVote(
	vote Vote,
	params *chainparams.Params,
	now time.Time,
) error {
	if p.votes == nil {
		p.votes = make(map[Outpoint]Vote)
	}
	return addOrUpdateVote(p.votes, vote, now, params.BudgetVoteUpdateMin)
}

// SetSynced marks valid votes as synced, or clears the mark on all votes
func (p *Proposal) SetSynced(synced bool) {
	for k, v := range p.votes {
		if !synced || v.IsValid() {
			v.SetSynced(synced)
			p.votes[k] = v
		}
	}
}

// CleanAndRemove refreshes vote validity from masternode membership
func (p *Proposal) CleanAndRemove(registry MasternodeRegistry) {
	for k, v := range p.votes {
		_, ok := registry.Find(v.Voter)
		v.SetValid(ok)
		p.votes[k] = v
	}
}

// compareHigherYes orders proposals by net yes votes descending, then by
// collateral hash descending
func compareHigherYes(a, b *Proposal) int {
	netA := a.NetYes()
	netB := b.NetYes()
	if netA != netB {
		if netA > netB {
			return -1
		}
		return 1
	}
	if c := b.FeeTxHash.Compare(a.FeeTxHash); c != 0 {
		return c
	}
	return b.Hash().Compare(a.Hash())
}
