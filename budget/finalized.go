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
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"

	"github.com/blinklabs-io/treasury/chainparams"
)

// Payment is one slot of a finalized budget
type Payment struct {
	cbor.StructAsArray
	ProposalHash Hash
	Payee        Script
	Amount       int64
}

func (p Payment) clone() Payment {
	p.Payee = append(Script(nil), p.Payee...)
	return p
}

// FinalizedBudgetBroadcast is the wire form of a finalized budget
type FinalizedBudgetBroadcast struct {
	cbor.StructAsArray
	Name       string
	BlockStart int64
	Payments   []Payment
	FeeTxHash  Hash
	Time       int64
}

func NewFinalizedBudgetBroadcast(
	name string,
	blockStart int64,
	payments []Payment,
	feeTxHash Hash,
) FinalizedBudgetBroadcast {
	return FinalizedBudgetBroadcast{
		Name:       name,
		BlockStart: blockStart,
		Payments:   clonePayments(payments),
		FeeTxHash:  feeTxHash,
	}
}

// Hash returns the finalized budget identifier. The collateral hash is
// excluded since the collateral commits to this value.
func (b FinalizedBudgetBroadcast) Hash() Hash {
	return hashFields(b.Name, b.BlockStart, b.Payments)
}

func (b FinalizedBudgetBroadcast) ToFinalizedBudget() *FinalizedBudget {
	ret := &FinalizedBudget{
		Name:       b.Name,
		BlockStart: b.BlockStart,
		Payments:   clonePayments(b.Payments),
		FeeTxHash:  b.FeeTxHash,
		Time:       b.Time,
		votes:      make(map[Outpoint]FinalizedBudgetVote),
		valid:      true,
	}
	ret.proposals = ret.proposalsString()
	return ret
}

func clonePayments(payments []Payment) []Payment {
	if payments == nil {
		return nil
	}
	ret := make([]Payment, len(payments))
	for i, p := range payments {
		ret[i] = p.clone()
	}
	return ret
}

// FinalizedBudget is a complete payment schedule for one superblock
type FinalizedBudget struct {
	Name          string
	BlockStart    int64
	Payments      []Payment
	FeeTxHash     Hash
	Time          int64
	votes         map[Outpoint]FinalizedBudgetVote
	valid         bool
	invalidReason string
	autoChecked   bool
	proposals     string
	// paidAt maps proposal hashes to the height they were paid at within
	// the current payment window
	paidAt map[Hash]int64
}

func (f *FinalizedBudget) Hash() Hash {
	return f.Broadcast().Hash()
}

func (f *FinalizedBudget) Broadcast() FinalizedBudgetBroadcast {
	return FinalizedBudgetBroadcast{
		Name:       f.Name,
		BlockStart: f.BlockStart,
		Payments:   clonePayments(f.Payments),
		FeeTxHash:  f.FeeTxHash,
		Time:       f.Time,
	}
}

// Clone returns a deep copy. The payment guard is not shared with the copy.
func (f *FinalizedBudget) Clone() *FinalizedBudget {
	ret := *f
	ret.Payments = clonePayments(f.Payments)
	ret.votes = maps.Clone(f.votes)
	if ret.votes == nil {
		ret.votes = make(map[Outpoint]FinalizedBudgetVote)
	}
	ret.paidAt = nil
	return &ret
}

func (f *FinalizedBudget) IsValid() bool         { return f.valid }
func (f *FinalizedBudget) InvalidReason() string { return f.invalidReason }

// BlockEnd returns the height of the last payment slot
func (f *FinalizedBudget) BlockEnd() int64 {
	return f.BlockStart + int64(len(f.Payments)) - 1
}

func (f *FinalizedBudget) Votes() []FinalizedBudgetVote {
	return sortedVotes(f.votes)
}

// VoteCount returns the number of stored votes
func (f *FinalizedBudget) VoteCount() int {
	return len(f.votes)
}

func (f *FinalizedBudget) TotalPayout() int64 {
	var ret int64
	for _, p := range f.Payments {
		ret += p.Amount
	}
	return ret
}

func (f *FinalizedBudget) ProposalHashes() []Hash {
	ret := make([]Hash, 0, len(f.Payments))
	for _, p := range f.Payments {
		ret = append(ret, p.ProposalHash)
	}
	return ret
}

// ProposalsString returns the comma separated proposal names, or hashes
// for proposals the ledger did not resolve
func (f *FinalizedBudget) ProposalsString() string {
	if f.proposals == "" {
		return f.proposalsString()
	}
	return f.proposals
}

func (f *FinalizedBudget) proposalsString() string {
	hashes := make([]string, 0, len(f.Payments))
	for _, p := range f.Payments {
		hashes = append(hashes, p.ProposalHash.String())
	}
	return strings.Join(hashes, ", ")
}

func (f *FinalizedBudget) setProposalsString(s string) {
	f.proposals = s
}

// PaymentAt returns the payment slot scheduled for height
func (f *FinalizedBudget) PaymentAt(height int64) (Payment, bool) {
	i := height - f.BlockStart
	if i < 0 || i >= int64(len(f.Payments)) {
		return Payment{}, false
	}
	return f.Payments[i].clone(), true
}

func (f *FinalizedBudget) PayeeAndAmount(height int64) (Script, int64, bool) {
	p, ok := f.PaymentAt(height)
	if !ok {
		return nil, 0, false
	}
	return p.Payee, p.Amount, true
}

func (f *FinalizedBudget) AddOrUpdateVote(
	vote FinalizedBudgetVote,
	params *chainparams.Params,
	now time.Time,
) error {
	if f.votes == nil {
		f.votes = make(map[Outpoint]FinalizedBudgetVote)
	}
	return addOrUpdateVote(f.votes, vote, now, params.BudgetVoteUpdateMin)
}

func (f *FinalizedBudget) SetSynced(synced bool) {
	for k, v := range f.votes {
		if !synced || v.IsValid() {
			v.SetSynced(synced)
			f.votes[k] = v
		}
	}
}

func (f *FinalizedBudget) CleanAndRemove(registry MasternodeRegistry) {
	for k, v := range f.votes {
		_, ok := registry.Find(v.Voter)
		v.SetValid(ok)
		f.votes[k] = v
	}
}

func (f *FinalizedBudget) invalidate(format string, args ...any) bool {
	f.invalidReason = fmt.Sprintf(
		"budget %s (%s) ",
		f.Name,
		f.ProposalsString(),
	) + fmt.Sprintf(format, args...)
	return false
}

// UpdateValid recomputes the validity flag and reason
func (f *FinalizedBudget) UpdateValid(ctx ValidationContext) bool {
	f.valid = false
	cycle := ctx.Params.BudgetCycleBlocks
	if f.BlockStart%cycle != 0 {
		f.invalidReason = "invalid block start"
		return false
	}
	if f.BlockEnd()-f.BlockStart > chainparams.MaxFinalizedBudgetPayments {
		f.invalidReason = "invalid block end"
		return false
	}
	if len(f.Payments) > chainparams.MaxFinalizedBudgetPayments {
		f.invalidReason = "invalid budget payments count (too many)"
		return false
	}
	if f.Name == "" {
		f.invalidReason = "invalid budget name"
		return false
	}
	if f.BlockStart == 0 {
		return f.invalidate("invalid block start (zero)")
	}
	if f.FeeTxHash.IsZero() {
		return f.invalidate("invalid fee tx (zero)")
	}
	if f.TotalPayout() > ctx.Params.TotalBudget(f.BlockStart) {
		return f.invalidate("invalid payout (more than max)")
	}
	if ctx.Collateral != nil {
		res, err := ctx.Collateral.Check(f.FeeTxHash, f.Hash(), true)
		if res.BlockTime != 0 {
			f.Time = res.BlockTime
		}
		if err != nil {
			return f.invalidate("invalid collateral: %s", err)
		}
	}
	// Drop budgets whose last payment ends before the cycle two cycles
	// before the next superblock
	maxAge := ctx.Params.NextSuperblock(ctx.Height) - 2*cycle
	if f.BlockEnd() < maxAge {
		return f.invalidate(
			"(ends at block %d) too old and obsolete",
			f.BlockEnd(),
		)
	}
	f.valid = true
	f.invalidReason = ""
	return true
}

// paidAlready records a payment of proposal at height and reports whether
// the proposal was already paid within the budget window
func (f *FinalizedBudget) paidAlready(proposal Hash, height int64) bool {
	if f.paidAt == nil {
		f.paidAt = make(map[Hash]int64)
	}
	end := f.BlockEnd()
	for k, paidHeight := range f.paidAt {
		if paidHeight < f.BlockStart || paidHeight > end {
			delete(f.paidAt, k)
		}
	}
	if _, ok := f.paidAt[proposal]; ok {
		return true
	}
	f.paidAt[proposal] = height
	return false
}

// IsTransactionValid checks that tx carries the payment scheduled for height
func (f *FinalizedBudget) IsTransactionValid(
	tx Transaction,
	height int64,
	logger *slog.Logger,
) TxValidationStatus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	payment, ok := f.PaymentAt(height)
	if !ok {
		logger.Debug(
			"height outside finalized budget",
			"component", "budget",
			"height", height,
			"start", f.BlockStart,
			"end", f.BlockEnd(),
		)
		return TxInvalid
	}
	// The budget payment is usually the last output
	for _, out := range slices.Backward(tx.Outputs) {
		if out.Value != payment.Amount || !out.Script.Equal(payment.Payee) {
			continue
		}
		if f.paidAlready(payment.ProposalHash, height) {
			logger.Debug(
				"double budget payment detected",
				"component", "budget",
				"proposal", payment.ProposalHash.String(),
				"height", height,
				"amount", payment.Amount,
			)
			return TxDoublePayment
		}
		return TxValid
	}
	logger.Debug(
		"missing required budget payment",
		"component", "budget",
		"payee", payment.Payee.String(),
		"amount", payment.Amount,
		"height", height,
	)
	return TxInvalid
}

// MatchesFunded reports whether the payment schedule is exactly the funded
// proposal set, ignoring order
func (f *FinalizedBudget) MatchesFunded(funded []*Proposal) bool {
	if len(funded) == 0 || len(funded) != len(f.Payments) {
		return false
	}
	proposals := slices.Clone(funded)
	slices.SortFunc(proposals, func(a, b *Proposal) int {
		return b.Hash().Compare(a.Hash())
	})
	payments := slices.Clone(f.Payments)
	slices.SortFunc(payments, func(a, b Payment) int {
		return b.ProposalHash.Compare(a.ProposalHash)
	})
	for i, p := range payments {
		prop := proposals[i]
		if p.ProposalHash != prop.Hash() ||
			!p.Payee.Equal(prop.Payee) ||
			p.Amount != prop.Amount {
			return false
		}
	}
	return true
}

// compareHigherVotes orders finalized budgets by vote count descending,
// then by collateral hash descending
func compareHigherVotes(a, b *FinalizedBudget) int {
	countA := a.VoteCount()
	countB := b.VoteCount()
	if countA != countB {
		if countA > countB {
			return -1
		}
		return 1
	}
	if c := b.FeeTxHash.Compare(a.FeeTxHash); c != 0 {
		return c
	}
	return b.Hash().Compare(a.Hash())
}
