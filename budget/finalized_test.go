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
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/treasury/chainparams"
)

func testPayments(count int, amount int64) []Payment {
	ret := make([]Payment, 0, count)
	for i := range count {
		ret = append(ret, Payment{
			ProposalHash: hashFields("proposal", i),
			Payee:        testPayee(string(rune('a' + i%26))),
			Amount:       amount,
		})
	}
	return ret
}

func TestFinalizedBudgetUpdateValid(t *testing.T) {
	env := newTestEnv(t, 1000)
	ctx := env.manager.validationContext(true)
	testDefs := []struct {
		name     string
		build    func() *FinalizedBudget
		expected string
		contains string
	}{
		{
			name: "valid",
			build: func() *FinalizedBudget {
				return env.finalized(1008, testPayments(2, 100*chainparams.Coin)).ToFinalizedBudget()
			},
		},
		{
			name: "start not on superblock",
			build: func() *FinalizedBudget {
				return env.finalized(1000, testPayments(2, 100*chainparams.Coin)).ToFinalizedBudget()
			},
			expected: "invalid block start",
		},
		{
			name: "too many payments",
			build: func() *FinalizedBudget {
				return env.finalized(1008, testPayments(101, chainparams.Coin)).ToFinalizedBudget()
			},
			expected: "invalid budget payments count (too many)",
		},
		{
			name: "empty name",
			build: func() *FinalizedBudget {
				f := env.finalized(1008, testPayments(2, 100*chainparams.Coin)).ToFinalizedBudget()
				f.Name = ""
				return f
			},
			expected: "invalid budget name",
		},
		{
			name: "zero collateral",
			build: func() *FinalizedBudget {
				f := env.finalized(1008, testPayments(2, 100*chainparams.Coin)).ToFinalizedBudget()
				f.FeeTxHash = ZeroHash
				return f
			},
			contains: "invalid fee tx (zero)",
		},
		{
			name: "payout above cap",
			build: func() *FinalizedBudget {
				return env.finalized(1008, testPayments(2, env.params.TotalBudget(1008))).ToFinalizedBudget()
			},
			contains: "invalid payout (more than max)",
		},
		{
			name: "collateral for another budget",
			build: func() *FinalizedBudget {
				f := env.finalized(1008, testPayments(2, 100*chainparams.Coin)).ToFinalizedBudget()
				f.Payments[0].Amount++
				return f
			},
			contains: "invalid collateral: couldn't find commitment",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			f := testDef.build()
			ok := f.UpdateValid(ctx)
			switch {
			case testDef.expected != "":
				assert.False(t, ok)
				assert.Equal(t, testDef.expected, f.InvalidReason())
			case testDef.contains != "":
				assert.False(t, ok)
				assert.Contains(t, f.InvalidReason(), testDef.contains)
				assert.Contains(t, f.InvalidReason(), "budget main (")
			default:
				assert.True(t, ok, f.InvalidReason())
				assert.Equal(t, env.chain.blockTime, f.Time)
			}
			assert.Equal(t, ok, f.IsValid())
		})
	}
}

func TestFinalizedBudgetObsolete(t *testing.T) {
	env := newTestEnv(t, 1000)
	f := env.finalized(1008, testPayments(1, 100*chainparams.Coin)).ToFinalizedBudget()
	ctx := env.manager.validationContext(true)
	require.True(t, f.UpdateValid(ctx), f.InvalidReason())

	// Two cycles later the budget no longer reaches the retention window
	ctx.Height = 1008 + 3*env.params.BudgetCycleBlocks
	assert.False(t, f.UpdateValid(ctx))
	assert.Contains(t, f.InvalidReason(), "(ends at block 1008) too old and obsolete")
}

func TestFinalizedBudgetTransactionValid(t *testing.T) {
	payments := testPayments(2, 100*chainparams.Coin)
	f := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, hashFields("fee")).ToFinalizedBudget()
	require.Equal(t, int64(1009), f.BlockEnd())

	payout := func(p Payment) Transaction {
		return Transaction{
			Outputs: []TxOut{
				{Value: 400 * chainparams.Coin, Script: testPayee("miner")},
				{Value: p.Amount, Script: p.Payee},
			},
		}
	}

	assert.Equal(t, TxValid, f.IsTransactionValid(payout(payments[0]), 1008, nil))
	// Same proposal paid again within the budget window
	assert.Equal(t, TxDoublePayment, f.IsTransactionValid(payout(payments[0]), 1008, nil))
	assert.Equal(t, TxValid, f.IsTransactionValid(payout(payments[1]), 1009, nil))

	// Wrong payment for the slot
	assert.Equal(t, TxInvalid, f.IsTransactionValid(payout(payments[0]), 1009, nil))
	// Outside the budget
	assert.Equal(t, TxInvalid, f.IsTransactionValid(payout(payments[1]), 1010, nil))
	assert.Equal(t, TxInvalid, f.IsTransactionValid(payout(payments[0]), 1007, nil))

	short := payout(payments[0])
	short.Outputs[1].Value--
	c := f.Clone()
	assert.Equal(t, TxInvalid, c.IsTransactionValid(short, 1008, nil))
	// The copy does not share payment history
	assert.Equal(t, TxValid, c.IsTransactionValid(payout(payments[0]), 1008, nil))
}

func TestFinalizedBudgetPaymentAt(t *testing.T) {
	payments := testPayments(3, 10*chainparams.Coin)
	f := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, ZeroHash).ToFinalizedBudget()
	for i, p := range payments {
		payee, amount, ok := f.PayeeAndAmount(1008 + int64(i))
		require.True(t, ok)
		assert.Equal(t, p.Payee, payee)
		assert.Equal(t, p.Amount, amount)
	}
	_, _, ok := f.PayeeAndAmount(1011)
	assert.False(t, ok)
	assert.Equal(t, 30*chainparams.Coin, f.TotalPayout())
	assert.Equal(t, []Hash{payments[0].ProposalHash, payments[1].ProposalHash, payments[2].ProposalHash}, f.ProposalHashes())
}

func TestFinalizedBudgetMatchesFunded(t *testing.T) {
	env := newTestEnv(t, 1000)
	var funded []*Proposal
	var payments []Payment
	for _, name := range []string{"alpha", "beta", "gamma"} {
		p := env.proposal(name, 100*chainparams.Coin, 1008, 2).ToProposal()
		funded = append(funded, p)
		payments = append(payments, Payment{
			ProposalHash: p.Hash(),
			Payee:        p.Payee,
			Amount:       p.Amount,
		})
	}
	slices.Reverse(payments)
	f := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, ZeroHash).ToFinalizedBudget()
	assert.True(t, f.MatchesFunded(funded))
	assert.False(t, f.MatchesFunded(funded[:2]))
	assert.False(t, f.MatchesFunded(nil))

	f.Payments[1].Amount++
	assert.False(t, f.MatchesFunded(funded))

	empty := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, nil, ZeroHash).ToFinalizedBudget()
	assert.False(t, empty.MatchesFunded(nil))
}

func TestFinalizedBudgetHashExcludesCollateral(t *testing.T) {
	payments := testPayments(2, 10*chainparams.Coin)
	a := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, hashFields("fee-a"))
	b := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, hashFields("fee-b"))
	assert.Equal(t, a.Hash(), b.Hash())
	payments[0].Amount++
	c := NewFinalizedBudgetBroadcast(MainBudgetName, 1008, payments, hashFields("fee-a"))
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestCompareHigherVotes(t *testing.T) {
	env := newTestEnv(t, 1000)
	var budgets []*FinalizedBudget
	for i := range 3 {
		f := env.finalized(1008, testPayments(i+1, 10*chainparams.Coin)).ToFinalizedBudget()
		for j := range i {
			require.NoError(t, f.AddOrUpdateVote(env.finalizedVote(j, f.Hash(), testNow), env.params, testNow))
		}
		budgets = append(budgets, f)
	}
	slices.SortFunc(budgets, compareHigherVotes)
	assert.Equal(t, 2, budgets[0].VoteCount())
	assert.Equal(t, 1, budgets[1].VoteCount())
	assert.Equal(t, 0, budgets[2].VoteCount())
}
