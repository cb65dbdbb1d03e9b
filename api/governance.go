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

package api

import (
	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
)

// Governance is the read-only view of the budget manager used by the API
// server
type Governance interface {
	Height() int64
	Params() *chainparams.Params
	Counts() budget.Counts
	GetAllProposals() []*budget.Proposal
	FindProposalByName(name string) (*budget.Proposal, bool)
	GetProposal(h budget.Hash) (*budget.Proposal, bool)
	GetBudget() []*budget.Proposal
	GetFinalizedBudgets() []*budget.FinalizedBudget
	GetFinalizedBudget(h budget.Hash) (*budget.FinalizedBudget, bool)
	GetFinalizedBudgetStatus(h budget.Hash) string
	GetBudgetWithHighestVoteCount(height int64) (*budget.FinalizedBudget, bool)
	GetRequiredPaymentsString(height int64) string
	IsBudgetPaymentBlock(height int64) bool
}

var _ Governance = (*budget.Manager)(nil)
