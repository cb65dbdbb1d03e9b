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

// Governance is the read side of the budget manager used by query surfaces
type Governance interface {
	Height() int64
	Counts() Counts
	String() string
	GetAllProposals() []*Proposal
	GetProposal(h Hash) (*Proposal, bool)
	FindProposalByName(name string) (*Proposal, bool)
	GetBudget() []*Proposal
	GetFinalizedBudgets() []*FinalizedBudget
	GetFinalizedBudget(h Hash) (*FinalizedBudget, bool)
	GetFinalizedBudgetStatus(h Hash) string
	GetPayeeAndAmount(height int64) (Script, int64, bool)
	GetRequiredPaymentsString(height int64) string
	IsBudgetPaymentBlock(height int64) bool
}

var _ Governance = (*Manager)(nil)
