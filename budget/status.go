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

// TxValidationStatus is the outcome of checking a block's payout
// transaction against the finalized budgets
type TxValidationStatus int

const (
	// TxInvalid means the expected budget payment is missing or the height is
	// outside the budget
	TxInvalid TxValidationStatus = iota
	// TxValid means the transaction carries the scheduled budget payment
	TxValid
	// TxVoteThreshold means no finalized budget has enough votes for the
	// height, so the ordinary masternode reward applies
	TxVoteThreshold
	// TxDoublePayment means the proposal was already paid in this window
	TxDoublePayment
)

func (s TxValidationStatus) String() string {
	switch s {
	case TxInvalid:
		return "invalid"
	case TxValid:
		return "valid"
	case TxVoteThreshold:
		return "vote-threshold"
	case TxDoublePayment:
		return "double-payment"
	default:
		return "unknown"
	}
}
