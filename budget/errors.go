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

import "errors"

var (
	ErrVoteTooOld              = errors.New("new vote older than existing vote")
	ErrVoteTooSoon             = errors.New("time between votes is too soon")
	ErrVoteFromFuture          = errors.New("new vote is too far ahead of current time")
	ErrProposalNotFound        = errors.New("proposal not found")
	ErrFinalizedBudgetNotFound = errors.New("finalized budget not found")
	ErrUnknownMasternode       = errors.New("unknown masternode")
	ErrInvalidSignature        = errors.New("invalid vote signature")
	ErrAlreadyExists           = errors.New("already exists")
	ErrInvalidEntry            = errors.New("invalid entry")
	ErrNotMasternode           = errors.New("local node is not a masternode")
	ErrUnknownInventory        = errors.New("unknown inventory item")
)
