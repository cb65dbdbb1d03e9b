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

package archive

import (
	"errors"

	"github.com/blinklabs-io/treasury/budget"
	"gorm.io/gorm"
)

// Proposals returns every archived proposal ordered by start height
func (a *Archive) Proposals() ([]Proposal, error) {
	var ret []Proposal
	if result := a.db.Order("block_start, id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ProposalsByName returns the archived proposals with the given name
func (a *Archive) ProposalsByName(name string) ([]Proposal, error) {
	var ret []Proposal
	if result := a.db.Where("name = ?", name).Order("id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Proposal returns the archived proposal with the given hash
func (a *Archive) Proposal(hash budget.Hash) (*Proposal, error) {
	var ret Proposal
	if result := a.db.Where("hash = ?", hash.String()).First(&ret); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}

// FinalizedBudgets returns the archived finalized budgets starting at
// height, or all of them when height is negative
func (a *Archive) FinalizedBudgets(height int64) ([]FinalizedBudget, error) {
	var ret []FinalizedBudget
	q := a.db.Preload("Payments", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
	if height >= 0 {
		q = q.Where("block_start = ?", height)
	}
	if result := q.Order("block_start, id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Votes returns the archived votes cast on a proposal or finalized budget
func (a *Archive) Votes(target budget.Hash) ([]Vote, error) {
	var ret []Vote
	if result := a.db.Where("target = ?", target.String()).Order("time, id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// VotesByVoter returns the archived votes cast by a masternode
func (a *Archive) VotesByVoter(voter budget.Outpoint) ([]Vote, error) {
	var ret []Vote
	if result := a.db.Where("voter = ?", voter.String()).Order("time, id").Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
