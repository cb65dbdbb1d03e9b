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

// Proposal is an accepted budget proposal
type Proposal struct {
	ID         uint   `gorm:"primarykey"`
	Hash       string `gorm:"uniqueIndex;size:64;not null"`
	Name       string `gorm:"index;size:20;not null"`
	URL        string `gorm:"column:url;size:64"`
	Payee      []byte `gorm:"not null"`
	Amount     int64  `gorm:"not null"`
	BlockStart int64  `gorm:"index;not null"`
	BlockEnd   int64  `gorm:"index;not null"`
	FeeTxHash  string `gorm:"size:64;not null"`
	Time       int64  `gorm:"not null"`
	RemovedAt  *int64
	Reason     string
}

func (Proposal) TableName() string {
	return "proposal"
}

// FinalizedBudget is an accepted finalized budget
type FinalizedBudget struct {
	ID          uint   `gorm:"primarykey"`
	Hash        string `gorm:"uniqueIndex;size:64;not null"`
	Name        string `gorm:"size:20;not null"`
	BlockStart  int64  `gorm:"index;not null"`
	TotalPayout int64  `gorm:"not null"`
	FeeTxHash   string `gorm:"size:64;not null"`
	Time        int64  `gorm:"not null"`
	RemovedAt   *int64
	Reason      string
	Payments    []FinalizedPayment `gorm:"foreignKey:FinalizedBudgetID;constraint:OnDelete:CASCADE"`
}

func (FinalizedBudget) TableName() string {
	return "finalized_budget"
}

// FinalizedPayment is one scheduled payment of a finalized budget. Position
// is the offset from the budget start height.
type FinalizedPayment struct {
	ID                uint   `gorm:"primarykey"`
	FinalizedBudgetID uint   `gorm:"uniqueIndex:idx_payment_position,priority:1;not null"`
	Position          int    `gorm:"uniqueIndex:idx_payment_position,priority:2;not null"`
	ProposalHash      string `gorm:"index;size:64;not null"`
	Payee             []byte `gorm:"not null"`
	Amount            int64  `gorm:"not null"`
}

func (FinalizedPayment) TableName() string {
	return "finalized_payment"
}

// Vote is an accepted proposal or finalized budget vote
type Vote struct {
	ID        uint   `gorm:"primarykey"`
	Hash      string `gorm:"uniqueIndex;size:64;not null"`
	Target    string `gorm:"index;size:64;not null"`
	Voter     string `gorm:"index;size:80;not null"`
	Direction string `gorm:"size:8;not null"`
	Finalized bool   `gorm:"not null"`
	Time      int64  `gorm:"not null"`
}

func (Vote) TableName() string {
	return "vote"
}

// MigrateModels lists the tables created on open
var MigrateModels = []any{
	&Proposal{},
	&FinalizedBudget{},
	&FinalizedPayment{},
	&Vote{},
}
