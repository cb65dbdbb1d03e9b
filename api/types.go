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

// RootResponse is returned by GET /
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is returned on any failure
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// StatusResponse summarizes the manager state
type StatusResponse struct {
	Network              string `json:"network"`
	Height               int64  `json:"height"`
	NextSuperblock       int64  `json:"next_superblock"`
	BlocksToSuperblock   int64  `json:"blocks_to_superblock"`
	TotalBudget          int64  `json:"total_budget"`
	Proposals            int    `json:"proposals"`
	SeenProposals        int    `json:"seen_proposals"`
	FinalizedBudgets     int    `json:"finalized_budgets"`
	SeenFinalizedBudgets int    `json:"seen_finalized_budgets"`
	ProposalVotes        int    `json:"proposal_votes"`
	OrphanProposalVotes  int    `json:"orphan_proposal_votes"`
	FinalizedVotes       int    `json:"finalized_votes"`
	OrphanFinalizedVotes int    `json:"orphan_finalized_votes"`
	ImmatureProposals    int    `json:"immature_proposals"`
	ImmatureFinalized    int    `json:"immature_finalized_budgets"`
}

// ProposalResponse describes a budget proposal
type ProposalResponse struct {
	Hash                  string  `json:"hash"`
	Name                  string  `json:"name"`
	URL                   string  `json:"url"`
	Payee                 string  `json:"payee"`
	Amount                int64   `json:"amount"`
	Allotted              int64   `json:"allotted"`
	BlockStart            int64   `json:"block_start"`
	BlockEnd              int64   `json:"block_end"`
	TotalPaymentCount     int64   `json:"total_payment_count"`
	RemainingPaymentCount int64   `json:"remaining_payment_count"`
	Yeas                  int     `json:"yeas"`
	Nays                  int     `json:"nays"`
	Abstains              int     `json:"abstains"`
	Ratio                 float64 `json:"ratio"`
	FeeTxHash             string  `json:"fee_tx_hash"`
	IsEstablished         bool    `json:"is_established"`
	IsValid               bool    `json:"is_valid"`
	InvalidReason         string  `json:"invalid_reason,omitempty"`
}

// BudgetResponse is the funded set projected for the next superblock
type BudgetResponse struct {
	BlockStart  int64              `json:"block_start"`
	BlockEnd    int64              `json:"block_end"`
	TotalBudget int64              `json:"total_budget"`
	Allotted    int64              `json:"allotted"`
	Proposals   []ProposalResponse `json:"proposals"`
}

// PaymentResponse is one payment slot of a finalized budget
type PaymentResponse struct {
	Height       int64  `json:"height"`
	ProposalHash string `json:"proposal_hash"`
	Payee        string `json:"payee"`
	Amount       int64  `json:"amount"`
}

// FinalizedBudgetResponse describes a finalized budget
type FinalizedBudgetResponse struct {
	Hash          string            `json:"hash"`
	Name          string            `json:"name"`
	BlockStart    int64             `json:"block_start"`
	BlockEnd      int64             `json:"block_end"`
	TotalPayout   int64             `json:"total_payout"`
	VoteCount     int               `json:"vote_count"`
	FeeTxHash     string            `json:"fee_tx_hash"`
	Status        string            `json:"status"`
	IsValid       bool              `json:"is_valid"`
	InvalidReason string            `json:"invalid_reason,omitempty"`
	Payments      []PaymentResponse `json:"payments"`
}

// PayeeResponse is the treasury payment expected at a height
type PayeeResponse struct {
	Height         int64  `json:"height"`
	IsPaymentBlock bool   `json:"is_payment_block"`
	BudgetHash     string `json:"budget_hash,omitempty"`
	ProposalHash   string `json:"proposal_hash,omitempty"`
	Payee          string `json:"payee,omitempty"`
	Amount         int64  `json:"amount"`
	Required       string `json:"required"`
}
