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

// Package chainparams holds the per-network constants that govern treasury
// budgets: cycle length, collateral fees and depths, vote pacing and the
// subsidy schedule the per-cycle spending cap is derived from.
package chainparams

import (
	"fmt"
	"time"
)

// Coin is the number of base units in one coin
const Coin int64 = 100_000_000

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkRegtest = "regtest"
)

// MaxFinalizedBudgetPayments caps the number of payment slots in a finalized budget
const MaxFinalizedBudgetPayments = 100

// VoteFutureDrift is how far ahead of local time a vote timestamp may be
const VoteFutureDrift = time.Hour

type Params struct {
	Name         string
	NetworkMagic [4]byte
	// BudgetCycleBlocks is the superblock interval
	BudgetCycleBlocks int64
	// BudgetFeeConfirmations is the collateral depth required before a
	// proposal or finalized budget is accepted
	BudgetFeeConfirmations int64
	// ProposalEstablishmentTime is the minimum proposal age before it can be funded
	ProposalEstablishmentTime time.Duration
	// BudgetVoteUpdateMin is the minimum interval between two votes of one voter on one target
	BudgetVoteUpdateMin time.Duration
	ProposalFee         int64
	FinalizationFee     int64
	MinProposalAmount   int64
	// FinalizationWindow overrides the default finalization window when non-zero
	FinalizationWindow int64
	// PoSActivationHeight and ZerocoinV2Height feed the subsidy schedule
	PoSActivationHeight int64
	ZerocoinV2Height    int64
	// FlatSubsidy replaces the height based subsidy table on test networks
	FlatSubsidy int64
	// FlatBudgetBlocks is the number of blocks per cycle the flat subsidy budget covers
	FlatBudgetBlocks int64
	// SingleFullSync limits each peer to one full budget sync request
	SingleFullSync bool
}

var Mainnet = Params{
	Name:                      NetworkMainnet,
	NetworkMagic:              [4]byte{0x90, 0xc4, 0xfd, 0xe9},
	BudgetCycleBlocks:         43200,
	BudgetFeeConfirmations:    6,
	ProposalEstablishmentTime: 24 * time.Hour,
	BudgetVoteUpdateMin:       time.Hour,
	ProposalFee:               50 * Coin,
	FinalizationFee:           5 * Coin,
	MinProposalAmount:         10 * Coin,
	PoSActivationHeight:       259201,
	ZerocoinV2Height:          1153160,
	SingleFullSync:            true,
}

var Testnet = Params{
	Name:                      NetworkTestnet,
	NetworkMagic:              [4]byte{0xf5, 0xe6, 0xd5, 0xca},
	BudgetCycleBlocks:         144,
	BudgetFeeConfirmations:    3,
	ProposalEstablishmentTime: 5 * time.Minute,
	BudgetVoteUpdateMin:       time.Hour,
	ProposalFee:               50 * Coin,
	FinalizationFee:           5 * Coin,
	MinProposalAmount:         10 * Coin,
	FinalizationWindow:        64,
	PoSActivationHeight:       201,
	ZerocoinV2Height:          444020,
	FlatSubsidy:               500 * Coin,
	FlatBudgetBlocks:          146,
}

var Regtest = Params{
	Name:                      NetworkRegtest,
	NetworkMagic:              [4]byte{0xa1, 0xcf, 0x7e, 0xac},
	BudgetCycleBlocks:         144,
	BudgetFeeConfirmations:    1,
	ProposalEstablishmentTime: 5 * time.Minute,
	BudgetVoteUpdateMin:       time.Hour,
	ProposalFee:               50 * Coin,
	FinalizationFee:           5 * Coin,
	MinProposalAmount:         10 * Coin,
	FinalizationWindow:        64,
	PoSActivationHeight:       251,
	ZerocoinV2Height:          300,
	FlatSubsidy:               500 * Coin,
	FlatBudgetBlocks:          146,
}

// ByName returns a copy of the params for the named network
func ByName(name string) (*Params, error) {
	var p Params
	switch name {
	case NetworkMainnet, "main", "":
		p = Mainnet
	case NetworkTestnet, "test":
		p = Testnet
	case NetworkRegtest:
		p = Regtest
	default:
		return nil, fmt.Errorf("unknown network: %s", name)
	}
	return &p, nil
}

// CycleStart returns the first block of the cycle containing height
func (p *Params) CycleStart(height int64) int64 {
	return height - height%p.BudgetCycleBlocks
}

// NextSuperblock returns the first block of the cycle after the one
// containing height
func (p *Params) NextSuperblock(height int64) int64 {
	return p.CycleStart(height) + p.BudgetCycleBlocks
}

// FinalizationBlocks returns how many blocks before a superblock a
// finalized budget may be suggested
func (p *Params) FinalizationBlocks() int64 {
	if p.FinalizationWindow > 0 {
		return p.FinalizationWindow
	}
	return (p.BudgetCycleBlocks / 30) * 2
}

// TotalBudget returns the maximum amount payable by the treasury in the
// cycle starting at height
func (p *Params) TotalBudget(height int64) int64 {
	if p.FlatSubsidy > 0 {
		return ((p.FlatSubsidy / 100) * 10) * p.FlatBudgetBlocks
	}
	if height <= 172800 {
		return 648000 * Coin
	}
	subsidy := p.BlockSubsidy(height)
	// one month of one minute blocks
	return ((subsidy / 100) * 10) * 1440 * 30
}

// BlockSubsidy returns the block reward at height
func (p *Params) BlockSubsidy(height int64) int64 {
	if p.FlatSubsidy > 0 {
		return p.FlatSubsidy
	}
	posActive := height >= p.PoSActivationHeight
	switch {
	case height >= 151200 && !posActive:
		return 50 * Coin
	case posActive && height <= 302399:
		return 50 * Coin
	case height >= 302400 && height <= 345599:
		return 45 * Coin
	case height >= 345600 && height <= 388799:
		return 40 * Coin
	case height >= 388800 && height <= 431999:
		return 35 * Coin
	case height >= 432000 && height <= 475199:
		return 30 * Coin
	case height >= 475200 && height <= 518399:
		return 25 * Coin
	case height >= 518400 && height <= 561599:
		return 20 * Coin
	case height >= 561600 && height <= 604799:
		return 15 * Coin
	case height >= 604800 && height <= 647999:
		return 10 * Coin
	case height >= p.ZerocoinV2Height:
		return 10 * Coin
	default:
		return 5 * Coin
	}
}
