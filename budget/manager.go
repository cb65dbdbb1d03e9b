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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/event"
	"github.com/blinklabs-io/treasury/msgsign"
)

const (
	DefaultAutoVoteChance      = 4
	DefaultResyncChance        = 1440
	DefaultMaintenanceInterval = 14

	// MainBudgetName is the name every locally suggested finalized budget uses
	MainBudgetName = "main"

	misbehaviorScore = 20
	requestExpiry    = 24 * time.Hour
	orphanExpiry     = 24 * time.Hour
)

// BudgetMode selects how a node participates in budget finalization
type BudgetMode string

const (
	// BudgetModeSuggest submits the locally computed budget for finalization
	BudgetModeSuggest BudgetMode = "suggest"
	// BudgetModeAuto votes for finalized budgets matching the local budget
	BudgetModeAuto BudgetMode = "auto"
	BudgetModeNone BudgetMode = "none"
)

func ParseBudgetMode(s string) (BudgetMode, error) {
	switch BudgetMode(s) {
	case BudgetModeSuggest, BudgetModeAuto, BudgetModeNone:
		return BudgetMode(s), nil
	case "":
		return BudgetModeSuggest, nil
	}
	return "", fmt.Errorf("invalid budget mode: %s", s)
}

// ActiveMasternode identifies the local masternode and its signing key
type ActiveMasternode struct {
	Outpoint Outpoint
	Key      *msgsign.PrivateKey
}

type ManagerConfig struct {
	Params   *chainparams.Params
	Chain    ChainOracle
	Registry MasternodeRegistry
	Network  Network
	Sync     SyncTracker
	// Funder is only needed to suggest finalized budgets
	Funder CollateralFunder
	// Masternode is nil when the local node does not vote
	Masternode   *ActiveMasternode
	Mode         BudgetMode
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
	Now          func() time.Time
	Rand         *rand.Rand
	// AutoVoteChance and ResyncChance are 1-in-N probabilities per
	// maintenance pass. Zero disables the action.
	AutoVoteChance      int
	ResyncChance        int
	MaintenanceInterval int64
	// TrustCollateral skips collateral checks for offline inspection of a
	// snapshot without a chain index
	TrustCollateral bool
}

type orphanVote[V any] struct {
	vote     V
	received time.Time
}

// Manager owns the proposal and finalized budget ledgers
type Manager struct {
	config     ManagerConfig
	logger     *slog.Logger
	metrics    *managerMetrics
	collateral *CollateralValidator
	bestHeight atomic.Int64

	proposalsMu       sync.Mutex
	proposals         map[Hash]*Proposal
	seenProposals     map[Hash]ProposalBroadcast
	immatureProposals []ProposalBroadcast

	budgetsMu                sync.Mutex
	finalizedBudgets         map[Hash]*FinalizedBudget
	seenFinalizedBudgets     map[Hash]FinalizedBudgetBroadcast
	immatureFinalizedBudgets []FinalizedBudgetBroadcast

	votesMu             sync.Mutex
	seenProposalVotes   map[Hash]Vote
	orphanProposalVotes map[Hash]orphanVote[Vote]

	finalizedVotesMu     sync.Mutex
	seenFinalizedVotes   map[Hash]FinalizedBudgetVote
	orphanFinalizedVotes map[Hash]orphanVote[FinalizedBudgetVote]

	// requestsMu guards peer request bookkeeping and is never held while
	// acquiring another lock
	requestsMu      sync.Mutex
	askedFor        map[Hash]time.Time
	fulfilledSync   map[PeerID]bool
	collateralTxids map[Hash]Hash
	submittedHeight int64

	randMu sync.Mutex
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Params == nil {
		return nil, errors.New("budget manager: no chain params provided")
	}
	if cfg.Chain == nil {
		return nil, errors.New("budget manager: no chain oracle provided")
	}
	if cfg.Registry == nil {
		return nil, errors.New("budget manager: no masternode registry provided")
	}
	if cfg.Network == nil {
		return nil, errors.New("budget manager: no network provided")
	}
	if cfg.Sync == nil {
		return nil, errors.New("budget manager: no sync tracker provided")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Mode == "" {
		cfg.Mode = BudgetModeSuggest
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = DefaultMaintenanceInterval
	}
	m := &Manager{
		config: cfg,
		logger: cfg.Logger.With("component", "budget"),
		collateral: NewCollateralValidator(
			cfg.Chain,
			cfg.Params,
			cfg.Logger,
		),
	}
	m.initMetrics(cfg.PromRegistry)
	m.reset()
	m.bestHeight.Store(cfg.Chain.Height())
	return m, nil
}

func (m *Manager) reset() {
	m.proposalsMu.Lock()
	m.proposals = make(map[Hash]*Proposal)
	m.seenProposals = make(map[Hash]ProposalBroadcast)
	m.immatureProposals = nil
	m.proposalsMu.Unlock()
	m.budgetsMu.Lock()
	m.finalizedBudgets = make(map[Hash]*FinalizedBudget)
	m.seenFinalizedBudgets = make(map[Hash]FinalizedBudgetBroadcast)
	m.immatureFinalizedBudgets = nil
	m.budgetsMu.Unlock()
	m.votesMu.Lock()
	m.seenProposalVotes = make(map[Hash]Vote)
	m.orphanProposalVotes = make(map[Hash]orphanVote[Vote])
	m.votesMu.Unlock()
	m.finalizedVotesMu.Lock()
	m.seenFinalizedVotes = make(map[Hash]FinalizedBudgetVote)
	m.orphanFinalizedVotes = make(map[Hash]orphanVote[FinalizedBudgetVote])
	m.finalizedVotesMu.Unlock()
	m.requestsMu.Lock()
	m.askedFor = make(map[Hash]time.Time)
	m.fulfilledSync = make(map[PeerID]bool)
	m.collateralTxids = make(map[Hash]Hash)
	m.requestsMu.Unlock()
	m.updateGauges()
}

// Clear drops all ledger state
func (m *Manager) Clear() {
	m.logger.Debug("clearing budget state")
	m.reset()
}

// ClearSeen drops the seen broadcast and vote archives
func (m *Manager) ClearSeen() {
	m.proposalsMu.Lock()
	m.seenProposals = make(map[Hash]ProposalBroadcast)
	m.proposalsMu.Unlock()
	m.votesMu.Lock()
	m.seenProposalVotes = make(map[Hash]Vote)
	m.votesMu.Unlock()
	m.budgetsMu.Lock()
	m.seenFinalizedBudgets = make(map[Hash]FinalizedBudgetBroadcast)
	m.budgetsMu.Unlock()
	m.finalizedVotesMu.Lock()
	m.seenFinalizedVotes = make(map[Hash]FinalizedBudgetVote)
	m.finalizedVotesMu.Unlock()
	m.updateGauges()
}

func (m *Manager) updateGauges() {
	m.proposalsMu.Lock()
	m.metrics.proposals.Set(float64(len(m.proposals)))
	m.metrics.seenProposals.Set(float64(len(m.seenProposals)))
	m.metrics.immatureItems.WithLabelValues(voteKindProposal).
		Set(float64(len(m.immatureProposals)))
	m.proposalsMu.Unlock()
	m.budgetsMu.Lock()
	m.metrics.finalizedBudgets.Set(float64(len(m.finalizedBudgets)))
	m.metrics.seenFinalizedBudgets.Set(float64(len(m.seenFinalizedBudgets)))
	m.metrics.immatureItems.WithLabelValues(voteKindFinalized).
		Set(float64(len(m.immatureFinalizedBudgets)))
	m.budgetsMu.Unlock()
	m.votesMu.Lock()
	m.metrics.orphanVotes.WithLabelValues(voteKindProposal).
		Set(float64(len(m.orphanProposalVotes)))
	m.votesMu.Unlock()
	m.finalizedVotesMu.Lock()
	m.metrics.orphanVotes.WithLabelValues(voteKindFinalized).
		Set(float64(len(m.orphanFinalizedVotes)))
	m.finalizedVotesMu.Unlock()
}

// Height returns the best height seen by NewBlock
func (m *Manager) Height() int64 {
	return m.bestHeight.Load()
}

func (m *Manager) Params() *chainparams.Params {
	return m.config.Params
}

func (m *Manager) now() time.Time {
	return m.config.Now()
}

// chance returns true with a probability of 1 in n
func (m *Manager) chance(n int) bool {
	if n <= 0 {
		return false
	}
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.config.Rand.IntN(n) == 0
}

func (m *Manager) validationContext(checkCollateral bool) ValidationContext {
	ret := ValidationContext{
		Params:       m.config.Params,
		Height:       m.Height(),
		EnabledCount: m.config.Registry.CountEnabled(),
		Now:          m.now(),
	}
	if checkCollateral && !m.config.TrustCollateral {
		ret.Collateral = m.collateral
	}
	return ret
}

// checkCollateral runs the collateral validator unless collateral is trusted
func (m *Manager) checkCollateral(
	txHash Hash,
	expected Hash,
	finalization bool,
) (CollateralResult, error) {
	if m.config.TrustCollateral {
		return CollateralResult{}, nil
	}
	return m.collateral.Check(txHash, expected, finalization)
}

func sortedKeys[V any](items map[Hash]V) []Hash {
	ret := slices.Collect(maps.Keys(items))
	slices.SortFunc(ret, func(a, b Hash) int { return a.Compare(b) })
	return ret
}

func (m *Manager) addSeenProposal(b ProposalBroadcast) {
	m.proposalsMu.Lock()
	m.seenProposals[b.Hash()] = b
	m.proposalsMu.Unlock()
}

func (m *Manager) haveSeenProposal(h Hash) bool {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	_, ok := m.seenProposals[h]
	return ok
}

func (m *Manager) addSeenProposalVote(v Vote) {
	m.votesMu.Lock()
	m.seenProposalVotes[v.Hash()] = v
	m.votesMu.Unlock()
}

func (m *Manager) haveSeenProposalVote(h Hash) bool {
	m.votesMu.Lock()
	defer m.votesMu.Unlock()
	_, ok := m.seenProposalVotes[h]
	return ok
}

func (m *Manager) addSeenFinalizedBudget(b FinalizedBudgetBroadcast) {
	m.budgetsMu.Lock()
	m.seenFinalizedBudgets[b.Hash()] = b
	m.budgetsMu.Unlock()
}

func (m *Manager) haveSeenFinalizedBudget(h Hash) bool {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	_, ok := m.seenFinalizedBudgets[h]
	return ok
}

func (m *Manager) addSeenFinalizedVote(v FinalizedBudgetVote) {
	m.finalizedVotesMu.Lock()
	m.seenFinalizedVotes[v.Hash()] = v
	m.finalizedVotesMu.Unlock()
}

func (m *Manager) haveSeenFinalizedVote(h Hash) bool {
	m.finalizedVotesMu.Lock()
	defer m.finalizedVotesMu.Unlock()
	_, ok := m.seenFinalizedVotes[h]
	return ok
}

// addProposal validates p and stores it. It returns false without error
// when the proposal is already known.
func (m *Manager) addProposal(p *Proposal) (bool, error) {
	ctx := m.validationContext(true)
	m.proposalsMu.Lock()
	if !p.UpdateValid(ctx) {
		m.proposalsMu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrInvalidEntry, p.InvalidReason())
	}
	h := p.Hash()
	if _, ok := m.proposals[h]; ok {
		m.proposalsMu.Unlock()
		return false, nil
	}
	m.proposals[h] = p
	m.metrics.proposals.Set(float64(len(m.proposals)))
	m.proposalsMu.Unlock()
	m.logger.Debug(
		"proposal added",
		"name", p.Name,
		"hash", h.String(),
	)
	m.publishProposalAdded(p)
	return true, nil
}

// addFinalizedBudget validates f and stores it. It returns false without
// error when the finalized budget is already known.
func (m *Manager) addFinalizedBudget(f *FinalizedBudget) (bool, error) {
	h := f.Hash()
	m.budgetsMu.Lock()
	_, exists := m.finalizedBudgets[h]
	m.budgetsMu.Unlock()
	if exists {
		return false, nil
	}
	if !f.UpdateValid(m.validationContext(true)) {
		return false, fmt.Errorf("%w: %s", ErrInvalidEntry, f.InvalidReason())
	}
	f.setProposalsString(m.proposalNames(f.ProposalHashes()))
	m.budgetsMu.Lock()
	if _, ok := m.finalizedBudgets[h]; ok {
		m.budgetsMu.Unlock()
		return false, nil
	}
	m.finalizedBudgets[h] = f
	m.metrics.finalizedBudgets.Set(float64(len(m.finalizedBudgets)))
	m.budgetsMu.Unlock()
	m.logger.Debug(
		"finalized budget added",
		"name", f.Name,
		"hash", h.String(),
		"proposals", f.ProposalsString(),
	)
	m.publishFinalizedBudgetAdded(f)
	return true, nil
}

// proposalNames resolves proposal hashes to names where known
func (m *Manager) proposalNames(hashes []Hash) string {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	var ret string
	for i, h := range hashes {
		if i > 0 {
			ret += ", "
		}
		if p, ok := m.proposals[h]; ok {
			ret += p.Name
		} else {
			ret += h.String()
		}
	}
	return ret
}

// GetProposal returns a copy of the active proposal with the given hash
func (m *Manager) GetProposal(h Hash) (*Proposal, bool) {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	p, ok := m.proposals[h]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// GetFinalizedBudget returns a copy of the active finalized budget with the
// given hash
func (m *Manager) GetFinalizedBudget(h Hash) (*FinalizedBudget, bool) {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	f, ok := m.finalizedBudgets[h]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// FindProposalByName returns the proposal with the given name and the
// highest net yes count
func (m *Manager) FindProposalByName(name string) (*Proposal, bool) {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	var best *Proposal
	for _, h := range sortedKeys(m.proposals) {
		p := m.proposals[h]
		if p.Name != name {
			continue
		}
		if best == nil || p.NetYes() > best.NetYes() {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

// GetAllProposals returns copies of all active proposals ordered by net yes
// votes
func (m *Manager) GetAllProposals() []*Proposal {
	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	ret := make([]*Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		p.CleanAndRemove(m.config.Registry)
		ret = append(ret, p)
	}
	slices.SortFunc(ret, compareHigherYes)
	for i, p := range ret {
		ret[i] = p.Clone()
	}
	return ret
}

// GetBudget derives the funded proposal set for the next superblock. Every
// active proposal has its allotment updated, with zero for proposals that
// are not funded.
func (m *Manager) GetBudget() []*Proposal {
	height := m.Height()
	if height <= 0 {
		return nil
	}
	params := m.config.Params
	blockStart := params.NextSuperblock(height)
	blockEnd := blockStart + params.BudgetCycleBlocks - 1
	enabled := m.config.Registry.CountEnabled()
	totalBudget := params.TotalBudget(blockStart)
	now := m.now()

	m.proposalsMu.Lock()
	defer m.proposalsMu.Unlock()
	sorted := make([]*Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		p.CleanAndRemove(m.config.Registry)
		sorted = append(sorted, p)
	}
	slices.SortFunc(sorted, compareHigherYes)
	var allocated int64
	var ret []*Proposal
	for _, p := range sorted {
		if !p.IsPassing(params, blockStart, blockEnd, enabled, now) {
			p.allotted = 0
			continue
		}
		if allocated+p.Amount > totalBudget {
			p.allotted = 0
			m.logger.Debug(
				"proposal passing but no budget left",
				"name", p.Name,
				"amount", p.Amount,
				"allocated", allocated,
			)
			continue
		}
		p.allotted = p.Amount
		allocated += p.Amount
		ret = append(ret, p.Clone())
	}
	return ret
}

// GetFinalizedBudgets returns copies of all active finalized budgets ordered
// by vote count
func (m *Manager) GetFinalizedBudgets() []*FinalizedBudget {
	m.budgetsMu.Lock()
	defer m.budgetsMu.Unlock()
	ret := make([]*FinalizedBudget, 0, len(m.finalizedBudgets))
	for _, f := range m.finalizedBudgets {
		ret = append(ret, f)
	}
	slices.SortFunc(ret, compareHigherVotes)
	for i, f := range ret {
		ret[i] = f.Clone()
	}
	return ret
}

// Counts summarizes the ledger sizes
type Counts struct {
	Proposals            int
	SeenProposals        int
	FinalizedBudgets     int
	SeenFinalizedBudgets int
	ProposalVotes        int
	OrphanProposalVotes  int
	FinalizedVotes       int
	OrphanFinalizedVotes int
	ImmatureProposals    int
	ImmatureFinalized    int
}

func (m *Manager) Counts() Counts {
	var ret Counts
	m.proposalsMu.Lock()
	ret.Proposals = len(m.proposals)
	ret.SeenProposals = len(m.seenProposals)
	ret.ImmatureProposals = len(m.immatureProposals)
	m.proposalsMu.Unlock()
	m.budgetsMu.Lock()
	ret.FinalizedBudgets = len(m.finalizedBudgets)
	ret.SeenFinalizedBudgets = len(m.seenFinalizedBudgets)
	ret.ImmatureFinalized = len(m.immatureFinalizedBudgets)
	m.budgetsMu.Unlock()
	m.votesMu.Lock()
	ret.ProposalVotes = len(m.seenProposalVotes)
	ret.OrphanProposalVotes = len(m.orphanProposalVotes)
	m.votesMu.Unlock()
	m.finalizedVotesMu.Lock()
	ret.FinalizedVotes = len(m.seenFinalizedVotes)
	ret.OrphanFinalizedVotes = len(m.orphanFinalizedVotes)
	m.finalizedVotesMu.Unlock()
	return ret
}

func (m *Manager) String() string {
	c := m.Counts()
	return fmt.Sprintf(
		"Proposals: %d (seen: %d) - Finalized Budgets: %d (seen: %d) - Proposal Votes: %d (orphan: %d) - Finalized Budget Votes: %d (orphan: %d)",
		c.Proposals,
		c.SeenProposals,
		c.FinalizedBudgets,
		c.SeenFinalizedBudgets,
		c.ProposalVotes,
		c.OrphanProposalVotes,
		c.FinalizedVotes,
		c.OrphanFinalizedVotes,
	)
}
