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

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/treasury/budget"
	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/internal/node"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var inspectFlags = struct {
	file        string
	height      int64
	masternodes int
}{}

type inspectReport struct {
	Network          string            `yaml:"network"`
	Height           int64             `yaml:"height"`
	NextSuperblock   int64             `yaml:"nextSuperblock"`
	TotalBudget      int64             `yaml:"totalBudget"`
	Summary          string            `yaml:"summary"`
	Proposals        []inspectProposal `yaml:"proposals"`
	Budget           []inspectFunded   `yaml:"budget"`
	FinalizedBudgets []inspectFinal    `yaml:"finalizedBudgets"`
}

type inspectProposal struct {
	Hash       string `yaml:"hash"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Payee      string `yaml:"payee"`
	Amount     int64  `yaml:"amount"`
	BlockStart int64  `yaml:"blockStart"`
	BlockEnd   int64  `yaml:"blockEnd"`
	Yeas       int    `yaml:"yeas"`
	Nays       int    `yaml:"nays"`
	Abstains   int    `yaml:"abstains"`
	Valid      bool   `yaml:"valid"`
	Reason     string `yaml:"reason,omitempty"`
}

type inspectFunded struct {
	Hash     string `yaml:"hash"`
	Name     string `yaml:"name"`
	Amount   int64  `yaml:"amount"`
	Allotted int64  `yaml:"allotted"`
}

type inspectFinal struct {
	Hash       string `yaml:"hash"`
	Name       string `yaml:"name"`
	BlockStart int64  `yaml:"blockStart"`
	Votes      int    `yaml:"votes"`
	Payout     int64  `yaml:"payout"`
	Proposals  string `yaml:"proposals"`
	Status     string `yaml:"status"`
	Valid      bool   `yaml:"valid"`
}

// memStore serves a snapshot that was already read into memory
type memStore []byte

func (s memStore) Load() ([]byte, error) { return s, nil }
func (s memStore) Save([]byte) error     { return errors.New("read-only snapshot") }

// loadManager restores a snapshot into a standalone budget manager pinned
// at height. Collateral is trusted since there is no chain index.
func loadManager(
	params *chainparams.Params,
	data []byte,
	height int64,
	masternodes int,
	logger *slog.Logger,
) (*budget.Manager, error) {
	mgr, err := budget.NewManager(budget.ManagerConfig{
		Params:          params,
		Chain:           node.NewStaticChain(params, height),
		Registry:        node.NewStaticRegistry(masternodes),
		Network:         node.NewNullNetwork(logger),
		Sync:            node.SyncedTracker{},
		Mode:            budget.BudgetModeNone,
		Logger:          logger,
		TrustCollateral: true,
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(memStore(data)); err != nil {
		return nil, err
	}
	return mgr, nil
}

func buildReport(mgr *budget.Manager) inspectReport {
	params := mgr.Params()
	height := mgr.Height()
	next := params.NextSuperblock(height)
	ret := inspectReport{
		Network:        params.Name,
		Height:         height,
		NextSuperblock: next,
		TotalBudget:    params.TotalBudget(next),
		Summary:        mgr.String(),
	}
	for _, p := range mgr.GetAllProposals() {
		ret.Proposals = append(ret.Proposals, inspectProposal{
			Hash:       p.Hash().String(),
			Name:       p.Name,
			URL:        p.URL,
			Payee:      p.Payee.String(),
			Amount:     p.Amount,
			BlockStart: p.BlockStart,
			BlockEnd:   p.BlockEnd,
			Yeas:       p.Yeas(),
			Nays:       p.Nays(),
			Abstains:   p.Abstains(),
			Valid:      p.IsValid(),
			Reason:     p.InvalidReason(),
		})
	}
	for _, p := range mgr.GetBudget() {
		ret.Budget = append(ret.Budget, inspectFunded{
			Hash:     p.Hash().String(),
			Name:     p.Name,
			Amount:   p.Amount,
			Allotted: p.Allotted(),
		})
	}
	for _, f := range mgr.GetFinalizedBudgets() {
		ret.FinalizedBudgets = append(ret.FinalizedBudgets, inspectFinal{
			Hash:       f.Hash().String(),
			Name:       f.Name,
			BlockStart: f.BlockStart,
			Votes:      f.VoteCount(),
			Payout:     f.TotalPayout(),
			Proposals:  f.ProposalsString(),
			Status:     mgr.GetFinalizedBudgetStatus(f.Hash()),
			Valid:      f.IsValid(),
		})
	}
	return ret
}

func runInspect(
	w io.Writer,
	cfg *config.Config,
	file string,
	height int64,
	masternodes int,
	logger *slog.Logger,
) error {
	params, err := chainparams.ByName(cfg.Network)
	if err != nil {
		return err
	}
	data, err := readSnapshot(cfg, file, logger)
	if err != nil {
		return fmt.Errorf("read budget snapshot: %w", err)
	}
	mgr, err := loadManager(params, data, height, masternodes, logger)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(buildReport(mgr)); err != nil {
		return err
	}
	return enc.Close()
}

func inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the proposals and budgets held in a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			height := cfg.ChainHeight
			if cmd.Flags().Changed("height") {
				height = inspectFlags.height
			}
			masternodes := cfg.MasternodeCount
			if cmd.Flags().Changed("masternodes") {
				masternodes = inspectFlags.masternodes
			}
			logger := discardLogger()
			if globalFlags.debug {
				logger = newLogger(true)
			}
			return runInspect(
				cmd.OutOrStdout(),
				cfg,
				inspectFlags.file,
				height,
				masternodes,
				logger,
			)
		},
	}
	cmd.Flags().
		StringVarP(&inspectFlags.file, "file", "f", "", "snapshot file to read instead of the configured store")
	cmd.Flags().
		Int64Var(&inspectFlags.height, "height", 0, "chain height to project the budget at")
	cmd.Flags().
		IntVar(&inspectFlags.masternodes, "masternodes", 0, "number of enabled masternodes")
	return cmd
}
