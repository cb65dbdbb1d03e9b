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
	"github.com/spf13/cobra"
)

var verifyFlags = struct {
	file string
}{}

// runVerify checks the snapshot header, network and checksum and then
// decodes the body
func runVerify(
	w io.Writer,
	cfg *config.Config,
	file string,
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
	snap, err := budget.DecodeSnapshot(data, params.NetworkMagic)
	if err != nil {
		return fmt.Errorf("verify budget snapshot: %w", err)
	}
	fmt.Fprintf(
		w,
		"snapshot OK: network=%s bytes=%d proposals=%d finalized=%d proposal_votes=%d finalized_votes=%d\n",
		params.Name,
		len(data),
		len(snap.Proposals),
		len(snap.FinalizedBudgets),
		len(snap.SeenProposalVotes),
		len(snap.SeenFinalizedVotes),
	)
	return nil
}

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of a budget snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			return runVerify(
				cmd.OutOrStdout(),
				cfg,
				verifyFlags.file,
				discardLogger(),
			)
		},
	}
	cmd.Flags().
		StringVarP(&verifyFlags.file, "file", "f", "", "snapshot file to check instead of the configured store")
	return cmd
}
