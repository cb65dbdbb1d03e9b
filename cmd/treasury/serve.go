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

	"github.com/blinklabs-io/treasury/internal/config"
	"github.com/blinklabs-io/treasury/internal/node"
	"github.com/spf13/cobra"
)

var serveFlags = struct {
	apiListen       string
	height          int64
	trustCollateral bool
}{}

func serveRun(cmd *cobra.Command, _ []string) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	if cmd.Flags().Changed("api-listen") {
		cfg.ApiListenAddress = serveFlags.apiListen
	}
	if cmd.Flags().Changed("height") {
		cfg.ChainHeight = serveFlags.height
	}
	if cmd.Flags().Changed("trust-collateral") {
		cfg.TrustCollateral = serveFlags.trustCollateral
	}
	logger := commonRun()
	// Run node
	return node.Run(cmd.Context(), cfg, logger)
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the budget manager and query API",
		RunE:  serveRun,
	}
	cmd.Flags().
		StringVar(&serveFlags.apiListen, "api-listen", "", "query API listen address, empty disables the API")
	cmd.Flags().
		Int64Var(&serveFlags.height, "height", 0, "chain height to serve the budget at")
	cmd.Flags().
		BoolVar(&serveFlags.trustCollateral, "trust-collateral", false, "skip collateral checks")
	return cmd
}
