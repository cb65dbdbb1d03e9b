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
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/treasury/chainparams"
)

// CollateralError describes why a collateral transaction was not accepted.
// Immature errors are structurally valid collateral that lacks depth.
type CollateralError struct {
	Reason        string
	Confirmations int64
	Immature      bool
}

func (e *CollateralError) Error() string {
	return e.Reason
}

// CollateralResult carries the chain facts gathered while checking collateral
type CollateralResult struct {
	Confirmations int64
	// BlockTime is zero when the transaction is not in the active chain
	BlockTime int64
}

// CollateralValidator confirms that a fee transaction commits to a
// governance object and is buried deeply enough
type CollateralValidator struct {
	chain  ChainOracle
	params *chainparams.Params
	logger *slog.Logger
}

func NewCollateralValidator(
	chain ChainOracle,
	params *chainparams.Params,
	logger *slog.Logger,
) *CollateralValidator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &CollateralValidator{
		chain:  chain,
		params: params,
		logger: logger,
	}
}

// Check validates the collateral transaction txHash against the expected
// commitment hash. The finalization flag selects the finalized budget fee.
// The result is populated as far as the checks progressed, even on error.
func (c *CollateralValidator) Check(
	txHash Hash,
	expected Hash,
	finalization bool,
) (CollateralResult, error) {
	var ret CollateralResult
	tx, blockHash, ok := c.chain.Transaction(txHash)
	if !ok {
		return ret, c.fail(
			fmt.Sprintf("can't find collateral tx %s", txHash),
		)
	}
	if len(tx.Outputs) == 0 {
		return ret, c.fail(
			fmt.Sprintf("collateral tx %s has no outputs", txHash),
		)
	}
	if tx.LockTime != 0 {
		return ret, c.fail(
			fmt.Sprintf("collateral tx %s has a lock time", txHash),
		)
	}
	minFee := c.params.ProposalFee
	if finalization {
		minFee = c.params.FinalizationFee
	}
	commitment := CommitmentScript(expected)
	found := false
	for _, out := range tx.Outputs {
		if !out.Script.IsNormalPaymentScript() && !out.Script.IsUnspendable() {
			return ret, c.fail(
				fmt.Sprintf("invalid script in collateral tx %s", txHash),
			)
		}
		if out.Script.Equal(commitment) && out.Value >= minFee {
			found = true
		}
	}
	if !found {
		return ret, c.fail(
			fmt.Sprintf(
				"couldn't find commitment to %s in collateral tx %s",
				expected,
				txHash,
			),
		)
	}
	conf := c.chain.InstantConfirmations(txHash)
	if !blockHash.IsZero() {
		if info, ok := c.chain.Block(blockHash); ok && info.Active {
			conf += c.chain.Height() - info.Height + 1
			ret.BlockTime = info.Time
		}
	}
	ret.Confirmations = conf
	if conf < c.params.BudgetFeeConfirmations {
		err := &CollateralError{
			Reason: fmt.Sprintf(
				"collateral requires at least %d confirmations - %d confirmations",
				c.params.BudgetFeeConfirmations,
				conf,
			),
			Confirmations: conf,
			Immature:      true,
		}
		c.logger.Debug(err.Reason, "component", "budget")
		return ret, err
	}
	return ret, nil
}

func (c *CollateralValidator) fail(reason string) error {
	c.logger.Debug(reason, "component", "budget")
	return &CollateralError{Reason: reason}
}
