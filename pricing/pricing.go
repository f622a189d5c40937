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

package pricing

import (
	"fmt"
	"math/big"
)

// PriceDecimals is the number of decimal places used for scaled prices.
// A price of 1.0 payment units per token is stored as 10^18.
const PriceDecimals = 18

// PriceScale is 10^PriceDecimals. Payment owed for a token amount is
// tokens * price / PriceScale, always rounded down so that a contributor
// is never charged more than the exact integral.
var PriceScale = new(big.Int).Exp(
	big.NewInt(10),
	big.NewInt(PriceDecimals),
	nil,
)

// Allocation is the result of pricing a single contribution budget against
// the current sold level. Cost is the portion of the budget actually
// consumed; the remainder is returned to the contributor by the caller.
type Allocation struct {
	// Tokens is the number of sale tokens allocated
	Tokens *big.Int
	// Cost is the exact payment consumed for Tokens
	Cost *big.Int
	// ExhaustedTranches lists tranche indexes fully sold out by this
	// allocation, in the order they were crossed. Always empty for
	// curve pricing
	ExhaustedTranches []int
}

// Allocator prices contributions against a fixed token supply. Allocators
// are pure: they never hold the sold level themselves, so the same method
// serves both previews and executed contributions and the two cannot
// disagree.
type Allocator interface {
	// Allocate computes the allocation for the given budget starting
	// at the given sold level. The returned cost never exceeds budget.
	Allocate(sold, budget *big.Int) (*Allocation, error)
	// SpotPrice returns the scaled price per token at the given sold level
	SpotPrice(sold *big.Int) *big.Int
	// TotalSupply returns the total token supply on offer
	TotalSupply() *big.Int
	// Remaining returns the unsold token supply at the given sold level
	Remaining(sold *big.Int) *big.Int
	// Ready reports whether the allocator is fully configured for sale open
	Ready() bool
}

// ConfigError indicates invalid or incomplete pricing configuration
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pricing config: %s", e.Reason)
}

// mulDiv computes a * b / c rounded down without intermediate truncation
func mulDiv(a, b, c *big.Int) *big.Int {
	ret := new(big.Int).Mul(a, b)
	return ret.Quo(ret, c)
}

// averagePrice returns the scaled average price paid, or zero when no
// tokens were allocated
func averagePrice(cost, tokens *big.Int) *big.Int {
	if tokens.Sign() <= 0 {
		return new(big.Int)
	}
	return mulDiv(cost, PriceScale, tokens)
}

// AveragePrice returns the scaled average price implied by an allocation
func (a *Allocation) AveragePrice() *big.Int {
	return averagePrice(a.Cost, a.Tokens)
}
