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
	"math/big"
)

// CurveAllocator prices contributions along a continuous linear bonding
// curve. The spot price at sold level y is
//
//	price(y) = startPrice + (endPrice - startPrice) * y / totalSupply
//
// and the cost of Z tokens starting at y is the trapezoidal integral
//
//	cost(y, Z) = startPrice*Z + (endPrice-startPrice)*Z*(2y+Z)/(2*totalSupply)
//
// with prices scaled by PriceScale. All rounding is downward, so the
// engine can under-allocate by at most one token per contribution but
// never overcharges.
type CurveAllocator struct {
	startPrice  *big.Int
	endPrice    *big.Int
	totalSupply *big.Int
}

// NewCurveAllocator creates a curve allocator. The curve parameters are
// set once with SetCurve before the sale opens.
func NewCurveAllocator() *CurveAllocator {
	return &CurveAllocator{}
}

// SetCurve configures the curve. The end price must exceed the start
// price and the supply must be positive.
func (c *CurveAllocator) SetCurve(startPrice, endPrice, totalSupply *big.Int) error {
	if startPrice == nil || startPrice.Sign() <= 0 {
		return &ConfigError{Reason: "curve start price must be positive"}
	}
	if endPrice == nil || endPrice.Cmp(startPrice) <= 0 {
		return &ConfigError{
			Reason: "curve end price must exceed start price",
		}
	}
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return &ConfigError{Reason: "curve supply must be positive"}
	}
	c.startPrice = new(big.Int).Set(startPrice)
	c.endPrice = new(big.Int).Set(endPrice)
	c.totalSupply = new(big.Int).Set(totalSupply)
	return nil
}

func (c *CurveAllocator) Ready() bool {
	return c.totalSupply != nil
}

func (c *CurveAllocator) TotalSupply() *big.Int {
	if c.totalSupply == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.totalSupply)
}

func (c *CurveAllocator) Remaining(sold *big.Int) *big.Int {
	ret := new(big.Int).Sub(c.TotalSupply(), sold)
	if ret.Sign() < 0 {
		ret.SetInt64(0)
	}
	return ret
}

func (c *CurveAllocator) SpotPrice(sold *big.Int) *big.Int {
	if c.totalSupply == nil {
		return new(big.Int)
	}
	slope := new(big.Int).Sub(c.endPrice, c.startPrice)
	ret := mulDiv(slope, sold, c.totalSupply)
	return ret.Add(ret, c.startPrice)
}

// CostFor returns the exact (floored) cost of tokens starting at the
// given sold level. The multiplication happens before the single final
// division so no intermediate truncation accumulates.
func (c *CurveAllocator) CostFor(sold, tokens *big.Int) *big.Int {
	if c.totalSupply == nil || tokens.Sign() <= 0 {
		return new(big.Int)
	}
	slope := new(big.Int).Sub(c.endPrice, c.startPrice)
	// 2*S*P0*Z
	flat := new(big.Int).Mul(c.totalSupply, c.startPrice)
	flat.Mul(flat, tokens)
	flat.Lsh(flat, 1)
	// slope*Z*(2y+Z)
	ramp := new(big.Int).Lsh(sold, 1)
	ramp.Add(ramp, tokens)
	ramp.Mul(ramp, tokens)
	ramp.Mul(ramp, slope)
	// (flat + ramp) / (2*S*SCALE)
	ret := new(big.Int).Add(flat, ramp)
	div := new(big.Int).Lsh(c.totalSupply, 1)
	div.Mul(div, PriceScale)
	return ret.Quo(ret, div)
}

// Allocate solves the cost integral for the token amount purchasable
// with the given budget, starting at the given sold level. Multiplying
// the quadratic through by 2*totalSupply keeps the coefficients integral:
//
//	slope*Z^2 + B*Z - 2*S*budget*SCALE = 0
//	B = 2*(S*startPrice + slope*sold)
//
// taking the positive root with a floored integer square root. The
// resulting Z is then re-priced through CostFor and that exact cost is
// what gets consumed; the root alone can overcharge by a rounding unit,
// so the re-pricing step is not optional.
func (c *CurveAllocator) Allocate(sold, budget *big.Int) (*Allocation, error) {
	if c.totalSupply == nil {
		return nil, &ConfigError{Reason: "curve not configured"}
	}
	if sold == nil || sold.Sign() < 0 {
		return nil, &ConfigError{Reason: "sold level must be non-negative"}
	}
	if budget == nil || budget.Sign() < 0 {
		return nil, &ConfigError{Reason: "budget must be non-negative"}
	}
	alloc := &Allocation{
		Tokens: new(big.Int),
		Cost:   new(big.Int),
	}
	remaining := c.Remaining(sold)
	if remaining.Sign() == 0 || budget.Sign() == 0 {
		return alloc, nil
	}
	slope := new(big.Int).Sub(c.endPrice, c.startPrice)
	// B = 2*(S*P0 + slope*y)
	b := new(big.Int).Mul(c.totalSupply, c.startPrice)
	b.Add(b, new(big.Int).Mul(slope, sold))
	b.Lsh(b, 1)
	// disc = B^2 + 8*slope*S*budget*SCALE
	disc := new(big.Int).Mul(b, b)
	tail := new(big.Int).Mul(slope, c.totalSupply)
	tail.Mul(tail, budget)
	tail.Mul(tail, PriceScale)
	tail.Lsh(tail, 3)
	disc.Add(disc, tail)
	// Z = (sqrt(disc) - B) / (2*slope), rounded down
	tokens := disc.Sqrt(disc)
	tokens.Sub(tokens, b)
	if tokens.Sign() <= 0 {
		return alloc, nil
	}
	tokens.Quo(tokens, new(big.Int).Lsh(slope, 1))
	if tokens.Cmp(remaining) > 0 {
		tokens.Set(remaining)
	}
	// Re-price the computed amount; the consumed cost must never
	// exceed the budget
	cost := c.CostFor(sold, tokens)
	for tokens.Sign() > 0 && cost.Cmp(budget) > 0 {
		tokens.Sub(tokens, big.NewInt(1))
		cost = c.CostFor(sold, tokens)
	}
	if tokens.Sign() <= 0 {
		return alloc, nil
	}
	alloc.Tokens = tokens
	alloc.Cost = cost
	return alloc, nil
}
