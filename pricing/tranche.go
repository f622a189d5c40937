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

// Tranche is a fixed-price tier with a finite token capacity
type Tranche struct {
	// Supply is the token capacity of the tranche
	Supply *big.Int
	// Price is the scaled price per token within the tranche
	Price *big.Int
}

// TrancheAllocator prices contributions against an ordered list of
// ascending fixed-price tiers. Tiers are consumed in order; a single
// contribution may span multiple tiers.
type TrancheAllocator struct {
	tranches []Tranche
}

// NewTrancheAllocator creates an empty tranche allocator. Tranches are
// added with AddTranche before the sale opens.
func NewTrancheAllocator() *TrancheAllocator {
	return &TrancheAllocator{}
}

// AddTranche appends a price tier. Prices must be strictly increasing
// across tiers and both supply and price must be positive.
func (t *TrancheAllocator) AddTranche(supply, price *big.Int) error {
	if supply == nil || supply.Sign() <= 0 {
		return &ConfigError{Reason: "tranche supply must be positive"}
	}
	if price == nil || price.Sign() <= 0 {
		return &ConfigError{Reason: "tranche price must be positive"}
	}
	if len(t.tranches) > 0 {
		last := t.tranches[len(t.tranches)-1]
		if price.Cmp(last.Price) <= 0 {
			return &ConfigError{
				Reason: "tranche prices must be strictly increasing",
			}
		}
	}
	t.tranches = append(t.tranches, Tranche{
		Supply: new(big.Int).Set(supply),
		Price:  new(big.Int).Set(price),
	})
	return nil
}

// Clear removes all configured tranches
func (t *TrancheAllocator) Clear() {
	t.tranches = nil
}

// Tranches returns a copy of the configured tiers
func (t *TrancheAllocator) Tranches() []Tranche {
	ret := make([]Tranche, 0, len(t.tranches))
	for _, tr := range t.tranches {
		ret = append(ret, Tranche{
			Supply: new(big.Int).Set(tr.Supply),
			Price:  new(big.Int).Set(tr.Price),
		})
	}
	return ret
}

func (t *TrancheAllocator) Ready() bool {
	return len(t.tranches) > 0
}

func (t *TrancheAllocator) TotalSupply() *big.Int {
	ret := new(big.Int)
	for _, tr := range t.tranches {
		ret.Add(ret, tr.Supply)
	}
	return ret
}

func (t *TrancheAllocator) Remaining(sold *big.Int) *big.Int {
	ret := new(big.Int).Sub(t.TotalSupply(), sold)
	if ret.Sign() < 0 {
		ret.SetInt64(0)
	}
	return ret
}

// SpotPrice returns the price of the tier containing the next unsold
// token, or the final tier's price once everything is sold
func (t *TrancheAllocator) SpotPrice(sold *big.Int) *big.Int {
	cumulative := new(big.Int)
	for _, tr := range t.tranches {
		cumulative.Add(cumulative, tr.Supply)
		if sold.Cmp(cumulative) < 0 {
			return new(big.Int).Set(tr.Price)
		}
	}
	if len(t.tranches) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(t.tranches[len(t.tranches)-1].Price)
}

// Allocate walks tiers starting at the one containing the current sold
// position. Within a tier it buys as many tokens as the remaining budget
// affords; if that exceeds the tier's remaining capacity it consumes the
// tier entirely and moves to the next. Allocation stops when the budget
// no longer buys a whole token or the tiers run out; the unconsumed
// budget is the caller's to return (partial fill).
func (t *TrancheAllocator) Allocate(sold, budget *big.Int) (*Allocation, error) {
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
	remaining := new(big.Int).Set(budget)
	cumulative := new(big.Int)
	for idx, tr := range t.tranches {
		tierEnd := new(big.Int).Add(cumulative, tr.Supply)
		// Skip tiers already fully sold
		position := new(big.Int).Add(sold, alloc.Tokens)
		if position.Cmp(tierEnd) >= 0 {
			cumulative = tierEnd
			continue
		}
		capacity := new(big.Int).Sub(tierEnd, position)
		affordable := mulDiv(remaining, PriceScale, tr.Price)
		if affordable.Sign() <= 0 {
			// Budget no longer buys a whole token at this price
			break
		}
		if affordable.Cmp(capacity) < 0 {
			// Fits within this tier
			cost := mulDiv(affordable, tr.Price, PriceScale)
			alloc.Tokens.Add(alloc.Tokens, affordable)
			alloc.Cost.Add(alloc.Cost, cost)
			remaining.Sub(remaining, cost)
			break
		}
		// Consume the tier entirely and continue into the next
		cost := mulDiv(capacity, tr.Price, PriceScale)
		alloc.Tokens.Add(alloc.Tokens, capacity)
		alloc.Cost.Add(alloc.Cost, cost)
		remaining.Sub(remaining, cost)
		alloc.ExhaustedTranches = append(alloc.ExhaustedTranches, idx)
		cumulative = tierEnd
	}
	return alloc, nil
}
