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

package sale

import (
	"math/big"

	"github.com/blinklabs-io/launchpad/event"
)

// Progress is a point-in-time snapshot of the sale
type Progress struct {
	Raised       *big.Int
	Sold         *big.Int
	Supply       *big.Int
	Price        *big.Int
	Contributors uint64
}

// Contribute prices and records a contribution for the given account.
// It returns the number of tokens allocated. Any part of the payment not
// consumed by the allocation (tier capacity or supply ran out, or price
// granularity left dust) is returned to the account through the treasury
// within the same operation.
//
// minTokens is the caller's slippage guard: if the computed allocation
// falls below it the whole operation fails with a SlippageError and no
// state changes.
func (s *Sale) Contribute(
	account string,
	amount *big.Int,
	minTokens *big.Int,
) (*big.Int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateOpen {
		return nil, &StateError{Op: "contribute", State: s.state}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, &LimitError{Reason: "contribution must be positive"}
	}
	now := s.clock()
	if !s.saleConfig.StartTime.IsZero() && now.Before(s.saleConfig.StartTime) {
		return nil, &LimitError{Reason: "sale has not started"}
	}
	if !s.saleConfig.EndTime.IsZero() && now.After(s.saleConfig.EndTime) {
		return nil, &LimitError{Reason: "sale has ended"}
	}
	if s.saleConfig.MinContribution != nil &&
		amount.Cmp(s.saleConfig.MinContribution) < 0 {
		return nil, &LimitError{
			Reason: "below minimum contribution",
			Limit:  s.saleConfig.MinContribution,
			Value:  amount,
		}
	}
	if s.saleConfig.MaxContribution != nil &&
		amount.Cmp(s.saleConfig.MaxContribution) > 0 {
		return nil, &LimitError{
			Reason: "above maximum contribution",
			Limit:  s.saleConfig.MaxContribution,
			Value:  amount,
		}
	}
	prev := s.contributions[account]
	if prev != nil && prev.Tokens.Sign() > 0 && !s.saleConfig.AllowMultiple {
		return nil, &LimitError{Reason: "repeat contribution not allowed"}
	}
	if s.saleConfig.MaxPerWallet != nil {
		cumulative := new(big.Int).Set(amount)
		if prev != nil {
			cumulative.Add(cumulative, prev.Amount)
		}
		if cumulative.Cmp(s.saleConfig.MaxPerWallet) > 0 {
			return nil, &LimitError{
				Reason: "wallet cap exceeded",
				Limit:  s.saleConfig.MaxPerWallet,
				Value:  cumulative,
			}
		}
	}
	if s.allocator.Remaining(s.totalSold).Sign() == 0 {
		return nil, &LimitError{Reason: "supply exhausted"}
	}
	alloc, err := s.allocator.Allocate(s.totalSold, amount)
	if err != nil {
		return nil, err
	}
	if minTokens != nil && alloc.Tokens.Cmp(minTokens) < 0 {
		return nil, &SlippageError{Min: minTokens, Got: alloc.Tokens}
	}
	// Commit ledger state
	firstAllocation := (prev == nil || prev.Tokens.Sign() == 0) &&
		alloc.Tokens.Sign() > 0
	entry := s.contributions[account]
	if entry == nil {
		entry = &Contribution{Amount: new(big.Int), Tokens: new(big.Int)}
		s.contributions[account] = entry
	}
	rollback := s.snapshotFor(account, entry)
	entry.Amount.Add(entry.Amount, alloc.Cost)
	entry.Tokens.Add(entry.Tokens, alloc.Tokens)
	s.totalRaised.Add(s.totalRaised, alloc.Cost)
	s.totalSold.Add(s.totalSold, alloc.Tokens)
	if firstAllocation {
		s.contributors++
	}
	spotAfter := s.allocator.SpotPrice(s.totalSold)
	evt := &ContributionEvent{
		Account:        account,
		AmountConsumed: new(big.Int).Set(alloc.Cost),
		Allocation:     new(big.Int).Set(alloc.Tokens),
		AveragePrice:   alloc.AveragePrice(),
		SpotPriceAfter: spotAfter,
	}
	if err := s.persistContribution(account, entry); err != nil {
		rollback()
		return nil, err
	}
	// Return the unconsumed payment
	excess := new(big.Int).Sub(amount, alloc.Cost)
	if excess.Sign() > 0 {
		if err := s.transfer(account, excess); err != nil {
			rollback()
			if perr := s.persistContribution(account, entry); perr != nil {
				s.logger.Error(
					"failed to persist contribution rollback",
					"component", "sale",
					"error", perr,
				)
			}
			return nil, err
		}
	}
	// Append to the durable history only once the contribution can no
	// longer fail, so a rolled-back attempt leaves no log row behind
	if s.store != nil {
		if err := s.store.LogContribution(evt); err != nil {
			s.logger.Error(
				"failed to append contribution log",
				"component", "sale",
				"account", account,
				"error", err,
			)
		}
	}
	s.metrics.contributionsTotal.Inc()
	s.metrics.amountRaised.Set(bigToFloat(s.totalRaised))
	s.metrics.tokensSold.Set(bigToFloat(s.totalSold))
	s.metrics.contributors.Set(float64(s.contributors))
	if s.eventBus != nil {
		for _, idx := range alloc.ExhaustedTranches {
			s.eventBus.Publish(
				TrancheExhaustedEventType,
				event.NewEvent(
					TrancheExhaustedEventType,
					TrancheExhaustedEvent{Index: idx},
				),
			)
		}
		s.eventBus.Publish(
			ContributionEventType,
			event.NewEvent(ContributionEventType, *evt),
		)
	}
	s.logger.Info(
		"contribution accepted",
		"component", "sale",
		"account", account,
		"consumed", alloc.Cost.String(),
		"allocated", alloc.Tokens.String(),
		"refunded", excess.String(),
	)
	return new(big.Int).Set(alloc.Tokens), nil
}

// snapshotFor captures the ledger state touched by a contribution and
// returns a function restoring it. Must be called with the mutex held.
func (s *Sale) snapshotFor(
	account string,
	entry *Contribution,
) func() {
	prevAmount := new(big.Int).Set(entry.Amount)
	prevTokens := new(big.Int).Set(entry.Tokens)
	prevRaised := new(big.Int).Set(s.totalRaised)
	prevSold := new(big.Int).Set(s.totalSold)
	prevContributors := s.contributors
	return func() {
		entry.Amount.Set(prevAmount)
		entry.Tokens.Set(prevTokens)
		s.totalRaised.Set(prevRaised)
		s.totalSold.Set(prevSold)
		s.contributors = prevContributors
	}
}

// persistContribution writes the account record and the global state
// through the store. Must be called with the mutex held.
func (s *Sale) persistContribution(
	account string,
	entry *Contribution,
) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.PutContribution(account, entry); err != nil {
		return err
	}
	return s.persist()
}

// Preview prices a hypothetical contribution without mutating any state.
// It shares the allocation path with Contribute, so the estimate always
// matches what an immediately executed contribution would receive. The
// second return value is the price impact: the spot price after the
// hypothetical allocation minus the current spot price.
func (s *Sale) Preview(amount *big.Int) (*big.Int, *big.Int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if amount == nil || amount.Sign() < 0 {
		return nil, nil, &LimitError{
			Reason: "preview amount must be non-negative",
		}
	}
	alloc, err := s.allocator.Allocate(s.totalSold, amount)
	if err != nil {
		return nil, nil, err
	}
	before := s.allocator.SpotPrice(s.totalSold)
	after := s.allocator.SpotPrice(
		new(big.Int).Add(s.totalSold, alloc.Tokens),
	)
	impact := new(big.Int).Sub(after, before)
	return alloc.Tokens, impact, nil
}

// CurrentPrice returns the scaled spot price at the current sold level
func (s *Sale) CurrentPrice() *big.Int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.allocator.SpotPrice(s.totalSold)
}

// Progress returns a snapshot of the sale's aggregate state
func (s *Sale) Progress() Progress {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Progress{
		Raised:       new(big.Int).Set(s.totalRaised),
		Sold:         new(big.Int).Set(s.totalSold),
		Supply:       s.allocator.TotalSupply(),
		Price:        s.allocator.SpotPrice(s.totalSold),
		Contributors: s.contributors,
	}
}

// Allocation returns the given account's allocated tokens. Unknown
// accounts read as zero.
func (s *Sale) Allocation(account string) *big.Int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if c, ok := s.contributions[account]; ok {
		return new(big.Int).Set(c.Tokens)
	}
	return new(big.Int)
}

// AmountContributed returns the given account's recorded payment.
// Unknown accounts read as zero.
func (s *Sale) AmountContributed(account string) *big.Int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if c, ok := s.contributions[account]; ok {
		return new(big.Int).Set(c.Amount)
	}
	return new(big.Int)
}

// TotalSold returns the cumulative tokens sold
func (s *Sale) TotalSold() *big.Int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return new(big.Int).Set(s.totalSold)
}
