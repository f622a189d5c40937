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

// Refund pays back the account's recorded contribution. Permissionless,
// REFUNDING only. The recorded amount is zeroed and persisted before the
// transfer, so a repeat call finds nothing to refund.
func (s *Sale) Refund(account string) (*big.Int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateRefunding {
		return nil, &StateError{Op: "refund", State: s.state}
	}
	entry := s.contributions[account]
	if entry == nil || entry.Amount.Sign() == 0 {
		return nil, &LimitError{Reason: "nothing to refund"}
	}
	amount := new(big.Int).Set(entry.Amount)
	entry.Amount.SetInt64(0)
	s.totalRaised.Sub(s.totalRaised, amount)
	if err := s.persistContribution(account, entry); err != nil {
		entry.Amount.Set(amount)
		s.totalRaised.Add(s.totalRaised, amount)
		return nil, err
	}
	if err := s.transfer(account, amount); err != nil {
		// Restore the record so the refund can be retried
		entry.Amount.Set(amount)
		s.totalRaised.Add(s.totalRaised, amount)
		if perr := s.persistContribution(account, entry); perr != nil {
			s.logger.Error(
				"failed to persist refund rollback",
				"component", "sale",
				"error", perr,
			)
		}
		return nil, err
	}
	s.metrics.refundsTotal.Inc()
	s.metrics.amountRaised.Set(bigToFloat(s.totalRaised))
	if s.eventBus != nil {
		s.eventBus.Publish(
			RefundEventType,
			event.NewEvent(
				RefundEventType,
				RefundEvent{Account: account, Amount: amount},
			),
		)
	}
	s.logger.Info(
		"contribution refunded",
		"component", "sale",
		"account", account,
		"amount", amount.String(),
	)
	return amount, nil
}
