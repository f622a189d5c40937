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

const (
	ContributionEventType     event.EventType = "sale.contribution"
	StateChangeEventType      event.EventType = "sale.state_change"
	TrancheExhaustedEventType event.EventType = "sale.tranche_exhausted"
	RefundEventType           event.EventType = "sale.refund"
)

// ContributionEvent carries the outcome of an accepted contribution
type ContributionEvent struct {
	Account        string
	AmountConsumed *big.Int
	Allocation     *big.Int
	AveragePrice   *big.Int
	SpotPriceAfter *big.Int
}

// StateChangeEvent carries a lifecycle transition
type StateChangeEvent struct {
	From State
	To   State
}

// TrancheExhaustedEvent fires once per tranche fully sold out
// mid-contribution
type TrancheExhaustedEvent struct {
	Index int
}

// RefundEvent carries a completed refund payout
type RefundEvent struct {
	Account string
	Amount  *big.Int
}
