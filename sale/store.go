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
	"time"
)

// PersistentState is the sale's global state as written to the store
type PersistentState struct {
	State        State      `json:"state"`
	Config       SaleConfig `json:"config"`
	ConfigSet    bool       `json:"configSet"`
	TotalRaised  *big.Int   `json:"totalRaised"`
	TotalSold    *big.Int   `json:"totalSold"`
	Withdrawable *big.Int   `json:"withdrawable"`
	Contributors uint64     `json:"contributors"`
	OpenedAt     time.Time  `json:"openedAt"`
}

// Store is the durable storage consumed by the sale engine. Reads for
// unknown keys return nil values rather than errors.
type Store interface {
	GetSaleState() (*PersistentState, error)
	PutSaleState(*PersistentState) error
	GetContribution(account string) (*Contribution, error)
	PutContribution(account string, c *Contribution) error
	ListContributions() (map[string]*Contribution, error)
	// LogContribution appends to the contribution history
	LogContribution(evt *ContributionEvent) error
}
