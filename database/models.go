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

package database

import (
	"time"
)

// SaleStateModel is the singleton row holding the sale's global state.
// Big integers are stored as decimal strings and the sale config as
// JSON, since sqlite has no native representation for either.
type SaleStateModel struct {
	ID           uint   `gorm:"primarykey"`
	State        int    `gorm:"column:state"`
	ConfigJson   []byte `gorm:"column:config_json"`
	ConfigSet    bool   `gorm:"column:config_set"`
	TotalRaised  string `gorm:"column:total_raised"`
	TotalSold    string `gorm:"column:total_sold"`
	Withdrawable string `gorm:"column:withdrawable"`
	Contributors uint64 `gorm:"column:contributors"`
	OpenedAt     int64  `gorm:"column:opened_at"`
}

func (SaleStateModel) TableName() string {
	return "sale_state"
}

// VaultStateModel is the singleton row holding the vault's global state
type VaultStateModel struct {
	ID              uint   `gorm:"primarykey"`
	ClaimingEnabled bool   `gorm:"column:claiming_enabled"`
	Recovered       bool   `gorm:"column:recovered"`
	TotalClaimed    string `gorm:"column:total_claimed"`
}

func (VaultStateModel) TableName() string {
	return "vault_state"
}

// ContributionLogModel is an append-only record of accepted
// contributions
type ContributionLogModel struct {
	ID             uint      `gorm:"primarykey"`
	Account        string    `gorm:"index"`
	AmountConsumed string    `gorm:"column:amount_consumed"`
	Allocation     string    `gorm:"column:allocation"`
	AveragePrice   string    `gorm:"column:average_price"`
	SpotPriceAfter string    `gorm:"column:spot_price_after"`
	CreatedAt      time.Time `gorm:"index"`
}

func (ContributionLogModel) TableName() string {
	return "contribution_log"
}
