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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/blinklabs-io/launchpad/sale"
	"github.com/blinklabs-io/launchpad/vault"
	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
)

const (
	contributionKeyPrefix = "contribution/"
	claimRecordKeyPrefix  = "claim/"
)

func contributionKey(account string) []byte {
	return []byte(contributionKeyPrefix + account)
}

func claimRecordKey(account string) []byte {
	return []byte(claimRecordKeyPrefix + account)
}

// getBlob reads and JSON-decodes a blob into dest. Returns false with no
// error when the key does not exist.
func (d *Database) getBlob(key []byte, dest any) (bool, error) {
	err := d.blob.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// putBlob JSON-encodes and writes a blob
func (d *Database) putBlob(key []byte, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return d.blob.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// GetContribution returns the stored contribution record for an account,
// or nil when none exists
func (d *Database) GetContribution(account string) (*sale.Contribution, error) {
	var ret sale.Contribution
	found, err := d.getBlob(contributionKey(account), &ret)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ret, nil
}

// PutContribution stores the contribution record for an account
func (d *Database) PutContribution(account string, c *sale.Contribution) error {
	return d.putBlob(contributionKey(account), c)
}

// ListContributions returns all stored contribution records keyed by
// account
func (d *Database) ListContributions() (map[string]*sale.Contribution, error) {
	ret := make(map[string]*sale.Contribution)
	err := d.blob.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(contributionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			account := string(item.Key()[len(contributionKeyPrefix):])
			var c sale.Contribution
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			ret[account] = &c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// GetClaimRecord returns the stored claim record for an account, or nil
// when none exists
func (d *Database) GetClaimRecord(account string) (*vault.ClaimRecord, error) {
	var ret vault.ClaimRecord
	found, err := d.getBlob(claimRecordKey(account), &ret)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ret, nil
}

// PutClaimRecord stores the claim record for an account
func (d *Database) PutClaimRecord(account string, r *vault.ClaimRecord) error {
	return d.putBlob(claimRecordKey(account), r)
}

// GetSaleState returns the persisted sale state, or nil when the sale
// has never been persisted
func (d *Database) GetSaleState() (*sale.PersistentState, error) {
	var model SaleStateModel
	result := d.metadata.First(&model, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	var cfg sale.SaleConfig
	if len(model.ConfigJson) > 0 {
		if err := json.Unmarshal(model.ConfigJson, &cfg); err != nil {
			return nil, fmt.Errorf("decoding sale config: %w", err)
		}
	}
	totalRaised, err := parseBigInt(model.TotalRaised)
	if err != nil {
		return nil, err
	}
	totalSold, err := parseBigInt(model.TotalSold)
	if err != nil {
		return nil, err
	}
	withdrawable, err := parseBigInt(model.Withdrawable)
	if err != nil {
		return nil, err
	}
	var openedAt time.Time
	if model.OpenedAt > 0 {
		openedAt = time.Unix(model.OpenedAt, 0).UTC()
	}
	return &sale.PersistentState{
		State:        sale.State(model.State),
		Config:       cfg,
		ConfigSet:    model.ConfigSet,
		TotalRaised:  totalRaised,
		TotalSold:    totalSold,
		Withdrawable: withdrawable,
		Contributors: model.Contributors,
		OpenedAt:     openedAt,
	}, nil
}

// PutSaleState persists the sale's global state
func (d *Database) PutSaleState(ps *sale.PersistentState) error {
	cfgJson, err := json.Marshal(ps.Config)
	if err != nil {
		return fmt.Errorf("encoding sale config: %w", err)
	}
	var openedAt int64
	if !ps.OpenedAt.IsZero() {
		openedAt = ps.OpenedAt.Unix()
	}
	model := SaleStateModel{
		ID:           1,
		State:        int(ps.State),
		ConfigJson:   cfgJson,
		ConfigSet:    ps.ConfigSet,
		TotalRaised:  ps.TotalRaised.String(),
		TotalSold:    ps.TotalSold.String(),
		Withdrawable: ps.Withdrawable.String(),
		Contributors: ps.Contributors,
		OpenedAt:     openedAt,
	}
	return d.metadata.Save(&model).Error
}

// GetVaultState returns the persisted vault state, or nil when the
// vault has never been persisted
func (d *Database) GetVaultState() (*vault.PersistentState, error) {
	var model VaultStateModel
	result := d.metadata.First(&model, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	totalClaimed, err := parseBigInt(model.TotalClaimed)
	if err != nil {
		return nil, err
	}
	return &vault.PersistentState{
		ClaimingEnabled: model.ClaimingEnabled,
		Recovered:       model.Recovered,
		TotalClaimed:    totalClaimed,
	}, nil
}

// PutVaultState persists the vault's global state
func (d *Database) PutVaultState(ps *vault.PersistentState) error {
	model := VaultStateModel{
		ID:              1,
		ClaimingEnabled: ps.ClaimingEnabled,
		Recovered:       ps.Recovered,
		TotalClaimed:    ps.TotalClaimed.String(),
	}
	return d.metadata.Save(&model).Error
}

// LogContribution appends to the contribution history
func (d *Database) LogContribution(evt *sale.ContributionEvent) error {
	model := ContributionLogModel{
		Account:        evt.Account,
		AmountConsumed: evt.AmountConsumed.String(),
		Allocation:     evt.Allocation.String(),
		AveragePrice:   evt.AveragePrice.String(),
		SpotPriceAfter: evt.SpotPriceAfter.String(),
	}
	return d.metadata.Create(&model).Error
}

// ContributionLog returns the full contribution history in insertion
// order
func (d *Database) ContributionLog() ([]ContributionLogModel, error) {
	var ret []ContributionLogModel
	result := d.metadata.Order("id").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func parseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	ret, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed big integer: %q", s)
	}
	return ret, nil
}
