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

package database_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/blinklabs-io/launchpad/database"
	"github.com/blinklabs-io/launchpad/pricing"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/blinklabs-io/launchpad/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAllocator(t *testing.T) *pricing.TrancheAllocator {
	t.Helper()
	allocator := pricing.NewTrancheAllocator()
	price := new(big.Int).Mul(big.NewInt(1), pricing.PriceScale)
	require.NoError(t, allocator.AddTranche(big.NewInt(200), price))
	return allocator
}

func newSaleOn(t *testing.T, db *database.Database) *sale.Sale {
	t.Helper()
	s, err := sale.New(sale.Config{
		PromRegistry: prometheus.NewRegistry(),
		Allocator:    testAllocator(t),
		Treasury:     sale.NewBookTreasury(),
		Store:        db,
	})
	require.NoError(t, err)
	return s
}

// A sale picks up where it left off after a process restart
func TestSaleResumesFromDatabase(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)

	s := newSaleOn(t, db)
	require.NoError(t, s.SetSaleConfig(sale.SaleConfig{
		AllowMultiple:     true,
		EmergencyDeadline: 24 * time.Hour,
	}))
	require.NoError(t, s.Open())
	_, err = s.Contribute("alice", big.NewInt(50), nil)
	require.NoError(t, err)
	_, err = s.Contribute("bob", big.NewInt(30), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close()
	resumed := newSaleOn(t, db)

	assert.Equal(t, sale.StateOpen, resumed.State())
	assert.Equal(t, int64(50), resumed.AmountContributed("alice").Int64())
	assert.Equal(t, int64(30), resumed.AmountContributed("bob").Int64())
	progress := resumed.Progress()
	assert.Equal(t, int64(80), progress.Raised.Int64())
	assert.Equal(t, int64(80), progress.Sold.Int64())
	assert.Equal(t, uint64(2), progress.Contributors)

	// The resumed sale continues accepting contributions
	_, err = resumed.Contribute("alice", big.NewInt(20), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(70), resumed.AmountContributed("alice").Int64())
}

type rejectTreasury struct{}

func (rejectTreasury) Transfer(to string, amount *big.Int) error {
	return errors.New("treasury unavailable")
}

// A contribution rolled back by a failed excess transfer must leave no
// row in the durable contribution history
func TestNoLogRowForRolledBackContribution(t *testing.T) {
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()

	// 100-token supply at price 1, so a 150 budget forces an excess
	// transfer, which the treasury rejects
	allocator := pricing.NewTrancheAllocator()
	price := new(big.Int).Mul(big.NewInt(1), pricing.PriceScale)
	require.NoError(t, allocator.AddTranche(big.NewInt(100), price))
	s, err := sale.New(sale.Config{
		PromRegistry: prometheus.NewRegistry(),
		Allocator:    allocator,
		Treasury:     rejectTreasury{},
		Store:        db,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSaleConfig(sale.SaleConfig{
		AllowMultiple:     true,
		EmergencyDeadline: 24 * time.Hour,
	}))
	require.NoError(t, s.Open())

	var transferErr *sale.TransferError
	_, err = s.Contribute("alice", big.NewInt(150), nil)
	require.True(t, errors.As(err, &transferErr))
	assert.Equal(t, int64(0), s.AmountContributed("alice").Int64())

	log, err := db.ContributionLog()
	require.NoError(t, err)
	assert.Empty(t, log)

	// A fully consumed budget needs no excess transfer and does get
	// its history row
	_, err = s.Contribute("alice", big.NewInt(100), nil)
	require.NoError(t, err)
	log, err = db.ContributionLog()
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "alice", log[0].Account)
	assert.Equal(t, "100", log[0].AmountConsumed)
}

type resumeToken struct {
	balance *big.Int
}

func (m *resumeToken) Balance() (*big.Int, error) {
	return new(big.Int).Set(m.balance), nil
}

func (m *resumeToken) Transfer(to string, amount *big.Int) error {
	m.balance.Sub(m.balance, amount)
	return nil
}

type staticSource struct {
	allocations map[string]int64
}

func (s *staticSource) Allocation(account string) *big.Int {
	return big.NewInt(s.allocations[account])
}

func (s *staticSource) TotalSold() *big.Int {
	total := int64(0)
	for _, v := range s.allocations {
		total += v
	}
	return big.NewInt(total)
}

// A claim completed before a restart stays claimed after it
func TestVaultClaimSurvivesRestart(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)

	source := &staticSource{allocations: map[string]int64{"alice": 100}}
	token := &resumeToken{balance: big.NewInt(100)}
	newVault := func() *vault.Vault {
		v, err := vault.New(vault.Config{
			PromRegistry: prometheus.NewRegistry(),
			Source:       source,
			Token:        token,
			Store:        db,
		})
		require.NoError(t, err)
		return v
	}

	v := newVault()
	require.NoError(t, v.EnableClaiming())
	_, err = v.Claim("alice")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close()
	resumed := newVault()

	// Claiming is still enabled and alice cannot claim twice
	assert.Equal(t, int64(0), resumed.Claimable("alice").Int64())
	_, err = resumed.Claim("alice")
	require.ErrorIs(t, err, vault.ErrAlreadyClaimed)
}
