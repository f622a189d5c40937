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

package sale_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/blinklabs-io/launchpad/pricing"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContributeRequiresOpen(t *testing.T) {
	s, _, _ := newTestSale(t, testSaleConfig())
	_, err := s.Contribute("alice", big.NewInt(10), nil)
	var stateErr *sale.StateError
	require.True(t, errors.As(err, &stateErr))
}

func TestContributePositiveAmount(t *testing.T) {
	s, _, _ := newOpenSale(t)
	var limitErr *sale.LimitError
	_, err := s.Contribute("alice", big.NewInt(0), nil)
	require.True(t, errors.As(err, &limitErr))
	_, err = s.Contribute("alice", big.NewInt(-5), nil)
	require.True(t, errors.As(err, &limitErr))
	_, err = s.Contribute("alice", nil, nil)
	require.True(t, errors.As(err, &limitErr))
}

func TestContributeTimeWindow(t *testing.T) {
	clock := newTestClock()
	cfg := testSaleConfig()
	cfg.StartTime = clock.Now().Add(time.Hour)
	cfg.EndTime = clock.Now().Add(2 * time.Hour)
	s, _, clock := newTestSale(t, cfg)
	require.NoError(t, s.Open())

	var limitErr *sale.LimitError
	_, err := s.Contribute("alice", big.NewInt(10), nil)
	require.True(t, errors.As(err, &limitErr))

	clock.Advance(90 * time.Minute)
	_, err = s.Contribute("alice", big.NewInt(10), nil)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = s.Contribute("alice", big.NewInt(10), nil)
	require.True(t, errors.As(err, &limitErr))
}

func TestContributeMinMax(t *testing.T) {
	cfg := testSaleConfig()
	cfg.MinContribution = big.NewInt(10)
	cfg.MaxContribution = big.NewInt(100)
	s, _, _ := newTestSale(t, cfg)
	require.NoError(t, s.Open())

	var limitErr *sale.LimitError
	_, err := s.Contribute("alice", big.NewInt(9), nil)
	require.True(t, errors.As(err, &limitErr))
	_, err = s.Contribute("alice", big.NewInt(101), nil)
	require.True(t, errors.As(err, &limitErr))
	_, err = s.Contribute("alice", big.NewInt(10), nil)
	require.NoError(t, err)
	_, err = s.Contribute("alice", big.NewInt(100), nil)
	require.NoError(t, err)
}

func TestContributeWalletCap(t *testing.T) {
	cfg := testSaleConfig()
	cfg.MaxPerWallet = big.NewInt(5)
	s, _, _ := newTestSale(t, cfg)
	require.NoError(t, s.Open())

	_, err := s.Contribute("alice", big.NewInt(3), nil)
	require.NoError(t, err)

	// The cap applies to the cumulative recorded amount, not per call
	var limitErr *sale.LimitError
	_, err = s.Contribute("alice", big.NewInt(3), nil)
	require.True(t, errors.As(err, &limitErr))

	_, err = s.Contribute("alice", big.NewInt(2), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.AmountContributed("alice").Int64())

	// Other accounts have their own cap
	_, err = s.Contribute("bob", big.NewInt(5), nil)
	require.NoError(t, err)
}

func TestContributeRepeatDisallowed(t *testing.T) {
	cfg := testSaleConfig()
	cfg.AllowMultiple = false
	s, _, _ := newTestSale(t, cfg)
	require.NoError(t, s.Open())

	_, err := s.Contribute("alice", big.NewInt(10), nil)
	require.NoError(t, err)
	var limitErr *sale.LimitError
	_, err = s.Contribute("alice", big.NewInt(10), nil)
	require.True(t, errors.As(err, &limitErr))
	_, err = s.Contribute("bob", big.NewInt(10), nil)
	require.NoError(t, err)
}

func TestContributeSpansTranches(t *testing.T) {
	s, treasury, _ := newOpenSale(t)
	// Budget 150 buys the full first tier (100 at price 1) plus 25 from
	// the second (price 2)
	tokens, err := s.Contribute("alice", big.NewInt(150), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(125), tokens.Int64())
	assert.Equal(t, int64(150), s.AmountContributed("alice").Int64())
	assert.Equal(t, int64(125), s.Allocation("alice").Int64())
	assert.Equal(t, int64(0), treasury.BalanceOf("alice").Int64())
	assert.Equal(
		t,
		scalePrice(2).String(),
		s.CurrentPrice().String(),
	)
}

func TestContributeExcessReturned(t *testing.T) {
	s, treasury, _ := newOpenSale(t)
	// Total cost of the whole supply is 300; the extra 50 comes back
	tokens, err := s.Contribute("alice", big.NewInt(350), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), tokens.Int64())
	assert.Equal(t, int64(300), s.AmountContributed("alice").Int64())
	assert.Equal(t, int64(50), treasury.BalanceOf("alice").Int64())

	var limitErr *sale.LimitError
	_, err = s.Contribute("bob", big.NewInt(10), nil)
	require.True(t, errors.As(err, &limitErr))
}

func TestContributeSlippage(t *testing.T) {
	s, _, _ := newOpenSale(t)
	var slippageErr *sale.SlippageError
	_, err := s.Contribute("alice", big.NewInt(50), big.NewInt(51))
	require.True(t, errors.As(err, &slippageErr))
	// The failed attempt changed nothing
	assert.Equal(t, int64(0), s.AmountContributed("alice").Int64())
	assert.Equal(t, int64(0), s.TotalSold().Int64())

	tokens, err := s.Contribute("alice", big.NewInt(50), big.NewInt(50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), tokens.Int64())
}

func TestContributeRollbackOnFailedExcessTransfer(t *testing.T) {
	clock := newTestClock()
	s, err := sale.New(sale.Config{
		PromRegistry: prometheus.NewRegistry(),
		Allocator:    testAllocator(t),
		Treasury:     failTreasury{},
		Clock:        clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSaleConfig(testSaleConfig()))
	require.NoError(t, s.Open())

	// 350 over a 300-cost supply forces an excess transfer, which fails
	var transferErr *sale.TransferError
	_, err = s.Contribute("alice", big.NewInt(350), nil)
	require.True(t, errors.As(err, &transferErr))
	assert.Equal(t, int64(0), s.AmountContributed("alice").Int64())
	assert.Equal(t, int64(0), s.Allocation("alice").Int64())
	assert.Equal(t, int64(0), s.TotalSold().Int64())
	progress := s.Progress()
	assert.Equal(t, int64(0), progress.Raised.Int64())
	assert.Equal(t, uint64(0), progress.Contributors)
}

func TestPreviewMatchesContribute(t *testing.T) {
	s, _, _ := newOpenSale(t)
	for _, amount := range []int64{10, 99, 150, 299} {
		tokens, _, err := s.Preview(big.NewInt(amount))
		require.NoError(t, err)
		got, err := s.Contribute("alice", big.NewInt(amount), nil)
		require.NoError(t, err)
		if tokens.Cmp(got) != 0 {
			t.Fatalf(
				"preview of %d returned %s but contribute returned %s",
				amount,
				tokens.String(),
				got.String(),
			)
		}
	}
}

func TestPreviewMatchesContributeCurve(t *testing.T) {
	clock := newTestClock()
	allocator := pricing.NewCurveAllocator()
	require.NoError(
		t,
		allocator.SetCurve(scalePrice(1), scalePrice(2), big.NewInt(1000)),
	)
	s, err := sale.New(sale.Config{
		PromRegistry: prometheus.NewRegistry(),
		Allocator:    allocator,
		Treasury:     sale.NewBookTreasury(),
		Clock:        clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSaleConfig(testSaleConfig()))
	require.NoError(t, s.Open())
	for _, amount := range []int64{7, 100, 333, 500} {
		tokens, _, err := s.Preview(big.NewInt(amount))
		require.NoError(t, err)
		got, err := s.Contribute("alice", big.NewInt(amount), nil)
		require.NoError(t, err)
		if tokens.Cmp(got) != 0 {
			t.Fatalf(
				"preview of %d returned %s but contribute returned %s",
				amount,
				tokens.String(),
				got.String(),
			)
		}
	}
}

func TestPreviewPriceImpact(t *testing.T) {
	clock := newTestClock()
	allocator := pricing.NewCurveAllocator()
	require.NoError(
		t,
		allocator.SetCurve(scalePrice(1), scalePrice(2), big.NewInt(1000)),
	)
	s, err := sale.New(sale.Config{
		PromRegistry: prometheus.NewRegistry(),
		Allocator:    allocator,
		Treasury:     sale.NewBookTreasury(),
		Clock:        clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSaleConfig(testSaleConfig()))
	require.NoError(t, s.Open())

	tokens, impact, err := s.Preview(big.NewInt(100))
	require.NoError(t, err)
	assert.True(t, tokens.Sign() > 0)
	assert.True(t, impact.Sign() > 0)
	// Preview mutates nothing
	assert.Equal(t, int64(0), s.TotalSold().Int64())
	assert.Equal(t, scalePrice(1).String(), s.CurrentPrice().String())
}

func TestContributorCount(t *testing.T) {
	s, _, _ := newOpenSale(t)
	_, err := s.Contribute("alice", big.NewInt(10), nil)
	require.NoError(t, err)
	_, err = s.Contribute("alice", big.NewInt(10), nil)
	require.NoError(t, err)
	_, err = s.Contribute("bob", big.NewInt(10), nil)
	require.NoError(t, err)
	// Repeat contributions do not inflate the distinct count
	assert.Equal(t, uint64(2), s.Progress().Contributors)
}

func TestConservation(t *testing.T) {
	// The sum of recorded contributions always equals the total raised
	s, _, _ := newOpenSale(t)
	accounts := []string{"alice", "bob", "carol"}
	amounts := []int64{37, 110, 95}
	for i, acct := range accounts {
		_, err := s.Contribute(acct, big.NewInt(amounts[i]), nil)
		require.NoError(t, err)
	}
	sum := new(big.Int)
	for _, acct := range accounts {
		sum.Add(sum, s.AmountContributed(acct))
	}
	assert.Equal(t, sum.String(), s.Progress().Raised.String())

	// Still true after a refund
	require.NoError(t, s.EnableRefunds())
	_, err := s.Refund("bob")
	require.NoError(t, err)
	sum.SetInt64(0)
	for _, acct := range accounts {
		sum.Add(sum, s.AmountContributed(acct))
	}
	assert.Equal(t, sum.String(), s.Progress().Raised.String())
}

func TestProgressSnapshot(t *testing.T) {
	s, _, _ := newOpenSale(t)
	_, err := s.Contribute("alice", big.NewInt(50), nil)
	require.NoError(t, err)
	progress := s.Progress()
	assert.Equal(t, int64(50), progress.Raised.Int64())
	assert.Equal(t, int64(50), progress.Sold.Int64())
	assert.Equal(t, int64(200), progress.Supply.Int64())
	assert.Equal(t, scalePrice(1).String(), progress.Price.String())
	assert.Equal(t, uint64(1), progress.Contributors)
}

func TestUnknownAccountReadsZero(t *testing.T) {
	s, _, _ := newOpenSale(t)
	assert.Equal(t, int64(0), s.Allocation("nobody").Int64())
	assert.Equal(t, int64(0), s.AmountContributed("nobody").Int64())
}
