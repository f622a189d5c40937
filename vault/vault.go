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

package vault

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/blinklabs-io/launchpad/event"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ClaimEventType     event.EventType = "vault.claim"
	RecoveredEventType event.EventType = "vault.recovered"
)

// ClaimEvent carries a completed claim payout
type ClaimEvent struct {
	Account string
	Amount  *big.Int
}

// RecoveredEvent carries the final recovery of unclaimed tokens
type RecoveredEvent struct {
	To     string
	Amount *big.Int
}

var (
	// ErrNotEnabled is returned by Claim before claiming opens
	ErrNotEnabled = errors.New("claiming not enabled")
	// ErrAlreadyClaimed is returned on a second claim by the same account
	ErrAlreadyClaimed = errors.New("allocation already claimed")
	// ErrRecovered is returned once the vault's unclaimed funds have
	// been recovered; recovery permanently disables claims
	ErrRecovered = errors.New("vault recovered")
	// ErrNothingToClaim is returned for accounts with no entitlement
	ErrNothingToClaim = errors.New("nothing to claim")
)

// AllocationSource reads finalized allocations. *sale.Sale implements it.
type AllocationSource interface {
	Allocation(account string) *big.Int
	TotalSold() *big.Int
}

// TokenHolder is the custodian of the sale tokens the vault distributes
type TokenHolder interface {
	Balance() (*big.Int, error)
	Transfer(to string, amount *big.Int) error
}

// ClaimRecord is an account's claim status. Claimed transitions
// false -> true at most once, ever.
type ClaimRecord struct {
	Claimed  bool     `json:"claimed"`
	Snapshot *big.Int `json:"snapshot"`
}

// PersistentState is the vault's global state as written to the store
type PersistentState struct {
	ClaimingEnabled bool     `json:"claimingEnabled"`
	Recovered       bool     `json:"recovered"`
	TotalClaimed    *big.Int `json:"totalClaimed"`
}

// Store is the durable storage consumed by the vault. Reads for unknown
// keys return nil values rather than errors.
type Store interface {
	GetVaultState() (*PersistentState, error)
	PutVaultState(*PersistentState) error
	GetClaimRecord(account string) (*ClaimRecord, error)
	PutClaimRecord(account string, r *ClaimRecord) error
}

// Config wires a Vault's collaborators
type Config struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	// Source provides live allocations; the snapshot is the fallback
	// when it reads zero
	Source AllocationSource
	// Token holds and transfers the sale tokens
	Token TokenHolder
	// Store persists claim records. Optional.
	Store Store
	// Clock supplies the current time and defaults to time.Now
	Clock func() time.Time
	// ClaimDeadline is the time after which unclaimed tokens can be
	// recovered. Required for RecoverUnclaimed.
	ClaimDeadline time.Time
}

// Vault distributes finalized sale allocations exactly once per account,
// with a pre-recorded snapshot fallback and time-locked recovery of
// whatever goes unclaimed. It is deployed independently of the sale and
// reads allocations through the AllocationSource interface.
type Vault struct {
	config  Config
	metrics struct {
		claimsTotal  prometheus.Counter
		totalClaimed prometheus.Gauge
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	source   AllocationSource
	token    TokenHolder
	store    Store
	clock    func() time.Time

	mutex        sync.Mutex
	enabled      bool
	recovered    bool
	totalClaimed *big.Int
	records      map[string]*ClaimRecord
}

// New creates a claim vault, resuming any previously persisted state
func New(cfg Config) (*Vault, error) {
	if cfg.Source == nil {
		return nil, &sale.ConfigError{Reason: "no allocation source provided"}
	}
	if cfg.Token == nil {
		return nil, &sale.ConfigError{Reason: "no token holder provided"}
	}
	v := &Vault{
		config:       cfg,
		eventBus:     cfg.EventBus,
		source:       cfg.Source,
		token:        cfg.Token,
		store:        cfg.Store,
		clock:        cfg.Clock,
		totalClaimed: new(big.Int),
		records:      make(map[string]*ClaimRecord),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		v.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		v.logger = cfg.Logger
	}
	if v.clock == nil {
		v.clock = time.Now
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	v.metrics.claimsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "launchpad_vault_claims_total",
			Help: "total completed claims",
		},
	)
	v.metrics.totalClaimed = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_vault_total_claimed",
			Help: "cumulative tokens claimed",
		},
	)
	if err := v.load(); err != nil {
		return nil, fmt.Errorf("loading persisted vault state: %w", err)
	}
	return v, nil
}

// EnableClaiming opens the vault for claims. It requires the vault to
// already hold at least the total sold amount. Administrator-only.
func (v *Vault) EnableClaiming() error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.recovered {
		return ErrRecovered
	}
	if v.enabled {
		return &sale.ConfigError{Reason: "claiming already enabled"}
	}
	balance, err := v.token.Balance()
	if err != nil {
		return fmt.Errorf("reading vault balance: %w", err)
	}
	totalSold := v.source.TotalSold()
	if balance.Cmp(totalSold) < 0 {
		return &sale.ConfigError{
			Reason: fmt.Sprintf(
				"vault underfunded: balance %s below total sold %s",
				balance.String(),
				totalSold.String(),
			),
		}
	}
	v.enabled = true
	if err := v.persist(); err != nil {
		v.enabled = false
		return err
	}
	v.logger.Info(
		"claiming enabled",
		"component", "vault",
		"balance", balance.String(),
		"totalSold", totalSold.String(),
	)
	return nil
}

// SnapshotAllocations records the given accounts' current live
// allocations as a fallback for when the live source later reads zero.
// Only callable before claiming opens. Administrator-only.
func (v *Vault) SnapshotAllocations(accounts []string) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.recovered {
		return ErrRecovered
	}
	if v.enabled {
		return &sale.ConfigError{
			Reason: "cannot snapshot after claiming opens",
		}
	}
	for _, account := range accounts {
		record := v.record(account)
		record.Snapshot = v.source.Allocation(account)
		if v.store != nil {
			if err := v.store.PutClaimRecord(account, record); err != nil {
				return err
			}
		}
	}
	v.logger.Info(
		"allocations snapshotted",
		"component", "vault",
		"accounts", len(accounts),
	)
	return nil
}

// Claimable returns the account's current entitlement: zero when
// claiming is not enabled, the vault has been recovered, or the account
// already claimed; otherwise the live allocation, falling back to the
// snapshot when the live source reads zero.
func (v *Vault) Claimable(account string) *big.Int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.claimable(account)
}

// claimable must be called with the mutex held
func (v *Vault) claimable(account string) *big.Int {
	if !v.enabled || v.recovered {
		return new(big.Int)
	}
	record := v.record(account)
	if record.Claimed {
		return new(big.Int)
	}
	live := v.source.Allocation(account)
	if live.Sign() > 0 {
		return live
	}
	if record.Snapshot != nil {
		return new(big.Int).Set(record.Snapshot)
	}
	return new(big.Int)
}

// Claim transfers the account's full entitlement exactly once.
// Permissionless per-account. The claim record commits before the token
// transfer.
func (v *Vault) Claim(account string) (*big.Int, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.recovered {
		return nil, ErrRecovered
	}
	if !v.enabled {
		return nil, ErrNotEnabled
	}
	record := v.record(account)
	if record.Claimed {
		return nil, ErrAlreadyClaimed
	}
	entitlement := v.claimable(account)
	if entitlement.Sign() == 0 {
		return nil, ErrNothingToClaim
	}
	record.Claimed = true
	v.totalClaimed.Add(v.totalClaimed, entitlement)
	if err := v.persistRecord(account, record); err != nil {
		record.Claimed = false
		v.totalClaimed.Sub(v.totalClaimed, entitlement)
		return nil, err
	}
	if err := v.token.Transfer(account, entitlement); err != nil {
		// Restore the record so the claim can be retried
		record.Claimed = false
		v.totalClaimed.Sub(v.totalClaimed, entitlement)
		if perr := v.persistRecord(account, record); perr != nil {
			v.logger.Error(
				"failed to persist claim rollback",
				"component", "vault",
				"error", perr,
			)
		}
		return nil, &sale.TransferError{
			To:     account,
			Amount: entitlement,
			Err:    err,
		}
	}
	v.metrics.claimsTotal.Inc()
	v.metrics.totalClaimed.Add(bigToFloat(entitlement))
	if v.eventBus != nil {
		v.eventBus.Publish(
			ClaimEventType,
			event.NewEvent(
				ClaimEventType,
				ClaimEvent{Account: account, Amount: entitlement},
			),
		)
	}
	v.logger.Info(
		"allocation claimed",
		"component", "vault",
		"account", account,
		"amount", entitlement.String(),
	)
	return entitlement, nil
}

// RecoverUnclaimed transfers the vault's entire remaining token balance
// to the given destination. Only available after the claim deadline, and
// it permanently disables all future claims. Administrator-only.
func (v *Vault) RecoverUnclaimed(to string) (*big.Int, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.recovered {
		return nil, ErrRecovered
	}
	if v.config.ClaimDeadline.IsZero() {
		return nil, &sale.ConfigError{Reason: "claim deadline not set"}
	}
	now := v.clock()
	if !now.After(v.config.ClaimDeadline) {
		return nil, &sale.DeadlineError{
			Op:       "recover unclaimed",
			Deadline: v.config.ClaimDeadline,
			Now:      now,
		}
	}
	balance, err := v.token.Balance()
	if err != nil {
		return nil, fmt.Errorf("reading vault balance: %w", err)
	}
	v.recovered = true
	if err := v.persist(); err != nil {
		v.recovered = false
		return nil, err
	}
	if balance.Sign() > 0 {
		if err := v.token.Transfer(to, balance); err != nil {
			// The recovered flag stays set: recovery is one-way and
			// claims never reopen, even on a failed payout
			return nil, &sale.TransferError{
				To:     to,
				Amount: balance,
				Err:    err,
			}
		}
	}
	if v.eventBus != nil {
		v.eventBus.Publish(
			RecoveredEventType,
			event.NewEvent(
				RecoveredEventType,
				RecoveredEvent{To: to, Amount: balance},
			),
		)
	}
	v.logger.Info(
		"unclaimed tokens recovered",
		"component", "vault",
		"to", to,
		"amount", balance.String(),
	)
	return balance, nil
}

// record returns the account's claim record, reading through to the
// store on first access and creating a fresh record if none exists.
// Must be called with the mutex held.
func (v *Vault) record(account string) *ClaimRecord {
	record, ok := v.records[account]
	if ok {
		return record
	}
	if v.store != nil {
		stored, err := v.store.GetClaimRecord(account)
		if err != nil {
			v.logger.Error(
				"failed to read claim record",
				"component", "vault",
				"account", account,
				"error", err,
			)
		} else if stored != nil {
			v.records[account] = stored
			return stored
		}
	}
	record = &ClaimRecord{}
	v.records[account] = record
	return record
}

// persistRecord must be called with the mutex held
func (v *Vault) persistRecord(account string, record *ClaimRecord) error {
	if v.store == nil {
		return nil
	}
	if err := v.store.PutClaimRecord(account, record); err != nil {
		return err
	}
	return v.persist()
}

// persist must be called with the mutex held
func (v *Vault) persist() error {
	if v.store == nil {
		return nil
	}
	return v.store.PutVaultState(&PersistentState{
		ClaimingEnabled: v.enabled,
		Recovered:       v.recovered,
		TotalClaimed:    new(big.Int).Set(v.totalClaimed),
	})
}

// load restores previously persisted state from the store
func (v *Vault) load() error {
	if v.store == nil {
		return nil
	}
	ps, err := v.store.GetVaultState()
	if err != nil {
		return err
	}
	if ps == nil {
		return nil
	}
	v.enabled = ps.ClaimingEnabled
	v.recovered = ps.Recovered
	if ps.TotalClaimed != nil {
		v.totalClaimed = ps.TotalClaimed
	}
	v.metrics.totalClaimed.Set(bigToFloat(v.totalClaimed))
	return nil
}

func bigToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
