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
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/blinklabs-io/launchpad/event"
	"github.com/blinklabs-io/launchpad/pricing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// State is the sale lifecycle phase. Transitions are monotonic:
// PENDING -> OPEN -> FINALIZED on the happy path, OPEN -> REFUNDING on
// the emergency path. FINALIZED and REFUNDING are terminal.
type State int

const (
	StatePending State = iota
	StateOpen
	StateFinalized
	StateRefunding
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	case StateRefunding:
		return "refunding"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

// Terminal returns true for states that no operation may transition out of
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateRefunding
}

// SaleConfig holds the global sale parameters. It is set while PENDING
// and immutable once the sale opens, except for EndTime which the
// administrator may extend while OPEN.
type SaleConfig struct {
	// MinContribution is the minimum accepted payment per contribution
	// (nil for no minimum)
	MinContribution *big.Int `json:"minContribution"`
	// MaxContribution is the maximum accepted payment per contribution
	// (nil for no maximum)
	MaxContribution *big.Int `json:"maxContribution"`
	// MaxPerWallet caps an account's cumulative contributions (nil for
	// no cap)
	MaxPerWallet *big.Int `json:"maxPerWallet"`
	// AllowMultiple permits repeat contributions from one account
	AllowMultiple bool `json:"allowMultiple"`
	// StartTime is the beginning of the contribution window (zero for
	// no lower bound)
	StartTime time.Time `json:"startTime"`
	// EndTime is the end of the contribution window (zero for no upper
	// bound)
	EndTime time.Time `json:"endTime"`
	// EmergencyDeadline is how long after opening the permissionless
	// emergency refund switch arms. Required before the sale can open.
	EmergencyDeadline time.Duration `json:"emergencyDeadline"`
}

// Contribution is an account's running totals. Records are never
// deleted; a refund zeroes Amount but Tokens and the record itself
// persist.
type Contribution struct {
	Amount *big.Int `json:"amount"`
	Tokens *big.Int `json:"tokens"`
}

// Config wires a Sale's collaborators
type Config struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	// Allocator is the pricing policy. The choice between tranche and
	// curve pricing is fixed for the lifetime of the sale.
	Allocator pricing.Allocator
	// Treasury performs outbound value transfers (excess refunds,
	// emergency refunds, raise withdrawal)
	Treasury Treasury
	// Store persists sale state and per-account records. Optional; a
	// nil store leaves the sale ephemeral.
	Store Store
	// Clock supplies the current time and defaults to time.Now
	Clock func() time.Time
}

// Sale is the token sale engine: lifecycle state machine, contribution
// ledger, and refund paths. Every mutating operation runs to completion
// under a single mutex before the next begins, and all state changes
// commit before any outbound transfer.
type Sale struct {
	config  Config
	metrics struct {
		contributionsTotal prometheus.Counter
		refundsTotal       prometheus.Counter
		amountRaised       prometheus.Gauge
		tokensSold         prometheus.Gauge
		contributors       prometheus.Gauge
	}
	logger    *slog.Logger
	eventBus  *event.EventBus
	allocator pricing.Allocator
	treasury  Treasury
	store     Store
	clock     func() time.Time

	mutex         sync.Mutex
	saleConfig    SaleConfig
	configSet     bool
	state         State
	openedAt      time.Time
	totalRaised   *big.Int
	totalSold     *big.Int
	withdrawable  *big.Int
	contributors  uint64
	contributions map[string]*Contribution
}

// New creates a sale engine. When the configured store holds previously
// persisted state the engine resumes from it, so a process restart does
// not lose a sale in progress.
func New(cfg Config) (*Sale, error) {
	if cfg.Allocator == nil {
		return nil, &ConfigError{Reason: "no pricing allocator provided"}
	}
	s := &Sale{
		config:        cfg,
		eventBus:      cfg.EventBus,
		allocator:     cfg.Allocator,
		treasury:      cfg.Treasury,
		store:         cfg.Store,
		clock:         cfg.Clock,
		state:         StatePending,
		totalRaised:   new(big.Int),
		totalSold:     new(big.Int),
		withdrawable:  new(big.Int),
		contributions: make(map[string]*Contribution),
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = cfg.Logger
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.contributionsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "launchpad_contributions_total",
			Help: "total accepted contributions",
		},
	)
	s.metrics.refundsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "launchpad_refunds_total",
			Help: "total refund payouts",
		},
	)
	s.metrics.amountRaised = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_amount_raised",
			Help: "current total payment raised",
		},
	)
	s.metrics.tokensSold = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_tokens_sold",
			Help: "current total tokens sold",
		},
	)
	s.metrics.contributors = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "launchpad_contributors",
			Help: "distinct accounts with a nonzero allocation",
		},
	)
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("loading persisted sale state: %w", err)
	}
	return s, nil
}

// SetSaleConfig sets the global sale parameters. Administrator-only,
// PENDING only.
func (s *Sale) SetSaleConfig(cfg SaleConfig) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StatePending {
		return &StateError{Op: "set sale config", State: s.state}
	}
	if cfg.MinContribution != nil && cfg.MaxContribution != nil &&
		cfg.MinContribution.Cmp(cfg.MaxContribution) > 0 {
		return &ConfigError{
			Reason: "minimum contribution exceeds maximum",
		}
	}
	if !cfg.StartTime.IsZero() && !cfg.EndTime.IsZero() &&
		!cfg.EndTime.After(cfg.StartTime) {
		return &ConfigError{Reason: "end time not after start time"}
	}
	if cfg.EmergencyDeadline < 0 {
		return &ConfigError{Reason: "negative emergency deadline"}
	}
	s.saleConfig = cfg
	s.configSet = true
	return nil
}

// AddTranche adds a fixed-price tier to the tranche allocator.
// Administrator-only, PENDING only.
func (s *Sale) AddTranche(supply, price *big.Int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StatePending {
		return &StateError{Op: "add tranche", State: s.state}
	}
	allocator, ok := s.allocator.(*pricing.TrancheAllocator)
	if !ok {
		return &ConfigError{Reason: "tranche pricing not in use"}
	}
	return allocator.AddTranche(supply, price)
}

// ClearTranches removes all configured tiers from the tranche allocator.
// Administrator-only, PENDING only.
func (s *Sale) ClearTranches() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StatePending {
		return &StateError{Op: "clear tranches", State: s.state}
	}
	allocator, ok := s.allocator.(*pricing.TrancheAllocator)
	if !ok {
		return &ConfigError{Reason: "tranche pricing not in use"}
	}
	allocator.Clear()
	return nil
}

// SetCurve configures the bonding curve allocator. Administrator-only,
// PENDING only.
func (s *Sale) SetCurve(startPrice, endPrice, totalSupply *big.Int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StatePending {
		return &StateError{Op: "set curve", State: s.state}
	}
	allocator, ok := s.allocator.(*pricing.CurveAllocator)
	if !ok {
		return &ConfigError{Reason: "curve pricing not in use"}
	}
	return allocator.SetCurve(startPrice, endPrice, totalSupply)
}

// SaleConfig returns a copy of the configured sale parameters
func (s *Sale) SaleConfig() SaleConfig {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saleConfig
}

// State returns the current lifecycle phase
func (s *Sale) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Open transitions PENDING -> OPEN. It requires a complete pricing
// configuration and an emergency deadline. Administrator-only.
func (s *Sale) Open() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StatePending {
		return &StateError{Op: "open", State: s.state}
	}
	if !s.allocator.Ready() {
		return &ConfigError{Reason: "pricing not configured"}
	}
	if !s.configSet {
		return &ConfigError{Reason: "sale parameters not configured"}
	}
	if s.saleConfig.EmergencyDeadline <= 0 {
		return &ConfigError{Reason: "emergency deadline not set"}
	}
	s.openedAt = s.clock()
	s.transition(StateOpen)
	return s.persist()
}

// Finalize transitions OPEN -> FINALIZED and makes the raised amount
// available for withdrawal. Administrator-only.
func (s *Sale) Finalize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateOpen {
		return &StateError{Op: "finalize", State: s.state}
	}
	s.withdrawable = new(big.Int).Set(s.totalRaised)
	s.transition(StateFinalized)
	return s.persist()
}

// EnableRefunds transitions OPEN -> REFUNDING. Administrator-only; the
// permissionless path is EmergencyRefunds.
func (s *Sale) EnableRefunds() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateOpen {
		return &StateError{Op: "enable refunds", State: s.state}
	}
	s.transition(StateRefunding)
	return s.persist()
}

// EmergencyRefunds is the dead-man's switch: once the emergency deadline
// has elapsed after opening, any caller may force OPEN -> REFUNDING. No
// authorization is required, so an unresponsive administrator cannot
// leave contributed funds locked in an open sale.
func (s *Sale) EmergencyRefunds() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateOpen {
		return &StateError{Op: "emergency refunds", State: s.state}
	}
	now := s.clock()
	deadline := s.openedAt.Add(s.saleConfig.EmergencyDeadline)
	if !now.After(deadline) {
		return &DeadlineError{
			Op:       "emergency refunds",
			Deadline: deadline,
			Now:      now,
		}
	}
	s.transition(StateRefunding)
	return s.persist()
}

// ExtendEndTime moves the contribution window end later. Administrator-
// only, OPEN only.
func (s *Sale) ExtendEndTime(newEndTime time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateOpen {
		return &StateError{Op: "extend end time", State: s.state}
	}
	if !s.saleConfig.EndTime.IsZero() &&
		!newEndTime.After(s.saleConfig.EndTime) {
		return &ConfigError{
			Reason: "new end time not after current end time",
		}
	}
	s.saleConfig.EndTime = newEndTime
	return s.persist()
}

// WithdrawRaised transfers the raised payment to the given destination.
// Administrator-only, FINALIZED only. The withdrawable balance is zeroed
// before the transfer.
func (s *Sale) WithdrawRaised(to string) (*big.Int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != StateFinalized {
		return nil, &StateError{Op: "withdraw raised", State: s.state}
	}
	if s.withdrawable.Sign() == 0 {
		return nil, &LimitError{Reason: "nothing to withdraw"}
	}
	amount := s.withdrawable
	s.withdrawable = new(big.Int)
	if err := s.persist(); err != nil {
		s.withdrawable = amount
		return nil, err
	}
	if err := s.transfer(to, amount); err != nil {
		// Restore so the withdrawal can be retried
		s.withdrawable = amount
		if perr := s.persist(); perr != nil {
			s.logger.Error(
				"failed to persist withdrawal rollback",
				"component", "sale",
				"error", perr,
			)
		}
		return nil, err
	}
	s.logger.Info(
		"raised amount withdrawn",
		"component", "sale",
		"to", to,
		"amount", amount.String(),
	)
	return amount, nil
}

// transition updates the lifecycle state and emits a state change event.
// Must be called with the mutex held.
func (s *Sale) transition(to State) {
	from := s.state
	s.state = to
	s.logger.Info(
		"sale state change",
		"component", "sale",
		"from", from.String(),
		"to", to.String(),
	)
	if s.eventBus != nil {
		s.eventBus.Publish(
			StateChangeEventType,
			event.NewEvent(
				StateChangeEventType,
				StateChangeEvent{From: from, To: to},
			),
		)
	}
}

// transfer performs an outbound value transfer via the configured
// treasury. Must be called with the mutex held and only after all state
// changes have been committed.
func (s *Sale) transfer(to string, amount *big.Int) error {
	if s.treasury == nil {
		return &TransferError{
			To:     to,
			Amount: amount,
			Err:    fmt.Errorf("no treasury configured"),
		}
	}
	if err := s.treasury.Transfer(to, amount); err != nil {
		return &TransferError{To: to, Amount: amount, Err: err}
	}
	return nil
}

// persist writes the sale's global state through the store. Must be
// called with the mutex held.
func (s *Sale) persist() error {
	if s.store == nil {
		return nil
	}
	return s.store.PutSaleState(&PersistentState{
		State:        s.state,
		Config:       s.saleConfig,
		ConfigSet:    s.configSet,
		TotalRaised:  new(big.Int).Set(s.totalRaised),
		TotalSold:    new(big.Int).Set(s.totalSold),
		Withdrawable: new(big.Int).Set(s.withdrawable),
		Contributors: s.contributors,
		OpenedAt:     s.openedAt,
	})
}

// load restores previously persisted state from the store
func (s *Sale) load() error {
	if s.store == nil {
		return nil
	}
	ps, err := s.store.GetSaleState()
	if err != nil {
		return err
	}
	if ps == nil {
		return nil
	}
	s.state = ps.State
	s.saleConfig = ps.Config
	s.configSet = ps.ConfigSet
	s.totalRaised = ps.TotalRaised
	s.totalSold = ps.TotalSold
	s.withdrawable = ps.Withdrawable
	s.contributors = ps.Contributors
	s.openedAt = ps.OpenedAt
	// A sold total above the configured supply means the store and the
	// pricing configuration disagree; refuse to resume from it
	if s.totalSold.Sign() > 0 {
		supply := s.allocator.TotalSupply()
		if s.totalSold.Cmp(supply) > 0 {
			return &ConfigError{
				Reason: fmt.Sprintf(
					"persisted sold total %s exceeds configured supply %s",
					s.totalSold.String(),
					supply.String(),
				),
			}
		}
	}
	contribs, err := s.store.ListContributions()
	if err != nil {
		return err
	}
	s.contributions = contribs
	if s.contributions == nil {
		s.contributions = make(map[string]*Contribution)
	}
	s.metrics.amountRaised.Set(bigToFloat(s.totalRaised))
	s.metrics.tokensSold.Set(bigToFloat(s.totalSold))
	s.metrics.contributors.Set(float64(s.contributors))
	s.logger.Info(
		"resumed persisted sale",
		"component", "sale",
		"state", s.state.String(),
		"raised", s.totalRaised.String(),
		"sold", s.totalSold.String(),
	)
	return nil
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
