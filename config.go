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

package launchpad

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/launchpad/pricing"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/blinklabs-io/launchpad/vault"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry  prometheus.Registerer
	logger        *slog.Logger
	allocator     pricing.Allocator
	treasury      sale.Treasury
	tokenHolder   vault.TokenHolder
	clock         func() time.Time
	dataDir       string
	saleConfig    sale.SaleConfig
	saleConfigSet bool
	claimDeadline time.Time
	metricsPort   uint
}

// ConfigOptionFunc is a type that represents functions that modify the
// launchpad config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new launchpad config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding
// log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The
// default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithPrometheusRegistry specifies the prometheus registry to register
// metrics with
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithMetricsPort specifies the port for the metrics listener. The
// default is to not start a listener.
func WithMetricsPort(port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.metricsPort = port
	}
}

// WithAllocator specifies the pricing allocator. The choice between
// tranche and curve pricing is fixed for the lifetime of the instance.
func WithAllocator(allocator pricing.Allocator) ConfigOptionFunc {
	return func(c *Config) {
		c.allocator = allocator
	}
}

// WithTreasury specifies the payment treasury used for outbound
// transfers. The default is an in-process book-entry treasury.
func WithTreasury(treasury sale.Treasury) ConfigOptionFunc {
	return func(c *Config) {
		c.treasury = treasury
	}
}

// WithTokenHolder specifies the sale token custodian backing the claim
// vault. Without one, no vault is created.
func WithTokenHolder(holder vault.TokenHolder) ConfigOptionFunc {
	return func(c *Config) {
		c.tokenHolder = holder
	}
}

// WithSaleConfig specifies the initial sale parameters, applied while
// the sale is still pending
func WithSaleConfig(cfg sale.SaleConfig) ConfigOptionFunc {
	return func(c *Config) {
		c.saleConfig = cfg
		c.saleConfigSet = true
	}
}

// WithClaimDeadline specifies when the vault's unclaimed tokens become
// recoverable
func WithClaimDeadline(deadline time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.claimDeadline = deadline
	}
}

// WithClock specifies the time source. This defaults to time.Now and
// exists for testing
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}
