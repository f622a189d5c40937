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
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/launchpad/database"
	"github.com/blinklabs-io/launchpad/event"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/blinklabs-io/launchpad/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Launchpad wires the sale engine, claim vault, event bus, and database
// together and owns their lifecycles
type Launchpad struct {
	config        Config
	eventBus      *event.EventBus
	db            *database.Database
	sale          *sale.Sale
	vault         *vault.Vault
	metricsServer *http.Server
	done          chan struct{}
	shutdownOnce  sync.Once
}

// New creates a launchpad instance from the given config
func New(cfg Config) (*Launchpad, error) {
	if cfg.allocator == nil {
		return nil, errors.New("no pricing allocator configured")
	}
	l := &Launchpad{
		config: cfg,
		done:   make(chan struct{}),
	}
	return l, nil
}

// Run starts the launchpad and blocks until Stop is called
func (l *Launchpad) Run() error {
	if err := l.start(); err != nil {
		return err
	}
	<-l.done
	return nil
}

// Start brings up the launchpad without blocking
func (l *Launchpad) Start() error {
	return l.start()
}

func (l *Launchpad) start() error {
	cfg := l.config
	l.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	db, err := database.New(&database.Config{
		DataDir: cfg.dataDir,
		Logger:  cfg.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	l.db = db
	treasury := cfg.treasury
	if treasury == nil {
		treasury = sale.NewBookTreasury()
	}
	s, err := sale.New(sale.Config{
		PromRegistry: cfg.promRegistry,
		Logger:       cfg.logger,
		EventBus:     l.eventBus,
		Allocator:    cfg.allocator,
		Treasury:     treasury,
		Store:        db,
		Clock:        cfg.clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create sale engine: %w", err)
	}
	l.sale = s
	if cfg.saleConfigSet && s.State() == sale.StatePending {
		if err := s.SetSaleConfig(cfg.saleConfig); err != nil {
			return fmt.Errorf("failed to apply sale config: %w", err)
		}
	}
	if cfg.tokenHolder != nil {
		v, err := vault.New(vault.Config{
			PromRegistry:  cfg.promRegistry,
			Logger:        cfg.logger,
			EventBus:      l.eventBus,
			Source:        s,
			Token:         cfg.tokenHolder,
			Store:         db,
			Clock:         cfg.clock,
			ClaimDeadline: cfg.claimDeadline,
		})
		if err != nil {
			return fmt.Errorf("failed to create claim vault: %w", err)
		}
		l.vault = v
	}
	if cfg.metricsPort > 0 {
		if err := l.startMetricsListener(); err != nil {
			return err
		}
	}
	cfg.logger.Info(
		"launchpad started",
		"component", "launchpad",
		"state", s.State().String(),
	)
	return nil
}

func (l *Launchpad) startMetricsListener() error {
	mux := http.NewServeMux()
	if gatherer, ok := l.config.promRegistry.(prometheus.Gatherer); ok {
		mux.Handle(
			"/metrics",
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		)
	}
	mux.HandleFunc(
		"/healthz",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	)
	l.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", l.config.metricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		if err := l.metricsServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			l.config.logger.Error(
				"metrics listener failed",
				"component", "launchpad",
				"error", err,
			)
		}
	}()
	l.config.logger.Info(
		fmt.Sprintf("metrics listening on port %d", l.config.metricsPort),
		"component", "launchpad",
	)
	return nil
}

// Stop shuts down the launchpad
func (l *Launchpad) Stop() error {
	var err error
	l.shutdownOnce.Do(func() {
		if l.metricsServer != nil {
			ctx, cancel := context.WithTimeout(
				context.Background(),
				5*time.Second,
			)
			defer cancel()
			err = errors.Join(err, l.metricsServer.Shutdown(ctx))
		}
		if l.eventBus != nil {
			l.eventBus.Stop()
		}
		if l.db != nil {
			err = errors.Join(err, l.db.Close())
		}
		close(l.done)
	})
	return err
}

// Sale returns the sale engine
func (l *Launchpad) Sale() *sale.Sale {
	return l.sale
}

// Vault returns the claim vault, or nil when no token holder was
// configured
func (l *Launchpad) Vault() *vault.Vault {
	return l.vault
}

// EventBus returns the event bus
func (l *Launchpad) EventBus() *event.EventBus {
	return l.eventBus
}

// Database returns the backing database
func (l *Launchpad) Database() *database.Database {
	return l.db
}
