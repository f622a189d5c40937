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

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	launchpad "github.com/blinklabs-io/launchpad"
	"github.com/blinklabs-io/launchpad/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the token sale engine",
		Run:   serveRun,
	}
}

func serveRun(_ *cobra.Command, _ []string) {
	logger := commonRun()
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	allocator, err := cfg.Allocator()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	saleConfig, err := cfg.SaleConfig()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	claimDeadline, err := cfg.ParsedClaimDeadline()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	lp, err := launchpad.New(launchpad.NewConfig(
		launchpad.WithLogger(logger),
		launchpad.WithDataDir(cfg.DataDir),
		launchpad.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		launchpad.WithMetricsPort(cfg.MetricsPort),
		launchpad.WithAllocator(allocator),
		launchpad.WithSaleConfig(saleConfig),
		launchpad.WithClaimDeadline(claimDeadline),
	))
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	// Shut down cleanly on SIGINT/SIGTERM
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info(
			"signal received, shutting down",
			"component", programName,
			"signal", sig.String(),
		)
		if err := lp.Stop(); err != nil {
			slog.Error(err.Error())
		}
	}()
	if err := lp.Run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
