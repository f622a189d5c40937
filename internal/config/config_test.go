package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		MetricsPort: 12798,
		Mode:        PricingModeTranche,
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.MetricsPort != 12798 {
		t.Errorf("expected default metrics port, got: %d", cfg.MetricsPort)
	}
	if cfg.Mode != PricingModeTranche {
		t.Errorf("expected default pricing mode, got: %q", cfg.Mode)
	}
}

func TestLoad_TrancheConfig(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
dataDir: /var/lib/launchpad
metricsPort: 8088
mode: tranche
tranches:
  - supply: "100"
    price: "1000000000000000000"
  - supply: "100"
    price: "2000000000000000000"
sale:
  minContribution: "10"
  maxPerWallet: "500"
  allowMultiple: true
  emergencyDeadline: "72h"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-launchpad.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.DataDir != "/var/lib/launchpad" {
		t.Errorf("unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.MetricsPort != 8088 {
		t.Errorf("unexpected metrics port: %d", cfg.MetricsPort)
	}
	if len(cfg.Tranches) != 2 {
		t.Fatalf("expected 2 tranches, got: %d", len(cfg.Tranches))
	}

	allocator, err := cfg.Allocator()
	if err != nil {
		t.Fatalf("failed to build allocator: %v", err)
	}
	if !allocator.Ready() {
		t.Errorf("expected allocator to be ready")
	}
	if allocator.TotalSupply().Cmp(big.NewInt(200)) != 0 {
		t.Errorf(
			"unexpected total supply: %s",
			allocator.TotalSupply().String(),
		)
	}

	saleCfg, err := cfg.SaleConfig()
	if err != nil {
		t.Fatalf("failed to build sale config: %v", err)
	}
	if saleCfg.MinContribution.Cmp(big.NewInt(10)) != 0 {
		t.Errorf(
			"unexpected minimum contribution: %s",
			saleCfg.MinContribution.String(),
		)
	}
	if saleCfg.MaxContribution != nil {
		t.Errorf("expected nil maximum contribution")
	}
	if saleCfg.MaxPerWallet.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("unexpected wallet cap: %s", saleCfg.MaxPerWallet.String())
	}
	if !saleCfg.AllowMultiple {
		t.Errorf("expected allowMultiple to be true")
	}
	if saleCfg.EmergencyDeadline != 72*time.Hour {
		t.Errorf(
			"unexpected emergency deadline: %s",
			saleCfg.EmergencyDeadline,
		)
	}
}

func TestLoad_CurveConfig(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
mode: curve
curve:
  startPrice: "1000000000000000000"
  endPrice: "2000000000000000000"
  totalSupply: "1000000"
claimDeadline: "2026-09-01T00:00:00Z"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-curve.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Mode != PricingModeCurve {
		t.Errorf("unexpected pricing mode: %q", cfg.Mode)
	}

	allocator, err := cfg.Allocator()
	if err != nil {
		t.Fatalf("failed to build allocator: %v", err)
	}
	if allocator.TotalSupply().Cmp(big.NewInt(1000000)) != 0 {
		t.Errorf(
			"unexpected total supply: %s",
			allocator.TotalSupply().String(),
		)
	}

	deadline, err := cfg.ParsedClaimDeadline()
	if err != nil {
		t.Fatalf("failed to parse claim deadline: %v", err)
	}
	expected := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !deadline.Equal(expected) {
		t.Errorf("unexpected claim deadline: %s", deadline)
	}
}

func TestLoad_InvalidPricingMode(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
mode: dutch-auction
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-invalid-mode.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Fatalf("expected error for invalid pricing mode")
	}
}

func TestAllocator_MalformedNumbers(t *testing.T) {
	cfg := &Config{
		Mode: PricingModeTranche,
		Tranches: []TrancheConfig{
			{Supply: "one hundred", Price: "1000000000000000000"},
		},
	}
	if _, err := cfg.Allocator(); err == nil {
		t.Fatalf("expected error for malformed tranche supply")
	}

	cfg = &Config{
		Mode: PricingModeCurve,
		Curve: CurveConfig{
			StartPrice:  "1000000000000000000",
			EndPrice:    "bogus",
			TotalSupply: "1000000",
		},
	}
	if _, err := cfg.Allocator(); err == nil {
		t.Fatalf("expected error for malformed curve price")
	}
}

func TestSaleConfig_MalformedTimes(t *testing.T) {
	cfg := &Config{
		Sale: SaleParams{StartTime: "tomorrow"},
	}
	if _, err := cfg.SaleConfig(); err == nil {
		t.Fatalf("expected error for malformed start time")
	}

	cfg = &Config{
		Sale: SaleParams{EmergencyDeadline: "three days"},
	}
	if _, err := cfg.SaleConfig(); err == nil {
		t.Fatalf("expected error for malformed emergency deadline")
	}
}
