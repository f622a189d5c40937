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

package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/blinklabs-io/launchpad/pricing"
	"github.com/blinklabs-io/launchpad/sale"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// PricingMode selects the pricing policy for the sale
type PricingMode string

const (
	PricingModeTranche PricingMode = "tranche"
	PricingModeCurve   PricingMode = "curve"
)

// Valid returns true if the PricingMode is a known valid mode
func (m PricingMode) Valid() bool {
	switch m {
	case PricingModeTranche, PricingModeCurve:
		return true
	default:
		return false
	}
}

// TrancheConfig is one fixed-price tier. Amounts are decimal strings in
// base units; prices are decimal strings scaled by 1e18.
type TrancheConfig struct {
	Supply string `yaml:"supply"`
	Price  string `yaml:"price"`
}

// CurveConfig holds the linear bonding curve parameters
type CurveConfig struct {
	StartPrice  string `yaml:"startPrice"  envconfig:"LAUNCHPAD_CURVE_START_PRICE"`
	EndPrice    string `yaml:"endPrice"    envconfig:"LAUNCHPAD_CURVE_END_PRICE"`
	TotalSupply string `yaml:"totalSupply" envconfig:"LAUNCHPAD_CURVE_TOTAL_SUPPLY"`
}

// SaleParams holds the global sale parameters
type SaleParams struct {
	MinContribution   string `yaml:"minContribution"                                 split_words:"true"`
	MaxContribution   string `yaml:"maxContribution"                                 split_words:"true"`
	MaxPerWallet      string `yaml:"maxPerWallet"                                    split_words:"true"`
	AllowMultiple     bool   `yaml:"allowMultiple"                                   split_words:"true"`
	StartTime         string `yaml:"startTime"         envconfig:"LAUNCHPAD_SALE_START_TIME"`
	EndTime           string `yaml:"endTime"           envconfig:"LAUNCHPAD_SALE_END_TIME"`
	EmergencyDeadline string `yaml:"emergencyDeadline" envconfig:"LAUNCHPAD_SALE_EMERGENCY_DEADLINE"`
}

type Config struct {
	DataDir       string          `yaml:"dataDir"       envconfig:"LAUNCHPAD_DATA_DIR"`
	MetricsPort   uint            `yaml:"metricsPort"                                      split_words:"true"`
	Mode          PricingMode     `yaml:"mode"          envconfig:"LAUNCHPAD_PRICING_MODE"`
	Sale          SaleParams      `yaml:"sale"`
	Tranches      []TrancheConfig `yaml:"tranches"`
	Curve         CurveConfig     `yaml:"curve"`
	ClaimDeadline string          `yaml:"claimDeadline" envconfig:"LAUNCHPAD_CLAIM_DEADLINE"`
}

var globalConfig = &Config{
	MetricsPort: 12798,
	Mode:        PricingModeTranche,
}

// LoadConfig loads the config from the specified YAML file (when given)
// and then applies environment variable overrides
func LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("launchpad", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if !globalConfig.Mode.Valid() {
		return nil, fmt.Errorf("invalid pricing mode: %q", globalConfig.Mode)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}

// Allocator builds the pricing allocator described by the config
func (c *Config) Allocator() (pricing.Allocator, error) {
	switch c.Mode {
	case PricingModeCurve:
		allocator := pricing.NewCurveAllocator()
		startPrice, err := parseBigInt("curve start price", c.Curve.StartPrice)
		if err != nil {
			return nil, err
		}
		endPrice, err := parseBigInt("curve end price", c.Curve.EndPrice)
		if err != nil {
			return nil, err
		}
		totalSupply, err := parseBigInt(
			"curve total supply",
			c.Curve.TotalSupply,
		)
		if err != nil {
			return nil, err
		}
		if err := allocator.SetCurve(startPrice, endPrice, totalSupply); err != nil {
			return nil, err
		}
		return allocator, nil
	case PricingModeTranche:
		allocator := pricing.NewTrancheAllocator()
		for _, tranche := range c.Tranches {
			supply, err := parseBigInt("tranche supply", tranche.Supply)
			if err != nil {
				return nil, err
			}
			price, err := parseBigInt("tranche price", tranche.Price)
			if err != nil {
				return nil, err
			}
			if err := allocator.AddTranche(supply, price); err != nil {
				return nil, err
			}
		}
		return allocator, nil
	default:
		return nil, fmt.Errorf("invalid pricing mode: %q", c.Mode)
	}
}

// SaleConfig builds the sale parameters described by the config
func (c *Config) SaleConfig() (sale.SaleConfig, error) {
	var ret sale.SaleConfig
	var err error
	if c.Sale.MinContribution != "" {
		ret.MinContribution, err = parseBigInt(
			"minimum contribution",
			c.Sale.MinContribution,
		)
		if err != nil {
			return ret, err
		}
	}
	if c.Sale.MaxContribution != "" {
		ret.MaxContribution, err = parseBigInt(
			"maximum contribution",
			c.Sale.MaxContribution,
		)
		if err != nil {
			return ret, err
		}
	}
	if c.Sale.MaxPerWallet != "" {
		ret.MaxPerWallet, err = parseBigInt(
			"wallet cap",
			c.Sale.MaxPerWallet,
		)
		if err != nil {
			return ret, err
		}
	}
	ret.AllowMultiple = c.Sale.AllowMultiple
	if c.Sale.StartTime != "" {
		ret.StartTime, err = time.Parse(time.RFC3339, c.Sale.StartTime)
		if err != nil {
			return ret, fmt.Errorf("malformed sale start time: %w", err)
		}
	}
	if c.Sale.EndTime != "" {
		ret.EndTime, err = time.Parse(time.RFC3339, c.Sale.EndTime)
		if err != nil {
			return ret, fmt.Errorf("malformed sale end time: %w", err)
		}
	}
	if c.Sale.EmergencyDeadline != "" {
		ret.EmergencyDeadline, err = time.ParseDuration(
			c.Sale.EmergencyDeadline,
		)
		if err != nil {
			return ret, fmt.Errorf("malformed emergency deadline: %w", err)
		}
	}
	return ret, nil
}

// ParsedClaimDeadline returns the configured claim deadline, or the zero
// time when unset
func (c *Config) ParsedClaimDeadline() (time.Time, error) {
	if c.ClaimDeadline == "" {
		return time.Time{}, nil
	}
	ret, err := time.Parse(time.RFC3339, c.ClaimDeadline)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed claim deadline: %w", err)
	}
	return ret, nil
}

func parseBigInt(name, s string) (*big.Int, error) {
	ret, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed %s: %q", name, s)
	}
	return ret, nil
}
