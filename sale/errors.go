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
	"math/big"
	"time"
)

// StateError indicates an operation invoked outside its required
// lifecycle phase
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed while sale is %s", e.Op, e.State)
}

// ConfigError indicates incomplete or invalid sale configuration
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sale config: %s", e.Reason)
}

// LimitError indicates a contribution outside the configured limits:
// below the per-contribution minimum, above the maximum, over the wallet
// cap, a disallowed repeat contribution, outside the sale time window,
// or against exhausted supply
type LimitError struct {
	Limit  *big.Int
	Value  *big.Int
	Reason string
}

func (e *LimitError) Error() string {
	if e.Limit == nil {
		return e.Reason
	}
	return fmt.Sprintf(
		"%s: limit=%s, value=%s",
		e.Reason,
		e.Limit.String(),
		e.Value.String(),
	)
}

// SlippageError indicates a computed allocation below the caller's
// declared minimum
type SlippageError struct {
	Min *big.Int
	Got *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf(
		"allocation %s below minimum %s",
		e.Got.String(),
		e.Min.String(),
	)
}

// TransferError indicates a failed outbound value transfer. It wraps the
// underlying treasury error.
type TransferError struct {
	Err    error
	To     string
	Amount *big.Int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf(
		"transfer of %s to %s failed: %s",
		e.Amount.String(),
		e.To,
		e.Err.Error(),
	)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// DeadlineError indicates a time-gated operation invoked before its
// deadline
type DeadlineError struct {
	Deadline time.Time
	Now      time.Time
	Op       string
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf(
		"%s not available until %s (now %s)",
		e.Op,
		e.Deadline.Format(time.RFC3339),
		e.Now.Format(time.RFC3339),
	)
}
