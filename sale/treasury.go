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
	"errors"
	"math/big"
	"sync"
)

// Treasury performs outbound transfers of the payment currency. The
// engine calls it only after committing its own state; a returned error
// aborts and rolls back the surrounding operation.
type Treasury interface {
	Transfer(to string, amount *big.Int) error
}

// BookTreasury is an in-process book-entry treasury: transfers credit a
// per-account balance. It serves as the treasury when no external
// custodian is wired in.
type BookTreasury struct {
	mutex    sync.Mutex
	balances map[string]*big.Int
}

func NewBookTreasury() *BookTreasury {
	return &BookTreasury{
		balances: make(map[string]*big.Int),
	}
}

func (t *BookTreasury) Transfer(to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("invalid transfer amount")
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	balance, ok := t.balances[to]
	if !ok {
		balance = new(big.Int)
		t.balances[to] = balance
	}
	balance.Add(balance, amount)
	return nil
}

// BalanceOf returns the credited balance for an account. Unknown
// accounts read as zero.
func (t *BookTreasury) BalanceOf(account string) *big.Int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if balance, ok := t.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}
