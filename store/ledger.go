/*
Copyright 2025 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"context"
	"time"

	"github.com/duotale/duotale/model"
)

const (
	balanceKeyPrefix = "credits:"
	holdKeyPrefix    = "hold:"
)

// BalanceKey returns the store key holding a device's credit record.
func BalanceKey(deviceID string) string {
	return balanceKeyPrefix + deviceID
}

// HoldKey returns the store key holding a credit hold. Holds are keyed by
// hold ID alone; the owning device is recorded inside the record so commit
// and cancel can detect a device mismatch.
func HoldKey(holdID string) string {
	return holdKeyPrefix + holdID
}

// SaveBalance persists a device balance record. Balances never expire.
func (d Datastore) SaveBalance(ctx context.Context, balance *model.Balance) error {
	return d.Put(ctx, BalanceKey(balance.DeviceID), balance, 0)
}

// GetBalance retrieves a device balance. A device that has never touched the
// ledger has no record; callers seed one with the starter grant.
func (d Datastore) GetBalance(ctx context.Context, deviceID string) (*model.Balance, error) {
	balance := model.Balance{}
	found, err := d.Get(ctx, BalanceKey(deviceID), &balance)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &balance, nil
}

// SaveHold persists a hold under its retention TTL. Resolved holds are kept
// until the key expires so a repeated commit or cancel stays idempotent.
func (d Datastore) SaveHold(ctx context.Context, hold *model.Hold, ttl time.Duration) error {
	return d.Put(ctx, HoldKey(hold.HoldID), hold, ttl)
}

// GetHold retrieves a hold by ID, nil when the record is absent or already
// aged out of the store.
func (d Datastore) GetHold(ctx context.Context, holdID string) (*model.Hold, error) {
	hold := model.Hold{}
	found, err := d.Get(ctx, HoldKey(holdID), &hold)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &hold, nil
}

// DeleteHold removes a hold record.
func (d Datastore) DeleteHold(ctx context.Context, holdID string) error {
	return d.Delete(ctx, HoldKey(holdID))
}
