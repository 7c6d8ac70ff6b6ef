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

package duotale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/apierror"
	redlock "github.com/duotale/duotale/internal/lock"
	"github.com/duotale/duotale/internal/monitor"
	"github.com/duotale/duotale/internal/notification"
	"github.com/duotale/duotale/model"
)

var tracer = otel.Tracer("Credit ledger")

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// acquireDeviceLock serializes every balance mutation for one device. All
// reserve/commit/cancel paths run their read-modify-write under this lock.
func (l *Duotale) acquireDeviceLock(ctx context.Context, deviceID string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(l.redis, "device-lock:"+deviceID, model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, time.Minute, 5*time.Second); err != nil {
		return nil, err
	}
	return locker, nil
}

// loadBalance fetches a device's credit record. A device the ledger has
// never seen gets the starter grant, in memory only: the record is persisted
// the first time a write path saves it.
func (l *Duotale) loadBalance(ctx context.Context, deviceID string) (*model.Balance, error) {
	balance, err := l.datastore.GetBalance(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		DeviceID:  deviceID,
		Balance:   conf.Ledger.StarterCredits,
		UpdatedAt: time.Now(),
	}, nil
}

// StartHold reserves amount credits on a device for one billable job. When
// the caller supplies a hold ID and that hold already exists, the existing
// hold is returned unchanged, so retried requests never reserve twice. A zero
// ttl uses the configured default. A successful start schedules the expiry
// task that returns the reservation if the job never settles.
func (l *Duotale) StartHold(ctx context.Context, deviceID string, amount int64, holdID string, ttl time.Duration) (*model.Hold, error) {
	ctx, span := tracer.Start(ctx, "Starting credit hold")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Hold amount must be positive", fmt.Errorf("got %d", amount))
	}

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Duration(conf.Ledger.HoldTTLSec) * time.Second
	}

	locker, err := l.acquireDeviceLock(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "acquire device lock error", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	if holdID != "" {
		existing, err := l.datastore.GetHold(ctx, holdID)
		if err != nil {
			return nil, logAndRecordError(span, "fetch hold error", err)
		}
		if existing != nil {
			if existing.DeviceID != deviceID {
				err := &model.AuthorizationMismatchError{HoldID: holdID, DeviceID: deviceID}
				span.RecordError(err)
				return nil, err
			}
			span.AddEvent("hold already exists, returning it")
			return existing, nil
		}
	} else {
		holdID = model.GenerateUUIDWithSuffix("hold")
	}

	balance, err := l.loadBalance(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch balance error", err)
	}

	if !balance.CanReserve(amount) {
		err := &model.InsufficientCreditsError{Balance: balance.Balance, Reserved: balance.Reserved, Requested: amount}
		span.RecordError(err)
		return nil, err
	}

	now := time.Now()
	hold := &model.Hold{
		HoldID:    holdID,
		DeviceID:  deviceID,
		Amount:    amount,
		State:     model.HoldPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	balance.Reserve(amount)

	// Hold retention outlives the hold itself so repeated commits of a
	// settled job keep finding the record.
	if err := l.datastore.SaveHold(ctx, hold, 2*ttl); err != nil {
		return nil, logAndRecordError(span, "save hold error", err)
	}
	if err := l.datastore.SaveBalance(ctx, balance); err != nil {
		if delErr := l.datastore.DeleteHold(ctx, holdID); delErr != nil {
			logrus.Error(delErr)
		}
		return nil, logAndRecordError(span, "save balance error", err)
	}

	if err := l.queue.QueueHoldExpiry(ctx, hold); err != nil {
		// Not fatal: the expiry worker re-checks hold state, and commit or
		// cancel resolves the hold on every normal path.
		logrus.Errorf("Error scheduling hold expiry: %v", err)
	}

	l.postHoldActions(ctx, hold, "hold.started")
	return hold, nil
}

// CommitHold settles a pending hold: the held credits leave both the
// reserved total and the balance. Committing an already committed hold, or
// one whose record has aged out of the store, reports the current balance.
func (l *Duotale) CommitHold(ctx context.Context, deviceID string, holdID string) (*model.Balance, error) {
	ctx, span := tracer.Start(ctx, "Committing credit hold")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	retention := 2 * time.Duration(conf.Ledger.HoldTTLSec) * time.Second

	locker, err := l.acquireDeviceLock(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "acquire device lock error", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	hold, err := l.datastore.GetHold(ctx, holdID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch hold error", err)
	}
	if hold == nil {
		span.AddEvent("hold record absent, treating commit as already settled")
		return l.loadBalance(ctx, deviceID)
	}
	if hold.DeviceID != deviceID {
		err := &model.AuthorizationMismatchError{HoldID: holdID, DeviceID: deviceID}
		span.RecordError(err)
		return nil, err
	}

	balance, err := l.loadBalance(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch balance error", err)
	}

	switch hold.State {
	case model.HoldCommitted:
		span.AddEvent("hold already committed")
		return balance, nil
	case model.HoldCancelled:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Hold was already cancelled", fmt.Errorf("hold %s", holdID))
	}

	balance.CommitHold(hold)
	hold.State = model.HoldCommitted

	if err := l.datastore.SaveBalance(ctx, balance); err != nil {
		return nil, logAndRecordError(span, "save balance error", err)
	}
	if err := l.datastore.SaveHold(ctx, hold, retention); err != nil {
		return nil, logAndRecordError(span, "save hold error", err)
	}

	l.postHoldActions(ctx, hold, "hold.committed")
	l.checkLowBalance(balance)
	return balance, nil
}

// CancelHold releases a pending hold: the held credits return to the
// available pool and the balance is untouched. Cancelling an already
// cancelled hold, or one whose record has aged out, reports the current
// balance.
func (l *Duotale) CancelHold(ctx context.Context, deviceID string, holdID string) (*model.Balance, error) {
	ctx, span := tracer.Start(ctx, "Cancelling credit hold")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	retention := 2 * time.Duration(conf.Ledger.HoldTTLSec) * time.Second

	locker, err := l.acquireDeviceLock(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "acquire device lock error", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	hold, err := l.datastore.GetHold(ctx, holdID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch hold error", err)
	}
	if hold == nil {
		span.AddEvent("hold record absent, treating cancel as already settled")
		return l.loadBalance(ctx, deviceID)
	}
	if hold.DeviceID != deviceID {
		err := &model.AuthorizationMismatchError{HoldID: holdID, DeviceID: deviceID}
		span.RecordError(err)
		return nil, err
	}

	balance, err := l.loadBalance(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch balance error", err)
	}

	switch hold.State {
	case model.HoldCancelled:
		span.AddEvent("hold already cancelled")
		return balance, nil
	case model.HoldCommitted:
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Hold was already committed", fmt.Errorf("hold %s", holdID))
	}

	balance.ReleaseHold(hold)
	hold.State = model.HoldCancelled

	if err := l.datastore.SaveBalance(ctx, balance); err != nil {
		return nil, logAndRecordError(span, "save balance error", err)
	}
	if err := l.datastore.SaveHold(ctx, hold, retention); err != nil {
		return nil, logAndRecordError(span, "save hold error", err)
	}

	l.postHoldActions(ctx, hold, "hold.cancelled")
	return balance, nil
}

// ExpireHold is the worker-side resolution of a hold whose TTL elapsed
// without a commit or cancel. The hold is re-checked before release: a hold
// settled between scheduling and firing is left alone, and a task that fired
// early is pushed back onto the queue.
func (l *Duotale) ExpireHold(ctx context.Context, holdID string) error {
	ctx, span := tracer.Start(ctx, "Expiring credit hold")
	defer span.End()

	hold, err := l.datastore.GetHold(ctx, holdID)
	if err != nil {
		return logAndRecordError(span, "fetch hold error", err)
	}
	if hold == nil || hold.Resolved() {
		span.AddEvent("hold already resolved")
		return nil
	}
	if !hold.Expired(time.Now()) {
		span.AddEvent("hold not yet expired, rescheduling")
		return l.queue.QueueHoldExpiry(ctx, hold)
	}

	if _, err := l.CancelHold(ctx, hold.DeviceID, holdID); err != nil {
		return logAndRecordError(span, "release expired hold error", err)
	}
	logrus.Infof("hold %s expired, reservation of %d returned to device %s", holdID, hold.Amount, hold.DeviceID)
	return nil
}

// GetBalance reports a device's credit record. Devices the ledger has never
// seen report the starter grant.
func (l *Duotale) GetBalance(ctx context.Context, deviceID string) (*model.Balance, error) {
	ctx, span := tracer.Start(ctx, "Fetching device balance")
	defer span.End()

	balance, err := l.loadBalance(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch balance error", err)
	}
	return balance, nil
}

// GetHold reports a hold's current state, nil when the record is absent.
func (l *Duotale) GetHold(ctx context.Context, holdID string) (*model.Hold, error) {
	return l.datastore.GetHold(ctx, holdID)
}

// Grant credits a device's settled balance, e.g. after a purchase.
func (l *Duotale) Grant(ctx context.Context, deviceID string, amount int64) (*model.Balance, error) {
	ctx, span := tracer.Start(ctx, "Granting credits")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Grant amount must be positive", fmt.Errorf("got %d", amount))
	}

	locker, err := l.acquireDeviceLock(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "acquire device lock error", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	balance, err := l.loadBalance(ctx, deviceID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch balance error", err)
	}
	balance.Grant(amount)

	if err := l.datastore.SaveBalance(ctx, balance); err != nil {
		return nil, logAndRecordError(span, "save balance error", err)
	}

	go func() {
		err := SendWebhook(NewWebhook{
			Event:   "credits.granted",
			Payload: balance,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
	return balance, nil
}

// RedeemPack resolves a credit-pack code from the catalog and grants its
// credits to the device. The granted amount is returned alongside the
// updated balance so callers can report what the pack was worth.
func (l *Duotale) RedeemPack(ctx context.Context, deviceID string, code string) (*model.Balance, int64, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, 0, err
	}
	for _, pack := range conf.CreditPacks {
		if strings.EqualFold(pack.Code, code) {
			balance, err := l.Grant(ctx, deviceID, pack.Credits)
			if err != nil {
				return nil, 0, err
			}
			return balance, pack.Credits, nil
		}
	}
	return nil, 0, apierror.NewAPIError(apierror.ErrNotFound, "Unknown credit pack", fmt.Errorf("code %s", code))
}

// checkLowBalance raises the low-credit event once a commit drops the
// available pool to the configured threshold.
func (l *Duotale) checkLowBalance(balance *model.Balance) {
	conf, err := config.Fetch()
	if err != nil {
		return
	}
	if conf.Ledger.LowBalanceThreshold <= 0 {
		return
	}
	if balance.Available() <= conf.Ledger.LowBalanceThreshold {
		monitor.NotifyLowCredits(balance.DeviceID, balance.Available())
	}
}

// postHoldActions publishes a hold lifecycle event to registered webhooks.
func (l *Duotale) postHoldActions(_ context.Context, hold *model.Hold, event string) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   event,
			Payload: hold,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
