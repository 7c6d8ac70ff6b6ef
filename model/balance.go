package model

import (
	"time"
)

// Balance is the per-device credit record. Reserved tracks the sum of all
// open holds; Available is what a new hold can draw from.
type Balance struct {
	DeviceID  string    `json:"device_id"`
	Balance   int64     `json:"balance"`
	Reserved  int64     `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available returns the spendable credit amount: settled balance minus
// everything currently held by open jobs.
func (balance *Balance) Available() int64 {
	return balance.Balance - balance.Reserved
}

// CanReserve reports whether a new hold of the given amount is admissible.
func (balance *Balance) CanReserve(amount int64) bool {
	return balance.Available() >= amount
}

// Reserve adds a hold of the given amount to the reserved total. Admission
// is decided by the ledger service; Reserve itself never rejects.
func (balance *Balance) Reserve(amount int64) {
	balance.Reserved += amount
	balance.UpdatedAt = time.Now()
}

// CommitHold settles a hold: the held amount leaves both the reserved total
// and the settled balance.
func (balance *Balance) CommitHold(hold *Hold) {
	if balance.Reserved >= hold.Amount {
		balance.Reserved -= hold.Amount
	} else {
		balance.Reserved = 0
	}
	balance.Balance -= hold.Amount
	balance.UpdatedAt = time.Now()
}

// ReleaseHold cancels a hold: the held amount leaves the reserved total and
// the settled balance is untouched.
func (balance *Balance) ReleaseHold(hold *Hold) {
	if balance.Reserved >= hold.Amount {
		balance.Reserved -= hold.Amount
	} else {
		balance.Reserved = 0
	}
	balance.UpdatedAt = time.Now()
}

// Grant credits the settled balance, e.g. after a purchase is redeemed.
func (balance *Balance) Grant(amount int64) {
	balance.Balance += amount
	balance.UpdatedAt = time.Now()
}

// HoldState is the lifecycle state of a credit hold.
type HoldState string

const (
	HoldPending   HoldState = "PENDING"
	HoldCommitted HoldState = "COMMITTED"
	HoldCancelled HoldState = "CANCELLED"
)

// Hold is a reservation of credits for one billable job. It is created by
// the ledger's start operation and resolved exactly once by commit or
// cancel; an unresolved hold expires at ExpiresAt.
type Hold struct {
	HoldID    string    `json:"hold_id"`
	DeviceID  string    `json:"device_id"`
	Amount    int64     `json:"amount"`
	State     HoldState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the hold's TTL has elapsed.
func (hold *Hold) Expired(now time.Time) bool {
	return !hold.ExpiresAt.IsZero() && now.After(hold.ExpiresAt)
}

// Resolved reports whether the hold reached a terminal state.
func (hold *Hold) Resolved() bool {
	return hold.State == HoldCommitted || hold.State == HoldCancelled
}
