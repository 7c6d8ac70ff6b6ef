package model

import (
	"errors"
	"fmt"
)

// InsufficientCreditsError rejects a hold whose amount exceeds the device's
// available credits. Terminal: never retried, surfaced with the current
// balance so the caller can prompt a purchase.
type InsufficientCreditsError struct {
	Balance   int64
	Reserved  int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: requested %d, available %d", e.Requested, e.Balance-e.Reserved)
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// rejection anywhere in its chain.
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}

// AuthorizationMismatchError rejects a commit or cancel from a device that
// does not own the hold. Terminal.
type AuthorizationMismatchError struct {
	HoldID   string
	DeviceID string
}

func (e *AuthorizationMismatchError) Error() string {
	return fmt.Sprintf("hold %s is not owned by device %s", e.HoldID, e.DeviceID)
}

// IsAuthorizationMismatch reports whether err is a hold-ownership rejection.
func IsAuthorizationMismatch(err error) bool {
	var target *AuthorizationMismatchError
	return errors.As(err, &target)
}

// UpstreamError is a non-retryable rejection from an upstream provider:
// malformed request, content refusal, or an unusable response body.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s rejected request (%d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// AlignmentError records a sentence-count mismatch that survived the repair
// pass. It is degraded output, not a failure: the pipeline keeps the
// mismatched draft and surfaces the warning.
type AlignmentError struct {
	Paragraph int
	Expected  int
	Got       int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("paragraph %d: expected %d sentences, translation has %d", e.Paragraph, e.Expected, e.Got)
}
