package domain

import (
	"errors"
	"fmt"
)

// MinerError is the unified error type for the orchestrator.
// Each error has a numeric code and human-readable message.
type MinerError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *MinerError) Error() string {
	return fmt.Sprintf("miner error %d: %s", e.Code, e.Message)
}

// NewMinerError creates a new MinerError.
func NewMinerError(code int, msg string) *MinerError {
	return &MinerError{Code: code, Message: msg}
}

// WrapMinerError creates a MinerError that includes a cause.
func WrapMinerError(code int, msg string, cause error) *MinerError {
	return &MinerError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Compute engine / submission errors (-41010 to -41039) ----

var (
	// ErrClientRequest marks a malformed request (400/404-equivalent). Never retried.
	ErrClientRequest = &MinerError{Code: -41010, Message: "malformed request rejected by remote service"}
	// ErrTransient marks a network or availability failure. Retried with backoff.
	ErrTransient = &MinerError{Code: -41011, Message: "transient remote failure"}
	// ErrMineTimeout marks a mining call that exceeded the hard ceiling.
	// The work item is released for retry; never fatal to the slot.
	ErrMineTimeout = &MinerError{Code: -41012, Message: "mining call exceeded hard ceiling"}
	// ErrDuplicateSolution marks an "already accepted" response. Treated as success.
	ErrDuplicateSolution = &MinerError{Code: -41013, Message: "solution already accepted for this challenge"}
	// ErrRemoteRejection marks a non-duplicate rejection from the acceptance endpoint.
	ErrRemoteRejection = &MinerError{Code: -41014, Message: "solution rejected by acceptance endpoint"}
	// ErrEngineNotReady marks a compute engine that has not been initialized.
	ErrEngineNotReady = &MinerError{Code: -41015, Message: "compute engine not initialized for challenge"}
	// ErrRetriesExhausted surfaces a transient failure after the attempt cap.
	ErrRetriesExhausted = &MinerError{Code: -41016, Message: "retry attempts exhausted"}
	// ErrUnknownRemote marks an unclassified remote failure. Retried once,
	// then surfaced.
	ErrUnknownRemote = &MinerError{Code: -41017, Message: "unclassified remote failure"}
)

// ---- Orchestrator errors (-41040 to -41069) ----

var (
	ErrNotRunning       = &MinerError{Code: -41040, Message: "orchestrator is not running"}
	ErrAlreadyRunning   = &MinerError{Code: -41041, Message: "orchestrator is already running"}
	ErrNoChallenge      = &MinerError{Code: -41042, Message: "no challenge is currently active"}
	ErrNoClaimableItem  = &MinerError{Code: -41043, Message: "no claimable work item remains"}
	ErrSlotOutOfRange   = &MinerError{Code: -41044, Message: "worker slot id out of range"}
	ErrFeeRunActive     = &MinerError{Code: -41045, Message: "fee worker run already active"}
	ErrNoFeeItem        = &MinerError{Code: -41046, Message: "no fee item configured"}
	ErrSubscriberClosed = &MinerError{Code: -41047, Message: "event subscriber already closed"}
)

// ---- Store / wallet / config errors (-41070 to -41099) ----

var (
	ErrStoreInit     = &MinerError{Code: -41070, Message: "failed to initialize store"}
	ErrStoreQuery    = &MinerError{Code: -41071, Message: "store query failed"}
	ErrStoreWrite    = &MinerError{Code: -41072, Message: "store write failed"}
	ErrConfigInvalid = &MinerError{Code: -41073, Message: "invalid configuration"}
	ErrWalletInvalid = &MinerError{Code: -41074, Message: "invalid wallet address list"}
)

// IsTransient reports whether err should be retried with backoff.
// A mining-ceiling timeout counts as transient: the item is released and
// becomes eligible for another attempt. Unclassified remote failures are
// retriable too, though callers cap them at a single retry.
func IsTransient(err error) bool {
	var me *MinerError
	if !errors.As(err, &me) {
		return false
	}
	return me.Code == ErrTransient.Code || me.Code == ErrMineTimeout.Code || me.Code == ErrUnknownRemote.Code
}

// IsDuplicate reports whether err is the "already accepted" outcome,
// which is observably identical to a fresh acceptance.
func IsDuplicate(err error) bool {
	var me *MinerError
	if !errors.As(err, &me) {
		return false
	}
	return me.Code == ErrDuplicateSolution.Code
}

// CodeOf extracts the MinerError code from err, or 0 when err carries none.
func CodeOf(err error) int {
	var me *MinerError
	if !errors.As(err, &me) {
		return 0
	}
	return me.Code
}
