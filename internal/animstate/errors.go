// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "github.com/samber/oops"

// Error codes for layer operations.
const (
	CodeUnknownState      = "ANIMSTATE_UNKNOWN_STATE"
	CodePoolExhausted     = "ANIMSTATE_POOL_EXHAUSTED"
	CodeSnapshotFailed    = "ANIMSTATE_SNAPSHOT_FAILED"
	CodeInvalidConfig     = "ANIMSTATE_INVALID_CONFIG"
	CodeInvalidTrap       = "ANIMSTATE_INVALID_TRAP"
	CodeInvalidPhase      = "ANIMSTATE_INVALID_PHASE"
	CodePhaseFuncFailed   = "ANIMSTATE_PHASE_FUNC_FAILED"
	CodeInstanceNotInPool = "ANIMSTATE_INSTANCE_NOT_IN_POOL"
)

// ErrUnknownState creates an error for a state name the provider does not know.
func ErrUnknownState(layer, state string) error {
	return oops.Code(CodeUnknownState).
		With("layer", layer).
		With("state", state).
		Errorf("unknown state %q", state)
}

// ErrPoolExhausted creates an error when no pool slot can be allocated or reclaimed.
func ErrPoolExhausted(layer, pool string, capacity int) error {
	return oops.Code(CodePoolExhausted).
		With("layer", layer).
		With("pool", pool).
		With("capacity", capacity).
		Errorf("%s pool exhausted", pool)
}
