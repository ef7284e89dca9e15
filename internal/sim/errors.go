// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

// Error codes for simulation runs.
const (
	CodeInvalidTimeline = "SIM_INVALID_TIMELINE"
	CodeInvalidConfig   = "SIM_INVALID_CONFIG"
	CodeCharacterFailed = "SIM_CHARACTER_FAILED"
)
