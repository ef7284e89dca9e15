// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error whose code is code.
// Wrapping with oops.With keeps the innermost code, so callers can assert the
// code of the failing component through any number of layers.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, Code(err))
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertErrorMessages asserts the code of err and that its message mentions
// every one of want. Graph loading reports all problems in one error, which
// this checks in a single call.
func AssertErrorMessages(t testing.TB, err error, code string, want ...string) {
	t.Helper()
	require.Error(t, err)
	AssertErrorCode(t, err, code)
	msg := err.Error()
	for _, w := range want {
		assert.Contains(t, msg, w)
	}
}
