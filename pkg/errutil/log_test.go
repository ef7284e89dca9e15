// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/animstate/pkg/errutil"
)

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "not JSON: %s", buf.String())
	return entry
}

func TestLog_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger, string, error)
		level string
	}{
		{"error", errutil.LogError, "ERROR"},
		{"warn", errutil.LogWarn, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			tt.log(logger, "transition failed", oops.Code("ANIMSTATE_UNKNOWN_STATE").Errorf("unknown state %q", "swim"))

			entry := logEntry(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "transition failed", entry["msg"])
			assert.Equal(t, "ANIMSTATE_UNKNOWN_STATE", entry["code"])
			assert.Contains(t, entry["error"], `unknown state "swim"`)
		})
	}
}

func TestLogError_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "run failed", errors.New("disk full"))

	entry := logEntry(t, &buf)
	assert.Equal(t, "disk full", entry["error"])
	assert.NotContains(t, entry, "code")
	assert.NotContains(t, entry, "context")
}

func TestLogWarn_IncludesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("POOL_EXHAUSTED").
		With("layer", "base").
		Errorf("no free instance")

	errutil.LogWarn(logger, "spawn failed", err)

	entry := logEntry(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "POOL_EXHAUSTED", entry["code"])
	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "base", ctx["layer"])
}

func TestCode(t *testing.T) {
	assert.Equal(t, "X", errutil.Code(oops.Code("X").Errorf("boom")))
	assert.Equal(t, "X", errutil.Code(oops.With("k", 1).Wrap(oops.Code("X").Errorf("boom"))))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	assert.Empty(t, errutil.Code(oops.Errorf("no code")))
}
