// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package statedb

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Error codes for state graph loading.
const (
	CodeInvalidGraph      = "STATEDB_INVALID_GRAPH"
	CodeSchemaViolation   = "STATEDB_SCHEMA_VIOLATION"
	CodeUnsupportedFormat = "STATEDB_UNSUPPORTED_FORMAT"
	CodeReadFailed        = "STATEDB_READ_FAILED"
)

// problems collects validation failures so a graph reports all of them at once.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err(graph string) error {
	if len(p) == 0 {
		return nil
	}
	return oops.Code(CodeInvalidGraph).
		With("graph", graph).
		With("problems", []string(p)).
		Errorf("state graph %q has %d problem(s):\n  %s", graph, len(p), strings.Join(p, "\n  "))
}
