// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package snapshot

import (
	"log/slog"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animstate"
)

// Builder binds trees from a library to states. It is safe for concurrent use.
type Builder struct {
	lib    *Library
	logger *slog.Logger
	built  atomic.Int64
	live   atomic.Int64
}

// NewBuilder creates a builder over lib.
func NewBuilder(lib *Library, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{lib: lib, logger: logger}
}

// Build resolves state.Anim into a tree and propagates phase 0 through it.
func (b *Builder) Build(state *animstate.State, info *animstate.InfoCollection) (animstate.Snapshot, error) {
	b.lib.mu.RLock()
	root, err := b.lib.resolve(state.Anim, 0)
	b.lib.mu.RUnlock()
	if err != nil {
		return nil, oops.With("state", state.Name).Wrap(err)
	}
	t := &Tree{builder: b, anim: state.Anim, root: root}
	t.RefreshPhasesAndBlends(0, false, info)
	b.built.Add(1)
	b.live.Add(1)
	b.logger.Debug("snapshot built", "state", state.Name, "anim", state.Anim)
	return t, nil
}

// Built returns the number of trees built.
func (b *Builder) Built() int64 { return b.built.Load() }

// Live returns the number of trees built and not yet released.
func (b *Builder) Live() int64 { return b.live.Load() }

var _ animstate.SnapshotBuilder = (*Builder)(nil)
