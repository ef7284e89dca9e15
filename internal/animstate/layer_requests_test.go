// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/animstate/pkg/errutil"
)

// graphFixture wires idle -> walk -> run with named transitions.
func graphFixture(t *testing.T, name string) *layerFixture {
	t.Helper()
	f := newFixture(t, func(c *LayerConfig) { c.Name = name })
	idle := f.loop("idle", 0.2)
	walk := f.loop("walk", 0.2)
	f.loop("run", 0.2)
	idle.Transitions = []*Transition{{Name: "move", To: "walk"}}
	walk.Transitions = []*Transition{
		{Name: "speedup", To: "run"},
		{Name: "stop", To: "idle"},
	}
	f.fadeTo(t, "idle", 0)
	return f
}

func TestRequestTransition_Taken(t *testing.T) {
	f := graphFixture(t, "requests-taken")
	before := testutil.ToFloat64(TransitionRequests.WithLabelValues("requests-taken", OutcomeTaken))

	id := f.layer.RequestTransition("move", nil)
	assert.Equal(t, StatusPending, f.layer.GetTransitionStatus(id))
	assert.Equal(t, 1, f.layer.NumPendingRequests())

	f.step(0.1)

	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(id))
	assert.Equal(t, "walk", f.layer.CurrentStateName())
	assert.Zero(t, f.layer.NumPendingRequests())
	hist := f.layer.ProcessedRequests()
	require.Len(t, hist, 1)
	assert.Equal(t, f.layer.CurrentInstance().ID(), hist[0].InstanceID)
	assert.Equal(t, "move", hist[0].Name)
	assert.InDelta(t, before+1, testutil.ToFloat64(TransitionRequests.WithLabelValues("requests-taken", OutcomeTaken)), 1e-9)
	f.checkInvariants(t)
}

func TestRequestTransition_ProcessedInArrivalOrder(t *testing.T) {
	f := graphFixture(t, "requests-fifo")

	first := f.layer.RequestTransition("move", nil)
	second := f.layer.RequestTransition("speedup", nil)
	f.step(0.1)

	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(first))
	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(second))
	assert.Equal(t, "run", f.layer.CurrentStateName())
	f.checkInvariants(t)
}

func TestRequestTransition_QueueFull(t *testing.T) {
	f := graphFixture(t, "requests-full")
	before := testutil.ToFloat64(TransitionRequests.WithLabelValues("requests-full", OutcomeQueueFull))

	for k := 0; k < MaxRequestsInFlight; k++ {
		f.layer.RequestTransition("move", nil)
	}
	dropped := f.layer.RequestTransition("move", nil)

	assert.Equal(t, StatusQueueFull, f.layer.GetTransitionStatus(dropped))
	assert.Equal(t, MaxRequestsInFlight, f.layer.NumPendingRequests())
	assert.InDelta(t, before+1, testutil.ToFloat64(TransitionRequests.WithLabelValues("requests-full", OutcomeQueueFull)), 1e-9)
}

func TestRequestTransition_UnmatchedFails(t *testing.T) {
	f := graphFixture(t, "requests-failed")

	id := f.layer.RequestTransition("fly", nil)
	f.step(0.1)

	assert.Equal(t, StatusFailed, f.layer.GetTransitionStatus(id))
	assert.Equal(t, "idle", f.layer.CurrentStateName())
}

func TestRequestPersistentTransition_WaitsForCondition(t *testing.T) {
	f := newFixture(t, nil)
	idle := f.loop("idle", 0)
	f.loop("wave", 0.2)
	idle.Transitions = []*Transition{{
		Name:      "wave",
		To:        "wave",
		Condition: ConditionFunc(func(q *TransitionQueryInfo) bool { return q.Phase >= 0.5 }),
	}}
	f.fadeTo(t, "idle", 0)

	id := f.layer.RequestPersistentTransition("wave", nil)
	f.step(0.2)
	status := f.layer.GetTransitionStatus(id)
	assert.True(t, status.Has(StatusPending))
	assert.True(t, status.Has(StatusDontRemove))
	assert.Equal(t, "idle", f.layer.CurrentStateName())

	f.step(0.4)
	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(id))
	assert.Equal(t, "wave", f.layer.CurrentStateName())
}

func TestCancelRequest(t *testing.T) {
	f := graphFixture(t, "requests-cancel")

	id := f.layer.RequestPersistentTransition("fly", nil)
	require.True(t, f.layer.CancelRequest(id))
	assert.False(t, f.layer.CancelRequest(id))
	assert.Equal(t, StatusInvalid, f.layer.GetTransitionStatus(id))
}

func TestRemoveAllPendingTransitions(t *testing.T) {
	f := graphFixture(t, "requests-remove-all")

	persistent := f.layer.RequestPersistentTransition("fly", nil)
	plain := f.layer.RequestTransition("move", nil)

	assert.Equal(t, 2, f.layer.RemoveAllPendingTransitions())
	assert.Zero(t, f.layer.NumPendingRequests())
	assert.Equal(t, StatusInvalid, f.layer.GetTransitionStatus(persistent))
	assert.Equal(t, StatusInvalid, f.layer.GetTransitionStatus(plain))

	f.step(0.1)
	assert.Equal(t, "idle", f.layer.CurrentStateName())
	assert.Zero(t, f.layer.RemoveAllPendingTransitions())
}

func TestTransitionTrap(t *testing.T) {
	f := graphFixture(t, "requests-trap")
	f.provider.states["idle"].Transitions = append(f.provider.states["idle"].Transitions,
		&Transition{Name: "debug.teleport", To: "run"})

	require.NoError(t, f.layer.SetTransitionTrap("debug.*"))
	assert.Equal(t, "debug.*", f.layer.TransitionTrap())
	trapped := f.layer.RequestTransition("debug.teleport", nil)
	f.step(0.1)

	assert.Equal(t, StatusIgnored, f.layer.GetTransitionStatus(trapped))
	assert.Equal(t, "idle", f.layer.CurrentStateName())

	require.NoError(t, f.layer.SetTransitionTrap(""))
	taken := f.layer.RequestTransition("debug.teleport", nil)
	f.step(0.1)
	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(taken))
}

func TestTransitionTrap_InvalidPattern(t *testing.T) {
	f := graphFixture(t, "requests-trap-invalid")

	err := f.layer.SetTransitionTrap("[")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeInvalidTrap)
	assert.Empty(t, f.layer.TransitionTrap())
}

func TestGetTransitionStatus_UnknownAndAgedOut(t *testing.T) {
	f := graphFixture(t, "requests-history")
	assert.Equal(t, StatusInvalid, f.layer.GetTransitionStatus(RequestID(999)))

	first := f.layer.RequestTransition("fly", nil)
	f.step(0.01)
	require.Equal(t, StatusFailed, f.layer.GetTransitionStatus(first))

	for round := 0; round < MaxProcessedRequests/MaxRequestsInFlight; round++ {
		for k := 0; k < MaxRequestsInFlight; k++ {
			f.layer.RequestTransition("fly", nil)
		}
		f.step(0.01)
	}

	assert.Equal(t, StatusInvalid, f.layer.GetTransitionStatus(first))
	assert.Len(t, f.layer.ProcessedRequests(), MaxProcessedRequests)
}

func TestRequestTransitionByFinalState_RoutesThroughGraph(t *testing.T) {
	f := graphFixture(t, "requests-route")

	id := f.layer.RequestTransitionByFinalState("run", nil)
	f.step(0.1)

	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(id))
	assert.Equal(t, "walk", f.layer.CurrentStateName(), "first hop of idle -> walk -> run")

	f.layer.RequestTransitionByFinalState("run", nil)
	f.step(0.1)
	assert.Equal(t, "run", f.layer.CurrentStateName())
	f.checkInvariants(t)
}

func TestActiveTransitionByDestState_FallsBackToSameName(t *testing.T) {
	f := newFixture(t, nil)
	idle := f.loop("idle", 0)
	f.loop("walk", 0)
	f.loop("jog", 0)
	never := ConditionFunc(func(*TransitionQueryInfo) bool { return false })
	jog := &Transition{Name: "move", To: "jog"}
	idle.Transitions = []*Transition{
		{Name: "move", To: "walk", Condition: never},
		jog,
		{Name: "auto", To: "walk", Auto: true},
	}
	inst := f.fadeTo(t, "idle", 0)

	assert.Same(t, jog, inst.ActiveTransitionByDestState("walk"))
	assert.Nil(t, inst.ActiveTransitionByDestState("nowhere"))
}

func TestIsTransitionValid(t *testing.T) {
	f := graphFixture(t, "requests-valid")

	assert.True(t, f.layer.IsTransitionValid("move"))
	assert.False(t, f.layer.IsTransitionValid("speedup"))
}

func TestTransitionsFromAllTracks(t *testing.T) {
	f := graphFixture(t, "requests-all-tracks")
	f.loop("wave", 0.5)
	_, err := f.layer.FadeToState(f.uctx, "wave", &FadeToStateParams{
		Fade:                fadeOf(0.5),
		NewInstanceBehavior: NewInstanceSpawnNewTrack,
	})
	require.NoError(t, err)

	id := f.layer.RequestTransition("move", nil)
	f.step(0.01)
	assert.Equal(t, StatusFailed, f.layer.GetTransitionStatus(id))

	f.uctx.Options.TransitionsFromAllTracks = true
	id = f.layer.RequestTransition("move", nil)
	f.step(0.01)
	assert.Equal(t, StatusTaken, f.layer.GetTransitionStatus(id))
	f.checkInvariants(t)
}
