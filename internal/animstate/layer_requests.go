// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Request queue sizes.
const (
	MaxRequestsInFlight  = 4
	MaxProcessedRequests = 16
)

type requestKind uint8

const (
	requestByName requestKind = iota
	requestByDestState
)

type stateChangeRequest struct {
	id     RequestID
	kind   requestKind
	name   string
	params FadeToStateParams
	status StatusFlags
}

// requestQueue is a fixed ring of pending requests in arrival order.
type requestQueue struct {
	items [MaxRequestsInFlight]stateChangeRequest
	head  int
	n     int
}

func (q *requestQueue) len() int { return q.n }

func (q *requestQueue) full() bool { return q.n == len(q.items) }

func (q *requestQueue) at(k int) *stateChangeRequest {
	return &q.items[(q.head+k)%len(q.items)]
}

func (q *requestQueue) push(r stateChangeRequest) bool {
	if q.full() {
		return false
	}
	*q.at(q.n) = r
	q.n++
	return true
}

// retain keeps the requests for which keep returns true, preserving order.
func (q *requestQueue) retain(keep func(*stateChangeRequest) bool) {
	var kept [MaxRequestsInFlight]stateChangeRequest
	n := 0
	for k := 0; k < q.n; k++ {
		if r := q.at(k); keep(r) {
			kept[n] = *r
			n++
		}
	}
	q.items = kept
	q.head = 0
	q.n = n
}

func (q *requestQueue) clear() {
	*q = requestQueue{}
}

// ProcessedChangeRequest is the outcome of a request that left the queue.
type ProcessedChangeRequest struct {
	ID         RequestID
	Name       string
	Status     StatusFlags
	InstanceID InstanceID
	Frame      int64
}

type processedRing struct {
	items [MaxProcessedRequests]ProcessedChangeRequest
	next  int
	n     int
}

func (r *processedRing) add(p ProcessedChangeRequest) {
	r.items[r.next] = p
	r.next = (r.next + 1) % len(r.items)
	if r.n < len(r.items) {
		r.n++
	}
}

// newestFirst returns the history, newest first.
func (r *processedRing) newestFirst() []ProcessedChangeRequest {
	out := make([]ProcessedChangeRequest, 0, r.n)
	for k := 1; k <= r.n; k++ {
		out = append(out, r.items[(r.next-k+len(r.items))%len(r.items)])
	}
	return out
}

func (r *processedRing) find(id RequestID) (ProcessedChangeRequest, bool) {
	for _, p := range r.newestFirst() {
		if p.ID == id {
			return p, true
		}
	}
	return ProcessedChangeRequest{}, false
}

func (r *processedRing) clear() {
	*r = processedRing{}
}

func (l *Layer) newRequestID() RequestID {
	l.nextRequestID++
	if l.nextRequestID == InvalidRequestID {
		l.nextRequestID++
	}
	return l.nextRequestID
}

func (l *Layer) enqueue(kind requestKind, name string, params *FadeToStateParams, status StatusFlags) RequestID {
	id := l.newRequestID()
	r := stateChangeRequest{id: id, kind: kind, name: name, status: StatusPending | status}
	if params != nil {
		r.params = *params
	}
	if !l.requests.push(r) {
		l.processed.add(ProcessedChangeRequest{ID: id, Name: name, Status: StatusQueueFull})
		recordRequest(l.name, OutcomeQueueFull)
		l.logger.Warn("transition request dropped, queue full",
			"request_id", id, "transition", name, "in_flight", MaxRequestsInFlight)
	}
	return id
}

// RequestTransition queues a transition by name. It is taken during the next
// BeginStep if the current instance has an active transition with that name.
func (l *Layer) RequestTransition(name string, params *FadeToStateParams) RequestID {
	return l.enqueue(requestByName, name, params, 0)
}

// RequestPersistentTransition queues a transition that stays pending while
// no matching transition is active.
func (l *Layer) RequestPersistentTransition(name string, params *FadeToStateParams) RequestID {
	return l.enqueue(requestByName, name, params, StatusDontRemove)
}

// RequestTransitionByFinalState queues a request to reach the final state dest
// through the graph, taking the first hop of the shortest path each time.
func (l *Layer) RequestTransitionByFinalState(dest string, params *FadeToStateParams) RequestID {
	return l.enqueue(requestByDestState, dest, params, 0)
}

// CancelRequest drops a pending request. It reports whether one was found.
func (l *Layer) CancelRequest(id RequestID) bool {
	found := false
	l.requests.retain(func(r *stateChangeRequest) bool {
		if r.id == id {
			found = true
			return false
		}
		return true
	})
	return found
}

// RemoveAllPendingTransitions empties the request queue, persistent requests
// included, and returns how many were removed. Removed requests are not
// recorded in the history.
func (l *Layer) RemoveAllPendingTransitions() int {
	n := l.requests.len()
	l.requests.clear()
	return n
}

// NumPendingRequests returns the number of queued requests.
func (l *Layer) NumPendingRequests() int { return l.requests.len() }

// GetTransitionStatus returns the status of a request, or StatusInvalid when
// the id is unknown or has aged out of the history.
func (l *Layer) GetTransitionStatus(id RequestID) StatusFlags {
	for k := 0; k < l.requests.len(); k++ {
		if r := l.requests.at(k); r.id == id {
			return r.status
		}
	}
	if p, ok := l.processed.find(id); ok {
		return p.Status
	}
	return StatusInvalid
}

// ProcessedRequests returns the request history, newest first.
func (l *Layer) ProcessedRequests() []ProcessedChangeRequest {
	return l.processed.newestFirst()
}

// IsTransitionValid reports whether the current instance has an active transition named name.
func (l *Layer) IsTransitionValid(name string) bool {
	inst := l.CurrentInstance()
	return inst != nil && inst.ActiveTransitionByName(name) != nil
}

// SetTransitionTrap marks requests whose name matches pattern as ignored. An
// empty pattern removes the trap.
func (l *Layer) SetTransitionTrap(pattern string) error {
	if pattern == "" {
		l.trap = nil
		l.trapPattern = ""
		return nil
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return oops.Code(CodeInvalidTrap).
			With("layer", l.name).
			With("pattern", pattern).
			Wrapf(err, "compile transition trap")
	}
	l.trap = g
	l.trapPattern = pattern
	return nil
}

// TransitionTrap returns the active trap pattern.
func (l *Layer) TransitionTrap() string { return l.trapPattern }

// TakeTransitions processes the queued requests in arrival order. Each taken
// request creates an instance that later requests see as the current one.
// It returns the newest instance created.
func (l *Layer) TakeTransitions(uctx *UpdateContext) (*Instance, bool) {
	var newest *Instance
	frame := uctx.frame()
	l.requests.retain(func(r *stateChangeRequest) bool {
		done := func(status StatusFlags, outcome string, id InstanceID) bool {
			r.status = status
			l.processed.add(ProcessedChangeRequest{ID: r.id, Name: r.name, Status: status, InstanceID: id, Frame: frame})
			recordRequest(l.name, outcome)
			return false
		}

		if l.trap != nil && l.trap.Match(r.name) {
			l.logger.Debug("transition request trapped", "request_id", r.id, "transition", r.name)
			return done(StatusIgnored, OutcomeIgnored, InvalidInstanceID)
		}

		src, trans := l.findTransition(uctx, r)
		persistent := r.status.Has(StatusDontRemove)
		if trans == nil {
			if persistent {
				return true
			}
			l.logger.Debug("no active transition for request",
				"request_id", r.id, "transition", r.name, "state", l.CurrentStateName())
			return done(StatusFailed, OutcomeFailed, InvalidInstanceID)
		}

		inst, err := l.ApplyTransition(uctx, src, trans, &r.params)
		if err != nil {
			l.logger.Warn("transition failed", "request_id", r.id, "transition", r.name, "error", err)
			if persistent {
				return true
			}
			return done(StatusFailed, OutcomeFailed, InvalidInstanceID)
		}
		l.logger.Debug("transition taken", "request_id", r.id, "transition", trans.Name,
			"from", src.StateName(), "to", inst.StateName(), "instance_id", inst.ID())
		newest = inst
		return done(StatusTaken, OutcomeTaken, inst.ID())
	})
	return newest, newest != nil
}

// findTransition looks for a transition matching r on the current instance and,
// when transitions from all tracks are enabled, the newest instance of every older track.
func (l *Layer) findTransition(uctx *UpdateContext, r *stateChangeRequest) (*Instance, *Transition) {
	for k, t := range l.trackList {
		if k > 0 && !uctx.options().TransitionsFromAllTracks {
			break
		}
		src := t.Newest()
		if src == nil {
			continue
		}
		var trans *Transition
		switch r.kind {
		case requestByDestState:
			trans = src.ActiveTransitionByDestState(r.name)
		default:
			trans = src.ActiveTransitionByName(r.name)
		}
		if trans != nil {
			return src, trans
		}
	}
	return nil, nil
}
