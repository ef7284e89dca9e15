// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "math/bits"

// slotMask is the used-slot bitmask of a fixed-size pool.
type slotMask struct {
	words []uint64
	n     int
}

func newSlotMask(n int) slotMask {
	return slotMask{words: make([]uint64, (n+63)/64), n: n}
}

// firstFree returns the lowest clear slot.
func (m *slotMask) firstFree() (int, bool) {
	for w, word := range m.words {
		free := ^word
		if free == 0 {
			continue
		}
		i := w*64 + bits.TrailingZeros64(free)
		if i >= m.n {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func (m *slotMask) set(i int) {
	m.words[i/64] |= 1 << uint(i%64)
}

func (m *slotMask) clear(i int) {
	m.words[i/64] &^= 1 << uint(i%64)
}

func (m *slotMask) isSet(i int) bool {
	if i < 0 || i >= m.n {
		return false
	}
	return m.words[i/64]&(1<<uint(i%64)) != 0
}

func (m *slotMask) count() int {
	c := 0
	for _, w := range m.words {
		c += bits.OnesCount64(w)
	}
	return c
}

func (m *slotMask) reset() {
	for i := range m.words {
		m.words[i] = 0
	}
}
