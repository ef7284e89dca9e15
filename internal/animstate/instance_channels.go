// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

func (i *Instance) channelNames() []string {
	if i.layer == nil {
		return DefaultChannels
	}
	return i.layer.channels
}

func (i *Instance) channelIndex(name string) int {
	for k, n := range i.channelNames() {
		if n == name {
			return k
		}
	}
	return -1
}

// seedChannels samples the channels at the current phase so the first update
// has a valid previous locator.
func (i *Instance) seedChannels(info *InfoCollection) {
	names := i.channelNames()
	var locs [MaxTrackedChannels]Locator
	mask := i.snapshot.Evaluate(names, EvaluateParams{Phase: i.phase, Flipped: i.flags.Flipped, Info: info}, locs[:len(names)])
	for k := range names {
		if mask.Has(k) {
			i.channels[k].prev = locs[k]
			i.channels[k].cur = locs[k]
			i.channels[k].valid = true
		}
	}
}

// ResetChannelDeltas clears the accumulated deltas. Layers call this once per frame.
func (i *Instance) ResetChannelDeltas() {
	for k := range i.channels {
		i.channels[k].delta = IdentityLocator()
		i.channels[k].accumulating = false
	}
}

func (i *Instance) channel(name string) *channelState {
	k := i.channelIndex(name)
	if k < 0 || !i.channels[k].valid {
		return nil
	}
	return &i.channels[k]
}

// ChannelDelta returns the delta accumulated this frame for the named channel.
func (i *Instance) ChannelDelta(name string) (Locator, bool) {
	ch := i.channel(name)
	if ch == nil {
		return IdentityLocator(), false
	}
	return ch.delta, true
}

// ChannelPrevLoc returns the channel locator at the start of the frame.
func (i *Instance) ChannelPrevLoc(name string) (Locator, bool) {
	ch := i.channel(name)
	if ch == nil {
		return IdentityLocator(), false
	}
	return ch.prev, true
}

// ChannelCurLoc returns the channel locator at the current phase.
func (i *Instance) ChannelCurLoc(name string) (Locator, bool) {
	ch := i.channel(name)
	if ch == nil {
		return IdentityLocator(), false
	}
	return ch.cur, true
}

// ChannelDeltaInRefChannelSpace returns the motion of channel this frame
// expressed in the local frame of refChannel.
func (i *Instance) ChannelDeltaInRefChannelSpace(channel, refChannel string) (Locator, bool) {
	ch, ref := i.channel(channel), i.channel(refChannel)
	if ch == nil || ref == nil {
		return IdentityLocator(), false
	}
	prevLocal := ref.prev.UntransformLocator(ch.prev)
	curLocal := ref.cur.UntransformLocator(ch.cur)
	return prevLocal.UntransformLocator(curLocal), true
}
