// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import (
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/feather"
)

// Pool defaults.
const (
	DefaultMaxInstances         = 8
	DefaultMaxTracks            = 4
	DefaultMaxInstancesPerTrack = 4
)

// LayerConfig configures a layer.
type LayerConfig struct {
	Name                 string
	Provider             StateProvider
	Snapshots            SnapshotBuilder
	Hooks                LayerHooks
	Logger               *slog.Logger
	MaxInstances         int
	MaxTracks            int
	MaxInstancesPerTrack int
	BlendMode            animcmd.BlendMode
	FeatherBlend         string
	Feather              *feather.Table
	Channels             []string
}

// Validate checks the configuration and fills defaults.
func (c *LayerConfig) Validate() error {
	errb := oops.Code(CodeInvalidConfig).With("layer", c.Name)
	if c.Name == "" {
		return errb.Errorf("layer name is required")
	}
	if c.Provider == nil {
		return errb.Errorf("state provider is required")
	}
	if c.Snapshots == nil {
		return errb.Errorf("snapshot builder is required")
	}
	if c.MaxInstances == 0 {
		c.MaxInstances = DefaultMaxInstances
	}
	if c.MaxTracks == 0 {
		c.MaxTracks = DefaultMaxTracks
	}
	if c.MaxInstancesPerTrack == 0 {
		c.MaxInstancesPerTrack = DefaultMaxInstancesPerTrack
	}
	if c.MaxInstances < 1 || c.MaxTracks < 1 || c.MaxInstancesPerTrack < 1 {
		return errb.With("max_instances", c.MaxInstances).
			With("max_tracks", c.MaxTracks).
			With("max_instances_per_track", c.MaxInstancesPerTrack).
			Errorf("pool sizes must be positive")
	}
	if len(c.Channels) == 0 {
		c.Channels = DefaultChannels
	}
	if len(c.Channels) > MaxTrackedChannels {
		return errb.With("channels", c.Channels).
			Errorf("at most %d channels can be tracked", MaxTrackedChannels)
	}
	return nil
}

// Layer is one independent state machine of a character. It owns fixed pools
// of instances and tracks; tracks are kept newest first.
type Layer struct {
	cfg      LayerConfig
	name     string
	provider StateProvider
	builder  SnapshotBuilder
	hooks    LayerHooks
	logger   *slog.Logger
	channels []string
	info     *InfoCollection

	featherHandle feather.Handle
	fade          float32

	instances []Instance
	instUsed  slotMask
	tracks    []Track
	trackUsed slotMask
	trackList []*Track

	nextInstanceID InstanceID
	nextRequestID  RequestID
	requests       requestQueue
	processed      processedRing
	trap           glob.Glob
	trapPattern    string

	frameEffects *EffectList

	// Counts last added to the gauges.
	gaugeInstances int
	gaugeTracks    int
}

// NewLayer creates a layer with empty pools.
func NewLayer(cfg LayerConfig) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Layer{
		cfg:           cfg,
		name:          cfg.Name,
		provider:      cfg.Provider,
		builder:       cfg.Snapshots,
		hooks:         cfg.Hooks,
		logger:        cfg.Logger,
		channels:      cfg.Channels,
		featherHandle: feather.InvalidHandle,
		fade:          1,
		instances:     make([]Instance, cfg.MaxInstances),
		instUsed:      newSlotMask(cfg.MaxInstances),
		tracks:        make([]Track, cfg.MaxTracks),
		trackUsed:     newSlotMask(cfg.MaxTracks),
		trackList:     make([]*Track, 0, cfg.MaxTracks),
	}
	if l.hooks == nil {
		l.hooks = NopHooks{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("layer", cfg.Name)
	if cfg.FeatherBlend != "" {
		table := cfg.Feather
		if table == nil {
			table = feather.Default()
		}
		h, ok := table.Login(cfg.FeatherBlend)
		if !ok {
			return nil, oops.Code(CodeInvalidConfig).
				With("layer", cfg.Name).
				With("feather_blend", cfg.FeatherBlend).
				Errorf("unknown feather blend %q", cfg.FeatherBlend)
		}
		l.featherHandle = h
	}
	for k := range l.instances {
		l.instances[k].layer = l
		l.instances[k].slot = k
	}
	for k := range l.tracks {
		l.tracks[k].slot = k
	}
	return l, nil
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Provider returns the state provider.
func (l *Layer) Provider() StateProvider { return l.provider }

// Fade returns the layer fade.
func (l *Layer) Fade() float32 { return l.fade }

// SetFade sets the layer fade handed to the post-blend hook and shared out over tracks.
func (l *Layer) SetFade(f float32) { l.fade = clamp01(f) }

// SetInfo sets the character info used by transition conditions outside an update.
func (l *Layer) SetInfo(info *InfoCollection) { l.info = info }

// NumTracks returns the number of live tracks.
func (l *Layer) NumTracks() int { return len(l.trackList) }

// Track returns the track at idx, newest first, or nil.
func (l *Layer) Track(idx int) *Track {
	if idx < 0 || idx >= len(l.trackList) {
		return nil
	}
	return l.trackList[idx]
}

// NumUsedInstances returns the number of allocated instance slots.
func (l *Layer) NumUsedInstances() int { return l.instUsed.count() }

// NumUsedTracks returns the number of allocated track slots.
func (l *Layer) NumUsedTracks() int { return l.trackUsed.count() }

// NumInstances returns the number of instances held by live tracks.
func (l *Layer) NumInstances() int {
	n := 0
	for _, t := range l.trackList {
		n += t.NumInstances()
	}
	return n
}

// CurrentInstance returns the newest instance of the newest track, or nil.
func (l *Layer) CurrentInstance() *Instance {
	if len(l.trackList) == 0 {
		return nil
	}
	return l.trackList[0].Newest()
}

// CurrentStateName returns the state of the current instance, or "".
func (l *Layer) CurrentStateName() string {
	if inst := l.CurrentInstance(); inst != nil {
		return inst.StateName()
	}
	return ""
}

// GetTrackForInstance returns the track owning inst and its index, or nil and -1.
func (l *Layer) GetTrackForInstance(inst *Instance) (*Track, int) {
	if inst == nil {
		return nil, -1
	}
	for k, t := range l.trackList {
		if t.IndexOf(inst) >= 0 {
			return t, k
		}
	}
	return nil, -1
}

// InstanceByID returns the live instance with id, or nil.
func (l *Layer) InstanceByID(id InstanceID) *Instance {
	if !id.Valid() {
		return nil
	}
	for _, t := range l.trackList {
		for _, inst := range t.instances {
			if inst.id == id {
				return inst
			}
		}
	}
	return nil
}

// WalkInstances calls fn for every live instance, newest track first and
// newest instance first, until fn returns false.
func (l *Layer) WalkInstances(fn func(t *Track, inst *Instance) bool) {
	for _, t := range l.trackList {
		for _, inst := range t.instances {
			if !fn(t, inst) {
				return
			}
		}
	}
}

// Reset releases every instance and track and drops pending requests.
func (l *Layer) Reset() {
	for len(l.trackList) > 0 {
		l.releaseTrack(l.trackList[len(l.trackList)-1])
	}
	l.requests.clear()
	l.processed.clear()
	l.updateGauges()
}

func (l *Layer) isBottomTrack(t *Track) bool {
	return len(l.trackList) > 0 && l.trackList[len(l.trackList)-1] == t
}

func (l *Layer) allocInstanceSlot() *Instance {
	k, ok := l.instUsed.firstFree()
	if !ok {
		return nil
	}
	l.instUsed.set(k)
	return &l.instances[k]
}

// releaseInstance tears inst down and frees its slot. The caller removes it from its track.
func (l *Layer) releaseInstance(inst *Instance) {
	if !l.instUsed.isSet(inst.slot) {
		l.logger.Error("release of free instance slot", "slot", inst.slot,
			"code", CodeInstanceNotInPool)
		return
	}
	inst.OnRelease()
	l.instUsed.clear(inst.slot)
}

func (l *Layer) allocTrackSlot() *Track {
	k, ok := l.trackUsed.firstFree()
	if !ok {
		return nil
	}
	l.trackUsed.set(k)
	t := &l.tracks[k]
	t.reset(l.cfg.MaxInstancesPerTrack)
	return t
}

// releaseTrack releases every instance of t and removes it from the track list.
func (l *Layer) releaseTrack(t *Track) {
	for len(t.instances) > 0 {
		inst := t.ReclaimInstance()
		l.instUsed.clear(inst.slot)
	}
	for k, lt := range l.trackList {
		if lt == t {
			l.trackList = append(l.trackList[:k], l.trackList[k+1:]...)
			break
		}
	}
	t.reset(l.cfg.MaxInstancesPerTrack)
	l.trackUsed.clear(t.slot)
}

// pushTrack makes t the newest track.
func (l *Layer) pushTrack(t *Track) {
	l.trackList = append(l.trackList, nil)
	copy(l.trackList[1:], l.trackList)
	l.trackList[0] = t
}

// updateGauges adds this layer's change since the last update, so layers that
// share a name report their sum. Reset brings the contribution back to zero.
func (l *Layer) updateGauges() {
	if n := l.NumUsedInstances(); n != l.gaugeInstances {
		InstancesActive.WithLabelValues(l.name).Add(float64(n - l.gaugeInstances))
		l.gaugeInstances = n
	}
	if n := l.NumUsedTracks(); n != l.gaugeTracks {
		TracksActive.WithLabelValues(l.name).Add(float64(n - l.gaugeTracks))
		l.gaugeTracks = n
	}
}

// String dumps the tracks newest first.
func (l *Layer) String() string {
	var b strings.Builder
	b.WriteString("layer ")
	b.WriteString(l.name)
	for _, t := range l.trackList {
		b.WriteString("\n  ")
		b.WriteString(t.String())
	}
	return b.String()
}
