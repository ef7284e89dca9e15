// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/animstate/internal/animcmd"
	"github.com/holomush/animstate/internal/animstate"
	"github.com/holomush/animstate/internal/feather"
	"github.com/holomush/animstate/internal/sim"
	"github.com/holomush/animstate/internal/snapshot"
	"github.com/holomush/animstate/internal/statedb"
)

var _ = Describe("Simulation", func() {
	var (
		ctx      context.Context
		graph    *statedb.Graph
		builder  *snapshot.Builder
		table    *feather.Table
		timeline *sim.Timeline
		cfg      sim.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.DiscardHandler)
		table = feather.NewTable()
		var err error
		graph, err = statedb.LoadFile("testdata/graph.yaml", statedb.Options{Feather: table, Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(graph.Close)
		builder = snapshot.NewBuilder(graph.Library(), logger)
		timeline, err = sim.LoadTimeline("testdata/timeline.yaml")
		Expect(err).NotTo(HaveOccurred())
		cfg = sim.Config{
			Provider:   graph,
			Snapshots:  builder,
			Feather:    table,
			Timeline:   timeline,
			Characters: 1,
			Frames:     75,
			DeltaTime:  1.0 / 30,
			Seed:       42,
			Logger:     logger,
		}
	})

	Describe("a single character", func() {
		It("follows the timeline", func() {
			report, err := sim.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Characters).To(HaveLen(1))

			c := report.Characters[0]
			Expect(c.Frames).To(Equal(75))
			Expect(c.Requests).To(HaveKeyWithValue(animstate.OutcomeTaken, 4))
			Expect(c.Requests).To(HaveKeyWithValue(animstate.OutcomeFailed, 1))
			Expect(c.Effects).To(HaveKeyWithValue("land", 1))
			Expect(c.Effects).To(HaveKey("footstep"))
			Expect(c.Final.Current).To(Equal("idle"))
			Expect(c.Commands).To(BeNumerically(">=", 75))
			Expect(c.Errors).To(BeZero())
		})

		It("releases every snapshot when it finishes", func() {
			_, err := sim.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(builder.Live()).To(BeZero())
			Expect(builder.Built()).To(BeNumerically(">", 1))
		})

		It("keeps the command lists when asked", func() {
			cfg.KeepCommands = true
			report, err := sim.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())

			frames := report.Characters[0].CommandFrames
			Expect(frames).To(HaveLen(75))
			Expect(frames[0][0].Kind).To(Equal(animcmd.KindLayerMarker))
			Expect(frames[0][1].Kind).To(Equal(animcmd.KindEvaluateClip))
		})
	})

	Describe("many characters", func() {
		BeforeEach(func() {
			cfg.Characters = 6
			cfg.Workers = 3
		})

		It("steps every character independently", func() {
			report, err := sim.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Characters).To(HaveLen(6))

			seen := map[string]bool{}
			for k, c := range report.Characters {
				Expect(c.Index).To(Equal(k))
				Expect(seen[c.ID.String()]).To(BeFalse(), "character ids are unique")
				seen[c.ID.String()] = true
				Expect(c.Requests).To(HaveKeyWithValue(animstate.OutcomeTaken, 4))
				Expect(c.Final.Current).To(Equal("idle"))
			}
			totals := report.Totals()
			Expect(totals.Requests[animstate.OutcomeTaken]).To(Equal(24))
			Expect(totals.Effects["land"]).To(Equal(6))
			Expect(builder.Live()).To(BeZero())
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := sim.Run(cctx, cfg)
			Expect(err).To(MatchError(context.Canceled))
			Expect(builder.Live()).To(BeZero())
		})
	})

	Describe("timeline problems", func() {
		It("rejects a start state the graph does not have", func() {
			cfg.Timeline = &sim.Timeline{Start: "swim"}
			_, err := sim.Run(ctx, cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(`unknown state "swim"`))
		})

		It("fails the run on an invalid trap pattern", func() {
			bad := "["
			cfg.Timeline = &sim.Timeline{Start: "idle", Events: []sim.Event{{At: 0.2, Trap: &bad}}}
			_, err := sim.Run(ctx, cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("trap"))
		})

		It("ignores trapped requests", func() {
			trap := "walk"
			cfg.Timeline = &sim.Timeline{Start: "idle", Events: []sim.Event{
				{At: 0, Trap: &trap},
				{At: 0.1, Info: map[string]float64{"speed": 1}, Request: "walk"},
			}}
			report, err := sim.Run(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Characters[0].Requests).To(HaveKeyWithValue(animstate.OutcomeIgnored, 1))
			Expect(report.Characters[0].Final.Current).To(Equal("idle"))
		})
	})
})
