// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sim

import (
	"context"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("animstate/sim")

// Run creates cfg.Characters characters and steps each of them through the
// timeline for cfg.Frames frames, at most cfg.Workers at a time. The first
// character error cancels the run.
func Run(ctx context.Context, cfg Config) (report *Report, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := NewID()
	logger := cfg.Logger.With("run_id", runID.String())
	cfg.Logger = logger

	ctx, span := tracer.Start(ctx, "sim.run",
		trace.WithAttributes(
			attribute.String("sim.run_id", runID.String()),
			attribute.Int("sim.characters", cfg.Characters),
			attribute.Int("sim.frames", cfg.Frames),
			attribute.Int("sim.workers", cfg.Workers),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	chars := make([]*Character, 0, cfg.Characters)
	for k := range cfg.Characters {
		c, err := NewCharacter(k, &cfg)
		if err != nil {
			for _, done := range chars {
				done.Close()
			}
			return nil, err
		}
		chars = append(chars, c)
	}

	logger.InfoContext(ctx, "simulation started",
		"characters", cfg.Characters, "frames", cfg.Frames, "workers", cfg.Workers)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, c := range chars {
		if gctx.Err() != nil {
			c.Close()
			continue
		}
		g.Go(func() error {
			return c.Run(gctx, cfg.Frames)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, oops.With("run_id", runID.String()).Wrap(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.With("run_id", runID.String()).Wrap(err)
	}

	report = &Report{
		RunID:     runID,
		Frames:    cfg.Frames,
		DeltaTime: cfg.DeltaTime,
		Elapsed:   time.Since(start),
	}
	for _, c := range chars {
		report.Characters = append(report.Characters, c.Report())
	}
	totals := report.Totals()
	logger.InfoContext(ctx, "simulation finished",
		"elapsed", report.Elapsed, "commands", totals.Commands, "errors", totals.Errors)
	return report, nil
}
