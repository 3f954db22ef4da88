// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runs

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// demoTier describes one quality band of synthetic runs. The three
// tiers give the clustering engine something real to separate: a
// well-tuned group, a mediocre group, and a diverged group.
type demoTier struct {
	name        string
	accuracy    [2]float64 // final accuracy range
	loss        [2]float64 // final loss range
	lrExponent  [2]float64 // learning rate is 10^x, x drawn from here
	dropout     [2]float64
	failureRate float64
}

var demoTiers = []demoTier{
	{
		name:        "good",
		accuracy:    [2]float64{0.88, 0.96},
		loss:        [2]float64{0.04, 0.15},
		lrExponent:  [2]float64{-3.5, -2.5},
		dropout:     [2]float64{0.1, 0.3},
		failureRate: 0.05,
	},
	{
		name:        "mediocre",
		accuracy:    [2]float64{0.72, 0.85},
		loss:        [2]float64{0.2, 0.45},
		lrExponent:  [2]float64{-4.5, -3.5},
		dropout:     [2]float64{0.2, 0.5},
		failureRate: 0.1,
	},
	{
		name:        "poor",
		accuracy:    [2]float64{0.35, 0.65},
		loss:        [2]float64{0.6, 1.8},
		lrExponent:  [2]float64{-2.0, -1.0}, // too hot, diverges
		dropout:     [2]float64{0.0, 0.6},
		failureRate: 0.3,
	},
}

var demoOptimizers = []string{"adam", "adam", "adam", "sgd", "rmsprop"}
var demoBatchSizes = []float64{32, 64, 128, 256}

// GenerateDemo produces n synthetic runs split across the three
// quality tiers. Output is fully determined by seed: run IDs are UUIDs
// drawn from the seeded source, so repeated calls with the same
// arguments yield identical runs.
func GenerateDemo(n int, seed int64) []Run {
	if n <= 0 {
		n = 20
	}
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	out := make([]Run, 0, n)
	for i := 0; i < n; i++ {
		tier := demoTiers[i*len(demoTiers)/n]

		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			// The seeded source never fails to produce bytes.
			panic(err)
		}

		finalAcc := uniform(rng, tier.accuracy)
		finalLoss := uniform(rng, tier.loss)
		steps := 8 + rng.Intn(12)

		state := StateCompleted
		if rng.Float64() < tier.failureRate {
			if rng.Float64() < 0.5 {
				state = StateFailed
			} else {
				state = StateCrashed
			}
		}

		lr := math.Pow(10, uniform(rng, tier.lrExponent))
		run := Run{
			ID:             id.String()[:8],
			Name:           fmt.Sprintf("%s-run-%02d", tier.name, i+1),
			State:          state,
			CreatedAt:      base.Add(time.Duration(i) * 6 * time.Hour),
			RuntimeSeconds: 600 + rng.Float64()*5400,
			Commit:         hexString(rng, 12),
			Tags:           []string{"demo", tier.name},
			Metrics: map[string][]float64{
				"accuracy":     curveUp(rng, steps, finalAcc),
				"loss":         curveDown(rng, steps, finalLoss),
				"val_accuracy": curveUp(rng, steps, finalAcc-0.02-rng.Float64()*0.05),
				"val_loss":     curveDown(rng, steps, finalLoss+0.02+rng.Float64()*0.1),
			},
			Config: map[string]Value{
				"learning_rate": Number(lr),
				"batch_size":    Number(demoBatchSizes[rng.Intn(len(demoBatchSizes))]),
				"optimizer":     Text(demoOptimizers[rng.Intn(len(demoOptimizers))]),
				"epochs":        Number(float64(steps)),
				"dropout":       Number(round3(uniform(rng, tier.dropout))),
				"use_amp":       Boolean(rng.Float64() < 0.5),
			},
		}
		out = append(out, run)
	}
	return out
}

// curveUp builds an increasing training curve ending at final.
func curveUp(rng *rand.Rand, steps int, final float64) []float64 {
	if final < 0.01 {
		final = 0.01
	}
	series := make([]float64, steps)
	start := final * (0.3 + rng.Float64()*0.2)
	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps-1)
		noise := (rng.Float64() - 0.5) * 0.02
		series[i] = start + (final-start)*frac + noise
	}
	series[steps-1] = final
	return series
}

// curveDown builds a decreasing loss curve ending at final.
func curveDown(rng *rand.Rand, steps int, final float64) []float64 {
	series := make([]float64, steps)
	start := final*3 + 0.5 + rng.Float64()
	for i := 0; i < steps; i++ {
		frac := float64(i) / float64(steps-1)
		noise := (rng.Float64() - 0.5) * 0.05
		series[i] = start + (final-start)*frac + noise
	}
	series[steps-1] = final
	return series
}

func uniform(rng *rand.Rand, bounds [2]float64) float64 {
	return bounds[0] + rng.Float64()*(bounds[1]-bounds[0])
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func hexString(rng *rand.Rand, n int) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = hexdigits[rng.Intn(len(hexdigits))]
	}
	return string(b)
}
